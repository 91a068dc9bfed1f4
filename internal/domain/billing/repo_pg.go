package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carepoint/opd/internal/platform/db"
)

// -- Charge Repository --

type chargeRepoPG struct {
	pool *pgxpool.Pool
}

func NewChargeRepo(pool *pgxpool.Pool) ChargeRepository {
	return &chargeRepoPG{pool: pool}
}

func (r *chargeRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const chargeColumns = `id, code, name, category, amount, active, created_at, updated_at`

func (r *chargeRepoPG) Create(ctx context.Context, c *Charge) error {
	c.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO charges (id, code, name, category, amount, active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`,
		c.ID, c.Code, c.Name, c.Category, c.Amount, c.Active,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return ErrChargeExists
	}
	return err
}

func (r *chargeRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Charge, error) {
	return scanCharge(r.conn(ctx).QueryRow(ctx, `SELECT `+chargeColumns+` FROM charges WHERE id = $1`, id))
}

func (r *chargeRepoPG) GetByCode(ctx context.Context, code string) (*Charge, error) {
	return scanCharge(r.conn(ctx).QueryRow(ctx, `SELECT `+chargeColumns+` FROM charges WHERE code = $1`, code))
}

func (r *chargeRepoPG) Update(ctx context.Context, c *Charge) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE charges SET code = $2, name = $3, category = $4, amount = $5, active = $6, updated_at = NOW()
		WHERE id = $1
		RETURNING created_at, updated_at`,
		c.ID, c.Code, c.Name, c.Category, c.Amount, c.Active,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return ErrChargeExists
	}
	return db.NotFound(err)
}

func (r *chargeRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM charges WHERE id = $1`, id)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return ErrChargeInUse
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return db.ErrNotFound
	}
	return nil
}

func (r *chargeRepoPG) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Charge, int, error) {
	query := `SELECT ` + chargeColumns + ` FROM charges WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM charges WHERE 1=1`
	var args []interface{}
	idx := 1

	if category, ok := params["category"]; ok {
		clause := fmt.Sprintf(` AND category = $%d`, idx)
		query += clause
		countQuery += clause
		args = append(args, strings.ToLower(category))
		idx++
	}
	if active, ok := params["active"]; ok {
		clause := fmt.Sprintf(` AND active = $%d`, idx)
		query += clause
		countQuery += clause
		args = append(args, active == "true")
		idx++
	}
	if q, ok := params["q"]; ok {
		clause := fmt.Sprintf(` AND (code ILIKE $%d OR name ILIKE $%d)`, idx, idx)
		query += clause
		countQuery += clause
		args = append(args, "%"+q+"%")
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += fmt.Sprintf(` ORDER BY category, code LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var charges []*Charge
	for rows.Next() {
		c, err := scanCharge(rows)
		if err != nil {
			return nil, 0, err
		}
		charges = append(charges, c)
	}
	return charges, total, rows.Err()
}

func (r *chargeRepoPG) FirstActive(ctx context.Context, category string) (*Charge, error) {
	return scanCharge(r.conn(ctx).QueryRow(ctx,
		`SELECT `+chargeColumns+` FROM charges WHERE category = $1 AND active ORDER BY code LIMIT 1`, category))
}

func scanCharge(row pgx.Row) (*Charge, error) {
	var c Charge
	err := row.Scan(&c.ID, &c.Code, &c.Name, &c.Category, &c.Amount, &c.Active, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, db.NotFound(err)
	}
	return &c, nil
}

// -- Bill Repository --

type billRepoPG struct {
	pool *pgxpool.Pool
}

func NewBillRepo(pool *pgxpool.Pool) BillRepository {
	return &billRepoPG{pool: pool}
}

func (r *billRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const billColumns = `b.id, b.bill_number, b.bill_date, b.daily_seq, b.bill_type, b.patient_id,
	b.op_registration_id, b.subtotal, b.discount, b.total, b.payment_method, b.status,
	b.cancelled_reason, b.created_by, b.created_at, b.updated_at,
	p.patient_id, p.name, COALESCE(o.op_number, '')`

const billFrom = ` FROM bills b
	JOIN patients p ON p.id = b.patient_id
	LEFT JOIN op_registrations o ON o.id = b.op_registration_id`

func (r *billRepoPG) LockDay(ctx context.Context, day time.Time) error {
	return db.LockKey(ctx, r.conn(ctx), "bill:"+day.Format("2006-01-02"))
}

func (r *billRepoPG) NextSequence(ctx context.Context, day time.Time) (int, error) {
	var seq int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COALESCE(MAX(daily_seq), 0) + 1 FROM bills WHERE bill_date = $1`, day).Scan(&seq)
	return seq, err
}

func (r *billRepoPG) Create(ctx context.Context, b *Bill) error {
	b.ID = uuid.New()
	q := r.conn(ctx)
	err := q.QueryRow(ctx, `
		INSERT INTO bills (
			id, bill_number, bill_date, daily_seq, bill_type, patient_id, op_registration_id,
			subtotal, discount, total, payment_method, status, created_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at, updated_at`,
		b.ID, b.BillNumber, b.BillDate, b.DailySeq, b.BillType, b.PatientID, b.OPRegistrationID,
		b.Subtotal, b.Discount, b.Total, b.PaymentMethod, b.Status, b.CreatedBy,
	).Scan(&b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return err
	}

	for _, it := range b.Items {
		it.ID = uuid.New()
		it.BillID = b.ID
		if _, err := q.Exec(ctx, `
			INSERT INTO bill_items (id, bill_id, line_no, description, charge_id, medicine_id, quantity, unit_price, amount)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			it.ID, it.BillID, it.LineNo, it.Description, it.ChargeID, it.MedicineID, it.Quantity, it.UnitPrice, it.Amount,
		); err != nil {
			return fmt.Errorf("insert bill item %d: %w", it.LineNo, err)
		}
	}
	return nil
}

func (r *billRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Bill, error) {
	b, err := scanBill(r.conn(ctx).QueryRow(ctx, `SELECT `+billColumns+billFrom+` WHERE b.id = $1`, id))
	if err != nil {
		return nil, err
	}
	return b, r.loadItems(ctx, b)
}

func (r *billRepoPG) GetByNumber(ctx context.Context, number string) (*Bill, error) {
	b, err := scanBill(r.conn(ctx).QueryRow(ctx, `SELECT `+billColumns+billFrom+` WHERE b.bill_number = $1`, number))
	if err != nil {
		return nil, err
	}
	return b, r.loadItems(ctx, b)
}

func (r *billRepoPG) loadItems(ctx context.Context, b *Bill) error {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, bill_id, line_no, description, charge_id, medicine_id, quantity, unit_price, amount
		FROM bill_items WHERE bill_id = $1 ORDER BY line_no`, b.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	b.Items = []*BillItem{}
	for rows.Next() {
		var it BillItem
		if err := rows.Scan(&it.ID, &it.BillID, &it.LineNo, &it.Description, &it.ChargeID,
			&it.MedicineID, &it.Quantity, &it.UnitPrice, &it.Amount); err != nil {
			return err
		}
		b.Items = append(b.Items, &it)
	}
	return rows.Err()
}

func (r *billRepoPG) Cancel(ctx context.Context, b *Bill) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE bills SET status = 'cancelled', cancelled_reason = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'paid'
		RETURNING updated_at`, b.ID, b.CancelledReason,
	).Scan(&b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrBillCancelled
	}
	return err
}

func (r *billRepoPG) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Bill, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1

	filters := []struct {
		param  string
		clause string
	}{
		{"date", `b.bill_date = $%d::date`},
		{"from", `b.bill_date >= $%d::date`},
		{"to", `b.bill_date <= $%d::date`},
		{"patient_id", `b.patient_id::text = $%d`},
		{"op_registration_id", `b.op_registration_id::text = $%d`},
		{"bill_type", `b.bill_type = $%d`},
		{"status", `b.status = $%d`},
		{"payment_method", `b.payment_method = $%d`},
		{"bill_number", `b.bill_number = $%d`},
	}
	for _, f := range filters {
		v, ok := params[f.param]
		if !ok {
			continue
		}
		where += ` AND ` + fmt.Sprintf(f.clause, idx)
		args = append(args, v)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*)`+billFrom+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + billColumns + billFrom + where +
		fmt.Sprintf(` ORDER BY b.bill_date DESC, b.daily_seq DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var bills []*Bill
	for rows.Next() {
		b, err := scanBill(rows)
		if err != nil {
			return nil, 0, err
		}
		bills = append(bills, b)
	}
	return bills, total, rows.Err()
}

func (r *billRepoPG) Visit(ctx context.Context, ref string) (*Visit, error) {
	var v Visit
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT id, op_number, patient_id, status, consultation_fee, consultation_bill_id
		FROM op_registrations WHERE id::text = $1 OR op_number = upper($1)`, ref,
	).Scan(&v.ID, &v.OPNumber, &v.PatientID, &v.Status, &v.ConsultationFee, &v.ConsultationBillID)
	if err != nil {
		return nil, db.NotFound(err)
	}
	return &v, nil
}

func (r *billRepoPG) UnbilledMedicines(ctx context.Context, opID uuid.UUID) ([]*Billable, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT mp.id, CASE WHEN m.strength = '' THEN m.name ELSE m.name || ' ' || m.strength END,
			m.id, mp.quantity, m.unit_price
		FROM medicine_prescriptions mp
		JOIN medicines m ON m.id = mp.medicine_id
		WHERE mp.op_registration_id = $1 AND mp.status = 'served' AND mp.bill_id IS NULL
		ORDER BY mp.served_at, mp.id`, opID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Billable
	for rows.Next() {
		b := &Billable{Source: SourceMedicine}
		var medID uuid.UUID
		if err := rows.Scan(&b.SourceID, &b.Description, &medID, &b.Quantity, &b.UnitPrice); err != nil {
			return nil, err
		}
		b.MedicineID = &medID
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *billRepoPG) UnbilledTreatments(ctx context.Context, opID uuid.UUID) ([]*Billable, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT tp.id, tp.treatment_name, tp.treatment_charge_id,
			CASE WHEN tp.sessions_completed > 0 THEN tp.sessions_completed ELSE tp.sessions END,
			COALESCE(c.amount, 0)
		FROM physical_treatment_prescriptions tp
		LEFT JOIN charges c ON c.id = tp.treatment_charge_id
		WHERE tp.op_registration_id = $1 AND tp.status = 'served' AND tp.bill_id IS NULL
		ORDER BY tp.served_at, tp.id`, opID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Billable
	for rows.Next() {
		b := &Billable{Source: SourceTreatment}
		if err := rows.Scan(&b.SourceID, &b.Description, &b.ChargeID, &b.Quantity, &b.UnitPrice); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *billRepoPG) MarkBilled(ctx context.Context, billID uuid.UUID, sources []*Billable) error {
	q := r.conn(ctx)
	for _, src := range sources {
		var stmt string
		switch src.Source {
		case SourceConsultation:
			stmt = `UPDATE op_registrations SET consultation_bill_id = $1, updated_at = NOW() WHERE id = $2 AND consultation_bill_id IS NULL`
		case SourceMedicine:
			stmt = `UPDATE medicine_prescriptions SET bill_id = $1, updated_at = NOW() WHERE id = $2 AND bill_id IS NULL`
		case SourceTreatment:
			stmt = `UPDATE physical_treatment_prescriptions SET bill_id = $1, updated_at = NOW() WHERE id = $2 AND bill_id IS NULL`
		default:
			return fmt.Errorf("unknown billable source %q", src.Source)
		}
		tag, err := q.Exec(ctx, stmt, billID, src.SourceID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrAlreadyBilled
		}
	}
	return nil
}

func (r *billRepoPG) Release(ctx context.Context, billID uuid.UUID) error {
	q := r.conn(ctx)
	for _, stmt := range []string{
		`UPDATE op_registrations SET consultation_bill_id = NULL, updated_at = NOW() WHERE consultation_bill_id = $1`,
		`UPDATE medicine_prescriptions SET bill_id = NULL, updated_at = NOW() WHERE bill_id = $1`,
		`UPDATE physical_treatment_prescriptions SET bill_id = NULL, updated_at = NOW() WHERE bill_id = $1`,
	} {
		if _, err := q.Exec(ctx, stmt, billID); err != nil {
			return err
		}
	}
	return nil
}

func scanBill(row pgx.Row) (*Bill, error) {
	var b Bill
	err := row.Scan(&b.ID, &b.BillNumber, &b.BillDate, &b.DailySeq, &b.BillType, &b.PatientID,
		&b.OPRegistrationID, &b.Subtotal, &b.Discount, &b.Total, &b.PaymentMethod, &b.Status,
		&b.CancelledReason, &b.CreatedBy, &b.CreatedAt, &b.UpdatedAt,
		&b.PatientCode, &b.PatientName, &b.OPNumber)
	if err != nil {
		return nil, db.NotFound(err)
	}
	return &b, nil
}
