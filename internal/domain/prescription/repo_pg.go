package prescription

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carepoint/opd/internal/platform/db"
)

type searchFilter struct {
	param  string
	clause string
}

// buildWhere appends one clause per present filter and returns the next
// placeholder index.
func buildWhere(params map[string]string, filters []searchFilter) (string, []interface{}, int) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1
	for _, f := range filters {
		v, ok := params[f.param]
		if !ok {
			continue
		}
		where += ` AND ` + fmt.Sprintf(f.clause, idx)
		args = append(args, v)
		idx++
	}
	return where, args, idx
}

// -- Medicine Prescription Repository --

type medicineRxRepoPG struct {
	pool *pgxpool.Pool
}

func NewMedicineRepo(pool *pgxpool.Pool) MedicineRepository {
	return &medicineRxRepoPG{pool: pool}
}

func (r *medicineRxRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const medicineRxColumns = `mp.id, mp.op_registration_id, mp.patient_id, mp.medicine_id, mp.dosage, mp.frequency,
	mp.duration_days, mp.quantity, mp.instructions, mp.status, mp.prescribed_by, mp.served_by, mp.served_at,
	mp.cancelled_reason, mp.bill_id, mp.created_at, mp.updated_at,
	CASE WHEN m.strength = '' THEN m.name ELSE m.name || ' ' || m.strength END,
	o.op_number, p.patient_id, p.name`

const medicineRxFrom = ` FROM medicine_prescriptions mp
	JOIN medicines m ON m.id = mp.medicine_id
	JOIN op_registrations o ON o.id = mp.op_registration_id
	JOIN patients p ON p.id = mp.patient_id`

var medicineRxFilters = []searchFilter{
	{"status", `mp.status = $%d`},
	{"patient_id", `mp.patient_id::text = $%d`},
	{"op_registration_id", `mp.op_registration_id::text = $%d`},
	{"medicine_id", `mp.medicine_id::text = $%d`},
	{"from", `mp.created_at >= $%d::date`},
	{"to", `mp.created_at < $%d::date + 1`},
}

func (r *medicineRxRepoPG) Create(ctx context.Context, rx *MedicinePrescription) error {
	rx.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO medicine_prescriptions (
			id, op_registration_id, patient_id, medicine_id, dosage, frequency,
			duration_days, quantity, instructions, status, prescribed_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at`,
		rx.ID, rx.OPRegistrationID, rx.PatientID, rx.MedicineID, rx.Dosage, rx.Frequency,
		rx.DurationDays, rx.Quantity, rx.Instructions, rx.Status, rx.PrescribedBy,
	).Scan(&rx.CreatedAt, &rx.UpdatedAt)
}

func (r *medicineRxRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*MedicinePrescription, error) {
	return scanMedicineRx(r.conn(ctx).QueryRow(ctx,
		`SELECT `+medicineRxColumns+medicineRxFrom+` WHERE mp.id = $1`, id))
}

func (r *medicineRxRepoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*MedicinePrescription, error) {
	return scanMedicineRx(r.conn(ctx).QueryRow(ctx,
		`SELECT `+medicineRxColumns+medicineRxFrom+` WHERE mp.id = $1 FOR UPDATE OF mp`, id))
}

func (r *medicineRxRepoPG) UpdateStatus(ctx context.Context, rx *MedicinePrescription) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE medicine_prescriptions SET
			status = $2, served_by = $3, served_at = $4, cancelled_reason = $5, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
		RETURNING updated_at`,
		rx.ID, rx.Status, rx.ServedBy, rx.ServedAt, rx.CancelledReason,
	).Scan(&rx.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotPending
	}
	return err
}

func (r *medicineRxRepoPG) ListByVisit(ctx context.Context, opID uuid.UUID) ([]*MedicinePrescription, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+medicineRxColumns+medicineRxFrom+` WHERE mp.op_registration_id = $1 ORDER BY mp.created_at, mp.id`, opID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*MedicinePrescription
	for rows.Next() {
		rx, err := scanMedicineRx(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rx)
	}
	return out, rows.Err()
}

func (r *medicineRxRepoPG) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*MedicinePrescription, int, error) {
	where, args, idx := buildWhere(params, medicineRxFilters)

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*)`+medicineRxFrom+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + medicineRxColumns + medicineRxFrom + where +
		fmt.Sprintf(` ORDER BY mp.created_at LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*MedicinePrescription
	for rows.Next() {
		rx, err := scanMedicineRx(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, rx)
	}
	return out, total, rows.Err()
}

func scanMedicineRx(row pgx.Row) (*MedicinePrescription, error) {
	var rx MedicinePrescription
	err := row.Scan(&rx.ID, &rx.OPRegistrationID, &rx.PatientID, &rx.MedicineID, &rx.Dosage, &rx.Frequency,
		&rx.DurationDays, &rx.Quantity, &rx.Instructions, &rx.Status, &rx.PrescribedBy, &rx.ServedBy, &rx.ServedAt,
		&rx.CancelledReason, &rx.BillID, &rx.CreatedAt, &rx.UpdatedAt,
		&rx.MedicineName, &rx.OPNumber, &rx.PatientCode, &rx.PatientName)
	if err != nil {
		return nil, db.NotFound(err)
	}
	return &rx, nil
}

// -- Treatment Prescription Repository --

type treatmentRxRepoPG struct {
	pool *pgxpool.Pool
}

func NewTreatmentRepo(pool *pgxpool.Pool) TreatmentRepository {
	return &treatmentRxRepoPG{pool: pool}
}

func (r *treatmentRxRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const treatmentRxColumns = `tp.id, tp.op_registration_id, tp.patient_id, tp.treatment_charge_id, tp.treatment_name,
	tp.sessions, tp.sessions_completed, tp.notes, tp.status, tp.prescribed_by, tp.served_by, tp.served_at,
	tp.cancelled_reason, tp.bill_id, tp.created_at, tp.updated_at,
	o.op_number, p.patient_id, p.name`

const treatmentRxFrom = ` FROM physical_treatment_prescriptions tp
	JOIN op_registrations o ON o.id = tp.op_registration_id
	JOIN patients p ON p.id = tp.patient_id`

var treatmentRxFilters = []searchFilter{
	{"status", `tp.status = $%d`},
	{"patient_id", `tp.patient_id::text = $%d`},
	{"op_registration_id", `tp.op_registration_id::text = $%d`},
	{"from", `tp.created_at >= $%d::date`},
	{"to", `tp.created_at < $%d::date + 1`},
}

func (r *treatmentRxRepoPG) Create(ctx context.Context, rx *TreatmentPrescription) error {
	rx.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO physical_treatment_prescriptions (
			id, op_registration_id, patient_id, treatment_charge_id, treatment_name,
			sessions, sessions_completed, notes, status, prescribed_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`,
		rx.ID, rx.OPRegistrationID, rx.PatientID, rx.TreatmentChargeID, rx.TreatmentName,
		rx.Sessions, rx.SessionsCompleted, rx.Notes, rx.Status, rx.PrescribedBy,
	).Scan(&rx.CreatedAt, &rx.UpdatedAt)
}

func (r *treatmentRxRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*TreatmentPrescription, error) {
	return scanTreatmentRx(r.conn(ctx).QueryRow(ctx,
		`SELECT `+treatmentRxColumns+treatmentRxFrom+` WHERE tp.id = $1`, id))
}

func (r *treatmentRxRepoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*TreatmentPrescription, error) {
	return scanTreatmentRx(r.conn(ctx).QueryRow(ctx,
		`SELECT `+treatmentRxColumns+treatmentRxFrom+` WHERE tp.id = $1 FOR UPDATE OF tp`, id))
}

func (r *treatmentRxRepoPG) UpdateProgress(ctx context.Context, rx *TreatmentPrescription) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE physical_treatment_prescriptions SET
			sessions_completed = $2, status = $3, served_by = $4, served_at = $5,
			cancelled_reason = $6, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
		RETURNING updated_at`,
		rx.ID, rx.SessionsCompleted, rx.Status, rx.ServedBy, rx.ServedAt, rx.CancelledReason,
	).Scan(&rx.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotPending
	}
	return err
}

func (r *treatmentRxRepoPG) ListByVisit(ctx context.Context, opID uuid.UUID) ([]*TreatmentPrescription, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+treatmentRxColumns+treatmentRxFrom+` WHERE tp.op_registration_id = $1 ORDER BY tp.created_at, tp.id`, opID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*TreatmentPrescription
	for rows.Next() {
		rx, err := scanTreatmentRx(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rx)
	}
	return out, rows.Err()
}

func (r *treatmentRxRepoPG) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*TreatmentPrescription, int, error) {
	where, args, idx := buildWhere(params, treatmentRxFilters)

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*)`+treatmentRxFrom+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + treatmentRxColumns + treatmentRxFrom + where +
		fmt.Sprintf(` ORDER BY tp.created_at LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*TreatmentPrescription
	for rows.Next() {
		rx, err := scanTreatmentRx(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, rx)
	}
	return out, total, rows.Err()
}

func scanTreatmentRx(row pgx.Row) (*TreatmentPrescription, error) {
	var rx TreatmentPrescription
	err := row.Scan(&rx.ID, &rx.OPRegistrationID, &rx.PatientID, &rx.TreatmentChargeID, &rx.TreatmentName,
		&rx.Sessions, &rx.SessionsCompleted, &rx.Notes, &rx.Status, &rx.PrescribedBy, &rx.ServedBy, &rx.ServedAt,
		&rx.CancelledReason, &rx.BillID, &rx.CreatedAt, &rx.UpdatedAt,
		&rx.OPNumber, &rx.PatientCode, &rx.PatientName)
	if err != nil {
		return nil, db.NotFound(err)
	}
	return &rx, nil
}
