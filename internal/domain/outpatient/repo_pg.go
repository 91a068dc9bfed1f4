package outpatient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carepoint/opd/internal/platform/db"
)

type registrationRepoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &registrationRepoPG{pool: pool}
}

func (r *registrationRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const registrationColumns = `r.id, r.op_number, r.visit_date, r.daily_seq, r.token_number, r.patient_id,
	r.doctor_id, r.department, r.complaint, r.weight_kg, r.blood_pressure, r.temperature_c, r.pulse,
	r.consultation_fee, r.status, r.diagnosis, r.notes, r.served_by, r.served_at, r.cancelled_reason,
	r.consultation_bill_id, r.created_by, r.created_at, r.updated_at,
	p.patient_id, p.name, u.full_name`

const registrationFrom = ` FROM op_registrations r
	JOIN patients p ON p.id = r.patient_id
	JOIN users u ON u.id = r.doctor_id`

func (r *registrationRepoPG) LockDay(ctx context.Context, day time.Time) error {
	return db.LockKey(ctx, r.conn(ctx), "op:"+day.Format("2006-01-02"))
}

func (r *registrationRepoPG) NextNumbers(ctx context.Context, day time.Time, doctorID uuid.UUID) (int, int, error) {
	var seq, token int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT
			COALESCE(MAX(daily_seq), 0) + 1,
			COALESCE(MAX(token_number) FILTER (WHERE doctor_id = $2), 0) + 1
		FROM op_registrations WHERE visit_date = $1`, day, doctorID,
	).Scan(&seq, &token)
	return seq, token, err
}

func (r *registrationRepoPG) Create(ctx context.Context, reg *Registration) error {
	reg.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO op_registrations (
			id, op_number, visit_date, daily_seq, token_number, patient_id, doctor_id,
			department, complaint, weight_kg, blood_pressure, temperature_c, pulse,
			consultation_fee, status, created_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING created_at, updated_at`,
		reg.ID, reg.OPNumber, reg.VisitDate, reg.DailySeq, reg.TokenNumber, reg.PatientID, reg.DoctorID,
		reg.Department, reg.Complaint, reg.Vitals.WeightKg, reg.Vitals.BloodPressure,
		reg.Vitals.TemperatureC, reg.Vitals.Pulse, reg.ConsultationFee, reg.Status, reg.CreatedBy,
	).Scan(&reg.CreatedAt, &reg.UpdatedAt)
}

func (r *registrationRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Registration, error) {
	return scanRegistration(r.conn(ctx).QueryRow(ctx,
		`SELECT `+registrationColumns+registrationFrom+` WHERE r.id = $1`, id))
}

func (r *registrationRepoPG) GetByNumber(ctx context.Context, opNumber string) (*Registration, error) {
	return scanRegistration(r.conn(ctx).QueryRow(ctx,
		`SELECT `+registrationColumns+registrationFrom+` WHERE r.op_number = $1`, opNumber))
}

func (r *registrationRepoPG) UpdateConsultation(ctx context.Context, reg *Registration) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE op_registrations SET
			diagnosis = $2, notes = $3, weight_kg = $4, blood_pressure = $5,
			temperature_c = $6, pulse = $7, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		reg.ID, reg.Diagnosis, reg.Notes, reg.Vitals.WeightKg, reg.Vitals.BloodPressure,
		reg.Vitals.TemperatureC, reg.Vitals.Pulse,
	).Scan(&reg.UpdatedAt)
	return db.NotFound(err)
}

func (r *registrationRepoPG) UpdateStatus(ctx context.Context, reg *Registration) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE op_registrations SET
			status = $2, served_by = $3, served_at = $4, cancelled_reason = $5, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
		RETURNING updated_at`,
		reg.ID, reg.Status, reg.ServedBy, reg.ServedAt, reg.CancelledReason,
	).Scan(&reg.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotPending
	}
	return err
}

func (r *registrationRepoPG) Queue(ctx context.Context, doctorID uuid.UUID, day time.Time) ([]*Registration, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+registrationColumns+registrationFrom+`
		WHERE r.doctor_id = $1 AND r.visit_date = $2 AND r.status = 'pending'
		ORDER BY r.token_number`, doctorID, day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var regs []*Registration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, err
		}
		regs = append(regs, reg)
	}
	return regs, rows.Err()
}

func (r *registrationRepoPG) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Registration, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1

	filters := []struct {
		param  string
		clause string
	}{
		{"patient_id", `r.patient_id::text = $%d`},
		{"doctor_id", `r.doctor_id::text = $%d`},
		{"status", `r.status = $%d`},
		{"date", `r.visit_date = $%d::date`},
		{"from", `r.visit_date >= $%d::date`},
		{"to", `r.visit_date <= $%d::date`},
		{"department", `r.department ILIKE $%d`},
		{"op_number", `r.op_number = $%d`},
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
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*)`+registrationFrom+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + registrationColumns + registrationFrom + where +
		fmt.Sprintf(` ORDER BY r.visit_date DESC, r.daily_seq DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var regs []*Registration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, 0, err
		}
		regs = append(regs, reg)
	}
	return regs, total, rows.Err()
}

func (r *registrationRepoPG) CancelPendingBefore(ctx context.Context, day time.Time, reason string) (int64, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE op_registrations SET status = 'cancelled', cancelled_reason = $2, updated_at = NOW()
		WHERE status = 'pending' AND visit_date < $1`, day, reason)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanRegistration(row pgx.Row) (*Registration, error) {
	var reg Registration
	err := row.Scan(&reg.ID, &reg.OPNumber, &reg.VisitDate, &reg.DailySeq, &reg.TokenNumber, &reg.PatientID,
		&reg.DoctorID, &reg.Department, &reg.Complaint, &reg.Vitals.WeightKg, &reg.Vitals.BloodPressure,
		&reg.Vitals.TemperatureC, &reg.Vitals.Pulse, &reg.ConsultationFee, &reg.Status, &reg.Diagnosis,
		&reg.Notes, &reg.ServedBy, &reg.ServedAt, &reg.CancelledReason, &reg.ConsultationBillID,
		&reg.CreatedBy, &reg.CreatedAt, &reg.UpdatedAt,
		&reg.PatientCode, &reg.PatientName, &reg.DoctorName)
	if err != nil {
		return nil, db.NotFound(err)
	}
	return &reg, nil
}
