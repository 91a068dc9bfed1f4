package patient

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carepoint/opd/internal/platform/db"
)

type patientRepoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &patientRepoPG{pool: pool}
}

func (r *patientRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const patientColumns = `id, patient_id, name, gender, date_of_birth, age, phone, address,
	guardian_name, blood_group, created_by, created_at, updated_at`

func (r *patientRepoPG) NextSequence(ctx context.Context) (int64, error) {
	var n int64
	err := r.conn(ctx).QueryRow(ctx, `SELECT nextval('patient_code_seq')`).Scan(&n)
	return n, err
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patients (
			id, patient_id, name, gender, date_of_birth, age, phone, address,
			guardian_name, blood_group, created_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at`,
		p.ID, p.PatientID, p.Name, p.Gender, p.DateOfBirth, p.Age, p.Phone, p.Address,
		p.GuardianName, p.BloodGroup, p.CreatedBy,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return r.scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientColumns+` FROM patients WHERE id = $1`, id))
}

func (r *patientRepoPG) GetByCode(ctx context.Context, code string) (*Patient, error) {
	return r.scanPatient(r.conn(ctx).QueryRow(ctx,
		`SELECT `+patientColumns+` FROM patients WHERE patient_id = $1`, strings.ToUpper(code)))
}

func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE patients SET
			name = $2, gender = $3, date_of_birth = $4, age = $5, phone = $6,
			address = $7, guardian_name = $8, blood_group = $9, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		p.ID, p.Name, p.Gender, p.DateOfBirth, p.Age, p.Phone,
		p.Address, p.GuardianName, p.BloodGroup,
	).Scan(&p.UpdatedAt)
	return db.NotFound(err)
}

func (r *patientRepoPG) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Patient, int, error) {
	query := `SELECT ` + patientColumns + ` FROM patients WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM patients WHERE 1=1`
	var args []interface{}
	idx := 1

	if name, ok := params["name"]; ok {
		clause := fmt.Sprintf(` AND lower(name) LIKE $%d`, idx)
		query += clause
		countQuery += clause
		args = append(args, strings.ToLower(name)+"%")
		idx++
	}
	if phone, ok := params["phone"]; ok {
		clause := fmt.Sprintf(` AND phone LIKE $%d`, idx)
		query += clause
		countQuery += clause
		args = append(args, "%"+phone+"%")
		idx++
	}
	if code, ok := params["patient_id"]; ok {
		clause := fmt.Sprintf(` AND patient_id = $%d`, idx)
		query += clause
		countQuery += clause
		args = append(args, strings.ToUpper(code))
		idx++
	}
	if q, ok := params["q"]; ok {
		clause := fmt.Sprintf(` AND (lower(name) LIKE $%d OR phone LIKE $%d OR patient_id = upper($%d))`, idx, idx+1, idx+2)
		query += clause
		countQuery += clause
		args = append(args, "%"+strings.ToLower(q)+"%", "%"+q+"%", q)
		idx += 3
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var patients []*Patient
	for rows.Next() {
		p, err := r.scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		patients = append(patients, p)
	}
	return patients, total, rows.Err()
}

func (r *patientRepoPG) scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(
		&p.ID, &p.PatientID, &p.Name, &p.Gender, &p.DateOfBirth, &p.Age, &p.Phone, &p.Address,
		&p.GuardianName, &p.BloodGroup, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, db.NotFound(err)
	}
	return &p, nil
}
