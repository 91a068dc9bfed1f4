package reporting

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carepoint/opd/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

func (r *repoPG) OPSummary(ctx context.Context, rg Range) (*OPSummary, error) {
	q := r.conn(ctx)
	out := &OPSummary{Range: rg, ByStatus: []Count{}, ByDoctor: []DoctorCount{}, ByDepartment: []Count{}, Daily: []DailyCount{}}

	rows, err := q.Query(ctx, `
		SELECT status, COUNT(*) FROM op_registrations
		WHERE visit_date BETWEEN $1 AND $2
		GROUP BY status ORDER BY status`, rg.From, rg.To)
	if err != nil {
		return nil, fmt.Errorf("op by status: %w", err)
	}
	for rows.Next() {
		var c Count
		if err := rows.Scan(&c.Key, &c.Total); err != nil {
			rows.Close()
			return nil, err
		}
		out.Total += c.Total
		out.ByStatus = append(out.ByStatus, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = q.Query(ctx, `
		SELECT o.doctor_id, u.full_name, COUNT(*),
			COUNT(*) FILTER (WHERE o.status = 'served'),
			COUNT(*) FILTER (WHERE o.status = 'pending'),
			COUNT(*) FILTER (WHERE o.status = 'cancelled')
		FROM op_registrations o JOIN users u ON u.id = o.doctor_id
		WHERE o.visit_date BETWEEN $1 AND $2
		GROUP BY o.doctor_id, u.full_name
		ORDER BY COUNT(*) DESC, u.full_name`, rg.From, rg.To)
	if err != nil {
		return nil, fmt.Errorf("op by doctor: %w", err)
	}
	for rows.Next() {
		var d DoctorCount
		if err := rows.Scan(&d.DoctorID, &d.DoctorName, &d.Total, &d.Served, &d.Pending, &d.Cancelled); err != nil {
			rows.Close()
			return nil, err
		}
		out.ByDoctor = append(out.ByDoctor, d)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = q.Query(ctx, `
		SELECT COALESCE(NULLIF(department, ''), 'Unassigned') AS dept, COUNT(*)
		FROM op_registrations
		WHERE visit_date BETWEEN $1 AND $2
		GROUP BY dept ORDER BY COUNT(*) DESC, dept`, rg.From, rg.To)
	if err != nil {
		return nil, fmt.Errorf("op by department: %w", err)
	}
	for rows.Next() {
		var c Count
		if err := rows.Scan(&c.Key, &c.Total); err != nil {
			rows.Close()
			return nil, err
		}
		out.ByDepartment = append(out.ByDepartment, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = q.Query(ctx, `
		SELECT visit_date, COUNT(*),
			COUNT(*) FILTER (WHERE status = 'served'),
			COUNT(*) FILTER (WHERE status = 'cancelled')
		FROM op_registrations
		WHERE visit_date BETWEEN $1 AND $2
		GROUP BY visit_date ORDER BY visit_date`, rg.From, rg.To)
	if err != nil {
		return nil, fmt.Errorf("op daily: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var d DailyCount
		if err := rows.Scan(&d.Date, &d.Total, &d.Served, &d.Cancelled); err != nil {
			return nil, err
		}
		out.Daily = append(out.Daily, d)
	}
	return out, rows.Err()
}

func (r *repoPG) Revenue(ctx context.Context, rg Range) (*RevenueSummary, error) {
	q := r.conn(ctx)
	out := &RevenueSummary{Range: rg, ByType: []Amount{}, ByPayment: []Amount{}, Daily: []DailyRevenue{}}

	err := q.QueryRow(ctx, `
		SELECT COUNT(*) FILTER (WHERE status = 'paid'),
			COALESCE(SUM(subtotal) FILTER (WHERE status = 'paid'), 0),
			COALESCE(SUM(discount) FILTER (WHERE status = 'paid'), 0),
			COALESCE(SUM(total) FILTER (WHERE status = 'paid'), 0),
			COUNT(*) FILTER (WHERE status = 'cancelled')
		FROM bills WHERE bill_date BETWEEN $1 AND $2`, rg.From, rg.To).
		Scan(&out.Bills, &out.Subtotal, &out.Discount, &out.Total, &out.CancelledBills)
	if err != nil {
		return nil, fmt.Errorf("revenue totals: %w", err)
	}

	for _, grp := range []struct {
		column string
		dest   *[]Amount
	}{
		{"bill_type", &out.ByType},
		{"payment_method", &out.ByPayment},
	} {
		rows, err := q.Query(ctx, fmt.Sprintf(`
			SELECT %[1]s, COUNT(*), SUM(total) FROM bills
			WHERE status = 'paid' AND bill_date BETWEEN $1 AND $2
			GROUP BY %[1]s ORDER BY SUM(total) DESC`, grp.column), rg.From, rg.To)
		if err != nil {
			return nil, fmt.Errorf("revenue by %s: %w", grp.column, err)
		}
		for rows.Next() {
			var a Amount
			if err := rows.Scan(&a.Key, &a.Bills, &a.Total); err != nil {
				rows.Close()
				return nil, err
			}
			*grp.dest = append(*grp.dest, a)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}

	rows, err := q.Query(ctx, `
		SELECT bill_date,
			COALESCE(SUM(total) FILTER (WHERE bill_type = 'pharmacy'), 0),
			COALESCE(SUM(total) FILTER (WHERE bill_type = 'service'), 0),
			SUM(total)
		FROM bills
		WHERE status = 'paid' AND bill_date BETWEEN $1 AND $2
		GROUP BY bill_date ORDER BY bill_date`, rg.From, rg.To)
	if err != nil {
		return nil, fmt.Errorf("revenue daily: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var d DailyRevenue
		if err := rows.Scan(&d.Date, &d.Pharmacy, &d.Service, &d.Total); err != nil {
			return nil, err
		}
		out.Daily = append(out.Daily, d)
	}
	return out, rows.Err()
}

// Dispensing counts prescriptions by the day they were served. Value is
// priced at the medicine's current unit price.
func (r *repoPG) Dispensing(ctx context.Context, rg Range) ([]DispensingRow, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT m.id, CASE WHEN m.strength = '' THEN m.name ELSE m.name || ' ' || m.strength END,
			COUNT(*), SUM(mp.quantity), SUM(mp.quantity * m.unit_price)
		FROM medicine_prescriptions mp JOIN medicines m ON m.id = mp.medicine_id
		WHERE mp.status = 'served' AND mp.served_at::date BETWEEN $1 AND $2
		GROUP BY m.id, m.name, m.strength
		ORDER BY SUM(mp.quantity) DESC, m.name`, rg.From, rg.To)
	if err != nil {
		return nil, fmt.Errorf("dispensing: %w", err)
	}
	defer rows.Close()
	out := []DispensingRow{}
	for rows.Next() {
		var d DispensingRow
		if err := rows.Scan(&d.MedicineID, &d.MedicineName, &d.Prescriptions, &d.Quantity, &d.Value); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Treatments groups prescriptions written in the range by treatment name.
func (r *repoPG) Treatments(ctx context.Context, rg Range) ([]TreatmentRow, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT treatment_name, COUNT(*),
			COUNT(*) FILTER (WHERE status = 'served'),
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'cancelled'),
			SUM(sessions), SUM(sessions_completed)
		FROM physical_treatment_prescriptions
		WHERE created_at::date BETWEEN $1 AND $2
		GROUP BY treatment_name
		ORDER BY COUNT(*) DESC, treatment_name`, rg.From, rg.To)
	if err != nil {
		return nil, fmt.Errorf("treatments: %w", err)
	}
	defer rows.Close()
	out := []TreatmentRow{}
	for rows.Next() {
		var t TreatmentRow
		if err := rows.Scan(&t.TreatmentName, &t.Prescriptions, &t.Served, &t.Pending, &t.Cancelled, &t.Sessions, &t.SessionsCompleted); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *repoPG) Stock(ctx context.Context, lowOnly bool) ([]StockRow, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, name, category, unit, quantity, reorder_level, unit_cost,
			quantity <= reorder_level AS low
		FROM stock_items
		WHERE NOT $1 OR quantity <= reorder_level
		ORDER BY (quantity <= reorder_level) DESC, category, name`, lowOnly)
	if err != nil {
		return nil, fmt.Errorf("stock status: %w", err)
	}
	defer rows.Close()
	out := []StockRow{}
	for rows.Next() {
		var s StockRow
		if err := rows.Scan(&s.StockItemID, &s.Name, &s.Category, &s.Unit, &s.Quantity, &s.ReorderLevel, &s.UnitCost, &s.Low); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
