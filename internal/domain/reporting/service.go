package reporting

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	report "github.com/carepoint/opd/internal/platform/reporting"
)

// MaxRangeDays bounds a single report request.
const MaxRangeDays = 366

var ErrInvalidRange = errors.New("invalid date range")

const dateLayout = "2006-01-02"

type Service struct {
	repo   Repository
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, logger: logger, now: time.Now}
}

func (s *Service) today() time.Time {
	y, m, d := s.now().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseRange reads YYYY-MM-DD bounds. A missing from defaults to to, and a
// missing to defaults to today.
func (s *Service) ParseRange(from, to string) (Range, error) {
	var r Range
	var err error
	if to == "" {
		r.To = s.today()
	} else if r.To, err = time.Parse(dateLayout, to); err != nil {
		return Range{}, fmt.Errorf("%w: to must be YYYY-MM-DD", ErrInvalidRange)
	}
	if from == "" {
		r.From = r.To
	} else if r.From, err = time.Parse(dateLayout, from); err != nil {
		return Range{}, fmt.Errorf("%w: from must be YYYY-MM-DD", ErrInvalidRange)
	}
	if r.From.After(r.To) {
		return Range{}, fmt.Errorf("%w: from is after to", ErrInvalidRange)
	}
	if days := int(r.To.Sub(r.From).Hours()/24) + 1; days > MaxRangeDays {
		return Range{}, fmt.Errorf("%w: at most %d days per report", ErrInvalidRange, MaxRangeDays)
	}
	return r, nil
}

func (s *Service) OPSummary(ctx context.Context, r Range) (*OPSummary, error) {
	return s.repo.OPSummary(ctx, r)
}

func (s *Service) Revenue(ctx context.Context, r Range) (*RevenueSummary, error) {
	out, err := s.repo.Revenue(ctx, r)
	if err != nil {
		return nil, err
	}
	out.Subtotal = round2(out.Subtotal)
	out.Discount = round2(out.Discount)
	out.Total = round2(out.Total)
	return out, nil
}

func (s *Service) Dispensing(ctx context.Context, r Range) (*DispensingSummary, error) {
	rows, err := s.repo.Dispensing(ctx, r)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i].Value = round2(rows[i].Value)
	}
	return &DispensingSummary{Range: r, Rows: rows}, nil
}

func (s *Service) Treatments(ctx context.Context, r Range) (*TreatmentSummary, error) {
	rows, err := s.repo.Treatments(ctx, r)
	if err != nil {
		return nil, err
	}
	return &TreatmentSummary{Range: r, Rows: rows}, nil
}

func (s *Service) Stock(ctx context.Context, lowOnly bool) (*StockStatus, error) {
	rows, err := s.repo.Stock(ctx, lowOnly)
	if err != nil {
		return nil, err
	}
	out := &StockStatus{GeneratedAt: s.now().UTC(), LowOnly: lowOnly, Rows: rows}
	for i := range out.Rows {
		row := &out.Rows[i]
		row.Value = round2(row.Quantity * row.UnitCost)
		out.TotalValue += row.Value
		if row.Low {
			out.LowCount++
		}
	}
	out.TotalValue = round2(out.TotalValue)
	return out, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// -- Spreadsheet layout --

func (o *OPSummary) Tables() []report.Table {
	byStatus := report.Table{Name: "By Status", Headers: []string{"Status", "Registrations"}}
	for _, c := range o.ByStatus {
		byStatus.Rows = append(byStatus.Rows, []interface{}{c.Key, c.Total})
	}
	byStatus.Rows = append(byStatus.Rows, []interface{}{"Total", o.Total})

	byDoctor := report.Table{Name: "By Doctor", Headers: []string{"Doctor", "Total", "Served", "Pending", "Cancelled"}}
	for _, d := range o.ByDoctor {
		byDoctor.Rows = append(byDoctor.Rows, []interface{}{d.DoctorName, d.Total, d.Served, d.Pending, d.Cancelled})
	}

	byDept := report.Table{Name: "By Department", Headers: []string{"Department", "Registrations"}}
	for _, c := range o.ByDepartment {
		byDept.Rows = append(byDept.Rows, []interface{}{c.Key, c.Total})
	}

	daily := report.Table{Name: "Daily", Headers: []string{"Date", "Total", "Served", "Cancelled"}}
	for _, d := range o.Daily {
		daily.Rows = append(daily.Rows, []interface{}{d.Date, d.Total, d.Served, d.Cancelled})
	}
	return []report.Table{byStatus, byDoctor, byDept, daily}
}

func (r *RevenueSummary) Tables() []report.Table {
	summary := report.Table{Name: "Summary", Headers: []string{"Measure", "Value"}, Rows: [][]interface{}{
		{"From", r.From},
		{"To", r.To},
		{"Paid bills", r.Bills},
		{"Subtotal", r.Subtotal},
		{"Discount", r.Discount},
		{"Total", r.Total},
		{"Cancelled bills", r.CancelledBills},
	}}
	byType := report.Table{Name: "By Bill Type", Headers: []string{"Bill type", "Bills", "Total"}}
	for _, a := range r.ByType {
		byType.Rows = append(byType.Rows, []interface{}{a.Key, a.Bills, a.Total})
	}
	byPayment := report.Table{Name: "By Payment", Headers: []string{"Payment method", "Bills", "Total"}}
	for _, a := range r.ByPayment {
		byPayment.Rows = append(byPayment.Rows, []interface{}{a.Key, a.Bills, a.Total})
	}
	daily := report.Table{Name: "Daily", Headers: []string{"Date", "Pharmacy", "Service", "Total"}}
	for _, d := range r.Daily {
		daily.Rows = append(daily.Rows, []interface{}{d.Date, d.Pharmacy, d.Service, d.Total})
	}
	return []report.Table{summary, byType, byPayment, daily}
}

func (d *DispensingSummary) Tables() []report.Table {
	t := report.Table{Name: "Dispensing", Headers: []string{"Medicine", "Prescriptions", "Quantity", "Value"}}
	for _, r := range d.Rows {
		t.Rows = append(t.Rows, []interface{}{r.MedicineName, r.Prescriptions, r.Quantity, r.Value})
	}
	return []report.Table{t}
}

func (ts *TreatmentSummary) Tables() []report.Table {
	t := report.Table{Name: "Treatments", Headers: []string{
		"Treatment", "Prescriptions", "Served", "Pending", "Cancelled", "Sessions", "Sessions done",
	}}
	for _, r := range ts.Rows {
		t.Rows = append(t.Rows, []interface{}{r.TreatmentName, r.Prescriptions, r.Served, r.Pending, r.Cancelled, r.Sessions, r.SessionsCompleted})
	}
	return []report.Table{t}
}

func (st *StockStatus) Tables() []report.Table {
	t := report.Table{Name: "Stock", Headers: []string{
		"Item", "Category", "Unit", "On hand", "Reorder level", "Unit cost", "Value", "Low",
	}}
	for _, r := range st.Rows {
		low := ""
		if r.Low {
			low = "LOW"
		}
		t.Rows = append(t.Rows, []interface{}{r.Name, r.Category, r.Unit, r.Quantity, r.ReorderLevel, r.UnitCost, r.Value, low})
	}
	return []report.Table{t}
}
