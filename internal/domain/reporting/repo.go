package reporting

import "context"

// Repository runs the aggregate queries behind each report. Every range
// is inclusive of both days.
type Repository interface {
	OPSummary(ctx context.Context, r Range) (*OPSummary, error)
	Revenue(ctx context.Context, r Range) (*RevenueSummary, error)
	Dispensing(ctx context.Context, r Range) ([]DispensingRow, error)
	Treatments(ctx context.Context, r Range) ([]TreatmentRow, error)
	Stock(ctx context.Context, lowOnly bool) ([]StockRow, error)
}
