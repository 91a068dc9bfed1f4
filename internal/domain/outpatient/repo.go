package outpatient

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	// LockDay serialises number allocation for one visit date. It must be
	// called inside a transaction.
	LockDay(ctx context.Context, day time.Time) error
	// NextNumbers returns the next daily sequence for day and the next
	// token for the doctor on that day.
	NextNumbers(ctx context.Context, day time.Time, doctorID uuid.UUID) (seq, token int, err error)
	Create(ctx context.Context, r *Registration) error
	GetByID(ctx context.Context, id uuid.UUID) (*Registration, error)
	GetByNumber(ctx context.Context, opNumber string) (*Registration, error)
	UpdateConsultation(ctx context.Context, r *Registration) error
	// UpdateStatus writes the status fields of a pending registration and
	// returns ErrNotPending when the row has already left pending.
	UpdateStatus(ctx context.Context, r *Registration) error
	Queue(ctx context.Context, doctorID uuid.UUID, day time.Time) ([]*Registration, error)
	Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Registration, int, error)
	CancelPendingBefore(ctx context.Context, day time.Time, reason string) (int64, error)
}
