package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type ChargeRepository interface {
	Create(ctx context.Context, c *Charge) error
	GetByID(ctx context.Context, id uuid.UUID) (*Charge, error)
	GetByCode(ctx context.Context, code string) (*Charge, error)
	Update(ctx context.Context, c *Charge) error
	Delete(ctx context.Context, id uuid.UUID) error
	Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Charge, int, error)
	// FirstActive returns the active charge with the lowest code in category.
	FirstActive(ctx context.Context, category string) (*Charge, error)
}

type BillRepository interface {
	// LockDay serialises bill numbering for one date inside a transaction.
	LockDay(ctx context.Context, day time.Time) error
	NextSequence(ctx context.Context, day time.Time) (int, error)
	// Create inserts the bill and its items.
	Create(ctx context.Context, b *Bill) error
	GetByID(ctx context.Context, id uuid.UUID) (*Bill, error)
	GetByNumber(ctx context.Context, number string) (*Bill, error)
	// Cancel marks a paid bill cancelled and returns ErrBillCancelled when
	// it already was.
	Cancel(ctx context.Context, b *Bill) error
	Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Bill, int, error)

	// Visit resolves an OP registration by UUID or OP number.
	Visit(ctx context.Context, ref string) (*Visit, error)
	UnbilledMedicines(ctx context.Context, opID uuid.UUID) ([]*Billable, error)
	UnbilledTreatments(ctx context.Context, opID uuid.UUID) ([]*Billable, error)
	// MarkBilled links sources to billID. It returns ErrAlreadyBilled when
	// any source was billed concurrently.
	MarkBilled(ctx context.Context, billID uuid.UUID, sources []*Billable) error
	// Release unlinks every order billed on billID.
	Release(ctx context.Context, billID uuid.UUID) error
}
