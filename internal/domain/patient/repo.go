package patient

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines the persistence interface for patients.
type Repository interface {
	NextSequence(ctx context.Context) (int64, error)
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetByCode(ctx context.Context, code string) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Patient, int, error)
}
