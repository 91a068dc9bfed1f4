package prescription

import (
	"context"

	"github.com/google/uuid"
)

type MedicineRepository interface {
	Create(ctx context.Context, rx *MedicinePrescription) error
	GetByID(ctx context.Context, id uuid.UUID) (*MedicinePrescription, error)
	// GetForUpdate locks the row; call it inside a transaction.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*MedicinePrescription, error)
	// UpdateStatus writes the status fields of a pending row and returns
	// ErrNotPending when the row has already left pending.
	UpdateStatus(ctx context.Context, rx *MedicinePrescription) error
	ListByVisit(ctx context.Context, opID uuid.UUID) ([]*MedicinePrescription, error)
	Search(ctx context.Context, params map[string]string, limit, offset int) ([]*MedicinePrescription, int, error)
}

type TreatmentRepository interface {
	Create(ctx context.Context, rx *TreatmentPrescription) error
	GetByID(ctx context.Context, id uuid.UUID) (*TreatmentPrescription, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*TreatmentPrescription, error)
	// UpdateProgress writes sessions_completed and the status fields of a
	// pending row and returns ErrNotPending when it has left pending.
	UpdateProgress(ctx context.Context, rx *TreatmentPrescription) error
	ListByVisit(ctx context.Context, opID uuid.UUID) ([]*TreatmentPrescription, error)
	Search(ctx context.Context, params map[string]string, limit, offset int) ([]*TreatmentPrescription, int, error)
}
