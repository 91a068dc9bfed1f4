package inventory

import (
	"context"

	"github.com/google/uuid"
)

type MedicineRepository interface {
	Create(ctx context.Context, m *Medicine) error
	GetByID(ctx context.Context, id uuid.UUID) (*Medicine, error)
	Update(ctx context.Context, m *Medicine) error
	Delete(ctx context.Context, id uuid.UUID) error
	Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Medicine, int, error)
}

type SupplierRepository interface {
	Create(ctx context.Context, s *Supplier) error
	GetByID(ctx context.Context, id uuid.UUID) (*Supplier, error)
	Update(ctx context.Context, s *Supplier) error
	Delete(ctx context.Context, id uuid.UUID) error
	Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Supplier, int, error)
}

// StockRepository persists stock items and their ledger. The ForUpdate
// getters lock the row and must be called inside a transaction.
type StockRepository interface {
	CreateItem(ctx context.Context, item *StockItem) error
	GetItem(ctx context.Context, id uuid.UUID) (*StockItem, error)
	GetItemForUpdate(ctx context.Context, id uuid.UUID) (*StockItem, error)
	GetItemByMedicineForUpdate(ctx context.Context, medicineID uuid.UUID) (*StockItem, error)
	UpdateItem(ctx context.Context, item *StockItem) error
	SyncMedicine(ctx context.Context, m *Medicine) error
	SetQuantity(ctx context.Context, id uuid.UUID, qty float64) error
	InsertTransaction(ctx context.Context, tx *StockTransaction) error
	ListTransactions(ctx context.Context, itemID uuid.UUID, limit, offset int) ([]*StockTransaction, int, error)
	SearchItems(ctx context.Context, params map[string]string, limit, offset int) ([]*StockItem, int, error)
}
