package inventory

import (
	"time"

	"github.com/google/uuid"
)

const (
	CategoryMedicine   = "medicine"
	CategoryConsumable = "consumable"
	CategoryEquipment  = "equipment"
)

const (
	TxIn         = "in"
	TxOut        = "out"
	TxAdjustment = "adjustment"
)

// Medicine maps to the medicines table.
type Medicine struct {
	ID           uuid.UUID `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	GenericName  *string   `db:"generic_name" json:"generic_name,omitempty"`
	Form         string    `db:"form" json:"form"`
	Strength     string    `db:"strength" json:"strength"`
	Unit         string    `db:"unit" json:"unit"`
	UnitPrice    float64   `db:"unit_price" json:"unit_price"`
	ReorderLevel int       `db:"reorder_level" json:"reorder_level"`
	Active       bool      `db:"active" json:"active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// DisplayName is the name used on prescriptions and bills: "Paracetamol 500mg".
func (m *Medicine) DisplayName() string {
	if m.Strength == "" {
		return m.Name
	}
	return m.Name + " " + m.Strength
}

// Supplier maps to the suppliers table.
type Supplier struct {
	ID            uuid.UUID `db:"id" json:"id"`
	Name          string    `db:"name" json:"name"`
	ContactPerson *string   `db:"contact_person" json:"contact_person,omitempty"`
	Phone         *string   `db:"phone" json:"phone,omitempty"`
	Email         *string   `db:"email" json:"email,omitempty"`
	Address       *string   `db:"address" json:"address,omitempty"`
	GSTIN         *string   `db:"gstin" json:"gstin,omitempty"`
	Active        bool      `db:"active" json:"active"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// StockItem maps to the stock_items table. Every medicine has exactly one.
type StockItem struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	Name         string     `db:"name" json:"name"`
	Category     string     `db:"category" json:"category"`
	MedicineID   *uuid.UUID `db:"medicine_id" json:"medicine_id,omitempty"`
	Unit         string     `db:"unit" json:"unit"`
	Quantity     float64    `db:"quantity" json:"quantity"`
	ReorderLevel float64    `db:"reorder_level" json:"reorder_level"`
	UnitCost     float64    `db:"unit_cost" json:"unit_cost"`
	SupplierID   *uuid.UUID `db:"supplier_id" json:"supplier_id,omitempty"`
	Location     *string    `db:"location" json:"location,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// IsLow reports whether the item is at or below its reorder level.
func (s *StockItem) IsLow() bool {
	return s.Quantity <= s.ReorderLevel
}

// StockTransaction maps to the stock_transactions ledger.
type StockTransaction struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	StockItemID  uuid.UUID  `db:"stock_item_id" json:"stock_item_id"`
	Type         string     `db:"type" json:"type"`
	Quantity     float64    `db:"quantity" json:"quantity"`
	BalanceAfter float64    `db:"balance_after" json:"balance_after"`
	Reference    *string    `db:"reference" json:"reference,omitempty"`
	SupplierID   *uuid.UUID `db:"supplier_id" json:"supplier_id,omitempty"`
	UnitCost     *float64   `db:"unit_cost" json:"unit_cost,omitempty"`
	Notes        *string    `db:"notes" json:"notes,omitempty"`
	PerformedBy  *uuid.UUID `db:"performed_by" json:"performed_by,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
}

// TransactionRequest is the payload for a stock movement. For adjustments
// Quantity is the counted stock on hand, not a delta.
type TransactionRequest struct {
	Type       string     `json:"type"`
	Quantity   float64    `json:"quantity"`
	Reference  *string    `json:"reference,omitempty"`
	SupplierID *uuid.UUID `json:"supplier_id,omitempty"`
	UnitCost   *float64   `json:"unit_cost,omitempty"`
	Notes      *string    `json:"notes,omitempty"`
}
