package inventory

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carepoint/opd/internal/platform/apperr"
	"github.com/carepoint/opd/internal/platform/db"
)

var (
	ErrMedicineExists    = errors.New("medicine with this name and strength already exists")
	ErrSupplierExists    = errors.New("supplier with this name already exists")
	ErrStockItemExists   = errors.New("stock item already exists for this medicine")
	ErrInUse             = errors.New("record is referenced and cannot be deleted; deactivate it instead")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrNoStockItem       = errors.New("medicine has no stock item")
)

var validForms = map[string]bool{
	"tablet":     true,
	"capsule":    true,
	"syrup":      true,
	"suspension": true,
	"injection":  true,
	"ointment":   true,
	"cream":      true,
	"drops":      true,
	"inhaler":    true,
	"powder":     true,
	"other":      true,
}

var validCategories = map[string]bool{
	CategoryMedicine:   true,
	CategoryConsumable: true,
	CategoryEquipment:  true,
}

var validTxTypes = map[string]bool{
	TxIn:         true,
	TxOut:        true,
	TxAdjustment: true,
}

// round2 rounds quantities and money to two decimals, matching NUMERIC(12,2).
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

type Service struct {
	medicines MedicineRepository
	suppliers SupplierRepository
	stock     StockRepository
	tx        db.Transactor
	logger    zerolog.Logger
}

func NewService(medicines MedicineRepository, suppliers SupplierRepository, stock StockRepository, tx db.Transactor, logger zerolog.Logger) *Service {
	return &Service{medicines: medicines, suppliers: suppliers, stock: stock, tx: tx, logger: logger}
}

// -- Medicines --

// CreateMedicine stores the medicine together with an empty stock item.
func (s *Service) CreateMedicine(ctx context.Context, m *Medicine) error {
	if err := validateMedicine(m); err != nil {
		return err
	}
	m.Active = true
	return s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.medicines.Create(ctx, m); err != nil {
			return err
		}
		medID := m.ID
		return s.stock.CreateItem(ctx, &StockItem{
			Name:         m.DisplayName(),
			Category:     CategoryMedicine,
			MedicineID:   &medID,
			Unit:         m.Unit,
			ReorderLevel: float64(m.ReorderLevel),
			UnitCost:     m.UnitPrice,
		})
	})
}

func (s *Service) GetMedicine(ctx context.Context, id uuid.UUID) (*Medicine, error) {
	return s.medicines.GetByID(ctx, id)
}

func (s *Service) UpdateMedicine(ctx context.Context, m *Medicine) error {
	if err := validateMedicine(m); err != nil {
		return err
	}
	return s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.medicines.Update(ctx, m); err != nil {
			return err
		}
		return s.stock.SyncMedicine(ctx, m)
	})
}

func (s *Service) DeleteMedicine(ctx context.Context, id uuid.UUID) error {
	return s.tx.InTx(ctx, func(ctx context.Context) error {
		return s.medicines.Delete(ctx, id)
	})
}

func (s *Service) SearchMedicines(ctx context.Context, params map[string]string, limit, offset int) ([]*Medicine, int, error) {
	return s.medicines.Search(ctx, params, limit, offset)
}

func validateMedicine(m *Medicine) error {
	m.Name = strings.TrimSpace(m.Name)
	m.Strength = strings.TrimSpace(m.Strength)
	m.Form = strings.ToLower(strings.TrimSpace(m.Form))
	if m.Name == "" {
		return apperr.Invalid("name is required")
	}
	if !validForms[m.Form] {
		return apperr.Invalidf("invalid form: %s", m.Form)
	}
	if strings.TrimSpace(m.Unit) == "" {
		return apperr.Invalid("unit is required")
	}
	if m.UnitPrice < 0 {
		return apperr.Invalid("unit_price must not be negative")
	}
	if m.ReorderLevel < 0 {
		return apperr.Invalid("reorder_level must not be negative")
	}
	m.UnitPrice = round2(m.UnitPrice)
	return nil
}

// -- Suppliers --

func (s *Service) CreateSupplier(ctx context.Context, sup *Supplier) error {
	if err := validateSupplier(sup); err != nil {
		return err
	}
	sup.Active = true
	return s.suppliers.Create(ctx, sup)
}

func (s *Service) GetSupplier(ctx context.Context, id uuid.UUID) (*Supplier, error) {
	return s.suppliers.GetByID(ctx, id)
}

func (s *Service) UpdateSupplier(ctx context.Context, sup *Supplier) error {
	if err := validateSupplier(sup); err != nil {
		return err
	}
	return s.suppliers.Update(ctx, sup)
}

func (s *Service) DeleteSupplier(ctx context.Context, id uuid.UUID) error {
	return s.suppliers.Delete(ctx, id)
}

func (s *Service) SearchSuppliers(ctx context.Context, params map[string]string, limit, offset int) ([]*Supplier, int, error) {
	return s.suppliers.Search(ctx, params, limit, offset)
}

func validateSupplier(sup *Supplier) error {
	sup.Name = strings.TrimSpace(sup.Name)
	if sup.Name == "" {
		return apperr.Invalid("name is required")
	}
	if sup.Email != nil && *sup.Email != "" && !strings.Contains(*sup.Email, "@") {
		return apperr.Invalidf("invalid email: %s", *sup.Email)
	}
	if sup.GSTIN != nil && *sup.GSTIN != "" {
		g := strings.ToUpper(strings.TrimSpace(*sup.GSTIN))
		if len(g) != 15 {
			return apperr.Invalid("gstin must be 15 characters")
		}
		sup.GSTIN = &g
	}
	return nil
}

// -- Stock --

// CreateStockItem registers a non-medicine item such as a consumable or a
// piece of equipment. Medicine items are created with their medicine.
func (s *Service) CreateStockItem(ctx context.Context, item *StockItem) error {
	item.Name = strings.TrimSpace(item.Name)
	if item.Name == "" {
		return apperr.Invalid("name is required")
	}
	if !validCategories[item.Category] {
		return apperr.Invalidf("invalid category: %s", item.Category)
	}
	if item.Category == CategoryMedicine || item.MedicineID != nil {
		return apperr.Invalid("medicine stock items are created with the medicine")
	}
	if strings.TrimSpace(item.Unit) == "" {
		return apperr.Invalid("unit is required")
	}
	if item.ReorderLevel < 0 || item.UnitCost < 0 {
		return apperr.Invalid("reorder_level and unit_cost must not be negative")
	}
	// Opening balance is recorded through a transaction, never set directly.
	item.Quantity = 0
	return s.stock.CreateItem(ctx, item)
}

func (s *Service) GetStockItem(ctx context.Context, id uuid.UUID) (*StockItem, error) {
	return s.stock.GetItem(ctx, id)
}

// UpdateStockItem changes item metadata. Quantity only moves through
// RecordTransaction.
func (s *Service) UpdateStockItem(ctx context.Context, item *StockItem) error {
	if strings.TrimSpace(item.Name) == "" {
		return apperr.Invalid("name is required")
	}
	if item.ReorderLevel < 0 || item.UnitCost < 0 {
		return apperr.Invalid("reorder_level and unit_cost must not be negative")
	}
	return s.stock.UpdateItem(ctx, item)
}

func (s *Service) SearchStock(ctx context.Context, params map[string]string, limit, offset int) ([]*StockItem, int, error) {
	return s.stock.SearchItems(ctx, params, limit, offset)
}

// LowStock lists items at or below their reorder level.
func (s *Service) LowStock(ctx context.Context, limit, offset int) ([]*StockItem, int, error) {
	return s.stock.SearchItems(ctx, map[string]string{"low": "true"}, limit, offset)
}

// ScanLowStock logs a warning for every item at or below its reorder level
// and returns how many there were.
func (s *Service) ScanLowStock(ctx context.Context) (int, error) {
	const page = 100
	seen := 0
	for offset := 0; ; offset += page {
		items, total, err := s.LowStock(ctx, page, offset)
		if err != nil {
			return seen, fmt.Errorf("scan low stock: %w", err)
		}
		for _, it := range items {
			s.logger.Warn().
				Str("stock_item_id", it.ID.String()).
				Str("name", it.Name).
				Float64("quantity", it.Quantity).
				Float64("reorder_level", it.ReorderLevel).
				Msg("stock at or below reorder level")
		}
		seen += len(items)
		if len(items) == 0 || offset+page >= total {
			break
		}
	}
	return seen, nil
}

func (s *Service) Ledger(ctx context.Context, itemID uuid.UUID, limit, offset int) ([]*StockTransaction, int, error) {
	if _, err := s.stock.GetItem(ctx, itemID); err != nil {
		return nil, 0, err
	}
	return s.stock.ListTransactions(ctx, itemID, limit, offset)
}

// RecordTransaction applies a stock movement and appends it to the ledger.
// The item row is locked for the duration of the transaction.
func (s *Service) RecordTransaction(ctx context.Context, itemID uuid.UUID, req TransactionRequest, actor *uuid.UUID) (*StockTransaction, error) {
	if err := validateTransaction(&req); err != nil {
		return nil, err
	}
	var out *StockTransaction
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		item, err := s.stock.GetItemForUpdate(ctx, itemID)
		if err != nil {
			return err
		}
		out, err = s.apply(ctx, item, req, actor)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Dispense deducts qty of a medicine from stock. It joins the caller's
// transaction when there is one.
func (s *Service) Dispense(ctx context.Context, medicineID uuid.UUID, qty float64, reference string, actor *uuid.UUID) (*StockTransaction, error) {
	req := TransactionRequest{Type: TxOut, Quantity: qty}
	if reference != "" {
		req.Reference = &reference
	}
	return s.RecordMedicineTransaction(ctx, medicineID, req, actor)
}

// RecordMedicineTransaction applies a movement to the stock item of a
// medicine.
func (s *Service) RecordMedicineTransaction(ctx context.Context, medicineID uuid.UUID, req TransactionRequest, actor *uuid.UUID) (*StockTransaction, error) {
	if err := validateTransaction(&req); err != nil {
		return nil, err
	}
	var out *StockTransaction
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		item, err := s.stock.GetItemByMedicineForUpdate(ctx, medicineID)
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				return ErrNoStockItem
			}
			return err
		}
		out, err = s.apply(ctx, item, req, actor)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) apply(ctx context.Context, item *StockItem, req TransactionRequest, actor *uuid.UUID) (*StockTransaction, error) {
	qty := round2(req.Quantity)
	var balance float64
	switch req.Type {
	case TxIn:
		balance = item.Quantity + qty
	case TxOut:
		if qty > item.Quantity {
			return nil, fmt.Errorf("%w: %s has %.2f %s, requested %.2f", ErrInsufficientStock, item.Name, item.Quantity, item.Unit, qty)
		}
		balance = item.Quantity - qty
	case TxAdjustment:
		balance = qty
		qty = round2(qty - item.Quantity)
	}
	balance = round2(balance)

	if err := s.stock.SetQuantity(ctx, item.ID, balance); err != nil {
		return nil, err
	}
	t := &StockTransaction{
		StockItemID:  item.ID,
		Type:         req.Type,
		Quantity:     qty,
		BalanceAfter: balance,
		Reference:    req.Reference,
		SupplierID:   req.SupplierID,
		UnitCost:     req.UnitCost,
		Notes:        req.Notes,
		PerformedBy:  actor,
	}
	if err := s.stock.InsertTransaction(ctx, t); err != nil {
		return nil, err
	}

	if balance <= item.ReorderLevel && item.Quantity > item.ReorderLevel {
		s.logger.Warn().
			Str("stock_item_id", item.ID.String()).
			Str("item", item.Name).
			Float64("quantity", balance).
			Float64("reorder_level", item.ReorderLevel).
			Msg("stock fell to reorder level")
	}
	item.Quantity = balance
	return t, nil
}

// validateTransaction rounds the quantity to two places before checking it.
func validateTransaction(req *TransactionRequest) error {
	req.Quantity = round2(req.Quantity)
	if !validTxTypes[req.Type] {
		return apperr.Invalidf("invalid transaction type: %s", req.Type)
	}
	if req.Type == TxAdjustment {
		if req.Quantity < 0 {
			return apperr.Invalid("adjusted quantity must not be negative")
		}
		if req.Notes == nil || strings.TrimSpace(*req.Notes) == "" {
			return apperr.Invalid("notes are required for an adjustment")
		}
	} else if req.Quantity <= 0 {
		return apperr.Invalid("quantity must be positive")
	}
	if req.UnitCost != nil && *req.UnitCost < 0 {
		return apperr.Invalid("unit_cost must not be negative")
	}
	return nil
}
