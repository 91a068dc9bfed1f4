package inventory

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carepoint/opd/internal/platform/db"
)

// -- Medicine Repository --

type medicineRepoPG struct {
	pool *pgxpool.Pool
}

func NewMedicineRepo(pool *pgxpool.Pool) MedicineRepository {
	return &medicineRepoPG{pool: pool}
}

func (r *medicineRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const medicineColumns = `id, name, generic_name, form, strength, unit, unit_price, reorder_level, active, created_at, updated_at`

func (r *medicineRepoPG) Create(ctx context.Context, m *Medicine) error {
	m.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO medicines (id, name, generic_name, form, strength, unit, unit_price, reorder_level, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`,
		m.ID, m.Name, m.GenericName, m.Form, m.Strength, m.Unit, m.UnitPrice, m.ReorderLevel, m.Active,
	).Scan(&m.CreatedAt, &m.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return ErrMedicineExists
	}
	return err
}

func (r *medicineRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Medicine, error) {
	return scanMedicine(r.conn(ctx).QueryRow(ctx, `SELECT `+medicineColumns+` FROM medicines WHERE id = $1`, id))
}

func (r *medicineRepoPG) Update(ctx context.Context, m *Medicine) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE medicines SET
			name = $2, generic_name = $3, form = $4, strength = $5, unit = $6,
			unit_price = $7, reorder_level = $8, active = $9, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		m.ID, m.Name, m.GenericName, m.Form, m.Strength, m.Unit,
		m.UnitPrice, m.ReorderLevel, m.Active,
	).Scan(&m.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return ErrMedicineExists
	}
	return db.NotFound(err)
}

// Delete removes the medicine and its empty stock item. Medicines that have
// been prescribed or moved stock are referenced and cannot be deleted.
func (r *medicineRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	q := r.conn(ctx)
	if _, err := q.Exec(ctx, `DELETE FROM stock_items WHERE medicine_id = $1
		AND NOT EXISTS (SELECT 1 FROM stock_transactions t WHERE t.stock_item_id = stock_items.id)`, id); err != nil {
		return mapDeleteErr(err)
	}
	tag, err := q.Exec(ctx, `DELETE FROM medicines WHERE id = $1`, id)
	if err != nil {
		return mapDeleteErr(err)
	}
	if tag.RowsAffected() == 0 {
		return db.ErrNotFound
	}
	return nil
}

func (r *medicineRepoPG) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Medicine, int, error) {
	query := `SELECT ` + medicineColumns + ` FROM medicines WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM medicines WHERE 1=1`
	var args []interface{}
	idx := 1

	if name, ok := params["name"]; ok {
		clause := fmt.Sprintf(` AND (name ILIKE $%d OR generic_name ILIKE $%d)`, idx, idx)
		query += clause
		countQuery += clause
		args = append(args, "%"+name+"%")
		idx++
	}
	if form, ok := params["form"]; ok {
		clause := fmt.Sprintf(` AND form = $%d`, idx)
		query += clause
		countQuery += clause
		args = append(args, strings.ToLower(form))
		idx++
	}
	if active, ok := params["active"]; ok {
		clause := fmt.Sprintf(` AND active = $%d`, idx)
		query += clause
		countQuery += clause
		args = append(args, active == "true")
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += fmt.Sprintf(` ORDER BY name, strength LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var meds []*Medicine
	for rows.Next() {
		m, err := scanMedicine(rows)
		if err != nil {
			return nil, 0, err
		}
		meds = append(meds, m)
	}
	return meds, total, rows.Err()
}

func scanMedicine(row pgx.Row) (*Medicine, error) {
	var m Medicine
	err := row.Scan(&m.ID, &m.Name, &m.GenericName, &m.Form, &m.Strength, &m.Unit,
		&m.UnitPrice, &m.ReorderLevel, &m.Active, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, db.NotFound(err)
	}
	return &m, nil
}

func mapDeleteErr(err error) error {
	if db.IsForeignKeyViolation(err) {
		return ErrInUse
	}
	return err
}

// -- Supplier Repository --

type supplierRepoPG struct {
	pool *pgxpool.Pool
}

func NewSupplierRepo(pool *pgxpool.Pool) SupplierRepository {
	return &supplierRepoPG{pool: pool}
}

func (r *supplierRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const supplierColumns = `id, name, contact_person, phone, email, address, gstin, active, created_at, updated_at`

func (r *supplierRepoPG) Create(ctx context.Context, s *Supplier) error {
	s.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO suppliers (id, name, contact_person, phone, email, address, gstin, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`,
		s.ID, s.Name, s.ContactPerson, s.Phone, s.Email, s.Address, s.GSTIN, s.Active,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return ErrSupplierExists
	}
	return err
}

func (r *supplierRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Supplier, error) {
	return scanSupplier(r.conn(ctx).QueryRow(ctx, `SELECT `+supplierColumns+` FROM suppliers WHERE id = $1`, id))
}

func (r *supplierRepoPG) Update(ctx context.Context, s *Supplier) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE suppliers SET
			name = $2, contact_person = $3, phone = $4, email = $5, address = $6,
			gstin = $7, active = $8, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		s.ID, s.Name, s.ContactPerson, s.Phone, s.Email, s.Address, s.GSTIN, s.Active,
	).Scan(&s.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return ErrSupplierExists
	}
	return db.NotFound(err)
}

func (r *supplierRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM suppliers WHERE id = $1`, id)
	if err != nil {
		return mapDeleteErr(err)
	}
	if tag.RowsAffected() == 0 {
		return db.ErrNotFound
	}
	return nil
}

func (r *supplierRepoPG) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Supplier, int, error) {
	query := `SELECT ` + supplierColumns + ` FROM suppliers WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM suppliers WHERE 1=1`
	var args []interface{}
	idx := 1

	if name, ok := params["name"]; ok {
		clause := fmt.Sprintf(` AND name ILIKE $%d`, idx)
		query += clause
		countQuery += clause
		args = append(args, "%"+name+"%")
		idx++
	}
	if active, ok := params["active"]; ok {
		clause := fmt.Sprintf(` AND active = $%d`, idx)
		query += clause
		countQuery += clause
		args = append(args, active == "true")
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += fmt.Sprintf(` ORDER BY name LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var suppliers []*Supplier
	for rows.Next() {
		s, err := scanSupplier(rows)
		if err != nil {
			return nil, 0, err
		}
		suppliers = append(suppliers, s)
	}
	return suppliers, total, rows.Err()
}

func scanSupplier(row pgx.Row) (*Supplier, error) {
	var s Supplier
	err := row.Scan(&s.ID, &s.Name, &s.ContactPerson, &s.Phone, &s.Email, &s.Address,
		&s.GSTIN, &s.Active, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, db.NotFound(err)
	}
	return &s, nil
}

// -- Stock Repository --

type stockRepoPG struct {
	pool *pgxpool.Pool
}

func NewStockRepo(pool *pgxpool.Pool) StockRepository {
	return &stockRepoPG{pool: pool}
}

func (r *stockRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const stockItemColumns = `id, name, category, medicine_id, unit, quantity, reorder_level, unit_cost,
	supplier_id, location, created_at, updated_at`

const stockTxColumns = `id, stock_item_id, type, quantity, balance_after, reference, supplier_id,
	unit_cost, notes, performed_by, created_at`

func (r *stockRepoPG) CreateItem(ctx context.Context, item *StockItem) error {
	item.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO stock_items (id, name, category, medicine_id, unit, quantity, reorder_level, unit_cost, supplier_id, location)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`,
		item.ID, item.Name, item.Category, item.MedicineID, item.Unit, item.Quantity,
		item.ReorderLevel, item.UnitCost, item.SupplierID, item.Location,
	).Scan(&item.CreatedAt, &item.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return ErrStockItemExists
	}
	return err
}

func (r *stockRepoPG) GetItem(ctx context.Context, id uuid.UUID) (*StockItem, error) {
	return scanStockItem(r.conn(ctx).QueryRow(ctx, `SELECT `+stockItemColumns+` FROM stock_items WHERE id = $1`, id))
}

func (r *stockRepoPG) GetItemForUpdate(ctx context.Context, id uuid.UUID) (*StockItem, error) {
	return scanStockItem(r.conn(ctx).QueryRow(ctx,
		`SELECT `+stockItemColumns+` FROM stock_items WHERE id = $1 FOR UPDATE`, id))
}

func (r *stockRepoPG) GetItemByMedicineForUpdate(ctx context.Context, medicineID uuid.UUID) (*StockItem, error) {
	return scanStockItem(r.conn(ctx).QueryRow(ctx,
		`SELECT `+stockItemColumns+` FROM stock_items WHERE medicine_id = $1 FOR UPDATE`, medicineID))
}

func (r *stockRepoPG) UpdateItem(ctx context.Context, item *StockItem) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE stock_items SET
			name = $2, unit = $3, reorder_level = $4, unit_cost = $5,
			supplier_id = $6, location = $7, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		item.ID, item.Name, item.Unit, item.ReorderLevel, item.UnitCost, item.SupplierID, item.Location,
	).Scan(&item.UpdatedAt)
	return db.NotFound(err)
}

// SyncMedicine copies the medicine's display name, unit and reorder level
// onto its stock item.
func (r *stockRepoPG) SyncMedicine(ctx context.Context, m *Medicine) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE stock_items SET name = $2, unit = $3, reorder_level = $4, updated_at = NOW()
		WHERE medicine_id = $1`,
		m.ID, m.DisplayName(), m.Unit, m.ReorderLevel)
	return err
}

func (r *stockRepoPG) SetQuantity(ctx context.Context, id uuid.UUID, qty float64) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE stock_items SET quantity = $2, updated_at = NOW() WHERE id = $1`, id, qty)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return db.ErrNotFound
	}
	return nil
}

func (r *stockRepoPG) InsertTransaction(ctx context.Context, t *StockTransaction) error {
	t.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO stock_transactions (
			id, stock_item_id, type, quantity, balance_after, reference,
			supplier_id, unit_cost, notes, performed_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at`,
		t.ID, t.StockItemID, t.Type, t.Quantity, t.BalanceAfter, t.Reference,
		t.SupplierID, t.UnitCost, t.Notes, t.PerformedBy,
	).Scan(&t.CreatedAt)
}

func (r *stockRepoPG) ListTransactions(ctx context.Context, itemID uuid.UUID, limit, offset int) ([]*StockTransaction, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM stock_transactions WHERE stock_item_id = $1`, itemID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx, `SELECT `+stockTxColumns+` FROM stock_transactions
		WHERE stock_item_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, itemID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var txs []*StockTransaction
	for rows.Next() {
		var t StockTransaction
		if err := rows.Scan(&t.ID, &t.StockItemID, &t.Type, &t.Quantity, &t.BalanceAfter, &t.Reference,
			&t.SupplierID, &t.UnitCost, &t.Notes, &t.PerformedBy, &t.CreatedAt); err != nil {
			return nil, 0, err
		}
		txs = append(txs, &t)
	}
	return txs, total, rows.Err()
}

func (r *stockRepoPG) SearchItems(ctx context.Context, params map[string]string, limit, offset int) ([]*StockItem, int, error) {
	query := `SELECT ` + stockItemColumns + ` FROM stock_items WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM stock_items WHERE 1=1`
	var args []interface{}
	idx := 1

	if name, ok := params["name"]; ok {
		clause := fmt.Sprintf(` AND name ILIKE $%d`, idx)
		query += clause
		countQuery += clause
		args = append(args, "%"+name+"%")
		idx++
	}
	if category, ok := params["category"]; ok {
		clause := fmt.Sprintf(` AND category = $%d`, idx)
		query += clause
		countQuery += clause
		args = append(args, category)
		idx++
	}
	if supplier, ok := params["supplier_id"]; ok {
		clause := fmt.Sprintf(` AND supplier_id::text = $%d`, idx)
		query += clause
		countQuery += clause
		args = append(args, supplier)
		idx++
	}
	if params["low"] == "true" {
		clause := ` AND quantity <= reorder_level`
		query += clause
		countQuery += clause
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += fmt.Sprintf(` ORDER BY name LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*StockItem
	for rows.Next() {
		item, err := scanStockItem(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, item)
	}
	return items, total, rows.Err()
}

func scanStockItem(row pgx.Row) (*StockItem, error) {
	var s StockItem
	err := row.Scan(&s.ID, &s.Name, &s.Category, &s.MedicineID, &s.Unit, &s.Quantity,
		&s.ReorderLevel, &s.UnitCost, &s.SupplierID, &s.Location, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, db.NotFound(err)
	}
	return &s, nil
}
