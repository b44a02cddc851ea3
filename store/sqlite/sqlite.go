/*
Package sqlite provides the SQLite-backed persistence for the pricing
and allocation core.

PURPOSE:
  Implements the read path the engines consume (pricing.Catalog) and
  the write path for documents, payments, allocations, and the product
  cost ledger. In production the same patterns apply to PostgreSQL -
  only minor SQL dialect differences.

INTERFACES IMPLEMENTED:
  pricing.Catalog: products, customers, conditions, promotions, tiers,
                   price-list entries

KEY TABLES:
  products              base price, moving-average cost, stock
  customers             minimal customer record
  commercial_conditions 1:1 with customers
  price_lists /
  price_list_entries    at most one fixed price per (list, product)
  volume_tiers          quantity-range fixed prices
  promotions            time-boxed fixed prices
  documents             quotes, orders, invoices, purchase orders
  document_lines        lines with derived totals
  payments /
  payment_allocations   Σ allocations <= payment amount
  product_cost_history  append-only AVCO ledger

ATOMICITY:
  Payment recording (payment + allocations + invoice balance updates)
  and receipt application (product cost/stock + history row) each run
  in one database transaction: either everything commits or nothing
  does. No partial allocations, no orphan history rows.

DECIMAL STORAGE:
  Monetary values are stored as TEXT via decimal.Decimal.String() so no
  binary float ever touches them. The few SQL-side filters on amounts
  use CAST(... AS REAL), which is safe for sign checks.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. In production with PostgreSQL,
  database-level concurrency control handles this instead.

USAGE:
  store, err := sqlite.New("./data/erp.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/meridian/erp-core/billing"
	"github.com/meridian/erp-core/costing"
	"github.com/meridian/erp-core/finance"
	"github.com/meridian/erp-core/pricing"
	"github.com/meridian/erp-core/receivables"
)

// Store implements persistence for the core using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS products (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		price TEXT NOT NULL,
		cost TEXT,
		stock TEXT NOT NULL DEFAULT '0',
		min_stock TEXT NOT NULL DEFAULT '0',
		max_stock TEXT NOT NULL DEFAULT '0',
		default_tax_rate TEXT NOT NULL DEFAULT '0',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS customers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS commercial_conditions (
		customer_id TEXT PRIMARY KEY REFERENCES customers(id),
		default_discount_percent TEXT NOT NULL DEFAULT '0',
		credit_limit TEXT NOT NULL DEFAULT '0',
		block_on_credit_exceeded INTEGER NOT NULL DEFAULT 0,
		price_list_id TEXT,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS price_lists (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- At most one fixed price per product per list.
	CREATE TABLE IF NOT EXISTS price_list_entries (
		price_list_id TEXT NOT NULL REFERENCES price_lists(id),
		product_id TEXT NOT NULL REFERENCES products(id),
		price TEXT NOT NULL,
		PRIMARY KEY (price_list_id, product_id)
	);

	CREATE TABLE IF NOT EXISTS volume_tiers (
		id TEXT PRIMARY KEY,
		product_id TEXT NOT NULL REFERENCES products(id),
		min_quantity TEXT NOT NULL,
		max_quantity TEXT,
		price TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_volume_tiers_product
		ON volume_tiers(product_id);

	CREATE TABLE IF NOT EXISTS promotions (
		id TEXT PRIMARY KEY,
		product_id TEXT NOT NULL REFERENCES products(id),
		price TEXT NOT NULL,
		start_at TEXT NOT NULL,
		end_at TEXT NOT NULL,
		is_active INTEGER NOT NULL DEFAULT 1
	);

	CREATE INDEX IF NOT EXISTS idx_promotions_product
		ON promotions(product_id);

	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		doc_type TEXT NOT NULL,
		customer_id TEXT NOT NULL REFERENCES customers(id),
		status TEXT NOT NULL DEFAULT 'draft',
		discount_percent TEXT NOT NULL DEFAULT '0',
		subtotal TEXT NOT NULL DEFAULT '0',
		discount_amount TEXT NOT NULL DEFAULT '0',
		tax_amount TEXT NOT NULL DEFAULT '0',
		total TEXT NOT NULL DEFAULT '0',
		paid_amount TEXT NOT NULL DEFAULT '0',
		remaining_amount TEXT NOT NULL DEFAULT '0',
		issue_date TEXT NOT NULL,
		due_date TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_documents_customer
		ON documents(customer_id, doc_type);
	CREATE INDEX IF NOT EXISTS idx_documents_status
		ON documents(doc_type, status);
	-- Allocation hot path: open invoices by customer, oldest due first.
	CREATE INDEX IF NOT EXISTS idx_documents_open_invoices
		ON documents(customer_id, doc_type, status, due_date);

	CREATE TABLE IF NOT EXISTS document_lines (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL REFERENCES documents(id),
		product_id TEXT NOT NULL,
		label TEXT,
		quantity TEXT NOT NULL,
		unit_price TEXT NOT NULL,
		discount_percent TEXT NOT NULL DEFAULT '0',
		tax_rate TEXT NOT NULL DEFAULT '0',
		discount_amount TEXT NOT NULL DEFAULT '0',
		total_ht TEXT NOT NULL DEFAULT '0',
		total_ttc TEXT NOT NULL DEFAULT '0',
		position INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_document_lines_document
		ON document_lines(document_id, position);

	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		customer_id TEXT NOT NULL REFERENCES customers(id),
		amount TEXT NOT NULL,
		reference TEXT,
		received_at TEXT NOT NULL,
		confirmed INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS payment_allocations (
		id TEXT PRIMARY KEY,
		payment_id TEXT NOT NULL REFERENCES payments(id),
		invoice_id TEXT NOT NULL REFERENCES documents(id),
		amount TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_allocations_payment
		ON payment_allocations(payment_id);
	CREATE INDEX IF NOT EXISTS idx_allocations_invoice
		ON payment_allocations(invoice_id);

	-- Append-only AVCO ledger. No UPDATE, no DELETE.
	CREATE TABLE IF NOT EXISTS product_cost_history (
		id TEXT PRIMARY KEY,
		product_id TEXT NOT NULL REFERENCES products(id),
		old_cost TEXT,
		new_cost TEXT NOT NULL,
		old_stock TEXT NOT NULL,
		new_stock TEXT NOT NULL,
		purchase_price TEXT NOT NULL,
		quantity_received TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_cost_history_product
		ON product_cost_history(product_id, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// SCAN HELPERS
// =============================================================================

func parseDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

func parseNullDecimal(ns sql.NullString) (*decimal.Decimal, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(ns.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func nullDecimal(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func nowString() string {
	return formatTime(time.Now())
}

// =============================================================================
// PRODUCTS
// =============================================================================

// CreateProduct inserts a product.
func (s *Store) CreateProduct(ctx context.Context, p pricing.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := nowString()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, price, cost, stock, min_stock, max_stock, default_tax_rate, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Price.String(), nullDecimal(p.Cost),
		p.Stock.String(), p.MinStock.String(), p.MaxStock.String(),
		p.DefaultTaxRate.String(), now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}
	return nil
}

// Product implements pricing.Catalog.
func (s *Store) Product(ctx context.Context, id finance.ProductID) (*pricing.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.product(ctx, s.db, id)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) product(ctx context.Context, q querier, id finance.ProductID) (*pricing.Product, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, name, price, cost, stock, min_stock, max_stock, default_tax_rate
		FROM products WHERE id = ?`, id)

	var p pricing.Product
	var price, stock, minStock, maxStock, taxRate string
	var cost sql.NullString
	err := row.Scan(&p.ID, &p.Name, &price, &cost, &stock, &minStock, &maxStock, &taxRate)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, finance.ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load product: %w", err)
	}

	if p.Price, err = parseDecimal(price); err != nil {
		return nil, err
	}
	if p.Cost, err = parseNullDecimal(cost); err != nil {
		return nil, err
	}
	if p.Stock, err = parseDecimal(stock); err != nil {
		return nil, err
	}
	if p.MinStock, err = parseDecimal(minStock); err != nil {
		return nil, err
	}
	if p.MaxStock, err = parseDecimal(maxStock); err != nil {
		return nil, err
	}
	if p.DefaultTaxRate, err = parseDecimal(taxRate); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListProducts returns all products ordered by id.
func (s *Store) ListProducts(ctx context.Context) ([]pricing.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT id FROM products ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	var ids []finance.ProductID
	for rows.Next() {
		var id finance.ProductID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	products := make([]pricing.Product, 0, len(ids))
	for _, id := range ids {
		p, err := s.product(ctx, s.db, id)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}
	return products, nil
}

// ApplyCostUpdate persists the outcome of one AVCO receipt: the new
// cost and stock on the product, and the history row when the cost
// moved. One transaction; no partial application.
func (s *Store) ApplyCostUpdate(ctx context.Context, result costing.CostUpdateResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE products SET cost = ?, stock = ?, updated_at = ? WHERE id = ?`,
		result.NewCost.String(), result.NewStock.String(), nowString(), result.ProductID,
	)
	if err != nil {
		return fmt.Errorf("failed to update product cost: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return finance.ErrProductNotFound
	}

	if result.History != nil {
		h := result.History
		id := h.ID
		if id == "" {
			id = uuid.NewString()
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO product_cost_history
			(id, product_id, old_cost, new_cost, old_stock, new_stock, purchase_price, quantity_received, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, h.ProductID, nullDecimal(h.OldCost), h.NewCost.String(),
			h.OldStock.String(), h.NewStock.String(),
			h.PurchasePrice.String(), h.QuantityReceived.String(), nowString(),
		)
		if err != nil {
			return fmt.Errorf("failed to append cost history: %w", err)
		}
	}

	return tx.Commit()
}

// CostHistory returns a product's cost ledger, oldest first.
func (s *Store) CostHistory(ctx context.Context, id finance.ProductID) ([]costing.CostHistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, old_cost, new_cost, old_stock, new_stock, purchase_price, quantity_received, created_at
		FROM product_cost_history WHERE product_id = ? ORDER BY created_at ASC, id ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query cost history: %w", err)
	}
	defer rows.Close()

	var entries []costing.CostHistoryEntry
	for rows.Next() {
		var e costing.CostHistoryEntry
		var oldCost sql.NullString
		var newCost, oldStock, newStock, price, qty, createdAt string
		if err := rows.Scan(&e.ID, &e.ProductID, &oldCost, &newCost, &oldStock, &newStock, &price, &qty, &createdAt); err != nil {
			return nil, err
		}
		if e.OldCost, err = parseNullDecimal(oldCost); err != nil {
			return nil, err
		}
		if e.NewCost, err = parseDecimal(newCost); err != nil {
			return nil, err
		}
		if e.OldStock, err = parseDecimal(oldStock); err != nil {
			return nil, err
		}
		if e.NewStock, err = parseDecimal(newStock); err != nil {
			return nil, err
		}
		if e.PurchasePrice, err = parseDecimal(price); err != nil {
			return nil, err
		}
		if e.QuantityReceived, err = parseDecimal(qty); err != nil {
			return nil, err
		}
		e.CreatedAt = parseTime(createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// CUSTOMERS AND COMMERCIAL CONDITIONS
// =============================================================================

// CreateCustomer inserts a customer.
func (s *Store) CreateCustomer(ctx context.Context, c pricing.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO customers (id, name, created_at) VALUES (?, ?, ?)`,
		c.ID, c.Name, nowString())
	if err != nil {
		return fmt.Errorf("failed to create customer: %w", err)
	}
	return nil
}

// Customer implements pricing.Catalog.
func (s *Store) Customer(ctx context.Context, id finance.CustomerID) (*pricing.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var c pricing.Customer
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name FROM customers WHERE id = ?`, id).Scan(&c.ID, &c.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, finance.ErrCustomerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load customer: %w", err)
	}
	return &c, nil
}

// ListCustomers returns all customers ordered by id.
func (s *Store) ListCustomers(ctx context.Context) ([]pricing.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM customers ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list customers: %w", err)
	}
	defer rows.Close()

	var customers []pricing.Customer
	for rows.Next() {
		var c pricing.Customer
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

// PutConditions upserts a customer's commercial conditions.
func (s *Store) PutConditions(ctx context.Context, c pricing.CommercialConditions) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var listID any
	if c.PriceListID != nil {
		listID = string(*c.PriceListID)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO commercial_conditions
		(customer_id, default_discount_percent, credit_limit, block_on_credit_exceeded, price_list_id, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(customer_id) DO UPDATE SET
			default_discount_percent = excluded.default_discount_percent,
			credit_limit = excluded.credit_limit,
			block_on_credit_exceeded = excluded.block_on_credit_exceeded,
			price_list_id = excluded.price_list_id,
			updated_at = excluded.updated_at`,
		c.CustomerID, c.DefaultDiscountPercent.String(), c.CreditLimit.String(),
		c.BlockOnCreditExceeded, listID, nowString(),
	)
	if err != nil {
		return fmt.Errorf("failed to save commercial conditions: %w", err)
	}
	return nil
}

// Conditions implements pricing.Catalog. (nil, nil) when none exist.
func (s *Store) Conditions(ctx context.Context, id finance.CustomerID) (*pricing.CommercialConditions, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT customer_id, default_discount_percent, credit_limit, block_on_credit_exceeded, price_list_id
		FROM commercial_conditions WHERE customer_id = ?`, id)

	var c pricing.CommercialConditions
	var discount, limit string
	var listID sql.NullString
	err := row.Scan(&c.CustomerID, &discount, &limit, &c.BlockOnCreditExceeded, &listID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load commercial conditions: %w", err)
	}

	if c.DefaultDiscountPercent, err = parseDecimal(discount); err != nil {
		return nil, err
	}
	if c.CreditLimit, err = parseDecimal(limit); err != nil {
		return nil, err
	}
	if listID.Valid {
		plID := finance.PriceListID(listID.String)
		c.PriceListID = &plID
	}
	return &c, nil
}

// =============================================================================
// PRICE LISTS, TIERS, PROMOTIONS (catalog write side)
// =============================================================================

// CreatePriceList inserts a price list.
func (s *Store) CreatePriceList(ctx context.Context, l pricing.PriceList) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO price_lists (id, name, created_at) VALUES (?, ?, ?)`,
		l.ID, l.Name, nowString())
	if err != nil {
		return fmt.Errorf("failed to create price list: %w", err)
	}
	return nil
}

// ListPriceLists returns all price lists ordered by id.
func (s *Store) ListPriceLists(ctx context.Context) ([]pricing.PriceList, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM price_lists ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list price lists: %w", err)
	}
	defer rows.Close()

	var lists []pricing.PriceList
	for rows.Next() {
		var l pricing.PriceList
		if err := rows.Scan(&l.ID, &l.Name); err != nil {
			return nil, err
		}
		lists = append(lists, l)
	}
	return lists, rows.Err()
}

// PutPriceListEntry upserts a product's fixed price inside a list.
func (s *Store) PutPriceListEntry(ctx context.Context, e pricing.PriceListEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM price_lists WHERE id = ?`, e.PriceListID).Scan(&exists)
	if err != nil {
		return err
	}
	if exists == 0 {
		return finance.ErrPriceListNotFound
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO price_list_entries (price_list_id, product_id, price)
		VALUES (?, ?, ?)
		ON CONFLICT(price_list_id, product_id) DO UPDATE SET price = excluded.price`,
		e.PriceListID, e.ProductID, e.Price.String())
	if err != nil {
		return fmt.Errorf("failed to save price list entry: %w", err)
	}
	return nil
}

// PriceListEntry implements pricing.Catalog. (nil, nil) when absent.
func (s *Store) PriceListEntry(ctx context.Context, listID finance.PriceListID, productID finance.ProductID) (*pricing.PriceListEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var e pricing.PriceListEntry
	var price string
	err := s.db.QueryRowContext(ctx, `
		SELECT price_list_id, product_id, price FROM price_list_entries
		WHERE price_list_id = ? AND product_id = ?`, listID, productID).
		Scan(&e.PriceListID, &e.ProductID, &price)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load price list entry: %w", err)
	}
	if e.Price, err = parseDecimal(price); err != nil {
		return nil, err
	}
	return &e, nil
}

// AddVolumeTier inserts a volume tier for a product.
func (s *Store) AddVolumeTier(ctx context.Context, t pricing.VolumeTier) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO volume_tiers (id, product_id, min_quantity, max_quantity, price)
		VALUES (?, ?, ?, ?, ?)`,
		uuid.NewString(), t.ProductID, t.MinQuantity.String(),
		nullDecimal(t.MaxQuantity), t.Price.String())
	if err != nil {
		return fmt.Errorf("failed to add volume tier: %w", err)
	}
	return nil
}

// VolumeTiers implements pricing.Catalog.
func (s *Store) VolumeTiers(ctx context.Context, id finance.ProductID) ([]pricing.VolumeTier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, min_quantity, max_quantity, price
		FROM volume_tiers WHERE product_id = ? ORDER BY CAST(min_quantity AS REAL) ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query volume tiers: %w", err)
	}
	defer rows.Close()

	var tiers []pricing.VolumeTier
	for rows.Next() {
		var t pricing.VolumeTier
		var minQty, price string
		var maxQty sql.NullString
		if err := rows.Scan(&t.ProductID, &minQty, &maxQty, &price); err != nil {
			return nil, err
		}
		if t.MinQuantity, err = parseDecimal(minQty); err != nil {
			return nil, err
		}
		if t.MaxQuantity, err = parseNullDecimal(maxQty); err != nil {
			return nil, err
		}
		if t.Price, err = parseDecimal(price); err != nil {
			return nil, err
		}
		tiers = append(tiers, t)
	}
	return tiers, rows.Err()
}

// AddPromotion inserts a promotion for a product.
func (s *Store) AddPromotion(ctx context.Context, p pricing.Promotion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO promotions (id, product_id, price, start_at, end_at, is_active)
		VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), p.ProductID, p.Price.String(),
		formatTime(p.Start), formatTime(p.End), p.Active)
	if err != nil {
		return fmt.Errorf("failed to add promotion: %w", err)
	}
	return nil
}

// Promotions implements pricing.Catalog. Returns all promotions; time
// filtering belongs to the resolver.
func (s *Store) Promotions(ctx context.Context, id finance.ProductID) ([]pricing.Promotion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, price, start_at, end_at, is_active
		FROM promotions WHERE product_id = ? ORDER BY start_at ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query promotions: %w", err)
	}
	defer rows.Close()

	var promos []pricing.Promotion
	for rows.Next() {
		var p pricing.Promotion
		var price, start, end string
		if err := rows.Scan(&p.ProductID, &price, &start, &end, &p.Active); err != nil {
			return nil, err
		}
		if p.Price, err = parseDecimal(price); err != nil {
			return nil, err
		}
		p.Start = parseTime(start)
		p.End = parseTime(end)
		promos = append(promos, p)
	}
	return promos, rows.Err()
}

// =============================================================================
// DOCUMENTS
// =============================================================================

// SaveDocument upserts a document and replaces its line set. Totals are
// stored as computed by billing.Recompute; this method never derives
// anything itself.
func (s *Store) SaveDocument(ctx context.Context, doc *billing.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := saveDocumentTx(ctx, tx, doc); err != nil {
		return err
	}
	return tx.Commit()
}

func saveDocumentTx(ctx context.Context, tx *sql.Tx, doc *billing.Document) error {
	now := nowString()
	_, err := tx.ExecContext(ctx, `
		INSERT INTO documents
		(id, doc_type, customer_id, status, discount_percent, subtotal, discount_amount,
		 tax_amount, total, paid_amount, remaining_amount, issue_date, due_date, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			discount_percent = excluded.discount_percent,
			subtotal = excluded.subtotal,
			discount_amount = excluded.discount_amount,
			tax_amount = excluded.tax_amount,
			total = excluded.total,
			paid_amount = excluded.paid_amount,
			remaining_amount = excluded.remaining_amount,
			issue_date = excluded.issue_date,
			due_date = excluded.due_date,
			updated_at = excluded.updated_at`,
		doc.ID, doc.Type, doc.CustomerID, doc.Status, doc.DiscountPercent.String(),
		doc.Subtotal.String(), doc.DiscountAmount.String(), doc.TaxAmount.String(),
		doc.Total.String(), doc.PaidAmount.String(), doc.RemainingAmount.String(),
		formatTime(doc.IssueDate), formatTime(doc.DueDate), now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to save document: %w", err)
	}

	// Full line replacement matches the full-recomputation model.
	if _, err := tx.ExecContext(ctx, `DELETE FROM document_lines WHERE document_id = ?`, doc.ID); err != nil {
		return fmt.Errorf("failed to clear document lines: %w", err)
	}
	for i, l := range doc.Lines {
		id := l.ID
		if id == "" {
			id = uuid.NewString()
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO document_lines
			(id, document_id, product_id, label, quantity, unit_price, discount_percent,
			 tax_rate, discount_amount, total_ht, total_ttc, position)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, doc.ID, l.ProductID, l.Label, l.Quantity.String(), l.UnitPrice.String(),
			l.DiscountPercent.String(), l.TaxRate.String(), l.DiscountAmount.String(),
			l.TotalHT.String(), l.TotalTTC.String(), i,
		)
		if err != nil {
			return fmt.Errorf("failed to save document line: %w", err)
		}
	}
	return nil
}

// GetDocument loads a document with its lines.
func (s *Store) GetDocument(ctx context.Context, id finance.DocumentID) (*billing.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getDocument(ctx, s.db, id)
}

func (s *Store) getDocument(ctx context.Context, q querier, id finance.DocumentID) (*billing.Document, error) {
	row := q.QueryRowContext(ctx, `
		SELECT d.id, d.doc_type, d.customer_id, c.name, d.status, d.discount_percent,
		       d.subtotal, d.discount_amount, d.tax_amount, d.total,
		       d.paid_amount, d.remaining_amount, d.issue_date, d.due_date, d.created_at, d.updated_at
		FROM documents d JOIN customers c ON c.id = d.customer_id
		WHERE d.id = ?`, id)

	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, finance.ErrDocumentNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := q.QueryContext(ctx, `
		SELECT id, document_id, product_id, label, quantity, unit_price, discount_percent,
		       tax_rate, discount_amount, total_ht, total_ttc
		FROM document_lines WHERE document_id = ? ORDER BY position ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query document lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var l billing.Line
		var qty, price, disc, tax, discAmt, ht, ttc string
		var label sql.NullString
		if err := rows.Scan(&l.ID, &l.DocumentID, &l.ProductID, &label,
			&qty, &price, &disc, &tax, &discAmt, &ht, &ttc); err != nil {
			return nil, err
		}
		l.Label = label.String
		if l.Quantity, err = parseDecimal(qty); err != nil {
			return nil, err
		}
		if l.UnitPrice, err = parseDecimal(price); err != nil {
			return nil, err
		}
		if l.DiscountPercent, err = parseDecimal(disc); err != nil {
			return nil, err
		}
		if l.TaxRate, err = parseDecimal(tax); err != nil {
			return nil, err
		}
		if l.DiscountAmount, err = parseDecimal(discAmt); err != nil {
			return nil, err
		}
		if l.TotalHT, err = parseDecimal(ht); err != nil {
			return nil, err
		}
		if l.TotalTTC, err = parseDecimal(ttc); err != nil {
			return nil, err
		}
		doc.Lines = append(doc.Lines, l)
	}
	return doc, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*billing.Document, error) {
	var doc billing.Document
	var discPct, subtotal, discAmt, tax, total, paid, remaining string
	var issueDate, dueDate, createdAt, updatedAt string
	err := row.Scan(&doc.ID, &doc.Type, &doc.CustomerID, &doc.CustomerName, &doc.Status,
		&discPct, &subtotal, &discAmt, &tax, &total, &paid, &remaining,
		&issueDate, &dueDate, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	if doc.DiscountPercent, err = parseDecimal(discPct); err != nil {
		return nil, err
	}
	if doc.Subtotal, err = parseDecimal(subtotal); err != nil {
		return nil, err
	}
	if doc.DiscountAmount, err = parseDecimal(discAmt); err != nil {
		return nil, err
	}
	if doc.TaxAmount, err = parseDecimal(tax); err != nil {
		return nil, err
	}
	if doc.Total, err = parseDecimal(total); err != nil {
		return nil, err
	}
	if doc.PaidAmount, err = parseDecimal(paid); err != nil {
		return nil, err
	}
	if doc.RemainingAmount, err = parseDecimal(remaining); err != nil {
		return nil, err
	}
	doc.IssueDate = parseTime(issueDate)
	doc.DueDate = parseTime(dueDate)
	doc.CreatedAt = parseTime(createdAt)
	doc.UpdatedAt = parseTime(updatedAt)
	return &doc, nil
}

// ListDocuments returns documents of a type, optionally filtered by
// customer, newest first.
func (s *Store) ListDocuments(ctx context.Context, docType billing.DocumentType, customerID *finance.CustomerID) ([]billing.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT d.id, d.doc_type, d.customer_id, c.name, d.status, d.discount_percent,
		       d.subtotal, d.discount_amount, d.tax_amount, d.total,
		       d.paid_amount, d.remaining_amount, d.issue_date, d.due_date, d.created_at, d.updated_at
		FROM documents d JOIN customers c ON c.id = d.customer_id
		WHERE d.doc_type = ?`
	args := []any{docType}
	if customerID != nil {
		query += ` AND d.customer_id = ?`
		args = append(args, *customerID)
	}
	query += ` ORDER BY d.created_at DESC, d.id DESC`

	return s.queryDocuments(ctx, query, args...)
}

func (s *Store) queryDocuments(ctx context.Context, query string, args ...any) ([]billing.Document, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var docs []billing.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

// OpenInvoices returns a customer's allocatable invoices (open status,
// positive remaining), oldest due date first - the allocation engine's
// required input order.
func (s *Store) OpenInvoices(ctx context.Context, customerID finance.CustomerID) ([]billing.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryDocuments(ctx, `
		SELECT d.id, d.doc_type, d.customer_id, c.name, d.status, d.discount_percent,
		       d.subtotal, d.discount_amount, d.tax_amount, d.total,
		       d.paid_amount, d.remaining_amount, d.issue_date, d.due_date, d.created_at, d.updated_at
		FROM documents d JOIN customers c ON c.id = d.customer_id
		WHERE d.doc_type = 'invoice'
		  AND d.customer_id = ?
		  AND d.status IN ('validated', 'sent', 'partially_paid', 'overdue')
		  AND CAST(d.remaining_amount AS REAL) > 0
		ORDER BY d.due_date ASC, d.id ASC`, customerID)
}

// OutstandingInvoices returns every unpaid open invoice as the aging
// engine's input view.
func (s *Store) OutstandingInvoices(ctx context.Context) ([]receivables.OutstandingInvoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT d.id, d.customer_id, c.name, d.due_date, d.remaining_amount
		FROM documents d JOIN customers c ON c.id = d.customer_id
		WHERE d.doc_type = 'invoice'
		  AND d.status IN ('validated', 'sent', 'partially_paid', 'overdue')
		  AND CAST(d.remaining_amount AS REAL) > 0
		ORDER BY d.due_date ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query outstanding invoices: %w", err)
	}
	defer rows.Close()

	var invoices []receivables.OutstandingInvoice
	for rows.Next() {
		var inv receivables.OutstandingInvoice
		var dueDate, remaining string
		if err := rows.Scan(&inv.InvoiceID, &inv.CustomerID, &inv.CustomerName, &dueDate, &remaining); err != nil {
			return nil, err
		}
		inv.DueDate = parseTime(dueDate)
		if inv.Remaining, err = parseDecimal(remaining); err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

// CommittedOrderTotal sums the totals of a customer's committed orders,
// the acknowledged stand-in for current debt in credit validation.
// excludeID skips the order being re-validated after an edit.
func (s *Store) CommittedOrderTotal(ctx context.Context, customerID finance.CustomerID, excludeID *finance.DocumentID) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT total FROM documents
		WHERE doc_type = 'order' AND customer_id = ? AND status IN ('confirmed', 'validated')`
	args := []any{customerID}
	if excludeID != nil {
		query += ` AND id != ?`
		args = append(args, *excludeID)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to query committed orders: %w", err)
	}
	defer rows.Close()

	// Summed in Go so decimal precision survives.
	total := decimal.Zero
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return decimal.Zero, err
		}
		d, err := parseDecimal(t)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(d)
	}
	return total, rows.Err()
}

// SweepOverdue flips past-due open invoices to overdue and returns how
// many changed. Used by the background scheduler; idempotent.
func (s *Store) SweepOverdue(ctx context.Context, asOf time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE documents SET status = 'overdue', updated_at = ?
		WHERE doc_type = 'invoice'
		  AND status IN ('validated', 'sent', 'partially_paid')
		  AND CAST(remaining_amount AS REAL) > 0
		  AND due_date < ?`,
		nowString(), formatTime(asOf))
	if err != nil {
		return 0, fmt.Errorf("failed to sweep overdue invoices: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// =============================================================================
// PAYMENTS AND ALLOCATIONS
// =============================================================================

// SavePaymentWithAllocations persists a payment, its allocations, and
// the updated balances of the allocated invoices in ONE transaction.
// The invoices must already carry their post-allocation state
// (billing.ApplyAllocation); this method only writes.
func (s *Store) SavePaymentWithAllocations(ctx context.Context, payment *billing.Payment, invoices []*billing.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := nowString()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO payments (id, customer_id, amount, reference, received_at, confirmed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		payment.ID, payment.CustomerID, payment.Amount.String(), payment.Reference,
		formatTime(payment.ReceivedAt), payment.Confirmed, now)
	if err != nil {
		return fmt.Errorf("failed to save payment: %w", err)
	}

	for _, a := range payment.Allocations {
		id := a.ID
		if id == "" {
			id = uuid.NewString()
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO payment_allocations (id, payment_id, invoice_id, amount, created_at)
			VALUES (?, ?, ?, ?, ?)`,
			id, payment.ID, a.InvoiceID, a.Amount.String(), now)
		if err != nil {
			return fmt.Errorf("failed to save allocation: %w", err)
		}
	}

	for _, inv := range invoices {
		res, err := tx.ExecContext(ctx, `
			UPDATE documents SET paid_amount = ?, remaining_amount = ?, status = ?, updated_at = ?
			WHERE id = ?`,
			inv.PaidAmount.String(), inv.RemainingAmount.String(), inv.Status, now, inv.ID)
		if err != nil {
			return fmt.Errorf("failed to update invoice balance: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return finance.ErrInvoiceNotFound
		}
	}

	return tx.Commit()
}

// GetPayment loads a payment with its allocations.
func (s *Store) GetPayment(ctx context.Context, id finance.PaymentID) (*billing.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, customer_id, amount, reference, received_at, confirmed, created_at
		FROM payments WHERE id = ?`, id)

	var p billing.Payment
	var amount, receivedAt, createdAt string
	var reference sql.NullString
	err := row.Scan(&p.ID, &p.CustomerID, &amount, &reference, &receivedAt, &p.Confirmed, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, finance.ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load payment: %w", err)
	}
	p.Reference = reference.String
	if p.Amount, err = parseDecimal(amount); err != nil {
		return nil, err
	}
	p.ReceivedAt = parseTime(receivedAt)
	p.CreatedAt = parseTime(createdAt)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, payment_id, invoice_id, amount FROM payment_allocations
		WHERE payment_id = ? ORDER BY created_at ASC, id ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query allocations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var a billing.PaymentAllocation
		var amt string
		if err := rows.Scan(&a.ID, &a.PaymentID, &a.InvoiceID, &amt); err != nil {
			return nil, err
		}
		if a.Amount, err = parseDecimal(amt); err != nil {
			return nil, err
		}
		p.Allocations = append(p.Allocations, a)
	}
	return &p, rows.Err()
}

// Reset wipes every table. Dev/demo only; used by scenario loading.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{
		"payment_allocations", "payments", "document_lines", "documents",
		"product_cost_history", "promotions", "volume_tiers",
		"price_list_entries", "price_lists", "commercial_conditions",
		"customers", "products",
	}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to reset %s: %w", table, err)
		}
	}
	return nil
}
