package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"chesapeake-backend/internal/domain"
	"chesapeake-backend/internal/metrics"
	"chesapeake-backend/internal/usecase"
)

const (
	codeUndefinedColumn  = "42703"
	codeNoConflictTarget = "42P10"
	codeUniqueViolation  = "23505"

	paymentIntentUniqueIndex = "orders_payment_intent_id_key"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS orders (
		id TEXT PRIMARY KEY,
		display_order_id TEXT,
		order_type TEXT,
		payment_intent_id TEXT,
		total_cents BIGINT NOT NULL DEFAULT 0,
		shipping_cents BIGINT NOT NULL DEFAULT 0,
		currency TEXT,
		customer_email TEXT,
		shipping_name TEXT,
		shipping_address TEXT,
		card_last4 TEXT,
		card_brand TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS orders_payment_intent_id_key ON orders (payment_intent_id) WHERE payment_intent_id IS NOT NULL;`,
	`CREATE UNIQUE INDEX IF NOT EXISTS orders_display_order_id_key ON orders (display_order_id) WHERE display_order_id IS NOT NULL AND display_order_id <> '';`,
	`CREATE TABLE IF NOT EXISTS order_items (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL,
		product_id TEXT NOT NULL,
		quantity INT NOT NULL,
		price_cents BIGINT NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS order_counters (
		year INT PRIMARY KEY,
		counter INT NOT NULL DEFAULT 0
	);`,
	`CREATE TABLE IF NOT EXISTS products (
		id TEXT PRIMARY KEY,
		stripe_product_id TEXT,
		name TEXT,
		price_cents BIGINT,
		quantity_available INT,
		is_sold BOOLEAN NOT NULL DEFAULT FALSE
	);`,
	`CREATE TABLE IF NOT EXISTS custom_orders (
		id TEXT PRIMARY KEY,
		display_custom_order_id TEXT,
		customer_name TEXT,
		customer_email TEXT,
		description TEXT,
		image_url TEXT,
		amount_cents BIGINT NOT NULL DEFAULT 0,
		shipping_cents BIGINT NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'pending',
		payment_link TEXT,
		payment_intent_id TEXT,
		stripe_session_id TEXT,
		paid_at TIMESTAMPTZ,
		shipping_name TEXT,
		shipping_address TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
}

type orderColumn struct {
	name     string
	required bool
	value    func(*domain.Order) any
}

// orderColumns is the full header shape; required columns are the ones every
// deployed orders table is known to carry.
var orderColumns = []orderColumn{
	{"id", true, func(o *domain.Order) any { return o.ID }},
	{"display_order_id", true, func(o *domain.Order) any { return o.DisplayOrderID }},
	{"order_type", false, func(o *domain.Order) any { return nullString(string(o.OrderType)) }},
	{"payment_intent_id", true, func(o *domain.Order) any { return nullString(o.PaymentIntentID) }},
	{"total_cents", true, func(o *domain.Order) any { return o.TotalCents }},
	{"shipping_cents", true, func(o *domain.Order) any { return o.ShippingCents }},
	{"currency", false, func(o *domain.Order) any { return o.Currency }},
	{"customer_email", true, func(o *domain.Order) any { return o.CustomerEmail }},
	{"shipping_name", true, func(o *domain.Order) any { return o.ShippingName }},
	{"shipping_address", true, func(o *domain.Order) any { return encodeAddress(o.ShippingAddress) }},
	{"card_last4", false, func(o *domain.Order) any { return o.CardLast4 }},
	{"card_brand", false, func(o *domain.Order) any { return o.CardBrand }},
	{"created_at", false, func(o *domain.Order) any { return o.CreatedAt }},
}

type PostgresRepo struct {
	db  *sql.DB
	log *zap.Logger

	mu      sync.RWMutex
	columns []orderColumn
}

func NewPostgresRepo(ctx context.Context, dsn string, log *zap.Logger) (*PostgresRepo, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	r := newPostgresRepo(db, log)
	if err := r.init(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if err := r.loadOrderColumns(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

func newPostgresRepo(db *sql.DB, log *zap.Logger) *PostgresRepo {
	if log == nil {
		log = zap.NewNop()
	}
	return &PostgresRepo{db: db, log: log, columns: orderColumns}
}

func (r *PostgresRepo) Close() error {
	return r.db.Close()
}

func (r *PostgresRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *PostgresRepo) init(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// loadOrderColumns resolves, once, which header columns the live orders table supports.
func (r *PostgresRepo) loadOrderColumns(ctx context.Context) error {
	rows, err := r.db.QueryContext(ctx, `SELECT column_name FROM information_schema.columns WHERE table_schema = current_schema() AND table_name = 'orders'`)
	if err != nil {
		return fmt.Errorf("failed to read orders columns: %w", err)
	}
	defer rows.Close()
	have := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return fmt.Errorf("failed to scan orders column: %w", err)
		}
		have[name] = true
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read orders columns: %w", err)
	}

	supported := make([]orderColumn, 0, len(orderColumns))
	var skipped []string
	for _, c := range orderColumns {
		switch {
		case have[c.name]:
			supported = append(supported, c)
		case c.required:
			return fmt.Errorf("orders table is missing required column %q", c.name)
		default:
			skipped = append(skipped, c.name)
		}
	}
	if len(skipped) > 0 {
		r.log.Warn("orders table lacks optional columns, they will not be written", zap.Strings("columns", skipped))
	}
	r.setColumns(supported)
	return nil
}

func (r *PostgresRepo) setColumns(cols []orderColumn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.columns = cols
}

func (r *PostgresRepo) currentColumns() []orderColumn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.columns
}

func requiredColumns() []orderColumn {
	out := make([]orderColumn, 0, len(orderColumns))
	for _, c := range orderColumns {
		if c.required {
			out = append(out, c)
		}
	}
	return out
}

func (r *PostgresRepo) FindOrderByPaymentIntent(ctx context.Context, paymentIntentID string) (*domain.Order, bool, error) {
	var (
		o       domain.Order
		display sql.NullString
	)
	err := r.db.QueryRowContext(ctx, `SELECT id, display_order_id, total_cents FROM orders WHERE payment_intent_id = $1 LIMIT 1`, paymentIntentID).
		Scan(&o.ID, &display, &o.TotalCents)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	o.DisplayOrderID = display.String
	o.PaymentIntentID = paymentIntentID
	return &o, true, nil
}

func (r *PostgresRepo) InsertOrder(ctx context.Context, o *domain.Order) error {
	err := r.insertOrder(ctx, o, r.currentColumns())
	if pqCode(err) == codeUndefinedColumn {
		// The table changed shape after startup; keep the order by writing only the required columns.
		r.log.Warn("orders insert hit an undefined column, retrying with required columns",
			zap.String("order_id", o.ID),
			zap.Error(err),
		)
		metrics.RecordStorageFallback("schema_columns")
		r.setColumns(requiredColumns())
		err = r.insertOrder(ctx, o, r.currentColumns())
	}
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == codeUniqueViolation && pqErr.Constraint == paymentIntentUniqueIndex {
		return usecase.ErrDuplicateOrder
	}
	return err
}

func (r *PostgresRepo) insertOrder(ctx context.Context, o *domain.Order, cols []orderColumn) error {
	names := make([]string, len(cols))
	marks := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, c := range cols {
		names[i] = c.name
		marks[i] = "$" + strconv.Itoa(i+1)
		args[i] = c.value(o)
	}
	q := "INSERT INTO orders (" + strings.Join(names, ",") + ") VALUES (" + strings.Join(marks, ",") + ")"
	_, err := r.db.ExecContext(ctx, q, args...)
	return err
}

func (r *PostgresRepo) InsertOrderItem(ctx context.Context, it *domain.OrderItem) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO order_items (id,order_id,product_id,quantity,price_cents) VALUES ($1,$2,$3,$4,$5)`,
		it.ID, it.OrderID, it.ProductID, it.Quantity, it.PriceCents)
	return err
}

const counterUpsert = `INSERT INTO order_counters (year, counter) VALUES ($1, 1)
	ON CONFLICT (year) DO UPDATE SET counter = order_counters.counter + 1
	RETURNING counter`

func (r *PostgresRepo) NextYearCounter(ctx context.Context, year int) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, counterUpsert, year).Scan(&n)
	if err == nil {
		return n, nil
	}
	if pqCode(err) != codeNoConflictTarget {
		return 0, err
	}
	r.log.Warn("order_counters has no unique year constraint, using locked counter update", zap.Int("year", year))
	metrics.RecordStorageFallback("counter_lock")
	return r.nextYearCounterLocked(ctx, year)
}

// nextYearCounterLocked serializes callers on the counter table inside one transaction.
func (r *PostgresRepo) nextYearCounterLocked(ctx context.Context, year int) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `LOCK TABLE order_counters IN SHARE ROW EXCLUSIVE MODE`); err != nil {
		return 0, err
	}
	var cur int
	err = tx.QueryRowContext(ctx, `SELECT counter FROM order_counters WHERE year = $1 ORDER BY counter DESC LIMIT 1 FOR UPDATE`, year).Scan(&cur)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := tx.ExecContext(ctx, `INSERT INTO order_counters (year, counter) VALUES ($1, $2)`, year, 1); err != nil {
			return 0, err
		}
	case err != nil:
		return 0, err
	default:
		if _, err := tx.ExecContext(ctx, `UPDATE order_counters SET counter = $2 WHERE year = $1`, year, cur+1); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return cur + 1, nil
}

const decrementInventory = `UPDATE products SET
		quantity_available = GREATEST(COALESCE(quantity_available, 0) - $2, 0),
		is_sold = CASE WHEN quantity_available IS NULL OR quantity_available - $2 <= 0 THEN TRUE ELSE is_sold END
	WHERE id = (
		SELECT id FROM products
		WHERE stripe_product_id = $1 OR id = $1
		ORDER BY (stripe_product_id = $1) DESC NULLS LAST
		LIMIT 1
	)`

func (r *PostgresRepo) DecrementInventory(ctx context.Context, productKey string, qty int) (bool, error) {
	res, err := r.db.ExecContext(ctx, decrementInventory, productKey, qty)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *PostgresRepo) GetCustomOrder(ctx context.Context, id string) (*domain.CustomOrder, bool, error) {
	var (
		co                                                    domain.CustomOrder
		display, name, email, desc, img, link, pi, cs, sname sql.NullString
		addr                                                  sql.NullString
		paidAt                                                sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, `SELECT id,display_custom_order_id,customer_name,customer_email,description,image_url,amount_cents,shipping_cents,status,payment_link,payment_intent_id,stripe_session_id,paid_at,shipping_name,shipping_address,created_at
		FROM custom_orders WHERE id=$1`, id).
		Scan(&co.ID, &display, &name, &email, &desc, &img, &co.AmountCents, &co.ShippingCents, (*string)(&co.Status), &link, &pi, &cs, &paidAt, &sname, &addr, &co.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	co.DisplayCustomOrderID = display.String
	co.CustomerName = name.String
	co.CustomerEmail = email.String
	co.Description = desc.String
	co.ImageURL = img.String
	co.PaymentLink = link.String
	co.PaymentIntentID = pi.String
	co.StripeSessionID = cs.String
	co.ShippingName = sname.String
	co.ShippingAddress = decodeAddress(addr.String)
	if paidAt.Valid {
		t := paidAt.Time
		co.PaidAt = &t
	}
	return &co, true, nil
}

// markCustomOrderPaid only fills payment identifiers and paid_at when they are still empty.
const markCustomOrderPaid = `UPDATE custom_orders SET
		status = 'paid',
		payment_intent_id = COALESCE(NULLIF(payment_intent_id, ''), $2),
		stripe_session_id = COALESCE(NULLIF(stripe_session_id, ''), $3),
		paid_at = COALESCE(paid_at, $4),
		shipping_name = $5,
		shipping_address = $6
	WHERE id = $1`

func (r *PostgresRepo) MarkCustomOrderPaid(ctx context.Context, id string, p domain.CustomOrderPayment) error {
	res, err := r.db.ExecContext(ctx, markCustomOrderPaid,
		id, nullString(p.PaymentIntentID), nullString(p.SessionID), p.PaidAt, p.ShippingName, encodeAddress(p.ShippingAddress))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return usecase.ErrNotFound("custom order " + id)
	}
	return nil
}

func (r *PostgresRepo) WithBackfillTx(ctx context.Context, fn func(usecase.BackfillTx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `LOCK TABLE order_counters IN SHARE ROW EXCLUSIVE MODE`); err != nil {
		return fmt.Errorf("lock order_counters: %w", err)
	}
	if err := fn(&pgBackfillTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

type pgBackfillTx struct {
	tx *sql.Tx
}

func (t *pgBackfillTx) YearCounters(ctx context.Context) (map[int]int, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT year, counter FROM order_counters`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[int]int{}
	for rows.Next() {
		var y, c int
		if err := rows.Scan(&y, &c); err != nil {
			return nil, err
		}
		if c > out[y] {
			out[y] = c
		}
	}
	return out, rows.Err()
}

func (t *pgBackfillTx) OrdersMissingDisplayID(ctx context.Context) ([]usecase.OrderStub, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT id, created_at FROM orders WHERE display_order_id IS NULL OR display_order_id = '' ORDER BY created_at ASC, id ASC FOR UPDATE`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []usecase.OrderStub
	for rows.Next() {
		var s usecase.OrderStub
		if err := rows.Scan(&s.ID, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (t *pgBackfillTx) SetDisplayOrderID(ctx context.Context, orderID, displayID string) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE orders SET display_order_id = $2 WHERE id = $1`, orderID, displayID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return usecase.ErrNotFound("order " + orderID)
	}
	return nil
}

// SetYearCounter runs under the table lock taken by WithBackfillTx, so update-then-insert is safe.
func (t *pgBackfillTx) SetYearCounter(ctx context.Context, year, counter int) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE order_counters SET counter = $2 WHERE year = $1`, year, counter)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	_, err = t.tx.ExecContext(ctx, `INSERT INTO order_counters (year, counter) VALUES ($1, $2)`, year, counter)
	return err
}

func pqCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func encodeAddress(a domain.Address) string {
	if a.IsZero() {
		return ""
	}
	b, _ := json.Marshal(a)
	return string(b)
}

func decodeAddress(s string) domain.Address {
	var a domain.Address
	if s == "" {
		return a
	}
	_ = json.Unmarshal([]byte(s), &a)
	return a
}
