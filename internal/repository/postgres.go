package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"festival-orders/internal/domain"
)

// NewPostgres wires a Repository backed by a pgx pool. Stock reservation maps
// to a single conditional UPDATE, order writes run inside transactions, and
// idempotency keys are claimed with ON CONFLICT DO NOTHING.
func NewPostgres(pool *pgxpool.Pool) *Repository {
	return &Repository{
		Tenants: &pgTenants{pool},
		Menu:    &pgMenu{pool},
		Orders:  &pgOrders{pool},
		Stats:   &pgStats{pool},
		Keys:    &pgKeys{pool},
	}
}

// --- TenantRepo ---

type pgTenants struct{ pool *pgxpool.Pool }

var _ TenantRepo = (*pgTenants)(nil)

func (r *pgTenants) Create(ctx context.Context, t *domain.Tenant) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO tenants (id, display_name, owner_id, is_open, wait_time_minutes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, t.ID, t.DisplayName, t.OwnerID, t.IsOpen, t.WaitTimeMinutes, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert tenant: %w", err)
	}
	return nil
}

func (r *pgTenants) Get(ctx context.Context, id string) (*domain.Tenant, error) {
	var t domain.Tenant
	err := r.pool.QueryRow(ctx, `
		SELECT id, display_name, owner_id, is_open, wait_time_minutes, created_at, updated_at
		FROM tenants WHERE id = $1
	`, id).Scan(&t.ID, &t.DisplayName, &t.OwnerID, &t.IsOpen, &t.WaitTimeMinutes, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select tenant: %w", err)
	}
	return &t, nil
}

func (r *pgTenants) List(ctx context.Context) ([]domain.Tenant, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, display_name, owner_id, is_open, wait_time_minutes, created_at, updated_at
		FROM tenants ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	var out []domain.Tenant
	for rows.Next() {
		var t domain.Tenant
		if err := rows.Scan(&t.ID, &t.DisplayName, &t.OwnerID, &t.IsOpen, &t.WaitTimeMinutes, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *pgTenants) Update(ctx context.Context, t *domain.Tenant) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE tenants SET display_name=$2, is_open=$3, wait_time_minutes=$4, updated_at=$5
		WHERE id=$1
	`, t.ID, t.DisplayName, t.IsOpen, t.WaitTimeMinutes, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update tenant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// --- MenuRepo ---

type pgMenu struct{ pool *pgxpool.Pool }

var _ MenuRepo = (*pgMenu)(nil)

func (r *pgMenu) AddItem(ctx context.Context, it *domain.MenuItem) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO menu_items (tenant_id, id, name, price, stock, category, image_url, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, it.TenantID, it.ID, it.Name, it.Price, it.Stock, it.Category, it.ImageURL, it.IsActive)
	if err != nil {
		return fmt.Errorf("insert menu item: %w", err)
	}
	return nil
}

func (r *pgMenu) UpdateItem(ctx context.Context, it *domain.MenuItem) error {
	// stock deliberately not in the column list: it moves only through the
	// ledger operations
	tag, err := r.pool.Exec(ctx, `
		UPDATE menu_items SET name=$3, price=$4, category=$5, image_url=$6, is_active=$7
		WHERE tenant_id=$1 AND id=$2
	`, it.TenantID, it.ID, it.Name, it.Price, it.Category, it.ImageURL, it.IsActive)
	if err != nil {
		return fmt.Errorf("update menu item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *pgMenu) GetItem(ctx context.Context, tenantID, itemID string) (*domain.MenuItem, error) {
	var it domain.MenuItem
	err := r.pool.QueryRow(ctx, `
		SELECT tenant_id, id, name, price, stock, category, image_url, is_active
		FROM menu_items WHERE tenant_id=$1 AND id=$2
	`, tenantID, itemID).Scan(&it.TenantID, &it.ID, &it.Name, &it.Price, &it.Stock, &it.Category, &it.ImageURL, &it.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select menu item: %w", err)
	}
	return &it, nil
}

func (r *pgMenu) List(ctx context.Context, tenantID string) ([]domain.MenuItem, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT tenant_id, id, name, price, stock, category, image_url, is_active
		FROM menu_items WHERE tenant_id=$1 ORDER BY id
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list menu: %w", err)
	}
	defer rows.Close()

	var out []domain.MenuItem
	for rows.Next() {
		var it domain.MenuItem
		if err := rows.Scan(&it.TenantID, &it.ID, &it.Name, &it.Price, &it.Stock, &it.Category, &it.ImageURL, &it.IsActive); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// ReserveStock is the conditional atomic decrement: one UPDATE guarded by
// stock >= qty. Zero rows affected means either a missing item or an
// insufficient stock; the follow-up existence check splits the two.
func (r *pgMenu) ReserveStock(ctx context.Context, tenantID, itemID string, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("%w: reserve quantity must be positive", domain.ErrValidation)
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE menu_items SET stock = stock - $3
		WHERE tenant_id=$1 AND id=$2 AND stock >= $3
	`, tenantID, itemID, qty)
	if err != nil {
		return fmt.Errorf("reserve stock: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	var exists bool
	if err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM menu_items WHERE tenant_id=$1 AND id=$2)
	`, tenantID, itemID).Scan(&exists); err != nil {
		return fmt.Errorf("reserve stock check: %w", err)
	}
	if !exists {
		return domain.ErrNotFound
	}
	return domain.ErrOutOfStock
}

func (r *pgMenu) ReleaseStock(ctx context.Context, tenantID, itemID string, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("%w: release quantity must be positive", domain.ErrValidation)
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE menu_items SET stock = stock + $3 WHERE tenant_id=$1 AND id=$2
	`, tenantID, itemID, qty)
	if err != nil {
		return fmt.Errorf("release stock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *pgMenu) SetStock(ctx context.Context, tenantID, itemID string, qty int) error {
	if qty < 0 {
		return fmt.Errorf("%w: stock must be >= 0", domain.ErrValidation)
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE menu_items SET stock=$3 WHERE tenant_id=$1 AND id=$2
	`, tenantID, itemID, qty)
	if err != nil {
		return fmt.Errorf("set stock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// --- OrderRepo ---

type pgOrders struct{ pool *pgxpool.Pool }

var _ OrderRepo = (*pgOrders)(nil)

func (r *pgOrders) Create(ctx context.Context, o *domain.Order) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO orders
			(tenant_id, id, pickup_number, customer_class, customer_name, note,
			 total_price, status, stock_released, revenue_counted, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, o.TenantID, o.ID, o.PickupNumber, o.Customer.Class, o.Customer.Name, o.Note,
		o.TotalPrice, string(o.Status), o.StockReleased, o.RevenueCounted, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	for _, it := range o.Items {
		_, err = tx.Exec(ctx, `
			INSERT INTO order_items (tenant_id, order_id, menu_item_id, name, quantity, unit_price)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, o.TenantID, o.ID, it.MenuItemID, it.Name, it.Quantity, it.UnitPrice)
		if err != nil {
			return fmt.Errorf("insert order item %s: %w", it.Name, err)
		}
	}
	return tx.Commit(ctx)
}

const orderColumns = `
	tenant_id, id, pickup_number, customer_class, customer_name, note,
	total_price, status, stock_released, revenue_counted, created_at, updated_at`

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var o domain.Order
	var status string
	err := row.Scan(&o.TenantID, &o.ID, &o.PickupNumber, &o.Customer.Class, &o.Customer.Name, &o.Note,
		&o.TotalPrice, &status, &o.StockReleased, &o.RevenueCounted, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	o.Status = domain.OrderStatus(status)
	return &o, nil
}

func (r *pgOrders) loadItems(ctx context.Context, o *domain.Order) error {
	rows, err := r.pool.Query(ctx, `
		SELECT menu_item_id, name, quantity, unit_price
		FROM order_items WHERE tenant_id=$1 AND order_id=$2
		ORDER BY menu_item_id
	`, o.TenantID, o.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var it domain.OrderItem
		if err := rows.Scan(&it.MenuItemID, &it.Name, &it.Quantity, &it.UnitPrice); err != nil {
			return err
		}
		o.Items = append(o.Items, it)
	}
	return rows.Err()
}

func (r *pgOrders) Get(ctx context.Context, tenantID, orderID string) (*domain.Order, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE tenant_id=$1 AND id=$2`, tenantID, orderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select order: %w", err)
	}
	if err := r.loadItems(ctx, o); err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	return o, nil
}

// Update persists only the mutable order columns; items and totals are
// immutable after creation.
func (r *pgOrders) Update(ctx context.Context, o *domain.Order) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE orders SET status=$3, stock_released=$4, revenue_counted=$5, updated_at=$6
		WHERE tenant_id=$1 AND id=$2
	`, o.TenantID, o.ID, string(o.Status), o.StockReleased, o.RevenueCounted, o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *pgOrders) list(ctx context.Context, query string, args ...any) ([]domain.Order, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var out []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if err := r.loadItems(ctx, &out[i]); err != nil {
			return nil, fmt.Errorf("load order items: %w", err)
		}
	}
	return out, nil
}

func (r *pgOrders) List(ctx context.Context, tenantID string) ([]domain.Order, error) {
	return r.list(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE tenant_id=$1 ORDER BY created_at, id`, tenantID)
}

func (r *pgOrders) ListPaidByDate(ctx context.Context, tenantID, date string) ([]domain.Order, error) {
	return r.list(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE tenant_id=$1 AND status='paid' AND (updated_at AT TIME ZONE 'UTC')::date = $2::date
		ORDER BY created_at, id
	`, tenantID, date)
}

func (r *pgOrders) DeleteAll(ctx context.Context, tenantID string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)
	for _, q := range []string{
		`DELETE FROM order_status_log WHERE tenant_id=$1`,
		`DELETE FROM order_items WHERE tenant_id=$1`,
		`DELETE FROM orders WHERE tenant_id=$1`,
	} {
		if _, err := tx.Exec(ctx, q, tenantID); err != nil {
			return fmt.Errorf("clear orders: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func (r *pgOrders) NextPickupNumber(ctx context.Context, tenantID, date string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		INSERT INTO pickup_counters (tenant_id, day, last_number)
		VALUES ($1, $2, 1)
		ON CONFLICT (tenant_id, day)
		DO UPDATE SET last_number = pickup_counters.last_number + 1
		RETURNING last_number
	`, tenantID, date).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("next pickup number: %w", err)
	}
	return n, nil
}

func (r *pgOrders) AppendStatusLog(ctx context.Context, tenantID, orderID string, st domain.OrderStatus, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO order_status_log (tenant_id, order_id, status, changed_at)
		VALUES ($1,$2,$3,$4)
	`, tenantID, orderID, string(st), at)
	if err != nil {
		return fmt.Errorf("append status log: %w", err)
	}
	return nil
}

func (r *pgOrders) Timeline(ctx context.Context, tenantID, orderID string) ([]domain.StatusChange, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT order_id, status, changed_at FROM order_status_log
		WHERE tenant_id=$1 AND order_id=$2 ORDER BY changed_at, id
	`, tenantID, orderID)
	if err != nil {
		return nil, fmt.Errorf("order timeline: %w", err)
	}
	defer rows.Close()

	var out []domain.StatusChange
	for rows.Next() {
		var c domain.StatusChange
		var status string
		if err := rows.Scan(&c.OrderID, &status, &c.ChangedAt); err != nil {
			return nil, err
		}
		c.Status = domain.OrderStatus(status)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, domain.ErrNotFound
	}
	return out, nil
}

// --- StatsRepo ---

type pgStats struct{ pool *pgxpool.Pool }

var _ StatsRepo = (*pgStats)(nil)

func (r *pgStats) AddSale(ctx context.Context, o *domain.Order, date string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO daily_sales (tenant_id, day, revenue, order_count)
		VALUES ($1, $2, $3, 1)
		ON CONFLICT (tenant_id, day)
		DO UPDATE SET revenue = daily_sales.revenue + EXCLUDED.revenue,
		              order_count = daily_sales.order_count + 1
	`, o.TenantID, date, o.TotalPrice)
	if err != nil {
		return fmt.Errorf("upsert daily sales: %w", err)
	}
	for _, it := range o.Items {
		_, err = tx.Exec(ctx, `
			INSERT INTO daily_item_sales (tenant_id, day, item_name, quantity)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (tenant_id, day, item_name)
			DO UPDATE SET quantity = daily_item_sales.quantity + EXCLUDED.quantity
		`, o.TenantID, date, it.Name, it.Quantity)
		if err != nil {
			return fmt.Errorf("upsert item sales: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func (r *pgStats) Range(ctx context.Context, tenantID, from, to string) ([]domain.DailySalesRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT day::text, revenue, order_count FROM daily_sales
		WHERE tenant_id=$1 AND day BETWEEN $2::date AND $3::date
		ORDER BY day
	`, tenantID, from, to)
	if err != nil {
		return nil, fmt.Errorf("select daily sales: %w", err)
	}
	defer rows.Close()

	var out []domain.DailySalesRecord
	for rows.Next() {
		rec := domain.DailySalesRecord{TenantID: tenantID, ItemSales: make(map[string]int)}
		if err := rows.Scan(&rec.Date, &rec.Revenue, &rec.OrderCount); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		irows, err := r.pool.Query(ctx, `
			SELECT item_name, quantity FROM daily_item_sales
			WHERE tenant_id=$1 AND day=$2::date
		`, tenantID, out[i].Date)
		if err != nil {
			return nil, fmt.Errorf("select item sales: %w", err)
		}
		for irows.Next() {
			var name string
			var qty int
			if err := irows.Scan(&name, &qty); err != nil {
				irows.Close()
				return nil, err
			}
			out[i].ItemSales[name] = qty
		}
		if err := irows.Err(); err != nil {
			irows.Close()
			return nil, err
		}
		irows.Close()
	}
	return out, nil
}

func (r *pgStats) Reset(ctx context.Context, tenantID, date string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)
	if _, err := tx.Exec(ctx, `DELETE FROM daily_item_sales WHERE tenant_id=$1 AND day=$2::date`, tenantID, date); err != nil {
		return fmt.Errorf("reset item sales: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM daily_sales WHERE tenant_id=$1 AND day=$2::date`, tenantID, date); err != nil {
		return fmt.Errorf("reset daily sales: %w", err)
	}
	return tx.Commit(ctx)
}

// --- IdempotencyRepo ---

type pgKeys struct{ pool *pgxpool.Pool }

var _ IdempotencyRepo = (*pgKeys)(nil)

func (r *pgKeys) Lookup(ctx context.Context, key string) (string, bool, error) {
	var ref string
	err := r.pool.QueryRow(ctx, `SELECT ref FROM idempotency_keys WHERE key=$1`, key).Scan(&ref)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("lookup idempotency key: %w", err)
	}
	return ref, true, nil
}

func (r *pgKeys) Record(ctx context.Context, key, ref string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO idempotency_keys (key, ref, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO NOTHING
	`, key, ref)
	if err != nil {
		return fmt.Errorf("record idempotency key: %w", err)
	}
	return nil
}
