package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"festival-orders/internal/domain"
)

// MemoryStore keeps everything in maps behind one RWMutex; the mutex is the
// store's transactional primitive, so check-and-decrement is a single
// critical section. The per-concern repos below are thin views over it.
type MemoryStore struct {
	mu sync.RWMutex

	tenants map[string]domain.Tenant
	menus   map[string]map[string]domain.MenuItem // tenant -> item id -> item
	orders  map[string]map[string]domain.Order    // tenant -> order id -> order
	logs    map[string][]domain.StatusChange      // tenant|order -> log
	pickups map[string]int                        // tenant|date -> last number
	sales   map[string]*domain.DailySalesRecord   // tenant|date -> record
	keys    map[string]string                     // idempotency key -> ref
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tenants: make(map[string]domain.Tenant),
		menus:   make(map[string]map[string]domain.MenuItem),
		orders:  make(map[string]map[string]domain.Order),
		logs:    make(map[string][]domain.StatusChange),
		pickups: make(map[string]int),
		sales:   make(map[string]*domain.DailySalesRecord),
		keys:    make(map[string]string),
	}
}

// NewMemory wires a Repository backed by a single MemoryStore.
func NewMemory() *Repository {
	s := NewMemoryStore()
	return &Repository{
		Tenants: &memoryTenants{s},
		Menu:    &memoryMenu{s},
		Orders:  &memoryOrders{s},
		Stats:   &memoryStats{s},
		Keys:    &memoryKeys{s},
	}
}

func key2(a, b string) string { return a + "|" + b }

// --- TenantRepo ---

type memoryTenants struct{ s *MemoryStore }

var _ TenantRepo = (*memoryTenants)(nil)

func (r *memoryTenants) Create(ctx context.Context, t *domain.Tenant) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.tenants[t.ID]; ok {
		return fmt.Errorf("%w: tenant %s already exists", domain.ErrValidation, t.ID)
	}
	r.s.tenants[t.ID] = *t
	return nil
}

func (r *memoryTenants) Get(ctx context.Context, id string) (*domain.Tenant, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	t, ok := r.s.tenants[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := t
	return &cp, nil
}

func (r *memoryTenants) List(ctx context.Context) ([]domain.Tenant, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]domain.Tenant, 0, len(r.s.tenants))
	for _, t := range r.s.tenants {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memoryTenants) Update(ctx context.Context, t *domain.Tenant) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.tenants[t.ID]; !ok {
		return domain.ErrNotFound
	}
	r.s.tenants[t.ID] = *t
	return nil
}

// --- MenuRepo ---

type memoryMenu struct{ s *MemoryStore }

var _ MenuRepo = (*memoryMenu)(nil)

func (r *memoryMenu) AddItem(ctx context.Context, it *domain.MenuItem) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	menu, ok := r.s.menus[it.TenantID]
	if !ok {
		menu = make(map[string]domain.MenuItem)
		r.s.menus[it.TenantID] = menu
	}
	if _, exists := menu[it.ID]; exists {
		return fmt.Errorf("%w: menu item %s already exists", domain.ErrValidation, it.ID)
	}
	menu[it.ID] = *it
	return nil
}

func (r *memoryMenu) UpdateItem(ctx context.Context, it *domain.MenuItem) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	menu := r.s.menus[it.TenantID]
	old, ok := menu[it.ID]
	if !ok {
		return domain.ErrNotFound
	}
	// stock moves only through the ledger operations below
	it.Stock = old.Stock
	menu[it.ID] = *it
	return nil
}

func (r *memoryMenu) GetItem(ctx context.Context, tenantID, itemID string) (*domain.MenuItem, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	it, ok := r.s.menus[tenantID][itemID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := it
	return &cp, nil
}

func (r *memoryMenu) List(ctx context.Context, tenantID string) ([]domain.MenuItem, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]domain.MenuItem, 0, len(r.s.menus[tenantID]))
	for _, it := range r.s.menus[tenantID] {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memoryMenu) ReserveStock(ctx context.Context, tenantID, itemID string, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("%w: reserve quantity must be positive", domain.ErrValidation)
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	it, ok := r.s.menus[tenantID][itemID]
	if !ok {
		return domain.ErrNotFound
	}
	if it.Stock < qty {
		return domain.ErrOutOfStock
	}
	it.Stock -= qty
	r.s.menus[tenantID][itemID] = it
	return nil
}

func (r *memoryMenu) ReleaseStock(ctx context.Context, tenantID, itemID string, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("%w: release quantity must be positive", domain.ErrValidation)
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	it, ok := r.s.menus[tenantID][itemID]
	if !ok {
		return domain.ErrNotFound
	}
	it.Stock += qty
	r.s.menus[tenantID][itemID] = it
	return nil
}

func (r *memoryMenu) SetStock(ctx context.Context, tenantID, itemID string, qty int) error {
	if qty < 0 {
		return fmt.Errorf("%w: stock must be >= 0", domain.ErrValidation)
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	it, ok := r.s.menus[tenantID][itemID]
	if !ok {
		return domain.ErrNotFound
	}
	it.Stock = qty
	r.s.menus[tenantID][itemID] = it
	return nil
}

// --- OrderRepo ---

type memoryOrders struct{ s *MemoryStore }

var _ OrderRepo = (*memoryOrders)(nil)

func copyOrder(o domain.Order) domain.Order {
	cp := o
	cp.Items = append([]domain.OrderItem(nil), o.Items...)
	return cp
}

func (r *memoryOrders) Create(ctx context.Context, o *domain.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	byID, ok := r.s.orders[o.TenantID]
	if !ok {
		byID = make(map[string]domain.Order)
		r.s.orders[o.TenantID] = byID
	}
	if _, exists := byID[o.ID]; exists {
		return fmt.Errorf("%w: order %s already exists", domain.ErrValidation, o.ID)
	}
	byID[o.ID] = copyOrder(*o)
	return nil
}

func (r *memoryOrders) Get(ctx context.Context, tenantID, orderID string) (*domain.Order, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	o, ok := r.s.orders[tenantID][orderID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := copyOrder(o)
	return &cp, nil
}

func (r *memoryOrders) Update(ctx context.Context, o *domain.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.orders[o.TenantID][o.ID]; !ok {
		return domain.ErrNotFound
	}
	r.s.orders[o.TenantID][o.ID] = copyOrder(*o)
	return nil
}

func (r *memoryOrders) List(ctx context.Context, tenantID string) ([]domain.Order, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]domain.Order, 0, len(r.s.orders[tenantID]))
	for _, o := range r.s.orders[tenantID] {
		out = append(out, copyOrder(o))
	}
	sortOrders(out)
	return out, nil
}

func (r *memoryOrders) ListPaidByDate(ctx context.Context, tenantID, date string) ([]domain.Order, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.Order
	for _, o := range r.s.orders[tenantID] {
		if o.Status == domain.StatusPaid && domain.DateOf(o.UpdatedAt) == date {
			out = append(out, copyOrder(o))
		}
	}
	sortOrders(out)
	return out, nil
}

func sortOrders(out []domain.Order) {
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
}

func (r *memoryOrders) DeleteAll(ctx context.Context, tenantID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id := range r.s.orders[tenantID] {
		delete(r.s.logs, key2(tenantID, id))
	}
	delete(r.s.orders, tenantID)
	return nil
}

func (r *memoryOrders) NextPickupNumber(ctx context.Context, tenantID, date string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	k := key2(tenantID, date)
	r.s.pickups[k]++
	return r.s.pickups[k], nil
}

func (r *memoryOrders) AppendStatusLog(ctx context.Context, tenantID, orderID string, st domain.OrderStatus, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	k := key2(tenantID, orderID)
	r.s.logs[k] = append(r.s.logs[k], domain.StatusChange{OrderID: orderID, Status: st, ChangedAt: at})
	return nil
}

func (r *memoryOrders) Timeline(ctx context.Context, tenantID, orderID string) ([]domain.StatusChange, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	log, ok := r.s.logs[key2(tenantID, orderID)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return append([]domain.StatusChange(nil), log...), nil
}

// --- StatsRepo ---

type memoryStats struct{ s *MemoryStore }

var _ StatsRepo = (*memoryStats)(nil)

func (r *memoryStats) AddSale(ctx context.Context, o *domain.Order, date string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	k := key2(o.TenantID, date)
	rec, ok := r.s.sales[k]
	if !ok {
		rec = &domain.DailySalesRecord{TenantID: o.TenantID, Date: date, ItemSales: make(map[string]int)}
		r.s.sales[k] = rec
	}
	rec.Revenue += o.TotalPrice
	rec.OrderCount++
	for _, it := range o.Items {
		rec.ItemSales[it.Name] += it.Quantity
	}
	return nil
}

func (r *memoryStats) Range(ctx context.Context, tenantID, from, to string) ([]domain.DailySalesRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.DailySalesRecord
	for _, rec := range r.s.sales {
		if rec.TenantID != tenantID || rec.Date < from || rec.Date > to {
			continue
		}
		cp := *rec
		cp.ItemSales = make(map[string]int, len(rec.ItemSales))
		for name, n := range rec.ItemSales {
			cp.ItemSales[name] = n
		}
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

func (r *memoryStats) Reset(ctx context.Context, tenantID, date string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.sales, key2(tenantID, date))
	return nil
}

// --- IdempotencyRepo ---

type memoryKeys struct{ s *MemoryStore }

var _ IdempotencyRepo = (*memoryKeys)(nil)

func (r *memoryKeys) Lookup(ctx context.Context, key string) (string, bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	ref, ok := r.s.keys[key]
	return ref, ok, nil
}

func (r *memoryKeys) Record(ctx context.Context, key, ref string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.keys[key]; !ok {
		r.s.keys[key] = ref
	}
	return nil
}
