package repo

import (
	"context"
	"sort"
	"sync"

	"chesapeake-backend/internal/domain"
	"chesapeake-backend/internal/usecase"
)

// MemoryRepo implements every store the reconciliation core needs. It backs local
// development without a database and the use case tests.
type MemoryRepo struct {
	mu           sync.RWMutex
	orders       map[string]*domain.Order
	byIntent     map[string]string
	items        map[string][]domain.OrderItem
	counters     map[int]int
	products     map[string]*domain.Product
	customOrders map[string]*domain.CustomOrder
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		orders:       make(map[string]*domain.Order),
		byIntent:     make(map[string]string),
		items:        make(map[string][]domain.OrderItem),
		counters:     make(map[int]int),
		products:     make(map[string]*domain.Product),
		customOrders: make(map[string]*domain.CustomOrder),
	}
}

func (r *MemoryRepo) FindOrderByPaymentIntent(_ context.Context, paymentIntentID string) (*domain.Order, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byIntent[paymentIntentID]
	if !ok {
		return nil, false, nil
	}
	cp := *r.orders[id]
	return &cp, true, nil
}

func (r *MemoryRepo) InsertOrder(_ context.Context, o *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if o.PaymentIntentID != "" {
		if _, ok := r.byIntent[o.PaymentIntentID]; ok {
			return usecase.ErrDuplicateOrder
		}
	}
	if _, ok := r.orders[o.ID]; ok {
		return usecase.ErrConflict("order id " + o.ID + " already used")
	}
	if o.DisplayOrderID != "" {
		for _, existing := range r.orders {
			if existing.DisplayOrderID == o.DisplayOrderID {
				return usecase.ErrConflict("display order id " + o.DisplayOrderID + " already used")
			}
		}
	}
	cp := *o
	r.orders[o.ID] = &cp
	if o.PaymentIntentID != "" {
		r.byIntent[o.PaymentIntentID] = o.ID
	}
	return nil
}

func (r *MemoryRepo) InsertOrderItem(_ context.Context, it *domain.OrderItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orders[it.OrderID]; !ok {
		return usecase.ErrNotFound("order " + it.OrderID)
	}
	r.items[it.OrderID] = append(r.items[it.OrderID], *it)
	return nil
}

func (r *MemoryRepo) NextYearCounter(_ context.Context, year int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters[year]++
	return r.counters[year], nil
}

func (r *MemoryRepo) DecrementInventory(_ context.Context, productKey string, qty int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.matchProduct(productKey)
	if p == nil {
		return false, nil
	}
	p.Decrement(qty)
	return true, nil
}

// matchProduct prefers the provider product id and falls back to the internal id.
func (r *MemoryRepo) matchProduct(key string) *domain.Product {
	ids := make([]string, 0, len(r.products))
	for id := range r.products {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if p := r.products[id]; p.StripeProductID != "" && p.StripeProductID == key {
			return p
		}
	}
	return r.products[key]
}

func (r *MemoryRepo) GetCustomOrder(_ context.Context, id string) (*domain.CustomOrder, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	co, ok := r.customOrders[id]
	if !ok {
		return nil, false, nil
	}
	cp := *co
	return &cp, true, nil
}

func (r *MemoryRepo) MarkCustomOrderPaid(_ context.Context, id string, p domain.CustomOrderPayment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	co, ok := r.customOrders[id]
	if !ok {
		return usecase.ErrNotFound("custom order " + id)
	}
	co.Status = domain.CustomOrderPaid
	if co.PaymentIntentID == "" {
		co.PaymentIntentID = p.PaymentIntentID
	}
	if co.StripeSessionID == "" {
		co.StripeSessionID = p.SessionID
	}
	if co.PaidAt == nil {
		at := p.PaidAt
		co.PaidAt = &at
	}
	co.ShippingName = p.ShippingName
	co.ShippingAddress = p.ShippingAddress
	return nil
}

func (r *MemoryRepo) WithBackfillTx(ctx context.Context, fn func(usecase.BackfillTx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx := &memBackfillTx{r: r, displayIDs: map[string]string{}, counters: map[int]int{}}
	if err := fn(tx); err != nil {
		return err
	}
	for id, d := range tx.displayIDs {
		r.orders[id].DisplayOrderID = d
	}
	for y, c := range tx.counters {
		r.counters[y] = c
	}
	return nil
}

// memBackfillTx stages writes until the callback succeeds.
type memBackfillTx struct {
	r          *MemoryRepo
	displayIDs map[string]string
	counters   map[int]int
}

func (t *memBackfillTx) YearCounters(context.Context) (map[int]int, error) {
	out := make(map[int]int, len(t.r.counters))
	for y, c := range t.r.counters {
		out[y] = c
	}
	return out, nil
}

func (t *memBackfillTx) OrdersMissingDisplayID(context.Context) ([]usecase.OrderStub, error) {
	var out []usecase.OrderStub
	for _, o := range t.r.orders {
		if o.DisplayOrderID == "" {
			out = append(out, usecase.OrderStub{ID: o.ID, CreatedAt: o.CreatedAt})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (t *memBackfillTx) SetDisplayOrderID(_ context.Context, orderID, displayID string) error {
	if _, ok := t.r.orders[orderID]; !ok {
		return usecase.ErrNotFound("order " + orderID)
	}
	t.displayIDs[orderID] = displayID
	return nil
}

func (t *memBackfillTx) SetYearCounter(_ context.Context, year, counter int) error {
	t.counters[year] = counter
	return nil
}

func (r *MemoryRepo) PutProduct(p domain.Product) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.products[p.ID] = &p
}

func (r *MemoryRepo) Product(id string) (domain.Product, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.products[id]
	if !ok {
		return domain.Product{}, false
	}
	return *p, true
}

func (r *MemoryRepo) PutCustomOrder(co domain.CustomOrder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.customOrders[co.ID] = &co
}

// PutOrder stores an order as-is, including one without a display id.
func (r *MemoryRepo) PutOrder(o domain.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[o.ID] = &o
	if o.PaymentIntentID != "" {
		r.byIntent[o.PaymentIntentID] = o.ID
	}
}

func (r *MemoryRepo) SetYearCounter(year, counter int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters[year] = counter
}

func (r *MemoryRepo) YearCounter(year int) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.counters[year]
}

func (r *MemoryRepo) Orders() []domain.Order {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Order, 0, len(r.orders))
	for _, o := range r.orders {
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (r *MemoryRepo) ItemsFor(orderID string) []domain.OrderItem {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.OrderItem(nil), r.items[orderID]...)
}
