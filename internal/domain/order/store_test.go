package order

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-checkout/internal/domain/address"
	"github.com/xenking/kart-checkout/internal/domain/cart"
	"github.com/xenking/kart-checkout/internal/domain/coupon"
	"github.com/xenking/kart-checkout/internal/domain/payment"
	"github.com/xenking/kart-checkout/internal/domain/product"
	"github.com/xenking/kart-checkout/internal/domain/stock"
	"github.com/xenking/kart-checkout/internal/notify"
)

// memStore is an in-memory database shared by the fake repositories below.
// RunInTx snapshots it and restores the snapshot when fn fails.
type memStore struct {
	mu        sync.Mutex
	products  map[int64]product.Product
	addresses map[int64]address.Address
	payments  map[int64]payment.Method
	coupons   map[int64]coupon.Coupon
	carts     map[int64]*cart.Cart // by user id
	orders    map[int64]*Order
	nextOrder int64

	// beforeTx runs at the start of every transaction.
	beforeTx func(*memStore)
	// beforeDeduct runs once, on the first Deduct, before stock is checked.
	beforeDeduct func(*memStore)

	// cartLocks emulate row locks on carts: taken by GetByUserForUpdate and
	// released when the transaction ends.
	locksMu   sync.Mutex
	cartLocks map[int64]*sync.Mutex
}

type txKey struct{}

// memTx holds the rollback point and the locks of a transaction.
type memTx struct {
	snap    snapshot
	release []func()
}

func txFrom(ctx context.Context) *memTx {
	tx, _ := ctx.Value(txKey{}).(*memTx)
	return tx
}

func (m *memStore) lockCart(userID int64) func() {
	m.locksMu.Lock()
	l, ok := m.cartLocks[userID]
	if !ok {
		l = &sync.Mutex{}
		m.cartLocks[userID] = l
	}
	m.locksMu.Unlock()
	l.Lock()
	return l.Unlock
}

func newMemStore() *memStore {
	return &memStore{
		products:  make(map[int64]product.Product),
		addresses: make(map[int64]address.Address),
		payments:  make(map[int64]payment.Method),
		coupons:   make(map[int64]coupon.Coupon),
		carts:     make(map[int64]*cart.Cart),
		orders:    make(map[int64]*Order),
		cartLocks: make(map[int64]*sync.Mutex),
	}
}

type snapshot struct {
	products  map[int64]product.Product
	carts     map[int64]*cart.Cart
	orders    map[int64]*Order
	nextOrder int64
}

func cloneCart(c *cart.Cart) *cart.Cart {
	cp := *c
	cp.Items = slices.Clone(c.Items)
	return &cp
}

func cloneOrder(o *Order) *Order {
	cp := *o
	cp.Items = slices.Clone(o.Items)
	cp.CouponIDs = slices.Clone(o.CouponIDs)
	return &cp
}

func (m *memStore) snapshot() snapshot {
	s := snapshot{
		products:  make(map[int64]product.Product, len(m.products)),
		carts:     make(map[int64]*cart.Cart, len(m.carts)),
		orders:    make(map[int64]*Order, len(m.orders)),
		nextOrder: m.nextOrder,
	}
	for k, v := range m.products {
		s.products[k] = v
	}
	for k, v := range m.carts {
		s.carts[k] = cloneCart(v)
	}
	for k, v := range m.orders {
		s.orders[k] = cloneOrder(v)
	}
	return s
}

func (m *memStore) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	m.mu.Lock()
	if m.beforeTx != nil {
		m.beforeTx(m)
	}
	tx := &memTx{snap: m.snapshot()}
	m.mu.Unlock()

	defer func() {
		for _, release := range tx.release {
			release()
		}
	}()
	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		m.mu.Lock()
		snap := tx.snap
		m.products, m.carts, m.orders, m.nextOrder = snap.products, snap.carts, snap.orders, snap.nextOrder
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *memStore) stockOf(id int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.products[id].Stock
}

func (m *memStore) cartSize(userID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.carts[userID]
	if !ok {
		return 0
	}
	return len(c.Items)
}

func (m *memStore) setCart(userID int64, items ...cart.Item) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := &cart.Cart{ID: userID * 100, UserID: userID}
	for i, it := range items {
		it.ID = int64(i + 1)
		it.CartID = c.ID
		it.UserID = userID
		c.Items = append(c.Items, it)
	}
	m.carts[userID] = c
}

// fakeProducts implements product.Repository and stock.Ledger.
type fakeProducts struct{ *memStore }

func (f fakeProducts) GetByID(_ context.Context, id int64) (*product.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

func (f fakeProducts) GetByIDs(_ context.Context, ids []int64) ([]product.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []product.Product
	for _, id := range ids {
		if p, ok := f.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f fakeProducts) CheckAvailability(_ context.Context, id int64, qty int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[id]
	if !ok {
		return product.ErrNotFound
	}
	return stock.Check(p.ID, p.Name, p.Stock, qty)
}

func (f fakeProducts) Deduct(_ context.Context, id int64, qty int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if hook := f.beforeDeduct; hook != nil {
		f.beforeDeduct = nil
		hook(f.memStore)
	}
	p, ok := f.products[id]
	if !ok {
		return product.ErrNotFound
	}
	if err := stock.Check(p.ID, p.Name, p.Stock, qty); err != nil {
		return err
	}
	p.Stock -= qty
	f.products[id] = p
	return nil
}

func (f fakeProducts) Restore(_ context.Context, id int64, qty int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[id]
	if !ok {
		return product.ErrNotFound
	}
	p.Stock += qty
	f.products[id] = p
	return nil
}

type fakeAddresses struct{ *memStore }

func (f fakeAddresses) GetByID(_ context.Context, id int64) (*address.Address, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.addresses[id]
	if !ok {
		return nil, address.ErrNotFound
	}
	return &a, nil
}

type fakePayments struct{ *memStore }

func (f fakePayments) GetByID(_ context.Context, id int64) (*payment.Method, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.payments[id]
	if !ok {
		return nil, payment.ErrNotFound
	}
	return &m, nil
}

func (f fakePayments) GetActiveByID(ctx context.Context, id int64) (*payment.Method, error) {
	m, err := f.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !m.Active {
		return nil, payment.ErrNotFound
	}
	return m, nil
}

type fakeCoupons struct{ *memStore }

func (f fakeCoupons) FindActiveByIDs(_ context.Context, ids []int64) ([]coupon.Coupon, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []coupon.Coupon
	for _, id := range ids {
		if c, ok := f.coupons[id]; ok && c.Active {
			out = append(out, c)
		}
	}
	return out, nil
}

type fakeCarts struct{ *memStore }

var errNoTx = errors.New("cart locked outside of a transaction")

func (f fakeCarts) GetByUserForUpdate(ctx context.Context, userID int64) (*cart.Cart, error) {
	tx := txFrom(ctx)
	if tx == nil {
		return nil, errNoTx
	}
	tx.release = append(tx.release, f.lockCart(userID))
	f.mu.Lock()
	defer f.mu.Unlock()
	// Checkout writes nothing before taking the cart lock, so the rollback
	// point moves here and includes whatever the previous holder committed.
	tx.snap = f.snapshot()
	c, ok := f.carts[userID]
	if !ok {
		return nil, cart.ErrNotFound
	}
	return cloneCart(c), nil
}

func (f fakeCarts) Clear(_ context.Context, cartID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.carts {
		if c.ID == cartID {
			c.Items = nil
			return nil
		}
	}
	return cart.ErrNotFound
}

type fakeOrders struct{ *memStore }

func (f fakeOrders) Create(_ context.Context, o *Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextOrder++
	o.ID = f.nextOrder
	o.CreatedAt = time.Now()
	stored := cloneOrder(o)
	stored.Items = nil
	stored.CouponIDs = nil
	f.orders[o.ID] = stored
	return nil
}

func (f fakeOrders) AddItems(_ context.Context, orderID int64, items []Item) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok {
		return ErrNotFound
	}
	o.Items = append(o.Items, items...)
	return nil
}

func (f fakeOrders) AttachCoupons(_ context.Context, orderID int64, ids []int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok {
		return ErrNotFound
	}
	o.CouponIDs = append(o.CouponIDs, ids...)
	return nil
}

func (f fakeOrders) Get(_ context.Context, id int64) (*Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneOrder(o), nil
}

func (f fakeOrders) GetForUpdate(ctx context.Context, id int64) (*Order, error) {
	return f.Get(ctx, id)
}

func (f fakeOrders) list(match func(*Order) bool) []Order {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Order
	for _, o := range f.orders {
		if match(o) {
			out = append(out, *cloneOrder(o))
		}
	}
	slices.SortFunc(out, func(a, b Order) int { return int(b.ID - a.ID) })
	return out
}

func (f fakeOrders) ListByUser(_ context.Context, userID int64) ([]Order, error) {
	return f.list(func(o *Order) bool { return o.UserID == userID }), nil
}

func (f fakeOrders) List(context.Context) ([]Order, error) {
	return f.list(func(*Order) bool { return true }), nil
}

func (f fakeOrders) Update(_ context.Context, o *Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.orders[o.ID]
	if !ok {
		return ErrNotFound
	}
	stored.Status = o.Status
	stored.PaymentStatus = o.PaymentStatus
	stored.ShippedAt = o.ShippedAt
	stored.DeliveredAt = o.DeliveredAt
	return nil
}

func (f fakeOrders) Delete(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.orders[id]; !ok {
		return ErrNotFound
	}
	delete(f.orders, id)
	return nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (f *fakeNotifier) Dispatch(_ context.Context, ev notify.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
}

func (f *fakeNotifier) types() []notify.Type {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []notify.Type
	for _, ev := range f.events {
		out = append(out, ev.Type)
	}
	return out
}

type fakeInvalidator struct {
	users []int64
}

func (f *fakeInvalidator) Invalidate(_ context.Context, userID int64) {
	f.users = append(f.users, userID)
}

var (
	_ product.Repository = fakeProducts{}
	_ stock.Ledger       = fakeProducts{}
	_ address.Repository = fakeAddresses{}
	_ payment.Repository = fakePayments{}
	_ coupon.Repository  = fakeCoupons{}
	_ CartStore          = fakeCarts{}
	_ Repository         = fakeOrders{}
	_ TxRunner           = (*memStore)(nil)
)

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}
