package order

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/andreasstove999/ecommerce-system/reservation-service-go/internal/apperr"
	"github.com/andreasstove999/ecommerce-system/reservation-service-go/internal/idempotency"
	"github.com/andreasstove999/ecommerce-system/reservation-service-go/internal/reservation"
	"github.com/andreasstove999/ecommerce-system/reservation-service-go/internal/stock"
)

type fakeTx struct{}

func (fakeTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakeRepo struct {
	mu     sync.Mutex
	orders map[string]*Order
	// beforeCAS runs inside CompareAndSetStatus, before the swap.
	beforeCAS func(o *Order)
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{orders: map[string]*Order{}}
}

func (r *fakeRepo) Create(ctx context.Context, o *Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *o
	r.orders[o.ID] = &cp
	return nil
}

func (r *fakeRepo) Get(ctx context.Context, id string) (*Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, apperr.NotFound("order_not_found", "order not found")
	}
	cp := *o
	cp.Timeline = append([]TimelineEntry(nil), o.Timeline...)
	return &cp, nil
}

func (r *fakeRepo) ListByUser(ctx context.Context, userID string) ([]Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Order
	for _, o := range r.orders {
		if o.UserID == userID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (r *fakeRepo) CompareAndSetStatus(ctx context.Context, id string, from, to Status, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o := r.orders[id]
	if r.beforeCAS != nil {
		r.beforeCAS(o)
	}
	if o.Status != from {
		return false, nil
	}
	o.Status = to
	o.UpdatedAt = at
	return true, nil
}

func (r *fakeRepo) AppendTimeline(ctx context.Context, id string, e TimelineEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o := r.orders[id]
	o.Timeline = append(o.Timeline, e)
	return nil
}

func (r *fakeRepo) UpdatePayment(ctx context.Context, id string, status PaymentStatus, providerTxID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok || o.Payment == nil {
		return apperr.NotFound("payment_not_found", "payment not found")
	}
	p := *o.Payment
	p.Status = status
	if providerTxID != "" {
		p.ProviderTransactionID = providerTxID
	}
	p.UpdatedAt = at
	o.Payment = &p
	return nil
}

func (r *fakeRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.orders)
}

type fakeIdempotency struct {
	mu      sync.Mutex
	records map[string]idempotency.Record
}

func newFakeIdempotency() *fakeIdempotency {
	return &fakeIdempotency{records: map[string]idempotency.Record{}}
}

func (l *fakeIdempotency) Get(ctx context.Context, key string) (*idempotency.Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.records[key]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (l *fakeIdempotency) RecordIfAbsent(ctx context.Context, rec idempotency.Record) (bool, *idempotency.Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if existing, ok := l.records[rec.Key]; ok {
		return false, &existing, nil
	}
	l.records[rec.Key] = rec
	return true, nil, nil
}

type fakeStock struct {
	levels map[string]stock.Level
	held   map[string]int
}

func (s fakeStock) Level(ctx context.Context, id string) (stock.Level, error) {
	lvl, ok := s.levels[id]
	if !ok {
		return stock.Level{}, apperr.NotFound("variant_not_found", "variant not found")
	}
	return lvl, nil
}

func (s fakeStock) HeldBy(ctx context.Context, id string, holder reservation.Holder) (int, error) {
	return s.held[holder.UserID+"/"+id], nil
}

type fakeAddresses map[string]string

func (a fakeAddresses) OwnedBy(ctx context.Context, userID, addressID string) (bool, error) {
	return a[addressID] == userID, nil
}

type recordingNotifier struct {
	mu      sync.Mutex
	updates []StatusUpdate
	fail    bool
}

func (n *recordingNotifier) SendOrderStatusUpdate(ctx context.Context, u StatusUpdate) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.updates = append(n.updates, u)
	if n.fail {
		return errors.New("smtp unavailable")
	}
	return nil
}

func (n *recordingNotifier) sent() []StatusUpdate {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]StatusUpdate(nil), n.updates...)
}
