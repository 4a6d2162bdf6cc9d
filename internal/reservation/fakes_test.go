package reservation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/andreasstove999/ecommerce-system/reservation-service-go/internal/apperr"
	"github.com/andreasstove999/ecommerce-system/reservation-service-go/internal/stock"
)

type fakeTx struct{}

func (fakeTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakeLedger struct {
	mu     sync.Mutex
	levels map[string]*stock.Level
}

func newFakeLedger(totals map[string]int) *fakeLedger {
	l := &fakeLedger{levels: map[string]*stock.Level{}}
	for id, total := range totals {
		l.levels[id] = &stock.Level{VariantID: id, Total: total}
	}
	return l
}

func (l *fakeLedger) level(id string) stock.Level {
	l.mu.Lock()
	defer l.mu.Unlock()
	return *l.levels[id]
}

func (l *fakeLedger) Get(ctx context.Context, id string) (stock.Level, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lvl, ok := l.levels[id]
	if !ok {
		return stock.Level{}, apperr.NotFound("variant_not_found", "variant not found")
	}
	return *lvl, nil
}

func (l *fakeLedger) TryReserve(ctx context.Context, id string, qty int) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lvl, ok := l.levels[id]
	if !ok || lvl.Available() < qty {
		return false, nil
	}
	lvl.Reserved += qty
	return true, nil
}

func (l *fakeLedger) Release(ctx context.Context, id string, qty int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	lvl := l.levels[id]
	lvl.Reserved = max(lvl.Reserved-qty, 0)
	return nil
}

func (l *fakeLedger) Commit(ctx context.Context, id string, qty int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	lvl := l.levels[id]
	if lvl.Total < qty {
		return fmt.Errorf("drift")
	}
	lvl.Total -= qty
	lvl.Reserved = max(lvl.Reserved-qty, 0)
	return nil
}

func (l *fakeLedger) SetTotal(ctx context.Context, id string, total int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	lvl, ok := l.levels[id]
	if !ok {
		return apperr.NotFound("variant_not_found", "variant not found")
	}
	if total < lvl.Reserved {
		return apperr.Conflict("total_below_reserved", "total stock below reserved stock")
	}
	lvl.Total = total
	return nil
}

type fakeStore struct {
	mu      sync.Mutex
	rows    map[string]Reservation
	listErr error
	getErr  map[string]error
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: map[string]Reservation{}, getErr: map[string]error{}}
}

func (s *fakeStore) Insert(ctx context.Context, r Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[r.ID] = r
	return nil
}

func (s *fakeStore) Get(ctx context.Context, id string) (Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.getErr[id]; err != nil {
		return Reservation{}, err
	}
	r, ok := s.rows[id]
	if !ok {
		return Reservation{}, apperr.NotFound("reservation_not_found", "reservation not found")
	}
	return r, nil
}

func (s *fakeStore) Transition(ctx context.Context, id string, from, to Status, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[id]
	if !ok || r.Status != from {
		return false, nil
	}
	r.Status = to
	r.UpdatedAt = at
	s.rows[id] = r
	return true, nil
}

func (s *fakeStore) ListExpired(ctx context.Context, now time.Time, limit int) ([]Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []Reservation
	for _, r := range s.rows {
		if r.Status == StatusActive && r.ExpiresAt.Before(now) && len(out) < limit {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fakeStore) SumActiveForHolder(ctx context.Context, variantID string, holder Holder, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum := 0
	for _, r := range s.rows {
		if r.VariantID == variantID && r.Status == StatusActive && r.ExpiresAt.After(now) && holder.Owns(r) {
			sum += r.Quantity
		}
	}
	return sum, nil
}

func (s *fakeStore) status(id string) Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows[id].Status
}
