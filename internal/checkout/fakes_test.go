package checkout_test

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/lumenfest/checkout-engine/internal/domain"
	"github.com/lumenfest/checkout-engine/internal/observability"
	"github.com/lumenfest/checkout-engine/internal/payments"
)

// fakeStore is an in-memory ledger with the same revision-guard semantics as
// the postgres repository.
type fakeStore struct {
	mu           sync.Mutex
	tickets      map[uuid.UUID]*domain.Ticket
	reservations map[string]*domain.Reservation
	orders       map[string]*domain.Order
	discountUses map[string]int64

	// beforeCreateHold runs after availability checks but before the hold
	// transaction, for simulating concurrent writers.
	beforeCreateHold func(s *fakeStore)
	beforeFinalize   func(s *fakeStore)
	finalizeErr      error
	guestSyncResults []domain.GuestSyncStatus
}

func newFakeStore(tickets ...*domain.Ticket) *fakeStore {
	s := &fakeStore{
		tickets:      map[uuid.UUID]*domain.Ticket{},
		reservations: map[string]*domain.Reservation{},
		orders:       map[string]*domain.Order{},
		discountUses: map[string]int64{},
	}
	for _, t := range tickets {
		s.tickets[t.ID] = t
	}
	return s
}

func (s *fakeStore) ticketBySKU(sku string) *domain.Ticket {
	for _, t := range s.tickets {
		if t.SKU == sku {
			return t
		}
	}
	return nil
}

func (s *fakeStore) BySKUs(_ context.Context, skus []string) ([]domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Ticket
	for _, sku := range skus {
		if t := s.ticketBySKU(sku); t != nil {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (s *fakeStore) BaseForDay(_ context.Context, ticketType, day string) (*domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tickets {
		if !t.IsBundle && t.Type == ticketType && t.Day == day {
			copied := *t
			return &copied, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *fakeStore) CreateHold(_ context.Context, res domain.Reservation, deltas map[uuid.UUID]domain.HoldDelta) error {
	if s.beforeCreateHold != nil {
		s.beforeCreateHold(s)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, delta := range deltas {
		t, ok := s.tickets[id]
		if !ok {
			return domain.ErrNotFound
		}
		if t.Revision != delta.Revision {
			return domain.ErrRevisionConflict
		}
	}
	for id, delta := range deltas {
		t := s.tickets[id]
		t.Reserved += delta.Units
		t.Revision++
	}
	s.reservations[res.TxRef] = &res
	return nil
}

func (s *fakeStore) ReservationByTxRef(_ context.Context, txRef string) (*domain.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, ok := s.reservations[txRef]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *res
	return &copied, nil
}

func (s *fakeStore) CancelHold(_ context.Context, res domain.Reservation) error {
	return s.release(res, domain.ReservationCanceled)
}

func (s *fakeStore) release(res domain.Reservation, to domain.ReservationStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.reservations[res.TxRef]
	if !ok {
		return domain.ErrNotFound
	}
	if stored.Status != domain.ReservationHeld {
		return domain.ErrConflict
	}
	for _, line := range stored.Lines {
		if t, ok := s.tickets[line.TicketID]; ok {
			t.Reserved -= line.Units
			if t.Reserved < 0 {
				t.Reserved = 0
			}
			t.Revision++
		}
	}
	stored.Status = to
	return nil
}

func (s *fakeStore) FinalizeReservation(_ context.Context, res domain.Reservation, order domain.Order) error {
	if s.beforeFinalize != nil {
		s.beforeFinalize(s)
	}
	if s.finalizeErr != nil {
		return s.finalizeErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.reservations[res.TxRef]
	if !ok {
		return domain.ErrNotFound
	}
	if stored.Status != domain.ReservationHeld {
		return domain.ErrConflict
	}
	for _, line := range stored.Lines {
		t, ok := s.tickets[line.TicketID]
		if !ok {
			return domain.ErrNotFound
		}
		t.Sold += line.Units
		t.Reserved -= line.Units
		if t.Reserved < 0 {
			t.Reserved = 0
		}
		t.Revision++
	}
	stored.Status = domain.ReservationConfirmed
	s.orders[order.TxRef] = &order
	return nil
}

func (s *fakeStore) OrderByTxRef(_ context.Context, txRef string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[txRef]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *order
	return &copied, nil
}

func (s *fakeStore) AttachGuestSyncResult(_ context.Context, orderID uuid.UUID, status domain.GuestSyncStatus, detail string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, order := range s.orders {
		if order.ID == orderID {
			order.GuestSyncStatus = status
			order.GuestSyncDetail = detail
		}
	}
	s.guestSyncResults = append(s.guestSyncResults, status)
	return nil
}

func (s *fakeStore) IncrementDiscountUsage(_ context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.discountUses[code]++
	return nil
}

// fakeDiscountStore backs the discount engine in service tests.
type fakeDiscountStore struct {
	discounts map[string]*domain.Discount
	uses      map[string]int64
}

func (f *fakeDiscountStore) DiscountByCode(_ context.Context, code string) (*domain.Discount, error) {
	d, ok := f.discounts[code]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return d, nil
}

func (f *fakeDiscountStore) ConfirmedUsesByEmail(_ context.Context, code, email string) (int64, error) {
	return f.uses[code+"|"+email], nil
}

type fakeGateway struct {
	verification *payments.Verification
	err          error
	calls        int
}

func (g *fakeGateway) VerifyTransaction(_ context.Context, transactionID string) (*payments.Verification, error) {
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	v := *g.verification
	v.TransactionID = transactionID
	return &v, nil
}

type fakeGuestSyncer struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (g *fakeGuestSyncer) Sync(_ context.Context, _ *domain.Order) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.err != nil {
		return "", g.err
	}
	return `{"synced":true}`, nil
}

type fakeAuditor struct {
	mu          sync.Mutex
	holds       int
	confirmed   int
	divergences []error
}

func (a *fakeAuditor) RecordHoldCreated(_ context.Context, _ domain.Reservation) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.holds++
	return nil
}

func (a *fakeAuditor) RecordOrderConfirmed(_ context.Context, _ domain.Order) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.confirmed++
	return nil
}

func (a *fakeAuditor) RecordFinalizeDivergence(_ context.Context, _, _ string, cause error) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.divergences = append(a.divergences, cause)
	return nil
}

func (a *fakeAuditor) divergenceCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.divergences)
}

type fakeSweeper struct {
	calls int
	err   error
}

func (s *fakeSweeper) SweepOnce(_ context.Context) (int, error) {
	s.calls++
	if s.err != nil {
		return 0, s.err
	}
	return 0, nil
}

// nopLogger satisfies observability.Logger for tests.
type nopLogger struct{}

func (nopLogger) Info(...interface{})  {}
func (nopLogger) Error(...interface{}) {}
func (nopLogger) Debug(...interface{}) {}
func (nopLogger) Warn(...interface{})  {}
func (nopLogger) WithField(string, interface{}) observability.Logger { return nopLogger{} }
func (nopLogger) WithError(error) observability.Logger               { return nopLogger{} }

var errGatewayDown = errors.New("gateway unreachable")
