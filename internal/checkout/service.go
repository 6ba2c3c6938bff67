package checkout

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lumenfest/checkout-engine/internal/bundle"
	"github.com/lumenfest/checkout-engine/internal/clock"
	"github.com/lumenfest/checkout-engine/internal/discount"
	"github.com/lumenfest/checkout-engine/internal/domain"
	"github.com/lumenfest/checkout-engine/internal/observability"
	"github.com/lumenfest/checkout-engine/internal/payments"
)

// Store is the persistence surface the checkout flows drive. Satisfied by
// *postgres.Repository.
type Store interface {
	BySKUs(ctx context.Context, skus []string) ([]domain.Ticket, error)
	BaseForDay(ctx context.Context, ticketType, day string) (*domain.Ticket, error)
	CreateHold(ctx context.Context, res domain.Reservation, deltas map[uuid.UUID]domain.HoldDelta) error
	ReservationByTxRef(ctx context.Context, txRef string) (*domain.Reservation, error)
	CancelHold(ctx context.Context, res domain.Reservation) error
	FinalizeReservation(ctx context.Context, res domain.Reservation, order domain.Order) error
	OrderByTxRef(ctx context.Context, txRef string) (*domain.Order, error)
	AttachGuestSyncResult(ctx context.Context, orderID uuid.UUID, status domain.GuestSyncStatus, detail string) error
	IncrementDiscountUsage(ctx context.Context, code string) error
}

// Gateway verifies payments with the external provider.
type Gateway interface {
	VerifyTransaction(ctx context.Context, transactionID string) (*payments.Verification, error)
}

// GuestSyncer pushes confirmed guests to the guest-management partner.
type GuestSyncer interface {
	Sync(ctx context.Context, order *domain.Order) (string, error)
}

// Auditor records checkout lifecycle events. Optional, best-effort.
type Auditor interface {
	RecordHoldCreated(ctx context.Context, res domain.Reservation) error
	RecordOrderConfirmed(ctx context.Context, order domain.Order) error
	RecordFinalizeDivergence(ctx context.Context, txRef, gatewayTxID string, cause error) error
}

// StaleHoldSweeper frees abandoned holds; the prepare flow runs it
// opportunistically before evaluating availability.
type StaleHoldSweeper interface {
	SweepOnce(ctx context.Context) (int, error)
}

// Service orchestrates the prepare and verify/finalize checkout flows.
type Service struct {
	store     Store
	resolver  *bundle.Resolver
	discounts *discount.Engine
	gateway   Gateway
	guests    GuestSyncer
	audit     Auditor
	sweeper   StaleHoldSweeper
	clock     clock.Clock
	logger    observability.Logger
	holdTTL   time.Duration
	live      bool
}

type Options struct {
	Store     Store
	Resolver  *bundle.Resolver
	Discounts *discount.Engine
	Gateway   Gateway
	Guests    GuestSyncer
	Audit     Auditor
	Sweeper   StaleHoldSweeper
	Clock     clock.Clock
	Logger    observability.Logger
	HoldTTL   time.Duration
	Live      bool
}

// OrderByTxRef exposes order lookup for the read path.
func (s *Service) OrderByTxRef(ctx context.Context, txRef string) (*domain.Order, error) {
	return s.store.OrderByTxRef(ctx, txRef)
}

func NewService(opts Options) *Service {
	if opts.HoldTTL <= 0 {
		opts.HoldTTL = 10 * time.Minute
	}
	if opts.Clock == nil {
		opts.Clock = clock.NewSystem()
	}
	return &Service{
		store:     opts.Store,
		resolver:  opts.Resolver,
		discounts: opts.Discounts,
		gateway:   opts.Gateway,
		guests:    opts.Guests,
		audit:     opts.Audit,
		sweeper:   opts.Sweeper,
		clock:     opts.Clock,
		logger:    opts.Logger,
		holdTTL:   opts.HoldTTL,
		live:      opts.Live,
	}
}
