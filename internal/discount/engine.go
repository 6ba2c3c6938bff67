package discount

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/lumenfest/checkout-engine/internal/clock"
	"github.com/lumenfest/checkout-engine/internal/domain"
)

// Store is the discount persistence the engine reads from. Usage counts are
// written only at order finalization, never here.
type Store interface {
	DiscountByCode(ctx context.Context, code string) (*domain.Discount, error)
	ConfirmedUsesByEmail(ctx context.Context, code, email string) (int64, error)
}

// Result is a successful validation: the code and the computed deduction.
type Result struct {
	Code          string
	DiscountCents int64
}

// Rejection reasons surfaced to the client.
const (
	ReasonUnknownCode  = "unknown code"
	ReasonInactive     = "code is not active"
	ReasonNotStarted   = "code is not valid yet"
	ReasonExpired      = "code has expired"
	ReasonExhausted    = "code usage limit reached"
	ReasonEmailLimit   = "code already used by this email"
	ReasonNotEligible  = "code does not apply to these tickets"
	ReasonZeroDiscount = "code yields no discount"
)

// ValidationError carries the first failed check.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// Engine validates discount codes against temporal, usage-count, per-email,
// and SKU-applicability constraints, first failure wins.
type Engine struct {
	store Store
	clock clock.Clock
}

func NewEngine(store Store, clk clock.Clock) *Engine {
	return &Engine{store: store, clock: clk}
}

func (e *Engine) Validate(ctx context.Context, code string, subtotalCents int64, cartSKUs []string, customerEmail string) (*Result, error) {
	normalized := domain.NormalizeCode(code)
	d, err := e.store.DiscountByCode(ctx, normalized)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, &ValidationError{Reason: ReasonUnknownCode}
		}
		return nil, err
	}

	if !d.Active {
		return nil, &ValidationError{Reason: ReasonInactive}
	}
	now := e.clock.Now()
	if d.ValidFrom != nil && now.Before(*d.ValidFrom) {
		return nil, &ValidationError{Reason: ReasonNotStarted}
	}
	if d.ValidTo != nil && now.After(*d.ValidTo) {
		return nil, &ValidationError{Reason: ReasonExpired}
	}
	if d.MaxUses != nil && d.UsageCount >= *d.MaxUses {
		return nil, &ValidationError{Reason: ReasonExhausted}
	}
	if d.MaxUsesPerEmail != nil && customerEmail != "" {
		uses, err := e.store.ConfirmedUsesByEmail(ctx, normalized, customerEmail)
		if err != nil {
			return nil, err
		}
		if uses >= *d.MaxUsesPerEmail {
			return nil, &ValidationError{Reason: ReasonEmailLimit}
		}
	}
	if !d.AppliesTo(cartSKUs) {
		return nil, &ValidationError{Reason: ReasonNotEligible}
	}

	value := ComputeValue(d, subtotalCents)
	if value <= 0 {
		return nil, &ValidationError{Reason: ReasonZeroDiscount}
	}
	return &Result{Code: normalized, DiscountCents: value}, nil
}

// ComputeValue returns the deduction in minor units. Percentage rates clamp
// at 100% and round to the nearest unit; flat values cap at the subtotal so
// the total never goes negative.
func ComputeValue(d *domain.Discount, subtotalCents int64) int64 {
	switch d.Type {
	case domain.DiscountPercentage:
		rate := d.Value
		if rate > 100 {
			rate = 100
		}
		if rate <= 0 {
			return 0
		}
		return (subtotalCents*rate + 50) / 100
	case domain.DiscountFlat:
		if d.Value > subtotalCents {
			return subtotalCents
		}
		return d.Value
	default:
		return 0
	}
}
