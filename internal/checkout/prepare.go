package checkout

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/lumenfest/checkout-engine/internal/discount"
	"github.com/lumenfest/checkout-engine/internal/domain"
	"github.com/lumenfest/checkout-engine/internal/observability"
)

// CartLine is one requested SKU. Bundles carry SelectedDates; dated single
// tickets may carry SelectedDate (defaults to the ticket's own day).
type CartLine struct {
	SKU           string
	Quantity      int64
	SelectedDate  string
	SelectedDates []string
}

type Customer struct {
	Name  string
	Email string
	Phone string
}

type PrepareInput struct {
	Lines        []CartLine
	Customer     Customer
	DiscountCode string
}

// PrepareResult is the authoritative quote handed to the client and the
// payment gateway.
type PrepareResult struct {
	TxRef         string
	AmountCents   int64
	Currency      string
	DiscountCents int64
	Lines         []domain.ReservationLine
	ExpiresAt     time.Time
}

// FieldErrors maps input fields to validation messages.
type FieldErrors map[string]string

// ValidationError is a caller-fault prepare failure with optional per-field
// detail.
type ValidationError struct {
	Message string
	Fields  FieldErrors
}

func (e *ValidationError) Error() string { return e.Message }

// Prepare resolves the cart, places a TTL-bounded hold on every covered
// ticket, and returns the authoritative price quote. On any failure no
// partial state remains: the hold transaction is all-or-nothing.
func (s *Service) Prepare(ctx context.Context, in PrepareInput) (*PrepareResult, error) {
	if err := validatePrepareInput(in); err != nil {
		return nil, err
	}

	// Free abandoned holds before evaluating availability. Best-effort.
	if s.sweeper != nil {
		if _, err := s.sweeper.SweepOnce(ctx); err != nil {
			s.logger.WithError(err).Warn("opportunistic sweep failed")
		}
	}

	tickets, err := s.fetchCartTickets(ctx, in.Lines)
	if err != nil {
		return nil, err
	}

	resolved, cartSKUs, err := s.resolveLines(ctx, in.Lines, tickets)
	if err != nil {
		return nil, err
	}

	deltas, currency, err := s.buildHoldDeltas(ctx, resolved)
	if err != nil {
		return nil, err
	}

	var subtotal int64
	for _, line := range resolved {
		subtotal += line.UnitPriceCents * line.Quantity
	}

	amount := subtotal
	var discountCents int64
	discountCode := ""
	if in.DiscountCode != "" {
		result, err := s.discounts.Validate(ctx, in.DiscountCode, subtotal, cartSKUs, in.Customer.Email)
		if err != nil {
			var verr *discount.ValidationError
			if errors.As(err, &verr) {
				return nil, &ValidationError{Message: verr.Reason, Fields: FieldErrors{"discountCode": verr.Reason}}
			}
			return nil, err
		}
		discountCents = result.DiscountCents
		discountCode = result.Code
		amount -= discountCents
	}

	now := s.clock.Now()
	res := domain.NewReservation(domain.NewTxRef(now), resolved, amount, currency, s.holdTTL, now)
	res.CustomerName = in.Customer.Name
	res.CustomerEmail = in.Customer.Email
	res.CustomerPhone = in.Customer.Phone
	res.DiscountCode = discountCode
	res.DiscountCents = discountCents

	if err := s.store.CreateHold(ctx, res, deltas); err != nil {
		if errors.Is(err, domain.ErrRevisionConflict) || errors.Is(err, domain.ErrSerializationFailure) {
			observability.AvailabilityConflicts.Inc()
		}
		return nil, err
	}
	observability.HoldsCreated.Inc()

	if s.audit != nil {
		if err := s.audit.RecordHoldCreated(ctx, res); err != nil {
			s.logger.WithField("tx_ref", res.TxRef).WithError(err).Warn("audit write failed")
		}
	}

	return &PrepareResult{
		TxRef:         res.TxRef,
		AmountCents:   res.AmountCents,
		Currency:      res.Currency,
		DiscountCents: discountCents,
		Lines:         res.Lines,
		ExpiresAt:     res.ExpiresAt,
	}, nil
}

func validatePrepareInput(in PrepareInput) error {
	fields := FieldErrors{}
	if len(in.Lines) == 0 {
		fields["lines"] = "cart is empty"
	}
	for _, line := range in.Lines {
		if strings.TrimSpace(line.SKU) == "" {
			fields["lines"] = "line is missing a sku"
		}
		if line.Quantity <= 0 {
			fields["lines"] = "quantity must be positive"
		}
	}
	if strings.TrimSpace(in.Customer.Email) == "" {
		fields["email"] = "email is required"
	}
	if strings.TrimSpace(in.Customer.Name) == "" {
		fields["name"] = "name is required"
	}
	if len(fields) > 0 {
		return &ValidationError{Message: "invalid checkout request", Fields: fields}
	}
	return nil
}

// fetchCartTickets loads every requested SKU, plus any bundle-target SKUs
// not already covered, in batched reads.
func (s *Service) fetchCartTickets(ctx context.Context, lines []CartLine) (map[string]*domain.Ticket, error) {
	seen := make(map[string]struct{}, len(lines))
	skus := make([]string, 0, len(lines))
	for _, line := range lines {
		sku := strings.TrimSpace(line.SKU)
		if _, ok := seen[sku]; ok {
			continue
		}
		seen[sku] = struct{}{}
		skus = append(skus, sku)
	}

	fetched, err := s.store.BySKUs(ctx, skus)
	if err != nil {
		return nil, err
	}
	bySKU := make(map[string]*domain.Ticket, len(fetched))
	for i := range fetched {
		bySKU[fetched[i].SKU] = &fetched[i]
	}

	var missingTargets []string
	for _, t := range bySKU {
		if t.IsBundle && t.BundleTargetSKU != "" {
			if _, ok := bySKU[t.BundleTargetSKU]; !ok {
				missingTargets = append(missingTargets, t.BundleTargetSKU)
			}
		}
	}
	if len(missingTargets) > 0 {
		targets, err := s.store.BySKUs(ctx, missingTargets)
		if err != nil {
			return nil, err
		}
		for i := range targets {
			bySKU[targets[i].SKU] = &targets[i]
		}
	}
	return bySKU, nil
}

// resolveLines expands each cart line into reservation lines and returns the
// SKU universe used for discount applicability.
func (s *Service) resolveLines(ctx context.Context, lines []CartLine, tickets map[string]*domain.Ticket) ([]domain.ReservationLine, []string, error) {
	var resolved []domain.ReservationLine
	skuSet := make(map[string]struct{})

	for _, line := range lines {
		sku := strings.TrimSpace(line.SKU)
		t, ok := tickets[sku]
		if !ok {
			return nil, nil, errors.Wrapf(domain.ErrUnknownSKU, "%s", sku)
		}
		if !t.Available || t.SoldOut {
			return nil, nil, errors.Wrapf(domain.ErrSKUUnavailable, "%s", sku)
		}
		skuSet[sku] = struct{}{}

		if t.IsBundle {
			sub, err := s.resolver.Resolve(ctx, t, line.SelectedDates, line.Quantity, s.live)
			if err != nil {
				return nil, nil, err
			}
			for _, sl := range sub {
				skuSet[sl.SKU] = struct{}{}
			}
			resolved = append(resolved, sub...)
			continue
		}

		if !t.CanFulfill(line.Quantity) {
			return nil, nil, errors.Wrapf(domain.ErrInsufficientInventory, "%s", sku)
		}
		date := line.SelectedDate
		if date == "" {
			date = t.Day
		}
		resolved = append(resolved, domain.ReservationLine{
			TicketID:       t.ID,
			SKU:            t.SKU,
			Name:           t.Name,
			Quantity:       line.Quantity,
			Units:          line.Quantity,
			UnitPriceCents: t.UnitPriceCents(s.live),
			SelectedDate:   date,
		})
	}

	cartSKUs := make([]string, 0, len(skuSet))
	for sku := range skuSet {
		cartSKUs = append(cartSKUs, sku)
	}
	return resolved, cartSKUs, nil
}

// buildHoldDeltas re-reads the covered tickets in one batch, checks the
// aggregated per-ticket demand against availability (a cart may reach the
// same underlying ticket through several lines), and captures the revisions
// that will guard the hold transaction.
func (s *Service) buildHoldDeltas(ctx context.Context, resolved []domain.ReservationLine) (map[uuid.UUID]domain.HoldDelta, string, error) {
	unitsByTicket := make(map[uuid.UUID]int64, len(resolved))
	skuSet := make(map[string]struct{}, len(resolved))
	skus := make([]string, 0, len(resolved))
	for _, line := range resolved {
		unitsByTicket[line.TicketID] += line.Units
		if _, ok := skuSet[line.SKU]; !ok {
			skuSet[line.SKU] = struct{}{}
			skus = append(skus, line.SKU)
		}
	}

	fresh, err := s.store.BySKUs(ctx, skus)
	if err != nil {
		return nil, "", err
	}
	byID := make(map[uuid.UUID]*domain.Ticket, len(fresh))
	currency := ""
	for i := range fresh {
		byID[fresh[i].ID] = &fresh[i]
		if currency == "" {
			currency = fresh[i].Currency
		} else if fresh[i].Currency != currency {
			return nil, "", errors.Wrap(domain.ErrInvalidInput, "cart mixes currencies")
		}
	}

	deltas := make(map[uuid.UUID]domain.HoldDelta, len(unitsByTicket))
	for ticketID, units := range unitsByTicket {
		t, ok := byID[ticketID]
		if !ok {
			return nil, "", errors.Wrap(domain.ErrUnknownSKU, "ticket vanished during prepare")
		}
		if !t.CanFulfill(units) {
			return nil, "", errors.Wrapf(domain.ErrInsufficientInventory, "%s", t.SKU)
		}
		deltas[ticketID] = domain.HoldDelta{Units: units, Revision: t.Revision}
	}
	return deltas, currency, nil
}
