package bundle

import (
	"context"
	"sort"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/lumenfest/checkout-engine/internal/domain"
)

// Catalog resolves ticket ledger entries for the resolver.
type Catalog interface {
	BySKUs(ctx context.Context, skus []string) ([]domain.Ticket, error)
	BaseForDay(ctx context.Context, ticketType, day string) (*domain.Ticket, error)
}

// Resolver expands bundle SKUs into per-day base ticket lines.
type Resolver struct {
	catalog Catalog
}

func NewResolver(catalog Catalog) *Resolver {
	return &Resolver{catalog: catalog}
}

// Resolve expands a bundle cart line into one reservation line per selected
// day. selectedDates must, after de-duplication, contain exactly
// max(2, dayCount) dates. Every resolved base ticket must be able to fulfil
// quantity units on its own.
//
// The bundle's price is split evenly across the resolved days; any remainder
// cents land on the first day so the lines always sum back to the bundle
// price.
func (r *Resolver) Resolve(ctx context.Context, bundle *domain.Ticket, selectedDates []string, quantity int64, live bool) ([]domain.ReservationLine, error) {
	if !bundle.IsBundle {
		return nil, errors.Wrapf(domain.ErrInvalidInput, "sku %s is not a bundle", bundle.SKU)
	}
	if quantity <= 0 {
		return nil, errors.Wrap(domain.ErrInvalidInput, "quantity must be positive")
	}

	dayCount := bundle.BundleDayCount
	if dayCount < 2 {
		dayCount = 2
	}
	dates, err := normalizeDates(selectedDates)
	if err != nil {
		return nil, err
	}
	if len(dates) != dayCount {
		return nil, errors.Wrapf(domain.ErrInvalidDaySelection,
			"bundle %s requires %d unique dates, got %d", bundle.SKU, dayCount, len(dates))
	}

	effectiveType := bundle.Type
	if effectiveType == "" && bundle.BundleTargetSKU != "" {
		targets, err := r.catalog.BySKUs(ctx, []string{bundle.BundleTargetSKU})
		if err != nil {
			return nil, err
		}
		if len(targets) == 0 {
			return nil, errors.Wrapf(domain.ErrUnknownSKU, "bundle target %s", bundle.BundleTargetSKU)
		}
		effectiveType = targets[0].Type
	}

	price := bundle.UnitPriceCents(live)
	perDay := price / int64(dayCount)
	remainder := price - perDay*int64(dayCount)

	lines := make([]domain.ReservationLine, 0, dayCount)
	for i, date := range dates {
		base, err := r.catalog.BaseForDay(ctx, effectiveType, date)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, errors.Wrapf(domain.ErrBaseUnavailable, "no base ticket for %s", date)
			}
			return nil, err
		}
		if !base.CanFulfill(quantity) {
			return nil, errors.Wrapf(domain.ErrBaseUnavailable, "base ticket %s for %s", base.SKU, date)
		}

		unitPrice := perDay
		if i == 0 {
			unitPrice += remainder
		}
		lines = append(lines, domain.ReservationLine{
			TicketID:       base.ID,
			SKU:            base.SKU,
			Name:           base.Name,
			Quantity:       quantity,
			Units:          quantity,
			UnitPriceCents: unitPrice,
			SelectedDate:   date,
		})
	}
	return lines, nil
}

// normalizeDates de-duplicates, validates, and sorts ISO dates.
func normalizeDates(dates []string) ([]string, error) {
	seen := make(map[string]struct{}, len(dates))
	out := make([]string, 0, len(dates))
	for _, d := range dates {
		if _, err := time.Parse("2006-01-02", d); err != nil {
			return nil, errors.Wrapf(domain.ErrInvalidDaySelection, "bad date %q", d)
		}
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	sort.Strings(out)
	return out, nil
}
