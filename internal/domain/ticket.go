package domain

import (
	"math"

	"github.com/google/uuid"
)

// Ticket is a ledger entry for one sellable SKU. Sold and Reserved are
// mutated only through revision-guarded updates.
type Ticket struct {
	ID              uuid.UUID
	SKU             string
	Name            string
	Type            string
	PriceCents      int64
	TestPriceCents  *int64
	Currency        string
	Day             string // ISO date, empty for bundles
	IsBundle        bool
	BundleDayCount  int
	BundleTargetSKU string
	Inventory       *int64 // nil means unlimited
	Sold            int64
	Reserved        int64
	Available       bool
	SoldOut         bool
	AllowOversell   bool
	Revision        int64
}

// UnitPriceCents returns the effective price. TestPriceCents applies only
// when the storefront is not live and a test price is configured.
func (t *Ticket) UnitPriceCents(live bool) int64 {
	if !live && t.TestPriceCents != nil {
		return *t.TestPriceCents
	}
	return t.PriceCents
}

// AvailableUnits is inventory - sold - reserved, or effectively unbounded
// for tickets without an inventory cap.
func (t *Ticket) AvailableUnits() int64 {
	if t.Inventory == nil {
		return math.MaxInt64
	}
	return *t.Inventory - t.Sold - t.Reserved
}

// CanFulfill reports whether units can be held against this ticket right now.
func (t *Ticket) CanFulfill(units int64) bool {
	if !t.Available || t.SoldOut {
		return false
	}
	if t.AllowOversell {
		return true
	}
	return t.AvailableUnits() >= units
}

// EffectiveType is the type used to resolve per-day base tickets for a
// bundle. Falls back to targetType when the bundle itself has none.
func (t *Ticket) EffectiveType(targetType string) string {
	if t.Type != "" {
		return t.Type
	}
	return targetType
}

// HoldDelta carries the units to hold against one ticket and the revision
// the caller read when it evaluated availability.
type HoldDelta struct {
	Units    int64
	Revision int64
}
