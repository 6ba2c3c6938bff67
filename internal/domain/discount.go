package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFlat       DiscountType = "flat"
)

// Discount is an operator-authored discount code. UsageCount is incremented
// exactly once per confirmed order that references the code.
type Discount struct {
	ID              uuid.UUID
	Code            string
	Type            DiscountType
	Value           int64 // percent for percentage, minor units for flat
	Active          bool
	ValidFrom       *time.Time
	ValidTo         *time.Time
	MaxUses         *int64
	MaxUsesPerEmail *int64
	ApplicableSKUs  []string
	UsageCount      int64
}

// NormalizeCode canonicalizes a customer-entered code for lookup.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// AppliesTo reports whether the discount is usable with at least one of the
// given SKUs. An empty ApplicableSKUs list means unrestricted.
func (d *Discount) AppliesTo(skus []string) bool {
	if len(d.ApplicableSKUs) == 0 {
		return true
	}
	for _, sku := range skus {
		for _, allowed := range d.ApplicableSKUs {
			if sku == allowed {
				return true
			}
		}
	}
	return false
}
