package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/lumenfest/checkout-engine/internal/domain"
)

// DiscountByCode looks up a discount by its normalized code.
func (r *Repository) DiscountByCode(ctx context.Context, code string) (*domain.Discount, error) {
	var d domain.Discount
	err := r.pool.QueryRow(ctx, `
		SELECT id, code, type, value, active, valid_from, valid_to, max_uses,
			max_uses_per_email, COALESCE(applicable_skus, '{}'), usage_count
		FROM discounts WHERE code = $1
	`, code).Scan(&d.ID, &d.Code, &d.Type, &d.Value, &d.Active, &d.ValidFrom,
		&d.ValidTo, &d.MaxUses, &d.MaxUsesPerEmail, &d.ApplicableSKUs,
		&d.UsageCount)
	if err == pgx.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// ConfirmedUsesByEmail counts confirmed orders that redeemed the code for a
// given customer email. Backs the per-email usage cap at validation time.
func (r *Repository) ConfirmedUsesByEmail(ctx context.Context, code, email string) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM orders
		WHERE discount_code = $1 AND customer_email = $2
	`, code, email).Scan(&count)
	return count, err
}

// IncrementDiscountUsage bumps usage_count once per confirmed order. Called
// best-effort after finalize; a failure never rolls back the order.
func (r *Repository) IncrementDiscountUsage(ctx context.Context, code string) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE discounts SET usage_count = usage_count + 1 WHERE code = $1
	`, code)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
