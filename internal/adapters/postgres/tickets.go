package postgres

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lumenfest/checkout-engine/internal/domain"
)

// CounterField names a ledger counter that ApplyDelta may mutate.
type CounterField string

const (
	FieldSold     CounterField = "sold"
	FieldReserved CounterField = "reserved"
)

const ticketColumns = `
	id, sku, name, type, price_cents, test_price_cents, currency,
	COALESCE(day, ''), is_bundle, COALESCE(bundle_day_count, 0),
	COALESCE(bundle_target_sku, ''), inventory, COALESCE(sold, 0),
	COALESCE(reserved, 0), available, sold_out, allow_oversell, revision`

func scanTicket(row pgx.Row) (domain.Ticket, error) {
	var t domain.Ticket
	err := row.Scan(
		&t.ID, &t.SKU, &t.Name, &t.Type, &t.PriceCents, &t.TestPriceCents,
		&t.Currency, &t.Day, &t.IsBundle, &t.BundleDayCount,
		&t.BundleTargetSKU, &t.Inventory, &t.Sold, &t.Reserved,
		&t.Available, &t.SoldOut, &t.AllowOversell, &t.Revision,
	)
	return t, err
}

// BySKUs loads ticket ledger entries for the given SKUs in one read.
func (r *Repository) BySKUs(ctx context.Context, skus []string) ([]domain.Ticket, error) {
	if len(skus) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+ticketColumns+`
		FROM tickets WHERE sku = ANY($1)
	`, skus)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tickets []domain.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}

// BaseForDay resolves the unique non-bundle ticket sharing a type and day.
func (r *Repository) BaseForDay(ctx context.Context, ticketType, day string) (*domain.Ticket, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+ticketColumns+`
		FROM tickets
		WHERE type = $1 AND day = $2 AND NOT is_bundle
		LIMIT 2
	`, ticketType, day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tickets []domain.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	switch len(tickets) {
	case 0:
		return nil, domain.ErrNotFound
	case 1:
		return &tickets[0], nil
	default:
		return nil, errors.Newf("ambiguous base ticket for type %q day %q", ticketType, day)
	}
}

// ApplyDelta applies a signed increment to a ledger counter, guarded by the
// revision the caller last read. Returns the new revision, or
// domain.ErrRevisionConflict if the row changed concurrently. It never
// retries; the caller must re-read and re-evaluate availability.
func (r *Repository) ApplyDelta(ctx context.Context, tx pgx.Tx, ticketID uuid.UUID, field CounterField, delta, expectedRevision int64) (int64, error) {
	var stmt string
	switch field {
	case FieldSold:
		stmt = `
			UPDATE tickets
			SET sold = COALESCE(sold, 0) + $2, revision = revision + 1
			WHERE id = $1 AND revision = $3`
	case FieldReserved:
		stmt = `
			UPDATE tickets
			SET reserved = COALESCE(reserved, 0) + $2, revision = revision + 1
			WHERE id = $1 AND revision = $3`
	default:
		return 0, errors.Newf("unknown counter field %q", field)
	}

	result, err := tx.Exec(ctx, stmt, ticketID, delta, expectedRevision)
	if err != nil {
		return 0, err
	}
	if result.RowsAffected() == 0 {
		return 0, domain.ErrRevisionConflict
	}
	return expectedRevision + 1, nil
}
