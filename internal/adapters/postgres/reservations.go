package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lumenfest/checkout-engine/internal/domain"
)

// CreateHold atomically increments reserved counters for every ticket in
// deltas and persists the reservation. All counter updates are guarded by
// their last-read revision; if any guard fails the whole hold fails and no
// partial reservation exists.
func (r *Repository) CreateHold(ctx context.Context, res domain.Reservation, deltas map[uuid.UUID]domain.HoldDelta) error {
	return r.WithTx(ctx, func(tx pgx.Tx) error {
		for ticketID, delta := range deltas {
			if _, err := r.ApplyDelta(ctx, tx, ticketID, FieldReserved, delta.Units, delta.Revision); err != nil {
				return err
			}
		}
		return insertReservation(ctx, tx, res)
	})
}

func insertReservation(ctx context.Context, tx pgx.Tx, res domain.Reservation) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO reservations (
			id, tx_ref, amount_cents, currency, customer_name, customer_email,
			customer_phone, discount_code, discount_cents, status, hold_applied,
			expires_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, res.ID, res.TxRef, res.AmountCents, res.Currency, res.CustomerName,
		res.CustomerEmail, res.CustomerPhone, res.DiscountCode, res.DiscountCents,
		res.Status, res.HoldApplied, res.ExpiresAt, res.CreatedAt)
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for i, line := range res.Lines {
		batch.Queue(`
			INSERT INTO reservation_lines (
				reservation_id, position, ticket_id, sku, name, quantity, units,
				unit_price_cents, selected_date
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, res.ID, i, line.TicketID, line.SKU, line.Name, line.Quantity,
			line.Units, line.UnitPriceCents, line.SelectedDate)
	}
	return tx.SendBatch(ctx, batch).Close()
}

// ReservationByTxRef loads a reservation and its lines.
func (r *Repository) ReservationByTxRef(ctx context.Context, txRef string) (*domain.Reservation, error) {
	var res domain.Reservation
	err := r.pool.QueryRow(ctx, `
		SELECT id, tx_ref, amount_cents, currency, customer_name, customer_email,
			customer_phone, discount_code, discount_cents, status, hold_applied,
			expires_at, created_at
		FROM reservations WHERE tx_ref = $1
	`, txRef).Scan(&res.ID, &res.TxRef, &res.AmountCents, &res.Currency,
		&res.CustomerName, &res.CustomerEmail, &res.CustomerPhone,
		&res.DiscountCode, &res.DiscountCents, &res.Status, &res.HoldApplied,
		&res.ExpiresAt, &res.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	lines, err := r.reservationLines(ctx, res.ID)
	if err != nil {
		return nil, err
	}
	res.Lines = lines
	return &res, nil
}

func (r *Repository) reservationLines(ctx context.Context, reservationID uuid.UUID) ([]domain.ReservationLine, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT ticket_id, sku, name, quantity, units, unit_price_cents, selected_date
		FROM reservation_lines WHERE reservation_id = $1 ORDER BY position
	`, reservationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []domain.ReservationLine
	for rows.Next() {
		var line domain.ReservationLine
		if err := rows.Scan(&line.TicketID, &line.SKU, &line.Name, &line.Quantity,
			&line.Units, &line.UnitPriceCents, &line.SelectedDate); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

// ListExpiredHolds returns up to limit held reservations whose TTL elapsed
// before now, oldest first.
func (r *Repository) ListExpiredHolds(ctx context.Context, now time.Time, limit int) ([]domain.Reservation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, tx_ref, amount_cents, currency, customer_name, customer_email,
			customer_phone, discount_code, discount_cents, status, hold_applied,
			expires_at, created_at
		FROM reservations
		WHERE status = 'held' AND hold_applied AND expires_at < $1
		ORDER BY expires_at ASC
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reservations []domain.Reservation
	for rows.Next() {
		var res domain.Reservation
		if err := rows.Scan(&res.ID, &res.TxRef, &res.AmountCents, &res.Currency,
			&res.CustomerName, &res.CustomerEmail, &res.CustomerPhone,
			&res.DiscountCode, &res.DiscountCents, &res.Status, &res.HoldApplied,
			&res.ExpiresAt, &res.CreatedAt); err != nil {
			return nil, err
		}
		reservations = append(reservations, res)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range reservations {
		lines, err := r.reservationLines(ctx, reservations[i].ID)
		if err != nil {
			return nil, err
		}
		reservations[i].Lines = lines
	}
	return reservations, nil
}

// ExpireHold reverses a stale hold: per line, the ticket's reserved counter
// drops by the held units, and the reservation flips to expired. One
// transaction per reservation; the caller isolates failures.
func (r *Repository) ExpireHold(ctx context.Context, res domain.Reservation) error {
	return r.releaseHold(ctx, res, domain.ReservationExpired)
}

// CancelHold releases a hold after a definitive payment failure.
func (r *Repository) CancelHold(ctx context.Context, res domain.Reservation) error {
	return r.releaseHold(ctx, res, domain.ReservationCanceled)
}

func (r *Repository) releaseHold(ctx context.Context, res domain.Reservation, status domain.ReservationStatus) error {
	return r.WithTx(ctx, func(tx pgx.Tx) error {
		for _, line := range res.Lines {
			_, err := tx.Exec(ctx, `
				UPDATE tickets
				SET reserved = GREATEST(COALESCE(reserved, 0) - $2, 0),
					revision = revision + 1
				WHERE id = $1
			`, line.TicketID, line.Units)
			if err != nil {
				return err
			}
		}
		result, err := tx.Exec(ctx, `
			UPDATE reservations
			SET status = $2, hold_applied = FALSE
			WHERE id = $1 AND status = 'held'
		`, res.ID, status)
		if err != nil {
			return err
		}
		if result.RowsAffected() == 0 {
			return domain.ErrConflict
		}
		return nil
	})
}
