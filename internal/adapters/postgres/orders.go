package postgres

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lumenfest/checkout-engine/internal/domain"
)

// FinalizeReservation converts a held reservation into a confirmed sale in
// one transaction: reserved units become sold units (revision-guarded,
// re-reading current revisions inside the transaction), the reservation
// flips to confirmed, the order snapshot is written, and the outbox record
// for order.confirmed rides the same commit.
//
// Returns domain.ErrConflict if the reservation is no longer held; the
// caller re-reads and treats an already-confirmed reservation as idempotent
// success.
func (r *Repository) FinalizeReservation(ctx context.Context, res domain.Reservation, order domain.Order) error {
	payload, err := json.Marshal(map[string]interface{}{
		"tx_ref":       order.TxRef,
		"order_id":     order.ID,
		"amount_cents": order.AmountCents,
		"currency":     order.Currency,
	})
	if err != nil {
		return err
	}
	outboxRec := OutboxRecord{
		ID:            uuid.New(),
		AggregateType: "order",
		AggregateID:   order.ID,
		EventType:     "order.confirmed",
		Payload:       payload,
		DedupeKey:     order.TxRef,
	}

	unitsByTicket := make(map[uuid.UUID]int64, len(res.Lines))
	for _, line := range res.Lines {
		unitsByTicket[line.TicketID] += line.Units
	}

	return r.WithTx(ctx, func(tx pgx.Tx) error {
		for ticketID, units := range unitsByTicket {
			var revision int64
			err := tx.QueryRow(ctx, `
				SELECT revision FROM tickets WHERE id = $1
			`, ticketID).Scan(&revision)
			if err == pgx.ErrNoRows {
				return domain.ErrNotFound
			}
			if err != nil {
				return err
			}

			if _, err := r.ApplyDelta(ctx, tx, ticketID, FieldSold, units, revision); err != nil {
				return err
			}
			if res.HoldApplied {
				result, err := tx.Exec(ctx, `
					UPDATE tickets
					SET reserved = GREATEST(COALESCE(reserved, 0) - $2, 0),
						revision = revision + 1
					WHERE id = $1 AND revision = $3
				`, ticketID, units, revision+1)
				if err != nil {
					return err
				}
				if result.RowsAffected() == 0 {
					// A silent skip here would leak reserved units.
					return domain.ErrRevisionConflict
				}
			}
		}

		result, err := tx.Exec(ctx, `
			UPDATE reservations
			SET status = 'confirmed', hold_applied = FALSE
			WHERE id = $1 AND status = 'held'
		`, res.ID)
		if err != nil {
			return err
		}
		if result.RowsAffected() == 0 {
			return domain.ErrConflict
		}

		if err := insertOrder(ctx, tx, order); err != nil {
			return err
		}
		return InsertOutbox(ctx, tx, outboxRec)
	})
}

func insertOrder(ctx context.Context, tx pgx.Tx, order domain.Order) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO orders (
			id, tx_ref, amount_cents, currency, customer_name, customer_email,
			customer_phone, discount_code, discount_cents, gateway_tx_id,
			gateway_status, gateway_amount_cents, guest_sync_status,
			guest_sync_detail, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, order.ID, order.TxRef, order.AmountCents, order.Currency,
		order.CustomerName, order.CustomerEmail, order.CustomerPhone,
		order.DiscountCode, order.DiscountCents, order.GatewayTransactionID,
		order.GatewayStatus, order.GatewayAmountCents, order.GuestSyncStatus,
		order.GuestSyncDetail, order.CreatedAt)
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for i, line := range order.Lines {
		batch.Queue(`
			INSERT INTO order_lines (
				order_id, position, ticket_id, sku, name, quantity, units,
				unit_price_cents, selected_date
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, order.ID, i, line.TicketID, line.SKU, line.Name, line.Quantity,
			line.Units, line.UnitPriceCents, line.SelectedDate)
	}
	return tx.SendBatch(ctx, batch).Close()
}

// OrderByTxRef loads a confirmed order and its lines.
func (r *Repository) OrderByTxRef(ctx context.Context, txRef string) (*domain.Order, error) {
	var order domain.Order
	err := r.pool.QueryRow(ctx, `
		SELECT id, tx_ref, amount_cents, currency, customer_name, customer_email,
			customer_phone, discount_code, discount_cents, gateway_tx_id,
			gateway_status, gateway_amount_cents, guest_sync_status,
			guest_sync_detail, created_at
		FROM orders WHERE tx_ref = $1
	`, txRef).Scan(&order.ID, &order.TxRef, &order.AmountCents, &order.Currency,
		&order.CustomerName, &order.CustomerEmail, &order.CustomerPhone,
		&order.DiscountCode, &order.DiscountCents, &order.GatewayTransactionID,
		&order.GatewayStatus, &order.GatewayAmountCents, &order.GuestSyncStatus,
		&order.GuestSyncDetail, &order.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT ticket_id, sku, name, quantity, units, unit_price_cents, selected_date
		FROM order_lines WHERE order_id = $1 ORDER BY position
	`, order.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var line domain.ReservationLine
		if err := rows.Scan(&line.TicketID, &line.SKU, &line.Name, &line.Quantity,
			&line.Units, &line.UnitPriceCents, &line.SelectedDate); err != nil {
			return nil, err
		}
		order.Lines = append(order.Lines, line)
	}
	return &order, rows.Err()
}

// AttachGuestSyncResult records the best-effort guest sync outcome on an
// order. The only mutation an order ever receives after creation.
func (r *Repository) AttachGuestSyncResult(ctx context.Context, orderID uuid.UUID, status domain.GuestSyncStatus, detail string) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE orders SET guest_sync_status = $2, guest_sync_detail = $3
		WHERE id = $1
	`, orderID, status, detail)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
