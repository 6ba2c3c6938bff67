package mongo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lumenfest/checkout-engine/internal/domain"
	"github.com/lumenfest/checkout-engine/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// AuditTrail records checkout lifecycle events in an append-only collection.
// Writes are best-effort; errors are logged and returned but callers never
// let them affect the money path.
type AuditTrail struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewAuditTrail(db *mongo.Database, logger observability.Logger) *AuditTrail {
	return &AuditTrail{
		coll:   db.Collection("checkout_audit"),
		logger: logger,
	}
}

type auditEntry struct {
	ID        uuid.UUID `bson:"_id"`
	Action    string    `bson:"action"`
	TxRef     string    `bson:"tx_ref"`
	Timestamp time.Time `bson:"timestamp"`
	Data      bson.M    `bson:"data"`
}

func (a *AuditTrail) Record(ctx context.Context, action, txRef string, data map[string]interface{}) error {
	entry := auditEntry{
		ID:        uuid.New(),
		Action:    action,
		TxRef:     txRef,
		Timestamp: time.Now().UTC(),
		Data:      bson.M(data),
	}
	_, err := a.coll.InsertOne(ctx, entry)
	if err != nil {
		a.logger.WithError(err).Error("failed to insert audit entry")
		return err
	}
	return nil
}

func (a *AuditTrail) RecordHoldCreated(ctx context.Context, res domain.Reservation) error {
	return a.Record(ctx, "hold.created", res.TxRef, map[string]interface{}{
		"amount_cents": res.AmountCents,
		"currency":     res.Currency,
		"line_count":   len(res.Lines),
		"expires_at":   res.ExpiresAt.Format(time.RFC3339),
	})
}

func (a *AuditTrail) RecordHoldExpired(ctx context.Context, res domain.Reservation) error {
	return a.Record(ctx, "hold.expired", res.TxRef, map[string]interface{}{
		"expired_at": res.ExpiresAt.Format(time.RFC3339),
	})
}

func (a *AuditTrail) RecordOrderConfirmed(ctx context.Context, order domain.Order) error {
	return a.Record(ctx, "order.confirmed", order.TxRef, map[string]interface{}{
		"order_id":       order.ID,
		"amount_cents":   order.AmountCents,
		"gateway_tx_id":  order.GatewayTransactionID,
		"gateway_status": order.GatewayStatus,
	})
}

// RecordFinalizeDivergence captures the cases where money moved but the
// ledger may not reflect it. These entries are the support reconciliation
// queue.
func (a *AuditTrail) RecordFinalizeDivergence(ctx context.Context, txRef, gatewayTxID string, cause error) error {
	return a.Record(ctx, "finalize.divergence", txRef, map[string]interface{}{
		"gateway_tx_id": gatewayTxID,
		"cause":         cause.Error(),
	})
}
