package domain

import (
	"time"

	"github.com/google/uuid"
)

// GuestSyncStatus records the outcome of the best-effort guest sync.
type GuestSyncStatus string

const (
	GuestSyncPending GuestSyncStatus = "pending"
	GuestSyncOK      GuestSyncStatus = "ok"
	GuestSyncFailed  GuestSyncStatus = "failed"
)

// Order is the append-only record of a confirmed sale. It is never mutated
// after creation except to attach the guest-sync result.
type Order struct {
	ID                   uuid.UUID
	TxRef                string
	Lines                []ReservationLine
	AmountCents          int64
	Currency             string
	CustomerName         string
	CustomerEmail        string
	CustomerPhone        string
	DiscountCode         string
	DiscountCents        int64
	GatewayTransactionID string
	GatewayStatus        string
	GatewayAmountCents   int64
	GuestSyncStatus      GuestSyncStatus
	GuestSyncDetail      string
	CreatedAt            time.Time
}

// NewOrder snapshots a confirmed reservation together with the gateway
// verification data.
func NewOrder(res Reservation, gatewayTxID, gatewayStatus string, gatewayAmountCents int64, now time.Time) Order {
	return Order{
		ID:                   uuid.New(),
		TxRef:                res.TxRef,
		Lines:                res.Lines,
		AmountCents:          res.AmountCents,
		Currency:             res.Currency,
		CustomerName:         res.CustomerName,
		CustomerEmail:        res.CustomerEmail,
		CustomerPhone:        res.CustomerPhone,
		DiscountCode:         res.DiscountCode,
		DiscountCents:        res.DiscountCents,
		GatewayTransactionID: gatewayTxID,
		GatewayStatus:        gatewayStatus,
		GatewayAmountCents:   gatewayAmountCents,
		GuestSyncStatus:      GuestSyncPending,
		CreatedAt:            now,
	}
}
