package domain

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type ReservationStatus string

const (
	ReservationHeld      ReservationStatus = "held"
	ReservationConfirmed ReservationStatus = "confirmed"
	ReservationExpired   ReservationStatus = "expired"
	ReservationCanceled  ReservationStatus = "canceled"
)

// ReservationLine is one resolved cart line. A bundle cart line expands
// into one ReservationLine per covered day.
type ReservationLine struct {
	TicketID       uuid.UUID
	SKU            string
	Name           string
	Quantity       int64
	Units          int64
	UnitPriceCents int64
	SelectedDate   string // ISO date, empty for undated SKUs
}

// Reservation is a time-boxed hold on inventory pending payment.
type Reservation struct {
	ID            uuid.UUID
	TxRef         string
	Lines         []ReservationLine
	AmountCents   int64
	Currency      string
	CustomerName  string
	CustomerEmail string
	CustomerPhone string
	DiscountCode  string
	DiscountCents int64
	Status        ReservationStatus
	HoldApplied   bool
	ExpiresAt     time.Time
	CreatedAt     time.Time
}

// Expired reports whether the hold's TTL has elapsed.
func (r *Reservation) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// NewReservation builds a held reservation over resolved lines.
func NewReservation(txRef string, lines []ReservationLine, amountCents int64, currency string, ttl time.Duration, now time.Time) Reservation {
	return Reservation{
		ID:          uuid.New(),
		TxRef:       txRef,
		Lines:       lines,
		AmountCents: amountCents,
		Currency:    currency,
		Status:      ReservationHeld,
		HoldApplied: true,
		ExpiresAt:   now.Add(ttl),
		CreatedAt:   now,
	}
}

// NewTxRef generates a human-reconstructable transaction reference,
// e.g. LMF-1735689600-a3f91c04. Four random bytes keep same-second
// references from colliding under load.
func NewTxRef(now time.Time) string {
	buf := make([]byte, 4)
	_, _ = rand.Read(buf)
	return fmt.Sprintf("LMF-%d-%s", now.Unix(), hex.EncodeToString(buf))
}
