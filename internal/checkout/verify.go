package checkout

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/lumenfest/checkout-engine/internal/domain"
	"github.com/lumenfest/checkout-engine/internal/observability"
	"github.com/lumenfest/checkout-engine/internal/payments"
	"golang.org/x/sync/errgroup"
)

type VerifyInput struct {
	TransactionID    string
	TxRef            string
	ExpectedCurrency string
}

// VerifyResult distinguishes "payment rejected" (Reason) from "payment
// accepted but bookkeeping failed" (FinalizeError), which requires manual
// reconciliation.
type VerifyResult struct {
	OK            bool
	Reason        string
	FinalizeError string
	Order         *domain.Order
}

// Verify confirms a payment with the gateway, re-validates the reservation,
// converts reserved units into sold units, creates the order, and fires the
// best-effort post-sale side effects.
func (s *Service) Verify(ctx context.Context, in VerifyInput) (*VerifyResult, error) {
	if in.TransactionID == "" || in.TxRef == "" {
		return nil, &ValidationError{Message: "transactionId and txRef are required"}
	}

	verification, err := s.gateway.VerifyTransaction(ctx, in.TransactionID)
	if err != nil {
		return nil, errors.Wrap(err, "gateway verification")
	}

	res, err := s.store.ReservationByTxRef(ctx, in.TxRef)
	if err != nil {
		return nil, err
	}

	// Idempotent confirm: a second verify for a finished reservation
	// succeeds without double-processing.
	if res.Status == domain.ReservationConfirmed {
		order, err := s.store.OrderByTxRef(ctx, in.TxRef)
		if err != nil {
			return nil, err
		}
		return &VerifyResult{OK: true, Order: order}, nil
	}

	if res.Status != domain.ReservationHeld {
		if verification.Successful() {
			// Money moved but the hold is gone. Surface for reconciliation.
			s.recordDivergence(ctx, res.TxRef, verification.TransactionID,
				errors.Newf("payment successful but reservation is %s", res.Status))
			return &VerifyResult{OK: false, FinalizeError: "reservation no longer held"}, nil
		}
		return &VerifyResult{OK: false, Reason: "reservation no longer held"}, nil
	}

	if reason := s.checkVerification(ctx, verification, res, in.ExpectedCurrency); reason != "" {
		if verification.Failed() {
			// Definitive rejection: release the hold now instead of
			// waiting for TTL expiry.
			if err := s.store.CancelHold(ctx, *res); err != nil {
				s.logger.WithField("tx_ref", res.TxRef).WithError(err).Warn("failed to release hold after payment failure")
			}
		}
		return &VerifyResult{OK: false, Reason: reason}, nil
	}

	now := s.clock.Now()
	order := domain.NewOrder(*res, verification.TransactionID, verification.Status, verification.AmountCents, now)
	if err := s.store.FinalizeReservation(ctx, *res, order); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			// Lost a race with a concurrent confirm; re-read and treat an
			// already-confirmed reservation as success.
			if current, rerr := s.store.ReservationByTxRef(ctx, in.TxRef); rerr == nil && current.Status == domain.ReservationConfirmed {
				existing, oerr := s.store.OrderByTxRef(ctx, in.TxRef)
				if oerr == nil {
					return &VerifyResult{OK: true, Order: existing}, nil
				}
			}
		}
		observability.FinalizeFailures.Inc()
		s.logger.WithField("tx_ref", res.TxRef).WithError(err).Error("finalize failed after successful payment")
		s.recordDivergence(ctx, res.TxRef, verification.TransactionID, err)
		return &VerifyResult{OK: false, FinalizeError: "payment accepted but finalization failed"}, nil
	}

	s.runPostSaleEffects(ctx, res, &order)

	return &VerifyResult{OK: true, Order: &order}, nil
}

// checkVerification cross-checks the gateway's view of the transaction
// against the reservation. Returns an empty string when everything lines up.
func (s *Service) checkVerification(ctx context.Context, v *payments.Verification, res *domain.Reservation, expectedCurrency string) string {
	if !v.Successful() {
		return "payment not successful"
	}
	if v.TxRef != "" && v.TxRef != res.TxRef {
		return "transaction reference mismatch"
	}
	if expectedCurrency != "" && v.Currency != expectedCurrency {
		return "currency mismatch"
	}
	if v.Currency != res.Currency {
		return "currency mismatch"
	}
	if v.AmountCents != res.AmountCents {
		// Money may have moved for the wrong amount; keep a trail.
		s.recordDivergence(ctx, res.TxRef, v.TransactionID,
			errors.Newf("gateway amount %d does not match reservation amount %d", v.AmountCents, res.AmountCents))
		return "amount mismatch"
	}
	return ""
}

func (s *Service) recordDivergence(ctx context.Context, txRef, gatewayTxID string, cause error) {
	if s.audit == nil {
		return
	}
	if err := s.audit.RecordFinalizeDivergence(ctx, txRef, gatewayTxID, cause); err != nil {
		s.logger.WithField("tx_ref", txRef).WithError(err).Error("failed to record finalize divergence")
	}
}

// runPostSaleEffects performs the best-effort steps after a confirmed sale:
// discount usage increment, guest sync, audit. Failures are logged and
// swallowed; the sale is already final.
func (s *Service) runPostSaleEffects(ctx context.Context, res *domain.Reservation, order *domain.Order) {
	g, gctx := errgroup.WithContext(ctx)

	if res.DiscountCode != "" {
		g.Go(func() error {
			if err := s.store.IncrementDiscountUsage(gctx, res.DiscountCode); err != nil {
				s.logger.WithField("code", res.DiscountCode).WithError(err).Warn("failed to increment discount usage")
			}
			return nil
		})
	}

	if s.guests != nil {
		g.Go(func() error {
			detail, err := s.guests.Sync(gctx, order)
			status := domain.GuestSyncOK
			if err != nil {
				status = domain.GuestSyncFailed
				detail = err.Error()
				s.logger.WithField("tx_ref", order.TxRef).WithError(err).Warn("guest sync failed")
			}
			if err := s.store.AttachGuestSyncResult(gctx, order.ID, status, detail); err != nil {
				s.logger.WithField("tx_ref", order.TxRef).WithError(err).Warn("failed to persist guest sync result")
			}
			return nil
		})
	}

	if s.audit != nil {
		g.Go(func() error {
			_ = s.audit.RecordOrderConfirmed(gctx, *order)
			return nil
		})
	}

	_ = g.Wait()
}
