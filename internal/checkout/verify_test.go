package checkout_test

import (
	"context"
	"testing"

	"github.com/lumenfest/checkout-engine/internal/checkout"
	"github.com/lumenfest/checkout-engine/internal/domain"
	"github.com/lumenfest/checkout-engine/internal/payments"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// prepareHeld places a hold and points the fake gateway at a verification
// that matches it exactly.
func prepareHeld(t *testing.T, svc *checkout.Service, deps *serviceDeps, in checkout.PrepareInput) *checkout.PrepareResult {
	t.Helper()
	result, err := svc.Prepare(context.Background(), in)
	require.NoError(t, err)
	deps.gateway.verification = &payments.Verification{
		TxRef:       result.TxRef,
		Status:      "successful",
		AmountCents: result.AmountCents,
		Currency:    result.Currency,
	}
	return result
}

func singleLineCart() checkout.PrepareInput {
	return checkout.PrepareInput{
		Lines:    []checkout.CartLine{{SKU: "GA-DAY1", Quantity: 2}},
		Customer: validCustomer(),
	}
}

func TestVerifyConfirmsSale(t *testing.T) {
	ticket := gaTicket("GA-DAY1", "2026-07-10", 100)
	store := newFakeStore(ticket)
	svc, deps := newTestService(t, store, nil)
	prepared := prepareHeld(t, svc, deps, singleLineCart())

	result, err := svc.Verify(context.Background(), checkout.VerifyInput{
		TransactionID: "9001", TxRef: prepared.TxRef,
	})
	require.NoError(t, err)

	assert.True(t, result.OK)
	assert.Empty(t, result.Reason)
	assert.Empty(t, result.FinalizeError)
	require.NotNil(t, result.Order)
	assert.Equal(t, prepared.TxRef, result.Order.TxRef)
	assert.Equal(t, "9001", result.Order.GatewayTransactionID)

	assert.Equal(t, int64(2), ticket.Sold)
	assert.Equal(t, int64(0), ticket.Reserved)

	res, err := store.ReservationByTxRef(context.Background(), prepared.TxRef)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationConfirmed, res.Status)

	assert.Equal(t, 1, deps.guests.calls)
	assert.Equal(t, 1, deps.audit.confirmed)
}

func TestVerifyIdempotent(t *testing.T) {
	ticket := gaTicket("GA-DAY1", "2026-07-10", 100)
	store := newFakeStore(ticket)
	svc, deps := newTestService(t, store, nil)
	prepared := prepareHeld(t, svc, deps, singleLineCart())
	in := checkout.VerifyInput{TransactionID: "9001", TxRef: prepared.TxRef}

	first, err := svc.Verify(context.Background(), in)
	require.NoError(t, err)
	second, err := svc.Verify(context.Background(), in)
	require.NoError(t, err)

	assert.True(t, first.OK)
	assert.True(t, second.OK)
	assert.Equal(t, first.Order.ID, second.Order.ID)

	// Counters moved exactly once.
	assert.Equal(t, int64(2), ticket.Sold)
	assert.Equal(t, int64(0), ticket.Reserved)
	assert.Len(t, store.orders, 1)
}

func TestVerifyIncrementsDiscountUsage(t *testing.T) {
	store := newFakeStore(gaTicket("GA-DAY1", "2026-07-10", 100))
	discounts := map[string]*domain.Discount{
		"FEST10": {Code: "FEST10", Type: domain.DiscountPercentage, Value: 10, Active: true},
	}
	svc, deps := newTestService(t, store, discounts)
	in := singleLineCart()
	in.DiscountCode = "FEST10"
	prepared := prepareHeld(t, svc, deps, in)

	verifyIn := checkout.VerifyInput{TransactionID: "9001", TxRef: prepared.TxRef}
	_, err := svc.Verify(context.Background(), verifyIn)
	require.NoError(t, err)
	_, err = svc.Verify(context.Background(), verifyIn)
	require.NoError(t, err)

	assert.Equal(t, int64(1), store.discountUses["FEST10"])
}

func TestVerifyAmountMismatch(t *testing.T) {
	ticket := gaTicket("GA-DAY1", "2026-07-10", 100)
	store := newFakeStore(ticket)
	svc, deps := newTestService(t, store, nil)
	prepared := prepareHeld(t, svc, deps, singleLineCart())
	deps.gateway.verification.AmountCents -= 500

	result, err := svc.Verify(context.Background(), checkout.VerifyInput{
		TransactionID: "9001", TxRef: prepared.TxRef,
	})
	require.NoError(t, err)

	assert.False(t, result.OK)
	assert.Equal(t, "amount mismatch", result.Reason)
	assert.Equal(t, 1, deps.audit.divergenceCount())

	// Successful-but-wrong payments keep the hold until the TTL sweep.
	res, err := store.ReservationByTxRef(context.Background(), prepared.TxRef)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationHeld, res.Status)
	assert.Equal(t, int64(2), ticket.Reserved)
}

func TestVerifyFailedPaymentReleasesHold(t *testing.T) {
	ticket := gaTicket("GA-DAY1", "2026-07-10", 100)
	store := newFakeStore(ticket)
	svc, deps := newTestService(t, store, nil)
	prepared := prepareHeld(t, svc, deps, singleLineCart())
	deps.gateway.verification.Status = "failed"

	result, err := svc.Verify(context.Background(), checkout.VerifyInput{
		TransactionID: "9001", TxRef: prepared.TxRef,
	})
	require.NoError(t, err)

	assert.False(t, result.OK)
	assert.Equal(t, "payment not successful", result.Reason)

	res, err := store.ReservationByTxRef(context.Background(), prepared.TxRef)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationCanceled, res.Status)
	assert.Equal(t, int64(0), ticket.Reserved)
}

func TestVerifyPendingPaymentKeepsHold(t *testing.T) {
	ticket := gaTicket("GA-DAY1", "2026-07-10", 100)
	store := newFakeStore(ticket)
	svc, deps := newTestService(t, store, nil)
	prepared := prepareHeld(t, svc, deps, singleLineCart())
	deps.gateway.verification.Status = "pending"

	result, err := svc.Verify(context.Background(), checkout.VerifyInput{
		TransactionID: "9001", TxRef: prepared.TxRef,
	})
	require.NoError(t, err)

	assert.False(t, result.OK)
	assert.Equal(t, "payment not successful", result.Reason)

	res, err := store.ReservationByTxRef(context.Background(), prepared.TxRef)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationHeld, res.Status)
	assert.Equal(t, int64(2), ticket.Reserved)
}

func TestVerifyTxRefMismatch(t *testing.T) {
	store := newFakeStore(gaTicket("GA-DAY1", "2026-07-10", 100))
	svc, deps := newTestService(t, store, nil)
	prepared := prepareHeld(t, svc, deps, singleLineCart())
	deps.gateway.verification.TxRef = "LMF-0-dead"

	result, err := svc.Verify(context.Background(), checkout.VerifyInput{
		TransactionID: "9001", TxRef: prepared.TxRef,
	})
	require.NoError(t, err)
	assert.False(t, result.OK)
	assert.Equal(t, "transaction reference mismatch", result.Reason)
}

func TestVerifyCurrencyMismatch(t *testing.T) {
	store := newFakeStore(gaTicket("GA-DAY1", "2026-07-10", 100))
	svc, deps := newTestService(t, store, nil)
	prepared := prepareHeld(t, svc, deps, singleLineCart())

	result, err := svc.Verify(context.Background(), checkout.VerifyInput{
		TransactionID: "9001", TxRef: prepared.TxRef, ExpectedCurrency: "EUR",
	})
	require.NoError(t, err)
	assert.False(t, result.OK)
	assert.Equal(t, "currency mismatch", result.Reason)
}

func TestVerifyFinalizeFailureIsNotAReason(t *testing.T) {
	store := newFakeStore(gaTicket("GA-DAY1", "2026-07-10", 100))
	svc, deps := newTestService(t, store, nil)
	prepared := prepareHeld(t, svc, deps, singleLineCart())
	store.finalizeErr = errGatewayDown

	result, err := svc.Verify(context.Background(), checkout.VerifyInput{
		TransactionID: "9001", TxRef: prepared.TxRef,
	})
	require.NoError(t, err)

	assert.False(t, result.OK)
	assert.Empty(t, result.Reason)
	assert.NotEmpty(t, result.FinalizeError)
	assert.Equal(t, 1, deps.audit.divergenceCount())
}

func TestVerifyConflictRecoversWinnerOrder(t *testing.T) {
	ticket := gaTicket("GA-DAY1", "2026-07-10", 100)
	store := newFakeStore(ticket)
	svc, deps := newTestService(t, store, nil)
	prepared := prepareHeld(t, svc, deps, singleLineCart())

	// A concurrent verify wins the finalize race just before ours commits.
	var winner *domain.Order
	store.beforeFinalize = func(s *fakeStore) {
		s.beforeFinalize = nil
		res := s.reservations[prepared.TxRef]
		order := domain.NewOrder(*res, "9000", "successful", res.AmountCents, testNow)
		_ = s.FinalizeReservation(context.Background(), *res, order)
		winner = &order
	}

	result, err := svc.Verify(context.Background(), checkout.VerifyInput{
		TransactionID: "9001", TxRef: prepared.TxRef,
	})
	require.NoError(t, err)

	assert.True(t, result.OK)
	require.NotNil(t, winner)
	assert.Equal(t, winner.ID, result.Order.ID)
	assert.Equal(t, int64(2), ticket.Sold)
	assert.Len(t, store.orders, 1)
}

func TestVerifyExpiredReservationAfterPayment(t *testing.T) {
	store := newFakeStore(gaTicket("GA-DAY1", "2026-07-10", 100))
	svc, deps := newTestService(t, store, nil)
	prepared := prepareHeld(t, svc, deps, singleLineCart())
	store.reservations[prepared.TxRef].Status = domain.ReservationExpired

	result, err := svc.Verify(context.Background(), checkout.VerifyInput{
		TransactionID: "9001", TxRef: prepared.TxRef,
	})
	require.NoError(t, err)

	assert.False(t, result.OK)
	assert.Equal(t, "reservation no longer held", result.FinalizeError)
	assert.Equal(t, 1, deps.audit.divergenceCount())
}

func TestVerifyUnknownTxRef(t *testing.T) {
	store := newFakeStore(gaTicket("GA-DAY1", "2026-07-10", 100))
	svc, deps := newTestService(t, store, nil)
	deps.gateway.verification = &payments.Verification{Status: "successful", Currency: "USD"}

	_, err := svc.Verify(context.Background(), checkout.VerifyInput{
		TransactionID: "9001", TxRef: "LMF-0-beef",
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestVerifyGatewayError(t *testing.T) {
	store := newFakeStore(gaTicket("GA-DAY1", "2026-07-10", 100))
	svc, deps := newTestService(t, store, nil)
	deps.gateway.err = errGatewayDown

	_, err := svc.Verify(context.Background(), checkout.VerifyInput{
		TransactionID: "9001", TxRef: "LMF-0-beef",
	})
	assert.ErrorIs(t, err, errGatewayDown)
}

func TestVerifyGuestSyncFailureDoesNotFailSale(t *testing.T) {
	store := newFakeStore(gaTicket("GA-DAY1", "2026-07-10", 100))
	svc, deps := newTestService(t, store, nil)
	prepared := prepareHeld(t, svc, deps, singleLineCart())
	deps.guests.err = errGatewayDown

	result, err := svc.Verify(context.Background(), checkout.VerifyInput{
		TransactionID: "9001", TxRef: prepared.TxRef,
	})
	require.NoError(t, err)
	assert.True(t, result.OK)

	order, err := store.OrderByTxRef(context.Background(), prepared.TxRef)
	require.NoError(t, err)
	assert.Equal(t, domain.GuestSyncFailed, order.GuestSyncStatus)
}

func TestVerifyRequiresIdentifiers(t *testing.T) {
	svc, _ := newTestService(t, newFakeStore(), nil)

	_, err := svc.Verify(context.Background(), checkout.VerifyInput{TxRef: "LMF-0-beef"})
	var verr *checkout.ValidationError
	assert.ErrorAs(t, err, &verr)
}
