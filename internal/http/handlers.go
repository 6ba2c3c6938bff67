package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/lumenfest/checkout-engine/internal/checkout"
	"github.com/lumenfest/checkout-engine/internal/domain"
	"github.com/lumenfest/checkout-engine/internal/idempotency"
)

type Handlers struct {
	svc   *checkout.Service
	idemp *idempotency.Idempotency
}

func NewHandlers(svc *checkout.Service, idemp *idempotency.Idempotency) *Handlers {
	return &Handlers{svc: svc, idemp: idemp}
}

type cartLineRequest struct {
	SKU           string   `json:"sku"`
	Quantity      int64    `json:"quantity"`
	SelectedDate  string   `json:"selectedDate,omitempty"`
	SelectedDates []string `json:"selectedDates,omitempty"`
}

type prepareRequest struct {
	Lines    []cartLineRequest `json:"lines"`
	Customer struct {
		Name  string `json:"name"`
		Email string `json:"email"`
		Phone string `json:"phone"`
	} `json:"customer"`
	DiscountCode string `json:"discountCode,omitempty"`
}

type lineResponse struct {
	SKU          string `json:"sku"`
	Name         string `json:"name"`
	Quantity     int64  `json:"quantity"`
	Units        int64  `json:"units"`
	UnitPrice    int64  `json:"unitPrice"`
	SelectedDate string `json:"selectedDate,omitempty"`
}

type prepareResponse struct {
	TxRef        string              `json:"tx_ref"`
	Amount       int64               `json:"amount"`
	Currency     string              `json:"currency"`
	Discount     int64               `json:"discount,omitempty"`
	Lines        []lineResponse      `json:"lines"`
	DateMetadata map[string][]string `json:"dateMetadata,omitempty"`
	ExpiresAt    string              `json:"expiresAt"`
}

type errorResponse struct {
	Error       string            `json:"error"`
	FieldErrors map[string]string `json:"fieldErrors,omitempty"`
}

// PrepareCheckout resolves the cart, places a hold, and returns the
// authoritative quote.
func (h *Handlers) PrepareCheckout(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get("Idempotency-Key")
	if replayed := h.replay(w, r, key); replayed {
		return
	}

	var req prepareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body", nil)
		return
	}

	input := checkout.PrepareInput{
		Customer: checkout.Customer{
			Name:  req.Customer.Name,
			Email: req.Customer.Email,
			Phone: req.Customer.Phone,
		},
		DiscountCode: req.DiscountCode,
	}
	for _, line := range req.Lines {
		input.Lines = append(input.Lines, checkout.CartLine{
			SKU:           line.SKU,
			Quantity:      line.Quantity,
			SelectedDate:  line.SelectedDate,
			SelectedDates: line.SelectedDates,
		})
	}

	result, err := h.svc.Prepare(r.Context(), input)
	if err != nil {
		h.writePrepareError(w, r, err)
		return
	}

	resp := prepareResponse{
		TxRef:     result.TxRef,
		Amount:    result.AmountCents,
		Currency:  result.Currency,
		Discount:  result.DiscountCents,
		ExpiresAt: result.ExpiresAt.Format(time.RFC3339),
	}
	for _, line := range result.Lines {
		resp.Lines = append(resp.Lines, lineResponse{
			SKU:          line.SKU,
			Name:         line.Name,
			Quantity:     line.Quantity,
			Units:        line.Units,
			UnitPrice:    line.UnitPriceCents,
			SelectedDate: line.SelectedDate,
		})
		if line.SelectedDate != "" {
			if resp.DateMetadata == nil {
				resp.DateMetadata = map[string][]string{}
			}
			resp.DateMetadata[line.SKU] = append(resp.DateMetadata[line.SKU], line.SelectedDate)
		}
	}
	h.writeJSON(w, r, key, http.StatusCreated, resp)
}

func (h *Handlers) writePrepareError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *checkout.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Message, verr.Fields)
	case errors.Is(err, domain.ErrUnknownSKU),
		errors.Is(err, domain.ErrSKUUnavailable),
		errors.Is(err, domain.ErrInvalidDaySelection),
		errors.Is(err, domain.ErrBaseUnavailable),
		errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error(), nil)
	case errors.Is(err, domain.ErrInsufficientInventory),
		errors.Is(err, domain.ErrRevisionConflict),
		errors.Is(err, domain.ErrSerializationFailure):
		writeError(w, http.StatusConflict, err.Error(), nil)
	case errors.Is(err, domain.ErrStoreNotConfigured):
		writeError(w, http.StatusServiceUnavailable, "checkout is temporarily unavailable", nil)
	default:
		LoggerFrom(r.Context()).WithError(err).Error("checkout prepare failed")
		writeError(w, http.StatusInternalServerError, "unexpected error", nil)
	}
}

type verifyRequest struct {
	TransactionID    string `json:"transactionId"`
	TxRef            string `json:"tx_ref"`
	ExpectedCurrency string `json:"expectedCurrency"`
}

type verifyResponse struct {
	OK            bool        `json:"ok"`
	Reason        string      `json:"reason,omitempty"`
	FinalizeError string      `json:"finalizeError,omitempty"`
	Data          interface{} `json:"data,omitempty"`
}

// VerifyCheckout confirms payment with the gateway and finalizes the sale.
func (h *Handlers) VerifyCheckout(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get("Idempotency-Key")
	if replayed := h.replay(w, r, key); replayed {
		return
	}

	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body", nil)
		return
	}

	result, err := h.svc.Verify(r.Context(), checkout.VerifyInput{
		TransactionID:    req.TransactionID,
		TxRef:            req.TxRef,
		ExpectedCurrency: req.ExpectedCurrency,
	})
	if err != nil {
		var verr *checkout.ValidationError
		switch {
		case errors.As(err, &verr):
			writeError(w, http.StatusBadRequest, verr.Message, verr.Fields)
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "reservation not found", nil)
		default:
			LoggerFrom(r.Context()).WithError(err).Error("checkout verify failed")
			writeError(w, http.StatusInternalServerError, "unexpected error", nil)
		}
		return
	}

	resp := verifyResponse{
		OK:            result.OK,
		Reason:        result.Reason,
		FinalizeError: result.FinalizeError,
	}
	if result.Order != nil {
		resp.Data = orderPayload(result.Order)
	}
	h.writeJSON(w, r, key, http.StatusOK, resp)
}

// GetOrder returns the order snapshot for a transaction reference.
func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	txRef := chi.URLParam(r, "txRef")
	order, err := h.svc.OrderByTxRef(r.Context(), txRef)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "order not found", nil)
			return
		}
		LoggerFrom(r.Context()).WithError(err).Error("order lookup failed")
		writeError(w, http.StatusInternalServerError, "unexpected error", nil)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(orderPayload(order))
}

func orderPayload(order *domain.Order) map[string]interface{} {
	lines := make([]lineResponse, 0, len(order.Lines))
	for _, line := range order.Lines {
		lines = append(lines, lineResponse{
			SKU:          line.SKU,
			Name:         line.Name,
			Quantity:     line.Quantity,
			Units:        line.Units,
			UnitPrice:    line.UnitPriceCents,
			SelectedDate: line.SelectedDate,
		})
	}
	return map[string]interface{}{
		"tx_ref":          order.TxRef,
		"amount":          order.AmountCents,
		"currency":        order.Currency,
		"lines":           lines,
		"guestSyncStatus": order.GuestSyncStatus,
		"createdAt":       order.CreatedAt.Format(time.RFC3339),
	}
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Ready"))
}

// replay writes a previously stored response for this idempotency key, if
// one exists.
func (h *Handlers) replay(w http.ResponseWriter, r *http.Request, key string) bool {
	existing, err := h.idemp.Get(r.Context(), key)
	if err != nil || existing == nil {
		return false
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(existing.Status)
	w.Write(existing.Result)
	return true
}

func (h *Handlers) writeJSON(w http.ResponseWriter, r *http.Request, idempKey string, status int, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "unexpected error", nil)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)

	h.idemp.Set(r.Context(), idempKey, idempotency.Response{Status: status, Result: data})
}

func writeError(w http.ResponseWriter, status int, message string, fields map[string]string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Error: message, FieldErrors: fields})
}
