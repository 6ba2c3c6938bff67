package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
)

// Verification is the gateway's view of a transaction.
type Verification struct {
	TransactionID string
	TxRef         string
	Status        string // "successful", "failed", "pending"
	AmountCents   int64
	Currency      string
	CustomerEmail string
	CustomerName  string
}

// Successful reports whether the gateway settled the payment.
func (v *Verification) Successful() bool {
	return v.Status == "successful"
}

// Failed reports a definitive rejection, as opposed to pending or unknown.
func (v *Verification) Failed() bool {
	return v.Status == "failed"
}

// Gateway verifies transactions against the payment provider's API.
type Gateway struct {
	baseURL string
	secret  string
	client  *http.Client
}

func NewGateway(baseURL, secret string) *Gateway {
	return &Gateway{
		baseURL: baseURL,
		secret:  secret,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

type verifyEnvelope struct {
	Status string `json:"status"`
	Data   struct {
		ID       int64   `json:"id"`
		TxRef    string  `json:"tx_ref"`
		Status   string  `json:"status"`
		Amount   float64 `json:"amount"`
		Currency string  `json:"currency"`
		Customer struct {
			Email string `json:"email"`
			Name  string `json:"name"`
		} `json:"customer"`
	} `json:"data"`
}

// VerifyTransaction fetches the provider's record of a transaction by id.
// The provider reports amounts in major units; they convert to minor units
// here so the rest of the system never touches floats.
func (g *Gateway) VerifyTransaction(ctx context.Context, transactionID string) (*Verification, error) {
	url := fmt.Sprintf("%s/transactions/%s/verify", g.baseURL, transactionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+g.secret)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "gateway verify request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf("gateway verify returned %d", resp.StatusCode)
	}

	var envelope verifyEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, errors.Wrap(err, "decode gateway response")
	}
	if envelope.Status != "success" {
		return nil, errors.Newf("gateway verify status %q", envelope.Status)
	}

	return &Verification{
		TransactionID: transactionID,
		TxRef:         envelope.Data.TxRef,
		Status:        envelope.Data.Status,
		AmountCents:   int64(envelope.Data.Amount*100 + 0.5),
		Currency:      envelope.Data.Currency,
		CustomerEmail: envelope.Data.Customer.Email,
		CustomerName:  envelope.Data.Customer.Name,
	}, nil
}
