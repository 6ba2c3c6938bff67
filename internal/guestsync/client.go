package guestsync

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/lumenfest/checkout-engine/internal/domain"
)

// Client pushes confirmed guests to the external guest-management partner.
// Strictly best-effort: the caller persists the outcome for support
// visibility and never lets a failure touch the sale.
type Client struct {
	url    string
	apiKey string
	client *http.Client
}

func NewClient(url, apiKey string) *Client {
	return &Client{
		url:    url,
		apiKey: apiKey,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

type guestLine struct {
	SKU      string `json:"sku"`
	Name     string `json:"name"`
	Quantity int64  `json:"quantity"`
	Date     string `json:"date,omitempty"`
}

type guestPayload struct {
	TxRef string      `json:"reference"`
	Name  string      `json:"name"`
	Email string      `json:"email"`
	Phone string      `json:"phone,omitempty"`
	Lines []guestLine `json:"lines"`
}

// Sync posts the order's aggregated ticket lines. Returns the partner's
// response body on success. Retries transient failures twice with a short
// backoff.
func (c *Client) Sync(ctx context.Context, order *domain.Order) (string, error) {
	if c.url == "" {
		return "", errors.New("guest sync not configured")
	}

	payload := guestPayload{
		TxRef: order.TxRef,
		Name:  order.CustomerName,
		Email: order.CustomerEmail,
		Phone: order.CustomerPhone,
	}
	for _, line := range order.Lines {
		payload.Lines = append(payload.Lines, guestLine{
			SKU:      line.SKU,
			Name:     line.Name,
			Quantity: line.Quantity,
			Date:     line.SelectedDate,
		})
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}
		result, err := c.post(ctx, body)
		if err == nil {
			return result, nil
		}
		lastErr = err
	}
	return "", lastErr
}

func (c *Client) post(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "guest sync request")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", errors.Newf("guest sync returned %d: %s", resp.StatusCode, data)
	}
	return string(data), nil
}
