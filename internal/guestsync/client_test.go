package guestsync_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/lumenfest/checkout-engine/internal/domain"
	"github.com/lumenfest/checkout-engine/internal/guestsync"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func confirmedOrder() *domain.Order {
	return &domain.Order{
		ID:            uuid.New(),
		TxRef:         "LMF-1-cafe",
		CustomerName:  "Ada Lovelace",
		CustomerEmail: "ada@example.com",
		Lines: []domain.ReservationLine{
			{SKU: "GA-DAY1", Name: "GA Friday", Quantity: 2, Units: 2, SelectedDate: "2026-07-10"},
		},
	}
}

func TestSyncPostsGuestPayload(t *testing.T) {
	var gotKey string
	var gotBody map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-Api-Key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write([]byte(`{"synced":true}`))
	}))
	defer srv.Close()

	client := guestsync.NewClient(srv.URL, "gk_secret")
	detail, err := client.Sync(context.Background(), confirmedOrder())
	require.NoError(t, err)

	assert.Equal(t, `{"synced":true}`, detail)
	assert.Equal(t, "gk_secret", gotKey)
	assert.Equal(t, "LMF-1-cafe", gotBody["reference"])
	assert.Equal(t, "ada@example.com", gotBody["email"])
	lines, ok := gotBody["lines"].([]interface{})
	require.True(t, ok)
	require.Len(t, lines, 1)
}

func TestSyncRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"synced":true}`))
	}))
	defer srv.Close()

	client := guestsync.NewClient(srv.URL, "gk_secret")
	detail, err := client.Sync(context.Background(), confirmedOrder())
	require.NoError(t, err)
	assert.Equal(t, `{"synced":true}`, detail)
	assert.Equal(t, int32(3), calls.Load())
}

func TestSyncGivesUpAfterRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	client := guestsync.NewClient(srv.URL, "gk_secret")
	_, err := client.Sync(context.Background(), confirmedOrder())
	assert.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestSyncUnconfigured(t *testing.T) {
	client := guestsync.NewClient("", "")
	_, err := client.Sync(context.Background(), confirmedOrder())
	assert.Error(t, err)
}
