package pump

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestQuoteBuy(t *testing.T) {
	var got QuoteRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte{0x01, 0x02, 0x03})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, testLogger())
	raw, err := client.QuoteBuy(context.Background(), "SomePubkey", "SomeMint", 0.99)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, raw)

	assert.Equal(t, "SomePubkey", got.PublicKey)
	assert.Equal(t, ActionBuy, got.Action)
	assert.Equal(t, "SomeMint", got.Mint)
	assert.Equal(t, 0.99, got.Amount)
	assert.Equal(t, "true", got.DenominatedInSOL)
	assert.Equal(t, 10, got.Slippage)
	assert.Equal(t, 0.00001, got.PriorityFee)
	assert.Equal(t, "pump", got.Pool)
}

func TestQuoteSell(t *testing.T) {
	var got QuoteRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte{0xAA})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, testLogger())
	_, err := client.QuoteSell(context.Background(), "SomePubkey", "SomeMint", "100%")
	require.NoError(t, err)

	assert.Equal(t, ActionSell, got.Action)
	assert.Equal(t, "100%", got.Amount)
	assert.Equal(t, "false", got.DenominatedInSOL)
}

func TestQuote_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "insufficient liquidity", http.StatusBadRequest)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, testLogger())
	_, err := client.QuoteBuy(context.Background(), "pk", "mint", 1.0)
	require.Error(t, err)

	var rejected *QuoteRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, http.StatusBadRequest, rejected.StatusCode)
	assert.Contains(t, rejected.Body, "insufficient liquidity")
}

func TestQuote_EmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, testLogger())
	_, err := client.QuoteBuy(context.Background(), "pk", "mint", 1.0)
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestQuote_Options(t *testing.T) {
	var got QuoteRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte{0x01})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, testLogger(),
		WithSlippage(25),
		WithPriorityFee(0.0005),
		WithPool("raydium"))

	_, err := client.QuoteBuy(context.Background(), "pk", "mint", 2.5)
	require.NoError(t, err)

	assert.Equal(t, 25, got.Slippage)
	assert.Equal(t, 0.0005, got.PriorityFee)
	assert.Equal(t, "raydium", got.Pool)
}
