package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetWallet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/users/user1/wallet", r.URL.Path)
		assert.Equal(t, http.MethodGet, r.Method)
		json.NewEncoder(w).Encode(Wallet{
			UserID:     "user1",
			PublicKey:  "SomePubkey",
			ReferralID: "code-1",
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil, nil)
	w, err := c.GetWallet(context.Background(), "user1")
	require.NoError(t, err)
	assert.Equal(t, "SomePubkey", w.PublicKey)
	assert.Equal(t, "code-1", w.ReferralID)
}

func TestBuy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/users/user1/buy", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "SomeMint", body["mint"])
		assert.Equal(t, 1.5, body["amount_sol"])
		json.NewEncoder(w).Encode(map[string]string{"message": "Buy confirmed!"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil, nil)
	msg, err := c.Buy(context.Background(), "user1", "SomeMint", 1.5)
	require.NoError(t, err)
	assert.Equal(t, "Buy confirmed!", msg)
}

func TestSetReferrer_AlreadySet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"applied": false, "reason": "referrer already set"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil, nil)
	applied, err := c.SetReferrer(context.Background(), "user1", "some-code")
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestErrorResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "wallet not found"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil, nil)
	_, err := c.GetBalances(context.Background(), "stranger")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wallet not found")
}

func TestErrorResponse_NonJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gateway exploded", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil, nil)
	_, err := c.GetWallet(context.Background(), "user1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}
