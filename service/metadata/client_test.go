package metadata

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

func metadataServer(t *testing.T, response string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "getAsset", req["method"])
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(response))
	}))
}

func TestGetAsset(t *testing.T) {
	srv := metadataServer(t, `{
		"jsonrpc": "2.0",
		"id": "1",
		"result": {
			"content": {
				"metadata": {"symbol": "PEEL", "name": "Peely Token"}
			}
		}
	}`)
	defer srv.Close()

	client := NewClient(srv.URL, testLogger())
	md, err := client.GetAsset(context.Background(), "SomeMint")
	require.NoError(t, err)

	assert.Equal(t, "SomeMint", md.Mint)
	assert.Equal(t, "PEEL", md.Symbol)
	assert.Equal(t, "Peely Token", md.Name)
}

func TestGetAsset_NodeError(t *testing.T) {
	srv := metadataServer(t, `{
		"jsonrpc": "2.0",
		"id": "1",
		"error": {"code": -32000, "message": "asset not found"}
	}`)
	defer srv.Close()

	client := NewClient(srv.URL, testLogger())
	_, err := client.GetAsset(context.Background(), "UnknownMint")
	assert.ErrorIs(t, err, ErrNoMetadata)
}

func TestGetAsset_EmptyMetadata(t *testing.T) {
	srv := metadataServer(t, `{
		"jsonrpc": "2.0",
		"id": "1",
		"result": {"content": {"metadata": {"symbol": "", "name": ""}}}
	}`)
	defer srv.Close()

	client := NewClient(srv.URL, testLogger())
	_, err := client.GetAsset(context.Background(), "BareMint")
	assert.ErrorIs(t, err, ErrNoMetadata)
}

func TestDisplayName(t *testing.T) {
	t.Run("prefers symbol", func(t *testing.T) {
		srv := metadataServer(t, `{
			"result": {"content": {"metadata": {"symbol": "PEEL", "name": "Peely Token"}}}
		}`)
		defer srv.Close()

		client := NewClient(srv.URL, testLogger())
		assert.Equal(t, "PEEL", client.DisplayName(context.Background(), "SomeMint"))
	})

	t.Run("falls back to name", func(t *testing.T) {
		srv := metadataServer(t, `{
			"result": {"content": {"metadata": {"symbol": "", "name": "Peely Token"}}}
		}`)
		defer srv.Close()

		client := NewClient(srv.URL, testLogger())
		assert.Equal(t, "Peely Token", client.DisplayName(context.Background(), "SomeMint"))
	})

	t.Run("falls back to mint on error", func(t *testing.T) {
		srv := metadataServer(t, `{"error": {"code": -32000, "message": "nope"}}`)
		defer srv.Close()

		client := NewClient(srv.URL, testLogger())
		assert.Equal(t, "SomeMint", client.DisplayName(context.Background(), "SomeMint"))
	})
}
