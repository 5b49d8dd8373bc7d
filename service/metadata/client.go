package metadata

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// ErrNoMetadata is returned when the RPC node has no asset record for
// a mint. Callers fall back to showing the raw mint address.
var ErrNoMetadata = errors.New("no metadata for mint")

// TokenMetadata holds display information for a token mint.
type TokenMetadata struct {
	Mint   string
	Symbol string
	Name   string
}

// Client fetches token display metadata via the getAsset DAS method.
type Client struct {
	rpcURL     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a metadata client against a DAS-capable RPC node.
func NewClient(rpcURL string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		rpcURL:     rpcURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logger,
	}
}

type getAssetRequest struct {
	JSONRPC string         `json:"jsonrpc"`
	ID      string         `json:"id"`
	Method  string         `json:"method"`
	Params  getAssetParams `json:"params"`
}

type getAssetParams struct {
	ID string `json:"id"`
}

type getAssetResponse struct {
	Result *struct {
		Content *struct {
			Metadata struct {
				Symbol string `json:"symbol"`
				Name   string `json:"name"`
			} `json:"metadata"`
		} `json:"content"`
	} `json:"result"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// GetAsset returns symbol and name for a token mint.
// Returns ErrNoMetadata when the node has no record or the record
// carries no display metadata.
func (c *Client) GetAsset(ctx context.Context, mint string) (*TokenMetadata, error) {
	body, err := json.Marshal(getAssetRequest{
		JSONRPC: "2.0",
		ID:      "1",
		Method:  "getAsset",
		Params:  getAssetParams{ID: mint},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal getAsset request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create getAsset request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("getAsset request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read getAsset response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("getAsset returned status %d: %s", resp.StatusCode, raw)
	}

	var parsed getAssetResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode getAsset response: %w", err)
	}
	if parsed.Error != nil {
		c.logger.Debug("getAsset error from node",
			"mint", mint,
			"code", parsed.Error.Code,
			"message", parsed.Error.Message)
		return nil, fmt.Errorf("%w: %s", ErrNoMetadata, parsed.Error.Message)
	}
	if parsed.Result == nil || parsed.Result.Content == nil {
		return nil, ErrNoMetadata
	}

	md := parsed.Result.Content.Metadata
	if md.Symbol == "" && md.Name == "" {
		return nil, ErrNoMetadata
	}

	return &TokenMetadata{
		Mint:   mint,
		Symbol: md.Symbol,
		Name:   md.Name,
	}, nil
}

// DisplayName returns the best available label for a mint: symbol, then
// name, then the mint address itself. Lookup failures are not fatal.
func (c *Client) DisplayName(ctx context.Context, mint string) string {
	md, err := c.GetAsset(ctx, mint)
	if err != nil {
		return mint
	}
	if md.Symbol != "" {
		return md.Symbol
	}
	if md.Name != "" {
		return md.Name
	}
	return mint
}
