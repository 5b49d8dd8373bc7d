package pump

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

// DefaultBaseURL is the public trade-local endpoint of the quote provider.
const DefaultBaseURL = "https://pumpportal.fun/api/trade-local"

// Trade directions accepted by the quote provider.
const (
	ActionBuy  = "buy"
	ActionSell = "sell"
)

// ErrMalformedResponse indicates the provider returned 200 with an
// empty or unusable body.
var ErrMalformedResponse = errors.New("quote provider returned malformed response")

// QuoteRejectedError is returned when the provider refuses to quote a
// trade. It is terminal: retrying the same request will not help.
type QuoteRejectedError struct {
	StatusCode int
	Body       string
}

func (e *QuoteRejectedError) Error() string {
	return fmt.Sprintf("quote rejected (status %d): %s", e.StatusCode, e.Body)
}

// QuoteRequest describes a trade to be quoted. Amount is either a SOL
// quantity (buys, float64) or a percentage string like "100%" (sells).
type QuoteRequest struct {
	PublicKey        string      `json:"publicKey"`
	Action           string      `json:"action"`
	Mint             string      `json:"mint"`
	Amount           interface{} `json:"amount"`
	DenominatedInSOL string      `json:"denominatedInSol"`
	Slippage         int         `json:"slippage"`
	PriorityFee      float64     `json:"priorityFee"`
	Pool             string      `json:"pool"`
}

// Client requests serialized swap transactions from the quote provider.
// The provider returns an unsigned transaction; signing and submission
// stay with the caller so custody never leaves the service.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	slippage    int
	priorityFee float64
	pool        string
	logger      *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithSlippage sets the slippage tolerance in percent.
func WithSlippage(pct int) Option {
	return func(c *Client) { c.slippage = pct }
}

// WithPriorityFee sets the priority fee in SOL.
func WithPriorityFee(fee float64) Option {
	return func(c *Client) { c.priorityFee = fee }
}

// WithPool sets the liquidity pool identifier.
func WithPool(pool string) Option {
	return func(c *Client) { c.pool = pool }
}

// NewClient creates a quote provider client.
func NewClient(baseURL string, logger *slog.Logger, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		baseURL:     baseURL,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		slippage:    10,
		priorityFee: 0.00001,
		pool:        "pump",
		logger:      logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// QuoteBuy requests a serialized buy transaction spending amountSOL
// from the given wallet.
func (c *Client) QuoteBuy(ctx context.Context, publicKey, mint string, amountSOL float64) ([]byte, error) {
	return c.quote(ctx, QuoteRequest{
		PublicKey:        publicKey,
		Action:           ActionBuy,
		Mint:             mint,
		Amount:           amountSOL,
		DenominatedInSOL: "true",
		Slippage:         c.slippage,
		PriorityFee:      c.priorityFee,
		Pool:             c.pool,
	})
}

// QuoteSell requests a serialized sell transaction for a percentage of
// the wallet's token balance, e.g. "100%".
func (c *Client) QuoteSell(ctx context.Context, publicKey, mint, percent string) ([]byte, error) {
	return c.quote(ctx, QuoteRequest{
		PublicKey:        publicKey,
		Action:           ActionSell,
		Mint:             mint,
		Amount:           percent,
		DenominatedInSOL: "false",
		Slippage:         c.slippage,
		PriorityFee:      c.priorityFee,
		Pool:             c.pool,
	})
}

// quote POSTs the request and returns the raw serialized transaction
// bytes from the response body.
func (c *Client) quote(ctx context.Context, qr QuoteRequest) ([]byte, error) {
	body, err := json.Marshal(qr)
	if err != nil {
		return nil, fmt.Errorf("marshal quote request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create quote request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.logger.Debug("requesting trade quote",
		"action", qr.Action,
		"mint", qr.Mint,
		"pool", qr.Pool)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("quote request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read quote response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &QuoteRejectedError{
			StatusCode: resp.StatusCode,
			Body:       string(raw),
		}
	}

	if len(raw) == 0 {
		return nil, ErrMalformedResponse
	}

	return raw, nil
}
