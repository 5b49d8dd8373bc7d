package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// Wallet is a user's custodial wallet as reported by the service.
type Wallet struct {
	UserID     string `json:"user_id"`
	PublicKey  string `json:"public_key"`
	ReferralID string `json:"referral_id"`
}

// TokenBalance is one token holding of a wallet.
type TokenBalance struct {
	Mint     string  `json:"mint"`
	Symbol   string  `json:"symbol"`
	Amount   uint64  `json:"amount"`
	UIAmount float64 `json:"ui_amount"`
	Decimals int     `json:"decimals"`
}

// Balances is the full balance picture of a wallet.
type Balances struct {
	Lamports uint64         `json:"lamports"`
	SOL      float64        `json:"sol"`
	Tokens   []TokenBalance `json:"tokens"`
}

// ReferralInfo is a user's own referral code and referral count.
type ReferralInfo struct {
	ReferralCode  string `json:"referral_code"`
	ReferredCount int64  `json:"referred_count"`
}

// Client is the HTTP client for the trading service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new trading service client.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 150 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

// GetWallet returns the user's wallet, creating it on first contact.
func (c *Client) GetWallet(ctx context.Context, userID string) (*Wallet, error) {
	var w Wallet
	if err := c.get(ctx, c.userPath(userID, "wallet"), &w); err != nil {
		return nil, err
	}
	return &w, nil
}

// GetBalances returns native and token balances for the user.
func (c *Client) GetBalances(ctx context.Context, userID string) (*Balances, error) {
	var b Balances
	if err := c.get(ctx, c.userPath(userID, "balances"), &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// ExportPrivateKey returns the base58 secret key for the user's backup.
func (c *Client) ExportPrivateKey(ctx context.Context, userID string) (string, error) {
	var resp struct {
		PrivateKey string `json:"private_key"`
	}
	if err := c.get(ctx, c.userPath(userID, "export-key"), &resp); err != nil {
		return "", err
	}
	return resp.PrivateKey, nil
}

// GetReferralInfo returns the user's referral code and referral count.
func (c *Client) GetReferralInfo(ctx context.Context, userID string) (*ReferralInfo, error) {
	var info ReferralInfo
	if err := c.get(ctx, c.userPath(userID, "referral"), &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// SetReferrer attributes the user to a referral code. Returns whether
// the attribution was applied; false means a referrer was already set.
func (c *Client) SetReferrer(ctx context.Context, userID, referralCode string) (bool, error) {
	var resp struct {
		Applied bool `json:"applied"`
	}
	err := c.post(ctx, c.userPath(userID, "referrer"), map[string]string{
		"referral_code": referralCode,
	}, &resp)
	if err != nil {
		return false, err
	}
	return resp.Applied, nil
}

// Withdraw moves SOL from the custodial wallet to an external address.
// Returns the user-facing status message.
func (c *Client) Withdraw(ctx context.Context, userID, destination string, amountSOL float64) (string, error) {
	return c.operation(ctx, c.userPath(userID, "withdraw"), map[string]any{
		"destination": destination,
		"amount_sol":  amountSOL,
	})
}

// Buy buys a token with SOL from the custodial wallet.
// Returns the user-facing status message.
func (c *Client) Buy(ctx context.Context, userID, mint string, amountSOL float64) (string, error) {
	return c.operation(ctx, c.userPath(userID, "buy"), map[string]any{
		"mint":       mint,
		"amount_sol": amountSOL,
	})
}

// Sell sells a percentage of the user's token holdings.
// Returns the user-facing status message.
func (c *Client) Sell(ctx context.Context, userID, mint, percent string) (string, error) {
	return c.operation(ctx, c.userPath(userID, "sell"), map[string]any{
		"mint":    mint,
		"percent": percent,
	})
}

func (c *Client) userPath(userID, tail string) string {
	return fmt.Sprintf("%s/api/v1/users/%s/%s", c.baseURL, url.PathEscape(userID), tail)
}

func (c *Client) operation(ctx context.Context, u string, body map[string]any) (string, error) {
	var resp struct {
		Message string `json:"message"`
	}
	if err := c.post(ctx, u, body, &resp); err != nil {
		return "", err
	}
	return resp.Message, nil
}

func (c *Client) get(ctx context.Context, u string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req, dst)
}

func (c *Client) post(ctx context.Context, u string, body any, dst any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", u, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, dst)
}

func (c *Client) do(req *http.Request, dst any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseErrorResponse(resp)
	}

	if dst != nil {
		if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// parseErrorResponse converts a non-200 response into an error.
func (c *Client) parseErrorResponse(resp *http.Response) error {
	var errResp struct {
		Error string `json:"error"`
	}

	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}

	return fmt.Errorf("request failed: %s", errResp.Error)
}
