package solana

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/peelyhq/peelybot/service/metrics"
	"github.com/peelyhq/peelybot/service/retry"
)

// confirmPollInterval is how often we poll signature statuses while
// waiting for confirmation.
const confirmPollInterval = 500 * time.Millisecond

// confirmTimeout bounds how long we wait for a submitted transaction to
// confirm. Blockhashes expire after roughly a minute; waiting longer
// cannot succeed.
const confirmTimeout = 75 * time.Second

// RPCClient is an interface for the Solana RPC operations we need.
// This allows us to mock the RPC layer in tests without hitting real
// Solana nodes. *rpc.Client satisfies it directly.
type RPCClient interface {
	GetLatestBlockhash(
		ctx context.Context,
		commitment rpc.CommitmentType,
	) (*rpc.GetLatestBlockhashResult, error)

	GetBalance(
		ctx context.Context,
		account solana.PublicKey,
		commitment rpc.CommitmentType,
	) (*rpc.GetBalanceResult, error)

	SendTransactionWithOpts(
		ctx context.Context,
		transaction *solana.Transaction,
		opts rpc.TransactionOpts,
	) (solana.Signature, error)

	GetSignatureStatuses(
		ctx context.Context,
		searchTransactionHistory bool,
		transactionSignatures ...solana.Signature,
	) (*rpc.GetSignatureStatusesResult, error)

	GetTokenAccountsByOwner(
		ctx context.Context,
		owner solana.PublicKey,
		conf *rpc.GetTokenAccountsConfig,
		opts *rpc.GetTokenAccountsOpts,
	) (*rpc.GetTokenAccountsResult, error)
}

// NewRPCClient creates an RPCClient backed by a real solana-go RPC client.
// For premium RPC endpoints that require API keys, include the key in the URL:
// - Helius: https://mainnet.helius-rpc.com/?api-key=YOUR-KEY
// - QuickNode: https://YOUR-ENDPOINT.quiknode.pro/YOUR-KEY/
func NewRPCClient(rpcURL string) RPCClient {
	return rpc.New(rpcURL)
}

// Client wraps the RPC client with the domain operations the engine
// needs: blockhash access, balances, submission, and confirmation.
// Submission errors come back classified (see SendError).
type Client struct {
	rpc     RPCClient
	retries int
	delay   time.Duration
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewClient creates a new Solana client. If m is nil, no metrics are
// recorded. retries and delay bound the blockhash fetch; non-positive
// values fall back to the retry package defaults.
func NewClient(rpcClient RPCClient, retries int, delay time.Duration, m *metrics.Metrics, logger *slog.Logger) *Client {
	return &Client{
		rpc:     rpcClient,
		retries: retries,
		delay:   delay,
		metrics: m,
		logger:  logger,
	}
}

// LatestBlockhash fetches the current blockhash, retrying any failure
// with exponential backoff. Every failure is treated as transient here;
// only an exhausted retry budget is fatal, reported as ErrBlockhashExhausted.
func (c *Client) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	var hash solana.Hash

	policy := retry.NewPolicy(c.delay, c.retries)
	op := func() error {
		start := time.Now()
		out, err := c.rpc.GetLatestBlockhash(ctx, rpc.CommitmentConfirmed)
		c.record("GetLatestBlockhash", err, start)
		if err != nil {
			c.logger.WarnContext(ctx, "blockhash fetch failed, will retry",
				"attempt", policy.Attempts()+1,
				"error", err,
			)
			c.metrics.RecordRPCRetry("GetLatestBlockhash", "error")
			return err
		}
		hash = out.Value.Blockhash
		return nil
	}

	if err := backoff.Retry(op, backoff.WithContext(policy, ctx)); err != nil {
		if ctx.Err() != nil {
			return solana.Hash{}, ctx.Err()
		}
		return solana.Hash{}, fmt.Errorf("%w: %v", ErrBlockhashExhausted, err)
	}
	return hash, nil
}

// Balance returns the lamport balance of an account at confirmed commitment.
func (c *Client) Balance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	start := time.Now()
	out, err := c.rpc.GetBalance(ctx, account, rpc.CommitmentConfirmed)
	c.record("GetBalance", err, start)
	if err != nil {
		return 0, fmt.Errorf("get balance for %s: %w", account, err)
	}
	return out.Value, nil
}

// SendTransaction submits a signed transaction, skipping node preflight
// and disabling the node's own resubmission loop; retry policy belongs
// to the caller. Failures come back as *SendError with a FailureKind.
func (c *Client) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	maxRetries := uint(0)
	start := time.Now()
	sig, err := c.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       true,
		PreflightCommitment: rpc.CommitmentConfirmed,
		MaxRetries:          &maxRetries,
	})
	c.record("SendTransaction", err, start)
	if err != nil {
		classified := classifySendError(err)
		if classified.Kind == KindRateLimited {
			c.metrics.RecordRateLimitHit("SendTransaction")
		}
		return solana.Signature{}, classified
	}
	return sig, nil
}

// ConfirmTransaction blocks until the network reports the transaction
// as confirmed or failed. A confirmed-but-failed transaction returns
// *OnChainError; never seeing the signature before the deadline returns
// ErrConfirmationTimeout.
func (c *Client) ConfirmTransaction(ctx context.Context, sig solana.Signature) error {
	ctx, cancel := context.WithTimeout(ctx, confirmTimeout)
	defer cancel()

	ticker := time.NewTicker(confirmPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				return fmt.Errorf("%w: %s", ErrConfirmationTimeout, sig)
			}
			return ctx.Err()
		case <-ticker.C:
		}

		start := time.Now()
		out, err := c.rpc.GetSignatureStatuses(ctx, false, sig)
		c.record("GetSignatureStatuses", err, start)
		if err != nil {
			// Status polls ride inside the confirmation deadline; a
			// flaky poll is not a verdict on the transaction.
			c.logger.DebugContext(ctx, "signature status poll failed",
				"signature", sig.String(),
				"error", err,
			)
			continue
		}

		if len(out.Value) == 0 || out.Value[0] == nil {
			continue
		}

		status := out.Value[0]
		if status.Err != nil {
			return &OnChainError{Signature: sig, TxErr: fmt.Sprintf("%v", status.Err)}
		}
		if status.ConfirmationStatus == rpc.ConfirmationStatusConfirmed ||
			status.ConfirmationStatus == rpc.ConfirmationStatusFinalized {
			return nil
		}
	}
}

// TokenAccounts lists the SPL token holdings of a wallet, using the
// jsonParsed encoding so amounts come with their decimals attached.
func (c *Client) TokenAccounts(ctx context.Context, owner solana.PublicKey) ([]TokenAccount, error) {
	tokenProgram := solana.TokenProgramID
	start := time.Now()
	out, err := c.rpc.GetTokenAccountsByOwner(ctx, owner,
		&rpc.GetTokenAccountsConfig{ProgramId: &tokenProgram},
		&rpc.GetTokenAccountsOpts{
			Commitment: rpc.CommitmentConfirmed,
			Encoding:   solana.EncodingJSONParsed,
		},
	)
	c.record("GetTokenAccountsByOwner", err, start)
	if err != nil {
		return nil, fmt.Errorf("get token accounts for %s: %w", owner, err)
	}

	accounts := make([]TokenAccount, 0, len(out.Value))
	for _, raw := range out.Value {
		if raw == nil || raw.Account.Data == nil {
			continue
		}

		var parsed parsedTokenAccount
		if err := json.Unmarshal(raw.Account.Data.GetRawJSON(), &parsed); err != nil {
			c.logger.WarnContext(ctx, "skipping unparseable token account",
				"account", raw.Pubkey.String(),
				"error", err,
			)
			continue
		}

		amount, err := strconv.ParseUint(parsed.Parsed.Info.TokenAmount.Amount, 10, 64)
		if err != nil {
			c.logger.WarnContext(ctx, "skipping token account with bad amount",
				"account", raw.Pubkey.String(),
				"error", err,
			)
			continue
		}

		accounts = append(accounts, TokenAccount{
			Mint:           parsed.Parsed.Info.Mint,
			Amount:         amount,
			Decimals:       parsed.Parsed.Info.TokenAmount.Decimals,
			UIAmount:       parsed.Parsed.Info.TokenAmount.UIAmount,
			UIAmountString: parsed.Parsed.Info.TokenAmount.UIAmountString,
		})
	}

	return accounts, nil
}

func (c *Client) record(method string, err error, start time.Time) {
	status := "success"
	if err != nil {
		status = "error"
	}
	c.metrics.RecordRPCCall(method, status, time.Since(start).Seconds())
}
