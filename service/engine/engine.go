package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/peelyhq/peelybot/service/db"
	"github.com/peelyhq/peelybot/service/metrics"
	natssvc "github.com/peelyhq/peelybot/service/nats"
	"github.com/peelyhq/peelybot/service/pump"
	solanasvc "github.com/peelyhq/peelybot/service/solana"
)

const explorerBaseURL = "https://solscan.io/tx/"

// ChainClient is the slice of chain RPC behavior the engine needs.
// *solana.Client satisfies it.
type ChainClient interface {
	LatestBlockhash(ctx context.Context) (solana.Hash, error)
	Balance(ctx context.Context, account solana.PublicKey) (uint64, error)
	SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
	ConfirmTransaction(ctx context.Context, sig solana.Signature) error
}

// QuoteService requests serialized swap transactions for trades.
// *pump.Client satisfies it.
type QuoteService interface {
	QuoteBuy(ctx context.Context, publicKey, mint string, amountSOL float64) ([]byte, error)
	QuoteSell(ctx context.Context, publicKey, mint, percent string) ([]byte, error)
}

// ReferralResolver looks up referral relationships and the referrer's
// custodial wallet. *db.Store satisfies it.
type ReferralResolver interface {
	GetReferrer(ctx context.Context, userID string) (string, error)
	GetWallet(ctx context.Context, userID string) (*db.WalletRecord, error)
}

// Wallet is the key material for one operation. The engine receives it
// by value and never persists it.
type Wallet struct {
	UserID string
	Key    solana.PrivateKey
}

// PublicKey returns the wallet's public address.
func (w Wallet) PublicKey() solana.PublicKey {
	return w.Key.PublicKey()
}

// Engine drives withdrawals, buys, and sells for custodial wallets:
// balance guards, transaction construction, retried submission with
// confirmation, and fee settlement with an optional referrer split.
type Engine struct {
	chain      ChainClient
	quotes     QuoteService
	referrals  ReferralResolver
	events     natssvc.Publisher
	platform   solana.PublicKey
	maxRetries int
	baseDelay  time.Duration
	sessions   *sessionGuard
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewEngine creates an Engine. The events publisher may be nil when no
// event bus is configured; metrics may be nil to disable recording.
func NewEngine(
	chain ChainClient,
	quotes QuoteService,
	referrals ReferralResolver,
	events natssvc.Publisher,
	platform solana.PublicKey,
	maxRetries int,
	baseDelay time.Duration,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		chain:      chain,
		quotes:     quotes,
		referrals:  referrals,
		events:     events,
		platform:   platform,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		sessions:   newSessionGuard(),
		metrics:    m,
		logger:     logger,
	}
}

// User-facing status strings. The chat layer renders text only, so
// every handler resolves to one of these rather than a structured
// error.
const (
	msgBusy             = "You already have an operation in progress. Please wait for it to finish."
	msgBadAmount        = "Amount must be greater than zero."
	msgBadDestination   = "Invalid destination address."
	msgBadMint          = "Invalid token address."
	msgBadPercent       = "Invalid sell percentage. Use a value like 50% or 100%."
	msgLowReserve       = "Insufficient balance. Your wallet must hold at least 0.00203928 SOL to stay rent-exempt."
	msgLowBalance       = "Insufficient balance for this amount."
	msgNodeLag          = "Transaction failed after multiple attempts due to node lag. Please try again in a moment."
	msgFeeNotSettled    = "Note: the service fee transfer did not complete. It will be collected later."
	msgBalanceCheckFail = "Could not read your wallet balance. Please try again."
)

// HandleWithdraw moves amountSOL from the user's custodial wallet to
// destination. Returns a user-facing status string.
func (e *Engine) HandleWithdraw(ctx context.Context, w Wallet, destination string, amountSOL float64) string {
	if amountSOL <= 0 {
		return msgBadAmount
	}
	dest, err := solana.PublicKeyFromBase58(destination)
	if err != nil {
		return msgBadDestination
	}

	if !e.sessions.begin(w.UserID) {
		return msgBusy
	}
	defer e.sessions.end(w.UserID)

	lamports := SOLToLamports(amountSOL)
	if msg := e.ensureSpendable(ctx, w, lamports); msg != "" {
		e.metrics.RecordWithdrawal("rejected")
		return msg
	}

	sig, err := e.sendAndConfirm(ctx, "withdraw", func(blockhash solana.Hash) (*solana.Transaction, error) {
		return BuildTransfer(blockhash, w.Key, dest, lamports)
	})
	if err != nil {
		e.metrics.RecordWithdrawal("failed")
		e.logger.Error("withdrawal failed",
			"user_id", w.UserID,
			"error", err)
		return failureMessage(err)
	}

	e.metrics.RecordWithdrawal("confirmed")
	e.publishEvent(ctx, &natssvc.TradeEvent{
		UserID:         w.UserID,
		Action:         "withdraw",
		Signature:      sig.String(),
		LamportsTraded: lamports,
		FeeSettled:     true,
		Timestamp:      time.Now().UTC(),
	})
	return "Withdrawal confirmed!\n" + explorerBaseURL + sig.String()
}

// HandleBuyTransaction buys mint with amountSOL. 99% of the amount is
// traded; 1% is reserved as the platform fee and settled in a second
// transaction after the swap confirms.
func (e *Engine) HandleBuyTransaction(ctx context.Context, w Wallet, mint string, amountSOL float64) string {
	if amountSOL <= 0 {
		return msgBadAmount
	}
	if _, err := solana.PublicKeyFromBase58(mint); err != nil {
		return msgBadMint
	}

	if !e.sessions.begin(w.UserID) {
		return msgBusy
	}
	defer e.sessions.end(w.UserID)

	tradeLamports, feeLamports := SplitBuyAmount(amountSOL)
	if msg := e.ensureSpendable(ctx, w, tradeLamports+feeLamports); msg != "" {
		e.metrics.RecordTrade("buy", "rejected", 0)
		return msg
	}

	start := time.Now()

	raw, err := e.quotes.QuoteBuy(ctx, w.PublicKey().String(), mint, LamportsToSOL(tradeLamports))
	if err != nil {
		e.metrics.RecordTrade("buy", "quote_rejected", time.Since(start).Seconds())
		e.logger.Error("buy quote failed",
			"user_id", w.UserID,
			"mint", mint,
			"error", err)
		return failureMessage(err)
	}

	sig, err := e.sendAndConfirm(ctx, "buy", func(blockhash solana.Hash) (*solana.Transaction, error) {
		return SignSwap(raw, blockhash, w.Key)
	})
	if err != nil {
		e.metrics.RecordTrade("buy", "failed", time.Since(start).Seconds())
		e.logger.Error("buy failed",
			"user_id", w.UserID,
			"mint", mint,
			"error", err)
		return failureMessage(err)
	}
	e.metrics.RecordTrade("buy", "confirmed", time.Since(start).Seconds())

	feeSig, referrerID, feeErr := e.settleFee(ctx, w, feeLamports)

	e.publishEvent(ctx, &natssvc.TradeEvent{
		UserID:         w.UserID,
		Action:         "buy",
		Signature:      sig.String(),
		Mint:           mint,
		LamportsTraded: tradeLamports,
		LamportsFee:    feeLamports,
		ReferrerUserID: referrerID,
		FeeSettled:     feeErr == nil,
		FeeSignature:   signatureString(feeSig),
		Timestamp:      time.Now().UTC(),
	})

	msg := "Buy confirmed!\n" + explorerBaseURL + sig.String()
	if feeErr != nil {
		msg += "\n" + msgFeeNotSettled
	}
	return msg
}

// HandleSellTransaction sells a percentage of the user's holdings of
// mint, e.g. "100%". The fee is 1% of the post-trade SOL balance,
// settled in a second transaction after the swap confirms.
func (e *Engine) HandleSellTransaction(ctx context.Context, w Wallet, mint, percent string) string {
	if _, err := solana.PublicKeyFromBase58(mint); err != nil {
		return msgBadMint
	}
	percent, ok := normalizePercent(percent)
	if !ok {
		return msgBadPercent
	}

	if !e.sessions.begin(w.UserID) {
		return msgBusy
	}
	defer e.sessions.end(w.UserID)

	if msg := e.ensureSpendable(ctx, w, 0); msg != "" {
		e.metrics.RecordTrade("sell", "rejected", 0)
		return msg
	}

	start := time.Now()

	raw, err := e.quotes.QuoteSell(ctx, w.PublicKey().String(), mint, percent)
	if err != nil {
		e.metrics.RecordTrade("sell", "quote_rejected", time.Since(start).Seconds())
		e.logger.Error("sell quote failed",
			"user_id", w.UserID,
			"mint", mint,
			"error", err)
		return failureMessage(err)
	}

	sig, err := e.sendAndConfirm(ctx, "sell", func(blockhash solana.Hash) (*solana.Transaction, error) {
		return SignSwap(raw, blockhash, w.Key)
	})
	if err != nil {
		e.metrics.RecordTrade("sell", "failed", time.Since(start).Seconds())
		e.logger.Error("sell failed",
			"user_id", w.UserID,
			"mint", mint,
			"error", err)
		return failureMessage(err)
	}
	e.metrics.RecordTrade("sell", "confirmed", time.Since(start).Seconds())

	// The sell fee base is the post-trade balance, not the quoted
	// amount. Both reads happen after confirmation.
	var (
		feeLamports uint64
		feeSig      solana.Signature
		referrerID  string
		feeErr      error
	)
	postBalance, err := e.chain.Balance(ctx, w.PublicKey())
	if err != nil {
		feeErr = fmt.Errorf("read post-trade balance: %w", err)
		e.logger.Error("fee settlement skipped, balance unavailable",
			"user_id", w.UserID,
			"error", err)
	} else {
		feeLamports = SellFeeLamports(postBalance)
		if feeLamports > 0 && postBalance > feeLamports+RentExemptReserveLamports {
			feeSig, referrerID, feeErr = e.settleFee(ctx, w, feeLamports)
		} else {
			// Settling would push the wallet below the rent floor.
			// The fee is waived, not deferred, so the event must not
			// report a settled fee.
			feeLamports = 0
		}
	}

	e.publishEvent(ctx, &natssvc.TradeEvent{
		UserID:         w.UserID,
		Action:         "sell",
		Signature:      sig.String(),
		Mint:           mint,
		LamportsFee:    feeLamports,
		ReferrerUserID: referrerID,
		FeeSettled:     feeErr == nil,
		FeeSignature:   signatureString(feeSig),
		Timestamp:      time.Now().UTC(),
	})

	msg := "Sell confirmed!\n" + explorerBaseURL + sig.String()
	if feeErr != nil {
		msg += "\n" + msgFeeNotSettled
	}
	return msg
}

// ensureSpendable verifies the wallet keeps its rent-exempt reserve and
// can cover lamports on top of it. Runs before any transaction is
// built so a doomed operation never spends submission retries.
func (e *Engine) ensureSpendable(ctx context.Context, w Wallet, lamports uint64) string {
	balance, err := e.chain.Balance(ctx, w.PublicKey())
	if err != nil {
		e.logger.Error("balance check failed",
			"user_id", w.UserID,
			"error", err)
		return msgBalanceCheckFail
	}
	if balance < RentExemptReserveLamports {
		return msgLowReserve
	}
	if lamports > 0 && balance < lamports+RentExemptReserveLamports {
		return msgLowBalance
	}
	return ""
}

// settleFee splits the gross fee between platform and referrer and
// drives the transfer through the submission loop. Failure does not
// roll back the already-confirmed trade; the caller reports it as a
// partial success.
func (e *Engine) settleFee(ctx context.Context, w Wallet, grossLamports uint64) (solana.Signature, string, error) {
	var (
		referrerID  string
		referrerKey *solana.PublicKey
	)

	id, err := e.referrals.GetReferrer(ctx, w.UserID)
	switch {
	case err == nil:
		rec, err := e.referrals.GetWallet(ctx, id)
		if err != nil {
			// Referrer without a custodial wallet on file gets no
			// share; the platform takes the full fee.
			e.logger.Warn("referrer has no wallet, paying full fee to platform",
				"user_id", w.UserID,
				"referrer_id", id,
				"error", err)
		} else {
			key, err := solana.PublicKeyFromBase58(rec.PublicKey)
			if err != nil {
				e.logger.Error("referrer wallet address is invalid",
					"referrer_id", id,
					"error", err)
			} else {
				referrerID = id
				referrerKey = &key
			}
		}
	case errors.Is(err, db.ErrNotFound):
		// Not referred; nothing to split.
	default:
		e.logger.Warn("referrer lookup failed, paying full fee to platform",
			"user_id", w.UserID,
			"error", err)
	}

	split := SplitFee(grossLamports, referrerKey != nil)

	sig, err := e.sendAndConfirm(ctx, "fee", func(blockhash solana.Hash) (*solana.Transaction, error) {
		return BuildFeeTransfer(blockhash, w.Key, e.platform, referrerKey, split)
	})
	if err != nil {
		e.metrics.RecordFeeSettlement("failed")
		e.logger.Error("fee settlement failed",
			"user_id", w.UserID,
			"gross_lamports", grossLamports,
			"error", err)
		return solana.Signature{}, referrerID, err
	}

	e.metrics.RecordFeeSettlement("confirmed")
	e.logger.Info("fee settled",
		"user_id", w.UserID,
		"gross_lamports", split.GrossLamports,
		"platform_lamports", split.PlatformLamports,
		"referrer_lamports", split.ReferrerLamports,
		"signature", sig.String())
	return sig, referrerID, nil
}

func (e *Engine) publishEvent(ctx context.Context, event *natssvc.TradeEvent) {
	if e.events == nil {
		return
	}
	if err := e.events.PublishTrade(ctx, event); err != nil {
		e.metrics.RecordNATSPublish("trades."+event.UserID, "error")
		e.logger.Error("failed to publish trade event",
			"user_id", event.UserID,
			"action", event.Action,
			"error", err)
		return
	}
	e.metrics.RecordNATSPublish("trades."+event.UserID, "ok")
}

// signatureString renders a signature for trade events. The zero
// signature encodes to a run of base58 ones, which downstream consumers
// would mistake for a real signature, so it becomes the empty string.
func signatureString(sig solana.Signature) string {
	if sig.IsZero() {
		return ""
	}
	return sig.String()
}

// failureMessage maps an engine failure to the text shown to the user.
func failureMessage(err error) string {
	var (
		onChain  *solanasvc.OnChainError
		rejected *pump.QuoteRejectedError
	)
	switch {
	case errors.Is(err, ErrRetriesExhausted):
		return msgNodeLag
	case errors.Is(err, solanasvc.ErrBlockhashExhausted):
		return msgNodeLag
	case errors.Is(err, solanasvc.ErrConfirmationTimeout):
		return msgNodeLag
	case errors.As(err, &onChain):
		return fmt.Sprintf("Transaction failed on-chain: %s", onChain.TxErr)
	case errors.As(err, &rejected):
		return fmt.Sprintf("Trade rejected by the quoting service (status %d).", rejected.StatusCode)
	case errors.Is(err, pump.ErrMalformedResponse):
		return "The quoting service returned an unusable response. Please try again."
	default:
		return fmt.Sprintf("Transaction failed: %v", err)
	}
}

// normalizePercent validates a sell percentage like "50%" or "100" and
// returns it in canonical "NN%" form.
func normalizePercent(s string) (string, bool) {
	trimmed := strings.TrimSuffix(strings.TrimSpace(s), "%")
	n, err := strconv.Atoi(trimmed)
	if err != nil || n <= 0 || n > 100 {
		return "", false
	}
	return strconv.Itoa(n) + "%", true
}
