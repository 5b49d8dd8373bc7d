package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/cenkalti/backoff/v4"
	"github.com/gagliardetto/solana-go"

	"github.com/peelyhq/peelybot/service/retry"
	solanasvc "github.com/peelyhq/peelybot/service/solana"
)

// ErrRetriesExhausted indicates every submission attempt failed with a
// transient error. Distinct from a terminal rejection so the caller can
// tell the user to simply try again.
var ErrRetriesExhausted = errors.New("transaction submission failed after all retry attempts")

// buildFunc constructs a signed transaction anchored to the given
// blockhash. Called once per attempt, never reused across attempts,
// because blockhashes expire.
type buildFunc func(blockhash solana.Hash) (*solana.Transaction, error)

// sendAndConfirm drives one logical transaction through submission and
// confirmation. Each attempt fetches a fresh blockhash, rebuilds the
// transaction, submits it with preflight skipped, and waits for
// confirmation. Transient submission failures back off and retry;
// everything else is terminal.
func (e *Engine) sendAndConfirm(ctx context.Context, op string, build buildFunc) (solana.Signature, error) {
	var (
		finalSig solana.Signature
		prevSig  solana.Signature
		attempt  int
	)

	submit := func() error {
		attempt++

		blockhash, err := e.chain.LatestBlockhash(ctx)
		if err != nil {
			return backoff.Permanent(err)
		}

		tx, err := build(blockhash)
		if err != nil {
			return backoff.Permanent(err)
		}

		attemptSig := tx.Signatures[0]

		sig, err := e.chain.SendTransaction(ctx, tx)
		if err != nil {
			var sendErr *solanasvc.SendError
			if errors.As(err, &sendErr) {
				switch sendErr.Kind {
				case solanasvc.KindAlreadyProcessed:
					// An earlier attempt landed before we saw its ack.
					// Surface that attempt's signature, not a new one.
					finalSig = prevSig
					if finalSig.IsZero() {
						finalSig = attemptSig
					}
					e.logger.Info("transaction already processed, treating as success",
						"operation", op,
						"signature", finalSig.String())
					return nil
				case solanasvc.KindRateLimited, solanasvc.KindNodeSubmission:
					prevSig = attemptSig
					e.logger.Warn("transient submission failure, will retry",
						"operation", op,
						"attempt", attempt,
						"kind", sendErr.Kind.String(),
						"error", err)
					e.metrics.RecordSubmissionAttempt("retry")
					return err
				}
			}
			return backoff.Permanent(err)
		}

		if err := e.chain.ConfirmTransaction(ctx, sig); err != nil {
			return backoff.Permanent(err)
		}

		finalSig = sig
		e.metrics.RecordSubmissionAttempt("confirmed")
		return nil
	}

	policy := retry.NewPolicy(e.baseDelay, e.maxRetries)
	if err := backoff.Retry(submit, backoff.WithContext(policy, ctx)); err != nil {
		var sendErr *solanasvc.SendError
		if errors.As(err, &sendErr) && sendErr.Transient() {
			e.metrics.RecordSubmissionAttempt("exhausted")
			return solana.Signature{}, fmt.Errorf("%w: %v", ErrRetriesExhausted, err)
		}
		e.metrics.RecordSubmissionAttempt("terminal")
		return solana.Signature{}, err
	}

	return finalSig, nil
}
