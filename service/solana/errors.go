package solana

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
)

// FailureKind is the closed set of submission failure classifications.
// All provider-specific error inspection happens once, in this file;
// callers decide retry vs. terminal by switching on the kind, never by
// matching substrings themselves.
type FailureKind int

const (
	// KindTerminal is any failure that retrying cannot fix.
	KindTerminal FailureKind = iota

	// KindRateLimited is a 429 / "Too Many Requests" response from the node.
	KindRateLimited

	// KindNodeSubmission is the node's own transaction-submission error
	// (a JSON-RPC error from sendTransaction), treated as transient.
	KindNodeSubmission

	// KindAlreadyProcessed means the transaction already landed on-chain;
	// the submission is a duplicate and the operation actually succeeded.
	KindAlreadyProcessed
)

func (k FailureKind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindNodeSubmission:
		return "node_submission"
	case KindAlreadyProcessed:
		return "already_processed"
	default:
		return "terminal"
	}
}

// SendError tags a transaction submission failure with its classification.
type SendError struct {
	Kind FailureKind
	err  error
}

// NewSendError builds a pre-classified SendError. Production code gets
// classification from the RPC boundary; this exists so collaborators
// can fabricate specific kinds in tests.
func NewSendError(kind FailureKind, err error) *SendError {
	return &SendError{Kind: kind, err: err}
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send transaction (%s): %v", e.Kind, e.err)
}

func (e *SendError) Unwrap() error {
	return e.err
}

// Transient reports whether the failure is worth retrying with backoff.
func (e *SendError) Transient() bool {
	return e.Kind == KindRateLimited || e.Kind == KindNodeSubmission
}

// OnChainError is a confirmed transaction whose execution failed on-chain.
// This is a logical rejection of the transaction, not a transport fault,
// and is always terminal.
type OnChainError struct {
	Signature solana.Signature
	TxErr     string
}

func (e *OnChainError) Error() string {
	return fmt.Sprintf("transaction %s failed on-chain: %s", e.Signature, e.TxErr)
}

// ErrConfirmationTimeout is returned when a submitted transaction is
// neither confirmed nor rejected before the confirmation deadline.
var ErrConfirmationTimeout = errors.New("transaction confirmation timed out")

// ErrBlockhashExhausted is returned when the latest blockhash could not
// be fetched within the retry budget. Without a blockhash no transaction
// can be built, so this is fatal to the enclosing operation.
var ErrBlockhashExhausted = errors.New("failed to fetch latest blockhash: all retry attempts failed")

// classifySendError maps a raw sendTransaction error onto the closed
// taxonomy. The markers follow what mainnet RPC providers actually emit.
func classifySendError(err error) *SendError {
	msg := err.Error()

	switch {
	case strings.Contains(msg, "429"), containsFold(msg, "too many requests"):
		return &SendError{Kind: KindRateLimited, err: err}
	case containsFold(msg, "already been processed"), containsFold(msg, "already processed"):
		return &SendError{Kind: KindAlreadyProcessed, err: err}
	}

	// Any other JSON-RPC error from sendTransaction is the node's own
	// submission exception; blockhash races and node lag surface here.
	var rpcErr *jsonrpc.RPCError
	if errors.As(err, &rpcErr) {
		return &SendError{Kind: KindNodeSubmission, err: err}
	}

	return &SendError{Kind: KindTerminal, err: err}
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), substr)
}
