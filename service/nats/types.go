package nats

import "time"

// TradeEvent represents a settled user operation published to NATS.
// This is published to the subject "trades.{user_id}" in JetStream.
type TradeEvent struct {
	// Operation identifiers
	UserID    string `json:"user_id"`
	Action    string `json:"action"` // withdraw, buy, sell
	Signature string `json:"signature"`

	// Trade details
	Mint            string `json:"mint,omitempty"`
	LamportsTraded  uint64 `json:"lamports_traded,omitempty"`
	LamportsFee     uint64 `json:"lamports_fee,omitempty"`
	ReferrerUserID  string `json:"referrer_user_id,omitempty"`

	// Fee settlement outcome. A trade can succeed while its fee
	// transfer fails; FeeSettled is false in that partial state.
	FeeSettled   bool   `json:"fee_settled"`
	FeeSignature string `json:"fee_signature,omitempty"`

	// Metadata
	Timestamp   time.Time `json:"timestamp"`
	PublishedAt time.Time `json:"published_at"`
}
