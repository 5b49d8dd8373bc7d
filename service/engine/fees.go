package engine

import (
	"math"

	"github.com/gagliardetto/solana-go"
)

// Platform fee is 1% of the traded amount. A referred user's referrer
// receives 35% of that fee, the platform keeps the rest.
const (
	referrerShareBps   = 3500 // 35% of the fee in basis points
	bpsDenominator     = 10000
	feeRateDenominator = 100 // fee is 1% of the traded amount
)

// RentExemptReserveLamports is the minimum balance a wallet must hold
// to stay rent-exempt on the network (0.00203928 SOL).
const RentExemptReserveLamports uint64 = 2_039_280

// FeeSplit is the division of a gross fee between platform and an
// optional referrer. ReferrerLamports is zero when no referrer exists.
// PlatformLamports + ReferrerLamports always equals GrossLamports.
type FeeSplit struct {
	GrossLamports    uint64
	PlatformLamports uint64
	ReferrerLamports uint64
}

// SplitFee divides a gross fee. Integer division floors the referrer
// share so the platform absorbs the remainder and the sum stays exact.
func SplitFee(grossLamports uint64, hasReferrer bool) FeeSplit {
	split := FeeSplit{
		GrossLamports:    grossLamports,
		PlatformLamports: grossLamports,
	}
	if hasReferrer {
		split.ReferrerLamports = grossLamports * referrerShareBps / bpsDenominator
		split.PlatformLamports = grossLamports - split.ReferrerLamports
	}
	return split
}

// SplitBuyAmount divides a requested buy amount into the lamports sent
// to the quoting service (99%) and the lamports reserved as the
// platform fee (1%). The trade share is floored; the fee absorbs the
// truncation remainder so the two always sum to the full amount.
func SplitBuyAmount(amountSOL float64) (tradeLamports, feeLamports uint64) {
	total := SOLToLamports(amountSOL)
	tradeLamports = SOLToLamports(0.99 * amountSOL)
	feeLamports = total - tradeLamports
	return tradeLamports, feeLamports
}

// SellFeeLamports computes the fee owed after a sell: 1% of the
// wallet's post-trade balance, floored.
func SellFeeLamports(postTradeBalance uint64) uint64 {
	return postTradeBalance / feeRateDenominator
}

// SOLToLamports converts a fractional SOL amount to lamports by floor
// truncation. Truncation, not rounding, so a transfer can never exceed
// what the user asked for.
func SOLToLamports(sol float64) uint64 {
	return uint64(math.Floor(sol * float64(solana.LAMPORTS_PER_SOL)))
}

// LamportsToSOL converts lamports back to a fractional SOL amount for
// display and for quoting-service payloads.
func LamportsToSOL(lamports uint64) float64 {
	return float64(lamports) / float64(solana.LAMPORTS_PER_SOL)
}
