package solana

// TokenAccount represents one SPL token holding of a wallet, parsed
// from the jsonParsed token-account encoding. This is our domain model,
// independent of the RPC response format.
type TokenAccount struct {
	Mint           string
	Amount         uint64
	Decimals       int
	UIAmount       float64
	UIAmountString string
}

// parsedTokenAccount mirrors the jsonParsed layout of a token account
// returned by getTokenAccountsByOwner. Only the fields we consume are
// declared; anything else in the payload is ignored.
type parsedTokenAccount struct {
	Parsed struct {
		Info struct {
			Mint        string `json:"mint"`
			Owner       string `json:"owner"`
			TokenAmount struct {
				Amount         string  `json:"amount"`
				Decimals       int     `json:"decimals"`
				UIAmount       float64 `json:"uiAmount"`
				UIAmountString string  `json:"uiAmountString"`
			} `json:"tokenAmount"`
		} `json:"info"`
		Type string `json:"type"`
	} `json:"parsed"`
}
