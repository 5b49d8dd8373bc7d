package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"

	"github.com/peelyhq/peelybot/service/db"
	"github.com/peelyhq/peelybot/service/engine"
	"github.com/peelyhq/peelybot/service/wallet"
)

const (
	maxRequestBodySize = 1 << 20 // 1MB
	maxAddressLength   = 100     // Solana addresses are 44 chars, give buffer
)

var (
	// Valid Solana address characters: base58 (no 0, O, I, l)
	validAddressRegex = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]+$`)
)

type walletResponse struct {
	UserID     string `json:"user_id"`
	PublicKey  string `json:"public_key"`
	ReferralID string `json:"referral_id"`
}

type balancesResponse struct {
	Lamports uint64                `json:"lamports"`
	SOL      float64               `json:"sol"`
	Tokens   []wallet.TokenBalance `json:"tokens"`
}

type operationResponse struct {
	Message string `json:"message"`
}

type withdrawRequest struct {
	Destination string  `json:"destination"`
	AmountSOL   float64 `json:"amount_sol"`
}

type buyRequest struct {
	Mint      string  `json:"mint"`
	AmountSOL float64 `json:"amount_sol"`
}

type sellRequest struct {
	Mint    string `json:"mint"`
	Percent string `json:"percent"`
}

type setReferrerRequest struct {
	ReferralCode string `json:"referral_code"`
}

// handleGetWallet returns the user's custodial wallet, creating it on
// first contact.
// GET /api/v1/users/{user_id}/wallet
func handleGetWallet(wallets *wallet.Service, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.PathValue("user_id")
		if userID == "" {
			writeError(w, "user_id is required", http.StatusBadRequest)
			return
		}

		rec, err := wallets.LoadOrCreate(r.Context(), userID)
		if err != nil {
			logger.Error("failed to load or create wallet", "user_id", userID, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, walletResponse{
			UserID:     rec.UserID,
			PublicKey:  rec.PublicKey,
			ReferralID: rec.ReferralID,
		}, http.StatusOK)
	})
}

// handleGetBalances returns native and token balances for the user.
// GET /api/v1/users/{user_id}/balances
func handleGetBalances(wallets *wallet.Service, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.PathValue("user_id")

		lamports, err := wallets.Balance(r.Context(), userID)
		if err != nil {
			if errors.Is(err, wallet.ErrNoWallet) {
				writeError(w, "wallet not found", http.StatusNotFound)
				return
			}
			logger.Error("failed to read balance", "user_id", userID, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		tokens, err := wallets.TokenBalances(r.Context(), userID)
		if err != nil {
			logger.Error("failed to list token balances", "user_id", userID, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, balancesResponse{
			Lamports: lamports,
			SOL:      engine.LamportsToSOL(lamports),
			Tokens:   tokens,
		}, http.StatusOK)
	})
}

// handleExportKey returns the base58 secret key for the user's backup.
// GET /api/v1/users/{user_id}/export-key
func handleExportKey(wallets *wallet.Service, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.PathValue("user_id")

		secret, err := wallets.ExportPrivateKey(r.Context(), userID)
		if err != nil {
			if errors.Is(err, wallet.ErrNoWallet) {
				writeError(w, "wallet not found", http.StatusNotFound)
				return
			}
			logger.Error("failed to export key", "user_id", userID, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		logger.Info("private key exported", "user_id", userID)
		writeJSON(w, map[string]string{"private_key": secret}, http.StatusOK)
	})
}

// loadEngineWallet resolves a user to engine key material, creating the
// wallet if this is the user's first interaction.
func loadEngineWallet(r *http.Request, wallets *wallet.Service, userID string) (engine.Wallet, error) {
	rec, err := wallets.LoadOrCreate(r.Context(), userID)
	if err != nil {
		return engine.Wallet{}, err
	}
	key, err := wallets.PrivateKey(rec)
	if err != nil {
		return engine.Wallet{}, err
	}
	return engine.Wallet{UserID: userID, Key: key}, nil
}

// handleWithdraw moves SOL from the custodial wallet to an external address.
// POST /api/v1/users/{user_id}/withdraw
func handleWithdraw(wallets *wallet.Service, eng *engine.Engine, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.PathValue("user_id")

		var req withdrawRequest
		if err := decodeBody(w, r, &req); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := validateAddress(req.Destination); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		ew, err := loadEngineWallet(r, wallets, userID)
		if err != nil {
			logger.Error("failed to load wallet for withdraw", "user_id", userID, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		msg := eng.HandleWithdraw(r.Context(), ew, req.Destination, req.AmountSOL)
		writeJSON(w, operationResponse{Message: msg}, http.StatusOK)
	})
}

// handleBuy buys a token with SOL from the custodial wallet.
// POST /api/v1/users/{user_id}/buy
func handleBuy(wallets *wallet.Service, eng *engine.Engine, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.PathValue("user_id")

		var req buyRequest
		if err := decodeBody(w, r, &req); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := validateAddress(req.Mint); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		ew, err := loadEngineWallet(r, wallets, userID)
		if err != nil {
			logger.Error("failed to load wallet for buy", "user_id", userID, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		msg := eng.HandleBuyTransaction(r.Context(), ew, req.Mint, req.AmountSOL)
		writeJSON(w, operationResponse{Message: msg}, http.StatusOK)
	})
}

// handleSell sells a percentage of the user's token holdings.
// POST /api/v1/users/{user_id}/sell
func handleSell(wallets *wallet.Service, eng *engine.Engine, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.PathValue("user_id")

		var req sellRequest
		if err := decodeBody(w, r, &req); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := validateAddress(req.Mint); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		ew, err := loadEngineWallet(r, wallets, userID)
		if err != nil {
			logger.Error("failed to load wallet for sell", "user_id", userID, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		msg := eng.HandleSellTransaction(r.Context(), ew, req.Mint, req.Percent)
		writeJSON(w, operationResponse{Message: msg}, http.StatusOK)
	})
}

// handleSetReferrer records who referred the user. The referral code is
// resolved to the owning user; the first successful write wins and
// later writes are reported as already set.
// POST /api/v1/users/{user_id}/referrer
func handleSetReferrer(store *db.Store, wallets *wallet.Service, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.PathValue("user_id")

		var req setReferrerRequest
		if err := decodeBody(w, r, &req); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.ReferralCode == "" {
			writeError(w, "referral_code is required", http.StatusBadRequest)
			return
		}

		// Make sure the user exists before attaching a referrer.
		if _, err := wallets.LoadOrCreate(r.Context(), userID); err != nil {
			logger.Error("failed to load wallet for referral", "user_id", userID, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		owner, err := store.GetWalletByReferralID(r.Context(), req.ReferralCode)
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				writeError(w, "unknown referral code", http.StatusNotFound)
				return
			}
			logger.Error("failed to resolve referral code", "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		if owner.UserID == userID {
			writeError(w, "cannot refer yourself", http.StatusBadRequest)
			return
		}

		applied, err := store.SetReferrer(r.Context(), userID, owner.UserID)
		if err != nil {
			logger.Error("failed to set referrer", "user_id", userID, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		if !applied {
			writeJSON(w, map[string]any{"applied": false, "reason": "referrer already set"}, http.StatusOK)
			return
		}

		logger.Info("referrer set", "user_id", userID, "referrer_id", owner.UserID)
		writeJSON(w, map[string]any{"applied": true}, http.StatusOK)
	})
}

// handleGetReferral returns the user's own referral code and how many
// users they have referred.
// GET /api/v1/users/{user_id}/referral
func handleGetReferral(store *db.Store, wallets *wallet.Service, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.PathValue("user_id")

		rec, err := wallets.LoadOrCreate(r.Context(), userID)
		if err != nil {
			logger.Error("failed to load wallet for referral info", "user_id", userID, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		count, err := store.CountReferralsBy(r.Context(), userID)
		if err != nil {
			logger.Error("failed to count referrals", "user_id", userID, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, map[string]any{
			"referral_code":  rec.ReferralID,
			"referred_count": count,
		}, http.StatusOK)
	})
}

// decodeBody decodes a JSON request body with a size cap.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// validateAddress validates a wallet or mint address for format.
func validateAddress(address string) error {
	if address == "" {
		return errors.New("address is required")
	}
	if len(address) > maxAddressLength {
		return fmt.Errorf("address too long: maximum length is %d characters", maxAddressLength)
	}
	if !validAddressRegex.MatchString(address) {
		return errors.New("address contains invalid characters")
	}
	return nil
}
