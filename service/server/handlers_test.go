package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peelyhq/peelybot/service/db"
	"github.com/peelyhq/peelybot/service/engine"
	solanasvc "github.com/peelyhq/peelybot/service/solana"
	"github.com/peelyhq/peelybot/service/wallet"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memStore backs wallet.Service in handler tests without a database.
type memStore struct {
	wallets map[string]*db.WalletRecord
}

func newMemStore() *memStore {
	return &memStore{wallets: make(map[string]*db.WalletRecord)}
}

func (m *memStore) GetWallet(ctx context.Context, userID string) (*db.WalletRecord, error) {
	w, ok := m.wallets[userID]
	if !ok {
		return nil, db.ErrNotFound
	}
	return w, nil
}

func (m *memStore) CreateWallet(ctx context.Context, w db.WalletRecord) (*db.WalletRecord, error) {
	if existing, ok := m.wallets[w.UserID]; ok {
		return existing, nil
	}
	stored := w
	m.wallets[w.UserID] = &stored
	return &stored, nil
}

// fakeChain satisfies both wallet.ChainReader and engine.ChainClient.
type fakeChain struct {
	balance uint64
}

func (f *fakeChain) Balance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	return f.balance, nil
}

func (f *fakeChain) TokenAccounts(ctx context.Context, owner solana.PublicKey) ([]solanasvc.TokenAccount, error) {
	return nil, nil
}

func (f *fakeChain) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	var h solana.Hash
	h[0] = 1
	return h, nil
}

func (f *fakeChain) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	return tx.Signatures[0], nil
}

func (f *fakeChain) ConfirmTransaction(ctx context.Context, sig solana.Signature) error {
	return nil
}

type fakeQuotes struct{}

func (fakeQuotes) QuoteBuy(ctx context.Context, publicKey, mint string, amountSOL float64) ([]byte, error) {
	return nil, nil
}

func (fakeQuotes) QuoteSell(ctx context.Context, publicKey, mint, percent string) ([]byte, error) {
	return nil, nil
}

type fakeReferrals struct{}

func (fakeReferrals) GetReferrer(ctx context.Context, userID string) (string, error) {
	return "", db.ErrNotFound
}

func (fakeReferrals) GetWallet(ctx context.Context, userID string) (*db.WalletRecord, error) {
	return nil, db.ErrNotFound
}

func newTestWalletService() *wallet.Service {
	return wallet.NewService(newMemStore(), &fakeChain{balance: 5 * solana.LAMPORTS_PER_SOL}, nil, testLogger())
}

func newTestEngine(chain *fakeChain) *engine.Engine {
	return engine.NewEngine(chain, fakeQuotes{}, fakeReferrals{}, nil,
		solana.NewWallet().PublicKey(), 1, time.Millisecond, nil, testLogger())
}

func TestHandleGetWallet_CreatesOnFirstContact(t *testing.T) {
	handler := handleGetWallet(newTestWalletService(), testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/user1/wallet", nil)
	req.SetPathValue("user_id", "user1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp walletResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "user1", resp.UserID)
	assert.NotEmpty(t, resp.PublicKey)
	assert.NotEmpty(t, resp.ReferralID)
}

func TestHandleGetBalances(t *testing.T) {
	wallets := newTestWalletService()
	_, err := wallets.LoadOrCreate(context.Background(), "user1")
	require.NoError(t, err)

	handler := handleGetBalances(wallets, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/user1/balances", nil)
	req.SetPathValue("user_id", "user1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp balancesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, uint64(5_000_000_000), resp.Lamports)
	assert.InDelta(t, 5.0, resp.SOL, 1e-9)
}

func TestHandleGetBalances_UnknownUser(t *testing.T) {
	handler := handleGetBalances(newTestWalletService(), testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/stranger/balances", nil)
	req.SetPathValue("user_id", "stranger")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleWithdraw(t *testing.T) {
	chain := &fakeChain{balance: 5 * solana.LAMPORTS_PER_SOL}
	handler := handleWithdraw(newTestWalletService(), newTestEngine(chain), testLogger())

	dest := solana.NewWallet().PublicKey().String()
	body := `{"destination": "` + dest + `", "amount_sol": 1.0}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/user1/withdraw", strings.NewReader(body))
	req.SetPathValue("user_id", "user1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp operationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.Message, "Withdrawal confirmed!")
}

func TestHandleWithdraw_PathologicalInput(t *testing.T) {
	handler := handleWithdraw(newTestWalletService(), newTestEngine(&fakeChain{}), testLogger())

	tests := []struct {
		name           string
		body           string
		expectedStatus int
	}{
		{"empty body", "", http.StatusBadRequest},
		{"not json", "not json at all", http.StatusBadRequest},
		{"missing destination", `{"amount_sol": 1.0}`, http.StatusBadRequest},
		{"invalid address characters", `{"destination": "0x1234!", "amount_sol": 1.0}`, http.StatusBadRequest},
		{"oversized address", `{"destination": "` + strings.Repeat("A", 200) + `", "amount_sol": 1.0}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/users/user1/withdraw", strings.NewReader(tt.body))
			req.SetPathValue("user_id", "user1")
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.expectedStatus, rec.Code)
		})
	}
}

func TestValidateAddress(t *testing.T) {
	assert.NoError(t, validateAddress(solana.NewWallet().PublicKey().String()))
	assert.Error(t, validateAddress(""))
	assert.Error(t, validateAddress("contains spaces here"))
	assert.Error(t, validateAddress("0OIl")) // excluded base58 characters
	assert.Error(t, validateAddress(strings.Repeat("A", maxAddressLength+1)))
}

func TestHandleSetReferrer(t *testing.T) {
	db.SkipIfNoTestDB(t)

	store := db.NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	wallets := wallet.NewService(store.Store, &fakeChain{}, nil, testLogger())

	// The referrer needs a wallet with a known referral code.
	referrer, err := wallets.LoadOrCreate(context.Background(), "referrer1")
	require.NoError(t, err)

	handler := handleSetReferrer(store.Store, wallets, testLogger())

	post := func(userID, code string) *httptest.ResponseRecorder {
		body := `{"referral_code": "` + code + `"}`
		req := httptest.NewRequest(http.MethodPost, "/api/v1/users/"+userID+"/referrer", strings.NewReader(body))
		req.SetPathValue("user_id", userID)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	t.Run("first write wins", func(t *testing.T) {
		rec := post("user1", referrer.ReferralID)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, true, resp["applied"])

		rec = post("user1", referrer.ReferralID)
		require.Equal(t, http.StatusOK, rec.Code)
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, false, resp["applied"])
	})

	t.Run("unknown code", func(t *testing.T) {
		rec := post("user2", "no-such-code")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("self referral rejected", func(t *testing.T) {
		rec := post("referrer1", referrer.ReferralID)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
