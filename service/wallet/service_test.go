package wallet

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peelyhq/peelybot/service/db"
	solanasvc "github.com/peelyhq/peelybot/service/solana"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockStore is an in-memory Store with the same conflict semantics as
// the real one: the first insert for a user wins.
type mockStore struct {
	wallets map[string]*db.WalletRecord
}

func newMockStore() *mockStore {
	return &mockStore{wallets: make(map[string]*db.WalletRecord)}
}

func (m *mockStore) GetWallet(ctx context.Context, userID string) (*db.WalletRecord, error) {
	w, ok := m.wallets[userID]
	if !ok {
		return nil, db.ErrNotFound
	}
	return w, nil
}

func (m *mockStore) CreateWallet(ctx context.Context, w db.WalletRecord) (*db.WalletRecord, error) {
	if existing, ok := m.wallets[w.UserID]; ok {
		return existing, nil
	}
	stored := w
	m.wallets[w.UserID] = &stored
	return &stored, nil
}

type mockChain struct {
	balance  uint64
	accounts []solanasvc.TokenAccount
	err      error
}

func (m *mockChain) Balance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	return m.balance, m.err
}

func (m *mockChain) TokenAccounts(ctx context.Context, owner solana.PublicKey) ([]solanasvc.TokenAccount, error) {
	return m.accounts, m.err
}

type mockMetadata struct {
	names map[string]string
}

func (m *mockMetadata) DisplayName(ctx context.Context, mint string) string {
	if name, ok := m.names[mint]; ok {
		return name
	}
	return mint
}

func TestLoadOrCreate_GeneratesWalletOnFirstContact(t *testing.T) {
	store := newMockStore()
	svc := NewService(store, &mockChain{}, nil, testLogger())

	rec, err := svc.LoadOrCreate(context.Background(), "user1")
	require.NoError(t, err)

	assert.Equal(t, "user1", rec.UserID)
	assert.NotEmpty(t, rec.ReferralID)

	// The stored key material must be well-formed and consistent.
	key, err := solana.PrivateKeyFromBase58(rec.SecretKey)
	require.NoError(t, err)
	assert.Equal(t, rec.PublicKey, key.PublicKey().String())
}

func TestLoadOrCreate_IsStableAcrossCalls(t *testing.T) {
	store := newMockStore()
	svc := NewService(store, &mockChain{}, nil, testLogger())

	first, err := svc.LoadOrCreate(context.Background(), "user1")
	require.NoError(t, err)

	second, err := svc.LoadOrCreate(context.Background(), "user1")
	require.NoError(t, err)

	assert.Equal(t, first.PublicKey, second.PublicKey)
	assert.Equal(t, first.SecretKey, second.SecretKey)
	assert.Equal(t, first.ReferralID, second.ReferralID)
}

func TestLoad_NoWallet(t *testing.T) {
	svc := NewService(newMockStore(), &mockChain{}, nil, testLogger())

	_, err := svc.Load(context.Background(), "stranger")
	assert.ErrorIs(t, err, ErrNoWallet)
}

func TestExportPrivateKey(t *testing.T) {
	store := newMockStore()
	svc := NewService(store, &mockChain{}, nil, testLogger())

	rec, err := svc.LoadOrCreate(context.Background(), "user1")
	require.NoError(t, err)

	exported, err := svc.ExportPrivateKey(context.Background(), "user1")
	require.NoError(t, err)
	assert.Equal(t, rec.SecretKey, exported)

	_, err = svc.ExportPrivateKey(context.Background(), "stranger")
	assert.ErrorIs(t, err, ErrNoWallet)
}

func TestBalance(t *testing.T) {
	store := newMockStore()
	svc := NewService(store, &mockChain{balance: 42}, nil, testLogger())

	_, err := svc.LoadOrCreate(context.Background(), "user1")
	require.NoError(t, err)

	balance, err := svc.Balance(context.Background(), "user1")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), balance)
}

func TestTokenBalances(t *testing.T) {
	store := newMockStore()
	chain := &mockChain{
		accounts: []solanasvc.TokenAccount{
			{Mint: "MintA", Amount: 1000, Decimals: 6, UIAmount: 0.001},
			{Mint: "MintB", Amount: 0, Decimals: 9, UIAmount: 0},
			{Mint: "MintC", Amount: 5, Decimals: 0, UIAmount: 5},
		},
	}
	metadata := &mockMetadata{names: map[string]string{"MintA": "PEEL"}}
	svc := NewService(store, chain, metadata, testLogger())

	_, err := svc.LoadOrCreate(context.Background(), "user1")
	require.NoError(t, err)

	balances, err := svc.TokenBalances(context.Background(), "user1")
	require.NoError(t, err)

	// Empty accounts are dropped.
	require.Len(t, balances, 2)
	assert.Equal(t, "PEEL", balances[0].Symbol)
	assert.Equal(t, "MintC", balances[1].Symbol, "mints without metadata show the raw address")
}

func TestTokenBalances_ChainError(t *testing.T) {
	store := newMockStore()
	chain := &mockChain{err: errors.New("rpc unavailable")}
	svc := NewService(store, chain, nil, testLogger())

	_, err := svc.LoadOrCreate(context.Background(), "user1")
	require.NoError(t, err)

	_, err = svc.TokenBalances(context.Background(), "user1")
	assert.Error(t, err)
}
