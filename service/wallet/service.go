package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"

	"github.com/peelyhq/peelybot/service/db"
	solanasvc "github.com/peelyhq/peelybot/service/solana"
)

// ErrNoWallet is returned when a user has no custodial wallet yet.
var ErrNoWallet = errors.New("user has no wallet")

// Store is the persistence surface the wallet service needs.
// *db.Store satisfies it.
type Store interface {
	GetWallet(ctx context.Context, userID string) (*db.WalletRecord, error)
	CreateWallet(ctx context.Context, w db.WalletRecord) (*db.WalletRecord, error)
}

// ChainReader is the chain access the wallet service needs.
// *solana.Client satisfies it.
type ChainReader interface {
	Balance(ctx context.Context, account solana.PublicKey) (uint64, error)
	TokenAccounts(ctx context.Context, owner solana.PublicKey) ([]solanasvc.TokenAccount, error)
}

// MetadataResolver resolves a mint address to a display label.
type MetadataResolver interface {
	DisplayName(ctx context.Context, mint string) string
}

// TokenBalance is one token holding with its display label attached.
type TokenBalance struct {
	Mint     string  `json:"mint"`
	Symbol   string  `json:"symbol"`
	Amount   uint64  `json:"amount"`
	UIAmount float64 `json:"ui_amount"`
	Decimals int     `json:"decimals"`
}

// Service manages custodial wallets: generation, lookup, balances.
// Secret key material never leaves the service except through
// ExportPrivateKey, which exists for the user's own backup.
type Service struct {
	store    Store
	chain    ChainReader
	metadata MetadataResolver
	logger   *slog.Logger
}

// NewService creates a wallet service. metadata may be nil; token
// balances then show raw mint addresses.
func NewService(store Store, chain ChainReader, metadata MetadataResolver, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    store,
		chain:    chain,
		metadata: metadata,
		logger:   logger,
	}
}

// LoadOrCreate returns the user's wallet, generating and persisting a
// fresh keypair with a referral code on first contact. The store's
// conflict handling makes concurrent first contacts safe: whichever
// insert wins, every caller reads back the same stored key.
func (s *Service) LoadOrCreate(ctx context.Context, userID string) (*db.WalletRecord, error) {
	rec, err := s.store.GetWallet(ctx, userID)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("load wallet: %w", err)
	}

	account := solana.NewWallet()
	rec, err = s.store.CreateWallet(ctx, db.WalletRecord{
		UserID:     userID,
		PublicKey:  account.PublicKey().String(),
		SecretKey:  account.PrivateKey.String(),
		ReferralID: uuid.NewString(),
	})
	if err != nil {
		return nil, fmt.Errorf("create wallet: %w", err)
	}

	s.logger.Info("created custodial wallet",
		"user_id", userID,
		"public_key", rec.PublicKey)
	return rec, nil
}

// Load returns the user's wallet or ErrNoWallet.
func (s *Service) Load(ctx context.Context, userID string) (*db.WalletRecord, error) {
	rec, err := s.store.GetWallet(ctx, userID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrNoWallet
		}
		return nil, fmt.Errorf("load wallet: %w", err)
	}
	return rec, nil
}

// PrivateKey decodes the stored secret into a signing key.
func (s *Service) PrivateKey(rec *db.WalletRecord) (solana.PrivateKey, error) {
	key, err := solana.PrivateKeyFromBase58(rec.SecretKey)
	if err != nil {
		return nil, fmt.Errorf("decode stored private key: %w", err)
	}
	return key, nil
}

// DepositAddress returns the wallet's public address, creating the
// wallet if needed.
func (s *Service) DepositAddress(ctx context.Context, userID string) (string, error) {
	rec, err := s.LoadOrCreate(ctx, userID)
	if err != nil {
		return "", err
	}
	return rec.PublicKey, nil
}

// ExportPrivateKey returns the base58-encoded secret key for the
// user's own backup. Callers must deliver it over a private channel.
func (s *Service) ExportPrivateKey(ctx context.Context, userID string) (string, error) {
	rec, err := s.Load(ctx, userID)
	if err != nil {
		return "", err
	}
	return rec.SecretKey, nil
}

// Balance returns the wallet's native balance in lamports.
func (s *Service) Balance(ctx context.Context, userID string) (uint64, error) {
	rec, err := s.Load(ctx, userID)
	if err != nil {
		return 0, err
	}
	owner, err := solana.PublicKeyFromBase58(rec.PublicKey)
	if err != nil {
		return 0, fmt.Errorf("decode stored public key: %w", err)
	}
	return s.chain.Balance(ctx, owner)
}

// TokenBalances lists the wallet's token holdings with display labels.
// Metadata lookups are best-effort; a mint with no metadata shows its
// raw address.
func (s *Service) TokenBalances(ctx context.Context, userID string) ([]TokenBalance, error) {
	rec, err := s.Load(ctx, userID)
	if err != nil {
		return nil, err
	}
	owner, err := solana.PublicKeyFromBase58(rec.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("decode stored public key: %w", err)
	}

	accounts, err := s.chain.TokenAccounts(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("list token accounts: %w", err)
	}

	balances := make([]TokenBalance, 0, len(accounts))
	for _, acct := range accounts {
		if acct.UIAmount == 0 {
			continue
		}
		symbol := acct.Mint
		if s.metadata != nil {
			symbol = s.metadata.DisplayName(ctx, acct.Mint)
		}
		balances = append(balances, TokenBalance{
			Mint:     acct.Mint,
			Symbol:   symbol,
			Amount:   acct.Amount,
			UIAmount: acct.UIAmount,
			Decimals: acct.Decimals,
		})
	}
	return balances, nil
}
