package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Store provides database operations for the service: custodial wallet
// records and referral relationships.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store with the given database connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// WalletRecord is a custodial wallet row. The secret key is stored as a
// base58-encoded string and never leaves the store layer except inside
// this struct; callers must not persist it elsewhere.
type WalletRecord struct {
	UserID     string
	PublicKey  string
	SecretKey  string
	ReferralID string
	CreatedAt  time.Time
}

// Referral is a referral relationship row. At most one referrer per
// user; the first write wins.
type Referral struct {
	UserID     string
	ReferrerID string
	CreatedAt  time.Time
}

// GetWallet loads the wallet record for a user.
// Returns ErrNotFound if the user has no wallet.
func (s *Store) GetWallet(ctx context.Context, userID string) (*WalletRecord, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT user_id, public_key, secret_key, referral_id, created_at
		FROM wallets
		WHERE user_id = $1`,
		userID,
	)

	var w WalletRecord
	if err := row.Scan(&w.UserID, &w.PublicKey, &w.SecretKey, &w.ReferralID, &w.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get wallet for user %s: %w", userID, err)
	}
	return &w, nil
}

// GetWalletByReferralID resolves a referral code to the wallet record
// of the user who owns it. Returns ErrNotFound for unknown codes.
func (s *Store) GetWalletByReferralID(ctx context.Context, referralID string) (*WalletRecord, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT user_id, public_key, secret_key, referral_id, created_at
		FROM wallets
		WHERE referral_id = $1`,
		referralID,
	)

	var w WalletRecord
	if err := row.Scan(&w.UserID, &w.PublicKey, &w.SecretKey, &w.ReferralID, &w.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get wallet by referral id: %w", err)
	}
	return &w, nil
}

// CreateWallet inserts a wallet record for a user. Key material is
// immutable once generated and 1:1 with the user, so a conflicting
// insert is a no-op and the already-stored record is returned.
func (s *Store) CreateWallet(ctx context.Context, w WalletRecord) (*WalletRecord, error) {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO wallets (user_id, public_key, secret_key, referral_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO NOTHING`,
		w.UserID, w.PublicKey, w.SecretKey, w.ReferralID,
	)
	if err != nil {
		return nil, fmt.Errorf("create wallet for user %s: %w", w.UserID, err)
	}
	return s.GetWallet(ctx, w.UserID)
}

// ListWallets returns all wallet records, newest first.
func (s *Store) ListWallets(ctx context.Context) ([]*WalletRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT user_id, public_key, secret_key, referral_id, created_at
		FROM wallets
		ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list wallets: %w", err)
	}
	defer rows.Close()

	var wallets []*WalletRecord
	for rows.Next() {
		var w WalletRecord
		if err := rows.Scan(&w.UserID, &w.PublicKey, &w.SecretKey, &w.ReferralID, &w.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan wallet row: %w", err)
		}
		wallets = append(wallets, &w)
	}
	return wallets, rows.Err()
}

// SetReferrer records the referrer for a user. The first write wins:
// a user whose referrer is already set keeps it, and the method reports
// applied=false so the caller can tell the user.
func (s *Store) SetReferrer(ctx context.Context, userID, referrerID string) (applied bool, err error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO referrals (user_id, referrer_id)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO NOTHING`,
		userID, referrerID,
	)
	if err != nil {
		return false, fmt.Errorf("set referrer for user %s: %w", userID, err)
	}
	return tag.RowsAffected() == 1, nil
}

// GetReferrer returns the referrer user ID for a user.
// Returns ErrNotFound if the user was not referred.
func (s *Store) GetReferrer(ctx context.Context, userID string) (string, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT referrer_id
		FROM referrals
		WHERE user_id = $1`,
		userID,
	)

	var referrerID string
	if err := row.Scan(&referrerID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("get referrer for user %s: %w", userID, err)
	}
	return referrerID, nil
}

// ListReferrals returns all referral relationships, newest first.
func (s *Store) ListReferrals(ctx context.Context) ([]*Referral, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT user_id, referrer_id, created_at
		FROM referrals
		ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list referrals: %w", err)
	}
	defer rows.Close()

	var referrals []*Referral
	for rows.Next() {
		var r Referral
		if err := rows.Scan(&r.UserID, &r.ReferrerID, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan referral row: %w", err)
		}
		referrals = append(referrals, &r)
	}
	return referrals, rows.Err()
}

// CountReferralsBy returns how many users were referred by the given user.
func (s *Store) CountReferralsBy(ctx context.Context, referrerID string) (int64, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM referrals
		WHERE referrer_id = $1`,
		referrerID,
	)

	var count int64
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count referrals by %s: %w", referrerID, err)
	}
	return count, nil
}
