package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/urfave/cli/v2"

	"github.com/peelyhq/peelybot/service/db"
)

func listWalletsCommand() *cli.Command {
	return &cli.Command{
		Name:    "list-wallets",
		Usage:   "List all custodial wallets",
		Aliases: []string{"ls"},
		Action: func(c *cli.Context) error {
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			wallets, err := store.ListWallets(context.Background())
			if err != nil {
				return fmt.Errorf("failed to list wallets: %w", err)
			}

			if c.Bool("json") {
				// Secret keys stay out of CLI output.
				type row struct {
					UserID     string    `json:"user_id"`
					PublicKey  string    `json:"public_key"`
					ReferralID string    `json:"referral_id"`
					CreatedAt  time.Time `json:"created_at"`
				}
				rows := make([]row, len(wallets))
				for i, w := range wallets {
					rows[i] = row{w.UserID, w.PublicKey, w.ReferralID, w.CreatedAt}
				}
				return outputJSON(rows)
			}

			// Pretty table output
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "USER ID\tPUBLIC KEY\tREFERRAL ID\tCREATED")
			for _, wallet := range wallets {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					wallet.UserID,
					wallet.PublicKey,
					wallet.ReferralID,
					wallet.CreatedAt.Format(time.RFC3339),
				)
			}
			w.Flush()

			fmt.Fprintf(os.Stderr, "\nTotal: %d wallets\n", len(wallets))
			return nil
		},
	}
}

func getWalletCommand() *cli.Command {
	return &cli.Command{
		Name:      "get-wallet",
		Usage:     "Get wallet details for a user",
		Aliases:   []string{"get"},
		ArgsUsage: "<user_id>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: user id")
			}

			userID := c.Args().First()
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			wallet, err := store.GetWallet(context.Background(), userID)
			if err != nil {
				return fmt.Errorf("failed to get wallet: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(map[string]any{
					"user_id":     wallet.UserID,
					"public_key":  wallet.PublicKey,
					"referral_id": wallet.ReferralID,
					"created_at":  wallet.CreatedAt,
				})
			}

			fmt.Printf("User ID:     %s\n", wallet.UserID)
			fmt.Printf("Public Key:  %s\n", wallet.PublicKey)
			fmt.Printf("Referral ID: %s\n", wallet.ReferralID)
			fmt.Printf("Created:     %s\n", wallet.CreatedAt.Format(time.RFC3339))

			return nil
		},
	}
}

func listReferralsCommand() *cli.Command {
	return &cli.Command{
		Name:  "list-referrals",
		Usage: "List all referral relationships",
		Action: func(c *cli.Context) error {
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			referrals, err := store.ListReferrals(context.Background())
			if err != nil {
				return fmt.Errorf("failed to list referrals: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(referrals)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "USER ID\tREFERRER ID\tCREATED")
			for _, r := range referrals {
				fmt.Fprintf(w, "%s\t%s\t%s\n",
					r.UserID,
					r.ReferrerID,
					r.CreatedAt.Format(time.RFC3339),
				)
			}
			w.Flush()

			fmt.Fprintf(os.Stderr, "\nTotal: %d referrals\n", len(referrals))
			return nil
		},
	}
}

// getStore connects to the database using the global database-url flag.
func getStore(c *cli.Context) (*db.Store, func(), error) {
	dbURL := c.String("database-url")
	if dbURL == "" && c.App != nil {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		return nil, nil, fmt.Errorf("database-url is required (set DATABASE_URL env var or use --database-url)")
	}

	pool, err := pgxpool.New(context.Background(), dbURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := db.NewStore(pool)
	closer := func() { pool.Close() }

	return store, closer, nil
}

// outputJSON pretty-prints a value as JSON to stdout.
func outputJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
