package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/itchyny/gojq"
	"github.com/urfave/cli/v2"

	"github.com/peelyhq/peelybot/client"
)

func clientCommands() *cli.Command {
	return &cli.Command{
		Name:  "client",
		Usage: "Drive the trading service HTTP API",
		Subcommands: []*cli.Command{
			clientWalletCommand(),
			clientBalancesCommand(),
			clientWithdrawCommand(),
			clientBuyCommand(),
			clientSellCommand(),
			clientReferrerCommand(),
			clientExportKeyCommand(),
		},
	}
}

func apiClient(c *cli.Context) *client.Client {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
	return client.NewClient(c.String("server-url"), nil, logger)
}

func clientWalletCommand() *cli.Command {
	return &cli.Command{
		Name:      "wallet",
		Usage:     "Show a user's custodial wallet (creates it on first call)",
		ArgsUsage: "USER_ID",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("user id is required")
			}
			userID := c.Args().First()

			w, err := apiClient(c).GetWallet(context.Background(), userID)
			if err != nil {
				return fmt.Errorf("failed to get wallet: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(w)
			}
			fmt.Printf("User ID:       %s\n", w.UserID)
			fmt.Printf("Deposit Addr:  %s\n", w.PublicKey)
			fmt.Printf("Referral Code: %s\n", w.ReferralID)
			return nil
		},
	}
}

func clientBalancesCommand() *cli.Command {
	return &cli.Command{
		Name:      "balances",
		Usage:     "Show a user's SOL and token balances",
		ArgsUsage: "USER_ID",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:  "must-jq",
				Usage: "jq filter a token balance must satisfy to be shown (repeatable, e.g. '.ui_amount > 1')",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("user id is required")
			}
			userID := c.Args().First()
			jqFilters := c.StringSlice("must-jq")

			// Compile jq filters
			compiledJQFilters := make([]*gojq.Code, len(jqFilters))
			for i, filter := range jqFilters {
				query, err := gojq.Parse(filter)
				if err != nil {
					return fmt.Errorf("failed to parse jq filter %q: %w", filter, err)
				}
				compiledJQFilters[i], err = gojq.Compile(query)
				if err != nil {
					return fmt.Errorf("failed to compile jq filter %q: %w", filter, err)
				}
			}

			balances, err := apiClient(c).GetBalances(context.Background(), userID)
			if err != nil {
				return fmt.Errorf("failed to get balances: %w", err)
			}

			tokens := balances.Tokens
			if len(compiledJQFilters) > 0 {
				tokens = filterTokens(tokens, compiledJQFilters)
			}

			if c.Bool("json") {
				return outputJSON(map[string]any{
					"lamports": balances.Lamports,
					"sol":      balances.SOL,
					"tokens":   tokens,
				})
			}

			fmt.Printf("SOL: %.9f (%d lamports)\n\n", balances.SOL, balances.Lamports)
			if len(tokens) == 0 {
				fmt.Println("No token holdings.")
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SYMBOL\tMINT\tAMOUNT")
			for _, tok := range tokens {
				fmt.Fprintf(w, "%s\t%s\t%f\n", tok.Symbol, tok.Mint, tok.UIAmount)
			}
			w.Flush()
			return nil
		},
	}
}

// filterTokens keeps tokens for which every jq filter yields a truthy
// first result.
func filterTokens(tokens []client.TokenBalance, filters []*gojq.Code) []client.TokenBalance {
	kept := make([]client.TokenBalance, 0, len(tokens))
	for _, tok := range tokens {
		// Round-trip through JSON so jq sees the wire representation.
		raw, err := json.Marshal(tok)
		if err != nil {
			continue
		}
		var doc map[string]any
		if err := json.Unmarshal(raw, &doc); err != nil {
			continue
		}

		matchesAll := true
		for _, code := range filters {
			iter := code.Run(doc)
			v, ok := iter.Next()
			if !ok {
				matchesAll = false
				break
			}
			if err, isErr := v.(error); isErr {
				fmt.Fprintf(os.Stderr, "jq filter error: %v\n", err)
				matchesAll = false
				break
			}
			if v == nil || v == false {
				matchesAll = false
				break
			}
		}
		if matchesAll {
			kept = append(kept, tok)
		}
	}
	return kept
}

func clientWithdrawCommand() *cli.Command {
	return &cli.Command{
		Name:      "withdraw",
		Usage:     "Withdraw SOL from a user's custodial wallet",
		ArgsUsage: "USER_ID DESTINATION AMOUNT_SOL",
		Flags: []cli.Flag{
			&cli.Float64Flag{
				Name:     "amount",
				Aliases:  []string{"a"},
				Usage:    "Amount in SOL",
				Required: true,
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 2 {
				return fmt.Errorf("usage: withdraw USER_ID DESTINATION --amount N")
			}
			userID := c.Args().Get(0)
			destination := c.Args().Get(1)
			amount := c.Float64("amount")

			msg, err := apiClient(c).Withdraw(context.Background(), userID, destination, amount)
			if err != nil {
				return fmt.Errorf("withdraw failed: %w", err)
			}
			fmt.Println(msg)
			return nil
		},
	}
}

func clientBuyCommand() *cli.Command {
	return &cli.Command{
		Name:      "buy",
		Usage:     "Buy a token with SOL",
		ArgsUsage: "USER_ID MINT",
		Flags: []cli.Flag{
			&cli.Float64Flag{
				Name:     "amount",
				Aliases:  []string{"a"},
				Usage:    "Amount in SOL to spend",
				Required: true,
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 2 {
				return fmt.Errorf("usage: buy USER_ID MINT --amount N")
			}
			userID := c.Args().Get(0)
			mint := c.Args().Get(1)
			amount := c.Float64("amount")

			msg, err := apiClient(c).Buy(context.Background(), userID, mint, amount)
			if err != nil {
				return fmt.Errorf("buy failed: %w", err)
			}
			fmt.Println(msg)
			return nil
		},
	}
}

func clientSellCommand() *cli.Command {
	return &cli.Command{
		Name:      "sell",
		Usage:     "Sell a percentage of a token holding",
		ArgsUsage: "USER_ID MINT",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "percent",
				Aliases: []string{"p"},
				Usage:   "Percentage of holdings to sell, e.g. 50% or 100%",
				Value:   "100%",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 2 {
				return fmt.Errorf("usage: sell USER_ID MINT [--percent NN%%]")
			}
			userID := c.Args().Get(0)
			mint := c.Args().Get(1)
			percent := c.String("percent")

			msg, err := apiClient(c).Sell(context.Background(), userID, mint, percent)
			if err != nil {
				return fmt.Errorf("sell failed: %w", err)
			}
			fmt.Println(msg)
			return nil
		},
	}
}

func clientReferrerCommand() *cli.Command {
	return &cli.Command{
		Name:      "set-referrer",
		Usage:     "Attribute a user to a referral code",
		ArgsUsage: "USER_ID REFERRAL_CODE",
		Action: func(c *cli.Context) error {
			if c.NArg() != 2 {
				return fmt.Errorf("usage: set-referrer USER_ID REFERRAL_CODE")
			}
			userID := c.Args().Get(0)
			code := c.Args().Get(1)

			applied, err := apiClient(c).SetReferrer(context.Background(), userID, code)
			if err != nil {
				return fmt.Errorf("set-referrer failed: %w", err)
			}
			if applied {
				fmt.Println("✓ Referrer set")
			} else {
				fmt.Println("Referrer was already set; kept the original attribution")
			}
			return nil
		},
	}
}

func clientExportKeyCommand() *cli.Command {
	return &cli.Command{
		Name:      "export-key",
		Usage:     "Export a user's private key (prints to stdout, handle with care)",
		ArgsUsage: "USER_ID",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("user id is required")
			}
			userID := c.Args().First()

			key, err := apiClient(c).ExportPrivateKey(context.Background(), userID)
			if err != nil {
				return fmt.Errorf("export failed: %w", err)
			}
			fmt.Println(key)
			return nil
		},
	}
}
