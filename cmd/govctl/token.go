package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/jmerrifield20/govledger/internal/identity"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// ── token ────────────────────────────────────────────────────────────────────

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Inspect the governance token and issue caller tokens",
}

var tokenInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show the token owner, total supply and chain head",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		info, err := c.Token(context.Background())
		if err != nil {
			return err
		}
		text := fmt.Sprintf("Owner:        %s\nTotal supply: %s\nHead:         %d",
			info.Owner.Hex(), info.TotalSupply, info.Head)
		return printResult(map[string]any{
			"owner":        info.Owner.Hex(),
			"total_supply": info.TotalSupply.String(),
			"head":         info.Head,
		}, text)
	},
}

var (
	issueSecret string
	issueIssuer string
	issueTTL    time.Duration
)

var tokenIssueCmd = &cobra.Command{
	Use:   "issue <address>",
	Short: "Sign a caller token for an address with the server's shared secret",
	Long: `issue signs a caller token locally. The secret must match the server's
auth.secret; it is read from --secret, the auth.secret config key, or the
GOVCTL_AUTH_SECRET environment variable.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		address, err := parseAddress(args[0])
		if err != nil {
			return err
		}
		secret := issueSecret
		if secret == "" {
			secret = viper.GetString("auth.secret")
		}
		if secret == "" {
			return errors.New("no secret: pass --secret or set auth.secret")
		}
		issuer := issueIssuer
		if issuer == "" {
			issuer = viper.GetString("auth.issuer")
		}
		if issuer == "" {
			issuer = "govledger"
		}

		tok, err := identity.NewTokenIssuer([]byte(secret), issuer, issueTTL).Issue(address)
		if err != nil {
			return err
		}
		return printResult(map[string]string{"address": address.Hex(), "token": tok}, tok)
	},
}

func init() {
	tokenIssueCmd.Flags().StringVar(&issueSecret, "secret", "", "shared HMAC secret (defaults to auth.secret)")
	tokenIssueCmd.Flags().StringVar(&issueIssuer, "issuer", "", "token issuer (defaults to auth.issuer or govledger)")
	tokenIssueCmd.Flags().DurationVar(&issueTTL, "ttl", 24*time.Hour, "token lifetime")

	tokenCmd.AddCommand(tokenInfoCmd, tokenIssueCmd)
	ledgerCmd.AddCommand(ledgerVerifyCmd, ledgerShowCmd)
}

// ── ledger ───────────────────────────────────────────────────────────────────

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect the server's hash-chained journal",
}

var ledgerVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Ask the server to verify its journal hash chain",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx := context.Background()
		valid, reason, err := c.VerifyJournal(ctx)
		if err != nil {
			return err
		}
		overview, err := c.Journal(ctx)
		if err != nil {
			return err
		}
		if err := printResult(map[string]any{
			"valid":   valid,
			"error":   reason,
			"entries": overview.Entries,
			"root":    overview.Root,
		}, fmt.Sprintf("entries: %d\nroot:    %s\nvalid:   %v", overview.Entries, overview.Root, valid)); err != nil {
			return err
		}
		if !valid {
			return fmt.Errorf("journal verification failed: %s", reason)
		}
		return nil
	},
}

var (
	showFrom  int
	showLimit int
)

var ledgerShowCmd = &cobra.Command{
	Use:   "show",
	Short: "List journal entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		entries, err := c.JournalEntries(context.Background(), showFrom, showLimit)
		if err != nil {
			return err
		}
		if outFormat == "json" {
			return printResult(entries, "")
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "IDX\tBLOCK\tKIND\tACCOUNT\tAMOUNT\tHASH")
		for _, e := range entries {
			hash := e.Hash
			if len(hash) > 12 {
				hash = hash[:12]
			}
			fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%s\t%s\n", e.Index, e.Block, e.Kind, e.Account, e.Amount, hash)
		}
		return w.Flush()
	},
}

func init() {
	ledgerShowCmd.Flags().IntVar(&showFrom, "from", 0, "first entry index")
	ledgerShowCmd.Flags().IntVar(&showLimit, "limit", 50, "maximum entries to list")
}
