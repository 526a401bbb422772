package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/jmerrifield20/govledger/pkg/client"
	"github.com/spf13/cobra"
)

var headCmd = &cobra.Command{
	Use:   "head",
	Short: "Print the current block height",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		head, err := c.Head(context.Background())
		if err != nil {
			return err
		}
		return printResult(map[string]uint64{"block": head}, strconv.FormatUint(head, 10))
	},
}

var votesCmd = &cobra.Command{
	Use:   "votes <address>",
	Short: "Print an account's current voting weight",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		account, err := parseAddress(args[0])
		if err != nil {
			return err
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		votes, err := c.CurrentVotes(context.Background(), account)
		if err != nil {
			return err
		}
		return printResult(map[string]string{"account": account.Hex(), "votes": votes.String()}, votes.String())
	},
}

var priorVotesCmd = &cobra.Command{
	Use:   "prior-votes <address> <block>",
	Short: "Print an account's voting weight as of a past block",
	Long: `prior-votes reads the weight recorded at or before <block>.

The block must be strictly below the current head; otherwise the answer is
not yet determined and the command fails.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		account, err := parseAddress(args[0])
		if err != nil {
			return err
		}
		block, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid block %q: %w", args[1], err)
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		votes, err := c.PriorVotes(context.Background(), account, block)
		if errors.Is(err, client.ErrNotYetDetermined) {
			return fmt.Errorf("block %d is not yet determined; wait for the chain to pass it", block)
		}
		if err != nil {
			return err
		}
		return printResult(map[string]any{
			"account": account.Hex(),
			"block":   block,
			"votes":   votes.String(),
		}, votes.String())
	},
}

var checkpointsCmd = &cobra.Command{
	Use:   "checkpoints <address>",
	Short: "List an account's checkpoint history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		account, err := parseAddress(args[0])
		if err != nil {
			return err
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		cps, err := c.Checkpoints(context.Background(), account)
		if err != nil {
			return err
		}

		if outFormat == "json" {
			rows := make([]map[string]any, 0, len(cps))
			for _, cp := range cps {
				rows = append(rows, map[string]any{"block": cp.Block, "votes": cp.Votes.String()})
			}
			return printResult(rows, "")
		}
		if len(cps) == 0 {
			fmt.Println("no checkpoints")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "#\tBLOCK\tVOTES")
		for i, cp := range cps {
			fmt.Fprintf(w, "%d\t%d\t%s\n", i, cp.Block, cp.Votes)
		}
		return w.Flush()
	},
}

var accountCmd = &cobra.Command{
	Use:   "account <address>",
	Short: "Show an account's balance, delegate and voting weight",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		account, err := parseAddress(args[0])
		if err != nil {
			return err
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx := context.Background()

		balance, err := c.BalanceOf(ctx, account)
		if err != nil {
			return err
		}
		votes, err := c.CurrentVotes(ctx, account)
		if err != nil {
			return err
		}
		delegate, ok, err := c.DelegateOf(ctx, account)
		if err != nil {
			return err
		}
		delegateStr := "(none)"
		if ok {
			delegateStr = delegate.Hex()
		}

		text := fmt.Sprintf("Account:  %s\nBalance:  %s\nDelegate: %s\nVotes:    %s",
			account.Hex(), balance, delegateStr, votes)
		return printResult(map[string]string{
			"account":  account.Hex(),
			"balance":  balance.String(),
			"delegate": delegateStr,
			"votes":    votes.String(),
		}, text)
	},
}
