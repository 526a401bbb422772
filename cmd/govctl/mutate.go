package main

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jmerrifield20/govledger/pkg/client"
	"github.com/spf13/cobra"
)

func requireToken() error {
	if bearerToken == "" {
		return errors.New("a caller token is required; pass --token or set token in ~/.govctl/config.yaml")
	}
	return nil
}

func explain(err error) error {
	switch {
	case errors.Is(err, client.ErrNotOwner):
		return fmt.Errorf("only the token owner may do this: %w", err)
	case errors.Is(err, client.ErrUnauthorized):
		return fmt.Errorf("token rejected, issue a new one with 'govctl token issue': %w", err)
	}
	return err
}

var delegateCmd = &cobra.Command{
	Use:   "delegate <delegatee>",
	Short: "Delegate the caller's votes to an address",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		to, err := parseAddress(args[0])
		if err != nil {
			return err
		}
		if err := requireToken(); err != nil {
			return err
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		block, err := c.Delegate(context.Background(), to)
		if err != nil {
			return explain(err)
		}
		return printResult(map[string]any{"delegate": to.Hex(), "block": block},
			fmt.Sprintf("delegated to %s at block %d", to.Hex(), block))
	},
}

var undelegateCmd = &cobra.Command{
	Use:   "undelegate",
	Short: "Clear the caller's delegate",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireToken(); err != nil {
			return err
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		block, err := c.Undelegate(context.Background())
		if err != nil {
			return explain(err)
		}
		return printResult(map[string]any{"delegate": nil, "block": block},
			fmt.Sprintf("delegate cleared at block %d", block))
	},
}

type supplyOp func(ctx context.Context, c *client.Client, account common.Address, amount *big.Int) (uint64, error)

func supplyCmd(use, short, verb string, op supplyOp) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <address> <amount>",
		Short: short,
		Long:  short + ".\n\nAmounts are decimal or 0x-prefixed hex in base units. Owner only.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			account, err := parseAddress(args[0])
			if err != nil {
				return err
			}
			amount, err := parseAmount(args[1])
			if err != nil {
				return err
			}
			if err := requireToken(); err != nil {
				return err
			}
			c, err := newClient()
			if err != nil {
				return err
			}
			block, err := op(context.Background(), c, account, amount)
			if err != nil {
				return explain(err)
			}
			return printResult(map[string]any{"account": account.Hex(), "amount": amount.String(), "block": block},
				fmt.Sprintf("%s %s for %s at block %d", verb, amount, account.Hex(), block))
		},
	}
}

var mintCmd = supplyCmd("mint", "Mint tokens to an address", "minted",
	func(ctx context.Context, c *client.Client, to common.Address, amount *big.Int) (uint64, error) {
		return c.Mint(ctx, to, amount)
	})

var burnCmd = supplyCmd("burn", "Burn tokens held by an address", "burned",
	func(ctx context.Context, c *client.Client, from common.Address, amount *big.Int) (uint64, error) {
		return c.Burn(ctx, from, amount)
	})

var mineCmd = &cobra.Command{
	Use:   "mine",
	Short: "Advance the chain by one block (owner only)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireToken(); err != nil {
			return err
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		head, err := c.Mine(context.Background())
		if err != nil {
			return explain(err)
		}
		return printResult(map[string]uint64{"block": head}, fmt.Sprintf("mined block %d", head))
	},
}
