package client

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Checkpoint is one entry of an account's vote history.
type Checkpoint struct {
	Block uint64
	Votes *big.Int
}

// TokenInfo describes the governance token.
type TokenInfo struct {
	Owner       common.Address
	TotalSupply *big.Int
	Head        uint64
}

// JournalOverview is the size and root hash of the server's journal.
type JournalOverview struct {
	Entries int    `json:"entries"`
	Root    string `json:"root"`
}

// JournalEntry is one hash-chained journal record.
type JournalEntry struct {
	Index        int       `json:"index"`
	ID           string    `json:"id"`
	Block        uint64    `json:"block"`
	Kind         string    `json:"kind"`
	Actor        string    `json:"actor,omitempty"`
	Account      string    `json:"account,omitempty"`
	Counterparty string    `json:"counterparty,omitempty"`
	Amount       string    `json:"amount,omitempty"`
	Previous     string    `json:"previous,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	PrevHash     string    `json:"prev_hash"`
	Hash         string    `json:"hash"`
}

func accountPath(account common.Address, suffix string) string {
	return "/api/v1/accounts/" + account.Hex() + suffix
}

func parseAmount(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q in response", s)
	}
	return v, nil
}

// ── Chain ─────────────────────────────────────────────────────────────────────

// Head returns the current block height.
func (c *Client) Head(ctx context.Context) (uint64, error) {
	var resp struct {
		Block uint64 `json:"block"`
	}
	if err := c.getJSON(ctx, "/api/v1/chain/head", &resp); err != nil {
		return 0, err
	}
	return resp.Block, nil
}

// Mine advances the chain by one block. Owner only.
func (c *Client) Mine(ctx context.Context) (uint64, error) {
	var resp struct {
		Block uint64 `json:"block"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/chain/mine", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Block, nil
}

// ── Queries ───────────────────────────────────────────────────────────────────

// CurrentVotes returns account's current voting weight.
func (c *Client) CurrentVotes(ctx context.Context, account common.Address) (*big.Int, error) {
	var resp struct {
		Votes string `json:"votes"`
	}
	if err := c.getJSON(ctx, accountPath(account, "/votes"), &resp); err != nil {
		return nil, err
	}
	return parseAmount(resp.Votes)
}

// PriorVotes returns account's voting weight as of block. It fails with
// ErrNotYetDetermined when block is not below the chain head.
func (c *Client) PriorVotes(ctx context.Context, account common.Address, block uint64) (*big.Int, error) {
	var resp struct {
		Votes string `json:"votes"`
	}
	q := url.Values{"block": {strconv.FormatUint(block, 10)}}
	if err := c.getJSON(ctx, accountPath(account, "/votes/prior?"+q.Encode()), &resp); err != nil {
		return nil, err
	}
	return parseAmount(resp.Votes)
}

// Checkpoints returns account's full vote history, oldest first.
func (c *Client) Checkpoints(ctx context.Context, account common.Address) ([]Checkpoint, error) {
	var resp struct {
		Checkpoints []struct {
			Block uint64 `json:"block"`
			Votes string `json:"votes"`
		} `json:"checkpoints"`
	}
	if err := c.getJSON(ctx, accountPath(account, "/checkpoints"), &resp); err != nil {
		return nil, err
	}
	out := make([]Checkpoint, 0, len(resp.Checkpoints))
	for _, cp := range resp.Checkpoints {
		votes, err := parseAmount(cp.Votes)
		if err != nil {
			return nil, err
		}
		out = append(out, Checkpoint{Block: cp.Block, Votes: votes})
	}
	return out, nil
}

// DelegateOf returns holder's delegate. ok is false when none is set.
func (c *Client) DelegateOf(ctx context.Context, holder common.Address) (delegate common.Address, ok bool, err error) {
	var resp struct {
		Delegate *string `json:"delegate"`
	}
	if err := c.getJSON(ctx, accountPath(holder, "/delegate"), &resp); err != nil {
		return common.Address{}, false, err
	}
	if resp.Delegate == nil {
		return common.Address{}, false, nil
	}
	return common.HexToAddress(*resp.Delegate), true, nil
}

// BalanceOf returns holder's token balance.
func (c *Client) BalanceOf(ctx context.Context, holder common.Address) (*big.Int, error) {
	var resp struct {
		Balance string `json:"balance"`
	}
	if err := c.getJSON(ctx, accountPath(holder, "/balance"), &resp); err != nil {
		return nil, err
	}
	return parseAmount(resp.Balance)
}

// Token returns the token owner, total supply and current head.
func (c *Client) Token(ctx context.Context) (*TokenInfo, error) {
	var resp struct {
		Owner       string `json:"owner"`
		TotalSupply string `json:"total_supply"`
		Head        uint64 `json:"head"`
	}
	if err := c.getJSON(ctx, "/api/v1/token", &resp); err != nil {
		return nil, err
	}
	supply, err := parseAmount(resp.TotalSupply)
	if err != nil {
		return nil, err
	}
	return &TokenInfo{Owner: common.HexToAddress(resp.Owner), TotalSupply: supply, Head: resp.Head}, nil
}

// ── Mutations ─────────────────────────────────────────────────────────────────

type mutationResponse struct {
	Block uint64 `json:"block"`
}

// Delegate sets the caller's delegate to to and returns the block it landed in.
func (c *Client) Delegate(ctx context.Context, to common.Address) (uint64, error) {
	var resp mutationResponse
	err := c.doJSON(ctx, http.MethodPost, "/api/v1/delegate", map[string]string{"delegatee": to.Hex()}, &resp)
	return resp.Block, err
}

// Undelegate clears the caller's delegate.
func (c *Client) Undelegate(ctx context.Context) (uint64, error) {
	var resp mutationResponse
	err := c.doJSON(ctx, http.MethodPost, "/api/v1/delegate", map[string]string{"delegatee": ""}, &resp)
	return resp.Block, err
}

// Mint mints amount to to. Owner only.
func (c *Client) Mint(ctx context.Context, to common.Address, amount *big.Int) (uint64, error) {
	var resp mutationResponse
	body := map[string]string{"to": to.Hex(), "amount": amount.String()}
	err := c.doJSON(ctx, http.MethodPost, "/api/v1/token/mint", body, &resp)
	return resp.Block, err
}

// Burn burns amount from from. Owner only.
func (c *Client) Burn(ctx context.Context, from common.Address, amount *big.Int) (uint64, error) {
	var resp mutationResponse
	body := map[string]string{"from": from.Hex(), "amount": amount.String()}
	err := c.doJSON(ctx, http.MethodPost, "/api/v1/token/burn", body, &resp)
	return resp.Block, err
}

// ── Journal ───────────────────────────────────────────────────────────────────

// Journal returns the journal length and root hash.
func (c *Client) Journal(ctx context.Context) (*JournalOverview, error) {
	var resp JournalOverview
	if err := c.getJSON(ctx, "/api/v1/ledger", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// VerifyJournal asks the server to walk its hash chain. A broken chain is
// reported as valid=false with the server's reason.
func (c *Client) VerifyJournal(ctx context.Context) (valid bool, reason string, err error) {
	var resp struct {
		Valid bool   `json:"valid"`
		Error string `json:"error"`
	}
	if err := c.getJSON(ctx, "/api/v1/ledger/verify", &resp); err != nil {
		return false, "", err
	}
	return resp.Valid, resp.Error, nil
}

// JournalEntries returns up to limit entries starting at index from.
func (c *Client) JournalEntries(ctx context.Context, from, limit int) ([]JournalEntry, error) {
	var resp struct {
		Entries []JournalEntry `json:"entries"`
	}
	q := url.Values{"from": {strconv.Itoa(from)}, "limit": {strconv.Itoa(limit)}}
	if err := c.getJSON(ctx, "/api/v1/ledger/entries?"+q.Encode(), &resp); err != nil {
		return nil, err
	}
	return resp.Entries, nil
}
