package token_test

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jmerrifield20/govledger/internal/chain"
	"github.com/jmerrifield20/govledger/internal/checkpoint"
	"github.com/jmerrifield20/govledger/internal/delegation"
	"github.com/jmerrifield20/govledger/internal/token"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	owner = common.HexToAddress("0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266")
	user2 = common.HexToAddress("0x70997970c51812dc3a010c7d01b50e0d17dc79c8")
	user3 = common.HexToAddress("0x3c44cdddb6a900fa2b585dd299e03d12fa4293bc")
)

func e18(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

func requireAmount(t *testing.T, want, got *big.Int) {
	t.Helper()
	require.Zero(t, want.Cmp(got), "want %s, got %s", want, got)
}

func newToken(t *testing.T) (*token.Token, *chain.Counter) {
	t.Helper()
	clock := chain.NewCounter(1)
	tr := delegation.New(checkpoint.New(), zap.NewNop())
	return token.New(owner, tr, clock, zap.NewNop()), clock
}

func TestMint_delegatesFullAmount(t *testing.T) {
	tok, clock := newToken(t)

	require.NoError(t, tok.Delegate(owner, user3))
	clock.Mine()
	require.NoError(t, tok.Mint(owner, owner, e18(10)))

	requireAmount(t, e18(10), tok.CurrentVotes(user3))
	requireAmount(t, e18(10), tok.BalanceOf(owner))
	requireAmount(t, e18(10), tok.TotalSupply())
}

func TestMint_rejectsNonOwner(t *testing.T) {
	tok, _ := newToken(t)

	err := tok.Mint(user2, user3, e18(10))
	require.ErrorIs(t, err, token.ErrNotOwner)
	require.Contains(t, err.Error(), "caller is not the owner")
	requireAmount(t, new(big.Int), tok.TotalSupply())
}

func TestBurn_removesVotesFromDelegate(t *testing.T) {
	tok, clock := newToken(t)

	require.NoError(t, tok.Delegate(owner, user3))
	clock.Mine()
	require.NoError(t, tok.Mint(owner, owner, e18(10)))
	clock.Mine()
	require.NoError(t, tok.Burn(owner, owner, e18(5)))

	requireAmount(t, e18(5), tok.CurrentVotes(user3))
	requireAmount(t, e18(5), tok.BalanceOf(owner))
	requireAmount(t, e18(5), tok.TotalSupply())
}

func TestBurn_rejectsNonOwner(t *testing.T) {
	tok, _ := newToken(t)
	require.ErrorIs(t, tok.Burn(user2, user3, e18(5)), token.ErrNotOwner)
}

func TestBurn_insufficientBalance(t *testing.T) {
	tok, _ := newToken(t)
	require.NoError(t, tok.Mint(owner, user2, big.NewInt(3)))

	err := tok.Burn(owner, user2, big.NewInt(4))
	require.ErrorIs(t, err, token.ErrInsufficientBalance)
	requireAmount(t, big.NewInt(3), tok.BalanceOf(user2))
}

func TestMint_rejectsZeroAddressAndAmount(t *testing.T) {
	tok, _ := newToken(t)
	require.ErrorIs(t, tok.Mint(owner, common.Address{}, big.NewInt(1)), token.ErrZeroAddress)
	require.ErrorIs(t, tok.Mint(owner, user2, big.NewInt(0)), delegation.ErrInvalidAmount)
}

func TestPriorVotes_notYetDetermined(t *testing.T) {
	tok, _ := newToken(t)
	_, err := tok.PriorVotes(user3, 100)
	require.ErrorIs(t, err, checkpoint.ErrNotYetDetermined)
}

func TestPriorVotes_historicalQuery(t *testing.T) {
	tok, clock := newToken(t)

	require.NoError(t, tok.Delegate(owner, user3))
	mintBlock := clock.Mine()
	require.NoError(t, tok.Mint(owner, owner, e18(10)))
	clock.Mine()
	require.NoError(t, tok.Burn(owner, owner, e18(3)))
	clock.Mine()

	got, err := tok.PriorVotes(user3, mintBlock)
	require.NoError(t, err)
	requireAmount(t, e18(10), got)
	requireAmount(t, e18(7), tok.CurrentVotes(user3))

	_, err = tok.PriorVotes(user3, clock.Head())
	require.ErrorIs(t, err, checkpoint.ErrNotYetDetermined)
}

func TestDelegate_afterMintMovesBalance(t *testing.T) {
	tok, clock := newToken(t)

	require.NoError(t, tok.Mint(owner, user2, e18(4)))
	clock.Mine()
	require.NoError(t, tok.Delegate(user2, user3))
	requireAmount(t, e18(4), tok.CurrentVotes(user3))

	clock.Mine()
	require.NoError(t, tok.Delegate(user2, owner))
	requireAmount(t, new(big.Int), tok.CurrentVotes(user3))
	requireAmount(t, e18(4), tok.CurrentVotes(owner))

	clock.Mine()
	require.NoError(t, tok.Undelegate(user2))
	requireAmount(t, new(big.Int), tok.CurrentVotes(owner))
}

func TestEvents_mintFollowsVotesChange(t *testing.T) {
	tok, _ := newToken(t)

	var order []string
	tok.OnEvent(func(ev token.Event) { order = append(order, string(ev.Kind)) })
	tok.Tracker().OnEvent(func(ev delegation.Event) { order = append(order, string(ev.Kind)) })

	require.NoError(t, tok.Delegate(owner, user3))
	require.NoError(t, tok.Mint(owner, owner, big.NewInt(1)))

	require.Equal(t, []string{"delegate_changed", "votes_changed", "mint"}, order)
}

// stepClock is a Clock whose head a test can move in either direction.
type stepClock struct{ head uint64 }

func (c *stepClock) Head() uint64 { return c.head }

func TestEvents_failedSupplyChangeIsNotEmitted(t *testing.T) {
	clock := &stepClock{head: 5}
	tok := token.New(owner, delegation.New(checkpoint.New(), zap.NewNop()), clock, zap.NewNop())

	var kinds []token.Kind
	tok.OnEvent(func(ev token.Event) { kinds = append(kinds, ev.Kind) })

	require.NoError(t, tok.Delegate(owner, user3))
	require.NoError(t, tok.Mint(owner, owner, e18(10)))

	// A clock running backwards makes the vote checkpoint write fail.
	clock.head = 3
	err := tok.Mint(owner, owner, e18(1))
	require.ErrorIs(t, err, checkpoint.ErrInvariantViolation)
	err = tok.Burn(owner, owner, e18(1))
	require.ErrorIs(t, err, checkpoint.ErrInvariantViolation)

	require.Equal(t, []token.Kind{token.KindMint}, kinds)
	requireAmount(t, e18(10), tok.BalanceOf(owner))
	requireAmount(t, e18(10), tok.TotalSupply())
	requireAmount(t, e18(10), tok.CurrentVotes(user3))
}
