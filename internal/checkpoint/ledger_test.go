package checkpoint

import (
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

func w(n int64) *big.Int { return big.NewInt(n) }

func TestCurrentWeight_unknownAccount(t *testing.T) {
	l := New()
	require.Equal(t, 0, l.CurrentWeight(alice).Sign())
	require.Equal(t, 0, l.NumCheckpoints(alice))
}

func TestWeightAt_unknownAccount(t *testing.T) {
	l := New()
	for _, block := range []uint64{0, 1, 50, 99} {
		got, err := l.WeightAt(alice, block, 100)
		require.NoError(t, err)
		require.Equal(t, 0, got.Sign(), "block %d", block)
	}
}

func TestRecord_currentWeightFollowsLatestWrite(t *testing.T) {
	l := New()
	for i, weight := range []int64{5, 0, 42, 7, 7, 1000} {
		require.NoError(t, l.Record(alice, w(weight), uint64(i+1)))
		require.Equal(t, w(weight), l.CurrentWeight(alice))
	}
	require.Equal(t, 6, l.NumCheckpoints(alice))
}

func TestRecord_sameBlockCompresses(t *testing.T) {
	l := New()
	require.NoError(t, l.Record(alice, w(10), 3))
	require.NoError(t, l.Record(alice, w(20), 3))
	require.NoError(t, l.Record(alice, w(30), 3))

	require.Equal(t, 1, l.NumCheckpoints(alice))
	require.Equal(t, w(30), l.CurrentWeight(alice))

	cp, ok := l.CheckpointAt(alice, 0)
	require.True(t, ok)
	require.Equal(t, uint64(3), cp.Block)
	require.Equal(t, w(30), cp.Weight)
}

func TestRecord_idempotent(t *testing.T) {
	l := New()
	require.NoError(t, l.Record(alice, w(10), 2))
	require.NoError(t, l.Record(alice, w(25), 5))

	before, err := l.WeightAt(alice, 7, 10)
	require.NoError(t, err)

	require.NoError(t, l.Record(alice, w(25), 5))
	require.Equal(t, 2, l.NumCheckpoints(alice))

	for _, block := range []uint64{5, 6, 7, 9} {
		got, err := l.WeightAt(alice, block, 10)
		require.NoError(t, err)
		require.Equal(t, before, got)
	}
}

func TestRecord_rejectsEarlierBlock(t *testing.T) {
	l := New()
	require.NoError(t, l.Record(alice, w(10), 10))

	err := l.Record(alice, w(11), 9)
	require.ErrorIs(t, err, ErrInvariantViolation)
	require.Equal(t, 1, l.NumCheckpoints(alice))
	require.Equal(t, w(10), l.CurrentWeight(alice))
}

func TestRecord_rejectsNegativeWeight(t *testing.T) {
	l := New()
	require.ErrorIs(t, l.Record(alice, w(-1), 1), ErrInvariantViolation)
	require.ErrorIs(t, l.Record(alice, nil, 1), ErrInvariantViolation)
	require.Equal(t, 0, l.NumCheckpoints(alice))
}

func TestRecord_copiesWeight(t *testing.T) {
	l := New()
	v := w(10)
	require.NoError(t, l.Record(alice, v, 1))
	v.SetInt64(99)
	require.Equal(t, w(10), l.CurrentWeight(alice))

	got := l.CurrentWeight(alice)
	got.SetInt64(500)
	require.Equal(t, w(10), l.CurrentWeight(alice))
}

func TestWeightAt_binarySearch(t *testing.T) {
	l := New()
	require.NoError(t, l.Record(alice, w(100), 5))
	require.NoError(t, l.Record(alice, w(150), 10))
	require.NoError(t, l.Record(alice, w(90), 20))

	cases := []struct {
		block uint64
		want  int64
	}{
		{0, 0},
		{3, 0},
		{4, 0},
		{5, 100},
		{7, 100},
		{9, 100},
		{10, 150},
		{15, 150},
		{19, 150},
		{20, 90},
		{29, 90},
	}
	for _, tc := range cases {
		got, err := l.WeightAt(alice, tc.block, 30)
		require.NoError(t, err)
		require.Equal(t, w(tc.want), got, "block %d", tc.block)
	}
}

func TestWeightAt_longSequence(t *testing.T) {
	l := New()
	// Checkpoints at even blocks 2..200 with weight == block.
	for b := uint64(2); b <= 200; b += 2 {
		require.NoError(t, l.Record(alice, new(big.Int).SetUint64(b), b))
	}
	for b := uint64(1); b < 250; b++ {
		got, err := l.WeightAt(alice, b, 250)
		require.NoError(t, err)

		want := b
		if want%2 == 1 {
			want--
		}
		if want > 200 {
			want = 200
		}
		require.Equal(t, new(big.Int).SetUint64(want), got, "block %d", b)
	}
}

func TestWeightAt_notYetDetermined(t *testing.T) {
	l := New()
	require.NoError(t, l.Record(alice, w(1), 1))

	_, err := l.WeightAt(alice, 5, 5)
	require.ErrorIs(t, err, ErrNotYetDetermined)

	_, err = l.WeightAt(alice, 100, 5)
	require.ErrorIs(t, err, ErrNotYetDetermined)

	_, err = l.WeightAt(bob, 5, 5)
	require.ErrorIs(t, err, ErrNotYetDetermined)
}

func TestWeightAt_firstCheckpointBlockIsDetermined(t *testing.T) {
	l := New()
	require.NoError(t, l.Record(alice, w(8), 4))

	got, err := l.WeightAt(alice, 4, 5)
	require.NoError(t, err)
	require.Equal(t, w(8), got)
}

func TestApply_allOrNothing(t *testing.T) {
	l := New()
	require.NoError(t, l.Record(alice, w(10), 1))
	require.NoError(t, l.Record(bob, w(10), 8))

	err := l.Apply(5,
		Write{Account: alice, Weight: w(0)},
		Write{Account: bob, Weight: w(20)},
	)
	require.ErrorIs(t, err, ErrInvariantViolation)

	require.Equal(t, w(10), l.CurrentWeight(alice))
	require.Equal(t, 1, l.NumCheckpoints(alice))
	require.Equal(t, w(10), l.CurrentWeight(bob))
}

func TestCheckpoints_returnsCopy(t *testing.T) {
	l := New()
	require.NoError(t, l.Record(alice, w(1), 1))
	require.NoError(t, l.Record(alice, w(2), 2))

	seq := l.Checkpoints(alice)
	require.Len(t, seq, 2)
	seq[0].Weight.SetInt64(77)

	cp, ok := l.CheckpointAt(alice, 0)
	require.True(t, ok)
	require.Equal(t, w(1), cp.Weight)

	_, ok = l.CheckpointAt(alice, 2)
	require.False(t, ok)
	_, ok = l.CheckpointAt(alice, -1)
	require.False(t, ok)
}

func TestAccounts_sorted(t *testing.T) {
	l := New()
	require.NoError(t, l.Record(alice, w(1), 1))
	require.NoError(t, l.Record(bob, w(1), 1))
	require.Equal(t, []common.Address{bob, alice}, l.Accounts())
}

func TestLedger_concurrentReadsDuringWrites(t *testing.T) {
	l := New()
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for b := uint64(1); b <= 500; b++ {
			if err := l.Record(alice, new(big.Int).SetUint64(b), b); err != nil {
				t.Error(err)
				return
			}
		}
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				_ = l.CurrentWeight(alice)
				_, _ = l.WeightAt(alice, 250, 501)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 500, l.NumCheckpoints(alice))
}
