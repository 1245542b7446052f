package solver

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/cfrsolve/sdk/game"
)

var twoActions = []game.Action{"a", "b"}

func TestRegretMatchingNormalizesPositiveRegrets(t *testing.T) {
	strat := RegretMatching([]float64{1, 2, -5}, nil)

	assert.InDelta(t, 1.0/3.0, strat[0], 1e-12)
	assert.InDelta(t, 2.0/3.0, strat[1], 1e-12)
	assert.Equal(t, 0.0, strat[2], "negative regret action must drop to 0")
}

func TestRegretMatchingUniformFallback(t *testing.T) {
	for _, regrets := range [][]float64{
		{0, 0, 0, 0},
		{-1, -3, 0, -0.5},
		{-1e-300, -2, -3, -4},
	} {
		strat := RegretMatching(regrets, nil)
		for i, s := range strat {
			assert.Equal(t, 0.25, s, "index %d of %v", i, regrets)
		}
	}
}

func TestRegretMatchingIsPure(t *testing.T) {
	regrets := []float64{3, -1, 0.5, 7}
	before := append([]float64(nil), regrets...)

	first := RegretMatching(regrets, nil)
	second := RegretMatching(regrets, make([]float64, 1))

	assert.Equal(t, before, regrets, "input must not be modified")
	assert.Equal(t, first, second)
}

func TestRegretMatchingAlwaysDistribution(t *testing.T) {
	cases := [][]float64{
		{1e300, 1e300},
		{1e-300, 0, -1},
		{5},
		{0.1, 0.2, 0.3, 0.4, -10, 1e6},
	}
	for _, regrets := range cases {
		strat := RegretMatching(regrets, nil)
		total := 0.0
		for _, s := range strat {
			require.GreaterOrEqual(t, s, 0.0)
			total += s
		}
		assert.InDelta(t, 1.0, total, 1e-12, "regrets %v", regrets)
	}
}

func TestRegretMatchingReusesBuffer(t *testing.T) {
	buf := make([]float64, 0, 8)
	out := RegretMatching([]float64{1, 1}, buf)
	require.Len(t, out, 2)
	assert.Equal(t, cap(buf), cap(out))
}

func TestInfoSetTableGetOrCreateZeroInitialises(t *testing.T) {
	table := NewInfoSetTable()

	entry, err := table.GetOrCreate("I", 0, twoActions)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0}, entry.RegretSum)
	assert.Equal(t, []float64{0, 0}, entry.StrategySum)
	assert.Equal(t, []float64{0.5, 0.5}, entry.Strategy())
	assert.Equal(t, []float64{0.5, 0.5}, entry.AverageStrategy())
	assert.Equal(t, 0, entry.Index)

	again, err := table.GetOrCreate("I", 0, twoActions)
	require.NoError(t, err)
	assert.Same(t, entry, again)
	assert.Equal(t, 1, table.Size())
}

func TestInfoSetTableCopiesActionSet(t *testing.T) {
	table := NewInfoSetTable()
	actions := []game.Action{"x", "y"}
	entry, err := table.GetOrCreate("I", 0, actions)
	require.NoError(t, err)

	actions[0] = "z"
	assert.Equal(t, game.Action("x"), entry.Actions[0])
}

func TestInfoSetTableRejectsMismatchedActions(t *testing.T) {
	table := NewInfoSetTable()
	_, err := table.GetOrCreate("I", 0, twoActions)
	require.NoError(t, err)

	for _, actions := range [][]game.Action{
		{"a"},
		{"b", "a"},
		{"a", "b", "c"},
	} {
		_, err := table.GetOrCreate("I", 0, actions)
		require.ErrorIs(t, err, ErrContractViolation, "actions %v", actions)

		var te *TraversalError
		require.True(t, errors.As(err, &te))
		assert.Equal(t, "I", te.InfoSet)
	}

	_, err = table.GetOrCreate("I", 1, twoActions)
	require.ErrorIs(t, err, ErrContractViolation)
}

func TestInfoSetAccumulateDetectsNonFinite(t *testing.T) {
	table := NewInfoSetTable()
	entry, err := table.GetOrCreate("I", 0, twoActions)
	require.NoError(t, err)

	require.NoError(t, entry.accumulate([]float64{math.MaxFloat64, 0}, []float64{1, 1}))
	err = entry.accumulate([]float64{math.MaxFloat64, 0}, []float64{0, 0})
	require.ErrorIs(t, err, ErrNumericInstability)

	other, err := table.GetOrCreate("J", 0, twoActions)
	require.NoError(t, err)
	err = other.accumulate(nil, []float64{math.NaN(), 0})
	require.ErrorIs(t, err, ErrNumericInstability)
}

func TestInfoSetStrategyCachedPerEpoch(t *testing.T) {
	table := NewInfoSetTable()
	entry, err := table.GetOrCreate("I", 0, twoActions)
	require.NoError(t, err)

	first := append([]float64(nil), entry.strategyAt(0)...)
	require.NoError(t, entry.accumulate([]float64{1, 0}, nil))

	assert.Equal(t, first, entry.strategyAt(0), "strategy must be stable within an epoch")
	assert.Equal(t, []float64{1, 0}, entry.strategyAt(1))
}

func TestInfoSetTableResetAndClamp(t *testing.T) {
	table := NewInfoSetTable()
	a, err := table.GetOrCreate("A", 0, twoActions)
	require.NoError(t, err)
	b, err := table.GetOrCreate("B", 1, twoActions)
	require.NoError(t, err)

	require.NoError(t, a.accumulate([]float64{-2, 3}, []float64{1, 2}))
	require.NoError(t, b.accumulate([]float64{-1, 1}, []float64{1, 1}))

	table.clampRegrets(0)
	assert.Equal(t, []float64{0, 3}, a.RegretSum)
	assert.Equal(t, []float64{-1, 1}, b.RegretSum, "other players are untouched")

	table.Reset()
	assert.Equal(t, []float64{0, 0}, a.RegretSum)
	assert.Equal(t, []float64{0, 0}, b.StrategySum)
	assert.Equal(t, 2, table.Size(), "entries survive a reset")
}

func TestInfoSetTableDiscount(t *testing.T) {
	table := NewInfoSetTable()
	entry, err := table.GetOrCreate("I", 0, twoActions)
	require.NoError(t, err)
	require.NoError(t, entry.accumulate([]float64{4, -4}, []float64{2, 6}))

	pos, neg, mass := DefaultDiscountParams().factors(1)
	assert.InDelta(t, 0.5, pos, 1e-12)
	assert.InDelta(t, 0.5, neg, 1e-12)
	assert.InDelta(t, 0.25, mass, 1e-12)

	require.NoError(t, table.discount(pos, neg, mass))
	assert.InDeltaSlice(t, []float64{2, -2}, entry.RegretSum, 1e-12)
	assert.InDeltaSlice(t, []float64{0.5, 1.5}, entry.StrategySum, 1e-12)
}

func TestInfoSetTableFoldExponential(t *testing.T) {
	table := NewInfoSetTable()
	table.weighted = true
	entry, err := table.GetOrCreate("I", 0, twoActions)
	require.NoError(t, err)
	other, err := table.GetOrCreate("J", 1, twoActions)
	require.NoError(t, err)
	require.Equal(t, []float64{0, 0}, entry.WeightSum)

	entry.strategyAt(0)
	entry.observe([]float64{0.5, -0.5}, 0.5)
	entry.observe([]float64{0.5, -0.5}, 0.5)
	other.observe([]float64{1, 1}, 1)

	require.NoError(t, table.foldExponential(0, 0))
	e := math.E
	assert.InDeltaSlice(t, []float64{e, 0}, entry.RegretSum, 1e-12)
	assert.InDeltaSlice(t, []float64{e * 0.25, 0.25 / e}, entry.StrategySum, 1e-12)
	assert.InDeltaSlice(t, []float64{e * 0.5, 0.5 / e}, entry.WeightSum, 1e-12)
	assert.InDeltaSlice(t, []float64{0.5, 0.5}, entry.AverageStrategy(), 1e-12)
	assert.Equal(t, []float64{0, 0}, other.RegretSum, "other players fold on their own pass")

	require.NoError(t, table.foldExponential(0, 0))
	assert.InDeltaSlice(t, []float64{e, 0}, entry.RegretSum, 1e-12, "a folded pass is not applied twice")

	entry.observe([]float64{0, -2}, 1)
	require.NoError(t, table.foldExponential(0, -0.5))
	assert.InDeltaSlice(t, []float64{e, -0.5 / e}, entry.RegretSum, 1e-12, "negative regret limited to beta")
}

func TestInfoSetTableSortedAndArenaOrder(t *testing.T) {
	table := NewInfoSetTable()
	for _, id := range []string{"c", "a", "b"} {
		_, err := table.GetOrCreate(id, 0, twoActions)
		require.NoError(t, err)
	}

	var created, sorted []string
	for _, e := range table.Entries() {
		created = append(created, e.ID)
	}
	for _, e := range table.Sorted() {
		sorted = append(sorted, e.ID)
	}
	assert.Equal(t, []string{"c", "a", "b"}, created)
	assert.Equal(t, []string{"a", "b", "c"}, sorted)
	assert.Equal(t, "a", table.At(1).ID)

	_, ok := table.Lookup("missing")
	assert.False(t, ok)
}

func TestInfoSetTableConcurrentAccess(t *testing.T) {
	table := NewInfoSetTable()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				entry, err := table.GetOrCreate(fmt.Sprintf("I%d", i%50), 0, twoActions)
				if err != nil {
					t.Errorf("get or create: %v", err)
					return
				}
				if err := entry.accumulate([]float64{1, -1}, []float64{0.5, 0.5}); err != nil {
					t.Errorf("accumulate: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 50, table.Size())
	for _, e := range table.Entries() {
		assert.Equal(t, 32.0, e.RegretSum[0])
		assert.Equal(t, 32.0, e.StrategySum[0]+e.StrategySum[1])
	}
}
