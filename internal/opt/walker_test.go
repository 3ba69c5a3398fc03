package opt

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"topsolver/internal/route"
)

func TestBacktrackingTrivialInstance(t *testing.T) {
	st := route.NewState(pairInstance(t))
	m, err := (&Backtracking{}).Solve(context.Background(), st, nil, Options{"maxTime": 1}, nil)
	require.NoError(t, err)
	assert.Equal(t, 5, st.Profit())
	assert.True(t, st.Feasible())
	assert.True(t, m.Exhausted)
}

func TestBacktrackingCollinear(t *testing.T) {
	st := route.NewState(lineInstance(t))
	m, err := (&Backtracking{}).Solve(context.Background(), st, nil, Options{"maxTime": 1}, nil)
	require.NoError(t, err)
	assert.Equal(t, 10, st.Profit())
	assert.True(t, st.Feasible())
	assert.Equal(t, 1, m.Improvements)
	assert.True(t, m.Exhausted)
}

func TestBacktrackingIncumbentsImprove(t *testing.T) {
	bt := route.NewState(gridInstance(t, 2, 9))
	var incumbents []Incumbent
	_, err := (&Backtracking{}).Solve(context.Background(), bt, nil, Options{"maxTime": 2}, func(inc Incumbent) {
		incumbents = append(incumbents, inc)
	})
	require.NoError(t, err)
	require.NoError(t, bt.Check())
	assert.True(t, bt.Feasible())
	require.NotEmpty(t, incumbents)
	assert.Equal(t, bt.Profit(), incumbents[len(incumbents)-1].Profit)
	for i := 1; i < len(incumbents); i++ {
		assert.Greater(t, incumbents[i].Profit, incumbents[i-1].Profit)
	}
}

func TestBacktrackingHonoursIterationLimit(t *testing.T) {
	st := route.NewState(gridInstance(t, 3, 12))
	m, err := (&Backtracking{}).Solve(context.Background(), st, nil, Options{"maxTime": 5, "maxIterations": 25}, nil)
	require.NoError(t, err)
	assert.LessOrEqual(t, m.Iterations, 25)
	assert.True(t, st.Feasible())
}

func TestBacktrackingCanceledKeepsIncumbent(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	st := route.NewState(gridInstance(t, 3, 14))
	m, err := (&Backtracking{}).Solve(ctx, st, nil, Options{"maxTime": 30}, nil)
	require.NoError(t, err)
	assert.True(t, m.TimedOut || m.Exhausted)
	assert.True(t, st.Feasible())
	assert.Positive(t, st.Profit())
}

func TestMinCostBoundsCost(t *testing.T) {
	in := gridInstance(t, 2, 10)
	rng := rand.New(rand.NewSource(11))
	for i := 0; i < 200; i++ {
		st := route.NewState(in)
		RandomState(st, rng)
		// walk a few random moves so infeasible states are covered too
		for k := 0; k < 5; k++ {
			mv, ok := RandomMove(st, rng)
			if !ok {
				break
			}
			require.NoError(t, mv.ApplyTo(st))
		}
		n := &TOPNode{State: st}
		assert.LessOrEqual(t, n.MinCost(), n.Cost())
	}
}

func TestWalkerParentRestoresState(t *testing.T) {
	in := gridInstance(t, 2, 10)
	st := route.NewState(in)
	w := NewTOPWalker(st, Rater{WProfit: 1, WTime: 0.7}, 1.5)
	w.GoToRoot()
	before := st.Clone()
	require.True(t, w.GoToChild())
	require.True(t, w.GoToChild())
	assert.Equal(t, 2, w.Depth())
	require.True(t, w.GoToSibling())
	assert.Equal(t, 2, w.Depth())
	require.True(t, w.GoToParent())
	require.True(t, w.GoToParent())
	assert.False(t, w.GoToParent())
	require.NoError(t, w.Err())
	assert.Equal(t, before.Profit(), st.Profit())
	assert.Equal(t, 0, st.TotalHops())
	require.NoError(t, st.Check())
}

func TestWalkerCandidateOrder(t *testing.T) {
	st := route.NewState(gridInstance(t, 2, 10))
	w := NewTOPWalker(st, Rater{WProfit: 1, WTime: 0.7}, 1.5)
	list := w.candidates()
	require.NotEmpty(t, list)
	seen := map[[2]int]bool{}
	for i, c := range list {
		key := [2]int{c.point, c.car}
		assert.False(t, seen[key], "duplicate candidate %v", key)
		seen[key] = true
		if i == 0 {
			continue
		}
		prev := list[i-1]
		assert.GreaterOrEqual(t, prev.rating, c.rating)
		if prev.rating == c.rating && prev.point == c.point {
			assert.Less(t, prev.car, c.car)
		}
	}
}

func TestCheckerVerdicts(t *testing.T) {
	c := &TOPChecker{}
	c.Reset()
	assert.Nil(t, c.Best())

	pair := route.NewState(pairInstance(t))
	n := &TOPNode{State: pair}
	assert.Equal(t, Normal, c.Check(n))
	require.True(t, c.Update(n))
	assert.Equal(t, NonImproving, c.Check(n))
	assert.False(t, c.Update(n))
	assert.Equal(t, 5, c.Best().Profit())

	c.Reset()
	bad := route.NewState(gridInstance(t, 1, 8))
	bad.Append(0, 4, true)
	bad.Append(0, 13, true)
	require.False(t, bad.Feasible())
	assert.Equal(t, Unfeasible, c.Check(&TOPNode{State: bad}))
	assert.False(t, c.Update(&TOPNode{State: bad}))
	assert.Equal(t, "non-improving", NonImproving.String())
}
