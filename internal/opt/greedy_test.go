package opt

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"topsolver/internal/route"
)

// gridInstance is a 4x4 reward grid between (0,0) and (5,5).
func gridInstance(t *testing.T, cars int, tmax float64) *route.Instance {
	t.Helper()
	pts := []route.Point{{X: 0, Y: 0}}
	for i := 1; i <= 4; i++ {
		for j := 1; j <= 4; j++ {
			pts = append(pts, route.Point{X: float64(i), Y: float64(j), Profit: i + j})
		}
	}
	pts = append(pts, route.Point{X: 5, Y: 5})
	in, err := route.NewInstance("grid", pts, cars, tmax)
	require.NoError(t, err)
	return in
}

func pairInstance(t *testing.T) *route.Instance {
	t.Helper()
	in, err := route.NewInstance("pair", []route.Point{{Profit: 5}, {Profit: 5}}, 1, 0)
	require.NoError(t, err)
	return in
}

func lineInstance(t *testing.T) *route.Instance {
	t.Helper()
	in, err := route.NewInstance("line", []route.Point{{X: 0}, {X: 1, Profit: 10}, {X: 2}}, 1, 4)
	require.NoError(t, err)
	return in
}

func TestGreedyTrivialInstance(t *testing.T) {
	st := route.NewState(pairInstance(t))
	m, err := (&Greedy{}).Solve(context.Background(), st, rand.New(rand.NewSource(1)), Options{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 5, st.Profit())
	assert.True(t, st.Feasible())
	assert.Equal(t, 5, m.BestProfit)
}

func TestGreedyCollinear(t *testing.T) {
	st := route.NewState(lineInstance(t))
	_, err := (&Greedy{}).Solve(context.Background(), st, rand.New(rand.NewSource(1)), Options{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 10, st.Profit())
	assert.True(t, st.Feasible())
	assert.Equal(t, []int{1}, st.Route(0))
	assert.InDelta(t, 2.0, st.TravelTime(0), 1e-9)
}

func TestGreedyStaysFeasible(t *testing.T) {
	for _, tc := range []struct {
		cars int
		tmax float64
	}{{1, 8}, {2, 9}, {3, 12}, {2, 30}} {
		in := gridInstance(t, tc.cars, tc.tmax)
		for seed := int64(1); seed <= 5; seed++ {
			st := route.NewState(in)
			var incumbents []Incumbent
			opts := Options{"maxSolutions": 50}
			m, err := (&Greedy{}).Solve(context.Background(), st, rand.New(rand.NewSource(seed)), opts, func(inc Incumbent) {
				incumbents = append(incumbents, inc)
			})
			require.NoError(t, err)
			require.NoError(t, st.Check())
			assert.True(t, st.Feasible(), "cars=%d tmax=%v seed=%d", tc.cars, tc.tmax, seed)
			assert.LessOrEqual(t, m.Iterations, 50)
			for i := 1; i < len(incumbents); i++ {
				assert.Greater(t, incumbents[i].Profit, incumbents[i-1].Profit)
			}
		}
	}
}

// randomInstance scatters 3 to 12 rewarded points with a budget that leaves some out.
func randomInstance(t *testing.T, rng *rand.Rand) *route.Instance {
	t.Helper()
	n := 5 + rng.Intn(10)
	pts := make([]route.Point, n)
	for i := range pts {
		pts[i] = route.Point{X: float64(rng.Intn(21)), Y: float64(rng.Intn(21))}
		if i > 0 && i < n-1 {
			pts[i].Profit = 1 + rng.Intn(10)
		}
	}
	tmax := pts[0].Distance(pts[n-1]) + rng.Float64()*40
	in, err := route.NewInstance("random", pts, 1+rng.Intn(3), tmax)
	require.NoError(t, err)
	return in
}

func TestGreedyLeavesNoFeasibleAppend(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 500; trial++ {
		in := randomInstance(t, rng)
		st := route.NewState(in)
		_, err := (&Greedy{}).Solve(context.Background(), st, rand.New(rand.NewSource(int64(trial))), Options{"maxSolutions": 10}, nil)
		require.NoError(t, err)
		require.True(t, st.Feasible(), "trial %d", trial)
		for p := 1; p < in.Points()-1; p++ {
			if st.Visited(p) {
				continue
			}
			for car := 0; car < in.Cars(); car++ {
				require.False(t, st.SimulateAppend(car, p).Feasible,
					"trial %d: point %d (profit %d) still fits car %d", trial, p, in.Point(p).Profit, car)
			}
		}
	}
}

func TestConstructMarksCarOnlyWhenNothingFits(t *testing.T) {
	pts := []route.Point{
		{X: 0, Y: 0},
		{X: -1, Y: 0, Profit: 1},
		{X: 0, Y: 5, Profit: 1},
		{X: 0, Y: 5.5, Profit: 50},
		{X: 1, Y: 0, Profit: 1},
		{X: 0, Y: 0},
	}
	in, err := route.NewInstance("mark", pts, 2, 12)
	require.NoError(t, err)
	st := route.NewState(in)
	require.True(t, st.Append(0, 1, false).Feasible)
	require.True(t, st.Append(1, 2, false).Feasible)
	// car 0 rates first and cannot reach point 3, but point 4 still fits it
	require.False(t, st.SimulateAppend(0, 3).Feasible)
	require.True(t, st.SimulateAppend(1, 3).Feasible)

	g := &constructor{rater: Rater{WProfit: 1, WTime: 0.7}, maxDev: 1.5, rng: rand.New(rand.NewSource(1))}
	require.NoError(t, g.construct(st))
	assert.Equal(t, []int{1, 4}, st.Route(0))
	assert.Equal(t, []int{2, 3}, st.Route(1))
	assert.Equal(t, 53, st.Profit())
}

func TestGreedyLargeBudgetTakesEverything(t *testing.T) {
	in := gridInstance(t, 1, 1000)
	st := route.NewState(in)
	_, err := (&Greedy{}).Solve(context.Background(), st, rand.New(rand.NewSource(7)), Options{"maxSolutions": 5}, nil)
	require.NoError(t, err)
	assert.Equal(t, in.TotalProfit(), st.Profit())
}

func TestGreedyCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	st := route.NewState(gridInstance(t, 2, 10))
	m, err := (&Greedy{}).Solve(ctx, st, rand.New(rand.NewSource(1)), Options{}, nil)
	require.NoError(t, err)
	assert.True(t, m.Canceled)
	assert.Equal(t, 0, st.TotalHops())
}

func TestAcceptPartial(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 100; i++ {
		assert.True(t, acceptPartial(rng, 0))
		assert.True(t, acceptPartial(rng, partialAlwaysBelow))
		assert.False(t, acceptPartial(rng, partialNeverFrom))
		assert.False(t, acceptPartial(rng, 5000))
	}
	accepted := 0
	for i := 0; i < 10000; i++ {
		if acceptPartial(rng, 350) {
			accepted++
		}
	}
	assert.InDelta(t, 5000, accepted, 400)
}

func TestEllipseInsertFoldsPointsOnTheLeg(t *testing.T) {
	pts := []route.Point{
		{X: 0, Y: 0},
		{X: 1, Y: 0, Profit: 1},
		{X: 2, Y: 0, Profit: 1},
		{X: 3, Y: 0, Profit: 5},
		{X: 3, Y: 9, Profit: 1},
		{X: 4, Y: 0},
	}
	in, err := route.NewInstance("ellipse", pts, 1, 10)
	require.NoError(t, err)
	st := route.NewState(in)
	require.True(t, st.Append(0, 3, false).Feasible)

	added, err := ellipseInsert(st, 0, 0.5)
	require.NoError(t, err)
	assert.Equal(t, 2, added)
	assert.Equal(t, []int{1, 2, 3}, st.Route(0))
	assert.False(t, st.Visited(4))
	require.NoError(t, st.Check())
}

func TestEllipseInsertRespectsBudget(t *testing.T) {
	pts := []route.Point{
		{X: 0, Y: 0},
		{X: 1, Y: 1, Profit: 1},
		{X: 2, Y: 0, Profit: 5},
		{X: 3, Y: 0},
	}
	in, err := route.NewInstance("tight", pts, 1, 3)
	require.NoError(t, err)
	st := route.NewState(in)
	require.True(t, st.Append(0, 2, false).Feasible)

	added, err := ellipseInsert(st, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, 0, added)
	assert.Equal(t, []int{2}, st.Route(0))
}

func TestEllipseInsertSkipsPointsThatNoLongerFit(t *testing.T) {
	pts := []route.Point{
		{X: 0, Y: 0},
		{X: 0.5, Y: 1, Profit: 1},
		{X: 2, Y: 0, Profit: 1},
		{X: 4, Y: 0, Profit: 5},
		{X: 4, Y: 0},
	}
	// point 1 is nearer to the start but its detour exceeds the remaining slack
	in, err := route.NewInstance("skip", pts, 1, 4.5)
	require.NoError(t, err)
	st := route.NewState(in)
	require.True(t, st.Append(0, 3, false).Feasible)

	added, err := ellipseInsert(st, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, added)
	assert.Equal(t, []int{2, 3}, st.Route(0))
	require.NoError(t, st.Check())
}

func TestRatingRulesOutVisitedAndUnreachable(t *testing.T) {
	in := gridInstance(t, 1, 8)
	st := route.NewState(in)
	r := Rater{WProfit: 1, WTime: 0.7}
	require.True(t, st.Append(0, 1, false).Feasible)
	assert.True(t, math.IsInf(r.Rating(st, 1, 0), -1))

	far := gridInstance(t, 1, 7.0711)
	st2 := route.NewState(far)
	for p := 1; p < far.Points()-1; p++ {
		if !st2.SimulateAppend(0, p).Feasible {
			assert.True(t, math.IsInf(r.Rating(st2, p, 0), -1), "point %d", p)
		}
	}
}

func TestRatingPrefersRewardOnEmptyCar(t *testing.T) {
	in := gridInstance(t, 1, 20)
	st := route.NewState(in)
	// without a time weight only the relative reward counts
	r := Rater{WProfit: 1}
	low := r.Rating(st, 1, 0)   // (1,1) reward 2
	high := r.Rating(st, 16, 0) // (4,4) reward 8
	assert.Greater(t, high, low)
	assert.InDelta(t, 4*low, high, 1e-9)
}

func TestGreedyRangeReportsBestParams(t *testing.T) {
	in := gridInstance(t, 2, 9)
	st := route.NewState(in)
	opts := Options{"maxDevStep": 1, "maxDevMax": 2, "maxSolutions": 3}
	m, err := (&GreedyRange{}).Solve(context.Background(), st, rand.New(rand.NewSource(2)), opts, nil)
	require.NoError(t, err)
	assert.True(t, st.Feasible())
	assert.Equal(t, 14*4*3, m.Iterations)
	assert.Contains(t, m.BestParams, "wTime")
	assert.Contains(t, m.BestParams, "maxDev")
	assert.Len(t, sweepWTime(), 14)
}
