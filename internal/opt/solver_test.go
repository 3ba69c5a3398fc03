package opt

import (
	"context"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"topsolver/internal/route"
)

func TestCatalogNamesAreUnique(t *testing.T) {
	seen := map[string]bool{}
	for _, s := range Catalog() {
		assert.False(t, seen[s.Name()], s.Name())
		seen[s.Name()] = true
		assert.NotEmpty(t, s.Descr())
		assert.NotEmpty(t, s.Params(), s.Name())
	}
	assert.Len(t, seen, 8)
}

func TestLookupAliases(t *testing.T) {
	for in, want := range map[string]string{
		"greedy":       "GREEDY",
		"Greedy Range": "GREEDY RANGE",
		"greedy_range": "GREEDY RANGE",
		"GREEDYRANGE":  "GREEDY RANGE",
		"bt":           "BT",
		"Backtracking": "BT",
		" sa ":         "SA",
		"ts":           "TS",
		"Sd":           "SD",
		"hc":           "HC",
		"alns":         "ALNS",
	} {
		s, err := Lookup(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, s.Name(), in)
	}
	_, err := Lookup("simplex")
	assert.True(t, errors.Is(err, ErrUnknownSolver))
}

func TestOptionsGetters(t *testing.T) {
	o, err := ParseOptions([]byte("wTime: 0.5\nmaxSolutions: 20\ntwoOpt: false\ninit: random\nmaxTime: 1m30s\nlimit: \"7\"\n"))
	require.NoError(t, err)
	assert.Equal(t, 0.5, o.Float("wTime", 1))
	assert.Equal(t, 20, o.Int("maxSolutions", 0))
	assert.Equal(t, 20.0, o.Float("maxSolutions", 0))
	assert.False(t, o.Bool("twoOpt", true))
	assert.Equal(t, "random", o.String("init", "auto"))
	assert.Equal(t, 90*time.Second, o.Duration("maxTime", 0))
	assert.Equal(t, 7, o.Int("limit", 0))
	assert.Equal(t, 3, o.Int("missing", 3))
	assert.Equal(t, 2*time.Second, Options{"maxTime": 2}.Duration("maxTime", 0))
	assert.Equal(t, 1500*time.Millisecond, Options{"maxTime": 1.5}.Duration("maxTime", 0))
	assert.Equal(t, time.Second, Options{"maxTime": "soon"}.Duration("maxTime", time.Second))
	assert.Equal(t, 4, Options{"n": 4.5}.Int("n", 4))

	merged := o.Merge(Options{"wTime": 2})
	assert.Equal(t, 2.0, merged.Float("wTime", 0))
	assert.Equal(t, 0.5, o.Float("wTime", 0))

	empty, err := ParseOptions([]byte("  \n"))
	require.NoError(t, err)
	assert.Empty(t, empty)
	_, err = ParseOptions([]byte("- a\n- b\n"))
	assert.Error(t, err)
}

func TestLoadOptionsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sa.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`{"cooling_rate": 0.9}`), 0o644))
	o, err := LoadOptionsFile(path)
	require.NoError(t, err)
	assert.Equal(t, 0.9, o.Float("cooling_rate", 0))
	o, err = LoadOptionsFile("")
	require.NoError(t, err)
	assert.Empty(t, o)
}

func TestLocalSearchRunners(t *testing.T) {
	in := gridInstance(t, 2, 9)
	for _, kind := range []RunnerKind{HillClimbing, SimulatedAnnealing, TabuSearch, SteepestDescent} {
		s := &LocalSearch{Kind: kind}
		t.Run(s.Name(), func(t *testing.T) {
			st := route.NewState(in)
			opts := Options{"init": "random", "maxTime": 0.5, "max_evaluations": 20000}
			m, err := s.Solve(context.Background(), st, rand.New(rand.NewSource(3)), opts, nil)
			require.NoError(t, err)
			require.NoError(t, st.Check())
			assert.True(t, st.Feasible())
			assert.Positive(t, st.Profit())
			assert.Equal(t, s.Name(), m.Solver)
			assert.Equal(t, st.Profit(), m.BestProfit)
		})
	}
}

func TestLocalSearchRepairsInfeasibleStart(t *testing.T) {
	in := gridInstance(t, 1, 9)
	st := route.NewState(in)
	for _, p := range []int{4, 13} {
		st.Append(0, p, true)
	}
	require.False(t, st.Feasible())
	_, err := (&LocalSearch{Kind: SteepestDescent}).Solve(context.Background(), st, rand.New(rand.NewSource(1)), Options{"init": "keep"}, nil)
	require.NoError(t, err)
	assert.True(t, st.Feasible())
}

func TestLocalSearchNeverLosesTheStart(t *testing.T) {
	in := gridInstance(t, 2, 9)
	st := route.NewState(in)
	_, err := (&Greedy{}).Solve(context.Background(), st, rand.New(rand.NewSource(1)), Options{"maxSolutions": 20}, nil)
	require.NoError(t, err)
	start := st.Profit()
	_, err = (&LocalSearch{Kind: TabuSearch}).Solve(context.Background(), st, rand.New(rand.NewSource(1)), Options{"maxTime": 0.3}, nil)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, st.Profit(), start)
	assert.True(t, st.Feasible())
}

func TestUnknownInitMode(t *testing.T) {
	st := route.NewState(gridInstance(t, 1, 8))
	_, err := (&LocalSearch{}).Solve(context.Background(), st, rand.New(rand.NewSource(1)), Options{"init": "magic"}, nil)
	assert.Error(t, err)
}

func TestALNSFeasibleAndAdaptive(t *testing.T) {
	in := gridInstance(t, 2, 10)
	st := route.NewState(in)
	var incumbents int
	opts := Options{"iterations": 200, "maxTime": 5, "snapshotEvery": 50}
	m, err := (&ALNS{}).Solve(context.Background(), st, rand.New(rand.NewSource(8)), opts, func(Incumbent) { incumbents++ })
	require.NoError(t, err)
	require.NoError(t, st.Check())
	assert.True(t, st.Feasible())
	assert.Equal(t, 200, m.Iterations)
	assert.Equal(t, 200, m.RemovalSelects[0]+m.RemovalSelects[1])
	assert.Equal(t, 200, m.InsertSelects[0]+m.InsertSelects[1])
	assert.Len(t, m.Snapshots, 4)
	assert.Equal(t, incumbents, m.Improvements)
	for _, w := range m.FinalRemovalWeights {
		assert.GreaterOrEqual(t, w, 0.01)
	}
}

func TestRemovalOperators(t *testing.T) {
	st := fixedState(t, 20)
	rng := rand.New(rand.NewSource(1))
	removed := relatedRemoval(st, 2, rng)
	require.Len(t, removed, 2)
	require.NoError(t, removePoints(st, removed))
	assert.Equal(t, 1, st.TotalHops())
	require.NoError(t, st.Check())

	assert.Len(t, pickRandomPoints(st, 5, rng), 1)
	assert.Empty(t, relatedRemoval(route.NewState(st.Instance()), 3, rng))
}

func TestInsertionOperatorsStayFeasible(t *testing.T) {
	in := gridInstance(t, 2, 9)
	for _, insert := range []func(*route.State) error{
		func(st *route.State) error { return greedyInsert(st, nil) },
		regretInsert,
	} {
		st := route.NewState(in)
		require.NoError(t, insert(st))
		require.NoError(t, st.Check())
		assert.True(t, st.Feasible())
		assert.Positive(t, st.Profit())
		// nothing left that fits anywhere
		for _, p := range unvisitedPoints(st) {
			_, _, n := cheapestSlots(st, p)
			assert.Zero(t, n, "point %d", p)
		}
	}
}

func TestSelectOp(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	counts := [2]int{}
	for i := 0; i < 4000; i++ {
		counts[selectOp([]float64{3, 1}, rng)]++
	}
	assert.InDelta(t, 3000, counts[0], 200)
	assert.Equal(t, 0, selectOp([]float64{0, 0}, rng))
}

func TestTwoOptShortensCrossedRoute(t *testing.T) {
	pts := []route.Point{
		{X: 0, Y: 0},
		{X: 1, Y: 1, Profit: 1},
		{X: 1, Y: 0, Profit: 1},
		{X: 2, Y: 1, Profit: 1},
		{X: 2, Y: 0, Profit: 1},
		{X: 3, Y: 0},
	}
	in, err := route.NewInstance("cross", pts, 1, 100)
	require.NoError(t, err)
	st := route.NewState(in)
	for _, p := range []int{1, 4, 2, 3} {
		st.Append(0, p, true)
	}
	before := st.TravelTime(0)
	changed, err := twoOptRoutes(st, 10)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Less(t, st.TravelTime(0), before)
	assert.Equal(t, 4, st.Profit())
	require.NoError(t, st.Check())

	again, err := twoOptRoutes(st, 10)
	require.NoError(t, err)
	assert.False(t, again)
}

func TestImproveOrderKeepsEndpoints(t *testing.T) {
	in := gridInstance(t, 1, 100)
	order := []int{16, 1, 11, 6}
	out := ImproveOrder2Opt(in, order, 5)
	assert.ElementsMatch(t, order, out)
	assert.LessOrEqual(t, pathDistance(in, append(append([]int{0}, out...), in.End())),
		pathDistance(in, append(append([]int{0}, order...), in.End())))
	assert.Equal(t, []int{1, 6, 11, 16}, out)
}

func TestMetricsStore(t *testing.T) {
	s := NewMetricsStore()
	s.Record("p1.2.a", "GREEDY", "default", Metrics{Solver: "GREEDY", BestProfit: 10, Feasible: true})
	s.Record("p1.2.a", "ALNS", "long", Metrics{Solver: "ALNS", BestProfit: 15, Feasible: true})
	s.Record("p1.2.a", "SA", "hot", Metrics{Solver: "SA", BestProfit: 40, Feasible: false})
	s.Record("p2.2.b", "BT", "default", Metrics{Solver: "BT", BestProfit: 3, Feasible: true})

	got := s.Get("p1.2.a")
	assert.Len(t, got, 3)
	assert.Equal(t, 15, got["ALNS/long"].BestProfit)
	best, ok := s.Best("p1.2.a")
	require.True(t, ok)
	assert.Equal(t, "ALNS", best.Solver)
	_, ok = s.Best("missing")
	assert.False(t, ok)
	assert.ElementsMatch(t, []string{"p1.2.a", "p2.2.b"}, s.Instances())
}
