package opt

import (
	"context"
	"math/rand"
	"time"

	"topsolver/internal/route"
)

// ALNS is a ruin-and-recreate search with adaptive operator weights.
type ALNS struct{}

func (*ALNS) Name() string  { return "ALNS" }
func (*ALNS) Descr() string { return "Adaptive Large Neighbourhood Search" }

func (*ALNS) Params() []Param {
	return []Param{
		stringParam("init", "Starting point: auto, random or keep", "auto"),
		floatParam("maxTime", "Maximum time allowed in seconds", 10, 0, 3600),
		intParam("iterations", "Iteration cap (0 for none)", 0, 0, 1e9),
		floatParam("initialTemp", "Initial temperature", 1, 0, 1000),
		floatParam("cooling", "Cooling factor per iteration", 0.995, 0, 1),
		intParam("minRemove", "Fewest points removed per iteration", 1, 1, 1000),
		intParam("maxRemove", "Most points removed per iteration", 3, 1, 1000),
		floatParam("randomRemovalWeight", "Initial weight of random removal", 1, 0, 100),
		floatParam("relatedRemovalWeight", "Initial weight of related removal", 1, 0, 100),
		floatParam("greedyInsertWeight", "Initial weight of greedy insertion", 1, 0, 100),
		floatParam("regretInsertWeight", "Initial weight of regret insertion", 1, 0, 100),
		intParam("snapshotEvery", "Iterations between weight snapshots", 50, 1, 1e6),
		boolParam("twoOpt", "Shorten routes with 2-opt before recreating", true),
	}
}

func (s *ALNS) Solve(ctx context.Context, st *route.State, rng *rand.Rand, opts Options, progress Progress) (Metrics, error) {
	b := newBudget(ctx, opts.Duration("maxTime", 10*time.Second))
	m := Metrics{Solver: s.Name()}
	if err := prepareStart(b, st, rng, opts.String("init", "auto")); err != nil {
		return m, err
	}
	cfg := alnsConfig{
		Iterations:    opts.Int("iterations", 0),
		InitialTemp:   opts.Float("initialTemp", 1),
		Cooling:       opts.Float("cooling", 0.995),
		MinRemove:     opts.Int("minRemove", 1),
		MaxRemove:     opts.Int("maxRemove", 3),
		SnapshotEvery: opts.Int("snapshotEvery", 50),
		RemovalWeights: [2]float64{
			opts.Float("randomRemovalWeight", 1),
			opts.Float("relatedRemovalWeight", 1),
		},
		InsertionWeights: [2]float64{
			opts.Float("greedyInsertWeight", 1),
			opts.Float("regretInsertWeight", 1),
		},
		TwoOpt: opts.Bool("twoOpt", true),
	}
	best, err := runALNS(s.Name(), b, st.Clone(), rng, cfg, &m, progress)
	if err != nil {
		return m, err
	}
	if better(best, st) || !st.Feasible() {
		st.CopyFrom(best)
	}
	m.finish(st, b)
	return m, nil
}
