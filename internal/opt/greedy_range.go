package opt

import (
	"context"
	"math"
	"math/rand"
	"time"

	"topsolver/internal/route"
)

// GreedyRange sweeps the greedy weights and deviation radius and keeps the best run.
type GreedyRange struct{}

func (*GreedyRange) Name() string  { return "GREEDY RANGE" }
func (*GreedyRange) Descr() string { return "Greedy Range" }

func (*GreedyRange) Params() []Param {
	return []Param{
		floatParam("maxDevStep", "Step of the deviation sweep", 0.01, 0.001, 1),
		floatParam("maxDevMax", "Largest deviation of the sweep", 6, 0, 20),
		intParam("maxSolutions", "Partial solutions per greedy run (0 for all)", 0, 0, 1e9),
		floatParam("maxTime", "Maximum time allowed in seconds (0 for none)", 60, 0, 3600),
	}
}

// sweepWTime is 0.1 to 1.2 in steps of 0.1, then two wide settings.
func sweepWTime() []float64 {
	out := make([]float64, 0, 14)
	for i := 1; i <= 12; i++ {
		out = append(out, float64(i)/10)
	}
	return append(out, 2.9, 3.4)
}

var sweepWNonCost = []float64{0, 0.5, 1, 5}

func (s *GreedyRange) Solve(ctx context.Context, st *route.State, rng *rand.Rand, opts Options, progress Progress) (Metrics, error) {
	b := newBudget(ctx, opts.Duration("maxTime", 60*time.Second))
	m := Metrics{Solver: s.Name()}
	step := opts.Float("maxDevStep", 0.01)
	if step <= 0 {
		step = 0.01
	}
	devMax := opts.Float("maxDevMax", 6)
	devSteps := int(math.Round(devMax / step))
	maxSolutions := opts.Int("maxSolutions", 0)

	seed := st.Clone()
	best := st.Clone()
	found := false
	runs := 0
sweep:
	for _, wTime := range sweepWTime() {
		for _, wNonCost := range sweepWNonCost {
			for i := 0; i <= devSteps; i++ {
				if b.expired(&m) {
					break sweep
				}
				p := GreedyParams{WProfit: 1, WTime: wTime, WNonCost: wNonCost, MaxDev: float64(i) * step, MaxSolutions: maxSolutions}
				var run Metrics
				cur, err := runGreedy(b, seed, rng, p, &run, nil)
				if err != nil {
					return m, err
				}
				runs++
				m.Constructions += run.Constructions
				if run.TimedOut || run.Canceled {
					m.TimedOut, m.Canceled = run.TimedOut, run.Canceled
				}
				if !found || cur.Profit() > best.Profit() {
					found = true
					best = cur
					m.Improvements++
					m.BestParams = map[string]float64{"wTime": wTime, "wNonCost": wNonCost, "maxDev": p.MaxDev}
					inc := incumbentOf(s.Name(), best, runs, b)
					inc.Params = m.BestParams
					progress.emit(inc)
				}
			}
		}
	}
	m.Iterations = runs
	m.Exhausted = !m.TimedOut && !m.Canceled
	st.CopyFrom(best)
	m.finish(st, b)
	return m, nil
}
