package opt

import (
	"context"
	"math"
	"math/rand"
	"sort"

	"topsolver/internal/route"
)

// Worklist admission thresholds on solved plus queued partial solutions.
const (
	partialAlwaysBelow = 100
	partialNeverFrom   = 600
)

type GreedyParams struct {
	WProfit      float64
	WTime        float64
	WNonCost     float64
	MaxDev       float64
	MaxSolutions int
}

func DefaultGreedyParams() GreedyParams {
	return GreedyParams{WProfit: 1, WTime: 0.7, WNonCost: 0, MaxDev: 1.5}
}

func greedyParamsFrom(o Options) GreedyParams {
	p := DefaultGreedyParams()
	p.WProfit = o.Float("wProfit", p.WProfit)
	p.WTime = o.Float("wTime", p.WTime)
	p.WNonCost = o.Float("wNonCost", p.WNonCost)
	p.MaxDev = o.Float("maxDev", p.MaxDev)
	p.MaxSolutions = o.Int("maxSolutions", 0)
	return p
}

// Greedy builds routes by repeated best-rated insertion and explores tied choices
// through a bounded worklist of partial solutions.
type Greedy struct{}

func (*Greedy) Name() string  { return "GREEDY" }
func (*Greedy) Descr() string { return "Greedy Single" }

func (*Greedy) Params() []Param {
	return []Param{
		floatParam("wProfit", "Weight of Profit", 1, 0, 10),
		floatParam("wTime", "Weight of Time", 0.7, 0.1, 3.4),
		floatParam("wNonCost", "Weight of Missing Costs", 0, 0, 2),
		floatParam("maxDev", "Maximum detour distance to capture point", 1.5, 0, 6),
		intParam("maxSolutions", "Partial solutions to solve (0 for all)", 0, 0, 1e9),
		floatParam("maxTime", "Maximum time allowed in seconds (0 for none)", 0, 0, 3600),
	}
}

func (g *Greedy) Solve(ctx context.Context, st *route.State, rng *rand.Rand, opts Options, progress Progress) (Metrics, error) {
	b := newBudget(ctx, opts.Duration("maxTime", 0))
	m := Metrics{Solver: g.Name()}
	report := func(best *route.State, solved int) {
		progress.emit(incumbentOf(g.Name(), best, solved, b))
	}
	best, err := runGreedy(b, st, rng, greedyParamsFrom(opts), &m, report)
	if err != nil {
		return m, err
	}
	st.CopyFrom(best)
	m.finish(st, b)
	return m, nil
}

// runGreedy drains the worklist seeded with a copy of seed and returns the best state.
func runGreedy(b *budget, seed *route.State, rng *rand.Rand, p GreedyParams, m *Metrics, onImprove func(*route.State, int)) (*route.State, error) {
	g := &constructor{
		rater:  Rater{WProfit: p.WProfit, WTime: p.WTime, WNonCost: p.WNonCost},
		maxDev: p.MaxDev,
		rng:    rng,
		work:   []*route.State{seed.Clone()},
	}
	best := seed.Clone()
	for len(g.work) > 0 {
		if b.expired(m) {
			break
		}
		if p.MaxSolutions > 0 && g.solved >= p.MaxSolutions {
			break
		}
		cur := g.work[len(g.work)-1]
		g.work = g.work[:len(g.work)-1]
		if err := g.construct(cur); err != nil {
			return nil, err
		}
		g.solved++
		m.Iterations++
		if cur.Profit() > best.Profit() {
			best = cur
			m.Improvements++
			if onImprove != nil {
				onImprove(best, g.solved)
			}
		}
	}
	m.Constructions += g.solved
	m.Exhausted = len(g.work) == 0
	return best, nil
}

type constructor struct {
	rater  Rater
	maxDev float64
	rng    *rand.Rand
	work   []*route.State
	solved int
	ties   []int
}

// acceptPartial always admits below the lower threshold, never at the upper one and
// otherwise with a probability that falls linearly in between.
func acceptPartial(rng *rand.Rand, total int) bool {
	if total <= partialAlwaysBelow {
		return true
	}
	if total >= partialNeverFrom {
		return false
	}
	reject := float64(total-partialAlwaysBelow) / float64(partialNeverFrom-partialAlwaysBelow)
	return rng.Float64() >= reject
}

// offer queues a copy of st, or on rejection overwrites a random queued entry half the time.
func (g *constructor) offer(st *route.State) {
	if acceptPartial(g.rng, g.solved+len(g.work)) {
		g.work = append(g.work, st.Clone())
		return
	}
	if len(g.work) > 0 && g.rng.Intn(2) == 1 {
		g.work[g.rng.Intn(len(g.work))] = st.Clone()
	}
}

// leastTimeCar returns the unmarked car with the smallest travel time, or -1.
func leastTimeCar(st *route.State, marked []bool) int {
	best := -1
	for car := range marked {
		if marked[car] {
			continue
		}
		if best < 0 || st.TravelTime(car) < st.TravelTime(best) {
			best = car
		}
	}
	return best
}

// nearestFeasibleCar returns the unmarked car whose last stop is closest to p among
// those that can append p, or -1.
func nearestFeasibleCar(st *route.State, p int, marked []bool) int {
	in := st.Instance()
	best, bestDist := -1, math.Inf(1)
	for car := range marked {
		if marked[car] || !st.SimulateAppend(car, p).Feasible {
			continue
		}
		if d := in.Distance(st.LastPoint(car), p); d < bestDist {
			best, bestDist = car, d
		}
	}
	return best
}

// construct completes st in place.
func (g *constructor) construct(st *route.State) error {
	in := st.Instance()
	marked := make([]bool, in.Cars())
	for {
		car := leastTimeCar(st, marked)
		if car < 0 {
			return nil
		}
		best := math.Inf(-1)
		g.ties = g.ties[:0]
		for p := 1; p < in.Points()-1; p++ {
			if st.Visited(p) || !st.SimulateAppend(car, p).Feasible {
				continue
			}
			r := g.rater.Rating(st, p, car)
			switch {
			case r > best:
				best = r
				g.ties = append(g.ties[:0], p)
			case r == best && !math.IsInf(r, -1):
				g.ties = append(g.ties, p)
			}
		}
		if math.IsInf(best, -1) {
			marked[car] = true
			continue
		}
		main := 0
		if len(g.ties) > 1 {
			main = g.rng.Intn(len(g.ties))
		}
		for i, p := range g.ties {
			if i == main {
				continue
			}
			if err := g.branch(st, p, marked); err != nil {
				return err
			}
		}
		if !st.Append(car, g.ties[main], false).Feasible {
			marked[car] = true
			continue
		}
		if _, err := ellipseInsert(st, car, g.maxDev); err != nil {
			return err
		}
	}
}

// branch derives the partial solution that gives p to its nearest car, offers it to
// the worklist and rolls it back.
func (g *constructor) branch(st *route.State, p int, marked []bool) error {
	car := nearestFeasibleCar(st, p, marked)
	if car < 0 || st.Visited(p) {
		return nil
	}
	if !st.Append(car, p, false).Feasible {
		return nil
	}
	added, err := ellipseInsert(st, car, g.maxDev)
	if err != nil {
		return err
	}
	g.offer(st)
	for i := 0; i <= added; i++ {
		if _, err := st.RollbackLast(car); err != nil {
			return err
		}
	}
	return nil
}

// ellipseInsert collects the unvisited points lying within maxDev of the car's last leg,
// then inserts them before the last stop nearest to the previous stop first, skipping
// those that no longer fit. It returns how many it inserted.
func ellipseInsert(st *route.State, car int, maxDev float64) (int, error) {
	in := st.Instance()
	n := st.Hops(car)
	if n == 0 {
		return 0, nil
	}
	last, prev := st.Hop(car, n), st.Hop(car, n-1)
	leg := in.Distance(prev, last)
	var cands []int
	for q := 1; q < in.Points()-1; q++ {
		if st.Visited(q) {
			continue
		}
		if in.Distance(last, q)+in.Distance(prev, q)-leg <= maxDev {
			cands = append(cands, q)
		}
	}
	sort.SliceStable(cands, func(i, j int) bool {
		return in.Distance(prev, cands[i]) < in.Distance(prev, cands[j])
	})
	added := 0
	for _, q := range cands {
		res, err := st.InsertAt(car, n+added, q, route.ApplyIfFeasible)
		if err != nil {
			return added, err
		}
		if res.Feasible {
			added++
		}
	}
	return added, nil
}
