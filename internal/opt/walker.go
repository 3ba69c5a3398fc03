package opt

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"time"

	"topsolver/internal/route"
)

// TOPNode wraps the route state searched by branch and bound. Cost is the negated reward.
type TOPNode struct {
	State *route.State
}

func (n *TOPNode) Cost() int      { return -n.State.Profit() }
func (n *TOPNode) Feasible() bool { return n.State.Feasible() }

// MinCost subtracts the positive reward of every unvisited point some car can still
// append. Cars competing for the same point are ignored, so the bound never exceeds Cost.
func (n *TOPNode) MinCost() int {
	st := n.State
	in := st.Instance()
	reward := st.Profit()
	for p := 1; p < in.Points()-1; p++ {
		if st.Visited(p) || in.Point(p).Profit <= 0 {
			continue
		}
		if anyCarFits(st, p) {
			reward += in.Point(p).Profit
		}
	}
	return -reward
}

type candidate struct {
	point  int
	car    int
	rating float64
}

// TOPWalker descends by committing the best-rated feasible (point, car) assignment.
type TOPWalker struct {
	node   *TOPNode
	root   *route.State
	rater  Rater
	maxDev float64
	order  []int
	err    error
}

func NewTOPWalker(st *route.State, rater Rater, maxDev float64) *TOPWalker {
	return &TOPWalker{
		node:   &TOPNode{State: st},
		root:   st.Clone(),
		rater:  rater,
		maxDev: maxDev,
	}
}

func (w *TOPWalker) Node() *TOPNode { return w.node }
func (w *TOPWalker) Err() error     { return w.err }

// Depth is the number of assignments committed since the root.
func (w *TOPWalker) Depth() int { return len(w.order) }

// steppingStone returns the unvisited point nearest to the car's last stop that lies
// within maxDev of the leg towards p, when the car can append it; otherwise p.
func (w *TOPWalker) steppingStone(car, p int) int {
	st := w.node.State
	in := st.Instance()
	last := st.LastPoint(car)
	leg := in.Distance(last, p)
	pick := -1
	for q := 1; q < in.Points()-1; q++ {
		if q == p || st.Visited(q) {
			continue
		}
		if in.Distance(last, q)+in.Distance(q, p)-leg > w.maxDev {
			continue
		}
		if pick < 0 || in.Distance(last, q) < in.Distance(last, pick) {
			pick = q
		}
	}
	if pick >= 0 && st.SimulateAppend(car, pick).Feasible {
		return pick
	}
	return p
}

// candidates lists the distinct (point, car) assignments available at the current node,
// best rating first, then point and car ascending.
func (w *TOPWalker) candidates() []candidate {
	st := w.node.State
	in := st.Instance()
	var out []candidate
	seen := make(map[[2]int]bool)
	for p := 1; p < in.Points()-1; p++ {
		if st.Visited(p) {
			continue
		}
		for car := 0; car < in.Cars(); car++ {
			if !st.SimulateAppend(car, p).Feasible {
				continue
			}
			r := w.rater.Rating(st, p, car)
			if math.IsInf(r, -1) {
				continue
			}
			q := w.steppingStone(car, p)
			key := [2]int{q, car}
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, candidate{point: q, car: car, rating: r})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.rating != b.rating {
			return a.rating > b.rating
		}
		if a.point != b.point {
			return a.point < b.point
		}
		return a.car < b.car
	})
	return out
}

// commit applies the first feasible candidate from list and returns its car.
func (w *TOPWalker) commit(list []candidate) (int, bool) {
	st := w.node.State
	for _, c := range list {
		if st.Visited(c.point) {
			continue
		}
		if st.Append(c.car, c.point, false).Feasible {
			return c.car, true
		}
	}
	return 0, false
}

func (w *TOPWalker) GoToChild() bool {
	if w.err != nil {
		return false
	}
	car, ok := w.commit(w.candidates())
	if !ok {
		return false
	}
	w.order = append(w.order, car)
	return true
}

func (w *TOPWalker) GoToSibling() bool {
	if w.err != nil || len(w.order) == 0 {
		return false
	}
	st := w.node.State
	car := w.order[len(w.order)-1]
	p, err := st.RollbackLast(car)
	if err != nil {
		w.err = err
		return false
	}
	list := w.candidates()
	for i, c := range list {
		if c.point != p || c.car != car {
			continue
		}
		if next, ok := w.commit(list[i+1:]); ok {
			w.order[len(w.order)-1] = next
			return true
		}
		break
	}
	st.Append(car, p, true)
	return false
}

func (w *TOPWalker) GoToParent() bool {
	if w.err != nil || len(w.order) == 0 {
		return false
	}
	car := w.order[len(w.order)-1]
	w.order = w.order[:len(w.order)-1]
	if _, err := w.node.State.RollbackLast(car); err != nil {
		w.err = err
		return false
	}
	return true
}

func (w *TOPWalker) GoToRoot() {
	w.node.State.CopyFrom(w.root)
	w.order = w.order[:0]
	w.err = nil
}

// TOPChecker keeps a copy of the best leaf seen.
type TOPChecker struct {
	best     *route.State
	bestCost int
}

func (c *TOPChecker) Reset() {
	c.best = nil
	c.bestCost = math.MaxInt
}

func (c *TOPChecker) Check(n *TOPNode) Verdict {
	if !n.Feasible() {
		return Unfeasible
	}
	if n.MinCost() >= c.bestCost {
		return NonImproving
	}
	return Normal
}

func (c *TOPChecker) Update(n *TOPNode) bool {
	if !n.Feasible() || n.Cost() >= c.bestCost {
		return false
	}
	if c.best == nil {
		c.best = n.State.Clone()
	} else {
		c.best.CopyFrom(n.State)
	}
	c.bestCost = n.Cost()
	return true
}

// Best returns the incumbent, or nil before the first leaf.
func (c *TOPChecker) Best() *route.State { return c.best }

// Backtracking is the anytime branch-and-bound solver over car assignments.
type Backtracking struct{}

func (*Backtracking) Name() string  { return "BT" }
func (*Backtracking) Descr() string { return "Backtrack" }

func (*Backtracking) Params() []Param {
	return []Param{
		floatParam("wProfit", "Weight of Profit", 1, 0, 10),
		floatParam("wTime", "Weight of Time", 0.7, 0.1, 3.4),
		floatParam("wNonCost", "Weight of Missing Costs", 0, 0, 2),
		floatParam("maxDev", "Maximum detour distance to capture point", 1.5, 0, 6),
		floatParam("maxTime", "Maximum time allowed in seconds", 15, 1, 180),
		intParam("maxIterations", "Search steps (0 for no limit)", 0, 0, 1e12),
	}
}

func (s *Backtracking) Solve(ctx context.Context, st *route.State, _ *rand.Rand, opts Options, progress Progress) (Metrics, error) {
	b := newBudget(ctx, 0)
	m := Metrics{Solver: s.Name()}
	rater := Rater{
		WProfit:  opts.Float("wProfit", 1),
		WTime:    opts.Float("wTime", 0.7),
		WNonCost: opts.Float("wNonCost", 0),
	}
	walker := NewTOPWalker(st, rater, opts.Float("maxDev", 1.5))
	checker := &TOPChecker{}
	lim := Limits{
		MaxTime:       opts.Duration("maxTime", 15*time.Second),
		MaxIterations: opts.Int("maxIterations", 0),
	}
	stats, err := Search[*TOPNode](ctx, walker, checker, lim, func(n *TOPNode, s2 SearchStats) {
		progress.emit(incumbentOf(s.Name(), n.State, s2.Iterations, b))
	})
	m.Iterations = stats.Iterations
	m.Improvements = stats.Improvements
	m.Exhausted = stats.Exhausted
	m.TimedOut = stats.TimedOut
	m.Canceled = stats.Canceled
	if err != nil {
		return m, err
	}
	if best := checker.Best(); best != nil {
		st.CopyFrom(best)
	} else {
		st.Clear()
	}
	m.finish(st, b)
	return m, nil
}
