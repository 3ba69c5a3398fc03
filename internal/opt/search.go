package opt

import (
	"context"
	"errors"
	"time"
)

// Verdict classifies a search node for the bound checker.
type Verdict int

const (
	Normal Verdict = iota
	Unfeasible
	NonImproving
)

func (v Verdict) String() string {
	switch v {
	case Unfeasible:
		return "unfeasible"
	case NonImproving:
		return "non-improving"
	default:
		return "normal"
	}
}

// Node is a search state with a cost to minimise and an admissible lower bound.
type Node interface {
	Cost() int
	MinCost() int
	Feasible() bool
}

// TreeWalker is a cursor over the assignment tree. GoToSibling keeps the depth.
type TreeWalker[N Node] interface {
	Node() N
	GoToChild() bool
	GoToSibling() bool
	GoToParent() bool
	GoToRoot()
}

// BoundChecker classifies nodes and keeps the incumbent.
type BoundChecker[N Node] interface {
	Reset()
	Check(N) Verdict
	Update(N) bool
}

// walkerErr is implemented by walkers whose moves can hit a structural error.
type walkerErr interface {
	Err() error
}

type Limits struct {
	MaxTime       time.Duration
	MaxIterations int
}

type SearchStats struct {
	Iterations   int
	Improvements int
	Exhausted    bool
	TimedOut     bool
	Canceled     bool
	Elapsed      time.Duration
}

// Search runs the iterative depth-first branch and bound. Before the first incumbent only
// unfeasible nodes are pruned; afterwards every non-normal node is. Time and context are
// checked after every step and the search returns with whatever incumbent it holds.
func Search[N Node](ctx context.Context, w TreeWalker[N], c BoundChecker[N], lim Limits, onImprove func(N, SearchStats)) (SearchStats, error) {
	var stats SearchStats
	start := time.Now()
	var deadline time.Time
	if lim.MaxTime > 0 {
		deadline = start.Add(lim.MaxTime)
	}
	werr, _ := any(w).(walkerErr)

	c.Reset()
	w.GoToRoot()
	found := false
	backtrack := false
	for {
		if !backtrack {
			v := c.Check(w.Node())
			if found {
				backtrack = v != Normal
			} else {
				backtrack = v == Unfeasible
			}
		}
		if backtrack {
			for {
				if w.GoToSibling() {
					stats.Iterations++
					backtrack = false
					break
				}
				if !w.GoToParent() {
					stats.Exhausted = true
					break
				}
			}
		} else if w.GoToChild() {
			stats.Iterations++
		} else {
			if c.Update(w.Node()) {
				found = true
				stats.Improvements++
				if onImprove != nil {
					stats.Elapsed = time.Since(start)
					onImprove(w.Node(), stats)
				}
			}
			backtrack = true
		}
		if werr != nil {
			if err := werr.Err(); err != nil {
				stats.Elapsed = time.Since(start)
				return stats, err
			}
		}
		if stats.Exhausted {
			break
		}
		if err := ctx.Err(); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				stats.TimedOut = true
			} else {
				stats.Canceled = true
			}
			break
		}
		if !deadline.IsZero() && !time.Now().Before(deadline) {
			stats.TimedOut = true
			break
		}
		if lim.MaxIterations > 0 && stats.Iterations >= lim.MaxIterations {
			break
		}
	}
	stats.Elapsed = time.Since(start)
	return stats, nil
}
