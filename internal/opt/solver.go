// Package opt holds the TOP solvers: the greedy constructor and its parameter sweep,
// the branch-and-bound searcher, the local-search moves with their runners and an
// adaptive large neighbourhood search. Every solver works on a *route.State in place.
package opt

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"topsolver/internal/route"
)

var ErrUnknownSolver = errors.New("unknown solver")

// Param describes one tunable accepted through Options.
type Param struct {
	Name    string   `json:"name"`
	Descr   string   `json:"descr"`
	Type    string   `json:"type"`
	Default any      `json:"default"`
	Min     *float64 `json:"min,omitempty"`
	Max     *float64 `json:"max,omitempty"`
}

func floatParam(name, descr string, def, lo, hi float64) Param {
	return Param{Name: name, Descr: descr, Type: "float", Default: def, Min: &lo, Max: &hi}
}

func intParam(name, descr string, def int, lo, hi float64) Param {
	return Param{Name: name, Descr: descr, Type: "int", Default: def, Min: &lo, Max: &hi}
}

func boolParam(name, descr string, def bool) Param {
	return Param{Name: name, Descr: descr, Type: "bool", Default: def}
}

func stringParam(name, descr, def string) Param {
	return Param{Name: name, Descr: descr, Type: "string", Default: def}
}

// Incumbent is a snapshot of a new best solution reported while a solver runs.
type Incumbent struct {
	Solver    string             `json:"solver"`
	Iteration int                `json:"iteration"`
	Profit    int                `json:"profit"`
	Travel    float64            `json:"travel"`
	Feasible  bool               `json:"feasible"`
	Elapsed   time.Duration      `json:"elapsedNs"`
	Params    map[string]float64 `json:"params,omitempty"`
}

// Progress receives incumbents. It is called on the solving goroutine and must not block long.
type Progress func(Incumbent)

func (p Progress) emit(inc Incumbent) {
	if p != nil {
		p(inc)
	}
}

type WeightSnapshot struct {
	Iteration int        `json:"iteration"`
	Removal   [2]float64 `json:"removal"`
	Insertion [2]float64 `json:"insertion"`
}

// Metrics summarises one solve. Fields a solver does not use stay zero.
type Metrics struct {
	Solver        string             `json:"solver"`
	Iterations    int                `json:"iterations"`
	Improvements  int                `json:"improvements"`
	Evaluations   int                `json:"evaluations,omitempty"`
	AcceptedWorse int                `json:"acceptedWorse,omitempty"`
	Constructions int                `json:"constructions,omitempty"`
	Exhausted     bool               `json:"exhausted,omitempty"`
	TimedOut      bool               `json:"timedOut,omitempty"`
	Canceled      bool               `json:"canceled,omitempty"`
	BestProfit    int                `json:"bestProfit"`
	Feasible      bool               `json:"feasible"`
	Travel        float64            `json:"travel"`
	Elapsed       time.Duration      `json:"elapsedNs"`
	BestParams    map[string]float64 `json:"bestParams,omitempty"`

	RemovalSelects        [2]int           `json:"removalSelects,omitempty"`
	InsertSelects         [2]int           `json:"insertSelects,omitempty"`
	FinalRemovalWeights   [2]float64       `json:"finalRemovalWeights,omitempty"`
	FinalInsertionWeights [2]float64       `json:"finalInsertionWeights,omitempty"`
	Snapshots             []WeightSnapshot `json:"snapshots,omitempty"`
}

// finish stamps the result state onto m.
func (m *Metrics) finish(st *route.State, b *budget) {
	m.BestProfit = st.Profit()
	m.Feasible = st.Feasible()
	m.Travel = st.TotalTravel()
	m.Elapsed = b.elapsed()
}

func incumbentOf(name string, st *route.State, iter int, b *budget) Incumbent {
	return Incumbent{
		Solver:    name,
		Iteration: iter,
		Profit:    st.Profit(),
		Travel:    st.TotalTravel(),
		Feasible:  st.Feasible(),
		Elapsed:   b.elapsed(),
	}
}

// Solver is one algorithm of the catalog. Solve reads its starting point from st and
// leaves the best solution it found there.
type Solver interface {
	Name() string
	Descr() string
	Params() []Param
	Solve(ctx context.Context, st *route.State, rng *rand.Rand, opts Options, progress Progress) (Metrics, error)
}

// Catalog returns fresh solver values in display order.
func Catalog() []Solver {
	return []Solver{
		&Greedy{},
		&GreedyRange{},
		&Backtracking{},
		&LocalSearch{Kind: SteepestDescent},
		&LocalSearch{Kind: TabuSearch},
		&LocalSearch{Kind: SimulatedAnnealing},
		&LocalSearch{Kind: HillClimbing},
		&ALNS{},
	}
}

var aliases = map[string]string{
	"GREEDY":       "GREEDY",
	"GREEDYSINGLE": "GREEDY",
	"GREEDYRANGE":  "GREEDY RANGE",
	"BT":           "BT",
	"BACKTRACK":    "BT",
	"BACKTRACKING": "BT",
	"SD":           "SD",
	"TS":           "TS",
	"SA":           "SA",
	"HC":           "HC",
	"ALNS":         "ALNS",
}

func normalizeName(name string) string {
	r := strings.NewReplacer(" ", "", "_", "", "-", "", "\t", "")
	return strings.ToUpper(r.Replace(strings.TrimSpace(name)))
}

// Lookup resolves a case-insensitive solver name or alias.
func Lookup(name string) (Solver, error) {
	canon, ok := aliases[normalizeName(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSolver, name)
	}
	for _, s := range Catalog() {
		if s.Name() == canon {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownSolver, name)
}

// NewRand seeds from the clock when seed is 0.
func NewRand(seed int64) *rand.Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}

// budget tracks the wall clock and the caller's context for one solve.
type budget struct {
	ctx      context.Context
	start    time.Time
	deadline time.Time
}

func newBudget(ctx context.Context, limit time.Duration) *budget {
	b := &budget{ctx: ctx, start: time.Now()}
	if limit > 0 {
		b.deadline = b.start.Add(limit)
	}
	return b
}

func (b *budget) elapsed() time.Duration { return time.Since(b.start) }

// expired reports whether the solve must stop and records why on m.
func (b *budget) expired(m *Metrics) bool {
	if err := b.ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			m.TimedOut = true
		} else {
			m.Canceled = true
		}
		return true
	}
	if !b.deadline.IsZero() && !time.Now().Before(b.deadline) {
		m.TimedOut = true
		return true
	}
	return false
}
