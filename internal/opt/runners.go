package opt

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"topsolver/internal/route"
)

// violationWeight prices one over-budget car against reward in the local-search objective.
const violationWeight = 1000

type RunnerKind int

const (
	HillClimbing RunnerKind = iota
	SimulatedAnnealing
	TabuSearch
	SteepestDescent
)

// LocalSearch drives the swap/insert/remove neighbourhood with one of four runners.
type LocalSearch struct {
	Kind RunnerKind
}

func (s *LocalSearch) Name() string {
	switch s.Kind {
	case SimulatedAnnealing:
		return "SA"
	case TabuSearch:
		return "TS"
	case SteepestDescent:
		return "SD"
	default:
		return "HC"
	}
}

func (s *LocalSearch) Descr() string {
	switch s.Kind {
	case SimulatedAnnealing:
		return "Local Search Simulated Annealing"
	case TabuSearch:
		return "Local Search Tabu Search"
	case SteepestDescent:
		return "Local Search Steepest Descent"
	default:
		return "Local Search Hill Climbing"
	}
}

func (s *LocalSearch) Params() []Param {
	common := []Param{
		stringParam("init", "Starting point: auto, random or keep", "auto"),
		boolParam("twoOpt", "Polish routes with 2-opt after the run", true),
		floatParam("maxTime", "Maximum time allowed in seconds (0 for none)", 30, 0, 3600),
	}
	var own []Param
	switch s.Kind {
	case HillClimbing:
		own = []Param{
			intParam("max_evaluations", "Max Evaluations", 1000000, 0, 1e10),
			intParam("max_idle_iterations", "Max Idle Iterations", 10000, 0, 1e9),
		}
	case SimulatedAnnealing:
		own = []Param{
			boolParam("compute_start_temperature", "Compute Starting Temperature", false),
			floatParam("start_temperature", "Start Temperature", 100, 0, 1000),
			floatParam("min_temperature", "Min Temperature", 1e-5, 0, 1000),
			floatParam("cooling_rate", "Cooling Rate", 0.99, 0, 1),
			intParam("neighbors_sampled", "N# Sampled Neighbors", 1000, 0, 1e7),
			intParam("neighbors_accepted", "N# Accepted Neighbors", 100, 0, 1e7),
			intParam("max_evaluations", "Max Evaluations", 1000000, 0, 1e10),
		}
	case TabuSearch:
		own = []Param{
			intParam("min_tenure", "Min Tenure", 5, 0, 1000),
			intParam("max_tenure", "Max Tenure", 20, 0, 1000),
			intParam("max_idle_iterations", "Max Idle Iterations", 1000, 0, 1e9),
			intParam("max_evaluations", "Max Evaluations", 1000000, 0, 1e10),
		}
	case SteepestDescent:
		own = []Param{
			intParam("max_evaluations", "Max Evaluations", 1000000, 0, 1e10),
		}
	}
	return append(own, common...)
}

// objective is 1000 per violated car minus the reward.
func objective(st *route.State) int {
	return violationWeight*st.Violations() - st.Profit()
}

func moveDelta(st *route.State, m Move) int {
	return violationWeight*m.DeltaViolations(st) + m.DeltaProfitCost(st)
}

// better orders states by violations, then reward, then shorter travel.
func better(a, b *route.State) bool {
	if a.Violations() != b.Violations() {
		return a.Violations() < b.Violations()
	}
	if a.Profit() != b.Profit() {
		return a.Profit() > b.Profit()
	}
	return a.TotalTravel() < b.TotalTravel()-1e-9
}

// prepareStart applies the init option to st.
func prepareStart(b *budget, st *route.State, rng *rand.Rand, mode string) error {
	switch mode {
	case "random":
		RandomState(st, rng)
	case "keep":
	case "auto", "":
		if st.TotalHops() > 0 {
			return nil
		}
		var m Metrics
		p := DefaultGreedyParams()
		p.MaxSolutions = 200
		best, err := runGreedy(b, st, rng, p, &m, nil)
		if err != nil {
			return err
		}
		st.CopyFrom(best)
	default:
		return fmt.Errorf("unknown init mode %q", mode)
	}
	return nil
}

// runner carries the shared bookkeeping of one local-search run.
type runner struct {
	name     string
	b        *budget
	rng      *rand.Rand
	cur      *route.State
	best     *route.State
	m        *Metrics
	progress Progress
	maxEvals int
}

func (r *runner) stop() bool {
	if r.maxEvals > 0 && r.m.Evaluations >= r.maxEvals {
		return true
	}
	return r.b.expired(r.m)
}

func (r *runner) apply(mv Move) error {
	if err := mv.ApplyTo(r.cur); err != nil {
		return fmt.Errorf("%s apply %v: %w", r.name, mv, err)
	}
	r.m.Iterations++
	if better(r.cur, r.best) {
		r.best.CopyFrom(r.cur)
		r.m.Improvements++
		r.progress.emit(incumbentOf(r.name, r.best, r.m.Iterations, r.b))
	}
	return nil
}

func (s *LocalSearch) Solve(ctx context.Context, st *route.State, rng *rand.Rand, opts Options, progress Progress) (Metrics, error) {
	b := newBudget(ctx, opts.Duration("maxTime", 30*time.Second))
	m := Metrics{Solver: s.Name()}
	if err := prepareStart(b, st, rng, opts.String("init", "auto")); err != nil {
		return m, err
	}
	r := &runner{
		name:     s.Name(),
		b:        b,
		rng:      rng,
		cur:      st.Clone(),
		best:     st.Clone(),
		m:        &m,
		progress: progress,
		maxEvals: opts.Int("max_evaluations", 1000000),
	}
	var err error
	switch s.Kind {
	case HillClimbing:
		err = r.hillClimbing(opts.Int("max_idle_iterations", 10000))
	case SimulatedAnnealing:
		err = r.simulatedAnnealing(opts)
	case TabuSearch:
		err = r.tabuSearch(opts.Int("min_tenure", 5), opts.Int("max_tenure", 20), opts.Int("max_idle_iterations", 1000))
	case SteepestDescent:
		err = r.steepestDescent()
	}
	if err != nil {
		return m, err
	}
	if opts.Bool("twoOpt", true) {
		if _, err := twoOptRoutes(r.best, 10); err != nil {
			return m, err
		}
	}
	st.CopyFrom(r.best)
	m.finish(st, b)
	return m, nil
}

// hillClimbing applies random non-worsening moves until idle for maxIdle draws.
func (r *runner) hillClimbing(maxIdle int) error {
	idle := 0
	for !r.stop() && (maxIdle <= 0 || idle < maxIdle) {
		mv, ok := RandomMove(r.cur, r.rng)
		if !ok {
			r.m.Exhausted = true
			return nil
		}
		r.m.Evaluations++
		d := moveDelta(r.cur, mv)
		if d > 0 {
			idle++
			continue
		}
		if d < 0 {
			idle = 0
		} else {
			idle++
		}
		if err := r.apply(mv); err != nil {
			return err
		}
	}
	return nil
}

// startTemperature samples random moves and uses the spread of their deltas.
func (r *runner) startTemperature(samples int) float64 {
	var sum, sq float64
	n := 0
	for i := 0; i < samples; i++ {
		mv, ok := RandomMove(r.cur, r.rng)
		if !ok {
			break
		}
		d := float64(moveDelta(r.cur, mv))
		sum += d
		sq += d * d
		n++
	}
	if n < 2 {
		return 1
	}
	mean := sum / float64(n)
	variance := sq/float64(n) - mean*mean
	if variance <= 0 {
		return 1
	}
	return math.Sqrt(variance)
}

func (r *runner) simulatedAnnealing(opts Options) error {
	temp := opts.Float("start_temperature", 100)
	if opts.Bool("compute_start_temperature", false) {
		temp = r.startTemperature(100)
	}
	minTemp := opts.Float("min_temperature", 1e-5)
	cooling := opts.Float("cooling_rate", 0.99)
	if cooling <= 0 || cooling >= 1 {
		cooling = 0.99
	}
	sampled := opts.Int("neighbors_sampled", 1000)
	accepted := opts.Int("neighbors_accepted", 100)
	for temp > minTemp && !r.stop() {
		s, a := 0, 0
		for s < sampled && a < accepted && !r.stop() {
			mv, ok := RandomMove(r.cur, r.rng)
			if !ok {
				r.m.Exhausted = true
				return nil
			}
			s++
			r.m.Evaluations++
			d := moveDelta(r.cur, mv)
			if d > 0 && r.rng.Float64() >= math.Exp(-float64(d)/temp) {
				continue
			}
			if d > 0 {
				r.m.AcceptedWorse++
			}
			a++
			if err := r.apply(mv); err != nil {
				return err
			}
		}
		temp *= cooling
	}
	return nil
}

// touched lists the points a move changes, which become tabu after it is applied.
func touched(st *route.State, mv Move) []int {
	switch mv.Kind {
	case Swap:
		return []int{st.Hop(mv.First.Car, mv.First.Hop), st.Hop(mv.Second.Car, mv.Second.Hop)}
	case Insert:
		return []int{mv.Point}
	default:
		return []int{st.Hop(mv.First.Car, mv.First.Hop)}
	}
}

// tabuSearch takes the best admissible move of the full neighbourhood each iteration.
// A move is tabu when it touches a point changed within its tenure, unless it reaches a
// new best objective.
func (r *runner) tabuSearch(minTenure, maxTenure, maxIdle int) error {
	if maxTenure < minTenure {
		maxTenure = minTenure
	}
	tabuUntil := make([]int, r.cur.Instance().Points())
	bestObj := objective(r.best)
	idle := 0
	for iter := 1; !r.stop() && (maxIdle <= 0 || idle < maxIdle); iter++ {
		var pick Move
		found := false
		pickDelta := 0
		for mv, ok := FirstMove(r.cur); ok; mv, ok = NextMove(r.cur, mv) {
			r.m.Evaluations++
			d := moveDelta(r.cur, mv)
			tabu := false
			for _, p := range touched(r.cur, mv) {
				if tabuUntil[p] >= iter {
					tabu = true
					break
				}
			}
			if tabu && objective(r.cur)+d >= bestObj {
				continue
			}
			if !found || d < pickDelta {
				pick, pickDelta, found = mv, d, true
			}
		}
		if !found {
			r.m.Exhausted = true
			return nil
		}
		pts := touched(r.cur, pick)
		if err := r.apply(pick); err != nil {
			return err
		}
		tenure := minTenure
		if maxTenure > minTenure {
			tenure += r.rng.Intn(maxTenure - minTenure + 1)
		}
		for _, p := range pts {
			tabuUntil[p] = iter + tenure
		}
		if obj := objective(r.cur); obj < bestObj {
			bestObj = obj
			idle = 0
		} else {
			idle++
		}
	}
	return nil
}

// steepestDescent applies the best strictly improving move until none is left.
func (r *runner) steepestDescent() error {
	for !r.stop() {
		var pick Move
		pickDelta := 0
		for mv, ok := FirstMove(r.cur); ok; mv, ok = NextMove(r.cur, mv) {
			r.m.Evaluations++
			if d := moveDelta(r.cur, mv); d < pickDelta {
				pick, pickDelta = mv, d
			}
		}
		if pickDelta >= 0 {
			r.m.Exhausted = true
			return nil
		}
		if err := r.apply(pick); err != nil {
			return err
		}
	}
	return nil
}
