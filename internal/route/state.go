package route

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrEmptyRoute    = errors.New("car has no hops")
	ErrHopOutOfRange = errors.New("hop position out of range")
)

// checkTolerance bounds the drift accepted between incremental and bulk travel times.
const checkTolerance = 1e-6

// MoveResult reports whether a move keeps its car within budget and the travel time it adds.
type MoveResult struct {
	Feasible  bool
	ExtraTime float64
}

// InsertMode selects what InsertAt does with the computed detour.
type InsertMode int

const (
	Simulate InsertMode = iota
	ApplyIfFeasible
	Force
)

// State is the mutable solution: one hop list per car plus the derived bookkeeping.
// A State is owned by one goroutine at a time; Clone it to branch.
type State struct {
	in         *Instance
	hops       [][]int
	trail      [][]float64 // trail[car][k] is the travel time of hops[car][:k]
	visited    []int
	travel     []float64
	profit     int
	violations int
}

// NewState returns a cleared state bound to in.
func NewState(in *Instance) *State {
	st := &State{
		in:      in,
		hops:    make([][]int, in.Cars()),
		trail:   make([][]float64, in.Cars()),
		visited: make([]int, in.Points()),
		travel:  make([]float64, in.Cars()),
	}
	st.Clear()
	return st
}

// Clear empties every route. Start and end count as visited by every car and the
// end reward is the base reward.
func (st *State) Clear() {
	for i := range st.visited {
		st.visited[i] = 0
	}
	st.visited[st.in.Start()] += st.in.Cars()
	st.visited[st.in.End()] += st.in.Cars()
	base := st.in.Distance(st.in.Start(), st.in.End())
	st.violations = 0
	for car := range st.hops {
		st.hops[car] = st.hops[car][:0]
		st.trail[car] = st.trail[car][:0]
		st.travel[car] = base
		if st.over(base) {
			st.violations++
		}
	}
	st.profit = st.in.Point(st.in.End()).Profit
}

// Clone returns a deep copy sharing only the instance.
func (st *State) Clone() *State {
	c := &State{
		in:         st.in,
		hops:       make([][]int, len(st.hops)),
		trail:      make([][]float64, len(st.trail)),
		visited:    append([]int(nil), st.visited...),
		travel:     append([]float64(nil), st.travel...),
		profit:     st.profit,
		violations: st.violations,
	}
	for car := range st.hops {
		c.hops[car] = append([]int(nil), st.hops[car]...)
		c.trail[car] = append([]float64(nil), st.trail[car]...)
	}
	return c
}

// CopyFrom overwrites st with o, reusing st's buffers. Both must share an instance.
func (st *State) CopyFrom(o *State) {
	st.in = o.in
	if len(st.hops) != len(o.hops) {
		st.hops = make([][]int, len(o.hops))
		st.trail = make([][]float64, len(o.trail))
	}
	for car := range o.hops {
		st.hops[car] = append(st.hops[car][:0], o.hops[car]...)
		st.trail[car] = append(st.trail[car][:0], o.trail[car]...)
	}
	st.visited = append(st.visited[:0], o.visited...)
	st.travel = append(st.travel[:0], o.travel...)
	st.profit = o.profit
	st.violations = o.violations
}

func (st *State) over(t float64) bool { return t > st.in.MaxTime() }

// setTravel updates a car's time and keeps the violation counter in step.
func (st *State) setTravel(car int, t float64) {
	was := st.over(st.travel[car])
	st.travel[car] = t
	now := st.over(t)
	switch {
	case was && !now:
		st.violations--
	case !was && now:
		st.violations++
	}
}

// addVisit changes a point's counter and the reward on the 0 <-> positive transitions.
func (st *State) addVisit(p, delta int) {
	pre := st.visited[p] > 0
	st.visited[p] += delta
	post := st.visited[p] > 0
	switch {
	case pre && !post:
		st.profit -= st.in.Point(p).Profit
	case !pre && post:
		st.profit += st.in.Point(p).Profit
	}
}

// SimulateAppend computes the extra time of visiting p just before the car returns to the end.
func (st *State) SimulateAppend(car, p int) MoveResult {
	last := st.LastPoint(car)
	end := st.in.End()
	extra := st.in.Distance(last, p) + st.in.Distance(p, end) - st.in.Distance(last, end)
	return MoveResult{
		Feasible:  st.travel[car]+extra <= st.in.MaxTime(),
		ExtraTime: extra,
	}
}

// Append adds p at the end of the car's route when feasible, or always when force is set.
func (st *State) Append(car, p int, force bool) MoveResult {
	res := st.SimulateAppend(car, p)
	if !res.Feasible && !force {
		return res
	}
	st.trail[car] = append(st.trail[car], st.travel[car])
	st.hops[car] = append(st.hops[car], p)
	st.addVisit(p, 1)
	st.setTravel(car, st.travel[car]+res.ExtraTime)
	return res
}

// RollbackLast undoes the most recent hop of car and returns its point.
func (st *State) RollbackLast(car int) (int, error) {
	n := len(st.hops[car])
	if n == 0 {
		return 0, fmt.Errorf("rollback car %d: %w", car, ErrEmptyRoute)
	}
	p := st.hops[car][n-1]
	prev := st.trail[car][n-1]
	st.hops[car] = st.hops[car][:n-1]
	st.trail[car] = st.trail[car][:n-1]
	st.addVisit(p, -1)
	st.setTravel(car, prev)
	return p, nil
}

// InsertAt evaluates, and depending on mode applies, visiting p at hop position hop
// (1 inserts right after the start, Hops(car)+1 right before the end).
func (st *State) InsertAt(car, hop, p int, mode InsertMode) (MoveResult, error) {
	n := len(st.hops[car])
	if hop < 1 || hop > n+1 {
		return MoveResult{}, fmt.Errorf("insert car %d hop %d of %d: %w", car, hop, n, ErrHopOutOfRange)
	}
	prev, next := st.Hop(car, hop-1), st.Hop(car, hop)
	extra := st.in.Distance(prev, p) + st.in.Distance(p, next) - st.in.Distance(prev, next)
	res := MoveResult{Feasible: st.travel[car]+extra <= st.in.MaxTime(), ExtraTime: extra}
	if mode == Simulate || (mode == ApplyIfFeasible && !res.Feasible) {
		return res, nil
	}
	if hop == n+1 {
		st.Append(car, p, true)
		return res, nil
	}
	idx := hop - 1
	route := append(st.hops[car], 0)
	copy(route[idx+1:], route[idx:])
	route[idx] = p
	st.hops[car] = route
	st.trail[car] = append(st.trail[car], 0)
	st.retrail(car, idx)
	st.addVisit(p, 1)
	st.setTravel(car, st.travel[car]+extra)
	return res, nil
}

// RemoveAt deletes the hop at position hop (1-based) and returns its point.
func (st *State) RemoveAt(car, hop int) (int, error) {
	n := len(st.hops[car])
	if hop < 1 || hop > n {
		return 0, fmt.Errorf("remove car %d hop %d of %d: %w", car, hop, n, ErrHopOutOfRange)
	}
	if hop == n {
		return st.RollbackLast(car)
	}
	p := st.hops[car][hop-1]
	prev, next := st.Hop(car, hop-1), st.Hop(car, hop+1)
	delta := st.in.Distance(prev, next) - st.in.Distance(prev, p) - st.in.Distance(p, next)
	idx := hop - 1
	st.hops[car] = append(st.hops[car][:idx], st.hops[car][idx+1:]...)
	st.trail[car] = st.trail[car][:n-1]
	st.retrail(car, idx)
	st.addVisit(p, -1)
	st.setTravel(car, st.travel[car]+delta)
	return p, nil
}

// retrail recomputes trail[car][k] for k > from after a mid-route edit.
func (st *State) retrail(car, from int) {
	route, trail := st.hops[car], st.trail[car]
	end := st.in.End()
	for k := from + 1; k < len(route); k++ {
		prev := st.in.Start()
		if k >= 2 {
			prev = route[k-2]
		}
		last := route[k-1]
		trail[k] = trail[k-1] - st.in.Distance(prev, end) + st.in.Distance(prev, last) + st.in.Distance(last, end)
	}
}

// TravelTime returns the car's current path length.
func (st *State) TravelTime(car int) float64 { return st.travel[car] }

// Hops returns the number of intermediate stops of car.
func (st *State) Hops(car int) int { return len(st.hops[car]) }

// Hop resolves a 1-based hop position; 0 and anything past the last hop map to start and end.
func (st *State) Hop(car, hop int) int {
	if hop <= 0 {
		return st.in.Start()
	}
	if hop > len(st.hops[car]) {
		return st.in.End()
	}
	return st.hops[car][hop-1]
}

// LastPoint is the car's last hop, or the start for an empty route.
func (st *State) LastPoint(car int) int {
	if n := len(st.hops[car]); n > 0 {
		return st.hops[car][n-1]
	}
	return st.in.Start()
}

// Route returns a copy of the car's hops.
func (st *State) Route(car int) []int { return append([]int(nil), st.hops[car]...) }

func (st *State) Instance() *Instance  { return st.in }
func (st *State) Feasible() bool       { return st.violations == 0 }
func (st *State) Profit() int          { return st.profit }
func (st *State) Violations() int      { return st.violations }
func (st *State) Visited(p int) bool   { return st.visited[p] > 0 }
func (st *State) VisitCount(p int) int { return st.visited[p] }

// TotalHops counts hops over all cars.
func (st *State) TotalHops() int {
	n := 0
	for _, r := range st.hops {
		n += len(r)
	}
	return n
}

// TotalTravel sums the travel time of every car.
func (st *State) TotalTravel() float64 {
	t := 0.0
	for _, v := range st.travel {
		t += v
	}
	return t
}

// pathLength derives a car's travel from scratch.
func (st *State) pathLength(car int) float64 {
	t := 0.0
	prev := st.in.Start()
	for _, p := range st.hops[car] {
		t += st.in.Distance(prev, p)
		prev = p
	}
	return t + st.in.Distance(prev, st.in.End())
}

// bulk re-derives reward, visits and violations from the hop lists.
func (st *State) bulk() (visited []int, travel []float64, profit, violations int) {
	visited = make([]int, len(st.visited))
	visited[st.in.Start()] += st.in.Cars()
	visited[st.in.End()] += st.in.Cars()
	travel = make([]float64, len(st.travel))
	for car, r := range st.hops {
		for _, p := range r {
			visited[p]++
		}
		travel[car] = st.pathLength(car)
		if st.over(travel[car]) {
			violations++
		}
	}
	profit = st.in.Point(st.in.End()).Profit
	for p := 1; p < len(visited)-1; p++ {
		if visited[p] > 0 {
			profit += st.in.Point(p).Profit
		}
	}
	return visited, travel, profit, violations
}

// Recompute replaces every incremental value with its bulk derivation.
func (st *State) Recompute() {
	visited, travel, profit, violations := st.bulk()
	st.visited, st.travel, st.profit, st.violations = visited, travel, profit, violations
	for car := range st.hops {
		st.trail[car] = st.trail[car][:0]
		t := 0.0
		prev := st.in.Start()
		for _, p := range st.hops[car] {
			st.trail[car] = append(st.trail[car], t+st.in.Distance(prev, st.in.End()))
			t += st.in.Distance(prev, p)
			prev = p
		}
	}
}

// Check compares the incremental bookkeeping against a bulk derivation.
func (st *State) Check() error {
	visited, travel, profit, violations := st.bulk()
	for p := range visited {
		if visited[p] != st.visited[p] {
			return fmt.Errorf("point %d: visit count %d, derived %d", p, st.visited[p], visited[p])
		}
	}
	for car := range travel {
		if math.Abs(travel[car]-st.travel[car]) > checkTolerance {
			return fmt.Errorf("car %d: travel %g, derived %g", car, st.travel[car], travel[car])
		}
	}
	if profit != st.profit {
		return fmt.Errorf("profit %d, derived %d", st.profit, profit)
	}
	if violations != st.violations {
		return fmt.Errorf("violations %d, derived %d", st.violations, violations)
	}
	return nil
}
