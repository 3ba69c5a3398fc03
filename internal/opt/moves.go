package opt

import (
	"fmt"

	"topsolver/internal/route"
)

type MoveKind int

const (
	Swap MoveKind = iota
	Insert
	Remove
)

func (k MoveKind) String() string {
	switch k {
	case Swap:
		return "swap"
	case Insert:
		return "insert"
	case Remove:
		return "remove"
	}
	return fmt.Sprintf("MoveKind(%d)", int(k))
}

// HopRef addresses an existing hop by car and 1-based position, or an insertion slot.
type HopRef struct {
	Car int
	Hop int
}

// Move is one neighbourhood step. Swap uses First and Second, Insert uses First as the
// slot and Point, Remove uses First.
type Move struct {
	Kind   MoveKind
	First  HopRef
	Second HopRef
	Point  int
}

func (m Move) String() string {
	switch m.Kind {
	case Swap:
		return fmt.Sprintf("swap(%d:%d, %d:%d)", m.First.Car, m.First.Hop, m.Second.Car, m.Second.Hop)
	case Insert:
		return fmt.Sprintf("insert(%d -> %d:%d)", m.Point, m.First.Car, m.First.Hop)
	default:
		return fmt.Sprintf("remove(%d:%d)", m.First.Car, m.First.Hop)
	}
}

func validHop(st *route.State, r HopRef) bool {
	return r.Car >= 0 && r.Car < st.Instance().Cars() && r.Hop >= 1 && r.Hop <= st.Hops(r.Car)
}

// Feasible reports structural validity. Budget overruns are priced by DeltaViolations
// instead, so every well-formed move is feasible.
func (m Move) Feasible(st *route.State) bool {
	switch m.Kind {
	case Swap:
		return validHop(st, m.First) && validHop(st, m.Second) && m.First != m.Second
	case Insert:
		in := st.Instance()
		return m.First.Car >= 0 && m.First.Car < in.Cars() &&
			m.First.Hop >= 1 && m.First.Hop <= st.Hops(m.First.Car)+1 &&
			m.Point > 0 && m.Point < in.Points()-1
	case Remove:
		return validHop(st, m.First)
	}
	return false
}

// ordered returns the swap ends with the lower position first when they share a car.
func (m Move) ordered() (HopRef, HopRef) {
	a, b := m.First, m.Second
	if a.Car == b.Car && b.Hop < a.Hop {
		a, b = b, a
	}
	return a, b
}

// ApplyTo mutates st. Swaps are a remove and a forced insert on each side.
func (m Move) ApplyTo(st *route.State) error {
	switch m.Kind {
	case Swap:
		a, b := m.ordered()
		pb, err := st.RemoveAt(b.Car, b.Hop)
		if err != nil {
			return err
		}
		pa, err := st.RemoveAt(a.Car, a.Hop)
		if err != nil {
			return err
		}
		if _, err := st.InsertAt(a.Car, a.Hop, pb, route.Force); err != nil {
			return err
		}
		_, err = st.InsertAt(b.Car, b.Hop, pa, route.Force)
		return err
	case Insert:
		_, err := st.InsertAt(m.First.Car, m.First.Hop, m.Point, route.Force)
		return err
	case Remove:
		_, err := st.RemoveAt(m.First.Car, m.First.Hop)
		return err
	}
	return fmt.Errorf("apply %v: unknown move kind", m.Kind)
}

// replaceDelta is the travel change of putting np where the hop at h currently is.
func replaceDelta(st *route.State, h HopRef, np int) float64 {
	in := st.Instance()
	prev, old, next := st.Hop(h.Car, h.Hop-1), st.Hop(h.Car, h.Hop), st.Hop(h.Car, h.Hop+1)
	return in.Distance(prev, np) + in.Distance(np, next) - in.Distance(prev, old) - in.Distance(old, next)
}

// travelDeltas returns the travel change per touched car; car2 is -1 when one car is touched.
func (m Move) travelDeltas(st *route.State) (car1 int, d1 float64, car2 int, d2 float64) {
	in := st.Instance()
	switch m.Kind {
	case Swap:
		a, b := m.ordered()
		pa, pb := st.Hop(a.Car, a.Hop), st.Hop(b.Car, b.Hop)
		if a.Car != b.Car {
			return a.Car, replaceDelta(st, a, pb), b.Car, replaceDelta(st, b, pa)
		}
		if b.Hop == a.Hop+1 {
			before, after := st.Hop(a.Car, a.Hop-1), st.Hop(b.Car, b.Hop+1)
			d := in.Distance(before, pb) + in.Distance(pa, after) - in.Distance(before, pa) - in.Distance(pb, after)
			return a.Car, d, -1, 0
		}
		return a.Car, replaceDelta(st, a, pb) + replaceDelta(st, b, pa), -1, 0
	case Insert:
		c, h := m.First.Car, m.First.Hop
		prev, next := st.Hop(c, h-1), st.Hop(c, h)
		return c, in.Distance(prev, m.Point) + in.Distance(m.Point, next) - in.Distance(prev, next), -1, 0
	default:
		c, h := m.First.Car, m.First.Hop
		prev, p, next := st.Hop(c, h-1), st.Hop(c, h), st.Hop(c, h+1)
		return c, in.Distance(prev, next) - in.Distance(prev, p) - in.Distance(p, next), -1, 0
	}
}

func violationDelta(st *route.State, car int, d float64) int {
	limit := st.Instance().MaxTime()
	t := st.TravelTime(car)
	out := 0
	if t > limit {
		out--
	}
	if t+d > limit {
		out++
	}
	return out
}

// DeltaViolations is the change in over-budget cars, from the touched edges only.
func (m Move) DeltaViolations(st *route.State) int {
	c1, d1, c2, d2 := m.travelDeltas(st)
	out := violationDelta(st, c1, d1)
	if c2 >= 0 {
		out += violationDelta(st, c2, d2)
	}
	return out
}

// DeltaTravel is the change in total travel time.
func (m Move) DeltaTravel(st *route.State) float64 {
	_, d1, c2, d2 := m.travelDeltas(st)
	if c2 >= 0 {
		return d1 + d2
	}
	return d1
}

// DeltaProfitCost is the change in negated reward.
func (m Move) DeltaProfitCost(st *route.State) int {
	in := st.Instance()
	switch m.Kind {
	case Insert:
		if !st.Visited(m.Point) {
			return -in.Point(m.Point).Profit
		}
	case Remove:
		p := st.Hop(m.First.Car, m.First.Hop)
		if st.VisitCount(p) == 1 {
			return in.Point(p).Profit
		}
	}
	return 0
}
