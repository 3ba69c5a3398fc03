package opt

import (
	"math/rand"

	"topsolver/internal/route"
)

// flatRef maps a flat position over all hops (car-major) back to a HopRef.
func flatRef(st *route.State, i int) (HopRef, bool) {
	for car := 0; car < st.Instance().Cars(); car++ {
		n := st.Hops(car)
		if i < n {
			return HopRef{Car: car, Hop: i + 1}, true
		}
		i -= n
	}
	return HopRef{}, false
}

func flatIndex(st *route.State, r HopRef) int {
	i := 0
	for car := 0; car < r.Car; car++ {
		i += st.Hops(car)
	}
	return i + r.Hop - 1
}

// nextUnvisited returns the smallest unvisited intermediate point greater than after, or -1.
func nextUnvisited(st *route.State, after int) int {
	in := st.Instance()
	for p := after + 1; p < in.Points()-1; p++ {
		if p >= 1 && !st.Visited(p) {
			return p
		}
	}
	return -1
}

func firstSwap(st *route.State) (Move, bool) {
	if st.TotalHops() < 2 {
		return Move{}, false
	}
	a, _ := flatRef(st, 0)
	b, _ := flatRef(st, 1)
	return Move{Kind: Swap, First: a, Second: b}, true
}

func firstInsert(st *route.State) (Move, bool) {
	p := nextUnvisited(st, 0)
	if p < 0 {
		return Move{}, false
	}
	return Move{Kind: Insert, Point: p, First: HopRef{Car: 0, Hop: 1}}, true
}

func firstRemove(st *route.State) (Move, bool) {
	if st.TotalHops() == 0 {
		return Move{}, false
	}
	r, _ := flatRef(st, 0)
	return Move{Kind: Remove, First: r}, true
}

// FirstMove starts the deterministic enumeration: swaps, then inserts, then removes.
func FirstMove(st *route.State) (Move, bool) {
	if m, ok := firstSwap(st); ok {
		return m, true
	}
	if m, ok := firstInsert(st); ok {
		return m, true
	}
	return firstRemove(st)
}

// NextMove advances m in enumeration order. Swaps run over flat position pairs a < b;
// inserts over car, slot and then unvisited point; removes over car and hop.
func NextMove(st *route.State, m Move) (Move, bool) {
	in := st.Instance()
	switch m.Kind {
	case Swap:
		total := st.TotalHops()
		a, b := flatIndex(st, m.First), flatIndex(st, m.Second)
		b++
		if b >= total {
			a++
			b = a + 1
		}
		if b < total {
			ra, _ := flatRef(st, a)
			rb, _ := flatRef(st, b)
			return Move{Kind: Swap, First: ra, Second: rb}, true
		}
		if next, ok := firstInsert(st); ok {
			return next, true
		}
		return firstRemove(st)
	case Insert:
		if p := nextUnvisited(st, m.Point); p >= 0 {
			return Move{Kind: Insert, Point: p, First: m.First}, true
		}
		car, hop := m.First.Car, m.First.Hop+1
		if hop > st.Hops(car)+1 {
			car, hop = car+1, 1
		}
		if car >= in.Cars() {
			return firstRemove(st)
		}
		return Move{Kind: Insert, Point: nextUnvisited(st, 0), First: HopRef{Car: car, Hop: hop}}, true
	case Remove:
		i := flatIndex(st, m.First) + 1
		if r, ok := flatRef(st, i); ok {
			return Move{Kind: Remove, First: r}, true
		}
	}
	return Move{}, false
}

// Moves lists the whole neighbourhood in enumeration order.
func Moves(st *route.State) []Move {
	var out []Move
	for m, ok := FirstMove(st); ok; m, ok = NextMove(st, m) {
		out = append(out, m)
	}
	return out
}

func unvisitedPoints(st *route.State) []int {
	in := st.Instance()
	var out []int
	for p := 1; p < in.Points()-1; p++ {
		if !st.Visited(p) {
			out = append(out, p)
		}
	}
	return out
}

// RandomMove draws a kind uniformly among those with at least one move, then a move of
// that kind uniformly. ok is false when the neighbourhood is empty.
func RandomMove(st *route.State, rng *rand.Rand) (Move, bool) {
	in := st.Instance()
	total := st.TotalHops()
	free := unvisitedPoints(st)
	kinds := make([]MoveKind, 0, 3)
	if total >= 2 {
		kinds = append(kinds, Swap)
	}
	if len(free) > 0 {
		kinds = append(kinds, Insert)
	}
	if total >= 1 {
		kinds = append(kinds, Remove)
	}
	if len(kinds) == 0 {
		return Move{}, false
	}
	switch kinds[rng.Intn(len(kinds))] {
	case Swap:
		a := rng.Intn(total)
		b := rng.Intn(total - 1)
		if b >= a {
			b++
		}
		if b < a {
			a, b = b, a
		}
		ra, _ := flatRef(st, a)
		rb, _ := flatRef(st, b)
		return Move{Kind: Swap, First: ra, Second: rb}, true
	case Insert:
		car := rng.Intn(in.Cars())
		return Move{
			Kind:  Insert,
			Point: free[rng.Intn(len(free))],
			First: HopRef{Car: car, Hop: 1 + rng.Intn(st.Hops(car)+1)},
		}, true
	default:
		r, _ := flatRef(st, rng.Intn(total))
		return Move{Kind: Remove, First: r}, true
	}
}

// RandomState clears st and appends the intermediate points in random order, each to a
// random car that can take it within budget.
func RandomState(st *route.State, rng *rand.Rand) {
	in := st.Instance()
	st.Clear()
	n := in.Points() - 2
	if n <= 0 {
		return
	}
	for _, i := range rng.Perm(n) {
		p := i + 1
		for _, car := range rng.Perm(in.Cars()) {
			if st.Append(car, p, false).Feasible {
				break
			}
		}
	}
}
