package opt

import (
	"slices"

	"topsolver/internal/route"
)

// ImproveOrder2Opt applies 2-opt to one car's visiting order and returns the shortened order.
// The start and end stay fixed; only strictly shorter tours are accepted.
func ImproveOrder2Opt(in *route.Instance, order []int, iterations int) []int {
	if iterations <= 0 {
		iterations = 1
	}
	full := make([]int, 0, len(order)+2)
	full = append(full, in.Start())
	full = append(full, order...)
	full = append(full, in.End())

	best := full
	bestDist := pathDistance(in, best)
	n := len(full)
	for it := 0; it < iterations; it++ {
		improved := false
		for i := 1; i < n-2; i++ {
			for k := i + 1; k < n-1; k++ {
				newOrder := twoOptSwap(best, i, k)
				d := pathDistance(in, newOrder)
				if d+1e-9 < bestDist {
					best = newOrder
					bestDist = d
					improved = true
				}
			}
		}
		if !improved {
			break
		}
	}
	return append([]int(nil), best[1:n-1]...)
}

func twoOptSwap(ord []int, i, k int) []int {
	out := make([]int, len(ord))
	copy(out, ord[:i])
	// reverse i..k
	pos := i
	for j := k; j >= i; j-- {
		out[pos] = ord[j]
		pos++
	}
	copy(out[pos:], ord[k+1:])
	return out
}

func pathDistance(in *route.Instance, order []int) float64 {
	total := 0.0
	for i := 0; i < len(order)-1; i++ {
		total += in.Distance(order[i], order[i+1])
	}
	return total
}

// twoOptRoutes polishes every car of st and rebuilds the cars whose order changed.
// It reports whether any route got shorter.
func twoOptRoutes(st *route.State, iterations int) (bool, error) {
	in := st.Instance()
	changed := false
	for car := 0; car < in.Cars(); car++ {
		cur := st.Route(car)
		if len(cur) < 2 {
			continue
		}
		next := ImproveOrder2Opt(in, cur, iterations)
		if slices.Equal(cur, next) {
			continue
		}
		if err := replaceRoute(st, car, next); err != nil {
			return changed, err
		}
		changed = true
	}
	return changed, nil
}

// replaceRoute rewinds car and replays order with forced appends.
func replaceRoute(st *route.State, car int, order []int) error {
	for st.Hops(car) > 0 {
		if _, err := st.RollbackLast(car); err != nil {
			return err
		}
	}
	for _, p := range order {
		st.Append(car, p, true)
	}
	return nil
}
