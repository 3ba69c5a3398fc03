package opt

import (
	"math"

	"topsolver/internal/route"
)

// Rater scores appending a point to a car. Higher is better; -Inf rules the point out.
type Rater struct {
	WProfit  float64
	WTime    float64
	WNonCost float64
}

// anyCarFits reports whether some car can append p within budget.
func anyCarFits(st *route.State, p int) bool {
	for car := 0; car < st.Instance().Cars(); car++ {
		if st.SimulateAppend(car, p).Feasible {
			return true
		}
	}
	return false
}

// unvisitedProfit sums the reward of the intermediate points no car visits yet.
func unvisitedProfit(st *route.State) (sum float64, count int) {
	in := st.Instance()
	for p := 1; p < in.Points()-1; p++ {
		if !st.Visited(p) {
			sum += float64(in.Point(p).Profit)
			count++
		}
	}
	return sum, count
}

// Rating combines the relative reward of p, the time pressure of appending it to car
// and the reward that stays reachable for car afterwards.
func (r Rater) Rating(st *route.State, p, car int) float64 {
	if st.Visited(p) || !anyCarFits(st, p) {
		return math.Inf(-1)
	}
	in := st.Instance()
	sum, count := unvisitedProfit(st)

	profitTerm := 0.0
	if sum != 0 && count > 0 {
		profitTerm = r.WProfit * float64(in.Point(p).Profit) / (sum / float64(count))
	}

	travel := st.TravelTime(car)
	gamma := 0.0
	if in.MaxTime() > 0 {
		gamma = travel / in.MaxTime()
	}
	extra := st.SimulateAppend(car, p).ExtraTime
	extraNorm := 0.0
	if extra > 0 {
		if slack := in.MaxTime() - travel; slack > 0 {
			extraNorm = extra / slack
		} else {
			extraNorm = math.Inf(1)
		}
	}
	timeTerm := 0.0
	if r.WTime != 0 && gamma != 0 && extraNorm != 0 {
		timeTerm = r.WTime * gamma * extraNorm
	}

	opportunity := 0.0
	if r.WNonCost != 0 && sum != 0 {
		opportunity = reachableAfter(st, car, p) / sum
	}
	return profitTerm - timeTerm + r.WNonCost*opportunity
}

// reachableAfter sums the reward of unvisited points car could still append once p is
// appended. It derives the post-append travel directly instead of mutating st.
func reachableAfter(st *route.State, car, p int) float64 {
	in := st.Instance()
	end := in.End()
	after := st.TravelTime(car) + st.SimulateAppend(car, p).ExtraTime
	total := 0.0
	for q := 1; q < in.Points()-1; q++ {
		if q == p || st.Visited(q) {
			continue
		}
		extra := in.Distance(p, q) + in.Distance(q, end) - in.Distance(p, end)
		if after+extra <= in.MaxTime() {
			total += float64(in.Point(q).Profit)
		}
	}
	return total
}
