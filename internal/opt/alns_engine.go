package opt

import (
	"math"
	"math/rand"
	"sort"

	"topsolver/internal/route"
)

// Removal and insertion operator indices.
const (
	opRandomRemoval  = 0
	opRelatedRemoval = 1
	opGreedyInsert   = 0
	opRegretInsert   = 1
)

type alnsConfig struct {
	Iterations       int
	InitialTemp      float64
	Cooling          float64
	MinRemove        int
	MaxRemove        int
	SnapshotEvery    int
	RemovalWeights   [2]float64
	InsertionWeights [2]float64
	TwoOpt           bool
}

// runALNS ruins and recreates cur until the budget runs out and returns the best state.
func runALNS(name string, b *budget, cur *route.State, rng *rand.Rand, cfg alnsConfig, m *Metrics, progress Progress) (*route.State, error) {
	best := cur.Clone()
	cand := cur.Clone()
	remW := []float64{cfg.RemovalWeights[0], cfg.RemovalWeights[1]}
	insW := []float64{cfg.InsertionWeights[0], cfg.InsertionWeights[1]}
	temp := cfg.InitialTemp
	if temp <= 0 {
		temp = 1
	}
	cool := 0.995
	if cfg.Cooling > 0 && cfg.Cooling < 1 {
		cool = cfg.Cooling
	}
	minK, maxK := cfg.MinRemove, cfg.MaxRemove
	if minK < 1 {
		minK = 1
	}
	if maxK < minK {
		maxK = minK
	}
	snapshotEvery := cfg.SnapshotEvery
	if snapshotEvery <= 0 {
		snapshotEvery = 50
	}
	for !b.expired(m) {
		if cfg.Iterations > 0 && m.Iterations >= cfg.Iterations {
			break
		}
		m.Iterations++
		k := minK + rng.Intn(maxK-minK+1)
		// select operators by roulette wheel
		op := selectOp(remW, rng)
		m.RemovalSelects[op]++
		ip := selectOp(insW, rng)
		m.InsertSelects[ip]++

		cand.CopyFrom(cur)
		var removed []int
		switch op {
		case opRandomRemoval:
			removed = pickRandomPoints(cand, k, rng)
		case opRelatedRemoval:
			removed = relatedRemoval(cand, k, rng)
		}
		if err := removePoints(cand, removed); err != nil {
			return nil, err
		}
		if cfg.TwoOpt {
			if _, err := twoOptRoutes(cand, 1); err != nil {
				return nil, err
			}
		}
		var err error
		switch ip {
		case opGreedyInsert:
			err = greedyInsert(cand, removed)
		case opRegretInsert:
			err = regretInsert(cand)
		}
		if err != nil {
			return nil, err
		}
		m.Evaluations++

		// acceptance criterion (simulated annealing on reward)
		delta := float64(cur.Profit() - cand.Profit())
		if delta < 0 || rng.Float64() < math.Exp(-delta/(temp+1e-9)) {
			if better(cand, best) {
				best.CopyFrom(cand)
				remW[op] += 0.1
				insW[ip] += 0.1
				m.Improvements++
				progress.emit(incumbentOf(name, best, m.Iterations, b))
			} else {
				remW[op] += 0.01
				insW[ip] += 0.01
				if delta > 0 {
					m.AcceptedWorse++
				}
			}
			cur.CopyFrom(cand)
		} else {
			// slight penalty for non-acceptance
			remW[op] = math.Max(0.01, remW[op]*0.999)
			insW[ip] = math.Max(0.01, insW[ip]*0.999)
		}
		temp *= cool
		if m.Iterations%snapshotEvery == 0 {
			m.Snapshots = append(m.Snapshots, WeightSnapshot{
				Iteration: m.Iterations,
				Removal:   [2]float64{remW[0], remW[1]},
				Insertion: [2]float64{insW[0], insW[1]},
			})
		}
	}
	m.FinalRemovalWeights = [2]float64{remW[0], remW[1]}
	m.FinalInsertionWeights = [2]float64{insW[0], insW[1]}
	return best, nil
}

// assignedPoints lists every hop point once, car-major.
func assignedPoints(st *route.State) []int {
	var out []int
	for car := 0; car < st.Instance().Cars(); car++ {
		out = append(out, st.Route(car)...)
	}
	return out
}

func pickRandomPoints(st *route.State, k int, rng *rand.Rand) []int {
	all := assignedPoints(st)
	removed := []int{}
	for i := 0; i < k && len(all) > 0; i++ {
		j := rng.Intn(len(all))
		removed = append(removed, all[j])
		all = append(all[:j], all[j+1:]...)
	}
	return removed
}

// relatedRemoval picks a random assigned seed point and the k-1 assigned points nearest to it.
func relatedRemoval(st *route.State, k int, rng *rand.Rand) []int {
	assigned := assignedPoints(st)
	if len(assigned) == 0 {
		return nil
	}
	in := st.Instance()
	seed := assigned[rng.Intn(len(assigned))]
	rel := make([]int, 0, len(assigned))
	for _, p := range assigned {
		if p != seed {
			rel = append(rel, p)
		}
	}
	sort.SliceStable(rel, func(i, j int) bool {
		return in.Distance(seed, rel[i]) < in.Distance(seed, rel[j])
	})
	removed := []int{seed}
	for i := 0; i < len(rel) && len(removed) < k; i++ {
		removed = append(removed, rel[i])
	}
	return removed
}

// removePoints deletes every hop that visits one of points.
func removePoints(st *route.State, points []int) error {
	if len(points) == 0 {
		return nil
	}
	rm := make(map[int]bool, len(points))
	for _, p := range points {
		rm[p] = true
	}
	for car := 0; car < st.Instance().Cars(); car++ {
		for hop := st.Hops(car); hop >= 1; hop-- {
			if !rm[st.Hop(car, hop)] {
				continue
			}
			if _, err := st.RemoveAt(car, hop); err != nil {
				return err
			}
		}
	}
	return nil
}

type slot struct {
	car, hop int
	extra    float64
}

// cheapestSlots returns the two cheapest feasible insertion slots of p.
func cheapestSlots(st *route.State, p int) (best, second slot, n int) {
	best.extra, second.extra = math.Inf(1), math.Inf(1)
	for car := 0; car < st.Instance().Cars(); car++ {
		for hop := 1; hop <= st.Hops(car)+1; hop++ {
			res, err := st.InsertAt(car, hop, p, route.Simulate)
			if err != nil || !res.Feasible {
				continue
			}
			n++
			s := slot{car: car, hop: hop, extra: res.ExtraTime}
			if s.extra < best.extra {
				second, best = best, s
			} else if s.extra < second.extra {
				second = s
			}
		}
	}
	return best, second, n
}

// insertionScore ranks reward per unit of detour.
func insertionScore(profit int, extra float64) float64 {
	return float64(profit) / (math.Max(extra, 0) + 1e-6)
}

// greedyInsert repeatedly inserts the unvisited point with the best reward per detour,
// trying the removed points first so the ruin step is not simply undone at random.
func greedyInsert(st *route.State, removed []int) error {
	in := st.Instance()
	order := append([]int(nil), removed...)
	order = append(order, unvisitedPoints(st)...)
	for {
		pick, pickScore := -1, math.Inf(-1)
		var at slot
		for _, p := range order {
			if st.Visited(p) || in.Point(p).Profit <= 0 {
				continue
			}
			s, _, n := cheapestSlots(st, p)
			if n == 0 {
				continue
			}
			if score := insertionScore(in.Point(p).Profit, s.extra); score > pickScore {
				pick, pickScore, at = p, score, s
			}
		}
		if pick < 0 {
			return nil
		}
		if _, err := st.InsertAt(at.car, at.hop, pick, route.Force); err != nil {
			return err
		}
	}
}

// regretInsert inserts first the point that loses most when its cheapest slot is taken.
// Points with a single slot left have infinite regret; ties go to higher reward.
func regretInsert(st *route.State) error {
	in := st.Instance()
	for {
		pick := -1
		var at slot
		bestRegret, bestProfit := math.Inf(-1), 0
		for _, p := range unvisitedPoints(st) {
			if in.Point(p).Profit <= 0 {
				continue
			}
			s1, s2, n := cheapestSlots(st, p)
			if n == 0 {
				continue
			}
			regret := math.Inf(1)
			if n > 1 {
				regret = (s2.extra - s1.extra) * float64(in.Point(p).Profit)
			}
			if regret > bestRegret || (regret == bestRegret && in.Point(p).Profit > bestProfit) {
				pick, at, bestRegret, bestProfit = p, s1, regret, in.Point(p).Profit
			}
		}
		if pick < 0 {
			return nil
		}
		if _, err := st.InsertAt(at.car, at.hop, pick, route.Force); err != nil {
			return err
		}
	}
}

func selectOp(weights []float64, rng *rand.Rand) int {
	sum := 0.0
	for _, w := range weights {
		sum += w
	}
	if sum <= 0 {
		return 0
	}
	r := rng.Float64() * sum
	acc := 0.0
	for i, w := range weights {
		acc += w
		if r <= acc {
			return i
		}
	}
	return len(weights) - 1
}
