package opt

import "sync"

type metricsKey struct{
    Instance string
    Solver string
    Descr string
}

// MetricsStore keeps the latest Metrics per instance, solver and run description.
// It is safe for concurrent use by batch workers.
type MetricsStore struct {
    mu sync.Mutex
    m map[metricsKey]Metrics
}

func NewMetricsStore() *MetricsStore {
    return &MetricsStore{m: map[metricsKey]Metrics{}}
}

func (s *MetricsStore) Record(instance, solver, descr string, m Metrics) {
    s.mu.Lock()
    s.m[metricsKey{Instance: instance, Solver: solver, Descr: descr}] = m
    s.mu.Unlock()
}

// Get returns the metrics recorded for instance keyed by "solver/descr".
func (s *MetricsStore) Get(instance string) map[string]Metrics {
    s.mu.Lock()
    defer s.mu.Unlock()
    out := map[string]Metrics{}
    for k, v := range s.m {
        if k.Instance == instance {
            out[k.Solver+"/"+k.Descr] = v
        }
    }
    return out
}

// Best returns the highest-reward feasible run recorded for instance.
func (s *MetricsStore) Best(instance string) (Metrics, bool) {
    s.mu.Lock()
    defer s.mu.Unlock()
    var best Metrics
    found := false
    for k, v := range s.m {
        if k.Instance != instance || !v.Feasible {
            continue
        }
        if !found || v.BestProfit > best.BestProfit {
            best, found = v, true
        }
    }
    return best, found
}

// Instances lists the instance names with at least one recorded run.
func (s *MetricsStore) Instances() []string {
    s.mu.Lock()
    defer s.mu.Unlock()
    seen := map[string]bool{}
    var out []string
    for k := range s.m {
        if !seen[k.Instance] {
            seen[k.Instance] = true
            out = append(out, k.Instance)
        }
    }
    return out
}
