package batch

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"topsolver/internal/integrations"
	"topsolver/internal/model"
	"topsolver/internal/opt"
	"topsolver/internal/route"
	"topsolver/internal/sysinfo"
)

// Header is the CSV header written before the first row.
var Header = []string{"name", "algo", "descr", "profit", "feasible", "travel", "elapsed_ms"}

type Task struct {
	Instance *route.Instance
	Algo     Algo
}

type Result struct {
	Name     string
	Algo     string
	Descr    string
	Profit   int
	Feasible bool
	Travel   float64
	Elapsed  time.Duration
	Err      error
}

func (r Result) row() []string {
	return []string{
		r.Name, r.Algo, r.Descr,
		strconv.Itoa(r.Profit),
		strconv.FormatBool(r.Feasible),
		strconv.FormatFloat(r.Travel, 'f', 3, 64),
		strconv.FormatInt(r.Elapsed.Milliseconds(), 10),
	}
}

// LoadInstances reads every instance of src.
func LoadInstances(ctx context.Context, src integrations.InstanceSource) (map[string]*route.Instance, error) {
	entries, err := src.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*route.Instance, len(entries))
	for _, e := range entries {
		l, err := src.Load(ctx, e.Name)
		if err != nil {
			return nil, err
		}
		out[e.Name] = l.Instance
	}
	return out, nil
}

// Expand lists the tasks of plan in instance-name order, one per matching (instance, algo).
func Expand(plan Plan, instances map[string]*route.Instance) []Task {
	names := make([]string, 0, len(instances))
	for n := range instances {
		names = append(names, n)
	}
	sort.Strings(names)
	var tasks []Task
	for i := range plan {
		a := &plan[i]
		for _, n := range names {
			if !a.Match(n) {
				continue
			}
			for _, al := range a.Algos {
				tasks = append(tasks, Task{Instance: instances[n], Algo: al})
			}
		}
	}
	return tasks
}

// Runner executes tasks on at most Workers goroutines.
type Runner struct {
	Workers int
	// Seed fixes every task's generator; 0 seeds from the clock.
	Seed int64
	// MaxTime caps each task on top of its own maxTime option.
	MaxTime time.Duration
	// OutDir receives <algo>/<descr>/<name>.out solution files when set.
	OutDir  string
	Metrics *opt.MetricsStore
	Logf    func(format string, args ...any)
}

func (r *Runner) logf(format string, args ...any) {
	if r.Logf != nil {
		r.Logf(format, args...)
		return
	}
	log.Printf(format, args...)
}

// Run solves every task and streams a CSV row to w as each one finishes. Solver
// failures are kept on the Result; output failures abort the batch.
func (r *Runner) Run(ctx context.Context, tasks []Task, w io.Writer) ([]Result, error) {
	workers := r.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return nil, err
	}
	cw.Flush()

	var (
		mu   sync.Mutex
		done int
	)
	results := make([]Result, len(tasks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, t := range tasks {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			res, st := r.solve(gctx, t)
			results[i] = res
			if res.Err != nil {
				r.logf("batch: name=%s algo=%s descr=%s err=%v", res.Name, res.Algo, res.Descr, res.Err)
			} else if r.OutDir != "" {
				if err := r.writeSolution(res, st); err != nil {
					return err
				}
			}
			mu.Lock()
			defer mu.Unlock()
			if res.Err == nil {
				if err := cw.Write(res.row()); err != nil {
					return err
				}
				cw.Flush()
				if err := cw.Error(); err != nil {
					return err
				}
			}
			done++
			if done%50 == 0 || done == len(tasks) {
				r.logf("batch: completed %d/%d", done, len(tasks))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, ctx.Err()
}

func (r *Runner) solve(ctx context.Context, t Task) (Result, *route.State) {
	res := Result{Name: t.Instance.Name(), Descr: t.Algo.Descr}
	solver, err := opt.Lookup(t.Algo.Type)
	if err != nil {
		res.Algo = t.Algo.Type
		res.Err = err
		return res, nil
	}
	res.Algo = solver.Name()
	if r.MaxTime > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.MaxTime)
		defer cancel()
	}
	st := route.NewState(t.Instance)
	started := time.Now()
	m, err := solver.Solve(ctx, st, opt.NewRand(r.Seed), t.Algo.Options, nil)
	res.Elapsed = time.Since(started)
	if err != nil {
		res.Err = err
		return res, nil
	}
	res.Profit = st.Profit()
	res.Feasible = st.Feasible()
	res.Travel = st.TotalTravel()
	if r.Metrics != nil {
		r.Metrics.Record(res.Name, res.Algo, res.Descr, m)
	}
	return res, st
}

// SolutionPath is where a run's solution is written under dir.
func SolutionPath(dir, algo, descr, name string) string {
	if descr == "" {
		descr = "default"
	}
	clean := func(s string) string {
		return strings.NewReplacer("/", "_", `\`, "_", " ", "_").Replace(s)
	}
	return filepath.Join(dir, clean(algo), clean(descr), name+".out")
}

func (r *Runner) writeSolution(res Result, st *route.State) error {
	path := SolutionPath(r.OutDir, res.Algo, res.Descr, res.Name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := route.WriteSolution(f, st); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// Report summarises a batch for the JSON report file.
type Report struct {
	System  model.SysInfo      `json:"system"`
	Started time.Time          `json:"started"`
	Elapsed time.Duration      `json:"elapsedNs"`
	Tasks   int                `json:"tasks"`
	Failed  int                `json:"failed"`
	Best    map[string]BestRun `json:"best"`
}

type BestRun struct {
	Solver string  `json:"solver"`
	Profit int     `json:"profit"`
	Travel float64 `json:"travel"`
}

// NewReport builds the report from results, taking each instance's best feasible run.
func NewReport(started time.Time, results []Result, ms *opt.MetricsStore) Report {
	rep := Report{
		System:  sysinfo.Collect(),
		Started: started,
		Elapsed: time.Since(started),
		Tasks:   len(results),
		Best:    map[string]BestRun{},
	}
	for _, res := range results {
		if res.Err != nil {
			rep.Failed++
		}
	}
	if ms == nil {
		return rep
	}
	for _, name := range ms.Instances() {
		if m, ok := ms.Best(name); ok {
			rep.Best[name] = BestRun{Solver: m.Solver, Profit: m.BestProfit, Travel: m.Travel}
		}
	}
	return rep
}
