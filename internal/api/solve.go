package api

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "log"
    "net/http"
    "strings"
    "time"

    "golang.org/x/time/rate"

    "topsolver/internal/auth"
    "topsolver/internal/metrics"
    "topsolver/internal/model"
    "topsolver/internal/opt"
    "topsolver/internal/route"
    "topsolver/internal/store"
    "topsolver/internal/sysinfo"
)

// httpError carries the problem status and title for a failed request step.
type httpError struct {
    status int
    title  string
    err    error
}

func (e *httpError) Error() string { return e.title + ": " + e.err.Error() }
func (e *httpError) Unwrap() error { return e.err }

func badRequest(title string, err error) *httpError { return &httpError{status: http.StatusBadRequest, title: title, err: err} }

func writeError(w http.ResponseWriter, r *http.Request, err error) {
    var he *httpError
    if errors.As(err, &he) {
        writeProblem(w, he.status, he.title, he.err.Error(), r.URL.Path)
        return
    }
    if errors.Is(err, store.ErrNotFound) {
        writeProblem(w, http.StatusNotFound, "Not Found", err.Error(), r.URL.Path)
        return
    }
    writeProblem(w, http.StatusInternalServerError, "Internal Error", err.Error(), r.URL.Path)
}

// runJob is a validated solve ready to execute.
type runJob struct {
    run      model.Run
    instance *route.Instance
    solver   opt.Solver
    opts     opt.Options
    start    *route.State
}

// prepareRun validates req, resolves or stores its instance, merges tenant solver
// defaults and creates the queued run record.
func (s *Server) prepareRun(ctx context.Context, p auth.Principal, req model.SolveRequest) (*runJob, error) {
    if err := validateSolveRequest(&req); err != nil {
        return nil, badRequest("Invalid solve request", err)
    }
    solver, err := opt.Lookup(req.Solver)
    if err != nil {
        return nil, badRequest("Unknown solver", err)
    }
    var stored model.Instance
    if req.InstanceID != "" {
        stored, err = s.Store.GetInstance(ctx, p.Tenant, req.InstanceID)
        if err != nil {
            if errors.Is(err, store.ErrNotFound) { return nil, &httpError{status: http.StatusNotFound, title: "Instance not found", err: err} }
            return nil, err
        }
    } else {
        stored, err = s.createInstance(ctx, p.Tenant, *req.Instance, "api")
        if err != nil { return nil, err }
    }
    inst, err := route.ReadInstance(strings.NewReader(stored.Text), stored.Name)
    if err != nil {
        return nil, fmt.Errorf("stored instance %s: %w", stored.ID, err)
    }
    var start *route.State
    if req.InitialSolution != "" {
        start, err = route.ReadSolution(strings.NewReader(req.InitialSolution), inst)
        if err != nil { return nil, badRequest("Invalid initial solution", err) }
    }
    opts, err := s.solverOptions(ctx, p.Tenant, solver.Name(), req)
    if err != nil { return nil, err }
    seed := req.Seed
    if seed == 0 { seed = time.Now().UnixNano() }
    run, err := s.Store.CreateRun(ctx, model.Run{
        TenantID:     p.Tenant,
        InstanceID:   stored.ID,
        InstanceName: stored.Name,
        Solver:       solver.Name(),
        Status:       model.RunQueued,
        Seed:         seed,
        Options:      opts,
    })
    if err != nil { return nil, err }
    return &runJob{run: run, instance: inst, solver: solver, opts: opts, start: start}, nil
}

// solverOptions layers the tenant's flat defaults, its per-solver section and the request.
func (s *Server) solverOptions(ctx context.Context, tenant, solverName string, req model.SolveRequest) (opt.Options, error) {
    cfg, err := s.Store.GetSolverConfig(ctx, tenant)
    if err != nil { return nil, err }
    base := opt.Options{}
    var section opt.Options
    for k, v := range cfg {
        if m, ok := v.(map[string]any); ok {
            if strings.EqualFold(k, solverName) { section = opt.Options(m) }
            continue
        }
        base[k] = v
    }
    opts := base.Merge(section).Merge(opt.Options(req.Options))
    if req.TimeBudgetMs > 0 {
        opts["maxTime"] = float64(req.TimeBudgetMs) / 1000
    }
    return opts, nil
}

func (s *Server) trackRun(id string, cancel context.CancelFunc) {
    s.mu.Lock()
    s.cancels[id] = cancel
    s.mu.Unlock()
}

func (s *Server) untrackRun(id string) {
    s.mu.Lock()
    delete(s.cancels, id)
    s.mu.Unlock()
}

// cancelRun stops an in-flight solve; it reports false when the run is not running here.
func (s *Server) cancelRun(id string) bool {
    s.mu.Lock()
    cancel, ok := s.cancels[id]
    s.mu.Unlock()
    if ok { cancel() }
    return ok
}

// startAsync executes job in the background and returns immediately.
func (s *Server) startAsync(job *runJob) {
    ctx, cancel := context.WithTimeout(s.baseCtx, s.Cfg.SolveMaxTime)
    s.trackRun(job.run.ID, cancel)
    s.wg.Add(1)
    go func() {
        defer s.wg.Done()
        defer cancel()
        s.execute(ctx, job)
    }()
}

// runSync executes job on the caller's goroutine bounded by ctx and the solve cap.
func (s *Server) runSync(ctx context.Context, job *runJob) model.Run {
    ctx, cancel := context.WithTimeout(ctx, s.Cfg.SolveMaxTime)
    defer cancel()
    s.trackRun(job.run.ID, cancel)
    return s.execute(ctx, job)
}

// execute solves job and records the outcome. Store writes use a context detached from
// ctx so a cancelled solve still persists its final state.
func (s *Server) execute(ctx context.Context, job *runJob) model.Run {
    defer s.untrackRun(job.run.ID)
    run := job.run
    name := job.solver.Name()
    wctx := context.WithoutCancel(ctx)

    run.Status = model.RunRunning
    run.StartedAt = time.Now().UTC().Format(time.RFC3339Nano)
    si := sysinfo.Collect()
    run.System = &si
    if err := s.Store.UpdateRun(wctx, run); err != nil {
        log.Printf("run=%s update err=%v", run.ID, err)
    }
    s.Broker.Publish(run.ID, SSEEvent{Type: EventRunStarted, Data: map[string]any{"runId": run.ID, "solver": name, "instanceId": run.InstanceID}})
    metrics.RunsInFlight.Inc()
    defer metrics.RunsInFlight.Dec()

    st := job.start
    if st == nil { st = route.NewState(job.instance) }
    throttle := rate.NewLimiter(rate.Limit(s.progressRPS()), 1)
    progress := func(inc opt.Incumbent) {
        metrics.SolveIncumbents.WithLabelValues(name).Inc()
        if !throttle.Allow() { return }
        s.Broker.Publish(run.ID, SSEEvent{Type: EventRunIncumbent, Data: map[string]any{
            "runId": run.ID, "iteration": inc.Iteration, "profit": inc.Profit, "travel": inc.Travel,
            "feasible": inc.Feasible, "elapsedMs": inc.Elapsed.Milliseconds(),
        }})
    }

    started := time.Now()
    m, err := job.solver.Solve(ctx, st, opt.NewRand(run.Seed), job.opts, progress)
    elapsed := time.Since(started)
    run.FinishedAt = time.Now().UTC().Format(time.RFC3339Nano)
    if err != nil {
        run.Status = model.RunFailed
        run.Error = err.Error()
    } else {
        run.Status = model.RunCompleted
        run.Profit = st.Profit()
        run.Feasible = st.Feasible()
        run.Travel = st.TotalTravel()
        run.Routes = routesOf(st)
        run.Solution = route.SolutionText(st)
        run.Metrics = metricsMap(m)
    }
    if err := s.Store.UpdateRun(wctx, run); err != nil {
        log.Printf("run=%s update err=%v", run.ID, err)
    }
    if run.Status == model.RunCompleted {
        if err := s.Store.SaveRunMetrics(wctx, run.TenantID, run.ID, name, run.Metrics); err != nil {
            log.Printf("run=%s metrics err=%v", run.ID, err)
        }
        if len(m.Snapshots) > 0 {
            if err := s.Store.SaveRunSnapshots(wctx, run.TenantID, run.ID, snapshotMaps(m.Snapshots)); err != nil {
                log.Printf("run=%s snapshots err=%v", run.ID, err)
            }
        }
        metrics.SolveProfit.WithLabelValues(name).Observe(float64(run.Profit))
    }
    metrics.SolveRuns.WithLabelValues(name, run.Status).Inc()
    metrics.SolveDuration.WithLabelValues(name).Observe(elapsed.Seconds())
    log.Printf("run=%s solver=%s instance=%s status=%s profit=%d feasible=%t dur=%dms", run.ID, name, run.InstanceName, run.Status, run.Profit, run.Feasible, elapsed.Milliseconds())

    evt := EventRunCompleted
    if run.Status == model.RunFailed { evt = EventRunFailed }
    s.Broker.Publish(run.ID, SSEEvent{Type: evt, Data: map[string]any{
        "runId": run.ID, "status": run.Status, "profit": run.Profit, "feasible": run.Feasible,
        "travel": run.Travel, "routes": run.Routes, "error": run.Error,
    }})
    s.Pub.RunFinished(wctx, run)
    return run
}

func (s *Server) progressRPS() float64 {
    if s.Cfg.ProgressRPS > 0 { return s.Cfg.ProgressRPS }
    return 5
}

func routesOf(st *route.State) [][]int {
    out := make([][]int, st.Instance().Cars())
    for car := range out {
        out[car] = st.Route(car)
    }
    return out
}

// metricsMap flattens solver metrics for storage; weight snapshots are stored separately.
func metricsMap(m opt.Metrics) map[string]any {
    b, err := json.Marshal(m)
    if err != nil { return nil }
    out := map[string]any{}
    _ = json.Unmarshal(b, &out)
    delete(out, "snapshots")
    out["elapsedMs"] = m.Elapsed.Milliseconds()
    delete(out, "elapsedNs")
    return out
}

func snapshotMaps(snaps []opt.WeightSnapshot) []map[string]any {
    out := make([]map[string]any, 0, len(snaps))
    for _, sn := range snaps {
        out = append(out, map[string]any{
            "iteration": sn.Iteration,
            "removal":   []float64{sn.Removal[0], sn.Removal[1]},
            "insertion": []float64{sn.Insertion[0], sn.Insertion[1]},
        })
    }
    return out
}
