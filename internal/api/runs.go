package api

import (
    "encoding/json"
    "fmt"
    "io"
    "net/http"
    "strings"
    "time"

    "topsolver/internal/model"
)

// SolveHandler handles POST /v1/solve. Synchronous requests answer with the finished run,
// async ones with 202 and the queued run.
func (s *Server) SolveHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    p := s.getPrincipal(r)
    if !p.CanSolve() { writeProblem(w, 403, "Forbidden", "solver or admin required", r.URL.Path); return }
    var req model.SolveRequest
    if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
        return
    }
    req.TenantID = p.Tenant
    job, err := s.prepareRun(r.Context(), p, req)
    if err != nil { writeError(w, r, err); return }
    if req.Async {
        s.startAsync(job)
        w.Header().Set("Location", "/v1/runs/"+job.run.ID)
        writeJSON(w, http.StatusAccepted, job.run)
        return
    }
    run := s.runSync(r.Context(), job)
    writeJSON(w, http.StatusOK, run)
}

// RunsHandler handles GET /v1/runs with instanceId, status, cursor and limit filters.
func (s *Server) RunsHandler(w http.ResponseWriter, r *http.Request) {
    if r.URL.Path != "/v1/runs" { writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path); return }
    if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
    p := s.getPrincipal(r)
    q := r.URL.Query()
    items, next, err := s.Store.ListRuns(r.Context(), p.Tenant, q.Get("instanceId"), q.Get("status"), q.Get("cursor"), queryLimit(r))
    if err != nil { writeProblem(w, 500, "List runs failed", err.Error(), r.URL.Path); return }
    writeJSON(w, 200, map[string]any{"items": items, "nextCursor": next})
}

// RunByIDHandler handles GET /v1/runs/{id}, GET /v1/runs/{id}/solution,
// GET /v1/runs/{id}/events/stream and POST /v1/runs/{id}/cancel.
func (s *Server) RunByIDHandler(w http.ResponseWriter, r *http.Request) {
    path := r.URL.Path
    rest := strings.TrimPrefix(path, "/v1/runs/")
    if rest == path || rest == "" {
        writeProblem(w, http.StatusNotFound, "Not Found", "missing id", path)
        return
    }
    parts := strings.Split(rest, "/")
    id := parts[0]
    p := s.getPrincipal(r)
    run, err := s.Store.GetRun(r.Context(), p.Tenant, id)
    if err != nil { writeProblem(w, 404, "Run not found", err.Error(), path); return }

    switch {
    case len(parts) == 1:
        if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
        writeJSON(w, http.StatusOK, run)
    case len(parts) == 2 && parts[1] == "solution":
        if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
        if run.Status != model.RunCompleted { writeProblem(w, 409, "Run not completed", "status "+run.Status, path); return }
        w.Header().Set("Content-Type", "text/plain; charset=utf-8")
        _, _ = io.WriteString(w, run.Solution)
    case len(parts) == 2 && parts[1] == "cancel":
        if r.Method != http.MethodPost { w.WriteHeader(http.StatusMethodNotAllowed); return }
        if !p.CanSolve() { writeProblem(w, 403, "Forbidden", "solver or admin required", path); return }
        if !s.cancelRun(id) { writeProblem(w, 409, "Run not in flight", "status "+run.Status, path); return }
        writeJSON(w, 202, map[string]int{"accepted": 1})
    case len(parts) == 3 && parts[1] == "events" && parts[2] == "stream":
        if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
        s.streamRunEvents(w, r, run)
    default:
        writeProblem(w, 404, "Not Found", "", path)
    }
}

// streamRunEvents serves run events as SSE until the run finishes or the client leaves.
func (s *Server) streamRunEvents(w http.ResponseWriter, r *http.Request, run model.Run) {
    flusher, ok := w.(http.Flusher)
    if !ok { writeProblem(w, 500, "Streaming unsupported", "", r.URL.Path); return }
    w.Header().Set("Content-Type", "text/event-stream")
    w.Header().Set("Cache-Control", "no-cache")
    w.Header().Set("Connection", "keep-alive")
    // subscribe before re-reading the status so a finish in between is not missed
    ch := s.Broker.Subscribe(run.ID)
    defer s.Broker.Unsubscribe(run.ID, ch)
    writeEvent := func(typ string, data any) {
        b, _ := json.Marshal(data)
        fmt.Fprintf(w, "event: %s\n", typ)
        fmt.Fprintf(w, "data: %s\n\n", string(b))
        flusher.Flush()
    }
    heartbeat := func() {
        writeEvent("heartbeat", map[string]string{"runId": run.ID, "ts": time.Now().UTC().Format(time.RFC3339)})
    }
    heartbeat()
    if cur, err := s.Store.GetRun(r.Context(), run.TenantID, run.ID); err == nil && (cur.Status == model.RunCompleted || cur.Status == model.RunFailed) {
        writeEvent("run."+cur.Status, map[string]any{"runId": cur.ID, "status": cur.Status, "profit": cur.Profit, "feasible": cur.Feasible, "travel": cur.Travel, "routes": cur.Routes, "error": cur.Error})
        return
    }
    ticker := time.NewTicker(15 * time.Second)
    defer ticker.Stop()
    notify := r.Context().Done()
    for {
        select {
        case <-notify:
            return
        case evt, ok := <-ch:
            if !ok { return }
            writeEvent(evt.Type, evt.Data)
            if isTerminalEvent(evt.Type) { return }
        case <-ticker.C:
            heartbeat()
        }
    }
}
