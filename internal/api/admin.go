package api

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "io"
    "net/http"
    "strings"
    "time"

    "topsolver/internal/metrics"
    "topsolver/internal/model"
)

// Health
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
    writeJSON(w, 200, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
    ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
    defer cancel()
    if err := s.Store.Ping(ctx); err != nil { writeProblem(w, 503, "Not Ready", err.Error(), r.URL.Path); return }
    writeJSON(w, 200, map[string]string{"status": "ready"})
}

// MetricsHandler serves the Prometheus registry.
func (s *Server) MetricsHandler() http.Handler {
    metrics.RegisterDefault()
    return metrics.Handler()
}

// SubscriptionsHandler handles GET/POST /v1/subscriptions
func (s *Server) SubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
    if r.URL.Path != "/v1/subscriptions" { writeProblem(w, 404, "Not Found", "", r.URL.Path); return }
    p := s.getPrincipal(r)
    if !p.IsAdmin() { writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path); return }
    switch r.Method {
    case http.MethodPost:
        var req model.SubscriptionRequest
        if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        req.TenantID = p.Tenant
        if !strings.HasPrefix(req.URL, "http://") && !strings.HasPrefix(req.URL, "https://") {
            writeProblem(w, 400, "Invalid subscription", "url must be http(s)", r.URL.Path)
            return
        }
        if len(req.Events) == 0 { req.Events = []string{"*"} }
        sub, err := s.Store.CreateSubscription(r.Context(), req)
        if err != nil {
            writeProblem(w, http.StatusInternalServerError, "Create subscription failed", err.Error(), r.URL.Path)
            return
        }
        writeJSON(w, http.StatusCreated, sub)
    case http.MethodGet:
        items, next, err := s.Store.ListSubscriptions(r.Context(), p.Tenant, r.URL.Query().Get("cursor"), queryLimit(r))
        if err != nil { writeProblem(w, 500, "List subscriptions failed", err.Error(), r.URL.Path); return }
        writeJSON(w, 200, map[string]any{"items": items, "nextCursor": next})
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// Subscription delete (admin)
func (s *Server) SubscriptionByIDHandler(w http.ResponseWriter, r *http.Request) {
    if !strings.HasPrefix(r.URL.Path, "/v1/subscriptions/") { writeProblem(w, 404, "Not Found", "", r.URL.Path); return }
    if r.Method != http.MethodDelete { w.WriteHeader(405); return }
    p := s.getPrincipal(r)
    if !p.IsAdmin() { writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path); return }
    id := strings.TrimPrefix(r.URL.Path, "/v1/subscriptions/")
    if err := s.Store.DeleteSubscription(r.Context(), p.Tenant, id); err != nil { writeError(w, r, err); return }
    w.WriteHeader(204)
}

// Admin: webhook deliveries list and retry
func (s *Server) WebhookDeliveriesHandler(w http.ResponseWriter, r *http.Request) {
    if r.URL.Path != "/v1/admin/webhook-deliveries" { s.WebhookDeliveryRetryHandler(w, r); return }
    p := s.getPrincipal(r)
    if !p.IsAdmin() { writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path); return }
    if r.Method != http.MethodGet { w.WriteHeader(405); return }
    q := r.URL.Query()
    items, next, err := s.Store.ListWebhookDeliveries(r.Context(), p.Tenant, q.Get("status"), q.Get("cursor"), queryLimit(r))
    if err != nil { writeProblem(w, 500, "List deliveries failed", err.Error(), r.URL.Path); return }
    writeJSON(w, 200, map[string]any{"items": items, "nextCursor": next})
}

func (s *Server) WebhookDeliveryRetryHandler(w http.ResponseWriter, r *http.Request) {
    if !strings.HasPrefix(r.URL.Path, "/v1/admin/webhook-deliveries/") || !strings.HasSuffix(r.URL.Path, "/retry") { writeProblem(w, 404, "Not Found", "", r.URL.Path); return }
    if r.Method != http.MethodPost { w.WriteHeader(405); return }
    p := s.getPrincipal(r)
    if !p.IsAdmin() { writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path); return }
    id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/v1/admin/webhook-deliveries/"), "/retry")
    if err := s.Store.RetryWebhookDelivery(r.Context(), p.Tenant, id); err != nil { writeError(w, r, err); return }
    writeJSON(w, 202, map[string]int{"accepted": 1})
}

// Admin: webhook DLQ list, requeue and purge
func (s *Server) WebhookDLQHandler(w http.ResponseWriter, r *http.Request) {
    p := s.getPrincipal(r)
    if !p.IsAdmin() { writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path); return }
    if r.URL.Path == "/v1/admin/webhook-dlq" && r.Method == http.MethodGet {
        q := r.URL.Query()
        items, next, err := s.Store.ListWebhookDLQ(r.Context(), p.Tenant, q.Get("eventType"), q.Get("cursor"), queryLimit(r))
        if err != nil { writeProblem(w, 500, "List DLQ failed", err.Error(), r.URL.Path); return }
        writeJSON(w, 200, map[string]any{"items": items, "nextCursor": next})
        return
    }
    if r.URL.Path == "/v1/admin/webhook-dlq" && r.Method == http.MethodDelete {
        var req struct{ IDs []string `json:"ids"`; OlderThanHours int `json:"olderThanHours"` }
        if err := json.NewDecoder(r.Body).Decode(&req); err != nil { writeProblem(w, 400, "Invalid JSON", err.Error(), r.URL.Path); return }
        if len(req.IDs) == 0 && req.OlderThanHours <= 0 { writeProblem(w, 400, "Missing filter", "ids or olderThanHours required", r.URL.Path); return }
        var older time.Time
        if req.OlderThanHours > 0 { older = time.Now().Add(-time.Duration(req.OlderThanHours) * time.Hour) }
        if err := s.Store.DeleteWebhookDLQ(r.Context(), p.Tenant, req.IDs, older); err != nil { writeProblem(w, 500, "Delete DLQ failed", err.Error(), r.URL.Path); return }
        writeJSON(w, 202, map[string]int{"accepted": 1})
        return
    }
    if strings.HasPrefix(r.URL.Path, "/v1/admin/webhook-dlq/") && strings.HasSuffix(r.URL.Path, "/requeue") && r.Method == http.MethodPost {
        id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/v1/admin/webhook-dlq/"), "/requeue")
        if err := s.Store.RequeueWebhookDLQ(r.Context(), p.Tenant, id); err != nil { writeError(w, r, err); return }
        writeJSON(w, 202, map[string]int{"accepted": 1})
        return
    }
    writeProblem(w, 404, "Not Found", "", r.URL.Path)
}

// RunMetricsHandler handles GET /v1/admin/run-metrics?solver=&includeSnapshots=
func (s *Server) RunMetricsHandler(w http.ResponseWriter, r *http.Request) {
    if r.URL.Path != "/v1/admin/run-metrics" { s.RunMetricsSnapshotsHandler(w, r); return }
    if r.Method != http.MethodGet { w.WriteHeader(405); return }
    p := s.getPrincipal(r)
    if !p.IsAdmin() { writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path); return }
    q := r.URL.Query()
    items, err := s.Store.ListRunMetrics(r.Context(), p.Tenant, q.Get("solver"), queryLimit(r))
    if err != nil { writeProblem(w, 500, "Run metrics failed", err.Error(), r.URL.Path); return }
    if v := q.Get("includeSnapshots"); strings.EqualFold(v, "true") || v == "1" {
        for i := range items {
            id, _ := items[i]["runId"].(string)
            if id == "" { continue }
            snaps, err := s.Store.ListRunSnapshots(r.Context(), p.Tenant, id)
            if err == nil && len(snaps) > 0 { items[i]["snapshots"] = snaps }
        }
    }
    writeJSON(w, 200, map[string]any{"items": items})
}

// RunMetricsSnapshotsHandler handles GET /v1/admin/run-metrics/{runId}/snapshots
func (s *Server) RunMetricsSnapshotsHandler(w http.ResponseWriter, r *http.Request) {
    rest := strings.TrimPrefix(r.URL.Path, "/v1/admin/run-metrics/")
    id, tail, _ := strings.Cut(rest, "/")
    if id == "" || tail != "snapshots" { writeProblem(w, 404, "Not Found", "", r.URL.Path); return }
    if r.Method != http.MethodGet { w.WriteHeader(405); return }
    p := s.getPrincipal(r)
    if !p.IsAdmin() { writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path); return }
    if _, err := s.Store.GetRun(r.Context(), p.Tenant, id); err != nil { writeError(w, r, err); return }
    items, err := s.Store.ListRunSnapshots(r.Context(), p.Tenant, id)
    if err != nil { writeProblem(w, 500, "Run snapshots failed", err.Error(), r.URL.Path); return }
    writeJSON(w, 200, map[string]any{"items": items})
}

// SolverConfigHandler handles GET/PUT /v1/admin/solver-config. Top-level scalars apply to
// every solver; an object keyed by solver name overrides them for that solver.
func (s *Server) SolverConfigHandler(w http.ResponseWriter, r *http.Request) {
    p := s.getPrincipal(r)
    if !p.IsAdmin() { writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path); return }
    switch r.Method {
    case http.MethodGet:
        cfg, err := s.Store.GetSolverConfig(r.Context(), p.Tenant)
        if err != nil { writeProblem(w, 500, "Get solver config failed", err.Error(), r.URL.Path); return }
        if cfg == nil { cfg = map[string]any{} }
        writeJSON(w, 200, cfg)
    case http.MethodPut:
        var cfg map[string]any
        if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&cfg); err != nil { writeProblem(w, 400, "Invalid JSON", err.Error(), r.URL.Path); return }
        if err := validateSolverConfig(cfg); err != nil { writeProblem(w, 400, "Invalid solver config", err.Error(), r.URL.Path); return }
        if err := s.Store.SaveSolverConfig(r.Context(), p.Tenant, cfg); err != nil { writeProblem(w, 500, "Save solver config failed", err.Error(), r.URL.Path); return }
        writeJSON(w, 200, cfg)
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

var errNestedSection = errors.New("solver sections must be flat")

func validateSolverConfig(cfg map[string]any) error {
    for k, v := range cfg {
        sec, ok := v.(map[string]any)
        if !ok { continue }
        for kk, vv := range sec {
            if _, nested := vv.(map[string]any); nested {
                return fmt.Errorf("%s.%s: %w", k, kk, errNestedSection)
            }
        }
    }
    return nil
}
