package api

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "io"
    "net/http"
    "strings"

    "topsolver/internal/integrations"
    "topsolver/internal/model"
    "topsolver/internal/opt"
    "topsolver/internal/route"
)

// parseInstanceIn turns either structured points or instance text into a validated instance
// and its canonical text.
func parseInstanceIn(in model.InstanceIn) (*route.Instance, string, error) {
    if strings.TrimSpace(in.Text) != "" {
        inst, err := route.ReadInstance(strings.NewReader(in.Text), in.Name)
        if err != nil { return nil, "", err }
        return inst, in.Text, nil
    }
    pts := make([]route.Point, len(in.Points))
    for i, p := range in.Points {
        pts[i] = route.Point{X: p.X, Y: p.Y, Profit: p.Profit}
    }
    inst, err := route.NewInstance(in.Name, pts, in.Cars, in.MaxTime)
    if err != nil { return nil, "", err }
    var b strings.Builder
    if err := route.WriteInstance(&b, inst); err != nil { return nil, "", err }
    return inst, b.String(), nil
}

func (s *Server) createInstance(ctx context.Context, tenant string, in model.InstanceIn, source string) (model.Instance, error) {
    if err := validateInstanceIn(&in); err != nil {
        return model.Instance{}, badRequest("Invalid instance", err)
    }
    inst, text, err := parseInstanceIn(in)
    if err != nil {
        return model.Instance{}, badRequest("Invalid instance", err)
    }
    return s.storeInstance(ctx, tenant, inst, text, source)
}

func (s *Server) storeInstance(ctx context.Context, tenant string, inst *route.Instance, text, source string) (model.Instance, error) {
    return s.Store.CreateInstance(ctx, tenant, model.Instance{
        Name:        inst.Name(),
        Points:      inst.Points(),
        Cars:        inst.Cars(),
        MaxTime:     inst.MaxTime(),
        TotalProfit: inst.TotalProfit(),
        Source:      source,
        Text:        text,
    })
}

// InstancesHandler handles GET/POST /v1/instances. POST accepts a JSON InstanceIn or a
// text/plain body in the instance format (name from ?name=).
func (s *Server) InstancesHandler(w http.ResponseWriter, r *http.Request) {
    if r.URL.Path != "/v1/instances" { writeProblem(w, 404, "Not Found", "", r.URL.Path); return }
    p := s.getPrincipal(r)
    switch r.Method {
    case http.MethodPost:
        if !p.CanSolve() { writeProblem(w, 403, "Forbidden", "solver or admin required", r.URL.Path); return }
        var in model.InstanceIn
        if strings.HasPrefix(r.Header.Get("Content-Type"), "text/plain") {
            body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
            if err != nil { writeProblem(w, 400, "Invalid body", err.Error(), r.URL.Path); return }
            in = model.InstanceIn{Name: r.URL.Query().Get("name"), Text: string(body)}
        } else if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&in); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        created, err := s.createInstance(r.Context(), p.Tenant, in, "api")
        if err != nil { writeError(w, r, err); return }
        created.Text = ""
        writeJSON(w, http.StatusCreated, created)
    case http.MethodGet:
        cursor := r.URL.Query().Get("cursor")
        items, next, err := s.Store.ListInstances(r.Context(), p.Tenant, cursor, queryLimit(r))
        if err != nil { writeProblem(w, 500, "List instances failed", err.Error(), r.URL.Path); return }
        writeJSON(w, 200, map[string]any{"items": items, "nextCursor": next})
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// InstanceByIDHandler handles GET /v1/instances/{id}; ?format=text returns the instance text.
func (s *Server) InstanceByIDHandler(w http.ResponseWriter, r *http.Request) {
    id := strings.TrimPrefix(r.URL.Path, "/v1/instances/")
    if id == "" || strings.Contains(id, "/") { writeProblem(w, 404, "Not Found", "", r.URL.Path); return }
    if id == "import" { s.ImportInstanceHandler(w, r); return }
    if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
    p := s.getPrincipal(r)
    in, err := s.Store.GetInstance(r.Context(), p.Tenant, id)
    if err != nil { writeProblem(w, 404, "Instance not found", err.Error(), r.URL.Path); return }
    if r.URL.Query().Get("format") == "text" {
        w.Header().Set("Content-Type", "text/plain; charset=utf-8")
        _, _ = io.WriteString(w, in.Text)
        return
    }
    writeJSON(w, 200, in)
}

// SourcesHandler handles GET /v1/sources and GET /v1/sources/{name}/instances.
func (s *Server) SourcesHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
    rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/sources"), "/")
    if rest == "" {
        names := []string{}
        for name := range s.Sources { names = append(names, name) }
        writeJSON(w, 200, map[string]any{"items": names})
        return
    }
    name, tail, _ := strings.Cut(rest, "/")
    src, ok := s.Sources[name]
    if !ok || tail != "instances" { writeProblem(w, 404, "Not Found", "unknown source", r.URL.Path); return }
    items, err := src.List(r.Context())
    if err != nil { writeProblem(w, 500, "List source failed", err.Error(), r.URL.Path); return }
    writeJSON(w, 200, map[string]any{"items": items})
}

// ImportInstanceHandler handles POST /v1/instances/import {"source":"dir","name":"p1.2.a"}.
func (s *Server) ImportInstanceHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost { w.WriteHeader(http.StatusMethodNotAllowed); return }
    p := s.getPrincipal(r)
    if !p.CanSolve() { writeProblem(w, 403, "Forbidden", "solver or admin required", r.URL.Path); return }
    var req struct {
        Source string `json:"source"`
        Name   string `json:"name"`
    }
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil { writeProblem(w, 400, "Invalid JSON", err.Error(), r.URL.Path); return }
    if req.Source == "" { req.Source = "dir" }
    src, ok := s.Sources[req.Source]
    if !ok { writeProblem(w, 400, "Unknown source", fmt.Sprintf("source %q is not configured", req.Source), r.URL.Path); return }
    loaded, err := src.Load(r.Context(), req.Name)
    if err != nil {
        if errors.Is(err, integrations.ErrNoSuchInstance) { writeProblem(w, 404, "Instance not found", err.Error(), r.URL.Path); return }
        writeProblem(w, 400, "Invalid instance", err.Error(), r.URL.Path)
        return
    }
    created, err := s.storeInstance(r.Context(), p.Tenant, loaded.Instance, loaded.Text, src.Name())
    if err != nil { writeError(w, r, err); return }
    created.Text = ""
    writeJSON(w, http.StatusCreated, created)
}

// SolversHandler handles GET /v1/solvers.
func (s *Server) SolversHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
    items := []map[string]any{}
    for _, sv := range opt.Catalog() {
        items = append(items, map[string]any{"name": sv.Name(), "descr": sv.Descr(), "params": sv.Params()})
    }
    writeJSON(w, 200, map[string]any{"items": items})
}
