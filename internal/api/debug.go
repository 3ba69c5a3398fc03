package api

import (
    "encoding/json"
    "net/http"
    "os"
    "time"

    "topsolver/internal/buildinfo"
    "topsolver/internal/sysinfo"
)

// DebugJSON handles GET /debug/info: build, host and which config knobs are set.
func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
    info := map[string]any{
        "build":  buildinfo.Info(),
        "system": sysinfo.Collect(),
        "time":   time.Now().UTC().Format(time.RFC3339),
        "config": map[string]any{
            "PORT": os.Getenv("PORT"),
            "AUTH_MODE": os.Getenv("AUTH_MODE"),
            "RATE_RPS": os.Getenv("RATE_RPS"),
            "RATE_BURST": os.Getenv("RATE_BURST"),
            "PROGRESS_RPS": os.Getenv("PROGRESS_RPS"),
            "SOLVE_MAX_TIME": s.Cfg.SolveMaxTime.String(),
            "WEBHOOK_MAX_ATTEMPTS": os.Getenv("WEBHOOK_MAX_ATTEMPTS"),
            "INSTANCES_DIR": s.Cfg.InstancesDir,
            "HAS_DATABASE_URL": s.Cfg.DatabaseURL != "",
            "HAS_SQLITE_PATH": s.Cfg.SQLitePath != "",
            "HAS_REDIS_URL": s.Cfg.RedisURL != "",
        },
        "solvesInFlight": s.inFlight(),
    }
    w.Header().Set("Content-Type", "application/json")
    _ = json.NewEncoder(w).Encode(info)
}

func (s *Server) inFlight() int {
    s.mu.Lock()
    defer s.mu.Unlock()
    return len(s.cancels)
}
