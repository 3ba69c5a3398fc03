package metrics

import (
    "net/http"
    "net/http/httptest"
    "strings"
    "testing"
)

func TestHandlerExposesSolveMetrics(t *testing.T) {
    h := Handler()
    SolveRuns.WithLabelValues("GREEDY", "completed").Inc()
    RegisterDefault() // second call is a no-op
    rr := httptest.NewRecorder()
    h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
    if rr.Code != 200 { t.Fatalf("metrics: got %d", rr.Code) }
    if !strings.Contains(rr.Body.String(), `solve_runs_total{solver="GREEDY",status="completed"}`) {
        t.Fatalf("missing solve_runs_total in output")
    }
}
