package metrics

import (
    "net/http"
    "sync"

    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/collectors"
    "github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
    // Registry is the dedicated Prometheus registry for the API
    Registry = prometheus.NewRegistry()
    // HTTPRequests counts requests by method, path, and status
    HTTPRequests = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
        []string{"method", "path", "status"},
    )
    // HTTPDuration records request durations in seconds
    HTTPDuration = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
        []string{"method", "path", "status"},
    )
    // RateLimited counts requests rejected by the limiter
    RateLimited = prometheus.NewCounter(
        prometheus.CounterOpts{Name: "http_rate_limited_total", Help: "Requests rejected by the rate limiter."},
    )

    // SolveRuns counts finished solve runs by solver and final status
    SolveRuns = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "solve_runs_total", Help: "Solve runs by solver and status."},
        []string{"solver", "status"},
    )
    // SolveDuration records wall time of solve runs in seconds
    SolveDuration = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Name: "solve_duration_seconds", Help: "Solve wall time in seconds.", Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}},
        []string{"solver"},
    )
    // SolveIncumbents counts improved solutions reported while solving
    SolveIncumbents = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "solve_incumbents_total", Help: "Improved solutions reported during solves."},
        []string{"solver"},
    )
    // SolveProfit tracks the reward of finished solutions
    SolveProfit = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Name: "solve_profit", Help: "Collected reward of finished solutions.", Buckets: prometheus.ExponentialBuckets(10, 2, 10)},
        []string{"solver"},
    )
    // RunsInFlight is the number of solves currently running
    RunsInFlight = prometheus.NewGauge(
        prometheus.GaugeOpts{Name: "solve_runs_in_flight", Help: "Solves currently running."},
    )

    // WebhookDeliveries counts webhook delivery outcomes by event type and status
    WebhookDeliveries = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "webhook_deliveries_total", Help: "Webhook deliveries by event type and status."},
        []string{"event_type", "status"},
    )
    // WebhookLatency tracks webhook delivery latencies in milliseconds
    WebhookLatency = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Name: "webhook_delivery_latency_ms", Help: "Webhook delivery latency in ms.", Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000}},
        []string{"event_type", "status"},
    )
)

// RegisterDefault registers collectors to the dedicated registry.
func RegisterDefault() {
    regOnce.Do(func(){
        Registry.MustRegister(HTTPRequests, HTTPDuration, RateLimited)
        Registry.MustRegister(SolveRuns, SolveDuration, SolveIncumbents, SolveProfit, RunsInFlight)
        Registry.MustRegister(WebhookDeliveries, WebhookLatency)
        // Go/process collectors on our registry
        Registry.MustRegister(collectors.NewGoCollector())
        Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
    })
}

var regOnce sync.Once

// Handler serves the registry in the Prometheus text format.
func Handler() http.Handler {
    RegisterDefault()
    return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
