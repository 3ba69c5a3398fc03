package api

import "net/http"

// Handler returns the API router wrapped in the request middleware.
func (s *Server) Handler() http.Handler {
    mux := http.NewServeMux()

    // Instances and sources
    mux.HandleFunc("/v1/instances", s.InstancesHandler)
    mux.HandleFunc("/v1/instances/", s.InstanceByIDHandler) // includes /import
    mux.HandleFunc("/v1/sources", s.SourcesHandler)
    mux.HandleFunc("/v1/sources/", s.SourcesHandler)
    mux.HandleFunc("/v1/solvers", s.SolversHandler)

    // Solving
    mux.HandleFunc("/v1/solve", s.SolveHandler)
    mux.HandleFunc("/v1/runs", s.RunsHandler)
    mux.HandleFunc("/v1/runs/ws", s.RunsWSHandler)
    mux.HandleFunc("/v1/runs/", s.RunByIDHandler) // includes /solution, /cancel, /events/stream

    // Subscriptions
    mux.HandleFunc("/v1/subscriptions", s.SubscriptionsHandler)
    mux.HandleFunc("/v1/subscriptions/", s.SubscriptionByIDHandler)

    // Health
    mux.HandleFunc("/healthz", s.HealthHandler)
    mux.HandleFunc("/readyz", s.ReadyHandler)
    mux.Handle("/metrics", s.MetricsHandler())
    mux.HandleFunc("/debug/info", s.DebugJSON)

    // Admin
    mux.HandleFunc("/v1/admin/webhook-deliveries", s.WebhookDeliveriesHandler)
    mux.HandleFunc("/v1/admin/webhook-deliveries/", s.WebhookDeliveryRetryHandler)
    mux.HandleFunc("/v1/admin/webhook-dlq", s.WebhookDLQHandler)
    mux.HandleFunc("/v1/admin/webhook-dlq/", s.WebhookDLQHandler)
    mux.HandleFunc("/v1/admin/run-metrics", s.RunMetricsHandler)
    mux.HandleFunc("/v1/admin/run-metrics/", s.RunMetricsSnapshotsHandler)
    mux.HandleFunc("/v1/admin/solver-config", s.SolverConfigHandler)

    return s.withMiddleware(s.requireAuth(mux))
}
