package store

import (
    "context"
    "errors"
    "time"

    "topsolver/internal/model"
)

// Store is the persistence interface used by the API server.
type Store interface {
    Ping(ctx context.Context) error

    // Instances
    CreateInstance(ctx context.Context, tenantID string, in model.Instance) (model.Instance, error)
    GetInstance(ctx context.Context, tenantID, id string) (model.Instance, error)
    FindInstanceByName(ctx context.Context, tenantID, name string) (model.Instance, error)
    ListInstances(ctx context.Context, tenantID, cursor string, limit int) ([]model.Instance, string, error)

    // Runs
    CreateRun(ctx context.Context, run model.Run) (model.Run, error)
    UpdateRun(ctx context.Context, run model.Run) error
    GetRun(ctx context.Context, tenantID, id string) (model.Run, error)
    ListRuns(ctx context.Context, tenantID, instanceID, status, cursor string, limit int) ([]model.Run, string, error)

    // Run metrics
    SaveRunMetrics(ctx context.Context, tenantID, runID, solver string, metrics map[string]any) error
    ListRunMetrics(ctx context.Context, tenantID, solver string, limit int) ([]map[string]any, error)
    SaveRunSnapshots(ctx context.Context, tenantID, runID string, snaps []map[string]any) error
    ListRunSnapshots(ctx context.Context, tenantID, runID string) ([]map[string]any, error)

    // Solver defaults per tenant
    GetSolverConfig(ctx context.Context, tenantID string) (map[string]any, error)
    SaveSolverConfig(ctx context.Context, tenantID string, cfg map[string]any) error

    // Subscriptions
    CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error)
    GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error)
    ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error)
    DeleteSubscription(ctx context.Context, tenantID, id string) error

    // Webhook deliveries
    EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error)
    FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)
    MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error
    FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error
    ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]map[string]any, string, error)
    RetryWebhookDelivery(ctx context.Context, tenantID, id string) error

    // Dead-letter queue
    ListWebhookDLQ(ctx context.Context, tenantID, eventType, cursor string, limit int) ([]map[string]any, string, error)
    RequeueWebhookDLQ(ctx context.Context, tenantID, id string) error
    DeleteWebhookDLQ(ctx context.Context, tenantID string, ids []string, olderThan time.Time) error
}

var ErrNotFound = errors.New("not found")
