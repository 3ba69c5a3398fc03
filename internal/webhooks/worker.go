package webhooks

import (
    "bytes"
    "context"
    "log"
    "net/http"
    "os"
    "strconv"
    "time"

    "topsolver/internal/metrics"
    "topsolver/internal/store"
)

type Worker struct {
    Store store.Store
    HTTP  *http.Client
    Stop  chan struct{}
    MaxAttempts int
    Interval    time.Duration
}

func NewWorker(s store.Store) *Worker {
    max := 10
    if v := os.Getenv("WEBHOOK_MAX_ATTEMPTS"); v != "" { if n,err := strconv.Atoi(v); err == nil && n>0 { max = n } }
    return &Worker{Store: s, HTTP: &http.Client{Timeout: 5 * time.Second}, Stop: make(chan struct{}), MaxAttempts: max, Interval: time.Second}
}

// Start polls for due deliveries until ctx ends or Stop is closed.
func (w *Worker) Start(ctx context.Context) {
    interval := w.Interval
    if interval <= 0 { interval = time.Second }
    go func() {
        ticker := time.NewTicker(interval)
        defer ticker.Stop()
        for {
            select {
            case <-ctx.Done():
                return
            case <-w.Stop:
                return
            case <-ticker.C:
                w.processOnce()
            }
        }
    }()
}

func (w *Worker) processOnce() {
    ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
    defer cancel()
    items, err := w.Store.FetchDueWebhookDeliveries(ctx, 50)
    if err != nil {
        log.Printf("webhooks: fetch due err=%v", err)
        return
    }
    for _, it := range items {
        w.deliver(ctx, it)
    }
}

func (w *Worker) deliver(ctx context.Context, it store.WebhookDelivery) {
    success := false
    next := time.Now().Add(nextBackoff(it.Attempts))
    req, err := http.NewRequestWithContext(ctx, http.MethodPost, it.URL, bytes.NewReader(it.Payload))
    if err != nil {
        _ = w.Store.FailWebhookDelivery(ctx, it.ID, err.Error(), 0, 0)
        metrics.WebhookDeliveries.WithLabelValues(it.EventType, "failed").Inc()
        return
    }
    req.Header.Set("Content-Type", "application/json")
    ts := time.Now().Unix()
    req.Header.Set(HeaderEvent, it.EventType)
    req.Header.Set(HeaderDelivery, it.ID)
    req.Header.Set(HeaderTimestamp, strconv.FormatInt(ts, 10))
    if it.Secret != "" {
        req.Header.Set(HeaderSignature, Sign(it.Secret, ts, it.Payload))
    }
    start := time.Now()
    resp, err := w.HTTP.Do(req)
    latency := int(time.Since(start).Milliseconds())
    code := 0
    if err == nil && resp != nil {
        code = resp.StatusCode
        if resp.Body != nil { _ = resp.Body.Close() }
        if code >= 200 && code < 300 { success = true }
    }
    lastErr := ""
    if !success {
        if err != nil { lastErr = err.Error() } else { lastErr = "status " + strconv.Itoa(code) }
    }
    status := "delivered"
    switch {
    case success:
        _ = w.Store.MarkWebhookDelivery(ctx, it.ID, true, nil, "", code, latency)
    case it.Attempts+1 >= w.MaxAttempts:
        status = "failed"
        _ = w.Store.FailWebhookDelivery(ctx, it.ID, lastErr, code, latency)
        log.Printf("webhooks: dead-letter id=%s event=%s attempts=%d err=%s", it.ID, it.EventType, it.Attempts+1, lastErr)
    default:
        status = "retry"
        _ = w.Store.MarkWebhookDelivery(ctx, it.ID, false, &next, lastErr, code, latency)
    }
    metrics.WebhookDeliveries.WithLabelValues(it.EventType, status).Inc()
    metrics.WebhookLatency.WithLabelValues(it.EventType, status).Observe(float64(latency))
}

func nextBackoff(attempts int) time.Duration {
    if attempts < 0 { attempts = 0 }
    if attempts > 10 { attempts = 10 }
    base := time.Second * time.Duration(1<<attempts)
    if base > time.Hour { base = time.Hour }
    return base
}
