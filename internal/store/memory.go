package store

import (
    "context"
    "sort"
    "strings"
    "sync"
    "time"

    "github.com/google/uuid"
    "topsolver/internal/model"
)

// Memory is a simple in-memory store used when neither DATABASE_URL nor SQLITE_PATH is set.
type Memory struct {
    mu        sync.Mutex
    instances map[string]model.Instance             // id -> instance
    instTen   map[string][]string                   // tenant -> instance ids
    runs      map[string]model.Run                  // id -> run
    runsTen   map[string][]string                   // tenant -> run ids
    runMx     map[string][]map[string]any           // tenant -> run metrics, newest last
    snaps     map[string][]map[string]any           // tenant|run -> weight snapshots
    solverCfg map[string]map[string]any             // tenant -> solver defaults
    subs      map[string][]model.Subscription       // tenant -> subscriptions
    // Webhooks queue state
    deliveries map[string]*memDelivery              // id -> delivery state
    deliveriesByTenant map[string][]string          // tenant -> delivery ids
    dedup     map[string]bool                       // tenant|event|url|key
    dlq       []memDLQ                              // dead-lettered deliveries
}

func NewMemory() *Memory {
    return &Memory{
        instances: map[string]model.Instance{},
        instTen: map[string][]string{},
        runs: map[string]model.Run{},
        runsTen: map[string][]string{},
        runMx: map[string][]map[string]any{},
        snaps: map[string][]map[string]any{},
        solverCfg: map[string]map[string]any{},
        subs: map[string][]model.Subscription{},
        deliveries: map[string]*memDelivery{},
        deliveriesByTenant: map[string][]string{},
        dedup: map[string]bool{},
    }
}

// memDelivery augments WebhookDelivery with scheduling/metrics
type memDelivery struct {
    WebhookDelivery
    NextAttemptAt time.Time
    LastError     string
    ResponseCode  int
    LatencyMs     int
    DeliveredAt   *time.Time
}

type memDLQ struct {
    ID         string
    Delivery   WebhookDelivery
    LastError  string
    Code       int
    LatencyMs  int
    CreatedAt  time.Time
}

func (m *Memory) Ping(ctx context.Context) error { return nil }

// page returns the ids after cursor, at most limit of them, and the next cursor.
func page(ids []string, cursor string, limit int) ([]string, string) {
    if limit <= 0 || limit > 500 { limit = 100 }
    start := 0
    if cursor != "" {
        for i, id := range ids {
            if id == cursor { start = i + 1; break }
        }
    }
    end := start + limit
    if end > len(ids) { end = len(ids) }
    next := ""
    if end < len(ids) { next = ids[end-1] }
    return ids[start:end], next
}

func nowRFC3339() string { return time.Now().UTC().Format(time.RFC3339Nano) }

func (m *Memory) CreateInstance(ctx context.Context, tenantID string, in model.Instance) (model.Instance, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    in.ID = uuid.New().String()
    in.TenantID = tenantID
    if in.CreatedAt == "" { in.CreatedAt = nowRFC3339() }
    m.instances[in.ID] = in
    m.instTen[tenantID] = append(m.instTen[tenantID], in.ID)
    return in, nil
}

func (m *Memory) GetInstance(ctx context.Context, tenantID, id string) (model.Instance, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    in, ok := m.instances[id]
    if !ok || in.TenantID != tenantID { return model.Instance{}, ErrNotFound }
    return in, nil
}

func (m *Memory) FindInstanceByName(ctx context.Context, tenantID, name string) (model.Instance, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    ids := m.instTen[tenantID]
    for i := len(ids) - 1; i >= 0; i-- {
        if in := m.instances[ids[i]]; in.Name == name { return in, nil }
    }
    return model.Instance{}, ErrNotFound
}

func (m *Memory) ListInstances(ctx context.Context, tenantID, cursor string, limit int) ([]model.Instance, string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    ids, next := page(m.instTen[tenantID], cursor, limit)
    out := []model.Instance{}
    for _, id := range ids {
        in := m.instances[id]
        in.Text = ""
        out = append(out, in)
    }
    return out, next, nil
}

func (m *Memory) CreateRun(ctx context.Context, run model.Run) (model.Run, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    if run.ID == "" { run.ID = uuid.New().String() }
    if run.Status == "" { run.Status = model.RunQueued }
    if run.CreatedAt == "" { run.CreatedAt = nowRFC3339() }
    m.runs[run.ID] = run
    m.runsTen[run.TenantID] = append(m.runsTen[run.TenantID], run.ID)
    return run, nil
}

func (m *Memory) UpdateRun(ctx context.Context, run model.Run) error {
    m.mu.Lock(); defer m.mu.Unlock()
    cur, ok := m.runs[run.ID]
    if !ok || cur.TenantID != run.TenantID { return ErrNotFound }
    m.runs[run.ID] = run
    return nil
}

func (m *Memory) GetRun(ctx context.Context, tenantID, id string) (model.Run, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    r, ok := m.runs[id]
    if !ok || r.TenantID != tenantID { return model.Run{}, ErrNotFound }
    return r, nil
}

func (m *Memory) ListRuns(ctx context.Context, tenantID, instanceID, status, cursor string, limit int) ([]model.Run, string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    var ids []string
    for _, id := range m.runsTen[tenantID] {
        r := m.runs[id]
        if instanceID != "" && r.InstanceID != instanceID { continue }
        if status != "" && r.Status != status { continue }
        ids = append(ids, id)
    }
    ids, next := page(ids, cursor, limit)
    out := []model.Run{}
    for _, id := range ids {
        r := m.runs[id]
        r.Routes = nil
        r.Solution = ""
        out = append(out, r)
    }
    return out, next, nil
}

func (m *Memory) SaveRunMetrics(ctx context.Context, tenantID, runID, solver string, metrics map[string]any) error {
    m.mu.Lock(); defer m.mu.Unlock()
    item := map[string]any{}
    for k, v := range metrics { item[k] = v }
    item["runId"] = runID
    item["solver"] = solver
    items := m.runMx[tenantID]
    for i := range items {
        if items[i]["runId"] == runID { items[i] = item; return nil }
    }
    m.runMx[tenantID] = append(items, item)
    return nil
}

func (m *Memory) ListRunMetrics(ctx context.Context, tenantID, solver string, limit int) ([]map[string]any, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    if limit <= 0 || limit > 500 { limit = 100 }
    out := []map[string]any{}
    items := m.runMx[tenantID]
    for i := len(items) - 1; i >= 0 && len(out) < limit; i-- {
        if solver == "" || items[i]["solver"] == solver { out = append(out, items[i]) }
    }
    return out, nil
}

func (m *Memory) SaveRunSnapshots(ctx context.Context, tenantID, runID string, snaps []map[string]any) error {
    m.mu.Lock(); defer m.mu.Unlock()
    m.snaps[tenantID+"|"+runID] = append([]map[string]any(nil), snaps...)
    return nil
}

func (m *Memory) ListRunSnapshots(ctx context.Context, tenantID, runID string) ([]map[string]any, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    out := append([]map[string]any{}, m.snaps[tenantID+"|"+runID]...)
    return out, nil
}

func (m *Memory) GetSolverConfig(ctx context.Context, tenantID string) (map[string]any, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    if cfg, ok := m.solverCfg[tenantID]; ok { return cfg, nil }
    return nil, nil
}

func (m *Memory) SaveSolverConfig(ctx context.Context, tenantID string, cfg map[string]any) error {
    m.mu.Lock(); defer m.mu.Unlock()
    m.solverCfg[tenantID] = cfg
    return nil
}

func (m *Memory) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    s := model.Subscription{ID: uuid.New().String(), TenantID: req.TenantID, URL: req.URL, Events: req.Events, Secret: req.Secret}
    m.subs[req.TenantID] = append(m.subs[req.TenantID], s)
    return s, nil
}

func (m *Memory) GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    out := []model.Subscription{}
    for _, s := range m.subs[tenantID] {
        for _, e := range s.Events {
            if e == eventType || e == "*" { out = append(out, s); break }
        }
    }
    return out, nil
}

func (m *Memory) ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    subs := m.subs[tenantID]
    ids := make([]string, len(subs))
    byID := map[string]model.Subscription{}
    for i, s := range subs { ids[i] = s.ID; byID[s.ID] = s }
    ids, next := page(ids, cursor, limit)
    out := []model.Subscription{}
    for _, id := range ids { out = append(out, byID[id]) }
    return out, next, nil
}

func (m *Memory) DeleteSubscription(ctx context.Context, tenantID, id string) error {
    m.mu.Lock(); defer m.mu.Unlock()
    subs := m.subs[tenantID]
    for i, s := range subs {
        if s.ID == id {
            m.subs[tenantID] = append(subs[:i], subs[i+1:]...)
            return nil
        }
    }
    return ErrNotFound
}

func (m *Memory) EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    key := strings.Join([]string{tenantID, eventType, url, computeDedupKey(payload)}, "|")
    if m.dedup[key] { return "", nil }
    m.dedup[key] = true
    id := uuid.New().String()
    d := &memDelivery{WebhookDelivery: WebhookDelivery{ID: id, TenantID: tenantID, SubscriptionID: subscriptionID, EventType: eventType, URL: url, Secret: secret, Payload: payload, Status: "pending", Attempts: 0}, NextAttemptAt: time.Now()}
    m.deliveries[id] = d
    m.deliveriesByTenant[tenantID] = append(m.deliveriesByTenant[tenantID], id)
    return id, nil
}

func (m *Memory) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    now := time.Now()
    due := []*memDelivery{}
    for _, d := range m.deliveries {
        if (d.Status == "pending" || d.Status == "retry") && !d.NextAttemptAt.After(now) {
            due = append(due, d)
        }
    }
    sort.Slice(due, func(i, j int) bool { return due[i].NextAttemptAt.Before(due[j].NextAttemptAt) })
    out := []WebhookDelivery{}
    for _, d := range due {
        out = append(out, d.WebhookDelivery)
        if limit > 0 && len(out) >= limit { break }
    }
    return out, nil
}

func (m *Memory) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
    m.mu.Lock(); defer m.mu.Unlock()
    d := m.deliveries[id]
    if d == nil { return ErrNotFound }
    d.Attempts++
    d.ResponseCode = responseCode
    d.LatencyMs = latencyMs
    if success {
        d.Status = "delivered"
        now := time.Now()
        d.DeliveredAt = &now
    } else {
        d.Status = "retry"
        d.LastError = lastError
        if nextAttemptAt != nil { d.NextAttemptAt = *nextAttemptAt } else { d.NextAttemptAt = time.Now().Add(1 * time.Minute) }
    }
    return nil
}

func (m *Memory) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
    m.mu.Lock(); defer m.mu.Unlock()
    d := m.deliveries[id]
    if d == nil { return ErrNotFound }
    d.Status = "failed"
    d.LastError = lastError
    d.ResponseCode = responseCode
    d.LatencyMs = latencyMs
    dead := d.WebhookDelivery
    dead.Attempts++
    m.dlq = append(m.dlq, memDLQ{ID: uuid.New().String(), Delivery: dead, LastError: lastError, Code: responseCode, LatencyMs: latencyMs, CreatedAt: time.Now()})
    return nil
}

func (m *Memory) ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]map[string]any, string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    var ids []string
    for _, id := range m.deliveriesByTenant[tenantID] {
        if d := m.deliveries[id]; d != nil && (status == "" || d.Status == status) { ids = append(ids, id) }
    }
    ids, next := page(ids, cursor, limit)
    out := []map[string]any{}
    for _, id := range ids {
        d := m.deliveries[id]
        item := map[string]any{"id": d.ID, "eventType": d.EventType, "status": d.Status, "attempts": d.Attempts, "url": d.URL}
        if !d.NextAttemptAt.IsZero() { item["nextAttemptAt"] = d.NextAttemptAt }
        if d.LastError != "" { item["lastError"] = d.LastError }
        out = append(out, item)
    }
    return out, next, nil
}

func (m *Memory) RetryWebhookDelivery(ctx context.Context, tenantID, id string) error {
    m.mu.Lock(); defer m.mu.Unlock()
    d := m.deliveries[id]
    if d == nil || d.TenantID != tenantID { return ErrNotFound }
    d.Status = "pending"
    d.NextAttemptAt = time.Now()
    return nil
}

func (m *Memory) ListWebhookDLQ(ctx context.Context, tenantID, eventType, cursor string, limit int) ([]map[string]any, string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    byID := map[string]memDLQ{}
    var ids []string
    for _, e := range m.dlq {
        if e.Delivery.TenantID != tenantID { continue }
        if eventType != "" && e.Delivery.EventType != eventType { continue }
        ids = append(ids, e.ID)
        byID[e.ID] = e
    }
    ids, next := page(ids, cursor, limit)
    out := []map[string]any{}
    for _, id := range ids {
        e := byID[id]
        out = append(out, map[string]any{"id": e.ID, "deliveryId": e.Delivery.ID, "eventType": e.Delivery.EventType, "url": e.Delivery.URL, "lastError": e.LastError, "attempts": e.Delivery.Attempts, "createdAt": e.CreatedAt, "responseCode": e.Code, "latencyMs": e.LatencyMs})
    }
    return out, next, nil
}

// RequeueWebhookDLQ puts the dead-lettered delivery back on the queue with a fresh attempt count.
func (m *Memory) RequeueWebhookDLQ(ctx context.Context, tenantID, id string) error {
    m.mu.Lock(); defer m.mu.Unlock()
    for i, e := range m.dlq {
        if e.ID != id || e.Delivery.TenantID != tenantID { continue }
        m.dlq = append(m.dlq[:i], m.dlq[i+1:]...)
        d := m.deliveries[e.Delivery.ID]
        if d == nil {
            d = &memDelivery{WebhookDelivery: e.Delivery}
            m.deliveries[d.ID] = d
            m.deliveriesByTenant[tenantID] = append(m.deliveriesByTenant[tenantID], d.ID)
        }
        d.Status = "pending"
        d.Attempts = 0
        d.NextAttemptAt = time.Now()
        return nil
    }
    return ErrNotFound
}

func (m *Memory) DeleteWebhookDLQ(ctx context.Context, tenantID string, ids []string, olderThan time.Time) error {
    m.mu.Lock(); defer m.mu.Unlock()
    drop := map[string]bool{}
    for _, id := range ids { drop[id] = true }
    kept := m.dlq[:0]
    for _, e := range m.dlq {
        match := e.Delivery.TenantID == tenantID
        if len(ids) > 0 {
            match = match && drop[e.ID]
        } else if !olderThan.IsZero() {
            match = match && e.CreatedAt.Before(olderThan)
        } else {
            match = false
        }
        if !match { kept = append(kept, e) }
    }
    m.dlq = kept
    return nil
}
