package store

import (
    "context"
    "database/sql"
    _ "embed"
    "encoding/json"
    "errors"
    "fmt"
    "regexp"
    "strings"
    "time"

    "github.com/google/uuid"
    _ "github.com/jackc/pgx/v5/stdlib"

    "topsolver/internal/model"
)

//go:embed schema.sql
var schemaSQL string

// Dialects understood by SQL.
const (
    DialectPostgres = "postgres"
    DialectSQLite   = "sqlite"
)

// SQL is the database/sql backed store. Queries are written with $n placeholders and
// rebound for SQLite.
type SQL struct {
    db      *sql.DB
    dialect string
}

func NewPostgres(dsn string) (*SQL, error) {
    db, err := sql.Open("pgx", dsn)
    if err != nil {
        return nil, err
    }
    db.SetMaxOpenConns(10)
    db.SetMaxIdleConns(10)
    db.SetConnMaxLifetime(30 * time.Minute)
    if err := db.Ping(); err != nil {
        db.Close()
        return nil, err
    }
    return &SQL{db: db, dialect: DialectPostgres}, nil
}

func (p *SQL) Dialect() string { return p.dialect }

func (p *SQL) Close() error { return p.db.Close() }

func (p *SQL) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

// Migrate applies the embedded schema statement by statement.
func (p *SQL) Migrate(ctx context.Context) error {
    for _, stmt := range splitStatements(schemaSQL) {
        if _, err := p.db.ExecContext(ctx, stmt); err != nil {
            return fmt.Errorf("migrate: %w", err)
        }
    }
    return nil
}

func splitStatements(script string) []string {
    var out []string
    var b strings.Builder
    for _, line := range strings.Split(script, "\n") {
        if strings.HasPrefix(strings.TrimSpace(line), "--") { continue }
        b.WriteString(line)
        b.WriteByte('\n')
    }
    for _, s := range strings.Split(b.String(), ";") {
        if s = strings.TrimSpace(s); s != "" { out = append(out, s) }
    }
    return out
}

var placeholderRE = regexp.MustCompile(`\$(\d+)`)

// q rebinds $n placeholders to ?n for SQLite.
func (p *SQL) q(query string) string {
    if p.dialect == DialectSQLite {
        return placeholderRE.ReplaceAllString(query, "?$1")
    }
    return query
}

func (p *SQL) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
    return p.db.ExecContext(ctx, p.q(query), args...)
}

func (p *SQL) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
    return p.db.QueryContext(ctx, p.q(query), args...)
}

func (p *SQL) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
    return p.db.QueryRowContext(ctx, p.q(query), args...)
}

func nowMs() int64 { return time.Now().UnixMilli() }

// Instances

func (p *SQL) CreateInstance(ctx context.Context, tenantID string, in model.Instance) (model.Instance, error) {
    in.ID = uuid.New().String()
    in.TenantID = tenantID
    created := time.Now().UTC()
    in.CreatedAt = created.Format(time.RFC3339Nano)
    _, err := p.exec(ctx, `INSERT INTO instances (id, tenant_id, name, points, cars, max_time, total_profit, source, body, created_ms) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
        in.ID, tenantID, in.Name, in.Points, in.Cars, in.MaxTime, in.TotalProfit, nullIfEmpty(in.Source), in.Text, created.UnixMilli())
    if err != nil { return model.Instance{}, err }
    return in, nil
}

const instanceCols = `id, name, points, cars, max_time, total_profit, COALESCE(source,''), body, created_ms`

func scanInstance(row interface{ Scan(...any) error }, tenantID string) (model.Instance, error) {
    var in model.Instance
    var created int64
    if err := row.Scan(&in.ID, &in.Name, &in.Points, &in.Cars, &in.MaxTime, &in.TotalProfit, &in.Source, &in.Text, &created); err != nil {
        if errors.Is(err, sql.ErrNoRows) { return model.Instance{}, ErrNotFound }
        return model.Instance{}, err
    }
    in.TenantID = tenantID
    in.CreatedAt = time.UnixMilli(created).UTC().Format(time.RFC3339Nano)
    return in, nil
}

func (p *SQL) GetInstance(ctx context.Context, tenantID, id string) (model.Instance, error) {
    return scanInstance(p.queryRow(ctx, `SELECT `+instanceCols+` FROM instances WHERE tenant_id=$1 AND id=$2`, tenantID, id), tenantID)
}

func (p *SQL) FindInstanceByName(ctx context.Context, tenantID, name string) (model.Instance, error) {
    return scanInstance(p.queryRow(ctx, `SELECT `+instanceCols+` FROM instances WHERE tenant_id=$1 AND name=$2 ORDER BY created_ms DESC LIMIT 1`, tenantID, name), tenantID)
}

func (p *SQL) ListInstances(ctx context.Context, tenantID, cursor string, limit int) ([]model.Instance, string, error) {
    if limit <= 0 || limit > 500 { limit = 100 }
    var rows *sql.Rows
    var err error
    if cursor != "" {
        rows, err = p.query(ctx, `SELECT `+instanceCols+` FROM instances WHERE tenant_id=$1 AND id > $2 ORDER BY id LIMIT $3`, tenantID, cursor, limit)
    } else {
        rows, err = p.query(ctx, `SELECT `+instanceCols+` FROM instances WHERE tenant_id=$1 ORDER BY id LIMIT $2`, tenantID, limit)
    }
    if err != nil { return nil, "", err }
    defer rows.Close()
    out := []model.Instance{}
    var last string
    for rows.Next() {
        in, err := scanInstance(rows, tenantID)
        if err != nil { return nil, "", err }
        in.Text = ""
        out = append(out, in)
        last = in.ID
    }
    if err := rows.Err(); err != nil { return nil, "", err }
    next := ""
    if len(out) == limit { next = last }
    return out, next, nil
}

// Runs

func (p *SQL) CreateRun(ctx context.Context, run model.Run) (model.Run, error) {
    if run.ID == "" { run.ID = uuid.New().String() }
    if run.Status == "" { run.Status = model.RunQueued }
    if run.CreatedAt == "" { run.CreatedAt = time.Now().UTC().Format(time.RFC3339Nano) }
    _, err := p.exec(ctx, `INSERT INTO runs (id, tenant_id, instance_id, instance_name, solver, status, seed, options, created_at) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
        run.ID, run.TenantID, run.InstanceID, nullIfEmpty(run.InstanceName), run.Solver, run.Status, run.Seed, toJSON(run.Options), run.CreatedAt)
    if err != nil { return model.Run{}, err }
    return run, nil
}

func (p *SQL) UpdateRun(ctx context.Context, run model.Run) error {
    routes, _ := json.Marshal(run.Routes)
    var system any
    if run.System != nil {
        b, _ := json.Marshal(run.System)
        system = string(b)
    }
    res, err := p.exec(ctx, `UPDATE runs SET status=$3, profit=$4, feasible=$5, travel=$6, routes=$7, solution=$8, error=$9, metrics=$10, sysinfo=$11, started_at=$12, finished_at=$13 WHERE tenant_id=$1 AND id=$2`,
        run.TenantID, run.ID, run.Status, run.Profit, run.Feasible, run.Travel, string(routes), nullIfEmpty(run.Solution), nullIfEmpty(run.Error), toJSON(run.Metrics), system, nullIfEmpty(run.StartedAt), nullIfEmpty(run.FinishedAt))
    if err != nil { return err }
    if n, err := res.RowsAffected(); err == nil && n == 0 { return ErrNotFound }
    return nil
}

const runCols = `id, instance_id, COALESCE(instance_name,''), solver, status, seed, COALESCE(options,''), profit, feasible, travel, COALESCE(routes,''), COALESCE(solution,''), COALESCE(error,''), COALESCE(metrics,''), COALESCE(sysinfo,''), COALESCE(created_at,''), COALESCE(started_at,''), COALESCE(finished_at,'')`

func scanRun(row interface{ Scan(...any) error }, tenantID string) (model.Run, error) {
    var r model.Run
    var options, routes, metrics, system string
    err := row.Scan(&r.ID, &r.InstanceID, &r.InstanceName, &r.Solver, &r.Status, &r.Seed, &options, &r.Profit, &r.Feasible, &r.Travel, &routes, &r.Solution, &r.Error, &metrics, &system, &r.CreatedAt, &r.StartedAt, &r.FinishedAt)
    if err != nil {
        if errors.Is(err, sql.ErrNoRows) { return model.Run{}, ErrNotFound }
        return model.Run{}, err
    }
    r.TenantID = tenantID
    if options != "" { _ = json.Unmarshal([]byte(options), &r.Options) }
    if routes != "" { _ = json.Unmarshal([]byte(routes), &r.Routes) }
    if metrics != "" { _ = json.Unmarshal([]byte(metrics), &r.Metrics) }
    if system != "" {
        var si model.SysInfo
        if json.Unmarshal([]byte(system), &si) == nil { r.System = &si }
    }
    return r, nil
}

func (p *SQL) GetRun(ctx context.Context, tenantID, id string) (model.Run, error) {
    return scanRun(p.queryRow(ctx, `SELECT `+runCols+` FROM runs WHERE tenant_id=$1 AND id=$2`, tenantID, id), tenantID)
}

func (p *SQL) ListRuns(ctx context.Context, tenantID, instanceID, status, cursor string, limit int) ([]model.Run, string, error) {
    if limit <= 0 || limit > 500 { limit = 100 }
    base := `SELECT ` + runCols + ` FROM runs WHERE tenant_id=$1`
    args := []any{tenantID}
    idx := 2
    if instanceID != "" { base += ` AND instance_id=$` + fmt.Sprint(idx); args = append(args, instanceID); idx++ }
    if status != "" { base += ` AND status=$` + fmt.Sprint(idx); args = append(args, status); idx++ }
    if cursor != "" { base += ` AND id > $` + fmt.Sprint(idx); args = append(args, cursor); idx++ }
    base += ` ORDER BY id LIMIT $` + fmt.Sprint(idx)
    args = append(args, limit)
    rows, err := p.query(ctx, base, args...)
    if err != nil { return nil, "", err }
    defer rows.Close()
    out := []model.Run{}
    var last string
    for rows.Next() {
        r, err := scanRun(rows, tenantID)
        if err != nil { return nil, "", err }
        r.Routes = nil
        r.Solution = ""
        out = append(out, r)
        last = r.ID
    }
    if err := rows.Err(); err != nil { return nil, "", err }
    next := ""
    if len(out) == limit { next = last }
    return out, next, nil
}

// Run metrics

func (p *SQL) SaveRunMetrics(ctx context.Context, tenantID, runID, solver string, metrics map[string]any) error {
    js, err := json.Marshal(metrics)
    if err != nil { return err }
    _, err = p.exec(ctx, `INSERT INTO run_metrics (run_id, tenant_id, solver, metrics, created_ms) VALUES ($1,$2,$3,$4,$5)
        ON CONFLICT (run_id) DO UPDATE SET solver=$3, metrics=$4, created_ms=$5`,
        runID, tenantID, solver, string(js), nowMs())
    return err
}

func (p *SQL) ListRunMetrics(ctx context.Context, tenantID, solver string, limit int) ([]map[string]any, error) {
    if limit <= 0 || limit > 500 { limit = 100 }
    base := `SELECT run_id, solver, metrics FROM run_metrics WHERE tenant_id=$1`
    args := []any{tenantID}
    if solver != "" {
        base += ` AND solver=$2 ORDER BY created_ms DESC LIMIT $3`
        args = append(args, solver, limit)
    } else {
        base += ` ORDER BY created_ms DESC LIMIT $2`
        args = append(args, limit)
    }
    rows, err := p.query(ctx, base, args...)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []map[string]any{}
    for rows.Next() {
        var runID, algo, js string
        if err := rows.Scan(&runID, &algo, &js); err != nil { return nil, err }
        item := map[string]any{}
        _ = json.Unmarshal([]byte(js), &item)
        item["runId"] = runID
        item["solver"] = algo
        out = append(out, item)
    }
    return out, rows.Err()
}

func (p *SQL) SaveRunSnapshots(ctx context.Context, tenantID, runID string, snaps []map[string]any) error {
    tx, err := p.db.BeginTx(ctx, nil)
    if err != nil { return err }
    defer func(){ _ = tx.Rollback() }()
    for _, s0 := range snaps {
        rem, _ := json.Marshal(s0["removal"])
        ins, _ := json.Marshal(s0["insertion"])
        _, err := tx.ExecContext(ctx, p.q(`INSERT INTO run_metrics_weights (id, tenant_id, run_id, iteration, removal_weights, insertion_weights)
            VALUES ($1,$2,$3,$4,$5,$6)`), uuid.New().String(), tenantID, runID, s0["iteration"], string(rem), string(ins))
        if err != nil { return err }
    }
    return tx.Commit()
}

func (p *SQL) ListRunSnapshots(ctx context.Context, tenantID, runID string) ([]map[string]any, error) {
    rows, err := p.query(ctx, `SELECT iteration, COALESCE(removal_weights,''), COALESCE(insertion_weights,'') FROM run_metrics_weights WHERE tenant_id=$1 AND run_id=$2 ORDER BY iteration`, tenantID, runID)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []map[string]any{}
    for rows.Next() {
        var iter int
        var remS, insS string
        if err := rows.Scan(&iter, &remS, &insS); err != nil { return nil, err }
        var rem, ins []float64
        _ = json.Unmarshal([]byte(remS), &rem)
        _ = json.Unmarshal([]byte(insS), &ins)
        out = append(out, map[string]any{"iteration": iter, "removal": rem, "insertion": ins})
    }
    return out, rows.Err()
}

// Solver defaults

func (p *SQL) GetSolverConfig(ctx context.Context, tenantID string) (map[string]any, error) {
    var js string
    if err := p.queryRow(ctx, `SELECT config FROM solver_config WHERE tenant_id=$1`, tenantID).Scan(&js); err != nil {
        if errors.Is(err, sql.ErrNoRows) { return nil, nil }
        return nil, err
    }
    var cfg map[string]any
    if err := json.Unmarshal([]byte(js), &cfg); err != nil { return nil, err }
    return cfg, nil
}

func (p *SQL) SaveSolverConfig(ctx context.Context, tenantID string, cfg map[string]any) error {
    js, err := json.Marshal(cfg)
    if err != nil { return err }
    _, err = p.exec(ctx, `INSERT INTO solver_config (tenant_id, config, updated_ms) VALUES ($1, $2, $3)
        ON CONFLICT (tenant_id) DO UPDATE SET config=$2, updated_ms=$3`, tenantID, string(js), nowMs())
    return err
}

// Subscriptions

func (p *SQL) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
    id := uuid.New().String()
    ev, _ := json.Marshal(req.Events)
    _, err := p.exec(ctx, `INSERT INTO subscriptions (id, tenant_id, url, events, secret) VALUES ($1,$2,$3,$4,$5)`, id, req.TenantID, req.URL, string(ev), nullIfEmpty(req.Secret))
    if err != nil { return model.Subscription{}, err }
    return model.Subscription{ID: id, TenantID: req.TenantID, URL: req.URL, Events: req.Events, Secret: req.Secret}, nil
}

func (p *SQL) GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error) {
    rows, err := p.query(ctx, `SELECT id, url, COALESCE(secret,''), events FROM subscriptions WHERE tenant_id=$1`, tenantID)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []model.Subscription{}
    for rows.Next() {
        var s model.Subscription
        var events string
        if err := rows.Scan(&s.ID, &s.URL, &s.Secret, &events); err != nil { return nil, err }
        s.TenantID = tenantID
        _ = json.Unmarshal([]byte(events), &s.Events)
        for _, e := range s.Events {
            if e == eventType || e == "*" { out = append(out, s); break }
        }
    }
    return out, rows.Err()
}

func (p *SQL) ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error) {
    if limit <= 0 || limit > 500 { limit = 100 }
    var rows *sql.Rows
    var err error
    if cursor != "" {
        rows, err = p.query(ctx, `SELECT id, url, COALESCE(secret,''), events FROM subscriptions WHERE tenant_id=$1 AND id > $2 ORDER BY id LIMIT $3`, tenantID, cursor, limit)
    } else {
        rows, err = p.query(ctx, `SELECT id, url, COALESCE(secret,''), events FROM subscriptions WHERE tenant_id=$1 ORDER BY id LIMIT $2`, tenantID, limit)
    }
    if err != nil { return nil, "", err }
    defer rows.Close()
    out := []model.Subscription{}
    var last string
    for rows.Next() {
        var s model.Subscription
        var ev string
        if err := rows.Scan(&s.ID, &s.URL, &s.Secret, &ev); err != nil { return nil, "", err }
        s.TenantID = tenantID
        _ = json.Unmarshal([]byte(ev), &s.Events)
        out = append(out, s)
        last = s.ID
    }
    next := ""
    if len(out) == limit { next = last }
    return out, next, rows.Err()
}

func (p *SQL) DeleteSubscription(ctx context.Context, tenantID, id string) error {
    res, err := p.exec(ctx, `DELETE FROM subscriptions WHERE tenant_id=$1 AND id=$2`, tenantID, id)
    if err != nil { return err }
    if n, err := res.RowsAffected(); err == nil && n == 0 { return ErrNotFound }
    return nil
}

// Webhook deliveries

func (p *SQL) EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
    id := uuid.New().String()
    dk := computeDedupKey(payload)
    now := nowMs()
    res, err := p.exec(ctx, `INSERT INTO webhook_deliveries (id, tenant_id, subscription_id, event_type, url, secret, payload, status, attempts, next_attempt_ms, updated_ms, dedup_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,'pending',0,$8,$8,$9)
        ON CONFLICT (tenant_id, event_type, url, dedup_key) DO NOTHING`, id, tenantID, nullIfEmpty(subscriptionID), eventType, url, nullIfEmpty(secret), string(payload), now, dk)
    if err != nil { return "", err }
    if n, err := res.RowsAffected(); err == nil && n == 0 { return "", nil }
    return id, nil
}

func (p *SQL) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
    rows, err := p.query(ctx, `SELECT id, tenant_id, COALESCE(subscription_id,''), event_type, url, COALESCE(secret,''), payload, status, attempts
        FROM webhook_deliveries WHERE status IN ('pending','retry') AND next_attempt_ms <= $1 ORDER BY next_attempt_ms ASC LIMIT $2`, nowMs(), limit)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []WebhookDelivery{}
    for rows.Next() {
        var d WebhookDelivery
        var payload string
        if err := rows.Scan(&d.ID, &d.TenantID, &d.SubscriptionID, &d.EventType, &d.URL, &d.Secret, &payload, &d.Status, &d.Attempts); err != nil { return nil, err }
        d.Payload = []byte(payload)
        out = append(out, d)
    }
    return out, rows.Err()
}

func (p *SQL) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
    if !success {
        if nextAttemptAt == nil { t := time.Now().Add(1 * time.Minute); nextAttemptAt = &t }
        _, err := p.exec(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='retry', last_error=$1, next_attempt_ms=$2, updated_ms=$3, response_code=$5, latency_ms=$6 WHERE id=$4`,
            nullIfEmpty(lastError), nextAttemptAt.UnixMilli(), nowMs(), id, responseCode, latencyMs)
        return err
    }
    now := nowMs()
    _, err := p.exec(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='delivered', delivered_ms=$2, updated_ms=$2, response_code=$3, latency_ms=$4 WHERE id=$1`, id, now, responseCode, latencyMs)
    return err
}

func (p *SQL) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
    tx, err := p.db.BeginTx(ctx, nil)
    if err != nil { return err }
    defer func(){ _ = tx.Rollback() }()
    now := nowMs()
    if _, err := tx.ExecContext(ctx, p.q(`UPDATE webhook_deliveries SET status='failed', last_error=$2, updated_ms=$3, response_code=$4, latency_ms=$5 WHERE id=$1`), id, nullIfEmpty(lastError), now, responseCode, latencyMs); err != nil { return err }
    // move to DLQ
    _, err = tx.ExecContext(ctx, p.q(`INSERT INTO webhook_dlq (id, tenant_id, delivery_id, event_type, url, attempts, last_error, response_code, latency_ms, created_ms)
        SELECT CAST($2 AS TEXT), tenant_id, id, event_type, url, attempts+1, CAST($3 AS TEXT), CAST($4 AS INTEGER), CAST($5 AS INTEGER), CAST($6 AS BIGINT) FROM webhook_deliveries WHERE id=$1`), id, uuid.New().String(), nullIfEmpty(lastError), responseCode, latencyMs, now)
    if err != nil { return err }
    return tx.Commit()
}

func (p *SQL) ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]map[string]any, string, error) {
    if limit <= 0 || limit > 500 { limit = 100 }
    q := `SELECT id, event_type, status, attempts, next_attempt_ms, COALESCE(last_error,''), url FROM webhook_deliveries WHERE tenant_id=$1`
    args := []any{tenantID}
    idx := 2
    if status != "" { q += ` AND status=$` + fmt.Sprint(idx); args = append(args, status); idx++ }
    if cursor != "" { q += ` AND id > $` + fmt.Sprint(idx); args = append(args, cursor); idx++ }
    q += ` ORDER BY id LIMIT $` + fmt.Sprint(idx)
    args = append(args, limit)
    rows, err := p.query(ctx, q, args...)
    if err != nil { return nil, "", err }
    defer rows.Close()
    out := []map[string]any{}
    var last string
    for rows.Next() {
        var id, typ, st, lastErr, url string
        var attempts int
        var nextAt int64
        if err := rows.Scan(&id, &typ, &st, &attempts, &nextAt, &lastErr, &url); err != nil { return nil, "", err }
        m := map[string]any{"id": id, "eventType": typ, "status": st, "attempts": attempts, "url": url, "nextAttemptAt": time.UnixMilli(nextAt).UTC()}
        if lastErr != "" { m["lastError"] = lastErr }
        out = append(out, m)
        last = id
    }
    next := ""
    if len(out) == limit { next = last }
    return out, next, rows.Err()
}

func (p *SQL) RetryWebhookDelivery(ctx context.Context, tenantID, id string) error {
    res, err := p.exec(ctx, `UPDATE webhook_deliveries SET status='pending', next_attempt_ms=$3 WHERE tenant_id=$1 AND id=$2`, tenantID, id, nowMs())
    if err != nil { return err }
    if n, err := res.RowsAffected(); err == nil && n == 0 { return ErrNotFound }
    return nil
}

// Dead-letter queue

func (p *SQL) ListWebhookDLQ(ctx context.Context, tenantID, eventType, cursor string, limit int) ([]map[string]any, string, error) {
    if limit <= 0 || limit > 500 { limit = 100 }
    base := `SELECT id, COALESCE(delivery_id,''), event_type, url, COALESCE(last_error,''), attempts, created_ms, COALESCE(response_code,0), COALESCE(latency_ms,0) FROM webhook_dlq WHERE tenant_id=$1`
    args := []any{tenantID}
    idx := 2
    if eventType != "" { base += ` AND event_type=$` + fmt.Sprint(idx); args = append(args, eventType); idx++ }
    if cursor != "" { base += ` AND id > $` + fmt.Sprint(idx); args = append(args, cursor); idx++ }
    base += ` ORDER BY id LIMIT $` + fmt.Sprint(idx)
    args = append(args, limit)
    rows, err := p.query(ctx, base, args...)
    if err != nil { return nil, "", err }
    defer rows.Close()
    out := []map[string]any{}
    var last string
    for rows.Next() {
        var id, delID, et, url, errStr string
        var attempts, code, latency int
        var created int64
        if err := rows.Scan(&id, &delID, &et, &url, &errStr, &attempts, &created, &code, &latency); err != nil { return nil, "", err }
        out = append(out, map[string]any{"id": id, "deliveryId": delID, "eventType": et, "url": url, "lastError": errStr, "attempts": attempts, "createdAt": time.UnixMilli(created).UTC(), "responseCode": code, "latencyMs": latency})
        last = id
    }
    next := ""
    if len(out) == limit { next = last }
    return out, next, rows.Err()
}

// RequeueWebhookDLQ puts the dead-lettered delivery back on the queue with a fresh attempt count.
func (p *SQL) RequeueWebhookDLQ(ctx context.Context, tenantID, id string) error {
    tx, err := p.db.BeginTx(ctx, nil)
    if err != nil { return err }
    defer func(){ _ = tx.Rollback() }()
    var delID string
    if err := tx.QueryRowContext(ctx, p.q(`SELECT COALESCE(delivery_id,'') FROM webhook_dlq WHERE tenant_id=$1 AND id=$2`), tenantID, id).Scan(&delID); err != nil {
        if errors.Is(err, sql.ErrNoRows) { return ErrNotFound }
        return err
    }
    if _, err := tx.ExecContext(ctx, p.q(`UPDATE webhook_deliveries SET status='pending', attempts=0, next_attempt_ms=$3 WHERE tenant_id=$1 AND id=$2`), tenantID, delID, nowMs()); err != nil { return err }
    if _, err := tx.ExecContext(ctx, p.q(`DELETE FROM webhook_dlq WHERE tenant_id=$1 AND id=$2`), tenantID, id); err != nil { return err }
    return tx.Commit()
}

func (p *SQL) DeleteWebhookDLQ(ctx context.Context, tenantID string, ids []string, olderThan time.Time) error {
    if len(ids) > 0 {
        for _, id := range ids {
            if _, err := p.exec(ctx, `DELETE FROM webhook_dlq WHERE tenant_id=$1 AND id=$2`, tenantID, id); err != nil { return err }
        }
        return nil
    }
    if !olderThan.IsZero() {
        _, err := p.exec(ctx, `DELETE FROM webhook_dlq WHERE tenant_id=$1 AND created_ms < $2`, tenantID, olderThan.UnixMilli())
        return err
    }
    return nil
}

func nullIfEmpty(s string) any { if s == "" { return nil }; return s }

// toJSON encodes m for a TEXT column, nil stays NULL.
func toJSON(m map[string]any) any {
    if m == nil { return nil }
    b, err := json.Marshal(m)
    if err != nil { return nil }
    return string(b)
}
