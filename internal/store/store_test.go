package store

import (
    "errors"
    "testing"
    "time"

    "github.com/google/uuid"
    "topsolver/internal/model"
)

// exerciseStore runs the behaviour every Store implementation must share.
func exerciseStore(t *testing.T, s Store) {
    t.Helper()
    ctx := t.Context()
    tenant := "t_" + uuid.New().String()[:8]
    other := tenant + "_other"

    // Instances
    in, err := s.CreateInstance(ctx, tenant, model.Instance{Name: "p1.2.a", Points: 3, Cars: 1, MaxTime: 4, TotalProfit: 10, Source: "api", Text: "n 3\nm 1\ntmax 4\n0\t0\t0\n1\t0\t10\n2\t0\t0\n"})
    if err != nil { t.Fatalf("CreateInstance: %v", err) }
    if in.ID == "" || in.TenantID != tenant { t.Fatalf("instance not stamped: %+v", in) }
    got, err := s.GetInstance(ctx, tenant, in.ID)
    if err != nil { t.Fatalf("GetInstance: %v", err) }
    if got.Text != in.Text || got.TotalProfit != 10 || got.MaxTime != 4 { t.Fatalf("instance mismatch: %+v", got) }
    if _, err := s.GetInstance(ctx, other, in.ID); !errors.Is(err, ErrNotFound) { t.Fatalf("cross-tenant GetInstance: %v", err) }
    byName, err := s.FindInstanceByName(ctx, tenant, "p1.2.a")
    if err != nil || byName.ID != in.ID { t.Fatalf("FindInstanceByName: %v %+v", err, byName) }
    if _, err := s.FindInstanceByName(ctx, tenant, "missing"); !errors.Is(err, ErrNotFound) { t.Fatalf("FindInstanceByName missing: %v", err) }
    for i := 0; i < 2; i++ {
        if _, err := s.CreateInstance(ctx, tenant, model.Instance{Name: "extra", Points: 2, Cars: 1, Text: "x"}); err != nil { t.Fatalf("CreateInstance: %v", err) }
    }
    seen := map[string]bool{}
    cursor := ""
    for pages := 0; pages < 5; pages++ {
        items, next, err := s.ListInstances(ctx, tenant, cursor, 2)
        if err != nil { t.Fatalf("ListInstances: %v", err) }
        for _, it := range items {
            if it.Text != "" { t.Fatalf("listing should omit the body") }
            seen[it.ID] = true
        }
        if next == "" { break }
        cursor = next
    }
    if len(seen) != 3 { t.Fatalf("paged over %d instances, want 3", len(seen)) }

    // Runs
    run, err := s.CreateRun(ctx, model.Run{TenantID: tenant, InstanceID: in.ID, InstanceName: in.Name, Solver: "GREEDY", Seed: 7, Options: map[string]any{"wTime": 0.7}})
    if err != nil { t.Fatalf("CreateRun: %v", err) }
    if run.Status != model.RunQueued { t.Fatalf("new run status %q", run.Status) }
    run.Status = model.RunCompleted
    run.Profit = 10
    run.Feasible = true
    run.Travel = 2
    run.Routes = [][]int{{1}}
    run.Solution = "h 1\n0\t1\n"
    run.Metrics = map[string]any{"iterations": 3}
    run.System = &model.SysInfo{Platform: "linux", Cores: 4}
    run.FinishedAt = time.Now().UTC().Format(time.RFC3339Nano)
    if err := s.UpdateRun(ctx, run); err != nil { t.Fatalf("UpdateRun: %v", err) }
    gr, err := s.GetRun(ctx, tenant, run.ID)
    if err != nil { t.Fatalf("GetRun: %v", err) }
    if gr.Status != model.RunCompleted || gr.Profit != 10 || !gr.Feasible || len(gr.Routes) != 1 || gr.Solution == "" || gr.Seed != 7 {
        t.Fatalf("run mismatch: %+v", gr)
    }
    if gr.System == nil || gr.System.Cores != 4 { t.Fatalf("system info lost: %+v", gr.System) }
    if _, err := s.GetRun(ctx, other, run.ID); !errors.Is(err, ErrNotFound) { t.Fatalf("cross-tenant GetRun: %v", err) }
    missing := run
    missing.ID = uuid.New().String()
    if err := s.UpdateRun(ctx, missing); !errors.Is(err, ErrNotFound) { t.Fatalf("UpdateRun missing: %v", err) }
    if _, err := s.CreateRun(ctx, model.Run{TenantID: tenant, InstanceID: in.ID, Solver: "BT"}); err != nil { t.Fatalf("CreateRun: %v", err) }
    runs, _, err := s.ListRuns(ctx, tenant, in.ID, model.RunCompleted, "", 10)
    if err != nil { t.Fatalf("ListRuns: %v", err) }
    if len(runs) != 1 || runs[0].ID != run.ID { t.Fatalf("status filter: %+v", runs) }
    all, _, err := s.ListRuns(ctx, tenant, "", "", "", 10)
    if err != nil || len(all) != 2 { t.Fatalf("ListRuns all: %v %d", err, len(all)) }

    // Run metrics and weight snapshots
    if err := s.SaveRunMetrics(ctx, tenant, run.ID, "ALNS", map[string]any{"iterations": 10}); err != nil { t.Fatalf("SaveRunMetrics: %v", err) }
    if err := s.SaveRunMetrics(ctx, tenant, run.ID, "ALNS", map[string]any{"iterations": 20}); err != nil { t.Fatalf("SaveRunMetrics overwrite: %v", err) }
    mx, err := s.ListRunMetrics(ctx, tenant, "ALNS", 10)
    if err != nil { t.Fatalf("ListRunMetrics: %v", err) }
    if len(mx) != 1 || mx[0]["runId"] != run.ID { t.Fatalf("run metrics: %+v", mx) }
    if mx2, _ := s.ListRunMetrics(ctx, tenant, "BT", 10); len(mx2) != 0 { t.Fatalf("solver filter: %+v", mx2) }
    snaps := []map[string]any{
        {"iteration": 50, "removal": []float64{1, 1.1}, "insertion": []float64{1, 0.9}},
        {"iteration": 100, "removal": []float64{1.2, 1}, "insertion": []float64{1, 1}},
    }
    if err := s.SaveRunSnapshots(ctx, tenant, run.ID, snaps); err != nil { t.Fatalf("SaveRunSnapshots: %v", err) }
    gs, err := s.ListRunSnapshots(ctx, tenant, run.ID)
    if err != nil || len(gs) != 2 { t.Fatalf("ListRunSnapshots: %v %d", err, len(gs)) }

    // Solver defaults
    if cfg, err := s.GetSolverConfig(ctx, tenant); err != nil || cfg != nil { t.Fatalf("empty solver config: %v %v", cfg, err) }
    if err := s.SaveSolverConfig(ctx, tenant, map[string]any{"maxTime": "5s"}); err != nil { t.Fatalf("SaveSolverConfig: %v", err) }
    if err := s.SaveSolverConfig(ctx, tenant, map[string]any{"maxTime": "2s"}); err != nil { t.Fatalf("SaveSolverConfig overwrite: %v", err) }
    cfg, err := s.GetSolverConfig(ctx, tenant)
    if err != nil || cfg["maxTime"] != "2s" { t.Fatalf("GetSolverConfig: %v %v", cfg, err) }

    // Subscriptions
    sub, err := s.CreateSubscription(ctx, model.SubscriptionRequest{TenantID: tenant, URL: "http://hook.local/a", Events: []string{"run.completed"}, Secret: "s3"})
    if err != nil { t.Fatalf("CreateSubscription: %v", err) }
    if _, err := s.CreateSubscription(ctx, model.SubscriptionRequest{TenantID: tenant, URL: "http://hook.local/b", Events: []string{"*"}}); err != nil { t.Fatalf("CreateSubscription: %v", err) }
    subs, err := s.GetSubscriptionsForEvent(ctx, tenant, "run.completed")
    if err != nil || len(subs) != 2 { t.Fatalf("subscriptions for completed: %v %d", err, len(subs)) }
    subs, _ = s.GetSubscriptionsForEvent(ctx, tenant, "run.failed")
    if len(subs) != 1 || subs[0].URL != "http://hook.local/b" { t.Fatalf("wildcard match: %+v", subs) }
    if err := s.DeleteSubscription(ctx, other, sub.ID); !errors.Is(err, ErrNotFound) { t.Fatalf("cross-tenant delete: %v", err) }
    if err := s.DeleteSubscription(ctx, tenant, sub.ID); err != nil { t.Fatalf("DeleteSubscription: %v", err) }
    list, _, err := s.ListSubscriptions(ctx, tenant, "", 10)
    if err != nil || len(list) != 1 { t.Fatalf("ListSubscriptions: %v %d", err, len(list)) }

    // Webhook deliveries
    payload := []byte(`{"id":"evt_1","type":"run.completed"}`)
    id, err := s.EnqueueWebhook(ctx, tenant, sub.ID, "run.completed", "http://hook.local/a", "s3", payload)
    if err != nil || id == "" { t.Fatalf("EnqueueWebhook: %v %q", err, id) }
    dup, err := s.EnqueueWebhook(ctx, tenant, sub.ID, "run.completed", "http://hook.local/a", "s3", payload)
    if err != nil || dup != "" { t.Fatalf("duplicate enqueue should be dropped: %v %q", err, dup) }
    due, err := s.FetchDueWebhookDeliveries(ctx, 10)
    if err != nil { t.Fatalf("FetchDue: %v", err) }
    var d *WebhookDelivery
    for i := range due { if due[i].ID == id { d = &due[i] } }
    if d == nil || string(d.Payload) != string(payload) || d.Secret != "s3" { t.Fatalf("due delivery: %+v", due) }
    later := time.Now().Add(time.Hour)
    if err := s.MarkWebhookDelivery(ctx, id, false, &later, "boom", 500, 12); err != nil { t.Fatalf("Mark retry: %v", err) }
    due, _ = s.FetchDueWebhookDeliveries(ctx, 10)
    for _, x := range due { if x.ID == id { t.Fatalf("retry scheduled later must not be due") } }
    if err := s.RetryWebhookDelivery(ctx, tenant, id); err != nil { t.Fatalf("RetryWebhookDelivery: %v", err) }
    if err := s.RetryWebhookDelivery(ctx, other, id); !errors.Is(err, ErrNotFound) { t.Fatalf("cross-tenant retry: %v", err) }
    if err := s.FailWebhookDelivery(ctx, id, "gave up", 500, 10); err != nil { t.Fatalf("FailWebhookDelivery: %v", err) }
    dl, _, err := s.ListWebhookDeliveries(ctx, tenant, "failed", "", 10)
    if err != nil || len(dl) != 1 { t.Fatalf("failed deliveries: %v %d", err, len(dl)) }

    // Dead-letter queue
    dlq, _, err := s.ListWebhookDLQ(ctx, tenant, "run.completed", "", 10)
    if err != nil || len(dlq) != 1 { t.Fatalf("ListWebhookDLQ: %v %d", err, len(dlq)) }
    if dlq[0]["deliveryId"] != id || dlq[0]["lastError"] != "gave up" { t.Fatalf("dlq entry: %+v", dlq[0]) }
    dlqID := dlq[0]["id"].(string)
    if err := s.RequeueWebhookDLQ(ctx, tenant, dlqID); err != nil { t.Fatalf("RequeueWebhookDLQ: %v", err) }
    if dlq, _, _ = s.ListWebhookDLQ(ctx, tenant, "", "", 10); len(dlq) != 0 { t.Fatalf("requeued entry should leave the dlq") }
    due, _ = s.FetchDueWebhookDeliveries(ctx, 100)
    found := false
    for _, x := range due { if x.ID == id { found = true; if x.Attempts != 0 { t.Fatalf("requeue keeps attempts %d", x.Attempts) } } }
    if !found { t.Fatalf("requeued delivery not due") }
    if err := s.MarkWebhookDelivery(ctx, id, true, nil, "", 200, 5); err != nil { t.Fatalf("Mark success: %v", err) }
    if err := s.FailWebhookDelivery(ctx, id, "again", 500, 1); err != nil { t.Fatalf("FailWebhookDelivery: %v", err) }
    if err := s.DeleteWebhookDLQ(ctx, tenant, nil, time.Now().Add(-time.Hour)); err != nil { t.Fatalf("DeleteWebhookDLQ olderThan: %v", err) }
    if dlq, _, _ = s.ListWebhookDLQ(ctx, tenant, "", "", 10); len(dlq) != 1 { t.Fatalf("recent entry should survive olderThan purge") }
    if err := s.DeleteWebhookDLQ(ctx, tenant, []string{dlq[0]["id"].(string)}, time.Time{}); err != nil { t.Fatalf("DeleteWebhookDLQ ids: %v", err) }
    if dlq, _, _ = s.ListWebhookDLQ(ctx, tenant, "", "", 10); len(dlq) != 0 { t.Fatalf("dlq not purged: %d", len(dlq)) }
}

func TestMemoryStore(t *testing.T) {
    exerciseStore(t, NewMemory())
}

func TestPageCursor(t *testing.T) {
    ids := []string{"a", "b", "c", "d", "e"}
    got, next := page(ids, "", 2)
    if len(got) != 2 || next != "b" { t.Fatalf("first page: %v %q", got, next) }
    got, next = page(ids, next, 2)
    if got[0] != "c" || next != "d" { t.Fatalf("second page: %v %q", got, next) }
    got, next = page(ids, next, 2)
    if len(got) != 1 || next != "" { t.Fatalf("last page: %v %q", got, next) }
}
