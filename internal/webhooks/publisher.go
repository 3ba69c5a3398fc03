package webhooks

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"topsolver/internal/model"
	"topsolver/internal/store"
)

// Event types delivered to subscribers.
const (
	EventRunCompleted = "run.completed"
	EventRunFailed    = "run.failed"
)

// SecretEnv names the variable holding the signing secret for subscriptions that were
// created without their own.
const SecretEnv = "WEBHOOK_SIGNING_SECRET"

type Publisher struct {
	Store store.Store
	// Secret signs deliveries of subscriptions without a secret; empty leaves them unsigned.
	Secret string
}

func NewPublisher(s store.Store) *Publisher {
	return &Publisher{Store: s}
}

// Emit enqueues one delivery per subscription of the tenant matching eventType and
// returns how many were queued.
func (p *Publisher) Emit(ctx context.Context, tenantID, eventType string, data any) int {
	subs, err := p.Store.GetSubscriptionsForEvent(ctx, tenantID, eventType)
	if err != nil {
		log.Printf("webhooks: subscriptions tenant=%s event=%s err=%v", tenantID, eventType, err)
		return 0
	}
	if len(subs) == 0 {
		return 0
	}
	payload := map[string]any{
		"id":       fmt.Sprintf("evt_%d", time.Now().UnixNano()),
		"type":     eventType,
		"tenantId": tenantID,
		"ts":       time.Now().UTC().Format(time.RFC3339),
		"data":     data,
	}
	body, _ := json.Marshal(payload)
	queued := 0
	for _, s := range subs {
		secret := s.Secret
		if secret == "" {
			secret = p.Secret
		}
		id, err := p.Store.EnqueueWebhook(ctx, tenantID, s.ID, eventType, s.URL, secret, body)
		if err != nil {
			log.Printf("webhooks: enqueue sub=%s err=%v", s.ID, err)
			continue
		}
		if id != "" {
			queued++
		}
	}
	return queued
}

// RunFinished emits run.completed or run.failed for a run in a terminal state.
func (p *Publisher) RunFinished(ctx context.Context, run model.Run) int {
	event := EventRunCompleted
	if run.Status == model.RunFailed {
		event = EventRunFailed
	}
	data := map[string]any{
		"runId":      run.ID,
		"instanceId": run.InstanceID,
		"solver":     run.Solver,
		"status":     run.Status,
		"profit":     run.Profit,
		"feasible":   run.Feasible,
		"travel":     run.Travel,
	}
	if run.Error != "" {
		data["error"] = run.Error
	}
	return p.Emit(ctx, run.TenantID, event, data)
}
