package api

import (
    "context"
    "encoding/json"
    "log"
    "sync"
    "time"

    redis "github.com/redis/go-redis/v9"
)

// RedisBroker implements EventBroker over Redis Pub/Sub so every API replica sees the
// events of runs solved elsewhere.
type RedisBroker struct {
    rdb *redis.Client
    mu  sync.Mutex
    ps  map[chan SSEEvent]*redis.PubSub
}

func NewRedisBroker(url string) (*RedisBroker, error) {
    opt, err := redis.ParseURL(url)
    if err != nil { return nil, err }
    rdb := redis.NewClient(opt)
    ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
    defer cancel()
    if err := rdb.Ping(ctx).Err(); err != nil {
        _ = rdb.Close()
        return nil, err
    }
    log.Printf("broker=redis addr=%s", opt.Addr)
    return &RedisBroker{rdb: rdb, ps: map[chan SSEEvent]*redis.PubSub{}}, nil
}

func (b *RedisBroker) Subscribe(runID string) chan SSEEvent {
    ch := make(chan SSEEvent, 16)
    ctx := context.Background()
    ps := b.rdb.Subscribe(ctx, b.chanName(runID))
    // initial consume to ensure subscription
    _, _ = ps.Receive(ctx)
    b.mu.Lock()
    b.ps[ch] = ps
    b.mu.Unlock()
    msgs := ps.Channel()
    go func() {
        defer close(ch)
        for msg := range msgs {
            var evt SSEEvent
            if err := json.Unmarshal([]byte(msg.Payload), &evt); err == nil {
                offerEvent(ch, evt)
            }
        }
    }()
    return ch
}

// Unsubscribe closes the Pub/Sub; the forwarding goroutine then closes ch.
func (b *RedisBroker) Unsubscribe(runID string, ch chan SSEEvent) {
    b.mu.Lock()
    ps := b.ps[ch]
    delete(b.ps, ch)
    b.mu.Unlock()
    if ps != nil { _ = ps.Close() }
}

func (b *RedisBroker) Publish(runID string, evt SSEEvent) {
    ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
    defer cancel()
    data, _ := json.Marshal(evt)
    if err := b.rdb.Publish(ctx, b.chanName(runID), data).Err(); err != nil {
        log.Printf("broker=redis publish run=%s err=%v", runID, err)
    }
}

func (b *RedisBroker) chanName(runID string) string { return "run:" + runID }
