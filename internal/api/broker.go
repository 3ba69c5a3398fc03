package api

import (
    "sync"
)

// SSEEvent is one run event as streamed to SSE and websocket clients.
type SSEEvent struct {
    Type string
    Data map[string]any
}

// Run event types.
const (
    EventRunStarted   = "run.started"
    EventRunIncumbent = "run.incumbent"
    EventRunCompleted = "run.completed"
    EventRunFailed    = "run.failed"
)

func isTerminalEvent(typ string) bool { return typ == EventRunCompleted || typ == EventRunFailed }

// offerEvent sends without blocking. A full buffer drops progress events; a terminal
// event evicts the oldest buffered one instead so subscribers always see the end of a run.
func offerEvent(ch chan SSEEvent, evt SSEEvent) {
    select {
    case ch <- evt:
        return
    default:
    }
    if !isTerminalEvent(evt.Type) { return }
    select { case <-ch: default: }
    select { case ch <- evt: default: }
}

type EventBroker interface {
    Subscribe(runID string) chan SSEEvent
    Unsubscribe(runID string, ch chan SSEEvent)
    Publish(runID string, evt SSEEvent)
}

// Broker fans run events out to in-process subscribers.
type Broker struct {
    mu      sync.Mutex
    subs    map[string]map[chan SSEEvent]struct{} // runId -> set of channels
}

func NewBroker() *Broker {
    return &Broker{subs: map[string]map[chan SSEEvent]struct{}{}}
}

func (b *Broker) Subscribe(runID string) chan SSEEvent {
    ch := make(chan SSEEvent, 8)
    b.mu.Lock()
    if b.subs[runID] == nil { b.subs[runID] = map[chan SSEEvent]struct{}{} }
    b.subs[runID][ch] = struct{}{}
    b.mu.Unlock()
    return ch
}

func (b *Broker) Unsubscribe(runID string, ch chan SSEEvent) {
    b.mu.Lock()
    defer b.mu.Unlock()
    m := b.subs[runID]
    if _, ok := m[ch]; !ok { return }
    delete(m, ch)
    if len(m) == 0 { delete(b.subs, runID) }
    close(ch)
}

// Publish hands evt to every subscriber of runID; see offerEvent for full buffers.
func (b *Broker) Publish(runID string, evt SSEEvent) {
    b.mu.Lock()
    for ch := range b.subs[runID] { offerEvent(ch, evt) }
    b.mu.Unlock()
}

// Subscribers reports how many channels listen on runID.
func (b *Broker) Subscribers(runID string) int {
    b.mu.Lock()
    defer b.mu.Unlock()
    return len(b.subs[runID])
}
