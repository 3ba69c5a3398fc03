package api

import (
    "testing"
    "time"
)

func TestBrokerPublishSubscribe(t *testing.T) {
    b := NewBroker()
    rid := "r1"
    ch := b.Subscribe(rid)
    if n := b.Subscribers(rid); n != 1 { t.Fatalf("subscribers = %d", n) }

    evt := SSEEvent{Type: EventRunIncumbent, Data: map[string]any{"profit": 1}}
    b.Publish(rid, evt)
    b.Publish("other", SSEEvent{Type: "ignored"})

    select {
    case got := <-ch:
        if got.Type != evt.Type { t.Fatalf("got type %s, want %s", got.Type, evt.Type) }
        if got.Data["profit"].(int) != 1 { t.Fatalf("bad payload: %+v", got.Data) }
    case <-time.After(200 * time.Millisecond):
        t.Fatal("timeout waiting for event")
    }

    b.Unsubscribe(rid, ch)
    if _, ok := <-ch; ok { t.Fatal("channel should be closed after unsubscribe") }
    if n := b.Subscribers(rid); n != 0 { t.Fatalf("subscribers after unsubscribe = %d", n) }
    // a second unsubscribe must not close twice
    b.Unsubscribe(rid, ch)
}

func TestBrokerDropsWhenFull(t *testing.T) {
    b := NewBroker()
    ch := b.Subscribe("r")
    for i := 0; i < 20; i++ { b.Publish("r", SSEEvent{Type: EventRunIncumbent}) }
    if len(ch) != cap(ch) { t.Fatalf("buffer holds %d of %d", len(ch), cap(ch)) }
    b.Unsubscribe("r", ch)
}

func TestBrokerKeepsTerminalEventWhenFull(t *testing.T) {
    b := NewBroker()
    ch := b.Subscribe("r")
    for i := 0; i < 20; i++ { b.Publish("r", SSEEvent{Type: EventRunIncumbent}) }
    b.Publish("r", SSEEvent{Type: EventRunCompleted})
    if len(ch) != cap(ch) { t.Fatalf("buffer holds %d of %d", len(ch), cap(ch)) }
    var last SSEEvent
    for len(ch) > 0 { last = <-ch }
    if last.Type != EventRunCompleted { t.Fatalf("last event %q, want %q", last.Type, EventRunCompleted) }
    b.Unsubscribe("r", ch)
}
