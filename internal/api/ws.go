package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Run events over WebSocket. Clients send {"type":"subscribe","id":"s1","payload":{"runId":"..."}}
// and receive "next" messages carrying the event, then "complete" when the run finishes.

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type wsSubscribe struct {
	RunID string `json:"runId"`
}

// RunsWSHandler handles /v1/runs/ws
func (s *Server) RunsWSHandler(w http.ResponseWriter, r *http.Request) {
	p := s.getPrincipal(r)
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	type sub struct {
		runID string
		ch    chan SSEEvent
	}
	var (
		mu   sync.Mutex
		subs = map[string]sub{}
		wmu  sync.Mutex
	)
	// gorilla connections allow one concurrent writer
	write := func(v any) error {
		wmu.Lock()
		defer wmu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		return conn.WriteJSON(v)
	}
	fail := func(id, msg string) {
		b, _ := json.Marshal(map[string]string{"message": msg})
		_ = write(wsMessage{Type: "error", ID: id, Payload: b})
		_ = write(wsMessage{Type: "complete", ID: id})
	}

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error { _ = conn.SetReadDeadline(time.Now().Add(60 * time.Second)); return nil })

	done := make(chan struct{})
	defer close(done)

	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		switch msg.Type {
		case "connection_init":
			_ = write(wsMessage{Type: "connection_ack"})
			go func() {
				ticker := time.NewTicker(20 * time.Second)
				defer ticker.Stop()
				for {
					select {
					case <-done:
						return
					case <-ticker.C:
						if err := write(wsMessage{Type: "ping"}); err != nil {
							return
						}
					}
				}
			}()
		case "ping":
			_ = write(wsMessage{Type: "pong"})
		case "subscribe":
			var pl wsSubscribe
			_ = json.Unmarshal(msg.Payload, &pl)
			if pl.RunID == "" {
				fail(msg.ID, "runId required")
				continue
			}
			// runs are tenant scoped
			if _, err := s.Store.GetRun(r.Context(), p.Tenant, pl.RunID); err != nil {
				fail(msg.ID, "run not found")
				continue
			}
			mu.Lock()
			if _, dup := subs[msg.ID]; dup {
				mu.Unlock()
				fail(msg.ID, "duplicate subscription id")
				continue
			}
			ch := s.Broker.Subscribe(pl.RunID)
			subs[msg.ID] = sub{runID: pl.RunID, ch: ch}
			mu.Unlock()
			go func(id string, c chan SSEEvent) {
				for evt := range c {
					payload, _ := json.Marshal(map[string]any{"type": evt.Type, "data": evt.Data})
					_ = write(wsMessage{Type: "next", ID: id, Payload: payload})
					if isTerminalEvent(evt.Type) {
						break
					}
				}
				_ = write(wsMessage{Type: "complete", ID: id})
			}(msg.ID, ch)
		case "complete":
			mu.Lock()
			if s0, ok := subs[msg.ID]; ok {
				s.Broker.Unsubscribe(s0.runID, s0.ch)
				delete(subs, msg.ID)
			}
			mu.Unlock()
		}
	}
	mu.Lock()
	for id, s0 := range subs {
		s.Broker.Unsubscribe(s0.runID, s0.ch)
		delete(subs, id)
	}
	mu.Unlock()
}
