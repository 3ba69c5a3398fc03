// Package main runs a demo WebSocket client that follows a solve run.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

const demoInstance = `n 6
m 2
tmax 20
0 0 0
1 2 5
2 4 10
4 1 8
5 -2 6
6 0 0
`

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	// Start an async ALNS run on a small inline instance
	reqBody, _ := json.Marshal(map[string]any{
		"solver":       "alns",
		"instance":     map[string]any{"name": "ws-demo", "text": demoInstance},
		"timeBudgetMs": 3000,
		"async":        true,
	})
	req, _ := http.NewRequest(http.MethodPost, base+"/v1/solve", bytes.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-Id", "t_demo")
	req.Header.Set("X-Role", "admin")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	var run struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&run); err != nil {
		log.Fatal(err)
	}
	if run.ID == "" {
		log.Fatalf("no run returned (status %d)", resp.StatusCode)
	}
	log.Printf("Run ID: %s", run.ID)

	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/runs/ws"}
	hdr := http.Header{}
	hdr.Set("X-Tenant-Id", "t_demo")
	hdr.Set("X-Role", "admin")
	c, _, err := websocket.DefaultDialer.Dial(u.String(), hdr)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	if err := c.WriteJSON(wsMessage{Type: "connection_init"}); err != nil {
		log.Fatal(err)
	}
	pl, _ := json.Marshal(map[string]any{"runId": run.ID})
	if err := c.WriteJSON(wsMessage{Type: "subscribe", ID: "1", Payload: pl}); err != nil {
		log.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var m wsMessage
			if err := c.ReadJSON(&m); err != nil {
				log.Printf("read: %v", err)
				return
			}
			log.Printf("WS <- %s: %s", m.Type, string(m.Payload))
			if m.Type == "complete" {
				return
			}
		}
	}()

	select {
	case <-time.After(10 * time.Second):
	case <-done:
	}
}
