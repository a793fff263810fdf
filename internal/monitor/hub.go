// Package monitor streams call transcripts to operator websockets as the
// turns happen. It is a read-only tap: the durable record lives in the
// transcript files, and a slow or absent watcher never affects a call.
package monitor

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/microdev1/debt-collection-agent/internal/call"
)

// event is one frame on the live feed.
type event struct {
	Type    string        `json:"type"` // "turn" or "outcome"
	CallID  string        `json:"call_id"`
	Turn    *call.Turn    `json:"turn,omitempty"`
	Outcome *call.Outcome `json:"outcome,omitempty"`
}

// Hub fans call events out to subscribed websockets, keyed by callId.
type Hub struct {
	upgrader websocket.Upgrader

	mu   sync.Mutex
	subs map[string]map[*websocket.Conn]bool
}

func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		subs: make(map[string]map[*websocket.Conn]bool),
	}
}

// Serve upgrades the request and subscribes it to callID until the peer
// disconnects.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, callID string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	h.mu.Lock()
	if h.subs[callID] == nil {
		h.subs[callID] = make(map[*websocket.Conn]bool)
	}
	h.subs[callID][conn] = true
	h.mu.Unlock()

	// drain reads so pings/closes are processed; unsubscribe on error
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.drop(callID, conn)
				return
			}
		}
	}()
	return nil
}

func (h *Hub) drop(callID string, conn *websocket.Conn) {
	h.mu.Lock()
	if set, ok := h.subs[callID]; ok {
		delete(set, conn)
		if len(set) == 0 {
			delete(h.subs, callID)
		}
	}
	h.mu.Unlock()
	_ = conn.Close()
}

func (h *Hub) broadcast(callID string, ev event) {
	b, err := json.Marshal(ev)
	if err != nil {
		return
	}
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.subs[callID]))
	for c := range h.subs[callID] {
		conns = append(conns, c)
	}
	h.mu.Unlock()
	for _, c := range conns {
		if err := c.WriteMessage(websocket.TextMessage, b); err != nil {
			log.Printf("monitor: write to watcher of %s failed: %v", callID, err)
			h.drop(callID, c)
		}
	}
}

// Sink adapts the hub to the call.Recorder interface for one call, so it can
// ride alongside the file recorder in a transcript.Multi.
type Sink struct {
	hub    *Hub
	callID string
}

// SinkFor returns the recorder-shaped tap for callID.
func (h *Hub) SinkFor(callID string) *Sink {
	return &Sink{hub: h, callID: callID}
}

func (s *Sink) Append(t call.Turn) error {
	s.hub.broadcast(s.callID, event{Type: "turn", CallID: s.callID, Turn: &t})
	return nil
}

func (s *Sink) Finalize(o call.Outcome) error {
	s.hub.broadcast(s.callID, event{Type: "outcome", CallID: s.callID, Outcome: &o})
	s.hub.mu.Lock()
	conns := s.hub.subs[s.callID]
	delete(s.hub.subs, s.callID)
	s.hub.mu.Unlock()
	for c := range conns {
		_ = c.Close()
	}
	return nil
}
