package monitor

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/microdev1/debt-collection-agent/internal/call"
)

func dialHub(t *testing.T, h *Hub, callID string) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := h.Serve(w, r, callID); err != nil {
			t.Errorf("serve: %v", err)
		}
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) event {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, b, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	var ev event
	if err := json.Unmarshal(b, &ev); err != nil {
		t.Fatal(err)
	}
	return ev
}

func TestHub_StreamsTurnsThenOutcome(t *testing.T) {
	h := NewHub()
	conn := dialHub(t, h, "call-1")
	sink := h.SinkFor("call-1")

	turn := call.Turn{Speaker: call.SpeakerAgent, Text: "hello", Timestamp: time.Now(), State: call.StateGreeting}
	if err := sink.Append(turn); err != nil {
		t.Fatal(err)
	}
	ev := readEvent(t, conn)
	if ev.Type != "turn" || ev.Turn == nil || ev.Turn.Text != "hello" {
		t.Fatalf("event = %+v", ev)
	}
	if ev.CallID != "call-1" {
		t.Fatalf("call id = %s", ev.CallID)
	}

	if err := sink.Finalize(call.Outcome{Kind: call.OutcomeCeased, EndedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}
	ev = readEvent(t, conn)
	if ev.Type != "outcome" || ev.Outcome == nil || ev.Outcome.Kind != call.OutcomeCeased {
		t.Fatalf("event = %+v", ev)
	}

	// the hub closes watchers once the call is finalized
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("connection still open after finalize")
	}
}

func TestHub_WatchersAreScopedToCallID(t *testing.T) {
	h := NewHub()
	conn := dialHub(t, h, "call-1")

	if err := h.SinkFor("other-call").Append(call.Turn{Text: "not for you", Timestamp: time.Now()}); err != nil {
		t.Fatal(err)
	}
	if err := h.SinkFor("call-1").Append(call.Turn{Text: "for you", Timestamp: time.Now()}); err != nil {
		t.Fatal(err)
	}

	ev := readEvent(t, conn)
	if ev.Turn == nil || ev.Turn.Text != "for you" {
		t.Fatalf("watcher got the wrong call's event: %+v", ev)
	}
}

func TestSink_NoWatchersIsFine(t *testing.T) {
	h := NewHub()
	sink := h.SinkFor("call-1")
	if err := sink.Append(call.Turn{Text: "x", Timestamp: time.Now()}); err != nil {
		t.Fatal(err)
	}
	if err := sink.Finalize(call.Outcome{Kind: call.OutcomeNoAnswer}); err != nil {
		t.Fatal(err)
	}
}
