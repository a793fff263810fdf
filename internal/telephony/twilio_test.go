package telephony

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/microdev1/debt-collection-agent/internal/call"
)

func testGateway() *Gateway {
	return NewGateway(Config{
		AccountSID:    "AC-test",
		AuthToken:     "token",
		FromNumber:    "+15550100",
		PublicBaseURL: "https://example.com",
	})
}

func TestGateway_Configured(t *testing.T) {
	if !testGateway().Configured() {
		t.Fatal("fully configured gateway reports unconfigured")
	}
	if NewGateway(Config{}).Configured() {
		t.Fatal("empty gateway reports configured")
	}
}

func TestGateway_DialRequiresConfig(t *testing.T) {
	g := NewGateway(Config{})
	if _, err := g.Dial(context.Background(), "call-1", call.Debtor{Phone: "+15550142"}); err == nil {
		t.Fatal("dial succeeded without credentials")
	}
}

func TestGateway_AdapterRegistry(t *testing.T) {
	g := testGateway()
	a := newAdapter(g, "call-1", call.Debtor{})
	g.active["call-1"] = a

	got, ok := g.Adapter("call-1")
	if !ok || got != a {
		t.Fatal("registered adapter not found")
	}
	g.Release("call-1")
	if _, ok := g.Adapter("call-1"); ok {
		t.Fatal("released adapter still found")
	}
}

// TestAdapter_TurnRoundTrip walks one full webhook turn: Twilio polls, the
// machine speaks and gathers, Twilio reports the speech result, the machine
// hangs up.
func TestAdapter_TurnRoundTrip(t *testing.T) {
	a := newAdapter(testGateway(), "call-1", call.Debtor{Phone: "+15550142"})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	waitPendingPoll := func() {
		t.Helper()
		deadline := time.Now().Add(time.Second)
		for len(a.polls) == 0 {
			if time.Now().After(deadline) {
				t.Fatal("poll never became pending")
			}
			time.Sleep(time.Millisecond)
		}
	}

	firstXML := make(chan string, 1)
	go func() {
		xml, err := a.HandlePoll(ctx, map[string]string{"CallSid": "CA123"})
		if err != nil {
			t.Errorf("first poll: %v", err)
		}
		firstXML <- xml
	}()
	waitPendingPoll()

	if err := a.Speak(ctx, "hello there", nil); err != nil {
		t.Fatal(err)
	}

	secondXML := make(chan string, 1)
	go func() {
		xml, err := a.HandlePoll(ctx, map[string]string{"SpeechResult": "yes I can pay"})
		if err != nil {
			t.Errorf("second poll: %v", err)
		}
		secondXML <- xml
	}()

	resp, err := a.AwaitResponse(ctx, 2*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Kind != call.ResponseUtterance || resp.Text != "yes I can pay" {
		t.Fatalf("response = %+v", resp)
	}

	xml := <-firstXML
	if !strings.Contains(xml, "hello there") {
		t.Fatalf("first poll twiml missing the spoken line: %s", xml)
	}
	if !strings.Contains(xml, "Gather") {
		t.Fatalf("first poll twiml has no gather: %s", xml)
	}
	if !strings.Contains(xml, "/twilio/turn/call-1") {
		t.Fatalf("gather action not pointing back at the turn webhook: %s", xml)
	}

	if err := a.EndCall(ctx); err != nil {
		t.Fatal(err)
	}
	if xml := <-secondXML; !strings.Contains(xml, "Hangup") {
		t.Fatalf("final twiml has no hangup: %s", xml)
	}
}

func TestAdapter_VoicemailSignal(t *testing.T) {
	a := newAdapter(testGateway(), "call-1", call.Debtor{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = a.HandlePoll(ctx, map[string]string{"AnsweredBy": "machine_start"})
	}()

	select {
	case r := <-a.results:
		if r.Kind != call.ResponseVoicemail {
			t.Fatalf("response = %+v, want voicemail", r)
		}
	case <-time.After(time.Second):
		t.Fatal("voicemail signal not delivered")
	}
	cancel()
	<-done
}

func TestAdapter_GatherExpiryIsTimeout(t *testing.T) {
	a := newAdapter(testGateway(), "call-1", call.Debtor{})
	a.awaiting = true
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		defer close(done)
		// empty params: the gather expired with no speech
		_, _ = a.HandlePoll(ctx, map[string]string{"CallSid": "CA123"})
	}()

	select {
	case r := <-a.results:
		if r.Kind != call.ResponseTimeout {
			t.Fatalf("response = %+v, want timeout", r)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout signal not delivered")
	}
	cancel()
	<-done

	// without a served gather, empty params deliver nothing
	a2 := newAdapter(testGateway(), "call-2", call.Debtor{})
	ctx2, cancel2 := context.WithCancel(context.Background())
	done2 := make(chan struct{})
	go func() {
		defer close(done2)
		_, _ = a2.HandlePoll(ctx2, map[string]string{"CallSid": "CA456"})
	}()
	select {
	case r := <-a2.results:
		t.Fatalf("unexpected response %+v on the first poll", r)
	case <-time.After(100 * time.Millisecond):
	}
	cancel2()
	<-done2
}

func TestAdapter_HandleStatus(t *testing.T) {
	a := newAdapter(testGateway(), "call-1", call.Debtor{})

	a.HandleStatus(map[string]string{"CallStatus": "in-progress"})
	select {
	case r := <-a.results:
		t.Fatalf("unexpected response %+v for in-progress", r)
	default:
	}

	a.HandleStatus(map[string]string{"CallStatus": "completed"})
	select {
	case r := <-a.results:
		if r.Kind != call.ResponseHangup {
			t.Fatalf("response = %+v, want hangup", r)
		}
	default:
		t.Fatal("completed status not delivered as hangup")
	}
}

func TestAdapter_SpeakAfterCloseFails(t *testing.T) {
	a := newAdapter(testGateway(), "call-1", call.Debtor{})
	a.closed = true
	if err := a.Speak(context.Background(), "late line", nil); err == nil {
		t.Fatal("speak accepted after close")
	}
}

func TestAdapter_TransferRequiresNumber(t *testing.T) {
	a := newAdapter(testGateway(), "call-1", call.Debtor{})
	if err := a.TransferToHuman(context.Background()); err == nil {
		t.Fatal("transfer succeeded without a transfer number")
	}
}
