// Package telephony bridges the state machine's abstract turn primitives to
// Twilio's webhook-driven call model. Twilio polls us for TwiML; the adapter
// queues the machine's lines and hands back speech results, so the machine
// stays synchronous and never sees HTTP.
package telephony

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
	"github.com/twilio/twilio-go/twiml"

	"github.com/microdev1/debt-collection-agent/internal/call"
)

// Config carries the Twilio account and routing settings.
type Config struct {
	AccountSID string
	AuthToken  string
	FromNumber string
	// PublicBaseURL is where Twilio reaches our webhooks, e.g. https://host.
	PublicBaseURL string
}

// Gateway owns the Twilio REST client and the set of in-flight adapters,
// keyed by callId.
type Gateway struct {
	cfg    Config
	client *twilio.RestClient

	mu     sync.Mutex
	active map[string]*Adapter
}

func NewGateway(cfg Config) *Gateway {
	return &Gateway{
		cfg: cfg,
		client: twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: cfg.AccountSID,
			Password: cfg.AuthToken,
		}),
		active: make(map[string]*Adapter),
	}
}

// Configured reports whether outbound dialing is possible.
func (g *Gateway) Configured() bool {
	return g.cfg.AccountSID != "" && g.cfg.AuthToken != "" && g.cfg.FromNumber != "" && g.cfg.PublicBaseURL != ""
}

// Dial places the outbound call for callID and returns its adapter. Answering
// machine detection is enabled so voicemail surfaces as a first-class signal.
func (g *Gateway) Dial(ctx context.Context, callID string, d call.Debtor) (*Adapter, error) {
	if !g.Configured() {
		return nil, fmt.Errorf("twilio gateway not configured")
	}
	a := newAdapter(g, callID, d)
	g.mu.Lock()
	g.active[callID] = a
	g.mu.Unlock()

	params := &twilioApi.CreateCallParams{}
	params.SetTo(d.Phone)
	params.SetFrom(g.cfg.FromNumber)
	params.SetUrl(g.cfg.PublicBaseURL + "/twilio/turn/" + callID)
	params.SetStatusCallback(g.cfg.PublicBaseURL + "/twilio/status/" + callID)
	params.SetStatusCallbackEvent([]string{"completed"})
	params.SetMachineDetection("Enable")

	resp, err := g.client.Api.CreateCall(params)
	if err != nil {
		g.Release(callID)
		return nil, fmt.Errorf("create call: %w", err)
	}
	if resp.Sid != nil {
		a.callSid = *resp.Sid
	}
	return a, nil
}

// Adapter returns the in-flight adapter for a callId, for webhook routing.
func (g *Gateway) Adapter(callID string) (*Adapter, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	a, ok := g.active[callID]
	return a, ok
}

// Release drops a finished call's adapter.
func (g *Gateway) Release(callID string) {
	g.mu.Lock()
	delete(g.active, callID)
	g.mu.Unlock()
}

// turnRequest is one pending webhook poll waiting for TwiML to serve.
type turnRequest struct {
	reply chan string
}

// Adapter implements call.SessionAdapter for one Twilio call leg.
type Adapter struct {
	gw      *Gateway
	callID  string
	debtor  call.Debtor
	callSid string

	mu       sync.Mutex
	queued   []twiml.Element // verbs accumulated by Speak, flushed on the next poll
	awaiting bool            // a served gather has not reported back yet
	polls    chan *turnRequest
	results  chan call.Response
	closed   bool
}

func newAdapter(gw *Gateway, callID string, d call.Debtor) *Adapter {
	return &Adapter{
		gw:      gw,
		callID:  callID,
		debtor:  d,
		polls:   make(chan *turnRequest, 1),
		results: make(chan call.Response, 4),
	}
}

// Speak queues the line; it is spoken on the next TwiML poll together with
// the gather for the debtor's reply.
func (a *Adapter) Speak(_ context.Context, text string, _ []string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return fmt.Errorf("call %s: speak after close", a.callID)
	}
	a.queued = append(a.queued, &twiml.VoiceSay{Message: text})
	return nil
}

// AwaitResponse flushes the queued lines into a <Gather input="speech"> and
// waits for the webhook to deliver the result. The gather timeout plus a
// network grace bounds the wait; expiry is a timeout response, not an error.
func (a *Adapter) AwaitResponse(ctx context.Context, timeout time.Duration) (call.Response, error) {
	if err := a.serveTurn(ctx, timeout, true); err != nil {
		return call.Response{}, err
	}
	select {
	case r := <-a.results:
		return r, nil
	case <-time.After(timeout + 5*time.Second):
		return call.Response{Kind: call.ResponseTimeout}, nil
	case <-ctx.Done():
		return call.Response{}, ctx.Err()
	}
}

// serveTurn hands the queued verbs to the next webhook poll.
func (a *Adapter) serveTurn(ctx context.Context, timeout time.Duration, gather bool) error {
	select {
	case poll := <-a.polls:
		poll.reply <- a.buildTwiML(timeout, gather)
		return nil
	case <-time.After(30 * time.Second):
		return fmt.Errorf("call %s: no twiml poll from twilio", a.callID)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Adapter) buildTwiML(timeout time.Duration, gather bool) string {
	a.mu.Lock()
	verbs := a.queued
	a.queued = nil
	a.mu.Unlock()

	if gather {
		secs := int(timeout / time.Second)
		if secs < 1 {
			secs = 1
		}
		a.mu.Lock()
		a.awaiting = true
		a.mu.Unlock()
		verbs = []twiml.Element{&twiml.VoiceGather{
			Input:         "speech",
			Action:        a.gw.cfg.PublicBaseURL + "/twilio/turn/" + a.callID,
			Method:        "POST",
			Timeout:       fmt.Sprintf("%d", secs),
			SpeechTimeout: "auto",
			InnerElements: verbs,
		}}
	}
	out, err := twiml.Voice(verbs)
	if err != nil {
		log.Printf("call %s: build twiml: %v", a.callID, err)
		return "<Response/>"
	}
	return out
}

// HandlePoll services one Twilio webhook request: report any speech result
// from the previous gather, then block briefly until the machine has the next
// turn ready.
func (a *Adapter) HandlePoll(ctx context.Context, params map[string]string) (string, error) {
	a.mu.Lock()
	wasAwaiting := a.awaiting
	a.awaiting = false
	a.mu.Unlock()

	if ab := params["AnsweredBy"]; ab == "machine_start" || ab == "machine_end_beep" || ab == "fax" {
		a.deliver(call.Response{Kind: call.ResponseVoicemail})
	} else if speech := params["SpeechResult"]; speech != "" {
		a.deliver(call.Response{Kind: call.ResponseUtterance, Text: speech})
	} else if wasAwaiting {
		// the gather expired without speech
		a.deliver(call.Response{Kind: call.ResponseTimeout})
	}

	req := &turnRequest{reply: make(chan string, 1)}
	select {
	case a.polls <- req:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	select {
	case xml := <-req.reply:
		return xml, nil
	case <-time.After(15 * time.Second):
		// machine not ready; pause and have Twilio poll again
		out, _ := twiml.Voice([]twiml.Element{
			&twiml.VoicePause{Length: "2"},
			&twiml.VoiceRedirect{Url: a.gw.cfg.PublicBaseURL + "/twilio/turn/" + a.callID, Method: "POST"},
		})
		return out, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// HandleStatus processes the status callback; a completed call while the
// machine is still running means the debtor hung up.
func (a *Adapter) HandleStatus(params map[string]string) {
	switch params["CallStatus"] {
	case "completed", "busy", "failed", "no-answer", "canceled":
		a.deliver(call.Response{Kind: call.ResponseHangup})
	}
}

func (a *Adapter) deliver(r call.Response) {
	select {
	case a.results <- r:
	default:
		log.Printf("call %s: dropping response, machine not consuming", a.callID)
	}
}

// TransferToHuman bridges the debtor to the configured transfer number.
func (a *Adapter) TransferToHuman(ctx context.Context) error {
	if a.debtor.TransferTo == "" {
		return fmt.Errorf("call %s: no transfer number on record", a.callID)
	}
	a.mu.Lock()
	a.queued = append(a.queued, &twiml.VoiceDial{Number: a.debtor.TransferTo})
	a.mu.Unlock()
	return a.serveTurn(ctx, 0, false)
}

// EndCall speaks any queued farewell and hangs up.
func (a *Adapter) EndCall(ctx context.Context) error {
	a.mu.Lock()
	a.closed = true
	a.queued = append(a.queued, &twiml.VoiceHangup{})
	a.mu.Unlock()
	if err := a.serveTurn(ctx, 0, false); err != nil {
		// no poll pending; finish the leg through the REST API instead
		return a.completeViaAPI()
	}
	return nil
}

func (a *Adapter) completeViaAPI() error {
	if a.callSid == "" {
		return nil
	}
	params := &twilioApi.UpdateCallParams{}
	params.SetStatus("completed")
	if _, err := a.gw.client.Api.UpdateCall(a.callSid, params); err != nil {
		return fmt.Errorf("call %s: complete via api: %w", a.callID, err)
	}
	return nil
}
