// Package dispatch owns the lifecycle of concurrent call sessions: it starts
// calls on request, runs one machine per call on its own goroutine, honors
// operator aborts, and reports finished outcomes back to its caller.
package dispatch

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/microdev1/debt-collection-agent/internal/call"
	"github.com/microdev1/debt-collection-agent/internal/monitor"
	"github.com/microdev1/debt-collection-agent/internal/policy"
	"github.com/microdev1/debt-collection-agent/internal/store"
	"github.com/microdev1/debt-collection-agent/internal/transcript"
)

// AdapterFactory establishes the telephony leg for one call.
type AdapterFactory func(ctx context.Context, callID string, d call.Debtor) (call.SessionAdapter, error)

// Deps wires a Dispatcher. Store, Hub and OnFinished are optional.
type Deps struct {
	Policy        policy.Policy
	Defaults      call.Config
	TranscriptDir string
	NewAdapter    AdapterFactory
	Script        call.Script
	Classify      call.ClassifyFunc
	Store         *store.Store
	Hub           *monitor.Hub
	OnFinished    func(callID string, o call.Outcome)
}

// Snapshot is a race-free view of one session for status endpoints.
type Snapshot struct {
	CallID        string        `json:"call_id"`
	AccountNumber string        `json:"account_number"`
	State         call.State    `json:"state"`
	Turns         int           `json:"turns"`
	Outcome       *call.Outcome `json:"outcome,omitempty"`
	StartedAt     time.Time     `json:"started_at"`
}

type runningCall struct {
	cancel   context.CancelFunc
	done     chan struct{}
	mu       sync.Mutex
	snapshot Snapshot
}

// Dispatcher starts and tracks concurrent call sessions. Sessions share
// nothing mutable: each gets its own machine, adapter and recorder.
type Dispatcher struct {
	deps Deps

	mu      sync.Mutex
	running map[string]*runningCall
	wg      sync.WaitGroup
}

func New(deps Deps) (*Dispatcher, error) {
	if deps.NewAdapter == nil {
		return nil, fmt.Errorf("dispatch: adapter factory required")
	}
	if deps.Script == nil || deps.Classify == nil {
		return nil, fmt.Errorf("dispatch: script and classifier required")
	}
	if deps.TranscriptDir == "" {
		deps.TranscriptDir = "transcripts"
	}
	return &Dispatcher{deps: deps, running: make(map[string]*runningCall)}, nil
}

// StartCall begins one outbound call and returns its callId immediately; the
// conversation runs on its own goroutine.
func (d *Dispatcher) StartCall(debtor call.Debtor, cfg call.Config) (string, error) {
	if debtor.Phone == "" || debtor.AccountNumber == "" {
		return "", fmt.Errorf("dispatch: debtor phone and account number required")
	}
	cfg = d.effectiveConfig(cfg)
	callID := uuid.NewString()
	sess := call.NewSession(callID, debtor)

	rec, err := transcript.NewFileRecorder(d.deps.TranscriptDir, callID)
	if err != nil {
		return "", err
	}
	recorder := call.Recorder(rec)
	if d.deps.Hub != nil {
		recorder = transcript.Multi(rec, d.deps.Hub.SinkFor(callID))
	}

	ctx, cancel := context.WithCancel(context.Background())
	rc := &runningCall{
		cancel: cancel,
		done:   make(chan struct{}),
		snapshot: Snapshot{
			CallID:        callID,
			AccountNumber: debtor.AccountNumber,
			State:         sess.State,
			StartedAt:     sess.StartedAt,
		},
	}
	d.mu.Lock()
	d.running[callID] = rc
	d.mu.Unlock()

	d.wg.Add(1)
	go d.run(ctx, cancel, rc, sess, cfg, recorder)
	return callID, nil
}

func (d *Dispatcher) run(ctx context.Context, cancel context.CancelFunc, rc *runningCall, sess *call.Session, cfg call.Config, recorder call.Recorder) {
	defer d.wg.Done()
	defer cancel()
	callID := sess.ID

	var outcome call.Outcome
	adapter, err := d.deps.NewAdapter(ctx, callID, sess.Debtor)
	if err != nil {
		log.Printf("call %s: dial failed: %v", callID, err)
		outcome = d.failBeforeRun(sess, recorder, fmt.Sprintf("dial failed: %v", err))
		rc.update(sess)
	} else {
		m := call.NewMachine(sess, cfg, d.deps.Policy, adapter, recorder, d.deps.Script, d.deps.Classify)
		m.OnTransition(rc.update)
		outcome = m.Run(ctx)
	}

	if d.deps.Store != nil {
		if err := d.deps.Store.SaveFinished(sess); err != nil {
			log.Printf("call %s: outcome index: %v", callID, err)
		}
	}
	d.mu.Lock()
	delete(d.running, callID)
	d.mu.Unlock()
	close(rc.done)
	if d.deps.OnFinished != nil {
		d.deps.OnFinished(callID, outcome)
	}
}

// effectiveConfig fills request-level zeros from the dispatcher defaults;
// anything still unset falls to the call package's own defaults.
func (d *Dispatcher) effectiveConfig(cfg call.Config) call.Config {
	def := d.deps.Defaults
	if cfg.MaxCounterOffers == 0 {
		cfg.MaxCounterOffers = def.MaxCounterOffers
	}
	if cfg.MaxClarifications == 0 {
		cfg.MaxClarifications = def.MaxClarifications
	}
	if cfg.MaxSilenceRetries == 0 {
		cfg.MaxSilenceRetries = def.MaxSilenceRetries
	}
	if cfg.SilenceTimeout == 0 {
		cfg.SilenceTimeout = def.SilenceTimeout
	}
	return cfg
}

// failBeforeRun closes a session whose telephony leg never came up, keeping
// the no-call-without-outcome guarantee.
func (d *Dispatcher) failBeforeRun(sess *call.Session, recorder call.Recorder, reason string) call.Outcome {
	o := call.Outcome{Kind: call.OutcomeErrorAborted, Reason: reason, EndedAt: time.Now()}
	sess.State = call.StateError
	sess.Outcome = &o
	if err := recorder.Finalize(o); err != nil {
		log.Printf("call %s: finalize: %v", sess.ID, err)
	}
	sess.State = call.StateClosed
	return o
}

// Abort force-terminates a running call; the machine closes it as
// error-aborted and the transcript is finalized exactly once.
func (d *Dispatcher) Abort(callID string) error {
	d.mu.Lock()
	rc, ok := d.running[callID]
	d.mu.Unlock()
	if !ok {
		return fmt.Errorf("dispatch: call %s not running", callID)
	}
	rc.cancel()
	return nil
}

// Status returns the live snapshot of a running call.
func (d *Dispatcher) Status(callID string) (Snapshot, bool) {
	d.mu.Lock()
	rc, ok := d.running[callID]
	d.mu.Unlock()
	if !ok {
		return Snapshot{}, false
	}
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.snapshot, true
}

// Active returns the number of calls currently in flight.
func (d *Dispatcher) Active() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.running)
}

// Shutdown aborts every running call and waits for their transcripts to
// finalize, or for the context to expire.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	for _, rc := range d.running {
		rc.cancel()
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() { d.wg.Wait(); close(done) }()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (rc *runningCall) update(sess *call.Session) {
	rc.mu.Lock()
	rc.snapshot.State = sess.State
	rc.snapshot.Turns = len(sess.Transcript)
	if sess.Outcome != nil {
		o := *sess.Outcome
		rc.snapshot.Outcome = &o
	}
	rc.mu.Unlock()
}
