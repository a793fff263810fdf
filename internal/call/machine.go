package call

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/microdev1/debt-collection-agent/internal/compliance"
	"github.com/microdev1/debt-collection-agent/internal/intent"
	"github.com/microdev1/debt-collection-agent/internal/policy"
)

// negotiationExits maps classified intents to their terminal exit state.
// Intents absent from the table keep the conversation in Negotiation and are
// handled by the bounded counter-offer / clarification / silence loops.
var negotiationExits = map[intent.Intent]State{
	intent.AffirmPayment:      StatePaymentAgreed,
	intent.DisputeDebt:        StateDisputed,
	intent.ClaimHardship:      StateHardship,
	intent.RequestHuman:       StateTransfer,
	intent.CeaseCommunication: StateCeased,
}

type offerKind int

const (
	offerFull offerKind = iota
	offerPlan
	offerSettlement
)

// offer is what is currently on the table; it decides which outcome an
// affirmation produces.
type offer struct {
	kind            offerKind
	plan            PlanTerms
	settlementCents int64
	settlementPct   int
}

type stepFunc func(context.Context) State

// Machine drives one session from Init to Closed. It is the session's single
// writer: one machine, one goroutine, one call.
type Machine struct {
	session  *Session
	cfg      Config
	pol      policy.Policy
	adapter  SessionAdapter
	recorder Recorder
	script   Script
	classify ClassifyFunc
	guard    GuardFunc
	now      func() time.Time

	// onTransition, when set, runs after every state change with the session
	// already consistent (outcome assigned together with terminal states).
	onTransition func(*Session)

	steps map[State]stepFunc

	lastTs         time.Time
	lastAgentLine  string
	lastDebtorLine string
	afterOffer     bool
	currentOffer   offer
	counterOffers  int
	clarifications int
	silences       int
	failures       int
	// pending overrides the default outcome for the next terminal state.
	pending *Outcome
}

// NewMachine wires a machine to its collaborators. The guard defaults to
// compliance.Evaluate and the clock to time.Now.
func NewMachine(sess *Session, cfg Config, pol policy.Policy, adapter SessionAdapter, rec Recorder, script Script, classify ClassifyFunc) *Machine {
	m := &Machine{
		session:  sess,
		cfg:      cfg.WithDefaults(),
		pol:      pol,
		adapter:  adapter,
		recorder: rec,
		script:   script,
		classify: classify,
		now:      time.Now,
	}
	m.guard = func(c compliance.Context) (compliance.Decision, error) {
		return compliance.Evaluate(c, pol), nil
	}
	m.steps = map[State]stepFunc{
		StateGreeting:     m.stepGreeting,
		StateVerification: m.stepVerification,
		StateDisclosure:   m.stepDisclosure,
		StateNegotiation:  m.stepNegotiation,
	}
	return m
}

// Session exposes the machine's session for status snapshots and tests.
func (m *Machine) Session() *Session { return m.session }

// OnTransition registers a hook that runs after every state change, with the
// session consistent (terminal states already carry their outcome). Must be
// set before Run.
func (m *Machine) OnTransition(fn func(*Session)) { m.onTransition = fn }

// Run drives the call to completion and returns the terminal outcome. The
// context belongs to the dispatcher: cancellation is an operator abort and
// closes the call as error-aborted.
func (m *Machine) Run(ctx context.Context) Outcome {
	m.setState(StateGreeting)
	for m.session.Outcome == nil {
		if ctx.Err() != nil {
			m.pending = &Outcome{Kind: OutcomeErrorAborted, Reason: "dispatcher abort"}
			m.enter(ctx, StateError)
			break
		}
		step, ok := m.steps[m.session.State]
		if !ok {
			m.pending = &Outcome{Kind: OutcomeErrorAborted, Reason: fmt.Sprintf("no handler for state %s", m.session.State)}
			m.enter(ctx, StateError)
			break
		}
		m.enter(ctx, step(ctx))
	}
	return *m.session.Outcome
}

// enter performs one transition. Conversational states just switch; terminal
// states (or a direct jump to Closed with a pending outcome) create the
// outcome, run the closing effects and finalize the transcript.
func (m *Machine) enter(ctx context.Context, next State) {
	if !next.Terminal() && next != StateClosed {
		m.setState(next)
		return
	}
	o := m.buildOutcome(next)
	m.session.State = next
	m.session.Outcome = &o
	if m.onTransition != nil {
		m.onTransition(m.session)
	}
	m.closeOut(ctx)
	m.setState(StateClosed)
	log.Printf("call %s: closed account=%s outcome=%s reason=%q",
		m.session.ID, m.session.Debtor.AccountNumber, o.Kind, o.Reason)
}

func (m *Machine) setState(s State) {
	m.session.State = s
	if m.onTransition != nil {
		m.onTransition(m.session)
	}
}

func (m *Machine) buildOutcome(next State) Outcome {
	if m.pending != nil {
		o := *m.pending
		m.pending = nil
		o.EndedAt = m.now()
		return o
	}
	o := Outcome{EndedAt: m.now()}
	switch next {
	case StatePaymentAgreed:
		switch m.currentOffer.kind {
		case offerPlan:
			plan := m.currentOffer.plan
			o.Kind = OutcomePaymentPlanAgreed
			o.Plan = &plan
		case offerSettlement:
			o.Kind = OutcomePaymentPlanAgreed
			o.SettlementCents = m.currentOffer.settlementCents
			o.Reason = fmt.Sprintf("settlement at %d%%", m.currentOffer.settlementPct)
		default:
			o.Kind = OutcomePaidInFullPromised
		}
	case StateDisputed:
		o.Kind = OutcomeDisputed
		o.Reason = m.lastDebtorLine
	case StateHardship:
		o.Kind = OutcomeHardshipClaimed
		o.HardshipNote = m.lastDebtorLine
	case StateTransfer:
		o.Kind = OutcomeTransferred
	case StateCeased:
		o.Kind = OutcomeCeased
		o.Reason = "debtor requested communication to cease"
	case StateNoResponse:
		o.Kind = OutcomeNoAnswer
		o.Reason = "no response from debtor"
	default:
		o.Kind = OutcomeErrorAborted
	}
	return o
}

// closeOut runs terminal side effects: closing line where owed, transfer or
// hangup, then the single Finalize. Errors here are logged, never retried;
// the call is already over.
func (m *Machine) closeOut(ctx context.Context) {
	o := m.session.Outcome
	switch o.Kind {
	case OutcomeTransferred:
		if line := m.script.TransferNotice(); line != "" {
			if err := m.speak(ctx, line, nil); err != nil {
				log.Printf("call %s: transfer notice: %v", m.session.ID, err)
			}
		}
		if err := m.adapter.TransferToHuman(ctx); err != nil {
			log.Printf("call %s: transfer failed: %v", m.session.ID, err)
			o.Kind = OutcomeErrorAborted
			o.Reason = "transfer failed: " + err.Error()
			_ = m.adapter.EndCall(ctx)
		}
	case OutcomePaidInFullPromised, OutcomePaymentPlanAgreed, OutcomeDisputed, OutcomeHardshipClaimed:
		if line := m.script.Closing(o.Kind); line != "" {
			if err := m.speak(ctx, line, nil); err != nil {
				log.Printf("call %s: closing line: %v", m.session.ID, err)
			}
		}
		_ = m.adapter.EndCall(ctx)
	default:
		// ceased, no-answer, refused, error-aborted: end without further speech
		_ = m.adapter.EndCall(ctx)
	}
	if err := m.recorder.Finalize(*o); err != nil {
		log.Printf("call %s: finalize: %v", m.session.ID, err)
	}
}

// ---- per-state handlers ----

func (m *Machine) stepGreeting(ctx context.Context) State {
	if _, blocked := m.checkGuard(); blocked != "" {
		return blocked
	}
	if err := m.speak(ctx, m.script.Greeting(m.session.Debtor), nil); err != nil {
		return m.abortOn(err)
	}
	resp, err := m.listen(ctx)
	if err != nil {
		return m.abortOn(err)
	}
	switch resp.Kind {
	case ResponseVoicemail:
		m.pending = &Outcome{Kind: OutcomeNoAnswer, Reason: "voicemail detected"}
		return StateNoResponse
	case ResponseHangup:
		m.pending = &Outcome{Kind: OutcomeRefused, Reason: "debtor hung up"}
		return StateClosed
	case ResponseTimeout:
		// a silent pickup still gets a verification attempt
		return StateVerification
	}
	it, err := m.classify(resp.Text, m.intentContext())
	if err != nil {
		return m.failSoft("intent classifier", err)
	}
	m.failures = 0
	switch it {
	case intent.CeaseCommunication:
		return StateCeased
	case intent.RequestHuman:
		return StateTransfer
	}
	return StateVerification
}

func (m *Machine) stepVerification(ctx context.Context) State {
	for {
		if err := m.speak(ctx, m.script.IdentityQuestion(m.session.Debtor), nil); err != nil {
			return m.abortOn(err)
		}
		resp, err := m.listen(ctx)
		if err != nil {
			return m.abortOn(err)
		}
		switch resp.Kind {
		case ResponseVoicemail:
			m.pending = &Outcome{Kind: OutcomeNoAnswer, Reason: "voicemail detected"}
			return StateNoResponse
		case ResponseHangup:
			m.pending = &Outcome{Kind: OutcomeRefused, Reason: "debtor hung up"}
			return StateClosed
		case ResponseTimeout:
			m.silences++
			if m.silences > m.cfg.MaxSilenceRetries {
				m.pending = &Outcome{Kind: OutcomeNoAnswer, Reason: "no response during verification"}
				return StateNoResponse
			}
			continue
		}
		m.silences = 0
		it, err := m.classify(resp.Text, m.intentContext())
		if err != nil {
			return m.failSoft("intent classifier", err)
		}
		m.failures = 0
		switch it {
		case intent.CeaseCommunication:
			return StateCeased
		case intent.RequestHuman:
			return StateTransfer
		}
		if verifiesIdentity(resp.Text, m.session.Debtor) {
			return StateDisclosure
		}
		if err := m.speak(ctx, m.script.VerificationFailed(), nil); err != nil {
			return m.abortOn(err)
		}
		m.pending = &Outcome{Kind: OutcomeRefused, Reason: "identity not verified"}
		return StateClosed
	}
}

// stepDisclosure loops until the guard reports no missing disclosures. The
// guard is re-evaluated before every single disclosure turn.
func (m *Machine) stepDisclosure(ctx context.Context) State {
	for {
		dec, blocked := m.checkGuard()
		if blocked != "" {
			return blocked
		}
		if len(dec.RequiredDisclosures) == 0 {
			return StateNegotiation
		}
		id := dec.RequiredDisclosures[0]
		if err := m.speak(ctx, m.script.Disclosure(id), []string{id}); err != nil {
			return m.abortOn(err)
		}
	}
}

func (m *Machine) stepNegotiation(ctx context.Context) State {
	if _, blocked := m.checkGuard(); blocked != "" {
		return blocked
	}
	m.currentOffer = offer{kind: offerFull}
	if err := m.speak(ctx, m.script.PresentDebt(m.session.Debtor), nil); err != nil {
		return m.abortOn(err)
	}
	m.afterOffer = true

	for {
		resp, err := m.listen(ctx)
		if err != nil {
			return m.abortOn(err)
		}
		switch resp.Kind {
		case ResponseVoicemail:
			m.pending = &Outcome{Kind: OutcomeNoAnswer, Reason: "voicemail detected"}
			return StateNoResponse
		case ResponseHangup:
			m.pending = &Outcome{Kind: OutcomeRefused, Reason: "debtor hung up"}
			return StateClosed
		case ResponseTimeout:
			if next, stop := m.handleSilence(ctx); stop {
				return next
			}
			continue
		}
		m.silences = 0

		it, err := m.classify(resp.Text, m.intentContext())
		if err != nil {
			return m.failSoft("intent classifier", err)
		}
		m.failures = 0

		if next, ok := negotiationExits[it]; ok {
			return next
		}
		switch it {
		case intent.ProposeAlternativePlan:
			m.counterOffers++
			if m.counterOffers > m.cfg.MaxCounterOffers {
				return StateTransfer
			}
			if _, blocked := m.checkGuard(); blocked != "" {
				return blocked
			}
			next, line := m.nextOffer()
			m.currentOffer = next
			if err := m.speak(ctx, line, nil); err != nil {
				return m.abortOn(err)
			}
			m.afterOffer = true
		case intent.Silence:
			if next, stop := m.handleSilence(ctx); stop {
				return next
			}
		default: // ambiguous
			m.clarifications++
			if m.clarifications > m.cfg.MaxClarifications {
				return StateTransfer
			}
			if _, blocked := m.checkGuard(); blocked != "" {
				return blocked
			}
			if err := m.speak(ctx, m.script.Clarify(), nil); err != nil {
				return m.abortOn(err)
			}
		}
	}
}

// handleSilence bumps the silence budget; stop=true means the returned state
// ends the negotiation.
func (m *Machine) handleSilence(ctx context.Context) (State, bool) {
	m.silences++
	if m.silences > m.cfg.MaxSilenceRetries {
		m.pending = &Outcome{Kind: OutcomeNoAnswer, Reason: "debtor went silent"}
		return StateNoResponse, true
	}
	if _, blocked := m.checkGuard(); blocked != "" {
		return blocked, true
	}
	if err := m.speak(ctx, m.script.RepeatPrompt(), nil); err != nil {
		return m.abortOn(err), true
	}
	return "", false
}

// nextOffer walks the counter-offer ladder: six-month plan, twelve-month
// plan, then a settlement offer.
func (m *Machine) nextOffer() (offer, string) {
	d := m.session.Debtor
	switch m.counterOffers {
	case 1:
		p := PlanFor(d.AmountCents, 6)
		return offer{kind: offerPlan, plan: p}, m.script.OfferPlan(d, p)
	case 2:
		p := PlanFor(d.AmountCents, 12)
		return offer{kind: offerPlan, plan: p}, m.script.OfferPlan(d, p)
	default:
		const pct = 60
		amount := d.AmountCents * pct / 100
		return offer{kind: offerSettlement, settlementCents: amount, settlementPct: pct},
			m.script.OfferSettlement(d, amount, pct)
	}
}

// ---- shared plumbing ----

// checkGuard evaluates the guard before a prospective agent turn. A non-empty
// returned state forces that terminal transition: a prior cease request closes
// as ceased, everything else as error-aborted.
func (m *Machine) checkGuard() (compliance.Decision, State) {
	dec, err := m.guard(m.complianceContext())
	if err != nil {
		return dec, m.failSoft("compliance guard", err)
	}
	m.failures = 0
	if !dec.Allowed {
		log.Printf("call %s: %v: %s", m.session.ID, ErrComplianceBlocked, dec.BlockReason)
		if dec.BlockReason == compliance.ReasonCeaseRequested {
			return dec, StateCeased
		}
		m.pending = &Outcome{Kind: OutcomeErrorAborted, Reason: dec.BlockReason}
		return dec, StateError
	}
	return dec, ""
}

func (m *Machine) complianceContext() compliance.Context {
	d := m.session.Debtor
	c := compliance.Context{
		CeaseRequested:   d.CeaseRequested,
		PriorCalls:       d.PriorCalls,
		DisclosuresGiven: m.session.DisclosuresGiven,
	}
	if d.Jurisdiction != "" {
		if loc, err := time.LoadLocation(d.Jurisdiction); err == nil {
			c.LocalTime = m.now().In(loc)
			c.HasLocalTime = true
		}
	}
	return c
}

// failSoft handles a guard or classifier failure: hand to a human rather than
// guess, and give up on the second consecutive failure.
func (m *Machine) failSoft(what string, err error) State {
	m.failures++
	log.Printf("call %s: %s error (failure %d): %v", m.session.ID, what, m.failures, err)
	if m.failures >= 2 {
		m.pending = &Outcome{Kind: OutcomeErrorAborted, Reason: what + " failed twice"}
		return StateError
	}
	return StateTransfer
}

func (m *Machine) abortOn(err error) State {
	m.pending = &Outcome{Kind: OutcomeErrorAborted, Reason: err.Error()}
	return StateError
}

func (m *Machine) speak(ctx context.Context, text string, disclosureIDs []string) error {
	if err := m.adapter.Speak(ctx, text, disclosureIDs); err != nil {
		return fmt.Errorf("%w: speak: %v", ErrAdapterFailure, err)
	}
	for _, id := range disclosureIDs {
		m.session.DisclosuresGiven[id] = true
	}
	m.lastAgentLine = text
	return m.recordTurn(SpeakerAgent, text)
}

func (m *Machine) listen(ctx context.Context) (Response, error) {
	resp, err := m.adapter.AwaitResponse(ctx, m.cfg.SilenceTimeout)
	if err != nil {
		return resp, fmt.Errorf("%w: await response: %v", ErrAdapterFailure, err)
	}
	if resp.Kind == ResponseUtterance {
		m.lastDebtorLine = resp.Text
		if err := m.recordTurn(SpeakerDebtor, resp.Text); err != nil {
			return resp, err
		}
	}
	return resp, nil
}

func (m *Machine) recordTurn(sp Speaker, text string) error {
	turn := Turn{Speaker: sp, Text: text, Timestamp: m.tick(), State: m.session.State}
	if err := m.recorder.Append(turn); err != nil {
		return err
	}
	m.session.Transcript = append(m.session.Transcript, turn)
	return nil
}

// tick returns a timestamp strictly after the previous turn's, so a single
// session never trips the recorder's ordering check even on coarse clocks.
func (m *Machine) tick() time.Time {
	t := m.now()
	if !t.After(m.lastTs) {
		t = m.lastTs.Add(time.Microsecond)
	}
	m.lastTs = t
	return t
}

func (m *Machine) intentContext() intent.Context {
	return intent.Context{
		AfterOffer:     m.afterOffer && m.session.State == StateNegotiation,
		LastAgentLine:  m.lastAgentLine,
		LastDebtorLine: m.lastDebtorLine,
	}
}
