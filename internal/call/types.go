// Package call holds the domain model and conversation state machine for one
// outbound collection call.
package call

import (
	"fmt"
	"time"
)

// Speaker identifies which side of the call produced a turn.
type Speaker string

const (
	SpeakerAgent  Speaker = "agent"
	SpeakerDebtor Speaker = "debtor"
)

// Turn is one utterance in either direction. Turns are immutable once
// appended to a session transcript.
type Turn struct {
	Speaker   Speaker   `json:"speaker"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	State     State     `json:"state"`
}

// State is the call's position in its lifecycle.
type State string

const (
	StateInit         State = "init"
	StateGreeting     State = "greeting"
	StateVerification State = "verification"
	StateDisclosure   State = "disclosure"
	StateNegotiation  State = "negotiation"

	StatePaymentAgreed State = "payment-agreed"
	StateDisputed      State = "disputed"
	StateHardship      State = "hardship"
	StateTransfer      State = "transfer"
	StateCeased        State = "ceased"
	StateNoResponse    State = "no-response"
	StateError         State = "error"

	StateClosed State = "closed"
)

// Terminal reports whether s is a terminal state: one from which the only
// remaining transition is to Closed.
func (s State) Terminal() bool {
	switch s {
	case StatePaymentAgreed, StateDisputed, StateHardship, StateTransfer,
		StateCeased, StateNoResponse, StateError:
		return true
	}
	return false
}

// OutcomeKind is the terminal classification of a call.
type OutcomeKind string

const (
	OutcomePaidInFullPromised OutcomeKind = "paid-in-full-promised"
	OutcomePaymentPlanAgreed  OutcomeKind = "payment-plan-agreed"
	OutcomeDisputed           OutcomeKind = "disputed"
	OutcomeHardshipClaimed    OutcomeKind = "hardship-claimed"
	OutcomeTransferred        OutcomeKind = "transferred-to-human"
	OutcomeCeased             OutcomeKind = "ceased-per-request"
	OutcomeNoAnswer           OutcomeKind = "no-answer"
	OutcomeRefused            OutcomeKind = "refused"
	OutcomeErrorAborted       OutcomeKind = "error-aborted"
)

// PlanTerms describes an agreed or offered installment plan.
type PlanTerms struct {
	Months       int   `json:"months"`
	MonthlyCents int64 `json:"monthly_cents"`
	TotalCents   int64 `json:"total_cents"`
}

// PlanFor splits the debt across months, rounding the monthly payment up to
// the next cent so the plan always covers the full balance.
func PlanFor(amountCents int64, months int) PlanTerms {
	if months <= 0 {
		months = 1
	}
	monthly := amountCents / int64(months)
	if amountCents%int64(months) != 0 {
		monthly++
	}
	return PlanTerms{Months: months, MonthlyCents: monthly, TotalCents: amountCents}
}

// Outcome is created exactly once, when the call terminates, and never
// mutated afterwards.
type Outcome struct {
	Kind            OutcomeKind `json:"kind"`
	Reason          string      `json:"reason,omitempty"`
	Plan            *PlanTerms  `json:"plan,omitempty"`
	SettlementCents int64       `json:"settlement_cents,omitempty"`
	HardshipNote    string      `json:"hardship_note,omitempty"`
	EndedAt         time.Time   `json:"ended_at"`
}

// Debtor is the immutable record for the person being called. It is owned by
// the dispatcher's upstream systems and read-only to the core; in particular
// the cease flag travels with the record, never through process-wide state.
type Debtor struct {
	Name          string `json:"name"`
	AccountNumber string `json:"account_number"`
	Phone         string `json:"phone"`
	AmountCents   int64  `json:"amount_cents"`
	Creditor      string `json:"creditor"`
	// Jurisdiction is an IANA zone name, e.g. "America/Chicago".
	Jurisdiction   string `json:"jurisdiction"`
	CeaseRequested bool   `json:"cease_requested"`
	TransferTo     string `json:"transfer_to,omitempty"`
	PriorCalls     int    `json:"prior_calls"`
}

// Session is one outbound call attempt. It is exclusively owned by a single
// Machine for the duration of the call.
type Session struct {
	ID               string
	Debtor           Debtor
	State            State
	DisclosuresGiven map[string]bool
	Transcript       []Turn
	Outcome          *Outcome
	StartedAt        time.Time
}

// NewSession creates a session in Init with no turns.
func NewSession(id string, d Debtor) *Session {
	return &Session{
		ID:               id,
		Debtor:           d,
		State:            StateInit,
		DisclosuresGiven: make(map[string]bool),
		StartedAt:        time.Now(),
	}
}

// CheckInvariants verifies the session-level data model: outcome present
// exactly on terminal states, strictly chronological transcript.
func (s *Session) CheckInvariants() error {
	terminal := s.State.Terminal() || s.State == StateClosed
	if (s.Outcome != nil) != terminal {
		return fmt.Errorf("session %s: outcome set=%v but state %s terminal=%v",
			s.ID, s.Outcome != nil, s.State, terminal)
	}
	for i := 1; i < len(s.Transcript); i++ {
		if !s.Transcript[i].Timestamp.After(s.Transcript[i-1].Timestamp) {
			return fmt.Errorf("session %s: transcript not strictly chronological at turn %d", s.ID, i)
		}
	}
	return nil
}

// Config bounds one call's conversational loops. Zero values take defaults.
type Config struct {
	MaxCounterOffers  int           `json:"max_counter_offers"`
	MaxClarifications int           `json:"max_clarifications"`
	MaxSilenceRetries int           `json:"max_silence_retries"`
	SilenceTimeout    time.Duration `json:"silence_timeout"`
}

// WithDefaults fills unset fields with production defaults.
func (c Config) WithDefaults() Config {
	if c.MaxCounterOffers == 0 {
		c.MaxCounterOffers = 3
	}
	if c.MaxClarifications == 0 {
		c.MaxClarifications = 2
	}
	if c.MaxSilenceRetries == 0 {
		c.MaxSilenceRetries = 2
	}
	if c.SilenceTimeout == 0 {
		c.SilenceTimeout = 10 * time.Second
	}
	return c
}
