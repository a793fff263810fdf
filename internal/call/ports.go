package call

import (
	"context"
	"time"

	"github.com/microdev1/debt-collection-agent/internal/compliance"
	"github.com/microdev1/debt-collection-agent/internal/intent"
)

// ResponseKind classifies what the telephony platform handed back after an
// agent turn. Timeout is a first-class value, not an error.
type ResponseKind int

const (
	ResponseUtterance ResponseKind = iota
	ResponseTimeout
	ResponseVoicemail
	ResponseHangup
)

// Response is the result of one AwaitResponse round trip.
type Response struct {
	Kind ResponseKind
	Text string
}

// SessionAdapter is the boundary to the telephony/speech platform. These four
// primitives are everything the machine needs; dialing, codecs and speech
// synthesis live behind the implementation.
type SessionAdapter interface {
	Speak(ctx context.Context, text string, disclosureIDs []string) error
	AwaitResponse(ctx context.Context, timeout time.Duration) (Response, error)
	TransferToHuman(ctx context.Context) error
	EndCall(ctx context.Context) error
}

// Recorder receives every turn and the terminal outcome of one session.
// Append must reject non-increasing timestamps and Finalize must reject a
// second call, both with ErrOrderingViolation.
type Recorder interface {
	Append(Turn) error
	Finalize(Outcome) error
}

// Script renders the machine's abstract actions into speakable lines. The
// machine decides what to say; the script decides how to say it.
type Script interface {
	Greeting(Debtor) string
	IdentityQuestion(Debtor) string
	Disclosure(id string) string
	PresentDebt(Debtor) string
	OfferPlan(Debtor, PlanTerms) string
	OfferSettlement(d Debtor, offerCents int64, percent int) string
	Clarify() string
	RepeatPrompt() string
	VerificationFailed() string
	TransferNotice() string
	Closing(OutcomeKind) string
}

// GuardFunc evaluates the compliance guard. The default wraps
// compliance.Evaluate; the indirection exists so guard failures can be
// exercised in tests.
type GuardFunc func(compliance.Context) (compliance.Decision, error)

// ClassifyFunc maps an utterance plus context to an intent.
type ClassifyFunc func(utterance string, ctx intent.Context) (intent.Intent, error)
