// Package compliance implements the pre-turn compliance guard. Evaluate is a
// pure function: the state machine calls it before every agent turn and
// persists the consequences through the transcript, the guard itself keeps no
// state and never fails.
package compliance

import (
	"time"

	"github.com/microdev1/debt-collection-agent/internal/policy"
)

// Block reasons reported in GuardDecision.BlockReason.
const (
	ReasonCeaseRequested      = "cease requested"
	ReasonOutsideHours        = "outside permitted hours"
	ReasonFrequencyExceeded   = "call frequency exceeded"
	ReasonInsufficientContext = "insufficient compliance context"
)

// Context is everything the guard looks at for one decision.
type Context struct {
	// LocalTime is wall-clock time in the debtor's jurisdiction. HasLocalTime
	// is false when the jurisdiction could not be resolved; the guard then
	// blocks conservatively.
	LocalTime    time.Time
	HasLocalTime bool

	// CeaseRequested is the debtor's prior cease-communication flag. It is
	// part of the immutable debtor record, never process-wide state.
	CeaseRequested bool

	// PriorCalls is the number of calls already placed to this debtor in the
	// current period, including the one in progress.
	PriorCalls int

	// DisclosuresGiven are the disclosure ids already spoken this call.
	DisclosuresGiven map[string]bool
}

// Decision is the guard's verdict for one prospective agent turn.
type Decision struct {
	Allowed             bool
	BlockReason         string
	RequiredDisclosures []string
}

// Evaluate applies the calling rules in priority order. A prior cease request
// is terminal for the debtor and overrides every other check; missing context
// blocks conservatively rather than guessing.
func Evaluate(ctx Context, pol policy.Policy) Decision {
	if ctx.CeaseRequested {
		return Decision{Allowed: false, BlockReason: ReasonCeaseRequested}
	}
	if !ctx.HasLocalTime {
		return Decision{Allowed: false, BlockReason: ReasonInsufficientContext}
	}
	h := ctx.LocalTime.Hour()
	if h < pol.BusinessHours.Start || h >= pol.BusinessHours.End {
		return Decision{Allowed: false, BlockReason: ReasonOutsideHours}
	}
	if pol.MaxCallsPerPeriod > 0 && ctx.PriorCalls > pol.MaxCallsPerPeriod {
		return Decision{Allowed: false, BlockReason: ReasonFrequencyExceeded}
	}
	return Decision{Allowed: true, RequiredDisclosures: missingDisclosures(ctx.DisclosuresGiven, pol)}
}

func missingDisclosures(given map[string]bool, pol policy.Policy) []string {
	var missing []string
	for _, id := range pol.Required {
		if !given[id] {
			missing = append(missing, id)
		}
	}
	return missing
}
