package call

import "errors"

// Error taxonomy. Ordering violations are programming-invariant failures and
// terminate the call as error-aborted; adapter failures are fatal to the call
// but eligible for a fresh dispatch attempt; compliance blocks and
// classification failures are recovered locally and never crash a call.
var (
	// ErrOrderingViolation covers out-of-sequence transcript appends and
	// double-finalize.
	ErrOrderingViolation = errors.New("transcript ordering violation")

	// ErrAdapterFailure wraps errors from the telephony/speech platform.
	ErrAdapterFailure = errors.New("session adapter failure")

	// ErrComplianceBlocked marks an agent action refused by the guard.
	ErrComplianceBlocked = errors.New("compliance guard blocked action")

	// ErrClassificationFailure marks a classifier that could not produce an
	// intent at all (as opposed to returning Ambiguous).
	ErrClassificationFailure = errors.New("intent classification failure")
)
