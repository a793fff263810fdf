// Package intent maps recognized debtor speech to one of a fixed set of
// actionable intents. Classification is deliberately conservative: an explicit
// stop/cease phrase wins over everything else, and anything unclear comes back
// as Ambiguous rather than being guessed into a payment commitment.
package intent

import (
	"strings"
	"unicode"

	"github.com/microdev1/debt-collection-agent/internal/policy"
)

// Intent is the classified meaning of one debtor utterance.
type Intent string

const (
	AffirmPayment          Intent = "affirm-payment"
	ProposeAlternativePlan Intent = "propose-alternative-plan"
	DisputeDebt            Intent = "dispute-debt"
	ClaimHardship          Intent = "claim-hardship"
	RequestHuman           Intent = "request-human"
	CeaseCommunication     Intent = "cease-communication"
	Silence                Intent = "silence"
	Ambiguous              Intent = "ambiguous"
)

// Context disambiguates short answers: "yes" right after a payment offer is an
// acceptance, "yes" anywhere else is not enough to commit the debtor to
// anything.
type Context struct {
	AfterOffer     bool
	LastAgentLine  string
	LastDebtorLine string
}

// Classifier matches utterances against the policy phrase lists.
type Classifier struct {
	rules policy.IntentRules
}

// NewClassifier builds a classifier from the policy's phrase lists.
func NewClassifier(pol policy.Policy) *Classifier {
	return &Classifier{rules: pol.Intents}
}

// bare acknowledgements that only mean acceptance directly after an offer
var bareAffirmations = []string{"yes", "yeah", "yep", "ok", "okay", "sure", "fine", "alright", "correct"}

// Classify maps one utterance to exactly one Intent. The error return exists
// for the machine's failure-handling contract; this implementation never
// fails.
func (c *Classifier) Classify(utterance string, ctx Context) (Intent, error) {
	text := normalize(utterance)
	if text == "" {
		return Silence, nil
	}

	// Cease check runs before all others and ignores surrounding context.
	if containsAny(text, c.rules.Cease) {
		return CeaseCommunication, nil
	}

	var matched []Intent
	if containsAny(text, c.rules.Dispute) {
		matched = append(matched, DisputeDebt)
	}
	if containsAny(text, c.rules.Hardship) {
		matched = append(matched, ClaimHardship)
	}
	if containsAny(text, c.rules.Human) {
		matched = append(matched, RequestHuman)
	}
	if containsAny(text, c.rules.Alternative) {
		matched = append(matched, ProposeAlternativePlan)
	}
	if containsAny(text, c.rules.Affirm) {
		matched = append(matched, AffirmPayment)
	} else if ctx.AfterOffer && isBareAffirmation(text) {
		matched = append(matched, AffirmPayment)
	}

	switch len(matched) {
	case 1:
		return matched[0], nil
	case 0:
		return Ambiguous, nil
	default:
		// Multi-intent utterances are never silently collapsed; the machine
		// asks a clarifying question instead.
		return Ambiguous, nil
	}
}

// normalize lowercases and strips everything but letters, digits, spaces and
// apostrophes so punctuation from the recognizer does not break matching.
func normalize(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func containsAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if p != "" && strings.Contains(text, normalize(p)) {
			return true
		}
	}
	return false
}

func isBareAffirmation(text string) bool {
	for _, w := range bareAffirmations {
		if text == w {
			return true
		}
	}
	return false
}
