// Package agent turns the state machine's abstract actions into the lines the
// call platform actually speaks.
package agent

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/microdev1/debt-collection-agent/internal/call"
	"github.com/microdev1/debt-collection-agent/internal/policy"
)

// Rephraser optionally softens a template line. Any failure falls back to the
// template, so phrasing can never stall or derail a call.
type Rephraser interface {
	Rephrase(ctx context.Context, line string) (string, error)
}

// Script renders deterministic template lines from policy and debtor data,
// with optional LLM polish.
type Script struct {
	pol       policy.Policy
	agentName string
	rephraser Rephraser
}

// NewScript builds the template script. rephraser may be nil.
func NewScript(pol policy.Policy, agentName string, rephraser Rephraser) *Script {
	if agentName == "" {
		agentName = "Alex"
	}
	return &Script{pol: pol, agentName: agentName, rephraser: rephraser}
}

func (s *Script) Greeting(d call.Debtor) string {
	return s.finish(fmt.Sprintf("Hello, this is %s calling on behalf of %s. May I speak with %s?",
		s.agentName, d.Creditor, d.Name))
}

func (s *Script) IdentityQuestion(d call.Debtor) string {
	return s.finish(fmt.Sprintf("Before we continue I need to confirm I'm speaking with %s. "+
		"Can you confirm that, or give me the last four digits of your account number?", d.Name))
}

// Disclosure returns the catalog wording verbatim. Disclosure text is legal
// copy and is never rephrased.
func (s *Script) Disclosure(id string) string {
	return s.pol.DisclosureText(id)
}

func (s *Script) PresentDebt(d call.Debtor) string {
	return s.finish(fmt.Sprintf("Our records show an outstanding balance of %s owed to %s. "+
		"Are you able to take care of that in full today?", Dollars(d.AmountCents), d.Creditor))
}

func (s *Script) OfferPlan(d call.Debtor, p call.PlanTerms) string {
	return s.finish(fmt.Sprintf("I understand. We could set up a payment plan of %s per month for %d months "+
		"to cover the %s balance. Would that work for you?", Dollars(p.MonthlyCents), p.Months, Dollars(p.TotalCents)))
}

func (s *Script) OfferSettlement(d call.Debtor, offerCents int64, percent int) string {
	return s.finish(fmt.Sprintf("As a final option, we can settle the account for a one-time payment of %s, "+
		"which is %d percent of the %s balance. Would you like to do that?",
		Dollars(offerCents), percent, Dollars(d.AmountCents)))
}

func (s *Script) Clarify() string {
	return s.finish("I'm sorry, I want to make sure I understand you correctly. " +
		"Are you able to make a payment, or would you like to discuss other options?")
}

func (s *Script) RepeatPrompt() string {
	return s.finish("Are you still there? I'd like to help you resolve this today.")
}

func (s *Script) VerificationFailed() string {
	return s.finish("I'm sorry, I can't discuss account details without verifying who I'm speaking with. " +
		"Please call us back when you have your account information available. Goodbye.")
}

func (s *Script) TransferNotice() string {
	return s.finish("One moment please, I'm connecting you with one of our representatives.")
}

func (s *Script) Closing(kind call.OutcomeKind) string {
	switch kind {
	case call.OutcomePaidInFullPromised:
		return s.finish("Thank you. You'll receive a confirmation with payment instructions shortly. Have a good day.")
	case call.OutcomePaymentPlanAgreed:
		return s.finish("Thank you. You'll receive the plan details and payment instructions shortly. Have a good day.")
	case call.OutcomeDisputed:
		return s.finish("Understood. Your dispute has been recorded and will be handled according to federal regulations. " +
			"You'll receive written confirmation. Goodbye.")
	case call.OutcomeHardshipClaimed:
		return s.finish("I'm sorry to hear that. I've noted your situation and our hardship team will review your account " +
			"before any further contact. Goodbye.")
	}
	return ""
}

// finish optionally polishes a line; the template is the fallback on any
// error or timeout.
func (s *Script) finish(line string) string {
	if s.rephraser == nil {
		return line
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	out, err := s.rephraser.Rephrase(ctx, line)
	if err != nil {
		log.Printf("script: rephrase failed, using template: %v", err)
		return line
	}
	return out
}

// Dollars formats cents as a spoken-friendly dollar amount.
func Dollars(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s$%d.%02d", sign, cents/100, cents%100)
}
