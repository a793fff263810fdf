package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/microdev1/debt-collection-agent/internal/call"
	"github.com/microdev1/debt-collection-agent/internal/policy"
)

func TestDollars(t *testing.T) {
	cases := []struct {
		cents int64
		want  string
	}{
		{0, "$0.00"},
		{5, "$0.05"},
		{150, "$1.50"},
		{15075, "$150.75"},
		{1000000, "$10000.00"},
		{-2513, "-$25.13"},
	}
	for _, tc := range cases {
		if got := Dollars(tc.cents); got != tc.want {
			t.Errorf("Dollars(%d) = %q, want %q", tc.cents, got, tc.want)
		}
	}
}

func TestScript_LinesCarryDebtorFacts(t *testing.T) {
	s := NewScript(policy.Default(), "Morgan", nil)
	d := call.Debtor{Name: "Jordan Reeve", Creditor: "First National Bank", AmountCents: 15075}

	greeting := s.Greeting(d)
	for _, want := range []string{"Morgan", "First National Bank", "Jordan Reeve"} {
		if !strings.Contains(greeting, want) {
			t.Errorf("greeting %q missing %q", greeting, want)
		}
	}

	present := s.PresentDebt(d)
	if !strings.Contains(present, "$150.75") {
		t.Errorf("present-debt line %q missing the balance", present)
	}

	plan := s.OfferPlan(d, call.PlanFor(d.AmountCents, 6))
	for _, want := range []string{"$25.13", "6 months", "$150.75"} {
		if !strings.Contains(plan, want) {
			t.Errorf("plan line %q missing %q", plan, want)
		}
	}

	settle := s.OfferSettlement(d, 9045, 60)
	for _, want := range []string{"$90.45", "60 percent"} {
		if !strings.Contains(settle, want) {
			t.Errorf("settlement line %q missing %q", settle, want)
		}
	}
}

func TestScript_DisclosureIsVerbatimCatalogText(t *testing.T) {
	pol := policy.Default()
	s := NewScript(pol, "", &upcaseRephraser{})

	got := s.Disclosure(policy.DisclosureIdentify)
	if got != pol.DisclosureText(policy.DisclosureIdentify) {
		t.Fatalf("disclosure text altered: %q", got)
	}
	if got == "" {
		t.Fatal("disclosure text empty")
	}
}

func TestScript_ClosingPerOutcome(t *testing.T) {
	s := NewScript(policy.Default(), "", nil)
	for _, kind := range []call.OutcomeKind{
		call.OutcomePaidInFullPromised,
		call.OutcomePaymentPlanAgreed,
		call.OutcomeDisputed,
		call.OutcomeHardshipClaimed,
	} {
		if s.Closing(kind) == "" {
			t.Errorf("no closing line for %s", kind)
		}
	}
	// ceased and aborted calls end without a goodbye
	for _, kind := range []call.OutcomeKind{call.OutcomeCeased, call.OutcomeErrorAborted, call.OutcomeNoAnswer} {
		if line := s.Closing(kind); line != "" {
			t.Errorf("unexpected closing line for %s: %q", kind, line)
		}
	}
}

type upcaseRephraser struct{}

func (upcaseRephraser) Rephrase(_ context.Context, line string) (string, error) {
	return strings.ToUpper(line), nil
}

type failingRephraser struct{}

func (failingRephraser) Rephrase(context.Context, string) (string, error) {
	return "", errors.New("model unavailable")
}

func TestScript_RephraserApplied(t *testing.T) {
	s := NewScript(policy.Default(), "", &upcaseRephraser{})
	line := s.RepeatPrompt()
	if line != strings.ToUpper(line) {
		t.Fatalf("rephraser not applied: %q", line)
	}
}

func TestScript_RephraserFailureFallsBack(t *testing.T) {
	pol := policy.Default()
	plain := NewScript(pol, "", nil).RepeatPrompt()
	got := NewScript(pol, "", &failingRephraser{}).RepeatPrompt()
	if got != plain {
		t.Fatalf("fallback line = %q, want template %q", got, plain)
	}
}
