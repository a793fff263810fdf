package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/microdev1/debt-collection-agent/internal/call"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "calls.db"))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func finishedSession(id string, kind call.OutcomeKind, endedAt time.Time) *call.Session {
	sess := call.NewSession(id, call.Debtor{AccountNumber: "5033-4329", Phone: "+15550142"})
	sess.State = call.StateClosed
	sess.Transcript = []call.Turn{
		{Speaker: call.SpeakerAgent, Text: "hello", Timestamp: endedAt.Add(-time.Minute)},
		{Speaker: call.SpeakerDebtor, Text: "hi", Timestamp: endedAt.Add(-30 * time.Second)},
	}
	sess.Outcome = &call.Outcome{Kind: kind, EndedAt: endedAt}
	return sess
}

func TestSaveFinishedAndGet(t *testing.T) {
	s := openTestStore(t)
	ended := time.Date(2025, 3, 10, 14, 5, 0, 0, time.UTC)

	sess := finishedSession("call-1", call.OutcomePaymentPlanAgreed, ended)
	sess.Outcome.Plan = &call.PlanTerms{Months: 6, MonthlyCents: 2513, TotalCents: 15075}
	if err := s.SaveFinished(sess); err != nil {
		t.Fatal(err)
	}

	rec, err := s.Get("call-1")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Outcome != string(call.OutcomePaymentPlanAgreed) {
		t.Fatalf("outcome = %s", rec.Outcome)
	}
	if rec.PlanMonths != 6 || rec.MonthlyCents != 2513 {
		t.Fatalf("plan = %d months at %d cents", rec.PlanMonths, rec.MonthlyCents)
	}
	if rec.Turns != 2 {
		t.Fatalf("turns = %d, want 2", rec.Turns)
	}
	if rec.AccountNumber != "5033-4329" {
		t.Fatalf("account = %s", rec.AccountNumber)
	}
}

func TestSaveFinished_RequiresOutcome(t *testing.T) {
	s := openTestStore(t)
	sess := call.NewSession("call-x", call.Debtor{})
	if err := s.SaveFinished(sess); err == nil {
		t.Fatal("saved a session without an outcome")
	}
}

func TestGet_NotFound(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestRecent_NewestFirst(t *testing.T) {
	s := openTestStore(t)
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	for i, id := range []string{"call-a", "call-b", "call-c"} {
		if err := s.SaveFinished(finishedSession(id, call.OutcomeCeased, base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatal(err)
		}
	}

	recs, err := s.Recent(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}
	if recs[0].CallID != "call-c" || recs[1].CallID != "call-b" {
		t.Fatalf("order = %s, %s; want call-c, call-b", recs[0].CallID, recs[1].CallID)
	}
}
