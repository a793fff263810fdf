package transcript

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/microdev1/debt-collection-agent/internal/call"
)

func turnAt(ts time.Time, sp call.Speaker, text string) call.Turn {
	return call.Turn{Speaker: sp, Text: text, Timestamp: ts, State: call.StateNegotiation}
}

func TestFileRecorder_WritesTurnsThenOutcome(t *testing.T) {
	dir := t.TempDir()
	rec, err := NewFileRecorder(dir, "call-1")
	if err != nil {
		t.Fatal(err)
	}
	base := time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)
	if err := rec.Append(turnAt(base, call.SpeakerAgent, "hello")); err != nil {
		t.Fatal(err)
	}
	if err := rec.Append(turnAt(base.Add(time.Second), call.SpeakerDebtor, "hi")); err != nil {
		t.Fatal(err)
	}
	if err := rec.Finalize(call.Outcome{Kind: call.OutcomeCeased, EndedAt: base.Add(2 * time.Second)}); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(rec.Path())
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var lines []record
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r record
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			t.Fatalf("bad jsonl line: %v", err)
		}
		lines = append(lines, r)
	}
	if len(lines) != 3 {
		t.Fatalf("line count = %d, want 3", len(lines))
	}
	if lines[0].Speaker != call.SpeakerAgent || lines[0].Text != "hello" {
		t.Fatalf("first line = %+v", lines[0])
	}
	if lines[1].Outcome != nil {
		t.Fatal("outcome record before the last line")
	}
	if lines[2].Outcome == nil || lines[2].Outcome.Kind != call.OutcomeCeased {
		t.Fatalf("last line = %+v, want the outcome", lines[2])
	}
}

func TestFileRecorder_RejectsOutOfOrderTurns(t *testing.T) {
	rec, err := NewFileRecorder(t.TempDir(), "call-2")
	if err != nil {
		t.Fatal(err)
	}
	base := time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)
	if err := rec.Append(turnAt(base, call.SpeakerAgent, "a")); err != nil {
		t.Fatal(err)
	}
	// equal timestamp
	if err := rec.Append(turnAt(base, call.SpeakerDebtor, "b")); !errors.Is(err, call.ErrOrderingViolation) {
		t.Fatalf("equal timestamp: err = %v, want ErrOrderingViolation", err)
	}
	// earlier timestamp
	if err := rec.Append(turnAt(base.Add(-time.Second), call.SpeakerDebtor, "c")); !errors.Is(err, call.ErrOrderingViolation) {
		t.Fatalf("earlier timestamp: err = %v, want ErrOrderingViolation", err)
	}
	// a later one is still accepted after rejections
	if err := rec.Append(turnAt(base.Add(time.Second), call.SpeakerDebtor, "d")); err != nil {
		t.Fatalf("later timestamp rejected: %v", err)
	}
}

func TestFileRecorder_FinalizeOnce(t *testing.T) {
	rec, err := NewFileRecorder(t.TempDir(), "call-3")
	if err != nil {
		t.Fatal(err)
	}
	if err := rec.Finalize(call.Outcome{Kind: call.OutcomeNoAnswer}); err != nil {
		t.Fatal(err)
	}
	if err := rec.Finalize(call.Outcome{Kind: call.OutcomeNoAnswer}); !errors.Is(err, call.ErrOrderingViolation) {
		t.Fatalf("double finalize: err = %v, want ErrOrderingViolation", err)
	}
	if err := rec.Append(turnAt(time.Now(), call.SpeakerAgent, "late")); !errors.Is(err, call.ErrOrderingViolation) {
		t.Fatalf("append after finalize: err = %v, want ErrOrderingViolation", err)
	}
}

type countingRecorder struct {
	appends   int
	finalizes int
	appendErr error
}

func (r *countingRecorder) Append(call.Turn) error {
	r.appends++
	return r.appendErr
}

func (r *countingRecorder) Finalize(call.Outcome) error {
	r.finalizes++
	return nil
}

func TestMulti_FirstRecorderAuthoritative(t *testing.T) {
	primary := &countingRecorder{}
	secondary := &countingRecorder{}
	m := Multi(primary, secondary)

	if err := m.Append(call.Turn{Timestamp: time.Now()}); err != nil {
		t.Fatal(err)
	}
	if primary.appends != 1 || secondary.appends != 1 {
		t.Fatalf("appends = %d/%d, want 1/1", primary.appends, secondary.appends)
	}

	primary.appendErr = call.ErrOrderingViolation
	if err := m.Append(call.Turn{Timestamp: time.Now()}); !errors.Is(err, call.ErrOrderingViolation) {
		t.Fatalf("err = %v, want the primary's error", err)
	}

	if err := m.Finalize(call.Outcome{Kind: call.OutcomeCeased}); err != nil {
		t.Fatal(err)
	}
	if primary.finalizes != 1 || secondary.finalizes != 1 {
		t.Fatalf("finalizes = %d/%d, want 1/1", primary.finalizes, secondary.finalizes)
	}
}
