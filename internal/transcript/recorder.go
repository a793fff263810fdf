// Package transcript persists the auditable record of a call: every turn as
// it happens, then the terminal outcome, one file per callId.
package transcript

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/microdev1/debt-collection-agent/internal/call"
)

// record is one line of the transcript file. Turn lines carry speaker/text/
// state; the single trailing outcome line carries the terminal disposition.
type record struct {
	Speaker   call.Speaker  `json:"speaker,omitempty"`
	Text      string        `json:"text,omitempty"`
	Timestamp string        `json:"timestamp,omitempty"`
	State     call.State    `json:"state,omitempty"`
	Outcome   *call.Outcome `json:"outcome,omitempty"`
}

// FileRecorder is the durable, write-only transcript for one call. Appends
// must be strictly chronological and Finalize may happen exactly once;
// violations come back as call.ErrOrderingViolation, never silently dropped.
type FileRecorder struct {
	mu        sync.Mutex
	callID    string
	f         *os.File
	enc       *json.Encoder
	lastTs    time.Time
	finalized bool
}

// NewFileRecorder opens (creating dir if needed) the transcript file for
// callID at a stable path: <dir>/<callID>.jsonl.
func NewFileRecorder(dir, callID string) (*FileRecorder, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create transcript dir: %w", err)
	}
	path := filepath.Join(dir, callID+".jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open transcript file: %w", err)
	}
	return &FileRecorder{callID: callID, f: f, enc: json.NewEncoder(f)}, nil
}

// Path returns the transcript file location.
func (r *FileRecorder) Path() string { return r.f.Name() }

// Append writes one turn. A timestamp at or before the previous turn's is an
// ordering violation and the turn is rejected.
func (r *FileRecorder) Append(t call.Turn) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finalized {
		return fmt.Errorf("call %s: append after finalize: %w", r.callID, call.ErrOrderingViolation)
	}
	if !r.lastTs.IsZero() && !t.Timestamp.After(r.lastTs) {
		return fmt.Errorf("call %s: turn timestamp %s not after %s: %w",
			r.callID, t.Timestamp.Format(time.RFC3339Nano), r.lastTs.Format(time.RFC3339Nano), call.ErrOrderingViolation)
	}
	if err := r.enc.Encode(record{
		Speaker:   t.Speaker,
		Text:      t.Text,
		Timestamp: t.Timestamp.Format(time.RFC3339Nano),
		State:     t.State,
	}); err != nil {
		return fmt.Errorf("call %s: write turn: %w", r.callID, err)
	}
	r.lastTs = t.Timestamp
	return nil
}

// Finalize writes the trailing outcome record and closes the file. A second
// call is a double-termination and is rejected.
func (r *FileRecorder) Finalize(o call.Outcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finalized {
		return fmt.Errorf("call %s: double finalize: %w", r.callID, call.ErrOrderingViolation)
	}
	r.finalized = true
	if err := r.enc.Encode(record{Outcome: &o}); err != nil {
		return fmt.Errorf("call %s: write outcome: %w", r.callID, err)
	}
	return r.f.Close()
}

// Multi fans writes out to several recorders, e.g. the durable file plus a
// live monitor feed. The first recorder is authoritative: its errors are
// returned, later recorders only get the write if it was accepted.
func Multi(recorders ...call.Recorder) call.Recorder {
	return multi(recorders)
}

type multi []call.Recorder

func (m multi) Append(t call.Turn) error {
	for i, r := range m {
		if err := r.Append(t); err != nil {
			if i == 0 {
				return err
			}
		}
	}
	return nil
}

func (m multi) Finalize(o call.Outcome) error {
	var first error
	for i, r := range m {
		if err := r.Finalize(o); err != nil && i == 0 {
			first = err
		}
	}
	return first
}
