// Package store keeps a queryable index of finished calls in SQLite, one row
// per call. The full transcript stays in the per-call file; this is the table
// operators and the dispatcher consult for dispositions.
package store

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/microdev1/debt-collection-agent/internal/call"
)

// CallRecord summarizes one finished call.
type CallRecord struct {
	CallID        string `gorm:"primaryKey"`
	AccountNumber string `gorm:"index"`
	Phone         string
	Outcome       string `gorm:"index"`
	Reason        string
	PlanMonths    int
	MonthlyCents  int64
	Turns         int
	StartedAt     time.Time
	EndedAt       time.Time
}

// ErrNotFound is returned when no record exists for a call id.
var ErrNotFound = errors.New("call record not found")

// Store wraps the outcome index database.
type Store struct {
	db *gorm.DB
}

// Open opens (and migrates) the SQLite database at path.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open outcome db: %w", err)
	}
	if err := db.AutoMigrate(&CallRecord{}); err != nil {
		return nil, fmt.Errorf("migrate outcome db: %w", err)
	}
	return &Store{db: db}, nil
}

// SaveFinished records the disposition of a completed session.
func (s *Store) SaveFinished(sess *call.Session) error {
	if sess.Outcome == nil {
		return fmt.Errorf("session %s has no outcome", sess.ID)
	}
	rec := CallRecord{
		CallID:        sess.ID,
		AccountNumber: sess.Debtor.AccountNumber,
		Phone:         sess.Debtor.Phone,
		Outcome:       string(sess.Outcome.Kind),
		Reason:        sess.Outcome.Reason,
		Turns:         len(sess.Transcript),
		StartedAt:     sess.StartedAt,
		EndedAt:       sess.Outcome.EndedAt,
	}
	if p := sess.Outcome.Plan; p != nil {
		rec.PlanMonths = p.Months
		rec.MonthlyCents = p.MonthlyCents
	}
	if err := s.db.Create(&rec).Error; err != nil {
		return fmt.Errorf("save call record %s: %w", sess.ID, err)
	}
	return nil
}

// Get returns the record for one call id.
func (s *Store) Get(callID string) (CallRecord, error) {
	var rec CallRecord
	err := s.db.First(&rec, "call_id = ?", callID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return rec, ErrNotFound
	}
	if err != nil {
		return rec, fmt.Errorf("load call record %s: %w", callID, err)
	}
	return rec, nil
}

// Recent lists the most recently ended calls, newest first.
func (s *Store) Recent(limit int) ([]CallRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var recs []CallRecord
	if err := s.db.Order("ended_at desc").Limit(limit).Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list call records: %w", err)
	}
	return recs, nil
}
