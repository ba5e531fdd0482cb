package history

import (
	"sync"
	"time"

	"coach/internal/domain"
)

// Store is the per-user intervention ledger. Appends and reads for one
// user are serialized on that user's entry; unrelated users only touch
// the outer map lock briefly to resolve their entry.
//
// Memory is unbounded by design: the decision engine only ever reads a
// bounded recent window, and production deployments are expected to
// bound or persist-and-rotate this store externally (the db package
// mirrors appends into Postgres for that purpose).
type Store struct {
	mu    sync.RWMutex
	users map[string]*userLedger
}

type userLedger struct {
	mu      sync.Mutex
	records []domain.InterventionRecord
}

func NewStore() *Store {
	return &Store{users: make(map[string]*userLedger)}
}

func (s *Store) ledger(userID string) *userLedger {
	s.mu.RLock()
	l, ok := s.users[userID]
	s.mu.RUnlock()
	if ok {
		return l
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok = s.users[userID]; ok {
		return l
	}
	l = &userLedger{}
	s.users[userID] = l
	return l
}

// Append adds a record to the user's ledger. Never fails.
func (s *Store) Append(userID string, record domain.InterventionRecord) {
	l := s.ledger(userID)
	l.mu.Lock()
	l.records = append(l.records, record)
	l.mu.Unlock()
}

// Recent returns up to the last n records for the user, most-recent-last.
// Unknown users get an empty slice. The returned slice is a copy.
func (s *Store) Recent(userID string, n int) []domain.InterventionRecord {
	if n <= 0 {
		return nil
	}

	s.mu.RLock()
	l, ok := s.users[userID]
	s.mu.RUnlock()
	if !ok {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	start := len(l.records) - n
	if start < 0 {
		start = 0
	}
	out := make([]domain.InterventionRecord, len(l.records)-start)
	copy(out, l.records[start:])
	return out
}

// RecordFeedback attaches a learner response to the most recent record
// at or before ts that has no response yet. Reports whether a record was
// updated.
func (s *Store) RecordFeedback(userID string, ts time.Time, response string, effectiveness float64) bool {
	s.mu.RLock()
	l, ok := s.users[userID]
	s.mu.RUnlock()
	if !ok {
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.records) - 1; i >= 0; i-- {
		r := &l.records[i]
		if r.Response != "" {
			continue
		}
		if !ts.IsZero() && r.Timestamp.After(ts) {
			continue
		}
		r.Response = response
		r.Effectiveness = effectiveness
		return true
	}
	return false
}

// Len reports the total number of records held for the user.
func (s *Store) Len(userID string) int {
	s.mu.RLock()
	l, ok := s.users[userID]
	s.mu.RUnlock()
	if !ok {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}
