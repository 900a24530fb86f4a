package session

import (
	"sync"

	"rtc-service/internal/models"
)

// record pairs a session with its own lock. Every mutation of the session,
// including the capacity and termination checks, runs under this lock, so
// operations on one session are serialized while different sessions proceed
// in parallel.
type record struct {
	mu      sync.Mutex
	session models.Session
}

// Store is the registry of live sessions. It is injected where needed rather
// than kept as a package-level singleton.
type Store struct {
	mu      sync.RWMutex
	records map[string]*record
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{records: make(map[string]*record)}
}

func (s *Store) put(sess models.Session) *record {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := &record{session: sess}
	s.records[sess.ID] = rec
	return rec
}

func (s *Store) get(id string) (*record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	return rec, ok
}

// all returns the current records. Callers lock each record before touching
// its session.
func (s *Store) all() []*record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	recs := make([]*record, 0, len(s.records))
	for _, rec := range s.records {
		recs = append(recs, rec)
	}
	return recs
}

// Len reports how many sessions the store currently holds.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// snapshot copies the session for use outside the record lock. Participant and
// request structs are copied by value; their time pointers are only ever
// replaced, never mutated in place, so sharing them is safe.
func snapshot(sess models.Session) models.Session {
	out := sess
	out.Participants = make([]models.Participant, len(sess.Participants))
	copy(out.Participants, sess.Participants)
	if len(sess.JoinRequests) > 0 {
		out.JoinRequests = make([]models.JoinRequest, len(sess.JoinRequests))
		copy(out.JoinRequests, sess.JoinRequests)
	} else {
		out.JoinRequests = nil
	}
	return out
}
