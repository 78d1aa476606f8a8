package conversation

import (
	"context"
	"sync"
	"time"

	"github.com/campusdesk/appeal-service/internal/clock"
)

type session struct {
	mu      sync.Mutex
	step    Step
	hasStep bool
	data    map[string][]byte
	touched time.Time
	evicted bool
}

// MemoryStore keeps sessions in process memory. Each user has their own lock.
type MemoryStore struct {
	clock    clock.Clock
	sessions sync.Map // int64 -> *session
}

// NewMemoryStore builds an empty store.
func NewMemoryStore(clk clock.Clock) *MemoryStore {
	return &MemoryStore{clock: clk}
}

func (s *MemoryStore) session(userID int64) *session {
	if v, ok := s.sessions.Load(userID); ok {
		return v.(*session)
	}
	v, _ := s.sessions.LoadOrStore(userID, &session{data: make(map[string][]byte)})
	return v.(*session)
}

// lock returns the user's live session with its mutex held. A session
// evicted after it was loaded is skipped so the write lands in its successor.
func (s *MemoryStore) lock(userID int64) *session {
	for {
		sess := s.session(userID)
		sess.mu.Lock()
		if !sess.evicted {
			return sess
		}
		sess.mu.Unlock()
	}
}

func (s *MemoryStore) GetStep(_ context.Context, userID int64) (Step, bool, error) {
	sess := s.lock(userID)
	defer sess.mu.Unlock()
	return sess.step, sess.hasStep, nil
}

func (s *MemoryStore) SetStep(_ context.Context, userID int64, step Step) error {
	sess := s.lock(userID)
	sess.step = step
	sess.hasStep = true
	sess.touched = s.clock.Now()
	sess.mu.Unlock()
	return nil
}

func (s *MemoryStore) ClearStep(_ context.Context, userID int64) error {
	sess := s.lock(userID)
	sess.step = ""
	sess.hasStep = false
	sess.touched = s.clock.Now()
	sess.mu.Unlock()
	return nil
}

func (s *MemoryStore) GetData(_ context.Context, userID int64, key string) ([]byte, bool, error) {
	sess := s.lock(userID)
	defer sess.mu.Unlock()
	v, ok := sess.data[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (s *MemoryStore) SetData(_ context.Context, userID int64, key string, value []byte) error {
	stored := make([]byte, len(value))
	copy(stored, value)
	sess := s.lock(userID)
	sess.data[key] = stored
	sess.touched = s.clock.Now()
	sess.mu.Unlock()
	return nil
}

func (s *MemoryStore) RemoveData(_ context.Context, userID int64, key string) error {
	sess := s.lock(userID)
	delete(sess.data, key)
	sess.touched = s.clock.Now()
	sess.mu.Unlock()
	return nil
}

func (s *MemoryStore) ClearData(_ context.Context, userID int64) error {
	sess := s.lock(userID)
	sess.data = make(map[string][]byte)
	sess.touched = s.clock.Now()
	sess.mu.Unlock()
	return nil
}

// Evict drops sessions untouched for longer than ttl and returns how many.
func (s *MemoryStore) Evict(ttl time.Duration) int {
	cutoff := s.clock.Now().Add(-ttl)
	removed := 0
	s.sessions.Range(func(k, v any) bool {
		sess := v.(*session)
		sess.mu.Lock()
		defer sess.mu.Unlock()
		if sess.touched.Before(cutoff) {
			sess.evicted = true
			s.sessions.CompareAndDelete(k, sess)
			removed++
		}
		return true
	})
	return removed
}
