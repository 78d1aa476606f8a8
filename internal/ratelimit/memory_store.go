package ratelimit

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/campusdesk/appeal-service/internal/clock"
)

const shardCount = 32

type window struct {
	count     int64
	expiresAt time.Time
}

type shard struct {
	mu      sync.Mutex
	windows map[string]*window
}

// MemoryStore keeps windows in process memory, sharded by key so that
// unrelated users do not contend on one lock.
type MemoryStore struct {
	clock  clock.Clock
	shards [shardCount]*shard
}

// NewMemoryStore builds an empty store.
func NewMemoryStore(clk clock.Clock) *MemoryStore {
	s := &MemoryStore{clock: clk}
	for i := range s.shards {
		s.shards[i] = &shard{windows: make(map[string]*window)}
	}
	return s
}

func (s *MemoryStore) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return s.shards[h.Sum32()%shardCount]
}

func (s *MemoryStore) Increment(_ context.Context, key string, length time.Duration) (int64, time.Duration, error) {
	now := s.clock.Now()
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	w, ok := sh.windows[key]
	if !ok || !now.Before(w.expiresAt) {
		w = &window{expiresAt: now.Add(length)}
		sh.windows[key] = w
	}
	w.count++
	return w.count, w.expiresAt.Sub(now), nil
}

func (s *MemoryStore) Peek(_ context.Context, key string) (int64, time.Duration, bool, error) {
	now := s.clock.Now()
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	w, ok := sh.windows[key]
	if !ok || !now.Before(w.expiresAt) {
		return 0, 0, false, nil
	}
	return w.count, w.expiresAt.Sub(now), true, nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	sh := s.shardFor(key)
	sh.mu.Lock()
	delete(sh.windows, key)
	sh.mu.Unlock()
	return nil
}

// Sweep removes expired windows and returns how many were dropped.
func (s *MemoryStore) Sweep() int {
	now := s.clock.Now()
	removed := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for k, w := range sh.windows {
			if !now.Before(w.expiresAt) {
				delete(sh.windows, k)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed
}

// RunSweeper calls Sweep every interval until ctx is done.
func (s *MemoryStore) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}
