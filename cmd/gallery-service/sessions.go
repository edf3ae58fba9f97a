package main

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
)

// errSessionExpired marks a random-mode cursor whose session has been swept
// or never existed. Recoverable: the client restarts from page one.
var errSessionExpired = errors.New("random session expired")

// randomSession holds one shuffle browse in flight: a snapshot of matching
// records taken at creation and the set of pool positions already handed
// out. The snapshot is never refreshed; uploads after creation are not seen
// until the client restarts the shuffle.
type randomSession struct {
	key       string
	pool      []imageRecord
	drawn     map[int]struct{}
	createdAt time.Time
}

type drawResult struct {
	records  []imageRecord
	drawn    int // cumulative positions handed out, including this draw
	poolSize int
}

func (d drawResult) exhausted() bool {
	return d.drawn >= d.poolSize
}

// sessionStore is the process-wide table of shuffle sessions. It is a
// best-effort cache, not a source of truth: entries self-expire and are
// reclaimed by a periodic sweep.
type sessionStore struct {
	mu       sync.Mutex
	sessions map[string]*randomSession
	ttl      time.Duration
	now      func() time.Time
}

func newSessionStore(ttl time.Duration) *sessionStore {
	return &sessionStore{
		sessions: make(map[string]*randomSession),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Create snapshots the candidate pool and returns the new session key. Keys
// are random tokens rather than creation timestamps, so two sessions created
// in the same instant cannot collide.
func (s *sessionStore) Create(pool []imageRecord) string {
	snapshot := make([]imageRecord, len(pool))
	copy(snapshot, pool)

	sess := &randomSession{
		key:       uuid.NewString(),
		pool:      snapshot,
		drawn:     make(map[int]struct{}),
		createdAt: s.now(),
	}

	s.mu.Lock()
	s.sessions[sess.key] = sess
	s.mu.Unlock()
	return sess.key
}

// Draw selects up to n undrawn pool positions uniformly at random without
// replacement and returns the corresponding records in selection order. An
// exhausted pool yields an empty slice, not an error. Lookup and mutation
// happen under one lock so concurrent draws against the same session cannot
// hand out a position twice.
func (s *sessionStore) Draw(key string, n int) (drawResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[key]
	if !ok {
		return drawResult{}, errSessionExpired
	}

	remaining := make([]int, 0, len(sess.pool)-len(sess.drawn))
	for i := range sess.pool {
		if _, taken := sess.drawn[i]; !taken {
			remaining = append(remaining, i)
		}
	}

	count := n
	if count > len(remaining) {
		count = len(remaining)
	}

	records := make([]imageRecord, 0, count)
	for i := 0; i < count; i++ {
		pick := rand.Intn(len(remaining))
		idx := remaining[pick]
		remaining[pick] = remaining[len(remaining)-1]
		remaining = remaining[:len(remaining)-1]

		sess.drawn[idx] = struct{}{}
		records = append(records, sess.pool[idx])
	}

	return drawResult{
		records:  records,
		drawn:    len(sess.drawn),
		poolSize: len(sess.pool),
	}, nil
}

// SweepExpired removes every session older than the retention window and
// returns how many were reclaimed.
func (s *sessionStore) SweepExpired(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, sess := range s.sessions {
		if now.Sub(sess.createdAt) > s.ttl {
			delete(s.sessions, key)
			removed++
		}
	}
	return removed
}

func (s *sessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// StartSweeper runs the expiry sweep on a fixed interval until ctx is
// cancelled. The store owns the goroutine; callers cancel ctx on shutdown.
func (s *sessionStore) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if removed := s.SweepExpired(s.now()); removed > 0 {
					logger.Debug("expired random sessions swept", "removed", removed, "live", s.Len())
				}
			}
		}
	}()
}
