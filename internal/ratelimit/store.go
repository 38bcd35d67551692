package ratelimit

import (
	"context"
	"io/fs"
	"sync"
	"time"

	"ogkb/ogkbd/internal/fsatomic"
)

// State is the persisted form of all buckets.
type State struct {
	Version int               `json:"version"`
	Buckets map[string]Bucket `json:"buckets"`
}

type Bucket struct {
	Hits   int    `json:"hits"`
	Window string `json:"window"`
}

// Store is a fixed-window limiter whose buckets survive restarts. Writes to
// disk are batched; Flush forces one.
type Store struct {
	path        string
	now         func() time.Time
	mu          sync.Mutex
	st          State
	lastPersist time.Time
	ops         int
}

func New(path string) *Store {
	s := &Store{path: path, now: time.Now, st: State{Version: 1, Buckets: map[string]Bucket{}}}
	_ = s.load()
	return s
}

func (s *Store) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var st State
	ok, err := fsatomic.LoadJSON(s.path, &st)
	if err != nil || !ok {
		return err
	}
	s.st = st
	if s.st.Buckets == nil {
		s.st.Buckets = map[string]Bucket{}
	}
	s.lastPersist = s.now()
	return nil
}

// Allow counts one hit against key. It reports whether the hit is within limit
// and, when it is not, how long until the window resets.
func (s *Store) Allow(key string, limit int, window time.Duration) (bool, time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()
	b := s.st.Buckets[key]
	start := parseWindow(b.Window)
	if start.IsZero() || now.Sub(start) >= window {
		start = now
		b = Bucket{Window: start.Format(time.RFC3339Nano)}
	}
	if b.Hits >= limit {
		s.maybePersistLocked()
		return false, start.Add(window).Sub(now)
	}
	b.Hits++
	s.st.Buckets[key] = b
	s.maybePersistLocked()
	return true, 0
}

// Sweep removes buckets whose window ended more than window ago.
func (s *Store) Sweep(window time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()
	n := 0
	for k, b := range s.st.Buckets {
		if start := parseWindow(b.Window); start.IsZero() || now.Sub(start) >= window {
			delete(s.st.Buckets, k)
			n++
		}
	}
	return n
}

func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := State{Version: s.st.Version, Buckets: make(map[string]Bucket, len(s.st.Buckets))}
	for k, v := range s.st.Buckets {
		out.Buckets[k] = v
	}
	return out
}

// Flush forces a persist to disk.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistLocked()
}

func (s *Store) persistLocked() error {
	st := s.st
	if err := fsatomic.WithLock(s.path, func() error {
		return fsatomic.SaveJSON(context.TODO(), s.path, st, fs.FileMode(0o600))
	}); err != nil {
		return err
	}
	s.lastPersist = s.now()
	s.ops = 0
	return nil
}

// maybePersistLocked persists every ~2s or every 10 ops.
func (s *Store) maybePersistLocked() {
	s.ops++
	if s.ops%10 == 0 || s.now().Sub(s.lastPersist) >= 2*time.Second {
		_ = s.persistLocked()
	}
}

func parseWindow(val string) time.Time {
	if val == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, val); err == nil {
		return t
	}
	return time.Time{}
}
