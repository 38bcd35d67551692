package sessions

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/securecookie"

	"ogkb/ogkbd/internal/fsatomic"
)

// MinTokenLen is the shortest stored token accepted as valid. Anything shorter
// is treated as absent and replaced.
const MinTokenLen = 16

// tokenBytes of randomness are hex encoded into a 32 character token.
const tokenBytes = 16

var ErrNotFound = errors.New("session not found")

// Session is one browser's server-side state, referenced by the ogkb_sid cookie.
type Session struct {
	ID        string `json:"id"`
	CSRF      string `json:"csrf,omitempty"`
	CreatedAt string `json:"created_at"`
	ExpiresAt string `json:"expires_at"`
}

func (s Session) expired(now time.Time) bool {
	t, err := time.Parse(time.RFC3339, s.ExpiresAt)
	return err != nil || !now.Before(t)
}

type diskFile struct {
	Version  int       `json:"version"`
	Sessions []Session `json:"sessions"`
}

type Store struct {
	path string
	ttl  time.Duration
	now  func() time.Time
	mu   sync.RWMutex
	mem  map[string]Session // by ID
}

func New(path string, ttl time.Duration) *Store {
	s := &Store{path: path, ttl: ttl, now: time.Now, mem: map[string]Session{}}
	_ = s.load()
	return s
}

func (s *Store) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var f diskFile
	ok, err := fsatomic.LoadJSON(s.path, &f)
	if err != nil || !ok {
		return err
	}
	for _, it := range f.Sessions {
		s.mem[it.ID] = it
	}
	return nil
}

// persistLocked writes the whole map. Caller holds s.mu.
func (s *Store) persistLocked() error {
	list := make([]Session, 0, len(s.mem))
	for _, v := range s.mem {
		list = append(list, v)
	}
	return fsatomic.WithLock(s.path, func() error {
		return fsatomic.SaveJSON(context.TODO(), s.path, diskFile{Version: 1, Sessions: list}, fs.FileMode(0o600))
	})
}

// Create mints a session without a token. The in-memory session is usable
// even if persisting fails; the error is still returned.
func (s *Store) Create() (Session, error) {
	now := s.now().UTC()
	sess := Session{
		ID:        uuid.NewString(),
		CreatedAt: now.Format(time.RFC3339),
		ExpiresAt: now.Add(s.ttl).Format(time.RFC3339),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mem[sess.ID] = sess
	if err := s.persistLocked(); err != nil {
		return sess, fmt.Errorf("persist session: %w", err)
	}
	return sess, nil
}

// Get returns an unexpired session.
func (s *Store) Get(id string) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.mem[id]
	if !ok || v.expired(s.now()) {
		return Session{}, false
	}
	return v, true
}

// Token is the read capability handed to the gateway: whatever token an
// unexpired session holds. Length policy belongs to issuance, not to
// comparison.
func (s *Store) Token(id string) (string, bool) {
	v, ok := s.Get(id)
	if !ok || v.CSRF == "" {
		return "", false
	}
	return v.CSRF, true
}

// SetToken stores tok verbatim. Used to seed sessions from tooling and tests;
// issuance goes through GetOrCreateToken.
func (s *Store) SetToken(id, tok string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.mem[id]
	if !ok || v.expired(s.now()) {
		return ErrNotFound
	}
	v.CSRF = tok
	s.mem[id] = v
	return s.persistLocked()
}

// GetOrCreateToken returns the session's token, minting it on first use. The
// check and the write happen under one lock, so concurrent first visits of
// one session all observe the same token. An existing valid token is never
// replaced.
func (s *Store) GetOrCreateToken(id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.mem[id]
	if !ok || v.expired(s.now()) {
		return "", ErrNotFound
	}
	if len(v.CSRF) >= MinTokenLen {
		return v.CSRF, nil
	}
	tok, err := newToken()
	if err != nil {
		return "", err
	}
	v.CSRF = tok
	s.mem[id] = v
	if err := s.persistLocked(); err != nil {
		return tok, fmt.Errorf("persist token: %w", err)
	}
	return tok, nil
}

func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.mem[id]; !ok {
		return nil
	}
	delete(s.mem, id)
	return s.persistLocked()
}

// Prune drops sessions expired at now and returns how many were removed.
func (s *Store) Prune(now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, v := range s.mem {
		if v.expired(now) {
			delete(s.mem, id)
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}
	return n, s.persistLocked()
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.mem)
}

func newToken() (string, error) {
	b := securecookie.GenerateRandomKey(tokenBytes)
	if b == nil {
		return "", errors.New("random source unavailable")
	}
	return hex.EncodeToString(b), nil
}
