package service

import (
	"context"
	"sync"
	"time"

	"github.com/cloo-solutions/docchat/internal/domain"
	"github.com/patrickmn/go-cache"
)

// SessionStoreConfig controls idle eviction. A zero TTL keeps sessions for the
// lifetime of the process.
type SessionStoreConfig struct {
	TTL             time.Duration
	CleanupInterval time.Duration
}

// SessionStore maps session ids to conversation logs. Each session has an
// exclusive scope; different sessions never contend. Logs that are leased or
// awaited are pinned in active and cannot expire.
type SessionStore struct {
	mu     sync.Mutex
	cache  *cache.Cache
	active map[string]*pinnedLog
}

type pinnedLog struct {
	log  *sessionLog
	refs int
}

type sessionLog struct {
	// lease is a one-slot semaphore held for the length of a query.
	lease chan struct{}

	mu    sync.RWMutex
	turns []domain.ChatTurn
}

func newSessionLog() *sessionLog {
	return &sessionLog{lease: make(chan struct{}, 1)}
}

func (l *sessionLog) snapshot() []domain.ChatTurn {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.ChatTurn, len(l.turns))
	copy(out, l.turns)
	return out
}

func (l *sessionLog) appendPair(human, assistant string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.turns = append(l.turns, domain.HumanTurn(human), domain.AssistantTurn(assistant))
}

// NewSessionStore creates a SessionStore.
func NewSessionStore(cfg SessionStoreConfig) *SessionStore {
	ttl := cache.NoExpiration
	cleanup := time.Duration(0)
	if cfg.TTL > 0 {
		ttl = cfg.TTL
		cleanup = cfg.CleanupInterval
		if cleanup <= 0 {
			cleanup = 10 * time.Minute
		}
	}
	return &SessionStore{
		cache:  cache.New(ttl, cleanup),
		active: make(map[string]*pinnedLog),
	}
}

// getOrCreate returns the log for id and resets its idle timer.
func (s *SessionStore) getOrCreate(id string) *sessionLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookupLocked(id)
}

func (s *SessionStore) lookupLocked(id string) *sessionLog {
	if p, ok := s.active[id]; ok {
		return p.log
	}
	var log *sessionLog
	if v, ok := s.cache.Get(id); ok {
		log = v.(*sessionLog)
	} else {
		log = newSessionLog()
	}
	s.cache.SetDefault(id, log)
	return log
}

// pin returns the log for id and keeps it out of eviction until unpin.
func (s *SessionStore) pin(id string) *sessionLog {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.active[id]; ok {
		p.refs++
		return p.log
	}
	log := s.lookupLocked(id)
	s.active[id] = &pinnedLog{log: log, refs: 1}
	return log
}

// unpin drops one reference. The last one hands the log back to the cache
// with a fresh idle timer.
func (s *SessionStore) unpin(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.active[id]
	if !ok {
		return
	}
	p.refs--
	if p.refs > 0 {
		return
	}
	delete(s.active, id)
	s.cache.SetDefault(id, p.log)
}

func validateSessionID(id string) error {
	if id == "" {
		return domain.NewValidationError("session id is required")
	}
	return nil
}

// History returns a copy of the session's turns, oldest first. Unknown ids
// get an empty log.
func (s *SessionStore) History(ctx context.Context, id string) ([]domain.ChatTurn, error) {
	if err := validateSessionID(id); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.getOrCreate(id).snapshot(), nil
}

// Append adds a human turn followed by an assistant turn.
func (s *SessionStore) Append(ctx context.Context, id, human, assistant string) error {
	lease, err := s.Acquire(ctx, id)
	if err != nil {
		return err
	}
	defer lease.Release()

	lease.Append(human, assistant)
	return nil
}

// Acquire blocks until the session's exclusive scope is free or ctx is done.
func (s *SessionStore) Acquire(ctx context.Context, id string) (*SessionLease, error) {
	if err := validateSessionID(id); err != nil {
		return nil, err
	}

	log := s.pin(id)
	select {
	case log.lease <- struct{}{}:
		return &SessionLease{store: s, id: id, log: log}, nil
	case <-ctx.Done():
		s.unpin(id)
		return nil, ctx.Err()
	}
}

// Len returns the number of live sessions.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.cache.ItemCount()
	for id := range s.active {
		if _, ok := s.cache.Get(id); !ok {
			n++
		}
	}
	return n
}

// SessionLease is exclusive access to one session log.
type SessionLease struct {
	store *SessionStore
	id    string
	log   *sessionLog
	once  sync.Once
}

// History returns a copy of the session's turns.
func (l *SessionLease) History() []domain.ChatTurn {
	return l.log.snapshot()
}

// Append adds a human/assistant pair.
func (l *SessionLease) Append(human, assistant string) {
	l.log.appendPair(human, assistant)
}

// Release gives up the exclusive scope. Safe to call more than once.
func (l *SessionLease) Release() {
	l.once.Do(func() {
		<-l.log.lease
		l.store.unpin(l.id)
	})
}
