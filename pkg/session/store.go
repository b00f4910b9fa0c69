package session

import (
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/teslashibe/go-elephant/internal/log"
)

// Default lifetimes for idle sessions.
const (
	DefaultTTL             = 30 * time.Minute
	DefaultCleanupInterval = time.Minute
)

// Store keeps sessions keyed by id. Sessions expire after ttl without
// access; expiry and deletion close the session so its camera and
// in-flight prediction are released even if the client vanished.
type Store struct {
	deps  *Deps
	cache *cache.Cache
}

// NewStore creates a store. A cleanupInterval of 0 disables the background
// janitor; call DeleteExpired to evict.
func NewStore(deps Deps, ttl, cleanupInterval time.Duration) *Store {
	if deps.Logger == nil {
		deps.Logger = log.Discard()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	c := cache.New(ttl, cleanupInterval)
	c.OnEvicted(func(id string, v interface{}) {
		if s, ok := v.(*Session); ok {
			s.Close()
			deps.Logger.Debug("session evicted", "session", id)
		}
	})

	return &Store{deps: &deps, cache: c}
}

// Create starts a new idle session.
func (st *Store) Create() *Session {
	s := newSession(uuid.NewString(), st.deps)
	st.cache.Set(s.id, s, cache.DefaultExpiration)
	st.deps.Logger.Debug("session created", "session", s.id)
	return s
}

// Get returns a live session and extends its lifetime. A session deleted
// or evicted concurrently is reported missing, never re-added.
func (st *Store) Get(id string) (*Session, error) {
	v, ok := st.cache.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	if err := st.cache.Replace(id, v, cache.DefaultExpiration); err != nil {
		return nil, ErrNotFound
	}
	return v.(*Session), nil
}

// Delete closes and removes a session.
func (st *Store) Delete(id string) error {
	if _, ok := st.cache.Get(id); !ok {
		return ErrNotFound
	}
	st.cache.Delete(id)
	return nil
}

// DeleteExpired evicts sessions past their lifetime.
func (st *Store) DeleteExpired() {
	st.cache.DeleteExpired()
}

// Len returns the number of stored sessions, expired ones included until
// they are evicted.
func (st *Store) Len() int {
	return st.cache.ItemCount()
}

// Close closes every session.
func (st *Store) Close() {
	st.cache.DeleteExpired()
	for id := range st.cache.Items() {
		st.cache.Delete(id)
	}
}
