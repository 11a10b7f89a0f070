package eventsource

import (
	"time"

	cache "github.com/patrickmn/go-cache"
)

// LastEventIDStore remembers the last seen event ID per stream URL so a new
// subscription can resume where a previous one stopped. Entries expire after
// the configured TTL. The store is process local and safe for concurrent use
// by multiple subscriptions.
type LastEventIDStore struct {
	ids *cache.Cache
}

// NewLastEventIDStore creates a store whose entries expire after ttl. If
// cleanupInterval is positive a background janitor purges expired entries,
// otherwise they are dropped lazily on access.
func NewLastEventIDStore(ttl, cleanupInterval time.Duration) *LastEventIDStore {
	return &LastEventIDStore{
		ids: cache.New(ttl, cleanupInterval),
	}
}

// Get returns the remembered ID for the given stream URL, or an empty string
// if none is known or the entry has expired.
func (s *LastEventIDStore) Get(stream string) string {
	v, ok := s.ids.Get(stream)
	if !ok {
		return ""
	}
	return v.(string)
}

// Set records the last seen event ID for the given stream URL. An empty ID
// deletes the entry, mirroring an explicit id reset on the wire.
func (s *LastEventIDStore) Set(stream, id string) {
	if id == "" {
		s.ids.Delete(stream)
		return
	}
	s.ids.Set(stream, id, cache.DefaultExpiration)
}
