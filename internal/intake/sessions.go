package intake

import (
	"time"

	"github.com/google/uuid"

	"reisekosten/internal/cache"
)

// MaxSessions bounds the number of concurrently open intake runs.
const MaxSessions = 256

// Sessions keeps pipelines of HTTP clients between requests. Idle entries
// expire after the configured TTL; each lookup extends it.
type Sessions struct {
	items *cache.LRUCache[*Pipeline]
}

func NewSessions(ttl time.Duration) *Sessions {
	return &Sessions{items: cache.NewLRUCache[*Pipeline](MaxSessions, ttl)}
}

// Add stores p and returns its session id.
func (s *Sessions) Add(p *Pipeline) string {
	id := uuid.NewString()
	s.items.Set(id, p)
	return id
}

func (s *Sessions) Get(id string) (*Pipeline, bool) {
	return s.items.Touch(id)
}

func (s *Sessions) Remove(id string) {
	s.items.Delete(id)
}

func (s *Sessions) Len() int {
	return s.items.Size()
}

// Cleaner exposes the session cache for periodic expiry.
func (s *Sessions) Cleaner() cache.Cleaner {
	return s.items
}
