package analyzer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"reisekosten/internal/cache"
)

// Cached memoizes successful analyses by document content, so reselecting
// the same receipt does not call the analyzer again. Errors are not cached.
type Cached struct {
	next  Analyzer
	cache *cache.LRUCache[Result]
}

func NewCached(next Analyzer, size int, ttl time.Duration) *Cached {
	return &Cached{next: next, cache: cache.NewLRUCache[Result](size, ttl)}
}

// Cleaner exposes the underlying cache for periodic cleanup.
func (c *Cached) Cleaner() cache.Cleaner { return c.cache }

func (c *Cached) Analyze(ctx context.Context, doc Document) (Result, error) {
	key := documentKey(doc)
	if res, ok := c.cache.Get(key); ok {
		return res, nil
	}
	res, err := c.next.Analyze(ctx, doc)
	if err != nil {
		return Result{}, err
	}
	c.cache.Set(key, res)
	return res, nil
}

func documentKey(doc Document) string {
	h := sha256.New()
	h.Write([]byte(doc.MIMEType))
	h.Write([]byte{0})
	h.Write(doc.Data)
	return hex.EncodeToString(h.Sum(nil))
}
