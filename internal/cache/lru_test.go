package cache

import (
	"testing"
	"time"
)

func TestLRUCache_Eviction(t *testing.T) {
	c := NewLRUCache[int](2, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	if _, ok := c.Get("a"); !ok {
		t.Fatal("expected a to be cached")
	}
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Fatal("expected least recently used entry b to be evicted")
	}
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("expected a=1, got %v %v", v, ok)
	}
	if c.Size() != 2 {
		t.Fatalf("expected size 2, got %d", c.Size())
	}
}

func TestLRUCache_TTL(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewLRUCache[string](4, time.Minute)
	c.now = func() time.Time { return now }

	c.Set("k", "v")
	now = now.Add(30 * time.Second)
	if _, ok := c.Get("k"); !ok {
		t.Fatal("entry expired too early")
	}

	now = now.Add(time.Minute)
	if n := c.CleanExpired(); n != 1 {
		t.Fatalf("expected 1 expired entry, got %d", n)
	}
	if _, ok := c.Get("k"); ok {
		t.Fatal("expected entry to be gone")
	}
}

func TestLRUCache_Touch(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewLRUCache[string](4, time.Minute)
	c.now = func() time.Time { return now }

	c.Set("k", "v")
	now = now.Add(50 * time.Second)
	if v, ok := c.Touch("k"); !ok || v != "v" {
		t.Fatalf("expected k=v, got %q %v", v, ok)
	}
	now = now.Add(50 * time.Second)
	if _, ok := c.Get("k"); !ok {
		t.Fatal("touch should restart the ttl")
	}

	c.Delete("k")
	if _, ok := c.Touch("k"); ok {
		t.Fatal("touch must not find a deleted key")
	}
	if c.Size() != 0 {
		t.Fatalf("touch must not recreate entries, size %d", c.Size())
	}

	c.Set("old", "v")
	now = now.Add(2 * time.Minute)
	if _, ok := c.Touch("old"); ok {
		t.Fatal("touch must not revive expired entries")
	}
}

func TestLRUCache_NoTTL(t *testing.T) {
	now := time.Now()
	c := NewLRUCache[string](1, 0)
	c.now = func() time.Time { return now }
	c.Set("k", "v")
	now = now.Add(24 * time.Hour)
	if _, ok := c.Get("k"); !ok {
		t.Fatal("entries without ttl must not expire")
	}
}

func TestManager_CleanNow(t *testing.T) {
	now := time.Now()
	c := NewLRUCache[int](4, time.Second)
	c.now = func() time.Time { return now }
	c.Set("a", 1)
	c.Set("b", 2)

	m := NewManager(nil)
	m.Register(c)
	now = now.Add(time.Hour)
	if n := m.CleanNow(); n != 2 {
		t.Fatalf("expected 2 removed, got %d", n)
	}
	m.Stop()
	m.Stop()
}
