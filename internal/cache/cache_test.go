package cache

import (
	"testing"
	"time"
)

func TestCache_SetGet(t *testing.T) {
	c := New[string, int](10, time.Minute)

	c.Set("a", 1)
	c.Set("b", 2)

	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Errorf("Get(a) = %d, %v; want 1, true", v, ok)
	}
	if v, ok := c.Get("b"); !ok || v != 2 {
		t.Errorf("Get(b) = %d, %v; want 2, true", v, ok)
	}
	if _, ok := c.Get("missing"); ok {
		t.Error("Get(missing) returned a value")
	}
}

func TestCache_ExpiredEntriesAreAbsent(t *testing.T) {
	c := New[string, int](10, time.Minute)

	now := time.Now()
	c.now = func() time.Time { return now }
	c.Set("a", 1)

	// Still valid just inside the TTL.
	c.now = func() time.Time { return now.Add(59 * time.Second) }
	if _, ok := c.Get("a"); !ok {
		t.Error("entry expired before its TTL")
	}

	// Absent after the TTL; the read should also drop it.
	c.now = func() time.Time { return now.Add(61 * time.Second) }
	if _, ok := c.Get("a"); ok {
		t.Error("expired entry still readable")
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d after lazy expiry, want 0", c.Len())
	}
}

func TestCache_LRUEviction(t *testing.T) {
	c := New[int, string](3, time.Minute)

	c.Set(1, "one")
	c.Set(2, "two")
	c.Set(3, "three")

	// Touch 1 so 2 becomes the eviction candidate.
	if _, ok := c.Get(1); !ok {
		t.Fatal("Get(1) missed")
	}

	c.Set(4, "four")

	if _, ok := c.Get(2); ok {
		t.Error("least recently used entry survived eviction")
	}
	if _, ok := c.Get(1); !ok {
		t.Error("recently used entry was evicted")
	}
	if c.Len() != 3 {
		t.Errorf("Len() = %d, want 3", c.Len())
	}
}

func TestCache_SetRefreshesExisting(t *testing.T) {
	c := New[string, int](2, time.Minute)

	c.Set("a", 1)
	c.Set("a", 2)

	if v, _ := c.Get("a"); v != 2 {
		t.Errorf("Get(a) = %d, want 2", v)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
}

func TestCache_DeleteAndClear(t *testing.T) {
	c := New[string, int](10, time.Minute)

	c.Set("a", 1)
	c.Set("b", 2)

	c.Delete("a")
	if _, ok := c.Get("a"); ok {
		t.Error("deleted entry still readable")
	}
	c.Delete("a") // idempotent

	c.Clear()
	if c.Len() != 0 {
		t.Errorf("Len() = %d after Clear, want 0", c.Len())
	}
	if _, ok := c.Get("b"); ok {
		t.Error("entry survived Clear")
	}
}
