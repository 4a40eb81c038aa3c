package cache

import (
	"strings"
	"testing"
	"time"
)

func TestLRU_GetSetEvict(t *testing.T) {
	c := NewLRU[string, int](2, 0)
	if _, ok := c.Get("a"); ok {
		t.Fatal("expected miss")
	}
	c.Set("a", 1)
	c.Set("b", 2)
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Errorf("Get(a) = %v, %v", v, ok)
	}
	c.Set("c", 3) // evicts b, the least recently used
	if _, ok := c.Get("b"); ok {
		t.Error("expected b to be evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Error("expected a to remain")
	}
	if c.Len() != 2 {
		t.Errorf("Len = %d, want 2", c.Len())
	}
}

func TestLRU_TTL(t *testing.T) {
	now := time.Unix(1000, 0)
	c := NewLRU[string, string](10, time.Minute)
	c.now = func() time.Time { return now }

	c.Set("k", "v")
	now = now.Add(30 * time.Second)
	if _, ok := c.Get("k"); !ok {
		t.Fatal("expected hit within TTL")
	}
	now = now.Add(time.Minute)
	if _, ok := c.Get("k"); ok {
		t.Error("expected miss after TTL")
	}
	if c.Len() != 0 {
		t.Errorf("expired entry should be evicted on read, Len = %d", c.Len())
	}
}

func TestLRU_SetRefreshesExpiry(t *testing.T) {
	now := time.Unix(1000, 0)
	c := NewLRU[string, int](10, time.Minute)
	c.now = func() time.Time { return now }

	c.Set("k", 1)
	now = now.Add(50 * time.Second)
	c.Set("k", 2)
	now = now.Add(50 * time.Second)
	if v, ok := c.Get("k"); !ok || v != 2 {
		t.Errorf("Get = %v, %v; want 2, true", v, ok)
	}
}

func TestLRU_DeleteFunc(t *testing.T) {
	c := NewLRU[string, int](10, 0)
	c.Set("doc1|summary", 1)
	c.Set("doc1|risks", 2)
	c.Set("doc2|summary", 3)

	if n := c.DeleteFunc(func(k string) bool { return strings.HasPrefix(k, "doc1|") }); n != 2 {
		t.Errorf("DeleteFunc removed %d, want 2", n)
	}
	if _, ok := c.Get("doc2|summary"); !ok {
		t.Error("doc2 entry should remain")
	}
	c.Delete("doc2|summary")
	if c.Len() != 0 {
		t.Errorf("Len = %d, want 0", c.Len())
	}
}
