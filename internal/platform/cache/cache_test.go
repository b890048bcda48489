package cache

import (
	"testing"
	"time"
)

func TestTTLGetSet(t *testing.T) {
	c := NewTTL(time.Minute)
	if _, ok := c.Get("a"); ok {
		t.Fatal("empty cache must miss")
	}

	c.Set("a", 42)
	value, ok := c.Get("a")
	if !ok || value.(int) != 42 {
		t.Fatalf("got %v/%v, want 42", value, ok)
	}

	c.Invalidate("a")
	if _, ok := c.Get("a"); ok {
		t.Fatal("invalidated key must miss")
	}
}

func TestTTLExpiry(t *testing.T) {
	c := NewTTL(time.Minute)
	current := time.Date(2024, 11, 15, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return current }

	c.Set("a", "v")
	if _, ok := c.Get("a"); !ok {
		t.Fatal("fresh entry must hit")
	}

	current = current.Add(2 * time.Minute)
	if _, ok := c.Get("a"); ok {
		t.Fatal("expired entry must miss")
	}
}

func TestTTLDisabled(t *testing.T) {
	c := NewTTL(0)
	c.Set("a", 1)
	if _, ok := c.Get("a"); ok {
		t.Fatal("zero-ttl cache must store nothing")
	}
}
