package cache_test

import (
	"testing"
	"time"

	"github.com/boddenberg/vantage-api/internal/domain"
	"github.com/boddenberg/vantage-api/internal/infra/cache"
)

func TestCache_SetAndGet(t *testing.T) {
	c := cache.New[*domain.TransactionSummary](5 * time.Minute)
	defer c.Close()

	summary := &domain.TransactionSummary{PeriodStart: domain.NewDate(2025, time.March, 1)}
	c.Set("summary:user-1", summary)

	got, ok := c.Get("summary:user-1")
	if !ok {
		t.Fatal("expected key to exist")
	}
	if got != summary {
		t.Errorf("expected the stored summary, got %+v", got)
	}
}

func TestCache_GetMiss(t *testing.T) {
	c := cache.New[string](5 * time.Minute)
	defer c.Close()

	if _, ok := c.Get("nonexistent"); ok {
		t.Fatal("expected cache miss for nonexistent key")
	}
}

func TestCache_Expiration(t *testing.T) {
	c := cache.New[string](50 * time.Millisecond)
	defer c.Close()

	c.Set("key1", "value1")
	time.Sleep(100 * time.Millisecond)

	if _, ok := c.Get("key1"); ok {
		t.Fatal("expected cache entry to be expired")
	}
}

func TestCache_Delete(t *testing.T) {
	c := cache.New[string](5 * time.Minute)
	defer c.Close()

	c.Set("summary:user-1:2025-03", "a")
	c.Set("summary:user-1:2025-02", "b")
	c.Set("summary:user-2:2025-03", "c")

	c.Delete("summary:user-2:2025-03")
	if _, ok := c.Get("summary:user-2:2025-03"); ok {
		t.Fatal("expected key to be deleted")
	}

	if c.Len() != 2 {
		t.Errorf("expected 2 entries left, got %d", c.Len())
	}
}

func TestCache_NonPositiveTTL(t *testing.T) {
	c := cache.New[int](0)
	defer c.Close()

	c.Set("k", 1)
	if v, ok := c.Get("k"); !ok || v != 1 {
		t.Fatalf("expected value with default ttl, got %d %v", v, ok)
	}
}
