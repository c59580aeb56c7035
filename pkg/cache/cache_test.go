package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCache_ExpiredEntriesReadAsMissing(t *testing.T) {
	c := New(time.Minute)
	defer c.Stop()

	c.SetWithTTL("list", []string{"a"}, 5*time.Millisecond)
	if _, ok := c.Get("list"); !ok {
		t.Fatal("fresh entry should be readable")
	}

	time.Sleep(10 * time.Millisecond)
	if _, ok := c.Get("list"); ok {
		t.Fatal("expired entry must read as missing")
	}
}

func TestCacheWithFallback_CallsFallbackOncePerWindow(t *testing.T) {
	c := NewCacheWithFallback(time.Minute)
	defer c.Stop()

	calls := 0
	load := func(ctx context.Context) (interface{}, error) {
		calls++
		return "value", nil
	}

	for i := 0; i < 3; i++ {
		got, err := c.GetOrSet(context.Background(), "key", load, time.Minute)
		if err != nil {
			t.Fatalf("get or set: %v", err)
		}
		if got != "value" {
			t.Fatalf("got %v, want value", got)
		}
	}
	if calls != 1 {
		t.Fatalf("fallback ran %d times, want 1", calls)
	}
}

func TestCacheWithFallback_ErrorsAreNotCached(t *testing.T) {
	c := NewCacheWithFallback(time.Minute)
	defer c.Stop()

	calls := 0
	load := func(ctx context.Context) (interface{}, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("upstream down")
		}
		return "recovered", nil
	}

	if _, err := c.GetOrSet(context.Background(), "key", load, time.Minute); err == nil {
		t.Fatal("first call should surface the fallback error")
	}
	got, err := c.GetOrSet(context.Background(), "key", load, time.Minute)
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if got != "recovered" || calls != 2 {
		t.Fatalf("got %v after %d calls, want recovered after 2", got, calls)
	}
}
