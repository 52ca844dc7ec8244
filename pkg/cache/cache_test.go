package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCache_SetGet(t *testing.T) {
	c := NewCache(time.Minute)
	defer c.Stop()

	c.Set("call:abc", "record")

	v, ok := c.Get("call:abc")
	if !ok {
		t.Fatal("expected hit")
	}
	if v != "record" {
		t.Errorf("expected %q, got %v", "record", v)
	}
}

func TestCache_Expiry(t *testing.T) {
	c := NewCache(time.Minute)
	defer c.Stop()

	c.SetWithTTL("call:abc", "record", 10*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	if _, ok := c.Get("call:abc"); ok {
		t.Error("expected miss after expiry")
	}
}

func TestCache_InvalidatePrefix(t *testing.T) {
	c := NewCache(time.Minute)
	defer c.Stop()

	c.Set("call:a", 1)
	c.Set("call:b", 2)
	c.Set("user:x", 3)

	c.Invalidate("call:")

	if _, ok := c.Get("call:a"); ok {
		t.Error("expected call:a removed")
	}
	if _, ok := c.Get("user:x"); !ok {
		t.Error("expected user:x retained")
	}
}

func TestCache_GetOrSet(t *testing.T) {
	c := NewCache(time.Minute)
	defer c.Stop()

	calls := 0
	fallback := func(context.Context) (interface{}, error) {
		calls++
		return "fetched", nil
	}

	for i := 0; i < 3; i++ {
		v, err := c.GetOrSet(context.Background(), "k", fallback)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if v != "fetched" {
			t.Errorf("expected %q, got %v", "fetched", v)
		}
	}

	if calls != 1 {
		t.Errorf("expected fallback called once, got %d", calls)
	}
}

func TestCache_GetOrSet_FallbackError(t *testing.T) {
	c := NewCache(time.Minute)
	defer c.Stop()

	wantErr := errors.New("repo down")
	_, err := c.GetOrSet(context.Background(), "k", func(context.Context) (interface{}, error) {
		return nil, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("expected fallback error, got %v", err)
	}
	if c.Size() != 0 {
		t.Error("errors must not be cached")
	}
}
