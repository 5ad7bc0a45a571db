package ristretto

import (
	"context"
	"testing"
	"time"

	"github.com/Strob0t/eventcast/internal/port/cache"
)

var _ cache.Cache = (*Cache)(nil)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := New(1 << 20)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func TestCache(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	t.Run("SetAndGet", func(t *testing.T) {
		if err := c.Set(ctx, "principal:a", []byte(`{"id":"u1"}`), time.Minute); err != nil {
			t.Fatal(err)
		}
		val, found, err := c.Get(ctx, "principal:a")
		if err != nil {
			t.Fatal(err)
		}
		if !found || string(val) != `{"id":"u1"}` {
			t.Fatalf("got %q found=%v", val, found)
		}
	})

	t.Run("GetMiss", func(t *testing.T) {
		_, found, err := c.Get(ctx, "principal:missing")
		if err != nil {
			t.Fatal(err)
		}
		if found {
			t.Fatal("expected miss")
		}
	})

	t.Run("Delete", func(t *testing.T) {
		_ = c.Set(ctx, "principal:d", []byte("v"), time.Minute)
		if err := c.Delete(ctx, "principal:d"); err != nil {
			t.Fatal(err)
		}
		if _, found, _ := c.Get(ctx, "principal:d"); found {
			t.Fatal("expected miss after Delete")
		}
		if err := c.Delete(ctx, "principal:never"); err != nil {
			t.Fatalf("Delete of missing key: %v", err)
		}
	})

	t.Run("Overwrite", func(t *testing.T) {
		_ = c.Set(ctx, "principal:o", []byte("v1"), time.Minute)
		_ = c.Set(ctx, "principal:o", []byte("v2"), time.Minute)
		val, found, _ := c.Get(ctx, "principal:o")
		if !found || string(val) != "v2" {
			t.Fatalf("got %q found=%v, want v2", val, found)
		}
	})
}

func TestNew_RejectsNonPositiveCost(t *testing.T) {
	if _, err := New(0); err == nil {
		t.Fatal("expected error for zero cost")
	}
}
