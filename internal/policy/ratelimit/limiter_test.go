package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestLimiterWaitDelaysSecondCall(t *testing.T) {
	t.Parallel()

	// 10 RPS with burst 1 releases one token every 100ms.
	l := New(Config{DefaultRPS: 10, DefaultBurst: 1})
	ctx := context.Background()

	if err := l.Wait(ctx, "https://nominatim.openstreetmap.org/search"); err != nil {
		t.Fatal(err)
	}
	start := time.Now()
	if err := l.Wait(ctx, "https://nominatim.openstreetmap.org/search?q=x"); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("expected second wait to be throttled, took %v", elapsed)
	}
}

func TestLimiterHostsAreIndependent(t *testing.T) {
	t.Parallel()

	l := New(Config{DefaultRPS: 0.1, DefaultBurst: 1})
	ctx := context.Background()

	if err := l.Wait(ctx, "https://a.example.com"); err != nil {
		t.Fatal(err)
	}
	start := time.Now()
	if err := l.Wait(ctx, "https://b.example.com"); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("a different host should not wait, took %v", elapsed)
	}
}

func TestLimiterSharesBucketAcrossHostCase(t *testing.T) {
	t.Parallel()

	l := New(Config{DefaultRPS: 0.1, DefaultBurst: 1})
	if err := l.Wait(context.Background(), "https://Nominatim.OpenStreetMap.org/search"); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx, "https://nominatim.openstreetmap.org/search"); err == nil {
		t.Fatal("expected the lowercase host to share the exhausted bucket")
	}
	if len(l.limiters) != 1 {
		t.Fatalf("expected one bucket, got %d", len(l.limiters))
	}
}

func TestLimiterWaitCanceled(t *testing.T) {
	t.Parallel()

	l := New(Config{DefaultRPS: 0.1, DefaultBurst: 1})
	if err := l.Wait(context.Background(), "https://api.mapbox.com"); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx, "https://api.mapbox.com"); err == nil {
		t.Fatal("expected error once the context expires")
	}
}

func TestLimiterUnlimited(t *testing.T) {
	t.Parallel()

	l := New(Config{})
	for i := 0; i < 100; i++ {
		if err := l.Wait(context.Background(), "https://example.com"); err != nil {
			t.Fatal(err)
		}
	}
}
