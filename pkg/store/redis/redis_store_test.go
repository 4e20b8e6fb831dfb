package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rmax-ai/sirsim/pkg/aggregate"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func testSummary() *aggregate.Summary {
	return &aggregate.Summary{
		Normalization: "per_capita",
		Weekly:        aggregate.WeeklyCaseSeries{{Window: 0, StartStep: 1, EndStep: 7, Value: 14}},
		AgeDistribution: aggregate.AgeDistribution{
			{Lo: 0, Hi: 20, Value: 3}, {Lo: 20, Hi: 40, Value: 11},
		},
	}
}

func TestSummaryCache(t *testing.T) {
	_, client := setupRedis(t)
	cache := NewSummaryCache(client, 0)
	ctx := context.Background()

	t.Run("Set and Get", func(t *testing.T) {
		if err := cache.Set(ctx, "fp1", Entry{RunID: "run-1", Summary: testSummary()}); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		entry, ok, err := cache.Get(ctx, "fp1")
		if err != nil || !ok {
			t.Fatalf("Expected hit, got ok=%v err=%v", ok, err)
		}
		if entry.RunID != "run-1" || entry.CachedAt.IsZero() {
			t.Errorf("Unexpected entry %+v", entry)
		}
		if len(entry.Summary.AgeDistribution) != 2 || entry.Summary.AgeDistribution[1].Value != 11 {
			t.Errorf("Summary not round-tripped: %+v", entry.Summary)
		}
	})

	t.Run("Miss", func(t *testing.T) {
		_, ok, err := cache.Get(ctx, "unknown")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if ok {
			t.Error("Expected miss")
		}
	})

	t.Run("Delete", func(t *testing.T) {
		cache.Set(ctx, "fp2", Entry{RunID: "run-2", Summary: testSummary()})
		if err := cache.Delete(ctx, "fp2"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if _, ok, _ := cache.Get(ctx, "fp2"); ok {
			t.Error("Expected entry gone after delete")
		}
	})

	t.Run("Clear", func(t *testing.T) {
		cache.Set(ctx, "a", Entry{Summary: testSummary()})
		cache.Set(ctx, "b", Entry{Summary: testSummary()})
		if err := cache.Clear(ctx); err != nil {
			t.Fatalf("Clear failed: %v", err)
		}
		for _, fp := range []string{"a", "b", "fp1"} {
			if _, ok, _ := cache.Get(ctx, fp); ok {
				t.Errorf("Expected %s gone after clear", fp)
			}
		}
	})
}

func TestSummaryCacheTTL(t *testing.T) {
	mr, client := setupRedis(t)
	cache := NewSummaryCache(client, time.Minute)
	ctx := context.Background()

	if err := cache.Set(ctx, "fp", Entry{Summary: testSummary()}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if ttl := mr.TTL("sirsim:summary:fp"); ttl != time.Minute {
		t.Errorf("Expected TTL 1m, got %v", ttl)
	}
	mr.FastForward(2 * time.Minute)
	if _, ok, _ := cache.Get(ctx, "fp"); ok {
		t.Error("Expected entry expired")
	}
}

func TestRedisLeaseStore(t *testing.T) {
	mr, client := setupRedis(t)
	leases := NewRedisLeaseStore(client)
	ctx := context.Background()

	ok, err := leases.Acquire(ctx, "fp", "server-1", time.Minute)
	if err != nil || !ok {
		t.Fatalf("Expected acquire, got ok=%v err=%v", ok, err)
	}
	ok, err = leases.Acquire(ctx, "fp", "server-1", time.Minute)
	if err != nil || !ok {
		t.Fatalf("Expected re-acquire by holder, got ok=%v err=%v", ok, err)
	}
	ok, err = leases.Acquire(ctx, "fp", "server-2", time.Minute)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if ok {
		t.Error("Should not acquire lease held by other")
	}

	l, err := leases.Get(ctx, "fp")
	if err != nil || l == nil || l.HolderID != "server-1" {
		t.Fatalf("Unexpected lease %+v, err=%v", l, err)
	}

	if err := leases.Release(ctx, "fp", "server-2"); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if l, _ := leases.Get(ctx, "fp"); l == nil {
		t.Fatal("Release by non-holder must not drop the lease")
	}

	mr.FastForward(2 * time.Minute)
	ok, err = leases.Acquire(ctx, "fp", "server-2", time.Minute)
	if err != nil || !ok {
		t.Fatalf("Expected takeover after expiry, got ok=%v err=%v", ok, err)
	}
	if err := leases.Release(ctx, "fp", "server-2"); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if l, _ := leases.Get(ctx, "fp"); l != nil {
		t.Errorf("Expected lease gone, got %+v", l)
	}
}
