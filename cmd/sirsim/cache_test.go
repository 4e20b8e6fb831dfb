package main

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/rmax-ai/sirsim/pkg/aggregate"
	"github.com/rmax-ai/sirsim/pkg/config"
	"github.com/rmax-ai/sirsim/pkg/experiment"
	rediscache "github.com/rmax-ai/sirsim/pkg/store/redis"
)

func setupCache(t *testing.T) (*miniredis.Miniredis, *rediscache.SummaryCache) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, rediscache.NewSummaryCache(client, time.Hour)
}

func configFingerprint(t *testing.T, path string) string {
	t.Helper()
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	sim, err := cfg.ToSimulation()
	if err != nil {
		t.Fatalf("ToSimulation failed: %v", err)
	}
	fp, err := experiment.Fingerprint(sim)
	if err != nil {
		t.Fatalf("Fingerprint failed: %v", err)
	}
	return fp
}

func TestCacheForgetAndClear(t *testing.T) {
	ctx := context.Background()
	mr, cache := setupCache(t)
	path := writeConfig(t, t.TempDir(), fmt.Sprintf(`
nTrajectories: 3
logging:
  level: error
redis:
  addr: %s
`, mr.Addr()))
	fp := configFingerprint(t, path)

	for _, key := range []string{fp, "other"} {
		if err := cache.Set(ctx, key, rediscache.Entry{RunID: key, Summary: &aggregate.Summary{}}); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}

	out, err := execute(t, "cache", "forget", "--config", path)
	if err != nil {
		t.Fatalf("cache forget failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, fp) {
		t.Errorf("Expected output to name fingerprint %s, got %q", fp, out)
	}
	if _, ok, _ := cache.Get(ctx, fp); ok {
		t.Error("Expected the config's summary to be dropped")
	}
	if _, ok, _ := cache.Get(ctx, "other"); !ok {
		t.Error("Expected other summaries to survive forget")
	}

	if out, err := execute(t, "cache", "forget", "other", "--config", path); err != nil {
		t.Fatalf("cache forget by fingerprint failed: %v\n%s", err, out)
	}
	if _, ok, _ := cache.Get(ctx, "other"); ok {
		t.Error("Expected the named summary to be dropped")
	}

	if err := cache.Set(ctx, fp, rediscache.Entry{RunID: "again", Summary: &aggregate.Summary{}}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if out, err := execute(t, "cache", "clear", "--config", path); err != nil {
		t.Fatalf("cache clear failed: %v\n%s", err, out)
	}
	if _, ok, _ := cache.Get(ctx, fp); ok {
		t.Error("Expected clear to drop every summary")
	}
	if mr.Exists("sirsim:summaries") {
		t.Error("Expected clear to drop the tracking set")
	}
}

func TestCacheWithoutRedisIsConfigError(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "nTrajectories: 3\n")
	_, err := execute(t, "cache", "clear", "--config", path)
	if err == nil {
		t.Fatal("Expected an error without redis.addr")
	}
	if code := exitCode(err); code != 2 {
		t.Errorf("Expected exit code 2, got %d", code)
	}
}
