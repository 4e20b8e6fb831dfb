package store

import (
	"context"
	"testing"
	"time"
)

func TestLeaseAcquire(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	name := "experiment:abc123"
	ttl := time.Second

	acquired, err := store.Acquire(ctx, name, "server-1", ttl)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if !acquired {
		t.Errorf("expected to acquire new lease")
	}

	l, err := store.Get(ctx, name)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if l.HolderID != "server-1" || l.Version != 1 {
		t.Errorf("unexpected lease %+v", l)
	}

	acquired, err = store.Acquire(ctx, name, "server-1", ttl)
	if err != nil || !acquired {
		t.Fatalf("expected re-acquire by holder, got %v, %v", acquired, err)
	}
	l2, _ := store.Get(ctx, name)
	if l2.Version <= l.Version {
		t.Errorf("expected version increase, got %d -> %d", l.Version, l2.Version)
	}

	acquired, err = store.Acquire(ctx, name, "server-2", ttl)
	if err != nil {
		t.Fatalf("Acquire (steal) failed: %v", err)
	}
	if acquired {
		t.Errorf("should not acquire valid lease held by other")
	}

	store.db.Exec("UPDATE leases SET expires_at = ?", time.Now().UTC().Add(-time.Minute))

	acquired, err = store.Acquire(ctx, name, "server-2", ttl)
	if err != nil {
		t.Fatalf("Acquire (takeover) failed: %v", err)
	}
	if !acquired {
		t.Errorf("expected to take over expired lease")
	}
	l3, _ := store.Get(ctx, name)
	if l3.HolderID != "server-2" {
		t.Errorf("expected holder server-2, got %s", l3.HolderID)
	}
}

func TestLeaseRelease(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	store.Acquire(ctx, "lock", "h1", time.Second)

	if err := store.Release(ctx, "lock", "h2"); err != nil {
		t.Fatalf("Release by other failed: %v", err)
	}
	if l, _ := store.Get(ctx, "lock"); l == nil {
		t.Fatal("release by non-holder must not drop the lease")
	}

	if err := store.Release(ctx, "lock", "h1"); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if l, _ := store.Get(ctx, "lock"); l != nil {
		t.Errorf("expected lease to be gone, got %v", l)
	}
	if err := store.Release(ctx, "lock", "h1"); err != nil {
		t.Fatalf("Release (idempotent) failed: %v", err)
	}
}

func TestLeaseGetMissing(t *testing.T) {
	store := setupTestStore(t)
	l, err := store.Get(context.Background(), "missing")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if l != nil {
		t.Errorf("expected nil, got %v", l)
	}
}
