package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rmax-ai/sirsim/pkg/aggregate"
)

// RunStatus is the outcome of one experiment run.
type RunStatus string

const (
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Run is the stored record of one ensemble execution.
type Run struct {
	ID          string    `json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	Status      RunStatus `json:"status"`
	Fingerprint string    `json:"fingerprint"`
	// Config is the simulation config as JSON, kept verbatim for replay.
	Config        json.RawMessage `json:"config"`
	RunType       string          `json:"run_type"`
	NTrajectories int             `json:"n_trajectories"`
	Seed          int64           `json:"seed"`
	ElapsedMS     int64           `json:"elapsed_ms"`
	AttackRate    float64         `json:"attack_rate"`
	Artifacts     []string        `json:"artifacts,omitempty"`
	Error         string          `json:"error,omitempty"`

	// Summary is loaded by GetRun only.
	Summary *aggregate.Summary `json:"summary,omitempty"`
}

// RunFilter narrows ListRuns.
type RunFilter struct {
	Status RunStatus
	Since  time.Time
	Limit  int
}

// RunStore persists runs and their summaries.
type RunStore interface {
	SaveRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]Run, error)
	DeleteRun(ctx context.Context, id string) error
}

// Lease represents a lock on one experiment fingerprint, so identical
// configs submitted concurrently run once.
type Lease struct {
	Name      string    `json:"name"`
	HolderID  string    `json:"holder_id"`
	ExpiresAt time.Time `json:"expires_at"`
	Version   int64     `json:"version"`
}

// LeaseStore defines the interface for acquiring and releasing leases.
type LeaseStore interface {
	// Acquire tries to acquire the lease. Returns true if successful.
	// If the lease is already held by holderID, it renews it.
	Acquire(ctx context.Context, name, holderID string, ttl time.Duration) (bool, error)

	// Release releases the lease if held by holderID.
	Release(ctx context.Context, name, holderID string) error

	// Get returns the current lease state, or nil when unheld.
	Get(ctx context.Context, name string) (*Lease, error)
}
