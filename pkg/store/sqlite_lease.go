package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Acquire claims the named lease for holderID. An expired lease, or one
// already held by holderID, is taken over in a single UPDATE.
func (s *Store) Acquire(ctx context.Context, name, holderID string, ttl time.Duration) (bool, error) {
	now := time.Now().UTC()
	expiry := now.Add(ttl)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO leases (name, holder_id, expires_at, version)
		VALUES (?, ?, ?, 1)
	`, name, holderID, expiry)
	if err == nil {
		return true, nil
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE leases
		SET holder_id = ?, expires_at = ?, version = version + 1
		WHERE name = ? AND (holder_id = ? OR expires_at < ?)
	`, holderID, expiry, name, holderID, now)
	if err != nil {
		return false, fmt.Errorf("failed to update lease: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return rows > 0, nil
}

// Release drops the lease if held by holderID.
func (s *Store) Release(ctx context.Context, name, holderID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM leases WHERE name = ? AND holder_id = ?`, name, holderID)
	if err != nil {
		return fmt.Errorf("failed to release lease: %w", err)
	}
	return nil
}

// Get returns the current lease state.
func (s *Store) Get(ctx context.Context, name string) (*Lease, error) {
	var l Lease
	err := s.db.QueryRowContext(ctx, `
		SELECT name, holder_id, expires_at, version
		FROM leases WHERE name = ?
	`, name).Scan(&l.Name, &l.HolderID, &l.ExpiresAt, &l.Version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get lease: %w", err)
	}
	return &l, nil
}
