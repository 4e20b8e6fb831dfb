// Package blob stores run artifacts (report CSVs and plots) by key.
package blob

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
)

// ErrNotFound is returned by Get and Delete for a missing key.
var ErrNotFound = errors.New("artifact not found")

type BlobStore interface {
	// Put uploads content to the blob store.
	Put(ctx context.Context, key string, reader io.Reader) error

	// Get retrieves content from the blob store.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// List returns the keys under prefix, slash-separated and sorted.
	List(ctx context.Context, prefix string) ([]string, error)

	// Delete removes a blob.
	Delete(ctx context.Context, key string) error
}

// RunPrefix is the key prefix holding every artifact of one run.
func RunPrefix(runID string) string {
	return path.Join("runs", runID)
}

// Prefixed scopes Put calls under a fixed prefix, so a run's reports land
// under RunPrefix without the report writer knowing the run id.
type Prefixed struct {
	Store  BlobStore
	Prefix string
}

func (p Prefixed) Put(ctx context.Context, key string, reader io.Reader) error {
	return p.Store.Put(ctx, path.Join(p.Prefix, key), reader)
}

// cleanKey rejects keys that would escape the store root.
func cleanKey(key string) (string, error) {
	if key == "" {
		return "", errors.New("empty artifact key")
	}
	clean := path.Clean(strings.ReplaceAll(key, "\\", "/"))
	if path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", errors.New("artifact key escapes store root: " + key)
	}
	return clean, nil
}
