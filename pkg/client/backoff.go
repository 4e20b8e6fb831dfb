package client

import (
	"errors"
	"net/http"
	"time"
)

// busyCode is the error code the server sends with 409 while another holder
// runs the same config.
const busyCode = "experiment_busy"

// BusyRetry controls how Submit waits out an identical experiment that is
// already running. The first holder usually finishes and caches its summary,
// so a later attempt normally returns the cached run.
type BusyRetry struct {
	// MaxAttempts counts every submit including the first. Values below 1
	// mean a single attempt.
	MaxAttempts int
	// Wait is the delay before the second attempt; it doubles per attempt
	// up to MaxWait.
	Wait    time.Duration
	MaxWait time.Duration
}

// DefaultBusyRetry waits 500ms, doubling up to 30s, for at most 8 submits.
// An ensemble behind the default lease can run for minutes.
func DefaultBusyRetry() BusyRetry {
	return BusyRetry{
		MaxAttempts: 8,
		Wait:        500 * time.Millisecond,
		MaxWait:     30 * time.Second,
	}
}

// attempts is MaxAttempts clamped to at least one.
func (r BusyRetry) attempts() int {
	return max(r.MaxAttempts, 1)
}

// Delay returns the wait after the given failed attempt (1-based). A
// Retry-After hint from the server raises the wait but never beyond MaxWait.
func (r BusyRetry) Delay(attempt int, hint time.Duration) time.Duration {
	d := r.Wait
	for i := 1; i < attempt && d < r.MaxWait; i++ {
		d *= 2
	}
	d = max(d, hint)
	if r.MaxWait > 0 {
		d = min(d, r.MaxWait)
	}
	return d
}

// IsBusy reports whether err is the server's 409 experiment_busy reply.
// Other conflicts are not retried.
func IsBusy(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict && apiErr.Code == busyCode
}
