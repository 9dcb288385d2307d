package idempotency

import (
	"log/slog"
	"time"
)

// DefaultExpiry is how long cached responses stay replayable. A retried
// dispatch older than a day is treated as a new request.
const DefaultExpiry = 24 * time.Hour

// CleanupOldKeys drops keys older than expiry and returns how many were
// removed.
func CleanupOldKeys(repo Repository, expiry time.Duration) (int64, error) {
	deleted, err := repo.DeleteOlderThan(expiry)
	if err != nil {
		slog.Error("idempotency key cleanup failed", "error", err)
		return 0, err
	}
	if deleted > 0 {
		slog.Info("expired idempotency keys removed", "deleted", deleted, "older_than", expiry)
	}
	return deleted, nil
}

// RunPeriodicCleanup sweeps expired keys once immediately and then on every
// tick until stop closes. It blocks; callers run it in a goroutine:
//
//	stop := make(chan struct{})
//	go idempotency.RunPeriodicCleanup(repo, time.Hour, idempotency.DefaultExpiry, stop)
func RunPeriodicCleanup(repo Repository, interval, expiry time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Sweep errors are logged inside CleanupOldKeys; the loop keeps going
	// so a transient failure does not end the sweeper.
	CleanupOldKeys(repo, expiry)
	for {
		select {
		case <-ticker.C:
			CleanupOldKeys(repo, expiry)
		case <-stop:
			slog.Info("idempotency key sweeper stopped")
			return
		}
	}
}
