package pgqueue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/codegraph-dev/codegraph/ent"
	"github.com/codegraph-dev/codegraph/ent/job"
	"github.com/codegraph-dev/codegraph/pkg/queue"
)

// orphanState tracks the orphan detector's last run for observability,
// mirroring the teacher's WorkerPool.orphans bookkeeping.
type orphanState struct {
	mu        sync.Mutex
	lastScan  time.Time
	recovered int
}

// StartOrphanDetection runs a ticker loop that reclaims jobs stuck in
// "claimed" past staleThreshold — a worker that crashed or was killed
// mid-handler leaves its job claimed forever otherwise. Recovered jobs
// are requeued if attempts remain, or dead-lettered if exhausted. The
// returned stop function blocks until the loop has exited.
func (q *Queue) StartOrphanDetection(ctx context.Context, staleThreshold, interval time.Duration) (stop func()) {
	stopCh := make(chan struct{})
	done := make(chan struct{})
	state := &orphanState{}

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stopCh:
				return
			case <-ticker.C:
				n, err := q.recoverOrphans(ctx, staleThreshold)
				if err != nil {
					slog.Error("orphan detection failed", "error", err)
					continue
				}
				if n > 0 {
					state.mu.Lock()
					state.lastScan = time.Now()
					state.recovered += n
					state.mu.Unlock()
					slog.Warn("recovered orphaned jobs", "count", n)
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { close(stopCh) })
		<-done
	}
}

// recoverOrphans transitions every claimed job whose last heartbeat is
// older than staleThreshold back to pending (if retries remain) or dead
// (if exhausted), with one update per row. The updates are not conditioned
// on the row still being claimed, so two detectors scanning at the same
// time can both recover the same row.
func (q *Queue) recoverOrphans(ctx context.Context, staleThreshold time.Duration) (int, error) {
	cutoff := time.Now().Add(-staleThreshold)

	stale, err := q.client.Job.Query().
		Where(
			job.StatusEQ(job.StatusClaimed),
			job.LastHeartbeatAtLTE(cutoff),
		).
		All(ctx)
	if err != nil {
		return 0, fmt.Errorf("pgqueue: query orphans: %w", err)
	}

	recovered := 0
	for _, row := range stale {
		if row.Attempts >= row.MaxAttempts {
			err = q.client.Job.UpdateOneID(row.ID).
				SetStatus(job.StatusDead).
				SetLastError("orphaned: worker heartbeat stopped").
				Exec(ctx)
		} else {
			err = q.client.Job.UpdateOneID(row.ID).
				SetStatus(job.StatusPending).
				SetAvailableAt(time.Now().Add(queue.BackoffFor(row.Attempts))).
				SetLastError("orphaned: worker heartbeat stopped").
				Exec(ctx)
		}
		if err != nil {
			return recovered, fmt.Errorf("pgqueue: recover orphan %s: %w", row.ID, err)
		}
		recovered++
	}
	return recovered, nil
}

// Heartbeat should be called periodically by a long-running handler (e.g.
// DirectoryWorker summarizing a large directory) to prove liveness between
// claim and finish, resetting the orphan clock.
func (q *Queue) Heartbeat(ctx context.Context, jobID string) error {
	err := q.client.Job.UpdateOneID(jobID).
		SetLastHeartbeatAt(time.Now()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("pgqueue: heartbeat %s: %w", jobID, err)
	}
	return nil
}

// CleanupStartupOrphans reclaims every job claimed by a worker tag that no
// longer exists (process restarted under a new tag), mirroring the
// teacher's CleanupStartupOrphans one-time startup sweep.
func CleanupStartupOrphans(ctx context.Context, client *ent.Client, currentWorkerPrefix string) (int, error) {
	stale, err := client.Job.Query().
		Where(job.StatusEQ(job.StatusClaimed)).
		All(ctx)
	if err != nil {
		return 0, fmt.Errorf("pgqueue: query startup orphans: %w", err)
	}

	recovered := 0
	for _, row := range stale {
		if row.ClaimedBy != nil && len(*row.ClaimedBy) >= len(currentWorkerPrefix) && (*row.ClaimedBy)[:len(currentWorkerPrefix)] == currentWorkerPrefix {
			continue
		}
		if err := client.Job.UpdateOneID(row.ID).
			SetStatus(job.StatusPending).
			SetAvailableAt(time.Now()).
			SetLastError("orphaned at startup: previous worker generation").
			Exec(ctx); err != nil {
			return recovered, fmt.Errorf("pgqueue: recover startup orphan %s: %w", row.ID, err)
		}
		recovered++
	}
	return recovered, nil
}
