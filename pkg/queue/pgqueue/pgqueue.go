// Package pgqueue is the Postgres-backed Queue implementation (spec.md
// C3's default driver): jobs are rows claimed with SELECT ... FOR UPDATE
// SKIP LOCKED, the same pattern RelStore's outbox and the teacher's
// session queue both use, so one Postgres instance backs both RelStore
// and the job queue without a second moving part.
package pgqueue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/codegraph-dev/codegraph/ent"
	"github.com/codegraph-dev/codegraph/ent/job"
	"github.com/codegraph-dev/codegraph/ent/queuestate"
	"github.com/codegraph-dev/codegraph/pkg/queue"
)

// claimBatchSize is how many pending rows are locked per poll attempt so a
// dependency-blocked head-of-line job does not stall the whole queue.
const claimBatchSize = 20

// pollInterval is how often an idle worker retries a queue with no
// claimable job.
const pollInterval = 200 * time.Millisecond

// Queue is the Postgres-backed queue.Queue implementation.
type Queue struct {
	client   *ent.Client
	workerID string

	mu      sync.Mutex
	started map[string]bool
}

// New wraps an *ent.Client (as produced by pkg/database.Client) as a
// queue.Queue. workerID identifies this process in claimed_by and orphan
// recovery logs; callers typically pass a pod or hostname identifier.
func New(client *ent.Client, workerID string) *Queue {
	return &Queue{client: client, workerID: workerID, started: make(map[string]bool)}
}

func (q *Queue) Enqueue(ctx context.Context, queueName string, payload map[string]any, opts queue.EnqueueOptions) (string, error) {
	maxAttempts := opts.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = 4
	}
	availableAt := time.Now()
	if opts.Delay > 0 {
		availableAt = availableAt.Add(opts.Delay)
	}

	if opts.DedupKey != "" {
		existing, err := q.client.Job.Query().
			Where(
				job.QueueEQ(queueName),
				job.DedupKeyEQ(opts.DedupKey),
				job.StatusIn(job.StatusPending, job.StatusClaimed),
			).
			Only(ctx)
		if err == nil {
			// A still-pending job with a delay (e.g. a reconciliation job
			// waiting out the quiescence window) has its delay reset by a
			// fresh arrival, per spec.md §4.9's "only the latest delay
			// survives" rule. A claimed job is already running; leave it.
			if existing.Status == job.StatusPending && opts.Delay > 0 {
				updated, err := existing.Update().SetAvailableAt(availableAt).Save(ctx)
				if err != nil {
					return "", fmt.Errorf("pgqueue: extend dedup delay: %w", err)
				}
				return updated.ID, nil
			}
			return existing.ID, nil
		}
		if !ent.IsNotFound(err) {
			return "", fmt.Errorf("pgqueue: dedup lookup: %w", err)
		}
	}

	create := q.client.Job.Create().
		SetID(uuid.NewString()).
		SetRunID(runIDFromPayload(payload)).
		SetQueue(queueName).
		SetPayload(payload).
		SetMaxAttempts(maxAttempts).
		SetAvailableAt(availableAt).
		SetPendingDeps(len(opts.DependsOn))
	if opts.DedupKey != "" {
		create = create.SetDedupKey(opts.DedupKey)
	}
	if opts.ParentJobID != "" {
		create = create.SetParentJobID(opts.ParentJobID)
	}
	if len(opts.DependsOn) > 0 {
		create = create.SetDependsOn(opts.DependsOn)
	}

	row, err := create.Save(ctx)
	if err != nil {
		return "", fmt.Errorf("pgqueue: enqueue %s: %w", queueName, err)
	}
	return row.ID, nil
}

// runIDFromPayload extracts a best-effort run_id for the Job.RunID column
// (used only for orphan-sweep scoping and operator visibility, never for
// gating logic). Jobs whose payload omits run_id still enqueue fine.
func runIDFromPayload(payload map[string]any) string {
	if v, ok := payload["run_id"].(string); ok {
		return v
	}
	return ""
}

func (q *Queue) PauseQueue(ctx context.Context, queueName string) error {
	return q.setPaused(ctx, queueName, true)
}

func (q *Queue) ResumeQueue(ctx context.Context, queueName string) error {
	return q.setPaused(ctx, queueName, false)
}

func (q *Queue) setPaused(ctx context.Context, queueName string, paused bool) error {
	err := q.client.QueueState.Create().
		SetName(queueName).
		SetPaused(paused).
		OnConflictColumns("queue_name").
		UpdateNewValues().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("pgqueue: set paused %s=%v: %w", queueName, paused, err)
	}
	return nil
}

func (q *Queue) IsPaused(ctx context.Context, queueName string) (bool, error) {
	row, err := q.client.QueueState.Query().Where(queuestate.NameEQ(queueName)).Only(ctx)
	if ent.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("pgqueue: is paused %s: %w", queueName, err)
	}
	return row.Paused, nil
}

func (q *Queue) DeadLetter(ctx context.Context, queueName string, limit int) ([]queue.Job, error) {
	rows, err := q.client.Job.Query().
		Where(job.QueueEQ(queueName), job.StatusEQ(job.StatusDead)).
		Order(ent.Desc(job.FieldUpdatedAt)).
		Limit(limit).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("pgqueue: dead letter %s: %w", queueName, err)
	}
	out := make([]queue.Job, 0, len(rows))
	for _, r := range rows {
		out = append(out, toQueueJob(r))
	}
	return out, nil
}

func (q *Queue) Close() error {
	return nil
}

// Consume starts concurrency polling goroutines against queueName. Each
// goroutine claims at most one job per iteration and blocks on handler
// before claiming the next, so concurrency directly bounds in-flight
// jobs for this queue in this process.
func (q *Queue) Consume(ctx context.Context, queueName string, concurrency int, handler queue.Handler) error {
	q.mu.Lock()
	if q.started[queueName] {
		q.mu.Unlock()
		return fmt.Errorf("pgqueue: Consume already started for queue %s", queueName)
	}
	q.started[queueName] = true
	q.mu.Unlock()

	log := slog.With("queue", queueName, "worker_id", q.workerID)
	for i := 0; i < concurrency; i++ {
		go q.runWorker(ctx, queueName, i, handler, log)
	}
	return nil
}

func (q *Queue) runWorker(ctx context.Context, queueName string, slot int, handler queue.Handler, log *slog.Logger) {
	workerTag := fmt.Sprintf("%s-%d", q.workerID, slot)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		j, row, err := q.claim(ctx, queueName, workerTag)
		if err != nil {
			if err == queue.ErrNoJobAvailable || err == queue.ErrQueuePaused {
				q.sleep(ctx, pollInterval)
				continue
			}
			log.Error("claim failed", "error", err)
			q.sleep(ctx, pollInterval)
			continue
		}

		result := handler(ctx, j)
		if err := q.finish(ctx, row, j, result); err != nil {
			log.Error("finish failed", "job_id", j.ID, "error", err)
		}
	}
}

func (q *Queue) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

// claim locks and returns one claimable job, skipping rows whose
// dependencies are not yet satisfied. claimBatchSize bounds how many rows
// it inspects so a single blocked queue head never starves the scan.
func (q *Queue) claim(ctx context.Context, queueName, workerTag string) (queue.Job, *ent.Job, error) {
	paused, err := q.IsPaused(ctx, queueName)
	if err != nil {
		return queue.Job{}, nil, err
	}
	if paused {
		return queue.Job{}, nil, queue.ErrQueuePaused
	}

	tx, err := q.client.Tx(ctx)
	if err != nil {
		return queue.Job{}, nil, fmt.Errorf("pgqueue: begin claim tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	candidates, err := tx.Job.Query().
		Where(
			job.QueueEQ(queueName),
			job.StatusEQ(job.StatusPending),
			job.AvailableAtLTE(time.Now()),
		).
		Order(ent.Asc(job.FieldAvailableAt)).
		Limit(claimBatchSize).
		ForUpdate(entsql.WithLockAction(entsql.SkipLocked)).
		All(ctx)
	if err != nil {
		return queue.Job{}, nil, fmt.Errorf("pgqueue: query candidates: %w", err)
	}

	for _, c := range candidates {
		ready, err := q.dependenciesSatisfied(ctx, tx, c.DependsOn)
		if err != nil {
			return queue.Job{}, nil, err
		}
		if !ready {
			continue
		}

		now := time.Now()
		row, err := c.Update().
			SetStatus(job.StatusClaimed).
			SetClaimedBy(workerTag).
			SetClaimedAt(now).
			SetLastHeartbeatAt(now).
			AddAttempts(1).
			Save(ctx)
		if err != nil {
			return queue.Job{}, nil, fmt.Errorf("pgqueue: claim job %s: %w", c.ID, err)
		}
		if err := tx.Commit(); err != nil {
			return queue.Job{}, nil, fmt.Errorf("pgqueue: commit claim: %w", err)
		}
		return toQueueJob(row), row, nil
	}

	return queue.Job{}, nil, queue.ErrNoJobAvailable
}

func (q *Queue) dependenciesSatisfied(ctx context.Context, tx *ent.Tx, dependsOn []string) (bool, error) {
	if len(dependsOn) == 0 {
		return true, nil
	}
	unmet, err := tx.Job.Query().
		Where(job.IDIn(dependsOn...), job.StatusNEQ(job.StatusCompleted)).
		Count(ctx)
	if err != nil {
		return false, fmt.Errorf("pgqueue: check dependencies: %w", err)
	}
	return unmet == 0, nil
}

func (q *Queue) finish(ctx context.Context, row *ent.Job, j queue.Job, result queue.Result) error {
	switch result.Outcome {
	case queue.Ack:
		return q.client.Job.UpdateOneID(row.ID).
			SetStatus(job.StatusCompleted).
			Exec(ctx)
	case queue.Dead:
		reason := ""
		if result.Err != nil {
			reason = result.Err.Error()
		}
		return q.client.Job.UpdateOneID(row.ID).
			SetStatus(job.StatusDead).
			SetLastError(reason).
			Exec(ctx)
	case queue.Retry:
		if j.Attempts >= j.MaxAttempts {
			reason := "max attempts exhausted"
			if result.Err != nil {
				reason = result.Err.Error()
			}
			return q.client.Job.UpdateOneID(row.ID).
				SetStatus(job.StatusDead).
				SetLastError(reason).
				Exec(ctx)
		}
		delay := result.RetryAfter
		if delay <= 0 {
			delay = queue.BackoffFor(j.Attempts)
		}
		upd := q.client.Job.UpdateOneID(row.ID).
			SetStatus(job.StatusPending).
			SetAvailableAt(time.Now().Add(delay))
		if result.Err != nil {
			upd = upd.SetLastError(result.Err.Error())
		}
		return upd.Exec(ctx)
	default:
		return fmt.Errorf("pgqueue: unknown outcome %v for job %s", result.Outcome, row.ID)
	}
}

func toQueueJob(r *ent.Job) queue.Job {
	lastError := ""
	if r.LastError != nil {
		lastError = *r.LastError
	}
	return queue.Job{
		ID:          r.ID,
		RunID:       r.RunID,
		Queue:       r.Queue,
		Payload:     r.Payload,
		Attempts:    r.Attempts,
		MaxAttempts: r.MaxAttempts,
		LastError:   lastError,
	}
}
