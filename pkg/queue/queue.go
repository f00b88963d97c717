// Package queue is the durable, at-least-once job queue (spec.md C3). It
// sits between OutboxPublisher and every worker stage: file-analysis,
// relationship-analysis-poi, directory-resolution, validation,
// reconciliation and graph-build jobs all flow through one Queue.
package queue

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// Outcome is a handler's verdict on one claimed job.
type Outcome int

const (
	// Ack marks the job completed; it is removed from the active set.
	Ack Outcome = iota
	// Retry requeues the job after RetryAfter (or the default backoff
	// schedule, if RetryAfter is zero), incrementing its attempt count.
	Retry
	// Dead moves the job straight to the dead-letter queue, bypassing
	// remaining retries. Used for contract violations the handler knows
	// are not transient.
	Dead
)

// Result is what a Handler returns for one claimed job.
type Result struct {
	Outcome    Outcome
	RetryAfter time.Duration
	Err        error
}

// Job is one unit of work claimed from a queue.
type Job struct {
	ID          string
	RunID       string
	Queue       string
	Payload     map[string]any
	Attempts    int
	MaxAttempts int
	LastError   string
}

// EnqueueOptions configures one Enqueue call (spec.md §4.2).
type EnqueueOptions struct {
	// DedupKey, if set, makes Enqueue idempotent: if a pending or claimed
	// job with the same (Queue, DedupKey) exists, its id is returned instead
	// of inserting a duplicate. When that job is still pending and Delay is
	// set, its available_at is pushed out to now+Delay, so the latest
	// reconciliation delay wins (the quiescence-window rule). Re-enqueuing
	// a completed or dead dedup key inserts a fresh job.
	DedupKey string
	// Delay postpones the job's first eligibility for claim.
	Delay time.Duration
	// ParentJobID is informational lineage, not a dependency gate.
	ParentJobID string
	// DependsOn lists job ids that must reach Ack before this job is
	// claimable. Used by EntityScout's finalization job and by
	// DirectoryWorker's dependency count.
	DependsOn []string
	// MaxAttempts overrides the queue default (4: one try plus three
	// retries, per spec.md §4.2's "minimum of 3 retries").
	MaxAttempts int
}

// Handler processes one claimed Job.
type Handler func(ctx context.Context, job Job) Result

// Queue is the contract every pipeline stage depends on instead of talking
// to Postgres or a broker directly.
type Queue interface {
	Enqueue(ctx context.Context, queueName string, payload map[string]any, opts EnqueueOptions) (string, error)

	// Consume starts concurrency worker goroutines pulling from queueName
	// and calling handler for each claimed job. It returns immediately;
	// workers stop when ctx is canceled. Consume may be called once per
	// queue name per Queue instance.
	Consume(ctx context.Context, queueName string, concurrency int, handler Handler) error

	PauseQueue(ctx context.Context, queueName string) error
	ResumeQueue(ctx context.Context, queueName string) error
	IsPaused(ctx context.Context, queueName string) (bool, error)

	// DeadLetter lists jobs a queue has given up on, newest first.
	DeadLetter(ctx context.Context, queueName string, limit int) ([]Job, error)

	Close() error
}

var (
	// ErrNoJobAvailable is returned internally by claim attempts; callers
	// of Queue never see it (Consume's poll loop swallows it).
	ErrNoJobAvailable = errors.New("queue: no job available")
	// ErrQueuePaused is returned internally when a claim targets a paused
	// queue.
	ErrQueuePaused = errors.New("queue: paused")
)

// Queue names, shared by every producer and consumer so no package needs
// to hardcode another package's string (spec.md §2's control-flow graph).
const (
	FileAnalysis           = "file-analysis"
	RelationshipAnalysis   = "relationship-analysis-poi"
	DirectoryResolution    = "directory-resolution"
	Validation             = "validation"
	Reconciliation         = "reconciliation"
	GraphBuild             = "graph-build"
)

const defaultMaxAttempts = 4

// backoffSchedule holds the base delay for each retry attempt (spec.md
// §4.2: "exponential backoff (250ms, 2s, 16s) with jitter"). Attempts
// beyond the schedule reuse the last entry.
var backoffSchedule = []time.Duration{
	250 * time.Millisecond,
	2 * time.Second,
	16 * time.Second,
}

// BackoffFor returns the delay before retry attempt n (1-indexed) with up
// to 20% jitter, so a burst of simultaneously-failing jobs does not retry
// in lockstep.
func BackoffFor(n int) time.Duration {
	idx := n - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(backoffSchedule) {
		idx = len(backoffSchedule) - 1
	}
	base := backoffSchedule[idx]
	jitter := time.Duration(rand.Int64N(int64(base) / 5))
	return base + jitter
}
