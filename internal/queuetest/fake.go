// Package queuetest provides an in-memory queue.Queue fake for tests that
// exercise enqueue-side logic (fan-out rules, dedup keys, delays) without
// a Postgres-backed queue.
package queuetest

import (
	"context"
	"sync"

	"github.com/codegraph-dev/codegraph/pkg/queue"
)

// EnqueuedJob records one Enqueue call for assertions.
type EnqueuedJob struct {
	Queue   string
	Payload map[string]any
	Opts    queue.EnqueueOptions
}

// Queue is an in-memory queue.Queue fake. Enqueue is deduplicated by
// (Queue, DedupKey) the same way pgqueue.Queue is, so fan-out tests can
// assert dedup behavior without a database.
type Queue struct {
	mu      sync.Mutex
	Jobs    []EnqueuedJob
	byDedup map[string]int
}

// New returns an empty fake queue.
func New() *Queue {
	return &Queue{byDedup: make(map[string]int)}
}

func (q *Queue) Enqueue(ctx context.Context, queueName string, payload map[string]any, opts queue.EnqueueOptions) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if opts.DedupKey != "" {
		key := queueName + ":" + opts.DedupKey
		if idx, ok := q.byDedup[key]; ok {
			q.Jobs[idx].Opts = opts
			return queueName + "-dedup", nil
		}
		q.byDedup[key] = len(q.Jobs)
	}
	q.Jobs = append(q.Jobs, EnqueuedJob{Queue: queueName, Payload: payload, Opts: opts})
	return queueName + "-job", nil
}

func (q *Queue) Consume(ctx context.Context, queueName string, concurrency int, handler queue.Handler) error {
	return nil
}

func (q *Queue) PauseQueue(ctx context.Context, queueName string) error   { return nil }
func (q *Queue) ResumeQueue(ctx context.Context, queueName string) error { return nil }
func (q *Queue) IsPaused(ctx context.Context, queueName string) (bool, error) {
	return false, nil
}
func (q *Queue) DeadLetter(ctx context.Context, queueName string, limit int) ([]queue.Job, error) {
	return nil, nil
}
func (q *Queue) Close() error { return nil }

// JobsFor returns every enqueued job for queueName, in enqueue order.
func (q *Queue) JobsFor(queueName string) []EnqueuedJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []EnqueuedJob
	for _, j := range q.Jobs {
		if j.Queue == queueName {
			out = append(out, j)
		}
	}
	return out
}
