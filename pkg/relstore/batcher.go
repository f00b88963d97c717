package relstore

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/codegraph-dev/codegraph/pkg/models"
)

// batchMaxRows and batchMaxDelay bound how long a write can sit buffered
// before it reaches RelStore: whichever limit is hit first triggers a
// flush (spec.md §5 single-writer batching discipline).
const (
	batchMaxRows  = 200
	batchMaxDelay = 100 * time.Millisecond
)

// writeRequest is one buffered RelStore write awaiting the next flush.
// Exactly one of pois, evidence or outbox is populated.
type writeRequest struct {
	pois     []models.POI
	evidence []models.RelationshipEvidence
	outbox   *models.OutboxEvent
	done     chan error
}

// Batcher coalesces InsertPOIs/AppendEvidence/InsertOutbox calls from many
// concurrent workers into buffered batches, so a busy run issues far fewer
// transactions than it has findings. Reads bypass the batcher entirely and
// go straight to Store, matching the single-writer/many-readers discipline
// of the teacher's worker pool.
type Batcher struct {
	store Store

	mu      sync.Mutex
	pending []writeRequest

	flushCh  chan struct{}
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewBatcher starts the background flush loop and returns a ready Batcher.
func NewBatcher(store Store) *Batcher {
	b := &Batcher{
		store:   store,
		flushCh: make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
	}
	b.wg.Add(1)
	go b.loop()
	return b
}

// Stop flushes any remaining buffered writes and stops the background loop.
func (b *Batcher) Stop() {
	b.stopOnce.Do(func() { close(b.stopCh) })
	b.wg.Wait()
}

// EnqueuePOIs buffers a batch of POI inserts, returning once it has been
// durably flushed (or the context is canceled first).
func (b *Batcher) EnqueuePOIs(ctx context.Context, pois []models.POI) error {
	return b.enqueue(ctx, writeRequest{pois: pois})
}

// EnqueueEvidence buffers a batch of evidence rows.
func (b *Batcher) EnqueueEvidence(ctx context.Context, evidence []models.RelationshipEvidence) error {
	return b.enqueue(ctx, writeRequest{evidence: evidence})
}

// EnqueueOutbox buffers a single outbox event.
func (b *Batcher) EnqueueOutbox(ctx context.Context, event models.OutboxEvent) error {
	return b.enqueue(ctx, writeRequest{outbox: &event})
}

func (b *Batcher) enqueue(ctx context.Context, req writeRequest) error {
	req.done = make(chan error, 1)

	b.mu.Lock()
	b.pending = append(b.pending, req)
	rows := 0
	for _, p := range b.pending {
		rows += len(p.pois) + len(p.evidence)
		if p.outbox != nil {
			rows++
		}
	}
	full := rows >= batchMaxRows
	b.mu.Unlock()

	if full {
		select {
		case b.flushCh <- struct{}{}:
		default:
		}
	}

	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Batcher) loop() {
	defer b.wg.Done()
	ticker := time.NewTicker(batchMaxDelay)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.flush()
		case <-b.flushCh:
			b.flush()
		case <-b.stopCh:
			b.flush()
			return
		}
	}
}

func (b *Batcher) flush() {
	b.mu.Lock()
	if len(b.pending) == 0 {
		b.mu.Unlock()
		return
	}
	batch := b.pending
	b.pending = nil
	b.mu.Unlock()

	ctx := context.Background()
	err := b.store.WithTx(ctx, func(tx Tx) error {
		for _, req := range batch {
			switch {
			case req.pois != nil:
				if err := tx.InsertPOIs(ctx, req.pois); err != nil {
					return err
				}
			case req.evidence != nil:
				if err := tx.AppendEvidence(ctx, req.evidence); err != nil {
					return err
				}
			case req.outbox != nil:
				if err := tx.InsertOutbox(ctx, *req.outbox); err != nil {
					return err
				}
			}
		}
		return nil
	})

	if err != nil {
		slog.Error("relstore batch flush failed", "batch_size", len(batch), "error", err)
	}
	for _, req := range batch {
		req.done <- err
	}
}
