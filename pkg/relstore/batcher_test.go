package relstore_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/codegraph-dev/codegraph/pkg/models"
	"github.com/codegraph-dev/codegraph/pkg/relstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTxStore embeds relstore.Store so it only has to override WithTx; any
// other method call would panic on the nil embedded interface, which is
// fine since Batcher never calls them.
type fakeTxStore struct {
	relstore.Store

	mu      sync.Mutex
	poiRuns [][]models.POI
}

func (f *fakeTxStore) WithTx(ctx context.Context, fn func(tx relstore.Tx) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fn(&fakeTx{store: f})
}

type fakeTx struct {
	relstore.Tx
	store *fakeTxStore
}

func (t *fakeTx) InsertPOIs(ctx context.Context, pois []models.POI) error {
	t.store.poiRuns = append(t.store.poiRuns, pois)
	return nil
}

func (t *fakeTx) AppendEvidence(ctx context.Context, evidence []models.RelationshipEvidence) error {
	return nil
}

func (t *fakeTx) InsertOutbox(ctx context.Context, event models.OutboxEvent) error {
	return nil
}

func TestBatcher_FlushesOnMaxDelay(t *testing.T) {
	store := &fakeTxStore{}
	b := relstore.NewBatcher(store)
	defer b.Stop()

	err := b.EnqueuePOIs(context.Background(), []models.POI{{ID: "p1"}})
	require.NoError(t, err)

	store.mu.Lock()
	n := len(store.poiRuns)
	store.mu.Unlock()
	assert.Equal(t, 1, n)
}

func TestBatcher_EnqueueCompletesBeforeStop(t *testing.T) {
	store := &fakeTxStore{}
	b := relstore.NewBatcher(store)

	done := make(chan error, 1)
	go func() { done <- b.EnqueuePOIs(context.Background(), []models.POI{{ID: "p2"}}) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("enqueue did not complete before timeout")
	}
	b.Stop()
}
