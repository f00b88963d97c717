package relstore_test

import (
	"context"
	"testing"

	testdb "github.com/codegraph-dev/codegraph/test/database"

	"github.com/codegraph-dev/codegraph/pkg/models"
	"github.com/codegraph-dev/codegraph/pkg/relstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelStore_FileAndPOILifecycle(t *testing.T) {
	client := testdb.NewTestClient(t)
	store := relstore.New(client.Client)
	ctx := context.Background()

	runID := "run-1"
	fileID := models.POIID("src/main.go", "", "file", 0)

	err := store.WithTx(ctx, func(tx relstore.Tx) error {
		if err := tx.UpsertFile(ctx, models.File{
			ID:       fileID,
			RunID:    runID,
			Path:     "src/main.go",
			Checksum: "abc123",
			Status:   models.FileStatusPending,
		}); err != nil {
			return err
		}
		return tx.InsertPOIs(ctx, []models.POI{
			{
				ID:        models.POIID("src/main.go", "main", "function", 10),
				RunID:     runID,
				FileID:    fileID,
				Name:      "main",
				Type:      "function",
				StartLine: 10,
				EndLine:   20,
				Snippet:   "func main() {}",
			},
		})
	})
	require.NoError(t, err)

	err = store.WithTx(ctx, func(tx relstore.Tx) error {
		return tx.UpdateFileStatus(ctx, fileID, models.FileStatusCompleted, "")
	})
	require.NoError(t, err)

	files, err := store.ListFilesWithStatus(ctx, runID, models.FileStatusCompleted)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "src/main.go", files[0].Path)

	pois, err := store.ListPOIs(ctx, runID)
	require.NoError(t, err)
	require.Len(t, pois, 1)
	assert.Equal(t, "src/main.go", pois[0].FilePath)
}

func TestRelStore_OutboxClaimSkipsLockedRows(t *testing.T) {
	client := testdb.NewTestClient(t)
	store := relstore.New(client.Client)
	ctx := context.Background()

	err := store.WithTx(ctx, func(tx relstore.Tx) error {
		return tx.InsertOutbox(ctx, models.OutboxEvent{
			RunID:     "run-2",
			EventType: models.EventFileAnalysisFinding,
			Payload:   map[string]any{"file_id": "f1"},
		})
	})
	require.NoError(t, err)

	pending, err := store.FetchPendingOutbox(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	err = store.MarkOutboxPublished(ctx, []int64{pending[0].ID})
	require.NoError(t, err)

	remaining, err := store.FetchPendingOutbox(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestRelStore_EvidenceCountAndContradiction(t *testing.T) {
	client := testdb.NewTestClient(t)
	store := relstore.New(client.Client)
	ctx := context.Background()

	runID := "run-3"
	src := "poi-a"
	dst := "poi-b"
	hash := models.RelationshipHash(src, dst, "CALLS")

	err := store.WithTx(ctx, func(tx relstore.Tx) error {
		return tx.AppendEvidence(ctx, []models.RelationshipEvidence{
			{RunID: runID, RelationshipHash: hash, SourcePOIID: src, TargetPOIID: dst, Type: "CALLS", RawConfidence: 0.6, Pass: models.PassIntraFile},
			{RunID: runID, RelationshipHash: hash, SourcePOIID: src, TargetPOIID: dst, Type: "CALLS", RawConfidence: 0.6, Pass: models.PassIntraDirectory},
		})
	})
	require.NoError(t, err)

	count, err := store.IncrementEvidenceCount(ctx, runID, hash)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	err = store.WithTx(ctx, func(tx relstore.Tx) error {
		return tx.AppendEvidence(ctx, []models.RelationshipEvidence{
			{RunID: runID, RelationshipHash: models.RelationshipHash(src, dst, "USES"), SourcePOIID: src, TargetPOIID: dst, Type: "USES", RawConfidence: 0.5, Pass: models.PassGlobal},
		})
	})
	require.NoError(t, err)

	contradictions, err := store.CountContradictingPasses(ctx, runID, src, dst, "CALLS")
	require.NoError(t, err)
	assert.Equal(t, 1, contradictions)
}

func TestRelStore_RunManifestSealAndQuery(t *testing.T) {
	client := testdb.NewTestClient(t)
	store := relstore.New(client.Client)
	ctx := context.Background()

	runID := "run-4"
	manifest := models.RunManifest{
		RunID:                runID,
		TotalFiles:           3,
		DirectoryChildCounts: map[string]int{"src": 2, "src/pkg": 1},
		Directories:          []string{"src", "src/pkg"},
		Sealed:               false,
	}

	err := store.WithTx(ctx, func(tx relstore.Tx) error {
		m := manifest
		m.Sealed = true
		return tx.SealManifest(ctx, m)
	})
	require.NoError(t, err)

	got, err := store.GetRunManifest(ctx, runID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Sealed)
	assert.Equal(t, 3, got.TotalFiles)
	assert.Equal(t, 2, got.DirectoryChildCounts["src"])
}
