// Package relstoretest provides an in-memory relstore.Store fake shared by
// the worker and orchestrator package tests, so each of them doesn't hand
// roll its own partial double of a twenty-two-method interface.
package relstoretest

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/codegraph-dev/codegraph/pkg/models"
	"github.com/codegraph-dev/codegraph/pkg/relstore"
)

// Store is an in-memory relstore.Store. Every method locks the same mutex,
// so it has none of the real store's concurrency but all of its contract.
type Store struct {
	mu sync.Mutex

	Files             map[string]models.File
	POIs              map[string]models.POI
	Evidence          []models.RelationshipEvidence
	Relationships     map[string]models.Relationship
	DirectorySummaries map[string]models.DirectorySummary
	Outbox            []models.OutboxEvent
	Manifests         map[string]models.RunManifest
	Runs              map[string]models.Run
	EvidenceCounts    map[string]int

	nextOutboxID int64
}

// New returns an empty fake store.
func New() *Store {
	return &Store{
		Files:              make(map[string]models.File),
		POIs:               make(map[string]models.POI),
		Relationships:      make(map[string]models.Relationship),
		DirectorySummaries: make(map[string]models.DirectorySummary),
		Manifests:          make(map[string]models.RunManifest),
		Runs:               make(map[string]models.Run),
		EvidenceCounts:     make(map[string]int),
		nextOutboxID:       1,
	}
}

func (s *Store) BeginTx(ctx context.Context) (relstore.Tx, error) {
	return &tx{store: s}, nil
}

func (s *Store) WithTx(ctx context.Context, fn func(tx relstore.Tx) error) error {
	return fn(&tx{store: s})
}

func (s *Store) FetchPendingOutbox(ctx context.Context, limit int) ([]models.OutboxEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.OutboxEvent
	for _, e := range s.Outbox {
		if e.Status != models.OutboxStatusPending {
			continue
		}
		out = append(out, e)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *Store) MarkOutboxPublished(ctx context.Context, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := make(map[int64]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	for i, e := range s.Outbox {
		if set[e.ID] {
			s.Outbox[i].Status = models.OutboxStatusPublished
		}
	}
	return nil
}

func (s *Store) MarkOutboxFailed(ctx context.Context, id int64, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.Outbox {
		if e.ID == id {
			s.Outbox[i].LastError = reason
			s.Outbox[i].Attempts++
		}
	}
	return nil
}

func (s *Store) ListFilesWithStatus(ctx context.Context, runID string, status models.FileStatus) ([]models.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.File
	for _, f := range s.Files {
		if f.RunID == runID && f.Status == status {
			out = append(out, f)
		}
	}
	return out, nil
}

func (s *Store) MarkFilesPendingDeletion(ctx context.Context, runID string, paths []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := make(map[string]bool, len(paths))
	for _, p := range paths {
		set[p] = true
	}
	for id, f := range s.Files {
		if f.RunID == runID && set[f.Path] {
			f.Status = models.FileStatusPendingDeletion
			s.Files[id] = f
		}
	}
	return nil
}

func (s *Store) DeleteFilesByPath(ctx context.Context, runID string, paths []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := make(map[string]bool, len(paths))
	for _, p := range paths {
		set[p] = true
	}
	for id, f := range s.Files {
		if f.RunID == runID && set[f.Path] {
			delete(s.Files, id)
		}
	}
	return nil
}

func (s *Store) ListAllFilePaths(ctx context.Context, runID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, f := range s.Files {
		if f.RunID == runID {
			out = append(out, f.Path)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) GetRunManifest(ctx context.Context, runID string) (*models.RunManifest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.Manifests[runID]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (s *Store) UpsertRunManifest(ctx context.Context, manifest models.RunManifest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Manifests[manifest.RunID] = manifest
	return nil
}

func (s *Store) IncrementEvidenceCount(ctx context.Context, runID, relationshipHash string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := runID + ":" + relationshipHash
	s.EvidenceCounts[key]++
	return s.EvidenceCounts[key], nil
}

func (s *Store) ListEvidence(ctx context.Context, runID, relationshipHash string) ([]models.RelationshipEvidence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.RelationshipEvidence
	for _, e := range s.Evidence {
		if e.RunID == runID && e.RelationshipHash == relationshipHash {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *Store) CountContradictingPasses(ctx context.Context, runID, sourcePOIID, targetPOIID, excludeType string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]bool)
	for _, e := range s.Evidence {
		if e.RunID == runID && e.SourcePOIID == sourcePOIID && e.TargetPOIID == targetPOIID && e.Type != excludeType {
			seen[e.Type] = true
		}
	}
	return len(seen), nil
}

func (s *Store) ListValidatedRelationships(ctx context.Context, runID string) ([]models.Relationship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Relationship
	for _, r := range s.Relationships {
		if r.RunID == runID && r.Status == models.RelationshipStatusValidated {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) ListPOIs(ctx context.Context, runID string) ([]models.POI, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.POI
	for _, p := range s.POIs {
		if p.RunID == runID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) GetDirectorySummary(ctx context.Context, runID, directoryPath string) (*models.DirectorySummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.DirectorySummaries[runID+":"+directoryPath]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (s *Store) ListDirectorySummaries(ctx context.Context, runID string) ([]models.DirectorySummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.DirectorySummary
	for _, d := range s.DirectorySummaries {
		if d.RunID == runID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *Store) GetRun(ctx context.Context, runID string) (*models.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.Runs[runID]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (s *Store) UpsertRun(ctx context.Context, run models.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Runs[run.ID] = run
	return nil
}

func (s *Store) Ping(ctx context.Context) error { return nil }
func (s *Store) Close() error                   { return nil }

// SeedFile registers a file row directly, bypassing the Tx path, for test
// setup convenience.
func (s *Store) SeedFile(f models.File) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Files[f.ID] = f
}

// SeedPOI registers a POI row directly for test setup convenience.
func (s *Store) SeedPOI(p models.POI) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.POIs[p.ID] = p
}

// SeedDirectorySummary registers a directory summary directly for test
// setup convenience.
func (s *Store) SeedDirectorySummary(d models.DirectorySummary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.DirectorySummaries[d.RunID+":"+d.DirectoryPath] = d
}

type tx struct {
	store *Store
}

func (t *tx) UpsertFile(ctx context.Context, file models.File) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	t.store.Files[file.ID] = file
	return nil
}

func (t *tx) UpdateFileStatus(ctx context.Context, fileID string, status models.FileStatus, errMsg string) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	f, ok := t.store.Files[fileID]
	if !ok {
		return fmt.Errorf("relstoretest: unknown file %s", fileID)
	}
	f.Status = status
	f.ErrorMessage = errMsg
	t.store.Files[fileID] = f
	return nil
}

func (t *tx) InsertPOIs(ctx context.Context, pois []models.POI) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for _, p := range pois {
		t.store.POIs[p.ID] = p
	}
	return nil
}

func (t *tx) AppendEvidence(ctx context.Context, evidence []models.RelationshipEvidence) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for _, e := range evidence {
		if e.ID == 0 {
			e.ID = int64(len(t.store.Evidence) + 1)
		}
		t.store.Evidence = append(t.store.Evidence, e)
	}
	return nil
}

func (t *tx) UpsertValidatedRelationship(ctx context.Context, rel models.Relationship) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	t.store.Relationships[rel.RelationshipHash] = rel
	return nil
}

func (t *tx) UpsertDirectorySummary(ctx context.Context, summary models.DirectorySummary) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	t.store.DirectorySummaries[summary.RunID+":"+summary.DirectoryPath] = summary
	return nil
}

func (t *tx) InsertOutbox(ctx context.Context, event models.OutboxEvent) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	event.ID = t.store.nextOutboxID
	t.store.nextOutboxID++
	if event.Status == "" {
		event.Status = models.OutboxStatusPending
	}
	t.store.Outbox = append(t.store.Outbox, event)
	return nil
}

func (t *tx) SealManifest(ctx context.Context, manifest models.RunManifest) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	manifest.Sealed = true
	t.store.Manifests[manifest.RunID] = manifest
	return nil
}

func (t *tx) Commit() error   { return nil }
func (t *tx) Rollback() error { return nil }
