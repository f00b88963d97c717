// Package graphstore is the Neo4j-backed GraphStore (spec.md C2): the
// durable destination GraphBuilder writes POI nodes and validated
// relationship edges to, and SelfCleaner deletes from when a file's
// source has disappeared.
package graphstore

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/codegraph-dev/codegraph/pkg/models"
)

// nodeBatchSize and edgeBatchSize match spec.md §4.10's "batch 1000".
const (
	nodeBatchSize = 1000
	edgeBatchSize = 1000
)

// GraphStore is the contract GraphBuilder and SelfCleaner depend on.
type GraphStore interface {
	// UpsertPOINodes MERGEs POI nodes by id, batching internally.
	UpsertPOINodes(ctx context.Context, pois []models.POI) (int, error)
	// UpsertRelationshipEdges MERGEs edges by (source_id, target_id, type),
	// batching internally.
	UpsertRelationshipEdges(ctx context.Context, rels []models.Relationship) (int, error)
	// DeleteFileSubgraph removes every POI node whose file_path is in
	// paths, in one transaction, used by SelfCleaner's sweep phase.
	DeleteFileSubgraph(ctx context.Context, runID string, paths []string) error
	// Ping verifies connectivity.
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

type neoStore struct {
	driver   neo4j.DriverWithContext
	database string
}

// New dials uri and verifies connectivity before returning. database may
// be empty to use Neo4j's default database.
func New(ctx context.Context, opts models.GraphStoreOptions) (GraphStore, error) {
	driver, err := neo4j.NewDriverWithContext(opts.URI, neo4j.BasicAuth(opts.User, opts.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("graphstore: create driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("graphstore: verify connectivity: %w", err)
	}
	return &neoStore{driver: driver, database: opts.Database}, nil
}

func (s *neoStore) session(ctx context.Context) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: s.database,
	})
}

const mergePOIQuery = `
UNWIND $rows AS row
MERGE (p:POI {id: row.id})
SET p.name = row.name,
    p.type = row.type,
    p.file_path = row.file_path,
    p.start_line = row.start_line,
    p.end_line = row.end_line
`

func (s *neoStore) UpsertPOINodes(ctx context.Context, pois []models.POI) (int, error) {
	session := s.session(ctx)
	defer session.Close(ctx)

	written := 0
	for start := 0; start < len(pois); start += nodeBatchSize {
		end := start + nodeBatchSize
		if end > len(pois) {
			end = len(pois)
		}
		batch := pois[start:end]

		rows := make([]map[string]any, 0, len(batch))
		for _, p := range batch {
			rows = append(rows, map[string]any{
				"id":         p.ID,
				"name":       p.Name,
				"type":       p.Type,
				"file_path":  p.FilePath,
				"start_line": p.StartLine,
				"end_line":   p.EndLine,
			})
		}

		_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
			return tx.Run(ctx, mergePOIQuery, map[string]any{"rows": rows})
		})
		if err != nil {
			return written, fmt.Errorf("graphstore: merge poi batch [%d:%d]: %w", start, end, err)
		}
		written += len(batch)
	}
	return written, nil
}

const mergeRelationshipQuery = `
UNWIND $rows AS row
MATCH (s:POI {id: row.source_id})
MATCH (t:POI {id: row.target_id})
MERGE (s)-[r:RELATES {type: row.type}]->(t)
SET r.confidence = row.confidence,
    r.relationship_hash = row.relationship_hash,
    r.evidence_count = row.evidence_count
`

func (s *neoStore) UpsertRelationshipEdges(ctx context.Context, rels []models.Relationship) (int, error) {
	session := s.session(ctx)
	defer session.Close(ctx)

	written := 0
	for start := 0; start < len(rels); start += edgeBatchSize {
		end := start + edgeBatchSize
		if end > len(rels) {
			end = len(rels)
		}
		batch := rels[start:end]

		rows := make([]map[string]any, 0, len(batch))
		for _, r := range batch {
			rows = append(rows, map[string]any{
				"source_id":         r.SourcePOIID,
				"target_id":         r.TargetPOIID,
				"type":              r.Type,
				"confidence":        r.Confidence,
				"relationship_hash": r.RelationshipHash,
				"evidence_count":    r.EvidenceCount,
			})
		}

		_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
			return tx.Run(ctx, mergeRelationshipQuery, map[string]any{"rows": rows})
		})
		if err != nil {
			return written, fmt.Errorf("graphstore: merge relationship batch [%d:%d]: %w", start, end, err)
		}
		written += len(batch)
	}
	return written, nil
}

const deleteFileSubgraphQuery = `
UNWIND $paths AS path
MATCH (p:POI {file_path: path})
DETACH DELETE p
`

func (s *neoStore) DeleteFileSubgraph(ctx context.Context, runID string, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	session := s.session(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, deleteFileSubgraphQuery, map[string]any{"paths": paths})
	})
	if err != nil {
		return fmt.Errorf("graphstore: delete file subgraph: %w", err)
	}
	return nil
}

func (s *neoStore) Ping(ctx context.Context) error {
	return s.driver.VerifyConnectivity(ctx)
}

func (s *neoStore) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}
