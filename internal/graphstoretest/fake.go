// Package graphstoretest provides an in-memory graphstore.GraphStore fake
// for tests that exercise GraphBuilder and SelfCleaner without a live
// Neo4j instance.
package graphstoretest

import (
	"context"
	"sync"

	"github.com/codegraph-dev/codegraph/pkg/models"
)

// GraphStore is an in-memory graphstore.GraphStore fake.
type GraphStore struct {
	mu sync.Mutex

	Nodes         map[string]models.POI
	Edges         map[string]models.Relationship
	DeletedPaths  []string
	DeleteCalls   int
}

// New returns an empty fake graph store.
func New() *GraphStore {
	return &GraphStore{Nodes: make(map[string]models.POI), Edges: make(map[string]models.Relationship)}
}

func (g *GraphStore) UpsertPOINodes(ctx context.Context, pois []models.POI) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, p := range pois {
		g.Nodes[p.ID] = p
	}
	return len(pois), nil
}

func (g *GraphStore) UpsertRelationshipEdges(ctx context.Context, rels []models.Relationship) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, r := range rels {
		g.Edges[r.RelationshipHash] = r
	}
	return len(rels), nil
}

func (g *GraphStore) DeleteFileSubgraph(ctx context.Context, runID string, paths []string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.DeleteCalls++
	g.DeletedPaths = append(g.DeletedPaths, paths...)
	for id, n := range g.Nodes {
		for _, p := range paths {
			if n.FilePath == p {
				delete(g.Nodes, id)
			}
		}
	}
	return nil
}

func (g *GraphStore) Ping(ctx context.Context) error  { return nil }
func (g *GraphStore) Close(ctx context.Context) error { return nil }
