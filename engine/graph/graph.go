// Package graph maintains the entity graph in Neo4j: documents, the named
// entities they mention, and the MENTIONS edges between them. Related-document
// lookups walk shared entities instead of vector space.
package graph

import (
	"context"
	"errors"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/ClippingsAI/clippings-mvp/engine/domain"
	"github.com/ClippingsAI/clippings-mvp/pkg/repo"
)

// CypherResult is the minimal surface needed from a neo4j result.
type CypherResult interface {
	Next(ctx context.Context) bool
	Record() *neo4j.Record
	Err() error
}

// CypherSession runs cypher statements.
type CypherSession interface {
	Run(ctx context.Context, cypher string, params map[string]any) (CypherResult, error)
	Close(ctx context.Context) error
}

// SessionOpener opens cypher sessions.
type SessionOpener interface {
	OpenSession(ctx context.Context) CypherSession
}

// driverOpener adapts a neo4j driver to SessionOpener.
type driverOpener struct {
	driver neo4j.DriverWithContext
}

type driverSession struct {
	sess neo4j.SessionWithContext
}

func (o driverOpener) OpenSession(ctx context.Context) CypherSession {
	return driverSession{sess: o.driver.NewSession(ctx, neo4j.SessionConfig{})}
}

func (s driverSession) Run(ctx context.Context, cypher string, params map[string]any) (CypherResult, error) {
	return s.sess.Run(ctx, cypher, params)
}

func (s driverSession) Close(ctx context.Context) error {
	return s.sess.Close(ctx)
}

// GraphStore provides entity graph operations.
type GraphStore struct {
	driver    neo4j.DriverWithContext
	opener    SessionOpener
	documents *repo.Neo4jRepo[DocumentNode, string]
}

// New creates a GraphStore over a neo4j driver.
func New(driver neo4j.DriverWithContext) *GraphStore {
	return &GraphStore{
		driver:    driver,
		opener:    driverOpener{driver: driver},
		documents: newDocumentRepo(driver),
	}
}

// NewWithOpener creates a GraphStore with a custom session opener.
func NewWithOpener(opener SessionOpener) *GraphStore {
	return &GraphStore{opener: opener}
}

// Close releases the underlying driver.
func (g *GraphStore) Close(ctx context.Context) error {
	if g.driver == nil {
		return nil
	}
	return g.driver.Close(ctx)
}

// SaveDocumentEntities upserts the document node and its MENTIONS edges.
// Entities are shared nodes keyed by name and kind, so two documents that
// mention the same organization converge on one Entity node.
func (g *GraphStore) SaveDocumentEntities(ctx context.Context, docID, sourceURL string, entities []domain.Entity) error {
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	cypher := `MERGE (d:Document {id: $id})
		SET d.source_url = $source_url
		WITH d
		UNWIND $entities AS ent
		MERGE (e:Entity {name: ent.name, kind: ent.kind})
		MERGE (d)-[:MENTIONS]->(e)`
	_, err := sess.Run(ctx, cypher, map[string]any{
		"id":         docID,
		"source_url": sourceURL,
		"entities":   entitiesToMaps(entities),
	})
	if err != nil {
		return fmt.Errorf("graph: save entities for %s: %w", docID, err)
	}
	return nil
}

// RelatedDocuments returns documents that mention entities in common with
// the given one, most shared entities first.
func (g *GraphStore) RelatedDocuments(ctx context.Context, docID string, limit int) ([]RelatedDocument, error) {
	if limit <= 0 {
		limit = DefaultRelatedLimit
	}
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	cypher := `MATCH (d:Document {id: $id})-[:MENTIONS]->(e:Entity)<-[:MENTIONS]-(other:Document)
		RETURN other.id AS id, other.source_url AS source_url,
		       count(DISTINCT e) AS shared, collect(DISTINCT e.name) AS entities
		ORDER BY shared DESC, id ASC
		LIMIT $limit`
	result, err := sess.Run(ctx, cypher, map[string]any{"id": docID, "limit": int64(limit)})
	if err != nil {
		return nil, fmt.Errorf("graph: related documents for %s: %w", docID, err)
	}

	var related []RelatedDocument
	for result.Next(ctx) {
		related = append(related, relatedFromRecord(result.Record()))
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("graph: related documents for %s: %w", docID, err)
	}
	return related, nil
}

// DocumentEntities returns the entities a document mentions.
func (g *GraphStore) DocumentEntities(ctx context.Context, docID string) ([]domain.Entity, error) {
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	cypher := `MATCH (:Document {id: $id})-[:MENTIONS]->(e:Entity)
		RETURN e.name AS name, e.kind AS kind
		ORDER BY kind, name`
	result, err := sess.Run(ctx, cypher, map[string]any{"id": docID})
	if err != nil {
		return nil, fmt.Errorf("graph: entities for %s: %w", docID, err)
	}

	var entities []domain.Entity
	for result.Next(ctx) {
		rec := result.Record()
		entities = append(entities, domain.Entity{
			Name: recordString(rec, "name"),
			Kind: recordString(rec, "kind"),
		})
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("graph: entities for %s: %w", docID, err)
	}
	return entities, nil
}

// GetDocument returns the graph node for a document. Without a repo
// (opener-only construction) it falls back to a direct query.
func (g *GraphStore) GetDocument(ctx context.Context, docID string) (DocumentNode, error) {
	if g.documents != nil {
		node, err := g.documents.Get(ctx, docID)
		if errors.Is(err, repo.ErrNotFound) {
			return DocumentNode{}, fmt.Errorf("graph: document %s: %w", docID, domain.ErrNotFound)
		}
		return node, err
	}

	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	result, err := sess.Run(ctx, `MATCH (n:Document {id: $id}) RETURN n`, map[string]any{"id": docID})
	if err != nil {
		return DocumentNode{}, fmt.Errorf("graph: get document %s: %w", docID, err)
	}
	if !result.Next(ctx) {
		return DocumentNode{}, fmt.Errorf("graph: document %s: %w", docID, domain.ErrNotFound)
	}
	return documentFromRecord(result.Record())
}

// DeleteDocument removes the document node and its edges. Entity nodes that
// lose their last mention are removed with it.
func (g *GraphStore) DeleteDocument(ctx context.Context, docID string) error {
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	cypher := `MATCH (d:Document {id: $id})
		OPTIONAL MATCH (d)-[:MENTIONS]->(e:Entity)
		DETACH DELETE d
		WITH e
		WHERE e IS NOT NULL AND NOT (e)<-[:MENTIONS]-()
		DELETE e`
	if _, err := sess.Run(ctx, cypher, map[string]any{"id": docID}); err != nil {
		return fmt.Errorf("graph: delete document %s: %w", docID, err)
	}
	return nil
}
