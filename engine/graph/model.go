package graph

import (
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	"github.com/ClippingsAI/clippings-mvp/engine/domain"
	"github.com/ClippingsAI/clippings-mvp/pkg/fn"
	"github.com/ClippingsAI/clippings-mvp/pkg/repo"
)

// DefaultRelatedLimit caps related-document lookups when no limit is given.
const DefaultRelatedLimit = 5

// RelatedDocument is a document connected to another through shared entities.
type RelatedDocument struct {
	ID             string   `json:"id"`
	SourceURL      string   `json:"source_url,omitempty"`
	SharedEntities []string `json:"shared_entities"`
	Shared         int      `json:"shared"`
}

// DocumentNode is the graph-side projection of a document.
type DocumentNode struct {
	ID        string `json:"id"`
	SourceURL string `json:"source_url,omitempty"`
}

// newDocumentRepo creates a Neo4j-backed repository for Document nodes.
func newDocumentRepo(driver neo4j.DriverWithContext) *repo.Neo4jRepo[DocumentNode, string] {
	return repo.NewNeo4jRepo[DocumentNode, string](
		driver,
		"Document",
		documentToMap,
		documentFromRecord,
	)
}

func documentToMap(d DocumentNode) map[string]any {
	return map[string]any{
		"id":         d.ID,
		"source_url": d.SourceURL,
	}
}

func documentFromRecord(rec *neo4j.Record) (DocumentNode, error) {
	node, _, err := neo4j.GetRecordValue[dbtype.Node](rec, "n")
	if err != nil {
		return DocumentNode{}, err
	}
	return DocumentNode{
		ID:        strProp(node.Props, "id"),
		SourceURL: strProp(node.Props, "source_url"),
	}, nil
}

func strProp(props map[string]any, key string) string {
	if v, ok := props[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// entitiesToMaps converts entities to cypher parameters, dropping duplicate
// name/kind pairs so MERGE does not redo work within one statement.
func entitiesToMaps(entities []domain.Entity) []map[string]any {
	unique := fn.UniqueBy(entities, func(e domain.Entity) [2]string {
		return [2]string{e.Name, e.Kind}
	})
	return fn.Map(unique, func(e domain.Entity) map[string]any {
		return map[string]any{"name": e.Name, "kind": e.Kind}
	})
}

func relatedFromRecord(rec *neo4j.Record) RelatedDocument {
	r := RelatedDocument{
		ID:        recordString(rec, "id"),
		SourceURL: recordString(rec, "source_url"),
	}
	if v, ok := rec.Get("shared"); ok {
		if n, ok := v.(int64); ok {
			r.Shared = int(n)
		}
	}
	if v, ok := rec.Get("entities"); ok {
		if list, ok := v.([]any); ok {
			for _, item := range list {
				if s, ok := item.(string); ok {
					r.SharedEntities = append(r.SharedEntities, s)
				}
			}
		}
	}
	return r
}

func recordString(rec *neo4j.Record, key string) string {
	if v, ok := rec.Get(key); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
