// Package domain defines the core types shared across the Clippings engine:
// documents, search results, conversation messages, and the error taxonomy.
package domain

import "time"

// Document is the persisted unit of the knowledge base.
type Document struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Embedding []float32 `json:"embedding,omitempty"`
	SourceURL string    `json:"source_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Metadata  *Metadata `json:"metadata,omitempty"`
}

// Metadata holds structured fields derived from a document after ingestion.
// It is written exactly once by the enrichment step; a nil Metadata is a
// valid transient state, not an error.
type Metadata struct {
	PublisherName string        `json:"publisher_name,omitempty"`
	Author        string        `json:"author,omitempty"`
	NamedEntities NamedEntities `json:"named_entities"`
	Categories    []string      `json:"categories,omitempty"`
}

// NamedEntities groups extracted entities by type.
type NamedEntities struct {
	Organizations []string `json:"organizations"`
	Persons       []string `json:"persons"`
	Locations     []string `json:"locations"`
	Dates         []string `json:"dates"`
}

// All returns every entity with its kind, in a stable order.
func (n NamedEntities) All() []Entity {
	var out []Entity
	for _, name := range n.Organizations {
		out = append(out, Entity{Name: name, Kind: "organization"})
	}
	for _, name := range n.Persons {
		out = append(out, Entity{Name: name, Kind: "person"})
	}
	for _, name := range n.Locations {
		out = append(out, Entity{Name: name, Kind: "location"})
	}
	for _, name := range n.Dates {
		out = append(out, Entity{Name: name, Kind: "date"})
	}
	return out
}

// Entity is a single named entity with its kind.
type Entity struct {
	Name string `json:"name"`
	Kind string `json:"kind"` // organization, person, location, date
}

// SearchResult is a query-time projection of a Document. Similarity is set
// only for vector similarity queries and is in [0,1].
type SearchResult struct {
	Document
	Similarity float32 `json:"similarity,omitempty"`
}
