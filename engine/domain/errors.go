package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the store and ingestion pipeline.
var (
	ErrNotFound     = errors.New("document not found")
	ErrEmptyContent = errors.New("content is empty")
	ErrNotHTML      = errors.New("response is not HTML")
	ErrNoContent    = errors.New("no readable content")
	ErrBadMetadata  = errors.New("malformed metadata response")
	ErrBadHistory   = errors.New("invalid conversation history")
)

// Ingestion error kinds.
const (
	KindFetch   = "fetch"
	KindExtract = "extract"
	KindEmbed   = "embed"
	KindStore   = "store"
)

// IngestError is the structured error returned by the ingestion coordinator.
// Kind identifies the failed stage; no partial document is persisted.
type IngestError struct {
	Kind    string
	URL     string
	Wrapped error
}

func (e *IngestError) Error() string {
	return fmt.Sprintf("ingest %s: %s: %v", e.Kind, e.URL, e.Wrapped)
}

func (e *IngestError) Unwrap() error { return e.Wrapped }

// NewIngestError wraps a stage failure with its kind and source URL.
func NewIngestError(kind, url string, wrapped error) *IngestError {
	return &IngestError{Kind: kind, URL: url, Wrapped: wrapped}
}
