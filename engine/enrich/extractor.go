// Package enrich derives structured metadata for stored documents. The
// extractor asks the model for publisher, author, named entities, and
// categories; the queue runs extraction detached from ingestion so a slow
// or failing model call never blocks a document insert.
package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ClippingsAI/clippings-mvp/engine/domain"
)

// promptPrefixChars bounds how much article text the extraction prompt
// carries. The signal (byline, masthead, lede) lives at the top.
const promptPrefixChars = 1500

const extractorSystemPrompt = "You are a helpful assistant that extracts structured data from text."

const extractorPromptFormat = `Analyze this article and extract the following information in JSON format:
1. Publisher name (from the URL or content)
2. Author name (look for byline, author attribution)
3. Named entities (organizations, persons, locations, dates mentioned)
4. Categories (2-3 main topics)

Article: %s...

Respond only with JSON in this format:
{
  "publisher_name": "string",
  "author": "string",
  "named_entities": {
    "organizations": ["string"],
    "persons": ["string"],
    "locations": ["string"],
    "dates": ["string"]
  },
  "categories": ["string"]
}`

// JSONCompleter is the model-service surface the extractor needs.
type JSONCompleter interface {
	CompleteJSON(ctx context.Context, system, prompt string) (string, error)
}

// Extractor derives document metadata with a single model call.
type Extractor struct {
	model JSONCompleter
}

// NewExtractor creates an Extractor.
func NewExtractor(model JSONCompleter) *Extractor {
	return &Extractor{model: model}
}

// Extract returns metadata for the given article text. The model sees only
// a bounded prefix of the content. A response that is not the expected JSON
// shape is an error, never coerced into partial metadata.
func (e *Extractor) Extract(ctx context.Context, content, sourceURL string) (*domain.Metadata, error) {
	prompt := fmt.Sprintf(extractorPromptFormat, prefix(content, promptPrefixChars))

	raw, err := e.model.CompleteJSON(ctx, extractorSystemPrompt, prompt)
	if err != nil {
		return nil, fmt.Errorf("enrich: extract metadata: %w", err)
	}

	var meta domain.Metadata
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&meta); err != nil {
		return nil, fmt.Errorf("enrich: %w: %v", domain.ErrBadMetadata, err)
	}
	if err := domain.ValidateMetadata(meta); err != nil {
		return nil, fmt.Errorf("enrich: %w", err)
	}
	return &meta, nil
}

// prefix bounds s to at most n bytes, backing off so a multi-byte rune is
// never split.
func prefix(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
