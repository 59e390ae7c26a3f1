package enrich

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/ClippingsAI/clippings-mvp/engine/domain"
)

// --- mocks ---

type mockJSONCompleter struct {
	response   string
	err        error
	lastPrompt string
}

func (m *mockJSONCompleter) CompleteJSON(_ context.Context, _ string, prompt string) (string, error) {
	m.lastPrompt = prompt
	return m.response, m.err
}

type mockMetadataWriter struct {
	lastID   string
	lastMeta domain.Metadata
	err      error
	calls    int
}

func (m *mockMetadataWriter) UpdateMetadata(_ context.Context, id string, meta domain.Metadata) error {
	m.calls++
	m.lastID = id
	m.lastMeta = meta
	return m.err
}

type mockEntityGraph struct {
	lastDocID    string
	lastEntities []domain.Entity
	err          error
}

func (m *mockEntityGraph) SaveDocumentEntities(_ context.Context, docID, _ string, entities []domain.Entity) error {
	m.lastDocID = docID
	m.lastEntities = entities
	return m.err
}

const validResponse = `{
  "publisher_name": "The Ithaca Voice",
  "author": "A. Reporter",
  "named_entities": {
    "organizations": ["Cornell University"],
    "persons": ["Jane Doe"],
    "locations": ["Ithaca"],
    "dates": ["March 5, 2024"]
  },
  "categories": ["local", "education"]
}`

// --- tests ---

func TestExtractParsesMetadata(t *testing.T) {
	model := &mockJSONCompleter{response: validResponse}
	e := NewExtractor(model)

	meta, err := e.Extract(context.Background(), "article text", "https://ithacavoice.org/a")
	if err != nil {
		t.Fatal(err)
	}
	if meta.PublisherName != "The Ithaca Voice" || meta.Author != "A. Reporter" {
		t.Fatalf("unexpected metadata: %+v", meta)
	}
	if len(meta.NamedEntities.All()) != 4 {
		t.Fatalf("got %d entities, want 4", len(meta.NamedEntities.All()))
	}
	if len(meta.Categories) != 2 {
		t.Fatalf("categories: %v", meta.Categories)
	}
}

func TestExtractBoundsPromptContent(t *testing.T) {
	model := &mockJSONCompleter{response: validResponse}
	e := NewExtractor(model)

	content := strings.Repeat("a", promptPrefixChars) + "TAIL-MARKER"
	if _, err := e.Extract(context.Background(), content, ""); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(model.lastPrompt, "TAIL-MARKER") {
		t.Fatal("prompt must carry only the bounded content prefix")
	}
	if !strings.Contains(model.lastPrompt, strings.Repeat("a", promptPrefixChars)) {
		t.Fatal("prompt missing the content prefix")
	}
}

func TestExtractPrefixKeepsRunesIntact(t *testing.T) {
	model := &mockJSONCompleter{response: validResponse}
	e := NewExtractor(model)

	// A multi-byte rune straddles the prefix boundary.
	content := strings.Repeat("a", promptPrefixChars-1) + "é" + strings.Repeat("b", 100)
	if _, err := e.Extract(context.Background(), content, ""); err != nil {
		t.Fatal(err)
	}
	if !utf8.ValidString(model.lastPrompt) {
		t.Fatal("prompt carries invalid UTF-8")
	}
}

func TestExtractRejectsMalformedJSON(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{"not json", "Sure! Here is the metadata you asked for."},
		{"truncated", `{"publisher_name": "The`},
		{"unknown fields", `{"publisher": "X", "writer": "Y"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewExtractor(&mockJSONCompleter{response: tt.response})
			_, err := e.Extract(context.Background(), "text", "")
			if !errors.Is(err, domain.ErrBadMetadata) {
				t.Fatalf("got %v, want ErrBadMetadata", err)
			}
		})
	}
}

func TestExtractRejectsEmptyMetadata(t *testing.T) {
	e := NewExtractor(&mockJSONCompleter{response: `{"publisher_name": "", "author": ""}`})
	if _, err := e.Extract(context.Background(), "text", ""); !errors.Is(err, domain.ErrBadMetadata) {
		t.Fatalf("got %v, want ErrBadMetadata", err)
	}
}

func TestExtractPropagatesModelError(t *testing.T) {
	boom := errors.New("model unavailable")
	e := NewExtractor(&mockJSONCompleter{err: boom})
	if _, err := e.Extract(context.Background(), "text", ""); !errors.Is(err, boom) {
		t.Fatalf("got %v, want wrapped %v", err, boom)
	}
}

func TestRunTaskStoresMetadataAndEntities(t *testing.T) {
	store := &mockMetadataWriter{}
	graph := &mockEntityGraph{}
	deps := Deps{
		Extractor: NewExtractor(&mockJSONCompleter{response: validResponse}),
		Store:     store,
		Graph:     graph,
	}

	task := Task{DocID: "doc-1", Content: "article", SourceURL: "https://x.example"}
	if err := runTask(context.Background(), deps, task, slog.Default()); err != nil {
		t.Fatal(err)
	}
	if store.lastID != "doc-1" || store.lastMeta.PublisherName != "The Ithaca Voice" {
		t.Fatalf("metadata not written: id=%q meta=%+v", store.lastID, store.lastMeta)
	}
	if graph.lastDocID != "doc-1" || len(graph.lastEntities) != 4 {
		t.Fatalf("entities not saved: %+v", graph)
	}
}

func TestRunTaskExtractFailureSkipsWrite(t *testing.T) {
	store := &mockMetadataWriter{}
	deps := Deps{
		Extractor: NewExtractor(&mockJSONCompleter{response: "nope"}),
		Store:     store,
	}
	if err := runTask(context.Background(), deps, Task{DocID: "doc-1", Content: "c"}, slog.Default()); err == nil {
		t.Fatal("expected error")
	}
	if store.calls != 0 {
		t.Fatal("metadata must not be written on extraction failure")
	}
}

func TestRunTaskGraphFailureIsAbsorbed(t *testing.T) {
	store := &mockMetadataWriter{}
	graph := &mockEntityGraph{err: errors.New("neo4j down")}
	deps := Deps{
		Extractor: NewExtractor(&mockJSONCompleter{response: validResponse}),
		Store:     store,
		Graph:     graph,
	}
	if err := runTask(context.Background(), deps, Task{DocID: "doc-1", Content: "c"}, slog.Default()); err != nil {
		t.Fatalf("graph failure must not fail the task: %v", err)
	}
	if store.calls != 1 {
		t.Fatal("metadata write expected")
	}
}

func TestRunTaskStoreFailurePropagates(t *testing.T) {
	store := &mockMetadataWriter{err: errors.New("qdrant down")}
	deps := Deps{
		Extractor: NewExtractor(&mockJSONCompleter{response: validResponse}),
		Store:     store,
	}
	if err := runTask(context.Background(), deps, Task{DocID: "doc-1", Content: "c"}, slog.Default()); err == nil {
		t.Fatal("expected error")
	}
}
