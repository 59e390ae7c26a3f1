// Package rag orchestrates the Retrieval-Augmented Generation pipeline.
// It embeds a user query, searches the document store for relevant
// passages, assembles a bounded context string, and drives chat turns
// against the model service, either streaming text or executing a
// declared tool mid-generation.
package rag

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/ClippingsAI/clippings-mvp/engine/domain"
	"github.com/ClippingsAI/clippings-mvp/pkg/fn"
)

// Retrieval parameters for context assembly.
const (
	// SimilarityThreshold is the minimum score for a passage to qualify.
	SimilarityThreshold float32 = 0.6
	// MaxPassages bounds the assembled context.
	MaxPassages = 3
	// dateFormat renders document timestamps in context blocks.
	dateFormat = "Jan 2, 2006"
)

// Embedder turns text into an embedding vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Searcher abstracts vector similarity search over the document store.
type Searcher interface {
	SimilaritySearch(ctx context.Context, vector []float32, threshold float32, limit int) ([]domain.SearchResult, error)
}

// Assembler builds prompt context from the knowledge base.
type Assembler struct {
	embed  Embedder
	search Searcher
	logger *slog.Logger
}

// NewAssembler creates an Assembler.
func NewAssembler(embed Embedder, search Searcher, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{embed: embed, search: search, logger: logger}
}

// BuildContext returns a formatted context string for the query, or "" when
// retrieval yields nothing. Embedding and search failures degrade to an
// empty context; a chat turn proceeds without retrieval rather than failing.
func (a *Assembler) BuildContext(ctx context.Context, query string) string {
	vector, err := a.embed.Embed(ctx, query)
	if err != nil {
		a.logger.Warn("context: embed query failed, continuing without retrieval", "err", err)
		return ""
	}

	results, err := a.search.SimilaritySearch(ctx, vector, SimilarityThreshold, MaxPassages)
	if err != nil {
		a.logger.Warn("context: similarity search failed, continuing without retrieval", "err", err)
		return ""
	}
	if len(results) == 0 {
		return ""
	}

	// Most recent first. The structured timestamp is carried through to the
	// sort; the rendered date is display-only.
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].CreatedAt.After(results[j].CreatedAt)
	})

	blocks := fn.Map(results, renderBlock)
	a.logger.Info("context assembled", "passages", len(blocks))
	return strings.Join(blocks, "\n\n")
}

// renderBlock formats one search result as a context block: a date/relevance
// header, source and category lines when known, then the raw content.
func renderBlock(r domain.SearchResult) string {
	relevance := int(math.Round(float64(r.Similarity) * 100))
	parts := []string{
		fmt.Sprintf("[%s | %d%% relevance]", r.CreatedAt.Format(dateFormat), relevance),
	}

	if line := sourceLine(r); line != "" {
		parts = append(parts, line)
	}
	if r.Metadata != nil && len(r.Metadata.Categories) > 0 {
		parts = append(parts, "Categories: "+strings.Join(r.Metadata.Categories, ", "))
	}
	parts = append(parts, r.Content)
	return strings.Join(parts, "\n")
}

// sourceLine joins publisher, author, and URL, omitting absent fields. The
// line only appears when a publisher or URL is known; an author alone is not
// a citable source.
func sourceLine(r domain.SearchResult) string {
	publisher := ""
	author := ""
	if r.Metadata != nil {
		publisher = r.Metadata.PublisherName
		author = r.Metadata.Author
	}
	if publisher == "" && r.SourceURL == "" {
		return ""
	}

	var info []string
	if publisher != "" {
		info = append(info, publisher)
	}
	if author != "" {
		info = append(info, "by "+author)
	}
	if r.SourceURL != "" {
		info = append(info, "("+r.SourceURL+")")
	}
	return "Source: " + strings.Join(info, " ")
}
