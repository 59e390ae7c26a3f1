// Package ingest coordinates the article ingestion pipeline: fetch a URL,
// extract readable text, embed it, persist the document, and hand off
// metadata enrichment to the task queue.
package ingest

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/ClippingsAI/clippings-mvp/engine/domain"
	"github.com/ClippingsAI/clippings-mvp/engine/enrich"
	"github.com/ClippingsAI/clippings-mvp/engine/extract"
	"github.com/ClippingsAI/clippings-mvp/pkg/fn"
)

// PageFetcher retrieves raw HTML for a URL.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Embedder turns text into an embedding vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Inserter persists a new document and returns its assigned id.
type Inserter interface {
	Insert(ctx context.Context, doc domain.Document) (string, error)
}

// Dispatcher queues a metadata enrichment task.
type Dispatcher interface {
	Dispatch(ctx context.Context, task enrich.Task) error
}

// Intermediate pipeline values.

type page struct {
	URL  string
	HTML string
}

type article struct {
	URL  string
	Text string
}

type embeddedArticle struct {
	article
	Vector []float32
}

// --- Pipeline Stages ---

// NewFetchStage downloads the page for a URL.
func NewFetchStage(fetcher PageFetcher) fn.Stage[string, page] {
	return fn.TracedStage("ingest.fetch", func(ctx context.Context, url string) fn.Result[page] {
		html, err := fetcher.Fetch(ctx, url)
		if err != nil {
			return fn.Err[page](domain.NewIngestError(domain.KindFetch, url, err))
		}
		return fn.Ok(page{URL: url, HTML: html})
	})
}

// ExtractStage pulls readable article text out of the page. An empty
// extraction fails the pipeline; nothing is persisted for such pages.
var ExtractStage fn.Stage[page, article] = fn.TracedStage("ingest.extract", func(_ context.Context, p page) fn.Result[article] {
	text := extract.Text(p.HTML, p.URL)
	if text == "" {
		return fn.Err[article](domain.NewIngestError(domain.KindExtract, p.URL, domain.ErrNoContent))
	}
	return fn.Ok(article{URL: p.URL, Text: text})
})

// NewEmbedStage embeds the extracted text.
func NewEmbedStage(embedder Embedder) fn.Stage[article, embeddedArticle] {
	return fn.TracedStage("ingest.embed", func(ctx context.Context, a article) fn.Result[embeddedArticle] {
		vector, err := embedder.Embed(ctx, a.Text)
		if err != nil {
			return fn.Err[embeddedArticle](domain.NewIngestError(domain.KindEmbed, a.URL, err))
		}
		return fn.Ok(embeddedArticle{article: a, Vector: vector})
	})
}

// NewInsertStage persists the embedded article.
func NewInsertStage(store Inserter) fn.Stage[embeddedArticle, domain.Document] {
	return fn.TracedStage("ingest.insert", func(ctx context.Context, a embeddedArticle) fn.Result[domain.Document] {
		doc := domain.Document{
			Content:   a.Text,
			Embedding: a.Vector,
			SourceURL: a.URL,
			CreatedAt: time.Now().UTC(),
		}
		id, err := store.Insert(ctx, doc)
		if err != nil {
			return fn.Err[domain.Document](domain.NewIngestError(domain.KindStore, a.URL, err))
		}
		doc.ID = id
		return fn.Ok(doc)
	})
}

// Coordinator runs the ingestion pipeline end to end.
type Coordinator struct {
	pipeline   fn.Stage[string, domain.Document]
	embedder   Embedder
	store      Inserter
	dispatcher Dispatcher
	logger     *slog.Logger
}

// NewCoordinator wires the pipeline stages. A nil dispatcher disables
// enrichment hand-off.
func NewCoordinator(fetcher PageFetcher, embedder Embedder, store Inserter, dispatcher Dispatcher, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	fetched := fn.Then(NewFetchStage(fetcher), ExtractStage)
	embedded := fn.Then(fetched, NewEmbedStage(embedder))
	return &Coordinator{
		pipeline:   fn.Then(embedded, NewInsertStage(store)),
		embedder:   embedder,
		store:      store,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// IngestURL fetches, extracts, embeds, and stores one article, then queues
// metadata enrichment. Any stage failure aborts before the insert; the
// returned document carries no metadata because enrichment runs detached.
func (c *Coordinator) IngestURL(ctx context.Context, url string) (domain.Document, error) {
	doc, err := c.pipeline(ctx, url).Unwrap()
	if err != nil {
		return domain.Document{}, err
	}
	c.logger.Info("ingested", "doc_id", doc.ID, "url", url, "chars", len(doc.Content))
	c.dispatch(ctx, doc)
	return doc, nil
}

// IngestText stores pre-extracted text directly, skipping fetch and
// extraction, then queues enrichment the same way IngestURL does.
func (c *Coordinator) IngestText(ctx context.Context, content string) (domain.Document, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return domain.Document{}, domain.NewIngestError(domain.KindExtract, "", domain.ErrEmptyContent)
	}

	vector, err := c.embedder.Embed(ctx, content)
	if err != nil {
		return domain.Document{}, domain.NewIngestError(domain.KindEmbed, "", err)
	}

	doc := domain.Document{Content: content, Embedding: vector, CreatedAt: time.Now().UTC()}
	id, err := c.store.Insert(ctx, doc)
	if err != nil {
		return domain.Document{}, domain.NewIngestError(domain.KindStore, "", err)
	}
	doc.ID = id

	c.logger.Info("ingested text", "doc_id", doc.ID, "chars", len(doc.Content))
	c.dispatch(ctx, doc)
	return doc, nil
}

// dispatch hands the document to the enrichment queue. A publish failure
// only loses metadata, never the document, so it is logged and absorbed.
func (c *Coordinator) dispatch(ctx context.Context, doc domain.Document) {
	if c.dispatcher == nil {
		return
	}
	task := enrich.Task{DocID: doc.ID, Content: doc.Content, SourceURL: doc.SourceURL}
	if err := c.dispatcher.Dispatch(ctx, task); err != nil {
		c.logger.Warn("enrichment dispatch failed, document stored without metadata",
			"doc_id", doc.ID, "err", err)
	}
}
