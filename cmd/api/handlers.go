package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ClippingsAI/clippings-mvp/engine/domain"
	"github.com/ClippingsAI/clippings-mvp/engine/graph"
	"github.com/ClippingsAI/clippings-mvp/engine/model"
	"github.com/ClippingsAI/clippings-mvp/pkg/fn"
	"github.com/ClippingsAI/clippings-mvp/pkg/metrics"
)

// Narrow views of the engine services, so handlers are testable with fakes.

type ingester interface {
	IngestURL(ctx context.Context, url string) (domain.Document, error)
	IngestText(ctx context.Context, content string) (domain.Document, error)
}

type documentStore interface {
	Delete(ctx context.Context, id string) error
	FullTextSearch(ctx context.Context, query string) ([]domain.Document, error)
	SimilaritySearch(ctx context.Context, vector []float32, threshold float32, limit int) ([]domain.SearchResult, error)
	Ping(ctx context.Context) error
}

type embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type chatService interface {
	StreamTurn(ctx context.Context, history []domain.Message) (*model.Stream, error)
	ToolTurn(ctx context.Context, history []domain.Message) ([]domain.Message, error)
}

type entityGraph interface {
	GetDocument(ctx context.Context, docID string) (graph.DocumentNode, error)
	RelatedDocuments(ctx context.Context, docID string, limit int) ([]graph.RelatedDocument, error)
	DocumentEntities(ctx context.Context, docID string) ([]domain.Entity, error)
	DeleteDocument(ctx context.Context, docID string) error
	NodeCounts(ctx context.Context) (map[string]int64, error)
	TopEntities(ctx context.Context, limit int) ([]graph.EntityStats, error)
}

type serverDeps struct {
	ingest   ingester
	store    documentStore
	embedder embedder
	chat     chatService
	graph    entityGraph
	registry *metrics.Registry
	logger   *slog.Logger

	// modelOK reports whether a model-service credential is configured.
	// Without one the server still runs; embed and chat calls fail per
	// request.
	modelOK bool
}

type server struct {
	serverDeps

	ingested  *metrics.Counter
	deleted   *metrics.Counter
	searches  *metrics.Counter
	chatTurns *metrics.Counter
	toolTurns *metrics.Counter
}

func newServer(deps serverDeps) *server {
	if deps.logger == nil {
		deps.logger = slog.Default()
	}
	if deps.registry == nil {
		deps.registry = metrics.New()
	}
	reg := deps.registry
	return &server{
		serverDeps: deps,
		ingested:   reg.Counter("clippings_documents_ingested_total", "Documents ingested"),
		deleted:    reg.Counter("clippings_documents_deleted_total", "Documents deleted"),
		searches:   reg.Counter("clippings_searches_total", "Search requests"),
		chatTurns:  reg.Counter("clippings_chat_turns_total", "Streaming chat turns"),
		toolTurns:  reg.Counter("clippings_tool_turns_total", "Tool-augmented chat turns"),
	}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/documents", s.handleIngestURL)
	mux.HandleFunc("POST /api/documents/text", s.handleIngestText)
	mux.HandleFunc("DELETE /api/documents/{id}", s.handleDeleteDocument)
	mux.HandleFunc("GET /api/documents/{id}/related", s.handleRelated)
	mux.HandleFunc("GET /api/documents/{id}/entities", s.handleEntities)
	mux.HandleFunc("GET /api/search", s.handleSearch)
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("POST /api/chat/tools", s.handleChatTools)
	mux.HandleFunc("GET /api/graph/stats", s.handleGraphStats)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/ready", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// ingestStatus maps an ingestion failure to an HTTP status. Upstream fetch
// problems are the remote site's fault, extraction problems are the page's,
// everything else is ours.
func ingestStatus(err error) int {
	var ie *domain.IngestError
	if errors.As(err, &ie) {
		switch ie.Kind {
		case domain.KindFetch:
			return http.StatusBadGateway
		case domain.KindExtract:
			return http.StatusUnprocessableEntity
		}
	}
	return http.StatusInternalServerError
}

// IngestRequest is the JSON body for POST /api/documents.
type IngestRequest struct {
	URL string `json:"url"`
}

func (s *server) handleIngestURL(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	doc, err := s.ingest.IngestURL(r.Context(), req.URL)
	if err != nil {
		s.logger.Error("ingest failed", "url", req.URL, "err", err)
		writeError(w, ingestStatus(err), err.Error())
		return
	}

	s.ingested.Inc()
	writeJSON(w, http.StatusCreated, doc)
}

// IngestTextRequest is the JSON body for POST /api/documents/text.
type IngestTextRequest struct {
	Content string `json:"content"`
}

func (s *server) handleIngestText(w http.ResponseWriter, r *http.Request) {
	var req IngestTextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	doc, err := s.ingest.IngestText(r.Context(), req.Content)
	if err != nil {
		if errors.Is(err, domain.ErrEmptyContent) {
			writeError(w, http.StatusBadRequest, "content is required")
			return
		}
		s.logger.Error("text ingest failed", "err", err)
		writeError(w, ingestStatus(err), err.Error())
		return
	}

	s.ingested.Inc()
	writeJSON(w, http.StatusCreated, doc)
}

func (s *server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if err := s.store.Delete(r.Context(), id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "document not found")
			return
		}
		s.logger.Error("delete failed", "doc_id", id, "err", err)
		writeError(w, http.StatusInternalServerError, "delete failed")
		return
	}

	// Best-effort graph cleanup. A stale MENTIONS node only degrades related
	// lookups; the document itself is gone.
	if err := s.graph.DeleteDocument(r.Context(), id); err != nil {
		s.logger.Warn("graph cleanup failed after delete", "doc_id", id, "err", err)
	}

	s.deleted.Inc()
	w.WriteHeader(http.StatusNoContent)
}

// SearchResponse is the JSON response for GET /api/search.
type SearchResponse struct {
	Results []domain.SearchResult `json:"results"`
}

func (s *server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	s.searches.Inc()

	if r.URL.Query().Get("mode") == "semantic" {
		vector, err := s.embedder.Embed(r.Context(), query)
		if err != nil {
			s.logger.Error("embed query failed", "err", err)
			writeError(w, http.StatusBadGateway, "embedding unavailable")
			return
		}
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		results, err := s.store.SimilaritySearch(r.Context(), vector, 0, limit)
		if err != nil {
			s.logger.Error("similarity search failed", "err", err)
			writeError(w, http.StatusInternalServerError, "search failed")
			return
		}
		writeJSON(w, http.StatusOK, SearchResponse{Results: results})
		return
	}

	docs, err := s.store.FullTextSearch(r.Context(), query)
	if err != nil {
		s.logger.Error("full-text search failed", "err", err)
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}
	results := fn.Map(docs, func(d domain.Document) domain.SearchResult {
		return domain.SearchResult{Document: d}
	})
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

// ChatRequest is the JSON body for the chat endpoints.
type ChatRequest struct {
	Messages []domain.Message `json:"messages"`
}

// handleChat streams the assistant's answer as server-sent events: one
// `data:` line per text fragment, then a terminal `[DONE]` event.
func (s *server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	stream, err := s.chat.StreamTurn(r.Context(), req.Messages)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		s.logger.Error("chat turn failed", "err", err)
		writeError(w, chatStatus(err), "chat failed")
		return
	}
	defer stream.Close()
	s.chatTurns.Inc()

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	for {
		frag, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			s.logger.Warn("chat stream interrupted", "err", err)
			break
		}
		data, _ := json.Marshal(frag)
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

// ToolChatResponse is the JSON response for POST /api/chat/tools. Display
// carries the rendered view of an executed tool, if any.
type ToolChatResponse struct {
	Messages []domain.Message `json:"messages"`
	Display  any              `json:"display,omitempty"`
}

func (s *server) handleChatTools(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	messages, err := s.chat.ToolTurn(r.Context(), req.Messages)
	if err != nil {
		s.logger.Error("tool turn failed", "err", err)
		writeError(w, chatStatus(err), "chat failed")
		return
	}
	s.toolTurns.Inc()

	resp := ToolChatResponse{Messages: messages}
	if last := messages[len(messages)-1]; last.Display != nil {
		select {
		case <-last.Display.Ready():
			resp.Display = last.Display.Value()
		case <-time.After(5 * time.Second):
			s.logger.Warn("display not resolved in time")
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func chatStatus(err error) int {
	if errors.Is(err, domain.ErrBadHistory) {
		return http.StatusBadRequest
	}
	return http.StatusBadGateway
}

// RelatedResponse is the JSON response for GET /api/documents/{id}/related.
type RelatedResponse struct {
	Related []graph.RelatedDocument `json:"related"`
}

func (s *server) handleRelated(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	if _, err := s.graph.GetDocument(r.Context(), id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "document not found")
			return
		}
		s.logger.Error("related lookup failed", "doc_id", id, "err", err)
		writeError(w, http.StatusInternalServerError, "related lookup failed")
		return
	}

	related, err := s.graph.RelatedDocuments(r.Context(), id, limit)
	if err != nil {
		s.logger.Error("related lookup failed", "doc_id", id, "err", err)
		writeError(w, http.StatusInternalServerError, "related lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, RelatedResponse{Related: related})
}

// EntitiesResponse is the JSON response for GET /api/documents/{id}/entities.
type EntitiesResponse struct {
	Entities []domain.Entity `json:"entities"`
}

func (s *server) handleEntities(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	entities, err := s.graph.DocumentEntities(r.Context(), id)
	if err != nil {
		s.logger.Error("entities lookup failed", "doc_id", id, "err", err)
		writeError(w, http.StatusInternalServerError, "entities lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, EntitiesResponse{Entities: entities})
}

// GraphStatsResponse is the JSON response for GET /api/graph/stats.
type GraphStatsResponse struct {
	Nodes       map[string]int64    `json:"nodes"`
	TopEntities []graph.EntityStats `json:"top_entities"`
}

func (s *server) handleGraphStats(w http.ResponseWriter, r *http.Request) {
	nodes, err := s.graph.NodeCounts(r.Context())
	if err != nil {
		s.logger.Error("graph stats failed", "err", err)
		writeError(w, http.StatusInternalServerError, "graph stats failed")
		return
	}
	top, err := s.graph.TopEntities(r.Context(), 10)
	if err != nil {
		s.logger.Error("graph stats failed", "err", err)
		writeError(w, http.StatusInternalServerError, "graph stats failed")
		return
	}
	writeJSON(w, http.StatusOK, GraphStatsResponse{Nodes: nodes, TopEntities: top})
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady reports store reachability and whether a model credential is
// configured. A missing credential is not fatal: ingestion and chat degrade
// per request, so the probe stays 200 and only flags it.
func (s *server) handleReady(w http.ResponseWriter, r *http.Request) {
	model := "ok"
	if !s.modelOK {
		model = "no credential"
	}

	if err := s.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "degraded",
			"store":  "unreachable",
			"model":  model,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
		"store":  "ok",
		"model":  model,
	})
}

func (s *server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	fmt.Fprint(w, s.registry.Render())
}
