// Package main implements the Clippings API server: document ingestion,
// search, and conversational endpoints over the article knowledge base.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/ClippingsAI/clippings-mvp/engine/domain"
	"github.com/ClippingsAI/clippings-mvp/engine/enrich"
	"github.com/ClippingsAI/clippings-mvp/engine/graph"
	"github.com/ClippingsAI/clippings-mvp/engine/ingest"
	"github.com/ClippingsAI/clippings-mvp/engine/model"
	"github.com/ClippingsAI/clippings-mvp/engine/rag"
	"github.com/ClippingsAI/clippings-mvp/engine/semantic"
	"github.com/ClippingsAI/clippings-mvp/pkg/fn"
	"github.com/ClippingsAI/clippings-mvp/pkg/metrics"
	"github.com/ClippingsAI/clippings-mvp/pkg/mid"
	"github.com/ClippingsAI/clippings-mvp/pkg/resilience"
)

// Config holds all environment-based configuration.
type Config struct {
	Port       string
	OpenAIKey  string
	QdrantURL  string
	Collection string
	VectorDims int
	Neo4jURL   string
	Neo4jUser  string
	Neo4jPass  string
	NATSURL    string
	CORSOrigin string
	RateRPS    float64
	RateBurst  int
}

func loadConfig() Config {
	return Config{
		Port:       envOr("PORT", "8080"),
		OpenAIKey:  os.Getenv("OPENAI_API_KEY"),
		QdrantURL:  envOr("QDRANT_URL", "localhost:6334"),
		Collection: envOr("QDRANT_COLLECTION", "clippings"),
		VectorDims: envIntOr("VECTOR_DIMS", 1536),
		Neo4jURL:   envOr("NEO4J_URL", "neo4j://localhost:7687"),
		Neo4jUser:  envOr("NEO4J_USER", "neo4j"),
		Neo4jPass:  envOr("NEO4J_PASS", "password"),
		NATSURL:    envOr("NATS_URL", nats.DefaultURL),
		CORSOrigin: envOr("CORS_ORIGIN", "*"),
		RateRPS:    envFloatOr("RATE_RPS", 25),
		RateBurst:  envIntOr("RATE_BURST", 50),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := loadConfig()

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Model service ---
	// A missing credential is not fatal: the store-backed endpoints keep
	// working and /api/ready reports the degradation.
	if cfg.OpenAIKey == "" {
		logger.Warn("OPENAI_API_KEY not set, embedding and chat will fail per request")
	}
	modelClient := model.NewClient(cfg.OpenAIKey, model.DefaultOptions())

	// --- Qdrant ---
	store, err := semantic.New(cfg.QdrantURL, cfg.Collection, cfg.VectorDims)
	if err != nil {
		return fmt.Errorf("qdrant connect: %w", err)
	}
	defer store.Close()

	// Qdrant may still be coming up alongside the server.
	ensure := fn.Retry(ctx, fn.DefaultRetry, func(ctx context.Context) fn.Result[struct{}] {
		if err := store.EnsureCollection(ctx); err != nil {
			return fn.Err[struct{}](err)
		}
		return fn.Ok(struct{}{})
	})
	if _, err := ensure.Unwrap(); err != nil {
		return fmt.Errorf("ensure collection: %w", err)
	}

	// --- Neo4j ---
	neo4jDriver, err := neo4j.NewDriverWithContext(cfg.Neo4jURL, neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPass, ""))
	if err != nil {
		return fmt.Errorf("neo4j driver: %w", err)
	}
	defer neo4jDriver.Close(ctx)
	graphStore := graph.New(neo4jDriver)

	// --- NATS + enrichment worker ---
	nc, err := nats.Connect(cfg.NATSURL)
	if err != nil {
		return fmt.Errorf("nats connect: %w", err)
	}
	defer nc.Drain()

	sub, err := enrich.StartConsumer(nc, enrich.Deps{
		Extractor: enrich.NewExtractor(modelClient),
		Store:     store,
		Graph:     graphStore,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("enrich consumer: %w", err)
	}
	defer sub.Unsubscribe()

	// --- RAG service, breaker-guarded model calls ---
	completer := &guardedCompleter{
		inner:   modelClient,
		breaker: resilience.NewBreaker(resilience.DefaultBreakerOpts),
	}
	assembler := rag.NewAssembler(modelClient, store, logger)
	ragSvc := rag.New(completer, assembler, logger)

	// --- Ingestion coordinator ---
	coordinator := ingest.NewCoordinator(
		ingest.NewFetcher(nil),
		modelClient,
		store,
		enrich.NewQueueDispatcher(nc),
		logger,
	)

	registry := metrics.New()
	srv := newServer(serverDeps{
		ingest:   coordinator,
		store:    store,
		embedder: modelClient,
		chat:     ragSvc,
		graph:    graphStore,
		registry: registry,
		logger:   logger,
		modelOK:  cfg.OpenAIKey != "",
	})

	limiter := resilience.NewLimiter(resilience.LimiterOpts{Rate: cfg.RateRPS, Burst: cfg.RateBurst})
	handler := mid.Chain(srv.routes(),
		mid.Recover(logger),
		mid.Logger(logger),
		mid.OTel("clippings-api"),
		mid.CORS(cfg.CORSOrigin),
		mid.RateLimit(limiter),
	)

	httpSrv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.Port)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutCtx)
}

// guardedCompleter routes model calls through a circuit breaker so a failing
// provider sheds load fast instead of stacking timed-out requests.
type guardedCompleter struct {
	inner   rag.Completer
	breaker *resilience.Breaker
}

func (g *guardedCompleter) Complete(ctx context.Context, history []domain.Message, system string, tools []model.ToolDef) (model.Completion, error) {
	var out model.Completion
	err := g.breaker.Call(ctx, func(ctx context.Context) error {
		var err error
		out, err = g.inner.Complete(ctx, history, system, tools)
		return err
	})
	return out, err
}

func (g *guardedCompleter) StreamComplete(ctx context.Context, history []domain.Message, system string) (*model.Stream, error) {
	var out *model.Stream
	err := g.breaker.Call(ctx, func(ctx context.Context) error {
		var err error
		out, err = g.inner.StreamComplete(ctx, history, system)
		return err
	})
	return out, err
}
