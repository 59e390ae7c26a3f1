// Command ingest fetches one or more article URLs and runs them through the
// ingestion pipeline into Qdrant, queueing metadata enrichment over NATS.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/ClippingsAI/clippings-mvp/engine/domain"
	"github.com/ClippingsAI/clippings-mvp/engine/enrich"
	"github.com/ClippingsAI/clippings-mvp/engine/ingest"
	"github.com/ClippingsAI/clippings-mvp/engine/model"
	"github.com/ClippingsAI/clippings-mvp/engine/semantic"
	"github.com/ClippingsAI/clippings-mvp/pkg/fn"
)

func main() {
	var (
		qdrantAddr = flag.String("qdrant", "localhost:6334", "Qdrant gRPC address")
		collection = flag.String("collection", "clippings", "Qdrant collection name")
		dims       = flag.Int("dims", 1536, "embedding vector dimensions")
		natsURL    = flag.String("nats", "", "NATS URL for enrichment dispatch (empty disables enrichment)")
		workers    = flag.Int("workers", 4, "concurrent ingestions")
		timeout    = flag.Duration("timeout", 2*time.Minute, "per-URL timeout")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	urls := flag.Args()
	if len(urls) == 0 {
		fmt.Fprintln(os.Stderr, "usage: ingest [flags] URL...")
		flag.PrintDefaults()
		os.Exit(2)
	}

	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		logger.Error("OPENAI_API_KEY is required")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := semantic.New(*qdrantAddr, *collection, *dims)
	if err != nil {
		logger.Error("qdrant connect failed", "err", err)
		os.Exit(1)
	}
	defer store.Close()

	if err := store.EnsureCollection(ctx); err != nil {
		logger.Error("ensure collection failed", "err", err)
		os.Exit(1)
	}

	var dispatcher ingest.Dispatcher
	if *natsURL != "" {
		nc, err := nats.Connect(*natsURL)
		if err != nil {
			logger.Error("nats connect failed", "err", err)
			os.Exit(1)
		}
		defer nc.Drain()
		dispatcher = enrich.NewQueueDispatcher(nc)
	} else {
		logger.Warn("no NATS URL given, documents will be stored without metadata enrichment")
	}

	coordinator := ingest.NewCoordinator(
		ingest.NewFetcher(nil),
		model.NewClient(apiKey, model.DefaultOptions()),
		store,
		dispatcher,
		logger,
	)

	type outcome struct {
		url string
		doc domain.Document
		err error
	}

	results := fn.ParMap(urls, *workers, func(url string) outcome {
		runCtx, cancel := context.WithTimeout(ctx, *timeout)
		defer cancel()
		doc, err := coordinator.IngestURL(runCtx, url)
		return outcome{url: url, doc: doc, err: err}
	})

	failed := 0
	for _, r := range results {
		if r.err != nil {
			failed++
			logger.Error("ingest failed", "url", r.url, "err", r.err)
			continue
		}
		fmt.Printf("%s\t%s\t%d chars\n", r.doc.ID, r.url, len(r.doc.Content))
	}

	logger.Info("done", "total", len(urls), "failed", failed)
	if failed > 0 {
		os.Exit(1)
	}
}
