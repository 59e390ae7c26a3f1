package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/ClippingsAI/clippings-mvp/engine/domain"
	"github.com/ClippingsAI/clippings-mvp/pkg/natsutil"
)

const (
	// TaskSubject carries enrichment tasks published at ingest time.
	TaskSubject = "engine.enrich"
	// DLQSubject receives tasks that exhausted their retries.
	DLQSubject = "engine.enrich.dlq"
	// MaxRetries before a task lands in the DLQ.
	MaxRetries = 3

	retryHeader = "X-Retry-Count"
)

// Task is one unit of enrichment work: extract metadata for a stored
// document and write it back.
type Task struct {
	DocID     string `json:"doc_id"`
	Content   string `json:"content"`
	SourceURL string `json:"source_url,omitempty"`
}

// QueueDispatcher publishes enrichment tasks to NATS.
type QueueDispatcher struct {
	nc *nats.Conn
}

// NewQueueDispatcher creates a QueueDispatcher.
func NewQueueDispatcher(nc *nats.Conn) *QueueDispatcher {
	return &QueueDispatcher{nc: nc}
}

// Dispatch queues a task. Trace context travels in the message headers.
func (d *QueueDispatcher) Dispatch(ctx context.Context, task Task) error {
	if err := natsutil.Publish(ctx, d.nc, TaskSubject, task); err != nil {
		return fmt.Errorf("enrich: dispatch %s: %w", task.DocID, err)
	}
	return nil
}

// MetadataWriter persists extracted metadata for a document.
type MetadataWriter interface {
	UpdateMetadata(ctx context.Context, id string, meta domain.Metadata) error
}

// EntityGraph records which entities a document mentions.
type EntityGraph interface {
	SaveDocumentEntities(ctx context.Context, docID, sourceURL string, entities []domain.Entity) error
}

// Deps holds the worker's external dependencies. Graph may be nil; entity
// persistence is best-effort either way.
type Deps struct {
	Extractor *Extractor
	Store     MetadataWriter
	Graph     EntityGraph
	Logger    *slog.Logger
}

// dlqMessage is published to the DLQ when a task exhausts its retries.
type dlqMessage struct {
	Task    Task   `json:"task"`
	Error   string `json:"error"`
	Retries int    `json:"retries"`
}

// StartConsumer subscribes a worker to the task subject. Failed tasks are
// re-published with an incremented retry header and end up in the DLQ after
// MaxRetries; the document itself already exists, so a dead task means a
// document without metadata, which readers must tolerate anyway.
func StartConsumer(nc *nats.Conn, deps Deps) (*nats.Subscription, error) {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	return nc.Subscribe(TaskSubject, func(msg *nats.Msg) {
		var task Task
		if err := json.Unmarshal(msg.Data, &task); err != nil {
			log.Error("enrich: unmarshal task failed", "err", err)
			return
		}

		ctx := context.Background()
		err := runTask(ctx, deps, task, log)
		if err == nil {
			log.Info("enrich: metadata stored", "doc_id", task.DocID)
			return
		}

		retries := retryCount(msg) + 1
		log.Error("enrich: task failed", "err", err, "doc_id", task.DocID, "retry", retries)

		if retries >= MaxRetries {
			dlq := dlqMessage{Task: task, Error: err.Error(), Retries: retries}
			data, _ := json.Marshal(dlq)
			if pubErr := nc.Publish(DLQSubject, data); pubErr != nil {
				log.Error("enrich: DLQ publish failed", "err", pubErr, "doc_id", task.DocID)
			}
			return
		}

		retry := nats.NewMsg(TaskSubject)
		retry.Data = msg.Data
		retry.Header.Set(retryHeader, fmt.Sprintf("%d", retries))
		if pubErr := nc.PublishMsg(retry); pubErr != nil {
			log.Error("enrich: retry publish failed", "err", pubErr, "doc_id", task.DocID)
		}
	})
}

func runTask(ctx context.Context, deps Deps, task Task, log *slog.Logger) error {
	meta, err := deps.Extractor.Extract(ctx, task.Content, task.SourceURL)
	if err != nil {
		return err
	}

	if err := deps.Store.UpdateMetadata(ctx, task.DocID, *meta); err != nil {
		return fmt.Errorf("enrich: update metadata %s: %w", task.DocID, err)
	}

	// Entity graph writes never fail the task; metadata is already stored.
	if deps.Graph != nil {
		if err := deps.Graph.SaveDocumentEntities(ctx, task.DocID, task.SourceURL, meta.NamedEntities.All()); err != nil {
			log.Warn("enrich: entity graph write failed", "err", err, "doc_id", task.DocID)
		}
	}
	return nil
}

func retryCount(msg *nats.Msg) int {
	if msg.Header == nil {
		return 0
	}
	n := 0
	if v := msg.Header.Get(retryHeader); v != "" {
		fmt.Sscanf(v, "%d", &n)
	}
	return n
}
