package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ClippingsAI/clippings-mvp/engine/domain"
	"github.com/ClippingsAI/clippings-mvp/engine/model"
)

const streamSystemPrompt = `You are a helpful assistant. Use the following context to help answer the question. The context includes dates, relevance scores, sources, and categories - use this information to provide more complete answers. When citing information, mention the source. Here's the context:

%s`

const toolSystemPrompt = `You are a friendly weather assistant. Use this context to help with current information: %s`

// Completer is the model-service surface the orchestrator needs.
type Completer interface {
	Complete(ctx context.Context, history []domain.Message, system string, tools []model.ToolDef) (model.Completion, error)
	StreamComplete(ctx context.Context, history []domain.Message, system string) (*model.Stream, error)
}

// ContextBuilder assembles retrieval context for a query.
type ContextBuilder interface {
	BuildContext(ctx context.Context, query string) string
}

// Service drives conversational turns over the knowledge base.
type Service struct {
	model     Completer
	assembler ContextBuilder
	logger    *slog.Logger
}

// New creates a Service.
func New(completer Completer, assembler ContextBuilder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{model: completer, assembler: assembler, logger: logger}
}

// StreamTurn runs a plain streaming chat turn. Context is retrieved for the
// last user message and embedded in the system prompt; the model's answer is
// returned as a lazy fragment stream. Model errors propagate uncaught, and
// the history is never mutated.
func (s *Service) StreamTurn(ctx context.Context, history []domain.Message) (*model.Stream, error) {
	if err := domain.ValidateHistory(history); err != nil {
		return nil, fmt.Errorf("rag: stream turn: %w", err)
	}

	question := history[len(history)-1].Content
	ragContext := s.assembler.BuildContext(ctx, question)
	system := fmt.Sprintf(streamSystemPrompt, ragContext)

	stream, err := s.model.StreamComplete(ctx, history, system)
	if err != nil {
		return nil, fmt.Errorf("rag: stream turn: %w", err)
	}
	return stream, nil
}

// ToolTurn runs a tool-augmented chat turn. The model may answer in text or
// invoke the declared weather tool; an invocation executes synchronously and
// resolves the message's display handle exactly once before the new message
// list is returned. Model errors propagate uncaught.
func (s *Service) ToolTurn(ctx context.Context, history []domain.Message) ([]domain.Message, error) {
	if err := domain.ValidateHistory(history); err != nil {
		return nil, fmt.Errorf("rag: tool turn: %w", err)
	}

	question := history[len(history)-1].Content
	ragContext := s.assembler.BuildContext(ctx, question)
	system := fmt.Sprintf(toolSystemPrompt, ragContext)

	completion, err := s.model.Complete(ctx, history, system, toolDefs())
	if err != nil {
		return nil, fmt.Errorf("rag: tool turn: %w", err)
	}

	var display *domain.Display
	var toolResults []string
	for _, call := range completion.ToolCalls {
		entry, ok := toolTable[call.Name]
		if !ok {
			return nil, fmt.Errorf("rag: tool turn: model invoked unknown tool %q", call.Name)
		}
		result, view, err := entry.run(ctx, call.Arguments)
		if err != nil {
			return nil, fmt.Errorf("rag: tool %s: %w", call.Name, err)
		}
		if display == nil {
			display = domain.NewDisplay()
		}
		display.Resolve(view)
		toolResults = append(toolResults, result)
		s.logger.Info("tool executed", "tool", call.Name)
	}

	content := completion.Text
	if content == "" {
		content = strings.Join(toolResults, ",")
	}

	reply := domain.Message{
		Role:    domain.RoleAssistant,
		Content: content,
		Display: display,
	}
	out := make([]domain.Message, 0, len(history)+1)
	out = append(out, history...)
	return append(out, reply), nil
}
