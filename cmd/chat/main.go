// Command chat is an interactive terminal client for the retrieval-augmented
// chat orchestrator. Each line of input becomes a user turn; answers stream to
// stdout as they are generated. With -tools the weather tool is offered to the
// model and resolved displays are printed as JSON.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ClippingsAI/clippings-mvp/engine/domain"
	"github.com/ClippingsAI/clippings-mvp/engine/model"
	"github.com/ClippingsAI/clippings-mvp/engine/rag"
	"github.com/ClippingsAI/clippings-mvp/engine/semantic"
)

func main() {
	var (
		qdrantAddr = flag.String("qdrant", "localhost:6334", "Qdrant gRPC address")
		collection = flag.String("collection", "clippings", "Qdrant collection name")
		dims       = flag.Int("dims", 1536, "embedding vector dimensions")
		useTools   = flag.Bool("tools", false, "enable the weather tool instead of streaming answers")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	slog.SetDefault(logger)

	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "OPENAI_API_KEY is required")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := semantic.New(*qdrantAddr, *collection, *dims)
	if err != nil {
		fmt.Fprintln(os.Stderr, "qdrant connect failed:", err)
		os.Exit(1)
	}
	defer store.Close()

	client := model.NewClient(apiKey, model.DefaultOptions())
	service := rag.New(client, rag.NewAssembler(client, store, logger), logger)

	if err := repl(ctx, service, *useTools); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func repl(ctx context.Context, service *rag.Service, useTools bool) error {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var history []domain.Message
	fmt.Print("> ")
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := scanner.Text()
		if line == "" {
			fmt.Print("> ")
			continue
		}
		history = append(history, domain.Message{Role: domain.RoleUser, Content: line})

		var err error
		if useTools {
			history, err = toolTurn(ctx, service, history)
		} else {
			history, err = streamTurn(ctx, service, history)
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, "turn failed:", err)
			history = history[:len(history)-1]
		}
		fmt.Print("> ")
	}
	return scanner.Err()
}

func streamTurn(ctx context.Context, service *rag.Service, history []domain.Message) ([]domain.Message, error) {
	stream, err := service.StreamTurn(ctx, history)
	if err != nil {
		return history, err
	}
	defer stream.Close()

	var answer string
	for {
		frag, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			fmt.Println()
			return history, err
		}
		fmt.Print(frag)
		answer += frag
	}
	fmt.Println()
	return append(history, domain.Message{Role: domain.RoleAssistant, Content: answer}), nil
}

func toolTurn(ctx context.Context, service *rag.Service, history []domain.Message) ([]domain.Message, error) {
	out, err := service.ToolTurn(ctx, history)
	if err != nil {
		return history, err
	}

	reply := out[len(out)-1]
	fmt.Println(reply.Content)
	if reply.Display != nil {
		select {
		case <-reply.Display.Ready():
			if b, err := json.MarshalIndent(reply.Display.Value(), "", "  "); err == nil {
				fmt.Println(string(b))
			}
		case <-time.After(5 * time.Second):
		case <-ctx.Done():
			return out, ctx.Err()
		}
	}
	return out, nil
}
