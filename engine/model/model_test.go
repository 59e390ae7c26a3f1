package model

import (
	"errors"
	"io"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/sashabaranov/go-openai"

	"github.com/ClippingsAI/clippings-mvp/engine/domain"
)

func TestToChatMessages(t *testing.T) {
	history := []domain.Message{
		{Role: domain.RoleUser, Content: "hi"},
		{Role: domain.RoleAssistant, Content: "hello"},
		{Role: domain.RoleUser, Content: "what's new?"},
	}

	msgs := toChatMessages(history, "be helpful")
	if len(msgs) != 4 {
		t.Fatalf("got %d messages, want 4", len(msgs))
	}
	if msgs[0].Role != openai.ChatMessageRoleSystem || msgs[0].Content != "be helpful" {
		t.Fatalf("system message not first: %+v", msgs[0])
	}
	if msgs[3].Content != "what's new?" {
		t.Fatalf("history order not preserved: %+v", msgs[3])
	}

	noSystem := toChatMessages(history, "")
	if len(noSystem) != 3 {
		t.Fatalf("empty system prompt should add no message, got %d", len(noSystem))
	}
}

func TestStreamCollect(t *testing.T) {
	frags := []string{"The ", "quick ", "fox"}
	i := 0
	closed := false
	s := &Stream{
		recv: func() (string, error) {
			if i >= len(frags) {
				return "", io.EOF
			}
			f := frags[i]
			i++
			return f, nil
		},
		close: func() error { closed = true; return nil },
	}

	got, err := s.Collect()
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if got != "The quick fox" {
		t.Fatalf("got %q", got)
	}
	if !closed {
		t.Fatal("Collect should close the stream")
	}
}

func TestStreamCollectPropagatesError(t *testing.T) {
	boom := errors.New("boom")
	s := &Stream{recv: func() (string, error) { return "", boom }}
	if _, err := s.Collect(); !errors.Is(err, boom) {
		t.Fatalf("got %v, want boom", err)
	}
}

func TestTruncateRuneBoundary(t *testing.T) {
	s := strings.Repeat("a", 3) + "日本語"
	got := truncate(s, 5)
	if got != "aaa" {
		t.Fatalf("got %q, want the cut backed off to the rune boundary", got)
	}
	if !utf8.ValidString(got) {
		t.Fatalf("invalid UTF-8 after truncation: %q", got)
	}
	if truncate("short", 100) != "short" {
		t.Fatal("strings within the bound must pass through unchanged")
	}
}

func TestNewClientDefaults(t *testing.T) {
	c := NewClient("key", Options{})
	if c.opts.ChatModel == "" || c.opts.EmbedModel == "" {
		t.Fatal("zero Options should fall back to defaults")
	}
	if c.limiter == nil {
		t.Fatal("limiter must be set")
	}
}
