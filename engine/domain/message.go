package domain

import "sync"

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single conversation turn. Display is set only on assistant
// messages produced by a tool-augmented turn.
type Message struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Display *Display `json:"-"`
}

// Display is a one-shot render handle. The orchestrator resolves it exactly
// once when a tool executes; consumers wait on Ready and read Value. The
// payload is opaque to the engine core.
type Display struct {
	once sync.Once
	ch   chan struct{}
	val  any
}

// NewDisplay creates an unresolved display handle.
func NewDisplay() *Display {
	return &Display{ch: make(chan struct{})}
}

// Resolve sets the payload and marks the handle ready. Calls after the first
// are no-ops.
func (d *Display) Resolve(v any) {
	d.once.Do(func() {
		d.val = v
		close(d.ch)
	})
}

// Ready is closed once the handle has been resolved.
func (d *Display) Ready() <-chan struct{} { return d.ch }

// Value returns the resolved payload, or nil if unresolved.
func (d *Display) Value() any {
	select {
	case <-d.ch:
		return d.val
	default:
		return nil
	}
}
