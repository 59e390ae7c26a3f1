package model

import "encoding/json"

// Completion is the result of a non-streaming chat completion.
type Completion struct {
	Text      string
	ToolCalls []ToolCall
}

// ToolCall is a tool invocation requested by the model. Arguments is the raw
// JSON argument object; callers decode it into their declared parameter
// struct.
type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// ToolDef declares a tool the model may invoke. Parameters is a JSON schema
// object describing the argument struct.
type ToolDef struct {
	Name        string
	Description string
	Parameters  map[string]any
}
