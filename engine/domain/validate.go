package domain

import (
	"fmt"
	"strings"
)

// ValidateDocument checks a Document before insertion. Content must be
// non-empty after trimming; the rest of the fields are optional.
func ValidateDocument(doc Document) error {
	if strings.TrimSpace(doc.Content) == "" {
		return fmt.Errorf("validate: %w", ErrEmptyContent)
	}
	return nil
}

// ValidateHistory checks a conversation history before an orchestrator turn.
// The most recent message must be attributed to the user.
func ValidateHistory(history []Message) error {
	if len(history) == 0 {
		return fmt.Errorf("validate: %w: history is empty", ErrBadHistory)
	}
	last := history[len(history)-1]
	if last.Role != RoleUser {
		return fmt.Errorf("validate: %w: last message role is %q, want %q", ErrBadHistory, last.Role, RoleUser)
	}
	return nil
}

// ValidateMetadata checks an extracted Metadata payload. Category labels are
// expected but their absence is tolerated; entity slices may be empty.
func ValidateMetadata(meta Metadata) error {
	if meta.PublisherName == "" && meta.Author == "" &&
		len(meta.Categories) == 0 && len(meta.NamedEntities.All()) == 0 {
		return fmt.Errorf("validate: %w: all fields empty", ErrBadMetadata)
	}
	return nil
}
