// Package conversation defines the append-only conversation log shared
// between the voice pipeline and the surrounding application.
//
// The pipeline only ever appends finalized messages — one user and/or one
// assistant message per completed voice turn. Reads serve the application's
// history views and the post-session recap. Stores must preserve append
// order per conversation.
package conversation

import (
	"context"
	"time"
)

// Role identifies the speaker of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Citation is one grounding source attached to an assistant message by the
// search-grounded chat surface. Voice turns carry none.
type Citation struct {
	// Title is the source's display title.
	Title string

	// URI locates the source.
	URI string
}

// Message is one finalized conversation entry.
type Message struct {
	// Role is the speaker.
	Role Role

	// Text is the finalized message text.
	Text string

	// Timestamp marks when the message was committed.
	Timestamp time.Time

	// Citations holds optional grounding sources. Nil for voice turns.
	Citations []Citation
}

// Store persists conversation logs. Append-only from the pipeline's
// perspective; implementations must be safe for concurrent use.
type Store interface {
	// Append adds msg to the end of the log identified by conversationID.
	Append(ctx context.Context, conversationID string, msg Message) error

	// Messages returns the full log for conversationID in append order.
	// A conversation with no messages yields an empty slice, not an error.
	Messages(ctx context.Context, conversationID string) ([]Message, error)
}
