// Package transcript accumulates the incremental transcriptions of a live
// voice session and commits finalized messages to the conversation log.
//
// The live endpoint streams recognition of the user's speech and a text
// rendering of the assistant's spoken reply as independent fragment events.
// The [Aggregator] buffers both sides for the current turn only; when the
// endpoint marks the turn complete, the buffered text is flushed to the log
// as at most two messages — user first, assistant second — and the buffers
// reset. At most one open turn's worth of partial text ever exists.
package transcript

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dermalive/dermalive/pkg/conversation"
)

// Aggregator buffers per-turn transcription fragments for one conversation.
// Safe for concurrent use, though fragments for a session arrive from a
// single dispatch loop in practice.
type Aggregator struct {
	store          conversation.Store
	conversationID string

	mu     sync.Mutex
	input  strings.Builder
	output strings.Builder
}

// New creates an Aggregator committing turns to store under conversationID.
func New(store conversation.Store, conversationID string) *Aggregator {
	return &Aggregator{store: store, conversationID: conversationID}
}

// AppendInput adds a fragment of the user's recognised speech to the open turn.
func (a *Aggregator) AppendInput(text string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.input.WriteString(text)
}

// AppendOutput adds a fragment of the assistant's reply text to the open turn.
func (a *Aggregator) AppendOutput(text string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.output.WriteString(text)
}

// CommitTurn flushes the open turn to the conversation log: a user message
// if any input accumulated, then an assistant message if any output did,
// then both buffers reset. When both buffers are empty the call is a no-op —
// a spurious turn-complete event must not emit empty messages.
func (a *Aggregator) CommitTurn(ctx context.Context) error {
	a.mu.Lock()
	input := a.input.String()
	output := a.output.String()
	a.input.Reset()
	a.output.Reset()
	a.mu.Unlock()

	if input == "" && output == "" {
		return nil
	}

	now := time.Now()
	if input != "" {
		msg := conversation.Message{Role: conversation.RoleUser, Text: input, Timestamp: now}
		if err := a.store.Append(ctx, a.conversationID, msg); err != nil {
			return fmt.Errorf("transcript: commit user turn: %w", err)
		}
	}
	if output != "" {
		msg := conversation.Message{Role: conversation.RoleAssistant, Text: output, Timestamp: now}
		if err := a.store.Append(ctx, a.conversationID, msg); err != nil {
			return fmt.Errorf("transcript: commit assistant turn: %w", err)
		}
	}
	return nil
}

// Reset discards any buffered partial text without committing it. Called on
// session stop so a later session starts with clean buffers.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.input.Reset()
	a.output.Reset()
}

// Pending reports whether any uncommitted fragment text is buffered.
func (a *Aggregator) Pending() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.input.Len() > 0 || a.output.Len() > 0
}
