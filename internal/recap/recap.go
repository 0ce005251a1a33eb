// Package recap produces a short written summary of a finished voice
// consultation, suitable for showing the user when they return to the app.
//
// The summary is generated by a text LLM, independent of the live voice
// provider, from the committed conversation log.
package recap

import (
	"context"
	"fmt"
	"strings"

	"github.com/dermalive/dermalive/pkg/conversation"
)

// recapPrompt is the system prompt sent to the LLM when summarising a
// consultation.
const recapPrompt = `Summarise the following skincare consultation between a user and an AI skin-analysis assistant.
Preserve: the user's stated skin concerns, any observations about their skin, product or routine
recommendations the assistant made, and follow-up actions the user agreed to.
Do not give new advice. Keep it under 150 words.`

// Completer produces a completion from a system prompt and a user message.
// Implemented by [LLM]; tests substitute their own.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userMessage string) (string, error)
}

// Generator writes consultation recaps from the conversation log.
type Generator struct {
	completer Completer
	store     conversation.Store
}

// NewGenerator creates a [Generator] reading from store and summarising with
// the given completer.
func NewGenerator(completer Completer, store conversation.Store) *Generator {
	return &Generator{completer: completer, store: store}
}

// Generate loads the conversation's committed messages and returns a recap.
// An empty conversation yields an empty recap with no LLM call.
func (g *Generator) Generate(ctx context.Context, conversationID string) (string, error) {
	messages, err := g.store.Messages(ctx, conversationID)
	if err != nil {
		return "", fmt.Errorf("recap: load conversation %q: %w", conversationID, err)
	}
	if len(messages) == 0 {
		return "", nil
	}

	var sb strings.Builder
	for _, m := range messages {
		fmt.Fprintf(&sb, "[%s]: %s\n", m.Role, m.Text)
	}

	summary, err := g.completer.Complete(ctx, recapPrompt, sb.String())
	if err != nil {
		return "", fmt.Errorf("recap: summarise conversation %q: %w", conversationID, err)
	}
	return summary, nil
}
