package transcript_test

import (
	"context"
	"testing"

	"github.com/dermalive/dermalive/internal/transcript"
	"github.com/dermalive/dermalive/pkg/conversation"
)

func messages(t *testing.T, store conversation.Store, id string) []conversation.Message {
	t.Helper()
	msgs, err := store.Messages(context.Background(), id)
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	return msgs
}

func TestCommitTurn_UserThenAssistant(t *testing.T) {
	t.Parallel()

	store := conversation.NewMemStore()
	agg := transcript.New(store, "conv-1")

	agg.AppendInput("does this ")
	agg.AppendInput("look infected?")
	agg.AppendOutput("No, the area ")
	agg.AppendOutput("looks like mild irritation.")
	if err := agg.CommitTurn(context.Background()); err != nil {
		t.Fatalf("CommitTurn: %v", err)
	}

	got := messages(t, store, "conv-1")
	if len(got) != 2 {
		t.Fatalf("committed %d messages, want 2", len(got))
	}
	if got[0].Role != conversation.RoleUser || got[0].Text != "does this look infected?" {
		t.Errorf("first message = %+v, want user utterance", got[0])
	}
	if got[1].Role != conversation.RoleAssistant || got[1].Text != "No, the area looks like mild irritation." {
		t.Errorf("second message = %+v, want assistant reply", got[1])
	}
}

// Output-only turn: exactly one assistant message, no user message, and an
// immediate second commit adds nothing.
func TestCommitTurn_OutputOnly(t *testing.T) {
	t.Parallel()

	store := conversation.NewMemStore()
	agg := transcript.New(store, "conv-1")

	agg.AppendOutput("hello")
	if err := agg.CommitTurn(context.Background()); err != nil {
		t.Fatalf("CommitTurn: %v", err)
	}

	got := messages(t, store, "conv-1")
	if len(got) != 1 {
		t.Fatalf("committed %d messages, want 1", len(got))
	}
	if got[0].Role != conversation.RoleAssistant || got[0].Text != "hello" {
		t.Errorf("message = %+v, want assistant %q", got[0], "hello")
	}

	if err := agg.CommitTurn(context.Background()); err != nil {
		t.Fatalf("second CommitTurn: %v", err)
	}
	if got := messages(t, store, "conv-1"); len(got) != 1 {
		t.Errorf("spurious commit added messages: %d total, want 1", len(got))
	}
}

func TestCommitTurn_EmptyIsNoop(t *testing.T) {
	t.Parallel()

	store := conversation.NewMemStore()
	agg := transcript.New(store, "conv-1")

	if err := agg.CommitTurn(context.Background()); err != nil {
		t.Fatalf("CommitTurn: %v", err)
	}
	if got := messages(t, store, "conv-1"); len(got) != 0 {
		t.Errorf("empty commit produced %d messages", len(got))
	}
}

// Turns never interleave: fragments appended after a commit belong to the
// next turn only.
func TestCommitTurn_ResetsBetweenTurns(t *testing.T) {
	t.Parallel()

	store := conversation.NewMemStore()
	agg := transcript.New(store, "conv-1")

	agg.AppendInput("first turn")
	if err := agg.CommitTurn(context.Background()); err != nil {
		t.Fatalf("CommitTurn: %v", err)
	}

	agg.AppendInput("second turn")
	if err := agg.CommitTurn(context.Background()); err != nil {
		t.Fatalf("CommitTurn: %v", err)
	}

	got := messages(t, store, "conv-1")
	if len(got) != 2 {
		t.Fatalf("committed %d messages, want 2", len(got))
	}
	if got[0].Text != "first turn" || got[1].Text != "second turn" {
		t.Errorf("turns interleaved: %q, %q", got[0].Text, got[1].Text)
	}
}

func TestReset_DiscardsPartialText(t *testing.T) {
	t.Parallel()

	store := conversation.NewMemStore()
	agg := transcript.New(store, "conv-1")

	agg.AppendInput("half a sent")
	agg.AppendOutput("ence")
	if !agg.Pending() {
		t.Fatal("Pending = false with buffered text")
	}

	agg.Reset()
	if agg.Pending() {
		t.Error("Pending = true after Reset")
	}

	if err := agg.CommitTurn(context.Background()); err != nil {
		t.Fatalf("CommitTurn: %v", err)
	}
	if got := messages(t, store, "conv-1"); len(got) != 0 {
		t.Errorf("discarded text was committed: %d messages", len(got))
	}
}
