package conversation

import (
	"context"
	"sync"
)

// Compile-time interface assertion.
var _ Store = (*MemStore)(nil)

// MemStore is an in-memory [Store]. Suitable for tests and for running
// without a database; logs vanish when the process exits.
type MemStore struct {
	mu   sync.RWMutex
	logs map[string][]Message
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{logs: make(map[string][]Message)}
}

// Append implements [Store].
func (s *MemStore) Append(_ context.Context, conversationID string, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs[conversationID] = append(s.logs[conversationID], msg)
	return nil
}

// Messages implements [Store].
func (s *MemStore) Messages(_ context.Context, conversationID string) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Message(nil), s.logs[conversationID]...), nil
}
