// Package mock provides an in-memory [live.Provider] for tests.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/dermalive/dermalive/pkg/audio"
	"github.com/dermalive/dermalive/pkg/provider/live"
)

// Compile-time interface assertions.
var (
	_ live.Provider = (*Provider)(nil)
	_ live.Session  = (*Session)(nil)
)

// eventBuf is the event channel depth. Emits beyond it block until the
// consumer catches up, like a real session's receive path.
const eventBuf = 64

// Provider is a scripted live provider. Zero value is usable: Connect
// succeeds and returns a fresh [Session].
type Provider struct {
	// ConnectErr, when non-nil, is returned by Connect to simulate a
	// connection setup failure.
	ConnectErr error

	mu       sync.Mutex
	sessions []*Session
	configs  []live.SessionConfig
}

// Connect implements [live.Provider].
func (p *Provider) Connect(_ context.Context, cfg live.SessionConfig) (live.Session, error) {
	if p.ConnectErr != nil {
		return nil, p.ConnectErr
	}

	s := &Session{events: make(chan live.Event, eventBuf)}
	p.mu.Lock()
	p.sessions = append(p.sessions, s)
	p.configs = append(p.configs, cfg)
	p.mu.Unlock()
	return s, nil
}

// LastSession returns the most recently opened session, or nil.
func (p *Provider) LastSession() *Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.sessions) == 0 {
		return nil
	}
	return p.sessions[len(p.sessions)-1]
}

// LastConfig returns the config of the most recent Connect call.
func (p *Provider) LastConfig() live.SessionConfig {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.configs) == 0 {
		return live.SessionConfig{}
	}
	return p.configs[len(p.configs)-1]
}

// SessionCount returns how many sessions have been opened.
func (p *Provider) SessionCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sessions)
}

// Session is the mock session handle. Drive it from tests with Emit and
// EmitAll; inspect outbound traffic with Sent.
type Session struct {
	events chan live.Event

	mu     sync.Mutex
	sent   []audio.EncodedChunk
	errVal error
	closed bool

	// emitMu serialises channel sends with the channel close. A separate
	// mutex so a blocked Emit never stalls SendAudio, Err, or Closed.
	emitMu   sync.Mutex
	chClosed bool
}

// SendAudio implements [live.Session].
func (s *Session) SendAudio(chunk audio.EncodedChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("mock: session closed")
	}
	s.sent = append(s.sent, chunk)
	return nil
}

// Events implements [live.Session].
func (s *Session) Events() <-chan live.Event { return s.events }

// Err implements [live.Session].
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errVal
}

// Close implements [live.Session]. Idempotent; closes the event channel
// unless a terminal event already did.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.emitMu.Lock()
	if !s.chClosed {
		s.chClosed = true
		close(s.events)
	}
	s.emitMu.Unlock()
	return nil
}

// Emit delivers one inbound event to the session consumer. Error and closed
// events are terminal: the channel closes after delivery, as a real session's
// does. Events emitted after Close or after a terminal event are discarded.
// For error events, Err is recorded as the session's terminal error.
func (s *Session) Emit(ev live.Event) {
	if ev.Type == live.EventError {
		s.mu.Lock()
		if s.errVal == nil {
			s.errVal = ev.Err
		}
		s.mu.Unlock()
	}

	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	if s.chClosed {
		return
	}
	s.events <- ev
	if ev.Type == live.EventError || ev.Type == live.EventClosed {
		s.chClosed = true
		close(s.events)
	}
}

// EmitAll delivers events in order.
func (s *Session) EmitAll(evs ...live.Event) {
	for _, ev := range evs {
		s.Emit(ev)
	}
}

// Sent returns a snapshot of every chunk sent so far.
func (s *Session) Sent() []audio.EncodedChunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]audio.EncodedChunk(nil), s.sent...)
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
