// Package live defines the provider interface for streaming speech-to-speech
// sessions.
//
// A live provider wraps a real-time voice AI endpoint that accepts raw PCM
// audio and answers with synthesised speech plus incremental transcriptions
// of both sides — no separate STT/TTS stages. The central abstraction is
// [Session]: a long-lived duplex connection whose inbound traffic is exposed
// as a single ordered stream of tagged [Event] values, consumed by one
// dispatch loop rather than scattered callbacks.
//
// All implementations must be safe for concurrent use.
package live

import (
	"context"
	"fmt"

	"github.com/dermalive/dermalive/pkg/audio"
)

// EventType tags the inbound events a session can deliver.
type EventType int

const (
	// EventAudioDelta carries a base64 PCM payload of synthesised speech.
	EventAudioDelta EventType = iota

	// EventInputTranscript carries an incremental transcription of user speech.
	EventInputTranscript

	// EventOutputTranscript carries an incremental transcription of the
	// assistant's spoken reply.
	EventOutputTranscript

	// EventTurnComplete marks the end of one user/assistant exchange.
	EventTurnComplete

	// EventInterrupted signals that the user barged in: all scheduled
	// playback must be flushed immediately.
	EventInterrupted

	// EventError carries a remote-reported runtime error. The session is no
	// longer usable; consumers must tear it down.
	EventError

	// EventClosed signals a remote-initiated shutdown.
	EventClosed
)

// String returns the human-readable name of the event type.
func (t EventType) String() string {
	switch t {
	case EventAudioDelta:
		return "audio-delta"
	case EventInputTranscript:
		return "input-transcript"
	case EventOutputTranscript:
		return "output-transcript"
	case EventTurnComplete:
		return "turn-complete"
	case EventInterrupted:
		return "interrupted"
	case EventError:
		return "error"
	case EventClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Event is one inbound session event. Exactly the field matching Type is
// populated: Audio for [EventAudioDelta], Text for the transcript deltas,
// Err for [EventError].
type Event struct {
	Type EventType

	// Audio is the base64-encoded PCM payload of an audio delta.
	Audio string

	// Text is the transcription fragment of a transcript delta.
	Text string

	// Err is the remote error of an error event.
	Err error
}

// SessionError wraps a runtime error reported by the remote endpoint. The
// session must be torn down after one is observed.
type SessionError struct {
	// Code is the provider-specific error code, when reported.
	Code int

	// Message is the human-readable error description.
	Message string
}

// Error implements the error interface.
func (e *SessionError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("live: session error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("live: session error: %s", e.Message)
}

// SessionConfig is the initial configuration for a new session.
type SessionConfig struct {
	// Instructions is the assembled system prompt defining the assistant's
	// persona and the user's context. See package prompt.
	Instructions string

	// Voice selects the prebuilt speech voice for synthesised replies.
	Voice string
}

// Session is an open duplex voice session.
//
// Inbound events are delivered on the Events channel exactly once each, in
// arrival order; the ordering guarantee holds only within a single session.
// Consumers must drain the channel promptly to avoid stalling the receive
// loop. Callers must call Close when done; Close is idempotent.
type Session interface {
	// SendAudio queues one encoded frame on the outbound connection. It does
	// not block on network round-trips. Sends on a closed session return an
	// error; the caller drops the frame (fire-and-forget frame policy).
	SendAudio(chunk audio.EncodedChunk) error

	// Events returns the inbound event stream. The channel is closed after a
	// terminal event (error, remote close) or a local Close.
	Events() <-chan Event

	// Err returns the error that terminated the session, or nil after a
	// clean shutdown. Valid once Events is closed.
	Err() error

	// Close requests a graceful shutdown and releases all resources. Safe to
	// call on an already-closed session.
	Close() error
}

// Provider is the abstraction over any streaming speech-to-speech backend.
type Provider interface {
	// Connect establishes a new session. Both input and output transcription
	// are requested unconditionally — the transcript aggregator depends on
	// them. A connection setup failure is returned as a wrapped error; the
	// caller runs its normal teardown path.
	Connect(ctx context.Context, cfg SessionConfig) (Session, error)
}
