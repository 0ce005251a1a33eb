// Package voice coordinates one live voice session end to end: microphone
// capture in, synthesised speech out, transcripts to the conversation log.
//
// The [Manager] owns the session lifecycle. Starting a session connects the
// live provider, wires the capture pipeline's sink to it, and spawns a single
// dispatch loop that consumes the session's event stream in arrival order.
// At most one session is live at a time; starting a new one tears the
// previous one down completely first, so a new session never observes stale
// audio, playback, or transcript state.
package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dermalive/dermalive/internal/observe"
	"github.com/dermalive/dermalive/internal/prompt"
	"github.com/dermalive/dermalive/internal/transcript"
	"github.com/dermalive/dermalive/pkg/audio"
	"github.com/dermalive/dermalive/pkg/audio/playback"
	"github.com/dermalive/dermalive/pkg/capture"
	"github.com/dermalive/dermalive/pkg/conversation"
	"github.com/dermalive/dermalive/pkg/provider/live"
)

// commitTimeout bounds the conversation store write for one completed turn.
const commitTimeout = 5 * time.Second

// Option configures a [Manager] during construction.
type Option func(*Manager)

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithMetrics enables metric recording on the given instruments.
func WithMetrics(metrics *observe.Metrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

// WithErrorFunc registers cb to be invoked when a session terminates with a
// remote error. Called from the dispatch goroutine; must not block.
func WithErrorFunc(cb func(error)) Option {
	return func(m *Manager) { m.onError = cb }
}

// StartOptions parameterise one voice session.
type StartOptions struct {
	// ConversationID identifies the conversation log receiving committed turns.
	ConversationID string

	// Prompt supplies the user context folded into the system instructions.
	Prompt prompt.Context

	// Voice selects the prebuilt speech voice. Empty uses the provider default.
	Voice string
}

// Manager runs live voice sessions over a fixed set of collaborators.
// All exported methods are safe for concurrent use.
type Manager struct {
	provider live.Provider
	pipeline *capture.Pipeline
	sched    *playback.Scheduler
	store    conversation.Store

	logger  *slog.Logger
	metrics *observe.Metrics
	onError func(error)

	mu      sync.Mutex
	sess    live.Session
	agg     *transcript.Aggregator
	started time.Time
	wg      sync.WaitGroup
}

// NewManager creates a Manager. No session is started until [Manager.Start].
func NewManager(provider live.Provider, pipeline *capture.Pipeline, sched *playback.Scheduler, store conversation.Store, opts ...Option) *Manager {
	m := &Manager{
		provider: provider,
		pipeline: pipeline,
		sched:    sched,
		store:    store,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Start opens a new voice session for the given conversation. Any session
// already live is torn down first. The microphone is acquired before the
// provider connection opens; frames captured in that window are dropped, not
// buffered, so the new session starts clean.
//
// Returns [capture.ErrPermissionDenied] (wrapped) when microphone access is
// refused, and a wrapped provider error when the connection fails; in both
// cases the manager is left fully stopped and Start may be retried.
func (m *Manager) Start(ctx context.Context, opts StartOptions) error {
	m.Stop()

	if err := m.pipeline.Start(ctx); err != nil {
		return fmt.Errorf("voice: start capture: %w", err)
	}

	cfg := live.SessionConfig{
		Instructions: prompt.Build(opts.Prompt),
		Voice:        opts.Voice,
	}
	sess, err := m.provider.Connect(ctx, cfg)
	if err != nil {
		m.pipeline.Stop()
		return fmt.Errorf("voice: connect session: %w", err)
	}

	agg := transcript.New(m.store, opts.ConversationID)

	m.mu.Lock()
	m.sess = sess
	m.agg = agg
	m.started = time.Now()
	m.mu.Unlock()

	m.pipeline.AttachSink(sess)

	if m.metrics != nil {
		m.metrics.ActiveSessions.Add(ctx, 1)
	}
	m.logger.Info("voice session started", "conversation_id", opts.ConversationID)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.dispatch(sess, agg)
	}()

	return nil
}

// Stop tears down the live session, if any: detaches the capture sink, stops
// the microphone, closes the provider connection, flushes scheduled playback,
// and discards uncommitted transcript text. Idempotent; stopping an idle
// manager is a no-op.
func (m *Manager) Stop() {
	m.mu.Lock()
	sess := m.sess
	m.mu.Unlock()

	if sess == nil {
		m.pipeline.Stop()
		return
	}

	m.pipeline.DetachSink()
	if err := sess.Close(); err != nil {
		m.logger.Warn("voice: session close", "err", err)
	}
	// Dispatch drains the remaining events and runs the teardown.
	m.wg.Wait()
}

// Active reports whether a session is currently live.
func (m *Manager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sess != nil
}

// dispatch is the single consumer of one session's event stream. It runs
// until the channel closes — on local Close, remote close, or remote error —
// and then tears the session down.
func (m *Manager) dispatch(sess live.Session, agg *transcript.Aggregator) {
	for ev := range sess.Events() {
		switch ev.Type {
		case live.EventAudioDelta:
			m.handleAudioDelta(ev.Audio)

		case live.EventInputTranscript:
			agg.AppendInput(ev.Text)

		case live.EventOutputTranscript:
			agg.AppendOutput(ev.Text)

		case live.EventTurnComplete:
			m.commitTurn(agg)

		case live.EventInterrupted:
			m.sched.InterruptAll()
			if m.metrics != nil {
				m.metrics.Interruptions.Add(context.Background(), 1)
			}
			m.logger.Debug("playback flushed on interruption")

		case live.EventError:
			m.logger.Error("session error", "err", ev.Err)
			if m.metrics != nil {
				m.metrics.RecordSessionError(context.Background(), errorReason(ev.Err))
			}
			if m.onError != nil {
				m.onError(ev.Err)
			}

		case live.EventClosed:
			m.logger.Info("session closed by remote")
		}
	}

	m.finish(sess, agg)
}

// handleAudioDelta decodes one synthesised speech payload and schedules it.
// Malformed payloads are dropped; playback continues with the next delta.
func (m *Manager) handleAudioDelta(payload string) {
	buf, err := audio.Decode(payload, audio.OutputSampleRate, 1)
	if err != nil {
		m.logger.Warn("dropping malformed audio delta", "err", err)
		if m.metrics != nil {
			m.metrics.DecodeErrors.Add(context.Background(), 1)
		}
		return
	}
	m.sched.Enqueue(buf)
	if m.metrics != nil {
		m.metrics.AudioDeltas.Add(context.Background(), 1)
	}
}

// commitTurn flushes the aggregator's pending text to the conversation log.
func (m *Manager) commitTurn(agg *transcript.Aggregator) {
	ctx, cancel := context.WithTimeout(context.Background(), commitTimeout)
	defer cancel()

	if err := agg.CommitTurn(ctx); err != nil {
		m.logger.Error("commit turn", "err", err)
		return
	}
	if m.metrics != nil {
		m.metrics.TurnsCommitted.Add(context.Background(), 1)
	}
}

// finish runs the teardown after a session's event stream has closed. A
// session that is no longer current was already torn down by a newer Start.
func (m *Manager) finish(sess live.Session, agg *transcript.Aggregator) {
	m.mu.Lock()
	current := m.sess == sess
	started := m.started
	if current {
		m.sess = nil
		m.agg = nil
	}
	m.mu.Unlock()

	if !current {
		return
	}

	// Remote-initiated ends reach here without a Close: release the
	// connection. After a local Stop the repeat Close is a no-op.
	if err := sess.Close(); err != nil {
		m.logger.Warn("voice: session close", "err", err)
	}
	m.pipeline.DetachSink()
	m.pipeline.Stop()
	m.sched.InterruptAll()
	agg.Reset()

	if m.metrics != nil {
		ctx := context.Background()
		m.metrics.ActiveSessions.Add(ctx, -1)
		m.metrics.SessionDuration.Record(ctx, time.Since(started).Seconds())
	}
	m.logger.Info("voice session ended", "duration", time.Since(started))
}

// errorReason maps a session error to a low-cardinality metric label.
func errorReason(err error) string {
	var se *live.SessionError
	if errors.As(err, &se) && se.Code != 0 {
		return fmt.Sprintf("code_%d", se.Code)
	}
	return "unknown"
}
