// Package playback schedules decoded audio buffers for gapless sequential
// playback on an output device.
//
// Synthesised speech arrives from the live endpoint as a series of short
// buffers, each a separate network event, often faster than real time. The
// [Scheduler] assigns every buffer a start time on the device clock so that
// consecutive buffers play back-to-back with no gaps and no overlap, and
// supports hard interruption: when the remote end reports the user barged in,
// everything scheduled or playing is stopped and flushed at once.
//
// All exported methods are safe for concurrent use.
package playback

import (
	"sync"
	"time"

	"github.com/dermalive/dermalive/pkg/audio"
)

// Sink is the output device adapter. Play must schedule buf to start at the
// given device-clock time and return a stop function that silences that
// buffer immediately. Play must not block; the returned stop function must be
// safe to call after the buffer has already finished.
//
// The sink is a process-wide singleton in the surrounding application —
// created once and shared across sessions, never rebuilt per call.
type Sink interface {
	Play(buf *audio.Buffer, start time.Duration) (stop func())
}

// SinkFunc adapts a plain function to the [Sink] interface.
type SinkFunc func(buf *audio.Buffer, start time.Duration) (stop func())

// Play implements [Sink].
func (f SinkFunc) Play(buf *audio.Buffer, start time.Duration) (stop func()) {
	return f(buf, start)
}

// Option configures a [Scheduler] during construction.
type Option func(*Scheduler)

// WithClock overrides the device clock. The function must be monotonic and
// return the elapsed time on the output device's timeline. Used in tests to
// make scheduling deterministic.
func WithClock(now func() time.Duration) Option {
	return func(s *Scheduler) { s.now = now }
}

// entry is one buffer in flight: scheduled or currently playing.
type entry struct {
	stop       func()
	completion *time.Timer
}

// Scheduler tracks the next free playback timestamp and keeps the set of
// in-flight buffers so that an interruption can silence all of them.
type Scheduler struct {
	sink Sink
	now  func() time.Duration

	mu            sync.Mutex
	nextAvailable time.Duration
	active        map[uint64]*entry
	seq           uint64
	closed        bool
}

// New creates a Scheduler that plays buffers through sink. The device clock
// starts at zero when the Scheduler is created unless overridden with
// [WithClock]. sink must not be nil.
func New(sink Sink, opts ...Option) *Scheduler {
	epoch := time.Now()
	s := &Scheduler{
		sink:   sink,
		now:    func() time.Duration { return time.Since(epoch) },
		active: make(map[uint64]*entry),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Enqueue schedules buf to start at max(nextAvailable, deviceClockNow) and
// advances the next-available mark by the buffer's duration. Successive
// enqueues therefore play gaplessly in arrival order even when buffers land
// faster than real time. Returns the assigned start time.
//
// A completion callback removes the buffer from the active set when it ends;
// a buffer that already completed is never double-scheduled or double-removed.
func (s *Scheduler) Enqueue(buf *audio.Buffer) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	nowTime := s.now()
	start := s.nextAvailable
	// Never let the schedule fall behind the device clock: a stale
	// nextAvailable would start the buffer in the past.
	if start < nowTime {
		start = nowTime
	}
	if s.closed {
		return start
	}

	dur := buf.Duration()
	s.nextAvailable = start + dur

	s.seq++
	id := s.seq
	e := &entry{stop: s.sink.Play(buf, start)}
	e.completion = time.AfterFunc(start+dur-nowTime, func() {
		s.complete(id)
	})
	s.active[id] = e

	return start
}

// InterruptAll immediately stops every buffer currently scheduled or playing,
// clears the active set, and resets the next-available mark to zero so the
// next turn starts fresh at the device clock instead of stacking behind a
// stale schedule.
func (s *Scheduler) InterruptAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interruptLocked()
}

// ActiveCount reports how many buffers are scheduled or playing.
func (s *Scheduler) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// Close interrupts all playback and rejects further enqueues. Idempotent.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.interruptLocked()
	return nil
}

// interruptLocked stops every in-flight buffer. Must be called with s.mu held.
func (s *Scheduler) interruptLocked() {
	for id, e := range s.active {
		e.completion.Stop()
		e.stop()
		delete(s.active, id)
	}
	s.nextAvailable = 0
}

// complete removes a finished buffer from the active set. A no-op when the
// buffer was already flushed by an interruption.
func (s *Scheduler) complete(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, id)
}
