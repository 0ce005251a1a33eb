// Package capture acquires microphone audio and forwards it, frame by frame,
// to the active live session.
//
// The [Pipeline] owns the device lifecycle and runs a small state machine:
//
//	Idle → Requesting → Active → Idle
//
// Each tap block produced by the device is encoded to a transport chunk and
// handed to the currently attached sink. When no sink is attached — the
// session is still connecting, or none exists — the frame is dropped on the
// floor. There is deliberately no buffering across session boundaries: a new
// session must never receive audio captured before it opened.
//
// Device access is abstracted behind [Device] so that platform adapters
// (ALSA, browser gateway, test doubles) can be swapped without touching the
// pipeline. All exported methods are safe for concurrent use.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/dermalive/dermalive/pkg/audio"
)

// ErrPermissionDenied is returned by [Pipeline.Start] when microphone access
// is refused or no capture device is available. Recoverable: the caller may
// retry Start after the user grants access.
var ErrPermissionDenied = errors.New("capture: microphone access denied")

// ErrAlreadyStarted is returned by [Pipeline.Start] when capture is already
// requesting or active. Stop the pipeline before starting it again.
var ErrAlreadyStarted = errors.New("capture: already started")

// State is the capture pipeline lifecycle state.
type State int

const (
	StateIdle State = iota
	StateRequesting
	StateActive
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequesting:
		return "requesting"
	case StateActive:
		return "active"
	default:
		return "unknown"
	}
}

// Device grants access to a microphone. Implementations must deliver mono
// float32 frames at [audio.InputSampleRate] in blocks of [audio.FrameSize];
// the helpers in package audio cover devices with other native formats.
type Device interface {
	// Open acquires the device and starts capture. It returns
	// [ErrPermissionDenied] (wrapped) when access is refused or unsupported.
	// The supplied ctx governs the acquisition attempt only.
	Open(ctx context.Context) (Stream, error)
}

// Stream is an open capture stream.
type Stream interface {
	// Frames returns the channel on which tap blocks arrive. The channel is
	// closed when the stream ends, either via Close or device failure.
	Frames() <-chan audio.Frame

	// Close stops capture and releases the device. Idempotent.
	Close() error
}

// Sink receives encoded frames. Satisfied by the live session handle.
type Sink interface {
	SendAudio(chunk audio.EncodedChunk) error
}

// Option configures a [Pipeline] during construction.
type Option func(*Pipeline)

// WithListeningFunc registers cb to be invoked whenever the shared
// "listening" indicator flips. It is called outside the pipeline lock and
// must not block.
func WithListeningFunc(cb func(bool)) Option {
	return func(p *Pipeline) { p.onListening = cb }
}

// WithFrameFunc registers cb to be invoked once per tap block, reporting
// whether the frame was forwarded to a sink or dropped. It is called from
// the capture goroutine and must not block.
func WithFrameFunc(cb func(forwarded bool)) Option {
	return func(p *Pipeline) { p.onFrame = cb }
}

// Stats is a snapshot of pipeline frame counters.
type Stats struct {
	// Forwarded counts frames delivered to a sink.
	Forwarded uint64

	// Dropped counts frames discarded because no sink was attached or the
	// sink rejected them.
	Dropped uint64
}

// Pipeline taps a capture device and forwards encoded frames to the attached
// sink, dropping frames whenever no sink is present.
type Pipeline struct {
	device      Device
	onListening func(bool)
	onFrame     func(bool)

	mu     sync.Mutex
	state  State
	stream Stream
	cancel context.CancelFunc
	sink   Sink
	wg     sync.WaitGroup

	listening atomic.Bool
	forwarded atomic.Uint64
	dropped   atomic.Uint64
}

// New creates a Pipeline over the given device. The pipeline starts idle;
// call [Pipeline.Start] to begin capturing.
func New(device Device, opts ...Option) *Pipeline {
	p := &Pipeline{device: device}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Start requests device access and begins capturing. Frames flow to the
// attached sink as they arrive; until a sink is attached they are dropped.
//
// Returns [ErrPermissionDenied] (wrapped) when the device refuses access and
// [ErrAlreadyStarted] when capture is already running. A Stop racing the
// acquisition wins: Start releases the device and returns ctx's error.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.state != StateIdle {
		p.mu.Unlock()
		return ErrAlreadyStarted
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.state = StateRequesting
	p.cancel = cancel
	p.mu.Unlock()

	stream, err := p.device.Open(runCtx)

	p.mu.Lock()
	if err != nil {
		p.state = StateIdle
		p.cancel = nil
		p.mu.Unlock()
		cancel()
		return fmt.Errorf("capture: open device: %w", err)
	}
	if p.state != StateRequesting {
		// Stop was called while the device was being acquired.
		p.mu.Unlock()
		_ = stream.Close()
		cancel()
		return runCtx.Err()
	}
	p.state = StateActive
	p.stream = stream
	p.mu.Unlock()

	p.setListening(true)

	p.wg.Add(1)
	go p.run(stream)

	return nil
}

// Stop disconnects the tap, stops the device, and clears the listening
// indicator. Safe to call from any state and idempotent: stopping an idle
// pipeline is a no-op. Stop never returns an error — it runs on error paths
// as well as the happy path.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	switch p.state {
	case StateIdle:
		p.mu.Unlock()
		return
	case StateRequesting:
		p.state = StateIdle
		cancel := p.cancel
		p.cancel = nil
		p.mu.Unlock()
		cancel()
		return
	}
	// Active: close the stream; run exits when the frame channel drains.
	p.state = StateIdle
	stream := p.stream
	cancel := p.cancel
	p.stream = nil
	p.cancel = nil
	p.mu.Unlock()

	if err := stream.Close(); err != nil {
		slog.Warn("capture: stream close", "err", err)
	}
	cancel()
	p.wg.Wait()

	p.setListening(false)
}

// AttachSink routes subsequent frames to s. Replaces any previous sink.
func (p *Pipeline) AttachSink(s Sink) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sink = s
}

// DetachSink removes the current sink; subsequent frames are dropped.
func (p *Pipeline) DetachSink() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sink = nil
}

// State returns the current lifecycle state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Listening reports the shared listening indicator: true while the device is
// actively capturing.
func (p *Pipeline) Listening() bool {
	return p.listening.Load()
}

// Stats returns a snapshot of the frame counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Forwarded: p.forwarded.Load(),
		Dropped:   p.dropped.Load(),
	}
}

// run encodes and forwards frames until the stream's channel closes.
func (p *Pipeline) run(stream Stream) {
	defer p.wg.Done()

	for frame := range stream.Frames() {
		chunk := audio.Encode(frame)

		p.mu.Lock()
		sink := p.sink
		p.mu.Unlock()

		if sink == nil {
			p.dropped.Add(1)
			p.countFrame(false)
			continue
		}
		if err := sink.SendAudio(chunk); err != nil {
			p.dropped.Add(1)
			p.countFrame(false)
			slog.Debug("capture: frame rejected by sink", "err", err)
			continue
		}
		p.forwarded.Add(1)
		p.countFrame(true)
	}

	// Device-initiated end (unplugged, stream error): flip back to idle so a
	// later Start begins cleanly. A Stop-initiated end already did this.
	p.mu.Lock()
	deviceDied := p.state == StateActive
	if deviceDied {
		p.state = StateIdle
		p.stream = nil
		if p.cancel != nil {
			p.cancel()
			p.cancel = nil
		}
	}
	p.mu.Unlock()

	if deviceDied {
		p.setListening(false)
	}
}

func (p *Pipeline) countFrame(forwarded bool) {
	if p.onFrame != nil {
		p.onFrame(forwarded)
	}
}

func (p *Pipeline) setListening(on bool) {
	if p.listening.Swap(on) == on {
		return
	}
	if p.onListening != nil {
		p.onListening(on)
	}
}
