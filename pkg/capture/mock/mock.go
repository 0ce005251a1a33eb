// Package mock provides an in-memory [capture.Device] for tests.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/dermalive/dermalive/pkg/audio"
	"github.com/dermalive/dermalive/pkg/capture"
)

// Compile-time interface assertions.
var (
	_ capture.Device = (*Device)(nil)
	_ capture.Stream = (*Stream)(nil)
)

// Device is a scripted microphone. Zero value is usable: Open succeeds and
// returns a stream that emits nothing until frames are pushed.
type Device struct {
	// OpenErr, when non-nil, is returned by Open. Set to
	// capture.ErrPermissionDenied to simulate a denied microphone prompt.
	OpenErr error

	// OpenDelay makes Open block before returning, simulating a slow
	// permission prompt. Open still honours ctx cancellation while waiting.
	OpenDelay time.Duration

	mu      sync.Mutex
	streams []*Stream
}

// Open implements [capture.Device].
func (d *Device) Open(ctx context.Context) (capture.Stream, error) {
	if d.OpenDelay > 0 {
		select {
		case <-time.After(d.OpenDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if d.OpenErr != nil {
		return nil, d.OpenErr
	}

	s := &Stream{frames: make(chan audio.Frame, 16)}
	d.mu.Lock()
	d.streams = append(d.streams, s)
	d.mu.Unlock()
	return s, nil
}

// LastStream returns the most recently opened stream, or nil.
func (d *Device) LastStream() *Stream {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.streams) == 0 {
		return nil
	}
	return d.streams[len(d.streams)-1]
}

// Stream is the mock capture stream. Push frames with [Stream.Push] or
// [Stream.PushPCM16]; close with [Stream.Close].
type Stream struct {
	frames chan audio.Frame

	mu     sync.Mutex
	closed bool
}

// Frames implements [capture.Stream].
func (s *Stream) Frames() <-chan audio.Frame { return s.frames }

// Push emits one tap block of mono float32 samples.
func (s *Stream) Push(samples []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.frames <- audio.Frame{Samples: samples}
}

// PushPCM16 emits raw little-endian int16 PCM in an arbitrary device format,
// converted to the pipeline's 16 kHz mono input format first.
func (s *Stream) PushPCM16(pcm []byte, format audio.Format) {
	s.Push(audio.ToInputFormat(pcm, format))
}

// Close implements [capture.Stream]. Idempotent.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.frames)
	return nil
}
