package playback_test

import (
	"sync"
	"testing"
	"time"

	"github.com/dermalive/dermalive/pkg/audio"
	"github.com/dermalive/dermalive/pkg/audio/playback"
)

// monoBuffer builds a 24 kHz mono buffer of the given duration.
func monoBuffer(d time.Duration) *audio.Buffer {
	n := int(d * audio.OutputSampleRate / time.Second)
	return &audio.Buffer{
		Data:       [][]float32{make([]float32, n)},
		SampleRate: audio.OutputSampleRate,
	}
}

// recordingSink records every Play call and counts stop invocations.
type recordingSink struct {
	mu      sync.Mutex
	starts  []time.Duration
	stopped int
}

func (r *recordingSink) Play(_ *audio.Buffer, start time.Duration) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.starts = append(r.starts, start)
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.stopped++
	}
}

func (r *recordingSink) startTimes() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.starts...)
}

func (r *recordingSink) stopCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopped
}

// fakeClock is a settable device clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Duration
}

func (c *fakeClock) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = d
}

// Buffers arriving faster than real time must be scheduled back-to-back:
// total span exactly d1+d2+d3, no gaps, no overlap.
func TestEnqueue_GaplessUnderJitter(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{}
	sink := &recordingSink{}
	s := playback.New(sink, playback.WithClock(clock.Now))
	defer s.Close()

	d1, d2, d3 := 100*time.Millisecond, 40*time.Millisecond, 250*time.Millisecond
	s.Enqueue(monoBuffer(d1))
	s.Enqueue(monoBuffer(d2))
	end := s.Enqueue(monoBuffer(d3)) + d3

	starts := sink.startTimes()
	if len(starts) != 3 {
		t.Fatalf("sink saw %d buffers, want 3", len(starts))
	}
	if starts[0] != 0 || starts[1] != d1 || starts[2] != d1+d2 {
		t.Errorf("start times = %v, want [0 %v %v]", starts, d1, d1+d2)
	}
	if end != d1+d2+d3 {
		t.Errorf("scheduled span = %v, want %v", end, d1+d2+d3)
	}
}

// The schedule must never fall behind the device clock.
func TestEnqueue_ClampsToDeviceClock(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{}
	sink := &recordingSink{}
	s := playback.New(sink, playback.WithClock(clock.Now))
	defer s.Close()

	s.Enqueue(monoBuffer(50 * time.Millisecond)) // nextAvailable = 50ms

	clock.Set(300 * time.Millisecond) // playback drained long ago
	start := s.Enqueue(monoBuffer(50 * time.Millisecond))
	if start != 300*time.Millisecond {
		t.Errorf("start = %v, want clamped to device clock 300ms", start)
	}
}

func TestInterruptAll_FlushesAndResetsClock(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{}
	sink := &recordingSink{}
	s := playback.New(sink, playback.WithClock(clock.Now))
	defer s.Close()

	for range 5 {
		s.Enqueue(monoBuffer(time.Second))
	}
	if got := s.ActiveCount(); got != 5 {
		t.Fatalf("ActiveCount = %d, want 5", got)
	}

	s.InterruptAll()

	if got := s.ActiveCount(); got != 0 {
		t.Errorf("ActiveCount after interrupt = %d, want 0", got)
	}
	if got := sink.stopCount(); got != 5 {
		t.Errorf("stop called %d times, want 5", got)
	}

	// The next enqueue starts at the device clock, not the stale schedule.
	clock.Set(700 * time.Millisecond)
	start := s.Enqueue(monoBuffer(time.Second))
	if start != 700*time.Millisecond {
		t.Errorf("start after interrupt = %v, want 700ms (device clock)", start)
	}
}

// Completed buffers leave the active set on their own and are never
// double-removed by a later interruption.
func TestCompletion_RemovesFromActiveSet(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	s := playback.New(sink) // real clock; tiny buffers
	defer s.Close()

	s.Enqueue(monoBuffer(5 * time.Millisecond))
	s.Enqueue(monoBuffer(5 * time.Millisecond))

	deadline := time.After(2 * time.Second)
	for s.ActiveCount() != 0 {
		select {
		case <-deadline:
			t.Fatalf("buffers never completed; ActiveCount = %d", s.ActiveCount())
		case <-time.After(5 * time.Millisecond):
		}
	}

	// Interrupting after completion must not stop anything twice.
	s.InterruptAll()
	if got := sink.stopCount(); got != 0 {
		t.Errorf("stop called %d times on completed buffers, want 0", got)
	}
}

func TestClose_Idempotent(t *testing.T) {
	t.Parallel()

	s := playback.New(&recordingSink{})
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
