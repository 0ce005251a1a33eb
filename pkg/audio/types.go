// Package audio defines the core audio types and the PCM codec used by the
// DermaLive voice pipeline.
//
// The pipeline moves three shapes of audio around:
//
//   - [Frame] — a block of mono float32 samples captured from a microphone.
//   - [EncodedChunk] — a transport-safe base64 rendering of 16-bit PCM, the
//     only form that crosses the wire to the live endpoint.
//   - [Buffer] — a decoded, de-interleaved multi-channel buffer ready for
//     playback scheduling.
//
// Encoding and decoding are pure functions; see [Encode] and [Decode].
package audio

import "time"

// InputSampleRate is the sample rate the live endpoint expects for
// microphone audio. Capture devices must deliver frames at this rate.
const InputSampleRate = 16000

// OutputSampleRate is the sample rate of synthesised audio received from
// the live endpoint.
const OutputSampleRate = 24000

// FrameSize is the number of samples per capture tap block.
const FrameSize = 4096

// InputMIMEType tags outbound chunks with their sample format and rate.
const InputMIMEType = "audio/pcm;rate=16000"

// Frame is one capture tap's worth of mono audio. Samples are float32 in
// [-1, 1] at [InputSampleRate]. Frames are ephemeral: created per tap tick,
// encoded immediately, never retained.
type Frame struct {
	// Samples holds [FrameSize] mono samples under normal operation. Shorter
	// frames are permitted (e.g., the final block before a device closes).
	Samples []float32

	// Timestamp marks when this frame was captured, relative to capture start.
	Timestamp time.Duration
}

// EncodedChunk is a transport-safe text encoding of a 16-bit little-endian
// PCM buffer plus the MIME tag identifying its format. Created by [Encode],
// owned by the session client until sent, then discarded.
type EncodedChunk struct {
	// MIMEType identifies sample format and rate, e.g. "audio/pcm;rate=16000".
	MIMEType string

	// Data is the base64-encoded PCM payload.
	Data string
}

// Buffer is a decoded multi-channel audio buffer produced by [Decode] and
// consumed by the playback scheduler. Channels are de-interleaved: Data[c][i]
// is sample i of channel c. All channels have equal length.
type Buffer struct {
	// Data holds one float32 slice per channel.
	Data [][]float32

	// SampleRate in Hz.
	SampleRate int
}

// Channels returns the channel count of the buffer.
func (b *Buffer) Channels() int { return len(b.Data) }

// Len returns the per-channel sample count. Zero for an empty buffer.
func (b *Buffer) Len() int {
	if len(b.Data) == 0 {
		return 0
	}
	return len(b.Data[0])
}

// Duration returns the playback duration of the buffer.
func (b *Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(b.Len()) * time.Second / time.Duration(b.SampleRate)
}
