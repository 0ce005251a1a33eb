package audio

import (
	"encoding/base64"
	"fmt"
)

// ErrMalformedAudio is returned by [Decode] when a payload cannot be
// interpreted as 16-bit PCM for the requested channel count. Callers log and
// drop the offending chunk; a single bad frame must not end the session.
var ErrMalformedAudio = fmt.Errorf("audio: malformed pcm payload")

// Encode converts a mono float32 frame to a transport-safe chunk: each sample
// is scaled by 32768, truncated to a signed 16-bit integer, serialised
// little-endian, and base64-wrapped under [InputMIMEType].
//
// Encode never resamples — callers must supply audio at [InputSampleRate].
func Encode(frame Frame) EncodedChunk {
	pcm := make([]byte, len(frame.Samples)*2)
	for i, s := range frame.Samples {
		// Truncate toward zero, clamping to the int16 range. +1.0 would
		// otherwise overflow to -32768.
		v := int32(s * 32768)
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		pcm[i*2] = byte(v)
		pcm[i*2+1] = byte(v >> 8)
	}
	return EncodedChunk{
		MIMEType: InputMIMEType,
		Data:     base64.StdEncoding.EncodeToString(pcm),
	}
}

// Decode reverses the transport encoding: data is base64-decoded, the bytes
// are reinterpreted as little-endian int16 samples, de-interleaved across
// channels, and rescaled to float32 in [-1, 1] via division by 32768.
//
// Returns [ErrMalformedAudio] (wrapped) when data is not valid base64 or the
// decoded byte length is not a multiple of 2×channels.
func Decode(data string, sampleRate, channels int) (*Buffer, error) {
	if channels <= 0 {
		return nil, fmt.Errorf("%w: channel count %d", ErrMalformedAudio, channels)
	}

	pcm, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("%w: base64: %v", ErrMalformedAudio, err)
	}
	return DecodePCM16(pcm, sampleRate, channels)
}

// DecodePCM16 de-interleaves raw little-endian int16 PCM bytes into a
// float32 [Buffer]. It performs the same length validation as [Decode].
func DecodePCM16(pcm []byte, sampleRate, channels int) (*Buffer, error) {
	if channels <= 0 {
		return nil, fmt.Errorf("%w: channel count %d", ErrMalformedAudio, channels)
	}
	stride := 2 * channels
	if len(pcm)%stride != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a multiple of %d", ErrMalformedAudio, len(pcm), stride)
	}

	perChannel := len(pcm) / stride
	buf := &Buffer{
		Data:       make([][]float32, channels),
		SampleRate: sampleRate,
	}
	for c := range buf.Data {
		buf.Data[c] = make([]float32, perChannel)
	}

	for i := range perChannel {
		base := i * stride
		for c := range channels {
			off := base + c*2
			s := int16(pcm[off]) | int16(pcm[off+1])<<8
			buf.Data[c][i] = float32(s) / 32768
		}
	}
	return buf, nil
}
