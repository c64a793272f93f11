// Package wave converts raw synthesis output into playable WAV containers.
//
// The voice engine hands back floating-point samples; everything downstream
// (the audio cache, the player, any external media player pointed at a cache
// file) wants a self-describing container. Encoding is deterministic, so the
// same samples always produce the same bytes, which keeps the
// content-addressed cache honest.
package wave

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	bitDepth    = 16
	numChannels = 1
	pcmFormat   = 1 // WAVE_FORMAT_PCM

	maxSample = 32767
)

// ErrInvalidSampleRate is returned when encoding with a non-positive rate.
var ErrInvalidSampleRate = errors.New("sample rate must be positive")

// Encode quantizes float samples in [-1, 1] to 16-bit signed mono PCM and
// wraps them in a standard WAV container. Out-of-range samples are clamped,
// never wrapped. An empty sample slice is legal and yields a header-only
// container.
func Encode(samples []float64, sampleRate int) ([]byte, error) {
	if sampleRate <= 0 {
		return nil, ErrInvalidSampleRate
	}

	var ws writeSeeker
	enc := wav.NewEncoder(&ws, sampleRate, bitDepth, numChannels, pcmFormat)

	// The encoder only emits the RIFF/fmt header on the first Write, so an
	// empty buffer still goes through it: no samples must yield the 44-byte
	// header-only container, not a bare truncated chunk.
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: numChannels, SampleRate: sampleRate},
		SourceBitDepth: bitDepth,
		Data:           make([]int, len(samples)),
	}
	for i, s := range samples {
		buf.Data[i] = quantize(s)
	}
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("write pcm payload: %w", err)
	}

	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("finalize container: %w", err)
	}
	return ws.data, nil
}

// Decode reads a WAV container produced by Encode back into float samples
// and the container's sample rate.
func Decode(data []byte) ([]float64, int, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, 0, errors.New("not a valid wav container")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("read pcm payload: %w", err)
	}
	samples := make([]float64, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = float64(v) / maxSample
	}
	return samples, int(dec.SampleRate), nil
}

func quantize(s float64) int {
	if s > 1 {
		s = 1
	}
	if s < -1 {
		s = -1
	}
	return int(s * maxSample)
}

// writeSeeker is an in-memory io.WriteSeeker. The wav encoder needs to seek
// back over the header to patch chunk sizes on Close.
type writeSeeker struct {
	data []byte
	pos  int
}

func (w *writeSeeker) Write(p []byte) (int, error) {
	if need := w.pos + len(p); need > len(w.data) {
		grown := make([]byte, need)
		copy(grown, w.data)
		w.data = grown
	}
	copy(w.data[w.pos:], p)
	w.pos += len(p)
	return len(p), nil
}

func (w *writeSeeker) Seek(offset int64, whence int) (int64, error) {
	var next int
	switch whence {
	case io.SeekStart:
		next = int(offset)
	case io.SeekCurrent:
		next = w.pos + int(offset)
	case io.SeekEnd:
		next = len(w.data) + int(offset)
	default:
		return 0, fmt.Errorf("unsupported whence %d", whence)
	}
	if next < 0 {
		return 0, errors.New("seek before start of buffer")
	}
	w.pos = next
	return int64(next), nil
}
