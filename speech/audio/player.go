// Package audio plays synthesized WAV files through the system audio
// device using oto.
package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/quillreader/quill/speech/wave"
)

// ErrBusy is returned when PlayFile is called while another file is still
// playing.
var ErrBusy = errors.New("audio: playback already in progress")

// Player owns one oto context and plays at most one file at a time. The
// context is created once; oto v3 contexts cannot be closed, so a process
// should hold a single Player for its lifetime.
type Player struct {
	context    *oto.Context
	sampleRate int

	mu     sync.Mutex
	player *oto.Player
	// pcm keeps the samples alive while the oto player drains them.
	pcm    []byte
	stopCh chan struct{}
	paused bool
}

// NewPlayer opens the audio device at the given sample rate. It blocks
// until the device is ready.
func NewPlayer(sampleRate int) (*Player, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("audio: invalid sample rate %d", sampleRate)
	}
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 1,
		Format:       oto.FormatSignedInt16LE,
	})
	if err != nil {
		return nil, fmt.Errorf("audio: open device: %w", err)
	}
	<-ready
	return &Player{context: ctx, sampleRate: sampleRate}, nil
}

// PlayFile decodes the WAV file at path and plays it to completion. It
// blocks until the audio has drained, Stop is called, or the read fails.
// Pause and Resume from other goroutines act on the in-flight playback.
func (p *Player) PlayFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("audio: read %s: %w", path, err)
	}
	samples, _, err := wave.Decode(data)
	if err != nil {
		return fmt.Errorf("audio: decode %s: %w", path, err)
	}
	if len(samples) == 0 {
		return nil
	}

	pcm := pcmBytes(samples)

	p.mu.Lock()
	if p.player != nil {
		p.mu.Unlock()
		return ErrBusy
	}
	stopCh := make(chan struct{})
	pl := p.context.NewPlayer(bytes.NewReader(pcm))
	p.player = pl
	p.pcm = pcm
	p.stopCh = stopCh
	p.paused = false
	p.mu.Unlock()

	pl.Play()

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	defer p.release(pl)

	for {
		select {
		case <-stopCh:
			return nil
		case <-ticker.C:
			p.mu.Lock()
			paused := p.paused
			p.mu.Unlock()
			if paused {
				continue
			}
			if !pl.IsPlaying() && pl.BufferedSize() == 0 {
				return pl.Err()
			}
		}
	}
}

// Pause suspends the in-flight playback, if any.
func (p *Player) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.player != nil && !p.paused {
		p.player.Pause()
		p.paused = true
	}
}

// Resume continues a paused playback, if any.
func (p *Player) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.player != nil && p.paused {
		p.player.Play()
		p.paused = false
	}
}

// Stop aborts the in-flight playback. PlayFile returns nil in that case.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopCh != nil {
		close(p.stopCh)
		p.stopCh = nil
	}
}

// release tears down the oto player after PlayFile finishes, letting the
// sample buffer go once nothing reads from it.
func (p *Player) release(pl *oto.Player) {
	pl.Pause()
	_ = pl.Close()
	p.mu.Lock()
	if p.player == pl {
		p.player = nil
		p.pcm = nil
		p.stopCh = nil
		p.paused = false
	}
	p.mu.Unlock()
}

// pcmBytes converts float samples in [-1, 1] to the signed 16-bit little
// endian stream oto consumes.
func pcmBytes(samples []float64) []byte {
	out := make([]byte, 2*len(samples))
	for i, s := range samples {
		if s > 1.0 {
			s = 1.0
		} else if s < -1.0 {
			s = -1.0
		}
		binary.LittleEndian.PutUint16(out[2*i:], uint16(int16(s*32767)))
	}
	return out
}
