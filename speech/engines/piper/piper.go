// Package piper drives the Piper neural voice engine as a subprocess.
//
// Piper reads text on stdin and, with --output-raw, writes raw 16-bit
// little-endian mono PCM to stdout at the model's native sample rate.
package piper

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/quillreader/quill/speech"
)

// DefaultSampleRate matches the medium-quality Piper voice models.
const DefaultSampleRate = 22050

// Engine implements speech.Engine on top of a piper binary and a voice
// model file.
type Engine struct {
	binary     string
	model      string
	sampleRate int
	logger     *log.Logger

	mu     sync.Mutex
	loaded bool
}

// New creates an engine around the given binary and model paths. A
// non-positive sampleRate falls back to DefaultSampleRate.
func New(binary, model string, sampleRate int) *Engine {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	return &Engine{
		binary:     binary,
		model:      model,
		sampleRate: sampleRate,
		logger:     log.Default(),
	}
}

// Ready reports whether the binary and voice model are both present.
func (e *Engine) Ready() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.loaded {
		return true
	}
	return e.installed()
}

func (e *Engine) installed() bool {
	if _, err := exec.LookPath(e.binary); err != nil {
		return false
	}
	if _, err := os.Stat(e.model); err != nil {
		return false
	}
	return true
}

// EnsureLoaded verifies the installation once. How to react to a missing
// install (download, prompt, fall back) is the host's decision.
func (e *Engine) EnsureLoaded(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.loaded {
		return nil
	}
	if !e.installed() {
		return speech.ErrEngineNotInstalled
	}
	// A trivial invocation catches a broken install before the first real
	// chunk does.
	if out, err := exec.CommandContext(ctx, e.binary, "--version").CombinedOutput(); err != nil {
		return fmt.Errorf("piper self-check: %w: %s", err, bytes.TrimSpace(out))
	}
	e.loaded = true
	e.logger.Debug("piper engine loaded", "binary", e.binary, "model", e.model)
	return nil
}

// Generate implements speech.Engine by running one piper process per chunk.
func (e *Engine) Generate(ctx context.Context, text string, opts speech.GenerateOptions) (*speech.Clip, error) {
	if strings.TrimSpace(text) == "" {
		return &speech.Clip{SampleRate: e.sampleRate}, nil
	}

	cmd := exec.CommandContext(ctx, e.binary, e.args(opts)...)
	cmd.Stdin = strings.NewReader(text)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("piper: %w: %s", err, bytes.TrimSpace(stderr.Bytes()))
	}
	return &speech.Clip{Samples: samplesFromPCM(stdout.Bytes()), SampleRate: e.sampleRate}, nil
}

// args builds the piper invocation. Speed maps to --length-scale, which is
// the inverse of the playback rate.
func (e *Engine) args(opts speech.GenerateOptions) []string {
	args := []string{"--model", e.model, "--output-raw"}
	if opts.Voice != "" {
		args = append(args, "--speaker", opts.Voice)
	}
	if opts.Speed > 0 && opts.Speed != 1.0 {
		args = append(args, "--length-scale", fmt.Sprintf("%.2f", 1.0/opts.Speed))
	}
	return args
}

// samplesFromPCM converts raw little-endian s16 mono output to floats in
// [-1, 1].
func samplesFromPCM(raw []byte) []float64 {
	n := len(raw) / 2
	samples := make([]float64, n)
	for i := 0; i < n; i++ {
		v := int16(binary.LittleEndian.Uint16(raw[2*i:]))
		samples[i] = float64(v) / 32767
	}
	return samples
}
