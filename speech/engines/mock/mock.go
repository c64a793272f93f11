// Package mock provides a scriptable voice engine for tests and demos.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/quillreader/quill/speech"
)

// Engine implements speech.Engine with deterministic output and knobs for
// failure injection, artificial latency and call counting.
type Engine struct {
	mu           sync.Mutex
	ready        bool
	sampleRate   int
	delay        time.Duration
	failWith     error
	gate         chan struct{}
	ignoreCancel bool
	calls        map[string]int
	total        int
}

// New creates a ready mock engine producing 22050 Hz clips instantly.
func New() *Engine {
	return &Engine{
		ready:      true,
		sampleRate: 22050,
		calls:      make(map[string]int),
	}
}

// SetReady controls what Ready reports.
func (e *Engine) SetReady(ready bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ready = ready
}

// FailWith makes subsequent Generate calls return err. A nil err restores
// normal behavior.
func (e *Engine) FailWith(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failWith = err
}

// SetDelay adds artificial latency before each Generate returns.
func (e *Engine) SetDelay(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.delay = d
}

// Gate makes subsequent Generate calls block until the returned release
// function runs. With ignoreCancel set, gated calls sit out cancellation
// and still return a full clip, which exercises the stale-result discard
// path in callers.
func (e *Engine) Gate(ignoreCancel bool) (release func()) {
	gate := make(chan struct{})
	e.mu.Lock()
	e.gate = gate
	e.ignoreCancel = ignoreCancel
	e.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(gate)
			e.mu.Lock()
			if e.gate == gate {
				e.gate = nil
				e.ignoreCancel = false
			}
			e.mu.Unlock()
		})
	}
}

// Calls returns how many Generate calls have started for the given text.
func (e *Engine) Calls(text string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[text]
}

// TotalCalls returns how many Generate calls have started in total.
func (e *Engine) TotalCalls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.total
}

// WaitForCalls blocks until at least n Generate calls have started or the
// timeout elapses, and reports which happened.
func (e *Engine) WaitForCalls(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if e.TotalCalls() >= n {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return e.TotalCalls() >= n
}

// Ready implements speech.Engine.
func (e *Engine) Ready() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ready
}

// EnsureLoaded implements speech.Engine.
func (e *Engine) EnsureLoaded(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.ready {
		return speech.ErrEngineNotInstalled
	}
	return nil
}

// Generate implements speech.Engine. Output is a short waveform derived
// deterministically from the text, so different chunks produce different
// audio bytes.
func (e *Engine) Generate(ctx context.Context, text string, _ speech.GenerateOptions) (*speech.Clip, error) {
	e.mu.Lock()
	e.calls[text]++
	e.total++
	gate, ignore := e.gate, e.ignoreCancel
	delay, fail, rate := e.delay, e.failWith, e.sampleRate
	e.mu.Unlock()

	if gate != nil {
		if ignore {
			<-gate
		} else {
			select {
			case <-gate:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if !ignore && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if fail != nil {
		return nil, fail
	}
	return &speech.Clip{Samples: waveformFor(text), SampleRate: rate}, nil
}

func waveformFor(text string) []float64 {
	out := make([]float64, 64+len(text))
	for i := range out {
		out[i] = float64((i+len(text))%200-100) / 100
	}
	return out
}
