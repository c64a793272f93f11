package speech

import (
	"context"
	"fmt"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"

	"github.com/quillreader/quill/speech/cache"
	"github.com/quillreader/quill/speech/wave"
)

// session is the single playback session. It is replaced wholesale by Speak
// and discarded by Stop, never partially merged.
type session struct {
	bookID    string
	chapterID string
	voice     string
	rate      float64
	chunks    []Chunk
	current   int
	delivered bool // at least one chunk reached the presentation layer
}

// token is the cancellation handle for one in-flight synthesis. A completed
// operation must check its token before acting on the result, so a slow,
// stale synthesis can never clobber a newer one.
type token struct {
	ctx    context.Context
	cancel context.CancelFunc
}

func newToken() *token {
	ctx, cancel := context.WithCancel(context.Background())
	return &token{ctx: ctx, cancel: cancel}
}

func (t *token) cancelled() bool {
	return t.ctx.Err() != nil
}

// prebufferSlot holds the speculatively prepared next chunk. It is only
// consulted by NextChunk and cleared on every cancellation path.
type prebufferSlot struct {
	index int
	path  string
	ok    bool
}

// Controller orchestrates synthesis, caching and pre-buffering for one
// reading session at a time.
//
// All session and state mutation happens under the controller mutex. Engine
// calls run outside the lock with a per-operation token; every completion
// path re-checks its token under the lock before touching state, emitting
// events or filling the pre-buffer slot. At most one foreground and one
// background synthesis are in flight, each independently cancellable.
type Controller struct {
	engine Engine
	store  *cache.Store
	send   func(tea.Msg)
	logger *log.Logger

	mu      sync.Mutex
	machine *StateMachine
	session *session
	voice   string
	rate    float64

	fg     *token // foreground synthesis for the current chunk
	bg     *token // speculative synthesis for the next chunk
	prebuf prebufferSlot
}

// NewController creates a controller around an engine and a cache store.
// send receives every outbound message; it is called with the controller
// lock held and must not call back into the controller synchronously (hand
// the message to a channel or tea.Program.Send). A nil send drops messages.
func NewController(engine Engine, store *cache.Store, send func(tea.Msg)) *Controller {
	if send == nil {
		send = func(tea.Msg) {}
	}
	return &Controller{
		engine:  engine,
		store:   store,
		send:    send,
		logger:  log.Default(),
		machine: NewStateMachine(),
		rate:    1.0,
	}
}

// SetLogger replaces the controller's logger. Call before first use.
func (c *Controller) SetLogger(logger *log.Logger) {
	if logger != nil {
		c.logger = logger
	}
}

// Speak cancels any in-flight work, replaces the playback session and
// resolves the chunk at the start index, then pre-buffers the next one. It
// returns once the first chunk is ready (or has failed); progress is also
// reported through the outbound messages.
func (c *Controller) Speak(req Request) error {
	if !c.engine.Ready() {
		// Surfaced without entering loading; the state stays as it was.
		c.mu.Lock()
		c.send(SpeechErrorMsg{Err: ErrEngineNotInstalled, Kind: KindNotInstalled})
		c.mu.Unlock()
		return ErrEngineNotInstalled
	}
	if len(req.Chunks) == 0 {
		return ErrNoChunks
	}
	if req.StartIndex < 0 || req.StartIndex >= len(req.Chunks) {
		return fmt.Errorf("%w: %d of %d chunks", ErrInvalidStartIndex, req.StartIndex, len(req.Chunks))
	}

	c.mu.Lock()
	c.cancelAllLocked()
	if req.Voice != "" {
		c.voice = req.Voice
	}
	if req.Rate > 0 {
		c.rate = req.Rate
	}
	c.session = &session{
		bookID:    req.BookID,
		chapterID: req.ChapterID,
		voice:     c.voice,
		rate:      c.rate,
		chunks:    req.Chunks,
		current:   req.StartIndex,
	}
	c.toStateLocked(StateLoading)
	tok := newToken()
	c.fg = tok
	c.mu.Unlock()

	return c.resolveCurrent(tok)
}

// Pause pauses playback. No audio is re-synthesized; Resume picks up the
// same chunk. A no-op outside the speaking state.
func (c *Controller) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.machine.Current() != StateSpeaking {
		return
	}
	c.toStateLocked(StatePaused)
}

// Resume continues a paused session. A no-op outside the paused state.
func (c *Controller) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.machine.Current() != StatePaused {
		return
	}
	c.toStateLocked(StateSpeaking)
}

// Stop cancels all in-flight work, discards the session entirely and
// returns to idle. A no-op when already idle.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.machine.Current() == StateIdle {
		return
	}
	c.stopLocked()
}

// NextChunk advances to the next chunk. If the pre-buffered chunk matches
// the new index its audio is reused without touching the engine; otherwise
// the chunk is synthesized or fetched. Past the last chunk the session ends
// and the controller returns to idle. A no-op when idle.
func (c *Controller) NextChunk() error {
	c.mu.Lock()
	if c.session == nil || c.machine.Current() == StateIdle {
		c.mu.Unlock()
		return nil
	}
	if c.fg != nil {
		c.fg.cancel()
		c.fg = nil
	}
	s := c.session
	if s.current >= len(s.chunks)-1 {
		c.stopLocked()
		c.mu.Unlock()
		return nil
	}
	s.current++
	c.toStateLocked(StateLoading)

	if c.prebuf.ok && c.prebuf.index == s.current {
		path := c.prebuf.path
		c.prebuf = prebufferSlot{}
		chunk := s.chunks[s.current]
		tok := newToken()
		c.fg = tok
		pos := s.current
		c.mu.Unlock()
		c.finishChunk(tok, pos, chunk, path)
		return nil
	}

	// No usable pre-buffer: drop whatever the background task was doing so
	// a stale result can never be served under the new position.
	if c.bg != nil {
		c.bg.cancel()
		c.bg = nil
	}
	c.prebuf = prebufferSlot{}
	tok := newToken()
	c.fg = tok
	c.mu.Unlock()
	return c.resolveCurrent(tok)
}

// PrevChunk retreats to the previous chunk and synthesizes or fetches it.
// The pre-buffer only looks forward, so there is no reuse path here. A
// no-op when idle or already at the first chunk.
func (c *Controller) PrevChunk() error {
	c.mu.Lock()
	if c.session == nil || c.machine.Current() == StateIdle || c.session.current == 0 {
		c.mu.Unlock()
		return nil
	}
	c.cancelAllLocked()
	c.session.current--
	c.toStateLocked(StateLoading)
	tok := newToken()
	c.fg = tok
	c.mu.Unlock()
	return c.resolveCurrent(tok)
}

// SetVoice changes the active voice. If a session is active the current
// chunk is re-synthesized under the new voice and the pre-buffer restarts;
// otherwise the voice simply applies to the next Speak.
func (c *Controller) SetVoice(voice string) error {
	c.mu.Lock()
	c.voice = voice
	if !c.activeLocked() {
		c.mu.Unlock()
		return nil
	}
	c.session.voice = voice
	return c.restartCurrentLocked()
}

// SetRate changes the speaking rate, with the same session semantics as
// SetVoice.
func (c *Controller) SetRate(rate float64) error {
	if rate <= 0 {
		return ErrInvalidRate
	}
	c.mu.Lock()
	c.rate = rate
	if !c.activeLocked() {
		c.mu.Unlock()
		return nil
	}
	c.session.rate = rate
	return c.restartCurrentLocked()
}

// Snapshot returns the externally visible state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// activeLocked reports whether parameter changes should re-drive synthesis.
func (c *Controller) activeLocked() bool {
	st := c.machine.Current()
	return c.session != nil && (st == StateSpeaking || st == StatePaused)
}

// restartCurrentLocked cancels everything in flight and re-resolves the
// current chunk under the session's (just updated) parameters. The caller
// must hold the lock; it is released here.
func (c *Controller) restartCurrentLocked() error {
	c.cancelAllLocked()
	c.toStateLocked(StateLoading)
	tok := newToken()
	c.fg = tok
	c.mu.Unlock()
	return c.resolveCurrent(tok)
}

// resolveCurrent fetches or synthesizes the session's current chunk on the
// calling goroutine. The token decides whether the result is still wanted
// by the time it exists.
func (c *Controller) resolveCurrent(tok *token) error {
	c.mu.Lock()
	if tok != c.fg || tok.cancelled() || c.session == nil {
		c.mu.Unlock()
		return nil
	}
	s := c.session
	pos := s.current
	chunk := s.chunks[pos]
	key := cache.Key(s.bookID, s.chapterID, s.voice, s.rate, chunk.Index, chunk.Text)
	voice, rate := s.voice, s.rate
	c.mu.Unlock()

	if path, ok := c.store.Get(key); ok {
		c.logger.Debug("chunk served from cache", "chunk", chunk.Index)
		c.finishChunk(tok, pos, chunk, path)
		return nil
	}

	clip, err := c.engine.Generate(tok.ctx, chunk.Text, GenerateOptions{Voice: voice, Speed: rate})
	if tok.cancelled() {
		return nil
	}
	if err != nil {
		return c.surface(tok, fmt.Errorf("%w: chunk %d: %v", ErrSynthesisFailed, chunk.Index, err))
	}
	data, err := wave.Encode(clip.Samples, clip.SampleRate)
	if err != nil {
		return c.surface(tok, fmt.Errorf("%w: chunk %d: %v", ErrSynthesisFailed, chunk.Index, err))
	}
	path, err := c.store.Put(key, data)
	if err != nil {
		return c.surface(tok, fmt.Errorf("%w: chunk %d: %v", ErrSynthesisFailed, chunk.Index, err))
	}
	c.finishChunk(tok, pos, chunk, path)
	return nil
}

// finishChunk publishes a resolved chunk and kicks off the pre-buffer for
// the one after it, provided the operation is still current.
func (c *Controller) finishChunk(tok *token, pos int, chunk Chunk, path string) {
	c.mu.Lock()
	if tok != c.fg || tok.cancelled() || c.session == nil || c.session.current != pos {
		c.mu.Unlock()
		return
	}
	c.session.delivered = true
	c.send(ChunkReadyMsg{Index: chunk.Index, StartOffset: chunk.StartOffset, AudioPath: path})
	c.toStateLocked(StateSpeaking)

	var launch func()
	if pos+1 < len(c.session.chunks) {
		if c.bg != nil {
			c.bg.cancel()
		}
		btok := newToken()
		c.bg = btok
		c.prebuf = prebufferSlot{}
		s := c.session
		next := s.chunks[pos+1]
		nextPos := pos + 1
		book, chap, voice, rate := s.bookID, s.chapterID, s.voice, s.rate
		launch = func() { c.prebuffer(btok, nextPos, book, chap, voice, rate, next) }
	}
	c.mu.Unlock()

	if launch != nil {
		go launch()
	}
}

// prebuffer speculatively prepares one chunk in the background. Failures
// are swallowed: pre-buffering is a latency optimization, not a
// correctness requirement.
func (c *Controller) prebuffer(tok *token, pos int, bookID, chapterID, voice string, rate float64, chunk Chunk) {
	key := cache.Key(bookID, chapterID, voice, rate, chunk.Index, chunk.Text)
	if path, ok := c.store.Get(key); ok {
		c.storePrebuf(tok, pos, path)
		return
	}

	clip, err := c.engine.Generate(tok.ctx, chunk.Text, GenerateOptions{Voice: voice, Speed: rate})
	if tok.cancelled() {
		return
	}
	if err != nil {
		c.logger.Debug("pre-buffer synthesis failed", "chunk", chunk.Index, "err", err)
		return
	}
	data, err := wave.Encode(clip.Samples, clip.SampleRate)
	if err != nil {
		c.logger.Debug("pre-buffer encode failed", "chunk", chunk.Index, "err", err)
		return
	}
	if tok.cancelled() {
		return
	}
	path, err := c.store.Put(key, data)
	if err != nil {
		c.logger.Warn("pre-buffer cache write failed", "chunk", chunk.Index, "err", err)
		return
	}
	c.storePrebuf(tok, pos, path)
}

func (c *Controller) storePrebuf(tok *token, pos int, path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if tok != c.bg || tok.cancelled() {
		return
	}
	c.prebuf = prebufferSlot{index: pos, path: path, ok: true}
	c.logger.Debug("pre-buffered chunk ready", "chunk", pos)
}

// surface emits a foreground failure. A session that has already spoken a
// chunk survives so the caller may retry navigation; one that never produced
// anything usable falls back to idle.
func (c *Controller) surface(tok *token, err error) error {
	c.mu.Lock()
	c.send(SpeechErrorMsg{Err: err, Kind: KindSynthesis})
	if tok == c.fg && c.session != nil && !c.session.delivered {
		c.stopLocked()
	}
	c.mu.Unlock()
	return err
}

// cancelAllLocked cancels the foreground and background work and clears the
// pre-buffer slot so stale audio can never be served under changed
// parameters.
func (c *Controller) cancelAllLocked() {
	if c.fg != nil {
		c.fg.cancel()
		c.fg = nil
	}
	if c.bg != nil {
		c.bg.cancel()
		c.bg = nil
	}
	c.prebuf = prebufferSlot{}
}

func (c *Controller) stopLocked() {
	c.cancelAllLocked()
	c.session = nil
	c.toStateLocked(StateIdle)
}

// toStateLocked transitions and emits a snapshot if the transition is
// valid.
func (c *Controller) toStateLocked(to StateType) {
	if c.machine.Transition(to) {
		c.send(StateMsg{Snapshot: c.snapshotLocked()})
	}
}

func (c *Controller) snapshotLocked() Snapshot {
	snap := Snapshot{
		State: c.machine.Current(),
		Voice: c.voice,
		Rate:  c.rate,
	}
	if c.session != nil {
		snap.BookID = c.session.bookID
		snap.ChapterID = c.session.chapterID
		snap.Voice = c.session.voice
		snap.Rate = c.session.rate
		snap.CurrentChunk = c.session.current
		snap.TotalChunks = len(c.session.chunks)
	}
	return snap
}
