// Package speech implements the text-to-speech pipeline for Quill: a
// controller that turns chapter chunks into audio through a voice engine,
// stores the results in a content-addressed cache, and speculatively
// prepares the next chunk while the current one plays.
package speech

// Chunk is an immutable unit of chapter text sized for one synthesis call.
// Chunks are produced upstream by the chapter splitter; the controller
// treats the sequence as fixed for the duration of one Speak call.
type Chunk struct {
	Index       int    // position within the chapter, 0-based
	Text        string // plain text to synthesize
	StartOffset int    // byte offset of the chunk within the chapter
}

// Request carries everything needed to begin reading a chapter aloud.
type Request struct {
	BookID     string
	ChapterID  string
	Chunks     []Chunk
	StartIndex int
	Voice      string  // empty keeps the controller's current voice
	Rate       float64 // non-positive keeps the controller's current rate
}

// Clip is one complete unit of synthesized audio as produced by an engine.
type Clip struct {
	Samples    []float64 // mono samples in [-1, 1]
	SampleRate int
}

// GenerateOptions selects the voice and speaking rate for one synthesis
// call.
type GenerateOptions struct {
	Voice string
	Speed float64 // 1.0 = normal
}
