package speech

// Messages published to the presentation layer. A Bubble Tea host passes
// Program.Send as the controller's send function and handles these in its
// Update loop; any other host can treat them as plain events.

// StateMsg carries a full state snapshot. One is emitted for every state
// transition, in the order the transitions happened.
type StateMsg struct {
	Snapshot Snapshot
}

// ChunkReadyMsg announces that audio for a chunk is ready to play. The path
// points at a file owned by the cache; the receiver must read it, never
// delete it.
type ChunkReadyMsg struct {
	Index       int
	StartOffset int
	AudioPath   string
}

// SpeechErrorMsg reports a failure on the foreground synthesis path.
// Pre-buffer failures are never surfaced; they only cost latency.
type SpeechErrorMsg struct {
	Err  error
	Kind ErrorKind
}
