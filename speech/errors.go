package speech

import "errors"

// Common errors for the speech pipeline.
var (
	ErrEngineNotInstalled = errors.New("voice engine is not installed")
	ErrNoChunks           = errors.New("no chunks to speak")
	ErrInvalidStartIndex  = errors.New("start index out of range")
	ErrInvalidRate        = errors.New("rate must be positive")
	ErrSynthesisFailed    = errors.New("audio synthesis failed")
)

// ErrorKind is the machine-readable category attached to outbound error
// events so the presentation layer can react without parsing messages.
type ErrorKind string

const (
	// KindNotInstalled means the voice engine is unavailable; surfaced
	// immediately on Speak without entering loading.
	KindNotInstalled ErrorKind = "not_installed"
	// KindSynthesis means an engine call failed or was interrupted
	// non-cooperatively.
	KindSynthesis ErrorKind = "synthesis"
)
