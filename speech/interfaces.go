package speech

import "context"

// Engine is the narrow boundary to the neural voice model. The controller
// only ever checks readiness and generates one complete clip per call;
// loading, installing and repairing the model belongs to the host.
type Engine interface {
	// Ready reports whether the engine can serve Generate calls now.
	Ready() bool

	// EnsureLoaded brings the engine to a ready state. It may be slow and
	// may fail; the controller never calls it, the host does.
	EnsureLoaded(ctx context.Context) error

	// Generate synthesizes one chunk of text into a complete clip. It must
	// honor ctx cancellation.
	Generate(ctx context.Context, text string, opts GenerateOptions) (*Clip, error)
}
