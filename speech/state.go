package speech

// StateType represents the current state of the speech pipeline.
type StateType int

const (
	// StateIdle indicates no reading session is active.
	StateIdle StateType = iota
	// StateLoading indicates the current chunk is being synthesized or
	// fetched from cache.
	StateLoading
	// StateSpeaking indicates a chunk has been handed to the presentation
	// layer for playback.
	StateSpeaking
	// StatePaused indicates playback is paused; no audio is re-synthesized
	// on resume.
	StatePaused
)

// String returns the string representation of the state.
func (s StateType) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateSpeaking:
		return "speaking"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}

// Snapshot is the externally visible state of the pipeline, emitted to the
// presentation layer on every transition.
type Snapshot struct {
	State        StateType
	BookID       string
	ChapterID    string
	Voice        string
	Rate         float64
	CurrentChunk int
	TotalChunks  int
}

// StateMachine guards state transitions for the speech pipeline.
type StateMachine struct {
	current     StateType
	transitions map[StateType][]StateType
}

// NewStateMachine creates a state machine in the idle state with the valid
// transition table.
func NewStateMachine() *StateMachine {
	return &StateMachine{
		current: StateIdle,
		transitions: map[StateType][]StateType{
			StateIdle: {StateLoading},
			// Loading may re-enter itself: navigation and a fresh Speak are
			// both allowed while a chunk is still being resolved.
			StateLoading:  {StateLoading, StateSpeaking, StateIdle},
			StateSpeaking: {StatePaused, StateLoading, StateIdle},
			StatePaused:   {StateSpeaking, StateLoading, StateIdle},
		},
	}
}

// Transition attempts to move to the given state and reports whether the
// move was valid.
func (sm *StateMachine) Transition(to StateType) bool {
	for _, valid := range sm.transitions[sm.current] {
		if valid == to {
			sm.current = to
			return true
		}
	}
	return false
}

// Current returns the current state.
func (sm *StateMachine) Current() StateType {
	return sm.current
}
