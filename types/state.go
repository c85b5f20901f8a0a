package types

// State represents the handover controller lifecycle state.
//
// States follow a defined progression during normal operation:
//
//	StateInit → StateLiteRunning → StateFullPreloading → StateFullReady → StateSwitching → StateFullRunning
//
// StateFullPreloading and StateFullReady are optional pass-through states: a switch
// requested before the preload finished moves directly from StateFullPreloading
// (or StateLiteRunning) to StateSwitching.
//
// StateShutdown is terminal.
type State int

const (
	// StateInit is the initial state before the lite variant reported ready.
	StateInit State = iota

	// StateLiteRunning indicates the lite variant is active and the full variant is not warm.
	StateLiteRunning

	// StateFullPreloading indicates the prefetch pipeline is running for the full variant.
	StateFullPreloading

	// StateFullReady indicates the full variant's assets are cached and validated.
	StateFullReady

	// StateSwitching indicates the full variant is being activated.
	StateSwitching

	// StateFullRunning indicates the full variant is active and the lite variant was discarded.
	StateFullRunning

	// StateShutdown indicates the controller was stopped.
	StateShutdown
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateInit:
		return "Init"
	case StateLiteRunning:
		return "LiteRunning"
	case StateFullPreloading:
		return "FullPreloading"
	case StateFullReady:
		return "FullReady"
	case StateSwitching:
		return "Switching"
	case StateFullRunning:
		return "FullRunning"
	case StateShutdown:
		return "Shutdown"
	default:
		return "Unknown"
	}
}
