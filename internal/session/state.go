// Package session orchestrates one voice conversation: it owns the
// peer connection, the audio devices and the capability router, runs
// the capture/send/receive/playback loops, and enforces the turn
// discipline (echo avoidance, one tool call in flight, unmute only
// after playback drains).
package session

// State is the conversation phase. The peer receive loop is the only
// writer; everything else observes.
type State int32

const (
	// StateIdle is before Run.
	StateIdle State = iota
	// StateListening means the microphone feed flows to the peer.
	StateListening
	// StateAwaitingResponse means the model owes us a turn.
	StateAwaitingResponse
	// StateToolPending means a capability invocation is in flight.
	StateToolPending
	// StateSpeaking means model audio is playing.
	StateSpeaking
	// StateClosed is terminal.
	StateClosed
)

// String returns the snake_case state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateAwaitingResponse:
		return "awaiting_response"
	case StateToolPending:
		return "tool_pending"
	case StateSpeaking:
		return "speaking"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
