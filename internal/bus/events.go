// Package bus is the event spine of the voice session: every state
// change, transcript line and tool call flows through it so the TUI,
// the transcript writer and tests observe the session without touching
// its internals.
package bus

import (
	"fmt"
	"sync/atomic"
	"time"
)

// EventType discriminates session events.
type EventType string

const (
	// Session lifecycle
	EventStateChange   EventType = "state_change"
	EventMicReady      EventType = "mic_ready"
	EventPeerConnected EventType = "peer_connected"

	// Conversation
	EventTranscript EventType = "transcript"
	EventUserText   EventType = "user_text"

	// Tool dispatch
	EventToolCallStarted  EventType = "tool_call_started"
	EventToolCallFinished EventType = "tool_call_finished"

	// Audio
	EventMuteChanged   EventType = "mute_changed"
	EventPlaybackStart EventType = "playback_start"
	EventPlaybackEnd   EventType = "playback_end"

	// Faults
	EventBackendLost EventType = "backend_lost"
	EventInfo        EventType = "info"
	EventError       EventType = "error"
)

// Event is one observation of the session. Fields beyond the header
// are filled per type.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`

	// State carries the new state name for state_change events.
	State string `json:"state,omitempty"`

	// Capability and CallID identify a tool call.
	Capability string `json:"capability,omitempty"`
	CallID     string `json:"call_id,omitempty"`

	// Backend names the backend for backend_lost events.
	Backend string `json:"backend,omitempty"`

	// Text is the transcript fragment, typed line, or message body.
	Text string `json:"text,omitempty"`

	// Muted carries the new flag for mute_changed events.
	Muted bool `json:"muted,omitempty"`

	// Success reports the outcome for tool_call_finished events.
	Success bool `json:"success,omitempty"`

	// Err holds the failure text for error-ish events.
	Err string `json:"error,omitempty"`
}

var eventIDCounter atomic.Uint64

// NewEvent builds an event header with a fresh ID and UTC timestamp.
func NewEvent(eventType EventType) Event {
	return Event{
		ID:        fmt.Sprintf("evt_%d_%d", time.Now().UnixNano(), eventIDCounter.Add(1)),
		Timestamp: time.Now().UTC(),
		Type:      eventType,
	}
}

// StateChange builds a state_change event.
func StateChange(state string) Event {
	e := NewEvent(EventStateChange)
	e.State = state
	return e
}

// Transcript builds a transcript event with a model text fragment.
func Transcript(text string) Event {
	e := NewEvent(EventTranscript)
	e.Text = text
	return e
}

// UserText builds a user_text event for an operator-typed line.
func UserText(text string) Event {
	e := NewEvent(EventUserText)
	e.Text = text
	return e
}

// ToolCallStarted builds a tool_call_started event.
func ToolCallStarted(callID, capability string) Event {
	e := NewEvent(EventToolCallStarted)
	e.CallID = callID
	e.Capability = capability
	return e
}

// ToolCallFinished builds a tool_call_finished event.
func ToolCallFinished(callID, capability string, success bool, errText string) Event {
	e := NewEvent(EventToolCallFinished)
	e.CallID = callID
	e.Capability = capability
	e.Success = success
	e.Err = errText
	return e
}

// MuteChanged builds a mute_changed event.
func MuteChanged(muted bool) Event {
	e := NewEvent(EventMuteChanged)
	e.Muted = muted
	return e
}

// BackendLost builds a backend_lost event.
func BackendLost(backend string) Event {
	e := NewEvent(EventBackendLost)
	e.Backend = backend
	return e
}

// Info builds an info event with a message.
func Info(text string) Event {
	e := NewEvent(EventInfo)
	e.Text = text
	return e
}

// Error builds an error event.
func Error(errText string) Event {
	e := NewEvent(EventError)
	e.Err = errText
	return e
}
