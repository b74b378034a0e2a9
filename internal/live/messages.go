// Package live implements the websocket client side of the
// bidirectional voice protocol: a setup handshake, then realtime audio
// and text upstream, and audio, transcripts and tool calls downstream.
// One read loop owns the connection's receive side and feeds a typed
// message channel; writes are serialized by a mutex.
package live

import (
	"encoding/json"

	"github.com/normanking/cortex-voice/internal/schema"
)

// MimePCM16k is the mime type for upstream microphone chunks.
const MimePCM16k = "audio/pcm;rate=16000"

// clientEnvelope is the union of everything we send. Exactly one field
// is set per frame.
type clientEnvelope struct {
	Setup         *setupPayload        `json:"setup,omitempty"`
	RealtimeInput *realtimeInput       `json:"realtimeInput,omitempty"`
	ClientContent *clientContent       `json:"clientContent,omitempty"`
	ToolResponse  *toolResponsePayload `json:"toolResponse,omitempty"`
}

type setupPayload struct {
	Model             string            `json:"model"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	Tools             []toolSpec        `json:"tools,omitempty"`
}

type generationConfig struct {
	ResponseModalities []string `json:"responseModalities"`
}

// toolSpec is one entry of the setup tools list: either a block of
// function declarations or a search passthrough marker.
type toolSpec struct {
	FunctionDeclarations []schema.Declaration `json:"functionDeclarations,omitempty"`
	GoogleSearch         *struct{}            `json:"googleSearch,omitempty"`
}

type realtimeInput struct {
	MediaChunks []mediaChunk `json:"mediaChunks"`
}

type mediaChunk struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"` // base64 PCM
}

type clientContent struct {
	Turns        []content `json:"turns"`
	TurnComplete bool      `json:"turnComplete"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text                string               `json:"text,omitempty"`
	InlineData          *inlineData          `json:"inlineData,omitempty"`
	ExecutableCode      *executableCode      `json:"executableCode,omitempty"`
	CodeExecutionResult *codeExecutionResult `json:"codeExecutionResult,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"` // base64
}

type executableCode struct {
	Language string `json:"language"`
	Code     string `json:"code"`
}

type codeExecutionResult struct {
	Outcome string `json:"outcome"`
	Output  string `json:"output"`
}

type toolResponsePayload struct {
	FunctionResponses []functionResponse `json:"functionResponses"`
}

type functionResponse struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

// serverEnvelope is the union of everything the peer sends.
type serverEnvelope struct {
	SetupComplete *struct{}        `json:"setupComplete,omitempty"`
	ServerContent *serverContent   `json:"serverContent,omitempty"`
	ToolCall      *toolCallPayload `json:"toolCall,omitempty"`
}

type serverContent struct {
	ModelTurn    *content `json:"modelTurn,omitempty"`
	Interrupted  bool     `json:"interrupted,omitempty"`
	TurnComplete bool     `json:"turnComplete,omitempty"`
}

type toolCallPayload struct {
	FunctionCalls []functionCallWire `json:"functionCalls"`
}

type functionCallWire struct {
	ID   string          `json:"id"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args,omitempty"`
}

// MessageKind discriminates the typed messages surfaced to the
// orchestrator.
type MessageKind int

const (
	// KindAudio carries one decoded PCM chunk of model speech.
	KindAudio MessageKind = iota
	// KindText carries a model text part (transcript fragment).
	KindText
	// KindToolCall carries one or more function calls to dispatch.
	KindToolCall
	// KindInterrupted signals the peer cut the current model turn.
	KindInterrupted
	// KindTurnComplete signals the model finished its turn.
	KindTurnComplete
	// KindTransportFailure is terminal: the connection is gone.
	KindTransportFailure
)

// String returns the kind's wire-style name.
func (k MessageKind) String() string {
	switch k {
	case KindAudio:
		return "audio"
	case KindText:
		return "text"
	case KindToolCall:
		return "tool_call"
	case KindInterrupted:
		return "interrupted"
	case KindTurnComplete:
		return "turn_complete"
	case KindTransportFailure:
		return "transport_failure"
	default:
		return "unknown"
	}
}

// FunctionCall is one tool invocation requested by the peer.
type FunctionCall struct {
	ID   string
	Name string
	Args map[string]any
}

// FunctionResult answers one FunctionCall, matched by ID.
type FunctionResult struct {
	ID     string
	Name   string
	Output string
	IsErr  bool
}

// ServerMessage is one typed event from the read loop. Fields beyond
// Kind are populated per kind.
type ServerMessage struct {
	Kind  MessageKind
	Audio []byte
	Text  string
	Calls []FunctionCall
	Err   error
}
