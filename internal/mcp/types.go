// Package mcp implements a client for capability-providing backend
// processes speaking the Model Context Protocol over stdio. Each
// backend is launched as a child process; messages are JSON-RPC 2.0,
// one JSON document per line. The client supports the three operations
// the bridge needs: the initialize handshake, tool listing, and tool
// invocation.
package mcp

import (
	"encoding/json"
	"strings"
)

// protocolVersion is the MCP revision this client negotiates.
const protocolVersion = "2024-11-05"

// ServerConfig describes one backend to launch: an identifier, the
// command line, and extra environment variables.
type ServerConfig struct {
	// Name identifies the backend in logs and the registry.
	Name string `mapstructure:"name" yaml:"name" json:"name"`

	// Command is the executable to launch.
	Command string `mapstructure:"command" yaml:"command" json:"command"`

	// Args are passed to the command.
	Args []string `mapstructure:"args" yaml:"args" json:"args,omitempty"`

	// Env holds extra environment variables (KEY=value or a map in
	// the JSON form), appended to the inherited environment.
	Env map[string]string `mapstructure:"env" yaml:"env" json:"env,omitempty"`
}

// ToolInfo is one tool as reported by a backend's tools/list.
// InputSchema is kept raw; decoding belongs to the schema package.
type ToolInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// ContentBlock is one piece of a tool result. Only text blocks are
// interpreted; other block types are carried through untouched.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// ToolOutcome is the result of a tools/call.
type ToolOutcome struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError,omitempty"`
}

// Text flattens the outcome's text blocks into a single string.
func (o *ToolOutcome) Text() string {
	var parts []string
	for _, b := range o.Content {
		if b.Type == "text" && b.Text != "" {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// rpcMessage is a JSON-RPC 2.0 envelope covering requests, responses
// and notifications.
type rpcMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  any             `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// rpcError is the JSON-RPC error object.
type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// initializeParams is the body of the initialize request.
type initializeParams struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ClientInfo      clientInfo     `json:"clientInfo"`
}

type clientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// initializeResult is the subset of the handshake reply we care about.
type initializeResult struct {
	ProtocolVersion string `json:"protocolVersion"`
	ServerInfo      struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"serverInfo"`
}

// listToolsResult is the body of a tools/list reply.
type listToolsResult struct {
	Tools []ToolInfo `json:"tools"`
}

// callToolParams is the body of a tools/call request.
type callToolParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}
