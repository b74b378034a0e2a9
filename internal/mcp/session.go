package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

// ErrSessionClosed is returned for calls against a backend whose
// process has exited or whose session was closed.
var ErrSessionClosed = errors.New("mcp: session closed")

// maxLineSize bounds a single JSON-RPC line from a backend. Tool
// results can be large (log dumps), so this is generous.
const maxLineSize = 16 * 1024 * 1024

// Session is a live connection to one backend process. All requests
// share a single write pipe and are correlated with responses by
// numeric id; a dedicated goroutine owns the read side.
type Session struct {
	cfg ServerConfig

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser

	writeMu sync.Mutex
	nextID  atomic.Int64

	pendingMu sync.Mutex
	pending   map[int64]chan *rpcMessage

	done      chan struct{}
	closeOnce sync.Once
}

// Launch starts the backend process and wires its pipes. The session
// is not usable until Initialize succeeds.
func Launch(cfg ServerConfig) (*Session, error) {
	cmd := exec.Command(cfg.Command, cfg.Args...)
	cmd.Env = os.Environ()
	for k, v := range cfg.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	// Backend diagnostics go to our stderr, not into the protocol.
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("mcp: %s: stdin pipe: %w", cfg.Name, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("mcp: %s: stdout pipe: %w", cfg.Name, err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("mcp: %s: start %q: %w", cfg.Name, cfg.Command, err)
	}

	s := &Session{
		cfg:     cfg,
		cmd:     cmd,
		stdin:   stdin,
		stdout:  stdout,
		pending: make(map[int64]chan *rpcMessage),
		done:    make(chan struct{}),
	}

	go s.readLoop()

	log.Debug().
		Str("backend", cfg.Name).
		Str("command", cfg.Command).
		Msg("mcp: backend process launched")

	return s, nil
}

// Name returns the backend identifier.
func (s *Session) Name() string { return s.cfg.Name }

// Done is closed when the session dies, whether by Close or because
// the backend process went away.
func (s *Session) Done() <-chan struct{} { return s.done }

// Alive reports whether the session can still take calls.
func (s *Session) Alive() bool {
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// Initialize performs the MCP handshake: an initialize request
// followed by the initialized notification.
func (s *Session) Initialize(ctx context.Context) error {
	raw, err := s.call(ctx, "initialize", initializeParams{
		ProtocolVersion: protocolVersion,
		Capabilities:    map[string]any{},
		ClientInfo:      clientInfo{Name: "cortex-voice", Version: "0.1.0"},
	})
	if err != nil {
		return fmt.Errorf("mcp: %s: initialize: %w", s.cfg.Name, err)
	}

	var res initializeResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return fmt.Errorf("mcp: %s: parse initialize result: %w", s.cfg.Name, err)
	}

	if err := s.notify("notifications/initialized", nil); err != nil {
		return fmt.Errorf("mcp: %s: initialized notification: %w", s.cfg.Name, err)
	}

	log.Info().
		Str("backend", s.cfg.Name).
		Str("server", res.ServerInfo.Name).
		Str("version", res.ServerInfo.Version).
		Msg("mcp: backend session initialized")

	return nil
}

// ListTools fetches the backend's tool catalog.
func (s *Session) ListTools(ctx context.Context) ([]ToolInfo, error) {
	raw, err := s.call(ctx, "tools/list", map[string]any{})
	if err != nil {
		return nil, fmt.Errorf("mcp: %s: tools/list: %w", s.cfg.Name, err)
	}

	var res listToolsResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("mcp: %s: parse tools/list result: %w", s.cfg.Name, err)
	}
	return res.Tools, nil
}

// CallTool invokes a named tool. A backend-reported tool failure is
// not a Go error: it comes back as an outcome with IsError set so the
// caller can relay it to the peer.
func (s *Session) CallTool(ctx context.Context, name string, args map[string]any) (*ToolOutcome, error) {
	raw, err := s.call(ctx, "tools/call", callToolParams{Name: name, Arguments: args})
	if err != nil {
		return nil, fmt.Errorf("mcp: %s: tools/call %s: %w", s.cfg.Name, name, err)
	}

	var out ToolOutcome
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("mcp: %s: parse tools/call result: %w", s.cfg.Name, err)
	}
	return &out, nil
}

// Close terminates the backend process and fails every pending call.
// Safe to call more than once.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		s.failPending()

		s.stdin.Close()
		if s.cmd != nil {
			if s.cmd.Process != nil {
				s.cmd.Process.Kill()
			}
			err = s.cmd.Wait()
		}

		log.Debug().Str("backend", s.cfg.Name).Msg("mcp: backend session closed")
	})
	return err
}

// call sends a request and waits for the correlated response or for
// the session / context to end.
func (s *Session) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if !s.Alive() {
		return nil, ErrSessionClosed
	}

	id := s.nextID.Add(1)
	ch := make(chan *rpcMessage, 1)

	s.pendingMu.Lock()
	s.pending[id] = ch
	s.pendingMu.Unlock()

	defer func() {
		s.pendingMu.Lock()
		delete(s.pending, id)
		s.pendingMu.Unlock()
	}()

	if err := s.write(rpcMessage{JSONRPC: "2.0", ID: &id, Method: method, Params: params}); err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		return nil, ErrSessionClosed
	case resp := <-ch:
		if resp == nil {
			return nil, ErrSessionClosed
		}
		if resp.Error != nil {
			return nil, fmt.Errorf("backend error %d: %s", resp.Error.Code, resp.Error.Message)
		}
		return resp.Result, nil
	}
}

// notify sends a notification (no id, no reply expected).
func (s *Session) notify(method string, params any) error {
	return s.write(rpcMessage{JSONRPC: "2.0", Method: method, Params: params})
}

// write marshals and sends one newline-terminated message.
func (s *Session) write(msg rpcMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("mcp: marshal message: %w", err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := s.stdin.Write(append(body, '\n')); err != nil {
		return fmt.Errorf("mcp: %s: write: %w", s.cfg.Name, err)
	}
	return nil
}

// readLoop is the only reader of the backend's stdout. Responses are
// routed to waiting calls; server-initiated traffic is logged and
// dropped. When the pipe ends the session dies.
func (s *Session) readLoop() {
	scanner := bufio.NewScanner(s.stdout)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var msg rpcMessage
		if err := json.Unmarshal(line, &msg); err != nil {
			log.Warn().
				Str("backend", s.cfg.Name).
				Err(err).
				Msg("mcp: discarding unparseable line")
			continue
		}

		if msg.ID == nil {
			log.Debug().
				Str("backend", s.cfg.Name).
				Str("method", msg.Method).
				Msg("mcp: ignoring server notification")
			continue
		}

		s.pendingMu.Lock()
		ch, ok := s.pending[*msg.ID]
		s.pendingMu.Unlock()
		if !ok {
			log.Warn().
				Str("backend", s.cfg.Name).
				Int64("id", *msg.ID).
				Msg("mcp: response with no pending call")
			continue
		}
		ch <- &msg
	}

	if err := scanner.Err(); err != nil {
		log.Warn().Str("backend", s.cfg.Name).Err(err).Msg("mcp: read loop ended")
	}

	// Process went away (or Close cut the pipe): everything pending
	// fails now rather than hanging.
	s.closeOnce.Do(func() {
		close(s.done)
		s.failPending()
		s.stdin.Close()
		if s.cmd != nil {
			if s.cmd.Process != nil {
				s.cmd.Process.Kill()
			}
			s.cmd.Wait()
		}
		log.Warn().Str("backend", s.cfg.Name).Msg("mcp: backend process exited")
	})
}

// failPending wakes every waiting call with a nil response, which the
// call path maps to ErrSessionClosed.
func (s *Session) failPending() {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	for id, ch := range s.pending {
		select {
		case ch <- nil:
		default:
		}
		delete(s.pending, id)
	}
}
