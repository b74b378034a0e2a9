package live

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/normanking/cortex-voice/internal/schema"
)

// ErrNotConnected is returned for sends after Close or before Dial
// completes.
var ErrNotConnected = errors.New("live: not connected")

// DefaultEndpoint is the production voice peer endpoint.
const DefaultEndpoint = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

// Config holds everything needed to open a live session.
type Config struct {
	// Endpoint is the websocket URL; the API key is appended as a
	// query parameter.
	Endpoint string

	// APIKey authenticates the session.
	APIKey string

	// Model is the full model resource name (models/...).
	Model string

	// SystemInstruction primes the model, empty for none.
	SystemInstruction string

	// Tools are the function declarations advertised in setup.
	Tools []schema.Declaration

	// EnableSearch adds the search passthrough tool to setup.
	EnableSearch bool

	// HandshakeTimeout bounds the dial plus setup exchange.
	HandshakeTimeout time.Duration
}

// Client is a live session over one websocket connection. Messages
// returns the receive side; Send* methods are safe for concurrent use.
type Client struct {
	cfg  Config
	conn *websocket.Conn

	writeMu sync.Mutex

	msgs      chan ServerMessage
	done      chan struct{}
	closeOnce sync.Once
}

// Dial connects, performs the setup exchange, and starts the read
// loop. The returned client is ready for realtime input.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}

	dialer := websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout}

	url := cfg.Endpoint
	if cfg.APIKey != "" {
		url += "?key=" + cfg.APIKey
	}

	log.Debug().Str("model", cfg.Model).Msg("live: connecting")

	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("live: dial: %w", err)
	}

	c := &Client{
		cfg:  cfg,
		conn: conn,
		msgs: make(chan ServerMessage, 64),
		done: make(chan struct{}),
	}

	if err := c.setup(ctx); err != nil {
		conn.Close()
		return nil, err
	}

	go c.readLoop()

	log.Info().Str("model", cfg.Model).Msg("live: session established")
	return c, nil
}

// setup sends the setup frame and waits for setupComplete.
func (c *Client) setup(ctx context.Context) error {
	p := &setupPayload{
		Model:            c.cfg.Model,
		GenerationConfig: &generationConfig{ResponseModalities: []string{"AUDIO"}},
	}
	if c.cfg.SystemInstruction != "" {
		p.SystemInstruction = &content{Parts: []part{{Text: c.cfg.SystemInstruction}}}
	}
	if c.cfg.EnableSearch {
		p.Tools = append(p.Tools, toolSpec{GoogleSearch: &struct{}{}})
	}
	if len(c.cfg.Tools) > 0 {
		p.Tools = append(p.Tools, toolSpec{FunctionDeclarations: c.cfg.Tools})
	}

	if err := c.write(clientEnvelope{Setup: p}); err != nil {
		return fmt.Errorf("live: send setup: %w", err)
	}

	deadline := time.Now().Add(c.cfg.HandshakeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	c.conn.SetReadDeadline(deadline)
	defer c.conn.SetReadDeadline(time.Time{})

	_, raw, err := c.conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("live: await setup complete: %w", err)
	}

	var env serverEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("live: parse setup reply: %w", err)
	}
	if env.SetupComplete == nil {
		return fmt.Errorf("live: unexpected first frame, want setupComplete")
	}
	return nil
}

// Messages returns the typed receive channel. It is closed after a
// terminal TransportFailure message or Close.
func (c *Client) Messages() <-chan ServerMessage { return c.msgs }

// SendAudio ships one raw PCM chunk as realtime input.
func (c *Client) SendAudio(pcm []byte) error {
	return c.write(clientEnvelope{RealtimeInput: &realtimeInput{
		MediaChunks: []mediaChunk{{
			MimeType: MimePCM16k,
			Data:     base64.StdEncoding.EncodeToString(pcm),
		}},
	}})
}

// SendText submits a typed user turn, marked complete so the model
// answers immediately.
func (c *Client) SendText(text string) error {
	return c.write(clientEnvelope{ClientContent: &clientContent{
		Turns:        []content{{Role: "user", Parts: []part{{Text: text}}}},
		TurnComplete: true,
	}})
}

// SendToolResults answers outstanding function calls, correlated by
// call id.
func (c *Client) SendToolResults(results []FunctionResult) error {
	frs := make([]functionResponse, 0, len(results))
	for _, r := range results {
		body := map[string]any{"output": r.Output}
		if r.IsErr {
			body = map[string]any{"error": r.Output}
		}
		frs = append(frs, functionResponse{ID: r.ID, Name: r.Name, Response: body})
	}
	return c.write(clientEnvelope{ToolResponse: &toolResponsePayload{FunctionResponses: frs}})
}

// Close sends a close frame and tears the connection down. Safe to
// call more than once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)

		c.writeMu.Lock()
		c.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		c.writeMu.Unlock()

		c.conn.Close()
		log.Debug().Msg("live: session closed")
	})
	return nil
}

func (c *Client) write(env clientEnvelope) error {
	select {
	case <-c.done:
		return ErrNotConnected
	default:
	}

	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("live: marshal frame: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.WriteMessage(websocket.TextMessage, body); err != nil {
		return fmt.Errorf("live: write frame: %w", err)
	}
	return nil
}

// readLoop is the only reader of the connection. It decodes each
// server envelope into typed messages, in part order, and closes the
// channel after a terminal failure.
func (c *Client) readLoop() {
	defer close(c.msgs)

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				// Intentional close; not a failure.
				return
			default:
			}
			log.Error().Err(err).Msg("live: read loop ended")
			c.emit(ServerMessage{Kind: KindTransportFailure, Err: fmt.Errorf("live: read: %w", err)})
			return
		}

		var env serverEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			log.Warn().Err(err).Msg("live: discarding unparseable frame")
			continue
		}

		c.dispatch(&env)
	}
}

// dispatch fans one server envelope out as typed messages. Content
// parts come first, then the interrupted flag, then turn completion.
func (c *Client) dispatch(env *serverEnvelope) {
	if sc := env.ServerContent; sc != nil {
		if sc.ModelTurn != nil {
			for _, p := range sc.ModelTurn.Parts {
				switch {
				case p.InlineData != nil:
					pcm, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
					if err != nil {
						log.Warn().Err(err).Msg("live: dropping undecodable audio part")
						continue
					}
					c.emit(ServerMessage{Kind: KindAudio, Audio: pcm})
				case p.Text != "":
					c.emit(ServerMessage{Kind: KindText, Text: p.Text})
				case p.ExecutableCode != nil:
					c.emit(ServerMessage{Kind: KindText, Text: "[code]\n" + p.ExecutableCode.Code})
				case p.CodeExecutionResult != nil:
					c.emit(ServerMessage{Kind: KindText, Text: "[code result] " + p.CodeExecutionResult.Output})
				}
			}
		}
		if sc.Interrupted {
			c.emit(ServerMessage{Kind: KindInterrupted})
		}
		if sc.TurnComplete {
			c.emit(ServerMessage{Kind: KindTurnComplete})
		}
	}

	if tc := env.ToolCall; tc != nil && len(tc.FunctionCalls) > 0 {
		calls := make([]FunctionCall, 0, len(tc.FunctionCalls))
		for _, fc := range tc.FunctionCalls {
			call := FunctionCall{ID: fc.ID, Name: fc.Name}
			if len(fc.Args) > 0 {
				if err := json.Unmarshal(fc.Args, &call.Args); err != nil {
					log.Warn().
						Str("call_id", fc.ID).
						Str("name", fc.Name).
						Err(err).
						Msg("live: unparseable call args, passing empty")
				}
			}
			calls = append(calls, call)
		}
		c.emit(ServerMessage{Kind: KindToolCall, Calls: calls})
	}
}

// emit delivers to the message channel unless the client is closing.
func (c *Client) emit(msg ServerMessage) {
	select {
	case c.msgs <- msg:
	case <-c.done:
	}
}
