package live

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/normanking/cortex-voice/internal/schema"
)

// fakePeer is an in-process websocket server standing in for the
// voice peer. It completes the setup exchange and hands the raw
// connection to the test body.
type fakePeer struct {
	server *httptest.Server
	url    string

	conns chan *websocket.Conn
	setup chan setupPayload
}

func newFakePeer(t *testing.T) *fakePeer {
	t.Helper()

	fp := &fakePeer{
		conns: make(chan *websocket.Conn, 1),
		setup: make(chan setupPayload, 1),
	}

	upgrader := websocket.Upgrader{}
	fp.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}

		// Setup exchange.
		var env clientEnvelope
		if err := conn.ReadJSON(&env); err != nil {
			t.Errorf("read setup: %v", err)
			return
		}
		if env.Setup == nil {
			t.Error("first frame is not setup")
			return
		}
		fp.setup <- *env.Setup
		conn.WriteJSON(map[string]any{"setupComplete": map[string]any{}})

		fp.conns <- conn
	}))
	t.Cleanup(fp.server.Close)

	fp.url = "ws" + strings.TrimPrefix(fp.server.URL, "http")
	return fp
}

func dialTest(t *testing.T, fp *fakePeer, cfg Config) (*Client, *websocket.Conn) {
	t.Helper()

	cfg.Endpoint = fp.url
	cfg.HandshakeTimeout = 2 * time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	c, err := Dial(ctx, cfg)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { c.Close() })

	select {
	case conn := <-fp.conns:
		return c, conn
	case <-time.After(time.Second):
		t.Fatal("server never produced a connection")
		return nil, nil
	}
}

func readEnvelope(t *testing.T, conn *websocket.Conn) clientEnvelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env clientEnvelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("read client frame: %v", err)
	}
	return env
}

func awaitMessage(t *testing.T, c *Client) ServerMessage {
	t.Helper()
	select {
	case msg, ok := <-c.Messages():
		if !ok {
			t.Fatal("message channel closed early")
		}
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no message within deadline")
		return ServerMessage{}
	}
}

func TestSetupCarriesToolsAndInstruction(t *testing.T) {
	fp := newFakePeer(t)

	decls := []schema.Declaration{
		{Name: "agent_status", Description: "Check agents"},
	}
	_, _ = dialTest(t, fp, Config{
		Model:             "models/voice-live",
		SystemInstruction: "You are a voice assistant.",
		Tools:             decls,
		EnableSearch:      true,
	})

	setup := <-fp.setup
	if setup.Model != "models/voice-live" {
		t.Errorf("model = %q", setup.Model)
	}
	if setup.GenerationConfig == nil || len(setup.GenerationConfig.ResponseModalities) != 1 ||
		setup.GenerationConfig.ResponseModalities[0] != "AUDIO" {
		t.Errorf("generation config = %+v, want AUDIO modality", setup.GenerationConfig)
	}
	if setup.SystemInstruction == nil || setup.SystemInstruction.Parts[0].Text != "You are a voice assistant." {
		t.Error("system instruction not carried")
	}

	// Search passthrough first, declarations second.
	if len(setup.Tools) != 2 {
		t.Fatalf("tools = %+v, want search + declarations", setup.Tools)
	}
	if setup.Tools[0].GoogleSearch == nil {
		t.Error("search passthrough missing")
	}
	if len(setup.Tools[1].FunctionDeclarations) != 1 || setup.Tools[1].FunctionDeclarations[0].Name != "agent_status" {
		t.Errorf("declarations = %+v", setup.Tools[1].FunctionDeclarations)
	}
}

func TestSendAudioWireShape(t *testing.T) {
	fp := newFakePeer(t)
	c, conn := dialTest(t, fp, Config{Model: "models/voice-live"})
	<-fp.setup

	pcm := []byte{0x01, 0x02, 0x03, 0x04}
	if err := c.SendAudio(pcm); err != nil {
		t.Fatalf("SendAudio failed: %v", err)
	}

	env := readEnvelope(t, conn)
	if env.RealtimeInput == nil || len(env.RealtimeInput.MediaChunks) != 1 {
		t.Fatalf("frame = %+v, want one media chunk", env)
	}
	chunk := env.RealtimeInput.MediaChunks[0]
	if chunk.MimeType != MimePCM16k {
		t.Errorf("mime = %q, want %q", chunk.MimeType, MimePCM16k)
	}
	if chunk.Data != base64.StdEncoding.EncodeToString(pcm) {
		t.Error("chunk data is not the base64 of the input")
	}
}

func TestSendTextWireShape(t *testing.T) {
	fp := newFakePeer(t)
	c, conn := dialTest(t, fp, Config{Model: "models/voice-live"})
	<-fp.setup

	if err := c.SendText("launch three agents"); err != nil {
		t.Fatalf("SendText failed: %v", err)
	}

	env := readEnvelope(t, conn)
	cc := env.ClientContent
	if cc == nil || !cc.TurnComplete {
		t.Fatalf("frame = %+v, want completed client content", env)
	}
	if len(cc.Turns) != 1 || cc.Turns[0].Role != "user" || cc.Turns[0].Parts[0].Text != "launch three agents" {
		t.Errorf("turns = %+v", cc.Turns)
	}
}

func TestSendToolResultsWireShape(t *testing.T) {
	fp := newFakePeer(t)
	c, conn := dialTest(t, fp, Config{Model: "models/voice-live"})
	<-fp.setup

	err := c.SendToolResults([]FunctionResult{
		{ID: "fc-1", Name: "agent_status", Output: "3 agents running"},
		{ID: "fc-2", Name: "agent_stop", Output: "boom", IsErr: true},
	})
	if err != nil {
		t.Fatalf("SendToolResults failed: %v", err)
	}

	env := readEnvelope(t, conn)
	if env.ToolResponse == nil || len(env.ToolResponse.FunctionResponses) != 2 {
		t.Fatalf("frame = %+v, want two function responses", env)
	}
	ok := env.ToolResponse.FunctionResponses[0]
	if ok.ID != "fc-1" || ok.Response["output"] != "3 agents running" {
		t.Errorf("success response = %+v", ok)
	}
	bad := env.ToolResponse.FunctionResponses[1]
	if bad.Response["error"] != "boom" {
		t.Errorf("error response = %+v", bad)
	}
}

func TestDispatchServerContent(t *testing.T) {
	fp := newFakePeer(t)
	c, conn := dialTest(t, fp, Config{Model: "models/voice-live"})
	<-fp.setup

	pcm := []byte{0xAA, 0xBB}
	conn.WriteJSON(map[string]any{
		"serverContent": map[string]any{
			"modelTurn": map[string]any{
				"parts": []map[string]any{
					{"inlineData": map[string]any{
						"mimeType": "audio/pcm;rate=24000",
						"data":     base64.StdEncoding.EncodeToString(pcm),
					}},
					{"text": "Here is the status."},
				},
			},
			"turnComplete": true,
		},
	})

	msg := awaitMessage(t, c)
	if msg.Kind != KindAudio || string(msg.Audio) != string(pcm) {
		t.Fatalf("first message = %+v, want decoded audio", msg)
	}
	msg = awaitMessage(t, c)
	if msg.Kind != KindText || msg.Text != "Here is the status." {
		t.Fatalf("second message = %+v, want text part", msg)
	}
	msg = awaitMessage(t, c)
	if msg.Kind != KindTurnComplete {
		t.Fatalf("third message = %+v, want turn complete", msg)
	}
}

func TestDispatchInterrupted(t *testing.T) {
	fp := newFakePeer(t)
	c, conn := dialTest(t, fp, Config{Model: "models/voice-live"})
	<-fp.setup

	conn.WriteJSON(map[string]any{
		"serverContent": map[string]any{"interrupted": true},
	})

	if msg := awaitMessage(t, c); msg.Kind != KindInterrupted {
		t.Fatalf("message = %+v, want interrupted", msg)
	}
}

func TestDispatchToolCall(t *testing.T) {
	fp := newFakePeer(t)
	c, conn := dialTest(t, fp, Config{Model: "models/voice-live"})
	<-fp.setup

	conn.WriteJSON(map[string]any{
		"toolCall": map[string]any{
			"functionCalls": []map[string]any{
				{
					"id":   "fc-9",
					"name": "agent_launch",
					"args": map[string]any{"project_dir": "/tmp/p", "agents": 3},
				},
			},
		},
	})

	msg := awaitMessage(t, c)
	if msg.Kind != KindToolCall || len(msg.Calls) != 1 {
		t.Fatalf("message = %+v, want one tool call", msg)
	}
	call := msg.Calls[0]
	if call.ID != "fc-9" || call.Name != "agent_launch" {
		t.Errorf("call header = %+v", call)
	}
	if call.Args["project_dir"] != "/tmp/p" {
		t.Errorf("args = %+v", call.Args)
	}
}

func TestTransportFailureIsTerminal(t *testing.T) {
	fp := newFakePeer(t)
	c, conn := dialTest(t, fp, Config{Model: "models/voice-live"})
	<-fp.setup

	// Server dies without a close frame.
	conn.Close()

	msg := awaitMessage(t, c)
	if msg.Kind != KindTransportFailure || msg.Err == nil {
		t.Fatalf("message = %+v, want transport failure", msg)
	}

	// Channel must close after the terminal message.
	select {
	case _, ok := <-c.Messages():
		if ok {
			t.Error("expected closed channel after transport failure")
		}
	case <-time.After(time.Second):
		t.Error("channel not closed after transport failure")
	}
}

func TestSendAfterClose(t *testing.T) {
	fp := newFakePeer(t)
	c, _ := dialTest(t, fp, Config{Model: "models/voice-live"})
	<-fp.setup

	c.Close()
	if err := c.SendText("hello"); err == nil {
		t.Error("expected error sending after Close")
	}
}
