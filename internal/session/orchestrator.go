package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/normanking/cortex-voice/internal/audio"
	"github.com/normanking/cortex-voice/internal/bus"
	"github.com/normanking/cortex-voice/internal/live"
	"github.com/normanking/cortex-voice/internal/registry"
)

// Peer is the slice of the live client the orchestrator drives.
// *live.Client satisfies it.
type Peer interface {
	Messages() <-chan live.ServerMessage
	SendAudio(pcm []byte) error
	SendText(text string) error
	SendToolResults(results []live.FunctionResult) error
	Close() error
}

// Dispatcher routes one invocation. *registry.Router satisfies it.
type Dispatcher interface {
	Invoke(ctx context.Context, req registry.InvocationRequest) registry.InvocationResult
}

// Config tunes the orchestrator.
type Config struct {
	// DrainGrace is the pause after the playback queue empties before
	// the mic reopens, absorbing residual device latency.
	DrainGrace time.Duration

	// StartMuted opens the session with the mic off.
	StartMuted bool
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{DrainGrace: 80 * time.Millisecond}
}

// Orchestrator runs one conversation until Close or a fatal transport
// failure.
type Orchestrator struct {
	id  string
	cfg Config

	peer     Peer
	capture  audio.CaptureDevice
	playback audio.PlaybackDevice
	router   Dispatcher
	events   *bus.Bus
	memo     *CallMemo

	state    atomic.Int32
	muted    atomic.Bool
	playing  atomic.Bool
	turnDone atomic.Bool
	inFlight atomic.Bool

	outbound    chan []byte
	playQueue   chan []byte
	toolResults chan []live.FunctionResult
	drained     chan struct{}

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New wires an orchestrator. Run starts it.
func New(peer Peer, capture audio.CaptureDevice, playback audio.PlaybackDevice, router Dispatcher, events *bus.Bus, cfg Config) *Orchestrator {
	if cfg.DrainGrace == 0 {
		cfg.DrainGrace = DefaultConfig().DrainGrace
	}
	o := &Orchestrator{
		id:          uuid.NewString(),
		cfg:         cfg,
		peer:        peer,
		capture:     capture,
		playback:    playback,
		router:      router,
		events:      events,
		memo:        NewCallMemo(),
		outbound:    make(chan []byte, 32),
		playQueue:   make(chan []byte, 256),
		toolResults: make(chan []live.FunctionResult, 1),
		drained:     make(chan struct{}, 1),
	}
	o.muted.Store(cfg.StartMuted)
	return o
}

// ID returns the session identifier.
func (o *Orchestrator) ID() string { return o.id }

// State returns the current conversation phase.
func (o *Orchestrator) State() State { return State(o.state.Load()) }

// Muted reports the operator mute flag.
func (o *Orchestrator) Muted() bool { return o.muted.Load() }

// Run starts the loops and blocks until the session ends.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.ctx, o.cancel = context.WithCancel(ctx)

	log.Info().Str("session_id", o.id).Msg("session: starting")
	o.events.Publish(bus.NewEvent(bus.EventPeerConnected))

	for _, loop := range []func(){o.captureLoop, o.sendLoop, o.receiveLoop, o.playbackLoop} {
		o.wg.Add(1)
		go func(run func()) {
			defer o.wg.Done()
			run()
		}(loop)
	}

	o.wg.Wait()
	o.Close()
	return nil
}

// SendText forwards an operator-typed line as a completed user turn.
func (o *Orchestrator) SendText(text string) error {
	if text == "" {
		return nil
	}
	if o.State() == StateClosed {
		return fmt.Errorf("session: closed")
	}
	o.events.Publish(bus.UserText(text))
	return o.peer.SendText(text)
}

// ToggleMute flips the operator mute flag and returns the new value.
// Unmuting takes effect on the very next capture chunk.
func (o *Orchestrator) ToggleMute() bool {
	muted := !o.muted.Load()
	o.muted.Store(muted)
	o.events.Publish(bus.MuteChanged(muted))
	log.Debug().Bool("muted", muted).Msg("session: mute toggled")
	return muted
}

// Close ends the session: loops unblock, devices and the peer are
// released, queued audio is discarded. Safe to call more than once.
func (o *Orchestrator) Close() error {
	o.closeOnce.Do(func() {
		o.setState(StateClosed)
		if o.cancel != nil {
			o.cancel()
		}
		o.peer.Close()
		o.capture.Close()
		o.playback.Close()
		log.Info().Str("session_id", o.id).Msg("session: closed")
	})
	return nil
}

// setState records and announces a phase change. Only the receive
// loop (and Close) call this.
func (o *Orchestrator) setState(s State) {
	prev := State(o.state.Swap(int32(s)))
	if prev == s {
		return
	}
	if prev == StateClosed {
		// Closed is terminal.
		o.state.Store(int32(StateClosed))
		return
	}
	log.Debug().
		Str("from", prev.String()).
		Str("to", s.String()).
		Msg("session: state change")
	o.events.Publish(bus.StateChange(s.String()))
}

// captureLoop reads mic chunks and forwards them unless gated. The
// gate is the echo guard: nothing is forwarded while muted, while
// model audio plays, or while a tool call is pending, so the model
// never hears itself or a dead mic's noise mid-invocation.
func (o *Orchestrator) captureLoop() {
	for {
		pcm, err := o.capture.Read(o.ctx)
		if err != nil {
			if o.ctx.Err() != nil || o.State() == StateClosed {
				return
			}
			log.Error().Err(err).Msg("session: capture failed")
			o.events.Publish(bus.Error(fmt.Sprintf("capture: %v", err)))
			return
		}

		if o.muted.Load() || o.playing.Load() || o.State() == StateToolPending {
			continue
		}

		select {
		case o.outbound <- pcm:
		default:
			// Sender is behind; drop the chunk rather than stall the mic.
		}
	}
}

// sendLoop ships queued mic chunks to the peer.
func (o *Orchestrator) sendLoop() {
	for {
		select {
		case <-o.ctx.Done():
			return
		case pcm := <-o.outbound:
			if err := o.peer.SendAudio(pcm); err != nil {
				if o.ctx.Err() != nil {
					return
				}
				log.Warn().Err(err).Msg("session: audio send failed")
			}
		}
	}
}

// receiveLoop is the single writer of session state. It consumes peer
// messages, routes audio to playback, text to the bus, and tool calls
// to the dispatcher; it also absorbs dispatch completions and drain
// notifications so every transition happens here.
func (o *Orchestrator) receiveLoop() {
	o.setState(StateListening)

	for {
		select {
		case <-o.ctx.Done():
			return

		case results := <-o.toolResults:
			if err := o.peer.SendToolResults(results); err != nil {
				log.Error().Err(err).Msg("session: tool response send failed")
			}
			o.setState(StateAwaitingResponse)

		case <-o.drained:
			if s := o.State(); s == StateSpeaking || s == StateAwaitingResponse {
				o.setState(StateListening)
				o.events.Publish(bus.NewEvent(bus.EventMicReady))
			}

		case msg, ok := <-o.peer.Messages():
			if !ok {
				log.Warn().Msg("session: peer message channel closed")
				o.cancel()
				return
			}
			o.handlePeerMessage(msg)
			if o.State() == StateClosed {
				return
			}
		}
	}
}

func (o *Orchestrator) handlePeerMessage(msg live.ServerMessage) {
	switch msg.Kind {
	case live.KindAudio:
		o.turnDone.Store(false)
		if s := o.State(); s == StateListening || s == StateAwaitingResponse {
			o.setState(StateSpeaking)
		}
		select {
		case o.playQueue <- msg.Audio:
		case <-o.ctx.Done():
		}

	case live.KindText:
		o.events.Publish(bus.Transcript(msg.Text))

	case live.KindToolCall:
		o.handleToolCall(msg.Calls)

	case live.KindInterrupted:
		o.flushPlayback()
		o.events.Publish(bus.Info("interrupted"))
		log.Debug().Msg("session: model turn interrupted")

	case live.KindTurnComplete:
		o.turnDone.Store(true)
		if s := o.State(); !o.playing.Load() && len(o.playQueue) == 0 &&
			(s == StateSpeaking || s == StateAwaitingResponse) {
			// Text-only turn: nothing to drain, reopen immediately.
			o.setState(StateListening)
		}

	case live.KindTransportFailure:
		log.Error().Err(msg.Err).Msg("session: peer transport failed")
		o.events.Publish(bus.Error(fmt.Sprintf("peer: %v", msg.Err)))
		o.Close()
	}
}

// handleToolCall dispatches one batch of function calls. Exactly one
// batch may be in flight: a second batch arriving before the first
// resolves is a protocol violation and is answered immediately with a
// structured error, never interleaved.
func (o *Orchestrator) handleToolCall(calls []live.FunctionCall) {
	if len(calls) == 0 {
		return
	}

	if !o.inFlight.CompareAndSwap(false, true) {
		results := make([]live.FunctionResult, 0, len(calls))
		for _, call := range calls {
			results = append(results, live.FunctionResult{
				ID:     call.ID,
				Name:   call.Name,
				Output: "invocation already in flight",
				IsErr:  true,
			})
		}
		if err := o.peer.SendToolResults(results); err != nil {
			log.Error().Err(err).Msg("session: reject send failed")
		}
		o.events.Publish(bus.Error("concurrent tool call rejected"))
		log.Warn().Int("calls", len(calls)).Msg("session: rejected concurrent tool call batch")
		return
	}

	o.setState(StateToolPending)
	for _, call := range calls {
		o.events.Publish(bus.ToolCallStarted(call.ID, call.Name))
	}

	go o.dispatch(calls)
}

// dispatch runs off the receive loop; completion is handed back via
// the toolResults channel so state writes stay in the receive loop.
func (o *Orchestrator) dispatch(calls []live.FunctionCall) {
	results := make([]live.FunctionResult, 0, len(calls))
	for _, call := range calls {
		args := o.memo.Prepare(call.Name, call.Args)
		res := o.router.Invoke(o.ctx, registry.InvocationRequest{
			CallID:     call.ID,
			Capability: call.Name,
			Arguments:  args,
		})

		if res.Success {
			o.memo.Observe(args, res.Payload)
			results = append(results, live.FunctionResult{
				ID:     res.CallID,
				Name:   call.Name,
				Output: res.Payload,
			})
		} else {
			results = append(results, live.FunctionResult{
				ID:     res.CallID,
				Name:   call.Name,
				Output: res.Err,
				IsErr:  true,
			})
		}
		o.events.Publish(bus.ToolCallFinished(res.CallID, call.Name, res.Success, res.Err))
	}

	o.inFlight.Store(false)
	select {
	case o.toolResults <- results:
	case <-o.ctx.Done():
	}
}

// playbackLoop feeds the speaker and detects drain: once the model's
// turn is complete and the queue stays empty through the grace window,
// the playing flag clears and the receive loop reopens the mic.
func (o *Orchestrator) playbackLoop() {
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()

	for {
		select {
		case <-o.ctx.Done():
			return

		case pcm := <-o.playQueue:
			if o.playing.CompareAndSwap(false, true) {
				o.events.Publish(bus.NewEvent(bus.EventPlaybackStart))
			}
			if err := o.playback.Write(o.ctx, pcm); err != nil {
				if o.ctx.Err() != nil {
					return
				}
				log.Warn().Err(err).Msg("session: playback write failed")
			}

		case <-tick.C:
			if !o.playing.Load() || len(o.playQueue) > 0 || !o.turnDone.Load() {
				continue
			}

			// Residual device latency: hold the mic shut a moment
			// longer than the last queued chunk.
			select {
			case <-time.After(o.cfg.DrainGrace):
			case <-o.ctx.Done():
				return
			}
			if len(o.playQueue) > 0 {
				continue
			}

			o.playing.Store(false)
			o.turnDone.Store(false)
			o.events.Publish(bus.NewEvent(bus.EventPlaybackEnd))
			select {
			case o.drained <- struct{}{}:
			default:
			}
		}
	}
}

// flushPlayback discards queued audio after an interruption.
func (o *Orchestrator) flushPlayback() {
	for {
		select {
		case <-o.playQueue:
		default:
			return
		}
	}
}
