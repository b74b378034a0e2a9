package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultObserverPort is where the session event tap listens.
	DefaultObserverPort = 8765

	// ObserverEndpoint is the websocket path for event streaming.
	ObserverEndpoint = "/session-events"

	// observerWriteWait bounds one websocket write.
	observerWriteWait = 10 * time.Second

	// observerPongWait is how long a client may stay silent.
	observerPongWait = 60 * time.Second

	observerPingPeriod = (observerPongWait * 9) / 10
)

// Observer streams bus events over websocket so an external monitor
// can watch a headless session. Each connected client gets every event
// as one JSON document per text frame, with optional history replay on
// attach.
type Observer struct {
	bus      *Bus
	port     int
	upgrader websocket.Upgrader
	server   *http.Server

	clientsMu  sync.RWMutex
	clients    map[*observerClient]bool
	register   chan *observerClient
	unregister chan *observerClient

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	runningMu sync.Mutex
	running   bool
}

type observerClient struct {
	conn        *websocket.Conn
	send        chan []byte
	replayCount int
}

// ObserverConfig configures the event tap.
type ObserverConfig struct {
	// Port to listen on; DefaultObserverPort when zero.
	Port int

	// ReplayCount is how many retained events a new client receives
	// before live traffic.
	ReplayCount int
}

// NewObserver attaches an event tap to the bus. Call Start to listen.
func NewObserver(b *Bus, cfg ObserverConfig) *Observer {
	if cfg.Port == 0 {
		cfg.Port = DefaultObserverPort
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Observer{
		bus:  b,
		port: cfg.Port,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients:    make(map[*observerClient]bool),
		register:   make(chan *observerClient),
		unregister: make(chan *observerClient),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start subscribes to the bus and begins serving.
func (o *Observer) Start() error {
	o.runningMu.Lock()
	if o.running {
		o.runningMu.Unlock()
		return fmt.Errorf("observer: already running")
	}
	o.running = true
	o.runningMu.Unlock()

	o.bus.Subscribe(EventType(""), o.handleBusEvent)

	o.wg.Add(1)
	go o.runClientManager()

	mux := http.NewServeMux()
	mux.HandleFunc(ObserverEndpoint, o.handleWebSocket)
	mux.HandleFunc("/health", o.handleHealth)

	o.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", o.port),
		Handler: mux,
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		log.Info().Int("port", o.port).Msg("observer: listening")
		if err := o.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("observer: server failed")
		}
	}()

	return nil
}

// Stop closes every client and shuts the server down.
func (o *Observer) Stop() error {
	o.runningMu.Lock()
	if !o.running {
		o.runningMu.Unlock()
		return nil
	}
	o.running = false
	o.runningMu.Unlock()

	o.cancel()

	o.clientsMu.Lock()
	for client := range o.clients {
		close(client.send)
		delete(o.clients, client)
	}
	o.clientsMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("observer: shutdown: %w", err)
	}

	o.wg.Wait()
	log.Debug().Msg("observer: stopped")
	return nil
}

// ClientCount returns the number of connected monitors.
func (o *Observer) ClientCount() int {
	o.clientsMu.RLock()
	defer o.clientsMu.RUnlock()
	return len(o.clients)
}

func (o *Observer) runClientManager() {
	defer o.wg.Done()

	for {
		select {
		case client := <-o.register:
			o.clientsMu.Lock()
			o.clients[client] = true
			total := len(o.clients)
			o.clientsMu.Unlock()
			log.Debug().Int("clients", total).Msg("observer: client connected")

			if client.replayCount > 0 {
				o.replayHistory(client)
			}

		case client := <-o.unregister:
			o.clientsMu.Lock()
			if _, ok := o.clients[client]; ok {
				delete(o.clients, client)
				close(client.send)
				client.conn.Close()
			}
			total := len(o.clients)
			o.clientsMu.Unlock()
			log.Debug().Int("clients", total).Msg("observer: client disconnected")

		case <-o.ctx.Done():
			return
		}
	}
}

func (o *Observer) replayHistory(client *observerClient) {
	history := o.bus.History()
	if len(history) > client.replayCount {
		history = history[len(history)-client.replayCount:]
	}
	for _, event := range history {
		data, err := json.Marshal(event)
		if err != nil {
			continue
		}
		select {
		case client.send <- data:
		default:
			return
		}
	}
}

func (o *Observer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	replayCount := 100
	if n := r.URL.Query().Get("replay"); n != "" {
		if parsed, err := strconv.Atoi(n); err == nil {
			replayCount = parsed
		}
	}

	conn, err := o.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("observer: upgrade failed")
		return
	}

	client := &observerClient{
		conn:        conn,
		send:        make(chan []byte, 256),
		replayCount: replayCount,
	}
	o.register <- client

	o.wg.Add(2)
	go o.writePump(client)
	go o.readPump(client)
}

func (o *Observer) writePump(client *observerClient) {
	defer o.wg.Done()

	ticker := time.NewTicker(observerPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case message, ok := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(observerWriteWait))
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(observerWriteWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-o.ctx.Done():
			return
		}
	}
}

// readPump drains the client so pings keep flowing; monitors do not
// send application traffic.
func (o *Observer) readPump(client *observerClient) {
	defer o.wg.Done()
	defer func() {
		select {
		case o.unregister <- client:
		case <-o.ctx.Done():
		}
	}()

	client.conn.SetReadLimit(512)
	client.conn.SetReadDeadline(time.Now().Add(observerPongWait))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(observerPongWait))
		return nil
	})

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (o *Observer) handleBusEvent(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Warn().Err(err).Msg("observer: marshal event failed")
		return
	}

	o.clientsMu.RLock()
	clients := make([]*observerClient, 0, len(o.clients))
	for client := range o.clients {
		clients = append(clients, client)
	}
	o.clientsMu.RUnlock()

	for _, client := range clients {
		select {
		case client.send <- data:
		default:
			// Client fell too far behind; drop it.
			select {
			case o.unregister <- client:
			case <-o.ctx.Done():
			}
		}
	}
}

func (o *Observer) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := struct {
		Status      string `json:"status"`
		Clients     int    `json:"clients"`
		BusSubs     int    `json:"bus_subscriptions"`
		HistorySize int    `json:"history_size"`
	}{
		Status:      "healthy",
		Clients:     o.ClientCount(),
		BusSubs:     o.bus.SubscriptionsCount(),
		HistorySize: len(o.bus.History()),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(health)
}
