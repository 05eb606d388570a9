// ABOUTME: WebSocket remote control server for a player
// ABOUTME: Maps JSON commands onto player operations and broadcasts player events to every client
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/Resonate-Protocol/cadence/internal/discovery"
	"github.com/Resonate-Protocol/cadence/internal/version"
	"github.com/Resonate-Protocol/cadence/pkg/player"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Path is the WebSocket endpoint
	Path = "/control"

	sendBuffer    = 64
	pingInterval  = 30 * time.Second
	writeDeadline = 10 * time.Second
)

// ErrUnknownCommand is reported for unrecognized message types
var ErrUnknownCommand = errors.New("unknown command")

// Player is the part of the player the server drives
type Player interface {
	ID() string
	State() player.State
	Start() error
	Pause() error
	Stop() error
	ReStart() error
	SeekTo(msec int) error
	SetPlayRange(startMs, endMs int)
	PlayRange() (startMs, endMs int)
	SetVolume(volume float32)
	Volume() float32
	SetLooping(looping bool)
	IsLooping() bool
	Duration() int
	CurrentPosition() int
}

// Config holds server configuration
type Config struct {
	Port       int
	Name       string
	EnableMDNS bool

	// PositionInterval is how often position events go out while started (default: 500ms)
	PositionInterval time.Duration
}

// Server is the remote control endpoint
type Server struct {
	config Config
	player Player

	upgrader   websocket.Upgrader
	httpServer *http.Server
	mux        *http.ServeMux

	clients   map[string]*client
	clientsMu sync.RWMutex

	mdnsManager *discovery.Manager

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// client is one connected controller
type client struct {
	id       string
	conn     *websocket.Conn
	sendChan chan interface{}
}

// New creates a control server for p
func New(config Config, p Player) *Server {
	if config.PositionInterval == 0 {
		config.PositionInterval = 500 * time.Millisecond
	}
	if config.Name == "" {
		config.Name = p.ID()
	}

	s := &Server{
		config: config,
		player: p,
		mux:    http.NewServeMux(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				if origin := r.Header.Get("Origin"); origin != "" {
					log.Printf("[control] accepting WebSocket from origin: %s", origin)
				}
				return true
			},
		},
		clients:  make(map[string]*client),
		stopChan: make(chan struct{}),
	}
	s.mux.HandleFunc(Path, s.handleWebSocket)
	return s
}

// Handler returns the HTTP handler serving the control endpoint
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start serves until Stop is called or the listener fails
func (s *Server) Start() error {
	if s.config.EnableMDNS {
		s.mdnsManager = discovery.NewManager(discovery.Config{
			ServiceName: s.config.Name,
			Port:        s.config.Port,
		})
		if err := s.mdnsManager.Advertise(); err != nil {
			log.Printf("[control] failed to start mDNS advertisement: %v", err)
		}
	}

	addr := fmt.Sprintf(":%d", s.config.Port)
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.mux,
	}
	log.Printf("[control] listening on %s%s", addr, Path)

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.positionLoop()
	}()

	var serverErr error
	select {
	case <-s.stopChan:
	case serverErr = <-errChan:
		log.Printf("[control] HTTP server error: %v", serverErr)
		s.Stop()
	}

	if s.mdnsManager != nil {
		s.mdnsManager.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		log.Printf("[control] shutdown error: %v", err)
	}
	s.closeClients()
	s.wg.Wait()

	if serverErr != nil {
		return fmt.Errorf("control server failed: %w", serverErr)
	}
	return nil
}

// Stop stops the server
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
}

// ClientCount returns the number of connected clients
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

// HandleStateChange broadcasts a transition. It runs under the player
// lock and must not call back into the player.
func (s *Server) HandleStateChange(prev, next player.State) {
	s.broadcast(EventState, StateEvent{Previous: prev.String(), State: next.String()})
}

// HandlePrepared broadcasts a prepared event
func (s *Server) HandlePrepared() {
	s.broadcast(EventPrepared, nil)
}

// HandleCompletion broadcasts a completed event
func (s *Server) HandleCompletion() {
	s.broadcast(EventCompleted, nil)
}

// HandleError broadcasts the player's error codes
func (s *Server) HandleError(what, extra int) {
	s.broadcast(EventError, ErrorEvent{What: what, Extra: extra})
}

// handleWebSocket upgrades and serves one client
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[control] upgrade error: %v", err)
		return
	}
	defer conn.Close()

	c := &client{
		id:       uuid.New().String(),
		conn:     conn,
		sendChan: make(chan interface{}, sendBuffer),
	}

	s.clientsMu.Lock()
	s.clients[c.id] = c
	s.clientsMu.Unlock()
	log.Printf("[control] client %s connected from %s", c.id, r.RemoteAddr)

	done := make(chan struct{})
	defer func() {
		s.removeClient(c)
		<-done
		log.Printf("[control] client %s disconnected", c.id)
	}()

	go func() {
		defer close(done)
		s.clientWriter(c)
	}()

	s.send(c, EventStatus, s.status())

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[control] client %s read error: %v", c.id, err)
			}
			return
		}
		s.handleMessage(c, data)
	}
}

// removeClient unregisters c and closes its send channel once
func (s *Server) removeClient(c *client) {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	if _, ok := s.clients[c.id]; !ok {
		return
	}
	delete(s.clients, c.id)
	close(c.sendChan)
}

// closeClients disconnects everyone during shutdown
func (s *Server) closeClients() {
	s.clientsMu.RLock()
	clients := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.clientsMu.RUnlock()

	for _, c := range clients {
		c.conn.Close()
	}
}

// clientWriter drains the send channel and keeps the connection alive
func (s *Server) clientWriter(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.sendChan:
			if !ok {
				return
			}
			data, err := json.Marshal(msg)
			if err != nil {
				log.Printf("[control] error marshaling message: %v", err)
				continue
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Printf("[control] client %s write error: %v", c.id, err)
				c.conn.Close()
				return
			}

		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(writeDeadline)); err != nil {
				return
			}
		}
	}
}

// handleMessage decodes one command and answers with a result
func (s *Server) handleMessage(c *client, data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Printf("[control] error unmarshaling message: %v", err)
		s.send(c, EventResult, Result{Error: err.Error()})
		return
	}

	if msg.Type == CommandStatus {
		s.send(c, EventStatus, s.status())
		return
	}

	result := Result{Command: msg.Type, OK: true}
	if err := s.execute(msg); err != nil {
		log.Printf("[control] %s failed: %v", msg.Type, err)
		result.OK = false
		result.Error = err.Error()
	}
	s.send(c, EventResult, result)

	switch msg.Type {
	case CommandRange, CommandVolume, CommandLoop:
		if result.OK {
			s.broadcast(EventStatus, s.status())
		}
	}
}

// execute maps a command onto the player
func (s *Server) execute(msg Message) error {
	switch msg.Type {
	case CommandStart:
		return s.player.Start()
	case CommandPause:
		return s.player.Pause()
	case CommandStop:
		return s.player.Stop()
	case CommandRestart:
		return s.player.ReStart()

	case CommandSeek:
		var cmd SeekCommand
		if err := decodePayload(msg.Payload, &cmd); err != nil {
			return fmt.Errorf("invalid seek payload: %w", err)
		}
		return s.player.SeekTo(cmd.PositionMs)

	case CommandRange:
		var cmd RangeCommand
		if err := decodePayload(msg.Payload, &cmd); err != nil {
			return fmt.Errorf("invalid range payload: %w", err)
		}
		s.player.SetPlayRange(cmd.StartMs, cmd.EndMs)
		return nil

	case CommandVolume:
		var cmd VolumeCommand
		if err := decodePayload(msg.Payload, &cmd); err != nil {
			return fmt.Errorf("invalid volume payload: %w", err)
		}
		s.player.SetVolume(cmd.Volume)
		return nil

	case CommandLoop:
		var cmd LoopCommand
		if err := decodePayload(msg.Payload, &cmd); err != nil {
			return fmt.Errorf("invalid loop payload: %w", err)
		}
		s.player.SetLooping(cmd.Looping)
		return nil

	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, msg.Type)
	}
}

// status snapshots the player
func (s *Server) status() Status {
	start, end := s.player.PlayRange()
	return Status{
		ID:           s.player.ID(),
		Version:      version.String(),
		Name:         s.config.Name,
		State:        s.player.State().String(),
		PositionMs:   s.player.CurrentPosition(),
		DurationMs:   s.player.Duration(),
		RangeStartMs: start,
		RangeEndMs:   end,
		Volume:       s.player.Volume(),
		Looping:      s.player.IsLooping(),
	}
}

// positionLoop reports the position while the player is started
func (s *Server) positionLoop() {
	ticker := time.NewTicker(s.config.PositionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			if s.player.State() != player.StateStarted {
				continue
			}
			s.broadcast(EventPosition, PositionEvent{
				PositionMs: s.player.CurrentPosition(),
				DurationMs: s.player.Duration(),
			})
		}
	}
}

// send queues a message for one client, dropping it if the client is behind
func (s *Server) send(c *client, msgType string, payload interface{}) {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	if _, ok := s.clients[c.id]; !ok {
		return
	}
	s.enqueue(c, Message{Type: msgType, Payload: payload})
}

// broadcast queues a message for every client
func (s *Server) broadcast(msgType string, payload interface{}) {
	msg := Message{Type: msgType, Payload: payload}

	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	for _, c := range s.clients {
		s.enqueue(c, msg)
	}
}

// enqueue must be called with clientsMu held
func (s *Server) enqueue(c *client, msg Message) {
	select {
	case c.sendChan <- msg:
	default:
		log.Printf("[control] client %s send buffer full, dropping %s", c.id, msg.Type)
	}
}
