// Package gateway is the transport edge: REST endpoints for one-shot commands
// and archive lookups, plus the per-session WebSocket that streams the event
// feed and accepts command envelopes.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"chupistica-server/apps/server/internal/archive"
	"chupistica-server/apps/server/internal/bus"
	"chupistica-server/apps/server/internal/dispatch"
	"chupistica-server/apps/server/internal/registry"
	"chupistica-server/apps/server/internal/room"
	"chupistica-server/game"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = 30 * time.Second
	maxMessageSize = 64 * 1024

	// closeLagged tells a shed subscriber to reconnect and resync; the seq
	// numbers let it see the gap.
	closeLagged = 4000
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // TODO: Restrict in production
	},
}

// Config tunes the gateway.
type Config struct {
	// SubscriberBuffer is the per-connection event buffer; a connection
	// that lets it fill up is cut. Zero means bus.DefaultBuffer.
	SubscriberBuffer int
	Logger           *zap.Logger
}

// Gateway serves the HTTP surface. Archive may be nil, which turns the
// archive endpoints into 404s.
type Gateway struct {
	dispatcher *dispatch.Dispatcher
	registry   *registry.Registry
	archive    archive.Store
	buffer     int
	log        *zap.Logger

	mu    sync.Mutex
	conns map[string]*connection
}

func New(d *dispatch.Dispatcher, reg *registry.Registry, store archive.Store, cfg Config) *Gateway {
	if cfg.SubscriberBuffer <= 0 {
		cfg.SubscriberBuffer = bus.DefaultBuffer
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Gateway{
		dispatcher: d,
		registry:   reg,
		archive:    store,
		buffer:     cfg.SubscriberBuffer,
		log:        cfg.Logger,
		conns:      make(map[string]*connection),
	}
}

// Routes mounts every endpoint on the router.
func (g *Gateway) Routes(r *mux.Router) {
	r.HandleFunc("/healthz", g.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/command", g.handleCommand).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/archive", g.handleArchiveRecent).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/archive/{code}", g.handleArchiveByCode).Methods(http.MethodGet)
	r.HandleFunc("/ws/{code}", g.handleWebSocket).Methods(http.MethodGet)
}

// ConnectionCount reports live WebSocket connections.
func (g *Gateway) ConnectionCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.conns)
}

// CloseAll tears down every live connection, for server shutdown.
func (g *Gateway) CloseAll() {
	g.mu.Lock()
	conns := make([]*connection, 0, len(g.conns))
	for _, c := range g.conns {
		conns = append(conns, c)
	}
	g.mu.Unlock()

	for _, c := range conns {
		c.shutdown()
	}
}

func (g *Gateway) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"sessions":    g.registry.Count(),
		"connections": g.ConnectionCount(),
	})
}

// handleCommand runs one envelope through the dispatcher. Stateless failures
// map to 400, lookup misses to 404, everything else stays 200 with ok=false
// so clients can treat the body as the single source of truth.
func (g *Gateway) handleCommand(w http.ResponseWriter, r *http.Request) {
	var cmd dispatch.Command
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		writeJSON(w, http.StatusBadRequest, malformedEnvelope())
		return
	}

	resp := g.dispatcher.Handle(r.Context(), cmd)
	writeJSON(w, statusFor(resp), resp)
}

// malformedEnvelope follows the dispatcher's convention of reporting
// undecodable input as InvalidPlayerId: no payload that fails to parse can
// carry the player id every command requires.
func malformedEnvelope() dispatch.Response {
	return dispatch.Response{
		OK:    false,
		Error: &dispatch.ErrorBody{Kind: string(game.KindInvalidPlayerID), Message: "malformed command envelope"},
	}
}

func statusFor(resp dispatch.Response) int {
	if resp.OK {
		return http.StatusOK
	}
	switch game.Kind(resp.Error.Kind) {
	case game.KindGameNotFound:
		return http.StatusNotFound
	case game.KindInvalidGameCode, game.KindInvalidPlayerID, game.KindInvalidCard,
		game.KindInvalidCardType, game.KindInvalidRules, game.KindInvalidTargetPlayer:
		return http.StatusBadRequest
	case game.KindCodeTaken, game.KindPlayerAlreadyInSession:
		return http.StatusConflict
	case game.KindCapacityExceeded, game.KindCodeSpaceExhausted:
		return http.StatusServiceUnavailable
	case game.KindInternal:
		return http.StatusInternalServerError
	default:
		// Stateful rejections (NotYourTurn, WrongState, ...) are part of
		// normal play.
		return http.StatusOK
	}
}

func (g *Gateway) handleArchiveByCode(w http.ResponseWriter, r *http.Request) {
	if g.archive == nil {
		http.NotFound(w, r)
		return
	}
	rec, err := g.archive.GetByCode(r.Context(), mux.Vars(r)["code"])
	if errors.Is(err, archive.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		if game.KindOf(err) == game.KindInvalidGameCode {
			writeJSON(w, http.StatusBadRequest, dispatch.Response{OK: false, Error: &dispatch.ErrorBody{
				Kind: string(game.KindInvalidGameCode), Message: "malformed game code",
			}})
			return
		}
		g.log.Error("archive lookup failed", zap.Error(err))
		http.Error(w, "archive unavailable", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (g *Gateway) handleArchiveRecent(w http.ResponseWriter, r *http.Request) {
	if g.archive == nil {
		http.NotFound(w, r)
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 100 {
			http.Error(w, "limit must be 1..100", http.StatusBadRequest)
			return
		}
		limit = n
	}
	recs, err := g.archive.Recent(r.Context(), limit)
	if err != nil {
		g.log.Error("archive listing failed", zap.Error(err))
		http.Error(w, "archive unavailable", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

// connection is one WebSocket client bound to one session. The send channel
// carries both command responses and broadcast events; writePump is the only
// goroutine writing to the socket.
type connection struct {
	id   string
	code string
	ws   *websocket.Conn
	send chan []byte
	room *room.Room
	sub  *bus.Subscription

	gw  *Gateway
	log *zap.Logger

	stopOnce    sync.Once
	done        chan struct{}
	cleanupOnce sync.Once

	closeMu  sync.Mutex
	closeMsg []byte
}

// handleWebSocket upgrades, subscribes the client to the session stream and
// starts the pumps. The session must exist before anyone can watch it.
func (g *Gateway) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]
	rm, err := g.registry.Lookup(code)
	if err != nil {
		writeJSON(w, http.StatusNotFound, dispatch.Response{
			OK:    false,
			Error: &dispatch.ErrorBody{Kind: string(game.KindOf(err)), Message: "unknown session"},
		})
		return
	}

	// playerId identifies the watcher in logs; it grants nothing, every
	// command still names its own player. Spectators may omit it.
	player := r.URL.Query().Get("playerId")
	if player != "" {
		if player, err = game.ValidatePlayerID(player); err != nil {
			writeJSON(w, http.StatusBadRequest, dispatch.Response{
				OK:    false,
				Error: &dispatch.ErrorBody{Kind: string(game.KindOf(err)), Message: "malformed playerId"},
			})
			return
		}
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &connection{
		id:   uuid.NewString(),
		code: rm.Code(),
		ws:   ws,
		send: make(chan []byte, g.buffer),
		room: rm,
		sub:  rm.Subscribe(g.buffer),
		gw:   g,
		done: make(chan struct{}),
	}
	c.log = g.log.With(zap.String("conn", c.id), zap.String("session", c.code))
	if player != "" {
		c.log = c.log.With(zap.String("player", player))
	}

	g.mu.Lock()
	g.conns[c.id] = c
	g.mu.Unlock()
	c.log.Info("client connected", zap.String("remote", r.RemoteAddr))

	go c.forwardEvents()
	go c.writePump()
	go c.readPump()
}

// stop ends the pumps; shutdown additionally releases everything the
// connection holds. Both are idempotent.
func (c *connection) stop() {
	c.stopOnce.Do(func() { close(c.done) })
}

func (c *connection) shutdown() {
	c.stop()
	c.cleanupOnce.Do(func() {
		c.ws.Close()

		c.gw.mu.Lock()
		delete(c.gw.conns, c.id)
		c.gw.mu.Unlock()

		c.room.Unsubscribe(c.sub)
		c.log.Info("client disconnected")
	})
}

// forwardEvents copies the session stream into the send channel. Never block:
// if this connection cannot keep up with its own buffer it gets cut, exactly
// like the bus cuts it for an overfull subscription.
func (c *connection) forwardEvents() {
	for {
		select {
		case ev, ok := <-c.sub.Events():
			if !ok {
				select {
				case <-c.sub.Lagged():
					c.closeWith(closeLagged, "event stream lagged, reconnect")
				default:
					c.closeWith(websocket.CloseGoingAway, "session closed")
				}
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				c.log.Error("marshal event", zap.Error(err))
				continue
			}
			select {
			case c.send <- data:
			default:
				c.closeWith(closeLagged, "outbound buffer overflow, reconnect")
				return
			}
		case <-c.done:
			return
		}
	}
}

// closeWith records the close frame and stops the pumps; writePump delivers
// the frame on its way out so the socket only ever has one writer.
func (c *connection) closeWith(code int, reason string) {
	c.closeMu.Lock()
	if c.closeMsg == nil {
		c.closeMsg = websocket.FormatCloseMessage(code, reason)
	}
	c.closeMu.Unlock()
	c.stop()
}

func (c *connection) readPump() {
	defer c.shutdown()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.log.Warn("websocket read failed", zap.Error(err))
			}
			return
		}

		var cmd dispatch.Command
		if err := json.Unmarshal(raw, &cmd); err != nil {
			c.reply(malformedEnvelope())
			continue
		}
		// The socket is bound to its session; envelopes cannot address
		// another one.
		cmd.Code = c.code

		// Deliberately not tied to the connection: a disconnect must not
		// cancel a command already accepted by the session.
		c.reply(c.gw.dispatcher.Handle(context.Background(), cmd))
	}
}

func (c *connection) reply(resp dispatch.Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		c.log.Error("marshal response", zap.Error(err))
		return
	}
	select {
	case c.send <- data:
	case <-c.done:
	}
}

func (c *connection) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.shutdown()
	}()

	for {
		select {
		case msg := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			c.closeMu.Lock()
			msg := c.closeMsg
			c.closeMu.Unlock()
			if msg != nil {
				c.ws.SetWriteDeadline(time.Now().Add(writeWait))
				c.ws.WriteMessage(websocket.CloseMessage, msg)
			}
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
