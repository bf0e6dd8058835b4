package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/talgya/frontline/internal/events"
	"github.com/talgya/frontline/internal/fault"
	"github.com/talgya/frontline/internal/social"
	"github.com/talgya/frontline/internal/territory"
)

// Config holds websocket tuning.
type Config struct {
	ActionsPerSecond float64       `yaml:"ws_actions_per_second"`
	Burst            int           `yaml:"ws_burst"`
	SendQueue        int           `yaml:"ws_send_queue"`
	WriteTimeout     time.Duration `yaml:"ws_write_timeout"`
	ReadTimeout      time.Duration `yaml:"ws_read_timeout"`
	MaxMessageBytes  int64         `yaml:"ws_max_message_bytes"`
}

// DefaultConfig returns the standard websocket tuning.
func DefaultConfig() Config {
	return Config{
		ActionsPerSecond: 5,
		Burst:            10,
		SendQueue:        64,
		WriteTimeout:     5 * time.Second,
		ReadTimeout:      60 * time.Second,
		MaxMessageBytes:  4096,
	}
}

// Territories is the territorial state the hub serves.
type Territories interface {
	Get(id territory.ID) (territory.Territory, bool)
	All() []territory.Territory
	ApplyAction(id territory.ID, faction social.FactionID, delta float64) (float64, error)
}

type client struct {
	conn    *websocket.Conn
	out     chan []byte
	limiter *rate.Limiter
	once    sync.Once
	done    chan struct{}
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// send queues b without blocking. A client whose queue is full is dropped.
func (c *client) send(b []byte) bool {
	if b == nil {
		return true
	}
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.out <- b:
		return true
	default:
		c.close()
		return false
	}
}

// Hub fans territorial events out to websocket clients and applies their
// influence actions.
type Hub struct {
	Now func() time.Time

	cfg      Config
	ts       Territories
	roster   social.Roster
	bus      *events.Bus
	sub      []events.SubID
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]struct{}
}

// NewHub subscribes a hub to the territorial events on bus.
func NewHub(cfg Config, bus *events.Bus, ts Territories, roster social.Roster) *Hub {
	h := &Hub{
		Now:    time.Now,
		cfg:    cfg,
		ts:     ts,
		roster: roster,
		bus:    bus,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
	if bus != nil {
		h.sub = append(h.sub,
			bus.Subscribe(events.TopicControlChanged, h.onControlChanged),
			bus.Subscribe(events.TopicContested, h.onContested),
			bus.Subscribe(events.TopicInfluenceChanged, h.onInfluenceChanged),
		)
	}
	return h
}

func (h *Hub) now() time.Time {
	return h.Now().UTC()
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close unsubscribes the hub and disconnects every client.
func (h *Hub) Close() {
	for _, id := range h.sub {
		h.bus.Unsubscribe(id)
	}
	h.sub = nil
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.close()
	}
}

func (h *Hub) broadcast(b []byte) {
	if b == nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.send(b) {
			slog.Debug("ws client dropped", "remote", c.conn.RemoteAddr())
		}
	}
}

func (h *Hub) name(id territory.ID) string {
	if t, ok := h.ts.Get(id); ok {
		return t.Name
	}
	return ""
}

func (h *Hub) onControlChanged(ev events.Event) {
	cc, ok := ev.(events.ControlChanged)
	if !ok {
		return
	}
	id := territory.ID(cc.Territory)
	h.broadcast(encode(ControlChanged{
		Type:                TypeControlChanged,
		TerritoryID:         id,
		TerritoryName:       h.name(id),
		ControllerFactionID: cc.New,
		ControllerName:      h.roster.Name(cc.New),
		Timestamp:           h.now(),
	}))
}

func (h *Hub) onContested(ev events.Event) {
	c, ok := ev.(events.Contested)
	if !ok {
		return
	}
	id := territory.ID(c.Territory)
	h.broadcast(encode(Contest{
		Type:          TypeContest,
		TerritoryID:   id,
		TerritoryName: h.name(id),
		Contested:     c.Contested,
		Timestamp:     h.now(),
	}))
}

func (h *Hub) onInfluenceChanged(ev events.Event) {
	ic, ok := ev.(events.InfluenceChanged)
	if !ok {
		return
	}
	if b := h.update(territory.ID(ic.Territory)); b != nil {
		h.broadcast(b)
	}
}

func (h *Hub) update(id territory.ID) []byte {
	t, ok := h.ts.Get(id)
	if !ok {
		return nil
	}
	return encode(TerritoryUpdate{Type: TypeTerritory, Territory: t.ToRecord(), Timestamp: h.now()})
}

func (h *Hub) initialState() []byte {
	all := h.ts.All()
	recs := make([]territory.Record, len(all))
	for i, t := range all {
		recs[i] = t.ToRecord()
	}
	return encode(InitialState{Type: TypeInitialState, Territories: recs, Timestamp: h.now()})
}

func (h *Hub) errorReply(err error) []byte {
	return encode(Error{Type: TypeError, Message: err.Error(), Timestamp: h.now()})
}

// Dispatch handles one client message and returns the direct reply, if
// any. Influence actions reply only on failure; their effects arrive as
// broadcasts.
func (h *Hub) Dispatch(msg []byte) []byte {
	typ, err := Validate(msg)
	if err != nil {
		return h.errorReply(err)
	}
	switch typ {
	case TypePing:
		return encode(Pong{Type: TypePong, Timestamp: h.now()})
	case TypeRequestUpdate:
		var req RequestUpdate
		if err := json.Unmarshal(msg, &req); err != nil {
			return h.errorReply(fmt.Errorf("decode request_update: %w", err))
		}
		if b := h.update(req.TerritoryID); b != nil {
			return b
		}
		return h.errorReply(fmt.Errorf("territory %d: %w", req.TerritoryID, fault.ErrNotFound))
	case TypeInfluenceAction:
		var act InfluenceAction
		if err := json.Unmarshal(msg, &act); err != nil {
			return h.errorReply(fmt.Errorf("decode influence_action: %w", err))
		}
		if _, err := h.ts.ApplyAction(act.TerritoryID, act.FactionID, act.InfluenceChange); err != nil {
			return h.errorReply(err)
		}
		return nil
	}
	return h.errorReply(fmt.Errorf("unsupported message type %q", typ))
}

// Handler upgrades a request to a websocket session.
func (h *Hub) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Debug("ws upgrade failed", "error", err)
			return
		}
		c := &client{
			conn:    conn,
			out:     make(chan []byte, max(h.cfg.SendQueue, 1)),
			limiter: rate.NewLimiter(rate.Limit(h.cfg.ActionsPerSecond), max(h.cfg.Burst, 1)),
			done:    make(chan struct{}),
		}
		if h.cfg.MaxMessageBytes > 0 {
			conn.SetReadLimit(h.cfg.MaxMessageBytes)
		}

		h.mu.Lock()
		h.clients[c] = struct{}{}
		h.mu.Unlock()
		slog.Info("ws client connected", "remote", conn.RemoteAddr(), "clients", h.Len())

		defer func() {
			h.mu.Lock()
			delete(h.clients, c)
			h.mu.Unlock()
			c.close()
			slog.Info("ws client disconnected", "remote", conn.RemoteAddr(), "clients", h.Len())
		}()

		c.send(h.initialState())
		go h.writeLoop(c)
		h.readLoop(c)
	}
}

func (h *Hub) writeLoop(c *client) {
	for {
		select {
		case <-c.done:
			return
		case b := <-c.out:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				c.close()
				return
			}
		}
	}
}

func (h *Hub) readLoop(c *client) {
	for {
		if h.cfg.ReadTimeout > 0 {
			_ = c.conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))
		}
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if !errors.Is(err, websocket.ErrCloseSent) && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("ws read ended", "error", err)
			}
			return
		}
		if !c.limiter.Allow() {
			c.send(h.errorReply(fmt.Errorf("%.0f actions per second: %w", h.cfg.ActionsPerSecond, fault.ErrOverLimit)))
			continue
		}
		if reply := h.Dispatch(msg); reply != nil {
			c.send(reply)
		}
	}
}
