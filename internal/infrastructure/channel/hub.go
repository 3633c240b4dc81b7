package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/delegation-hub/delegation-hub/internal/application/dispatch"
	"github.com/delegation-hub/delegation-hub/internal/infrastructure/metrics"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 45 * time.Second
)

// Hub is the websocket command channel. Each robot holds at most one
// connection; commands are pushed down it and replies are correlated back
// to the waiting dispatch by subtask id. A re-attaching robot replaces its
// previous connection.
type Hub struct {
	upgrader websocket.Upgrader
	metrics  *metrics.Metrics
	logger   zerolog.Logger

	mu      sync.RWMutex
	conns   map[string]*connection
	pending map[uuid.UUID]chan dispatch.Reply
}

type connection struct {
	robotID string
	ws      *websocket.Conn
	send    chan dispatch.Command
	closed  chan struct{}
	once    sync.Once
}

func NewHub(m *metrics.Metrics, logger zerolog.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		metrics: m,
		logger:  logger.With().Str("service", "channel").Logger(),
		conns:   make(map[string]*connection),
		pending: make(map[uuid.UUID]chan dispatch.Reply),
	}
}

// Attach upgrades the request to a websocket and registers it as the
// robot's command channel. Blocks until the connection drops. The caller
// authenticates the robot before attaching.
func (h *Hub) Attach(w http.ResponseWriter, r *http.Request, robotID string) error {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	conn := &connection{
		robotID: robotID,
		ws:      ws,
		send:    make(chan dispatch.Command, 16),
		closed:  make(chan struct{}),
	}

	h.mu.Lock()
	if prev, ok := h.conns[robotID]; ok {
		prev.close()
	}
	h.conns[robotID] = conn
	h.mu.Unlock()
	h.metrics.RobotsConnected.Inc()
	h.logger.Info().Str("robot_id", robotID).Msg("robot attached")

	go h.writePump(conn)
	h.readPump(conn)

	h.mu.Lock()
	if h.conns[robotID] == conn {
		delete(h.conns, robotID)
	}
	h.mu.Unlock()
	h.metrics.RobotsConnected.Dec()
	h.logger.Info().Str("robot_id", robotID).Msg("robot detached")
	return nil
}

// Send delivers a command to its robot and blocks until a terminal reply
// arrives, the connection drops, or the context expires. Intermediate ack
// replies keep the wait alive.
func (h *Hub) Send(ctx context.Context, cmd dispatch.Command) (dispatch.Reply, error) {
	h.mu.RLock()
	conn, ok := h.conns[cmd.RobotID]
	h.mu.RUnlock()
	if !ok {
		return dispatch.Reply{}, fmt.Errorf("%w: %s", dispatch.ErrRobotOffline, cmd.RobotID)
	}

	replies := make(chan dispatch.Reply, 1)
	h.mu.Lock()
	h.pending[cmd.SubtaskID] = replies
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.pending, cmd.SubtaskID)
		h.mu.Unlock()
	}()

	select {
	case conn.send <- cmd:
	case <-conn.closed:
		return dispatch.Reply{}, fmt.Errorf("%w: %s", dispatch.ErrRobotOffline, cmd.RobotID)
	case <-ctx.Done():
		return dispatch.Reply{}, ctx.Err()
	}

	select {
	case reply := <-replies:
		return reply, nil
	case <-conn.closed:
		return dispatch.Reply{}, fmt.Errorf("%w: %s dropped mid-command", dispatch.ErrRobotOffline, cmd.RobotID)
	case <-ctx.Done():
		return dispatch.Reply{}, ctx.Err()
	}
}

func (h *Hub) readPump(conn *connection) {
	defer conn.close()
	conn.ws.SetReadLimit(4096)
	_ = conn.ws.SetReadDeadline(time.Now().Add(pongWait))
	conn.ws.SetPongHandler(func(string) error {
		return conn.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ws.ReadMessage()
		if err != nil {
			return
		}
		var reply dispatch.Reply
		if err := json.Unmarshal(data, &reply); err != nil {
			h.logger.Warn().Err(err).Str("robot_id", conn.robotID).Msg("unparseable reply dropped")
			continue
		}
		if reply.Status == dispatch.ReplyAck {
			h.logger.Debug().
				Str("robot_id", conn.robotID).
				Str("subtask_id", reply.SubtaskID.String()).
				Msg("command acknowledged")
			continue
		}
		h.mu.RLock()
		waiter, ok := h.pending[reply.SubtaskID]
		h.mu.RUnlock()
		if !ok {
			h.logger.Warn().
				Str("robot_id", conn.robotID).
				Str("subtask_id", reply.SubtaskID.String()).
				Msg("reply for unknown subtask dropped")
			continue
		}
		select {
		case waiter <- reply:
		default:
		}
	}
}

func (h *Hub) writePump(conn *connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.close()
	}()

	for {
		select {
		case cmd := <-conn.send:
			_ = conn.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.ws.WriteJSON(cmd); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-conn.closed:
			return
		}
	}
}

// Connected reports whether a robot currently holds a command channel.
func (h *Hub) Connected(robotID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.conns[robotID]
	return ok
}

func (c *connection) close() {
	c.once.Do(func() {
		close(c.closed)
		_ = c.ws.Close()
	})
}
