// Package signal adapts the websocket transport to the room engine: one
// controller per server, one connection (and read/write pump pair) per client.
package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/gatherly/office/internal/app"
	"github.com/gatherly/office/internal/config"
	"github.com/gatherly/office/internal/core"
	"github.com/gatherly/office/internal/domain"
	"github.com/gatherly/office/internal/metrics"
)

var ErrBackpressure = errors.New("backpressure")

type Controller struct {
	Rooms   *app.RoomManager
	Cfg     *config.Config
	Metrics *metrics.Metrics
}

func NewController(rooms *app.RoomManager, cfg *config.Config, m *metrics.Metrics) *Controller {
	return &Controller{Rooms: rooms, Cfg: cfg, Metrics: m}
}

// wsConn wraps one websocket with a bounded send queue. TrySend never blocks;
// a full queue reports backpressure and lets the room decide to drop us.
type wsConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *wsConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *wsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleRoom upgrades the connection and starts the pumps. The client's first
// frame must be JOIN_ROOM; everything before that is rejected.
func (ctl *Controller) HandleRoom(ctx context.Context, c *gin.Context) {
	sid := domain.SessionID(c.GetString("client_token"))
	log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	if ctl.Cfg.ReadLimit > 0 {
		ws.SetReadLimit(ctl.Cfg.ReadLimit)
	}

	conn := &wsConn{
		conn: ws,
		send: make(chan core.Frame, 32),
	}

	if ctl.Metrics != nil {
		ctl.Metrics.ConnectedSessions.Inc()
	}

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, sid, conn)
}
