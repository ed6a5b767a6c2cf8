// Package signal implements the per-connection signaling protocol: a
// type-tagged JSON message dispatcher that mediates between one
// websocket and the room a peer belongs to.
package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/classcast/classcast/internal/app"
	"github.com/classcast/classcast/internal/config"
	"github.com/classcast/classcast/internal/core"
	"github.com/classcast/classcast/internal/domain"
)

var ErrBackpressure = errors.New("backpressure")

type Controller struct {
	Rooms    *app.RoomRegistry
	Sessions *app.Registry
	Joins    *app.JoinLimiter

	timeout   time.Duration
	readLimit int64
}

func NewController(rooms *app.RoomRegistry, sessions *app.Registry, cfg *config.Config) *Controller {
	return &Controller{
		Rooms:     rooms,
		Sessions:  sessions,
		Joins:     app.NewJoinLimiter(cfg.JoinRateLimit, cfg.JoinRateInterval),
		timeout:   cfg.EngineCallTimeout,
		readLimit: cfg.ReadLimit,
	}
}

type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
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

func (c *WsSignalConn) Close() {
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

func (ctl *Controller) HandleSignal(ctx context.Context, c *gin.Context) {
	sid := core.SessionID(c.GetString("client_token"))
	log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	if ctl.readLimit > 0 {
		ws.SetReadLimit(ctl.readLimit)
	}

	conn := &WsSignalConn{
		conn: ws,
		send: make(chan core.Frame, 32),
	}

	ctx, cancel := context.WithCancel(ctx)
	ctl.Sessions.Bind(sid, conn, cancel)

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, sid, conn)
}

// resolve maps the caller back to its (room, peer) pair. A false result
// means the session already ended; handlers treat that as a silent
// no-op rather than an error to a party that no longer cares.
func (ctl *Controller) resolve(sid core.SessionID) (*core.Room, domain.PeerID, bool) {
	peerID, roomID, ok := ctl.Sessions.Session(sid)
	if !ok {
		return nil, "", false
	}
	room, ok := ctl.Rooms.Get(roomID)
	if !ok {
		return nil, "", false
	}
	return room, peerID, true
}
