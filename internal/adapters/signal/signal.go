package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/deathboy20/stream-server/internal/app"
	"github.com/deathboy20/stream-server/internal/core"
	"github.com/deathboy20/stream-server/internal/domain"
	"github.com/deathboy20/stream-server/internal/protocol"
)

var ErrBackpressure = errors.New("backpressure")

type SignalWSController struct {
	Orch    *app.Orchestrator
	Limiter *JoinRateLimiter
}

func NewSignalWSController(orch *app.Orchestrator, limiter *JoinRateLimiter) *SignalWSController {
	return &SignalWSController{
		Orch:    orch,
		Limiter: limiter,
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

func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	connID := core.ConnectionID(uuid.NewString())
	log.Info().Str("module", "signal").Str("conn", string(connID)).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Msg("ws upgrade")
		return
	}

	conn := &WsSignalConn{
		conn: ws,
		send: make(chan core.Frame, 32),
	}

	ctl.Orch.Connect(connID, conn)
	ctx, cancel := context.WithCancel(ctx)

	go ctl.writePump(ctx, conn)
	go func() {
		defer cancel()
		ctl.readPump(ctx, connID, conn)
		ctl.Orch.Disconnect(context.Background(), connID)
		if ctl.Limiter != nil {
			ctl.Limiter.Forget(connID)
		}
	}()
}

func errCode(err error) string {
	switch {
	case errors.Is(err, core.ErrNotFound):
		return "not_found"
	case errors.Is(err, core.ErrAmbiguousID):
		return "ambiguous_session_id"
	case errors.Is(err, core.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, core.ErrResourceBusy):
		return "resource_busy"
	case errors.Is(err, core.ErrInvalidToken):
		return "invalid_token"
	case errors.Is(err, core.ErrCapacity):
		return "capacity"
	case errors.Is(err, core.ErrInactive):
		return "session_inactive"
	case errors.Is(err, domain.ErrTitleTooLong), errors.Is(err, domain.ErrNameTooLong), errors.Is(err, domain.ErrNameEmpty):
		return "invalid_argument"
	default:
		return "internal"
	}
}

func (ctl *SignalWSController) sendError(c *WsSignalConn, err error) {
	ctl.sendJSON(c, protocol.ErrorEvent{
		Type:  protocol.TypeError,
		Code:  errCode(err),
		Error: err.Error(),
	})
}
