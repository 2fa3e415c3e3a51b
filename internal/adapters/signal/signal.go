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

	"github.com/ventline/ventline/internal/app"
	"github.com/ventline/ventline/internal/config"
	"github.com/ventline/ventline/internal/core"
)

var ErrBackpressure = errors.New("backpressure")

// Controller bridges WebSocket connections to the orchestrator: one
// read/write pump pair per connection, cleanup exactly once on any exit.
type Controller struct {
	Cfg     *config.Config
	Orch    *app.Orchestrator
	limiter *RateLimiter
}

func NewController(cfg *config.Config, orch *app.Orchestrator) *Controller {
	return &Controller{
		Cfg:     cfg,
		Orch:    orch,
		limiter: NewRateLimiter(cfg.RateLimit, cfg.RateInterval),
	}
}

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

// HandleWS upgrades the request and starts the connection's pumps. The
// session id is minted per socket: the browser cookie token identifies a
// browser, not a connection, and a reload or second tab must not be able
// to tear down the socket that replaced it. The connection is not
// registered until its first join event arrives.
func (ctl *Controller) HandleWS(ctx context.Context, c *gin.Context) {
	sid := core.SessionID(uuid.NewString())
	log.Info().Str("module", "signal").Str("sid", string(sid)).
		Str("client", c.GetString("client_token")).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Msg("ws upgrade")
		return
	}
	ws.SetReadLimit(ctl.Cfg.ReadLimit)

	conn := &wsConn{
		conn: ws,
		send: make(chan core.Frame, ctl.Cfg.SendBuffer),
	}

	ctx, cancel := context.WithCancel(ctx)

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, sid, conn)
}
