package signal

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"

	"github.com/dkeye/Dispatch/internal/app/orch"
	"github.com/dkeye/Dispatch/internal/config"
	"github.com/dkeye/Dispatch/internal/core"
	"github.com/dkeye/Dispatch/internal/domain"
)

// AuthSubjectKey is the gin context key holding the handshake identity.
const AuthSubjectKey = "auth_subject"

// Options tune the per-connection transport.
type Options struct {
	ReadLimit         int64
	PingPeriod        time.Duration
	PongWait          time.Duration
	WriteTimeout      time.Duration
	SendBuffer        int
	MessagesPerSecond float64
	Burst             int
	InitiateLimit     int
	InitiateWindow    time.Duration
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		ReadLimit:         cfg.WS.ReadLimit,
		PingPeriod:        cfg.WS.PingPeriod,
		PongWait:          cfg.WS.PongWait(),
		WriteTimeout:      cfg.WS.WriteTimeout,
		SendBuffer:        cfg.WS.SendBuffer,
		MessagesPerSecond: cfg.WS.MessagesPerSecond,
		Burst:             cfg.WS.Burst,
		InitiateLimit:     cfg.Calls.InitiateLimit,
		InitiateWindow:    cfg.Calls.InitiateWindow,
	}
}

type SignalWSController struct {
	Orch *orch.Orchestrator

	opts      Options
	validate  *validator.Validate
	initiates *CallRateLimiter
	upgrader  websocket.Upgrader
	pumps     conc.WaitGroup
}

func NewSignalWSController(o *orch.Orchestrator, opts Options) *SignalWSController {
	ctl := &SignalWSController{
		Orch:     o,
		opts:     opts,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	if opts.InitiateLimit > 0 && opts.InitiateWindow > 0 {
		ctl.initiates = NewCallRateLimiter(opts.InitiateLimit, opts.InitiateWindow)
	}
	return ctl
}

// Wait blocks until every pump goroutine has exited.
func (ctl *SignalWSController) Wait() {
	ctl.pumps.Wait()
}

// WsSignalConn is the outbound half of one socket. Frames go through a
// bounded queue drained by writePump.
type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	// subject is the identity proven at handshake, if any.
	subject domain.UserID

	mu     sync.RWMutex
	closed bool
}

func newWsSignalConn(ws *websocket.Conn, buffer int) *WsSignalConn {
	return &WsSignalConn{
		conn: ws,
		send: make(chan core.Frame, buffer),
	}
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return core.ErrBackpressure
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

// HandleSignal upgrades the request and starts the pumps. The connection
// lives until the socket fails or ctx is cancelled.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	id := core.ConnID(uuid.NewString())
	token := c.GetString("client_token")
	logger := log.With().Str("module", "signal").Str("conn", string(id)).Logger()

	ws, err := ctl.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Error().Err(err).Msg("ws upgrade")
		return
	}

	conn := newWsSignalConn(ws, ctl.opts.SendBuffer)
	conn.subject = domain.UserID(c.GetString(AuthSubjectKey))

	if err := ctl.Orch.Connect(id, conn, token); err != nil {
		logger.Warn().Err(err).Msg("hub not accepting connections")
		conn.Close()
		return
	}
	logger.Info().Str("client_token", token).Msg("new WS connection")

	ctx, cancel := context.WithCancel(ctx)
	ctl.pumps.Go(func() { ctl.writePump(ctx, id, conn) })
	ctl.pumps.Go(func() { ctl.readPump(ctx, cancel, id, conn) })
}
