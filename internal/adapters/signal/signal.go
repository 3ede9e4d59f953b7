package signal

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/dkeye/Pairwise/internal/app"
	"github.com/dkeye/Pairwise/internal/app/orch"
	"github.com/dkeye/Pairwise/internal/core"
	"github.com/dkeye/Pairwise/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

const sendQueueSize = 64

type Options struct {
	ReadLimit      int64
	PingPeriod     time.Duration
	AllowedOrigins []string
}

type SignalWSController struct {
	Orch     *orch.Orchestrator
	Limiter  *ConnectLimiter
	opts     Options
	upgrader websocket.Upgrader
}

func NewSignalWSController(o *orch.Orchestrator, limiter *ConnectLimiter, opts Options) *SignalWSController {
	if opts.PingPeriod <= 0 {
		opts.PingPeriod = 54 * time.Second
	}
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = 32768
	}
	ctl := &SignalWSController{Orch: o, Limiter: limiter, opts: opts}
	ctl.upgrader = websocket.Upgrader{CheckOrigin: ctl.checkOrigin}
	return ctl
}

// checkOrigin accepts everything unless an allow list is configured.
func (ctl *SignalWSController) checkOrigin(r *http.Request) bool {
	if len(ctl.opts.AllowedOrigins) == 0 || slices.Contains(ctl.opts.AllowedOrigins, "*") {
		return true
	}
	return slices.Contains(ctl.opts.AllowedOrigins, r.Header.Get("Origin"))
}

type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu          sync.RWMutex
	closed      bool
	closeCode   int
	closeReason string
}

func newWsSignalConn(ws *websocket.Conn) *WsSignalConn {
	return &WsSignalConn{
		conn: ws,
		send: make(chan core.Frame, sendQueueSize),
	}
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

// CloseWith stops accepting frames. The write pump flushes what is queued,
// then sends a close frame with code and reason.
func (c *WsSignalConn) CloseWith(code int, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.closeCode = code
	c.closeReason = reason
	close(c.send)
}

func (c *WsSignalConn) Close() {
	c.CloseWith(websocket.CloseNormalClosure, "")
}

func (c *WsSignalConn) closeFrame() []byte {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return websocket.FormatCloseMessage(c.closeCode, c.closeReason)
}

// HandleSignal upgrades the request and hands the connection to room. The
// read pump only starts once the room admitted the session; a rejected
// connection still gets its room_full notice through the write pump.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context, room domain.RoomID) {
	token := c.GetString("client_token")
	if ctl.Limiter != nil && !ctl.Limiter.Allow(token) {
		log.Warn().Str("module", "signal").Str("client", token).Str("room", string(room)).Msg("connect rate limited")
		c.JSON(http.StatusTooManyRequests, gin.H{"message": "too many connection attempts", "data": nil})
		return
	}

	ws, err := ctl.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	sid := core.SessionID(uuid.NewString())
	conn := newWsSignalConn(ws)
	sess := core.NewMemberSession(sid, domain.NewMember(token), conn)
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("client", token).Str("room", string(room)).Msg("new WS connection")

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, cancel, sid, conn)

	if err := ctl.Orch.Join(room, sess, cancel); err != nil {
		if errors.Is(err, app.ErrRoomStopped) {
			conn.CloseWith(websocket.CloseGoingAway, "Server shutting down")
		}
		return
	}
	go ctl.readPump(ctx, sid, conn)
}
