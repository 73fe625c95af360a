package wsrpc

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/mnehpets/rpcserve/jsonrpc"
)

const defaultWriteTimeout = 10 * time.Second

// Handler upgrades HTTP requests to websocket connections and serves
// JSON-RPC messages on them until the peer goes away.
type Handler struct {
	Engine   *jsonrpc.Engine
	Upgrader websocket.Upgrader
	Logger   zerolog.Logger

	// PingInterval enables keepalive pings; a peer that misses two
	// intervals is dropped. 0 disables pings.
	PingInterval time.Duration
	// WriteTimeout bounds each frame write.
	WriteTimeout time.Duration
	// MaxMessageSize bounds inbound frames in bytes (0 = unlimited).
	MaxMessageSize int64
	// MaxInFlight bounds the messages processed at once per connection
	// (0 = unbounded). Reading pauses while the limit is reached.
	MaxInFlight int
}

// Option configures a Handler.
type Option func(*Handler)

// WithCheckOrigin accepts a handshake only when allow reports true for its
// Origin header. Requests without an Origin header (non-browser clients) are
// always accepted.
func WithCheckOrigin(allow func(origin string) bool) Option {
	return func(h *Handler) {
		h.Upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || allow(origin)
		}
	}
}

// WithLogger sets the logger used when the request context carries none.
func WithLogger(l zerolog.Logger) Option {
	return func(h *Handler) { h.Logger = l }
}

// WithPingInterval sets Handler.PingInterval.
func WithPingInterval(d time.Duration) Option {
	return func(h *Handler) { h.PingInterval = d }
}

// WithMaxMessageSize sets Handler.MaxMessageSize.
func WithMaxMessageSize(n int64) Option {
	return func(h *Handler) { h.MaxMessageSize = n }
}

// WithMaxInFlight sets Handler.MaxInFlight.
func WithMaxInFlight(n int) Option {
	return func(h *Handler) { h.MaxInFlight = n }
}

// New creates a Handler for engine.
func New(engine *jsonrpc.Engine, opts ...Option) *Handler {
	h := &Handler{
		Engine:       engine,
		Logger:       zerolog.Nop(),
		WriteTimeout: defaultWriteTimeout,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := h.Logger
	if l := zerolog.Ctx(r.Context()); l.GetLevel() != zerolog.Disabled {
		log = *l
	}
	log = log.With().Str("ws_conn", uuid.NewString()).Logger()

	ws, err := h.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already answered the request.
		log.Debug().Err(err).Msg("wsrpc: upgrade failed")
		return
	}
	log.Debug().Str("remote", r.RemoteAddr).Msg("wsrpc: connected")

	c := &conn{ws: ws, writeTimeout: h.WriteTimeout}
	if c.writeTimeout <= 0 {
		c.writeTimeout = defaultWriteTimeout
	}
	if err := h.serve(log.WithContext(r.Context()), c); err != nil {
		log.Error().Err(err).Msg("wsrpc: connection aborted")
	}
	// A no-op when the peer or a fatal message already closed the connection.
	c.close(websocket.CloseNormalClosure, "")
	log.Debug().Msg("wsrpc: disconnected")
}

// serve runs the read loop. It returns when the peer disconnects, or with the
// first fatal error raised by a message.
func (h *Handler) serve(ctx context.Context, c *conn) error {
	log := zerolog.Ctx(ctx)
	if h.MaxMessageSize > 0 {
		c.ws.SetReadLimit(h.MaxMessageSize)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	if h.MaxInFlight > 0 {
		g.SetLimit(h.MaxInFlight)
	}

	// Closing the connection is the only way to interrupt ReadMessage.
	stop := context.AfterFunc(gctx, func() { c.ws.Close() })
	defer stop()

	if h.PingInterval > 0 {
		pongWait := 2 * h.PingInterval
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		c.ws.SetPongHandler(func(string) error {
			return c.ws.SetReadDeadline(time.Now().Add(pongWait))
		})
		go c.keepalive(gctx, h.PingInterval)
	}

	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			if gctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug().Err(err).Msg("wsrpc: read failed")
			}
			break
		}
		g.Go(func() error {
			return h.handle(gctx, c, kind, data)
		})
	}

	// Nobody is left to read the replies of in-flight messages.
	cancel()
	if err := g.Wait(); err != nil && !errors.Is(err, errPeerGone) {
		return err
	}
	return nil
}

var errPeerGone = errors.New("wsrpc: peer gone")

func (h *Handler) handle(ctx context.Context, c *conn, kind int, data []byte) error {
	binary := kind == websocket.BinaryMessage
	if binary {
		var err error
		if data, err = jsonrpc.CBORToJSON(data); err != nil {
			// Undecodable CBOR is a parse error, the same as undecodable JSON.
			data = nil
		}
	}

	out, err := h.Engine.Handle(ctx, data)
	if err != nil {
		c.close(websocket.CloseInternalServerErr, "internal error")
		return err
	}
	if out == nil {
		return nil
	}
	if binary {
		if out, err = jsonrpc.JSONToCBOR(out); err != nil {
			return err
		}
	}
	if err := c.write(kind, out); err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Msg("wsrpc: write failed")
		return errPeerGone
	}
	return nil
}

// conn serializes writes; gorilla connections allow one concurrent writer.
type conn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration
	mu           sync.Mutex
}

func (c *conn) write(kind int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	return c.ws.WriteMessage(kind, data)
}

func (c *conn) keepalive(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeTimeout)); err != nil {
				c.ws.Close()
				return
			}
		}
	}
}

func (c *conn) close(code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	c.ws.Close()
}
