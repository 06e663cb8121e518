package ws

import (
	"context"
	"crypto/subtle"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/sweeney/telemetry-bridge/internal/hub"
)

// Defaults for Options fields left at zero.
const (
	DefaultMaxMessageSize = 64 << 10
	DefaultSendQueue      = 64
)

// Channel is the hub side of a websocket endpoint.
type Channel interface {
	Connect(c hub.Conn)
	Disconnect(c hub.Conn)
	Handle(ctx context.Context, c hub.Conn, frame []byte)
}

// Options configures a Handler.
type Options struct {
	// AllowedOrigins restricts browser origins; empty or "*" allows all.
	AllowedOrigins []string
	// Token, when set, must be presented as a Bearer header or ?token=.
	Token          string
	MaxMessageSize int64
	SendQueue      int
	Logger         *zap.SugaredLogger
}

// Handler upgrades requests and pumps frames between a socket and a Channel.
type Handler struct {
	ch       Channel
	upgrader websocket.Upgrader
	opts     Options
	log      *zap.SugaredLogger
}

// NewHandler returns an http.Handler serving ch.
func NewHandler(ch Channel, opts Options) *Handler {
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = DefaultMaxMessageSize
	}
	if opts.SendQueue <= 0 {
		opts.SendQueue = DefaultSendQueue
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Handler{
		ch:       ch,
		upgrader: makeUpgrader(opts.AllowedOrigins),
		opts:     opts,
		log:      log.Named("ws"),
	}
}

func makeUpgrader(allowedOrigins []string) websocket.Upgrader {
	allowAll := len(allowedOrigins) == 0 || (len(allowedOrigins) == 1 && allowedOrigins[0] == "*")
	originSet := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		originSet[o] = true
	}

	return websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if allowAll {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true // non-browser clients
			}
			return originSet[origin]
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		h.log.Warnw("unauthorized websocket request", "remote", r.RemoteAddr)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	sock, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnw("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	c := newConn(uuid.New().String(), isLoopback(r.RemoteAddr), sock, h.opts.SendQueue, h.log)
	h.ch.Connect(c)
	go c.writePump()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.readPump(ctx, c)

	h.ch.Disconnect(c)
	c.Close()
}

func (h *Handler) readPump(ctx context.Context, c *Conn) {
	c.ws.SetReadLimit(h.opts.MaxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Debugw("read failed", "conn", c.id, "error", err)
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		h.ch.Handle(ctx, c, frame)
	}
}

func (h *Handler) authorized(r *http.Request) bool {
	if h.opts.Token == "" {
		return true
	}
	tok := r.URL.Query().Get("token")
	if tok == "" {
		tok = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}
	return subtle.ConstantTimeCompare([]byte(tok), []byte(h.opts.Token)) == 1
}

func isLoopback(remote string) bool {
	host, _, err := net.SplitHostPort(remote)
	if err != nil {
		host = remote
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
