// Package ws carries both bridge channels over websockets.
package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/sweeney/telemetry-bridge/internal/protocol"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var (
	// ErrSlowConsumer is returned by Send when the peer's queue is full.
	// The connection is closed.
	ErrSlowConsumer = errors.New("ws: send queue full")

	// ErrClosed is returned by Send after Close.
	ErrClosed = errors.New("ws: connection closed")
)

// Conn is one websocket peer. Send and Close never block, so the hub can
// call them while holding its lock.
type Conn struct {
	id    string
	local bool
	ws    *websocket.Conn
	log   *zap.SugaredLogger

	mu     sync.Mutex
	closed bool
	send   chan []byte
	done   chan struct{}
}

func newConn(id string, local bool, c *websocket.Conn, queue int, log *zap.SugaredLogger) *Conn {
	return &Conn{
		id:    id,
		local: local,
		ws:    c,
		log:   log,
		send:  make(chan []byte, queue),
		done:  make(chan struct{}),
	}
}

func (c *Conn) ID() string { return c.id }

// Local reports whether the peer connected from a loopback address.
func (c *Conn) Local() bool { return c.local }

// Send encodes msg and queues it for the write pump.
func (c *Conn) Send(msg protocol.Message) error {
	b, err := protocol.Encode(msg)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	select {
	case c.send <- b:
		c.mu.Unlock()
		return nil
	default:
	}
	c.mu.Unlock()

	c.Close()
	return ErrSlowConsumer
}

// Close asks the write pump to send a close frame and drop the socket.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.done)
	return nil
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
		c.ws.Close()
	}()

	for {
		select {
		case b := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, b); err != nil {
				c.log.Debugw("write failed", "conn", c.id, "error", err)
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.log.Debugw("ping failed", "conn", c.id, "error", err)
				return
			}
		case <-c.done:
			c.flush()
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

// flush writes whatever was queued before Close.
func (c *Conn) flush() {
	for {
		select {
		case b := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		default:
			return
		}
	}
}
