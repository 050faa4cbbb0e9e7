package websocket

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/pscheid92/buildnotify/internal/domain"
)

const (
	defaultWriteTimeout = 5 * time.Second
	defaultPingInterval = 30 * time.Second
	messageBufferSize   = 16
	maxInboundBytes     = 4096
)

// Options tunes keepalive and write behaviour. Zero values take defaults.
type Options struct {
	WriteTimeout time.Duration
	PingInterval time.Duration
	Clock        clockwork.Clock
}

func (o Options) withDefaults() Options {
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = defaultWriteTimeout
	}
	if o.PingInterval <= 0 {
		o.PingInterval = defaultPingInterval
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	return o
}

// pongTimeout is how long the peer may stay silent before the read side gives up.
func (o Options) pongTimeout() time.Duration {
	return 2 * o.PingInterval
}

// Conn is one browser tab connected over WebSocket. All writes happen on its
// writer goroutine; SendText only enqueues.
type Conn struct {
	id     domain.ConnectionID
	socket *websocket.Conn
	opts   Options

	sendChannel chan []byte
	doneChannel chan struct{}
	open        atomic.Bool
	stopOnce    sync.Once
	wg          sync.WaitGroup
}

var _ domain.Connection = (*Conn)(nil)

func newConn(socket *websocket.Conn, opts Options) *Conn {
	c := &Conn{
		id:          domain.ConnectionID(uuid.NewString()),
		socket:      socket,
		opts:        opts,
		sendChannel: make(chan []byte, messageBufferSize),
		doneChannel: make(chan struct{}),
	}
	c.open.Store(true)
	c.socket.SetReadLimit(maxInboundBytes)
	c.configurePongHandler()
	c.wg.Add(1)
	go c.run()
	return c
}

func (c *Conn) ID() domain.ConnectionID { return c.id }

func (c *Conn) IsOpen() bool { return c.open.Load() }

// SendText queues payload for delivery. A client that cannot keep up with its
// buffer is disconnected rather than allowed to stall the broadcaster.
func (c *Conn) SendText(payload []byte) error {
	if !c.IsOpen() {
		return domain.ErrConnectionClosed
	}
	select {
	case c.sendChannel <- payload:
		return nil
	case <-c.doneChannel:
		return domain.ErrConnectionClosed
	default:
		slog.Warn("Slow WebSocket client disconnected", "connection_id", c.id)
		c.terminate()
		return domain.ErrSendBufferFull
	}
}

func (c *Conn) run() {
	ticker := c.opts.Clock.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()
	defer c.wg.Done()

	for {
		select {
		case msg := <-c.sendChannel:
			c.updateWriteDeadline()
			if err := c.socket.WriteMessage(websocket.TextMessage, msg); err != nil {
				slog.Debug("WebSocket write failed", "connection_id", c.id, "error", err)
				c.terminate()
				return
			}
		case <-ticker.Chan():
			c.updateWriteDeadline()
			if err := c.socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				slog.Debug("WebSocket ping failed", "connection_id", c.id, "error", err)
				c.terminate()
				return
			}
		case <-c.doneChannel:
			return
		}
	}
}

// terminate marks the connection closed and drops the socket without waiting
// for the writer. The read pump then fails and reports the disconnect.
func (c *Conn) terminate() {
	c.stopOnce.Do(func() {
		c.open.Store(false)
		close(c.doneChannel)
		_ = c.socket.Close()
	})
}

// Close stops the writer and closes the socket.
func (c *Conn) Close() {
	c.terminate()
	c.wg.Wait()
}

// CloseWithReason sends a close frame before closing the socket.
func (c *Conn) CloseWithReason(code int, reason string) {
	c.stopOnce.Do(func() {
		c.open.Store(false)
		close(c.doneChannel)

		// The writer must be gone before writing the close frame.
		c.wg.Wait()

		closeMsg := websocket.FormatCloseMessage(code, reason)
		c.updateWriteDeadline()
		_ = c.socket.WriteMessage(websocket.CloseMessage, closeMsg)
		_ = c.socket.Close()
	})
	c.wg.Wait()
}

func (c *Conn) configurePongHandler() {
	c.updateReadDeadline()
	c.socket.SetPongHandler(func(string) error {
		c.updateReadDeadline()
		return nil
	})
}

func (c *Conn) updateWriteDeadline() {
	_ = c.socket.SetWriteDeadline(c.opts.Clock.Now().Add(c.opts.WriteTimeout))
}

func (c *Conn) updateReadDeadline() {
	_ = c.socket.SetReadDeadline(c.opts.Clock.Now().Add(c.opts.pongTimeout()))
}
