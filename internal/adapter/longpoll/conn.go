package longpoll

import (
	"sync"

	"github.com/google/uuid"

	"github.com/pscheid92/buildnotify/internal/domain"
)

const maxQueuedMessages = 16

// pollConn is one poll request's handle. It keeps buffering after its response
// is written so that nothing sent between two polls is lost; the next poll
// takes over the backlog on Resume.
type pollConn struct {
	id domain.ConnectionID

	mu     sync.Mutex
	open   bool
	queue  [][]byte
	ready  chan struct{}
	closed chan struct{}
}

var _ domain.Connection = (*pollConn)(nil)

func newPollConn() *pollConn {
	return &pollConn{
		id:     domain.ConnectionID(uuid.NewString()),
		open:   true,
		ready:  make(chan struct{}, 1),
		closed: make(chan struct{}),
	}
}

func (c *pollConn) ID() domain.ConnectionID { return c.id }

func (c *pollConn) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *pollConn) SendText(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.open {
		return domain.ErrConnectionClosed
	}
	if len(c.queue) >= maxQueuedMessages {
		return domain.ErrSendBufferFull
	}
	c.queue = append(c.queue, payload)

	select {
	case c.ready <- struct{}{}:
	default:
	}
	return nil
}

// take drains queued payloads and leaves the handle open.
func (c *pollConn) take() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.queue
	c.queue = nil
	return out
}

// preload seeds the queue with a predecessor's backlog.
func (c *pollConn) preload(backlog [][]byte) {
	if len(backlog) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queue = append(backlog, c.queue...)
	select {
	case c.ready <- struct{}{}:
	default:
	}
}

// close stops buffering and returns whatever was still queued.
func (c *pollConn) close() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.open {
		c.open = false
		close(c.closed)
	}
	out := c.queue
	c.queue = nil
	return out
}
