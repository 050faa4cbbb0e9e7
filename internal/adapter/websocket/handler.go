package websocket

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/pscheid92/buildnotify/internal/adapter/metrics"
	"github.com/pscheid92/buildnotify/internal/domain"
	"github.com/pscheid92/buildnotify/internal/lifecycle"
	"github.com/pscheid92/buildnotify/internal/platform/correlation"
)

const transportName = "websocket"

// Dispatcher receives lifecycle events from the transport.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev lifecycle.Event) error
}

// Handler upgrades requests to WebSocket connections and reports their lifecycle.
// Credentials must already be on the request context.
type Handler struct {
	dispatcher Dispatcher
	upgrader   websocket.Upgrader
	opts       Options
	metrics    *metrics.ConnectionMetrics

	mu    sync.Mutex
	conns map[*Conn]struct{}
}

// NewHandler creates the WebSocket transport. m may be nil.
func NewHandler(dispatcher Dispatcher, checkOrigin func(*http.Request) bool, opts Options, m *metrics.ConnectionMetrics) *Handler {
	return &Handler{
		dispatcher: dispatcher,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		opts:    opts.withDefaults(),
		metrics: m,
		conns:   make(map[*Conn]struct{}),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	socket, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.DebugContext(r.Context(), "WebSocket upgrade failed", "error", err)
		return
	}

	// The request context ends with the handler; keep its values only.
	conn := newConn(socket, h.opts)
	ctx := correlation.WithAttrs(context.WithoutCancel(r.Context()),
		slog.String("transport", transportName), slog.String("connection_id", string(conn.ID())))

	if err := h.dispatcher.Dispatch(ctx, lifecycle.Event{Kind: lifecycle.EventOpen, Conn: conn}); err != nil {
		conn.CloseWithReason(closeCodeFor(err), closeReasonFor(err))
		return
	}

	h.track(conn)
	defer h.untrack(conn)

	h.readPump(ctx, conn)

	_ = h.dispatcher.Dispatch(ctx, lifecycle.Event{Kind: lifecycle.EventDisconnect, Conn: conn})
	conn.Close()
}

func (h *Handler) readPump(ctx context.Context, conn *Conn) {
	for {
		_, payload, err := conn.socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				slog.DebugContext(ctx, "WebSocket read failed", "error", err)
			}
			return
		}
		conn.updateReadDeadline()
		_ = h.dispatcher.Dispatch(ctx, lifecycle.Event{Kind: lifecycle.EventMessage, Conn: conn, Payload: payload})
	}
}

func (h *Handler) track(conn *Conn) {
	h.mu.Lock()
	h.conns[conn] = struct{}{}
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.ActiveConnections.WithLabelValues(transportName).Inc()
	}
}

func (h *Handler) untrack(conn *Conn) {
	h.mu.Lock()
	delete(h.conns, conn)
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.ActiveConnections.WithLabelValues(transportName).Dec()
	}
}

// count returns the number of open WebSocket connections on this instance.
func (h *Handler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// CloseAll tells every client the server is going away. Their read pumps then
// dispatch the disconnects.
func (h *Handler) CloseAll() {
	h.mu.Lock()
	conns := make([]*Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		c.CloseWithReason(websocket.CloseGoingAway, "server shutting down")
	}
	slog.Info("WebSocket connections closed", "count", len(conns))
}

func closeCodeFor(err error) int {
	if errors.Is(err, domain.ErrTooManyConnections) {
		return websocket.CloseTryAgainLater
	}
	return websocket.ClosePolicyViolation
}

func closeReasonFor(err error) string {
	switch {
	case errors.Is(err, domain.ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, domain.ErrTooManyConnections):
		return "too many connections"
	default:
		return "refused"
	}
}
