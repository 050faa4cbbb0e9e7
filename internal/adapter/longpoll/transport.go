// Package longpoll is the fallback transport for browsers that cannot hold a
// WebSocket open. Every poll is a new connection handle: the first poll opens,
// each later poll resumes (previous poll delivered data) or times out (previous
// poll went idle) the handle named by its cid parameter.
package longpoll

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/pscheid92/buildnotify/internal/adapter/metrics"
	"github.com/pscheid92/buildnotify/internal/domain"
	"github.com/pscheid92/buildnotify/internal/lifecycle"
	"github.com/pscheid92/buildnotify/internal/platform/correlation"
)

const (
	transportName = "longpoll"

	// ConnectionIDHeader names the handle the client must send back as cid.
	ConnectionIDHeader = "X-Connection-ID"

	defaultIdleTimeout = 30 * time.Second
	defaultResumeGrace = 60 * time.Second
)

type Dispatcher interface {
	Dispatch(ctx context.Context, ev lifecycle.Event) error
}

type Options struct {
	IdleTimeout time.Duration
	ResumeGrace time.Duration
	Clock       clockwork.Clock
}

func (o Options) withDefaults() Options {
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = defaultIdleTimeout
	}
	if o.ResumeGrace <= 0 {
		o.ResumeGrace = defaultResumeGrace
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	return o
}

type endReason int

const (
	endedDelivered endReason = iota
	endedIdle
)

// endedPoll is a handle whose response was written and which waits for the
// client's next poll.
type endedPoll struct {
	conn   *pollConn
	reason endReason
	at     time.Time
}

type Transport struct {
	dispatcher Dispatcher
	opts       Options
	metrics    *metrics.ConnectionMetrics

	mu     sync.Mutex
	active map[domain.ConnectionID]*pollConn
	ended  map[domain.ConnectionID]endedPoll
}

// NewTransport creates the long-poll transport. m may be nil.
func NewTransport(dispatcher Dispatcher, opts Options, m *metrics.ConnectionMetrics) *Transport {
	return &Transport{
		dispatcher: dispatcher,
		opts:       opts.withDefaults(),
		metrics:    m,
		active:     make(map[domain.ConnectionID]*pollConn),
		ended:      make(map[domain.ConnectionID]endedPoll),
	}
}

func (t *Transport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn := newPollConn()
	ctx := correlation.WithAttrs(context.WithoutCancel(r.Context()),
		slog.String("transport", transportName), slog.String("connection_id", string(conn.ID())))

	ev := lifecycle.Event{Kind: lifecycle.EventOpen, Conn: conn}
	prev := domain.ConnectionID(r.URL.Query().Get("cid"))
	if prev != "" {
		ev.Kind = lifecycle.EventResume
		ev.CorrelationID = prev
		if t.endedIdle(prev) {
			ev.Kind = lifecycle.EventTimeout
		}
	}

	// The previous handle is only taken over once the resume is accepted, so a
	// refused request cannot close another client's handle.
	if err := t.dispatcher.Dispatch(ctx, ev); err != nil {
		http.Error(w, http.StatusText(statusFor(err)), statusFor(err))
		return
	}
	if p, ok := t.takeEnded(prev); ok {
		conn.preload(p.conn.close())
	}
	_ = t.dispatcher.Dispatch(ctx, lifecycle.Event{Kind: lifecycle.EventSuspend, Conn: conn})

	t.track(conn)
	defer t.untrack(conn)

	timer := t.opts.Clock.NewTimer(t.opts.IdleTimeout)
	defer timer.Stop()

	select {
	case <-conn.ready:
		t.respond(w, conn, endedDelivered, conn.take())
	case <-timer.Chan():
		t.respond(w, conn, endedIdle, conn.take())
	case <-r.Context().Done():
		conn.close()
		_ = t.dispatcher.Dispatch(ctx, lifecycle.Event{Kind: lifecycle.EventDisconnect, Conn: conn})
	case <-conn.closed:
		_ = t.dispatcher.Dispatch(ctx, lifecycle.Event{Kind: lifecycle.EventDisconnect, Conn: conn})
		w.WriteHeader(http.StatusServiceUnavailable)
	}
}

func (t *Transport) respond(w http.ResponseWriter, conn *pollConn, reason endReason, payloads [][]byte) {
	if len(payloads) > 0 {
		reason = endedDelivered
	}

	t.mu.Lock()
	t.ended[conn.ID()] = endedPoll{conn: conn, reason: reason, at: t.opts.Clock.Now()}
	t.mu.Unlock()

	w.Header().Set(ConnectionIDHeader, conn.ID().String())
	w.Header().Set("Cache-Control", "no-store")
	if len(payloads) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(append(bytes.Join(payloads, []byte("\n")), '\n'))
}

func (t *Transport) endedIdle(id domain.ConnectionID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.ended[id]
	return ok && p.reason == endedIdle
}

func (t *Transport) takeEnded(id domain.ConnectionID) (endedPoll, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.ended[id]
	if ok {
		delete(t.ended, id)
	}
	return p, ok
}

func (t *Transport) track(conn *pollConn) {
	t.mu.Lock()
	t.active[conn.ID()] = conn
	t.mu.Unlock()
	if t.metrics != nil {
		t.metrics.ActiveConnections.WithLabelValues(transportName).Inc()
	}
}

func (t *Transport) untrack(conn *pollConn) {
	t.mu.Lock()
	delete(t.active, conn.ID())
	t.mu.Unlock()
	if t.metrics != nil {
		t.metrics.ActiveConnections.WithLabelValues(transportName).Dec()
	}
}

// Run disconnects handles whose client did not poll again within the resume
// grace period. It blocks until ctx is cancelled.
func (t *Transport) Run(ctx context.Context) {
	ticker := t.opts.Clock.NewTicker(t.opts.ResumeGrace / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			t.sweep(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (t *Transport) sweep(ctx context.Context) {
	cutoff := t.opts.Clock.Now().Add(-t.opts.ResumeGrace)

	var expired []*pollConn
	t.mu.Lock()
	for id, p := range t.ended {
		if !p.at.After(cutoff) {
			expired = append(expired, p.conn)
			delete(t.ended, id)
		}
	}
	t.mu.Unlock()

	for _, conn := range expired {
		conn.close()
		_ = t.dispatcher.Dispatch(ctx, lifecycle.Event{Kind: lifecycle.EventDisconnect, Conn: conn})
	}
	if len(expired) > 0 {
		slog.DebugContext(ctx, "Abandoned long-poll connections disconnected", "count", len(expired))
	}
}

// CloseAll ends every pending poll and forgets handles awaiting their next poll.
func (t *Transport) CloseAll(ctx context.Context) {
	t.mu.Lock()
	conns := make([]*pollConn, 0, len(t.active)+len(t.ended))
	for _, c := range t.active {
		conns = append(conns, c)
	}
	for id, p := range t.ended {
		conns = append(conns, p.conn)
		delete(t.ended, id)
	}
	t.mu.Unlock()

	for _, c := range conns {
		c.close()
		_ = t.dispatcher.Dispatch(ctx, lifecycle.Event{Kind: lifecycle.EventDisconnect, Conn: c})
	}
	slog.Info("Long-poll connections closed", "count", len(conns))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrIdentityMismatch):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrTooManyConnections):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
