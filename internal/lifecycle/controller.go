// Package lifecycle turns raw transport events into registry updates.
//
// Each physical connection moves Pending -> Open <-> Suspended -> Closed. A
// Resume or Timeout never mutates an existing entry: the connection it names is
// removed and the new handle is opened from scratch.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pscheid92/buildnotify/internal/adapter/metrics"
	"github.com/pscheid92/buildnotify/internal/domain"
)

// Registry is the write side of the connection registry.
type Registry interface {
	Add(user domain.UserID, conn domain.Connection)
	Remove(user domain.UserID, id domain.ConnectionID)
	Clear()
}

type session struct {
	user  domain.UserID
	state State
}

// Controller owns the per-connection side-table mapping connections to users.
// Safe for concurrent use.
type Controller struct {
	registry   Registry
	metrics    *metrics.ConnectionMetrics
	maxPerUser int

	mu       sync.Mutex
	sessions map[domain.ConnectionID]*session
	perUser  map[domain.UserID]int // tracked sessions per user, backs the cap
}

// NewController creates a controller. maxPerUser <= 0 disables the per-user cap.
// m may be nil.
func NewController(registry Registry, maxPerUser int, m *metrics.ConnectionMetrics) *Controller {
	return &Controller{
		registry:   registry,
		metrics:    m,
		maxPerUser: maxPerUser,
		sessions:   make(map[domain.ConnectionID]*session),
		perUser:    make(map[domain.UserID]int),
	}
}

// Dispatch applies one transport event. A non-nil error from Open, Resume or
// Timeout means the handle was refused and the transport must close it.
// Suspend, Message and Disconnect never fail.
func (c *Controller) Dispatch(ctx context.Context, ev Event) error {
	if c.metrics != nil {
		c.metrics.LifecycleEvents.WithLabelValues(ev.Kind.String()).Inc()
	}

	switch ev.Kind {
	case EventOpen:
		return c.refused(c.open(ctx, ev.Conn))
	case EventResume, EventTimeout:
		return c.refused(c.restore(ctx, ev))
	case EventSuspend:
		c.suspend(ev.Conn.ID())
		return nil
	case EventMessage:
		slog.DebugContext(ctx, "Ignoring inbound message", "connection_id", ev.Conn.ID(), "bytes", len(ev.Payload))
		return nil
	case EventDisconnect:
		c.disconnect(ev.Conn.ID())
		return nil
	default:
		return fmt.Errorf("unknown lifecycle event %d", ev.Kind)
	}
}

func (c *Controller) refused(err error) error {
	if err == nil || c.metrics == nil {
		return err
	}
	reason := "other"
	switch {
	case errors.Is(err, domain.ErrUnauthenticated):
		reason = "unauthenticated"
	case errors.Is(err, domain.ErrTooManyConnections):
		reason = "limit"
	case errors.Is(err, domain.ErrIdentityMismatch):
		reason = "identity_mismatch"
	}
	c.metrics.RefusedOpens.WithLabelValues(reason).Inc()
	return err
}

func (c *Controller) open(ctx context.Context, conn domain.Connection) error {
	creds, ok := CredentialsFrom(ctx)
	if !ok {
		slog.ErrorContext(ctx, "Connection opened without an authenticated user", "connection_id", conn.ID())
		return domain.ErrUnauthenticated
	}

	c.mu.Lock()
	admitted, err := c.admitLocked(creds.UserID, conn.ID())
	c.mu.Unlock()

	return c.register(ctx, creds.UserID, conn, admitted, err)
}

// restore replaces the connection named by the event's correlation id with the
// event's handle. The original is left alone unless the caller proves to be
// its owner.
func (c *Controller) restore(ctx context.Context, ev Event) error {
	creds, ok := CredentialsFrom(ctx)
	if !ok {
		slog.ErrorContext(ctx, "Connection resumed without an authenticated user",
			"original_connection_id", ev.CorrelationID, "connection_id", ev.Conn.ID())
		return domain.ErrUnauthenticated
	}
	user := creds.UserID

	c.mu.Lock()
	orig, found := c.sessions[ev.CorrelationID]
	if found && orig.user != user {
		c.mu.Unlock()
		slog.WarnContext(ctx, "Resumed connection belongs to a different user",
			"original_user_id", orig.user, "user_id", user, "original_connection_id", ev.CorrelationID)
		return domain.ErrIdentityMismatch
	}
	if found {
		c.releaseLocked(ev.CorrelationID)
	}
	admitted, err := c.admitLocked(user, ev.Conn.ID())
	c.mu.Unlock()

	if found {
		c.registry.Remove(orig.user, ev.CorrelationID)
	} else {
		slog.WarnContext(ctx, "Original connection not found, opening as new",
			"event", ev.Kind.String(), "original_connection_id", ev.CorrelationID, "connection_id", ev.Conn.ID())
	}
	return c.register(ctx, user, ev.Conn, admitted, err)
}

func (c *Controller) register(ctx context.Context, user domain.UserID, conn domain.Connection, admitted bool, err error) error {
	if err != nil {
		slog.WarnContext(ctx, "Connection limit reached", "user_id", user, "limit", c.maxPerUser)
		return err
	}
	if !admitted {
		return nil
	}
	c.registry.Add(user, conn)
	c.setState(conn.ID(), StateOpen)
	slog.DebugContext(ctx, "Connection opened", "user_id", user, "connection_id", conn.ID())
	return nil
}

// admitLocked reserves a slot under user's cap and records id as Pending. An
// id that is already tracked is not admitted again. c.mu must be held.
func (c *Controller) admitLocked(user domain.UserID, id domain.ConnectionID) (bool, error) {
	if _, exists := c.sessions[id]; exists {
		return false, nil
	}
	if c.maxPerUser > 0 && c.perUser[user] >= c.maxPerUser {
		return false, fmt.Errorf("%w: %d", domain.ErrTooManyConnections, c.maxPerUser)
	}
	c.sessions[id] = &session{user: user, state: StatePending}
	c.perUser[user]++
	return true, nil
}

// releaseLocked forgets id and frees its slot. c.mu must be held.
func (c *Controller) releaseLocked(id domain.ConnectionID) (*session, bool) {
	s, ok := c.sessions[id]
	if !ok {
		return nil, false
	}
	delete(c.sessions, id)
	c.perUser[s.user]--
	if c.perUser[s.user] <= 0 {
		delete(c.perUser, s.user)
	}
	return s, true
}

func (c *Controller) suspend(id domain.ConnectionID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.sessions[id]; ok && s.state == StateOpen {
		s.state = StateSuspended
	}
}

func (c *Controller) disconnect(id domain.ConnectionID) {
	c.mu.Lock()
	s, ok := c.releaseLocked(id)
	c.mu.Unlock()

	if !ok {
		return
	}
	c.registry.Remove(s.user, id)
	slog.Debug("Connection closed", "user_id", s.user, "connection_id", id)
}

func (c *Controller) setState(id domain.ConnectionID, state State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.sessions[id]; ok {
		s.state = state
	}
}

// State reports where id is in its lifecycle. Unknown connections are Closed.
func (c *Controller) State(id domain.ConnectionID) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.sessions[id]; ok {
		return s.state
	}
	return StateClosed
}

func (c *Controller) userOf(id domain.ConnectionID) (domain.UserID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[id]
	if !ok {
		return "", false
	}
	return s.user, true
}

// Shutdown forgets every connection and clears the registry.
func (c *Controller) Shutdown() {
	c.mu.Lock()
	n := len(c.sessions)
	c.sessions = make(map[domain.ConnectionID]*session)
	c.perUser = make(map[domain.UserID]int)
	c.mu.Unlock()

	c.registry.Clear()
	slog.Info("Connection lifecycle controller stopped", "connections", n)
}
