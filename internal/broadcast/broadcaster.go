// Package broadcast fans a notification out to every live connection of a set of users.
//
// Delivery is best effort: offline users are skipped, closed connections are
// skipped, and a failed send never stops delivery to anyone else. The broadcaster
// never removes or closes connections; that is left to the lifecycle controller.
package broadcast

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/pscheid92/buildnotify/internal/adapter/metrics"
	"github.com/pscheid92/buildnotify/internal/domain"
)

// ConnectionSource is the read side of the connection registry.
type ConnectionSource interface {
	Snapshot(user domain.UserID) []domain.Connection
	Contains(user domain.UserID, id domain.ConnectionID) bool
}

// Report summarises one broadcast.
type Report struct {
	Users     int
	Delivered int
	Skipped   int
	Failed    int
}

type Broadcaster struct {
	connections ConnectionSource
	timeouts    domain.DisplayTimeoutSource
	metrics     *metrics.BroadcastMetrics
	clock       clockwork.Clock
}

// New creates a broadcaster. m may be nil.
func New(connections ConnectionSource, timeouts domain.DisplayTimeoutSource, m *metrics.BroadcastMetrics, clock clockwork.Clock) *Broadcaster {
	return &Broadcaster{
		connections: connections,
		timeouts:    timeouts,
		metrics:     m,
		clock:       clock,
	}
}

// Broadcast delivers msg to every open connection of every target user. Each user
// gets their own copy stamped with their display timeout. Duplicate targets are
// delivered once.
func (b *Broadcaster) Broadcast(ctx context.Context, msg domain.Message, targets []domain.UserID) Report {
	start := b.clock.Now()
	var report Report

	seen := make(map[domain.UserID]struct{}, len(targets))
	for _, user := range targets {
		if _, dup := seen[user]; dup {
			continue
		}
		seen[user] = struct{}{}
		report.Users++

		conns := b.connections.Snapshot(user)
		if len(conns) == 0 {
			continue
		}

		timeout := b.timeouts.DisplayTimeoutSeconds(ctx, user)
		payload, err := json.Marshal(msg.WithDisplayTimeout(timeout))
		if err != nil {
			slog.ErrorContext(ctx, "Failed to encode notification", "user_id", user, "error", err)
			report.Failed += len(conns)
			continue
		}

		for _, conn := range conns {
			b.deliver(ctx, user, conn, payload, &report)
		}
	}

	if b.metrics != nil {
		b.metrics.Deliveries.WithLabelValues("delivered").Add(float64(report.Delivered))
		b.metrics.Deliveries.WithLabelValues("skipped").Add(float64(report.Skipped))
		b.metrics.Deliveries.WithLabelValues("failed").Add(float64(report.Failed))
		b.metrics.BroadcastDuration.Observe(b.clock.Since(start).Seconds())
	}

	slog.DebugContext(ctx, "Notification broadcast",
		"title", msg.Title,
		"users", report.Users,
		"delivered", report.Delivered,
		"skipped", report.Skipped,
		"failed", report.Failed)
	return report
}

func (b *Broadcaster) deliver(ctx context.Context, user domain.UserID, conn domain.Connection, payload []byte, report *Report) {
	// The snapshot may be stale: skip anything closed or removed since it was taken.
	if !conn.IsOpen() || !b.connections.Contains(user, conn.ID()) {
		report.Skipped++
		return
	}

	if err := conn.SendText(payload); err != nil {
		slog.WarnContext(ctx, "Failed to send notification",
			"user_id", user, "connection_id", conn.ID(), "error", err)
		report.Failed++
		return
	}
	report.Delivered++
}
