package app

import (
	"context"
	"log/slog"

	"github.com/pscheid92/buildnotify/internal/adapter/metrics"
	"github.com/pscheid92/buildnotify/internal/broadcast"
	"github.com/pscheid92/buildnotify/internal/domain"
	"github.com/pscheid92/buildnotify/internal/notification"
	apperrors "github.com/pscheid92/buildnotify/internal/platform/errors"
)

type Broadcaster interface {
	Broadcast(ctx context.Context, msg domain.Message, targets []domain.UserID) broadcast.Report
}

// EventPublisher hands an event to every instance, this one included.
type EventPublisher interface {
	PublishEvent(ctx context.Context, ev domain.Event) error
}

type Service struct {
	broadcaster Broadcaster
	publisher   EventPublisher
	metrics     *metrics.BroadcastMetrics
}

// NewService creates the application service. publisher may be nil when running
// a single instance; m may be nil.
func NewService(broadcaster Broadcaster, publisher EventPublisher, m *metrics.BroadcastMetrics) *Service {
	return &Service{
		broadcaster: broadcaster,
		publisher:   publisher,
		metrics:     m,
	}
}

// Submit validates an event from the ingest API and delivers it. With a relay
// configured the event is published and every instance (this one included)
// delivers it from the relay subscription; otherwise it is delivered locally.
func (s *Service) Submit(ctx context.Context, ev domain.Event) error {
	if _, err := validate(ev); err != nil {
		return err
	}
	s.count("api")

	if s.publisher == nil {
		_, err := s.notify(ctx, ev)
		return err
	}

	if err := s.publisher.PublishEvent(ctx, ev); err != nil {
		return apperrors.ExternalError("failed to publish event", err).WithField("kind", string(ev.Kind))
	}
	return nil
}

// HandleRelayed delivers an event received from the relay to local connections.
func (s *Service) HandleRelayed(ctx context.Context, ev domain.Event) error {
	s.count("relay")
	_, err := s.notify(ctx, ev)
	return err
}

func (s *Service) notify(ctx context.Context, ev domain.Event) (broadcast.Report, error) {
	msg, err := validate(ev)
	if err != nil {
		return broadcast.Report{}, err
	}

	report := s.broadcaster.Broadcast(ctx, msg, ev.Recipients)
	slog.InfoContext(ctx, "Build event delivered",
		"kind", ev.Kind,
		"recipients", len(ev.Recipients),
		"delivered", report.Delivered,
		"failed", report.Failed)
	return report, nil
}

func (s *Service) count(source string) {
	if s.metrics != nil {
		s.metrics.EventsReceived.WithLabelValues(source).Inc()
	}
}

func validate(ev domain.Event) (domain.Message, error) {
	if !notification.Supported(ev.Kind) {
		return domain.Message{}, apperrors.ValidationError("unknown event kind").WithField("kind", string(ev.Kind))
	}
	if len(ev.Recipients) == 0 {
		return domain.Message{}, apperrors.ValidationError("at least one recipient is required").
			WithField("kind", string(ev.Kind))
	}
	for _, r := range ev.Recipients {
		if r == "" {
			return domain.Message{}, apperrors.ValidationError("recipient must not be empty")
		}
	}

	msg, err := notification.FromEvent(ev)
	if err != nil {
		return domain.Message{}, apperrors.ValidationError(err.Error()).WithField("kind", string(ev.Kind))
	}
	return msg, nil
}
