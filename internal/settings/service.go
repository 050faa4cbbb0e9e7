// Package settings resolves per-user notification preferences.
//
// Lookups are never cached: every broadcast reads the current value. Concurrent
// lookups for the same user share one repository call, and a circuit breaker
// stops hammering a failing store. Any failure resolves to the default.
package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/sync/singleflight"

	"github.com/pscheid92/buildnotify/internal/domain"
	apperrors "github.com/pscheid92/buildnotify/internal/platform/errors"
)

const MaxDisplayTimeoutSeconds = 3600

type Service struct {
	repo          domain.SettingsRepository
	breaker       *gobreaker.CircuitBreaker
	lookups       singleflight.Group
	lookupTimeout time.Duration
}

func NewService(repo domain.SettingsRepository, lookupTimeout time.Duration) *Service {
	return &Service{
		repo:          repo,
		lookupTimeout: lookupTimeout,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "settings-repository",
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.Requests >= 5 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				slog.Warn("Circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
			},
		}),
	}
}

// DisplayTimeoutSeconds returns how long user's notifications stay on screen.
func (s *Service) DisplayTimeoutSeconds(ctx context.Context, user domain.UserID) int {
	raw, err := s.lookup(ctx, user)
	if err != nil {
		slog.WarnContext(ctx, "Display timeout lookup failed, using default", "user_id", user, "error", err)
		return domain.DefaultDisplayTimeoutSeconds
	}
	return ParseDisplayTimeout(raw)
}

func (s *Service) lookup(ctx context.Context, user domain.UserID) (string, error) {
	v, err, _ := s.lookups.Do(string(user), func() (any, error) {
		return s.breaker.Execute(func() (any, error) {
			// Shared by every waiter, so one caller's cancellation must not fail the rest.
			lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.lookupTimeout)
			defer cancel()

			raw, err := s.repo.GetDisplayTimeout(lookupCtx, user)
			if errors.Is(err, domain.ErrSettingsNotFound) {
				return "", nil
			}
			return raw, err
		})
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// ParseDisplayTimeout converts a stored value to seconds. Missing, malformed
// (including padded) or negative values yield DefaultDisplayTimeoutSeconds.
func ParseDisplayTimeout(raw string) int {
	if raw == "" {
		return domain.DefaultDisplayTimeoutSeconds
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return domain.DefaultDisplayTimeoutSeconds
	}
	return n
}

// UpdateDisplayTimeout stores a new timeout for user.
func (s *Service) UpdateDisplayTimeout(ctx context.Context, user domain.UserID, seconds int) error {
	if seconds < 0 || seconds > MaxDisplayTimeoutSeconds {
		return apperrors.ValidationError(fmt.Sprintf("display timeout must be between 0 and %d seconds", MaxDisplayTimeoutSeconds)).
			WithField("displayTimeoutSeconds", seconds)
	}

	if err := s.repo.SetDisplayTimeout(ctx, user, strconv.Itoa(seconds)); err != nil {
		return apperrors.ExternalError("failed to save settings", err).WithField("user_id", string(user))
	}
	slog.InfoContext(ctx, "Display timeout updated", "user_id", user, "seconds", seconds)
	return nil
}
