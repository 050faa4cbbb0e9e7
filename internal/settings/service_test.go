package settings

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pscheid92/buildnotify/internal/domain"
	apperrors "github.com/pscheid92/buildnotify/internal/platform/errors"
)

type mockRepo struct {
	getFn func(ctx context.Context, user domain.UserID) (string, error)
	setFn func(ctx context.Context, user domain.UserID, value string) error
}

func (m *mockRepo) GetDisplayTimeout(ctx context.Context, user domain.UserID) (string, error) {
	return m.getFn(ctx, user)
}

func (m *mockRepo) SetDisplayTimeout(ctx context.Context, user domain.UserID, value string) error {
	return m.setFn(ctx, user, value)
}

func TestDisplayTimeoutSeconds_StoredValues(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	require.NoError(t, repo.SetDisplayTimeout(ctx, "U2", "30"))
	require.NoError(t, repo.SetDisplayTimeout(ctx, "U3", "bogus"))
	require.NoError(t, repo.SetDisplayTimeout(ctx, "U4", "0"))

	svc := NewService(repo, time.Second)

	assert.Equal(t, 10, svc.DisplayTimeoutSeconds(ctx, "U1"), "unset")
	assert.Equal(t, 30, svc.DisplayTimeoutSeconds(ctx, "U2"))
	assert.Equal(t, 10, svc.DisplayTimeoutSeconds(ctx, "U3"), "unparseable")
	assert.Equal(t, 0, svc.DisplayTimeoutSeconds(ctx, "U4"))
}

func TestParseDisplayTimeout(t *testing.T) {
	tests := map[string]int{
		"":      10,
		"   ":   10,
		"15":    15,
		" 20 ":  10,
		"+25":   25,
		"-5":    10,
		"1.5":   10,
		"ten":   10,
		"0":     0,
		"99999": 99999,
	}
	for raw, want := range tests {
		assert.Equal(t, want, ParseDisplayTimeout(raw), "raw=%q", raw)
	}
}

func TestDisplayTimeoutSeconds_RepositoryErrorFallsBack(t *testing.T) {
	repo := &mockRepo{getFn: func(context.Context, domain.UserID) (string, error) {
		return "", errors.New("connection refused")
	}}
	svc := NewService(repo, time.Second)

	assert.Equal(t, 10, svc.DisplayTimeoutSeconds(context.Background(), "alice"))
}

func TestDisplayTimeoutSeconds_BreakerOpensOnSustainedFailure(t *testing.T) {
	var calls atomic.Int32
	repo := &mockRepo{getFn: func(context.Context, domain.UserID) (string, error) {
		calls.Add(1)
		return "", errors.New("timeout")
	}}
	svc := NewService(repo, time.Second)

	for range 10 {
		assert.Equal(t, 10, svc.DisplayTimeoutSeconds(context.Background(), "alice"))
	}

	assert.Equal(t, gobreaker.StateOpen, svc.breaker.State())
	assert.Equal(t, int32(5), calls.Load(), "open breaker must stop calling the repository")
}

func TestDisplayTimeoutSeconds_NotFoundDoesNotTripBreaker(t *testing.T) {
	svc := NewService(NewMemoryRepository(), time.Second)

	for range 10 {
		svc.DisplayTimeoutSeconds(context.Background(), "nobody")
	}

	assert.Equal(t, gobreaker.StateClosed, svc.breaker.State())
}

func TestDisplayTimeoutSeconds_AppliesLookupTimeout(t *testing.T) {
	repo := &mockRepo{getFn: func(ctx context.Context, _ domain.UserID) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}
	svc := NewService(repo, 20*time.Millisecond)

	start := time.Now()
	assert.Equal(t, 10, svc.DisplayTimeoutSeconds(context.Background(), "alice"))
	assert.Less(t, time.Since(start), time.Second)
}

func TestDisplayTimeoutSeconds_CollapsesConcurrentLookups(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	repo := &mockRepo{getFn: func(context.Context, domain.UserID) (string, error) {
		calls.Add(1)
		<-release
		return "45", nil
	}}
	svc := NewService(repo, time.Second)

	var wg sync.WaitGroup
	results := make([]int, 5)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = svc.DisplayTimeoutSeconds(context.Background(), "alice")
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for _, r := range results {
		assert.Equal(t, 45, r)
	}
	assert.LessOrEqual(t, calls.Load(), int32(5))
	assert.GreaterOrEqual(t, calls.Load(), int32(1))
}

func TestUpdateDisplayTimeout(t *testing.T) {
	repo := NewMemoryRepository()
	svc := NewService(repo, time.Second)
	ctx := context.Background()

	require.NoError(t, svc.UpdateDisplayTimeout(ctx, "alice", 25))
	assert.Equal(t, 25, svc.DisplayTimeoutSeconds(ctx, "alice"))

	require.NoError(t, svc.UpdateDisplayTimeout(ctx, "alice", 0))
	assert.Equal(t, 0, svc.DisplayTimeoutSeconds(ctx, "alice"))
}

func TestUpdateDisplayTimeout_RejectsOutOfRange(t *testing.T) {
	svc := NewService(NewMemoryRepository(), time.Second)

	for _, v := range []int{-1, MaxDisplayTimeoutSeconds + 1} {
		err := svc.UpdateDisplayTimeout(context.Background(), "alice", v)
		structured := apperrors.AsStructuredError(err)
		require.NotNil(t, structured)
		assert.Equal(t, apperrors.TypeValidation, structured.Type)
	}
}

func TestUpdateDisplayTimeout_RepositoryFailure(t *testing.T) {
	repo := &mockRepo{setFn: func(context.Context, domain.UserID, string) error {
		return errors.New("disk full")
	}}
	svc := NewService(repo, time.Second)

	err := svc.UpdateDisplayTimeout(context.Background(), "alice", 5)
	assert.Equal(t, apperrors.TypeExternal, apperrors.AsStructuredError(err).Type)
}
