package redis

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pscheid92/buildnotify/internal/domain"
	"github.com/pscheid92/buildnotify/internal/platform/correlation"
)

var testEvent = domain.Event{
	Kind:       domain.EventBuildFailed,
	Build:      &domain.BuildSubject{FullName: "MyProject", Number: "42", BuildTypeID: "MyProject_Build"},
	Recipients: []domain.UserID{"alice", "bob"},
}

type collector struct {
	mu     sync.Mutex
	events []domain.Event
	ids    []string
	err    error
}

func (c *collector) handle(ctx context.Context, ev domain.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	id, _ := correlation.ID(ctx)
	c.ids = append(c.ids, id)
	return c.err
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func TestHandleMessage_DecodesEvent(t *testing.T) {
	relay := NewEventRelay(goredis.NewClient(&goredis.Options{}))
	c := &collector{}
	payload, err := json.Marshal(testEvent)
	require.NoError(t, err)

	relay.handleMessage(context.Background(), string(payload), c.handle)

	require.Len(t, c.events, 1)
	assert.Equal(t, testEvent, c.events[0])
	assert.Len(t, c.ids[0], 8, "relayed events get a correlation id")
}

func TestHandleMessage_IgnoresBadPayloads(t *testing.T) {
	relay := NewEventRelay(goredis.NewClient(&goredis.Options{}))
	c := &collector{}

	relay.handleMessage(context.Background(), "", c.handle)
	relay.handleMessage(context.Background(), "{not json", c.handle)

	assert.Empty(t, c.events)
}

func TestHandleMessage_HandlerErrorIsLogged(t *testing.T) {
	relay := NewEventRelay(goredis.NewClient(&goredis.Options{}))
	c := &collector{err: errors.New("validation failed")}
	payload, _ := json.Marshal(testEvent)

	assert.NotPanics(t, func() {
		relay.handleMessage(context.Background(), string(payload), c.handle)
	})
}

func TestEventRelay_MultiInstance(t *testing.T) {
	client := setupTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	collectors := make([]*collector, 3)
	dones := make([]<-chan struct{}, 3)
	for i := range collectors {
		collectors[i] = &collector{}
		done, err := NewEventRelay(client).Start(ctx, collectors[i].handle)
		require.NoError(t, err)
		dones[i] = done
	}

	require.NoError(t, NewEventRelay(client).PublishEvent(ctx, testEvent))

	for i, c := range collectors {
		require.Eventually(t, func() bool { return c.count() == 1 }, 5*time.Second, 10*time.Millisecond, "instance %d", i)
		assert.Equal(t, testEvent, c.events[0])
	}

	cancel()
	for _, done := range dones {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("relay did not stop after cancellation")
		}
	}
}
