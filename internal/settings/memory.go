package settings

import (
	"context"
	"sync"

	"github.com/pscheid92/buildnotify/internal/domain"
)

// MemoryRepository keeps settings in process memory. Used when no database is configured.
type MemoryRepository struct {
	mu     sync.RWMutex
	values map[domain.UserID]string
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{values: make(map[domain.UserID]string)}
}

func (r *MemoryRepository) GetDisplayTimeout(_ context.Context, user domain.UserID) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.values[user]
	if !ok {
		return "", domain.ErrSettingsNotFound
	}
	return v, nil
}

func (r *MemoryRepository) SetDisplayTimeout(_ context.Context, user domain.UserID, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values[user] = value
	return nil
}
