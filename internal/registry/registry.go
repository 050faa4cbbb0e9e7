// Package registry tracks which live browser connections belong to which user.
//
// Users are spread across independently locked shards so that traffic for one
// user never contends with traffic for another. A connection belongs to at most
// one user at a time.
package registry

import (
	"hash/fnv"
	"log/slog"
	"sync"

	"github.com/pscheid92/buildnotify/internal/domain"
)

const shardCount = 32

type shard struct {
	mu    sync.RWMutex
	users map[domain.UserID]map[domain.ConnectionID]domain.Connection
}

// ownerShard records which user a connection is registered under, keyed by
// connection so that ownership lookups never share a lock across users.
type ownerShard struct {
	mu     sync.Mutex
	owners map[domain.ConnectionID]domain.UserID
}

// Registry maps users to their open connections. Safe for concurrent use.
type Registry struct {
	shards [shardCount]*shard
	owners [shardCount]*ownerShard
}

func New() *Registry {
	r := &Registry{}
	for i := range r.shards {
		r.shards[i] = &shard{users: make(map[domain.UserID]map[domain.ConnectionID]domain.Connection)}
		r.owners[i] = &ownerShard{owners: make(map[domain.ConnectionID]domain.UserID)}
	}
	return r
}

func slot(key string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return h.Sum32() % shardCount
}

func (r *Registry) shardFor(user domain.UserID) *shard {
	return r.shards[slot(string(user))]
}

func (r *Registry) ownersFor(id domain.ConnectionID) *ownerShard {
	return r.owners[slot(string(id))]
}

// Add registers conn under user. Adding the same connection twice is a no-op.
// If the connection is currently registered under a different user it is moved.
func (r *Registry) Add(user domain.UserID, conn domain.Connection) {
	id := conn.ID()

	o := r.ownersFor(id)
	o.mu.Lock()
	prev, had := o.owners[id]
	o.owners[id] = user
	o.mu.Unlock()

	if had && prev != user {
		slog.Warn("Connection re-registered under a different user",
			"connection_id", id, "previous_user", prev, "user", user)
		r.removeFromShard(prev, id)
	}

	s := r.shardFor(user)
	s.mu.Lock()
	defer s.mu.Unlock()

	conns, ok := s.users[user]
	if !ok {
		conns = make(map[domain.ConnectionID]domain.Connection)
		s.users[user] = conns
	}
	conns[id] = conn
}

// Remove deletes the connection from user's set. Unknown pairs are ignored.
// A user whose last connection is removed disappears from the registry.
func (r *Registry) Remove(user domain.UserID, id domain.ConnectionID) {
	o := r.ownersFor(id)
	o.mu.Lock()
	if owner, ok := o.owners[id]; ok && owner == user {
		delete(o.owners, id)
	}
	o.mu.Unlock()

	r.removeFromShard(user, id)
}

func (r *Registry) removeFromShard(user domain.UserID, id domain.ConnectionID) {
	s := r.shardFor(user)
	s.mu.Lock()
	defer s.mu.Unlock()

	conns, ok := s.users[user]
	if !ok {
		return
	}
	delete(conns, id)
	if len(conns) == 0 {
		delete(s.users, user)
	}
}

// Snapshot returns a copy of user's connections. Callers may iterate it while
// the registry keeps changing.
func (r *Registry) Snapshot(user domain.UserID) []domain.Connection {
	s := r.shardFor(user)
	s.mu.RLock()
	defer s.mu.RUnlock()

	conns := s.users[user]
	if len(conns) == 0 {
		return nil
	}
	out := make([]domain.Connection, 0, len(conns))
	for _, c := range conns {
		out = append(out, c)
	}
	return out
}

// Contains reports whether id is currently registered under user.
func (r *Registry) Contains(user domain.UserID, id domain.ConnectionID) bool {
	s := r.shardFor(user)
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.users[user][id]
	return ok
}

// Stats returns the number of users with at least one connection and the total
// number of connections.
func (r *Registry) Stats() (users, connections int) {
	for _, s := range r.shards {
		s.mu.RLock()
		users += len(s.users)
		for _, conns := range s.users {
			connections += len(conns)
		}
		s.mu.RUnlock()
	}
	return users, connections
}

// Clear drops every registration. Used during shutdown.
func (r *Registry) Clear() {
	for _, s := range r.shards {
		s.mu.Lock()
		s.users = make(map[domain.UserID]map[domain.ConnectionID]domain.Connection)
		s.mu.Unlock()
	}
	for _, o := range r.owners {
		o.mu.Lock()
		o.owners = make(map[domain.ConnectionID]domain.UserID)
		o.mu.Unlock()
	}
}
