package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"cmp"
	"slices"
	"sync"
	"time"

	"github.com/samber/lo"
)

// Ensure *Registry satisfies the registry contract at compile time.
var _ contract.IRegistry = (*Registry)(nil)

type record struct {
	presence domain.UserPresence
	seq      uint64
}

// Registry is the process-wide connection table.
// It holds two things per connection id:
//  1. the transport sink, attached as soon as the socket is open,
//  2. the presence record, created on join and removed when reaped.
//
// byUser is a secondary index kept in step with presences, ordered by
// registration so the last entry is the most recent connection of a user.
type Registry struct {
	mu        sync.RWMutex
	sinks     map[string]contract.EventSink
	presences map[string]*record
	byUser    map[string][]string
	seq       uint64
	now       func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		sinks:     make(map[string]contract.EventSink),
		presences: make(map[string]*record),
		byUser:    make(map[string][]string),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Attach records the live sink of a connection. Joined or not, an attached
// connection receives every broadcast.
func (r *Registry) Attach(connectionID string, sink contract.EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks[connectionID] = sink
}

func (r *Registry) Detach(connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sinks, connectionID)
}

func (r *Registry) Sink(connectionID string) (contract.EventSink, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sink, ok := r.sinks[connectionID]
	return sink, ok
}

func (r *Registry) Sinks() []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Values(r.sinks)
}

// Register inserts or overwrites the presence record of a connection.
// Several connections may carry the same user id, nothing is deduplicated.
func (r *Registry) Register(connectionID, userID, username string) domain.UserPresence {
	r.mu.Lock()
	defer r.mu.Unlock()

	if previous, ok := r.presences[connectionID]; ok {
		r.unindex(previous.presence.UserID, connectionID)
	}

	r.seq++
	presence := domain.UserPresence{
		ConnectionID: connectionID,
		UserID:       userID,
		Username:     username,
		IsOnline:     true,
		LastSeen:     r.now(),
	}
	r.presences[connectionID] = &record{presence: presence, seq: r.seq}
	r.byUser[userID] = append(r.byUser[userID], connectionID)
	return presence
}

// MarkOffline keeps the record queryable until it is removed.
// Returns false when the connection never joined.
func (r *Registry) MarkOffline(connectionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.presences[connectionID]
	if !ok {
		return false
	}
	rec.presence.IsOnline = false
	rec.presence.LastSeen = r.now()
	return true
}

func (r *Registry) Remove(connectionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.presences[connectionID]
	if !ok {
		return false
	}
	delete(r.presences, connectionID)
	r.unindex(rec.presence.UserID, connectionID)
	return true
}

func (r *Registry) Get(connectionID string) (domain.UserPresence, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.presences[connectionID]
	if !ok {
		return domain.UserPresence{}, false
	}
	return rec.presence, true
}

// FindByUserID resolves a logical user to its most recently registered connection.
// The record may be offline while it waits to be reaped.
func (r *Registry) FindByUserID(userID string) (domain.UserPresence, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	connections := r.byUser[userID]
	if len(connections) == 0 {
		return domain.UserPresence{}, false
	}
	return r.presences[connections[len(connections)-1]].presence, true
}

// ConnectionsOf lists every connection registered under a user id, oldest first.
func (r *Registry) ConnectionsOf(userID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.byUser[userID])
}

// Snapshot returns every known record, online or pending removal, in registration order.
func (r *Registry) Snapshot() []domain.UserPresence {
	r.mu.RLock()
	defer r.mu.RUnlock()

	records := lo.Values(r.presences)
	slices.SortFunc(records, func(a, b *record) int {
		return cmp.Compare(a.seq, b.seq)
	})
	return lo.Map(records, func(rec *record, _ int) domain.UserPresence {
		return rec.presence
	})
}

// unindex must be called with the write lock held.
func (r *Registry) unindex(userID, connectionID string) {
	remaining := lo.Without(r.byUser[userID], connectionID)
	if len(remaining) == 0 {
		delete(r.byUser, userID)
		return
	}
	r.byUser[userID] = remaining
}
