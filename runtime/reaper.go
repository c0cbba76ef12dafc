package runtime

import (
	"chat-relay/contract"
	"log/slog"
	"sync"
	"time"
)

var _ contract.IReaper = (*Reaper)(nil)

// handle is the cancellable task attached to one pending removal.
type handle struct {
	timer *time.Timer
}

// Reaper delays the removal of a presence record after a disconnect.
// It never touches the registry itself: when the delay elapses, expire is
// called with the connection id and the caller turns it into a command for
// the relay loop, so removal runs exclusively with every other mutation.
type Reaper struct {
	mu      sync.Mutex
	log     *slog.Logger
	delay   time.Duration
	expire  func(connectionID string)
	pending map[string]*handle
	stopped bool
}

func NewReaper(log *slog.Logger, delay time.Duration, expire func(connectionID string)) *Reaper {
	return &Reaper{
		log:     log,
		delay:   delay,
		expire:  expire,
		pending: make(map[string]*handle),
	}
}

// Schedule arms the removal of a connection. Scheduling the same connection
// twice keeps only the latest deadline.
func (r *Reaper) Schedule(connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return
	}
	if previous, ok := r.pending[connectionID]; ok {
		previous.timer.Stop()
	}

	h := &handle{}
	h.timer = time.AfterFunc(r.delay, func() {
		r.mu.Lock()
		current, ok := r.pending[connectionID]
		if !ok || current != h || r.stopped {
			r.mu.Unlock()
			return
		}
		delete(r.pending, connectionID)
		r.mu.Unlock()

		r.log.Debug("Grace window elapsed", "connection_id", connectionID)
		r.expire(connectionID)
	})
	r.pending[connectionID] = h
}

// Cancel disarms a pending removal. Returns false when nothing was pending.
func (r *Reaper) Cancel(connectionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.pending[connectionID]
	if !ok {
		return false
	}
	h.timer.Stop()
	delete(r.pending, connectionID)
	return true
}

func (r *Reaper) Pending(connectionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.pending[connectionID]
	return ok
}

// Stop disarms every pending removal. Used on shutdown.
func (r *Reaper) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, h := range r.pending {
		h.timer.Stop()
		delete(r.pending, id)
	}
	r.stopped = true
	r.log.Debug("Reaper stopped")
}
