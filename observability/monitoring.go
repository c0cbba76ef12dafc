package observability

import (
	"runtime"
	"sync/atomic"
)

// RelayStats aggregates relay counters for the monitor log line.
type RelayStats struct {
	MessagesRelayed  uint64 `json:"messages_relayed"`
	EventsDelivered  uint64 `json:"events_delivered"`
	EventsDropped    uint64 `json:"events_dropped"`
	CommandsDropped  uint64 `json:"commands_dropped"`
	CommandsRejected uint64 `json:"commands_rejected"`
	AllocMemMb       uint64 `json:"alloc_mem_mb"`
	NumGC            uint32 `json:"num_gc"`
	NumGoroutine     int    `json:"num_goroutine"`
}

// Counters are written from the relay loop and the fanout, read by the monitor.
type Counters struct {
	messagesRelayed  atomic.Uint64
	eventsDelivered  atomic.Uint64
	eventsDropped    atomic.Uint64
	commandsDropped  atomic.Uint64
	commandsRejected atomic.Uint64
}

func NewCounters() *Counters {
	return &Counters{}
}

func (c *Counters) IncrMessagesRelayed()  { c.messagesRelayed.Add(1) }
func (c *Counters) IncrEventsDelivered()  { c.eventsDelivered.Add(1) }
func (c *Counters) IncrEventsDropped()    { c.eventsDropped.Add(1) }
func (c *Counters) IncrCommandsDropped()  { c.commandsDropped.Add(1) }
func (c *Counters) IncrCommandsRejected() { c.commandsRejected.Add(1) }

func (c *Counters) GetLatest() RelayStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return RelayStats{
		MessagesRelayed:  c.messagesRelayed.Load(),
		EventsDelivered:  c.eventsDelivered.Load(),
		EventsDropped:    c.eventsDropped.Load(),
		CommandsDropped:  c.commandsDropped.Load(),
		CommandsRejected: c.commandsRejected.Load(),
		AllocMemMb:       m.Alloc / 1024 / 1024,
		NumGC:            m.NumGC,
		NumGoroutine:     runtime.NumGoroutine(),
	}
}
