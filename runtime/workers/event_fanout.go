package workers

import (
	"chat-relay/contract"
	"chat-relay/domain/event"
	"chat-relay/observability"
	"context"
	"log/slog"
	"time"

	"github.com/samber/lo"
)

var _ contract.Worker = (*EventFanout)(nil)

// EventFanout delivers outbound envelopes to connection sinks.
//
// It provides best-effort delivery with no guarantees regarding durability
// or retries. Envelopes are consumed by a single goroutine so a connection
// sees events in the order the relay loop produced them.
//
// Permanent sinks (search index, audit log) receive every event once,
// whatever its targets.
//
// sinkTimeout bounds each Consume call. Connection sinks drop on a full
// buffer and return at once, so only a blocking permanent sink can delay
// the loop, by at most sinkTimeout per envelope.
type EventFanout struct {
	log            *slog.Logger
	resolver       contract.SinkResolver
	outbound       <-chan event.Envelope
	permanentSinks []contract.EventSink
	sinkTimeout    time.Duration
	counters       *observability.Counters
}

func NewEventFanout(
	log *slog.Logger,
	resolver contract.SinkResolver,
	outbound <-chan event.Envelope,
	permanentSinks []contract.EventSink,
	sinkTimeout time.Duration,
	counters *observability.Counters) *EventFanout {
	return &EventFanout{
		log:            log,
		resolver:       resolver,
		outbound:       outbound,
		permanentSinks: permanentSinks,
		sinkTimeout:    sinkTimeout,
		counters:       counters,
	}
}

func (w *EventFanout) Run(ctx context.Context) error {
	for {
		select {
		case envelope, ok := <-w.outbound:
			if !ok {
				return nil
			}
			w.Fanout(ctx, envelope)
		case <-ctx.Done():
			w.log.Debug("Context done, stopping fanout")
			return nil
		}
	}
}

// Fanout resolves the envelope targets at delivery time: a connection that
// went away in between is silently skipped.
func (w *EventFanout) Fanout(ctx context.Context, envelope event.Envelope) {
	var targets []contract.EventSink
	if envelope.Broadcast {
		targets = w.resolver.Sinks()
	} else {
		targets = lo.FilterMap(envelope.Targets, func(connectionID string, _ int) (contract.EventSink, bool) {
			return w.resolver.Sink(connectionID)
		})
	}

	for _, sink := range targets {
		if err := w.deliver(ctx, sink, envelope.Event); err != nil {
			w.counters.IncrEventsDropped()
			w.log.Debug("Event dropped", "event", envelope.Event.Name(), "error", err)
			continue
		}
		w.counters.IncrEventsDelivered()
	}

	for _, sink := range w.permanentSinks {
		if err := w.deliver(ctx, sink, envelope.Event); err != nil {
			w.log.Warn("Permanent sink failed", "event", envelope.Event.Name(), "error", err)
		}
	}
}

func (w *EventFanout) deliver(ctx context.Context, sink contract.EventSink, evt event.DomainEvent) error {
	sinkCtx, cancel := context.WithTimeout(ctx, w.sinkTimeout)
	defer cancel()
	return sink.Consume(sinkCtx, evt)
}
