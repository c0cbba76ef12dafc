package workers

import (
	"chat-relay/contract"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/mocks"
	"chat-relay/observability"
	"chat-relay/transport"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestEventFanout_Targets_Only(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	resolver := mocks.NewMockSinkResolver(ctrl)
	target := mocks.NewMockEventSink(ctrl)
	permanent := mocks.NewMockEventSink(ctrl)
	counters := observability.NewCounters()

	fanout := NewEventFanout(log, resolver, nil, []contract.EventSink{permanent}, time.Second, counters)
	evt := event.UserStopTyping{UserID: "u1"}

	// Given c2 is live and c3 went away
	resolver.EXPECT().Sink("c2").Return(target, true)
	resolver.EXPECT().Sink("c3").Return(nil, false)
	// Then only c2 and the permanent sink consume the event
	target.EXPECT().Consume(gomock.Any(), evt).Return(nil).Times(1)
	permanent.EXPECT().Consume(gomock.Any(), evt).Return(nil).Times(1)

	// When the envelope is fanned out
	fanout.Fanout(context.Background(), event.To(evt, "c2", "c3"))

	req.Equal(uint64(1), counters.GetLatest().EventsDelivered)
}

func TestEventFanout_Broadcast(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	resolver := mocks.NewMockSinkResolver(ctrl)
	sink1 := mocks.NewMockEventSink(ctrl)
	sink2 := mocks.NewMockEventSink(ctrl)
	counters := observability.NewCounters()

	fanout := NewEventFanout(log, resolver, nil, nil, time.Second, counters)
	evt := event.UsersUpdated{{UserID: "u1", IsOnline: true}}

	// Given two open connections, one of them with a full buffer
	resolver.EXPECT().Sinks().Return([]contract.EventSink{sink1, sink2})
	sink1.EXPECT().Consume(gomock.Any(), evt).Return(nil)
	sink2.EXPECT().Consume(gomock.Any(), evt).Return(errors.ErrSinkFull)

	fanout.Fanout(context.Background(), event.Broadcast(evt))

	// Then one delivery succeeded and the other was dropped
	stats := counters.GetLatest()
	req.Equal(uint64(1), stats.EventsDelivered)
	req.Equal(uint64(1), stats.EventsDropped)
}

func TestEventFanout_SinkTimeout(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	resolver := mocks.NewMockSinkResolver(ctrl)
	slow := mocks.NewMockEventSink(ctrl)
	counters := observability.NewCounters()

	sinkTimeout := 20 * time.Millisecond
	fanout := NewEventFanout(log, resolver, nil, nil, sinkTimeout, counters)

	resolver.EXPECT().Sink("c1").Return(slow, true)
	slow.EXPECT().Consume(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ event.DomainEvent) error {
			<-ctx.Done()     // Waiting for timeout to trigger cancellation
			return ctx.Err() // Sending back "context deadline exceeded"
		})

	start := time.Now()
	fanout.Fanout(context.Background(), event.To(event.MessageSent{MessageID: "m1"}, "c1"))

	// Then the fanout is not blocked longer than the sink timeout allows
	req.Less(time.Since(start), time.Second)
	req.Equal(uint64(1), counters.GetLatest().EventsDropped)
}

func TestEventFanout_Stalled_Connection_Does_Not_Delay_Others(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	resolver := mocks.NewMockSinkResolver(ctrl)
	counters := observability.NewCounters()

	// Given a socket whose writer stopped draining and a healthy one
	stalled := transport.NewConnectionSink(1)
	req.NoError(stalled.Consume(context.Background(), event.UserStopTyping{UserID: "u0"}))
	healthy := transport.NewConnectionSink(8)
	resolver.EXPECT().Sinks().Return([]contract.EventSink{stalled, healthy}).Times(3)

	fanout := NewEventFanout(log, resolver, nil, nil, time.Minute, counters)

	// When several broadcasts go out
	start := time.Now()
	for range 3 {
		fanout.Fanout(context.Background(), event.Broadcast(event.UsersUpdated{}))
	}

	// Then none of them waited on the sink timeout
	req.Less(time.Since(start), time.Second)
	req.Len(healthy.Frames(), 3)
	stats := counters.GetLatest()
	req.Equal(uint64(3), stats.EventsDelivered)
	req.Equal(uint64(3), stats.EventsDropped)
}

func TestEventFanout_Run_Consumes_Outbound(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	resolver := mocks.NewMockSinkResolver(ctrl)
	sink := mocks.NewMockEventSink(ctrl)

	outbound := make(chan event.Envelope, 1)
	fanout := NewEventFanout(slog.Default(), resolver, outbound, nil, time.Second, observability.NewCounters())

	delivered := make(chan struct{})
	resolver.EXPECT().Sink("c1").Return(sink, true)
	sink.EXPECT().Consume(gomock.Any(), gomock.Any()).DoAndReturn(func(context.Context, event.DomainEvent) error {
		close(delivered)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan error, 1)
	go func() { stopped <- fanout.Run(ctx) }()

	outbound <- event.To(event.UserStopTyping{UserID: "u1"}, "c1")

	select {
	case <-delivered:
	case <-time.After(time.Second):
		req.Fail("envelope was not delivered")
	}
	cancel()
	req.NoError(<-stopped)
}
