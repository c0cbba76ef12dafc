package workers

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/mocks"
	"chat-relay/observability"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestRelayWorker_Applies_Commands_In_Order(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	handler := mocks.NewMockCommandHandler(ctrl)
	counters := observability.NewCounters()

	commands := make(chan domain.Command, 3)
	join := domain.Join{Connection: "c1", UserID: "u1", Username: "Alice"}
	send := domain.SendPrivateMessage{Connection: "c1", RecipientID: "ghost", Content: "hi"}
	done := make(chan struct{})

	// Given a join then a message to an unknown user
	gomock.InOrder(
		handler.EXPECT().Handle(join).Return(nil),
		handler.EXPECT().Handle(send).DoAndReturn(func(domain.Command) error {
			close(done)
			return errors.ErrUnresolvedRecipient
		}),
	)
	commands <- join
	commands <- send

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stopped := make(chan error, 1)
	go func() {
		stopped <- NewRelayWorker(log, commands, handler, counters).Run(ctx)
	}()

	// Then both are handled, the failure is swallowed and counted
	select {
	case <-done:
	case <-time.After(time.Second):
		req.Fail("relay worker did not handle the commands")
	}
	req.Eventually(func() bool {
		return counters.GetLatest().CommandsRejected == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	req.NoError(<-stopped)
}

func TestRelayWorker_Stops_On_Closed_Channel(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	handler := mocks.NewMockCommandHandler(ctrl)

	commands := make(chan domain.Command)
	close(commands)

	err := NewRelayWorker(slog.Default(), commands, handler, observability.NewCounters()).Run(context.Background())
	req.NoError(err)
}
