package workers

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/observability"
	"context"
	"fmt"
	"log/slog"
)

var _ contract.Worker = (*RelayWorker)(nil)

// RelayWorker is the single event loop of the relay.
// It is the only goroutine applying commands, so the registry and the
// message store never see overlapping mutations.
type RelayWorker struct {
	log      *slog.Logger
	commands <-chan domain.Command
	handler  contract.CommandHandler
	counters *observability.Counters
}

func NewRelayWorker(
	log *slog.Logger,
	commands <-chan domain.Command,
	handler contract.CommandHandler,
	counters *observability.Counters) *RelayWorker {
	return &RelayWorker{
		log:      log,
		commands: commands,
		handler:  handler,
		counters: counters,
	}
}

// Run never surfaces handler errors: an unresolved identity or an empty
// conversation is a silent no-op for the client, logged here for operators.
func (w *RelayWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Stopping relay worker")
			return nil
		case cmd, ok := <-w.commands:
			if !ok {
				w.log.Debug("Command channel is closed")
				return nil
			}
			if err := w.handler.Handle(cmd); err != nil {
				w.counters.IncrCommandsRejected()
				w.log.Debug("Command ignored",
					"command", fmt.Sprintf("%T", cmd),
					"connection_id", cmd.ConnectionID(),
					"error", err)
			}
		}
	}
}
