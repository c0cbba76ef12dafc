//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"context"
	"reflect"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink receives outbound events. Implementations must not block
// longer than the context allows.
type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

// CommandHandler applies one inbound command. Only ever called from the relay loop.
type CommandHandler interface {
	Handle(cmd domain.Command) error
}

// SinkResolver turns envelope targets into live sinks.
type SinkResolver interface {
	Sink(connectionID string) (EventSink, bool)
	Sinks() []EventSink
}

type PresenceReader interface {
	Snapshot() []domain.UserPresence
}

// IRegistry maps live connections to presence records.
// Records are keyed by connection id, never by user id.
type IRegistry interface {
	SinkResolver
	PresenceReader
	Attach(connectionID string, sink EventSink)
	Detach(connectionID string)
	Register(connectionID, userID, username string) domain.UserPresence
	MarkOffline(connectionID string) bool
	Remove(connectionID string) bool
	Get(connectionID string) (domain.UserPresence, bool)
	FindByUserID(userID string) (domain.UserPresence, bool)
	ConnectionsOf(userID string) []string
}

// MessageStore is the per-conversation append-only log.
type MessageStore interface {
	Append(key domain.ConversationKey, message domain.Message) error
	MarkRead(key domain.ConversationKey, recipientID string) (int, error)
	History(key domain.ConversationKey) ([]domain.Message, error)
}

// SearchIndex returns the messages of a conversation matching a query.
type SearchIndex interface {
	Search(ctx context.Context, key domain.ConversationKey, query string) ([]domain.SearchHit, error)
}

type Censor interface {
	Censor(content string) string
}

type IReaper interface {
	Schedule(connectionID string)
	Cancel(connectionID string) bool
	Stop()
}

type IOrchestrator interface {
	Connect(connectionID string, sink EventSink)
	Dispatch(cmd domain.Command)
	Disconnect(connectionID string)
}
