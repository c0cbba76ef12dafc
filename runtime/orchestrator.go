// Package runtime wires the relay together: it owns the command and outbound
// channels, applies commands on a single loop and schedules delayed removals.
package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/observability"
	"chat-relay/runtime/workers"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

var (
	_ contract.IOrchestrator  = (*Orchestrator)(nil)
	_ contract.CommandHandler = (*Orchestrator)(nil)
)

type Orchestrator struct {
	mu                 sync.Mutex
	log                *slog.Logger
	supervisor         contract.ISupervisor
	registry           contract.IRegistry
	store              contract.MessageStore
	search             contract.SearchIndex
	censor             contract.Censor
	reaper             contract.IReaper
	counters           *observability.Counters
	permanentSinks     []contract.EventSink
	commands           chan domain.Command
	outbound           chan event.Envelope
	done               chan struct{}
	stopOnce           sync.Once
	sinkTimeout        time.Duration
	collapseReconnects bool
	now                func() time.Time
	newID              func() string
}

func NewOrchestrator(log *slog.Logger, supervisor contract.ISupervisor,
	registry contract.IRegistry, store contract.MessageStore, counters *observability.Counters,
	bufferSize int, sinkTimeout, reapDelay time.Duration) *Orchestrator {
	o := &Orchestrator{
		log:         log,
		supervisor:  supervisor,
		registry:    registry,
		store:       store,
		counters:    counters,
		commands:    make(chan domain.Command, bufferSize),
		outbound:    make(chan event.Envelope, bufferSize),
		done:        make(chan struct{}),
		sinkTimeout: sinkTimeout,
		now:         func() time.Time { return time.Now().UTC() },
		newID:       uuid.NewString,
	}
	o.reaper = NewReaper(log, reapDelay, func(connectionID string) {
		o.enqueue(domain.Reap{Connection: connectionID})
	})
	return o
}

// WithSearch enables the search-conversation command.
func (o *Orchestrator) WithSearch(index contract.SearchIndex) *Orchestrator {
	o.search = index
	return o
}

// WithCensor moderates message content before it is stored and relayed.
func (o *Orchestrator) WithCensor(censor contract.Censor) *Orchestrator {
	o.censor = censor
	return o
}

// WithCollapseReconnects makes a join remove the offline records left by
// previous connections of the same user instead of waiting for the reaper.
func (o *Orchestrator) WithCollapseReconnects(collapse bool) *Orchestrator {
	o.collapseReconnects = collapse
	return o
}

// Add registers sinks receiving every outbound event.
func (o *Orchestrator) Add(sinks ...contract.EventSink) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.permanentSinks = append(o.permanentSinks, sinks...)
}

// Connect attaches the sink of a freshly opened connection.
// The connection receives broadcasts before it joins.
func (o *Orchestrator) Connect(connectionID string, sink contract.EventSink) {
	o.registry.Attach(connectionID, sink)
}

// Dispatch never blocks the caller: a full command channel drops the command.
func (o *Orchestrator) Dispatch(cmd domain.Command) {
	select {
	case <-o.done:
		return
	default:
	}

	select {
	case o.commands <- cmd:
	default:
		o.counters.IncrCommandsDropped()
		o.log.Warn("Command channel full, dropping command",
			"command", fmt.Sprintf("%T", cmd),
			"connection_id", cmd.ConnectionID())
	}
}

// Disconnect waits for room in the command channel: losing it would leave
// an online record behind forever.
func (o *Orchestrator) Disconnect(connectionID string) {
	o.enqueue(domain.Disconnect{Connection: connectionID})
}

func (o *Orchestrator) enqueue(cmd domain.Command) {
	select {
	case o.commands <- cmd:
	case <-o.done:
	}
}

func (o *Orchestrator) emit(envelope event.Envelope) {
	select {
	case o.outbound <- envelope:
	case <-o.done:
	}
}

// Handle applies one command. It is only called by the relay worker.
func (o *Orchestrator) Handle(cmd domain.Command) error {
	switch c := cmd.(type) {
	case domain.Join:
		return o.handleJoin(c)
	case domain.SendPrivateMessage:
		return o.handlePrivateMessage(c)
	case domain.MarkMessagesRead:
		return o.handleMarkRead(c)
	case domain.Typing:
		return o.handleTyping(c)
	case domain.GetConversation:
		return o.handleGetConversation(c)
	case domain.SearchConversation:
		return o.handleSearch(c)
	case domain.Disconnect:
		return o.handleDisconnect(c)
	case domain.Reap:
		return o.handleReap(c)
	default:
		return fmt.Errorf("%w: %T", errors.ErrUnknownCommand, cmd)
	}
}

func (o *Orchestrator) handleJoin(cmd domain.Join) error {
	userID := cmd.UserID
	if userID == "" {
		userID = cmd.Connection
	}
	if o.collapseReconnects {
		o.collapse(userID, cmd.Connection)
	}

	presence := o.registry.Register(cmd.Connection, userID, cmd.Username)
	o.log.Info("User joined",
		"connection_id", presence.ConnectionID,
		"user_id", presence.UserID,
		"username", presence.Username)
	o.emit(event.To(event.UserJoined{UserID: presence.UserID, Username: presence.Username}, cmd.Connection))
	o.broadcastPresence()
	return nil
}

// collapse drops the offline records of a user before its new connection registers.
func (o *Orchestrator) collapse(userID, connectionID string) {
	for _, previous := range o.registry.ConnectionsOf(userID) {
		if previous == connectionID {
			continue
		}
		presence, ok := o.registry.Get(previous)
		if !ok || presence.IsOnline {
			continue
		}
		o.reaper.Cancel(previous)
		o.registry.Remove(previous)
		o.log.Debug("Stale presence collapsed", "connection_id", previous, "user_id", userID)
	}
}

func (o *Orchestrator) handlePrivateMessage(cmd domain.SendPrivateMessage) error {
	sender, ok := o.registry.Get(cmd.Connection)
	if !ok {
		return errors.ErrUnresolvedSender
	}
	recipient, ok := o.registry.FindByUserID(cmd.RecipientID)
	if !ok {
		return fmt.Errorf("%w: %s", errors.ErrUnresolvedRecipient, cmd.RecipientID)
	}

	content := cmd.Content
	if o.censor != nil {
		content = o.censor.Censor(content)
	}
	message := domain.Message{
		ID:             lo.Ternary(cmd.MessageID != "", cmd.MessageID, o.newID()),
		SenderID:       sender.UserID,
		SenderUsername: sender.Username,
		RecipientID:    cmd.RecipientID,
		Content:        content,
		Timestamp:      lo.Ternary(cmd.Timestamp != "", cmd.Timestamp, o.now().Format(time.RFC3339Nano)),
	}

	key := domain.DeriveKey(sender.UserID, cmd.RecipientID)
	if err := o.store.Append(key, message); err != nil {
		o.log.Error("Failed to store message", "conversation", key, "error", err)
		return err
	}
	o.counters.IncrMessagesRelayed()

	o.emit(event.To(event.FromMessage(message), recipient.ConnectionID))
	o.emit(event.To(event.MessageSent{MessageID: message.ID, Timestamp: message.Timestamp}, sender.ConnectionID))
	return nil
}

// handleMarkRead flags what the original sender wrote to the reader.
// The sender is notified even when nothing was left unread.
func (o *Orchestrator) handleMarkRead(cmd domain.MarkMessagesRead) error {
	reader, ok := o.registry.Get(cmd.Connection)
	if !ok {
		return errors.ErrUnresolvedSender
	}

	key := domain.DeriveKey(reader.UserID, cmd.SenderID)
	marked, err := o.store.MarkRead(key, reader.UserID)
	if err != nil {
		o.log.Error("Failed to mark messages as read", "conversation", key, "error", err)
		return err
	}
	o.log.Debug("Messages read", "conversation", key, "read_by", reader.UserID, "count", marked)

	sender, ok := o.registry.FindByUserID(cmd.SenderID)
	if !ok {
		return fmt.Errorf("%w: %s", errors.ErrUnresolvedRecipient, cmd.SenderID)
	}
	o.emit(event.To(event.MessagesRead{ReadBy: reader.UserID, ConversationKey: string(key)}, sender.ConnectionID))
	return nil
}

func (o *Orchestrator) handleTyping(cmd domain.Typing) error {
	sender, ok := o.registry.Get(cmd.Connection)
	if !ok {
		return errors.ErrUnresolvedSender
	}
	target, ok := o.registry.FindByUserID(cmd.RecipientID)
	if !ok {
		return fmt.Errorf("%w: %s", errors.ErrUnresolvedRecipient, cmd.RecipientID)
	}

	var evt event.DomainEvent = event.UserStopTyping{UserID: sender.UserID}
	if cmd.Signal == domain.TypingStart {
		evt = event.UserTyping{UserID: sender.UserID, Username: sender.Username}
	}
	o.emit(event.To(evt, target.ConnectionID))
	return nil
}

func (o *Orchestrator) handleGetConversation(cmd domain.GetConversation) error {
	requester, ok := o.registry.Get(cmd.Connection)
	if !ok {
		return errors.ErrUnresolvedSender
	}

	history, err := o.store.History(domain.DeriveKey(requester.UserID, cmd.RecipientID))
	if err != nil {
		o.log.Error("Failed to read conversation", "error", err)
		return err
	}
	o.emit(event.To(event.ConversationHistory{
		RecipientID: cmd.RecipientID,
		Messages:    event.FromMessages(history),
	}, cmd.Connection))
	return nil
}

// handleSearch answers in append order, whatever the relevance order of the index.
func (o *Orchestrator) handleSearch(cmd domain.SearchConversation) error {
	requester, ok := o.registry.Get(cmd.Connection)
	if !ok {
		return errors.ErrUnresolvedSender
	}

	key := domain.DeriveKey(requester.UserID, cmd.RecipientID)
	var matches []domain.Message
	if o.search != nil && cmd.Query != "" {
		ctx, cancel := context.WithTimeout(context.Background(), o.sinkTimeout)
		defer cancel()
		hits, err := o.search.Search(ctx, key, cmd.Query)
		if err != nil {
			o.log.Error("Search failed", "conversation", key, "error", err)
			return err
		}
		history, err := o.store.History(key)
		if err != nil {
			return err
		}
		found := lo.SliceToMap(hits, func(hit domain.SearchHit) (domain.SearchHit, struct{}) { return hit, struct{}{} })
		matches = lo.Filter(history, func(m domain.Message, _ int) bool {
			_, ok := found[m.Hit()]
			return ok
		})
	}

	o.emit(event.To(event.ConversationSearchResults{
		RecipientID: cmd.RecipientID,
		Query:       cmd.Query,
		Messages:    event.FromMessages(matches),
	}, cmd.Connection))
	return nil
}

func (o *Orchestrator) handleDisconnect(cmd domain.Disconnect) error {
	o.registry.Detach(cmd.Connection)
	if !o.registry.MarkOffline(cmd.Connection) {
		return nil
	}
	o.log.Info("User disconnected", "connection_id", cmd.Connection)
	o.broadcastPresence()
	o.reaper.Schedule(cmd.Connection)
	return nil
}

// handleReap is a no-op when the record was already collapsed by a rejoin.
func (o *Orchestrator) handleReap(cmd domain.Reap) error {
	if !o.registry.Remove(cmd.Connection) {
		return nil
	}
	o.log.Debug("Presence removed", "connection_id", cmd.Connection)
	o.broadcastPresence()
	return nil
}

func (o *Orchestrator) broadcastPresence() {
	o.emit(event.Broadcast(event.FromPresences(o.registry.Snapshot())))
}

// Start registers the relay loop and the fanout to the supervisor and blocks
// until the supervisor returns.
func (o *Orchestrator) Start(ctx context.Context) {
	o.mu.Lock()
	relay := workers.NewRelayWorker(o.log, o.commands, o, o.counters)
	fanout := workers.NewEventFanout(o.log, o.registry, o.outbound,
		append([]contract.EventSink(nil), o.permanentSinks...), o.sinkTimeout, o.counters)
	o.supervisor.Add(relay, fanout)
	o.mu.Unlock()

	o.log.Info("Starting orchestrator and all supervised workers")
	o.supervisor.Run(ctx)
}

// Stop cancels the workers and disarms pending removals.
func (o *Orchestrator) Stop() {
	o.stopOnce.Do(func() {
		o.log.Info("Requesting orchestrator shutdown")
		o.reaper.Stop()
		close(o.done)
		o.supervisor.Stop()
	})
}
