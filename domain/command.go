package domain

// Command is an inbound intent received on a connection.
// Every command is applied by a single event loop, in arrival order.
type Command interface {
	ConnectionID() string
}

type TypingSignal int

const (
	TypingStart TypingSignal = iota
	TypingStop
)

// Join registers the connection under a user identity.
// An empty UserID falls back to the connection id.
type Join struct {
	Connection string
	UserID     string
	Username   string
}

type SendPrivateMessage struct {
	Connection  string
	RecipientID string
	Content     string
	Timestamp   string
	MessageID   string
}

// MarkMessagesRead flags every message SenderID sent to the reader as read.
type MarkMessagesRead struct {
	Connection string
	SenderID   string
}

type Typing struct {
	Connection  string
	RecipientID string
	Signal      TypingSignal
}

type GetConversation struct {
	Connection  string
	RecipientID string
}

type SearchConversation struct {
	Connection  string
	RecipientID string
	Query       string
}

// Disconnect is emitted by the transport once the socket is gone.
type Disconnect struct {
	Connection string
}

// Reap removes a presence record after its grace window.
type Reap struct {
	Connection string
}

func (c Join) ConnectionID() string               { return c.Connection }
func (c SendPrivateMessage) ConnectionID() string { return c.Connection }
func (c MarkMessagesRead) ConnectionID() string   { return c.Connection }
func (c Typing) ConnectionID() string             { return c.Connection }
func (c GetConversation) ConnectionID() string    { return c.Connection }
func (c SearchConversation) ConnectionID() string { return c.Connection }
func (c Disconnect) ConnectionID() string         { return c.Connection }
func (c Reap) ConnectionID() string               { return c.Connection }
