package event

import (
	"chat-relay/domain"
	"time"

	"github.com/samber/lo"
)

const (
	UsersUpdatedName              = "users-updated"
	UserJoinedName                = "user-joined"
	PrivateMessageName            = "private-message"
	MessageSentName               = "message-sent"
	MessagesReadName              = "messages-read"
	UserTypingName                = "user-typing"
	UserStopTypingName            = "user-stop-typing"
	ConversationHistoryName       = "conversation-history"
	ConversationSearchResultsName = "conversation-search-results"
)

// DomainEvent is an outbound event, named as it appears on the wire.
type DomainEvent interface {
	Name() string
}

type Presence struct {
	ConnectionID string    `json:"connectionId"`
	UserID       string    `json:"userId"`
	Username     string    `json:"username"`
	IsOnline     bool      `json:"isOnline"`
	LastSeen     time.Time `json:"lastSeen"`
}

// UsersUpdated is the full presence snapshot, sent as a bare array.
type UsersUpdated []Presence

// UserJoined confirms to the joining connection the identity it was registered under.
type UserJoined struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

type PrivateMessage struct {
	ID             string `json:"id"`
	SenderID       string `json:"senderId"`
	SenderUsername string `json:"senderUsername"`
	RecipientID    string `json:"recipientId"`
	Message        string `json:"message"`
	Timestamp      string `json:"timestamp"`
	IsRead         bool   `json:"isRead"`
}

type MessageSent struct {
	MessageID string `json:"messageId"`
	Timestamp string `json:"timestamp"`
}

type MessagesRead struct {
	ReadBy          string `json:"readBy"`
	ConversationKey string `json:"conversationKey"`
}

type UserTyping struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

type UserStopTyping struct {
	UserID string `json:"userId"`
}

type ConversationHistory struct {
	RecipientID string           `json:"recipientId"`
	Messages    []PrivateMessage `json:"messages"`
}

type ConversationSearchResults struct {
	RecipientID string           `json:"recipientId"`
	Query       string           `json:"query"`
	Messages    []PrivateMessage `json:"messages"`
}

func (UsersUpdated) Name() string              { return UsersUpdatedName }
func (UserJoined) Name() string                { return UserJoinedName }
func (PrivateMessage) Name() string            { return PrivateMessageName }
func (MessageSent) Name() string               { return MessageSentName }
func (MessagesRead) Name() string              { return MessagesReadName }
func (UserTyping) Name() string                { return UserTypingName }
func (UserStopTyping) Name() string            { return UserStopTypingName }
func (ConversationHistory) Name() string       { return ConversationHistoryName }
func (ConversationSearchResults) Name() string { return ConversationSearchResultsName }

func FromPresences(presences []domain.UserPresence) UsersUpdated {
	return lo.Map(presences, func(p domain.UserPresence, _ int) Presence {
		return Presence{
			ConnectionID: p.ConnectionID,
			UserID:       p.UserID,
			Username:     p.Username,
			IsOnline:     p.IsOnline,
			LastSeen:     p.LastSeen,
		}
	})
}

func FromMessage(m domain.Message) PrivateMessage {
	return PrivateMessage{
		ID:             m.ID,
		SenderID:       m.SenderID,
		SenderUsername: m.SenderUsername,
		RecipientID:    m.RecipientID,
		Message:        m.Content,
		Timestamp:      m.Timestamp,
		IsRead:         m.IsRead,
	}
}

// FromMessages never returns nil so an empty history encodes as [].
func FromMessages(messages []domain.Message) []PrivateMessage {
	res := make([]PrivateMessage, 0, len(messages))
	for _, m := range messages {
		res = append(res, FromMessage(m))
	}
	return res
}
