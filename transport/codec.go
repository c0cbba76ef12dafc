package transport

import (
	"bytes"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
)

const (
	JoinName               = "join"
	PrivateMessageName     = "private-message"
	MarkMessagesReadName   = "mark-messages-read"
	TypingStartName        = "typing-start"
	TypingStopName         = "typing-stop"
	GetConversationName    = "get-conversation"
	SearchConversationName = "search-conversation"
)

// Required fields are pointers: `required` then only rejects an absent
// field, an empty string is a valid opaque value.
var validate = validator.New()

// Frame is the envelope of every websocket message, in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// scalar accepts a JSON string, number or boolean and keeps its text.
// Clients commonly send timestamps as epoch milliseconds.
type scalar string

func (s *scalar) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0, bytes.Equal(data, []byte("null")):
		*s = ""
	case data[0] == '"':
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = scalar(str)
	case data[0] == '{', data[0] == '[':
		return fmt.Errorf("expected a scalar, got %s", data)
	default:
		*s = scalar(data)
	}
	return nil
}

type joinPayload struct {
	Username *string `json:"username" validate:"required"`
	UserID   *string `json:"userId"`
}

type privateMessagePayload struct {
	RecipientID *string `json:"recipientId" validate:"required"`
	Message     *string `json:"message" validate:"required"`
	Timestamp   scalar  `json:"timestamp"`
	MessageID   scalar  `json:"messageId"`
}

type markReadPayload struct {
	SenderID *string `json:"senderId" validate:"required"`
}

type recipientPayload struct {
	RecipientID *string `json:"recipientId" validate:"required"`
}

type searchPayload struct {
	RecipientID *string `json:"recipientId" validate:"required"`
	Query       string  `json:"query"`
}

// Decode turns a raw inbound frame into a command for the relay loop.
func Decode(connectionID string, raw []byte) (domain.Command, error) {
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrMalformedPayload, err)
	}

	switch frame.Event {
	case JoinName:
		var p joinPayload
		if err := decodePayload(frame.Data, &p); err != nil {
			return nil, err
		}
		return domain.Join{
			Connection: connectionID,
			UserID:     lo.FromPtr(p.UserID),
			Username:   lo.FromPtr(p.Username),
		}, nil
	case PrivateMessageName:
		var p privateMessagePayload
		if err := decodePayload(frame.Data, &p); err != nil {
			return nil, err
		}
		return domain.SendPrivateMessage{
			Connection:  connectionID,
			RecipientID: lo.FromPtr(p.RecipientID),
			Content:     lo.FromPtr(p.Message),
			Timestamp:   string(p.Timestamp),
			MessageID:   string(p.MessageID),
		}, nil
	case MarkMessagesReadName:
		var p markReadPayload
		if err := decodePayload(frame.Data, &p); err != nil {
			return nil, err
		}
		return domain.MarkMessagesRead{Connection: connectionID, SenderID: lo.FromPtr(p.SenderID)}, nil
	case TypingStartName, TypingStopName:
		var p recipientPayload
		if err := decodePayload(frame.Data, &p); err != nil {
			return nil, err
		}
		signal := domain.TypingStart
		if frame.Event == TypingStopName {
			signal = domain.TypingStop
		}
		return domain.Typing{Connection: connectionID, RecipientID: lo.FromPtr(p.RecipientID), Signal: signal}, nil
	case GetConversationName:
		var p recipientPayload
		if err := decodePayload(frame.Data, &p); err != nil {
			return nil, err
		}
		return domain.GetConversation{Connection: connectionID, RecipientID: lo.FromPtr(p.RecipientID)}, nil
	case SearchConversationName:
		var p searchPayload
		if err := decodePayload(frame.Data, &p); err != nil {
			return nil, err
		}
		return domain.SearchConversation{Connection: connectionID, RecipientID: lo.FromPtr(p.RecipientID), Query: p.Query}, nil
	default:
		return nil, fmt.Errorf("%w: %q", errors.ErrUnknownEvent, frame.Event)
	}
}

func decodePayload(data json.RawMessage, payload any) error {
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}
	if err := json.Unmarshal(data, payload); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrMalformedPayload, err)
	}
	if err := validate.Struct(payload); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrMalformedPayload, err)
	}
	return nil
}

// Encode renders an outbound event as a frame.
func Encode(evt event.DomainEvent) ([]byte, error) {
	data, err := json.Marshal(evt)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Event: evt.Name(), Data: data})
}
