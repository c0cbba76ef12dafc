package repositories

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

var _ contract.MessageStore = (*BadgerStore)(nil)

// BadgerStore keeps conversations in a badger instance.
// Keys are formatted as "msg:{hex(conversation)}:{seq}" where seq is a
// 19-digit zero padded counter, so a prefix scan returns messages in
// arrival order. The conversation key is hex encoded because user ids are
// opaque and may contain the ':' separator.
type BadgerStore struct {
	mu  sync.Mutex
	db  *badger.DB
	log *slog.Logger
	seq map[domain.ConversationKey]uint64
}

func NewBadgerStore(db *badger.DB, log *slog.Logger) *BadgerStore {
	return &BadgerStore{db: db, log: log, seq: make(map[domain.ConversationKey]uint64)}
}

// OpenInMemoryBadger opens a badger instance that never touches the disk.
// Messages are gone with the process.
func OpenInMemoryBadger() (*badger.DB, error) {
	return badger.Open(badger.DefaultOptions("").
		WithInMemory(true).
		WithLoggingLevel(badger.ERROR))
}

func (s *BadgerStore) Append(key domain.ConversationKey, message domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bytes, err := encodeMessage(message)
	if err != nil {
		return fmt.Errorf("encode message %s: %w", message.ID, err)
	}
	next := s.seq[key] + 1
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(messageKey(key, next), bytes)
	})
	if err != nil {
		return fmt.Errorf("store message %s: %w", message.ID, err)
	}
	s.seq[key] = next
	return nil
}

// MarkRead rewrites every unread message addressed to recipientID.
// Updates go through a write batch so long conversations never hit ErrTxnTooBig.
func (s *BadgerStore) MarkRead(key domain.ConversationKey, recipientID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	type update struct {
		key   []byte
		value []byte
	}
	var updates []update

	err := s.scan(key, func(itemKey []byte, message domain.Message) error {
		if message.RecipientID != recipientID || message.IsRead {
			return nil
		}
		message.IsRead = true
		bytes, err := encodeMessage(message)
		if err != nil {
			return err
		}
		updates = append(updates, update{key: itemKey, value: bytes})
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scan conversation: %w", err)
	}
	if len(updates) == 0 {
		return 0, nil
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, u := range updates {
		if err = wb.Set(u.key, u.value); err != nil {
			return 0, fmt.Errorf("mark read: %w", err)
		}
	}
	if err = wb.Flush(); err != nil {
		return 0, fmt.Errorf("mark read: %w", err)
	}
	s.log.Debug("Messages marked as read", "conversation", key, "count", len(updates))
	return len(updates), nil
}

func (s *BadgerStore) History(key domain.ConversationKey) ([]domain.Message, error) {
	messages := []domain.Message{}
	err := s.scan(key, func(_ []byte, message domain.Message) error {
		messages = append(messages, message)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read conversation: %w", err)
	}
	return messages, nil
}

// scan visits the conversation in key order, which is arrival order.
func (s *BadgerStore) scan(key domain.ConversationKey, visit func(itemKey []byte, message domain.Message) error) error {
	prefix := conversationPrefix(key)
	return s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			message, err := decodeMessage(value)
			if err != nil {
				return err
			}
			if err = visit(item.KeyCopy(nil), message); err != nil {
				return err
			}
		}
		return nil
	})
}

func conversationPrefix(key domain.ConversationKey) []byte {
	return []byte(fmt.Sprintf("msg:%s:", hex.EncodeToString([]byte(key))))
}

func messageKey(key domain.ConversationKey, seq uint64) []byte {
	return []byte(fmt.Sprintf("msg:%s:%019d", hex.EncodeToString([]byte(key)), seq))
}

func encodeMessage(message domain.Message) ([]byte, error) {
	value, err := structpb.NewStruct(map[string]any{
		"id":             message.ID,
		"senderId":       message.SenderID,
		"senderUsername": message.SenderUsername,
		"recipientId":    message.RecipientID,
		"content":        message.Content,
		"timestamp":      message.Timestamp,
		"isRead":         message.IsRead,
	})
	if err != nil {
		return nil, err
	}
	return proto.Marshal(value)
}

func decodeMessage(bytes []byte) (domain.Message, error) {
	var value structpb.Struct
	if err := proto.Unmarshal(bytes, &value); err != nil {
		return domain.Message{}, err
	}
	fields := value.GetFields()
	return domain.Message{
		ID:             fields["id"].GetStringValue(),
		SenderID:       fields["senderId"].GetStringValue(),
		SenderUsername: fields["senderUsername"].GetStringValue(),
		RecipientID:    fields["recipientId"].GetStringValue(),
		Content:        fields["content"].GetStringValue(),
		Timestamp:      fields["timestamp"].GetStringValue(),
		IsRead:         fields["isRead"].GetBoolValue(),
	}, nil
}
