package repositories

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"slices"
	"sync"
)

var _ contract.MessageStore = (*MemoryStore)(nil)

// MemoryStore keeps every conversation as an ordered slice, in arrival order.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[domain.ConversationKey][]domain.Message
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{conversations: make(map[domain.ConversationKey][]domain.Message)}
}

func (s *MemoryStore) Append(key domain.ConversationKey, message domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[key] = append(s.conversations[key], message)
	return nil
}

// MarkRead flips every unread message addressed to recipientID.
// Calling it again changes nothing.
func (s *MemoryStore) MarkRead(key domain.ConversationKey, recipientID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	messages := s.conversations[key]
	marked := 0
	for i := range messages {
		if messages[i].RecipientID == recipientID && !messages[i].IsRead {
			messages[i].IsRead = true
			marked++
		}
	}
	return marked, nil
}

// History returns a copy of the log, empty when the pair never talked.
func (s *MemoryStore) History(key domain.ConversationKey) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	messages, ok := s.conversations[key]
	if !ok {
		return []domain.Message{}, nil
	}
	return slices.Clone(messages), nil
}
