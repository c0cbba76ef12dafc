package repositories

import (
	"chat-relay/contract"
	"chat-relay/errors"
	"fmt"
	"log/slog"
)

const (
	StoreMemory = "memory"
	StoreBadger = "badger"
)

// NewStore builds the message store named by backend.
// The returned close function releases the underlying database, if any.
func NewStore(backend string, log *slog.Logger) (contract.MessageStore, func() error, error) {
	switch backend {
	case StoreMemory:
		return NewMemoryStore(), func() error { return nil }, nil
	case StoreBadger:
		db, err := OpenInMemoryBadger()
		if err != nil {
			return nil, nil, fmt.Errorf("database opening failed: %w", err)
		}
		return NewBadgerStore(db, log), db.Close, nil
	default:
		return nil, nil, fmt.Errorf("%w: %q", errors.ErrUnknownStoreBackend, backend)
	}
}
