package repositories

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

// stores runs every scenario against each MessageStore implementation.
func stores(t *testing.T) map[string]contract.MessageStore {
	t.Helper()
	db, err := OpenInMemoryBadger()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return map[string]contract.MessageStore{
		"memory": NewMemoryStore(),
		"badger": NewBadgerStore(db, logs.GetLoggerFromLevel(slog.LevelDebug)),
	}
}

func message(id, from, to, content string) domain.Message {
	return domain.Message{
		ID:             id,
		SenderID:       from,
		SenderUsername: "name-" + from,
		RecipientID:    to,
		Content:        content,
		Timestamp:      "2024-01-01T10:00:00Z",
	}
}

func TestStore_History_Keeps_Append_Order(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			req := require.New(t)
			key := domain.DeriveKey("u1", "u2")

			// Given messages appended out of timestamp order
			appended := []domain.Message{
				message("m1", "u1", "u2", "hello"),
				message("m2", "u2", "u1", "hi there"),
				message("m1", "u1", "u2", "duplicate ids are kept"),
			}
			appended[1].Timestamp = "2023-01-01T00:00:00Z"
			for _, m := range appended {
				req.NoError(store.Append(key, m))
			}

			// Then history returns them as appended, unmodified
			history, err := store.History(key)
			req.NoError(err)
			req.Equal(appended, history)
		})
	}
}

func TestStore_History_Of_Empty_Conversation(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			req := require.New(t)

			history, err := store.History(domain.DeriveKey("nobody", "talked"))
			req.NoError(err)
			req.NotNil(history)
			req.Empty(history)
		})
	}
}

func TestStore_Conversations_Are_Isolated(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			req := require.New(t)

			// Given two conversations whose keys share a prefix
			req.NoError(store.Append(domain.DeriveKey("a", "b"), message("m1", "a", "b", "one")))
			req.NoError(store.Append(domain.DeriveKey("a", "b:c"), message("m2", "a", "b:c", "two")))

			history, err := store.History(domain.DeriveKey("b", "a"))
			req.NoError(err)
			req.Len(history, 1)
			req.Equal("m1", history[0].ID)
		})
	}
}

func TestStore_MarkRead_Is_Idempotent(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			req := require.New(t)
			key := domain.DeriveKey("u1", "u2")

			// Given two messages to u2 and one to u1
			req.NoError(store.Append(key, message("m1", "u1", "u2", "one")))
			req.NoError(store.Append(key, message("m2", "u2", "u1", "two")))
			req.NoError(store.Append(key, message("m3", "u1", "u2", "three")))

			// When u2 reads the conversation
			marked, err := store.MarkRead(key, "u2")
			req.NoError(err)
			req.Equal(2, marked)

			once, err := store.History(key)
			req.NoError(err)

			// And reads it again
			marked, err = store.MarkRead(key, "u2")
			req.NoError(err)
			req.Zero(marked)

			// Then the state is the same as after the first call
			twice, err := store.History(key)
			req.NoError(err)
			req.Equal(once, twice)

			req.True(twice[0].IsRead)
			req.False(twice[1].IsRead)
			req.True(twice[2].IsRead)
		})
	}
}

func TestStore_MarkRead_Unknown_Conversation(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			req := require.New(t)

			marked, err := store.MarkRead(domain.DeriveKey("x", "y"), "x")
			req.NoError(err)
			req.Zero(marked)
		})
	}
}

func TestBadgerStore_Long_Conversation(t *testing.T) {
	req := require.New(t)
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	req.NoError(err)
	defer db.Close()

	store := NewBadgerStore(db, slog.Default())
	key := domain.DeriveKey("u1", "u2")
	for i := 0; i < 25; i++ {
		req.NoError(store.Append(key, message(fmt.Sprintf("m%02d", i), "u1", "u2", "ping")))
	}

	marked, err := store.MarkRead(key, "u2")
	req.NoError(err)
	req.Equal(25, marked)

	history, err := store.History(key)
	req.NoError(err)
	req.Len(history, 25)
	for i, m := range history {
		req.Equal(fmt.Sprintf("m%02d", i), m.ID)
		req.True(m.IsRead)
	}
}

func TestNewStore(t *testing.T) {
	req := require.New(t)
	log := slog.Default()

	store, closeStore, err := NewStore(StoreMemory, log)
	req.NoError(err)
	req.IsType(&MemoryStore{}, store)
	req.NoError(closeStore())

	store, closeStore, err = NewStore(StoreBadger, log)
	req.NoError(err)
	req.IsType(&BadgerStore{}, store)
	req.NoError(store.Append(domain.DeriveKey("u1", "u2"), message("m1", "u1", "u2", "hi")))
	req.NoError(closeStore())

	_, _, err = NewStore("postgres", log)
	req.ErrorIs(err, errors.ErrUnknownStoreBackend)
}
