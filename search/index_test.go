package search

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"context"
	"log/slog"
	"testing"

	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

func newIndex(t *testing.T) *Index {
	t.Helper()
	index, err := NewIndex(logs.GetLoggerFromLevel(slog.LevelDebug), 50)
	require.NoError(t, err)
	t.Cleanup(func() { _ = index.Close() })
	return index
}

func TestIndex_Search_Within_Conversation(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	index := newIndex(t)

	// Given messages in two conversations
	messages := []event.PrivateMessage{
		{ID: "m1", SenderID: "u1", RecipientID: "u2", Message: "Lunch tomorrow?"},
		{ID: "m2", SenderID: "u2", RecipientID: "u1", Message: "Sure, lunch at noon"},
		{ID: "m3", SenderID: "u1", RecipientID: "u2", Message: "Great"},
		{ID: "m4", SenderID: "u1", RecipientID: "u3", Message: "lunch with you too"},
	}
	for _, m := range messages {
		req.NoError(index.Consume(ctx, m))
	}

	// When u2 searches the u1/u2 conversation
	hits, err := index.Search(ctx, domain.DeriveKey("u2", "u1"), "LUNCH")

	// Then only that pair's matches come back
	req.NoError(err)
	req.ElementsMatch([]string{"m1", "m2"}, lo.Map(hits, func(h domain.SearchHit, _ int) string { return h.MessageID }))
}

func TestIndex_Search_No_Match(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	index := newIndex(t)

	req.NoError(index.Consume(ctx, event.PrivateMessage{ID: "m1", SenderID: "u1", RecipientID: "u2", Message: "hello"}))

	hits, err := index.Search(ctx, domain.DeriveKey("u1", "u2"), "goodbye")
	req.NoError(err)
	req.Empty(hits)
}

func TestIndex_Ignores_Other_Events(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	index := newIndex(t)

	req.NoError(index.Consume(ctx, event.MessageSent{MessageID: "m1"}))
	req.NoError(index.Consume(ctx, event.UsersUpdated{}))

	hits, err := index.Search(ctx, domain.DeriveKey("u1", "u2"), "m1")
	req.NoError(err)
	req.Empty(hits)
}

func TestIndex_Reused_Message_Id_Keeps_Both_Documents(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	index := newIndex(t)

	// Given a client that reuses the same message id
	req.NoError(index.Consume(ctx, event.PrivateMessage{ID: "m1", SenderID: "u1", RecipientID: "u2", Message: "first lunch", Timestamp: "t1"}))
	req.NoError(index.Consume(ctx, event.PrivateMessage{ID: "m1", SenderID: "u1", RecipientID: "u2", Message: "second dinner", Timestamp: "t2"}))

	// When each message is searched
	lunch, err := index.Search(ctx, domain.DeriveKey("u1", "u2"), "lunch")
	req.NoError(err)
	dinner, err := index.Search(ctx, domain.DeriveKey("u1", "u2"), "dinner")
	req.NoError(err)

	// Then the older one was not overwritten and each hit is distinct
	req.Equal([]domain.SearchHit{{MessageID: "m1", Timestamp: "t1", Content: "first lunch"}}, lunch)
	req.Equal([]domain.SearchHit{{MessageID: "m1", Timestamp: "t2", Content: "second dinner"}}, dinner)
}
