// Package search indexes private messages for full-text lookup within a conversation.
// The index lives in memory and is fed asynchronously as a permanent event sink,
// so a message becomes searchable shortly after it was relayed.
package search

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"

	"github.com/blugelabs/bluge"
	"github.com/blugelabs/bluge/analysis"
	"github.com/blugelabs/bluge/analysis/analyzer"
)

const (
	fieldConversation = "conversation"
	fieldContent      = "content"
	fieldMessageID    = "message_id"
	fieldTimestamp    = "timestamp"
)

var (
	_ contract.SearchIndex = (*Index)(nil)
	_ contract.EventSink   = (*Index)(nil)
)

type Index struct {
	writer   *bluge.Writer
	analyzer *analysis.Analyzer
	log      *slog.Logger
	limit    int
	sequence atomic.Uint64
}

func NewIndex(log *slog.Logger, limit int) (*Index, error) {
	writer, err := bluge.OpenWriter(bluge.InMemoryOnlyConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to open bluge writer: %w", err)
	}
	return &Index{
		writer:   writer,
		analyzer: analyzer.NewStandardAnalyzer(),
		log:      log,
		limit:    limit,
	}, nil
}

// Consume indexes relayed private messages and ignores everything else.
// Documents are keyed by a server-side sequence since client ids may repeat.
func (i *Index) Consume(_ context.Context, e event.DomainEvent) error {
	msg, ok := e.(event.PrivateMessage)
	if !ok {
		return nil
	}
	key := domain.DeriveKey(msg.SenderID, msg.RecipientID)
	doc := bluge.NewDocument(documentID(key, i.sequence.Add(1))).
		AddField(bluge.NewKeywordField(fieldConversation, string(key))).
		AddField(bluge.NewTextField(fieldContent, msg.Message).WithAnalyzer(i.analyzer).StoreValue()).
		AddField(bluge.NewStoredOnlyField(fieldMessageID, []byte(msg.ID))).
		AddField(bluge.NewStoredOnlyField(fieldTimestamp, []byte(msg.Timestamp)))

	if err := i.writer.Update(doc.ID(), doc); err != nil {
		return fmt.Errorf("index message %s: %w", msg.ID, err)
	}
	return nil
}

// Search returns the best matching messages of one conversation.
func (i *Index) Search(ctx context.Context, key domain.ConversationKey, query string) ([]domain.SearchHit, error) {
	reader, err := i.writer.Reader()
	if err != nil {
		return nil, fmt.Errorf("open index reader: %w", err)
	}
	defer func() { _ = reader.Close() }()

	q := bluge.NewBooleanQuery().
		AddMust(bluge.NewTermQuery(string(key)).SetField(fieldConversation)).
		AddMust(bluge.NewMatchQuery(query).SetField(fieldContent).SetAnalyzer(i.analyzer))

	matches, err := reader.Search(ctx, bluge.NewTopNSearch(i.limit, q))
	if err != nil {
		return nil, fmt.Errorf("search conversation: %w", err)
	}

	var hits []domain.SearchHit
	match, err := matches.Next()
	for err == nil && match != nil {
		var hit domain.SearchHit
		err = match.VisitStoredFields(func(field string, value []byte) bool {
			switch field {
			case fieldMessageID:
				hit.MessageID = string(value)
			case fieldTimestamp:
				hit.Timestamp = string(value)
			case fieldContent:
				hit.Content = string(value)
			}
			return true
		})
		if err != nil {
			break
		}
		hits = append(hits, hit)
		match, err = matches.Next()
	}
	if err != nil {
		return nil, fmt.Errorf("iterate matches: %w", err)
	}
	i.log.Debug("Conversation searched", "conversation", key, "hits", len(hits))
	return hits, nil
}

func (i *Index) Close() error {
	return i.writer.Close()
}

func documentID(key domain.ConversationKey, seq uint64) string {
	return string(key) + "/" + strconv.FormatUint(seq, 10)
}
