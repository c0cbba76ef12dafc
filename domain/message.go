// Package domain contains core concepts of the relay.
// This file defines private messages exchanged between two users.
// Messages are immutable except for their read flag.
package domain

// Message is appended once to a conversation and never deleted.
// IsRead only ever moves from false to true.
type Message struct {
	ID             string
	SenderID       string
	SenderUsername string
	RecipientID    string
	Content        string
	Timestamp      string
	IsRead         bool
}

// SearchHit identifies a matching message. Client message ids are not
// unique, so a hit is matched against history on all three fields.
type SearchHit struct {
	MessageID string
	Timestamp string
	Content   string
}

func (m Message) Hit() SearchHit {
	return SearchHit{MessageID: m.ID, Timestamp: m.Timestamp, Content: m.Content}
}
