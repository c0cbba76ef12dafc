// Package domain contains core concepts of the relay.
// This file defines the presence record owned by a live connection.
// No runtime, network, or UI logic should be added here.
package domain

import "time"

// UserPresence is owned by, and destroyed with, its connection.
// UserID is supplied by the client and never validated.
type UserPresence struct {
	ConnectionID string
	UserID       string
	Username     string
	IsOnline     bool
	LastSeen     time.Time
}
