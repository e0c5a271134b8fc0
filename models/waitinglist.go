package models

import "time"

// WaitingListEntry records a user wanting a spot in a currently-full session.
// An entry exists only while the user has no open, non-no-show booking for
// that session.
type WaitingListEntry struct {
	ID        string    `bson:"id" json:"id"`
	SessionID string    `bson:"session_id" json:"session_id"`
	UserID    string    `bson:"user_id" json:"user_id"`
	UserEmail string    `bson:"user_email" json:"user_email"`
	JoinedAt  time.Time `bson:"joined_at" json:"joined_at"`
}
