package models

import "time"

// Session is a scheduled, capacity-limited bookable event (class, workshop
// or private lesson).
type Session struct {
	ID                 string    `bson:"id" json:"id"`
	Name               string    `bson:"name" json:"name"`
	EventType          string    `bson:"event_type" json:"event_type"` // e.g. "regular_session", "workshop", "private"
	Start              time.Time `bson:"start" json:"start"`
	Capacity           int       `bson:"capacity" json:"capacity"`
	Price              float64   `bson:"price" json:"price"`
	AllowCancellation  bool      `bson:"allow_cancellation" json:"allow_cancellation"`
	CancellationPeriod int       `bson:"cancellation_period" json:"cancellation_period"` // hours before start
	CancellationFee    float64   `bson:"cancellation_fee" json:"cancellation_fee"`
	Cancelled          bool      `bson:"cancelled" json:"cancelled"`
	CreatedAt          time.Time `bson:"created_at" json:"created_at"`
}

// SessionView is the timetable representation returned to clients, with the
// live spaces count computed from booking rows (never stored).
type SessionView struct {
	Session
	SpacesLeft int `json:"spaces_left"`
}
