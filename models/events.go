package models

import (
	"fmt"
	"time"
)

// Event entities and actions published on the propagation channel.
const (
	EntityInterest     = "interest"
	EntityNotification = "notification"
	EntityMatch        = "match"
	EntitySuggestion   = "suggestion"
)

const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
)

// Event is a state-change record published on a per-user topic.
// Delivery is at-least-once; consumers de-duplicate on DedupKey.
type Event struct {
	Entity    string      `json:"entity"`
	EntityID  string      `json:"entityId"`
	Action    string      `json:"action"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// DedupKey identifies an event across redeliveries and backlog replay.
func (e Event) DedupKey() string {
	return fmt.Sprintf("%s:%s:%s:%d", e.Entity, e.EntityID, e.Action, e.Timestamp.UnixNano())
}

// ActivityEntry is one line of a user's live activity feed.
type ActivityEntry struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}
