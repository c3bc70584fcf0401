package models

// Interest statuses. Accepted, declined, withdrawn and expired are
// terminal: no transition may leave them.
const (
	StatusPending   = "pending"
	StatusAccepted  = "accepted"
	StatusDeclined  = "declined"
	StatusWithdrawn = "withdrawn"
	StatusExpired   = "expired"
)

// Interest types
const (
	InterestTypeStandard = "standard"
	InterestTypePriority = "priority"
)

// Notification types
const (
	NotificationNewInterest      = "new_interest"
	NotificationInterestAccepted = "interest_accepted"
	NotificationInterestDeclined = "interest_declined"
	NotificationMutualMatch      = "mutual_match"
)

// Notification priorities
const (
	PriorityNormal = "normal"
	PriorityHigh   = "high"
)

// IsTerminal reports whether a status permits no further transition.
func IsTerminal(status string) bool {
	switch status {
	case StatusAccepted, StatusDeclined, StatusWithdrawn, StatusExpired:
		return true
	}
	return false
}

// IsActiveStatus reports whether an Interest with this status blocks a
// new Interest for the same ordered (sender, receiver) pair.
func IsActiveStatus(status string) bool {
	return status == StatusPending || status == StatusAccepted
}
