package models

import (
	"fmt"
	"time"
)

// Interest is a one-directional expression of interest from one user
// toward another. Interests are never deleted: expiry is a status flip,
// not a removal.
type Interest struct {
	ID              string     `dynamodbav:"interestId" json:"interestId"`
	SenderID        string     `dynamodbav:"senderId" json:"senderId"`
	ReceiverID      string     `dynamodbav:"receiverId" json:"receiverId"`
	Status          string     `dynamodbav:"status" json:"status"`
	Type            string     `dynamodbav:"type" json:"type"`
	Message         string     `dynamodbav:"message,omitempty" json:"message,omitempty"`
	IsRead          bool       `dynamodbav:"isRead" json:"isRead"`
	SentAt          time.Time  `dynamodbav:"sentAt" json:"sentAt"`
	RespondedAt     *time.Time `dynamodbav:"respondedAt,omitempty" json:"respondedAt,omitempty"`
	ExpiresAt       time.Time  `dynamodbav:"expiresAt" json:"expiresAt"`
	AIMatchScore    *float64   `dynamodbav:"aiMatchScore,omitempty" json:"aiMatchScore,omitempty"`
	CommonInterests []string   `dynamodbav:"commonInterests,omitempty" json:"commonInterests,omitempty"`
}

// PairKey is the ordered (sender, receiver) key used to enforce the
// at-most-one-active-interest-per-pair constraint.
func PairKey(senderID, receiverID string) string {
	return senderID + "#" + receiverID
}

// DayKey buckets a timestamp into its calendar day for the per-sender
// daily quota.
func DayKey(senderID string, t time.Time) string {
	return fmt.Sprintf("%s#%s", senderID, t.Format("2006-01-02"))
}

// Expired reports whether the interest is past its expiry instant.
// The stored status may still be pending; expiry is evaluated lazily.
func (i *Interest) Expired(now time.Time) bool {
	return now.After(i.ExpiresAt)
}

// EffectiveStatus is the status a reader should see: a pending interest
// past its expiresAt reads as expired even before the sweep (or a
// respond call) has flipped the stored status.
func (i *Interest) EffectiveStatus(now time.Time) string {
	if i.Status == StatusPending && i.Expired(now) {
		return StatusExpired
	}
	return i.Status
}

// InterestsTable is the DynamoDB table holding interests.
const InterestsTable = "Interests"

// ActivePairsTable holds one guard item per active (sender, receiver)
// pair; conditional puts against it are the duplicate-prevention
// uniqueness constraint.
const ActivePairsTable = "InterestPairs"

// QuotaTable holds the atomic per-(sender, day) send counters.
const QuotaTable = "InterestQuotas"

// GSI names used when querying interests by participant.
const (
	SenderIndex   = "senderId-index"
	ReceiverIndex = "receiverId-index"
)
