package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPairKey_Ordered(t *testing.T) {
	assert.Equal(t, "alice#bob", PairKey("alice", "bob"))
	assert.NotEqual(t, PairKey("alice", "bob"), PairKey("bob", "alice"),
		"the duplicate-prevention key is direction-sensitive")
}

func TestMatchPairID_Unordered(t *testing.T) {
	assert.Equal(t, MatchPairID("alice", "bob"), MatchPairID("bob", "alice"),
		"the match claim key must be direction-insensitive")
	assert.Equal(t, "alice#bob", MatchPairID("bob", "alice"))
}

func TestNewMatchMarker_Normalizes(t *testing.T) {
	at := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	m := NewMatchMarker("bob", "alice", at)
	assert.Equal(t, "alice#bob", m.PairID)
	assert.Equal(t, "alice", m.UserA)
	assert.Equal(t, "bob", m.UserB)
	assert.Equal(t, at, m.ClaimedAt)
}

func TestDayKey_BucketsByCalendarDay(t *testing.T) {
	lateNight := time.Date(2025, 3, 10, 23, 59, 0, 0, time.UTC)
	earlyNext := time.Date(2025, 3, 11, 0, 1, 0, 0, time.UTC)

	assert.Equal(t, "alice#2025-03-10", DayKey("alice", lateNight))
	assert.NotEqual(t, DayKey("alice", lateNight), DayKey("alice", earlyNext))
}

func TestEffectiveStatus(t *testing.T) {
	sent := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	in := Interest{Status: StatusPending, SentAt: sent, ExpiresAt: sent.Add(30 * 24 * time.Hour)}

	assert.Equal(t, StatusPending, in.EffectiveStatus(sent.Add(29*24*time.Hour)))
	assert.Equal(t, StatusExpired, in.EffectiveStatus(sent.Add(31*24*time.Hour)))

	// Only pending decays; terminal statuses read as stored.
	in.Status = StatusAccepted
	assert.Equal(t, StatusAccepted, in.EffectiveStatus(sent.Add(31*24*time.Hour)))
}

func TestIsTerminal(t *testing.T) {
	assert.False(t, IsTerminal(StatusPending))
	for _, s := range []string{StatusAccepted, StatusDeclined, StatusWithdrawn, StatusExpired} {
		assert.True(t, IsTerminal(s), s)
	}
}

func TestEventDedupKey_Stable(t *testing.T) {
	at := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	a := Event{Entity: EntityInterest, EntityID: "i-1", Action: ActionCreated, Timestamp: at}
	b := Event{Entity: EntityInterest, EntityID: "i-1", Action: ActionCreated, Timestamp: at}

	assert.Equal(t, a.DedupKey(), b.DedupKey(), "redelivered events share a dedup key")

	c := Event{Entity: EntityInterest, EntityID: "i-1", Action: ActionUpdated, Timestamp: at}
	assert.NotEqual(t, a.DedupKey(), c.DedupKey())
}
