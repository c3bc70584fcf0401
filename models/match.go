package models

import "time"

// MatchMarker is the claim record for a mutual match, keyed by the
// unordered pair of user IDs. Whichever accept path writes it first
// owns firing the mutual_match notifications; the loser observes the
// marker already claimed and does nothing.
type MatchMarker struct {
	PairID    string    `dynamodbav:"pairId" json:"pairId"`
	UserA     string    `dynamodbav:"userA" json:"userA"`
	UserB     string    `dynamodbav:"userB" json:"userB"`
	ClaimedAt time.Time `dynamodbav:"claimedAt" json:"claimedAt"`
}

// MatchPairID normalizes two user IDs into the unordered pair key.
func MatchPairID(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "#" + b
}

// NewMatchMarker builds a marker with the pair in normalized order.
func NewMatchMarker(a, b string, at time.Time) *MatchMarker {
	if a > b {
		a, b = b, a
	}
	return &MatchMarker{PairID: a + "#" + b, UserA: a, UserB: b, ClaimedAt: at}
}

// MatchMarkersTable is the DynamoDB table holding match claim markers.
const MatchMarkersTable = "MatchMarkers"
