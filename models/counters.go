package models

// UserCounters are eventually-consistent per-user projections, bumped
// in the same logical unit as the write that changes them. They are
// never rebuilt by a full scan on the request hot path.
type UserCounters struct {
	UserID        string `dynamodbav:"userId" json:"userId"`
	SentCount     int    `dynamodbav:"sentCount" json:"sentCount"`
	ReceivedCount int    `dynamodbav:"receivedCount" json:"receivedCount"`
	UnreadCount   int    `dynamodbav:"unreadCount" json:"unreadCount"`
	MutualCount   int    `dynamodbav:"mutualCount" json:"mutualCount"`
}

// CounterDelta is a set of signed counter adjustments applied
// atomically to one user's projection row.
type CounterDelta struct {
	Sent     int
	Received int
	Unread   int
	Mutual   int
}

// IsZero reports whether the delta would change nothing.
func (d CounterDelta) IsZero() bool {
	return d.Sent == 0 && d.Received == 0 && d.Unread == 0 && d.Mutual == 0
}

// StatusBreakdown tallies interests by effective status for one
// direction (sent or received) of a user's summary.
type StatusBreakdown struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Accepted  int `json:"accepted"`
	Declined  int `json:"declined"`
	Withdrawn int `json:"withdrawn"`
	Expired   int `json:"expired"`
}

// NotificationSummary is the notifications slice of a user summary.
type NotificationSummary struct {
	Total  int `json:"total"`
	Unread int `json:"unread"`
}

// InterestSummary is the aggregate view returned by getInterestSummary.
type InterestSummary struct {
	UserID        string              `json:"userId"`
	Sent          StatusBreakdown     `json:"sent"`
	Received      StatusBreakdown     `json:"received"`
	Mutual        int                 `json:"mutual"`
	Notifications NotificationSummary `json:"notifications"`
}

// InterestStats is the historical/analytics projection computed by
// CalculateInterestStats.
type InterestStats struct {
	Total        int     `json:"total"`
	Pending      int     `json:"pending"`
	Accepted     int     `json:"accepted"`
	Declined     int     `json:"declined"`
	Withdrawn    int     `json:"withdrawn"`
	Expired      int     `json:"expired"`
	SuccessRate  float64 `json:"successRate"`
	ResponseRate float64 `json:"responseRate"`
}

// CountersTable is the DynamoDB table holding per-user counters.
const CountersTable = "UserCounters"
