package services

import (
	"context"
	"time"

	"kindred_server/models"
)

// InterestStore owns interest rows plus the active-pair uniqueness
// guard. CreateInterest applies the interest insert, the pair guard and
// the sender/receiver counter bumps as one logical unit: either all of
// it becomes visible or none of it does.
type InterestStore interface {
	// CreateInterest fails with *ConflictError when an active
	// (pending/accepted) interest already exists for the ordered pair.
	CreateInterest(ctx context.Context, in *models.Interest) error

	// GetInterest fails with *NotFoundError for unknown IDs.
	GetInterest(ctx context.Context, id string) (*models.Interest, error)

	// TransitionInterest compare-and-swaps status from `from` to `to`,
	// stamping respondedAt for responses. The same unit releases the
	// active-pair guard when the new status is no longer active and
	// decrements the receiver's unreadCount when the interest was
	// unread. Fails with *ConflictError when the stored status no
	// longer matches `from`.
	TransitionInterest(ctx context.Context, id, from, to string, at time.Time) (*models.Interest, error)

	// GetActiveInterestByPair resolves the active (pending/accepted)
	// interest for the ordered pair via the pair guard, reading
	// strongly consistent so a just-committed write is always visible.
	// Returns nil, nil when the pair holds no active interest.
	GetActiveInterestByPair(ctx context.Context, senderID, receiverID string) (*models.Interest, error)

	// ListBySender / ListByReceiver return one user's interests in one
	// direction. Indexed lookups, not full scans; freshness is
	// eventual, so correctness-bearing reads must not go through them.
	ListBySender(ctx context.Context, userID string) ([]models.Interest, error)
	ListByReceiver(ctx context.Context, userID string) ([]models.Interest, error)

	// ListOverduePending returns pending interests whose expiresAt is
	// before the cutoff. Used only by the optional expiry sweep.
	ListOverduePending(ctx context.Context, cutoff time.Time) ([]models.Interest, error)
}

// QuotaStore gates interest creation on the per-(sender, day) counter.
type QuotaStore interface {
	// IncrementQuota atomically bumps the sender's counter for the
	// given day key and fails with *LimitExceededError when the bump
	// would pass the limit.
	IncrementQuota(ctx context.Context, dayKey string, limit int) error

	// RollbackQuota undoes one increment after the gated insert failed
	// for an unrelated reason.
	RollbackQuota(ctx context.Context, dayKey string) error
}

// MatchMarkerStore owns the mutual-match claim markers.
type MatchMarkerStore interface {
	// ClaimMatchMarker writes the marker if and only if the pair is
	// unclaimed. Returns false when another caller got there first.
	ClaimMatchMarker(ctx context.Context, marker *models.MatchMarker) (bool, error)
}

// CounterStore owns the per-user projection rows.
type CounterStore interface {
	AddCounters(ctx context.Context, userID string, delta models.CounterDelta) error
	GetCounters(ctx context.Context, userID string) (models.UserCounters, error)
}

// NotificationStore owns notification rows.
type NotificationStore interface {
	PutNotification(ctx context.Context, n *models.Notification) error
	GetNotification(ctx context.Context, id string) (*models.Notification, error)
	ListNotifications(ctx context.Context, userID string) ([]models.Notification, error)

	// MarkNotificationRead is idempotent: re-reading an already-read
	// notification is a no-op, not an error.
	MarkNotificationRead(ctx context.Context, id string, at time.Time) (*models.Notification, error)
	MarkAllNotificationsRead(ctx context.Context, userID string, at time.Time) (int, error)
}

// Store is the full persistence surface, implemented by both the
// DynamoDB store and the in-memory store used in tests and local runs.
type Store interface {
	InterestStore
	QuotaStore
	MatchMarkerStore
	CounterStore
	NotificationStore
}

// UserDirectory is the external user/profile collaborator. Only
// existence and active checks are in scope here.
type UserDirectory interface {
	Exists(ctx context.Context, userID string) (bool, error)
	IsActive(ctx context.Context, userID string) (bool, error)
}
