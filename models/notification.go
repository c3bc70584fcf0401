package models

import "time"

// Notification is created as a side effect of an Interest transition.
// It is owned by the recipient and mutated only by markAsRead /
// markAllAsRead.
type Notification struct {
	ID            string            `dynamodbav:"notificationId" json:"notificationId"`
	UserID        string            `dynamodbav:"userId" json:"userId"`
	Type          string            `dynamodbav:"type" json:"type"`
	Title         string            `dynamodbav:"title" json:"title"`
	Message       string            `dynamodbav:"message" json:"message"`
	IsRead        bool              `dynamodbav:"isRead" json:"isRead"`
	Priority      string            `dynamodbav:"priority" json:"priority"`
	CreatedAt     time.Time         `dynamodbav:"createdAt" json:"createdAt"`
	ReadAt        *time.Time        `dynamodbav:"readAt,omitempty" json:"readAt,omitempty"`
	RelatedUserID string            `dynamodbav:"relatedUserId,omitempty" json:"relatedUserId,omitempty"`
	ActionURL     string            `dynamodbav:"actionUrl,omitempty" json:"actionUrl,omitempty"`
	Metadata      map[string]string `dynamodbav:"metadata,omitempty" json:"metadata,omitempty"`
	ExpiresAt     *time.Time        `dynamodbav:"expiresAt,omitempty" json:"expiresAt,omitempty"`
}

// NotificationsTable is the DynamoDB table holding notifications.
const NotificationsTable = "Notifications"

// UserNotificationsIndex is the GSI for listing a user's notifications.
const UserNotificationsIndex = "userId-index"
