package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"kindred_server/models"
	"kindred_server/realtime"

	"github.com/google/uuid"
)

// notificationTemplate is one row of the closed transition→notification
// mapping. The table below is the single source of truth for titles,
// bodies and priorities; TestNotificationTemplates_Complete keeps it
// exhaustive over the notification types.
type notificationTemplate struct {
	Title     string
	Message   string
	Priority  string
	ActionURL string
}

var notificationTemplates = map[string]notificationTemplate{
	models.NotificationNewInterest: {
		Title:     "New Interest Received",
		Message:   "Someone has expressed interest in your profile.",
		Priority:  models.PriorityNormal,
		ActionURL: "/interests/received",
	},
	models.NotificationInterestAccepted: {
		Title:     "Interest Accepted!",
		Message:   "Your interest has been accepted.",
		Priority:  models.PriorityHigh,
		ActionURL: "/interests/sent",
	},
	models.NotificationInterestDeclined: {
		Title:     "Interest Declined",
		Message:   "Your interest has been declined.",
		Priority:  models.PriorityNormal,
		ActionURL: "/interests/sent",
	},
	models.NotificationMutualMatch: {
		Title:     "Mutual Match!",
		Message:   "You have a new mutual match. Start the conversation!",
		Priority:  models.PriorityHigh,
		ActionURL: "/matches",
	},
}

// NotificationService maps interest transitions to notifications and
// owns the read-state operations.
type NotificationService struct {
	Store   NotificationStore
	Channel *realtime.Channel
	Retries int
	Now     func() time.Time
}

// NewNotificationService wires a dispatcher with the default bounded
// retry count.
func NewNotificationService(store NotificationStore, channel *realtime.Channel) *NotificationService {
	return &NotificationService{Store: store, Channel: channel, Retries: 3, Now: time.Now}
}

// Dispatch creates and persists the notification for one transition and
// publishes it on the recipient's topic. Persistence is retried a
// bounded number of times; the returned error is a *DependencyError the
// caller degrades to a warning — dispatch failures never roll back the
// interest transition that caused them.
func (s *NotificationService) Dispatch(ctx context.Context, notificationType, userID, relatedUserID string, metadata map[string]string) (*models.Notification, error) {
	tmpl, ok := notificationTemplates[notificationType]
	if !ok {
		return nil, fmt.Errorf("unknown notification type %q", notificationType)
	}

	now := s.Now()
	n := &models.Notification{
		ID:            uuid.NewString(),
		UserID:        userID,
		Type:          notificationType,
		Title:         tmpl.Title,
		Message:       tmpl.Message,
		Priority:      tmpl.Priority,
		ActionURL:     tmpl.ActionURL,
		RelatedUserID: relatedUserID,
		Metadata:      metadata,
		CreatedAt:     now,
	}

	var err error
	for attempt := 0; attempt < s.retries(); attempt++ {
		if err = s.Store.PutNotification(ctx, n); err == nil {
			break
		}
		log.Printf("⚠️ notification put attempt %d failed for %s: %v", attempt+1, userID, err)
	}
	if err != nil {
		return nil, &DependencyError{Op: "notification_put", Err: err}
	}

	s.publish(userID, n, now)
	return n, nil
}

func (s *NotificationService) retries() int {
	if s.Retries <= 0 {
		return 1
	}
	return s.Retries
}

func (s *NotificationService) publish(userID string, n *models.Notification, at time.Time) {
	if s.Channel == nil {
		return
	}
	s.Channel.Publish(userID, models.Event{
		Entity:    models.EntityNotification,
		EntityID:  n.ID,
		Action:    models.ActionCreated,
		Payload:   n,
		Timestamp: at,
	})
	s.Channel.PublishActivity(userID, models.ActivityEntry{
		ID:        n.ID,
		UserID:    userID,
		Kind:      n.Type,
		Message:   n.Title,
		Timestamp: at,
	})
}

// MarkAsRead flips one notification to read. Idempotent: re-reading an
// already-read notification succeeds without changing readAt.
func (s *NotificationService) MarkAsRead(ctx context.Context, notificationID string) (*models.Notification, error) {
	n, err := s.Store.MarkNotificationRead(ctx, notificationID, s.Now())
	if err != nil {
		return nil, err
	}
	if s.Channel != nil {
		s.Channel.Publish(n.UserID, models.Event{
			Entity:    models.EntityNotification,
			EntityID:  n.ID,
			Action:    models.ActionUpdated,
			Payload:   n,
			Timestamp: s.Now(),
		})
	}
	return n, nil
}

// MarkAllAsRead flips every unread notification owned by the user and
// returns how many changed.
func (s *NotificationService) MarkAllAsRead(ctx context.Context, userID string) (int, error) {
	count, err := s.Store.MarkAllNotificationsRead(ctx, userID, s.Now())
	if err != nil {
		return 0, err
	}
	if count > 0 && s.Channel != nil {
		s.Channel.Publish(userID, models.Event{
			Entity:    models.EntityNotification,
			EntityID:  userID,
			Action:    models.ActionUpdated,
			Payload:   map[string]int{"markedRead": count},
			Timestamp: s.Now(),
		})
	}
	return count, nil
}

// ListByUser returns the user's notifications in creation order.
func (s *NotificationService) ListByUser(ctx context.Context, userID string) ([]models.Notification, error) {
	return s.Store.ListNotifications(ctx, userID)
}

// Summary tallies the user's notifications for getInterestSummary.
func (s *NotificationService) Summary(ctx context.Context, userID string) (models.NotificationSummary, error) {
	list, err := s.Store.ListNotifications(ctx, userID)
	if err != nil {
		return models.NotificationSummary{}, err
	}
	summary := models.NotificationSummary{Total: len(list)}
	for _, n := range list {
		if !n.IsRead {
			summary.Unread++
		}
	}
	return summary, nil
}
