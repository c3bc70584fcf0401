package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"kindred_server/models"
	"kindred_server/realtime"

	"github.com/google/uuid"
)

// InterestService owns the interest lifecycle: creation under the daily
// quota and duplicate-prevention constraints, pending→terminal
// transitions, and the read-side queries. Successful state changes hand
// off to the match detector and notification dispatcher; their failures
// surface as warnings, never as the operation's primary error.
type InterestService struct {
	Store   Store
	Users   UserDirectory
	Matches *MatchService
	Notify  *NotificationService
	Channel *realtime.Channel

	DailyLimit int           // interests one sender may create per calendar day
	TTL        time.Duration // pending lifetime before expiry
	Timeout    time.Duration // bound on any single store round-trip
	Now        func() time.Time
}

// NewInterestService wires the service with the documented defaults
// (5/day, 30-day expiry).
func NewInterestService(store Store, users UserDirectory, matches *MatchService, notify *NotificationService, channel *realtime.Channel) *InterestService {
	return &InterestService{
		Store:      store,
		Users:      users,
		Matches:    matches,
		Notify:     notify,
		Channel:    channel,
		DailyLimit: 5,
		TTL:        30 * 24 * time.Hour,
		Timeout:    5 * time.Second,
		Now:        time.Now,
	}
}

// SendResult is a successful sendInterest outcome plus any secondary
// warnings (failed notification dispatch, dropped events).
type SendResult struct {
	Interest *models.Interest `json:"interest"`
	Warnings []string         `json:"warnings,omitempty"`
}

// RespondResult is a successful respondToInterest outcome.
type RespondResult struct {
	Interest    *models.Interest `json:"interest"`
	MutualMatch bool             `json:"mutualMatch"`
	Warnings    []string         `json:"warnings,omitempty"`
}

func (s *InterestService) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.Timeout > 0 {
		return context.WithTimeout(ctx, s.Timeout)
	}
	return ctx, func() {}
}

func depErr(op string, err error) error {
	return &DependencyError{Op: op, Err: err}
}

// SendInterest creates a pending interest from sender to receiver.
// The receiver must exist, be active and be distinct from the sender;
// the sender must be under its daily quota; no active interest may
// already exist for the ordered pair. The interest insert, the pair
// guard and the counter bumps commit as one unit.
func (s *InterestService) SendInterest(ctx context.Context, senderID, receiverID, message string) (*SendResult, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	if senderID == "" || receiverID == "" {
		return nil, phased(PhaseValidation, &ValidationError{Field: "userId", Reason: "sender and receiver are required"})
	}
	if senderID == receiverID {
		return nil, phased(PhaseValidation, &ValidationError{Field: "receiverId", Reason: "cannot send an interest to yourself"})
	}

	exists, err := s.Users.Exists(ctx, receiverID)
	if err != nil {
		return nil, phased(PhaseValidation, depErr("user_directory", err))
	}
	if !exists {
		return nil, phased(PhaseValidation, &ValidationError{Field: "receiverId", Reason: "receiver does not exist"})
	}
	active, err := s.Users.IsActive(ctx, receiverID)
	if err != nil {
		return nil, phased(PhaseValidation, depErr("user_directory", err))
	}
	if !active {
		return nil, phased(PhaseValidation, &ValidationError{Field: "receiverId", Reason: "receiver is not active"})
	}

	now := s.Now()
	dayKey := models.DayKey(senderID, now)

	// The quota increment gates the insert; it is rolled back when the
	// insert fails for an unrelated reason.
	if err := s.Store.IncrementQuota(ctx, dayKey, s.DailyLimit); err != nil {
		var limitErr *LimitExceededError
		if errors.As(err, &limitErr) {
			return nil, phased(PhaseInterestCreation, err)
		}
		return nil, phased(PhaseInterestCreation, depErr("quota_increment", err))
	}

	interest := &models.Interest{
		ID:         uuid.NewString(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Status:     models.StatusPending,
		Type:       models.InterestTypeStandard,
		Message:    message,
		SentAt:     now,
		ExpiresAt:  now.Add(s.TTL),
	}

	if err := s.Store.CreateInterest(ctx, interest); err != nil {
		if rbErr := s.Store.RollbackQuota(ctx, dayKey); rbErr != nil {
			log.Printf("⚠️ Quota rollback failed for %s: %v", dayKey, rbErr)
		}
		var conflict *ConflictError
		if errors.As(err, &conflict) {
			return nil, phased(PhaseInterestCreation, &ConflictError{Reason: ConflictAlreadyExists})
		}
		return nil, phased(PhaseInterestCreation, depErr("interest_create", err))
	}

	log.Printf("💌 Interest sent: %s -> %s", senderID, receiverID)

	result := &SendResult{Interest: interest}
	if _, err := s.Notify.Dispatch(ctx, models.NotificationNewInterest, receiverID, senderID, map[string]string{
		"interestId": interest.ID,
	}); err != nil {
		log.Printf("⚠️ new_interest dispatch failed for %s: %v", receiverID, err)
		result.Warnings = append(result.Warnings, "notification dispatch failed")
	}

	s.publishInterestEvent(models.ActionCreated, interest)
	if s.Channel != nil {
		s.Channel.PublishActivity(senderID, models.ActivityEntry{
			ID:        interest.ID,
			UserID:    senderID,
			Kind:      "interest_sent",
			Message:   fmt.Sprintf("Interest sent to %s", receiverID),
			Timestamp: now,
		})
	}
	return result, nil
}

// RespondToInterest moves a pending interest to accepted or declined.
// Expiry is evaluated lazily here: an interest past its expiresAt is
// flipped to expired and the call fails with *ExpiredError even though
// the stored status was nominally still pending.
func (s *InterestService) RespondToInterest(ctx context.Context, interestID, response string) (*RespondResult, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	if response != models.StatusAccepted && response != models.StatusDeclined {
		return nil, phased(PhaseValidation, &ValidationError{Field: "response", Reason: "must be accepted or declined"})
	}

	interest, err := s.Store.GetInterest(ctx, interestID)
	if err != nil {
		return nil, s.classifyResponse(err, "interest_get")
	}
	if interest.Status != models.StatusPending {
		return nil, phased(PhaseInterestResponse, &ConflictError{Reason: ConflictAlreadyResponded})
	}

	now := s.Now()
	if interest.Expired(now) {
		s.lazyExpire(ctx, interest, now)
		return nil, phased(PhaseInterestResponse, &ExpiredError{InterestID: interestID, ExpiredAt: interest.ExpiresAt})
	}

	updated, err := s.Store.TransitionInterest(ctx, interestID, models.StatusPending, response, now)
	if err != nil {
		var conflict *ConflictError
		if errors.As(err, &conflict) {
			// Lost the race against a concurrent responder or the sweep.
			return nil, phased(PhaseInterestResponse, &ConflictError{Reason: ConflictAlreadyResponded})
		}
		return nil, s.classifyResponse(err, "interest_transition")
	}

	log.Printf("📨 Interest %s %s by %s", interestID, response, updated.ReceiverID)

	result := &RespondResult{Interest: updated}

	notificationType := models.NotificationInterestAccepted
	if response == models.StatusDeclined {
		notificationType = models.NotificationInterestDeclined
	}
	if _, err := s.Notify.Dispatch(ctx, notificationType, updated.SenderID, updated.ReceiverID, map[string]string{
		"interestId": updated.ID,
	}); err != nil {
		log.Printf("⚠️ %s dispatch failed for %s: %v", notificationType, updated.SenderID, err)
		result.Warnings = append(result.Warnings, "notification dispatch failed")
	}

	s.publishInterestEvent(models.ActionUpdated, updated)
	if s.Channel != nil {
		s.Channel.PublishActivity(updated.ReceiverID, models.ActivityEntry{
			ID:        updated.ID,
			UserID:    updated.ReceiverID,
			Kind:      "interest_" + response,
			Message:   fmt.Sprintf("You %s an interest from %s", response, updated.SenderID),
			Timestamp: now,
		})
	}

	if response == models.StatusAccepted {
		matched, warnings, err := s.Matches.HandleAccepted(ctx, updated)
		if err != nil {
			log.Printf("⚠️ Match detection failed for interest %s: %v", updated.ID, err)
			result.Warnings = append(result.Warnings, "match detection failed")
		}
		result.MutualMatch = matched
		result.Warnings = append(result.Warnings, warnings...)
	}
	return result, nil
}

func (s *InterestService) classifyResponse(err error, op string) error {
	var notFound *NotFoundError
	if errors.As(err, &notFound) {
		return phased(PhaseInterestResponse, err)
	}
	return phased(PhaseInterestResponse, depErr(op, err))
}

// lazyExpire flips an overdue pending interest to expired. A CAS
// conflict means another responder or the sweep got there first, which
// is the same outcome; the flip is idempotent with both.
func (s *InterestService) lazyExpire(ctx context.Context, interest *models.Interest, now time.Time) {
	expired, err := s.Store.TransitionInterest(ctx, interest.ID, models.StatusPending, models.StatusExpired, now)
	if err != nil {
		var conflict *ConflictError
		if !errors.As(err, &conflict) {
			log.Printf("⚠️ Lazy expiry failed for interest %s: %v", interest.ID, err)
		}
		return
	}
	s.publishInterestEvent(models.ActionUpdated, expired)
}

// WithdrawInterest moves a pending interest to withdrawn. Only the
// pending state may be withdrawn; terminal states stay put.
func (s *InterestService) WithdrawInterest(ctx context.Context, interestID string) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	interest, err := s.Store.GetInterest(ctx, interestID)
	if err != nil {
		return s.classifyResponse(err, "interest_get")
	}
	if interest.Status != models.StatusPending {
		return phased(PhaseInterestResponse, &ConflictError{Reason: ConflictNotPending})
	}

	updated, err := s.Store.TransitionInterest(ctx, interestID, models.StatusPending, models.StatusWithdrawn, s.Now())
	if err != nil {
		var conflict *ConflictError
		if errors.As(err, &conflict) {
			return phased(PhaseInterestResponse, &ConflictError{Reason: ConflictNotPending})
		}
		return s.classifyResponse(err, "interest_transition")
	}

	log.Printf("↩️ Interest %s withdrawn by %s", interestID, updated.SenderID)
	s.publishInterestEvent(models.ActionUpdated, updated)
	return nil
}

// GetInterestsByUser lists one direction of a user's interests. The
// returned statuses are lazily normalized: a pending interest past its
// expiry reads as expired even before anything has flipped the stored
// row.
func (s *InterestService) GetInterestsByUser(ctx context.Context, userID, box string) ([]models.Interest, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	var (
		list []models.Interest
		err  error
	)
	switch box {
	case "sent":
		list, err = s.Store.ListBySender(ctx, userID)
	case "received":
		list, err = s.Store.ListByReceiver(ctx, userID)
	default:
		return nil, &ValidationError{Field: "box", Reason: "must be sent or received"}
	}
	if err != nil {
		return nil, depErr("interest_list", err)
	}

	now := s.Now()
	for i := range list {
		list[i].Status = list[i].EffectiveStatus(now)
	}
	return list, nil
}

// GetMutualInterests returns the IDs of users the given user is
// mutually matched with: both directions hold an accepted interest.
func (s *InterestService) GetMutualInterests(ctx context.Context, userID string) ([]string, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	sent, err := s.Store.ListBySender(ctx, userID)
	if err != nil {
		return nil, depErr("interest_list", err)
	}
	received, err := s.Store.ListByReceiver(ctx, userID)
	if err != nil {
		return nil, depErr("interest_list", err)
	}

	acceptedTo := make(map[string]bool)
	for _, in := range sent {
		if in.Status == models.StatusAccepted {
			acceptedTo[in.ReceiverID] = true
		}
	}
	var mutual []string
	for _, in := range received {
		if in.Status == models.StatusAccepted && acceptedTo[in.SenderID] {
			mutual = append(mutual, in.SenderID)
		}
	}
	sort.Strings(mutual)
	return mutual, nil
}

// GetInterestSummary aggregates one user's sent/received breakdowns,
// mutual count and notification tallies. Breakdown tallies come from
// the user's own indexed interest lists; the mutual count comes from
// the counter projection, never a full scan.
func (s *InterestService) GetInterestSummary(ctx context.Context, userID string) (*models.InterestSummary, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	sent, err := s.Store.ListBySender(ctx, userID)
	if err != nil {
		return nil, depErr("interest_list", err)
	}
	received, err := s.Store.ListByReceiver(ctx, userID)
	if err != nil {
		return nil, depErr("interest_list", err)
	}
	counters, err := s.Store.GetCounters(ctx, userID)
	if err != nil {
		return nil, depErr("counter_get", err)
	}
	notifications, err := s.Notify.Summary(ctx, userID)
	if err != nil {
		return nil, depErr("notification_list", err)
	}

	now := s.Now()
	return &models.InterestSummary{
		UserID:        userID,
		Sent:          tally(sent, now),
		Received:      tally(received, now),
		Mutual:        counters.MutualCount,
		Notifications: notifications,
	}, nil
}

func tally(interests []models.Interest, now time.Time) models.StatusBreakdown {
	var b models.StatusBreakdown
	for i := range interests {
		b.Total++
		switch interests[i].EffectiveStatus(now) {
		case models.StatusPending:
			b.Pending++
		case models.StatusAccepted:
			b.Accepted++
		case models.StatusDeclined:
			b.Declined++
		case models.StatusWithdrawn:
			b.Withdrawn++
		case models.StatusExpired:
			b.Expired++
		}
	}
	return b
}

// GetInterestStats computes the analytics view over one direction of a
// user's interests, using effective statuses.
func (s *InterestService) GetInterestStats(ctx context.Context, userID, box string) (*models.InterestStats, error) {
	list, err := s.GetInterestsByUser(ctx, userID, box)
	if err != nil {
		return nil, err
	}
	stats := CalculateInterestStats(list)
	return &stats, nil
}

// ExpireOverdue flips every overdue pending interest to expired. The
// sweep is an optional optimization layered on top of the mandatory
// lazy path: CAS conflicts (someone responded or lazily expired first)
// are skipped, so running it any number of times is safe.
func (s *InterestService) ExpireOverdue(ctx context.Context) (int, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	now := s.Now()
	overdue, err := s.Store.ListOverduePending(ctx, now)
	if err != nil {
		return 0, depErr("interest_list", err)
	}

	expired := 0
	for i := range overdue {
		updated, err := s.Store.TransitionInterest(ctx, overdue[i].ID, models.StatusPending, models.StatusExpired, now)
		if err != nil {
			var conflict *ConflictError
			if errors.As(err, &conflict) {
				continue
			}
			return expired, depErr("interest_transition", err)
		}
		expired++
		s.publishInterestEvent(models.ActionUpdated, updated)
	}
	if expired > 0 {
		log.Printf("🧹 Expired %d overdue interests", expired)
	}
	return expired, nil
}

// publishInterestEvent fans the state change out to both affected
// users' topics. Publishing happens strictly after the write commits
// and never fails the caller.
func (s *InterestService) publishInterestEvent(action string, interest *models.Interest) {
	if s.Channel == nil {
		return
	}
	ev := models.Event{
		Entity:    models.EntityInterest,
		EntityID:  interest.ID,
		Action:    action,
		Payload:   interest,
		Timestamp: s.Now(),
	}
	s.Channel.Publish(interest.SenderID, ev)
	s.Channel.Publish(interest.ReceiverID, ev)
}
