package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"kindred_server/models"
	"kindred_server/realtime"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixture wires the full service graph against the in-memory store
// with a controllable clock.
type fixture struct {
	now       time.Time
	store     *MemoryStore
	directory *MemoryDirectory
	channel   *realtime.Channel
	notify    *NotificationService
	matches   *MatchService
	interests *InterestService
}

func newFixture(users ...string) *fixture {
	f := &fixture{now: time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)}
	clock := func() time.Time { return f.now }

	f.store = NewMemoryStore()
	f.directory = NewMemoryDirectory()
	f.channel = realtime.NewChannel(realtime.Options{RetryDelay: time.Millisecond})

	f.notify = NewNotificationService(f.store, f.channel)
	f.notify.Now = clock

	f.matches = NewMatchService(f.store, f.notify, f.channel)
	f.matches.Now = clock

	f.interests = NewInterestService(f.store, f.directory, f.matches, f.notify, f.channel)
	f.interests.Now = clock

	for _, u := range users {
		f.directory.AddUser(u, true)
	}
	return f
}

func (f *fixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

func (f *fixture) notificationsOfType(t *testing.T, userID, notificationType string) []models.Notification {
	t.Helper()
	list, err := f.notify.ListByUser(context.Background(), userID)
	require.NoError(t, err)
	var out []models.Notification
	for _, n := range list {
		if n.Type == notificationType {
			out = append(out, n)
		}
	}
	return out
}

func TestSendInterest_Success(t *testing.T) {
	f := newFixture("alice", "bob")

	result, err := f.interests.SendInterest(context.Background(), "alice", "bob", "hello")
	require.NoError(t, err)
	require.NotNil(t, result.Interest)
	assert.Empty(t, result.Warnings)

	in := result.Interest
	assert.Equal(t, "alice", in.SenderID)
	assert.Equal(t, "bob", in.ReceiverID)
	assert.Equal(t, models.StatusPending, in.Status)
	assert.Equal(t, "hello", in.Message)
	assert.Equal(t, f.now, in.SentAt)
	assert.Equal(t, f.now.Add(30*24*time.Hour), in.ExpiresAt)

	// Counter projections bumped in the same unit as the insert.
	sender, err := f.store.GetCounters(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, sender.SentCount)

	receiver, err := f.store.GetCounters(context.Background(), "bob")
	require.NoError(t, err)
	assert.Equal(t, 1, receiver.ReceivedCount)
	assert.Equal(t, 1, receiver.UnreadCount)

	// Receiver was notified.
	notifications := f.notificationsOfType(t, "bob", models.NotificationNewInterest)
	require.Len(t, notifications, 1)
	assert.Equal(t, "New Interest Received", notifications[0].Title)
	assert.Equal(t, "alice", notifications[0].RelatedUserID)

	// The state change reached both users' topics.
	assert.NotEmpty(t, f.channel.RecentEvents("alice"))
	assert.NotEmpty(t, f.channel.RecentEvents("bob"))
}

func TestSendInterest_SelfTarget(t *testing.T) {
	f := newFixture("alice")

	_, err := f.interests.SendInterest(context.Background(), "alice", "alice", "")
	require.Error(t, err)

	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, PhaseValidation, FailedPhase(err))
}

func TestSendInterest_UnknownOrInactiveReceiver(t *testing.T) {
	f := newFixture("alice")
	f.directory.AddUser("mallory", false)

	var validation *ValidationError

	_, err := f.interests.SendInterest(context.Background(), "alice", "ghost", "")
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, PhaseValidation, FailedPhase(err))

	_, err = f.interests.SendInterest(context.Background(), "alice", "mallory", "")
	require.ErrorAs(t, err, &validation)
}

func TestSendInterest_DuplicateActivePair(t *testing.T) {
	f := newFixture("alice", "bob")

	_, err := f.interests.SendInterest(context.Background(), "alice", "bob", "")
	require.NoError(t, err)

	_, err = f.interests.SendInterest(context.Background(), "alice", "bob", "again")
	require.Error(t, err)

	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, ConflictAlreadyExists, conflict.Reason)
	assert.Equal(t, PhaseInterestCreation, FailedPhase(err))

	// The reverse direction is a separate ordered pair and still works.
	_, err = f.interests.SendInterest(context.Background(), "bob", "alice", "")
	require.NoError(t, err)
}

func TestSendInterest_DuplicateRollsBackQuota(t *testing.T) {
	f := newFixture("alice", "r1", "r2", "r3", "r4", "r5")

	_, err := f.interests.SendInterest(context.Background(), "alice", "r1", "")
	require.NoError(t, err)

	// A duplicate burns the insert, not the quota.
	var conflict *ConflictError
	_, err = f.interests.SendInterest(context.Background(), "alice", "r1", "")
	require.ErrorAs(t, err, &conflict)

	// All four remaining quota slots are still usable.
	for _, receiver := range []string{"r2", "r3", "r4", "r5"} {
		_, err := f.interests.SendInterest(context.Background(), "alice", receiver, "")
		require.NoError(t, err, "send to %s should still fit the quota", receiver)
	}
}

func TestSendInterest_DailyLimit(t *testing.T) {
	f := newFixture("alice", "r1", "r2", "r3", "r4", "r5", "r6")

	for _, receiver := range []string{"r1", "r2", "r3", "r4", "r5"} {
		_, err := f.interests.SendInterest(context.Background(), "alice", receiver, "")
		require.NoError(t, err)
	}

	// The 6th send of the day fails at the creation phase.
	_, err := f.interests.SendInterest(context.Background(), "alice", "r6", "")
	require.Error(t, err)

	var limit *LimitExceededError
	require.ErrorAs(t, err, &limit)
	assert.Equal(t, 5, limit.Limit)
	assert.Equal(t, PhaseInterestCreation, FailedPhase(err))

	// The quota resets at the calendar-day boundary.
	f.advance(24 * time.Hour)
	_, err = f.interests.SendInterest(context.Background(), "alice", "r6", "")
	require.NoError(t, err)
}

func sendPending(t *testing.T, f *fixture, sender, receiver string) *models.Interest {
	t.Helper()
	result, err := f.interests.SendInterest(context.Background(), sender, receiver, "")
	require.NoError(t, err)
	return result.Interest
}

func TestRespondToInterest_Accept(t *testing.T) {
	f := newFixture("alice", "bob")
	in := sendPending(t, f, "alice", "bob")

	result, err := f.interests.RespondToInterest(context.Background(), in.ID, models.StatusAccepted)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAccepted, result.Interest.Status)
	require.NotNil(t, result.Interest.RespondedAt)
	assert.Equal(t, f.now, *result.Interest.RespondedAt)
	assert.False(t, result.MutualMatch, "no reciprocal interest exists")

	// The original sender hears about the acceptance, exactly once.
	accepted := f.notificationsOfType(t, "alice", models.NotificationInterestAccepted)
	require.Len(t, accepted, 1)
	assert.Equal(t, "Interest Accepted!", accepted[0].Title)

	// No mutual match fired.
	assert.Empty(t, f.notificationsOfType(t, "alice", models.NotificationMutualMatch))
	assert.Empty(t, f.notificationsOfType(t, "bob", models.NotificationMutualMatch))

	// Responding settled the receiver's unread counter.
	counters, err := f.store.GetCounters(context.Background(), "bob")
	require.NoError(t, err)
	assert.Equal(t, 0, counters.UnreadCount)
}

func TestRespondToInterest_Decline(t *testing.T) {
	f := newFixture("alice", "bob")
	in := sendPending(t, f, "alice", "bob")

	result, err := f.interests.RespondToInterest(context.Background(), in.ID, models.StatusDeclined)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDeclined, result.Interest.Status)

	declined := f.notificationsOfType(t, "alice", models.NotificationInterestDeclined)
	require.Len(t, declined, 1)
	assert.Equal(t, "Interest Declined", declined[0].Title)

	// Declining releases the pair: alice may send again.
	_, err = f.interests.SendInterest(context.Background(), "alice", "bob", "")
	require.NoError(t, err)
}

func TestRespondToInterest_Twice(t *testing.T) {
	f := newFixture("alice", "bob")
	in := sendPending(t, f, "alice", "bob")

	_, err := f.interests.RespondToInterest(context.Background(), in.ID, models.StatusAccepted)
	require.NoError(t, err)

	_, err = f.interests.RespondToInterest(context.Background(), in.ID, models.StatusDeclined)
	require.Error(t, err)

	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, ConflictAlreadyResponded, conflict.Reason)
	assert.Equal(t, PhaseInterestResponse, FailedPhase(err))
}

func TestRespondToInterest_NotFound(t *testing.T) {
	f := newFixture("alice")

	_, err := f.interests.RespondToInterest(context.Background(), "no-such-id", models.StatusAccepted)
	require.Error(t, err)

	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestRespondToInterest_InvalidResponse(t *testing.T) {
	f := newFixture("alice", "bob")
	in := sendPending(t, f, "alice", "bob")

	_, err := f.interests.RespondToInterest(context.Background(), in.ID, "maybe")
	require.Error(t, err)

	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
}

func TestRespondToInterest_Expired(t *testing.T) {
	f := newFixture("alice", "bob")
	in := sendPending(t, f, "alice", "bob")

	// Past expiresAt the stored status is nominally still pending, but
	// the respond path evaluates expiry lazily.
	f.advance(31 * 24 * time.Hour)

	_, err := f.interests.RespondToInterest(context.Background(), in.ID, models.StatusAccepted)
	require.Error(t, err)

	var expired *ExpiredError
	require.ErrorAs(t, err, &expired)
	assert.Equal(t, in.ExpiresAt, expired.ExpiredAt)

	// The lazy path flipped the stored status.
	stored, err := f.store.GetInterest(context.Background(), in.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusExpired, stored.Status)

	// Expired is terminal: further responds report the conflict.
	var conflict *ConflictError
	_, err = f.interests.RespondToInterest(context.Background(), in.ID, models.StatusAccepted)
	require.ErrorAs(t, err, &conflict)
}

func TestWithdrawInterest(t *testing.T) {
	f := newFixture("alice", "bob")
	in := sendPending(t, f, "alice", "bob")

	require.NoError(t, f.interests.WithdrawInterest(context.Background(), in.ID))

	stored, err := f.store.GetInterest(context.Background(), in.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusWithdrawn, stored.Status)

	// Withdrawn is terminal: respond and withdraw both fail now.
	var conflict *ConflictError
	_, err = f.interests.RespondToInterest(context.Background(), in.ID, models.StatusAccepted)
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, ConflictAlreadyResponded, conflict.Reason)

	err = f.interests.WithdrawInterest(context.Background(), in.ID)
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, ConflictNotPending, conflict.Reason)

	// Withdrawing releases the pair for a fresh interest.
	_, err = f.interests.SendInterest(context.Background(), "alice", "bob", "")
	require.NoError(t, err)
}

func TestWithdrawInterest_NotPending(t *testing.T) {
	f := newFixture("alice", "bob")
	in := sendPending(t, f, "alice", "bob")

	_, err := f.interests.RespondToInterest(context.Background(), in.ID, models.StatusAccepted)
	require.NoError(t, err)

	err = f.interests.WithdrawInterest(context.Background(), in.ID)
	require.Error(t, err)

	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, ConflictNotPending, conflict.Reason)
}

func TestMutualMatch_SecondAcceptFires(t *testing.T) {
	f := newFixture("alice", "bob")

	ab := sendPending(t, f, "alice", "bob")
	ba := sendPending(t, f, "bob", "alice")

	// First accept: no reciprocal accepted interest yet.
	first, err := f.interests.RespondToInterest(context.Background(), ab.ID, models.StatusAccepted)
	require.NoError(t, err)
	assert.False(t, first.MutualMatch)

	// Second accept completes the pair.
	second, err := f.interests.RespondToInterest(context.Background(), ba.ID, models.StatusAccepted)
	require.NoError(t, err)
	assert.True(t, second.MutualMatch)

	// Exactly one mutual_match notification per side.
	require.Len(t, f.notificationsOfType(t, "alice", models.NotificationMutualMatch), 1)
	require.Len(t, f.notificationsOfType(t, "bob", models.NotificationMutualMatch), 1)

	// Both summaries agree.
	aliceSummary, err := f.interests.GetInterestSummary(context.Background(), "alice")
	require.NoError(t, err)
	bobSummary, err := f.interests.GetInterestSummary(context.Background(), "bob")
	require.NoError(t, err)
	assert.Equal(t, 1, aliceSummary.Mutual)
	assert.Equal(t, 1, bobSummary.Mutual)
}

func TestMutualMatch_ConcurrentAccepts(t *testing.T) {
	f := newFixture("alice", "bob")

	ab := sendPending(t, f, "alice", "bob")
	ba := sendPending(t, f, "bob", "alice")

	var wg sync.WaitGroup
	results := make([]*RespondResult, 2)
	errs := make([]error, 2)
	for i, id := range []string{ab.ID, ba.ID} {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			results[i], errs[i] = f.interests.RespondToInterest(context.Background(), id, models.StatusAccepted)
		}(i, id)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	// The claim marker guarantees exactly one winner even when both
	// directions are accepted in the same instant.
	fired := 0
	for _, r := range results {
		if r.MutualMatch {
			fired++
		}
	}
	assert.LessOrEqual(t, fired, 1, "at most one accept path may claim the match")

	require.Len(t, f.notificationsOfType(t, "alice", models.NotificationMutualMatch), 1)
	require.Len(t, f.notificationsOfType(t, "bob", models.NotificationMutualMatch), 1)

	aliceCounters, err := f.store.GetCounters(context.Background(), "alice")
	require.NoError(t, err)
	bobCounters, err := f.store.GetCounters(context.Background(), "bob")
	require.NoError(t, err)
	assert.Equal(t, 1, aliceCounters.MutualCount)
	assert.Equal(t, 1, bobCounters.MutualCount)
}

func TestGetInterestsByUser(t *testing.T) {
	f := newFixture("alice", "bob", "carol")

	sendPending(t, f, "alice", "bob")
	f.advance(time.Minute)
	sendPending(t, f, "carol", "alice")

	sent, err := f.interests.GetInterestsByUser(context.Background(), "alice", "sent")
	require.NoError(t, err)
	require.Len(t, sent, 1)
	assert.Equal(t, "bob", sent[0].ReceiverID)

	received, err := f.interests.GetInterestsByUser(context.Background(), "alice", "received")
	require.NoError(t, err)
	require.Len(t, received, 1)
	assert.Equal(t, "carol", received[0].SenderID)

	_, err = f.interests.GetInterestsByUser(context.Background(), "alice", "archived")
	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
}

func TestGetInterestsByUser_LazyExpiredView(t *testing.T) {
	f := newFixture("alice", "bob")
	in := sendPending(t, f, "alice", "bob")

	f.advance(31 * 24 * time.Hour)

	// Listing shows the effective status without mutating the row.
	sent, err := f.interests.GetInterestsByUser(context.Background(), "alice", "sent")
	require.NoError(t, err)
	require.Len(t, sent, 1)
	assert.Equal(t, models.StatusExpired, sent[0].Status)

	stored, err := f.store.GetInterest(context.Background(), in.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, stored.Status)
}

func TestGetMutualInterests(t *testing.T) {
	f := newFixture("alice", "bob", "carol")

	ab := sendPending(t, f, "alice", "bob")
	ba := sendPending(t, f, "bob", "alice")
	sendPending(t, f, "alice", "carol") // one-directional, never mutual

	_, err := f.interests.RespondToInterest(context.Background(), ab.ID, models.StatusAccepted)
	require.NoError(t, err)
	_, err = f.interests.RespondToInterest(context.Background(), ba.ID, models.StatusAccepted)
	require.NoError(t, err)

	mutual, err := f.interests.GetMutualInterests(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, mutual)

	mutual, err = f.interests.GetMutualInterests(context.Background(), "carol")
	require.NoError(t, err)
	assert.Empty(t, mutual)
}

func TestGetInterestSummary(t *testing.T) {
	f := newFixture("alice", "bob", "carol", "dave")

	ab := sendPending(t, f, "alice", "bob")
	ac := sendPending(t, f, "alice", "carol")
	ad := sendPending(t, f, "alice", "dave")
	sendPending(t, f, "dave", "alice")

	_, err := f.interests.RespondToInterest(context.Background(), ab.ID, models.StatusAccepted)
	require.NoError(t, err)
	_, err = f.interests.RespondToInterest(context.Background(), ac.ID, models.StatusDeclined)
	require.NoError(t, err)
	require.NoError(t, f.interests.WithdrawInterest(context.Background(), ad.ID))

	summary, err := f.interests.GetInterestSummary(context.Background(), "alice")
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Sent.Total)
	assert.Equal(t, 1, summary.Sent.Accepted)
	assert.Equal(t, 1, summary.Sent.Declined)
	assert.Equal(t, 1, summary.Sent.Withdrawn)
	assert.Equal(t, 0, summary.Sent.Pending)

	assert.Equal(t, 1, summary.Received.Total)
	assert.Equal(t, 1, summary.Received.Pending)
	assert.Equal(t, 0, summary.Mutual, "accept in one direction only is not a match")

	// alice holds the new_interest from dave plus the accepted and
	// declined notifications generated above, all still unread.
	assert.Greater(t, summary.Notifications.Total, 0)
	assert.Equal(t, summary.Notifications.Total, summary.Notifications.Unread)
}

func TestGetInterestStats_UsesEffectiveStatus(t *testing.T) {
	f := newFixture("alice", "bob", "carol")

	ab := sendPending(t, f, "alice", "bob")
	sendPending(t, f, "alice", "carol")

	_, err := f.interests.RespondToInterest(context.Background(), ab.ID, models.StatusAccepted)
	require.NoError(t, err)

	// The carol interest decays to expired in the stats view.
	f.advance(31 * 24 * time.Hour)

	stats, err := f.interests.GetInterestStats(context.Background(), "alice", "sent")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Accepted)
	assert.Equal(t, 1, stats.Expired)
	assert.Equal(t, 0, stats.Pending)
	assert.InDelta(t, 50.0, stats.SuccessRate, 0.001)
	assert.InDelta(t, 50.0, stats.ResponseRate, 0.001)
}

func TestExpireOverdue_Idempotent(t *testing.T) {
	f := newFixture("alice", "bob", "carol")

	sendPending(t, f, "alice", "bob")
	sendPending(t, f, "carol", "alice")

	f.advance(31 * 24 * time.Hour)
	fresh := sendPending(t, f, "alice", "carol")

	count, err := f.interests.ExpireOverdue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// Second run has nothing left to flip.
	count, err = f.interests.ExpireOverdue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	stored, err := f.store.GetInterest(context.Background(), fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, stored.Status, "fresh interest must survive the sweep")
}

func TestSendInterest_DirectoryFailure(t *testing.T) {
	f := newFixture()
	f.interests.Users = failingDirectory{}

	_, err := f.interests.SendInterest(context.Background(), "alice", "bob", "")
	require.Error(t, err)

	var dependency *DependencyError
	require.ErrorAs(t, err, &dependency)
	assert.Equal(t, PhaseValidation, FailedPhase(err))
}

type failingDirectory struct{}

func (failingDirectory) Exists(ctx context.Context, userID string) (bool, error) {
	return false, errors.New("directory unavailable")
}

func (failingDirectory) IsActive(ctx context.Context, userID string) (bool, error) {
	return false, errors.New("directory unavailable")
}
