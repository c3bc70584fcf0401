package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"kindred_server/models"
	"kindred_server/realtime"
)

// MatchService detects mutual matches. It runs only on transitions to
// accepted: if a reciprocal accepted interest exists, the unordered
// pair's claim marker decides which of the two possible accept paths
// fires the match — the claim winner bumps both mutualCounts and emits
// one mutual_match notification per side, the loser observes the marker
// already claimed and does nothing.
type MatchService struct {
	Interests InterestStore
	Markers   MatchMarkerStore
	Counters  CounterStore
	Notify    *NotificationService
	Channel   *realtime.Channel
	Retries   int
	Now       func() time.Time
}

// NewMatchService wires a detector with the default bounded retry count
// for the claim write.
func NewMatchService(store Store, notify *NotificationService, channel *realtime.Channel) *MatchService {
	return &MatchService{
		Interests: store,
		Markers:   store,
		Counters:  store,
		Notify:    notify,
		Channel:   channel,
		Retries:   3,
		Now:       time.Now,
	}
}

// HandleAccepted runs reciprocity detection for an interest that just
// transitioned to accepted. It reports whether this call produced the
// mutual match, plus any non-fatal warnings (the accepted transition is
// already committed and is never rolled back from here).
func (s *MatchService) HandleAccepted(ctx context.Context, accepted *models.Interest) (bool, []string, error) {
	reciprocal, err := s.findReciprocal(ctx, accepted)
	if err != nil {
		return false, nil, &DependencyError{Op: "reciprocal_lookup", Err: err}
	}
	if reciprocal == nil {
		return false, nil, nil
	}

	marker := models.NewMatchMarker(accepted.SenderID, accepted.ReceiverID, s.Now())

	claimed, err := s.claim(ctx, marker)
	if err != nil {
		return false, nil, &DependencyError{Op: "match_claim", Err: err}
	}
	if !claimed {
		log.Printf("ℹ️ Match %s already claimed, skipping", marker.PairID)
		return false, nil, nil
	}

	log.Printf("🎉 Mutual match claimed: %s ❤️ %s", marker.UserA, marker.UserB)

	var warnings []string
	for _, userID := range []string{marker.UserA, marker.UserB} {
		if err := s.Counters.AddCounters(ctx, userID, models.CounterDelta{Mutual: 1}); err != nil {
			log.Printf("⚠️ Failed to bump mutualCount for %s: %v", userID, err)
			warnings = append(warnings, fmt.Sprintf("mutual counter update failed for %s", userID))
		}
	}

	warnings = append(warnings, s.notifyPair(ctx, marker, accepted)...)
	s.publish(marker)
	return true, warnings, nil
}

// findReciprocal looks for an accepted interest running in the opposite
// direction: the accepted interest's receiver as sender, its sender as
// receiver. Resolution goes through the pair guard with a strongly
// consistent read, never an index query: when both directions are
// accepted at the same instant, each path must see the other's
// just-committed status or the match would fire zero times.
func (s *MatchService) findReciprocal(ctx context.Context, accepted *models.Interest) (*models.Interest, error) {
	reciprocal, err := s.Interests.GetActiveInterestByPair(ctx, accepted.ReceiverID, accepted.SenderID)
	if err != nil {
		return nil, err
	}
	if reciprocal == nil || reciprocal.Status != models.StatusAccepted {
		return nil, nil
	}
	return reciprocal, nil
}

func (s *MatchService) claim(ctx context.Context, marker *models.MatchMarker) (bool, error) {
	var err error
	for attempt := 0; attempt < s.retries(); attempt++ {
		var claimed bool
		claimed, err = s.Markers.ClaimMatchMarker(ctx, marker)
		if err == nil {
			return claimed, nil
		}
		log.Printf("⚠️ Match claim attempt %d failed for %s: %v", attempt+1, marker.PairID, err)
	}
	return false, err
}

func (s *MatchService) retries() int {
	if s.Retries <= 0 {
		return 1
	}
	return s.Retries
}

func (s *MatchService) notifyPair(ctx context.Context, marker *models.MatchMarker, accepted *models.Interest) []string {
	var warnings []string
	pairs := []struct{ to, about string }{
		{marker.UserA, marker.UserB},
		{marker.UserB, marker.UserA},
	}
	for _, p := range pairs {
		_, err := s.Notify.Dispatch(ctx, models.NotificationMutualMatch, p.to, p.about, map[string]string{
			"interestId": accepted.ID,
		})
		if err != nil {
			log.Printf("⚠️ Failed to dispatch mutual_match to %s: %v", p.to, err)
			warnings = append(warnings, fmt.Sprintf("mutual_match notification failed for %s", p.to))
		}
	}
	return warnings
}

func (s *MatchService) publish(marker *models.MatchMarker) {
	if s.Channel == nil {
		return
	}
	ev := models.Event{
		Entity:    models.EntityMatch,
		EntityID:  marker.PairID,
		Action:    models.ActionCreated,
		Payload:   marker,
		Timestamp: marker.ClaimedAt,
	}
	s.Channel.Publish(marker.UserA, ev)
	s.Channel.Publish(marker.UserB, ev)
}
