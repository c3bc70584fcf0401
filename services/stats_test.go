package services

import (
	"testing"

	"kindred_server/models"

	"github.com/stretchr/testify/assert"
)

func withStatus(status string) models.Interest {
	return models.Interest{Status: status}
}

func TestCalculateInterestStats_Empty(t *testing.T) {
	stats := CalculateInterestStats(nil)
	assert.Equal(t, models.InterestStats{}, stats, "empty input yields all zeros, no division by zero")
}

func TestCalculateInterestStats_Rates(t *testing.T) {
	interests := []models.Interest{
		withStatus(models.StatusAccepted),
		withStatus(models.StatusDeclined),
		withStatus(models.StatusPending),
	}

	stats := CalculateInterestStats(interests)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 1, stats.Accepted)
	assert.Equal(t, 1, stats.Declined)
	assert.Equal(t, 1, stats.Pending)
	assert.InDelta(t, 33.33, stats.SuccessRate, 0.001, "1 of 3 accepted, rounded to two decimals")
	assert.InDelta(t, 66.67, stats.ResponseRate, 0.001, "2 of 3 responded, rounded to two decimals")
}

func TestCalculateInterestStats_AllStatuses(t *testing.T) {
	interests := []models.Interest{
		withStatus(models.StatusPending),
		withStatus(models.StatusAccepted),
		withStatus(models.StatusAccepted),
		withStatus(models.StatusDeclined),
		withStatus(models.StatusWithdrawn),
		withStatus(models.StatusExpired),
	}

	stats := CalculateInterestStats(interests)
	assert.Equal(t, 6, stats.Total)
	assert.Equal(t, 1, stats.Pending)
	assert.Equal(t, 2, stats.Accepted)
	assert.Equal(t, 1, stats.Declined)
	assert.Equal(t, 1, stats.Withdrawn)
	assert.Equal(t, 1, stats.Expired)
	assert.InDelta(t, 33.33, stats.SuccessRate, 0.001)
	assert.InDelta(t, 50.0, stats.ResponseRate, 0.001)
}
