package services

import (
	"math"

	"kindred_server/models"
)

// CalculateInterestStats computes the historical/analytics view over a
// set of interests: per-status totals, successRate (accepted/total) and
// responseRate ((accepted+declined)/total), both as percentages rounded
// to two decimals. An empty input yields all-zero stats.
func CalculateInterestStats(interests []models.Interest) models.InterestStats {
	var stats models.InterestStats
	stats.Total = len(interests)
	for i := range interests {
		switch interests[i].Status {
		case models.StatusPending:
			stats.Pending++
		case models.StatusAccepted:
			stats.Accepted++
		case models.StatusDeclined:
			stats.Declined++
		case models.StatusWithdrawn:
			stats.Withdrawn++
		case models.StatusExpired:
			stats.Expired++
		}
	}
	if stats.Total == 0 {
		return stats
	}
	stats.SuccessRate = round2(float64(stats.Accepted) / float64(stats.Total) * 100)
	stats.ResponseRate = round2(float64(stats.Accepted+stats.Declined) / float64(stats.Total) * 100)
	return stats
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
