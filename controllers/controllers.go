package controllers

import (
	"encoding/json"
	"errors"
	"net/http"

	"kindred_server/services"
)

// HealthCheckHandler provides a basic health check.
func HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// WelcomeHandler provides a welcome message.
func WelcomeHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Welcome to the Kindred API"})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

// writeError maps the error taxonomy onto HTTP statuses and emits a
// JSON envelope carrying the failed workflow phase when one is known.
func writeError(w http.ResponseWriter, err error) {
	body := map[string]string{"error": err.Error()}
	if phase := services.FailedPhase(err); phase != "" {
		body["phase"] = phase
	}
	writeJSON(w, statusFor(err), body)
}

func statusFor(err error) int {
	var (
		validation *services.ValidationError
		conflict   *services.ConflictError
		limit      *services.LimitExceededError
		notFound   *services.NotFoundError
		expired    *services.ExpiredError
		dependency *services.DependencyError
	)
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &conflict):
		return http.StatusConflict
	case errors.As(err, &limit):
		return http.StatusTooManyRequests
	case errors.As(err, &expired):
		return http.StatusGone
	case errors.As(err, &dependency):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
