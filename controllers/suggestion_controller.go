package controllers

import (
	"encoding/json"
	"net/http"
	"time"

	"kindred_server/models"
	"kindred_server/realtime"
)

// SuggestionController relays externally-generated match-suggestion
// events (produced by the out-of-scope recommendation collaborator)
// onto a user's topic without modification.
type SuggestionController struct {
	Channel *realtime.Channel
}

// NewSuggestionController initializes the controller.
func NewSuggestionController(channel *realtime.Channel) *SuggestionController {
	return &SuggestionController{Channel: channel}
}

// HandleRelaySuggestion - POST /api/suggestions
func (c *SuggestionController) HandleRelaySuggestion(w http.ResponseWriter, r *http.Request) {
	var request struct {
		UserID    string          `json:"userId"`
		EventID   string          `json:"eventId"`
		Payload   json.RawMessage `json:"payload"`
		Timestamp time.Time       `json:"timestamp"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, `{"error": "Invalid request body"}`, http.StatusBadRequest)
		return
	}
	if request.UserID == "" || request.EventID == "" {
		http.Error(w, `{"error": "userId and eventId are required"}`, http.StatusBadRequest)
		return
	}

	c.Channel.RelaySuggestion(request.UserID, models.Event{
		Entity:    models.EntitySuggestion,
		EntityID:  request.EventID,
		Action:    models.ActionCreated,
		Payload:   request.Payload,
		Timestamp: request.Timestamp,
	})
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "relayed"})
}
