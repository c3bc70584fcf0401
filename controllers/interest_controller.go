package controllers

import (
	"encoding/json"
	"net/http"

	"kindred_server/services"

	"github.com/gorilla/mux"
)

// InterestController exposes the interest lifecycle over HTTP.
type InterestController struct {
	Interests *services.InterestService
}

// NewInterestController initializes the controller.
func NewInterestController(interests *services.InterestService) *InterestController {
	return &InterestController{Interests: interests}
}

// HandleSendInterest - POST /api/interests
func (c *InterestController) HandleSendInterest(w http.ResponseWriter, r *http.Request) {
	var request struct {
		SenderID   string `json:"senderId"`
		ReceiverID string `json:"receiverId"`
		Message    string `json:"message,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, `{"error": "Invalid request body"}`, http.StatusBadRequest)
		return
	}

	result, err := c.Interests.SendInterest(r.Context(), request.SenderID, request.ReceiverID, request.Message)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// HandleRespondToInterest - POST /api/interests/{interestId}/respond
func (c *InterestController) HandleRespondToInterest(w http.ResponseWriter, r *http.Request) {
	interestID := mux.Vars(r)["interestId"]

	var request struct {
		Response string `json:"response"` // accepted | declined
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, `{"error": "Invalid request body"}`, http.StatusBadRequest)
		return
	}

	result, err := c.Interests.RespondToInterest(r.Context(), interestID, request.Response)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// HandleWithdrawInterest - POST /api/interests/{interestId}/withdraw
func (c *InterestController) HandleWithdrawInterest(w http.ResponseWriter, r *http.Request) {
	interestID := mux.Vars(r)["interestId"]

	if err := c.Interests.WithdrawInterest(r.Context(), interestID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "withdrawn"})
}

// HandleGetInterests - GET /api/interests/{userId}?box=sent|received
func (c *InterestController) HandleGetInterests(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]
	box := r.URL.Query().Get("box")
	if box == "" {
		box = "received"
	}

	interests, err := c.Interests.GetInterestsByUser(r.Context(), userID, box)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, interests)
}

// HandleGetMutualInterests - GET /api/interests/{userId}/mutual
func (c *InterestController) HandleGetMutualInterests(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]

	mutual, err := c.Interests.GetMutualInterests(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	if mutual == nil {
		mutual = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"userId": userID, "mutual": mutual})
}

// HandleGetInterestStats - GET /api/interests/{userId}/stats?box=sent|received
func (c *InterestController) HandleGetInterestStats(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]
	box := r.URL.Query().Get("box")
	if box == "" {
		box = "sent"
	}

	stats, err := c.Interests.GetInterestStats(r.Context(), userID, box)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// HandleGetInterestSummary - GET /api/interests/{userId}/summary
func (c *InterestController) HandleGetInterestSummary(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]

	summary, err := c.Interests.GetInterestSummary(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
