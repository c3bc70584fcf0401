package controllers

import (
	"net/http"

	"kindred_server/services"

	"github.com/gorilla/mux"
)

// NotificationController exposes notification reads over HTTP.
type NotificationController struct {
	Notifications *services.NotificationService
}

// NewNotificationController initializes the controller.
func NewNotificationController(notifications *services.NotificationService) *NotificationController {
	return &NotificationController{Notifications: notifications}
}

// HandleListNotifications - GET /api/notifications/{userId}
func (c *NotificationController) HandleListNotifications(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]

	list, err := c.Notifications.ListByUser(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// HandleMarkAsRead - POST /api/notifications/{notificationId}/read
func (c *NotificationController) HandleMarkAsRead(w http.ResponseWriter, r *http.Request) {
	notificationID := mux.Vars(r)["notificationId"]

	n, err := c.Notifications.MarkAsRead(r.Context(), notificationID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

// HandleMarkAllAsRead - POST /api/notifications/{userId}/read-all
func (c *NotificationController) HandleMarkAllAsRead(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]

	count, err := c.Notifications.MarkAllAsRead(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"markedRead": count})
}
