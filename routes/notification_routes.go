package routes

import (
	"kindred_server/controllers"
	"kindred_server/realtime"
	"kindred_server/services"

	"github.com/gorilla/mux"
)

// RegisterNotificationRoutes sets up routes for notification reads
// under /api/notifications.
func RegisterNotificationRoutes(r *mux.Router, notificationService *services.NotificationService) {
	controller := controllers.NewNotificationController(notificationService)

	notificationRouter := r.PathPrefix("/api/notifications").Subrouter()
	notificationRouter.HandleFunc("/{userId}", controller.HandleListNotifications).Methods("GET")
	notificationRouter.HandleFunc("/{notificationId}/read", controller.HandleMarkAsRead).Methods("POST")
	notificationRouter.HandleFunc("/{userId}/read-all", controller.HandleMarkAllAsRead).Methods("POST")
}

// RegisterSuggestionRoutes sets up the relay endpoint for external
// match-suggestion events.
func RegisterSuggestionRoutes(r *mux.Router, channel *realtime.Channel) {
	controller := controllers.NewSuggestionController(channel)
	r.HandleFunc("/api/suggestions", controller.HandleRelaySuggestion).Methods("POST")
}
