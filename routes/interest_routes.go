package routes

import (
	"kindred_server/controllers"
	"kindred_server/services"

	"github.com/gorilla/mux"
)

// RegisterInterestRoutes sets up routes for the interest lifecycle
// under /api/interests.
func RegisterInterestRoutes(r *mux.Router, interestService *services.InterestService) {
	controller := controllers.NewInterestController(interestService)

	interestRouter := r.PathPrefix("/api/interests").Subrouter()
	interestRouter.HandleFunc("", controller.HandleSendInterest).Methods("POST")
	interestRouter.HandleFunc("/{interestId}/respond", controller.HandleRespondToInterest).Methods("POST")
	interestRouter.HandleFunc("/{interestId}/withdraw", controller.HandleWithdrawInterest).Methods("POST")
	interestRouter.HandleFunc("/{userId}", controller.HandleGetInterests).Methods("GET")
	interestRouter.HandleFunc("/{userId}/mutual", controller.HandleGetMutualInterests).Methods("GET")
	interestRouter.HandleFunc("/{userId}/summary", controller.HandleGetInterestSummary).Methods("GET")
	interestRouter.HandleFunc("/{userId}/stats", controller.HandleGetInterestStats).Methods("GET")
}
