package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"kindred_server/config"
	"kindred_server/realtime"
	"kindred_server/routes"
	"kindred_server/services"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Select the persistence layer.
	var (
		store     services.Store
		directory services.UserDirectory
	)
	if cfg.Store.UseMemory {
		log.Println("Using in-memory store (local mode).")
		memStore := services.NewMemoryStore()
		store = memStore
		directory = services.NewMemoryDirectory()
	} else {
		log.Println("Initializing DynamoDB client...")
		dynamoService := &services.DynamoService{Client: services.InitializeDynamoDBClient(cfg.Store.AWSRegion)}
		store = services.NewDynamoStore(dynamoService)
		directory = services.NewDynamoDirectory(dynamoService)
		log.Println("DynamoDB client initialized.")
	}

	// Propagation channel and socket bridge.
	channel := realtime.NewChannel(realtime.Options{
		FeedSize:       cfg.Channel.FeedSize,
		EventBacklog:   cfg.Channel.EventBacklog,
		PublishRetries: cfg.Channel.PublishRetries,
	})
	socketServer := realtime.NewSocketServer(channel)
	go func() {
		if err := socketServer.Serve(); err != nil {
			log.Printf("❌ Socket server error: %v", err)
		}
	}()
	defer socketServer.Close()

	// Domain services.
	notificationService := services.NewNotificationService(store, channel)
	matchService := services.NewMatchService(store, notificationService, channel)
	interestService := services.NewInterestService(store, directory, matchService, notificationService, channel)
	interestService.DailyLimit = cfg.Interests.DailyLimit
	interestService.TTL = cfg.Interests.TTL
	interestService.Timeout = cfg.Store.Timeout

	// Optional expiry sweep; the lazy respond-time path stays mandatory
	// either way.
	if cfg.Interests.SweepInterval > 0 {
		go runExpirySweep(interestService, cfg.Interests.SweepInterval)
	}

	// Router and routes.
	r := mux.NewRouter()
	r.Handle("/socket.io/", socketServer)
	routes.RegisterRoutes(r)
	routes.RegisterInterestRoutes(r, interestService)
	routes.RegisterNotificationRoutes(r, notificationService)
	routes.RegisterSuggestionRoutes(r, channel)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}).Handler(r)

	log.Printf("Starting server on port %s...", cfg.Server.Port)
	log.Fatal(http.ListenAndServe(":"+cfg.Server.Port, corsHandler))
}

func runExpirySweep(interests *services.InterestService, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		if _, err := interests.ExpireOverdue(context.Background()); err != nil {
			log.Printf("⚠️ Expiry sweep failed: %v", err)
		}
	}
}
