package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/ignite/campaign-dispatch/internal/api"
	"github.com/ignite/campaign-dispatch/internal/campaign"
	"github.com/ignite/campaign-dispatch/internal/config"
	"github.com/ignite/campaign-dispatch/internal/content"
	"github.com/ignite/campaign-dispatch/internal/directory"
	"github.com/ignite/campaign-dispatch/internal/followup"
	"github.com/ignite/campaign-dispatch/internal/ingest"
	"github.com/ignite/campaign-dispatch/internal/region"
	"github.com/ignite/campaign-dispatch/internal/scheduler"
	"github.com/ignite/campaign-dispatch/internal/sender"
	"github.com/ignite/campaign-dispatch/internal/timing"
)

func connectRedis(url string) *redis.Client {
	if url == "" {
		return nil
	}
	opts, err := redis.ParseURL(url)
	var client *redis.Client
	if err != nil {
		client = redis.NewClient(&redis.Options{Addr: url})
	} else {
		client = redis.NewClient(opts)
	}

	pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Printf("Warning: Redis connection failed (%s): %v — falling back to PG advisory locks and inline event processing", url, err)
		client.Close()
		return nil
	}
	log.Printf("Redis connected: %s", url)
	return client
}

func main() {
	log.Println("Campaign Dispatch server starting (cmd/server/main.go)")

	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if os.Getenv("DATABASE_URL") != "" {
		log.Println("[config] DATABASE_URL env override active")
	}
	if cfg.Database.URL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		cancel()
		log.Fatalf("Database ping failed: %v", err)
	}
	cancel()
	log.Println("Database connected")

	redisClient := connectRedis(cfg.Redis.URL)
	if redisClient != nil {
		defer redisClient.Close()
	}

	// Stores and domain services.
	profile := region.NewProfile(cfg.Region)
	recipients := directory.NewStore(db)
	campaigns := campaign.NewStore(db)
	patterns := timing.NewPatternStore(db)
	recommender := timing.NewRecommender(patterns, profile, cfg.Scheduler.MinSample)
	contents := content.NewStore(db)
	renderer := content.NewRenderer()
	followStore := followup.NewStore(db)
	snd := sender.New(cfg.Sender)

	dispatcher := scheduler.NewDispatcher(contents, renderer, snd, campaigns, recipients, cfg.Sender)
	followups := followup.NewManager(followStore, campaigns, dispatcher)
	controller := campaign.NewController(campaigns, recipients, followups)

	// Background tick loop: batch selection plus follow-up sweep.
	tick := scheduler.NewScheduler(
		campaigns,
		scheduler.NewBatchSelector(campaigns, recommender),
		dispatcher,
		patterns,
		followups,
		scheduler.NewLeaseFactory(redisClient, db),
		cfg.FollowUp,
		cfg.Owner,
	)
	tick.Start(cfg.Scheduler.TickInterval())
	defer tick.Stop()

	// Event ingestion: queued through Redis when available.
	processor := ingest.NewProcessor(campaigns, recipients, patterns, followups)
	queue := ingest.NewQueue(redisClient, processor)
	queue.Start()
	defer queue.Stop()

	handlers := api.NewHandlers(controller, recommender, queue, cfg.Owner)
	router := api.SetupRoutes(handlers)

	addr := fmt.Sprintf("%s:%d", cfg.Server.GetHost(), cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		log.Printf("HTTP server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown error: %v", err)
	}
	log.Println("Server stopped")
}
