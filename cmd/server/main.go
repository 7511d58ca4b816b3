package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/textflare/dispatch/internal/api"
	"github.com/textflare/dispatch/internal/config"
	"github.com/textflare/dispatch/internal/repository/memory"
	"github.com/textflare/dispatch/internal/repository/postgres"
	"github.com/textflare/dispatch/internal/service/campaign"
	"github.com/textflare/dispatch/internal/template"
	"github.com/textflare/dispatch/internal/transport"
	"github.com/textflare/dispatch/internal/worker"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"
)

// checkPortAvailable verifies that the target port is not already in use.
// This prevents confusion from stale processes occupying the port.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %v", port, addr, err)
	}
	ln.Close()
	return nil
}

func main() {
	log.Println("Dispatch server starting...")

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if os.Getenv("DATABASE_URL") != "" {
		log.Println("[config] DATABASE_URL env override active")
	}

	host := cfg.Server.GetHost()
	port := cfg.Server.Port
	if err := checkPortAvailable(host, port); err != nil {
		log.Fatalf("Pre-flight check FAILED: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Repositories: Postgres when configured, in-memory for dev.
	var (
		campaigns  campaign.Repository
		recipients campaign.RecipientRepository
		templates  campaign.TemplateRepository
		db         *sql.DB
	)
	if cfg.Database.URL != "" {
		db, err = sql.Open("postgres", cfg.Database.URL)
		if err != nil {
			log.Fatalf("Failed to open database: %v", err)
		}
		db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
		db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
		db.SetConnMaxLifetime(5 * time.Minute)

		pingCtx, pingCancel := context.WithTimeout(ctx, 3*time.Second)
		if err := db.PingContext(pingCtx); err != nil {
			pingCancel()
			log.Fatalf("Database ping failed: %v", err)
		}
		pingCancel()
		log.Println("PostgreSQL connected")

		campaigns = postgres.NewCampaignRepo(db)
		recipients = postgres.NewRecipientRepo(db)
		templates = postgres.NewTemplateRepo(db)
	} else {
		log.Println("DATABASE_URL not set — using in-memory stores (state is lost on restart)")
		store := memory.NewStore()
		campaigns = store.Campaigns()
		recipients = store.Recipients()
		templates = store.Templates()
	}

	// Redis is optional; when absent, campaign leasing falls back to PG
	// advisory locks (or runs unleased in pure dev mode).
	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, pingCancel := context.WithTimeout(ctx, 3*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			log.Printf("Warning: Redis connection failed (%s): %v — falling back to PG advisory locks", cfg.Redis.Addr, err)
			redisClient.Close()
			redisClient = nil
		} else {
			log.Printf("Redis connected: %s (campaign leasing enabled)", cfg.Redis.Addr)
		}
		pingCancel()
	}

	// Outbound sender: HTTP gateway when configured, console for dev.
	var sender transport.Sender
	if cfg.Gateway.BaseURL != "" {
		sender = transport.NewGatewaySender(cfg.Gateway.BaseURL, cfg.Gateway.APIKey, cfg.Gateway.Timeout())
		pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
		if err := sender.Ping(pingCtx); err != nil {
			log.Printf("Warning: gateway health check failed: %v", err)
		}
		pingCancel()
	} else {
		log.Println("GATEWAY_BASE_URL not set — messages will be logged to console")
		sender = transport.NewConsoleSender()
	}

	engine := template.NewEngine()
	svc := campaign.NewService(campaigns, recipients, templates)
	svc.SetDefaultConfig(cfg.Defaults)
	if cfg.Gateway.BaseURL != "" {
		svc.SetTransport(sender)
	}

	processor := worker.NewBatchProcessor(campaigns, recipients, templates, sender, engine)
	scheduler := worker.NewScheduler(campaigns, processor)
	scheduler.SetPollInterval(cfg.Scheduler.PollInterval())
	if redisClient != nil {
		scheduler.SetRedisClient(redisClient)
	}
	if db != nil {
		scheduler.SetDB(db)
	}
	if err := scheduler.Start(); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	router := api.SetupRoutes(
		api.NewCampaignAPI(svc),
		api.NewTemplateAPI(templates, engine),
		api.NewWebhookAPI(svc),
		scheduler,
	)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", host, port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("HTTP server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Println("Shutdown signal received, stopping...")

	scheduler.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
	if db != nil {
		db.Close()
	}
	if redisClient != nil {
		redisClient.Close()
	}
	log.Println("Dispatch server stopped")
}
