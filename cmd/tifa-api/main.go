package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/leochui/tifa-api/internal/alert"
	"github.com/leochui/tifa-api/internal/api"
	"github.com/leochui/tifa-api/internal/convo"
	"github.com/leochui/tifa-api/internal/guard"
	"github.com/leochui/tifa-api/internal/llm"
	"github.com/leochui/tifa-api/internal/store"
	"github.com/leochui/tifa-api/internal/turnstile"
	"github.com/leochui/tifa-api/pkg/config"
	"github.com/leochui/tifa-api/pkg/observability"
)

var (
	// Version information (set via ldflags)
	Version = "dev"

	configFile = flag.String("config", os.Getenv("CONFIG_FILE"), "Configuration file (optional)")
)

func main() {
	flag.Parse()

	log.Printf("Starting tifa-api v%s", Version)

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	observability.InitMetrics()

	st, checks := buildStore(cfg)
	defer st.Close()

	alerts := alert.New(alert.Config{
		WebhookURL:    cfg.AlertWebhookURL,
		WebhookSecret: cfg.AlertWebhookSecret,
		WebhookEvents: cfg.AlertWebhookEvents,
		EmailAPIURL:   cfg.EmailAPIURL,
		EmailAPIKey:   cfg.EmailAPIKey,
		EmailFrom:     cfg.EmailFrom,
		EmailTo:       cfg.EmailTo,
		EmailEvents:   cfg.EmailEvents,
	})

	var modelOpts []llm.Option
	if cfg.ModelPrimary != "" || cfg.ModelFallback != "" {
		primary, fallback := cfg.ModelPrimary, cfg.ModelFallback
		if primary == "" {
			primary = llm.DefaultPrimaryModel
		}
		if fallback == "" {
			fallback = llm.DefaultFallbackModel
		}
		modelOpts = append(modelOpts, llm.WithModels(primary, fallback))
	}
	model, err := llm.NewClient(cfg.GeminiAPIKey, modelOpts...)
	if err != nil {
		log.Fatalf("Failed to create model client: %v", err)
	}

	var verifier api.Verifier
	if cfg.TurnstileSecret != "" {
		verifier = turnstile.New(cfg.TurnstileSecret)
	} else {
		log.Println("Turnstile disabled: no secret configured")
	}

	handler := api.NewHandler(api.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		Governor:       guard.New(st, guard.Config{AllowIPs: cfg.AllowIPs}, alerts),
		Cache:          convo.NewCache(st, 0),
		History:        convo.NewHistory(st, 0),
		Model:          model,
		Verifier:       verifier,
		Alerts:         alerts,
		TrustForwarded: cfg.TrustForwarded,
	})

	server := api.NewServer(cfg.ListenAddr, handler, checks...)

	errChan := make(chan error, 1)
	go func() {
		log.Printf("Listening on %s", cfg.ListenAddr)
		errChan <- server.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		log.Printf("Server error: %v", err)
	case sig := <-quit:
		log.Printf("Received %s, shutting down", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}

	// Let in-flight alert deliveries finish before exit.
	alerts.Wait()

	log.Println("Stopped")
}

// buildStore picks the durable Redis store when an address is
// configured, otherwise the in-memory store. The memory store loses
// all rate-limit and conversation state on restart and does not share
// state across instances.
func buildStore(cfg *config.Config) (store.Store, []observability.HealthCheck) {
	if cfg.RedisAddr == "" {
		log.Println("REDIS_ADDR not set: using in-memory store (single instance only)")
		return store.NewMemoryStore(), nil
	}

	rs, err := store.NewRedisStore(store.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	log.Printf("Connected to Redis at %s", cfg.RedisAddr)

	check := observability.HealthCheck{
		Name:  "redis",
		Check: rs.Ping,
	}
	return rs, []observability.HealthCheck{check}
}
