package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/nwilson314/stash"
	"github.com/nwilson314/stash/api"
	"github.com/nwilson314/stash/db"
	"github.com/nwilson314/stash/enrich"
	"github.com/nwilson314/stash/metrics"
	"github.com/nwilson314/stash/newsletter"
	"github.com/nwilson314/stash/openai"
)

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	// .env is optional, envs win when both are set
	_ = godotenv.Load()

	// Setup structured logging with JSON output
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("stash service initializing", "version", "1.0.0")

	// Default values
	defaultPort := getEnv("PORT", "8080")
	defaultOpenAIBaseURL := getEnv("OPENAI_BASE_URL", openai.DefaultBaseURL)
	defaultOpenAIModel := getEnv("OPENAI_MODEL", openai.DefaultModel)
	defaultWorkers := getEnv("ENRICH_WORKERS", "4")
	defaultCronSpec := getEnv("NEWSLETTER_CRON", "0 9 * * 1")

	workers, err := strconv.Atoi(defaultWorkers)
	if err != nil || workers < 1 {
		logger.Warn("invalid ENRICH_WORKERS value, using default", "provided", defaultWorkers, "default", 4)
		workers = 4
	}

	// Command-line flags (override environment variables)
	port := flag.String("port", defaultPort, "Server port")
	openaiBaseURL := flag.String("openai-base-url", defaultOpenAIBaseURL, "OpenAI-compatible API base URL")
	openaiModel := flag.String("openai-model", defaultOpenAIModel, "Model for categorization and summaries")
	cronSpec := flag.String("newsletter-cron", defaultCronSpec, "Cron expression for the weekly newsletter")
	disableCORS := flag.Bool("disable-cors", false, "Disable CORS")
	disableNewsletter := flag.Bool("disable-newsletter", false, "Disable the newsletter scheduler")
	flag.Parse()

	openaiKey := getEnv("OPENAI_API_KEY", "")
	if openaiKey == "" {
		logger.Error("OPENAI_API_KEY environment variable is required")
		os.Exit(1)
	}

	// PostgreSQL database configuration (required)
	dbHost := getEnv("DB_HOST", "")
	if dbHost == "" {
		logger.Error("DB_HOST environment variable is required")
		os.Exit(1)
	}

	dbPort := getEnv("DB_PORT", "5432")
	dbUser := getEnv("DB_USER", "stash")
	dbPassword := getEnv("DB_PASSWORD", "stash_dev_pass")
	dbName := getEnv("DB_NAME", "stash")

	dbConfig := db.Config{
		DSN: fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable", dbHost, dbPort, dbUser, dbPassword, dbName),
	}
	logger.Info("using PostgreSQL database", "host", dbHost, "port", dbPort, "database", dbName)

	database, err := db.New(dbConfig)
	if err != nil {
		logger.Error("failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer database.Close()
	metrics.RegisterDBStats(database.DB())

	pipeline := stash.New(stash.DefaultConfig(), logger)
	llm := openai.NewClient(*openaiBaseURL, openaiKey, *openaiModel)

	enrichConfig := enrich.DefaultConfig()
	enrichConfig.SummaryModel = *openaiModel
	enricher := enrich.New(enrichConfig, database, llm, pipeline, logger)

	queue := enrich.NewQueue(enricher, workers, 100, logger)
	queue.Start()

	smtpPort, err := strconv.Atoi(getEnv("SMTP_PORT", "587"))
	if err != nil {
		logger.Warn("invalid SMTP_PORT value, using default", "default", 587)
		smtpPort = 587
	}
	mailer := newsletter.NewSMTPMailer(newsletter.SMTPConfig{
		Host:     getEnv("SMTP_HOST", "localhost"),
		Port:     smtpPort,
		Username: getEnv("SMTP_USERNAME", ""),
		Password: getEnv("SMTP_PASSWORD", ""),
		From:     getEnv("SMTP_FROM", "digest@stash.local"),
	})

	newsletterService := newsletter.New(newsletter.DefaultConfig(), database, enricher, mailer, logger)

	var scheduler *newsletter.Scheduler
	if !*disableNewsletter {
		scheduler = newsletter.NewScheduler(newsletterService, *cronSpec, logger)
		if err := scheduler.Start(); err != nil {
			logger.Error("failed to start newsletter scheduler", "error", err)
			os.Exit(1)
		}
	}

	serverConfig := api.Config{
		Addr:        ":" + *port,
		CORSEnabled: !*disableCORS,
		AdminAPIKey: getEnv("ADMIN_API_KEY", ""),
	}
	server := api.NewServer(serverConfig, database, pipeline, enricher, queue, newsletterService, logger)

	// Start server in a goroutine
	go func() {
		logger.Info("stash service starting",
			"port", *port,
			"database_host", dbHost,
			"database_name", dbName,
			"openai_base_url", *openaiBaseURL,
			"openai_model", *openaiModel,
			"enrich_workers", workers,
			"newsletter_enabled", !*disableNewsletter,
		)

		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	// Graceful shutdown
	logger.Info("shutting down gracefully")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	if scheduler != nil {
		scheduler.Stop()
	}
	queue.Stop()

	logger.Info("server stopped")
}
