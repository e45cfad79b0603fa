package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/nguoimoi123/meetingmind/internal/config"
	"github.com/nguoimoi123/meetingmind/internal/metrics"
	"github.com/nguoimoi123/meetingmind/internal/server"
	"github.com/nguoimoi123/meetingmind/internal/session"
	"github.com/nguoimoi123/meetingmind/internal/store"
	"github.com/nguoimoi123/meetingmind/internal/summarize"
	"github.com/nguoimoi123/meetingmind/internal/transcription"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "meetingmind"
	serviceVersion    = "1.0.0"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load .env before the config so env overrides see its values.
	// A missing file is fine; production supplies real environment.
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger based on configuration
	logger := initLogger(cfg.Logging)

	// Log service startup
	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	// Log configuration summary (without sensitive data)
	logger.Info("Configuration loaded",
		slog.String("listen_addr", cfg.Server.Addr()),
		slog.Int("frame_header_len", cfg.Frame.HeaderLen),
		slog.String("transcription_url", cfg.Transcription.URL),
		slog.String("transcription_language", cfg.Transcription.Language),
		slog.Int("sample_rate", cfg.Transcription.SampleRate),
		slog.String("summarizer_model", cfg.Summarizer.Model),
		slog.String("mongo_database", cfg.Mongo.Database),
		slog.String("log_level", cfg.Logging.Level),
	)

	// Create cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Prometheus metrics
	appMetrics := metrics.NewMetrics()
	logger.Info("Prometheus metrics initialized")

	// Connect to MongoDB
	mongoCtx, mongoCancel := context.WithTimeout(ctx, cfg.Mongo.GetConnectTimeoutDuration())
	meetingStore, err := store.NewMongoStore(mongoCtx, store.Config{
		URI:      cfg.Mongo.URI,
		Database: cfg.Mongo.Database,
		Timeout:  cfg.Mongo.GetConnectTimeoutDuration(),
	})
	mongoCancel()
	if err != nil {
		logger.Error("Failed to connect to MongoDB", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("MongoDB connected", slog.String("database", cfg.Mongo.Database))

	// Initialize transcription client
	transcriber, err := transcription.NewClient(transcription.Config{
		URL:            cfg.Transcription.URL,
		APIKey:         cfg.Transcription.APIKey,
		Language:       cfg.Transcription.Language,
		SampleRate:     cfg.Transcription.SampleRate,
		EnablePartials: cfg.Transcription.EnablePartials,
		ConnectTimeout: cfg.Transcription.GetConnectTimeoutDuration(),
	}, logger)
	if err != nil {
		logger.Error("Failed to create transcription client", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Initialize summarizer
	summarizer, err := summarize.NewOpenAI(summarize.Config{
		APIKey:      cfg.Summarizer.APIKey,
		BaseURL:     cfg.Summarizer.BaseURL,
		Model:       cfg.Summarizer.Model,
		Temperature: cfg.Summarizer.Temperature,
		Timeout:     cfg.Summarizer.GetTimeoutDuration(),
	})
	if err != nil {
		logger.Error("Failed to create summarizer", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// The gateway is created before the registry because the registry
	// notifies it of transcript events, then bound back as controller.
	gateway := server.NewGateway(cfg.Frame.HeaderLen, logger, appMetrics)

	registry := session.NewRegistry(logger, session.Config{
		CloseTimeout:     cfg.Session.GetCloseTimeoutDuration(),
		SummarizeTimeout: cfg.Session.GetSummarizeTimeoutDuration(),
	}, session.Deps{
		Store:       meetingStore,
		Transcriber: transcriber,
		Summarizer:  summarizer,
		Notifier:    gateway,
		Metrics:     appMetrics,
	})
	gateway.Bind(registry)
	logger.Info("Session registry initialized",
		slog.Duration("close_timeout", cfg.Session.GetCloseTimeoutDuration()),
		slog.Duration("summarize_timeout", cfg.Session.GetSummarizeTimeoutDuration()),
	)

	api := server.NewAPI(meetingStore, summarizer, gateway, registry, logger, appMetrics)

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve(ctx, cfg.Server.Addr(), api.Router(), cfg.Server.GetShutdownTimeoutDuration(), logger)
	}()

	logger.Info("Service started successfully, waiting for signals...",
		slog.String("listen_addr", cfg.Server.Addr()),
	)

	// Wait for shutdown signal or server failure
	serverDown := false
	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case err := <-serveErr:
		serverDown = true
		if err != nil {
			logger.Error("HTTP server failed", slog.String("error", err.Error()))
		}
	}

	logger.Info("Starting graceful shutdown...")

	// Stop the HTTP server first so no new connections or requests arrive
	cancel()
	if !serverDown {
		if err := <-serveErr; err != nil {
			logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
		}
	}

	// Drain live sessions so in-flight transcripts are finalized
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.GetShutdownTimeoutDuration())
	defer shutdownCancel()
	if err := registry.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error draining sessions", slog.String("error", err.Error()))
	}

	// Close the store last so finalization writes land
	closeCtx, closeCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer closeCancel()
	if err := meetingStore.Close(closeCtx); err != nil {
		logger.Error("Error closing store", slog.String("error", err.Error()))
	}

	logger.Info("Service stopped")
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	// Parse log level
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo // default fallback
	}

	// Configure handler options
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug, // Add source info for debug level
	}

	// Determine output destination
	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	default:
		output = os.Stdout
	}

	// Create handler based on format
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(output, opts)
	} else {
		handler = slog.NewJSONHandler(output, opts)
	}

	return slog.New(handler)
}
