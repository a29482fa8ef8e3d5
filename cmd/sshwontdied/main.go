// Command sshwontdied is the main executable for the sshwontdie backend
// service. It initializes the database, fingerprint service, optional queue
// publisher, and HTTP API server, and handles graceful shutdown when
// terminated.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/scottpeterman/sshwontdie/internal/api"
	"github.com/scottpeterman/sshwontdie/internal/config"
	"github.com/scottpeterman/sshwontdie/internal/database"
	"github.com/scottpeterman/sshwontdie/internal/devicetypes"
	"github.com/scottpeterman/sshwontdie/internal/fingerprint"
	"github.com/scottpeterman/sshwontdie/internal/queue"
)

var logLevelFlag string

// parseFlags parses command line flags and returns the config path
func parseFlags() string {
	configPath := flag.String("config", "configs/config.yaml", "Path to configuration file")
	flag.StringVar(&logLevelFlag, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()
	return *configPath
}

func main() {
	configPath := parseFlags()

	// Configure logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	level, err := zerolog.ParseLevel(logLevelFlag)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// Use colored console output for development
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	log.Info().Msg("Starting sshwontdie fingerprint service")

	// Load configuration
	cfg := config.GetConfig()
	if err := cfg.LoadConfig(configPath); err != nil {
		log.Fatal().Err(err).Str("path", configPath).Msg("Failed to load configuration")
	}

	// Initialize database
	log.Info().Str("path", cfg.Database.Path).Msg("Initializing database")
	db, err := database.New(cfg.Database.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	// Load the device capability table, with optional YAML overrides
	table := devicetypes.Defaults()
	if cfg.DeviceTypes.TablePath != "" {
		if err := table.LoadOverrides(cfg.DeviceTypes.TablePath); err != nil {
			log.Fatal().Err(err).Str("path", cfg.DeviceTypes.TablePath).Msg("Failed to load device type overrides")
		}
	}

	// Initialize queue publisher when enabled
	var publisher *queue.Publisher
	if cfg.Queue.Enabled {
		publisher = queue.NewPublisher(cfg.Queue.URL, cfg.Queue.Exchange, cfg.Queue.RoutingKey)
		if err := publisher.Connect(); err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to message queue")
		}
		defer publisher.Close()
	}

	// Initialize fingerprint service
	log.Info().Msg("Initializing fingerprint service")
	service := fingerprint.New(cfg, db, publisher, table, nil)

	// Initialize router and API handlers
	router := mux.NewRouter()

	jobHandler := api.NewJobHandler(service)
	deviceHandler := api.NewDeviceHandler(db)
	statusHandler := api.NewStatusHandler(db, service)

	jobHandler.RegisterRoutes(router)
	deviceHandler.RegisterRoutes(router)
	statusHandler.RegisterRoutes(router)

	// Set up CORS
	corsMiddleware := handlers.CORS(
		handlers.AllowedOrigins(cfg.Server.AllowedOrigins),
		handlers.AllowedMethods([]string{"GET", "POST", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)

	// Set up HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      corsMiddleware(router),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for termination signal
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-signalChan
	log.Info().Str("signal", sig.String()).Msg("Received termination signal")

	log.Info().Msg("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout)*time.Second,
	)
	defer shutdownCancel()

	log.Info().Msg("Shutting down HTTP server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	// Optimize database before exit
	log.Info().Msg("Optimizing database before exit")
	if err := db.OptimizeDatabase(); err != nil {
		log.Error().Err(err).Msg("Database optimization failed")
	}

	log.Info().Msg("sshwontdie has been shut down gracefully")
}
