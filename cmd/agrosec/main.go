package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/lp24213/agroisync-sub001/internal/config"
	"github.com/lp24213/agroisync-sub001/internal/logger"
	"github.com/lp24213/agroisync-sub001/internal/shutdown"
)

func main() {
	configPath := flag.String("config", "agrosec.yaml", "path to the main config file")
	envFile := flag.String("env-file", ".env", "path to an optional env file with secrets")
	customLogConfigs := flag.String("log-config", "", "comma-separated paths to custom log config files")
	flag.Parse()

	// Secrets come from the environment; the env file is a convenience for
	// local development and may be absent.
	if err := godotenv.Load(*envFile); err != nil && !os.IsNotExist(err) {
		log.Fatalf("Failed to load env file %s: %v", *envFile, err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logManager, appLogger := initializeLogging(cfg, *customLogConfigs)
	defer syncLoggers(logManager)

	app, err := buildApp(cfg, logManager)
	if err != nil {
		appLogger.Fatal("Failed to build application", zap.Error(err))
	}

	runServer(app, appLogger)
}

// initializeLogging builds the logger manager and picks the app logger.
func initializeLogging(cfg *config.AgroSec, customLogConfigs string) (*logger.Manager, *zap.Logger) {
	logConfigPaths := cfg.Logging.ConfigPaths
	if len(logConfigPaths) == 0 {
		logConfigPaths = []string{"log.config.json"}
	}
	if customLogConfigs != "" {
		for _, p := range strings.Split(customLogConfigs, ",") {
			if tp := strings.TrimSpace(p); tp != "" {
				logConfigPaths = append(logConfigPaths, tp)
			}
		}
	}

	logManager, err := logger.NewManager(logConfigPaths)
	if err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}

	name := cfg.Logging.LoggerName
	if name == "" {
		name = "default"
	}
	return logManager, logManager.Get(name)
}

// syncLoggers flushes all buffers before the process exits.
func syncLoggers(logManager *logger.Manager) {
	if err := logManager.Sync(); err != nil {
		log.Printf("Failed to sync loggers: %v", err)
	}
}

// runServer starts the HTTP listener and blocks until a shutdown signal or
// a fatal server error, then tears the application down gracefully.
func runServer(app *application, appLogger *zap.Logger) {
	errChan := make(chan error, 1)
	go func() {
		if err := app.server.Start(); err != nil {
			errChan <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		appLogger.Warn("Shutdown signal received. Initializing graceful shutdown",
			zap.String("signal", sig.String()))
	case err := <-errChan:
		appLogger.Error("Server error triggered shutdown", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	mgr := shutdown.NewManager(appLogger)
	app.registerShutdown(mgr)
	if err := mgr.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Error during shutdown", zap.Error(err))
		return
	}
	appLogger.Info("Server shutdown completed")
}
