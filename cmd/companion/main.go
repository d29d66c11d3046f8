// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command companion starts the M365 setup assistant backend.
//
// The browser extension talks to this server on localhost. Configuration
// is read from the environment, optionally seeded from a .env file in the
// working directory.
//
// # Environment Variables
//
//   - COMPANION_CONFIG: path to an optional YAML config file
//   - COMPANION_PORT: HTTP server port (default: 8000)
//   - COMPANION_LOG_DIR: mirror logs into dated JSON files (optional)
//   - ENTRA_TENANT_ID: tenant for device-code sign-in (default: organizations)
//   - ENTRA_CLIENT_ID: app registration for the flow (default: Graph PowerShell client)
//   - AZURE_OPENAI_ENDPOINT / AZURE_OPENAI_API_KEY / AZURE_OPENAI_DEPLOYMENT:
//     completion backend; chat degrades gracefully when unset
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OpenTelemetry collector (optional)
//
// # Usage
//
//	# Build
//	go build -o companion ./cmd/companion
//
//	# Run
//	./companion serve
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/GraphCompanion/pkg/logging"
	"github.com/AleutianAI/GraphCompanion/services/companion"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	// A missing .env is the common case outside local development.
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file loaded", "error", err)
	}

	_, closeLog := logging.Setup(logging.Config{
		Level:   logLevelFromEnv(),
		JSON:    os.Getenv("LOG_FORMAT") == "json",
		LogDir:  os.Getenv("COMPANION_LOG_DIR"),
		Service: "companion",
	})
	defer func() {
		if err := closeLog(); err != nil {
			fmt.Fprintf(os.Stderr, "log close error: %v\n", err)
		}
	}()

	root := &cobra.Command{
		Use:           "companion",
		Short:         "M365 setup assistant backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newVersionCmd())

	// Bare invocation serves, matching how the container runs it.
	root.RunE = func(cmd *cobra.Command, args []string) error {
		return serve()
	}

	if err := root.Execute(); err != nil {
		slog.Error("companion error", "error", err)
		_ = closeLog()
		os.Exit(1)
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}
}

func serve() error {
	var cfg companion.Config
	if path := os.Getenv("COMPANION_CONFIG"); path != "" {
		loaded, err := companion.LoadConfig(path)
		if err != nil {
			return err
		}
		cfg = loaded
		slog.Info("Loaded config file", "path", path)
	}

	// Environment overrides the file.
	cfg.Port = getEnvInt("COMPANION_PORT", cfg.Port)
	cfg.TenantID = getEnvString("ENTRA_TENANT_ID", cfg.TenantID)
	cfg.ClientID = getEnvString("ENTRA_CLIENT_ID", cfg.ClientID)
	cfg.CompletionBackend = getEnvString("COMPLETION_BACKEND", cfg.CompletionBackend)
	cfg.OTelEndpoint = getEnvString("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.OTelEndpoint)
	cfg.GinMode = getEnvString("GIN_MODE", cfg.GinMode)
	cfg.EnableMetrics = true

	slog.Info("Starting companion",
		"port", cfg.Port,
		"tenant", cfg.TenantID,
		"completion_backend", cfg.CompletionBackend,
	)

	svc, err := companion.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create companion service: %w", err)
	}

	// Blocks until shutdown.
	return svc.Run()
}

// logLevelFromEnv maps LOG_LEVEL onto slog levels, defaulting to info.
func logLevelFromEnv() slog.Level {
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// getEnvString returns the environment variable value or a default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as int or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
