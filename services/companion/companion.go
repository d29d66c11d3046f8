// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package companion provides the core service for the M365 setup
// assistant backend.
//
// This package contains the main service type that coordinates all
// components: HTTP routing, the per-session device-code auth lifecycle,
// the wizard classifier and template selector, the completion backend,
// and observability infrastructure.
//
// # Usage
//
//	cfg := companion.Config{Port: 8000}
//	svc, err := companion.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	log.Fatal(svc.Run())
package companion

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/AleutianAI/GraphCompanion/services/broker"
	"github.com/AleutianAI/GraphCompanion/services/companion/authflow"
	"github.com/AleutianAI/GraphCompanion/services/companion/middleware"
	"github.com/AleutianAI/GraphCompanion/services/companion/observability"
	"github.com/AleutianAI/GraphCompanion/services/companion/routes"
	"github.com/AleutianAI/GraphCompanion/services/companion/session"
	"github.com/AleutianAI/GraphCompanion/services/companion/wizard"
	"github.com/AleutianAI/GraphCompanion/services/identity"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Service defines the contract for the companion service.
//
// Run() blocks and should only be called once per instance. Router() exposes
// the configured Gin engine for integration tests.
type Service interface {
	// Run starts the HTTP server and blocks until shutdown or error.
	Run() error

	// Router returns the underlying Gin engine for testing.
	Router() *gin.Engine
}

// =============================================================================
// Configuration
// =============================================================================

// Config holds companion service configuration options. All fields are
// optional with defaults applied by New().
type Config struct {
	// Port is the HTTP server port. Default: 8000
	Port int `yaml:"port"`

	// TenantID is the Entra tenant for device-code sign-in.
	// Default: "organizations" (any work or school account).
	TenantID string `yaml:"tenant_id"`

	// ClientID is the application registration used for the device-code
	// flow. Default: the Microsoft Graph PowerShell public client.
	ClientID string `yaml:"client_id"`

	// GraphBaseURL overrides the Microsoft Graph endpoint, used in tests.
	GraphBaseURL string `yaml:"graph_base_url"`

	// CompletionBackend selects the generative backend.
	// Valid values: "azure-openai", "none". Default: "azure-openai",
	// falling back to "none" when its environment is not configured.
	CompletionBackend string `yaml:"completion_backend"`

	// OTelEndpoint is the OpenTelemetry collector endpoint.
	// If empty, tracing is disabled.
	OTelEndpoint string `yaml:"otel_endpoint"`

	// EnableMetrics enables the Prometheus /metrics endpoint.
	EnableMetrics bool `yaml:"enable_metrics"`

	// GinMode sets the Gin framework mode.
	// Valid values: "debug", "release", "test"
	GinMode string `yaml:"gin_mode"`
}

// =============================================================================
// Implementation
// =============================================================================

// service implements Service for production use. All fields are read-only
// after New() returns.
type service struct {
	config        Config
	router        *gin.Engine
	store         *session.Store
	controller    *authflow.Controller
	classifier    *wizard.Classifier
	selector      *wizard.Selector
	completion    broker.CompletionClient
	tracerCleanup func(context.Context)
}

// New creates a companion Service with the given configuration.
//
// Initialization order: defaults, tracing, metrics, session store, identity
// gateway, auth flow controller, wizard, completion backend, router. A
// missing completion backend is not fatal; chat turns then report the
// backend as unconfigured instead of failing the whole service.
func New(cfg Config) (Service, error) {
	s := &service{
		config: applyConfigDefaults(cfg),
	}

	if s.config.GinMode != "" {
		gin.SetMode(s.config.GinMode)
	}

	if s.config.OTelEndpoint != "" {
		cleanup, err := s.initTracer()
		if err != nil {
			return nil, fmt.Errorf("failed to initialize tracer: %w", err)
		}
		s.tracerCleanup = cleanup
	}

	if s.config.EnableMetrics {
		observability.InitMetrics()
		slog.Info("Initialized Prometheus metrics")
	}

	s.store = session.NewStore()

	gateway := identity.NewAzureGateway(identity.AzureConfig{
		Tenant:       s.config.TenantID,
		ClientID:     s.config.ClientID,
		GraphBaseURL: s.config.GraphBaseURL,
	})
	s.controller = authflow.NewController(s.store, gateway, slog.Default())

	s.classifier = wizard.NewClassifier()
	s.selector = wizard.NewSelector()

	s.initCompletion()
	s.initRouter()

	return s, nil
}

// =============================================================================
// Service Interface Methods
// =============================================================================

// Run starts the HTTP server and blocks until shutdown or error. A
// background ticker keeps the live-sessions gauge current between logins.
func (s *service) Run() error {
	defer s.cleanup()

	addr := fmt.Sprintf(":%d", s.config.Port)
	slog.Info("Starting companion server", "port", s.config.Port)

	srv := &http.Server{Addr: addr, Handler: s.router}
	g, ctx := errgroup.WithContext(context.Background())

	g.Go(func() error {
		return srv.ListenAndServe()
	})
	g.Go(func() error {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				observability.SetSessionsLive(s.store.Len())
			}
		}
	})

	return g.Wait()
}

// Router returns the underlying Gin engine for testing.
func (s *service) Router() *gin.Engine {
	return s.router
}

// =============================================================================
// Private Initialization Methods
// =============================================================================

func applyConfigDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = 8000
	}
	if cfg.TenantID == "" {
		cfg.TenantID = identity.DefaultTenant
	}
	if cfg.ClientID == "" {
		cfg.ClientID = identity.DefaultClientID
	}
	if cfg.CompletionBackend == "" {
		cfg.CompletionBackend = "azure-openai"
	}
	return cfg
}

// initTracer initializes OpenTelemetry distributed tracing over an insecure
// gRPC connection, appropriate for internal networks.
func (s *service) initTracer() (func(context.Context), error) {
	ctx := context.Background()

	conn, err := grpc.NewClient(s.config.OTelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("companion-service")))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))

	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	cleanup := func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}

	return cleanup, nil
}

// initCompletion wires the generative backend. A misconfigured backend
// degrades to nil rather than failing startup; the chat handler reports it.
func (s *service) initCompletion() {
	switch s.config.CompletionBackend {
	case "none":
		slog.Info("Completion backend disabled by configuration")
	case "azure-openai":
		client, err := broker.NewAzureOpenAIClient()
		if err != nil {
			slog.Warn("Azure OpenAI not configured, chat will report it", "error", err)
			return
		}
		s.completion = client
	default:
		slog.Warn("Unknown completion backend, running without one",
			"backend", s.config.CompletionBackend)
	}
}

// initRouter sets up the Gin HTTP router with all middleware and routes.
func (s *service) initRouter() {
	s.router = gin.Default()
	s.router.Use(otelgin.Middleware("companion-service"))
	s.router.Use(middleware.RequestIDMiddleware())
	s.router.Use(middleware.SessionMiddleware())

	routes.SetupRoutes(s.router, s.store, s.controller, s.classifier, s.selector, s.completion)
}

// cleanup releases resources held by the service.
func (s *service) cleanup() {
	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
	}
}

// =============================================================================
// Compile-time Interface Compliance
// =============================================================================

var _ Service = (*service)(nil)
