// Copyright (C) 2026 UCAN AI (eng@ucan.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package server assembles and runs the UI service. It exists so both
// the service container entrypoint and the CLI's serve command share
// one bootstrap.
package server

import (
	"context"
	"errors"
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

	"github.com/ucan-ai/gpt-rag-ui-v2/services/ui/auth"
	"github.com/ucan-ai/gpt-rag-ui-v2/services/ui/config"
	"github.com/ucan-ai/gpt-rag-ui-v2/services/ui/handlers"
	"github.com/ucan-ai/gpt-rag-ui-v2/services/ui/middleware"
	"github.com/ucan-ai/gpt-rag-ui-v2/services/ui/observability"
	"github.com/ucan-ai/gpt-rag-ui-v2/services/ui/routes"
	"github.com/ucan-ai/gpt-rag-ui-v2/services/ui/services"
	"github.com/ucan-ai/gpt-rag-ui-v2/services/ui/session"
	"github.com/ucan-ai/gpt-rag-ui-v2/services/ui/storage"
	"github.com/ucan-ai/gpt-rag-ui-v2/services/ui/stream"
)

const serviceName = "gpt-rag-ui"

const shutdownGrace = 10 * time.Second

// initTracer wires the OTLP trace exporter over gRPC. When no endpoint
// is configured, tracing stays on otel's no-op default provider.
func initTracer(ctx context.Context, endpoint string, logger *slog.Logger) (func(context.Context), error) {
	if endpoint == "" {
		logger.Info("OTLP endpoint not configured, tracing disabled")
		return func(context.Context) {}, nil
	}

	conn, err := grpc.NewClient(endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("otlp collector connection: %w", err)
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("otlp exporter: %w", err)
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String(serviceName)))
	if err != nil {
		return nil, fmt.Errorf("otel resource: %w", err)
	}

	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			logger.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

// Run assembles the service from cfg and serves until ctx is canceled.
func Run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	cleanup, err := initTracer(ctx, cfg.OTLPEndpoint, logger)
	if err != nil {
		return fmt.Errorf("setup tracer: %w", err)
	}
	defer cleanup(context.Background())

	metrics := observability.InitMetrics()

	orchestrator, err := services.NewOrchestratorClient(cfg.Orchestrator, nil, logger)
	if err != nil {
		return fmt.Errorf("orchestrator client: %w", err)
	}

	sessions := session.NewStore(cfg.SessionTTL)
	defer sessions.Close()

	authorizer := auth.NewAuthorizer(cfg.Auth)
	identities := middleware.NewIdentityProvider(authorizer, cfg.SessionTTL, logger)
	limiter := middleware.NewRateLimiter(cfg.RateLimit)

	controller := stream.NewController(cfg.DownloadLinkPrefix, logger)

	h := routes.Handlers{
		Chat:      handlers.NewChatHandler(orchestrator, controller, sessions, metrics, logger),
		WebSocket: handlers.NewWebSocketHandler(orchestrator, controller, metrics, logger),
		Health:    handlers.NewHealthHandler(sessions),
	}

	if cfg.Blob.AccountName != "" {
		store, err := storage.NewDocumentStore(cfg.Blob, nil)
		if err != nil {
			return fmt.Errorf("document store: %w", err)
		}
		h.Documents = handlers.NewDocumentHandler(store, metrics, logger)
	} else {
		logger.Info("blob storage not configured, downloads disabled")
	}

	if cfg.Auth.ClientID != "" {
		exchanger, err := auth.NewOAuthExchanger(cfg.Auth, authorizer, logger)
		if err != nil {
			return fmt.Errorf("oauth exchanger: %w", err)
		}
		h.AuthFlow = handlers.NewAuthFlowHandler(exchanger, identities, logger)
	} else {
		logger.Info("oauth application not configured, interactive sign-in disabled")
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	routes.SetupRoutes(router, identities, limiter, h)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting UI server", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		logger.Info("shutting down UI server")
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
