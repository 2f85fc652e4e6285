// Copyright (C) 2026 UCAN AI (eng@ucan.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// The UI service container entrypoint. Configuration comes from the
// environment (and an optional .env file for local runs); see the
// config package for the variable names.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ucan-ai/gpt-rag-ui-v2/pkg/logging"
	"github.com/ucan-ai/gpt-rag-ui-v2/services/ui/config"
	"github.com/ucan-ai/gpt-rag-ui-v2/services/ui/server"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(cfg.LogLevel),
		LogDir:  cfg.LogDir,
		Service: "ui",
		JSON:    true,
	})
	defer logger.Close()
	slog.SetDefault(logger.Slog())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.Run(ctx, cfg, logger.Slog()); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}
