// Copyright (C) 2026 UCAN AI (eng@ucan.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// gptragui is the operator CLI for the UI service: run the server
// locally, or inspect the effective configuration.
package main

import (
	"log"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
}

var (
	configPath string
	logLevel   string

	rootCmd = &cobra.Command{
		Use:   "gptragui",
		Short: "Run and inspect the conversational UI service",
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the UI server",
		RunE:  runServe, // Defined in cmd_serve.go
	}

	configCmd = &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration after env and file merging",
		RunE:  runConfig, // Defined in cmd_serve.go
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Path to an optional ui.yaml configuration file")
	serveCmd.Flags().StringVar(&logLevel, "log-level", "",
		"Override the configured log level (debug, info, warn, error)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configCmd)
}
