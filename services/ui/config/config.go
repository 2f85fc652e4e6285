// Copyright (C) 2026 UCAN AI (eng@ucan.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config loads the UI service configuration.
//
// Configuration is layered, lowest precedence first:
//
//  1. Built-in defaults.
//  2. An optional YAML settings file (ui.yaml or --config).
//  3. Environment variables (a .env file is honored in development).
//
// Environment variable names match the original deployment so existing
// app-service settings keep working unchanged.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the complete UI service configuration.
type Config struct {
	// Port the HTTP server listens on.
	Port string `yaml:"port" validate:"required,numeric"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" validate:"oneof=debug info warn error"`

	// LogDir enables file logging when set.
	LogDir string `yaml:"log_dir"`

	// DownloadLinkPrefix is the path segment used when rewriting
	// document references into links, e.g. "download" for
	// /download/<name>. It must match the registered download route.
	DownloadLinkPrefix string `yaml:"download_link_prefix" validate:"required"`

	// OTLPEndpoint is the OpenTelemetry collector address. Empty
	// disables trace export.
	OTLPEndpoint string `yaml:"otlp_endpoint"`

	// SessionTTL is how long an idle browser session keeps its
	// conversation id.
	SessionTTL time.Duration `yaml:"session_ttl"`

	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Blob         BlobConfig         `yaml:"blob"`
	Auth         AuthConfig         `yaml:"auth"`
	RateLimit    RateLimitConfig    `yaml:"rate_limit"`
}

// OrchestratorConfig locates the upstream orchestration service.
type OrchestratorConfig struct {
	// Endpoint is the streaming endpoint URL. Required.
	Endpoint string `yaml:"endpoint" validate:"required,url"`

	// SubscriptionID, ResourceGroup, and FunctionApp identify the
	// function app for the ARM listKeys call. Unused for localhost
	// endpoints, which skip key resolution.
	SubscriptionID string `yaml:"subscription_id"`
	ResourceGroup  string `yaml:"resource_group"`
	FunctionApp    string `yaml:"function_app"`

	// FunctionName is the function whose key is requested.
	FunctionName string `yaml:"function_name"`
}

// BlobConfig locates the document container backing /download.
type BlobConfig struct {
	AccountName string `yaml:"account_name"`
	Container   string `yaml:"container"`
}

// AuthConfig holds the OAuth application and the authorization
// allow-lists. All three lists empty means everyone is authorized.
type AuthConfig struct {
	TenantID     string   `yaml:"tenant_id"`
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	RedirectURI  string   `yaml:"redirect_uri"`
	Scopes       []string `yaml:"scopes"`

	AllowedUserNames      []string `yaml:"allowed_user_names"`
	AllowedUserPrincipals []string `yaml:"allowed_user_principals"`
	AllowedGroupNames     []string `yaml:"allowed_group_names"`
}

// RateLimitConfig bounds per-principal chat request rates.
type RateLimitConfig struct {
	// RequestsPerSecond of sustained rate; 0 disables limiting.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	// Burst of requests allowed above the sustained rate.
	Burst int `yaml:"burst" validate:"gte=0"`
}

var validate = validator.New()

// Load builds the Config from defaults, an optional YAML file, and the
// environment. path may be empty; a missing file at the default
// location is not an error, a missing file at an explicit path is.
func Load(path string) (*Config, error) {
	// A .env file is a development convenience; absence is normal.
	_ = godotenv.Load()

	cfg := &Config{
		Port:               "8000",
		LogLevel:           "info",
		DownloadLinkPrefix: "download",
		SessionTTL:         2 * time.Hour,
		Orchestrator: OrchestratorConfig{
			FunctionName: "orchestrator_streaming",
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 2,
			Burst:             5,
		},
	}

	explicit := path != ""
	if path == "" {
		path = "ui.yaml"
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if explicit {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	applyEnv(cfg)

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyEnv overlays environment variables onto cfg. Names match the
// original deployment's app settings.
func applyEnv(cfg *Config) {
	setString(&cfg.Port, "UI_PORT")
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setString(&cfg.LogDir, "LOG_DIR")
	setString(&cfg.DownloadLinkPrefix, "DOWNLOAD_LINK_PREFIX")
	setString(&cfg.OTLPEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")

	setString(&cfg.Orchestrator.Endpoint, "ORCHESTRATOR_STREAM_ENDPOINT")
	setString(&cfg.Orchestrator.SubscriptionID, "AZURE_SUBSCRIPTION_ID")
	setString(&cfg.Orchestrator.ResourceGroup, "AZURE_RESOURCE_GROUP_NAME")
	setString(&cfg.Orchestrator.FunctionApp, "AZURE_ORCHESTRATOR_FUNC_NAME")
	setString(&cfg.Orchestrator.FunctionName, "AZURE_ORCHESTRATOR_FUNC_FUNCTION")

	setString(&cfg.Blob.AccountName, "BLOB_STORAGE_ACCOUNT_NAME")
	setString(&cfg.Blob.Container, "BLOB_STORAGE_CONTAINER")

	setString(&cfg.Auth.TenantID, "OAUTH_AZURE_AD_TENANT_ID")
	setString(&cfg.Auth.ClientID, "OAUTH_AZURE_AD_CLIENT_ID")
	setString(&cfg.Auth.ClientSecret, "OAUTH_AZURE_AD_CLIENT_SECRET")
	setString(&cfg.Auth.RedirectURI, "OAUTH_AZURE_AD_REDIRECT_URI")
	setList(&cfg.Auth.Scopes, "OAUTH_AZURE_AD_SCOPES")

	setList(&cfg.Auth.AllowedUserNames, "ALLOWED_USER_NAMES")
	setList(&cfg.Auth.AllowedUserPrincipals, "ALLOWED_USER_PRINCIPALS")
	setList(&cfg.Auth.AllowedGroupNames, "ALLOWED_GROUP_NAMES")

	if len(cfg.Auth.Scopes) == 0 {
		cfg.Auth.Scopes = []string{"User.Read"}
	}
}

func setString(dst *string, name string) {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		*dst = v
	}
}

// setList reads a comma-separated env list, trimming blanks.
func setList(dst *[]string, name string) {
	v := os.Getenv(name)
	if v == "" {
		return
	}
	var items []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	if len(items) > 0 {
		*dst = items
	}
}
