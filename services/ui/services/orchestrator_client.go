// Copyright (C) 2026 UCAN AI (eng@ucan.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package services contains the UI's clients for external
// collaborators. The orchestrator client is the transport behind the
// chat stream: it performs the single-shot streaming POST and exposes
// the response body as a fragment source. Retry policy deliberately
// lives here and not in the framing core; today there is none, the
// call is single-shot per user message.
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/awnumar/memguard"

	"github.com/ucan-ai/gpt-rag-ui-v2/services/ui/config"
	"github.com/ucan-ai/gpt-rag-ui-v2/services/ui/stream"
)

const (
	// armScope is the audience for the management-plane token used to
	// list function keys.
	armScope = "https://management.azure.com/.default"

	// listKeysAPIVersion is the ARM API version for the listKeys call.
	listKeysAPIVersion = "2022-03-01"

	// keyLookupTimeout bounds the ARM round trips. The chat stream
	// itself has no client-side timeout; the orchestrator decides when
	// a turn ends.
	keyLookupTimeout = 30 * time.Second
)

// streamRequest is the orchestrator's streaming request body.
type streamRequest struct {
	ConversationID string `json:"conversation_id"`
	Question       string `json:"question"`
	TextOnly       bool   `json:"text_only"`
}

// OrchestratorClient calls the remote orchestration service.
//
// # Description
//
// OpenStream POSTs one user message and returns the chunked response
// body as a stream.Source. For non-local endpoints the function host
// key is resolved once through ARM listKeys using a chained managed
// identity / Azure CLI credential, then cached for the life of the
// process in a memguard enclave so the key never sits in plain heap
// memory.
//
// # Thread Safety
//
// Safe for concurrent use; each OpenStream call produces an
// independent source.
type OrchestratorClient struct {
	cfg        config.OrchestratorConfig
	httpClient *http.Client
	credential azcore.TokenCredential
	logger     *slog.Logger

	keyMu sync.Mutex
	key   *memguard.Enclave
}

// NewOrchestratorClient builds the client. credential may be nil, in
// which case a managed identity then Azure CLI chain is constructed (the
// deployed service runs with a managed identity; the CLI credential
// covers local development). logger may be nil for slog's default.
func NewOrchestratorClient(cfg config.OrchestratorConfig, credential azcore.TokenCredential, logger *slog.Logger) (*OrchestratorClient, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("orchestrator endpoint is not configured")
	}
	if logger == nil {
		logger = slog.Default()
	}

	if credential == nil && !isLocalEndpoint(cfg.Endpoint) {
		mi, err := azidentity.NewManagedIdentityCredential(nil)
		if err != nil {
			return nil, fmt.Errorf("managed identity credential: %w", err)
		}
		cli, err := azidentity.NewAzureCLICredential(nil)
		if err != nil {
			return nil, fmt.Errorf("azure cli credential: %w", err)
		}
		chain, err := azidentity.NewChainedTokenCredential([]azcore.TokenCredential{mi, cli}, nil)
		if err != nil {
			return nil, fmt.Errorf("credential chain: %w", err)
		}
		credential = chain
	}

	return &OrchestratorClient{
		cfg:        cfg,
		credential: credential,
		logger:     logger,
		// No overall timeout: the response body streams for as long as
		// the orchestrator keeps talking.
		httpClient: &http.Client{},
	}, nil
}

// OpenStream sends the question and returns the reply fragments.
//
// # Inputs
//
//   - ctx: Cancels the request and all subsequent body reads.
//   - conversationID: Empty for a new conversation.
//   - question: The user's message.
//
// # Outputs
//
//   - stream.Source: Chunked response body. Close is idempotent.
//   - error: Non-nil for key-resolution failures, transport failures,
//     or an HTTP error status.
func (c *OrchestratorClient) OpenStream(ctx context.Context, conversationID, question string) (stream.Source, error) {
	key, err := c.functionKey(ctx)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(streamRequest{
		ConversationID: conversationID,
		Question:       question,
		TextOnly:       true,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal stream request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build stream request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("x-functions-key", key)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call orchestrator: %w", err)
	}
	if resp.StatusCode >= 400 {
		detail := readErrorDetail(resp.Body)
		_ = resp.Body.Close()
		return nil, fmt.Errorf("orchestrator returned %s: %s", resp.Status, detail)
	}

	c.logger.Debug("orchestrator stream opened", "conversation_id", conversationID)
	return newHTTPSource(resp.Body), nil
}

// functionKey returns the function host key, resolving and caching it
// on first use. Local endpoints need no key.
func (c *OrchestratorClient) functionKey(ctx context.Context) (string, error) {
	if isLocalEndpoint(c.cfg.Endpoint) {
		return "", nil
	}

	c.keyMu.Lock()
	defer c.keyMu.Unlock()

	if c.key == nil {
		key, err := c.lookupFunctionKey(ctx)
		if err != nil {
			return "", err
		}
		c.key = memguard.NewEnclave([]byte(key))
	}

	buf, err := c.key.Open()
	if err != nil {
		return "", fmt.Errorf("open key enclave: %w", err)
	}
	defer buf.Destroy()
	return buf.String(), nil
}

// lookupFunctionKey fetches the default function key via ARM listKeys.
func (c *OrchestratorClient) lookupFunctionKey(ctx context.Context) (string, error) {
	if c.credential == nil {
		return "", errors.New("no credential configured for function key lookup")
	}
	if c.cfg.SubscriptionID == "" || c.cfg.ResourceGroup == "" || c.cfg.FunctionApp == "" {
		return "", errors.New("subscription, resource group, and function app must be configured")
	}

	ctx, cancel := context.WithTimeout(ctx, keyLookupTimeout)
	defer cancel()

	token, err := c.credential.GetToken(ctx, policy.TokenRequestOptions{Scopes: []string{armScope}})
	if err != nil {
		return "", fmt.Errorf("acquire management token: %w", err)
	}

	url := fmt.Sprintf(
		"https://management.azure.com/subscriptions/%s/resourceGroups/%s/providers/Microsoft.Web/sites/%s/functions/%s/listKeys?api-version=%s",
		c.cfg.SubscriptionID, c.cfg.ResourceGroup, c.cfg.FunctionApp, c.cfg.FunctionName, listKeysAPIVersion)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return "", fmt.Errorf("build listKeys request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token.Token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("list function keys: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("listKeys returned %s: %s", resp.Status, readErrorDetail(resp.Body))
	}

	var keys struct {
		Default string `json:"default"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&keys); err != nil {
		return "", fmt.Errorf("decode listKeys response: %w", err)
	}
	if keys.Default == "" {
		return "", errors.New("listKeys response carried no default key")
	}

	c.logger.Info("resolved orchestrator function key",
		"function_app", c.cfg.FunctionApp, "function", c.cfg.FunctionName)
	return keys.Default, nil
}

// isLocalEndpoint mirrors the deployment convention: localhost
// orchestrators run unauthenticated.
func isLocalEndpoint(endpoint string) bool {
	return strings.Contains(endpoint, "localhost") || strings.Contains(endpoint, "127.0.0.1")
}

// readErrorDetail pulls a bounded amount of an error response body for
// diagnostics.
func readErrorDetail(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 512))
	if err != nil || len(data) == 0 {
		return "(no detail)"
	}
	return strings.TrimSpace(string(data))
}

// =============================================================================
// HTTP Fragment Source
// =============================================================================

// httpSource adapts a streaming response body to stream.Source.
//
// Reads are byte-oriented, so a network chunk can end in the middle of
// a multi-byte UTF-8 rune. The partial rune is carried over and
// prepended to the next chunk, so every fragment handed to the framing
// core is valid UTF-8 on its own.
type httpSource struct {
	body  io.ReadCloser
	buf   []byte
	carry []byte

	mu     sync.Mutex
	closed bool
}

func newHTTPSource(body io.ReadCloser) *httpSource {
	return &httpSource{body: body, buf: make([]byte, 4096)}
}

// Next returns the next chunk of the response body. Chunk boundaries
// are otherwise whatever the transport delivered; the framing core
// makes no assumptions about them.
func (s *httpSource) Next(ctx context.Context) (string, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", stream.ErrClosed
	}
	s.mu.Unlock()

	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		n, err := s.body.Read(s.buf)
		if n > 0 {
			chunk := make([]byte, 0, len(s.carry)+n)
			chunk = append(chunk, s.carry...)
			chunk = append(chunk, s.buf[:n]...)
			cut := completeRuneBoundary(chunk)
			s.carry = append(s.carry[:0], chunk[cut:]...)
			if cut == 0 {
				// Only the head of a rune so far; read on.
				continue
			}
			// Deliver the data first; a terminal error resurfaces on
			// the next call.
			return string(chunk[:cut]), nil
		}
		switch {
		case errors.Is(err, io.EOF):
			if len(s.carry) > 0 {
				// A rune truncated by the upstream still reaches the
				// framer rather than vanishing.
				frag := string(s.carry)
				s.carry = nil
				return frag, nil
			}
			return "", io.EOF
		case err != nil:
			return "", fmt.Errorf("read fragment: %w", err)
		}
	}
}

// completeRuneBoundary returns the length of the longest prefix of b
// that does not end inside a multi-byte UTF-8 sequence. Bytes past the
// cut are the start of a rune whose continuation has not arrived yet.
func completeRuneBoundary(b []byte) int {
	for i := len(b) - 1; i >= 0 && len(b)-i < utf8.UTFMax; i-- {
		if utf8.RuneStart(b[i]) {
			if utf8.FullRune(b[i:]) {
				return len(b)
			}
			return i
		}
	}
	return len(b)
}

// Close releases the response body. The first call returns the body's
// close error, if any; later calls return stream.ErrClosed.
func (s *httpSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return stream.ErrClosed
	}
	s.closed = true
	if err := s.body.Close(); err != nil {
		return fmt.Errorf("close response body: %w", err)
	}
	return nil
}
