// Copyright (C) 2026 UCAN AI (eng@ucan.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ucan-ai/gpt-rag-ui-v2/services/ui/middleware"
	"github.com/ucan-ai/gpt-rag-ui-v2/services/ui/observability"
	"github.com/ucan-ai/gpt-rag-ui-v2/services/ui/storage"
)

// DocumentDownloader reads one named document. *storage.DocumentStore
// satisfies it.
type DocumentDownloader interface {
	Download(ctx context.Context, name string) (*storage.Document, error)
}

// DocumentHandler serves the source documents linked from assistant
// answers.
type DocumentHandler struct {
	store   DocumentDownloader
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewDocumentHandler wires the handler. Panics on nil collaborators.
func NewDocumentHandler(store DocumentDownloader, metrics *observability.Metrics, logger *slog.Logger) *DocumentHandler {
	if store == nil || metrics == nil {
		panic("handlers: NewDocumentHandler called with nil collaborator")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentHandler{store: store, metrics: metrics, logger: logger}
}

// HandleDownload handles GET /download/:name. Only authorized users
// may fetch documents; the blob name comes straight from the links the
// finalize pass produced.
func (h *DocumentHandler) HandleDownload(c *gin.Context) {
	if !middleware.GetAuthContext(c).Authorized {
		h.metrics.DownloadsTotal.WithLabelValues("denied").Inc()
		c.JSON(http.StatusForbidden, gin.H{"error": "not authorized"})
		return
	}

	name := c.Param("name")
	doc, err := h.store.Download(c.Request.Context(), name)
	if err != nil {
		if errors.Is(err, storage.ErrDocumentNotFound) {
			h.metrics.DownloadsTotal.WithLabelValues("not_found").Inc()
			c.JSON(http.StatusNotFound, gin.H{"error": "document not found: " + name})
			return
		}
		h.metrics.DownloadsTotal.WithLabelValues("error").Inc()
		h.logger.Error("document download failed", "name", name, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not fetch document"})
		return
	}
	defer doc.Body.Close()

	contentType := doc.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	h.metrics.DownloadsTotal.WithLabelValues("ok").Inc()
	c.DataFromReader(http.StatusOK, doc.Size, contentType, doc.Body, map[string]string{
		"Content-Disposition": `attachment; filename="` + doc.Name + `"`,
	})
}
