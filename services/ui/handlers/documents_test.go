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
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ucan-ai/gpt-rag-ui-v2/services/ui/datatypes"
	"github.com/ucan-ai/gpt-rag-ui-v2/services/ui/middleware"
	"github.com/ucan-ai/gpt-rag-ui-v2/services/ui/observability"
	"github.com/ucan-ai/gpt-rag-ui-v2/services/ui/storage"
)

type fakeDocStore struct {
	docs map[string]string
	err  error
}

func (f *fakeDocStore) Download(_ context.Context, name string) (*storage.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	content, ok := f.docs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrDocumentNotFound, name)
	}
	return &storage.Document{
		Name:        name,
		ContentType: "application/pdf",
		Size:        int64(len(content)),
		Body:        io.NopCloser(strings.NewReader(content)),
	}, nil
}

func documentRouter(store DocumentDownloader, authorized bool) *gin.Engine {
	h := NewDocumentHandler(store, observability.Default, nil)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		middleware.SetAuthContext(c, datatypes.AuthContext{Authorized: authorized})
	})
	r.GET("/download/:name", h.HandleDownload)
	return r
}

func TestHandleDownloadServesDocument(t *testing.T) {
	r := documentRouter(&fakeDocStore{docs: map[string]string{"report.pdf": "pdf bytes"}}, true)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/download/report.pdf", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), `filename="report.pdf"`)
	assert.Equal(t, "pdf bytes", w.Body.String())
}

func TestHandleDownloadMissingDocumentIs404(t *testing.T) {
	r := documentRouter(&fakeDocStore{}, true)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/download/nope.pdf", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleDownloadRequiresAuthorization(t *testing.T) {
	r := documentRouter(&fakeDocStore{docs: map[string]string{"report.pdf": "x"}}, false)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/download/report.pdf", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestHandleDownloadStorageErrorIs500(t *testing.T) {
	r := documentRouter(&fakeDocStore{err: errors.New("storage offline")}, true)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/download/report.pdf", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
