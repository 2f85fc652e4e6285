// Copyright (C) 2026 UCAN AI (eng@ucan.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package storage serves the source documents referenced in assistant
// answers. Documents live in a blob container; the UI only ever reads.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	"github.com/ucan-ai/gpt-rag-ui-v2/services/ui/config"
)

// ErrDocumentNotFound reports a download request for a blob that does
// not exist in the container.
var ErrDocumentNotFound = errors.New("document not found")

// Document is one downloadable blob.
type Document struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.ReadCloser
}

// DocumentStore reads documents out of the configured container.
type DocumentStore struct {
	client    *azblob.Client
	container string
}

// NewDocumentStore connects to the storage account with the given
// credential, or a default Azure credential chain when nil.
func NewDocumentStore(cfg config.BlobConfig, credential azcore.TokenCredential) (*DocumentStore, error) {
	if cfg.AccountName == "" || cfg.Container == "" {
		return nil, errors.New("blob account name and container must be configured")
	}

	if credential == nil {
		cred, err := azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return nil, fmt.Errorf("default azure credential: %w", err)
		}
		credential = cred
	}

	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", cfg.AccountName)
	client, err := azblob.NewClient(serviceURL, credential, nil)
	if err != nil {
		return nil, fmt.Errorf("blob client: %w", err)
	}

	return &DocumentStore{client: client, container: cfg.Container}, nil
}

// Download opens the named blob for reading. The caller owns Body and
// must close it. A missing blob returns ErrDocumentNotFound.
func (s *DocumentStore) Download(ctx context.Context, name string) (*Document, error) {
	if name == "" {
		return nil, errors.New("empty document name")
	}

	resp, err := s.client.DownloadStream(ctx, s.container, name, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, name)
		}
		return nil, fmt.Errorf("download %s: %w", name, err)
	}

	doc := &Document{Name: name, Body: resp.Body}
	if resp.ContentType != nil {
		doc.ContentType = *resp.ContentType
	}
	if resp.ContentLength != nil {
		doc.Size = *resp.ContentLength
	}
	return doc, nil
}
