// Copyright (C) 2026 UCAN AI (eng@ucan.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/AzureAD/microsoft-authentication-library-for-go/apps/confidential"

	"github.com/ucan-ai/gpt-rag-ui-v2/services/ui/config"
	"github.com/ucan-ai/gpt-rag-ui-v2/services/ui/datatypes"
)

const (
	authorityFormat = "https://login.microsoftonline.com/%s"
	graphMemberOf   = "https://graph.microsoft.com/v1.0/me/memberOf"
	graphGroupType  = "#microsoft.graph.group"

	graphTimeout = 15 * time.Second
)

// OAuthExchanger completes the authorization-code flow and resolves
// the signed-in user's directory groups.
//
// # Description
//
// The browser completes the interactive half of the flow; this side
// redeems the code with the confidential client, reads the identity
// out of the ID token, then calls Microsoft Graph memberOf to collect
// group display names for the allow-list check.
type OAuthExchanger struct {
	cfg        config.AuthConfig
	client     confidential.Client
	authorizer *Authorizer
	httpClient *http.Client
	logger     *slog.Logger
}

// NewOAuthExchanger builds the confidential client. Returns an error
// when the OAuth application settings are incomplete.
func NewOAuthExchanger(cfg config.AuthConfig, authorizer *Authorizer, logger *slog.Logger) (*OAuthExchanger, error) {
	if cfg.TenantID == "" || cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("tenant id, client id, and client secret must be configured")
	}
	if logger == nil {
		logger = slog.Default()
	}

	cred, err := confidential.NewCredFromSecret(cfg.ClientSecret)
	if err != nil {
		return nil, fmt.Errorf("client secret credential: %w", err)
	}
	client, err := confidential.New(fmt.Sprintf(authorityFormat, cfg.TenantID), cfg.ClientID, cred)
	if err != nil {
		return nil, fmt.Errorf("confidential client: %w", err)
	}

	return &OAuthExchanger{
		cfg:        cfg,
		client:     client,
		authorizer: authorizer,
		httpClient: &http.Client{Timeout: graphTimeout},
		logger:     logger,
	}, nil
}

// ExchangeCode redeems an authorization code for an identity.
//
// # Outputs
//
//   - datatypes.AuthContext: The authenticated identity with the
//     authorization decision already applied.
//   - error: Non-nil when the redemption or the group lookup fails.
//     Group lookup failures are fatal only when group allow-listing is
//     configured; otherwise groups are simply absent.
func (e *OAuthExchanger) ExchangeCode(ctx context.Context, code string) (datatypes.AuthContext, error) {
	if code == "" {
		return datatypes.AuthContext{}, errors.New("empty authorization code")
	}

	result, err := e.client.AcquireTokenByAuthCode(ctx, code, e.cfg.RedirectURI, e.cfg.Scopes)
	if err != nil {
		return datatypes.AuthContext{}, fmt.Errorf("redeem authorization code: %w", err)
	}

	authCtx := datatypes.AuthContext{
		PrincipalID:   result.IDToken.Oid,
		PrincipalName: result.IDToken.PreferredUsername,
		DisplayName:   result.IDToken.Name,
		AccessToken:   result.AccessToken,
	}
	if authCtx.PrincipalName == "" {
		authCtx.PrincipalName = result.IDToken.UPN
	}

	groups, err := e.fetchGroupNames(ctx, result.AccessToken)
	if err != nil {
		if len(e.authorizer.groups) > 0 {
			return datatypes.AuthContext{}, fmt.Errorf("resolve directory groups: %w", err)
		}
		e.logger.Warn("group lookup failed; continuing without groups",
			"principal", authCtx.PrincipalName, "error", err)
	}
	authCtx.GroupNames = groups

	authCtx = e.authorizer.Authorize(authCtx)
	e.logger.Info("completed sign-in",
		"principal", authCtx.PrincipalName, "authorized", authCtx.Authorized)
	return authCtx, nil
}

// fetchGroupNames pages through Graph memberOf and returns group
// display names. Directory roles and other non-group objects in the
// response are skipped.
func (e *OAuthExchanger) fetchGroupNames(ctx context.Context, accessToken string) ([]string, error) {
	var names []string
	url := graphMemberOf
	for url != "" {
		page, next, err := e.fetchMemberOfPage(ctx, accessToken, url)
		if err != nil {
			return nil, err
		}
		names = append(names, page...)
		url = next
	}
	return names, nil
}

func (e *OAuthExchanger) fetchMemberOfPage(ctx context.Context, accessToken, url string) ([]string, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build memberOf request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("call graph: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("graph memberOf returned %s", resp.Status)
	}

	var body struct {
		Value []struct {
			ODataType   string `json:"@odata.type"`
			DisplayName string `json:"displayName"`
		} `json:"value"`
		NextLink string `json:"@odata.nextLink"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, "", fmt.Errorf("decode memberOf response: %w", err)
	}

	var names []string
	for _, obj := range body.Value {
		if obj.ODataType == graphGroupType && obj.DisplayName != "" {
			names = append(names, obj.DisplayName)
		}
	}
	return names, body.NextLink, nil
}
