// Copyright (C) 2026 UCAN AI (eng@ucan.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

// AuthContext carries the resolved identity and authorization facts for
// one inbound request.
//
// # Description
//
// AuthContext is produced by the auth middleware (from Azure EasyAuth
// principal headers or the MSAL OAuth callback) and consumed by the
// chat handlers and the stream controller. Handlers never resolve
// identity themselves; they read this value from the request context.
//
// # Fields
//
//   - Authorized: Outcome of the allow-list check. False short-circuits
//     the chat pipeline with a fixed denial message.
//   - PrincipalID: Stable directory object id (Entra ID "oid" claim).
//   - PrincipalName: Login name (Entra ID "preferred_username" claim).
//   - DisplayName: Human-readable name for logs and the UI.
//   - GroupNames: Display names of the directory groups the user is a
//     member of, from Microsoft Graph. May be empty.
//   - AccessToken: Graph access token when one was acquired; empty for
//     header-resolved principals.
type AuthContext struct {
	Authorized    bool     `json:"authorized"`
	PrincipalID   string   `json:"principal_id"`
	PrincipalName string   `json:"principal_name"`
	DisplayName   string   `json:"display_name"`
	GroupNames    []string `json:"group_names,omitempty"`
	AccessToken   string   `json:"-"`
}
