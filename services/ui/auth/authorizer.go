// Copyright (C) 2026 UCAN AI (eng@ucan.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package auth decides who may talk to the assistant. Identity
// establishment (the OAuth exchange, the platform principal headers)
// and the authorization decision are kept separate so the allow-list
// logic stays testable without a directory service.
package auth

import (
	"strings"

	"github.com/ucan-ai/gpt-rag-ui-v2/services/ui/config"
	"github.com/ucan-ai/gpt-rag-ui-v2/services/ui/datatypes"
)

// Authorizer checks an authenticated identity against the configured
// allow-lists.
//
// # Description
//
// Three lists participate: user names, user principals, and directory
// group names. A user is authorized when any list matches, or when
// every list is empty, which means the deployment has opted out of
// allow-listing entirely. Matching is case-insensitive.
type Authorizer struct {
	userNames  map[string]struct{}
	principals map[string]struct{}
	groups     map[string]struct{}
}

// NewAuthorizer builds an Authorizer from the configured lists.
// Entries are trimmed and lowercased; blank entries are dropped.
func NewAuthorizer(cfg config.AuthConfig) *Authorizer {
	return &Authorizer{
		userNames:  toSet(cfg.AllowedUserNames),
		principals: toSet(cfg.AllowedUserPrincipals),
		groups:     toSet(cfg.AllowedGroupNames),
	}
}

// Open reports whether allow-listing is disabled (all lists empty).
func (a *Authorizer) Open() bool {
	return len(a.userNames) == 0 && len(a.principals) == 0 && len(a.groups) == 0
}

// IsUserAuthorized applies the allow-lists to one identity.
//
// # Description
//
// Deployed allow-lists are not uniform about which identity facet they
// hold: ALLOWED_USER_PRINCIPALS carries directory object ids in some
// tenants and UPNs in others, and ALLOWED_USER_NAMES is seen with both
// login names and display names. Each list therefore matches against
// both plausible facets, so existing app-service settings keep working
// unchanged.
//
// # Inputs
//
//   - principalID: The stable directory object id (the "oid" claim).
//   - principalName: The user principal name (usually an email-shaped
//     UPN).
//   - displayName: The directory display name.
//   - groupNames: Display names of the user's directory groups.
//
// # Outputs
//
//   - bool: True when the identity matches any list, or when no lists
//     are configured.
func (a *Authorizer) IsUserAuthorized(principalID, principalName, displayName string, groupNames []string) bool {
	if a.Open() {
		return true
	}
	if matchesSet(a.userNames, principalName) || matchesSet(a.userNames, displayName) {
		return true
	}
	if matchesSet(a.principals, principalID) || matchesSet(a.principals, principalName) {
		return true
	}
	for _, g := range groupNames {
		if matchesSet(a.groups, g) {
			return true
		}
	}
	return false
}

// Authorize stamps the decision onto an AuthContext.
func (a *Authorizer) Authorize(authCtx datatypes.AuthContext) datatypes.AuthContext {
	authCtx.Authorized = a.IsUserAuthorized(
		authCtx.PrincipalID, authCtx.PrincipalName, authCtx.DisplayName, authCtx.GroupNames)
	return authCtx
}

// matchesSet reports set membership for a non-empty, normalized value.
func matchesSet(set map[string]struct{}, value string) bool {
	if value == "" {
		return false
	}
	_, ok := set[normalize(value)]
	return ok
}

func toSet(entries []string) map[string]struct{} {
	set := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		e = normalize(e)
		if e == "" {
			continue
		}
		set[e] = struct{}{}
	}
	return set
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
