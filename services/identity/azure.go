// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package identity

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

const (
	// DefaultClientID is the well-known Microsoft Graph PowerShell public
	// client id. It already carries the broad Graph delegated permissions
	// the connector wizard needs, including
	// ExternalConnection.ReadWrite.OwnedBy, so admins do not have to
	// register an app just to run the companion.
	DefaultClientID = "14d82eec-204b-4c2f-b7e8-296a70dab67e"

	// DefaultTenant uses the multi-tenant login endpoint.
	DefaultTenant = "organizations"

	// DefaultGraphBaseURL is the Microsoft Graph v1.0 root.
	DefaultGraphBaseURL = "https://graph.microsoft.com/v1.0"

	// fallbackVerificationURI is shown if the provider response omits the
	// verification URI, so the extension never renders "undefined".
	fallbackVerificationURI = "https://microsoft.com/devicelogin"

	// fallbackUserCode is shown if the provider response omits the code.
	fallbackUserCode = "UNKNOWN_CODE"

	// promptMessage is the display string sent with every device code.
	promptMessage = "Please sign in to authenticate."
)

// DefaultScopes are the delegated Graph scopes for connector administration.
func DefaultScopes() []string {
	return []string{
		"https://graph.microsoft.com/ExternalConnection.ReadWrite.OwnedBy",
		"https://graph.microsoft.com/User.Read",
	}
}

// AzureConfig configures the Entra ID device-code gateway. Zero values fall
// back to the public-client defaults above.
type AzureConfig struct {
	ClientID     string
	Tenant       string
	Scopes       []string
	GraphBaseURL string
}

// AzureGateway implements Gateway against Entra ID using the standard OAuth2
// device authorization grant.
type AzureGateway struct {
	oauth        *oauth2.Config
	graphBaseURL string
}

// NewAzureGateway builds a gateway for the given config.
func NewAzureGateway(cfg AzureConfig) *AzureGateway {
	if cfg.ClientID == "" {
		cfg.ClientID = DefaultClientID
	}
	if cfg.Tenant == "" {
		cfg.Tenant = DefaultTenant
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = DefaultScopes()
	}
	if cfg.GraphBaseURL == "" {
		cfg.GraphBaseURL = DefaultGraphBaseURL
	}

	return &AzureGateway{
		oauth: &oauth2.Config{
			ClientID: cfg.ClientID,
			Endpoint: endpoints.AzureAD(cfg.Tenant),
			Scopes:   cfg.Scopes,
		},
		graphBaseURL: cfg.GraphBaseURL,
	}
}

// Acquire runs one device-code handshake. It blocks in DeviceAccessToken
// until the admin completes sign-in, the code expires, or ctx is canceled.
func (g *AzureGateway) Acquire(ctx context.Context, prompt func(DeviceCodePrompt)) (*Credential, error) {
	da, err := g.oauth.DeviceAuth(ctx)
	if err != nil {
		return nil, fmt.Errorf("device authorization request failed: %w", err)
	}

	slog.Info("Captured device code", "expires", da.Expiry.Format(time.RFC3339))
	prompt(promptFromResponse(da))

	token, err := g.oauth.DeviceAccessToken(ctx, da)
	if err != nil {
		return nil, fmt.Errorf("device token wait failed: %w", err)
	}

	return &Credential{
		source:     g.oauth.TokenSource(context.Background(), token),
		profileURL: g.graphBaseURL + "/me",
	}, nil
}

// promptFromResponse converts the provider response to a prompt, substituting
// safe fallbacks for any field the provider left empty.
func promptFromResponse(da *oauth2.DeviceAuthResponse) DeviceCodePrompt {
	uri := da.VerificationURI
	if uri == "" {
		uri = fallbackVerificationURI
	}
	code := da.UserCode
	if code == "" {
		code = fallbackUserCode
	}
	return DeviceCodePrompt{
		VerificationURI: uri,
		UserCode:        code,
		ExpiresOn:       da.Expiry,
		Message:         promptMessage,
	}
}

var _ Gateway = (*AzureGateway)(nil)
