// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package identity wraps the delegated-identity provider behind a narrow
// gateway contract.
//
// The device-code handshake is blocking by nature: the provider's token
// endpoint is polled until the admin completes sign-in on another surface.
// That blocking boundary is first-class here — Acquire blocks, and the auth
// flow controller owns pushing it onto a background goroutine. Nothing in
// this package spawns goroutines of its own.
package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// DeviceCodePrompt is the human-presentable half of the handshake, handed to
// the prompt callback as soon as the provider issues a code.
type DeviceCodePrompt struct {
	// VerificationURI is where the admin completes sign-in.
	VerificationURI string

	// UserCode is the short code to enter at the verification URI.
	UserCode string

	// ExpiresOn is when the provider will stop accepting the code. It is
	// reported to the caller, never enforced by this service.
	ExpiresOn time.Time

	// Message is a display string for the extension UI.
	Message string
}

// Gateway is the credential gateway contract. Implementations block inside
// Acquire until the handshake resolves; ctx cancellation aborts the wait.
type Gateway interface {
	// Acquire runs one device-code handshake. prompt is invoked exactly
	// once, after the provider issues the code and before the blocking
	// token wait begins. On success the returned credential carries a
	// live token source.
	Acquire(ctx context.Context, prompt func(DeviceCodePrompt)) (*Credential, error)
}

// Profile is the signed-in admin's directory profile, as returned by the
// provider's "me" resource.
type Profile struct {
	DisplayName string `json:"displayName"`
	Mail        string `json:"mail"`
	ID          string `json:"id"`
}

// Credential is the opaque handle a completed handshake yields. It owns a
// refreshing token source scoped to the session that acquired it.
type Credential struct {
	source     oauth2.TokenSource
	profileURL string
}

// NewCredential builds a credential from a token source and the provider's
// profile endpoint. Exposed for tests; production credentials come out of a
// Gateway.
func NewCredential(source oauth2.TokenSource, profileURL string) *Credential {
	return &Credential{source: source, profileURL: profileURL}
}

// Profile fetches the signed-in admin's directory profile with the
// credential's bearer token.
func (c *Credential) Profile(ctx context.Context) (*Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.profileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build profile request: %w", err)
	}

	client := oauth2.NewClient(ctx, c.source)
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("profile request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("profile request returned %d: %s", resp.StatusCode, string(body))
	}

	var profile Profile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, fmt.Errorf("failed to decode profile response: %w", err)
	}
	return &profile, nil
}
