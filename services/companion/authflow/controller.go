// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package authflow drives the background device-code sign-in flow.
//
// StartLogin returns immediately; the blocking exchange with the identity
// provider runs on its own goroutine and publishes progress into the session
// store through generation-checked setters. A second StartLogin for the same
// session supersedes the first flow: the old goroutine keeps running until
// the provider call returns, but every write it attempts afterwards is
// dropped.
package authflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/AleutianAI/GraphCompanion/services/companion/observability"
	"github.com/AleutianAI/GraphCompanion/services/companion/session"
	"github.com/AleutianAI/GraphCompanion/services/identity"
)

// flowTimeout bounds a single device-code exchange. The provider's own code
// expiry is usually shorter; this is the hard backstop for a hung transport.
const flowTimeout = 20 * time.Minute

// StartResult reports what StartLogin did for the caller's session.
type StartResult struct {
	// AlreadyAuthenticated is true when the session had a completed flow
	// and no new one was started.
	AlreadyAuthenticated bool
}

// Controller owns the lifecycle of background auth flows. One instance
// serves all sessions; it holds no per-flow state of its own.
type Controller struct {
	store   *session.Store
	gateway identity.Gateway
	logger  *slog.Logger
}

// NewController wires a controller to the session store and identity
// gateway. A nil logger falls back to slog.Default().
func NewController(store *session.Store, gateway identity.Gateway, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		store:   store,
		gateway: gateway,
		logger:  logger,
	}
}

// StartLogin begins a device-code flow for sessionID and returns without
// waiting for it. Creating the session on first contact is intentional: the
// extension calls login before anything else.
func (c *Controller) StartLogin(sessionID string) StartResult {
	sess := c.store.GetOrCreate(sessionID)
	observability.SetSessionsLive(c.store.Len())

	generation, alreadyAuthed := sess.BeginLogin()
	if alreadyAuthed {
		observability.CountAuthFlow(observability.FlowAlreadyAuthed)
		return StartResult{AlreadyAuthenticated: true}
	}

	observability.CountAuthFlow(observability.FlowStarted)
	go c.run(sessionID, generation)
	return StartResult{}
}

// run executes one flow. It re-resolves the session by id for every write so
// a superseded flow degrades to no-ops instead of clobbering newer state.
func (c *Controller) run(sessionID string, generation uint64) {
	logger := c.logger.With("session_id", sessionID, "generation", generation)

	observability.TrackActiveFlow(1)
	defer observability.TrackActiveFlow(-1)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("auth flow panicked", "panic", r)
			c.fail(sessionID, generation, fmt.Sprintf("internal error: %v", r))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), flowTimeout)
	defer cancel()

	prompt := func(p identity.DeviceCodePrompt) {
		sess, ok := c.store.Get(sessionID)
		if !ok {
			return
		}
		stored := sess.SetDeviceCode(generation, session.DeviceCode{
			VerificationURI: p.VerificationURI,
			UserCode:        p.UserCode,
			ExpiresOn:       p.ExpiresOn,
			Message:         p.Message,
		})
		if stored {
			logger.Info("device code captured",
				"verification_uri", p.VerificationURI,
				"expires_on", p.ExpiresOn)
		} else {
			logger.Warn("device code dropped, flow superseded")
		}
	}

	credential, err := c.gateway.Acquire(ctx, prompt)
	if err != nil {
		logger.Warn("auth flow failed", "error", err)
		c.fail(sessionID, generation, err.Error())
		return
	}

	sess, ok := c.store.Get(sessionID)
	if !ok {
		return
	}
	if sess.Complete(generation, credential) {
		observability.CountAuthFlow(observability.FlowSucceeded)
		logger.Info("auth flow completed")
	} else {
		observability.CountAuthFlow(observability.FlowSuperseded)
		logger.Info("auth flow result dropped, flow superseded")
	}
}

func (c *Controller) fail(sessionID string, generation uint64, message string) {
	sess, ok := c.store.Get(sessionID)
	if !ok {
		return
	}
	if sess.Fail(generation, message) {
		observability.CountAuthFlow(observability.FlowFailed)
	} else {
		observability.CountAuthFlow(observability.FlowSuperseded)
	}
}
