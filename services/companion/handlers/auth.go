// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/GraphCompanion/services/companion/authflow"
	"github.com/AleutianAI/GraphCompanion/services/companion/datatypes"
	"github.com/AleutianAI/GraphCompanion/services/companion/middleware"
	"github.com/AleutianAI/GraphCompanion/services/companion/observability"
	"github.com/AleutianAI/GraphCompanion/services/companion/session"
	"github.com/AleutianAI/GraphCompanion/services/identity"
)

// ProfileSource is the slice of a credential the /me handler needs. The
// concrete type is *identity.Credential; tests substitute fakes.
type ProfileSource interface {
	Profile(ctx context.Context) (*identity.Profile, error)
}

// requireSession pulls the session id set by the middleware, writing the
// contract error body when the extension forgot the header.
func requireSession(c *gin.Context) (string, bool) {
	id := middleware.GetSessionID(c)
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"status":  "error",
			"message": "Missing session id",
		})
		return "", false
	}
	return id, true
}

// HandleLogin kicks off the background device-code flow and returns
// immediately. Polling /auth/code is how the extension learns the code.
func HandleLogin(ctrl *authflow.Controller) gin.HandlerFunc {
	return func(c *gin.Context) {
		_, span := tracer.Start(c.Request.Context(), "HandleLogin")
		defer span.End()

		sessionID, ok := requireSession(c)
		if !ok {
			span.SetStatus(codes.Error, "missing session id")
			return
		}

		res := ctrl.StartLogin(sessionID)
		if res.AlreadyAuthenticated {
			c.JSON(http.StatusOK, datatypes.LoginAlreadyAuthenticated{
				Status:  "success",
				Message: "Already authenticated",
			})
			return
		}

		slog.Info("Device code flow started", "session_id", sessionID)
		c.JSON(http.StatusOK, datatypes.LoginAccepted{
			Status:      "pending_interaction",
			Details:     "Authentication started in background.",
			Instruction: "Poll /auth/code to get the device code.",
		})
	}
}

// HandleAuthCode reports the current position in the device-code flow.
// Designed for tight polling; it only reads a session snapshot.
func HandleAuthCode(store *session.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID, ok := requireSession(c)
		if !ok {
			return
		}

		sess, found := store.Get(sessionID)
		if !found {
			observability.CountCodePoll("waiting")
			c.JSON(http.StatusOK, datatypes.DeviceCodeInfo{
				Status:  "waiting",
				Message: "Waiting for device code generation...",
			})
			return
		}

		snap := sess.Snapshot()
		switch {
		case snap.Status == session.StatusAuthenticated:
			observability.CountCodePoll("authenticated")
			c.JSON(http.StatusOK, datatypes.DeviceCodeInfo{Status: "authenticated"})

		case snap.Status == session.StatusFailed:
			observability.CountCodePoll("failed")
			c.JSON(http.StatusOK, datatypes.DeviceCodeInfo{
				Status: "failed",
				Detail: snap.LastError,
			})

		case snap.DeviceCode != nil:
			observability.CountCodePoll("present")
			c.JSON(http.StatusOK, datatypes.DeviceCodeInfo{
				Status:          "present",
				VerificationURI: snap.DeviceCode.VerificationURI,
				UserCode:        snap.DeviceCode.UserCode,
				ExpiresOn:       snap.DeviceCode.ExpiresOn.Format(time.RFC3339),
				Message:         snap.DeviceCode.Message,
			})

		default:
			observability.CountCodePoll("waiting")
			c.JSON(http.StatusOK, datatypes.DeviceCodeInfo{
				Status:  "waiting",
				Message: "Waiting for device code generation...",
			})
		}
	}
}

// HandleMe returns the signed-in admin's Graph profile. Requires a
// completed flow; it never triggers one.
func HandleMe(store *session.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "HandleMe")
		defer span.End()

		sessionID, ok := requireSession(c)
		if !ok {
			span.SetStatus(codes.Error, "missing session id")
			return
		}

		var source ProfileSource
		if sess, found := store.Get(sessionID); found {
			if snap := sess.Snapshot(); snap.Status == session.StatusAuthenticated {
				source, _ = sess.Credential().(ProfileSource)
			}
		}
		if source == nil {
			c.JSON(http.StatusUnauthorized, datatypes.ErrorDetail{Detail: "Not authenticated yet."})
			return
		}

		profile, err := source.Profile(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Profile fetch failed", "session_id", sessionID, "error", err)
			c.JSON(http.StatusInternalServerError, datatypes.ErrorDetail{Detail: err.Error()})
			return
		}
		c.JSON(http.StatusOK, profile)
	}
}
