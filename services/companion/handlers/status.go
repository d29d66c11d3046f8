// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers provides HTTP handlers for the companion service.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"

	"github.com/AleutianAI/GraphCompanion/services/companion/datatypes"
	"github.com/AleutianAI/GraphCompanion/services/companion/middleware"
	"github.com/AleutianAI/GraphCompanion/services/companion/session"
)

var tracer = otel.Tracer("companion.handlers")

// ServiceName appears in the GET / body; the extension shows it on its
// connection screen.
const ServiceName = "M365 Admin Companion Backend"

// HealthCheck responds to container orchestration probes.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// HandleRoot reports liveness plus the caller's auth status. Works without
// a session header; an unknown or absent session reads as unauthenticated.
func HandleRoot(store *session.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := middleware.GetSessionID(c)
		authStatus := string(session.StatusUnauthenticated)
		if id != "" {
			if sess, ok := store.Get(id); ok {
				if sess.Snapshot().Status == session.StatusAuthenticated {
					authStatus = string(session.StatusAuthenticated)
				}
			}
		}

		c.JSON(http.StatusOK, datatypes.ServiceStatus{
			Status:     "running",
			Service:    ServiceName,
			AuthStatus: authStatus,
			SessionID:  id,
		})
	}
}
