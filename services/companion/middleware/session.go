// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package middleware provides HTTP middleware for the companion service.
//
// # Session Resolution
//
// Every extension client sends an opaque id in the X-Session-Id header.
// SessionMiddleware extracts it and stores it in the Gin context; handlers
// that require a session retrieve it via GetSessionID and reject requests
// without one. The id is never interpreted, only used as a store key.
package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// =============================================================================
// Context Keys
// =============================================================================

// sessionIDKey is the context key for the extension session id.
// Using a typed key prevents collisions with other context values.
const sessionIDKey = "companion_session_id"

// requestIDKey is the context key for the per-request correlation id.
const requestIDKey = "companion_request_id"

// SessionHeader is the header the extension sends its session id in.
const SessionHeader = "X-Session-Id"

// RequestIDHeader carries the correlation id back to the caller.
const RequestIDHeader = "X-Request-Id"

// =============================================================================
// Context Helpers
// =============================================================================

// GetSessionID retrieves the extension session id from the Gin context.
// Returns "" when the request carried no X-Session-Id header.
func GetSessionID(c *gin.Context) string {
	if v, exists := c.Get(sessionIDKey); exists {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

// GetRequestID retrieves the correlation id assigned to this request.
func GetRequestID(c *gin.Context) string {
	if v, exists := c.Get(requestIDKey); exists {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

// =============================================================================
// Middleware
// =============================================================================

// SessionMiddleware extracts the X-Session-Id header into the Gin context.
//
// The middleware never rejects: endpoints that can serve an anonymous
// request (GET /, POST /tools/open-powershell) still work without a
// session, and handlers that do require one enforce it themselves so each
// can return its endpoint-specific error body.
func SessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if id := c.GetHeader(SessionHeader); id != "" {
			c.Set(sessionIDKey, id)
		}
		c.Next()
	}
}

// RequestIDMiddleware assigns a UUID to each request, honoring a caller-
// supplied X-Request-Id so the extension can correlate retries.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}
