// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Auth lifecycle response types. Field names and status strings are part of
// the extension contract; the side panel switches on them verbatim.
package datatypes

// ServiceStatus is the GET / body. SessionID echoes the caller's session
// header and is empty when none was sent.
type ServiceStatus struct {
	Status     string `json:"status"`
	Service    string `json:"service"`
	AuthStatus string `json:"auth_status"`
	SessionID  string `json:"session_id"`
}

// LoginAccepted is the POST /auth/login body when a background flow was
// started.
type LoginAccepted struct {
	Status      string `json:"status"`
	Details     string `json:"details"`
	Instruction string `json:"instruction"`
}

// LoginAlreadyAuthenticated is the POST /auth/login body when the session
// already holds a credential.
type LoginAlreadyAuthenticated struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// DeviceCodeInfo is the GET /auth/code body. Status is one of
// "authenticated", "present", "waiting" or "failed"; the code fields are
// only populated for "present".
type DeviceCodeInfo struct {
	Status          string `json:"status"`
	VerificationURI string `json:"verification_uri,omitempty"`
	UserCode        string `json:"user_code,omitempty"`
	ExpiresOn       string `json:"expires_on,omitempty"`
	Message         string `json:"message,omitempty"`
	Detail          string `json:"detail,omitempty"`
}

// ErrorDetail mirrors FastAPI-style error bodies the extension already
// understands.
type ErrorDetail struct {
	Detail string `json:"detail"`
}

// ToolResult is the POST /tools/open-powershell body.
type ToolResult struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}
