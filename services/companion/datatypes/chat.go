// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes provides request and response structures for the
// companion service HTTP surface.
//
// This file contains the chat turn types. Auth lifecycle types are in
// auth.go.
package datatypes

import (
	"github.com/go-playground/validator/v10"
)

// =============================================================================
// Constants for Input Bounds
// =============================================================================

const (
	// MaxMessageBytes bounds the user-visible chat message. Checked in
	// bytes, not runes, to cap memory regardless of encoding.
	MaxMessageBytes = 32 * 1024 // 32KB

	// MaxDOMSnippetBytes bounds the raw DOM snippet the extension ships
	// with each turn. The classifier further truncates what it actually
	// inspects; this limit only rejects pathological payloads.
	MaxDOMSnippetBytes = 256 * 1024 // 256KB
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// chatValidate is the validator instance for chat datatypes.
// Initialized in init() with custom validators.
var chatValidate *validator.Validate

func init() {
	chatValidate = validator.New()

	_ = chatValidate.RegisterValidation("maxmsgbytes", validateMaxMessageBytes)
	_ = chatValidate.RegisterValidation("maxdombytes", validateMaxDOMBytes)
}

// validateMaxMessageBytes enforces MaxMessageBytes on a string field.
func validateMaxMessageBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxMessageBytes
}

// validateMaxDOMBytes enforces MaxDOMSnippetBytes on a string field.
func validateMaxDOMBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxDOMSnippetBytes
}

// =============================================================================
// Chat Request/Response Types
// =============================================================================

// ChatRequest is one turn from the extension's side panel.
//
// # Fields
//
//   - Message: Required. What the admin typed, or a synthetic action token
//     injected by the extension UI.
//   - ContextURL: Optional. The admin-center URL of the active tab, used for
//     coarse phase detection.
//   - DOMSnippet: Optional. A simplified serialization of the visible page,
//     forwarded verbatim into the generative context.
//
// # Validation
//
//   - Message: required, max 32KB
//   - DOMSnippet: max 256KB
type ChatRequest struct {
	Message    string `json:"message" validate:"required,maxmsgbytes"`
	ContextURL string `json:"context_url" validate:"omitempty,max=4096"`
	DOMSnippet string `json:"dom_snippet" validate:"omitempty,maxdombytes"`
}

// Validate validates the ChatRequest fields after JSON binding.
func (r *ChatRequest) Validate() error {
	return chatValidate.Struct(r)
}

// ChatReply carries the rendered assistant turn back to the extension. The
// field name matches what the side panel renders.
type ChatReply struct {
	Response string `json:"response"`
}
