// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package broker abstracts the generative backend that renders an
// instruction bundle into the final markdown reply.
package broker

import (
	"context"

	"github.com/AleutianAI/GraphCompanion/services/companion/wizard"
)

// GenerationParams tunes a single completion request. Nil fields fall back
// to the backend's defaults.
type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	MaxTokens   *int     `json:"max_tokens"`
}

// CompletionClient defines the standard interface for any generative backend.
type CompletionClient interface {
	Generate(ctx context.Context, bundle wizard.InstructionBundle, params GenerationParams) (string, error)
}
