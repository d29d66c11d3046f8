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
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/GraphCompanion/services/broker"
	"github.com/AleutianAI/GraphCompanion/services/companion/datatypes"
	"github.com/AleutianAI/GraphCompanion/services/companion/observability"
	"github.com/AleutianAI/GraphCompanion/services/companion/wizard"
)

// notConfiguredReply is returned when no completion backend is wired. The
// extension renders this markdown as-is.
const notConfiguredReply = "⚠️ **Azure OpenAI is not configured.** Please set up your `.env` file with Endpoint and Key."

// HandleAgentChat classifies the turn, builds the phase instruction bundle
// and renders it through the completion backend.
//
// Backend failures come back as HTTP 200 with the error inlined in the
// reply: the side panel has one render path and treats transport-level
// errors as "backend down".
func HandleAgentChat(classifier *wizard.Classifier, selector *wizard.Selector, client broker.CompletionClient) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "HandleAgentChat")
		defer span.End()

		var req datatypes.ChatRequest
		if err := c.BindJSON(&req); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Failed to parse the chat request", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := req.Validate(); err != nil {
			span.SetStatus(codes.Error, err.Error())
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		in := wizard.Input{
			RawMessage: req.Message,
			ContextURL: req.ContextURL,
			DOMSnippet: req.DOMSnippet,
		}
		res := classifier.Classify(in)
		observability.CountClassification(string(res.Phase))
		slog.Info("Chat turn classified",
			"phase", res.Phase,
			"context_url", req.ContextURL,
			"message", wizard.TruncateForLog(req.Message, 100))

		// Sensitive-field phases produce no assistant output at all.
		if wizard.IsSuppressed(res.Phase) {
			c.JSON(http.StatusOK, datatypes.ChatReply{Response: ""})
			return
		}

		if client == nil {
			c.JSON(http.StatusOK, datatypes.ChatReply{Response: notConfiguredReply})
			return
		}

		bundle := selector.BuildBundle(res, in)
		answer, err := client.Generate(ctx, bundle, broker.GenerationParams{})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Completion backend failed", "phase", res.Phase, "error", err)
			c.JSON(http.StatusOK, datatypes.ChatReply{
				Response: fmt.Sprintf("🤖 **AI Error:** I encountered an issue connecting to my brain.\n\n`%s`", err.Error()),
			})
			return
		}

		c.JSON(http.StatusOK, datatypes.ChatReply{Response: answer})
	}
}
