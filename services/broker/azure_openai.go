// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package broker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/AleutianAI/GraphCompanion/services/companion/observability"
	"github.com/AleutianAI/GraphCompanion/services/companion/wizard"
)

const (
	defaultTemperature float32 = 0.7
	defaultMaxTokens           = 600
)

// AzureOpenAIClient implements CompletionClient against an Azure OpenAI
// deployment via the chat completions API.
type AzureOpenAIClient struct {
	client     *openai.Client
	deployment string
}

// NewAzureOpenAIClient reads AZURE_OPENAI_ENDPOINT, AZURE_OPENAI_API_KEY and
// AZURE_OPENAI_DEPLOYMENT from the environment. The key may also come from
// the Podman secret at /run/secrets/azure_openai_api_key.
func NewAzureOpenAIClient() (*AzureOpenAIClient, error) {
	endpoint := os.Getenv("AZURE_OPENAI_ENDPOINT")
	if endpoint == "" {
		return nil, fmt.Errorf("AZURE_OPENAI_ENDPOINT environment variable not set")
	}

	apiKey := os.Getenv("AZURE_OPENAI_API_KEY")
	if apiKey == "" {
		secretPath := "/run/secrets/azure_openai_api_key"
		apiKeyBytes, err := os.ReadFile(secretPath)
		if err == nil {
			apiKey = strings.TrimSpace(string(apiKeyBytes))
			slog.Info("Read the Azure OpenAI API key from Podman Secrets")
		} else {
			slog.Error("AZURE_OPENAI_API_KEY environment variable not set and secret not found", "path", secretPath)
			return nil, fmt.Errorf("AZURE_OPENAI_API_KEY environment variable not set")
		}
	}

	deployment := os.Getenv("AZURE_OPENAI_DEPLOYMENT")
	if deployment == "" {
		deployment = "gpt-4o"
		slog.Warn("AZURE_OPENAI_DEPLOYMENT not set, defaulting to gpt-4o")
	}

	config := openai.DefaultAzureConfig(apiKey, endpoint)
	config.AzureModelMapperFunc = func(model string) string {
		return deployment
	}

	slog.Info("Initializing Azure OpenAI client", "deployment", deployment)
	return &AzureOpenAIClient{
		client:     openai.NewClientWithConfig(config),
		deployment: deployment,
	}, nil
}

// Generate implements the CompletionClient interface. The bundle's system
// prompt and context travel as separate system messages ahead of the user
// turn.
func (c *AzureOpenAIClient) Generate(ctx context.Context, bundle wizard.InstructionBundle, params GenerationParams) (string, error) {
	slog.Debug("Generating completion via Azure OpenAI", "deployment", c.deployment)

	messages := make([]openai.ChatCompletionMessage, 0, 3)
	for _, m := range bundle.Messages() {
		role := openai.ChatMessageRoleSystem
		if m.Role == "user" {
			role = openai.ChatMessageRoleUser
		}
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    role,
			Content: m.Content,
		})
	}

	req := openai.ChatCompletionRequest{
		Model:       c.deployment,
		Messages:    messages,
		Temperature: defaultTemperature,
		MaxTokens:   defaultMaxTokens,
	}
	if params.Temperature != nil {
		req.Temperature = *params.Temperature
	}
	if params.MaxTokens != nil {
		req.MaxTokens = *params.MaxTokens
	}

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		observability.ObserveBrokerRequest("error", time.Since(start).Seconds())
		slog.Error("Azure OpenAI API call failed", "error", err)
		return "", fmt.Errorf("Azure OpenAI API call failed: %w", err)
	}
	observability.ObserveBrokerRequest("success", time.Since(start).Seconds())

	if len(resp.Choices) == 0 {
		slog.Warn("Azure OpenAI returned no choices")
		return "", fmt.Errorf("Azure OpenAI returned no choices")
	}
	slog.Debug("Received response from Azure OpenAI", "finish_reason", resp.Choices[0].FinishReason)
	return resp.Choices[0].Message.Content, nil
}
