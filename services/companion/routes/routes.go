// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/GraphCompanion/services/broker"
	"github.com/AleutianAI/GraphCompanion/services/companion/authflow"
	"github.com/AleutianAI/GraphCompanion/services/companion/handlers"
	"github.com/AleutianAI/GraphCompanion/services/companion/session"
	"github.com/AleutianAI/GraphCompanion/services/companion/wizard"
)

// SetupRoutes registers the extension-facing API. The path shapes are part
// of the extension contract and are kept flat rather than versioned.
func SetupRoutes(router *gin.Engine, store *session.Store, ctrl *authflow.Controller,
	classifier *wizard.Classifier, selector *wizard.Selector, completion broker.CompletionClient) {

	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/", handlers.HandleRoot(store))

	auth := router.Group("/auth")
	{
		auth.POST("/login", handlers.HandleLogin(ctrl))
		auth.GET("/code", handlers.HandleAuthCode(store))
	}

	router.POST("/agent/chat", handlers.HandleAgentChat(classifier, selector, completion))
	router.GET("/me", handlers.HandleMe(store))

	tools := router.Group("/tools")
	{
		tools.POST("/open-powershell", handlers.HandleOpenPowerShell())
	}
}
