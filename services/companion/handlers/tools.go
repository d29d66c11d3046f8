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
	"log/slog"
	"net/http"
	"os/exec"
	"runtime"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/GraphCompanion/services/companion/datatypes"
)

// launchPowerShell is swapped out in tests. The default spawns a detached
// console window on Windows hosts; elsewhere it tries pwsh in the
// platform's default terminal and usually fails, which the handler reports
// rather than hides.
var launchPowerShell = func() error {
	if runtime.GOOS == "windows" {
		return exec.Command("cmd", "/C", "start", "powershell").Start()
	}
	return exec.Command("pwsh", "-NoExit").Start()
}

// HandleOpenPowerShell launches a local PowerShell window so the admin can
// run the agent-install commands the wizard quotes. Best effort: failure is
// reported in the body, never as an HTTP error.
func HandleOpenPowerShell() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := launchPowerShell(); err != nil {
			slog.Error("Failed to launch PowerShell", "error", err)
			c.JSON(http.StatusOK, datatypes.ToolResult{
				Status:  "error",
				Message: err.Error(),
			})
			return
		}
		c.JSON(http.StatusOK, datatypes.ToolResult{
			Status:  "success",
			Message: "PowerShell launched",
		})
	}
}
