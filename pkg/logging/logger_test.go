// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package logging

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup_FileLogging(t *testing.T) {
	dir := t.TempDir()

	logger, closeLog := Setup(Config{
		Level:   slog.LevelInfo,
		LogDir:  dir,
		Service: "companion-test",
	})

	logger.Info("code captured", "user_code", "ABCD-1234")
	logger.Debug("filtered out")
	require.NoError(t, closeLog())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasPrefix(entries[0].Name(), "companion-test_"))

	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1, "debug entry must be filtered")

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "code captured", entry["msg"])
	assert.Equal(t, "ABCD-1234", entry["user_code"])
	assert.Equal(t, "companion-test", entry["service"])
}

func TestSetup_NoDirStillLogs(t *testing.T) {
	logger, closeLog := Setup(Config{Service: "companion-test"})
	require.NotNil(t, logger)
	assert.NoError(t, closeLog())
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, ".companion/logs"), expandPath("~/.companion/logs"))
	assert.Equal(t, "/var/log/companion", expandPath("/var/log/companion"))
	assert.Equal(t, "relative/logs", expandPath("relative/logs"))
}
