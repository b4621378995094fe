// Copyright (C) 2025 Refua Labs (dev@refualabs.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  Level
	}{
		{"debug", LevelDebug},
		{"DEBUG", LevelDebug},
		{"info", LevelInfo},
		{"warn", LevelWarn},
		{"warning", LevelWarn},
		{"error", LevelError},
		{" Error ", LevelError},
		{"", LevelInfo},
		{"verbose", LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.input))
		})
	}
}

func TestLevel_String(t *testing.T) {
	assert.Equal(t, "DEBUG", LevelDebug.String())
	assert.Equal(t, "INFO", LevelInfo.String())
	assert.Equal(t, "WARN", LevelWarn.String())
	assert.Equal(t, "ERROR", LevelError.String())
	assert.Equal(t, "UNKNOWN", Level(42).String())
}

func TestLogger_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Service: "test-service", Output: &buf})
	defer logger.Close()

	logger.Info("turn handled", "phase", "collection", "tokens", 42)

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))

	assert.Equal(t, "INFO", record["level"])
	assert.Equal(t, "turn handled", record["msg"])
	assert.Equal(t, "test-service", record["service"])
	assert.Equal(t, "collection", record["phase"])
	assert.Equal(t, float64(42), record["tokens"])
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: LevelWarn, Output: &buf})
	defer logger.Close()

	logger.Debug("dropped")
	logger.Info("dropped too")
	logger.Warn("kept")

	output := buf.String()
	assert.NotContains(t, output, "dropped")
	assert.Contains(t, output, "kept")
}

func TestLogger_With(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Output: &buf})
	defer logger.Close()

	reqLogger := logger.With("request_id", "req-1")
	reqLogger.Info("processing")

	assert.Contains(t, buf.String(), "req-1")

	// Parent does not inherit the child's attributes.
	buf.Reset()
	logger.Info("parent message")
	assert.NotContains(t, buf.String(), "req-1")
}

func TestLogger_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Text: true, Output: &buf})
	defer logger.Close()

	logger.Info("hello", "key", "value")

	// Text handler produces key=value pairs, not JSON.
	assert.Contains(t, buf.String(), "msg=hello")
	assert.Contains(t, buf.String(), "key=value")
}

func TestLogger_FileLogging(t *testing.T) {
	dir := t.TempDir()

	var buf bytes.Buffer
	logger := New(Config{Service: "medchat", LogDir: dir, Output: &buf})

	logger.Info("written to both")
	require.NoError(t, logger.Close())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasPrefix(entries[0].Name(), "medchat_"))
	assert.True(t, strings.HasSuffix(entries[0].Name(), ".log"))

	content, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)

	// File output is JSON regardless of the primary format.
	var record map[string]any
	require.NoError(t, json.Unmarshal(content, &record))
	assert.Equal(t, "written to both", record["msg"])

	assert.Contains(t, buf.String(), "written to both")
}

func TestLogger_QuietWritesOnlyFile(t *testing.T) {
	dir := t.TempDir()

	var buf bytes.Buffer
	logger := New(Config{Service: "medchat", LogDir: dir, Quiet: true, Output: &buf})

	logger.Info("file only")
	require.NoError(t, logger.Close())

	assert.Empty(t, buf.String())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestLogger_CloseWithoutFile(t *testing.T) {
	logger := New(Config{Output: &bytes.Buffer{}})
	assert.NoError(t, logger.Close())
	assert.NoError(t, logger.Close())
}
