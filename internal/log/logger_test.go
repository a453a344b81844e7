// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package log

import (
	"bytes"
	"log/slog"
	"os"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != "info" {
		t.Errorf("expected default level 'info', got %q", cfg.Level)
	}

	if cfg.Format != FormatJournal {
		t.Errorf("expected default format 'journal', got %q", cfg.Format)
	}

	if cfg.Output != os.Stderr {
		t.Errorf("expected default output to be os.Stderr")
	}
}

func TestFromEnv(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		expected *Config
	}{
		{
			name:    "defaults when no env vars",
			envVars: map[string]string{},
			expected: &Config{
				Level:  "info",
				Format: FormatJournal,
				Output: os.Stderr,
			},
		},
		{
			name: "LOG_LEVEL=debug",
			envVars: map[string]string{
				"LOG_LEVEL": "debug",
			},
			expected: &Config{
				Level:  "debug",
				Format: FormatJournal,
				Output: os.Stderr,
			},
		},
		{
			name: "GPIODBUSD_DEBUG wins over LOG_LEVEL",
			envVars: map[string]string{
				"GPIODBUSD_DEBUG": "1",
				"LOG_LEVEL":       "error",
			},
			expected: &Config{
				Level:  "debug",
				Format: FormatJournal,
				Output: os.Stderr,
			},
		},
		{
			name: "LOG_FORMAT=json",
			envVars: map[string]string{
				"LOG_FORMAT": "JSON",
			},
			expected: &Config{
				Level:  "info",
				Format: FormatJSON,
				Output: os.Stderr,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg := FromEnv()

			if cfg.Level != tt.expected.Level {
				t.Errorf("expected level %q, got %q", tt.expected.Level, cfg.Level)
			}
			if cfg.Format != tt.expected.Format {
				t.Errorf("expected format %q, got %q", tt.expected.Format, cfg.Format)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"ERROR", slog.LevelError},
		{"bogus", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.input); got != tt.expected {
			t.Errorf("ParseLevel(%q) = %v, expected %v", tt.input, got, tt.expected)
		}
	}
}

func TestJournalHandlerPriorities(t *testing.T) {
	tests := []struct {
		level  slog.Level
		prefix string
	}{
		{slog.LevelDebug, "<7>"},
		{slog.LevelInfo, "<6>"},
		{slog.LevelWarn, "<4>"},
		{slog.LevelError, "<3>"},
	}

	for _, tt := range tests {
		var buf bytes.Buffer
		logger := slog.New(NewJournalHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

		logger.Log(nil, tt.level, "hello")

		line := buf.String()
		if !strings.HasPrefix(line, tt.prefix) {
			t.Errorf("level %v: expected prefix %q, got line %q", tt.level, tt.prefix, line)
		}
		if !strings.HasSuffix(line, "hello\n") {
			t.Errorf("level %v: expected message suffix, got line %q", tt.level, line)
		}
	}
}

func TestJournalHandlerAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewJournalHandler(&buf, nil))
	logger = WithComponent(logger, "daemon")

	logger.Info("uevent", DeviceKey, "gpiochip0")

	line := strings.TrimSuffix(buf.String(), "\n")
	if line != "<6>uevent component=daemon device=gpiochip0" {
		t.Errorf("unexpected line %q", line)
	}
}

func TestJournalHandlerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewJournalHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	logger.Debug("invisible")

	if buf.Len() != 0 {
		t.Errorf("expected debug record to be filtered, got %q", buf.String())
	}
}
