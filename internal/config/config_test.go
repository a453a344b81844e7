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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "org.gpiod", cfg.Bus.Name)
	assert.Equal(t, "/org/gpiod", cfg.Bus.ObjectRoot)
	assert.Equal(t, "gpio", cfg.Hotplug.Subsystem)
	assert.Empty(t, cfg.Metrics.Listen)
	assert.Empty(t, cfg.PIDFile)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
bus:
  name: org.example.gpio
metrics:
  listen: 127.0.0.1:9142
pid_file: /run/gpiodbusd.pid
log:
  level: debug
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "org.example.gpio", cfg.Bus.Name)
	// Unset fields keep their defaults.
	assert.Equal(t, "/org/gpiod", cfg.Bus.ObjectRoot)
	assert.Equal(t, "gpio", cfg.Hotplug.Subsystem)
	assert.Equal(t, "127.0.0.1:9142", cfg.Metrics.Listen)
	assert.Equal(t, "/run/gpiodbusd.pid", cfg.PIDFile)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadMissingExplicitFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("bus:\n  name: org.example.gpio\n"), 0o600))

	t.Setenv("GPIODBUSD_BUS_NAME", "org.example.other")
	t.Setenv("GPIODBUSD_METRICS_LISTEN", "127.0.0.1:9999")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "org.example.other", cfg.Bus.Name)
	assert.Equal(t, "127.0.0.1:9999", cfg.Metrics.Listen)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:   "defaults are valid",
			mutate: func(*Config) {},
		},
		{
			name:    "single-element bus name",
			mutate:  func(c *Config) { c.Bus.Name = "gpiod" },
			wantErr: true,
		},
		{
			name:    "bus name element starting with digit",
			mutate:  func(c *Config) { c.Bus.Name = "org.1gpiod" },
			wantErr: true,
		},
		{
			name:    "object root without leading slash",
			mutate:  func(c *Config) { c.Bus.ObjectRoot = "org/gpiod" },
			wantErr: true,
		},
		{
			name:    "object root with trailing slash",
			mutate:  func(c *Config) { c.Bus.ObjectRoot = "/org/gpiod/" },
			wantErr: true,
		},
		{
			name:    "empty subsystem",
			mutate:  func(c *Config) { c.Hotplug.Subsystem = " " },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
