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

// Package config loads the daemon configuration from its YAML config
// file and environment, and validates it before the daemon starts.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file consulted when no --config flag is given.
// A missing file is not an error; defaults apply.
const DefaultPath = "/etc/gpiodbusd/config.yaml"

// ErrInvalidConfig is returned when configuration validation fails.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Config represents the complete gpiodbusd configuration.
type Config struct {
	// Bus configures the daemon's presence on the system bus.
	Bus BusConfig `yaml:"bus"`

	// Hotplug configures device discovery.
	Hotplug HotplugConfig `yaml:"hotplug"`

	// Metrics configures the optional Prometheus listener.
	Metrics MetricsConfig `yaml:"metrics"`

	// Log configures logging level and format.
	Log LogConfig `yaml:"log"`

	// PIDFile is the path to the PID file. Empty means no PID file.
	PIDFile string `yaml:"pid_file,omitempty"`
}

// BusConfig configures the daemon's bus identity.
type BusConfig struct {
	// Name is the well-known name claimed on the system bus.
	// Default: org.gpiod
	Name string `yaml:"name,omitempty"`

	// ObjectRoot is the path prefix under which chip objects are
	// exported, one object per device. Default: /org/gpiod
	ObjectRoot string `yaml:"object_root,omitempty"`
}

// HotplugConfig configures udev device discovery.
type HotplugConfig struct {
	// Subsystem is the udev subsystem watched for add/remove uevents.
	// Default: gpio
	Subsystem string `yaml:"subsystem,omitempty"`
}

// MetricsConfig configures the Prometheus metrics endpoint.
type MetricsConfig struct {
	// Listen is the address for the /metrics HTTP listener
	// (e.g. "127.0.0.1:9142"). Empty disables metrics serving.
	Listen string `yaml:"listen,omitempty"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level sets the minimum log level (debug, info, warn, error).
	Level string `yaml:"level,omitempty"`

	// Format sets the output format (journal, json, text).
	Format string `yaml:"format,omitempty"`
}

// Default returns a Config populated with defaults.
func Default() *Config {
	return &Config{
		Bus: BusConfig{
			Name:       "org.gpiod",
			ObjectRoot: "/org/gpiod",
		},
		Hotplug: HotplugConfig{
			Subsystem: "gpio",
		},
	}
}

// Load reads the config file at path, applies environment overrides and
// validates the result. An empty path means DefaultPath; if the file at
// DefaultPath does not exist, defaults are used. An explicitly given
// path must exist.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	case os.IsNotExist(err) && !explicit:
		// No config file installed; run on defaults.
	default:
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv applies environment variable overrides.
// Supported variables:
//   - GPIODBUSD_BUS_NAME
//   - GPIODBUSD_METRICS_LISTEN
//   - GPIODBUSD_PID_FILE
func applyEnv(cfg *Config) {
	if v := os.Getenv("GPIODBUSD_BUS_NAME"); v != "" {
		cfg.Bus.Name = v
	}
	if v := os.Getenv("GPIODBUSD_METRICS_LISTEN"); v != "" {
		cfg.Metrics.Listen = v
	}
	if v := os.Getenv("GPIODBUSD_PID_FILE"); v != "" {
		cfg.PIDFile = v
	}
}

// busNameRe matches a valid D-Bus well-known name: dot-separated
// elements of [A-Za-z_-][A-Za-z0-9_-]*, at least two elements.
var busNameRe = regexp.MustCompile(`^[A-Za-z_-][A-Za-z0-9_-]*(\.[A-Za-z_-][A-Za-z0-9_-]*)+$`)

// objectRootRe matches a valid D-Bus object path with no trailing slash.
var objectRootRe = regexp.MustCompile(`^(/[A-Za-z0-9_]+)+$`)

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if !busNameRe.MatchString(c.Bus.Name) {
		return fmt.Errorf("%w: bus name %q is not a valid well-known name", ErrInvalidConfig, c.Bus.Name)
	}
	if !objectRootRe.MatchString(c.Bus.ObjectRoot) {
		return fmt.Errorf("%w: object root %q is not a valid object path", ErrInvalidConfig, c.Bus.ObjectRoot)
	}
	if strings.TrimSpace(c.Hotplug.Subsystem) == "" {
		return fmt.Errorf("%w: hotplug subsystem must not be empty", ErrInvalidConfig)
	}
	return nil
}
