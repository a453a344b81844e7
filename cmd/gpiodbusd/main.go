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

// gpiodbusd exposes GPIO controllers as objects on the D-Bus system
// bus, tracking their appearance and disappearance via udev.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/gpiodbus/gpiodbusd/internal/bus"
	"github.com/gpiodbus/gpiodbusd/internal/config"
	"github.com/gpiodbus/gpiodbusd/internal/daemon"
	"github.com/gpiodbus/gpiodbusd/internal/lifecycle"
	"github.com/gpiodbus/gpiodbusd/internal/log"
)

// Version information (injected via ldflags at build time)
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		debug       = pflag.BoolP("debug", "d", false, "print additional debug messages")
		configPath  = pflag.String("config", "", "path to the config file")
		showVersion = pflag.Bool("version", false, "show version information")
	)
	pflag.Parse()

	if *showVersion {
		fmt.Printf("gpiodbusd %s (commit: %s)\n", version, commit)
		return 0
	}

	logCfg := log.FromEnv()
	if *debug {
		logCfg.Level = "debug"
	}
	logger := log.New(logCfg)
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", log.Error(err))
		return 1
	}

	// The config file's log section applies only where neither the
	// --debug flag nor the environment said otherwise.
	if !*debug && os.Getenv("GPIODBUSD_DEBUG") == "" {
		changed := false
		if cfg.Log.Level != "" && os.Getenv("LOG_LEVEL") == "" {
			logCfg.Level = cfg.Log.Level
			changed = true
		}
		if cfg.Log.Format != "" && os.Getenv("LOG_FORMAT") == "" {
			logCfg.Format = log.Format(cfg.Log.Format)
			changed = true
		}
		if changed {
			logger = log.New(logCfg)
			slog.SetDefault(logger)
		}
	}

	logger.Info("initiating gpiodbusd", "version", version)

	if cfg.PIDFile != "" {
		pf := lifecycle.NewPIDFile(cfg.PIDFile)
		if err := pf.Create(os.Getpid()); err != nil {
			logger.Error("failed to create PID file", log.Error(err))
			return 1
		}
		defer pf.Remove()
	}

	conn, err := bus.Connect(cfg.Bus.Name, cfg.Bus.ObjectRoot, logger)
	if err != nil {
		logger.Error("unable to make connection to the bus", log.Error(err))
		return 1
	}

	d := daemon.New(cfg, logger, conn)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	signal.Ignore(syscall.SIGHUP)
	go func() {
		sig := <-sigCh
		logger.Debug("signal received", "signal", sig.String())
		cancel()
	}()

	logger.Info("gpiodbusd started")

	if err := d.Run(ctx); err != nil {
		return 1
	}

	logger.Info("gpiodbusd exiting cleanly")
	return 0
}
