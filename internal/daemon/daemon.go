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

// Package daemon contains the chip lifecycle manager: the single event
// loop that reacts to bus-ownership transitions and hotplug events,
// keeps the registry of exposed chips consistent, and answers property
// reads against it.
package daemon

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gpiodbus/gpiodbusd/internal/bus"
	"github.com/gpiodbus/gpiodbusd/internal/config"
	"github.com/gpiodbus/gpiodbusd/internal/gpio"
	"github.com/gpiodbus/gpiodbusd/internal/hotplug"
	"github.com/gpiodbus/gpiodbusd/internal/log"
)

// Bus is the subset of the bus connection the lifecycle manager drives.
type Bus interface {
	ExportChip(devname string, reader bus.PropertyReader) (bus.RegistrationID, error)
	UnexportChip(devname string) error
	Close() error
}

// monitorFunc starts the hotplug subscription and returns its event
// channel and a stop function. It is only invoked once the well-known
// name is acquired, so object exports never race bus availability.
type monitorFunc func() (<-chan hotplug.Event, func(), error)

// Daemon is the gpiodbusd process state: one bus connection, one
// hotplug subscription, one registry. All mutation happens on the
// goroutine running Run.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger

	bus       Bus
	own       func() <-chan bus.OwnershipEvent
	opener    gpio.Opener
	monitor   monitorFunc
	enumerate func() ([]hotplug.Event, error)

	registry *Registry
	metrics  *Metrics

	props chan propRequest
	// done is closed when the event loop has stopped; it releases any
	// property read still waiting on the loop.
	done chan struct{}

	stopMonitor func()
}

// New creates a daemon on a connected bus, wired to the real chip
// opener and udev monitor.
func New(cfg *config.Config, logger *slog.Logger, conn *bus.Conn) *Daemon {
	d := newDaemon(cfg, logger, conn, conn.Own, gpio.CdevOpener{})
	d.monitor = func() (<-chan hotplug.Event, func(), error) {
		m, err := hotplug.NewMonitor(cfg.Hotplug.Subsystem, d.logger)
		if err != nil {
			return nil, nil, err
		}
		return m.Events(), m.Close, nil
	}
	d.enumerate = hotplug.Enumerate
	return d
}

func newDaemon(cfg *config.Config, logger *slog.Logger, b Bus, own func() <-chan bus.OwnershipEvent, opener gpio.Opener) *Daemon {
	d := &Daemon{
		cfg:     cfg,
		logger:  log.WithComponent(logger, "daemon"),
		bus:     b,
		own:     own,
		opener:  opener,
		metrics: NewMetrics(),
		props:   make(chan propRequest),
		done:    make(chan struct{}),
	}
	d.registry = NewRegistry(d.destroyChip)
	return d
}

// destroyChip releases a record's resources: chip handle first, bus
// object second. Both steps run even for partially constructed records.
func (d *Daemon) destroyChip(rec *ExposedChip) {
	if rec.Handle != nil {
		if err := rec.Handle.Close(); err != nil {
			d.logger.Debug("error closing chip handle", log.DeviceKey, rec.Devname, log.Error(err))
		}
	}
	if rec.RegID != 0 {
		if err := d.bus.UnexportChip(rec.Devname); err != nil {
			d.logger.Warn("error unregistering bus object", log.DeviceKey, rec.Devname, log.Error(err))
		}
	}
}

// Run claims the well-known name and processes events until ctx is
// cancelled (clean shutdown, nil return) or the bus identity is lost
// (non-nil return). Teardown runs strictly after the loop has stopped.
func (d *Daemon) Run(ctx context.Context) error {
	stopMetrics := d.serveMetrics()
	defer stopMetrics()
	defer d.teardown()
	defer close(d.done)

	ownership := d.own()

	var uevents <-chan hotplug.Event
	for {
		select {
		case <-ctx.Done():
			d.logger.Debug("shutdown requested")
			return nil

		case ev := <-ownership:
			switch ev.Kind {
			case bus.OwnershipConnected:
				d.logger.Debug("bus connection acquired")

			case bus.OwnershipNameAcquired:
				d.logger.Debug("bus name acquired", "name", d.cfg.Bus.Name)
				events, stop, err := d.monitor()
				if err != nil {
					d.logger.Error("error subscribing for hotplug events", log.Error(err))
					return err
				}
				uevents = events
				d.stopMonitor = stop

				present, err := d.enumerate()
				if err != nil {
					d.logger.Error("error enumerating devices", log.Error(err))
					return err
				}
				for _, ev := range present {
					d.handleUEvent(ev)
				}

			case bus.OwnershipNameLost:
				err := errors.New(ev.Reason.String())
				if ev.Err != nil {
					err = ev.Err
				}
				d.logger.Error("bus identity lost, dying", log.Error(err))
				return err
			}

		case ev, ok := <-uevents:
			if !ok {
				uevents = nil
				continue
			}
			d.handleUEvent(ev)

		case req := <-d.props:
			req.reply <- d.readProperty(req.devname, req.property)
		}
	}
}

// teardown destroys every exposed chip, releases the hotplug
// subscription and the bus connection. Runs after the loop has stopped,
// so no event can interleave with it.
func (d *Daemon) teardown() {
	if d.stopMonitor != nil {
		d.stopMonitor()
	}
	d.registry.Drain()
	d.metrics.ChipsExposed.Set(0)
	if err := d.bus.Close(); err != nil {
		d.logger.Debug("error closing bus connection", log.Error(err))
	}
}

// serveMetrics starts the optional Prometheus listener. Listener
// failure is logged, not fatal; the daemon's contract is the bus, not
// the metrics endpoint.
func (d *Daemon) serveMetrics() func() {
	if d.cfg.Metrics.Listen == "" {
		return func() {}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", d.metrics.Handler())
	srv := &http.Server{Addr: d.cfg.Metrics.Listen, Handler: mux}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.logger.Warn("metrics listener failed", log.Error(err))
		}
	}()

	return func() { srv.Close() }
}
