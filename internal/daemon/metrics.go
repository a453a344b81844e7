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

package daemon

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the daemon's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	// ChipsExposed is the number of chip objects currently on the bus.
	ChipsExposed prometheus.Gauge
	// UEvents counts relevant hotplug events by action.
	UEvents *prometheus.CounterVec
	// OpenFailures counts chip handle open failures.
	OpenFailures prometheus.Counter
	// ExportFailures counts bus object export failures.
	ExportFailures prometheus.Counter
}

// NewMetrics creates the daemon's metric collectors on a dedicated
// registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ChipsExposed: factory.NewGauge(prometheus.GaugeOpts{
			Name: "gpiodbusd_chips_exposed",
			Help: "Number of GPIO chip objects currently exposed on the bus.",
		}),
		UEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gpiodbusd_uevents_total",
			Help: "Hotplug uevents processed, by action.",
		}, []string{"action"}),
		OpenFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "gpiodbusd_chip_open_failures_total",
			Help: "GPIO chip handle open failures.",
		}),
		ExportFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "gpiodbusd_object_export_failures_total",
			Help: "Bus object export failures.",
		}),
	}
}

// Handler returns the /metrics HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
