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

// Package hotplug delivers udev add/remove events for one device
// subsystem over a netlink uevent socket, plus a one-shot enumeration
// of the devices already present.
package hotplug

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/pilebones/go-udev/netlink"

	"github.com/gpiodbus/gpiodbusd/internal/log"
)

// Action is the kind of a hotplug event.
type Action string

const (
	ActionAdd    Action = "add"
	ActionRemove Action = "remove"
)

// Event is one hotplug report for a device in the watched subsystem.
//
// The kernel emits two uevents per action per GPIO chip: one for the
// character device, one for the legacy sysfs device. Only the former
// carries a device node, which is how the two are told apart.
type Event struct {
	// Action is the uevent action, verbatim.
	Action Action

	// DevNode is the device file path (e.g. "/dev/gpiochip0"), or
	// empty for a report with no device file.
	DevNode string
}

// HasDevNode reports whether the event refers to a device backed by a
// device file. Events without one are ignored by the daemon.
func (e Event) HasDevNode() bool { return e.DevNode != "" }

// Devname returns the kernel device name, the basename of the device
// node. Only valid when HasDevNode is true.
func (e Event) Devname() string { return filepath.Base(e.DevNode) }

// Monitor watches a udev subsystem for uevents.
type Monitor struct {
	conn   *netlink.UEventConn
	events chan Event
	// quit stops the library's monitor goroutine; stop stops the pump.
	quit   chan struct{}
	stop   chan struct{}
	logger *slog.Logger
}

// NewMonitor connects to the udev netlink socket and starts delivering
// events for the given subsystem on Events. Socket errors are logged
// and monitoring continues; only the initial connect can fail.
func NewMonitor(subsystem string, logger *slog.Logger) (*Monitor, error) {
	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		return nil, fmt.Errorf("hotplug: connect uevent socket: %w", err)
	}

	matcher := &netlink.RuleDefinition{
		Env: map[string]string{"SUBSYSTEM": subsystem},
	}

	queue := make(chan netlink.UEvent, 16)
	errs := make(chan error, 1)
	quit := conn.Monitor(queue, errs, matcher)

	m := &Monitor{
		conn:   conn,
		events: make(chan Event, 16),
		quit:   quit,
		stop:   make(chan struct{}),
		logger: logger,
	}
	go m.pump(queue, errs)

	return m, nil
}

func (m *Monitor) pump(queue chan netlink.UEvent, errs chan error) {
	for {
		select {
		case ev := <-queue:
			out := Event{
				Action:  Action(ev.Action),
				DevNode: ev.Env["DEVNAME"],
			}
			select {
			case m.events <- out:
			case <-m.stop:
				close(m.events)
				return
			}
		case err := <-errs:
			m.logger.Warn("uevent socket error", log.Error(err))
		case <-m.stop:
			close(m.events)
			return
		}
	}
}

// Events returns the channel of hotplug events. It is closed when the
// monitor is closed.
func (m *Monitor) Events() <-chan Event { return m.events }

// Close stops monitoring and releases the netlink socket.
func (m *Monitor) Close() {
	m.quit <- struct{}{}
	close(m.stop)
	m.conn.Close()
}

// Enumerate returns synthetic add events for the chardev-backed GPIO
// devices currently present under /dev. The daemon runs these through
// the same path as live add events once the bus name is acquired.
func Enumerate() ([]Event, error) {
	return enumerate("/dev/gpiochip*")
}

func enumerate(glob string) ([]Event, error) {
	nodes, err := filepath.Glob(glob)
	if err != nil {
		return nil, fmt.Errorf("hotplug: enumerate devices: %w", err)
	}
	events := make([]Event, 0, len(nodes))
	for _, node := range nodes {
		events = append(events, Event{Action: ActionAdd, DevNode: node})
	}
	return events, nil
}
