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
	"fmt"

	"github.com/godbus/dbus/v5"

	"github.com/gpiodbus/gpiodbusd/internal/bus"
	"github.com/gpiodbus/gpiodbusd/internal/hotplug"
	"github.com/gpiodbus/gpiodbusd/internal/log"
)

// handleUEvent processes one hotplug report, from the live subscription
// or the initial enumeration. Reports without a device file are the
// legacy sysfs half of the uevent pair and are dropped before any
// registry access.
func (d *Daemon) handleUEvent(ev hotplug.Event) {
	if !ev.HasDevNode() {
		return
	}

	devname := ev.Devname()
	d.logger.Debug("uevent", log.ActionKey, string(ev.Action), log.DeviceKey, devname)
	d.metrics.UEvents.WithLabelValues(string(ev.Action)).Inc()

	switch ev.Action {
	case hotplug.ActionAdd:
		d.addChip(devname)
	case hotplug.ActionRemove:
		d.removeChip(devname)
	default:
		d.logger.Warn("unknown action for uevent", log.ActionKey, string(ev.Action), log.DeviceKey, devname)
	}
}

// addChip opens the device and exports its bus object. Open and export
// failures leave the device unexposed until its next hotplug cycle; a
// device already in the registry means the hotplug source delivered an
// unpaired add, which is a protocol violation.
func (d *Daemon) addChip(devname string) {
	if _, ok := d.registry.Lookup(devname); ok {
		panic(fmt.Sprintf("daemon: duplicate add for device %q", devname))
	}

	d.logger.Debug("creating a bus object", log.DeviceKey, devname)

	handle, err := d.opener.Open(devname)
	if err != nil {
		d.metrics.OpenFailures.Inc()
		d.logger.Warn("error opening GPIO device", log.DeviceKey, devname, log.Error(err))
		return
	}

	regID, err := d.bus.ExportChip(devname, d)
	if err != nil {
		d.metrics.ExportFailures.Inc()
		d.logger.Warn("error registering a bus object", log.DeviceKey, devname, log.Error(err))
		if cerr := handle.Close(); cerr != nil {
			d.logger.Debug("error closing chip handle", log.DeviceKey, devname, log.Error(cerr))
		}
		return
	}

	d.registry.Insert(devname, &ExposedChip{
		Devname: devname,
		Handle:  handle,
		RegID:   regID,
	})
	d.metrics.ChipsExposed.Set(float64(d.registry.Len()))
}

// removeChip drops the device's record, cascading to handle close and
// bus object unexport. The registry panics on an unknown device: every
// present device must have produced a successful add first.
func (d *Daemon) removeChip(devname string) {
	d.logger.Debug("removing a bus object", log.DeviceKey, devname)
	d.registry.Remove(devname)
	d.metrics.ChipsExposed.Set(float64(d.registry.Len()))
}

type propRequest struct {
	devname  string
	property string
	reply    chan propResult
}

type propResult struct {
	value dbus.Variant
	err   *dbus.Error
}

// ReadProperty implements bus.PropertyReader. Requests are forwarded
// into the event loop so the registry is only ever touched from one
// goroutine; once the loop has stopped, reads answer UnknownObject.
func (d *Daemon) ReadProperty(devname, property string) (dbus.Variant, *dbus.Error) {
	req := propRequest{devname: devname, property: property, reply: make(chan propResult, 1)}

	select {
	case d.props <- req:
	case <-d.done:
		return dbus.Variant{}, bus.ErrUnknownObject
	}

	select {
	case res := <-req.reply:
		return res.value, res.err
	case <-d.done:
		return dbus.Variant{}, bus.ErrUnknownObject
	}
}

// readProperty runs on the event loop. All three properties are served
// from metadata the handle cached at open time; nothing here can block
// on hardware.
func (d *Daemon) readProperty(devname, property string) propResult {
	rec, ok := d.registry.Lookup(devname)
	if !ok {
		return propResult{err: bus.ErrUnknownObject}
	}

	switch property {
	case bus.PropName:
		return propResult{value: dbus.MakeVariant(rec.Handle.Name())}
	case bus.PropLabel:
		return propResult{value: dbus.MakeVariant(rec.Handle.Label())}
	case bus.PropNumLines:
		return propResult{value: dbus.MakeVariant(uint32(rec.Handle.Lines()))}
	default:
		return propResult{err: bus.ErrUnknownProperty}
	}
}
