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

	"github.com/gpiodbus/gpiodbusd/internal/bus"
	"github.com/gpiodbus/gpiodbusd/internal/gpio"
)

// ExposedChip is one controller currently exposed on the bus. The
// record exclusively owns its chip handle. RegID is zero only during
// construction; a record stored in the registry always carries the id
// of a successful export.
type ExposedChip struct {
	Devname string
	Handle  gpio.Handle
	RegID   bus.RegistrationID
}

// Registry maps device names to exposed chips. It is written and read
// only from the daemon's event loop, so it needs no locking. Violations
// of its key invariants are programming errors and panic: the manager
// consults the registry before every insert, and a remove for an
// unknown device means the hotplug source broke its add/remove
// pairing contract.
type Registry struct {
	chips   map[string]*ExposedChip
	destroy func(*ExposedChip)
}

// NewRegistry creates an empty registry. destroy is run for every
// record leaving the registry, before the mapping entry disappears.
func NewRegistry(destroy func(*ExposedChip)) *Registry {
	return &Registry{
		chips:   make(map[string]*ExposedChip),
		destroy: destroy,
	}
}

// Insert stores a record under devname. Panics if devname is already
// present.
func (r *Registry) Insert(devname string, rec *ExposedChip) {
	if _, ok := r.chips[devname]; ok {
		panic(fmt.Sprintf("registry: duplicate insert for device %q", devname))
	}
	r.chips[devname] = rec
}

// Remove destroys and drops the record for devname. Panics if devname
// is not present.
func (r *Registry) Remove(devname string) {
	rec, ok := r.chips[devname]
	if !ok {
		panic(fmt.Sprintf("registry: remove of unknown device %q", devname))
	}
	r.destroy(rec)
	delete(r.chips, devname)
}

// Lookup returns the record for devname, if present.
func (r *Registry) Lookup(devname string) (*ExposedChip, bool) {
	rec, ok := r.chips[devname]
	return rec, ok
}

// Len returns the number of exposed chips.
func (r *Registry) Len() int { return len(r.chips) }

// Drain destroys and drops every record. Used once during teardown,
// after the event loop has stopped.
func (r *Registry) Drain() {
	for devname, rec := range r.chips {
		r.destroy(rec)
		delete(r.chips, devname)
	}
}
