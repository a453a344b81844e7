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

// Package gpio provides the chip handle abstraction over the GPIO
// character device. A Handle caches the chip metadata at open time, so
// reads against it never touch hardware.
package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// Handle is an open GPIO controller. The metadata accessors return
// values cached by the kernel query performed at open time.
type Handle interface {
	// Name returns the kernel name of the chip (e.g. "gpiochip0").
	Name() string
	// Label returns the functional label of the chip.
	Label() string
	// Lines returns the number of GPIO lines the chip manages.
	Lines() int
	// Close releases the underlying device.
	Close() error
}

// Opener opens a chip handle for a kernel device name.
type Opener interface {
	Open(name string) (Handle, error)
}

// CdevOpener opens chips through their character device under /dev.
type CdevOpener struct{}

// Open opens the chip named name (e.g. "gpiochip0").
func (CdevOpener) Open(name string) (Handle, error) {
	chip, err := gpiocdev.NewChip(name)
	if err != nil {
		return nil, fmt.Errorf("gpio: open %s: %w", name, err)
	}
	return &cdevHandle{chip: chip}, nil
}

type cdevHandle struct {
	chip *gpiocdev.Chip
}

func (h *cdevHandle) Name() string  { return h.chip.Name }
func (h *cdevHandle) Label() string { return h.chip.Label }
func (h *cdevHandle) Lines() int    { return h.chip.Lines() }
func (h *cdevHandle) Close() error  { return h.chip.Close() }
