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

package bus

import (
	"fmt"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/godbus/dbus/v5/prop"
)

// ChipInterface is the D-Bus interface exposed per chip object. It has
// three read-only properties and no methods or signals.
const ChipInterface = "org.gpiod.Chip"

// Property names on ChipInterface.
const (
	PropName     = "Name"
	PropLabel    = "Label"
	PropNumLines = "NumLines"
)

const (
	propsInterface      = "org.freedesktop.DBus.Properties"
	introspectInterface = "org.freedesktop.DBus.Introspectable"
)

// Standard error replies for the property dispatch path.
var (
	ErrUnknownInterface = dbus.NewError("org.freedesktop.DBus.Error.UnknownInterface", nil)
	ErrUnknownProperty  = dbus.NewError("org.freedesktop.DBus.Error.UnknownProperty", nil)
	ErrUnknownObject    = dbus.NewError("org.freedesktop.DBus.Error.UnknownObject", nil)
	ErrPropertyReadOnly = dbus.NewError("org.freedesktop.DBus.Error.PropertyReadOnly", nil)
)

// RegistrationID identifies one successful object export. IDs are
// strictly increasing for the lifetime of the process, so a re-export
// of the same path is distinguishable from the export it replaced.
type RegistrationID uint64

// PropertyReader answers property reads for an exported chip.
type PropertyReader interface {
	// ReadProperty returns the value of the named property for the
	// chip known by devname, or a D-Bus error reply for an unknown
	// property or an object that is no longer exposed.
	ReadProperty(devname, property string) (dbus.Variant, *dbus.Error)
}

var chipNode = &introspect.Node{
	Interfaces: []introspect.Interface{
		introspect.IntrospectData,
		prop.IntrospectData,
		{
			Name: ChipInterface,
			Properties: []introspect.Property{
				{Name: PropName, Type: "s", Access: "read"},
				{Name: PropLabel, Type: "s", Access: "read"},
				{Name: PropNumLines, Type: "u", Access: "read"},
			},
		},
	},
}

// chipObject is the exported handler for one chip path. Reads are
// delegated to the PropertyReader so the answer always comes from the
// daemon's registry, never from state captured at export time.
type chipObject struct {
	devname string
	reader  PropertyReader
}

func (o *chipObject) Get(iface, property string) (dbus.Variant, *dbus.Error) {
	if iface != ChipInterface {
		return dbus.Variant{}, ErrUnknownInterface
	}
	return o.reader.ReadProperty(o.devname, property)
}

func (o *chipObject) GetAll(iface string) (map[string]dbus.Variant, *dbus.Error) {
	if iface != ChipInterface {
		return nil, ErrUnknownInterface
	}
	all := make(map[string]dbus.Variant, 3)
	for _, property := range []string{PropName, PropLabel, PropNumLines} {
		v, derr := o.reader.ReadProperty(o.devname, property)
		if derr != nil {
			return nil, derr
		}
		all[property] = v
	}
	return all, nil
}

func (o *chipObject) Set(iface, property string, value dbus.Variant) *dbus.Error {
	if iface != ChipInterface {
		return ErrUnknownInterface
	}
	return ErrPropertyReadOnly
}

// ChipPath returns the object path for a device name.
func (c *Conn) ChipPath(devname string) dbus.ObjectPath {
	return dbus.ObjectPath(c.objectRoot + "/" + devname)
}

// ExportChip exports a chip object at the path derived from devname,
// answering property reads through reader. On success it returns a
// fresh registration id.
func (c *Conn) ExportChip(devname string, reader PropertyReader) (RegistrationID, error) {
	path := c.ChipPath(devname)
	if !path.IsValid() {
		return 0, fmt.Errorf("bus: %q does not form a valid object path", devname)
	}

	obj := &chipObject{devname: devname, reader: reader}
	if err := c.conn.Export(obj, path, propsInterface); err != nil {
		return 0, fmt.Errorf("bus: export %s: %w", path, err)
	}
	if err := c.conn.Export(introspect.NewIntrospectable(chipNode), path, introspectInterface); err != nil {
		c.conn.Export(nil, path, propsInterface)
		return 0, fmt.Errorf("bus: export introspection for %s: %w", path, err)
	}

	c.nextReg++
	return c.nextReg, nil
}

// UnexportChip removes the chip object at the path derived from devname.
func (c *Conn) UnexportChip(devname string) error {
	path := c.ChipPath(devname)
	if err := c.conn.Export(nil, path, propsInterface); err != nil {
		return fmt.Errorf("bus: unexport %s: %w", path, err)
	}
	if err := c.conn.Export(nil, path, introspectInterface); err != nil {
		return fmt.Errorf("bus: unexport introspection for %s: %w", path, err)
	}
	return nil
}
