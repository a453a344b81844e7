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
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticReader map[string]any

func (r staticReader) ReadProperty(devname, property string) (dbus.Variant, *dbus.Error) {
	v, ok := r[property]
	if !ok {
		return dbus.Variant{}, ErrUnknownProperty
	}
	return dbus.MakeVariant(v), nil
}

func testReader() staticReader {
	return staticReader{
		PropName:     "gpiochip0",
		PropLabel:    "pinctrl-bcm2835",
		PropNumLines: uint32(54),
	}
}

func TestChipObjectGet(t *testing.T) {
	obj := &chipObject{devname: "gpiochip0", reader: testReader()}

	v, derr := obj.Get(ChipInterface, PropLabel)
	require.Nil(t, derr)
	assert.Equal(t, "pinctrl-bcm2835", v.Value())

	_, derr = obj.Get(ChipInterface, "Vendor")
	assert.Equal(t, ErrUnknownProperty, derr)

	_, derr = obj.Get("org.gpiod.Line", PropLabel)
	assert.Equal(t, ErrUnknownInterface, derr)
}

func TestChipObjectGetAll(t *testing.T) {
	obj := &chipObject{devname: "gpiochip0", reader: testReader()}

	all, derr := obj.GetAll(ChipInterface)
	require.Nil(t, derr)
	assert.Equal(t, map[string]dbus.Variant{
		PropName:     dbus.MakeVariant("gpiochip0"),
		PropLabel:    dbus.MakeVariant("pinctrl-bcm2835"),
		PropNumLines: dbus.MakeVariant(uint32(54)),
	}, all)

	_, derr = obj.GetAll("org.gpiod.Line")
	assert.Equal(t, ErrUnknownInterface, derr)
}

func TestChipObjectSetIsRejected(t *testing.T) {
	obj := &chipObject{devname: "gpiochip0", reader: testReader()}

	derr := obj.Set(ChipInterface, PropLabel, dbus.MakeVariant("x"))
	assert.Equal(t, ErrPropertyReadOnly, derr)

	derr = obj.Set("org.gpiod.Line", PropLabel, dbus.MakeVariant("x"))
	assert.Equal(t, ErrUnknownInterface, derr)
}

func TestChipPath(t *testing.T) {
	c := &Conn{objectRoot: "/org/gpiod"}

	path := c.ChipPath("gpiochip0")
	assert.Equal(t, dbus.ObjectPath("/org/gpiod/gpiochip0"), path)
	assert.True(t, path.IsValid())

	assert.False(t, c.ChipPath("bad name").IsValid())
}

func TestLossReasonStrings(t *testing.T) {
	assert.Equal(t, "name already owned on the bus", LossNameTaken.String())
	assert.Equal(t, "name lost on the bus", LossNameRevoked.String())
	assert.Equal(t, "connection to the bus closed", LossConnectionClosed.String())
}
