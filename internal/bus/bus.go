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

// Package bus wraps the D-Bus system bus connection: well-known name
// ownership, chip object export, and read-only property dispatch.
package bus

import (
	"fmt"
	"log/slog"

	"github.com/godbus/dbus/v5"

	"github.com/gpiodbus/gpiodbusd/internal/log"
)

// OwnershipKind classifies a transition in the daemon's bus identity.
type OwnershipKind int

const (
	// OwnershipConnected: the bus connection is established.
	OwnershipConnected OwnershipKind = iota
	// OwnershipNameAcquired: the well-known name is owned.
	OwnershipNameAcquired
	// OwnershipNameLost: the name is gone, terminally. The daemon must
	// exit; another instance may now own the identity.
	OwnershipNameLost
)

// LossReason says why the well-known name was lost.
type LossReason int

const (
	LossNone LossReason = iota
	// LossNameTaken: the name request was not granted because another
	// owner already holds it.
	LossNameTaken
	// LossNameRevoked: ownership was revoked after acquisition.
	LossNameRevoked
	// LossConnectionClosed: the bus connection itself went away.
	LossConnectionClosed
)

func (r LossReason) String() string {
	switch r {
	case LossNameTaken:
		return "name already owned on the bus"
	case LossNameRevoked:
		return "name lost on the bus"
	case LossConnectionClosed:
		return "connection to the bus closed"
	default:
		return "unknown"
	}
}

// OwnershipEvent is one bus-ownership transition.
type OwnershipEvent struct {
	Kind   OwnershipKind
	Reason LossReason
	Err    error
}

// Conn owns one system bus connection and the daemon's well-known name.
type Conn struct {
	conn       *dbus.Conn
	name       string
	objectRoot string
	logger     *slog.Logger

	events  chan OwnershipEvent
	nextReg RegistrationID
}

// Connect establishes the system bus connection. The well-known name is
// not requested until Own is called.
func Connect(name, objectRoot string, logger *slog.Logger) (*Conn, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("bus: connect to system bus: %w", err)
	}
	return &Conn{
		conn:       conn,
		name:       name,
		objectRoot: objectRoot,
		logger:     logger,
		events:     make(chan OwnershipEvent, 4),
	}, nil
}

// Own requests the well-known name and returns the channel ownership
// transitions are delivered on. The channel carries OwnershipConnected,
// then either OwnershipNameAcquired or OwnershipNameLost; after
// acquisition a revocation or connection loss is delivered as a final
// OwnershipNameLost.
func (c *Conn) Own() <-chan OwnershipEvent {
	go c.own()
	return c.events
}

func (c *Conn) own() {
	c.events <- OwnershipEvent{Kind: OwnershipConnected}

	// Watch for revocation before requesting the name so a transition
	// racing the request cannot be missed.
	sigCh := make(chan *dbus.Signal, 4)
	err := c.conn.AddMatchSignal(
		dbus.WithMatchSender("org.freedesktop.DBus"),
		dbus.WithMatchInterface("org.freedesktop.DBus"),
		dbus.WithMatchMember("NameLost"),
		dbus.WithMatchArg(0, c.name),
	)
	if err != nil {
		c.events <- OwnershipEvent{Kind: OwnershipNameLost, Reason: LossConnectionClosed, Err: err}
		return
	}
	c.conn.Signal(sigCh)

	reply, err := c.conn.RequestName(c.name, dbus.NameFlagDoNotQueue)
	if err != nil {
		c.events <- OwnershipEvent{Kind: OwnershipNameLost, Reason: LossConnectionClosed, Err: err}
		return
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		c.events <- OwnershipEvent{Kind: OwnershipNameLost, Reason: LossNameTaken}
		return
	}

	c.events <- OwnershipEvent{Kind: OwnershipNameAcquired}

	for {
		select {
		case sig, ok := <-sigCh:
			if !ok {
				c.events <- OwnershipEvent{Kind: OwnershipNameLost, Reason: LossConnectionClosed}
				return
			}
			if sig.Name == "org.freedesktop.DBus.NameLost" &&
				len(sig.Body) == 1 && sig.Body[0] == c.name {
				c.events <- OwnershipEvent{Kind: OwnershipNameLost, Reason: LossNameRevoked}
				return
			}
		case <-c.conn.Context().Done():
			c.events <- OwnershipEvent{Kind: OwnershipNameLost, Reason: LossConnectionClosed}
			return
		}
	}
}

// Close releases the well-known name and closes the connection.
func (c *Conn) Close() error {
	if _, err := c.conn.ReleaseName(c.name); err != nil {
		c.logger.Debug("release bus name", log.Error(err))
	}
	return c.conn.Close()
}
