/*
charge-controller - Battery charge control over SMBus
Copyright (C) 2024, The Powerhat Project

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

package daemon

import (
	"errors"
	"fmt"
	"strings"

	"github.com/godbus/dbus"
	"github.com/godbus/dbus/introspect"
	"github.com/powerhat/charge-controller/battery"
	"github.com/powerhat/charge-controller/charger"
)

const (
	dbusName = "org.powerhat.ChargeController"
	dbusPath = "/org/powerhat/ChargeController"
)

type service struct {
	daemon *daemon
}

func startService(d *daemon) error {
	conn, err := dbus.SystemBus()
	if err != nil {
		return err
	}
	reply, err := conn.RequestName(dbusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return err
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return errors.New("name already taken")
	}

	s := &service{
		daemon: d,
	}
	conn.Export(s, dbusPath, dbusName)
	conn.Export(genIntrospectable(s), dbusPath, "org.freedesktop.DBus.Introspectable")
	return nil
}

func genIntrospectable(v interface{}) introspect.Introspectable {
	node := &introspect.Node{
		Interfaces: []introspect.Interface{{
			Name:    dbusName,
			Methods: introspect.Methods(v),
		}},
	}
	return introspect.NewIntrospectable(node)
}

// SetStartThreshold sets the relative charge at which charging starts.
// 0 turns start control off.
func (s service) SetStartThreshold(v int) *dbus.Error {
	if !s.daemon.thresholds.SetStart(v) {
		return makeDbusError(".SetStartThreshold", fmt.Errorf(
			"value %d outside [%d, %d]", v, battery.StartThreshold.Min, battery.StartThreshold.Max))
	}
	return nil
}

// SetStopThreshold sets the relative charge at which charging stops.
// 100 turns stop control off.
func (s service) SetStopThreshold(v int) *dbus.Error {
	if !s.daemon.thresholds.SetStop(v) {
		return makeDbusError(".SetStopThreshold", fmt.Errorf(
			"value %d outside [%d, %d]", v, battery.StopThreshold.Min, battery.StopThreshold.Max))
	}
	return nil
}

// GetThresholds returns the current start and stop thresholds.
func (s service) GetThresholds() (int, int, *dbus.Error) {
	return s.daemon.thresholds.Start(), s.daemon.thresholds.Stop(), nil
}

// State returns the charger state, "Enabled" or "Disabled".
func (s service) State() (string, *dbus.Error) {
	s.daemon.mu.Lock()
	defer s.daemon.mu.Unlock()
	return s.daemon.controller.State().String(), nil
}

// Charge returns the last polled relative charge percentage.
func (s service) Charge() (int, *dbus.Error) {
	s.daemon.mu.Lock()
	defer s.daemon.mu.Unlock()
	return int(s.daemon.monitor.Snapshot.Charge), nil
}

// DumpRegisters returns a diagnostic listing of the battery and charger
// registers.
func (s service) DumpRegisters() (string, *dbus.Error) {
	s.daemon.mu.Lock()
	defer s.daemon.mu.Unlock()

	var out strings.Builder
	charger.DumpRegisters(s.daemon.bus, &out)
	return out.String(), nil
}

func makeDbusError(name string, err error) *dbus.Error {
	return &dbus.Error{
		Name: dbusName + name,
		Body: []interface{}{err.Error()},
	}
}
