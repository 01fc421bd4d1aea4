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

// Package charger decides whether the battery should be charging and
// programs the smart charger's limit registers accordingly.
package charger

import (
	"github.com/TheCacophonyProject/go-utils/logging"
	"github.com/powerhat/charge-controller/battery"
	"github.com/powerhat/charge-controller/smbus"
)

// Address is the charger's fixed SMBus slave address.
const Address = 0x09

const (
	regChargeOption0 = 0x12
	regChargeCurrent = 0x14
	regChargeVoltage = 0x15
	regInputCurrent  = 0x3F
)

// ChargeOption0 flags.
const (
	// Low Power Mode Enable
	optLowPowerMode uint16 = 1 << 15
	// Watchdog Timer Adjust, fixed 175s timeout
	optWatchdog175s uint16 = 0b11 << 13
	// Switching Frequency, 800kHz
	optPWMFreq800kHz uint16 = 0b01 << 8
	// IDCHG Amplifier Gain
	optIDCHGGain uint16 = 1 << 3
)

type State uint8

const (
	Disabled State = iota
	Enabled
)

func (s State) String() string {
	switch s {
	case Disabled:
		return "Disabled"
	case Enabled:
		return "Enabled"
	default:
		return "Unknown"
	}
}

// Limits are the fixed operating values programmed while charging is
// enabled. They come from the board configuration, not from this package.
type Limits struct {
	ChargeCurrent uint16 // mA
	ChargeVoltage uint16 // mV
	InputCurrent  uint16 // mA
}

// Thresholds supplies the charging window. Implemented by
// battery.Thresholds.
type Thresholds interface {
	Start() int
	Stop() int
}

// Controller owns the charger's enabled/disabled state and the previous
// charging decision. It assumes a single caller: Configure, Enable and
// Disable must never run concurrently or re-entrantly.
type Controller struct {
	bus        smbus.Bus
	limits     Limits
	thresholds Thresholds
	log        *logging.Logger

	// XXX: Assumption: AC was last seen high at startup, which sits oddly
	// with starting out Disabled. Raised with the product owner; do not
	// silently correct.
	state State

	// Last unambiguous charging decision. Held unchanged while the charge
	// level sits inside the hysteresis band.
	shouldCharge bool
}

func New(bus smbus.Bus, limits Limits, thresholds Thresholds, log *logging.Logger) *Controller {
	if log == nil {
		log = logging.NewLogger("info")
	}
	return &Controller{
		bus:          bus,
		limits:       limits,
		thresholds:   thresholds,
		log:          log,
		state:        Disabled,
		shouldCharge: true,
	}
}

func (c *Controller) State() State {
	return c.state
}

// Disable halts charging by zeroing the limit registers. A no-op when
// already disabled. The state flag only moves to Disabled once all three
// zero writes succeed; on a failed write it is left unchanged and the error
// is returned for the next cycle to retry.
func (c *Controller) Disable() error {
	if c.state == Disabled {
		return nil
	}

	// Low-power mode with the watchdog armed. Best effort: the limit
	// registers below still get zeroed even if this write fails.
	c.writeBestEffort(regChargeOption0, optLowPowerMode|optWatchdog175s|optPWMFreq800kHz|optIDCHGGain)

	// Disable charge current
	if err := c.bus.WriteWord(Address, regChargeCurrent, 0); err != nil {
		return err
	}
	// Disable charge voltage
	if err := c.bus.WriteWord(Address, regChargeVoltage, 0); err != nil {
		return err
	}
	// Disable input current
	if err := c.bus.WriteWord(Address, regInputCurrent, 0); err != nil {
		return err
	}

	c.log.Debug("Charger disabled")
	c.state = Disabled
	return nil
}

// Enable starts charging at the configured limits. A no-op when already
// enabled. The disable sequence runs first so the charger always comes up
// from zeroed limits; after that the limit registers are programmed in order
// and the watchdog is turned off for active charging. The first failing
// write aborts the sequence without marking the state Enabled, leaving any
// already-written registers at their safe zero-current values.
func (c *Controller) Enable() error {
	if c.state == Enabled {
		return nil
	}

	if err := c.Disable(); err != nil {
		return err
	}

	// Set charge current in mA
	if err := c.bus.WriteWord(Address, regChargeCurrent, c.limits.ChargeCurrent); err != nil {
		return err
	}
	// Set charge voltage in mV
	if err := c.bus.WriteWord(Address, regChargeVoltage, c.limits.ChargeVoltage); err != nil {
		return err
	}
	// Set input current in mA
	if err := c.bus.WriteWord(Address, regInputCurrent, c.limits.InputCurrent); err != nil {
		return err
	}
	// Watchdog stays off while actively charging.
	if err := c.bus.WriteWord(Address, regChargeOption0, optLowPowerMode|optPWMFreq800kHz|optIDCHGGain); err != nil {
		return err
	}

	c.log.Debug("Charger enabled")
	c.state = Enabled
	return nil
}

// Configure recomputes the charging decision from the snapshot and the
// thresholds and drives the matching transition, returning whatever that
// transition returns. Rules run in fixed order, first match wins. When the
// charge level sits strictly between an enabled start and stop threshold no
// rule matches and the previous decision stands, which keeps the charger
// from oscillating around either threshold. At charge == start == stop the
// stop rule wins because it is checked first.
func (c *Controller) Configure(snap *battery.Snapshot) error {
	start := c.thresholds.Start()
	stop := c.thresholds.Stop()
	charge := int(snap.Charge)

	switch {
	case stop == 100:
		// Stop threshold not configured: always charge on AC.
		c.shouldCharge = true
	case charge >= stop:
		// Stop threshold configured: stop charging at threshold.
		c.shouldCharge = false
	case start == 0:
		// Start threshold not configured: charge up to the stop threshold.
		c.shouldCharge = true
	case charge <= start:
		// Start threshold configured: start charging at threshold.
		c.shouldCharge = true
	}

	if c.shouldCharge {
		return c.Enable()
	}
	return c.Disable()
}

// writeBestEffort issues a write whose result is deliberately ignored so the
// rest of the sequence still runs. The failure is only worth a log line.
func (c *Controller) writeBestEffort(reg uint8, value uint16) {
	if err := c.bus.WriteWord(Address, reg, value); err != nil {
		c.log.Debugf("Best-effort write to 0x%02X failed: %v", reg, err)
	}
}
