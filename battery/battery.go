// Package battery reads the smart battery fuel gauge over SMBus and exposes
// the user-facing charge thresholds.
package battery

import (
	"github.com/powerhat/charge-controller/smbus"
)

// Address is the fuel gauge's fixed SBS slave address.
const Address = 0x0B

// Smart Battery Data Specification registers.
const (
	regTemperature       = 0x08
	regVoltage           = 0x09
	regCurrent           = 0x0A
	regRelativeCharge    = 0x0D
	regRemainingCapacity = 0x0F
	regFullCapacity      = 0x10
	regStatus            = 0x16
	regDesignCapacity    = 0x18
	regDesignVoltage     = 0x19
)

// Snapshot holds the last polled value of each fuel gauge register. Fields
// are independent: a failed read zeroes only its own field, so a snapshot can
// be partially degraded without any flag saying so.
type Snapshot struct {
	Temperature       uint16
	Voltage           uint16
	Current           uint16
	Charge            uint16
	RemainingCapacity uint16
	FullCapacity      uint16
	Status            uint16
	DesignCapacity    uint16
	DesignVoltage     uint16
}

// Monitor polls the fuel gauge into its Snapshot. It assumes a single
// caller; the surrounding driver is responsible for never running Poll
// concurrently with readers of the snapshot.
type Monitor struct {
	bus      smbus.Bus
	Snapshot Snapshot
}

func NewMonitor(bus smbus.Bus) *Monitor {
	return &Monitor{bus: bus}
}

// Poll reads every fuel gauge register into the snapshot in one pass. Reads
// are independent: a failure zeroes that field and the pass carries on, so
// the caller always gets a fully shaped snapshot even when degraded. The
// snapshot is overwritten field by field, not atomically as a whole.
func (m *Monitor) Poll() {
	for _, r := range []struct {
		reg   uint8
		field *uint16
	}{
		{regTemperature, &m.Snapshot.Temperature},
		{regVoltage, &m.Snapshot.Voltage},
		{regCurrent, &m.Snapshot.Current},
		{regRelativeCharge, &m.Snapshot.Charge},
		{regRemainingCapacity, &m.Snapshot.RemainingCapacity},
		{regFullCapacity, &m.Snapshot.FullCapacity},
		{regStatus, &m.Snapshot.Status},
		{regDesignCapacity, &m.Snapshot.DesignCapacity},
		{regDesignVoltage, &m.Snapshot.DesignVoltage},
	} {
		value, err := m.bus.ReadWord(Address, r.reg)
		if err != nil {
			value = 0
		}
		*r.field = value
	}
}
