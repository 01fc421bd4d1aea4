package charger

import (
	"fmt"
	"io"

	"github.com/powerhat/charge-controller/battery"
	"github.com/powerhat/charge-controller/smbus"
)

// The diagnostic listing covers more charger registers than the controller
// ever writes; those are only named here.
var debugRegisters = []struct {
	name   string
	device uint8
	reg    uint8
}{
	{"Temperature", battery.Address, 0x08},
	{"Voltage", battery.Address, 0x09},
	{"Current", battery.Address, 0x0A},
	{"Charge", battery.Address, 0x0D},
	{"Status", battery.Address, 0x16},
	{"ChargeOption0", Address, regChargeOption0},
	{"ChargeOption1", Address, 0x3B},
	{"ChargeOption2", Address, 0x38},
	{"ChargeOption3", Address, 0x37},
	{"ChargeCurrent", Address, regChargeCurrent},
	{"ChargeVoltage", Address, regChargeVoltage},
	{"DischargeCurrent", Address, 0x39},
	{"InputCurrent", Address, regInputCurrent},
	{"ProchotOption0", Address, 0x3C},
	{"ProchotOption1", Address, 0x3D},
	{"ProchotStatus", Address, 0x3A},
}

// DumpRegisters writes one line per diagnostic register from both bus
// devices. A failed read prints an error marker carrying the negated status
// code for that register and the listing keeps going.
func DumpRegisters(bus smbus.Bus, w io.Writer) {
	lastDevice := uint8(0)
	for _, r := range debugRegisters {
		if r.device != lastDevice {
			if r.device == battery.Address {
				fmt.Fprintln(w, "Battery:")
			} else {
				fmt.Fprintln(w, "Charger:")
			}
			lastDevice = r.device
		}
		value, err := bus.ReadWord(r.device, r.reg)
		if err != nil {
			fmt.Fprintf(w, "  %s: ERROR %04X\n", r.name, -smbus.ErrCode(err))
			continue
		}
		fmt.Fprintf(w, "  %s: %04X\n", r.name, value)
	}
}
