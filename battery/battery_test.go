package battery

import (
	"path/filepath"
	"testing"

	"github.com/powerhat/charge-controller/conf"
	"github.com/powerhat/charge-controller/smbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBus serves canned register values and fails reads of registers listed
// in failing.
type fakeBus struct {
	regs    map[uint8]uint16
	failing map[uint8]bool
}

func (f *fakeBus) ReadWord(device, reg uint8) (uint16, error) {
	if f.failing[reg] {
		return 0, &smbus.TxError{Code: smbus.CodeTxFailed, Op: "read", Device: device, Reg: reg}
	}
	return f.regs[reg], nil
}

func (f *fakeBus) WriteWord(device, reg uint8, value uint16) error {
	return nil
}

func TestPollFillsSnapshot(t *testing.T) {
	bus := &fakeBus{regs: map[uint8]uint16{
		regTemperature:       2981, // 0.1 K units
		regVoltage:           12600,
		regCurrent:           1500,
		regRelativeCharge:    73,
		regRemainingCapacity: 3200,
		regFullCapacity:      4400,
		regStatus:            0x00C0,
		regDesignCapacity:    4500,
		regDesignVoltage:     11400,
	}}

	m := NewMonitor(bus)
	m.Poll()

	assert.Equal(t, Snapshot{
		Temperature:       2981,
		Voltage:           12600,
		Current:           1500,
		Charge:            73,
		RemainingCapacity: 3200,
		FullCapacity:      4400,
		Status:            0x00C0,
		DesignCapacity:    4500,
		DesignVoltage:     11400,
	}, m.Snapshot)
}

func TestPollZeroesOnlyFailedField(t *testing.T) {
	bus := &fakeBus{
		regs: map[uint8]uint16{
			regVoltage:        12600,
			regRelativeCharge: 73,
			regFullCapacity:   4400,
		},
		failing: map[uint8]bool{regRelativeCharge: true},
	}

	m := NewMonitor(bus)
	m.Poll()
	assert.Equal(t, uint16(0), m.Snapshot.Charge)
	assert.Equal(t, uint16(12600), m.Snapshot.Voltage)
	assert.Equal(t, uint16(4400), m.Snapshot.FullCapacity)

	// A later successful pass overwrites the zeroed field again.
	bus.failing = nil
	m.Poll()
	assert.Equal(t, uint16(73), m.Snapshot.Charge)
}

func TestPollOverwritesStaleValues(t *testing.T) {
	bus := &fakeBus{regs: map[uint8]uint16{regRelativeCharge: 80}}
	m := NewMonitor(bus)
	m.Poll()
	require.Equal(t, uint16(80), m.Snapshot.Charge)

	// The whole register set now fails: every field resets to zero rather
	// than holding its stale value.
	bus.failing = map[uint8]bool{
		regTemperature: true, regVoltage: true, regCurrent: true,
		regRelativeCharge: true, regRemainingCapacity: true,
		regFullCapacity: true, regStatus: true,
		regDesignCapacity: true, regDesignVoltage: true,
	}
	m.Poll()
	assert.Equal(t, Snapshot{}, m.Snapshot)
}

func TestThresholdAccessor(t *testing.T) {
	store, err := conf.NewStore(filepath.Join(t.TempDir(), "settings.yaml"))
	require.NoError(t, err)

	thresholds, err := NewThresholds(store)
	require.NoError(t, err)

	// Defaults: both controls disabled.
	assert.Equal(t, 0, thresholds.Start())
	assert.Equal(t, 100, thresholds.Stop())

	assert.True(t, thresholds.SetStart(20))
	assert.True(t, thresholds.SetStop(80))
	assert.Equal(t, 20, thresholds.Start())
	assert.Equal(t, 80, thresholds.Stop())

	// Out-of-range values are the store's to reject.
	assert.False(t, thresholds.SetStart(100))
	assert.False(t, thresholds.SetStop(0))
	assert.False(t, thresholds.SetStop(101))
	assert.Equal(t, 20, thresholds.Start())
	assert.Equal(t, 80, thresholds.Stop())

	// start < stop is deliberately not enforced.
	assert.True(t, thresholds.SetStart(90))
	assert.Equal(t, 90, thresholds.Start())
}
