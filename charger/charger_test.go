package charger

import (
	"testing"

	"github.com/powerhat/charge-controller/battery"
	"github.com/powerhat/charge-controller/smbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLimits = Limits{
	ChargeCurrent: 1536,
	ChargeVoltage: 8800,
	InputCurrent:  3072,
}

type stubThresholds struct {
	start, stop int
}

func (s stubThresholds) Start() int { return s.start }
func (s stubThresholds) Stop() int  { return s.stop }

type write struct {
	device uint8
	reg    uint8
	value  uint16
}

// fakeBus records writes and fails any write to a register listed in
// failWrites.
type fakeBus struct {
	writes     []write
	failWrites map[uint8]bool
	reads      map[uint8]uint16
	failReads  map[uint8]bool
}

func (f *fakeBus) ReadWord(device, reg uint8) (uint16, error) {
	if f.failReads[reg] {
		return 0, &smbus.TxError{Code: smbus.CodeTxFailed, Op: "read", Device: device, Reg: reg}
	}
	return f.reads[reg], nil
}

func (f *fakeBus) WriteWord(device, reg uint8, value uint16) error {
	if f.failWrites[reg] {
		return &smbus.TxError{Code: smbus.CodeTxFailed, Op: "write", Device: device, Reg: reg}
	}
	f.writes = append(f.writes, write{device, reg, value})
	return nil
}

func newTestController(bus *fakeBus, start, stop int) *Controller {
	return New(bus, testLimits, stubThresholds{start: start, stop: stop}, nil)
}

func snap(charge uint16) *battery.Snapshot {
	return &battery.Snapshot{Charge: charge}
}

// forceEnabled drives the controller into the Enabled state and clears the
// recorded writes so a test can look at the next sequence in isolation.
func forceEnabled(t *testing.T, c *Controller, bus *fakeBus) {
	t.Helper()
	require.NoError(t, c.Enable())
	require.Equal(t, Enabled, c.State())
	bus.writes = nil
}

func TestEnableProgramsRegistersInOrder(t *testing.T) {
	bus := &fakeBus{}
	c := newTestController(bus, 0, 100)

	require.NoError(t, c.Enable())
	assert.Equal(t, Enabled, c.State())
	assert.Equal(t, []write{
		{Address, regChargeCurrent, testLimits.ChargeCurrent},
		{Address, regChargeVoltage, testLimits.ChargeVoltage},
		{Address, regInputCurrent, testLimits.InputCurrent},
		{Address, regChargeOption0, optLowPowerMode | optPWMFreq800kHz | optIDCHGGain},
	}, bus.writes)
}

func TestEnableIdempotent(t *testing.T) {
	bus := &fakeBus{}
	c := newTestController(bus, 0, 100)

	require.NoError(t, c.Enable())
	sequenceLen := len(bus.writes)

	// Second call is a pure no-op.
	require.NoError(t, c.Enable())
	assert.Len(t, bus.writes, sequenceLen)
	assert.Equal(t, Enabled, c.State())
}

func TestEnableFailureLeavesDisabled(t *testing.T) {
	bus := &fakeBus{failWrites: map[uint8]bool{regChargeVoltage: true}}
	c := newTestController(bus, 0, 100)

	err := c.Enable()
	require.Error(t, err)
	assert.Negative(t, smbus.ErrCode(err))
	assert.Equal(t, Disabled, c.State())
	// Only the charge current made it out; it holds a safe value the next
	// disable pass will zero again.
	assert.Equal(t, []write{{Address, regChargeCurrent, testLimits.ChargeCurrent}}, bus.writes)
}

func TestDisableSequence(t *testing.T) {
	bus := &fakeBus{}
	c := newTestController(bus, 0, 100)
	forceEnabled(t, c, bus)

	require.NoError(t, c.Disable())
	assert.Equal(t, Disabled, c.State())
	assert.Equal(t, []write{
		{Address, regChargeOption0, optLowPowerMode | optWatchdog175s | optPWMFreq800kHz | optIDCHGGain},
		{Address, regChargeCurrent, 0},
		{Address, regChargeVoltage, 0},
		{Address, regInputCurrent, 0},
	}, bus.writes)
}

func TestDisableIdempotent(t *testing.T) {
	bus := &fakeBus{}
	c := newTestController(bus, 0, 100)

	require.NoError(t, c.Disable())
	assert.Empty(t, bus.writes)
	assert.Equal(t, Disabled, c.State())
}

func TestDisableModeWriteIsBestEffort(t *testing.T) {
	bus := &fakeBus{failWrites: map[uint8]bool{regChargeOption0: true}}
	c := newTestController(bus, 0, 100)
	c.state = Enabled

	// The mode write failing must not stop the limit registers being
	// zeroed.
	require.NoError(t, c.Disable())
	assert.Equal(t, Disabled, c.State())
	assert.Equal(t, []write{
		{Address, regChargeCurrent, 0},
		{Address, regChargeVoltage, 0},
		{Address, regInputCurrent, 0},
	}, bus.writes)
}

func TestDisableAbortsOnZeroWriteFailure(t *testing.T) {
	bus := &fakeBus{}
	c := newTestController(bus, 0, 100)
	forceEnabled(t, c, bus)

	bus.failWrites = map[uint8]bool{regChargeVoltage: true}
	err := c.Disable()
	require.Error(t, err)
	assert.Negative(t, smbus.ErrCode(err))
	// The state flag is only cleared after all three zero writes succeed.
	assert.Equal(t, Enabled, c.State())
	assert.Equal(t, []write{
		{Address, regChargeOption0, optLowPowerMode | optWatchdog175s | optPWMFreq800kHz | optIDCHGGain},
		{Address, regChargeCurrent, 0},
	}, bus.writes)
}

func TestConfigureDecisions(t *testing.T) {
	tests := []struct {
		name   string
		start  int
		stop   int
		charge uint16
		want   State
	}{
		{"stop disabled always charges", 0, 100, 50, Enabled},
		{"stop disabled wins over start", 90, 100, 95, Enabled},
		{"above stop stops charging", 20, 80, 85, Disabled},
		{"at stop stops charging", 20, 80, 80, Disabled},
		{"start disabled charges below stop", 0, 80, 50, Enabled},
		{"below start starts charging", 20, 80, 15, Enabled},
		{"at start starts charging", 20, 80, 20, Enabled},
		{"charge at start equal stop does not charge", 50, 50, 50, Disabled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := &fakeBus{}
			c := newTestController(bus, tt.start, tt.stop)

			require.NoError(t, c.Configure(snap(tt.charge)))
			assert.Equal(t, tt.want, c.State())
		})
	}
}

func TestConfigureHoldsPreviousDecisionInBand(t *testing.T) {
	t.Run("stays charging", func(t *testing.T) {
		bus := &fakeBus{}
		c := newTestController(bus, 20, 80)

		// Below start: unambiguous charge decision.
		require.NoError(t, c.Configure(snap(15)))
		require.Equal(t, Enabled, c.State())
		bus.writes = nil

		// Mid-band readings keep the previous decision; no transition, no
		// register traffic.
		require.NoError(t, c.Configure(snap(50)))
		require.NoError(t, c.Configure(snap(79)))
		assert.Equal(t, Enabled, c.State())
		assert.Empty(t, bus.writes)
	})

	t.Run("stays not charging", func(t *testing.T) {
		bus := &fakeBus{}
		c := newTestController(bus, 20, 80)

		// Above stop: unambiguous do-not-charge decision.
		require.NoError(t, c.Configure(snap(85)))
		require.Equal(t, Disabled, c.State())
		bus.writes = nil

		require.NoError(t, c.Configure(snap(50)))
		require.NoError(t, c.Configure(snap(21)))
		assert.Equal(t, Disabled, c.State())
		assert.Empty(t, bus.writes)
	})
}

func TestConfigureRecoversOnNextCycle(t *testing.T) {
	bus := &fakeBus{failWrites: map[uint8]bool{regChargeCurrent: true}}
	c := newTestController(bus, 20, 80)

	// First cycle fails mid-sequence and leaves the charger disabled.
	err := c.Configure(snap(15))
	require.Error(t, err)
	require.Equal(t, Disabled, c.State())

	// The decision is recomputed from current inputs on the next cycle, so
	// clearing the fault is all it takes.
	bus.failWrites = nil
	require.NoError(t, c.Configure(snap(15)))
	assert.Equal(t, Enabled, c.State())
}
