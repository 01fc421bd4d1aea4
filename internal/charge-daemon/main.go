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
	"os"
	"sync"
	"time"

	"github.com/TheCacophonyProject/event-reporter/v3/eventclient"
	"github.com/TheCacophonyProject/go-utils/logging"
	arg "github.com/alexflint/go-arg"
	"github.com/powerhat/charge-controller/battery"
	"github.com/powerhat/charge-controller/charger"
	"github.com/powerhat/charge-controller/conf"
	"github.com/powerhat/charge-controller/smbus"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

const defaultConfigFile = "/etc/charge-controller/settings.yaml"

var version = "No version provided"

var log = logging.NewLogger("info")

type Args struct {
	ConfigFile          string `arg:"-c,--config" help:"settings file holding the charge thresholds"`
	PollIntervalSeconds int    `arg:"--poll-interval" help:"seconds between charger evaluations"`
	ChargeCurrent       int    `arg:"--charge-current" help:"charge current limit in mA while charging"`
	ChargeVoltage       int    `arg:"--charge-voltage" help:"charge voltage limit in mV while charging"`
	InputCurrent        int    `arg:"--input-current" help:"input current limit in mA while charging"`
	PEC                 bool   `arg:"--pec" help:"append and verify SMBus packet error checking"`
	logging.LogArgs
}

var defaultArgs = Args{
	ConfigFile:          defaultConfigFile,
	PollIntervalSeconds: 10,
	ChargeCurrent:       1536,
	ChargeVoltage:       8800,
	InputCurrent:        3072,
}

func procArgs(input []string) (Args, error) {
	args := defaultArgs

	parser, err := arg.NewParser(arg.Config{}, &args)
	if err != nil {
		return Args{}, err
	}
	err = parser.Parse(input)
	if errors.Is(err, arg.ErrHelp) {
		parser.WriteHelp(os.Stdout)
		os.Exit(0)
	}
	if errors.Is(err, arg.ErrVersion) {
		fmt.Println(version)
		os.Exit(0)
	}
	return args, err
}

func Run(inputArgs []string, ver string) error {
	version = ver
	args, err := procArgs(inputArgs)
	if err != nil {
		return fmt.Errorf("failed to parse args: %v", err)
	}

	log = logging.NewLogger(args.LogLevel)
	log.Info("Running version: ", version)

	if _, err := host.Init(); err != nil {
		return err
	}
	i2cBus, err := i2creg.Open("")
	if err != nil {
		return err
	}
	bus := smbus.New(i2cBus, args.PEC)

	store, err := conf.NewStore(args.ConfigFile)
	if err != nil {
		return err
	}
	thresholds, err := battery.NewThresholds(store)
	if err != nil {
		return err
	}
	log.Infof("Charge thresholds: start %d%%, stop %d%%", thresholds.Start(), thresholds.Stop())

	d := &daemon{
		bus:     bus,
		monitor: battery.NewMonitor(bus),
		controller: charger.New(bus, charger.Limits{
			ChargeCurrent: uint16(args.ChargeCurrent),
			ChargeVoltage: uint16(args.ChargeVoltage),
			InputCurrent:  uint16(args.InputCurrent),
		}, thresholds, log),
		thresholds: thresholds,
	}

	// A threshold changed from outside (dbus or a file edit) takes effect on
	// the next cycle anyway; an immediate re-evaluation just makes it feel
	// snappy. Run it off the store's callback goroutine so the store lock is
	// released first.
	store.OnChange(battery.StartThreshold, func(int) { go d.cycle() })
	store.OnChange(battery.StopThreshold, func(int) { go d.cycle() })

	if err := startService(d); err != nil {
		return err
	}

	interval := time.Duration(args.PollIntervalSeconds) * time.Second
	log.Debug("Setting poll interval to ", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		d.cycle()
		<-ticker.C
	}
}

type daemon struct {
	mu         sync.Mutex
	bus        smbus.Bus
	monitor    *battery.Monitor
	controller *charger.Controller
	thresholds battery.Thresholds
	lastState  charger.State
	reported   bool
}

// cycle runs one poll+configure pass. The poller and controller assume a
// single caller, so everything touching them goes through mu.
func (d *daemon) cycle() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.monitor.Poll()
	if err := d.controller.Configure(&d.monitor.Snapshot); err != nil {
		log.Errorf("Charger configure failed, will retry next cycle: %v", err)
		return
	}
	d.reportStateChange()
}

// reportStateChange sends a charging event whenever the controller's state
// moved since the last successful cycle (and once at startup for the initial
// state).
func (d *daemon) reportStateChange() {
	state := d.controller.State()
	if d.reported && state == d.lastState {
		return
	}

	eventType := "chargingStopped"
	if state == charger.Enabled {
		eventType = "chargingStarted"
	}
	log.Infof("Charger state: %s (charge %d%%)", state, d.monitor.Snapshot.Charge)

	err := eventclient.AddEvent(eventclient.Event{
		Timestamp: time.Now(),
		Type:      eventType,
		Details: map[string]interface{}{
			"charge":         int(d.monitor.Snapshot.Charge),
			"voltage":        int(d.monitor.Snapshot.Voltage),
			"startThreshold": d.thresholds.Start(),
			"stopThreshold":  d.thresholds.Stop(),
		},
	})
	if err != nil {
		log.Error("Error sending charging event: ", err)
	}

	d.lastState = state
	d.reported = true
}
