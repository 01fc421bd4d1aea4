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

// One-shot diagnostic: read and print every battery and charger register,
// tolerating individual read failures.
package diag

import (
	"errors"
	"fmt"
	"os"

	arg "github.com/alexflint/go-arg"
	"github.com/powerhat/charge-controller/charger"
	"github.com/powerhat/charge-controller/smbus"
	"github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

var version = "No version provided"

var log = logrus.New()

type Args struct {
	PEC bool `arg:"--pec" help:"append and verify SMBus packet error checking"`
}

func procArgs(input []string) (Args, error) {
	args := Args{}

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

	log.Infof("Running version: %s", version)

	if _, err := host.Init(); err != nil {
		return err
	}
	i2cBus, err := i2creg.Open("")
	if err != nil {
		return err
	}

	charger.DumpRegisters(smbus.New(i2cBus, args.PEC), os.Stdout)
	return nil
}
