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

package smbus

import (
	"errors"
	"fmt"

	"github.com/sigurn/crc8"
	"periph.io/x/conn/v3/i2c"
)

// Negative status codes carried by TxError, matching the convention that a
// bus transaction result below zero is a failure.
const (
	CodeTxFailed = -1
	CodeBadPEC   = -2
)

// TxError is the single error kind produced by the transport. Every failed
// read or write surfaces as one of these with a negative Code.
type TxError struct {
	Code   int
	Op     string
	Device uint8
	Reg    uint8
	Err    error
}

func (e *TxError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("smbus %s device 0x%02X reg 0x%02X: %v", e.Op, e.Device, e.Reg, e.Err)
	}
	return fmt.Sprintf("smbus %s device 0x%02X reg 0x%02X: status %d", e.Op, e.Device, e.Reg, e.Code)
}

func (e *TxError) Unwrap() error { return e.Err }

// ErrCode returns the negative status code from a transport error, or 0 for
// nil. Errors from outside the transport map to CodeTxFailed.
func ErrCode(err error) int {
	if err == nil {
		return 0
	}
	var txErr *TxError
	if errors.As(err, &txErr) {
		return txErr.Code
	}
	return CodeTxFailed
}

// Bus is the word-register transport shared by the fuel gauge and the
// charger. Both devices speak SMBus Read Word / Write Word.
type Bus interface {
	ReadWord(device, reg uint8) (uint16, error)
	WriteWord(device, reg uint8, value uint16) error
}

// SMBus PEC is CRC-8 with polynomial x^8 + x^2 + x + 1 over the full
// transaction including the addressing bytes.
var pecTable = crc8.MakeTable(crc8.Params{
	Poly:   0x07,
	Init:   0x00,
	RefIn:  false,
	RefOut: false,
	XorOut: 0x00,
})

// SMBus implements Bus on top of a physical I2C bus. Transactions are
// synchronous and blocking; any timeout handling belongs to the underlying
// bus driver.
type SMBus struct {
	bus i2c.Bus
	pec bool
}

// New wraps an I2C bus. With pec set, a packet error checking byte is
// appended to writes and demanded and verified on reads.
func New(bus i2c.Bus, pec bool) *SMBus {
	return &SMBus{bus: bus, pec: pec}
}

// ReadWord reads a little-endian 16-bit register.
func (s *SMBus) ReadWord(device, reg uint8) (uint16, error) {
	readLen := 2
	if s.pec {
		readLen = 3
	}
	buf := make([]byte, readLen)
	if err := s.bus.Tx(uint16(device), []byte{reg}, buf); err != nil {
		return 0, &TxError{Code: CodeTxFailed, Op: "read", Device: device, Reg: reg, Err: err}
	}
	if s.pec {
		want := crc8.Checksum([]byte{device << 1, reg, device<<1 | 1, buf[0], buf[1]}, pecTable)
		if buf[2] != want {
			return 0, &TxError{
				Code:   CodeBadPEC,
				Op:     "read",
				Device: device,
				Reg:    reg,
				Err:    fmt.Errorf("PEC mismatch: received 0x%02X, calculated 0x%02X", buf[2], want),
			}
		}
	}
	return uint16(buf[1])<<8 | uint16(buf[0]), nil
}

// WriteWord writes a little-endian 16-bit register.
func (s *SMBus) WriteWord(device, reg uint8, value uint16) error {
	w := []byte{reg, byte(value), byte(value >> 8)}
	if s.pec {
		w = append(w, crc8.Checksum([]byte{device << 1, w[0], w[1], w[2]}, pecTable))
	}
	if err := s.bus.Tx(uint16(device), w, nil); err != nil {
		return &TxError{Code: CodeTxFailed, Op: "write", Device: device, Reg: reg, Err: err}
	}
	return nil
}
