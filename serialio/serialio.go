// Package serialio wraps go.bug.st/serial with the fixed framing this
// system always uses (115200 8N1, no handshake) and exposes the modem
// carrier-detect bit the Forwarder's CD monitor polls. Grounded on the
// teacher's apps/serial_usb_grabber, which opens the same library with a
// config-driven serial.Mode; here the mode is fixed rather than
// configurable, since every glider dockside modem in this system talks at
// a single fixed rate.
package serialio

import (
	"fmt"
	"os"

	"go.bug.st/serial"
)

// Port is the subset of go.bug.st/serial.Port the Forwarder depends on,
// narrowed so tests can supply a fake.
type Port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
	CarrierDetect() (bool, error)
}

type port struct {
	serial.Port
}

// CarrierDetect reports the modem's DCD (carrier detect) status bit.
func (p port) CarrierDetect() (bool, error) {
	bits, err := p.Port.GetModemStatusBits()
	if err != nil {
		return false, err
	}
	return bits.DCD, nil
}

// Open opens device at 115200 8N1, no parity, one stop bit, no software or
// hardware handshake, and resets the input buffer.
func Open(device string) (Port, error) {
	mode := &serial.Mode{
		BaudRate: 115200,
		Parity:   serial.NoParity,
		DataBits: 8,
		StopBits: serial.OneStopBit,
	}
	p, err := serial.Open(device, mode)
	if err != nil {
		return nil, fmt.Errorf("opening serial device %s: %w", device, err)
	}
	if err := p.ResetInputBuffer(); err != nil {
		p.Close()
		return nil, fmt.Errorf("resetting input buffer on %s: %w", device, err)
	}
	return port{Port: p}, nil
}

// Exists reports whether the named device node is currently present, used
// by the DeviceWatcher's startup scan.
func Exists(device string) bool {
	_, err := os.Stat(device)
	return err == nil
}
