package session

import (
	"context"
	"fmt"
	"io"

	"go.bug.st/serial"

	"uart-gateway/internal/config"
)

// SerialOpener opens cfg.Name as a serial port with 8 data bits, no parity
// and one stop bit.
func SerialOpener(_ context.Context, cfg config.PortConfig) (io.ReadCloser, error) {
	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(cfg.Name, mode)
	if err != nil {
		return nil, fmt.Errorf("serial open %s: %w", cfg.Name, err)
	}
	return port, nil
}

// ListPorts returns the serial ports visible to the process.
func ListPorts() ([]string, error) {
	return serial.GetPortsList()
}
