package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"uart-gateway/internal/decode"
)

// PortConfig is one (mode, port, baud rate) triple from the command line.
// Every port uses 8 data bits, no parity and one stop bit.
type PortConfig struct {
	Mode     decode.Mode
	Name     string
	BaudRate int
}

func (p PortConfig) String() string {
	return fmt.Sprintf("%s@%d/%s", p.Name, p.BaudRate, p.Mode)
}

var (
	ErrWrongArgCount = errors.New("wrong number of arguments")
	ErrInvalidArg    = errors.New("invalid argument")
)

// InvalidArgError reports the zero-based position of a bad argument.
type InvalidArgError struct {
	Position int
	Value    string
	Err      error
}

func (e *InvalidArgError) Error() string {
	return fmt.Sprintf("argument nr. %d (%q) is invalid: %v", e.Position, e.Value, e.Err)
}

func (e *InvalidArgError) Unwrap() []error { return []error{ErrInvalidArg, e.Err} }

// ParsePorts splits args into (mode, port name, baud rate) triples. The count
// must be a positive multiple of three.
func ParsePorts(args []string) ([]PortConfig, error) {
	if len(args) < 3 || len(args)%3 != 0 {
		return nil, fmt.Errorf("%w: got %d, want a positive multiple of 3 (mode port baud ...)", ErrWrongArgCount, len(args))
	}

	ports := make([]PortConfig, 0, len(args)/3)
	for i := 0; i < len(args); i += 3 {
		mode, err := decode.ParseMode(args[i])
		if err != nil {
			return nil, &InvalidArgError{Position: i, Value: args[i], Err: err}
		}
		baud, err := strconv.ParseUint(strings.TrimSpace(args[i+2]), 10, 31)
		if err != nil {
			return nil, &InvalidArgError{Position: i + 2, Value: args[i+2], Err: err}
		}
		ports = append(ports, PortConfig{
			Mode:     mode,
			Name:     args[i+1],
			BaudRate: int(baud),
		})
	}
	return ports, nil
}
