// Package decode turns one raw serial line into measures.
//
// A decoder never fails loudly: malformed input yields no measures so a bad
// line cannot stop the stream it came from.
package decode

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"uart-gateway/internal/measure"
)

// SensorReferenceID is the reference id stamped on every decoded measure.
const SensorReferenceID = "SensorId"

// Decoder converts a line into zero or more measures.
type Decoder interface {
	Decode(line string) []measure.Measure
}

// Mode selects the decoder bound to a port.
type Mode uint

const (
	ModeJSON      Mode = 0
	ModeValueList Mode = 1
)

func (m Mode) String() string {
	switch m {
	case ModeJSON:
		return "json"
	case ModeValueList:
		return "value-list"
	default:
		return "mode(" + strconv.FormatUint(uint64(m), 10) + ")"
	}
}

// ParseMode parses the numeric mode used on the command line.
func ParseMode(s string) (Mode, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid decode mode %q: %w", s, err)
	}
	m := Mode(n)
	if m != ModeJSON && m != ModeValueList {
		return 0, fmt.Errorf("unknown decode mode %d (allowed: 0=json, 1=value-list)", n)
	}
	return m, nil
}

// New returns the decoder for mode. now stamps measures; nil means time.Now.
func New(mode Mode, now func() time.Time) (Decoder, error) {
	if now == nil {
		now = time.Now
	}
	switch mode {
	case ModeJSON:
		return NewJSON(now), nil
	case ModeValueList:
		return NewValueList(now), nil
	default:
		return nil, fmt.Errorf("no decoder for %s", mode)
	}
}
