package measure

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

// Encoder turns a measure into the payload handed to a sink.
type Encoder func(Measure) ([]byte, error)

var cborEncMode cbor.EncMode

func init() {
	opts := cbor.CanonicalEncOptions()
	// Keep sub-second precision; the default unix-seconds form drops it.
	opts.Time = cbor.TimeRFC3339Nano
	var err error
	cborEncMode, err = opts.EncMode()
	if err != nil {
		panic("measure: CBOR encoder initialization failed: " + err.Error())
	}
}

// EncodeJSON encodes m as a JSON object.
func EncodeJSON(m Measure) ([]byte, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal measure: %w", err)
	}
	return b, nil
}

// EncodeCBOR encodes m as a CBOR map with the same field names as EncodeJSON.
func EncodeCBOR(m Measure) ([]byte, error) {
	b, err := cborEncMode.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal measure (cbor): %w", err)
	}
	return b, nil
}

// EncoderFor resolves an encoder by name ("json" or "cbor").
func EncoderFor(name string) (Encoder, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "json":
		return EncodeJSON, nil
	case "cbor":
		return EncodeCBOR, nil
	default:
		return nil, fmt.Errorf("unknown encoding %q (allowed: json, cbor)", name)
	}
}
