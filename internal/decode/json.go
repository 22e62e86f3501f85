package decode

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"uart-gateway/internal/measure"
)

// JSON decodes a flat JSON object, one measure per key in document order.
// Any parse error or non-numeric value drops the whole line.
type JSON struct {
	now func() time.Time
}

// NewJSON returns a JSON decoder stamped by now (nil means time.Now).
func NewJSON(now func() time.Time) *JSON {
	if now == nil {
		now = time.Now
	}
	return &JSON{now: now}
}

type field struct {
	key   string
	value float64
}

func (d *JSON) Decode(line string) []measure.Measure {
	fields, err := parseFlatObject(line)
	if err != nil || len(fields) == 0 {
		return nil
	}
	ts := d.now()
	out := make([]measure.Measure, 0, len(fields))
	for _, f := range fields {
		out = append(out, measure.New(SensorReferenceID, measure.ReferenceSensor, f.key, f.value, ts))
	}
	return out
}

var errNotObject = errors.New("line is not a JSON object")

// parseFlatObject keeps key order. A repeated key overwrites the value of its
// first occurrence without moving it.
func parseFlatObject(line string) ([]field, error) {
	dec := json.NewDecoder(strings.NewReader(line))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, errNotObject
	}

	var fields []field
	index := make(map[string]int)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected token %v", tok)
		}
		if key == "" {
			return nil, errors.New("empty key")
		}

		var raw any
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("value of %q: %w", key, err)
		}
		v, err := numeric(raw)
		if err != nil {
			return nil, fmt.Errorf("value of %q: %w", key, err)
		}

		if i, seen := index[key]; seen {
			fields[i].value = v
			continue
		}
		index[key] = len(fields)
		fields = append(fields, field{key: key, value: v})
	}

	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("trailing data after object")
	}
	return fields, nil
}

func numeric(v any) (float64, error) {
	var (
		f   float64
		err error
	)
	switch x := v.(type) {
	case json.Number:
		f, err = x.Float64()
	case string:
		f, err = strconv.ParseFloat(strings.TrimSpace(x), 64)
	default:
		return 0, fmt.Errorf("non-numeric value %v", v)
	}
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("non-finite value %v", v)
	}
	return f, nil
}
