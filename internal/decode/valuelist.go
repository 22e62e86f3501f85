package decode

import (
	"math"
	"strconv"
	"strings"
	"time"

	"uart-gateway/internal/measure"
)

// ValueListTypes names the comma separated fields by position.
var ValueListTypes = [...]string{"ACC_X", "ACC_Y", "ACC_Z", "GYRO_X", "GYRO_Y", "GYRO_Z"}

// ValueList decodes positional comma separated values. Fields past the end of
// ValueListTypes are dropped; a field that is not a number is sent as 0.
type ValueList struct {
	now func() time.Time
}

// NewValueList returns a value-list decoder stamped by now (nil means time.Now).
func NewValueList(now func() time.Time) *ValueList {
	if now == nil {
		now = time.Now
	}
	return &ValueList{now: now}
}

func (d *ValueList) Decode(line string) []measure.Measure {
	fields := strings.Split(line, ",")
	if len(fields) > len(ValueListTypes) {
		fields = fields[:len(ValueListTypes)]
	}

	ts := d.now()
	out := make([]measure.Measure, 0, len(fields))
	for i, raw := range fields {
		out = append(out, measure.New(SensorReferenceID, measure.ReferenceSensor, ValueListTypes[i], parseOrZero(raw), ts))
	}
	return out
}

func parseOrZero(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
