// Package measure holds the canonical telemetry record forwarded to the sink.
package measure

import (
	"time"

	"github.com/google/uuid"
)

// Reference types of the agent that produced a measure.
const (
	ReferenceSensor    = "Sensor"
	ReferenceUnit      = "Unit"
	ReferenceRack      = "Rack"
	ReferenceEquipment = "Equipment"
)

// Measure is one observed value at one instant.
//
// Wire names follow the collector's canonical model. Optional strings are
// pointers so that an absent value is encoded as null rather than "".
type Measure struct {
	ID             string    `json:"_id"`
	ReferenceID    string    `json:"ReferenceID"`
	ReferenceType  string    `json:"ReferenceType"`
	Timestamp      time.Time `json:"Timestamp"`
	MeasureUnit    *string   `json:"MeasureUnit"`
	MeasureType    string    `json:"MeasureType"`
	DrawReference  *string   `json:"DrawReference"`
	RelayProbeType *string   `json:"RelayProbeType"`
	StressIndex    int       `json:"StressIndex"`
	Value          float64   `json:"Value"`
	HighLimit      float64   `json:"HighLimit"`
	LowLimit       float64   `json:"LowLimit"`
	Result         *string   `json:"Result"`
	TPGMName       *string   `json:"TPGMName"`
	ProductSN      *string   `json:"ProductSN"`
	Task           *string   `json:"Task"`
	Test           *string   `json:"Test"`
	TestPoint      *string   `json:"TestPoint"`
	Remark         *string   `json:"Remark"`
}

// New returns a measure with a freshly generated id.
func New(referenceID, referenceType, measureType string, value float64, ts time.Time) Measure {
	return Measure{
		ID:            newID(),
		ReferenceID:   referenceID,
		ReferenceType: referenceType,
		Timestamp:     ts,
		MeasureType:   measureType,
		Value:         value,
	}
}

// UUIDv7 keeps ids roughly ordered by creation time.
func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
