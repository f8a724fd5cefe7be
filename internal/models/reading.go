package models

import "time"

// SensorBatch is one full set of pollutant readings for a device, taken in a
// single poll. Readings are only ever replaced as a whole batch; a nil field
// means the cloud had no valid sample for that metric.
type SensorBatch struct {
	Serial   string    `json:"serial"`
	PM25     *float64  `json:"pm25"`     // µg/m³, null = unknown
	PM10     *float64  `json:"pm10"`     // µg/m³
	VOC      *float64  `json:"voc"`      // µg/m³ (TVOC)
	CO2      *float64  `json:"co2"`      // ppm
	Humidity *float64  `json:"humidity"` // % RH
	TakenAt  time.Time `json:"taken_at"`
}

// IsEmpty reports whether no metric in the batch carries a value.
func (b SensorBatch) IsEmpty() bool {
	return b.PM25 == nil && b.PM10 == nil && b.VOC == nil && b.CO2 == nil && b.Humidity == nil
}
