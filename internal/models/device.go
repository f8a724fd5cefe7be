package models

import "time"

// Known purifier models. Anything else gets ModelUnknown capabilities.
const (
	ModelAir     = "Molekule Air"
	ModelAirPro  = "Molekule Air Pro"
	ModelUnknown = "Unknown Model"
)

// Air quality levels reported by the cloud. AQIUnknown covers missing or
// unrecognized values.
const (
	AQIGood     = "good"
	AQIModerate = "moderate"
	AQIBad      = "bad"
	AQIVeryBad  = "very_bad"
	AQIUnknown  = "unknown"
)

// Fan modes exposed to API consumers.
const (
	ModeAuto   = "auto"
	ModeManual = "manual"
)

// Device is the last confirmed cloud state of one purifier.
type Device struct {
	Serial      string    `json:"serial"`
	Name        string    `json:"name"`
	Model       string    `json:"model"` // Molekule Air | Molekule Air Pro
	MACAddress  string    `json:"mac_address,omitempty"`
	Firmware    string    `json:"firmware,omitempty"`
	Mode        string    `json:"mode"`      // auto | manual
	FanSpeed    int       `json:"fan_speed"` // 0 (off) .. 6
	PowerOn     bool      `json:"power_on"`
	Silent      bool      `json:"silent"`
	Burst       bool      `json:"burst"`
	Online      bool      `json:"online"`
	AQI         string    `json:"aqi"`                   // good | moderate | bad | very_bad | unknown
	PECOFilter  *int      `json:"peco_filter,omitempty"` // remaining filter life %, nil = unknown
	Available   bool      `json:"available"`             // false after a failed poll
	UpdatedAt   time.Time `json:"updated_at"`            // last confirmed poll
	HasSensors  bool      `json:"has_sensors"`           // model exposes the sensordata endpoint
}

// HasSensorData reports whether a purifier model exposes the pollutant
// sensordata endpoint. Only the Air Pro does; unknown models are treated
// like the base Air.
func HasSensorData(model string) bool {
	return model == ModelAirPro
}
