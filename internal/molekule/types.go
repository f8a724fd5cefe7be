package molekule

// DevicesPayload is the response of the account device-list endpoint.
type DevicesPayload struct {
	Content []DevicePayload `json:"content"`
}

// DevicePayload is one purifier as the cloud describes it. The cloud is loose
// with types (fan speed and flags arrive as strings, nulls are common), so
// fields stay close to the wire and the mapper normalizes them.
type DevicePayload struct {
	SerialNumber    string `json:"serialNumber"`
	Name            string `json:"name"`
	MACAddress      string `json:"macAddress"`
	FirmwareVersion string `json:"firmwareVersion"`
	SubProduct      struct {
		Name string `json:"name"`
	} `json:"subProduct"`
	Mode       string `json:"mode"`     // "smart" or "manual"
	FanSpeed   string `json:"fanspeed"` // "0".."6"
	Silent     string `json:"silent"`
	Burst      string `json:"burst"`
	Online     string `json:"online"`
	AQI        string `json:"aqi"`
	PECOFilter string `json:"pecoFilter"` // remaining filter life, "0".."100"
}

// SensorDataPayload is the response of the per-device sensordata endpoint.
type SensorDataPayload struct {
	SensorData []PollutantSeries `json:"sensorData"`
}

// PollutantSeries is one metric's recent samples, newest last.
type PollutantSeries struct {
	Type   string         `json:"type"` // PM2_5 | PM10 | RH | TVOC | CO2
	Values []SensorSample `json:"sensorDataValue"`
}

// SensorSample is a single timestamped value; -1 marks an invalid sample.
type SensorSample struct {
	T int64   `json:"t"` // epoch millis
	V float64 `json:"v"`
}
