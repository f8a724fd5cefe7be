package molekule

import (
	"strconv"
	"strings"
	"time"

	"molekule_bridge/internal/models"
)

var aqiLevels = map[string]string{
	"good":     models.AQIGood,
	"moderate": models.AQIModerate,
	"bad":      models.AQIBad,
	"very bad": models.AQIVeryBad,
}

// MapDevice converts a wire device payload into the typed device state.
// Pure: malformed fields degrade to their unknown/zero value, never fail.
func MapDevice(p DevicePayload, now time.Time) models.Device {
	model := strings.TrimSpace(p.SubProduct.Name)
	if model == "" {
		model = models.ModelUnknown
	}

	speed := 0
	if n, err := strconv.Atoi(strings.TrimSpace(p.FanSpeed)); err == nil && n >= 0 {
		speed = n
	}

	mode := models.ModeManual
	if strings.EqualFold(strings.TrimSpace(p.Mode), "smart") {
		mode = models.ModeAuto
	}

	var filter *int
	if n, err := strconv.Atoi(strings.TrimSpace(p.PECOFilter)); err == nil && n >= 0 && n <= 100 {
		filter = &n
	}

	return models.Device{
		Serial:     p.SerialNumber,
		Name:       p.Name,
		Model:      model,
		MACAddress: p.MACAddress,
		Firmware:   p.FirmwareVersion,
		Mode:       mode,
		FanSpeed:   speed,
		PowerOn:    speed > 0,
		Silent:     truthy(p.Silent),
		Burst:      truthy(p.Burst),
		Online:     truthy(p.Online),
		AQI:        AQILevel(p.AQI),
		PECOFilter: filter,
		Available:  true,
		UpdatedAt:  now.UTC(),
		HasSensors: models.HasSensorData(model),
	}
}

// MapSensorData converts a sensordata payload into one full batch. Every
// known metric is present in the result; a metric with no valid sample stays
// nil. Pure.
func MapSensorData(serial string, p SensorDataPayload, now time.Time) models.SensorBatch {
	batch := models.SensorBatch{Serial: serial, TakenAt: now.UTC()}
	for _, series := range p.SensorData {
		value := latestValid(series.Values)
		if value == nil {
			continue
		}
		switch series.Type {
		case "PM2_5":
			batch.PM25 = value
		case "PM10":
			batch.PM10 = value
		case "TVOC":
			batch.VOC = value
		case "CO2":
			batch.CO2 = value
		case "RH":
			batch.Humidity = value
		}
	}
	return batch
}

// AQILevel maps the cloud's air quality word to a level, or unknown.
func AQILevel(raw string) string {
	if level, ok := aqiLevels[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return level
	}
	return models.AQIUnknown
}

// latestValid walks samples newest-first and returns the first one the
// device did not flag invalid (-1).
func latestValid(samples []SensorSample) *float64 {
	for i := len(samples) - 1; i >= 0; i-- {
		if samples[i].V != -1 {
			v := samples[i].V
			return &v
		}
	}
	return nil
}

func truthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "on", "yes":
		return true
	}
	return false
}
