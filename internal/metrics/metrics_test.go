package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"molekule_bridge/internal/models"
)

func TestRecorder_DeviceAndPollGauges(t *testing.T) {
	rec := NewRecorder()

	filter := 84
	rec.RecordDevice(models.Device{
		Serial:     "P1",
		Model:      models.ModelAirPro,
		Firmware:   "1.2.3",
		Mode:       models.ModeAuto,
		FanSpeed:   2,
		Online:     true,
		AQI:        models.AQIModerate,
		PECOFilter: &filter,
	})
	at := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	rec.RecordPoll(true, at)

	expected := `
# HELP molekule_aqi_level Air quality level (0=unknown, 1=good .. 4=very bad)
# TYPE molekule_aqi_level gauge
molekule_aqi_level{serial="P1"} 2
# HELP molekule_auto_mode 1 if automatic (smart) mode is active
# TYPE molekule_auto_mode gauge
molekule_auto_mode{serial="P1"} 1
# HELP molekule_fan_speed Current fan speed (0=off, 1..6)
# TYPE molekule_fan_speed gauge
molekule_fan_speed{serial="P1"} 2
# HELP molekule_peco_filter_percent Remaining PECO filter life (%)
# TYPE molekule_peco_filter_percent gauge
molekule_peco_filter_percent{serial="P1"} 84
# HELP molekule_poll_success Last poll success (1=ok, 0=error)
# TYPE molekule_poll_success gauge
molekule_poll_success 1
`
	err := testutil.CollectAndCompare(rec, strings.NewReader(expected),
		"molekule_aqi_level",
		"molekule_auto_mode",
		"molekule_fan_speed",
		"molekule_peco_filter_percent",
		"molekule_poll_success",
	)
	if err != nil {
		t.Fatalf("unexpected gauge values: %v", err)
	}
}

func TestRecorder_BatchSkipsUnknownMetrics(t *testing.T) {
	rec := NewRecorder()

	pm25 := 3.0
	rec.RecordBatch(models.SensorBatch{Serial: "P1", PM25: &pm25})

	expected := `
# HELP molekule_pm25_ugm3 PM2.5 concentration (ug/m3)
# TYPE molekule_pm25_ugm3 gauge
molekule_pm25_ugm3{serial="P1"} 3
`
	err := testutil.CollectAndCompare(rec, strings.NewReader(expected),
		"molekule_pm25_ugm3",
		"molekule_co2_ppm", // never set, so no series expected
	)
	if err != nil {
		t.Fatalf("unexpected gauge values: %v", err)
	}
}

func TestRecorder_FailedPollKeepsLastSuccessTimestamp(t *testing.T) {
	rec := NewRecorder()

	at := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	rec.RecordPoll(true, at)
	rec.RecordPoll(false, at.Add(5*time.Minute))

	expected := `
# HELP molekule_last_success_timestamp_seconds Last successful poll timestamp (epoch seconds)
# TYPE molekule_last_success_timestamp_seconds gauge
molekule_last_success_timestamp_seconds 1788091200
# HELP molekule_poll_success Last poll success (1=ok, 0=error)
# TYPE molekule_poll_success gauge
molekule_poll_success 0
`
	err := testutil.CollectAndCompare(rec, strings.NewReader(expected),
		"molekule_last_success_timestamp_seconds",
		"molekule_poll_success",
	)
	if err != nil {
		t.Fatalf("unexpected gauge values: %v", err)
	}
}
