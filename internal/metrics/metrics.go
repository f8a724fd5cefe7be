package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"molekule_bridge/internal/models"
)

// Numeric encoding of AQI levels for the gauge (0 = unknown).
var aqiLevelValues = map[string]float64{
	models.AQIGood:     1,
	models.AQIModerate: 2,
	models.AQIBad:      3,
	models.AQIVeryBad:  4,
}

// Recorder exports the last confirmed poll as Prometheus gauges. The
// coordinator pushes into it after each cycle; Collect just reads the
// current gauge values.
type Recorder struct {
	pollSuccess prometheus.Gauge
	lastSuccess prometheus.Gauge

	info *prometheus.GaugeVec

	available prometheus.Gauge

	online    *prometheus.GaugeVec
	fanSpeed  *prometheus.GaugeVec
	autoMode  *prometheus.GaugeVec
	silent    *prometheus.GaugeVec
	aqiLevel  *prometheus.GaugeVec
	filter    *prometheus.GaugeVec

	pm25Ugm3        *prometheus.GaugeVec
	pm10Ugm3        *prometheus.GaugeVec
	vocUgm3         *prometheus.GaugeVec
	co2Ppm          *prometheus.GaugeVec
	humidityPercent *prometheus.GaugeVec
}

func NewRecorder() *Recorder {
	serial := []string{"serial"}
	return &Recorder{
		pollSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "molekule_poll_success",
			Help: "Last poll success (1=ok, 0=error)",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "molekule_last_success_timestamp_seconds",
			Help: "Last successful poll timestamp (epoch seconds)",
		}),
		info: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "molekule_device_info",
			Help: "Purifier device info",
		}, []string{"serial", "model", "firmware"}),
		available: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "molekule_available",
			Help: "1 if the cloud account is reachable",
		}),
		online: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "molekule_online",
			Help: "1 if the purifier is online",
		}, serial),
		fanSpeed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "molekule_fan_speed",
			Help: "Current fan speed (0=off, 1..6)",
		}, serial),
		autoMode: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "molekule_auto_mode",
			Help: "1 if automatic (smart) mode is active",
		}, serial),
		silent: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "molekule_silent",
			Help: "1 if quiet mode is active",
		}, serial),
		aqiLevel: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "molekule_aqi_level",
			Help: "Air quality level (0=unknown, 1=good .. 4=very bad)",
		}, serial),
		filter: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "molekule_peco_filter_percent",
			Help: "Remaining PECO filter life (%)",
		}, serial),
		pm25Ugm3: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "molekule_pm25_ugm3",
			Help: "PM2.5 concentration (ug/m3)",
		}, serial),
		pm10Ugm3: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "molekule_pm10_ugm3",
			Help: "PM10 concentration (ug/m3)",
		}, serial),
		vocUgm3: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "molekule_voc_ugm3",
			Help: "TVOC concentration (ug/m3)",
		}, serial),
		co2Ppm: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "molekule_co2_ppm",
			Help: "CO2 concentration (ppm)",
		}, serial),
		humidityPercent: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "molekule_humidity_percent",
			Help: "Relative humidity (%)",
		}, serial),
	}
}

// RecordDevice updates the control-state gauges for one purifier.
func (r *Recorder) RecordDevice(d models.Device) {
	labels := prometheus.Labels{"serial": d.Serial}

	r.info.With(prometheus.Labels{
		"serial":   d.Serial,
		"model":    d.Model,
		"firmware": d.Firmware,
	}).Set(1)

	r.online.With(labels).Set(boolGauge(d.Online))
	r.fanSpeed.With(labels).Set(float64(d.FanSpeed))
	r.autoMode.With(labels).Set(boolGauge(d.Mode == models.ModeAuto))
	r.silent.With(labels).Set(boolGauge(d.Silent))
	r.aqiLevel.With(labels).Set(aqiLevelValues[d.AQI])
	if d.PECOFilter != nil {
		r.filter.With(labels).Set(float64(*d.PECOFilter))
	}
}

// RecordBatch updates the pollutant gauges from one full sensor batch.
func (r *Recorder) RecordBatch(b models.SensorBatch) {
	labels := prometheus.Labels{"serial": b.Serial}
	setGauge(r.pm25Ugm3, labels, b.PM25)
	setGauge(r.pm10Ugm3, labels, b.PM10)
	setGauge(r.vocUgm3, labels, b.VOC)
	setGauge(r.co2Ppm, labels, b.CO2)
	setGauge(r.humidityPercent, labels, b.Humidity)
}

// RecordPoll updates the poll health gauges.
func (r *Recorder) RecordPoll(success bool, at time.Time) {
	r.pollSuccess.Set(boolGauge(success))
	r.available.Set(boolGauge(success))
	if success {
		r.lastSuccess.Set(float64(at.Unix()))
	}
}

func (r *Recorder) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range r.collectors() {
		c.Describe(ch)
	}
}

func (r *Recorder) Collect(ch chan<- prometheus.Metric) {
	for _, c := range r.collectors() {
		c.Collect(ch)
	}
}

func (r *Recorder) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		r.pollSuccess,
		r.lastSuccess,
		r.info,
		r.available,
		r.online,
		r.fanSpeed,
		r.autoMode,
		r.silent,
		r.aqiLevel,
		r.filter,
		r.pm25Ugm3,
		r.pm10Ugm3,
		r.vocUgm3,
		r.co2Ppm,
		r.humidityPercent,
	}
}

func setGauge(g *prometheus.GaugeVec, labels prometheus.Labels, value *float64) {
	if value == nil {
		return
	}
	g.With(labels).Set(*value)
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
