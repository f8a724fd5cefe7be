package mqtt

import (
	"crypto/rand"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"molekule_bridge/internal/models"
)

const (
	defaultTopicPrefix = "molekule"
	discoveryPrefix    = "homeassistant"
	connectTimeout     = 10 * time.Second
)

type Config struct {
	Host        string
	Port        int
	TLS         bool
	Username    string
	Password    string
	TopicPrefix string
}

// Publisher pushes confirmed purifier state to an MQTT broker, announcing
// each device once via Home Assistant discovery so sensors show up without
// manual configuration.
type Publisher struct {
	client mqtt.Client
	prefix string

	mu        sync.Mutex
	announced map[string]bool
}

func NewPublisher(cfg Config) (*Publisher, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("mqtt host is required")
	}
	prefix := cfg.TopicPrefix
	if prefix == "" {
		prefix = defaultTopicPrefix
	}

	opts := mqtt.NewClientOptions()
	scheme := "tcp"
	if cfg.TLS {
		scheme = "ssl"
		opts.SetTLSConfig(&tls.Config{})
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Host, cfg.Port))
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetClientID(randomClientID())
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(connectTimeout)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}

	return &Publisher{
		client:    client,
		prefix:    prefix,
		announced: make(map[string]bool),
	}, nil
}

// PublishDevice publishes the control-state topic for one purifier,
// announcing it first if this is the first time we see the serial.
func (p *Publisher) PublishDevice(d models.Device) {
	p.announce(d)
	p.publishJSON(p.topic(d.Serial, "state"), d, false)
}

// PublishBatch publishes one full sensor batch.
func (p *Publisher) PublishBatch(b models.SensorBatch) {
	p.publishJSON(p.topic(b.Serial, "sensors"), b, false)
}

// PublishAvailability publishes online/offline for one serial, or for every
// announced device when serial is empty (whole-poll failure).
func (p *Publisher) PublishAvailability(serial string, available bool) {
	payload := "offline"
	if available {
		payload = "online"
	}

	if serial != "" {
		p.publishRaw(p.topic(serial, "availability"), []byte(payload), true)
		return
	}

	p.mu.Lock()
	serials := make([]string, 0, len(p.announced))
	for s := range p.announced {
		serials = append(serials, s)
	}
	p.mu.Unlock()
	for _, s := range serials {
		p.publishRaw(p.topic(s, "availability"), []byte(payload), true)
	}
}

// Close disconnects from the broker, flushing in-flight messages briefly.
func (p *Publisher) Close() {
	p.client.Disconnect(250)
}

// discoveryPayload is the Home Assistant MQTT discovery config for one
// sensor entity.
type discoveryPayload struct {
	Name              string           `json:"name"`
	UniqueID          string           `json:"uniq_id"`
	StateTopic        string           `json:"stat_t"`
	AvailabilityTopic string           `json:"avty_t"`
	ValueTemplate     string           `json:"val_tpl"`
	DeviceClass       string           `json:"dev_cla,omitempty"`
	StateClass        string           `json:"stat_cla,omitempty"`
	Unit              string           `json:"unit_of_meas,omitempty"`
	Device            *discoveryDevice `json:"dev"`
}

type discoveryDevice struct {
	IDs             string `json:"ids"`
	Name            string `json:"name"`
	Model           string `json:"mdl"`
	Manufacturer    string `json:"mf"`
	SoftwareVersion string `json:"sw,omitempty"`
}

type sensorSpec struct {
	key         string // JSON field in the state/sensors payload
	name        string
	topic       string // "state" or "sensors"
	deviceClass string
	unit        string
}

var sensorSpecs = []sensorSpec{
	{key: "aqi", name: "Air Quality", topic: "state"},
	{key: "peco_filter", name: "PECO Filter", topic: "state", unit: "%"},
	{key: "pm25", name: "PM2.5", topic: "sensors", deviceClass: "pm25", unit: "µg/m³"},
	{key: "pm10", name: "PM10", topic: "sensors", deviceClass: "pm10", unit: "µg/m³"},
	{key: "voc", name: "VOC", topic: "sensors", deviceClass: "volatile_organic_compounds", unit: "µg/m³"},
	{key: "co2", name: "CO2", topic: "sensors", deviceClass: "carbon_dioxide", unit: "ppm"},
	{key: "humidity", name: "Humidity", topic: "sensors", deviceClass: "humidity", unit: "%"},
}

// announce publishes retained discovery configs for a device, once per
// serial per process lifetime.
func (p *Publisher) announce(d models.Device) {
	p.mu.Lock()
	if p.announced[d.Serial] {
		p.mu.Unlock()
		return
	}
	p.announced[d.Serial] = true
	p.mu.Unlock()

	dev := &discoveryDevice{
		IDs:             d.Serial,
		Name:            d.Name,
		Model:           d.Model,
		Manufacturer:    "Molekule",
		SoftwareVersion: d.Firmware,
	}

	for _, sc := range sensorSpecs {
		if sc.topic == "sensors" && !d.HasSensors {
			continue
		}
		cfg := discoveryPayload{
			Name:              fmt.Sprintf("%s %s", d.Name, sc.name),
			UniqueID:          fmt.Sprintf("%s_%s", d.Serial, sc.key),
			StateTopic:        p.topic(d.Serial, sc.topic),
			AvailabilityTopic: p.topic(d.Serial, "availability"),
			ValueTemplate:     fmt.Sprintf("{{ value_json.%s }}", sc.key),
			DeviceClass:       sc.deviceClass,
			StateClass:        "measurement",
			Unit:              sc.unit,
			Device:            dev,
		}
		if sc.key == "aqi" {
			cfg.StateClass = "" // enum-like, not a measurement
		}
		topic := fmt.Sprintf("%s/sensor/%s_%s/config", discoveryPrefix, d.Serial, sc.key)
		p.publishJSON(topic, cfg, true)
	}
}

func (p *Publisher) topic(serial, suffix string) string {
	return fmt.Sprintf("%s/%s/%s", p.prefix, serial, suffix)
}

func (p *Publisher) publishJSON(topic string, v any, retain bool) {
	payload, err := json.Marshal(v)
	if err != nil {
		return
	}
	p.publishRaw(topic, payload, retain)
}

func (p *Publisher) publishRaw(topic string, payload []byte, retain bool) {
	// Fire and forget: a dropped MQTT message is replaced by the next poll.
	p.client.Publish(topic, 0, retain, payload)
}

func randomClientID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("molekule-bridge-%d", time.Now().UnixNano())
	}
	return "molekule-bridge-" + base64.RawURLEncoding.EncodeToString(buf)
}
