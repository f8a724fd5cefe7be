package service

import (
	"context"
	"time"

	"molekule_bridge/internal/models"
	"molekule_bridge/internal/molekule"
	"molekule_bridge/internal/repository"
)

// CloudClient is the slice of the Molekule client the services need.
// Satisfied by *molekule.Client; fakes implement it in tests.
type CloudClient interface {
	Devices(ctx context.Context) (molekule.DevicesPayload, error)
	SensorData(ctx context.Context, serial string) (molekule.SensorDataPayload, error)
	SetPower(ctx context.Context, serial string, on bool) error
	SetFanSpeed(ctx context.Context, serial string, speed int) error
	SetSmartMode(ctx context.Context, serial string, silent bool) error
}

type Authorization interface {
	SignUp(username, password string) (int, error)
	GenerateToken(username, password string) (string, error)
	ParseToken(accessToken string) (int, error)
}

// Purifier exposes control operations: power, fan speed and mode changes.
type Purifier interface {
	SetMode(ctx context.Context, serial, mode string) error
	SetSpeed(ctx context.Context, serial string, speed int) error
	SetPower(ctx context.Context, serial string, on bool) error
}

// Monitoring exposes read-only projections of the last confirmed poll.
type Monitoring interface {
	Devices(ctx context.Context) ([]models.Device, error)
	Device(ctx context.Context, serial string) (models.Device, error)
	Readings(ctx context.Context, serial string) (models.SensorBatch, error)
}

// EventLog exposes append-only logs with filtering access.
type EventLog interface {
	List(ctx context.Context, f LogFilter) ([]models.PurifierEvent, error)
}

// Coordinator runs the background poll loop against the vendor cloud.
// Stop via context cancellation in main() for graceful shutdown.
type Coordinator interface {
	Run(ctx context.Context, tick time.Duration)
	Refresh(ctx context.Context) error
}

// Recorder receives each confirmed poll result for metrics export.
// Implementations must tolerate being called from the poll goroutine.
type Recorder interface {
	RecordDevice(d models.Device)
	RecordBatch(b models.SensorBatch)
	RecordPoll(success bool, at time.Time)
}

// Publisher pushes confirmed state to external consumers (MQTT).
type Publisher interface {
	PublishDevice(d models.Device)
	PublishBatch(b models.SensorBatch)
	PublishAvailability(serial string, available bool)
}

// Options carries the config knobs the services need.
type Options struct {
	ForceQuietOnAuto bool
	SigningKey       string
}

// Service aggregates all sub-services.
type Service struct {
	Purifier
	Monitoring
	EventLog
	Coordinator
	Authorization
}

// NewService wires the repository layer and cloud client into concrete
// services. Recorder and publisher may be nil.
func NewService(repos *repository.Repository, client CloudClient, opts Options, rec Recorder, pub Publisher) *Service {
	coordinator := NewPollCoordinator(client, repos.Devices, repos.Snapshots, repos.Events, rec, pub)
	return &Service{
		Purifier:      NewPurifierService(client, repos.Devices, repos.Events, coordinator, opts.ForceQuietOnAuto),
		Monitoring:    NewMonitoringService(repos.Devices, repos.Snapshots),
		EventLog:      NewEventLogService(repos.Events),
		Coordinator:   coordinator,
		Authorization: NewAuthService(repos.Auth, opts.SigningKey),
	}
}
