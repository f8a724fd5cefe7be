package repository

import (
	"context"
	"database/sql"
	"time"

	"molekule_bridge/internal/models"
)

type Authorization interface {
	Create(username, hash string) (int, error)
	GetByUsername(username string) (*models.User, error)
}

// DeviceRepo persists the last confirmed state of each purifier.
type DeviceRepo interface {
	Save(ctx context.Context, d models.Device) error
	Get(ctx context.Context, serial string) (models.Device, error)
	List(ctx context.Context) ([]models.Device, error)
	SetAvailability(ctx context.Context, available bool, at time.Time) error
}

// SnapshotRepo persists whole sensor batches, one row per poll per device.
type SnapshotRepo interface {
	Save(ctx context.Context, b models.SensorBatch) error
	Latest(ctx context.Context, serial string) (models.SensorBatch, error)
}

type EventRepo interface {
	Append(ctx context.Context, e models.PurifierEvent) error
	List(ctx context.Context, from, to time.Time, typ string) ([]models.PurifierEvent, error)
}

type Repository struct {
	Devices   DeviceRepo
	Snapshots SnapshotRepo
	Events    EventRepo
	Auth      Authorization
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		Devices:   NewDeviceSQLite(db),
		Snapshots: NewSnapshotSQLite(db),
		Events:    NewEventSQLite(db),
		Auth:      NewUserRepository(db),
	}
}
