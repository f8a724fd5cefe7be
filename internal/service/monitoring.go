package service

import (
	"context"
	"time"

	"molekule_bridge/internal/models"
	"molekule_bridge/internal/repository"
)

type MonitoringService struct {
	devices   repository.DeviceRepo
	snapshots repository.SnapshotRepo
}

func NewMonitoringService(devices repository.DeviceRepo, snapshots repository.SnapshotRepo) *MonitoringService {
	return &MonitoringService{devices: devices, snapshots: snapshots}
}

// Devices returns every purifier the account has ever reported.
func (s *MonitoringService) Devices(ctx context.Context) ([]models.Device, error) {
	devices, err := s.devices.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range devices {
		devices[i].UpdatedAt = toUTC(devices[i].UpdatedAt)
	}
	return devices, nil
}

// Device returns the last confirmed state of one purifier.
func (s *MonitoringService) Device(ctx context.Context, serial string) (models.Device, error) {
	d, err := s.devices.Get(ctx, serial)
	if err != nil {
		return models.Device{}, err
	}
	if d.Serial == "" {
		return models.Device{}, ErrDeviceNotFound
	}
	d.UpdatedAt = toUTC(d.UpdatedAt)
	return d, nil
}

// Readings returns the latest full sensor batch for one purifier. A device
// that has never reported sensor data gets an all-unknown batch rather than
// an error.
func (s *MonitoringService) Readings(ctx context.Context, serial string) (models.SensorBatch, error) {
	if _, err := s.Device(ctx, serial); err != nil {
		return models.SensorBatch{}, err
	}
	batch, err := s.snapshots.Latest(ctx, serial)
	if err != nil {
		return models.SensorBatch{}, err
	}
	if batch.Serial == "" {
		batch.Serial = serial
	}
	batch.TakenAt = toUTC(batch.TakenAt)
	return batch, nil
}

// toUTC normalizes non-zero time to UTC, preserving zero values.
func toUTC(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}
