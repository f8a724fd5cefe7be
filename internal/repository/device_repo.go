package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"molekule_bridge/internal/models"
)

type DeviceSQLite struct {
	db *sql.DB
}

func NewDeviceSQLite(db *sql.DB) *DeviceSQLite {
	return &DeviceSQLite{db: db}
}

const (
	upsertDeviceSQL = `
		INSERT INTO device_state (serial, name, model, mac, firmware, mode, fan_speed, power_on, silent, burst, online, aqi, peco_filter, available, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(serial) DO UPDATE SET
			name=excluded.name,
			model=excluded.model,
			mac=excluded.mac,
			firmware=excluded.firmware,
			mode=excluded.mode,
			fan_speed=excluded.fan_speed,
			power_on=excluded.power_on,
			silent=excluded.silent,
			burst=excluded.burst,
			online=excluded.online,
			aqi=excluded.aqi,
			peco_filter=excluded.peco_filter,
			available=excluded.available,
			updated_at=excluded.updated_at
	`

	selectDeviceSQL = `
		SELECT serial, name, model, mac, firmware, mode, fan_speed, power_on, silent, burst, online, aqi, peco_filter, available, updated_at
		FROM device_state WHERE serial=?
	`

	listDevicesSQL = `
		SELECT serial, name, model, mac, firmware, mode, fan_speed, power_on, silent, burst, online, aqi, peco_filter, available, updated_at
		FROM device_state ORDER BY serial ASC
	`

	setAvailabilitySQL = `UPDATE device_state SET available=?, updated_at=? WHERE available != ?`
)

// Save upserts one device row keyed by serial.
func (r *DeviceSQLite) Save(ctx context.Context, d models.Device) error {
	tsUTC := d.UpdatedAt
	if tsUTC.IsZero() {
		tsUTC = time.Now().UTC()
	} else {
		tsUTC = tsUTC.UTC()
	}

	var filter sql.NullInt64
	if d.PECOFilter != nil {
		filter = sql.NullInt64{Int64: int64(*d.PECOFilter), Valid: true}
	}

	_, err := r.db.ExecContext(ctx, upsertDeviceSQL,
		d.Serial,
		d.Name,
		d.Model,
		d.MACAddress,
		d.Firmware,
		d.Mode,
		d.FanSpeed,
		d.PowerOn,
		d.Silent,
		d.Burst,
		d.Online,
		d.AQI,
		filter,
		d.Available,
		tsUTC,
	)
	return err
}

// Get fetches one device by serial. Returns a zero Device (empty serial) if
// the device has never been polled.
func (r *DeviceSQLite) Get(ctx context.Context, serial string) (models.Device, error) {
	row := r.db.QueryRowContext(ctx, selectDeviceSQL, serial)
	d, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Device{}, nil
		}
		return models.Device{}, err
	}
	return d, nil
}

// List returns all known devices ordered by serial.
func (r *DeviceSQLite) List(ctx context.Context) ([]models.Device, error) {
	rows, err := r.db.QueryContext(ctx, listDevicesSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.Device, 0, 4)
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// SetAvailability flips every device row whose availability differs, used
// when a whole poll fails or recovers.
func (r *DeviceSQLite) SetAvailability(ctx context.Context, available bool, at time.Time) error {
	_, err := r.db.ExecContext(ctx, setAvailabilitySQL, available, at.UTC(), available)
	return err
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanDevice(row scanner) (models.Device, error) {
	var d models.Device
	var filter sql.NullInt64
	if err := row.Scan(
		&d.Serial,
		&d.Name,
		&d.Model,
		&d.MACAddress,
		&d.Firmware,
		&d.Mode,
		&d.FanSpeed,
		&d.PowerOn,
		&d.Silent,
		&d.Burst,
		&d.Online,
		&d.AQI,
		&filter,
		&d.Available,
		&d.UpdatedAt,
	); err != nil {
		return models.Device{}, err
	}
	if filter.Valid {
		n := int(filter.Int64)
		d.PECOFilter = &n
	}
	d.UpdatedAt = d.UpdatedAt.UTC()
	d.HasSensors = models.HasSensorData(d.Model)
	return d, nil
}
