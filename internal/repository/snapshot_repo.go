package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"molekule_bridge/internal/models"
)

type SnapshotSQLite struct {
	db *sql.DB
}

func NewSnapshotSQLite(db *sql.DB) *SnapshotSQLite {
	return &SnapshotSQLite{db: db}
}

const (
	insertSnapshotSQL = `
		INSERT INTO sensor_snapshots (serial, pm25, pm10, voc, co2, humidity, taken_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	latestSnapshotSQL = `
		SELECT serial, pm25, pm10, voc, co2, humidity, taken_at
		FROM sensor_snapshots WHERE serial=?
		ORDER BY taken_at DESC LIMIT 1
	`
)

// Save inserts a whole batch as one row. Readers only ever see complete
// batches because a batch is never written piecemeal.
func (r *SnapshotSQLite) Save(ctx context.Context, b models.SensorBatch) error {
	tsUTC := b.TakenAt
	if tsUTC.IsZero() {
		tsUTC = time.Now().UTC()
	} else {
		tsUTC = tsUTC.UTC()
	}

	_, err := r.db.ExecContext(ctx, insertSnapshotSQL,
		b.Serial,
		nullFloat(b.PM25),
		nullFloat(b.PM10),
		nullFloat(b.VOC),
		nullFloat(b.CO2),
		nullFloat(b.Humidity),
		tsUTC,
	)
	return err
}

// Latest returns the most recent batch for a device, or a zero batch (empty
// serial) when the device has never reported sensor data.
func (r *SnapshotSQLite) Latest(ctx context.Context, serial string) (models.SensorBatch, error) {
	row := r.db.QueryRowContext(ctx, latestSnapshotSQL, serial)

	var b models.SensorBatch
	var pm25, pm10, voc, co2, humidity sql.NullFloat64
	if err := row.Scan(&b.Serial, &pm25, &pm10, &voc, &co2, &humidity, &b.TakenAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.SensorBatch{}, nil
		}
		return models.SensorBatch{}, err
	}
	b.PM25 = floatPtr(pm25)
	b.PM10 = floatPtr(pm10)
	b.VOC = floatPtr(voc)
	b.CO2 = floatPtr(co2)
	b.Humidity = floatPtr(humidity)
	b.TakenAt = b.TakenAt.UTC()
	return b, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
