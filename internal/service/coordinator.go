package service

import (
	"context"
	"sync"
	"time"

	"molekule_bridge/internal/models"
	"molekule_bridge/internal/molekule"
	"molekule_bridge/internal/repository"
)

// Poll states. The coordinator is Idle between polls, Polling while a fetch
// is in flight, and ErrorBackoff after a transient failure (the next timer
// tick is skipped).
const (
	StateIdle = iota
	StatePolling
	StateErrorBackoff
)

// PollCoordinator drives the fetch-and-map cycle. A single mutex guarantees
// no two polls ever overlap: scheduled ticks give up immediately when a poll
// is in flight, command-triggered refreshes queue behind it.
type PollCoordinator struct {
	client    CloudClient
	devices   repository.DeviceRepo
	snapshots repository.SnapshotRepo
	events    repository.EventRepo
	recorder  Recorder
	publisher Publisher

	pollMu sync.Mutex // held for the duration of one poll

	stateMu sync.Mutex
	state   int
}

func NewPollCoordinator(client CloudClient, devices repository.DeviceRepo, snapshots repository.SnapshotRepo, events repository.EventRepo, rec Recorder, pub Publisher) *PollCoordinator {
	return &PollCoordinator{
		client:    client,
		devices:   devices,
		snapshots: snapshots,
		events:    events,
		recorder:  rec,
		publisher: pub,
	}
}

// State returns the coordinator's current poll state.
func (c *PollCoordinator) State() int {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state
}

func (c *PollCoordinator) setState(s int) {
	c.stateMu.Lock()
	c.state = s
	c.stateMu.Unlock()
}

// consumeBackoff reports whether the coordinator was backing off, clearing
// the backoff in that case so the following tick polls again.
func (c *PollCoordinator) consumeBackoff() bool {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	if c.state == StateErrorBackoff {
		c.state = StateIdle
		return true
	}
	return false
}

// Run polls immediately, then on every tick until ctx is canceled.
func (c *PollCoordinator) Run(ctx context.Context, tick time.Duration) {
	_ = c.Refresh(ctx)

	t := time.NewTicker(tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if c.consumeBackoff() {
				continue
			}
			// A poll still in flight suppresses this tick entirely.
			if !c.pollMu.TryLock() {
				continue
			}
			_ = c.pollLocked(ctx)
			c.pollMu.Unlock()
		}
	}
}

// Refresh runs one out-of-cycle poll, waiting for any in-flight poll to
// finish first. Used after control commands and at startup.
func (c *PollCoordinator) Refresh(ctx context.Context) error {
	c.pollMu.Lock()
	defer c.pollMu.Unlock()
	return c.pollLocked(ctx)
}

// pollLocked performs one complete fetch-and-map cycle. Caller holds pollMu.
func (c *PollCoordinator) pollLocked(ctx context.Context) error {
	c.setState(StatePolling)
	now := time.Now().UTC()

	payload, err := c.client.Devices(ctx)
	if err != nil {
		c.handlePollFailure(ctx, now, err)
		return err
	}

	for _, dp := range payload.Content {
		device := molekule.MapDevice(dp, now)
		if device.Serial == "" {
			continue
		}

		known, lookupErr := c.devices.Get(ctx, device.Serial)
		if lookupErr == nil && known.Serial == "" {
			_ = c.events.Append(ctx, models.PurifierEvent{
				Serial:      device.Serial,
				OccurredAt:  now,
				Type:        models.EventDiscovery,
				Description: "Discovered " + device.Model + " " + device.Name,
				Metadata:    map[string]any{"model": device.Model, "firmware": device.Firmware},
			})
		}

		if device.HasSensors {
			c.pollSensors(ctx, device.Serial, now)
		}

		if err := c.devices.Save(ctx, device); err != nil {
			continue
		}
		if c.recorder != nil {
			c.recorder.RecordDevice(device)
		}
		if c.publisher != nil {
			c.publisher.PublishDevice(device)
			c.publisher.PublishAvailability(device.Serial, true)
		}
	}

	if c.recorder != nil {
		c.recorder.RecordPoll(true, now)
	}
	c.setState(StateIdle)
	return nil
}

// pollSensors fetches and stores one device's pollutant batch. A failure
// here degrades only this device's readings, never the whole poll.
func (c *PollCoordinator) pollSensors(ctx context.Context, serial string, now time.Time) {
	payload, err := c.client.SensorData(ctx, serial)
	if err != nil {
		_ = c.events.Append(ctx, models.PurifierEvent{
			Serial:      serial,
			OccurredAt:  now,
			Type:        models.EventPollError,
			Description: "Sensor data fetch failed",
			Metadata:    map[string]any{"error": err.Error()},
		})
		return
	}

	batch := molekule.MapSensorData(serial, payload, now)
	if batch.IsEmpty() {
		return
	}
	if err := c.snapshots.Save(ctx, batch); err != nil {
		return
	}
	if c.recorder != nil {
		c.recorder.RecordBatch(batch)
	}
	if c.publisher != nil {
		c.publisher.PublishBatch(batch)
	}
}

// handlePollFailure marks everything unavailable and decides whether the
// next tick should be skipped. Auth and permanent API failures keep the
// normal cadence (they recover on their own schedule); transient ones back
// off for one interval.
func (c *PollCoordinator) handlePollFailure(ctx context.Context, now time.Time, pollErr error) {
	_ = c.devices.SetAvailability(ctx, false, now)

	eventType := models.EventPollError
	if molekule.IsAuthError(pollErr) {
		eventType = models.EventAuth
	}
	_ = c.events.Append(ctx, models.PurifierEvent{
		OccurredAt:  now,
		Type:        eventType,
		Description: "Poll failed",
		Metadata:    map[string]any{"error": pollErr.Error(), "transient": molekule.IsTransient(pollErr)},
	})

	if c.recorder != nil {
		c.recorder.RecordPoll(false, now)
	}
	if c.publisher != nil {
		c.publisher.PublishAvailability("", false)
	}

	if molekule.IsTransient(pollErr) {
		c.setState(StateErrorBackoff)
		return
	}
	c.setState(StateIdle)
}
