package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"molekule_bridge/internal/models"
	"molekule_bridge/internal/repository"
)

const (
	// Manual speed range of every current purifier model.
	MinFanSpeed = 1
	MaxFanSpeed = 6
)

var (
	errInvalidFanMode = errors.New("invalid mode: must be auto or manual")
	// ErrDeviceNotFound means the serial has never shown up in a poll.
	ErrDeviceNotFound = errors.New("device not found")
)

// Refresher is the slice of the coordinator commands need: an eager
// out-of-cycle poll so displayed state converges on the server's.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// PurifierService forwards user commands to the cloud. It never mutates
// stored state itself; the post-command refresh is what updates it, so the
// API keeps showing the last confirmed server state until the cloud
// acknowledges the change.
type PurifierService struct {
	client           CloudClient
	devices          repository.DeviceRepo
	events           repository.EventRepo
	refresher        Refresher
	forceQuietOnAuto bool
}

func NewPurifierService(client CloudClient, devices repository.DeviceRepo, events repository.EventRepo, refresher Refresher, forceQuietOnAuto bool) *PurifierService {
	return &PurifierService{
		client:           client,
		devices:          devices,
		events:           events,
		refresher:        refresher,
		forceQuietOnAuto: forceQuietOnAuto,
	}
}

// SetMode switches between automatic (smart) and manual operation.
// Automatic mode carries the quiet flag when force_quiet_on_auto is set;
// manual mode drops the purifier to its lowest speed, which is how the
// cloud leaves smart mode.
func (s *PurifierService) SetMode(ctx context.Context, serial, mode string) error {
	if mode != models.ModeAuto && mode != models.ModeManual {
		return errInvalidFanMode
	}
	if err := s.ensureKnown(ctx, serial); err != nil {
		return err
	}

	var err error
	if mode == models.ModeAuto {
		err = s.client.SetSmartMode(ctx, serial, s.forceQuietOnAuto)
	} else {
		err = s.client.SetFanSpeed(ctx, serial, MinFanSpeed)
	}
	if err != nil {
		return fmt.Errorf("set mode %s: %w", mode, err)
	}

	s.logCommand(ctx, serial, models.EventModeChange, "Mode set to "+mode, map[string]any{
		"mode":   mode,
		"silent": mode == models.ModeAuto && s.forceQuietOnAuto,
	})
	_ = s.refresher.Refresh(ctx)
	return nil
}

// SetSpeed sets a manual fan speed. Speed 0 is a power-off request.
func (s *PurifierService) SetSpeed(ctx context.Context, serial string, speed int) error {
	if speed == 0 {
		return s.SetPower(ctx, serial, false)
	}
	if speed < MinFanSpeed || speed > MaxFanSpeed {
		return fmt.Errorf("invalid speed %d: must be %d..%d", speed, MinFanSpeed, MaxFanSpeed)
	}
	if err := s.ensureKnown(ctx, serial); err != nil {
		return err
	}

	if err := s.client.SetFanSpeed(ctx, serial, speed); err != nil {
		return fmt.Errorf("set speed %d: %w", speed, err)
	}

	s.logCommand(ctx, serial, models.EventCommand, fmt.Sprintf("Fan speed set to %d", speed), map[string]any{
		"speed": speed,
	})
	_ = s.refresher.Refresh(ctx)
	return nil
}

// SetPower turns the purifier on or off.
func (s *PurifierService) SetPower(ctx context.Context, serial string, on bool) error {
	if err := s.ensureKnown(ctx, serial); err != nil {
		return err
	}

	if err := s.client.SetPower(ctx, serial, on); err != nil {
		return fmt.Errorf("set power: %w", err)
	}

	desc := "Powered off"
	if on {
		desc = "Powered on"
	}
	s.logCommand(ctx, serial, models.EventCommand, desc, map[string]any{"on": on})
	_ = s.refresher.Refresh(ctx)
	return nil
}

func (s *PurifierService) ensureKnown(ctx context.Context, serial string) error {
	d, err := s.devices.Get(ctx, serial)
	if err != nil {
		return err
	}
	if d.Serial == "" {
		return ErrDeviceNotFound
	}
	return nil
}

func (s *PurifierService) logCommand(ctx context.Context, serial, eventType, desc string, meta map[string]any) {
	_ = s.events.Append(ctx, models.PurifierEvent{
		Serial:      serial,
		OccurredAt:  time.Now().UTC(),
		Type:        eventType,
		Description: desc,
		Metadata:    meta,
	})
}
