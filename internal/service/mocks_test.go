package service

import (
	"context"
	"sync"
	"time"

	"molekule_bridge/internal/models"
	"molekule_bridge/internal/molekule"
)

// fakeClient is a scriptable CloudClient. Command calls are recorded;
// release, when set, blocks Devices until closed so tests can hold a poll
// in flight.
type fakeClient struct {
	mu sync.Mutex

	devicesPayload molekule.DevicesPayload
	devicesErr     error
	sensorPayload  molekule.SensorDataPayload
	sensorErr      error
	commandErr     error

	release chan struct{}

	devicesCalls int
	sensorCalls  []string
	powerCalls   []bool
	speedCalls   []int
	smartCalls   []bool
}

func (f *fakeClient) Devices(ctx context.Context) (molekule.DevicesPayload, error) {
	f.mu.Lock()
	f.devicesCalls++
	release := f.release
	f.mu.Unlock()
	if release != nil {
		<-release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.devicesPayload, f.devicesErr
}

func (f *fakeClient) SensorData(ctx context.Context, serial string) (molekule.SensorDataPayload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sensorCalls = append(f.sensorCalls, serial)
	return f.sensorPayload, f.sensorErr
}

func (f *fakeClient) SetPower(ctx context.Context, serial string, on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.powerCalls = append(f.powerCalls, on)
	return f.commandErr
}

func (f *fakeClient) SetFanSpeed(ctx context.Context, serial string, speed int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.speedCalls = append(f.speedCalls, speed)
	return f.commandErr
}

func (f *fakeClient) SetSmartMode(ctx context.Context, serial string, silent bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.smartCalls = append(f.smartCalls, silent)
	return f.commandErr
}

// fakeDeviceRepo is an in-memory DeviceRepo.
type fakeDeviceRepo struct {
	mu       sync.Mutex
	byserial map[string]models.Device

	saveErr   error
	availErr  error
	lastAvail *bool
}

func newFakeDeviceRepo() *fakeDeviceRepo {
	return &fakeDeviceRepo{byserial: make(map[string]models.Device)}
}

func (f *fakeDeviceRepo) Save(ctx context.Context, d models.Device) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byserial[d.Serial] = d
	return nil
}

func (f *fakeDeviceRepo) Get(ctx context.Context, serial string) (models.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byserial[serial], nil
}

func (f *fakeDeviceRepo) List(ctx context.Context) ([]models.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Device, 0, len(f.byserial))
	for _, d := range f.byserial {
		out = append(out, d)
	}
	return out, nil
}

func (f *fakeDeviceRepo) SetAvailability(ctx context.Context, available bool, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastAvail = &available
	for k, d := range f.byserial {
		d.Available = available
		f.byserial[k] = d
	}
	return f.availErr
}

// fakeSnapshotRepo is an in-memory SnapshotRepo keeping the latest batch.
type fakeSnapshotRepo struct {
	mu     sync.Mutex
	latest map[string]models.SensorBatch
	saves  int
}

func newFakeSnapshotRepo() *fakeSnapshotRepo {
	return &fakeSnapshotRepo{latest: make(map[string]models.SensorBatch)}
}

func (f *fakeSnapshotRepo) Save(ctx context.Context, b models.SensorBatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	f.latest[b.Serial] = b
	return nil
}

func (f *fakeSnapshotRepo) Latest(ctx context.Context, serial string) (models.SensorBatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latest[serial], nil
}

// fakeEventRepo records appended events in order.
type fakeEventRepo struct {
	mu     sync.Mutex
	events []models.PurifierEvent
}

func (f *fakeEventRepo) Append(ctx context.Context, e models.PurifierEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
	return nil
}

func (f *fakeEventRepo) List(ctx context.Context, from, to time.Time, typ string) ([]models.PurifierEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.PurifierEvent, 0, len(f.events))
	for _, e := range f.events {
		if typ != "" && e.Type != typ {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (f *fakeEventRepo) byType(typ string) []models.PurifierEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.PurifierEvent
	for _, e := range f.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

// fakeRecorder counts metric callbacks.
type fakeRecorder struct {
	mu       sync.Mutex
	devices  int
	batches  int
	pollOK   int
	pollFail int
}

func (f *fakeRecorder) RecordDevice(d models.Device) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.devices++
}

func (f *fakeRecorder) RecordBatch(b models.SensorBatch) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches++
}

func (f *fakeRecorder) RecordPoll(success bool, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if success {
		f.pollOK++
	} else {
		f.pollFail++
	}
}

// fakeRefresher records Refresh calls from commands.
type fakeRefresher struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeRefresher) Refresh(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.err
}
