package handlers

import (
	"context"
	"net/http"
	"time"

	"molekule_bridge/internal/models"
	"molekule_bridge/internal/service"

	"github.com/gin-gonic/gin"
)

// ---- Service Mocks ----

type mockAuth struct {
	signUpID      int
	signUpErr     error
	genTokenToken string
	genTokenErr   error
	parseID       int
	parseErr      error

	lastSignUpUsername string
	lastSignUpPassword string
	lastGenUsername    string
	lastGenPassword    string
	lastParseToken     string
}

func (m *mockAuth) SignUp(username, password string) (int, error) {
	m.lastSignUpUsername = username
	m.lastSignUpPassword = password
	return m.signUpID, m.signUpErr
}
func (m *mockAuth) GenerateToken(username, password string) (string, error) {
	m.lastGenUsername = username
	m.lastGenPassword = password
	return m.genTokenToken, m.genTokenErr
}
func (m *mockAuth) ParseToken(token string) (int, error) {
	m.lastParseToken = token
	return m.parseID, m.parseErr
}

type mockPurifier struct {
	setModeErr  error
	setSpeedErr error
	setPowerErr error

	lastSerial string
	lastMode   string
	lastSpeed  int
	lastOn     bool

	setModeCalls  int
	setSpeedCalls int
	setPowerCalls int
}

func (m *mockPurifier) SetMode(ctx context.Context, serial, mode string) error {
	m.setModeCalls++
	m.lastSerial = serial
	m.lastMode = mode
	return m.setModeErr
}
func (m *mockPurifier) SetSpeed(ctx context.Context, serial string, speed int) error {
	m.setSpeedCalls++
	m.lastSerial = serial
	m.lastSpeed = speed
	return m.setSpeedErr
}
func (m *mockPurifier) SetPower(ctx context.Context, serial string, on bool) error {
	m.setPowerCalls++
	m.lastSerial = serial
	m.lastOn = on
	return m.setPowerErr
}

type mockMonitoring struct {
	devices    []models.Device
	device     models.Device
	batch      models.SensorBatch
	listErr    error
	deviceErr  error
	batchErr   error
	lastSerial string
}

func (m *mockMonitoring) Devices(ctx context.Context) ([]models.Device, error) {
	return m.devices, m.listErr
}
func (m *mockMonitoring) Device(ctx context.Context, serial string) (models.Device, error) {
	m.lastSerial = serial
	return m.device, m.deviceErr
}
func (m *mockMonitoring) Readings(ctx context.Context, serial string) (models.SensorBatch, error) {
	m.lastSerial = serial
	return m.batch, m.batchErr
}

type mockEventLog struct {
	resp     []models.PurifierEvent
	err      error
	lastFrom time.Time
	lastTo   time.Time
	lastType string
}

func (m *mockEventLog) List(ctx context.Context, f service.LogFilter) ([]models.PurifierEvent, error) {
	m.lastFrom = f.From
	m.lastTo = f.To
	m.lastType = f.Type
	return m.resp, m.err
}

type mockCoordinator struct {
	refreshErr   error
	refreshCalls int
}

func (m *mockCoordinator) Run(ctx context.Context, tick time.Duration) {}
func (m *mockCoordinator) Refresh(ctx context.Context) error {
	m.refreshCalls++
	return m.refreshErr
}

// ---- Shared Test Helpers ----

func newTestRouter(s *service.Service) *gin.Engine {
	h := NewHandler(s, nil)
	gin.SetMode(gin.TestMode)
	return h.InitRoutes()
}

func authHeader(token string) http.Header {
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}
