package molekule

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// newAuthServer fakes the Cognito InitiateAuth endpoint. Each call hands out
// a fresh token so tests can observe re-authentication.
func newAuthServer(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/x-amz-json-1.1" {
			t.Errorf("auth content type = %q", ct)
		}
		if target := r.Header.Get("X-Amz-Target"); target != "AWSCognitoIdentityProviderService.InitiateAuth" {
			t.Errorf("auth target = %q", target)
		}
		n := calls.Add(1)
		var req struct {
			AuthFlow       string            `json:"AuthFlow"`
			ClientId       string            `json:"ClientId"`
			AuthParameters map[string]string `json:"AuthParameters"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode auth request: %v", err)
		}
		if req.AuthFlow == "USER_PASSWORD_AUTH" && req.AuthParameters["USERNAME"] == "" {
			t.Errorf("missing USERNAME in %+v", req.AuthParameters)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"AuthenticationResult": map[string]any{
				"IdToken":      fmt.Sprintf("token-%d", n),
				"RefreshToken": "refresh-1",
				"ExpiresIn":    3600,
			},
		})
	}))
}

func newTestClient(t *testing.T, apiURL, authURL string) *Client {
	t.Helper()
	c, err := NewClient(Config{
		Email:    "user@example.com",
		Password: "secret",
		BaseURL:  apiURL,
		AuthURL:  authURL,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestClient_Devices_AuthenticatesAndSendsHeaders(t *testing.T) {
	var authCalls atomic.Int32
	auth := newAuthServer(t, &authCalls)
	defer auth.Close()

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "token-1" {
			t.Errorf("Authorization = %q", got)
		}
		if got := r.Header.Get("x-api-version"); got != "1.0" {
			t.Errorf("x-api-version = %q", got)
		}
		_, _ = w.Write([]byte(`{"content":[{"serialNumber":"P1","name":"Bedroom"}]}`))
	}))
	defer api.Close()

	c := newTestClient(t, api.URL, auth.URL)

	payload, err := c.Devices(context.Background())
	if err != nil {
		t.Fatalf("Devices: %v", err)
	}
	if len(payload.Content) != 1 || payload.Content[0].SerialNumber != "P1" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
	if authCalls.Load() != 1 {
		t.Fatalf("expected 1 auth call, got %d", authCalls.Load())
	}

	// Second request reuses the session.
	if _, err := c.Devices(context.Background()); err != nil {
		t.Fatalf("Devices (cached token): %v", err)
	}
	if authCalls.Load() != 1 {
		t.Fatalf("token should be cached, auth calls = %d", authCalls.Load())
	}
}

func TestClient_Devices_RetriesOnceAfter401(t *testing.T) {
	var authCalls atomic.Int32
	auth := newAuthServer(t, &authCalls)
	defer auth.Close()

	var apiCalls atomic.Int32
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if apiCalls.Add(1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		// The retry must carry a fresh token, not the rejected one.
		if got := r.Header.Get("Authorization"); got == "token-1" {
			t.Errorf("retry reused rejected token")
		}
		_, _ = w.Write([]byte(`{"content":[]}`))
	}))
	defer api.Close()

	c := newTestClient(t, api.URL, auth.URL)

	if _, err := c.Devices(context.Background()); err != nil {
		t.Fatalf("Devices: %v", err)
	}
	if apiCalls.Load() != 2 {
		t.Fatalf("expected exactly one retry, api calls = %d", apiCalls.Load())
	}
	if authCalls.Load() != 2 {
		t.Fatalf("expected re-auth after 401, auth calls = %d", authCalls.Load())
	}
}

func TestClient_Devices_AuthErrorWhenStill401(t *testing.T) {
	var authCalls atomic.Int32
	auth := newAuthServer(t, &authCalls)
	defer auth.Close()

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer api.Close()

	c := newTestClient(t, api.URL, auth.URL)

	_, err := c.Devices(context.Background())
	if !IsAuthError(err) {
		t.Fatalf("expected AuthError, got %v", err)
	}
	if IsTransient(err) {
		t.Fatalf("auth errors must not be transient")
	}
}

func TestClient_Devices_APIErrorClassification(t *testing.T) {
	var authCalls atomic.Int32
	auth := newAuthServer(t, &authCalls)
	defer auth.Close()

	var status atomic.Int32
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(status.Load()))
	}))
	defer api.Close()

	c := newTestClient(t, api.URL, auth.URL)

	status.Store(http.StatusInternalServerError)
	_, err := c.Devices(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusInternalServerError {
		t.Fatalf("expected 500 APIError, got %v", err)
	}
	if !IsTransient(err) {
		t.Fatalf("5xx should be transient")
	}

	status.Store(http.StatusNotFound)
	_, err = c.Devices(context.Background())
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusNotFound {
		t.Fatalf("expected 404 APIError, got %v", err)
	}
	if IsTransient(err) {
		t.Fatalf("404 should not be transient")
	}
}

func TestClient_Devices_TransportErrorIsTransient(t *testing.T) {
	var authCalls atomic.Int32
	auth := newAuthServer(t, &authCalls)
	defer auth.Close()

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	api.Close() // refuse connections

	c := newTestClient(t, api.URL, auth.URL)

	_, err := c.Devices(context.Background())
	if err == nil {
		t.Fatal("expected connection error")
	}
	if !IsTransient(err) {
		t.Fatalf("transport failure should be transient: %v", err)
	}
	if IsAuthError(err) {
		t.Fatalf("transport failure is not an auth error: %v", err)
	}
}

func TestClient_SensorData_BuildsHourWindow(t *testing.T) {
	var authCalls atomic.Int32
	auth := newAuthServer(t, &authCalls)
	defer auth.Close()

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/P1/sensordata") {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("aggregation") != "false" || q.Get("resolution") != "5" {
			t.Errorf("unexpected query %q", r.URL.RawQuery)
		}
		var from, to int64
		_, _ = fmt.Sscan(q.Get("fromDate"), &from)
		_, _ = fmt.Sscan(q.Get("toDate"), &to)
		if to-from != time.Hour.Milliseconds() {
			t.Errorf("window = %d ms", to-from)
		}
		_, _ = w.Write([]byte(`{"sensorData":[{"type":"PM2_5","sensorDataValue":[{"t":1,"v":3}]}]}`))
	}))
	defer api.Close()

	c := newTestClient(t, api.URL, auth.URL)

	payload, err := c.SensorData(context.Background(), "P1")
	if err != nil {
		t.Fatalf("SensorData: %v", err)
	}
	if len(payload.SensorData) != 1 || payload.SensorData[0].Type != "PM2_5" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestClient_Commands_PostExpectedBodies(t *testing.T) {
	var authCalls atomic.Int32
	auth := newAuthServer(t, &authCalls)
	defer auth.Close()

	bodies := map[string]string{}
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		bodies[r.URL.Path] = string(b)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer api.Close()

	c := newTestClient(t, api.URL, auth.URL)
	ctx := context.Background()

	if err := c.SetPower(ctx, "P1", true); err != nil {
		t.Fatalf("SetPower: %v", err)
	}
	if err := c.SetFanSpeed(ctx, "P1", 4); err != nil {
		t.Fatalf("SetFanSpeed: %v", err)
	}
	if err := c.SetSmartMode(ctx, "P1", true); err != nil {
		t.Fatalf("SetSmartMode: %v", err)
	}

	if got := bodies["/P1/actions/set-power-status"]; !strings.Contains(got, `"status":"on"`) {
		t.Fatalf("power body = %q", got)
	}
	if got := bodies["/P1/actions/set-fan-speed"]; !strings.Contains(got, `"fanSpeed":4`) {
		t.Fatalf("speed body = %q", got)
	}
	if got := bodies["/P1/actions/enable-smart-mode"]; !strings.Contains(got, `"silent":"1"`) {
		t.Fatalf("smart body = %q", got)
	}
}
