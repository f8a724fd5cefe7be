package molekule

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	defaultBaseURL  = "https://api.molekule.com/users/me/devices/"
	defaultAuthURL  = "https://cognito-idp.us-west-2.amazonaws.com/"
	defaultClientID = "1ec4fa3oriciupg94ugoi84kkk"

	apiVersion     = "1.0"
	requestTimeout = 30 * time.Second

	// Cloud tokens live an hour; refresh a little early so a poll never
	// starts with a token about to expire mid-flight.
	tokenSlack      = 5 * time.Minute
	defaultTokenTTL = time.Hour

	sensorWindow     = time.Hour
	sensorResolution = 5
)

// Config holds the credentials and optional endpoint overrides for the
// cloud client. Overrides exist for tests.
type Config struct {
	Email    string
	Password string
	BaseURL  string
	AuthURL  string
	ClientID string
}

// Session is the bearer token state. Owned exclusively by the Client.
type Session struct {
	IDToken      string
	RefreshToken string
	Expiry       time.Time
}

func (s Session) valid(now time.Time) bool {
	return s.IDToken != "" && now.Before(s.Expiry.Add(-tokenSlack))
}

// Client talks to the Molekule cloud API. Safe for concurrent use: session
// acquisition and refresh are serialized so a poll and a user command never
// race to re-authenticate.
type Client struct {
	baseURL  string
	authURL  string
	clientID string
	email    string
	password string

	httpClient *http.Client

	mu      sync.Mutex
	session Session
}

func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Email) == "" || cfg.Password == "" {
		return nil, fmt.Errorf("molekule email and password are required")
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	authURL := strings.TrimSpace(cfg.AuthURL)
	if authURL == "" {
		authURL = defaultAuthURL
	}
	clientID := strings.TrimSpace(cfg.ClientID)
	if clientID == "" {
		clientID = defaultClientID
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/") + "/",
		authURL:    authURL,
		clientID:   clientID,
		email:      cfg.Email,
		password:   cfg.Password,
		httpClient: &http.Client{Timeout: requestTimeout},
	}, nil
}

// Authenticate performs a full credential login and replaces the session.
func (c *Client) Authenticate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authenticateLocked(ctx)
}

// cognitoAuthResult is the subset of the Cognito InitiateAuth response the
// client needs.
type cognitoAuthResult struct {
	AuthenticationResult struct {
		IdToken      string `json:"IdToken"`
		RefreshToken string `json:"RefreshToken"`
		ExpiresIn    int    `json:"ExpiresIn"`
	} `json:"AuthenticationResult"`
}

func (c *Client) authenticateLocked(ctx context.Context) error {
	result, err := c.initiateAuth(ctx, "USER_PASSWORD_AUTH", map[string]string{
		"USERNAME": c.email,
		"PASSWORD": c.password,
	})
	if err != nil {
		return err
	}
	c.session = Session{
		IDToken:      result.AuthenticationResult.IdToken,
		RefreshToken: result.AuthenticationResult.RefreshToken,
		Expiry:       expiryFrom(result.AuthenticationResult.ExpiresIn),
	}
	return nil
}

func (c *Client) refreshLocked(ctx context.Context) error {
	if c.session.RefreshToken == "" {
		return c.authenticateLocked(ctx)
	}
	result, err := c.initiateAuth(ctx, "REFRESH_TOKEN_AUTH", map[string]string{
		"REFRESH_TOKEN": c.session.RefreshToken,
	})
	if err != nil {
		// Refresh tokens get revoked; fall back to a full login.
		return c.authenticateLocked(ctx)
	}
	c.session.IDToken = result.AuthenticationResult.IdToken
	c.session.Expiry = expiryFrom(result.AuthenticationResult.ExpiresIn)
	return nil
}

func (c *Client) initiateAuth(ctx context.Context, flow string, params map[string]string) (cognitoAuthResult, error) {
	body, err := json.Marshal(map[string]any{
		"AuthFlow":       flow,
		"ClientId":       c.clientID,
		"AuthParameters": params,
	})
	if err != nil {
		return cognitoAuthResult{}, &AuthError{Err: fmt.Errorf("marshal auth request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.authURL, bytes.NewReader(body))
	if err != nil {
		return cognitoAuthResult{}, &AuthError{Err: fmt.Errorf("build auth request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/x-amz-json-1.1")
	req.Header.Set("X-Amz-Target", "AWSCognitoIdentityProviderService.InitiateAuth")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return cognitoAuthResult{}, &AuthError{Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return cognitoAuthResult{}, &AuthError{Err: fmt.Errorf("read auth response: %w", err)}
	}
	if resp.StatusCode != http.StatusOK {
		return cognitoAuthResult{}, &AuthError{Err: fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))}
	}

	var result cognitoAuthResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return cognitoAuthResult{}, &AuthError{Err: fmt.Errorf("decode auth response: %w", err)}
	}
	if result.AuthenticationResult.IdToken == "" {
		return cognitoAuthResult{}, &AuthError{Err: fmt.Errorf("auth response missing id token")}
	}
	return result, nil
}

// token returns a valid bearer token, refreshing or re-authenticating first
// when the current one is missing or near expiry.
func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session.valid(time.Now()) {
		return c.session.IDToken, nil
	}
	if err := c.refreshLocked(ctx); err != nil {
		return "", err
	}
	return c.session.IDToken, nil
}

// invalidate drops the session token if it is still the one that just got
// rejected, so the next call re-authenticates.
func (c *Client) invalidate(rejected string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session.IDToken == rejected {
		c.session.IDToken = ""
	}
}

// Devices fetches the account's device list with current control state.
func (c *Client) Devices(ctx context.Context) (DevicesPayload, error) {
	var payload DevicesPayload
	if err := c.doJSON(ctx, http.MethodGet, c.baseURL, nil, &payload); err != nil {
		return DevicesPayload{}, err
	}
	return payload, nil
}

// SensorData fetches the last hour of pollutant samples for one device.
func (c *Client) SensorData(ctx context.Context, serial string) (SensorDataPayload, error) {
	end := time.Now().UnixMilli()
	start := end - sensorWindow.Milliseconds()
	url := fmt.Sprintf("%s%s/sensordata?aggregation=false&fromDate=%d&resolution=%d&toDate=%d",
		c.baseURL, serial, start, sensorResolution, end)

	var payload SensorDataPayload
	if err := c.doJSON(ctx, http.MethodGet, url, nil, &payload); err != nil {
		return SensorDataPayload{}, err
	}
	return payload, nil
}

// SetPower turns the purifier on or off.
func (c *Client) SetPower(ctx context.Context, serial string, on bool) error {
	status := "off"
	if on {
		status = "on"
	}
	url := fmt.Sprintf("%s%s/actions/set-power-status", c.baseURL, serial)
	return c.doJSON(ctx, http.MethodPost, url, map[string]any{"status": status}, nil)
}

// SetFanSpeed sets a manual fan speed (1..6). The cloud treats any explicit
// speed as leaving smart mode.
func (c *Client) SetFanSpeed(ctx context.Context, serial string, speed int) error {
	url := fmt.Sprintf("%s%s/actions/set-fan-speed", c.baseURL, serial)
	return c.doJSON(ctx, http.MethodPost, url, map[string]any{"fanSpeed": speed}, nil)
}

// SetSmartMode enables automatic mode, optionally constrained to the quiet
// fan range.
func (c *Client) SetSmartMode(ctx context.Context, serial string, silent bool) error {
	flag := "0"
	if silent {
		flag = "1"
	}
	url := fmt.Sprintf("%s%s/actions/enable-smart-mode", c.baseURL, serial)
	return c.doJSON(ctx, http.MethodPost, url, map[string]any{"silent": flag}, nil)
}

// doJSON issues one authenticated request. A 401 gets a single transparent
// re-auth and retry; a second rejection surfaces as AuthError.
func (c *Client) doJSON(ctx context.Context, method, url string, body any, dest any) error {
	token, err := c.token(ctx)
	if err != nil {
		return err
	}

	payload, status, err := c.roundTrip(ctx, method, url, body, token)
	if err != nil {
		return err
	}
	if status == http.StatusUnauthorized {
		c.invalidate(token)
		token, err = c.token(ctx)
		if err != nil {
			return err
		}
		payload, status, err = c.roundTrip(ctx, method, url, body, token)
		if err != nil {
			return err
		}
		if status == http.StatusUnauthorized || status == http.StatusForbidden {
			return &AuthError{Err: fmt.Errorf("request rejected after re-auth: status %d", status)}
		}
	}
	if status < 200 || status >= 300 {
		return &APIError{Status: status, Body: string(payload)}
	}

	if dest != nil {
		if err := json.Unmarshal(payload, dest); err != nil {
			return fmt.Errorf("decode %s %s: %w", method, url, err)
		}
	}
	return nil
}

func (c *Client) roundTrip(ctx context.Context, method, url string, body any, token string) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, 0, fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", token)
	req.Header.Set("x-api-version", apiVersion)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, &APIError{Status: 0, Body: err.Error()}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, &APIError{Status: 0, Body: err.Error()}
	}
	return payload, resp.StatusCode, nil
}

func expiryFrom(expiresIn int) time.Time {
	ttl := time.Duration(expiresIn) * time.Second
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return time.Now().Add(ttl)
}
