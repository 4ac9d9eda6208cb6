package govee

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/joshp123/humidistat/internal/config"
	"github.com/joshp123/humidistat/internal/rate"
)

const (
	requestTimeout = 10 * time.Second
	apiKeyHeader   = "Govee-API-Key"

	statePath   = "/router/api/v1/device/state"
	controlPath = "/router/api/v1/device/control"
)

// ErrCapabilityNotFound is returned when a state reply lacks the requested capability.
var ErrCapabilityNotFound = errors.New("capability not found")

// StatusError reports a reply with a status other than 200.
type StatusError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("request %s: status %d", e.Endpoint, e.StatusCode)
	}
	return fmt.Sprintf("request %s: status %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

type Client struct {
	baseURL      string
	apiKey       string
	httpClient   *http.Client
	metrics      *clientMetrics
	newRequestID func() string
}

func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("govee base_url is required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("govee api key is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = requestTimeout
	}

	decl := rate.Provider("govee").
		MaxRequestsPer(rate.Minute, cfg.PerMinute).
		MaxRequestsPer(rate.Day, cfg.PerDay).
		BudgetFloor(rate.Day, 0).
		ReadHeaders(rate.GoveeHeaders())

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		httpClient: rate.WrapHTTP(decl, &http.Client{
			Timeout: timeout,
		}),
		metrics:      newClientMetrics(),
		newRequestID: uuid.NewString,
	}, nil
}

// State queries the current capability states of a device.
func (c *Client) State(ctx context.Context, dev config.Device) (DeviceState, error) {
	body := request{
		RequestID: c.newRequestID(),
		Payload:   devicePayload{SKU: dev.SKU, Device: dev.Device},
	}
	_, payload, err := c.post(ctx, statePath, body)
	if err != nil {
		return DeviceState{}, err
	}

	var state DeviceState
	if err := json.Unmarshal(payload, &state); err != nil {
		return DeviceState{}, fmt.Errorf("decode %s: %w", statePath, err)
	}
	return state, nil
}

// Humidity returns the sensorHumidity value reported for dev.
func (c *Client) Humidity(ctx context.Context, dev config.Device) (float64, error) {
	state, err := c.State(ctx, dev)
	if err != nil {
		return 0, err
	}
	capability, ok := state.Capability(HumidityInstance)
	if !ok {
		return 0, fmt.Errorf("%s: %w", HumidityInstance, ErrCapabilityNotFound)
	}
	return capability.Float()
}

// Control sends a capability instruction to dev and returns the HTTP status.
// Transport failures return status 0.
func (c *Client) Control(ctx context.Context, dev config.Device, capability Capability) (int, error) {
	body := request{
		RequestID: c.newRequestID(),
		Payload: devicePayload{
			SKU:        dev.SKU,
			Device:     dev.Device,
			Capability: &capability,
		},
	}
	status, _, err := c.post(ctx, controlPath, body)
	return status, err
}

// Collectors exposes the client's request metrics.
func (c *Client) Collectors() []prometheus.Collector {
	return c.metrics.collectors()
}

// LastOutcome returns when the most recent request finished and its error.
func (c *Client) LastOutcome() (time.Time, error) {
	return c.metrics.last()
}

func (c *Client) post(ctx context.Context, path string, body any) (int, []byte, error) {
	started := time.Now()
	status, payload, err := c.do(ctx, path, body)
	c.metrics.observe(path, status, time.Since(started), err)
	return status, payload, err
}

func (c *Client) do(ctx context.Context, path string, body any) (int, []byte, error) {
	endpoint, err := url.JoinPath(c.baseURL, path)
	if err != nil {
		return 0, nil, fmt.Errorf("build url: %w", err)
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return 0, nil, fmt.Errorf("encode %s: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(apiKeyHeader, c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("request %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read %s: %w", endpoint, err)
	}

	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, payload, &StatusError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(payload)),
		}
	}

	return resp.StatusCode, payload, nil
}
