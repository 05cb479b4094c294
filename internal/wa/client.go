package wa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/i9placesolutions/pulse-salon-manager-sub001/internal/metrics"
)

// Instance statuses reported by the BSP.
const (
	StatusConnected    = "connected"
	StatusDisconnected = "disconnected"
)

// Instance mirrors the instance object returned by the BSP API.
type Instance struct {
	Token       string `json:"token,omitempty"`
	Name        string `json:"name,omitempty"`
	Status      string `json:"status,omitempty"`
	QRCode      string `json:"qrcode,omitempty"`
	PairCode    string `json:"paircode,omitempty"`
	ProfileName string `json:"profileName,omitempty"`
}

type instanceEnvelope struct {
	Instance *Instance `json:"instance"`
	Error    string    `json:"error,omitempty"`
	Message  string    `json:"message,omitempty"`
}

// Config holds BSP client configuration.
type Config struct {
	BaseURL    string
	AdminToken string
	Timeout    time.Duration
}

// Client provides typed access to the WhatsApp BSP instance API. Instance
// scoped calls authenticate with the per-instance token header; instance
// creation uses the account admin token.
type Client struct {
	logger     *slog.Logger
	baseURL    string
	adminToken string
	timeout    time.Duration
	http       *http.Client
	metrics    *metrics.Metrics
}

// NewClient creates a new BSP client.
func NewClient(cfg Config, logger *slog.Logger, m *metrics.Metrics) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		logger:     logger.With("component", "bsp"),
		baseURL:    base,
		adminToken: cfg.AdminToken,
		timeout:    timeout,
		http:       &http.Client{Timeout: timeout},
		metrics:    m,
	}
}

// CreateInstance provisions a new instance and returns its token.
func (c *Client) CreateInstance(ctx context.Context, name string) (*Instance, error) {
	payload := map[string]string{"name": name, "systemName": "pulse"}
	inst, err := c.do(ctx, http.MethodPost, "/instance/init", c.adminToken, "admintoken", payload)
	if err != nil {
		return nil, err
	}
	if inst.Token == "" {
		return nil, fmt.Errorf("create instance %s: no token in response", name)
	}
	if inst.Name == "" {
		inst.Name = name
	}
	return inst, nil
}

// Connect asks the BSP to start pairing; the response carries a QR code
// and/or pair code until the device scans it.
func (c *Client) Connect(ctx context.Context, token string) (*Instance, error) {
	return c.do(ctx, http.MethodPost, "/instance/connect", token, "token", map[string]string{})
}

// Status fetches the current connection state of an instance.
func (c *Client) Status(ctx context.Context, token string) (*Instance, error) {
	return c.do(ctx, http.MethodGet, "/instance/status", token, "token", nil)
}

// Disconnect tears down the instance's session on the BSP side.
func (c *Client) Disconnect(ctx context.Context, token string) error {
	_, err := c.do(ctx, http.MethodPost, "/instance/disconnect", token, "token", map[string]string{})
	return err
}

func (c *Client) do(ctx context.Context, method, endpoint, credential, header string, payload any) (*Instance, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", endpoint, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", endpoint, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if credential != "" {
		req.Header.Set(header, credential)
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	status := "error"
	if err == nil {
		status = fmt.Sprintf("%d", resp.StatusCode)
	}
	if c.metrics != nil {
		c.metrics.BSPRequests.WithLabelValues(endpoint, status).Inc()
		c.metrics.BSPLatency.WithLabelValues(endpoint, status).Observe(time.Since(started).Seconds())
	}
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", endpoint, err)
	}

	var env instanceEnvelope
	if len(data) > 0 {
		if err := json.Unmarshal(data, &env); err != nil {
			return nil, fmt.Errorf("decode %s response: %w", endpoint, err)
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := env.Error
		if msg == "" {
			msg = env.Message
		}
		if msg == "" {
			msg = strings.TrimSpace(string(data))
		}
		return nil, fmt.Errorf("%s returned %d: %s", endpoint, resp.StatusCode, msg)
	}

	if env.Instance == nil {
		env.Instance = &Instance{}
	}
	return env.Instance, nil
}
