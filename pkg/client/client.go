// Package client provides HTTP client functionality to communicate with the
// resman daemon. It doubles as the explorer's command transport and status
// source: Deliver satisfies dispatch.Transport, and IsReachable/Statuses
// satisfy serverstate.Source.
package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/quayside/resman/internal/dispatch"
	"github.com/quayside/resman/internal/resource"
)

// Client talks to a resman daemon over HTTP.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// Config holds client configuration.
type Config struct {
	BaseURL  string
	Timeout  time.Duration
	Logger   *slog.Logger // Optional logger for client operations
	TLS      *TLSClientConfig
	Insecure bool // Skip TLS verification
}

// TLSClientConfig holds TLS configuration for client.
type TLSClientConfig struct {
	Enabled    bool   // Enable TLS
	CACert     string // CA certificate file path
	ClientCert string // Client certificate file
	ClientKey  string // Client private key file
	ServerName string // Server name for verification
	SkipVerify bool   // Skip certificate verification
}

// DefaultConfig returns default client configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://127.0.0.1:8420",
		Timeout: 10 * time.Second,
	}
}

// New creates a new resman API client.
func New(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = "http://127.0.0.1:8420"
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	transport := &http.Transport{}
	if (config.TLS != nil && config.TLS.Enabled) || config.Insecure {
		tlsConfig, err := setupClientTLS(config)
		if err != nil {
			config.Logger.Error("TLS setup failed", "error", err)
		} else {
			transport.TLSClientConfig = tlsConfig
		}
	}

	return &Client{
		baseURL: config.BaseURL,
		logger:  config.Logger,
		client: &http.Client{
			Timeout:   config.Timeout,
			Transport: transport,
		},
	}
}

// IsReachable checks if the daemon is running and reachable.
func (c *Client) IsReachable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		c.logger.Debug("failed to create reachability request", "error", err)
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("daemon unreachable", "error", err)
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

// Statuses returns the runtime status of every resource the daemon supervises.
func (c *Client) Statuses(ctx context.Context) ([]resource.Status, error) {
	var out []resource.Status
	if err := c.getJSON(ctx, c.baseURL+"/status", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Status returns the runtime status of one resource.
func (c *Client) Status(ctx context.Context, name string) (resource.Status, error) {
	var out resource.Status
	err := c.getJSON(ctx, c.baseURL+"/status?name="+url.QueryEscape(name), &out)
	return out, err
}

// Start starts a registered resource.
func (c *Client) Start(ctx context.Context, name string) error {
	return c.doRequest(ctx, http.MethodPost, c.baseURL+"/resource/start?name="+url.QueryEscape(name), nil)
}

// Stop stops a running resource.
func (c *Client) Stop(ctx context.Context, name string) error {
	return c.doRequest(ctx, http.MethodPost, c.baseURL+"/resource/stop?name="+url.QueryEscape(name), nil)
}

// Restart restarts a resource.
func (c *Client) Restart(ctx context.Context, name string) error {
	return c.doRequest(ctx, http.MethodPost, c.baseURL+"/resource/restart?name="+url.QueryEscape(name), nil)
}

// SetConfig applies a partial configuration update.
func (c *Client) SetConfig(ctx context.Context, name string, patch resource.ConfigPatch) error {
	body, err := json.Marshal(dispatch.ConfigPayload{ResourceName: name, Config: patch})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	return c.doRequest(ctx, http.MethodPost, c.baseURL+"/resource/config", body)
}

// Rename renames a resource.
func (c *Client) Rename(ctx context.Context, from, to string) error {
	body, err := json.Marshal(dispatch.RenamePayload{From: from, To: to})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	return c.doRequest(ctx, http.MethodPost, c.baseURL+"/resource/rename", body)
}

// Delete stops and removes a resource.
func (c *Client) Delete(ctx context.Context, name string) error {
	return c.doRequest(ctx, http.MethodPost, c.baseURL+"/resource/delete?name="+url.QueryEscape(name), nil)
}

// Deliver maps a dispatched command to its HTTP route. It implements
// dispatch.Transport for explorer views backed by this client.
func (c *Client) Deliver(ctx context.Context, msg dispatch.Message) error {
	switch msg.Endpoint {
	case dispatch.EndpointStartResource:
		return c.Start(ctx, payloadName(msg.Payload))
	case dispatch.EndpointStopResource:
		return c.Stop(ctx, payloadName(msg.Payload))
	case dispatch.EndpointRestartResource:
		return c.Restart(ctx, payloadName(msg.Payload))
	case dispatch.EndpointDeleteResource:
		return c.Delete(ctx, payloadName(msg.Payload))
	case dispatch.EndpointSetResourceConfig:
		body, err := json.Marshal(msg.Payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		return c.doRequest(ctx, http.MethodPost, c.baseURL+"/resource/config", body)
	case dispatch.EndpointRenameResource:
		body, err := json.Marshal(msg.Payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		return c.doRequest(ctx, http.MethodPost, c.baseURL+"/resource/rename", body)
	default:
		return fmt.Errorf("unknown endpoint: %s", msg.Endpoint)
	}
}

func payloadName(p any) string {
	if s, ok := p.(string); ok {
		return s
	}
	return fmt.Sprint(p)
}

// setupClientTLS configures TLS settings for the HTTP client.
func setupClientTLS(config Config) (*tls.Config, error) {
	tlsConfig := &tls.Config{}
	if config.Insecure {
		tlsConfig.InsecureSkipVerify = true
		return tlsConfig, nil
	}
	if config.TLS != nil {
		if config.TLS.SkipVerify {
			tlsConfig.InsecureSkipVerify = true
		}
		if config.TLS.ServerName != "" {
			tlsConfig.ServerName = config.TLS.ServerName
		}
		if config.TLS.CACert != "" {
			if err := loadCACert(tlsConfig, config.TLS.CACert); err != nil {
				return nil, fmt.Errorf("failed to load CA certificate: %w", err)
			}
		}
		if config.TLS.ClientCert != "" && config.TLS.ClientKey != "" {
			cert, err := tls.LoadX509KeyPair(config.TLS.ClientCert, config.TLS.ClientKey)
			if err != nil {
				return nil, fmt.Errorf("failed to load client certificate: %w", err)
			}
			tlsConfig.Certificates = []tls.Certificate{cert}
		}
	}
	return tlsConfig, nil
}

func loadCACert(tlsConfig *tls.Config, caCertPath string) error {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return fmt.Errorf("failed to read CA certificate file: %w", err)
	}
	caCertPool := x509.NewCertPool()
	if !caCertPool.AppendCertsFromPEM(caCert) {
		return fmt.Errorf("failed to parse CA certificate")
	}
	tlsConfig.RootCAs = caCertPool
	return nil
}

func (c *Client) doRequest(ctx context.Context, method, reqURL string, body []byte) error {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL, rdr)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Error("HTTP request failed", "error", err, "url", reqURL)
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	return c.handleErrorResponse(resp)
}

func (c *Client) getJSON(ctx context.Context, reqURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if err := c.handleErrorResponse(resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) handleErrorResponse(resp *http.Response) error {
	if resp.StatusCode < 300 {
		return nil
	}
	var e struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&e); err == nil && e.Error != "" {
		return fmt.Errorf("daemon error (%d): %s", resp.StatusCode, e.Error)
	}
	return fmt.Errorf("daemon error: status %d", resp.StatusCode)
}
