// Package client is the worker agent's JSON-over-HTTP client for the
// control plane (spec.md §4.9): register, heartbeat, and fetch the
// worker's DB/Redis connection config.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client wraps a plain JSON-over-HTTP connection to the control plane.
// Unlike a long-lived gRPC channel, this is stateless between calls — the
// wire protocol is explicitly "stable across agent versions: unknown
// fields ignored" (spec.md §4.9), so there's no handshake to hold open.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a Client pointed at the control plane's base URL
// (SERVER_URL, injected into every task container per spec.md §6).
func NewClient(baseURL string) *Client {
	return &Client{baseURL: baseURL, http: &http.Client{Timeout: 10 * time.Second}}
}

type RegisterRequest struct {
	Name    string `json:"name"`
	IsLocal bool   `json:"is_local"`
}

type RegisterResponse struct {
	WorkerID string `json:"worker_id"`
	Name     string `json:"name"`
	Created  bool   `json:"created"`
}

// Register calls POST /workers/register.
func (c *Client) Register(ctx context.Context, name string, isLocal bool) (RegisterResponse, error) {
	var resp RegisterResponse
	err := c.postJSON(ctx, "/workers/register", RegisterRequest{Name: name, IsLocal: isLocal}, &resp)
	return resp, err
}

type HeartbeatRequest struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemPercent float64 `json:"mem_percent"`
	Version    string  `json:"version"`
}

type HeartbeatResponse struct {
	Status        string `json:"status"`
	NeedUpdate    bool   `json:"need_update"`
	ServerVersion string `json:"server_version"`
}

// Heartbeat calls POST /workers/{id}/heartbeat.
func (c *Client) Heartbeat(ctx context.Context, workerID string, cpu, mem float64, version string) (HeartbeatResponse, error) {
	var resp HeartbeatResponse
	path := fmt.Sprintf("/workers/%s/heartbeat", workerID)
	err := c.postJSON(ctx, path, HeartbeatRequest{CPUPercent: cpu, MemPercent: mem, Version: version}, &resp)
	return resp, err
}

type WorkersConfigResponse struct {
	DB struct {
		Host     string `json:"host"`
		Port     int    `json:"port"`
		Name     string `json:"name"`
		User     string `json:"user"`
		Password string `json:"password"`
	} `json:"db"`
	RedisURL string `json:"redisUrl"`
	Paths    struct {
		Results string `json:"results"`
		Logs    string `json:"logs"`
	} `json:"paths"`
	Logging struct {
		Level                string `json:"level"`
		EnableCommandLogging bool   `json:"enableCommandLogging"`
	} `json:"logging"`
	Debug bool `json:"debug"`
}

// WorkersConfig calls GET /workers/config?is_local=<isLocal>.
func (c *Client) WorkersConfig(ctx context.Context, isLocal bool) (WorkersConfigResponse, error) {
	var resp WorkersConfigResponse
	path := fmt.Sprintf("/workers/config?is_local=%t", isLocal)
	err := c.getJSON(ctx, path, &resp)
	return resp, err
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return fmt.Errorf("client: encode %s: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return fmt.Errorf("client: build request %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("client: build request %s: %w", path, err)
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("client: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("client: %s %s: status %d: %s", req.Method, req.URL.Path, resp.StatusCode, string(b))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("client: decode %s: %w", req.URL.Path, err)
	}
	return nil
}
