package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"reelpipe/internal/config"
)

// commandContext lazily loads configuration and hands out an API client for
// the running daemon.
type commandContext struct {
	configFlag *string

	cfg        *config.Config
	configPath string
	loaded     bool
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	if c.loaded {
		return c.cfg, nil
	}
	flag := ""
	if c.configFlag != nil {
		flag = *c.configFlag
	}
	cfg, path, _, err := config.Load(flag)
	if err != nil {
		return nil, err
	}
	c.cfg = cfg
	c.configPath = path
	c.loaded = true
	return cfg, nil
}

func (c *commandContext) client() (*apiClient, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, fmt.Errorf("paths.api_bind is not configured; the daemon API is disabled")
	}
	return &apiClient{
		baseURL: "http://" + bind,
		token:   cfg.Paths.APIToken,
		client:  &http.Client{Timeout: 30 * time.Second},
	}, nil
}

type apiClient struct {
	baseURL string
	token   string
	client  *http.Client
}

func (a *apiClient) get(path string, out any) error {
	return a.do(http.MethodGet, path, nil, out)
}

func (a *apiClient) post(path string, body, out any) error {
	return a.do(http.MethodPost, path, body, out)
}

func (a *apiClient) do(method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, a.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("is the daemon running? %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s", apiErr.Error)
		}
		return fmt.Errorf("daemon returned %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
