// Package hosting talks to the video-hosting collaborator that owns playback
// visibility. The pipeline only flips a per-audience visibility flag; the
// hosting service decides how that maps onto its own delivery model.
package hosting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"reelpipe/internal/config"
	"reelpipe/internal/ratelimit"
	"reelpipe/internal/services"
)

const visibilityRateCategory = "hosting.visibility"

// Visibility is the access state of an asset for one audience scope.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// Service is the outbound boundary for visibility propagation.
type Service interface {
	SetVisibility(ctx context.Context, assetID, audience string, visibility Visibility) error
}

// HTTPDoer describes the HTTP client used by the hosting service.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type httpService struct {
	baseURL string
	apiKey  string
	client  HTTPDoer
	limiter *ratelimit.Service
}

// NewHTTPService constructs a hosting client from configuration.
func NewHTTPService(cfg config.Hosting, limiter *ratelimit.Service) Service {
	timeout := time.Duration(cfg.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &httpService{
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:  strings.TrimSpace(cfg.APIKey),
		client:  &http.Client{Timeout: timeout},
		limiter: limiter,
	}
}

// NewHTTPServiceWithClient is the test seam for injecting an HTTP client.
func NewHTTPServiceWithClient(baseURL, apiKey string, client HTTPDoer, limiter *ratelimit.Service) Service {
	return &httpService{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:  strings.TrimSpace(apiKey),
		client:  client,
		limiter: limiter,
	}
}

type visibilityRequest struct {
	Audience   string `json:"audience"`
	Visibility string `json:"visibility"`
}

func (s *httpService) SetVisibility(ctx context.Context, assetID, audience string, visibility Visibility) error {
	if s.baseURL == "" {
		return services.Wrap(services.ErrConfiguration, "hosting", "set visibility", "base url not configured", nil)
	}
	if err := s.limiter.Wait(ctx, visibilityRateCategory); err != nil {
		return services.Wrap(services.ErrTransient, "hosting", "set visibility", "rate limit wait interrupted", err)
	}

	body, err := json.Marshal(visibilityRequest{Audience: audience, Visibility: string(visibility)})
	if err != nil {
		return services.Wrap(services.ErrValidation, "hosting", "set visibility", "encode request", err)
	}

	endpoint := s.baseURL + "/v1/assets/" + url.PathEscape(assetID) + "/visibility"
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(body))
	if err != nil {
		return services.Wrap(services.ErrExternalService, "hosting", "set visibility", "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return services.Wrap(services.ErrExternalService, "hosting", "set visibility", "send request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return services.Wrap(services.ErrExternalService, "hosting", "set visibility",
			fmt.Sprintf("hosting returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))), nil)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
