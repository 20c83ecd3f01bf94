package worker

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

const submitRateCategory = "worker.submit"

// HTTPDoer describes the HTTP client used by the adapter.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type httpAdapter struct {
	baseURL string
	apiKey  string
	client  HTTPDoer
	limiter *ratelimit.Service
}

// NewHTTPAdapter constructs an adapter talking to the transcoding service
// over HTTP. Submissions are gated by the provided rate limiter; a nil
// limiter disables gating.
func NewHTTPAdapter(cfg config.Worker, limiter *ratelimit.Service) Adapter {
	timeout := time.Duration(cfg.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &httpAdapter{
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:  strings.TrimSpace(cfg.APIKey),
		client:  &http.Client{Timeout: timeout},
		limiter: limiter,
	}
}

// NewHTTPAdapterWithClient is the test seam for injecting an HTTP client.
func NewHTTPAdapterWithClient(baseURL, apiKey string, client HTTPDoer, limiter *ratelimit.Service) Adapter {
	return &httpAdapter{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:  strings.TrimSpace(apiKey),
		client:  client,
		limiter: limiter,
	}
}

type submitResponse struct {
	ID string `json:"id"`
}

type pollResponse struct {
	Status    string  `json:"status"`
	Progress  float64 `json:"progress"`
	OutputURL string  `json:"output_url"`
	Error     string  `json:"error"`
}

func (a *httpAdapter) Submit(ctx context.Context, req Request) (string, error) {
	if a.baseURL == "" {
		return "", services.Wrap(services.ErrConfiguration, "worker", "submit", "base url not configured", nil)
	}
	if err := a.limiter.Wait(ctx, submitRateCategory); err != nil {
		return "", services.Wrap(services.ErrTransient, "worker", "submit", "rate limit wait interrupted", err)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "worker", "submit", "encode request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/jobs", bytes.NewReader(body))
	if err != nil {
		return "", services.Wrap(services.ErrExternalService, "worker", "submit", "build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	a.authorize(httpReq)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return "", services.Wrap(services.ErrExternalService, "worker", "submit", "send request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		return "", services.Wrap(services.ErrExternalService, "worker", "submit",
			fmt.Sprintf("transcoder returned %d: %s", resp.StatusCode, readSnippet(resp.Body)), nil)
	}

	var decoded submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", services.Wrap(services.ErrExternalService, "worker", "submit", "malformed response", err)
	}
	if strings.TrimSpace(decoded.ID) == "" {
		return "", services.Wrap(services.ErrExternalService, "worker", "submit", "response missing job id", nil)
	}
	return decoded.ID, nil
}

func (a *httpAdapter) Poll(ctx context.Context, externalID string) (PollResult, error) {
	if a.baseURL == "" {
		return PollResult{}, services.Wrap(services.ErrConfiguration, "worker", "poll", "base url not configured", nil)
	}

	pollURL := a.baseURL + "/v1/jobs/" + url.PathEscape(externalID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, pollURL, nil)
	if err != nil {
		return PollResult{}, services.Wrap(services.ErrExternalService, "worker", "poll", "build request", err)
	}
	a.authorize(httpReq)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return PollResult{}, services.Wrap(services.ErrExternalService, "worker", "poll", "send request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		return PollResult{}, services.Wrap(services.ErrExternalService, "worker", "poll",
			fmt.Sprintf("transcoder returned %d: %s", resp.StatusCode, readSnippet(resp.Body)), nil)
	}

	var decoded pollResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return PollResult{}, services.Wrap(services.ErrExternalService, "worker", "poll", "malformed response", err)
	}
	return PollResult{
		Status:       decoded.Status,
		Progress:     decoded.Progress,
		OutputRef:    decoded.OutputURL,
		ErrorMessage: decoded.Error,
	}, nil
}

func (a *httpAdapter) authorize(req *http.Request) {
	if a.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.apiKey)
	}
}

func readSnippet(r io.Reader) string {
	body, _ := io.ReadAll(io.LimitReader(r, 2048))
	return strings.TrimSpace(string(body))
}
