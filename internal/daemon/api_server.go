package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"reelpipe/internal/config"
	"reelpipe/internal/jobs"
	"reelpipe/internal/logging"
	"reelpipe/internal/subscription"
	"reelpipe/internal/transcode"
)

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	if cfg == nil || d == nil {
		return nil, nil
	}
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, nil
	}

	srv := &apiServer{
		bind:   bind,
		logger: logger,
		daemon: d,
	}

	token := cfg.Paths.APIToken
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", authMiddleware(token, srv.handleStatus))
	mux.HandleFunc("/api/jobs", authMiddleware(token, srv.handleJobs))
	mux.HandleFunc("/api/jobs/", authMiddleware(token, srv.handleJob))
	mux.HandleFunc("/api/assets/", authMiddleware(token, srv.handleAsset))
	mux.HandleFunc("/api/process", authMiddleware(token, srv.handleProcess))
	mux.HandleFunc("/api/billing", authMiddleware(token, srv.handleBilling))

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

// addr returns the bound listen address, empty before start.
func (s *apiServer) addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return logging.NewNop()
}

type statusResponse struct {
	Running      bool   `json:"running"`
	PID          int    `json:"pid"`
	DBPath       string `json:"db_path"`
	LockFilePath string `json:"lock_file_path"`
	Jobs         struct {
		Total      int `json:"total"`
		Pending    int `json:"pending"`
		Processing int `json:"processing"`
		Completed  int `json:"completed"`
		Failed     int `json:"failed"`
	} `json:"jobs"`
}

type jobResponse struct {
	ID           string  `json:"id"`
	AssetID      string  `json:"asset_id"`
	Kind         string  `json:"kind"`
	Status       string  `json:"status"`
	Progress     float64 `json:"progress"`
	ExternalRef  string  `json:"external_ref,omitempty"`
	OutputRef    string  `json:"output_ref,omitempty"`
	ErrorMessage string  `json:"error_message,omitempty"`
	RetryCount   int     `json:"retry_count"`
	NeedsReview  bool    `json:"needs_review"`
	CreatedAt    string  `json:"created_at"`
	UpdatedAt    string  `json:"updated_at"`
	CompletedAt  string  `json:"completed_at,omitempty"`
}

type assetResponse struct {
	ID             string            `json:"id"`
	SourceRef      string            `json:"source_ref"`
	Status         string            `json:"status"`
	QualityOutputs map[string]string `json:"quality_outputs,omitempty"`
	ThumbnailRefs  []string          `json:"thumbnail_refs,omitempty"`
	ErrorMessage   string            `json:"error_message,omitempty"`
}

type processRequest struct {
	AssetID         string   `json:"asset_id"`
	SourceRef       string   `json:"source_ref"`
	Tiers           []string `json:"tiers"`
	ThumbnailCount  int      `json:"thumbnail_count"`
	DurationSeconds float64  `json:"duration_seconds"`
}

type processResponse struct {
	AssetID string   `json:"asset_id"`
	JobIDs  []string `json:"job_ids"`
}

type billingRequest struct {
	SubscriberID string `json:"subscriber_id"`
	Outcome      string `json:"outcome"`
}

type billingResponse struct {
	SubscriberID        string `json:"subscriber_id"`
	Status              string `json:"status"`
	PreviousStatus      string `json:"previous_status"`
	PaymentFailureCount int    `json:"payment_failure_count"`
	SyncJobID           string `json:"sync_job_id,omitempty"`
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	status := s.daemon.Status(r.Context())
	payload := statusResponse{
		Running:      status.Running,
		PID:          status.PID,
		DBPath:       status.DBPath,
		LockFilePath: status.LockFilePath,
	}
	payload.Jobs.Total = status.Jobs.Total
	payload.Jobs.Pending = status.Jobs.Pending
	payload.Jobs.Processing = status.Jobs.Processing
	payload.Jobs.Completed = status.Jobs.Completed
	payload.Jobs.Failed = status.Jobs.Failed
	s.writeJSON(w, http.StatusOK, payload)
}

func (s *apiServer) handleJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var statuses []jobs.Status
	for _, value := range r.URL.Query()["status"] {
		status, ok := jobs.ParseStatus(value)
		if !ok {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", value))
			return
		}
		statuses = append(statuses, status)
	}

	list, err := s.daemon.store.ListJobs(r.Context(), statuses...)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	payload := make([]jobResponse, 0, len(list))
	for _, job := range list {
		payload = append(payload, toJobResponse(job))
	}
	s.writeJSON(w, http.StatusOK, map[string][]jobResponse{"jobs": payload})
}

func (s *apiServer) handleJob(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		job, err := s.daemon.store.GetJob(r.Context(), id)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if job == nil {
			s.writeError(w, http.StatusNotFound, "job not found")
			return
		}
		s.writeJSON(w, http.StatusOK, toJobResponse(job))
	case action == "retry" && r.Method == http.MethodPost:
		s.handleJobRetry(w, r, id)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleJobRetry puts a failed job back in the pending queue. An operator
// retry also clears the review flag so the sweeper owns the job again.
func (s *apiServer) handleJobRetry(w http.ResponseWriter, r *http.Request, id string) {
	job, err := s.daemon.store.GetJob(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if job == nil {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if job.Status != jobs.StatusFailed {
		s.writeError(w, http.StatusConflict, fmt.Sprintf("job is %s, only failed jobs can be retried", job.Status))
		return
	}

	job.Status = jobs.StatusPending
	job.Progress = 0
	job.ErrorMessage = ""
	job.NeedsReview = false
	if err := s.daemon.store.UpdateJob(r.Context(), job); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, toJobResponse(job))
}

func (s *apiServer) handleAsset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/assets/")
	if id == "" || strings.Contains(id, "/") {
		s.writeError(w, http.StatusNotFound, "asset not found")
		return
	}
	asset, err := s.daemon.store.GetAsset(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if asset == nil {
		s.writeError(w, http.StatusNotFound, "asset not found")
		return
	}
	s.writeJSON(w, http.StatusOK, assetResponse{
		ID:             asset.ID,
		SourceRef:      asset.SourceRef,
		Status:         string(asset.Status),
		QualityOutputs: asset.QualityOutputs,
		ThumbnailRefs:  asset.ThumbnailRefs,
		ErrorMessage:   asset.ErrorMessage,
	})
}

func (s *apiServer) handleProcess(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req processRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	batch, err := s.daemon.Process(r.Context(), transcode.ProcessRequest{
		AssetID:         req.AssetID,
		SourceRef:       req.SourceRef,
		Tiers:           req.Tiers,
		ThumbnailCount:  req.ThumbnailCount,
		DurationSeconds: req.DurationSeconds,
	})
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, transcode.ErrBatchActive):
			status = http.StatusConflict
		case strings.Contains(err.Error(), "required"):
			status = http.StatusBadRequest
		}
		s.writeError(w, status, err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, processResponse{AssetID: batch.AssetID, JobIDs: batch.JobIDs})
}

func (s *apiServer) handleBilling(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req billingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	outcome, ok := subscription.ParseOutcome(req.Outcome)
	if !ok {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown outcome %q", req.Outcome))
		return
	}

	result, err := s.daemon.ApplyBillingEvent(r.Context(), req.SubscriberID, outcome)
	if err != nil {
		status := http.StatusInternalServerError
		if strings.Contains(err.Error(), "required") {
			status = http.StatusBadRequest
		}
		s.writeError(w, status, err.Error())
		return
	}

	payload := billingResponse{
		SubscriberID:        result.Subscriber.ID,
		Status:              string(result.Subscriber.Status),
		PreviousStatus:      string(result.Previous),
		PaymentFailureCount: result.Subscriber.PaymentFailureCount,
	}
	if result.SyncJob != nil {
		payload.SyncJobID = result.SyncJob.ID
	}
	s.writeJSON(w, http.StatusOK, payload)
}

func toJobResponse(job *jobs.Job) jobResponse {
	resp := jobResponse{
		ID:           job.ID,
		AssetID:      job.AssetID,
		Kind:         string(job.Kind),
		Status:       string(job.Status),
		Progress:     job.Progress,
		ExternalRef:  job.ExternalRef,
		OutputRef:    job.OutputRef,
		ErrorMessage: job.ErrorMessage,
		RetryCount:   job.RetryCount,
		NeedsReview:  job.NeedsReview,
		CreatedAt:    job.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    job.UpdatedAt.Format(time.RFC3339),
	}
	if job.CompletedAt != nil {
		resp.CompletedAt = job.CompletedAt.Format(time.RFC3339)
	}
	return resp
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Warn("encode api response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
