// Package server exposes the optimizer pipeline over HTTP. Authentication,
// rate limiting and billing are expected to sit in front of it.
package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ImMrLucky/spectyra/ledger"
	"github.com/ImMrLucky/spectyra/log"
	"github.com/ImMrLucky/spectyra/message"
	"github.com/ImMrLucky/spectyra/pipeline"
)

// Server is the HTTP front end of the optimizer.
type Server struct {
	optimizer *pipeline.Optimizer
	ledger    ledger.Writer
	logger    log.Logger
}

// Options configures a Server.
type Options struct {
	Optimizer *pipeline.Optimizer
	Ledger    ledger.Writer
	Logger    log.Logger
}

// NewServer creates a Server.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.GetDefaultLogger()
	}
	return &Server{
		optimizer: opts.Optimizer,
		ledger:    opts.Ledger,
		logger:    logger,
	}
}

// Handler returns the route mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/optimize", s.handleOptimize)
	mux.HandleFunc("/api/savings", s.handleSavings)
	return mux
}

// Start blocks serving HTTP on addr.
func (s *Server) Start(addr string) error {
	s.logger.Info("listening on %s", addr)
	return http.ListenAndServe(addr, s.Handler())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	sendJSONResponse(w, map[string]any{"status": "ok"})
}

// optimizeRequest is the wire form of a pipeline request. The optimization
// level is a pointer so that an absent field defaults to 2 instead of 0.
type optimizeRequest struct {
	Path              message.Path      `json:"path"`
	Provider          string            `json:"provider"`
	Model             string            `json:"model"`
	Messages          []message.Message `json:"messages"`
	Mode              pipeline.Mode     `json:"mode"`
	OptimizationLevel *int              `json:"optimization_level"`
	ConversationID    string            `json:"conversation_id"`
	DryRun            bool              `json:"dry_run"`
	QualityChecks     []string          `json:"quality_checks"`
	MaxOutputTokens   int               `json:"max_output_tokens"`
}

func (r optimizeRequest) toPipeline() pipeline.Request {
	level := 2
	if r.OptimizationLevel != nil {
		level = *r.OptimizationLevel
	}
	return pipeline.Request{
		Path:              r.Path,
		Provider:          r.Provider,
		Model:             r.Model,
		Messages:          r.Messages,
		Mode:              r.Mode,
		OptimizationLevel: level,
		ConversationID:    r.ConversationID,
		DryRun:            r.DryRun,
		QualityChecks:     r.QualityChecks,
		MaxOutputTokens:   r.MaxOutputTokens,
	}
}

// handleOptimize runs one request through the pipeline. A reverted
// optimization is still a 200; only input and upstream failures map to
// error statuses.
func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req optimizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	resp, err := s.optimizer.Run(r.Context(), req.toPipeline())
	if err != nil {
		s.logger.Warn("optimize failed: %v", err)
		sendJSONError(w, sanitize(err), statusFor(err))
		return
	}
	sendJSONResponse(w, resp)
}

// handleSavings reports the per-workload savings aggregates.
func (s *Server) handleSavings(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		sendJSONError(w, "ledger not configured", http.StatusNotFound)
		return
	}
	summaries, err := s.ledger.SummarizeByWorkload(r.Context())
	if err != nil {
		s.logger.Warn("savings summary failed: %v", err)
		sendJSONError(w, "summary unavailable", http.StatusInternalServerError)
		return
	}
	out := make([]map[string]any, 0, len(summaries))
	for _, sum := range summaries {
		out = append(out, map[string]any{
			"workload_key": sum.WorkloadKey,
			"rows":         sum.Rows,
			"tokens_saved": sum.TokensSaved,
			"cost_saved":   sum.CostSaved,
		})
	}
	sendJSONResponse(w, map[string]any{"workloads": out})
}

// statusFor maps pipeline error kinds to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, pipeline.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, pipeline.ErrCancelled):
		return http.StatusRequestTimeout
	case errors.Is(err, pipeline.ErrUpstreamUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// sanitize strips upstream detail from the user-visible error message.
func sanitize(err error) string {
	switch {
	case errors.Is(err, pipeline.ErrInvalidInput):
		return "invalid input"
	case errors.Is(err, pipeline.ErrCancelled):
		return "request cancelled"
	case errors.Is(err, pipeline.ErrUpstreamUnavailable):
		return "upstream unavailable"
	default:
		return "internal error"
	}
}

func sendJSONResponse(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func sendJSONError(w http.ResponseWriter, msg string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{"error": msg})
}
