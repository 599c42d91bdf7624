package server

import (
	"encoding/json"
	"net/http"
	"time"

	"gridd.sh/internal/gerrors"
	"gridd.sh/internal/metrics"
	"gridd.sh/internal/middleware"
	"gridd.sh/internal/simulation"
	"gridd.sh/internal/version"
)

// maxRequestBody bounds JSON request bodies.
const maxRequestBody = 1 << 20

type errorResponse struct {
	Error string            `json:"error"`
	Code  gerrors.ErrorCode `json:"code"`
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		json.NewEncoder(w).Encode(body)
	}
}

// respondError maps the error taxonomy onto HTTP statuses. Rate-limit
// and quota failures keep their distinct statuses so clients can show
// distinct notices.
func respondError(w http.ResponseWriter, err error) {
	code := gerrors.CodeOf(err)

	status := http.StatusInternalServerError
	switch code {
	case gerrors.ErrCodeInvalidRange, gerrors.ErrCodeInvalidHorizon,
		gerrors.ErrCodeInvalidIterations, gerrors.ErrCodeDuplicateSeries,
		gerrors.ErrCodeInvalidInput:
		status = http.StatusBadRequest
	case gerrors.ErrCodeBusy:
		status = http.StatusConflict
	case gerrors.ErrCodeRateLimited:
		status = http.StatusTooManyRequests
	case gerrors.ErrCodeQuotaExceeded:
		status = http.StatusPaymentRequired
	case gerrors.ErrCodeUpstream:
		status = http.StatusBadGateway
	case gerrors.ErrCodeUnauthorized:
		status = http.StatusForbidden
	case gerrors.ErrCodeNotFound:
		status = http.StatusNotFound
	case gerrors.ErrCodeTimeout:
		status = http.StatusGatewayTimeout
	}

	respondJSON(w, status, errorResponse{Error: err.Error(), Code: code})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, gerrors.Wrap(err, gerrors.ErrCodeInvalidInput, "invalid request body"))
		return false
	}
	return true
}

// Health handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
		"service":   "gridd",
		"version":   version.Version,
		"checks": map[string]string{
			"database": s.checkDatabase(),
		},
	})
}

func (s *Server) handleHealthLive(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":    "alive",
		"timestamp": time.Now().Unix(),
	})
}

func (s *Server) handleHealthReady(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":    "not_ready",
			"error":     err.Error(),
			"timestamp": time.Now().Unix(),
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":    "ready",
		"timestamp": time.Now().Unix(),
	})
}

func (s *Server) checkDatabase() string {
	if err := s.db.Ping(); err != nil {
		return "unhealthy"
	}
	return "healthy"
}

// Live metric handlers

func (s *Server) handleMetricsSnapshot(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"timestamp": time.Now().Format(time.RFC3339),
		"series":    s.ticker.Snapshot(),
	})
}

// Simulation handlers

type simulateRequest struct {
	DemandMultiplier   float64 `json:"demandMultiplier"`
	RenewablePercent   float64 `json:"renewablePercent"`
	StorageCapacityGW  float64 `json:"storageCapacityGW"`
	TemperatureOffsetC float64 `json:"temperatureOffsetC"`
	Preset             string  `json:"preset"`
	Horizon            int     `json:"horizon"`
	Iterations         int     `json:"iterations"`
}

func (req simulateRequest) config() simulation.Config {
	return simulation.Config{
		DemandMultiplier:   req.DemandMultiplier,
		RenewablePercent:   req.RenewablePercent,
		StorageCapacityGW:  req.StorageCapacityGW,
		TemperatureOffsetC: req.TemperatureOffsetC,
		Preset:             simulation.PresetByName(req.Preset),
	}
}

func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	var req simulateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	start := time.Now()
	points, err := s.engine.Run(req.config(), req.Horizon)
	if err != nil {
		respondError(w, err)
		return
	}

	metrics.SimulationRunsTotal.WithLabelValues("scenario", req.config().Preset.Name).Inc()
	metrics.SimulationDuration.WithLabelValues("scenario").Observe(time.Since(start).Seconds())

	// Rounding happens here, at the presentation boundary.
	rounded := make([]simulation.HourlyPoint, len(points))
	for i, p := range points {
		rounded[i] = p.Rounded()
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"preset": req.config().Preset,
		"points": rounded,
	})
}

func (s *Server) handleMonteCarlo(w http.ResponseWriter, r *http.Request) {
	var req simulateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	start := time.Now()
	_, risk, err := s.sampler.SampleRisk(r.Context(), req.config(), req.Iterations, nil)
	if err != nil {
		respondError(w, err)
		return
	}

	metrics.SimulationRunsTotal.WithLabelValues("montecarlo", req.config().Preset.Name).Inc()
	metrics.SimulationDuration.WithLabelValues("montecarlo").Observe(time.Since(start).Seconds())

	respondJSON(w, http.StatusOK, risk)
}

func (s *Server) handlePresets(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, simulation.Presets())
}

// Chat handlers

type chatSendRequest struct {
	Message string `json:"message"`
}

func (s *Server) handleChatSend(w http.ResponseWriter, r *http.Request) {
	var req chatSendRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	userID := middleware.GetUserID(r.Context())
	sess := s.session(r.Context(), userID)

	reply, err := sess.Send(r.Context(), req.Message)
	if err != nil {
		// The exchange survives a persistence failure; report the
		// reply along with the warning instead of discarding it.
		if gerrors.CodeOf(err) == gerrors.ErrCodePersistFailed {
			respondJSON(w, http.StatusOK, map[string]any{
				"reply":   reply,
				"warning": "exchange completed but could not be saved",
			})
			return
		}
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"reply": reply})
}

func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	sess := s.session(r.Context(), userID)
	respondJSON(w, http.StatusOK, sess.History())
}

type analyzeRequest struct {
	ContextData map[string]any `json:"contextData"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := s.inferClient.Analyze(r.Context(), req.ContextData)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"analysis": result})
}

// Annotation handlers

type annotationCreateRequest struct {
	Content   string  `json:"content"`
	XPosition float64 `json:"xPosition"`
	YPosition float64 `json:"yPosition"`
	ChartID   string  `json:"chartId"`
}

func (s *Server) handleAnnotationsList(w http.ResponseWriter, r *http.Request) {
	recent, err := s.annotations.Recent(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, recent)
}

func (s *Server) handleAnnotationCreate(w http.ResponseWriter, r *http.Request) {
	var req annotationCreateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	a, err := s.annotations.Create(
		r.Context(),
		middleware.GetUserID(r.Context()),
		middleware.GetUserName(r.Context()),
		req.Content, req.ChartID, req.XPosition, req.YPosition,
	)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, a)
}

func (s *Server) handleAnnotationDelete(w http.ResponseWriter, r *http.Request) {
	id := muxVar(r, "id")
	if id == "" {
		respondError(w, gerrors.New(gerrors.ErrCodeInvalidInput, "annotation id is required"))
		return
	}

	if err := s.annotations.Delete(r.Context(), id, middleware.GetUserID(r.Context())); err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"deleted": id})
}
