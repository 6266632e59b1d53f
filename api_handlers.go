package main

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"streamcheck/work/batch"
	"streamcheck/work/convert"
	"streamcheck/work/fallback"
	"streamcheck/work/monitor"
	"streamcheck/work/quality"
	"streamcheck/work/repository"
	"streamcheck/work/types"
)

// checkRequest is the body for single-probe requests.
type checkRequest struct {
	URL       string `json:"url"`
	ChannelID string `json:"channelId"`
}

// batchRequest carries an inline channel list for one batch run.
type batchRequest struct {
	Channels    []types.Channel `json:"channels"`
	Concurrency int             `json:"concurrency"`
}

// batchedRequest configures a paginated run over the channel database.
type batchedRequest struct {
	BatchSize   int    `json:"batchSize"`
	Concurrency int    `json:"concurrency"`
	Pause       string `json:"pauseBetweenBatches"`
}

type convertRequest struct {
	Channels        []types.Channel `json:"channels"`
	Concurrency     int             `json:"concurrency"`
	OnlyWorkingHTTP bool            `json:"onlyWorkingHttp"`
}

type qualityRequest struct {
	URL            string `json:"url"`
	CheckAudio     bool   `json:"checkAudio"`
	CheckVideo     bool   `json:"checkVideo"`
	SampleDuration string `json:"sampleDuration"`
}

type fallbackRequest struct {
	Channel          types.Channel `json:"channel"`
	MaxAttempts      int           `json:"maxAttempts"`
	PreferredQuality string        `json:"preferredQuality"`
}

type monitorRequest struct {
	StreamURL                   string  `json:"streamUrl"`
	Interval                    string  `json:"interval"`
	ConsecutiveFailureThreshold int     `json:"consecutiveFailureThreshold"`
	FailureRateThreshold        float64 `json:"failureRateThreshold"`
	Cooldown                    string  `json:"cooldown"`
}

func (s *Server) setupRoutes(router *mux.Router) {
	router.HandleFunc("/health", s.handleHealth).Methods("GET")

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/check", s.handleCheck).Methods("POST")
	api.HandleFunc("/check/batch", s.handleCheckBatch).Methods("POST")
	api.HandleFunc("/check/all", s.handleCheckAll).Methods("POST")
	api.HandleFunc("/convert", s.handleConvert).Methods("POST")
	api.HandleFunc("/quality", s.handleQuality).Methods("POST")
	api.HandleFunc("/fallback", s.handleFallback).Methods("POST")
	api.HandleFunc("/fallback/stats", s.handleFallbackStats).Methods("GET")
	api.HandleFunc("/monitor", s.handleMonitorStart).Methods("POST")
	api.HandleFunc("/monitor", s.handleMonitorList).Methods("GET")
	api.HandleFunc("/monitor/{id}", s.handleMonitorStatus).Methods("GET")
	api.HandleFunc("/monitor/{id}", s.handleMonitorStop).Methods("DELETE")
	api.HandleFunc("/channels", s.handleChannels).Methods("GET")
	api.HandleFunc("/import/m3u", s.handleImportM3U).Methods("POST")
	api.HandleFunc("/import/csv", s.handleImportCSV).Methods("POST")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": Version,
	})
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	result := s.prober.CheckStream(r.Context(), req.URL, req.ChannelID)
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleCheckBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Channels) == 0 {
		writeError(w, http.StatusBadRequest, "channels are required")
		return
	}

	report := s.orchestrator.CheckChannels(r.Context(), req.Channels, req.Concurrency, nil)
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleCheckAll(w http.ResponseWriter, r *http.Request) {
	if s.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "channel database unavailable")
		return
	}

	var req batchedRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	opts := batch.BatchedOptions{
		BatchSize:   req.BatchSize,
		Concurrency: req.Concurrency,
	}
	if req.Pause != "" {
		if d, err := time.ParseDuration(req.Pause); err == nil {
			opts.PauseBetweenBatches = d
		}
	}

	fetch := func(offset, limit int) ([]types.Channel, error) {
		return s.repo.GetChannelsPaginated(r.Context(), offset, limit)
	}

	report := s.orchestrator.ValidateAllBatched(r.Context(), fetch, opts)
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.ConversionEnabled {
		writeError(w, http.StatusServiceUnavailable, "conversion advisory is disabled")
		return
	}

	var req convertRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Channels) == 0 {
		writeError(w, http.StatusBadRequest, "channels are required")
		return
	}

	report := s.advisor.ProcessChannels(r.Context(), req.Channels, convert.Options{
		Concurrency:     req.Concurrency,
		OnlyWorkingHTTP: req.OnlyWorkingHTTP,
	})
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleQuality(w http.ResponseWriter, r *http.Request) {
	var req qualityRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	opts := quality.Options{
		CheckAudio: req.CheckAudio,
		CheckVideo: req.CheckVideo,
	}
	if req.SampleDuration != "" {
		if d, err := time.ParseDuration(req.SampleDuration); err == nil {
			opts.SampleDuration = d
		}
	}

	result := s.validator.ValidateStreamQuality(r.Context(), req.URL, opts)
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleFallback(w http.ResponseWriter, r *http.Request) {
	var req fallbackRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Channel.StreamURL == "" {
		writeError(w, http.StatusBadRequest, "channel.streamUrl is required")
		return
	}

	result := s.selector.GetStreamWithFallback(r.Context(), req.Channel, fallback.Options{
		MaxAttempts:      req.MaxAttempts,
		PreferredQuality: req.PreferredQuality,
	})
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleFallbackStats(w http.ResponseWriter, r *http.Request) {
	url := r.URL.Query().Get("url")
	if url == "" {
		writeError(w, http.StatusBadRequest, "url query parameter is required")
		return
	}

	stats, ok := s.selector.Stats(url)
	if !ok {
		writeError(w, http.StatusNotFound, "no stats recorded for url")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleMonitorStart(w http.ResponseWriter, r *http.Request) {
	var req monitorRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.StreamURL == "" {
		writeError(w, http.StatusBadRequest, "streamUrl is required")
		return
	}

	opts := monitor.StartOptions{
		ConsecutiveFailureThreshold: req.ConsecutiveFailureThreshold,
		FailureRateThreshold:        req.FailureRateThreshold,
	}
	if req.Interval != "" {
		if d, err := time.ParseDuration(req.Interval); err == nil {
			opts.Interval = d
		}
	}
	if req.Cooldown != "" {
		if d, err := time.ParseDuration(req.Cooldown); err == nil {
			opts.Cooldown = d
		}
	}

	sessionID, err := s.monitors.StartMonitoring(req.StreamURL, opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"sessionId": sessionID})
}

func (s *Server) handleMonitorList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.monitors.Sessions())
}

func (s *Server) handleMonitorStatus(w http.ResponseWriter, r *http.Request) {
	stats, ok := s.monitors.GetMonitoringStatus(mux.Vars(r)["id"])
	if !ok {
		writeError(w, http.StatusNotFound, "unknown monitoring session")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleMonitorStop(w http.ResponseWriter, r *http.Request) {
	stats, err := s.monitors.StopMonitoring(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleChannels(w http.ResponseWriter, r *http.Request) {
	if s.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "channel database unavailable")
		return
	}

	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = s.cfg.BatchSize
	}

	channels, err := s.repo.GetChannelsPaginated(r.Context(), offset, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, channels)
}

func (s *Server) handleImportM3U(w http.ResponseWriter, r *http.Request) {
	s.handleImport(w, r, repository.ParseM3U)
}

func (s *Server) handleImportCSV(w http.ResponseWriter, r *http.Request) {
	s.handleImport(w, r, repository.ParseCSV)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request, parse func(io.Reader) ([]types.Channel, error)) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "channel database unavailable")
		return
	}

	channels, err := parse(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	written, err := s.store.ImportChannels(r.Context(), channels)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"imported": written})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
