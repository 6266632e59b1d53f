package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamcheck/work/batch"
	"streamcheck/work/client"
	"streamcheck/work/config"
	"streamcheck/work/convert"
	"streamcheck/work/fallback"
	"streamcheck/work/monitor"
	"streamcheck/work/notify"
	"streamcheck/work/probe"
	"streamcheck/work/quality"
	"streamcheck/work/repository"
	"streamcheck/work/types"
)

func testServer(t *testing.T) (*Server, *mux.Router) {
	t.Helper()

	cfg := &config.Config{
		UserAgent:           "streamcheck-test",
		CheckTimeout:        2 * time.Second,
		MaxRetries:          0,
		WorkerThreads:       4,
		BatchSize:           10,
		PauseBetweenBatches: time.Millisecond,
		SampleMaxBytes:      64 * 1024,
		SampleDuration:      time.Second,
		ResultCacheTTL:      time.Minute,
		ResultCacheSize:     64,
		MaxFallbackAttempts: 3,
		MonitorInterval:     time.Minute,
		ConsecutiveFailures: 3,
		FailureRate:         0.5,
		AlertCooldown:       time.Minute,
		ConversionEnabled:   true,
	}

	httpClient := client.NewHeaderSettingClient(cfg)
	prober := probe.New(cfg, httpClient, nil)
	notifier := notify.NewNotifier(16)
	notifier.Start()
	t.Cleanup(notifier.Stop)

	validator := quality.New(cfg, httpClient)
	monitors := monitor.NewManager(cfg, validator, notifier)
	monitors.Start()
	t.Cleanup(monitors.Stop)

	srv := &Server{
		cfg:          cfg,
		prober:       prober,
		orchestrator: batch.New(cfg, prober),
		advisor:      convert.New(cfg, prober),
		validator:    validator,
		selector:     fallback.New(cfg, validator, notifier),
		monitors:     monitors,
	}

	router := mux.NewRouter()
	srv.setupRoutes(router)
	return srv, router
}

func doJSON(t *testing.T, router *mux.Router, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	_, router := testServer(t)

	rec := doJSON(t, router, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, body["version"])
}

func TestCheckEndpoint(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
	}))
	defer origin.Close()

	_, router := testServer(t)

	rec := doJSON(t, router, http.MethodPost, "/api/check",
		`{"url":"`+origin.URL+`/live.m3u8","channelId":"ch-1"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var result types.ValidationResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.OK)
	assert.Equal(t, "ch-1", result.ChannelID)
}

func TestCheckEndpointRequiresURL(t *testing.T) {
	_, router := testServer(t)

	rec := doJSON(t, router, http.MethodPost, "/api/check", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCheckEndpointRejectsBadJSON(t *testing.T) {
	_, router := testServer(t)

	rec := doJSON(t, router, http.MethodPost, "/api/check", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBatchEndpoint(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
	}))
	defer origin.Close()

	_, router := testServer(t)

	body := `{"channels":[
		{"id":"ch-1","streamUrl":"` + origin.URL + `/1.m3u8"},
		{"id":"ch-2","streamUrl":"` + origin.URL + `/2.m3u8"}
	]}`
	rec := doJSON(t, router, http.MethodPost, "/api/check/batch", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var report types.BatchReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, 2, report.Total)
	assert.Equal(t, report.Total, report.OK+report.Fail)
}

func TestBatchEndpointRequiresChannels(t *testing.T) {
	_, router := testServer(t)

	rec := doJSON(t, router, http.MethodPost, "/api/check/batch", `{"channels":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCheckAllWithoutDatabase(t *testing.T) {
	_, router := testServer(t)

	rec := doJSON(t, router, http.MethodPost, "/api/check/all", `{}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestConvertEndpointDisabled(t *testing.T) {
	srv, router := testServer(t)
	srv.cfg.ConversionEnabled = false

	rec := doJSON(t, router, http.MethodPost, "/api/convert", `{"channels":[{"id":"ch-1"}]}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestQualityEndpointRequiresURL(t *testing.T) {
	_, router := testServer(t)

	rec := doJSON(t, router, http.MethodPost, "/api/quality", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFallbackStatsUnknownURL(t *testing.T) {
	_, router := testServer(t)

	rec := doJSON(t, router, http.MethodGet, "/api/fallback/stats?url=http://unseen.example/s.m3u8", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMonitorEndpoints(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer origin.Close()

	_, router := testServer(t)

	rec := doJSON(t, router, http.MethodPost, "/api/monitor",
		`{"streamUrl":"`+origin.URL+`/s.m3u8","interval":"30s"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	id := created["sessionId"]
	require.NotEmpty(t, id)

	rec = doJSON(t, router, http.MethodGet, "/api/monitor/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var stats types.MonitoringStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, id, stats.SessionID)
	assert.Equal(t, types.SessionActive, stats.Status)

	rec = doJSON(t, router, http.MethodGet, "/api/monitor", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodDelete, "/api/monitor/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, types.SessionStopped, stats.Status)

	rec = doJSON(t, router, http.MethodGet, "/api/monitor/mon-unknown", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestImportM3UWithSQLiteStore(t *testing.T) {
	srv, router := testServer(t)

	store, err := repository.OpenSQLite(t.TempDir() + "/channels.db")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	srv.store = store
	srv.repo = store

	playlist := "#EXTM3U\n" +
		`#EXTINF:-1 tvg-id="news.one",News One` + "\n" +
		"http://cdn.example.com/news1.m3u8\n"
	rec := doJSON(t, router, http.MethodPost, "/api/import/m3u", playlist)
	require.Equal(t, http.StatusOK, rec.Code)

	var imported map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &imported))
	assert.Equal(t, 1, imported["imported"])

	rec = doJSON(t, router, http.MethodGet, "/api/channels?offset=0&limit=10", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var channels []types.Channel
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &channels))
	require.Len(t, channels, 1)
	assert.Equal(t, "news.one", channels[0].ID)
}

func TestImportWithoutStore(t *testing.T) {
	_, router := testServer(t)

	rec := doJSON(t, router, http.MethodPost, "/api/import/csv", "id,url\nch-1,http://a.example/s.m3u8\n")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
