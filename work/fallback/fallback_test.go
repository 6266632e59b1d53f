package fallback

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamcheck/work/client"
	"streamcheck/work/config"
	"streamcheck/work/notify"
	"streamcheck/work/quality"
	"streamcheck/work/streamerr"
	"streamcheck/work/types"
)

const mediaPlaylist = `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:6
#EXTINF:6.000,
segment1.ts
#EXTINF:6.000,
segment2.ts
`

func testConfig() *config.Config {
	return &config.Config{
		UserAgent:           "streamcheck-test",
		CheckTimeout:        2 * time.Second,
		SampleMaxBytes:      64 * 1024,
		SampleDuration:      2 * time.Second,
		ResultCacheTTL:      time.Minute,
		ResultCacheSize:     64,
		MaxFallbackAttempts: 5,
	}
}

func newTestSelector(cfg *config.Config) *Selector {
	validator := quality.New(cfg, client.NewHeaderSettingClient(cfg))
	return New(cfg, validator, notify.NewNotifier(16))
}

// candidateServer serves /good/* as a playable playlist and /bad/* as 404.
func candidateServer() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/bad/") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
		if r.Method != http.MethodHead {
			w.Write([]byte(mediaPlaylist))
		}
	}))
}

func TestAdaptiveTimeout(t *testing.T) {
	// geo-blocked base 5s, neutral rate: 5s * (0.5+0.5) = 5s
	assert.Equal(t, 5*time.Second, AdaptiveTimeout(streamerr.CategoryGeoBlocked, 0.5, 0))
	// unknown class falls to the 20s default, perfect rate widens it
	assert.Equal(t, 30*time.Second, AdaptiveTimeout(streamerr.CategoryNone, 1.0, 0))
	// later attempts add 2s each
	assert.Equal(t, 9*time.Second, AdaptiveTimeout(streamerr.CategoryGeoBlocked, 0.5, 2))
	// the floor holds for hopeless candidates
	assert.Equal(t, 2500*time.Millisecond, AdaptiveTimeout(streamerr.CategoryGeoBlocked, 0, 0))
	assert.GreaterOrEqual(t, AdaptiveTimeout(streamerr.CategoryGeoBlocked, 0, 0), 2*time.Second)
}

func TestFallbackPrimarySucceeds(t *testing.T) {
	srv := candidateServer()
	defer srv.Close()

	s := newTestSelector(testConfig())
	result := s.GetStreamWithFallback(context.Background(), types.Channel{
		ID:            "ch-1",
		StreamURL:     srv.URL + "/good/primary.m3u8",
		AlternateURLs: []string{srv.URL + "/good/alt.m3u8"},
	}, Options{})

	require.True(t, result.Success)
	assert.Equal(t, srv.URL+"/good/primary.m3u8", result.Stream)
	assert.False(t, result.FallbackUsed)
	assert.Equal(t, 1, result.Attempt)
	require.NotNil(t, result.ValidationResult)
	assert.True(t, result.ValidationResult.IsValid)
}

func TestFallbackUsesAlternate(t *testing.T) {
	srv := candidateServer()
	defer srv.Close()

	s := newTestSelector(testConfig())
	result := s.GetStreamWithFallback(context.Background(), types.Channel{
		ID:            "ch-1",
		StreamURL:     srv.URL + "/bad/primary.m3u8",
		AlternateURLs: []string{srv.URL + "/good/alt.m3u8"},
	}, Options{})

	require.True(t, result.Success)
	assert.Equal(t, srv.URL+"/good/alt.m3u8", result.Stream)
	assert.True(t, result.FallbackUsed)
	assert.Equal(t, 2, result.Attempt)
}

func TestFallbackMaxAttemptsCap(t *testing.T) {
	srv := candidateServer()
	defer srv.Close()

	s := newTestSelector(testConfig())
	result := s.GetStreamWithFallback(context.Background(), types.Channel{
		ID:        "ch-1",
		StreamURL: srv.URL + "/bad/0.m3u8",
		AlternateURLs: []string{
			srv.URL + "/bad/1.m3u8",
			srv.URL + "/bad/2.m3u8",
			srv.URL + "/good/late.m3u8",
		},
	}, Options{MaxAttempts: 2})

	assert.False(t, result.Success)
	assert.Equal(t, 2, result.Attempt)
	assert.NotEmpty(t, result.Message)
}

func TestFallbackExhaustionDiagnostic(t *testing.T) {
	srv := candidateServer()
	defer srv.Close()

	s := newTestSelector(testConfig())
	result := s.GetStreamWithFallback(context.Background(), types.Channel{
		ID:            "ch-1",
		StreamURL:     srv.URL + "/bad/0.m3u8",
		AlternateURLs: []string{srv.URL + "/bad/1.m3u8"},
	}, Options{})

	assert.False(t, result.Success)
	assert.Empty(t, result.Stream)
	assert.NotEmpty(t, result.Message)
}

func TestFallbackNoCandidates(t *testing.T) {
	s := newTestSelector(testConfig())
	result := s.GetStreamWithFallback(context.Background(), types.Channel{ID: "ch-1"}, Options{})

	assert.False(t, result.Success)
	assert.Equal(t, "no stream URLs configured", result.Message)
}

func TestFallbackRecordsStats(t *testing.T) {
	srv := candidateServer()
	defer srv.Close()

	badURL := srv.URL + "/bad/primary.m3u8"
	goodURL := srv.URL + "/good/alt.m3u8"

	s := newTestSelector(testConfig())
	s.GetStreamWithFallback(context.Background(), types.Channel{
		ID:            "ch-1",
		StreamURL:     badURL,
		AlternateURLs: []string{goodURL},
	}, Options{})

	badStats, ok := s.Stats(badURL)
	require.True(t, ok)
	assert.Equal(t, int64(1), badStats.Attempts)
	assert.Equal(t, int64(1), badStats.Failures)
	assert.Equal(t, 0.0, badStats.SuccessRate())

	goodStats, ok := s.Stats(goodURL)
	require.True(t, ok)
	assert.Equal(t, int64(1), goodStats.Successes)
	assert.Equal(t, 1.0, goodStats.SuccessRate())

	_, ok = s.Stats("http://never.example/seen.m3u8")
	assert.False(t, ok)
}

func TestRankCandidatesPreferredQualityFirst(t *testing.T) {
	s := newTestSelector(testConfig())

	channel := types.Channel{
		ID:            "ch-1",
		StreamURL:     "http://origin.example/sd.m3u8",
		AlternateURLs: []string{"http://origin.example/hd.m3u8"},
		Quality:       "HD",
	}

	// both candidates share the channel quality label, so the preferred
	// quality cannot reorder them: primary priority wins
	ranked := s.rankCandidates(channel, "HD")
	require.Len(t, ranked, 2)
	assert.Equal(t, channel.StreamURL, ranked[0].url)
	assert.Equal(t, 0, ranked[0].priority)
}

func TestSuccessRateTracking(t *testing.T) {
	s := newTestSelector(testConfig())

	flaky := "http://origin.example/a1.m3u8"
	solid := "http://origin.example/a2.m3u8"

	// never-seen URLs rank neutrally at 0.5
	assert.Equal(t, 0.5, s.successRate(flaky))

	s.recordAttempt(flaky, false, streamerr.CategoryTimeout)
	s.recordAttempt(flaky, false, streamerr.CategoryTimeout)
	s.recordAttempt(solid, true, streamerr.CategoryNone)

	assert.Equal(t, 0.0, s.successRate(flaky))
	assert.Equal(t, 1.0, s.successRate(solid))
}
