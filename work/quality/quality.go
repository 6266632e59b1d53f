package quality

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"

	"streamcheck/work/cache"
	"streamcheck/work/client"
	"streamcheck/work/config"
	"streamcheck/work/logger"
	"streamcheck/work/metrics"
	"streamcheck/work/probe"
	"streamcheck/work/streamerr"
	"streamcheck/work/types"
	"streamcheck/work/utils"
)

var extm3uPrefix = []byte("#EXTM3U")

// Options controls one deep validation pass.
type Options struct {
	CheckAudio     bool
	CheckVideo     bool
	SampleDuration time.Duration // wall-clock cap on the sample download
	Timeout        time.Duration // overall deadline for the whole validation
	SkipCache      bool          // bypass the result cache (monitoring re-checks)
}

// Validator performs deep content validation: a HEAD content-type gate, a
// bounded sample download, then HLS playlist parsing or binary marker scanning.
// Concurrent validations of the identical URL are coalesced through a
// singleflight group so at most one download is in flight per URL, and recent
// results are served from a bounded TTL cache.
type Validator struct {
	cfg      *config.Config
	client   *client.HeaderSettingClient
	analyzer SampleAnalyzer
	group    singleflight.Group
	results  *cache.TTLCache[types.QualityResult]
}

// New creates a Validator with the default marker-based sample analyzer.
func New(cfg *config.Config, httpClient *client.HeaderSettingClient) *Validator {
	return &Validator{
		cfg:      cfg,
		client:   httpClient,
		analyzer: MarkerAnalyzer{},
		results:  cache.NewTTL[types.QualityResult](cfg.ResultCacheSize, cfg.ResultCacheTTL),
	}
}

// SetAnalyzer swaps the binary sample heuristic. Intended for configurations
// where the default marker scan misclassifies known-good low-entropy content.
func (v *Validator) SetAnalyzer(a SampleAnalyzer) {
	if a != nil {
		v.analyzer = a
	}
}

// ValidateStreamQuality validates one stream URL. Identical concurrent calls
// share a single underlying check; its result is delivered to every waiter.
func (v *Validator) ValidateStreamQuality(ctx context.Context, streamURL string, opts Options) types.QualityResult {
	if !opts.CheckAudio && !opts.CheckVideo {
		opts.CheckAudio = true
		opts.CheckVideo = true
	}
	if opts.SampleDuration <= 0 {
		opts.SampleDuration = v.cfg.SampleDuration
	}
	if opts.Timeout <= 0 {
		opts.Timeout = opts.SampleDuration + v.cfg.CheckTimeout
	}

	key := fmt.Sprintf("%s|a=%t|v=%t", streamURL, opts.CheckAudio, opts.CheckVideo)

	if !opts.SkipCache {
		if cached, ok := v.results.Get(key); ok {
			metrics.CacheEvents.WithLabelValues("result", "hit").Inc()
			return cached
		}
		metrics.CacheEvents.WithLabelValues("result", "miss").Inc()
	}

	shared, _, _ := v.group.Do(key, func() (interface{}, error) {
		// the shared check runs on its own deadline so one caller's
		// cancellation cannot fail every coalesced waiter
		checkCtx, cancel := context.WithTimeout(context.Background(), opts.Timeout)
		defer cancel()

		result := v.validate(checkCtx, streamURL, opts)
		v.results.Set(key, result)

		if result.IsValid {
			metrics.ValidationsTotal.WithLabelValues("valid").Inc()
		} else {
			metrics.ValidationsTotal.WithLabelValues("invalid").Inc()
		}
		return result, nil
	})

	return shared.(types.QualityResult)
}

// validate runs the three validation steps against one URL.
func (v *Validator) validate(ctx context.Context, streamURL string, opts Options) types.QualityResult {
	result := types.QualityResult{CheckedAt: time.Now()}
	logURL := utils.LogURL(v.cfg.ObfuscateUrls, streamURL)

	// Step 1: content-type gate
	contentType, status, err := v.headCheck(ctx, streamURL)
	if err != nil {
		category := streamerr.CategoryOf(err)
		result.Category = category
		result.Issues = append(result.Issues, streamerr.ReasonCategory(category))
		return result
	}
	if status != http.StatusOK {
		result.Category = streamerr.ClassifyStatus(status)
		result.Issues = append(result.Issues, streamerr.ReasonHTTP(status))
		return result
	}
	if contentType != "" && !probe.ContentTypeAllowed(contentType) {
		result.Category = streamerr.CategoryContentType
		result.Issues = append(result.Issues, streamerr.ReasonContentType(contentType))
		result.Metadata.ContentType = contentType
		return result
	}
	result.Metadata.ContentType = contentType

	// Step 2: bounded sample download
	sample, err := v.downloadSample(ctx, streamURL, opts.SampleDuration)
	if err != nil {
		category := streamerr.CategoryOf(err)
		result.Category = category
		result.Issues = append(result.Issues, streamerr.ReasonCategory(category))
		return result
	}
	result.Metadata.SampleBytes = len(sample)

	if len(sample) == 0 {
		result.Category = streamerr.CategoryContentInvalid
		result.Issues = append(result.Issues, "EMPTY_SAMPLE")
		return result
	}

	// Step 3: content inspection
	if bytes.HasPrefix(sample, extm3uPrefix) {
		v.inspectHLS(sample, opts, &result)
	} else {
		v.inspectBinary(sample, opts, &result)
	}

	result.IsValid = len(result.Issues) == 0 &&
		(!opts.CheckAudio || (result.AudioStatus.Present && result.AudioStatus.Consistent)) &&
		(!opts.CheckVideo || (result.VideoStatus.Present && result.VideoStatus.Consistent))

	if result.IsValid {
		result.Category = streamerr.CategoryNone
	} else if result.Category == streamerr.CategoryNone {
		result.Category = streamerr.CategoryContentInvalid
	}

	logger.Debug("[QUALITY] %s valid=%t kind=%s sample=%s segments=%d variants=%d issues=%d",
		logURL, result.IsValid, result.Metadata.PlaylistKind,
		utils.FormatBytes(int64(len(sample))),
		result.Metadata.SegmentCount, result.Metadata.VariantCount, len(result.Issues))

	return result
}

// inspectHLS evaluates a playlist sample. A media playlist with segments is a
// muxed transport stream reference, so requested track kinds are presumed
// carried by the segments; a master playlist must show evidence of the
// requested kinds through CODECS attributes or EXT-X-MEDIA type tags.
func (v *Validator) inspectHLS(sample []byte, opts Options, result *types.QualityResult) {
	findings := parseHLSSample(sample)

	result.Metadata.PlaylistKind = findings.kind
	result.Metadata.SegmentCount = findings.segments
	result.Metadata.VariantCount = findings.variants

	if !findings.parsed {
		result.Issues = append(result.Issues, "PLAYLIST_PARSE_FAILED")
		result.Category = streamerr.CategoryContentInvalid
		return
	}

	if findings.segments == 0 && findings.variants == 0 {
		result.Issues = append(result.Issues, "PLAYLIST_EMPTY")
		result.Category = streamerr.CategoryContentInvalid
		return
	}

	if findings.kind == "hls-media" {
		presumed := types.TrackStatus{Present: true, Consistent: true}
		result.AudioStatus = presumed
		result.VideoStatus = presumed
		return
	}

	result.AudioStatus = types.TrackStatus(findings.audio)
	result.VideoStatus = types.TrackStatus(findings.video)

	if opts.CheckVideo && !findings.video.Present {
		result.Issues = append(result.Issues, "MISSING_VIDEO_TRACK")
	}
	if opts.CheckAudio && !findings.audio.Present {
		result.Issues = append(result.Issues, "MISSING_AUDIO_TRACK")
	}
}

// inspectBinary evaluates a raw sample through the pluggable analyzer.
func (v *Validator) inspectBinary(sample []byte, opts Options, result *types.QualityResult) {
	analysis := v.analyzer.Analyze(sample)

	result.Metadata.PlaylistKind = "binary"
	result.AudioStatus = types.TrackStatus(analysis.Audio)
	result.VideoStatus = types.TrackStatus(analysis.Video)

	if analysis.Degenerate {
		result.Issues = append(result.Issues, "DEGENERATE_SAMPLE")
		result.Category = streamerr.CategoryContentCorrupted
		return
	}

	if opts.CheckVideo && !analysis.Video.Present {
		result.Issues = append(result.Issues, "MISSING_VIDEO_TRACK")
	}
	if opts.CheckAudio && !analysis.Audio.Present {
		result.Issues = append(result.Issues, "MISSING_AUDIO_TRACK")
	}
}

// headCheck performs the content-type gate. Origins that reject HEAD outright
// are not failed here; the sample download decides.
func (v *Validator) headCheck(ctx context.Context, streamURL string) (string, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, streamURL, nil)
	if err != nil {
		return "", 0, streamerr.New(streamerr.CategoryHTTPStatus, "BAD_URL", streamURL, err)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return "", 0, err
	}
	resp.Body.Close()

	if resp.StatusCode == http.StatusMethodNotAllowed || resp.StatusCode == http.StatusNotImplemented {
		return "", http.StatusOK, nil
	}

	return resp.Header.Get("Content-Type"), resp.StatusCode, nil
}

// downloadSample reads at most SampleMaxBytes from the stream, bounded by the
// sample duration. Hitting either limit is a normal, successful outcome.
func (v *Validator) downloadSample(ctx context.Context, streamURL string, duration time.Duration) ([]byte, error) {
	sampleCtx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()

	req, err := http.NewRequestWithContext(sampleCtx, http.MethodGet, streamURL, nil)
	if err != nil {
		return nil, streamerr.New(streamerr.CategoryHTTPStatus, "BAD_URL", streamURL, err)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return nil, streamerr.New(streamerr.ClassifyStatus(resp.StatusCode),
			streamerr.ReasonHTTP(resp.StatusCode), streamURL, nil)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, v.cfg.SampleMaxBytes))
	if err != nil && len(data) == 0 {
		// nothing arrived before the deadline or the error, so report the
		// failure instead of pretending the stream served an empty sample
		return nil, err
	}

	// a deadline mid-read with partial data is still a usable sample
	return data, nil
}
