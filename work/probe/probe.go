package probe

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.uber.org/ratelimit"

	"streamcheck/work/client"
	"streamcheck/work/config"
	"streamcheck/work/logger"
	"streamcheck/work/metrics"
	"streamcheck/work/rewrite"
	"streamcheck/work/streamerr"
	"streamcheck/work/types"
	"streamcheck/work/utils"
)

// allowedContentTypes is the allow-list a 200 response must match before a
// stream counts as playable. HLS playlist variants, raw MPEG-TS, plain text
// playlists and octet-stream as the lowest-confidence fallback.
var allowedContentTypes = map[string]bool{
	"application/vnd.apple.mpegurl": true,
	"application/x-mpegurl":         true,
	"audio/x-mpegurl":               true,
	"audio/mpegurl":                 true,
	"video/mp2t":                    true,
	"text/plain":                    true,
	"application/octet-stream":      true,
}

// ContentTypeAllowed reports whether a Content-Type header value matches the
// allow-list, ignoring parameters like charset.
func ContentTypeAllowed(contentType string) bool {
	ct := contentType
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return allowedContentTypes[strings.ToLower(strings.TrimSpace(ct))]
}

// AttemptTimeout returns the per-attempt timeout for retry r: the base grows by
// 15 seconds per retry so later attempts tolerate origins that are slow rather
// than dead.
func AttemptTimeout(base time.Duration, r int) time.Duration {
	return base + time.Duration(r)*15*time.Second
}

// Backoff returns the delay before retry r: exponential from 2s, capped at 10s.
func Backoff(r int) time.Duration {
	d := 2 * time.Second << uint(r)
	if d > 10*time.Second {
		d = 10 * time.Second
	}
	return d
}

// Prober performs single bounded HTTP checks of stream URLs: a HEAD request
// with a ranged GET fallback, wrapped in an explicit bounded retry loop with
// progressive timeouts and exponential backoff. Transport and HTTP failures
// always resolve into a structured ValidationResult, never into a returned
// error, so batch orchestration can treat every outcome uniformly.
type Prober struct {
	cfg      *config.Config
	client   *client.HeaderSettingClient
	rewriter *rewrite.Rewriter
	limiter  ratelimit.Limiter
}

// New creates a Prober. The rewriter may be nil, in which case URLs are probed
// as-is. A rate limiter is installed when the config caps requests per second.
func New(cfg *config.Config, httpClient *client.HeaderSettingClient, rewriter *rewrite.Rewriter) *Prober {
	limiter := ratelimit.NewUnlimited()
	if cfg.RequestsPerSecond > 0 {
		limiter = ratelimit.New(cfg.RequestsPerSecond)
	}
	return &Prober{
		cfg:      cfg,
		client:   httpClient,
		rewriter: rewriter,
		limiter:  limiter,
	}
}

// CheckStream probes one URL. The retry budget covers retryable failures only
// (connection-level errors, timeouts, HTTP 502/503/504/408/429); terminal
// failures such as a 404 or a wrong content-type return immediately. After the
// budget is exhausted the result carries FinalError=true.
func (p *Prober) CheckStream(ctx context.Context, rawURL, channelID string) types.ValidationResult {
	start := time.Now()

	result := types.ValidationResult{
		ChannelID:    channelID,
		ProcessedURL: rawURL,
	}

	if rawURL == "" {
		result.Reason = streamerr.ReasonEmptyURL
		result.Category = streamerr.CategoryHTTPStatus
		result.Attempts = 0
		result.CheckedAt = time.Now()
		return result
	}

	processed := rawURL
	if p.rewriter != nil {
		processed = p.rewriter.ProcessStreamURL(rawURL, channelID)
	}
	result.ProcessedURL = processed

	maxRetries := p.cfg.MaxRetries

	for r := 0; ; r++ {
		result.Attempts = r + 1

		attemptCtx, cancel := context.WithTimeout(ctx, AttemptTimeout(p.cfg.CheckTimeout, r))
		p.limiter.Take()
		status, contentType, err := p.attempt(attemptCtx, processed)
		cancel()

		result.Status = status
		result.ContentType = contentType

		var category streamerr.Category
		switch {
		case err != nil:
			category = streamerr.CategoryOf(err)
			result.Reason = streamerr.ReasonCategory(category)
		case status != http.StatusOK:
			category = streamerr.ClassifyStatus(status)
			result.Reason = streamerr.ReasonHTTP(status)
		case !ContentTypeAllowed(contentType):
			category = streamerr.CategoryContentType
			result.Reason = streamerr.ReasonContentType(contentType)
		default:
			result.OK = true
			result.Reason = ""
			result.Category = streamerr.CategoryNone
			result.CheckedAt = time.Now()
			p.observe(&result, start)
			return result
		}

		result.Category = category

		if !category.Retryable() || r >= maxRetries {
			if category.Retryable() && r >= maxRetries {
				result.FinalError = true
				result.Reason = streamerr.ReasonFinalRetries + ":" + result.Reason
			}
			result.CheckedAt = time.Now()
			p.observe(&result, start)
			return result
		}

		metrics.RetriesTotal.Inc()
		logger.Debug("[PROBE] Retry %d/%d for %s after %s (%s)",
			r+1, maxRetries, utils.LogURL(p.cfg.ObfuscateUrls, processed), Backoff(r), result.Reason)

		if !sleepCtx(ctx, Backoff(r)) {
			result.CheckedAt = time.Now()
			p.observe(&result, start)
			return result
		}
	}
}

// attempt performs one bounded network check: HEAD first, and when the HEAD is
// rejected or unsupported, a GET restricted to the first KB via a Range header.
func (p *Prober) attempt(ctx context.Context, streamURL string) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, streamURL, nil)
	if err != nil {
		return 0, "", streamerr.New(streamerr.CategoryHTTPStatus, "BAD_URL", streamURL, err)
	}

	resp, err := p.client.Do(req)
	if err == nil {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			return resp.StatusCode, resp.Header.Get("Content-Type"), nil
		}
	}

	// HEAD failed or the origin rejected it; some stream servers only answer GET
	req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, streamURL, nil)
	if reqErr != nil {
		return 0, "", streamerr.New(streamerr.CategoryHTTPStatus, "BAD_URL", streamURL, reqErr)
	}
	req.Header.Set("Range", "bytes=0-1024")

	resp, err = p.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	return resp.StatusCode, resp.Header.Get("Content-Type"), nil
}

func (p *Prober) observe(result *types.ValidationResult, start time.Time) {
	metrics.CheckDuration.Observe(time.Since(start).Seconds())
	if result.OK {
		metrics.ChecksTotal.WithLabelValues("ok").Inc()
	} else {
		metrics.ChecksTotal.WithLabelValues("fail").Inc()
	}
}

// sleepCtx waits for d unless the context ends first. Returns false on cancel.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
