package fallback

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"streamcheck/work/config"
	"streamcheck/work/logger"
	"streamcheck/work/notify"
	"streamcheck/work/quality"
	"streamcheck/work/streamerr"
	"streamcheck/work/types"
	"streamcheck/work/utils"
)

// Options controls one fallback selection run.
type Options struct {
	MaxAttempts      int
	Timeout          time.Duration // overrides the adaptive per-class timeout when set
	PreferredQuality string
	CheckAudio       bool
	CheckVideo       bool
}

// candidate is one URL considered for a channel, tagged with its priority
// (0 = primary, 1.. = alternates in declared order).
type candidate struct {
	url      string
	priority int
	quality  string
}

// statsEntry wraps URLStats with a mutex; entries live in an xsync map so the
// registry itself needs no global lock.
type statsEntry struct {
	mu           sync.Mutex
	stats        types.URLStats
	lastCategory streamerr.Category
}

// Selector ranks and tries alternate URLs for one logical channel. Candidate
// order blends the preferred quality, primary-before-alternate priority and the
// historical per-URL success rate kept for the lifetime of the process. Each
// attempt runs the deep content validator under a timeout tuned to the failure
// class last seen for that URL, so known geo-blocked origins fail fast while
// flaky-but-alive origins get more patience.
type Selector struct {
	cfg       *config.Config
	validator *quality.Validator
	notifier  *notify.Notifier
	stats     *xsync.MapOf[string, *statsEntry]
}

func New(cfg *config.Config, validator *quality.Validator, notifier *notify.Notifier) *Selector {
	return &Selector{
		cfg:       cfg,
		validator: validator,
		notifier:  notifier,
		stats:     xsync.NewMapOf[string, *statsEntry](),
	}
}

// classBaseTimeouts are the per-failure-class base validation timeouts.
// Categories that cannot recover on retry get short budgets.
var classBaseTimeouts = map[streamerr.Category]time.Duration{
	streamerr.CategoryGeoBlocked:       5 * time.Second,
	streamerr.CategoryAccessDenied:     5 * time.Second,
	streamerr.CategoryTimeout:          30 * time.Second,
	streamerr.CategoryNetwork:          15 * time.Second,
	streamerr.CategoryServerError:      20 * time.Second,
	streamerr.CategoryContentInvalid:   10 * time.Second,
	streamerr.CategoryContentCorrupted: 10 * time.Second,
}

const defaultBaseTimeout = 20 * time.Second

// AdaptiveTimeout derives the validation timeout for a candidate from the
// failure class last observed for it, its historical success rate and the
// current attempt index. Reliable URLs earn a fuller budget, repeat offenders
// a reduced one, and later attempts widen slightly to ride out transients.
func AdaptiveTimeout(lastFailure streamerr.Category, successRate float64, attempt int) time.Duration {
	base, ok := classBaseTimeouts[lastFailure]
	if !ok {
		base = defaultBaseTimeout
	}

	scaled := time.Duration(float64(base) * (0.5 + successRate))
	scaled += time.Duration(attempt) * 2 * time.Second

	if scaled < 2*time.Second {
		scaled = 2 * time.Second
	}
	return scaled
}

// GetStreamWithFallback tries the channel's candidates in ranked order and
// returns on the first URL that passes deep validation. At most
// min(maxAttempts, candidateCount) candidates are tried. On total exhaustion
// the result carries a diagnostic message chosen by the dominant observed
// failure category.
func (s *Selector) GetStreamWithFallback(ctx context.Context, channel types.Channel, opts Options) types.FallbackResult {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = s.cfg.MaxFallbackAttempts
	}
	if !opts.CheckAudio && !opts.CheckVideo {
		opts.CheckAudio = true
		opts.CheckVideo = true
	}

	candidates := s.rankCandidates(channel, opts.PreferredQuality)
	if len(candidates) == 0 {
		return types.FallbackResult{Message: "no stream URLs configured"}
	}

	attempts := opts.MaxAttempts
	if attempts > len(candidates) {
		attempts = len(candidates)
	}

	observed := make(map[streamerr.Category]int)

	for i := 0; i < attempts; i++ {
		cand := candidates[i]
		entry := s.entryFor(cand.url)

		entry.mu.Lock()
		rate := entry.stats.SuccessRate()
		lastCategory := entry.lastCategory
		entry.mu.Unlock()

		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = AdaptiveTimeout(lastCategory, rate, i)
		}

		logger.Debug("[FALLBACK] Channel %s attempt %d/%d: %s (rate=%.2f, timeout=%s)",
			channel.ID, i+1, attempts, utils.LogURL(s.cfg.ObfuscateUrls, cand.url), rate, timeout)

		result := s.validator.ValidateStreamQuality(ctx, cand.url, quality.Options{
			CheckAudio: opts.CheckAudio,
			CheckVideo: opts.CheckVideo,
			Timeout:    timeout,
		})

		if result.IsValid {
			newRate := s.recordAttempt(cand.url, true, streamerr.CategoryNone)
			s.notifier.Publish(notify.Event{
				Type:        notify.FallbackSuccess,
				StreamURL:   cand.url,
				ChannelID:   channel.ID,
				Attempt:     i + 1,
				SuccessRate: newRate,
			})
			return types.FallbackResult{
				Success:          true,
				Stream:           cand.url,
				FallbackUsed:     cand.priority > 0,
				Attempt:          i + 1,
				ValidationResult: &result,
			}
		}

		observed[result.Category]++
		newRate := s.recordAttempt(cand.url, false, result.Category)
		s.notifier.Publish(notify.Event{
			Type:        notify.FallbackFailure,
			StreamURL:   cand.url,
			ChannelID:   channel.ID,
			Attempt:     i + 1,
			SuccessRate: newRate,
			Message:     result.Category.String(),
		})
	}

	message := diagnosticFor(dominantCategory(observed))
	logger.Warn("[FALLBACK] Channel %s exhausted %d candidates: %s", channel.ID, attempts, message)

	return types.FallbackResult{
		Success: false,
		Attempt: attempts,
		Message: message,
	}
}

// rankCandidates builds and sorts the candidate list: quality match to the
// preferred label first, then primary-before-alternate priority, then
// descending historical success rate.
func (s *Selector) rankCandidates(channel types.Channel, preferred string) []candidate {
	candidates := make([]candidate, 0, 1+len(channel.AlternateURLs))
	if channel.StreamURL != "" {
		candidates = append(candidates, candidate{url: channel.StreamURL, priority: 0, quality: channel.Quality})
	}
	for i, alt := range channel.AlternateURLs {
		if alt == "" {
			continue
		}
		candidates = append(candidates, candidate{url: alt, priority: i + 1, quality: channel.Quality})
	}

	sort.SliceStable(candidates, func(a, b int) bool {
		ca, cb := candidates[a], candidates[b]

		ma, mb := qualityMatches(preferred, ca.quality), qualityMatches(preferred, cb.quality)
		if ma != mb {
			return ma
		}
		if ca.priority != cb.priority {
			return ca.priority < cb.priority
		}
		return s.successRate(ca.url) > s.successRate(cb.url)
	})

	return candidates
}

func qualityMatches(preferred, quality string) bool {
	if preferred == "" {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(preferred), strings.TrimSpace(quality))
}

func (s *Selector) entryFor(url string) *statsEntry {
	entry, _ := s.stats.LoadOrStore(url, &statsEntry{
		stats: types.URLStats{
			URL:         url,
			ErrorCounts: make(map[streamerr.Category]int64),
		},
	})
	return entry
}

func (s *Selector) successRate(url string) float64 {
	entry, ok := s.stats.Load(url)
	if !ok {
		return 0.5
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.stats.SuccessRate()
}

// recordAttempt updates the per-URL reliability record and returns the new
// running success rate.
func (s *Selector) recordAttempt(url string, success bool, category streamerr.Category) float64 {
	entry := s.entryFor(url)

	entry.mu.Lock()
	defer entry.mu.Unlock()

	entry.stats.Attempts++
	if success {
		entry.stats.Successes++
		entry.stats.LastSuccess = time.Now()
		entry.lastCategory = streamerr.CategoryNone
	} else {
		entry.stats.Failures++
		entry.stats.LastFailure = time.Now()
		entry.stats.ErrorCounts[category]++
		entry.lastCategory = category
	}

	return entry.stats.SuccessRate()
}

// Stats returns a copy of the reliability record for one URL.
func (s *Selector) Stats(url string) (types.URLStats, bool) {
	entry, ok := s.stats.Load(url)
	if !ok {
		return types.URLStats{}, false
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	out := entry.stats
	out.ErrorCounts = make(map[streamerr.Category]int64, len(entry.stats.ErrorCounts))
	for k, v := range entry.stats.ErrorCounts {
		out.ErrorCounts[k] = v
	}
	return out, true
}

// categoryPrecedence orders the diagnostic choice when failure counts tie.
// More actionable causes come first.
var categoryPrecedence = []streamerr.Category{
	streamerr.CategoryGeoBlocked,
	streamerr.CategoryAccessDenied,
	streamerr.CategoryContentInvalid,
	streamerr.CategoryContentCorrupted,
	streamerr.CategoryTimeout,
	streamerr.CategoryNetwork,
	streamerr.CategoryServerError,
}

// dominantCategory picks the most frequent observed failure category, breaking
// ties by precedence.
func dominantCategory(observed map[streamerr.Category]int) streamerr.Category {
	best := streamerr.CategoryNone
	bestCount := 0
	for _, cat := range categoryPrecedence {
		if count := observed[cat]; count > bestCount {
			best = cat
			bestCount = count
		}
	}
	return best
}

func diagnosticFor(category streamerr.Category) string {
	switch category {
	case streamerr.CategoryGeoBlocked:
		return "all candidates appear geo-blocked for this region"
	case streamerr.CategoryAccessDenied:
		return "all candidates denied access; credentials or token may have expired"
	case streamerr.CategoryContentInvalid:
		return "candidates are reachable but serve no valid audio/video content"
	case streamerr.CategoryContentCorrupted:
		return "candidates serve corrupted or degenerate content"
	case streamerr.CategoryTimeout:
		return "all candidates timed out; origin may be overloaded"
	case streamerr.CategoryNetwork:
		return "network failures on every candidate"
	case streamerr.CategoryServerError:
		return "origin servers are erroring on every candidate"
	default:
		return "no working stream found"
	}
}
