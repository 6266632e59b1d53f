package rewrite

import (
	"fmt"
	"math/rand/v2"
	"net/url"

	"github.com/grafana/regexp"

	"streamcheck/work/cache"
	"streamcheck/work/config"
	"streamcheck/work/logger"
	"streamcheck/work/metrics"
)

// Rewriter injects a cache-busting `uid` query parameter into stream URLs for
// providers whose CDNs serve stale or poisoned cached responses. The UID is
// pinned per channel for the configured expiry window so consecutive validation
// passes see an identical URL; the expiry is validated by the config layer to
// exceed the monitoring interval, otherwise a rotating UID would make a healthy
// stream look like a different (and therefore broken) URL between checks.
type Rewriter struct {
	cfg      *config.Config
	patterns []*regexp.Regexp
	uids     *cache.TTLCache[string]
}

// New compiles the configured provider host patterns. Invalid patterns are
// logged and skipped rather than failing startup.
func New(cfg *config.Config) *Rewriter {
	patterns := make([]*regexp.Regexp, 0, len(cfg.ProviderPatterns))
	for _, p := range cfg.ProviderPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			logger.Warn("[REWRITE] Invalid provider pattern %q: %v", p, err)
			continue
		}
		patterns = append(patterns, re)
	}

	return &Rewriter{
		cfg:      cfg,
		patterns: patterns,
		uids:     cache.NewTTL[string](4096, cfg.UIDCacheExpiry),
	}
}

// ProcessStreamURL rewrites rawURL with a per-channel cache-busting UID when its
// host matches a configured provider. On any internal failure the original URL
// is returned unchanged; the rewriter must never turn a checkable URL into an
// uncheckable one.
func (r *Rewriter) ProcessStreamURL(rawURL, channelID string) string {
	if rawURL == "" || len(r.patterns) == 0 {
		return rawURL
	}

	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}

	if !r.matches(u.Hostname()) {
		return rawURL
	}

	uid := r.uidFor(channelID)

	q := u.Query()
	q.Set("uid", uid)
	u.RawQuery = q.Encode()

	return u.String()
}

func (r *Rewriter) matches(host string) bool {
	for _, re := range r.patterns {
		if re.MatchString(host) {
			return true
		}
	}
	return false
}

// uidFor returns the pinned UID for a channel, generating a fresh one only when
// the cached value has expired.
func (r *Rewriter) uidFor(channelID string) string {
	if uid, ok := r.uids.Get(channelID); ok {
		metrics.CacheEvents.WithLabelValues("uid", "hit").Inc()
		return uid
	}
	metrics.CacheEvents.WithLabelValues("uid", "miss").Inc()

	uid := fmt.Sprintf("%s%06d", r.cfg.UIDPrefix, rand.IntN(1000000))
	r.uids.Set(channelID, uid)

	logger.Debug("[REWRITE] Generated uid %s for channel %s", uid, channelID)
	return uid
}

// Invalidate drops the pinned UID for one channel.
func (r *Rewriter) Invalidate(channelID string) {
	r.uids.Delete(channelID)
}
