package monitor

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"streamcheck/work/config"
	"streamcheck/work/logger"
	"streamcheck/work/metrics"
	"streamcheck/work/notify"
	"streamcheck/work/quality"
	"streamcheck/work/types"
	"streamcheck/work/utils"
)

// Manager coordinates continuous monitoring sessions across streams, providing
// centralized lifecycle management and cleanup of finished sessions. Each
// session periodically re-validates a single stream through the deep content
// validator and raises threshold-gated degradation alerts.
//
// The session state machine is deliberately small: active transitions to
// stopped exactly once and stopped is terminal. Monitoring the same URL again
// always produces a fresh session with a new id, so historical counters from a
// previous run can never bleed into a new one.
type Manager struct {
	cfg       *config.Config
	validator *quality.Validator
	notifier  *notify.Notifier
	sessions  *xsync.MapOf[string, *Session]
	enabled   atomic.Bool
	stopChan  chan struct{}
}

// StartOptions tunes one monitoring session. Zero values inherit the config.
type StartOptions struct {
	Interval                    time.Duration
	ConsecutiveFailureThreshold int
	FailureRateThreshold        float64
	Cooldown                    time.Duration
	CheckAudio                  bool
	CheckVideo                  bool
}

// Session is one continuous monitoring run for a single stream URL.
type Session struct {
	id        string
	streamURL string
	opts      StartOptions

	ctx     context.Context
	cancel  context.CancelFunc
	running atomic.Bool

	consecutiveFailures atomic.Int64
	totalChecks         atomic.Int64
	failedChecks        atomic.Int64

	startTime time.Time

	mu        sync.Mutex
	stopped   bool
	endTime   time.Time
	lastAlert time.Time
}

func NewManager(cfg *config.Config, validator *quality.Validator, notifier *notify.Notifier) *Manager {
	return &Manager{
		cfg:       cfg,
		validator: validator,
		notifier:  notifier,
		sessions:  xsync.NewMapOf[string, *Session](),
		stopChan:  make(chan struct{}),
	}
}

// Start activates the manager and its background cleanup routine. Idempotent.
func (m *Manager) Start() {
	if !m.enabled.CompareAndSwap(false, true) {
		return
	}
	go m.cleanupRoutine()
}

// Stop terminates the manager and every active session. Idempotent.
func (m *Manager) Stop() {
	if !m.enabled.CompareAndSwap(true, false) {
		return
	}
	close(m.stopChan)
	m.sessions.Range(func(id string, session *Session) bool {
		m.finalize(session)
		return true
	})
}

// StartMonitoring creates a new session for the stream URL and launches its
// check loop. Returns the fresh session id.
func (m *Manager) StartMonitoring(streamURL string, opts StartOptions) (string, error) {
	if streamURL == "" {
		return "", fmt.Errorf("stream URL is required")
	}
	if !m.enabled.Load() {
		return "", fmt.Errorf("monitor manager is not running")
	}

	if opts.Interval <= 0 {
		opts.Interval = m.cfg.MonitorInterval
	}
	if opts.ConsecutiveFailureThreshold <= 0 {
		opts.ConsecutiveFailureThreshold = m.cfg.ConsecutiveFailures
	}
	if opts.FailureRateThreshold <= 0 {
		opts.FailureRateThreshold = m.cfg.FailureRate
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = m.cfg.AlertCooldown
	}
	if !opts.CheckAudio && !opts.CheckVideo {
		opts.CheckAudio = true
		opts.CheckVideo = true
	}

	session := &Session{
		id:        fmt.Sprintf("mon-%d-%06d", time.Now().UnixMilli(), rand.IntN(1000000)),
		streamURL: streamURL,
		opts:      opts,
		startTime: time.Now(),
	}
	session.ctx, session.cancel = context.WithCancel(context.Background())

	m.sessions.Store(session.id, session)
	metrics.ActiveSessions.Inc()

	go m.watch(session)

	m.notifier.Publish(notify.Event{
		Type:      notify.MonitoringStarted,
		StreamURL: streamURL,
		SessionID: session.id,
	})
	logger.Info("[MONITOR] Session %s started for %s (interval %s)",
		session.id, utils.LogURL(m.cfg.ObfuscateUrls, streamURL), opts.Interval)

	return session.id, nil
}

// StopMonitoring finalizes a session and returns its aggregate stats. Stopping
// an already stopped session returns the recorded final stats unchanged.
func (m *Manager) StopMonitoring(sessionID string) (types.MonitoringStats, error) {
	session, ok := m.sessions.Load(sessionID)
	if !ok {
		return types.MonitoringStats{}, fmt.Errorf("unknown monitoring session %q", sessionID)
	}

	m.finalize(session)

	stats := session.snapshot()
	m.notifier.Publish(notify.Event{
		Type:        notify.MonitoringStopped,
		StreamURL:   session.streamURL,
		SessionID:   session.id,
		SuccessRate: stats.SuccessRate,
	})
	logger.Info("[MONITOR] Session %s stopped: %d checks, %d failed, %.1f%% success",
		session.id, stats.TotalChecks, stats.FailedChecks, stats.SuccessRate*100)

	return stats, nil
}

// GetMonitoringStatus returns a point-in-time snapshot of any known session.
func (m *Manager) GetMonitoringStatus(sessionID string) (types.MonitoringStats, bool) {
	session, ok := m.sessions.Load(sessionID)
	if !ok {
		return types.MonitoringStats{}, false
	}
	return session.snapshot(), true
}

// Sessions lists snapshots of every known session.
func (m *Manager) Sessions() []types.MonitoringStats {
	out := make([]types.MonitoringStats, 0)
	m.sessions.Range(func(id string, session *Session) bool {
		out = append(out, session.snapshot())
		return true
	})
	return out
}

// finalize moves a session to the terminal stopped state exactly once.
func (m *Manager) finalize(session *Session) {
	session.mu.Lock()
	already := session.stopped
	if !already {
		session.stopped = true
		session.endTime = time.Now()
	}
	session.mu.Unlock()

	if already {
		return
	}

	session.cancel()
	metrics.ActiveSessions.Dec()
}

// cleanupRoutine evicts stopped sessions an hour after they ended so status
// queries have a grace window but the registry cannot grow without bound.
func (m *Manager) cleanupRoutine() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopChan:
			return
		case <-ticker.C:
			m.sessions.Range(func(id string, session *Session) bool {
				session.mu.Lock()
				expired := session.stopped && time.Since(session.endTime) > time.Hour
				session.mu.Unlock()
				if expired {
					m.sessions.Delete(id)
				}
				return true
			})
		}
	}
}

// watch is the per-session check loop.
func (m *Manager) watch(session *Session) {
	if !session.running.CompareAndSwap(false, true) {
		return
	}
	defer session.running.Store(false)

	interval := session.opts.Interval
	if m.cfg.Debug {
		logger.Debug("[MONITOR] Session %s: checking every %v", session.id, interval)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-session.ctx.Done():
			return
		case <-ticker.C:
			m.runCheck(session)
		}
	}
}

// runCheck performs one validation pass and applies the alert policy: an alert
// fires when consecutive failures reach the threshold, or when at least ten
// checks have run and the overall failure rate crosses the rate threshold.
// Both paths share the per-session cooldown so a degraded stream produces one
// alert per window instead of one per check.
func (m *Manager) runCheck(session *Session) {
	result := m.validator.ValidateStreamQuality(session.ctx, session.streamURL, quality.Options{
		CheckAudio: session.opts.CheckAudio,
		CheckVideo: session.opts.CheckVideo,
		SkipCache:  true, // a cached verdict defeats the point of re-checking
	})

	total := session.totalChecks.Add(1)

	if result.IsValid {
		session.consecutiveFailures.Store(0)
		return
	}

	consecutive := session.consecutiveFailures.Add(1)
	failed := session.failedChecks.Add(1)

	failureRate := float64(failed) / float64(total)
	shouldAlert := consecutive >= int64(session.opts.ConsecutiveFailureThreshold) ||
		(total >= 10 && failureRate >= session.opts.FailureRateThreshold)

	if !shouldAlert {
		return
	}

	session.mu.Lock()
	inCooldown := !session.lastAlert.IsZero() && time.Since(session.lastAlert) < session.opts.Cooldown
	if !inCooldown {
		session.lastAlert = time.Now()
	}
	session.mu.Unlock()

	if inCooldown {
		logger.Debug("[MONITOR] Session %s: alert suppressed by cooldown (consecutive=%d)",
			session.id, consecutive)
		return
	}

	message := fmt.Sprintf("stream degraded: %d consecutive failures, %.0f%% failure rate",
		consecutive, failureRate*100)
	m.notifier.Publish(notify.Event{
		Type:      notify.StreamAlert,
		StreamURL: session.streamURL,
		SessionID: session.id,
		Message:   message,
	})
	logger.Warn("[MONITOR] Session %s: %s", session.id, message)
}

// snapshot builds a stats view of the session without disturbing it.
func (s *Session) snapshot() types.MonitoringStats {
	s.mu.Lock()
	stopped := s.stopped
	endTime := s.endTime
	s.mu.Unlock()

	total := s.totalChecks.Load()
	failed := s.failedChecks.Load()

	stats := types.MonitoringStats{
		SessionID:           s.id,
		StreamURL:           s.streamURL,
		Status:              types.SessionActive,
		TotalChecks:         total,
		FailedChecks:        failed,
		ConsecutiveFailures: s.consecutiveFailures.Load(),
		StartTime:           s.startTime,
	}

	end := time.Now()
	if stopped {
		stats.Status = types.SessionStopped
		stats.EndTime = endTime
		end = endTime
	}

	stats.Duration = end.Sub(s.startTime)
	if total > 0 {
		stats.SuccessRate = float64(total-failed) / float64(total)
		stats.AverageInterval = stats.Duration / time.Duration(total)
	}

	return stats
}
