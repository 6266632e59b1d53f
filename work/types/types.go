package types

import (
	"time"

	"streamcheck/work/streamerr"
)

// Channel represents one logical broadcast channel as supplied by the channel
// repository collaborator. The checker treats channels as read-only input: the
// primary stream URL is probed first and the alternates serve as fallback
// candidates when the primary fails validation.
type Channel struct {
	ID            string   `json:"id"`                      // Stable identifier assigned by the repository
	Name          string   `json:"name"`                    // Human-readable display name
	StreamURL     string   `json:"streamUrl"`               // Primary stream URL
	AlternateURLs []string `json:"alternateUrls,omitempty"` // Ordered alternates for fallback selection
	Quality       string   `json:"quality,omitempty"`       // Advertised quality label (e.g. "HD", "SD", "1080p")
	Group         string   `json:"group,omitempty"`         // Category/group classification from the playlist
	LogoURL       string   `json:"logoUrl,omitempty"`       // Channel artwork, passed through untouched
}

// ValidationResult is the structured outcome of a single stream probe. Probes
// never surface transport failures as Go errors; every outcome, including retry
// exhaustion, lands in one of these so orchestration can keep moving.
type ValidationResult struct {
	OK           bool                `json:"ok"`                    // True iff status==200 and content-type is allow-listed
	Status       int                 `json:"status"`                // Final HTTP status observed (0 when no response)
	ContentType  string              `json:"contentType,omitempty"` // Content-Type header of the final response
	Reason       string              `json:"reason,omitempty"`      // Machine-readable failure reason (empty on success)
	Category     streamerr.Category  `json:"-"`                     // Failure classification for retry/fallback tuning
	Attempts     int                 `json:"attempts"`              // Number of HTTP attempts performed (>=1)
	ProcessedURL string              `json:"processedUrl"`          // URL actually probed, after cache-busting rewrite
	ChannelID    string              `json:"channelId,omitempty"`   // Channel the probe was performed for
	FinalError   bool                `json:"finalError,omitempty"`  // True when the retry budget was exhausted
	CheckedAt    time.Time           `json:"checkedAt"`             // Completion timestamp
}

// BatchReport aggregates probe results for one validation run. Invariants:
// OK+Fail == Total and len(Results) == Total, with every input channel id
// appearing exactly once. Result order follows completion order within a batch.
type BatchReport struct {
	OK       int                `json:"ok"`
	Fail     int                `json:"fail"`
	Total    int                `json:"total"`
	Batches  int                `json:"batches,omitempty"` // Pages processed in a multi-batch run
	Results  []ValidationResult `json:"results"`
	Duration time.Duration      `json:"duration"`
}

// ConversionStats summarizes an HTTPS->HTTP conversion advisory pass.
type ConversionStats struct {
	Total           int `json:"total"`
	Converted       int `json:"converted"`       // Channels whose HTTP twin validated and was adopted
	HTTPWorking     int `json:"httpWorking"`     // HTTP twins that passed validation
	OriginalWorking int `json:"originalWorking"` // Original URLs that passed validation
	Failed          int `json:"failed"`          // Channels where neither variant validated
}

// ConversionDecision records the advisory outcome for a single channel.
// Channels are never dropped; a failed conversion degrades to pass-through.
type ConversionDecision struct {
	ChannelID       string `json:"channelId"`
	OriginalURL     string `json:"originalUrl"`
	FinalURL        string `json:"finalUrl"`
	Converted       bool   `json:"converted"`
	HTTPWorking     bool   `json:"httpWorking"`
	OriginalWorking bool   `json:"originalWorking"`
}

// ConversionReport is the full output of a conversion advisory pass. The
// Processed slice always has the same length and order as the input.
type ConversionReport struct {
	Processed []Channel            `json:"processed"`
	Stats     ConversionStats      `json:"stats"`
	Results   []ConversionDecision `json:"results"`
}

// TrackStatus describes what the content validator found for one track kind.
type TrackStatus struct {
	Present    bool   `json:"present"`
	Consistent bool   `json:"consistent"`
	Codec      string `json:"codec,omitempty"`
}

// SampleMetadata carries diagnostic facts about the downloaded sample.
type SampleMetadata struct {
	ContentType  string `json:"contentType,omitempty"`
	SampleBytes  int    `json:"sampleBytes"`
	PlaylistKind string `json:"playlistKind,omitempty"` // "hls-media", "hls-master" or "binary"
	SegmentCount int    `json:"segmentCount,omitempty"`
	VariantCount int    `json:"variantCount,omitempty"`
}

// QualityResult is the outcome of a deep content validation: a bounded sample
// download plus HLS playlist parsing or binary marker scanning. IsValid holds
// only when no issues accumulated and every requested track kind is present
// and consistent.
type QualityResult struct {
	IsValid     bool           `json:"isValid"`
	AudioStatus TrackStatus    `json:"audioStatus"`
	VideoStatus TrackStatus    `json:"videoStatus"`
	Issues      []string       `json:"issues,omitempty"`
	Category    streamerr.Category `json:"-"` // Dominant failure class when invalid
	Metadata    SampleMetadata `json:"metadata"`
	CheckedAt   time.Time      `json:"checkedAt"`
}

// FallbackResult reports the outcome of candidate iteration for one channel.
type FallbackResult struct {
	Success          bool           `json:"success"`
	Stream           string         `json:"stream,omitempty"`       // URL that validated, empty on total exhaustion
	FallbackUsed     bool           `json:"fallbackUsed"`           // True when a non-primary candidate won
	Attempt          int            `json:"attempt"`                // 1-based attempt index that succeeded (or total tried)
	Message          string         `json:"message,omitempty"`      // Diagnostic chosen by dominant failure category
	ValidationResult *QualityResult `json:"validationResult,omitempty"`
}

// URLStats is the per-URL reliability record kept by the fallback selector for
// the lifetime of the process. The histogram keys are streamerr categories.
type URLStats struct {
	URL         string                     `json:"url"`
	Attempts    int64                      `json:"attempts"`
	Successes   int64                      `json:"successes"`
	Failures    int64                      `json:"failures"`
	ErrorCounts map[streamerr.Category]int64 `json:"-"`
	LastSuccess time.Time                  `json:"lastSuccess,omitempty"`
	LastFailure time.Time                  `json:"lastFailure,omitempty"`
}

// SuccessRate returns the historical success ratio, defaulting to 0.5 for
// URLs that have never been attempted so unseen candidates rank neutrally.
func (s *URLStats) SuccessRate() float64 {
	if s == nil || s.Attempts == 0 {
		return 0.5
	}
	return float64(s.Successes) / float64(s.Attempts)
}

// SessionStatus is the lifecycle state of a monitoring session. Stopped is
// terminal; monitoring the same URL again creates a fresh session.
type SessionStatus string

const (
	SessionActive  SessionStatus = "active"
	SessionStopped SessionStatus = "stopped"
)

// MonitoringStats is a point-in-time or final snapshot of a monitoring session.
type MonitoringStats struct {
	SessionID           string        `json:"sessionId"`
	StreamURL           string        `json:"streamUrl"`
	Status              SessionStatus `json:"status"`
	TotalChecks         int64         `json:"totalChecks"`
	FailedChecks        int64         `json:"failedChecks"`
	ConsecutiveFailures int64         `json:"consecutiveFailures"`
	SuccessRate         float64       `json:"successRate"`
	StartTime           time.Time     `json:"startTime"`
	EndTime             time.Time     `json:"endTime,omitempty"`
	Duration            time.Duration `json:"duration"`
	AverageInterval     time.Duration `json:"averageInterval"`
}
