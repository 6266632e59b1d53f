package streamerr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"syscall"
)

// Category is the closed set of failure classes produced at the network boundary.
// Downstream code (retry loops, fallback timeout tuning, diagnostics) switches on
// the category and never inspects error strings.
type Category int

const (
	CategoryNone Category = iota
	CategoryNetwork          // connection-level failure: reset, refused, DNS
	CategoryTimeout          // deadline exceeded on connect or read
	CategoryServerError      // HTTP 5xx / 408 / 429, worth retrying
	CategoryHTTPStatus       // other non-200 status, terminal
	CategoryGeoBlocked       // HTTP 451, origin refuses this region
	CategoryAccessDenied     // HTTP 401 / 403
	CategoryContentType      // reachable but wrong payload kind, terminal
	CategoryContentInvalid   // sample parsed but lacks expected structure
	CategoryContentCorrupted // sample is degenerate or scrambled
	CategoryBatch            // whole-batch failure marker
)

var categoryNames = map[Category]string{
	CategoryNone:             "none",
	CategoryNetwork:          "network",
	CategoryTimeout:          "timeout",
	CategoryServerError:      "server_error",
	CategoryHTTPStatus:       "http_status",
	CategoryGeoBlocked:       "geo_blocked",
	CategoryAccessDenied:     "access_denied",
	CategoryContentType:      "content_type",
	CategoryContentInvalid:   "content_invalid",
	CategoryContentCorrupted: "content_corrupted",
	CategoryBatch:            "batch",
}

func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return "unknown"
}

// Retryable reports whether a probe attempt that failed with this category is
// worth repeating with backoff. Terminal categories fail immediately.
func (c Category) Retryable() bool {
	switch c {
	case CategoryNetwork, CategoryTimeout, CategoryServerError:
		return true
	default:
		return false
	}
}

// StreamError is a classified failure carrying a machine-readable reason string.
type StreamError struct {
	Category Category
	Reason   string
	URL      string
	Err      error
}

func (e *StreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Category, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Category, e.Reason)
}

func (e *StreamError) Unwrap() error {
	return e.Err
}

// New builds a StreamError with an explicit category and reason.
func New(category Category, reason, rawURL string, err error) *StreamError {
	return &StreamError{Category: category, Reason: reason, URL: rawURL, Err: err}
}

// CategoryOf extracts the category from any error, classifying raw transport
// errors on the fly when they were not produced by this package.
func CategoryOf(err error) Category {
	if err == nil {
		return CategoryNone
	}
	var se *StreamError
	if errors.As(err, &se) {
		return se.Category
	}
	return Classify(err)
}

// Classify maps a transport-level error into a Category. This is the single
// place where raw net/http errors are interpreted; callers must not duplicate
// this logic with string scanning.
func Classify(err error) Category {
	if err == nil {
		return CategoryNone
	}

	if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) {
		return CategoryTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return CategoryTimeout
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return CategoryNetwork
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.EPIPE) {
		return CategoryNetwork
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return Classify(urlErr.Err)
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return CategoryNetwork
	}

	// http.Client wraps EOF-ish transport failures without a typed error
	if errors.Is(err, syscall.EHOSTUNREACH) || errors.Is(err, syscall.ENETUNREACH) {
		return CategoryNetwork
	}

	return CategoryNetwork
}

// ClassifyStatus maps a non-200 HTTP status code into a Category.
func ClassifyStatus(code int) Category {
	switch {
	case code == 451:
		return CategoryGeoBlocked
	case code == 401 || code == 403:
		return CategoryAccessDenied
	case code == 408 || code == 429 || code >= 500:
		return CategoryServerError
	default:
		return CategoryHTTPStatus
	}
}

// Reason string constructors. Reasons are stable machine-readable identifiers
// surfaced in ValidationResult.Reason and aggregate reports.

func ReasonHTTP(code int) string {
	return fmt.Sprintf("HTTP_NOT_200:%d", code)
}

func ReasonContentType(contentType string) string {
	ct := contentType
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	return "INVALID_CONTENT_TYPE:" + ct
}

func ReasonCategory(c Category) string {
	return strings.ToUpper(c.String())
}

const (
	ReasonBatchError   = "BATCH_ERROR"
	ReasonFinalRetries = "RETRIES_EXHAUSTED"
	ReasonEmptyURL     = "EMPTY_URL"
)
