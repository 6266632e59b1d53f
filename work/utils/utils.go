package utils

import (
	"fmt"
	"net/url"
	"strings"
)

// LogURL returns either the original URL or an obfuscated version for logging
func LogURL(obfuscate bool, u string) string {
	if obfuscate {
		return ObfuscateURL(u)
	}
	return u
}

// ObfuscateURL keeps the scheme and host of a URL and masks everything after them,
// so stream URLs with embedded tokens can still be correlated in logs.
func ObfuscateURL(urlStr string) string {
	if urlStr == "" {
		return ""
	}

	u, err := url.Parse(urlStr)
	if err != nil {
		// If parsing fails, just obfuscate the whole thing
		return "***OBFUSCATED***"
	}

	result := u.Scheme + "://" + u.Host
	if u.Path != "" && u.Path != "/" {
		result += "/***"
	}
	if u.RawQuery != "" {
		result += "?***"
	}
	if u.Fragment != "" {
		result += "#***"
	}

	return result
}

// FormatBytes renders a byte count in a human readable unit.
func FormatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}

// SanitizeChannelName strips characters that break playlists and log grepping.
func SanitizeChannelName(name string) string {
	sanitized := name
	for _, ch := range []string{"\"", "'"} {
		sanitized = strings.ReplaceAll(sanitized, ch, "")
	}
	for _, ch := range []string{" ", ",", "/", "\\", "?", "&", "=", ":", ";", "|", "*", "<", ">"} {
		sanitized = strings.ReplaceAll(sanitized, ch, "_")
	}
	for strings.Contains(sanitized, "__") {
		sanitized = strings.ReplaceAll(sanitized, "__", "_")
	}
	return strings.Trim(sanitized, "_")
}
