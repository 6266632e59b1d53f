package repository

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/grafana/regexp"
	"github.com/grafov/m3u8"

	"streamcheck/work/types"
	"streamcheck/work/utils"
)

var (
	extinfAttrRe = regexp.MustCompile(`([a-zA-Z0-9-]+)="([^"]*)"`)
	qualityRe    = regexp.MustCompile(`(?i)\b(4K|UHD|FHD|1080p?|720p?|HD|SD)\b`)
)

// playlistEntry pairs one stream URL with the EXTINF attributes and display
// name that precede it.
type playlistEntry struct {
	attrs map[string]string
	name  string
	url   string
}

// ParseM3U reads an extended M3U playlist into Channel records. The playlist
// is decoded with grafov (an IPTV channel list parses as a media playlist
// whose segments are the channel URLs) and the raw EXTINF lines are scanned
// alongside it, since the decoder drops the tvg-* attributes. Entries that
// share a tvg-id (or, failing that, a sanitized name) are merged into one
// logical channel: the first URL becomes the primary stream and the rest
// become fallback alternates in playlist order.
func ParseM3U(reader io.Reader) ([]types.Channel, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read playlist: %w", err)
	}

	entries, err := scanEntries(data)
	if err != nil {
		return nil, err
	}

	// the decoder also surfaces segment URIs without a scheme prefix, which
	// the line scan cannot attribute; input grafov rejects keeps the
	// scanned entries alone
	if uris, ok := decodeChannelURIs(data); ok {
		entries = mergeDecodedURIs(entries, uris)
	}

	return buildChannels(entries), nil
}

// decodeChannelURIs runs the grafov decoder over the playlist and returns the
// segment URIs in order. Master playlists and undecodable input report false.
func decodeChannelURIs(data []byte) ([]string, bool) {
	playlist, listType, err := m3u8.DecodeFrom(bytes.NewReader(data), false)
	if err != nil || listType != m3u8.MEDIA {
		return nil, false
	}
	media, ok := playlist.(*m3u8.MediaPlaylist)
	if !ok {
		return nil, false
	}

	var uris []string
	for _, seg := range media.Segments {
		if seg == nil || seg.URI == "" {
			continue
		}
		uris = append(uris, seg.URI)
	}
	return uris, len(uris) > 0
}

// scanEntries walks the raw playlist lines pairing each EXTINF attribute
// block with the URL that follows it.
func scanEntries(data []byte) ([]playlistEntry, error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var entries []playlistEntry
	var current map[string]string
	var currentName string

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		switch {
		case strings.HasPrefix(line, "#EXTINF:"):
			current, currentName = parseEXTINF(line)
		case current != nil && (strings.HasPrefix(line, "http://") || strings.HasPrefix(line, "https://")):
			entries = append(entries, playlistEntry{attrs: current, name: currentName, url: line})
			current, currentName = nil, ""
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan playlist: %w", err)
	}

	return entries, nil
}

// mergeDecodedURIs appends URIs only the decoder saw; the scanned entries
// keep their order since they carry the attributes.
func mergeDecodedURIs(entries []playlistEntry, uris []string) []playlistEntry {
	known := make(map[string]bool, len(entries))
	for _, e := range entries {
		known[e.url] = true
	}
	for _, uri := range uris {
		if !known[uri] {
			entries = append(entries, playlistEntry{url: uri})
		}
	}
	return entries
}

func buildChannels(entries []playlistEntry) []types.Channel {
	var channels []types.Channel
	index := make(map[string]int)

	for _, e := range entries {
		key := e.attrs["tvg-id"]
		if key == "" {
			key = utils.SanitizeChannelName(e.name)
		}
		if key == "" {
			key = fmt.Sprintf("channel-%d", len(channels)+1)
		}

		if i, exists := index[key]; exists {
			channels[i].AlternateURLs = append(channels[i].AlternateURLs, e.url)
			continue
		}

		name := e.name
		if name == "" {
			name = key
		}
		channels = append(channels, types.Channel{
			ID:        key,
			Name:      name,
			StreamURL: e.url,
			Quality:   detectQuality(name),
			Group:     e.attrs["group-title"],
			LogoURL:   e.attrs["tvg-logo"],
		})
		index[key] = len(channels) - 1
	}

	return channels
}

// parseEXTINF extracts the quoted key="value" attributes and the display name
// that follows the last unquoted comma.
func parseEXTINF(line string) (map[string]string, string) {
	attrs := make(map[string]string)
	body := strings.TrimPrefix(line, "#EXTINF:")

	for _, match := range extinfAttrRe.FindAllStringSubmatch(body, -1) {
		attrs[strings.ToLower(match[1])] = match[2]
	}

	// the display name follows the last comma outside of quotes
	name := ""
	inQuotes := false
	for i := len(body) - 1; i >= 0; i-- {
		if body[i] == '"' {
			inQuotes = !inQuotes
		} else if body[i] == ',' && !inQuotes {
			name = strings.TrimSpace(body[i+1:])
			break
		}
	}

	if name == "" {
		name = attrs["tvg-name"]
	}

	return attrs, name
}

// detectQuality derives a quality label from a channel name suffix like
// "Channel One HD". Returns empty when nothing recognizable is present.
func detectQuality(name string) string {
	match := qualityRe.FindString(name)
	return strings.ToUpper(match)
}
