package quality

import (
	"bufio"
	"bytes"
	"strings"

	"github.com/grafov/m3u8"
)

// hlsFindings summarizes what a downloaded playlist sample contains.
type hlsFindings struct {
	kind     string // "hls-media" or "hls-master"
	parsed   bool
	segments int
	variants int
	video    TrackFindings
	audio    TrackFindings
}

// parseHLSSample inspects a sample beginning with #EXTM3U. Decoding goes
// through grafov/m3u8 first; real-world provider playlists frequently violate
// the HLS RFC in ways the strict decoder rejects, so a line scan acts as fallback
// (and always supplies codec/track attributes, which the media-playlist decoder
// does not surface).
func parseHLSSample(sample []byte) hlsFindings {
	findings := scanPlaylistLines(sample)

	playlist, listType, err := m3u8.DecodeFrom(bytes.NewReader(sample), false)
	if err != nil {
		// fall back entirely on the line scan
		findings.parsed = findings.segments > 0 || findings.variants > 0
		return findings
	}

	findings.parsed = true

	switch listType {
	case m3u8.MEDIA:
		findings.kind = "hls-media"
		media := playlist.(*m3u8.MediaPlaylist)
		count := 0
		for _, seg := range media.Segments {
			if seg != nil {
				count++
			}
		}
		if count > findings.segments {
			findings.segments = count
		}
	case m3u8.MASTER:
		findings.kind = "hls-master"
		master := playlist.(*m3u8.MasterPlaylist)
		variants := 0
		for _, variant := range master.Variants {
			if variant == nil {
				continue
			}
			variants++
			mergeCodecs(&findings, variant.Codecs)
			for _, alt := range variant.Alternatives {
				if alt == nil {
					continue
				}
				mergeMediaType(&findings, alt.Type)
			}
		}
		if variants > findings.variants {
			findings.variants = variants
		}
	}

	return findings
}

// scanPlaylistLines walks the sample line by line collecting EXTINF segment
// counts, CODECS attribute classification and EXT-X-MEDIA TYPE tags.
func scanPlaylistLines(sample []byte) hlsFindings {
	findings := hlsFindings{kind: "hls-media"}

	scanner := bufio.NewScanner(bytes.NewReader(sample))
	scanner.Buffer(make([]byte, 0, 64*1024), 128*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case strings.HasPrefix(line, "#EXTINF"):
			findings.segments++
		case strings.HasPrefix(line, "#EXT-X-STREAM-INF"):
			findings.kind = "hls-master"
			findings.variants++
			if idx := strings.Index(line, `CODECS="`); idx >= 0 {
				rest := line[idx+len(`CODECS="`):]
				if end := strings.IndexByte(rest, '"'); end >= 0 {
					mergeCodecs(&findings, rest[:end])
				}
			}
		case strings.HasPrefix(line, "#EXT-X-MEDIA"):
			if strings.Contains(line, "TYPE=AUDIO") {
				mergeMediaType(&findings, "AUDIO")
			}
			if strings.Contains(line, "TYPE=VIDEO") {
				mergeMediaType(&findings, "VIDEO")
			}
		}
	}

	return findings
}

// mergeCodecs folds a CODECS attribute value ("avc1.4d401f,mp4a.40.2") into the
// track findings. avc1/hev1/hvc1 classify as video, mp4a/ac-3/ec-3 as audio.
func mergeCodecs(findings *hlsFindings, codecs string) {
	for _, codec := range strings.Split(codecs, ",") {
		codec = strings.TrimSpace(strings.Trim(codec, `"`))
		if codec == "" {
			continue
		}
		switch {
		case strings.HasPrefix(codec, "avc1"),
			strings.HasPrefix(codec, "hev1"),
			strings.HasPrefix(codec, "hvc1"):
			findings.video = TrackFindings{Present: true, Consistent: true, Codec: codec}
		case strings.HasPrefix(codec, "mp4a"),
			strings.HasPrefix(codec, "ac-3"),
			strings.HasPrefix(codec, "ec-3"):
			findings.audio = TrackFindings{Present: true, Consistent: true, Codec: codec}
		}
	}
}

func mergeMediaType(findings *hlsFindings, mediaType string) {
	switch strings.ToUpper(mediaType) {
	case "AUDIO":
		if !findings.audio.Present {
			findings.audio = TrackFindings{Present: true, Consistent: true}
		}
	case "VIDEO":
		if !findings.video.Present {
			findings.video = TrackFindings{Present: true, Consistent: true}
		}
	}
}
