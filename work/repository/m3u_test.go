package repository

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePlaylist = `#EXTM3U
#EXTINF:-1 tvg-id="news.one" tvg-logo="http://logos.example/one.png" group-title="News",News One HD
http://cdn.example.com/news1/index.m3u8
#EXTINF:-1 tvg-id="news.one" group-title="News",News One HD (backup)
http://backup.example.com/news1/index.m3u8
#EXTINF:-1 tvg-id="" group-title="Sports",Sports Channel 720p
http://cdn.example.com/sports/index.m3u8
#EXTINF:-1,Plain Channel
http://cdn.example.com/plain/index.m3u8
`

func TestParseM3U(t *testing.T) {
	channels, err := ParseM3U(strings.NewReader(samplePlaylist))
	require.NoError(t, err)
	require.Len(t, channels, 3)

	news := channels[0]
	assert.Equal(t, "news.one", news.ID)
	assert.Equal(t, "News One HD", news.Name)
	assert.Equal(t, "http://cdn.example.com/news1/index.m3u8", news.StreamURL)
	assert.Equal(t, []string{"http://backup.example.com/news1/index.m3u8"}, news.AlternateURLs)
	assert.Equal(t, "HD", news.Quality)
	assert.Equal(t, "News", news.Group)
	assert.Equal(t, "http://logos.example/one.png", news.LogoURL)

	sports := channels[1]
	assert.Equal(t, "Sports_Channel_720p", sports.ID)
	assert.Equal(t, "720P", sports.Quality)
	assert.Equal(t, "Sports", sports.Group)

	plain := channels[2]
	assert.Equal(t, "Plain Channel", plain.Name)
	assert.Empty(t, plain.Quality)
}

func TestParseM3UEmptyInput(t *testing.T) {
	channels, err := ParseM3U(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, channels)
}

func TestParseM3UDecoderPicksUpRelativeURI(t *testing.T) {
	// the line scan only attributes scheme-prefixed URLs; a relative segment
	// URI is reachable through the playlist decoder alone
	playlist := `#EXTM3U
#EXTINF:-1 tvg-id="news.one",News One
http://cdn.example.com/news1/index.m3u8
#EXTINF:-1,Relative Feed
live/relative.ts
`
	channels, err := ParseM3U(strings.NewReader(playlist))
	require.NoError(t, err)
	require.Len(t, channels, 2)
	assert.Equal(t, "news.one", channels[0].ID)
	assert.Equal(t, "live/relative.ts", channels[1].StreamURL)
}

func TestParseM3UWithoutHeader(t *testing.T) {
	// headerless playlists still parse through the line scan
	playlist := `#EXTINF:-1 tvg-id="sports.two" group-title="Sports",Sports Two
http://cdn.example.com/sports2/index.m3u8
`
	channels, err := ParseM3U(strings.NewReader(playlist))
	require.NoError(t, err)
	require.Len(t, channels, 1)
	assert.Equal(t, "sports.two", channels[0].ID)
	assert.Equal(t, "Sports", channels[0].Group)
	assert.Equal(t, "http://cdn.example.com/sports2/index.m3u8", channels[0].StreamURL)
}

func TestParseM3UIgnoresURLWithoutEXTINF(t *testing.T) {
	channels, err := ParseM3U(strings.NewReader("#EXTM3U\nhttp://cdn.example.com/orphan.m3u8\n"))
	require.NoError(t, err)
	assert.Empty(t, channels)
}

func TestParseEXTINFNameWithCommaInAttribute(t *testing.T) {
	attrs, name := parseEXTINF(`#EXTINF:-1 tvg-name="One, Two" group-title="Mixed, Stuff",Display Name`)
	assert.Equal(t, "One, Two", attrs["tvg-name"])
	assert.Equal(t, "Mixed, Stuff", attrs["group-title"])
	assert.Equal(t, "Display Name", name)
}

func TestParseEXTINFFallsBackToTvgName(t *testing.T) {
	attrs, name := parseEXTINF(`#EXTINF:-1 tvg-name="Fallback Name"`)
	assert.Equal(t, "Fallback Name", attrs["tvg-name"])
	assert.Equal(t, "Fallback Name", name)
}

func TestDetectQuality(t *testing.T) {
	assert.Equal(t, "HD", detectQuality("Channel One HD"))
	assert.Equal(t, "4K", detectQuality("Nature 4K"))
	assert.Equal(t, "1080P", detectQuality("Movies 1080p"))
	assert.Equal(t, "SD", detectQuality("Old Channel SD"))
	assert.Equal(t, "", detectQuality("Channel Two"))
}
