package repository

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCSV(t *testing.T) {
	doc := `id,name,url,alternates,quality,group
news.one,News One,http://cdn.example.com/news1.m3u8,http://b.example.com/news1.m3u8|http://c.example.com/news1.m3u8,hd,News
,Sports,http://cdn.example.com/sports.m3u8,,,Sports
`
	channels, err := ParseCSV(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, channels, 2)

	news := channels[0]
	assert.Equal(t, "news.one", news.ID)
	assert.Equal(t, "News One", news.Name)
	assert.Equal(t, "http://cdn.example.com/news1.m3u8", news.StreamURL)
	assert.Equal(t, []string{
		"http://b.example.com/news1.m3u8",
		"http://c.example.com/news1.m3u8",
	}, news.AlternateURLs)
	assert.Equal(t, "HD", news.Quality)
	assert.Equal(t, "News", news.Group)

	sports := channels[1]
	assert.Equal(t, "channel-2", sports.ID, "missing id gets a positional one")
	assert.Empty(t, sports.AlternateURLs)
}

func TestParseCSVStreamURLColumn(t *testing.T) {
	doc := "name,streamUrl\nNews,http://cdn.example.com/news.m3u8\n"
	channels, err := ParseCSV(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, channels, 1)
	assert.Equal(t, "http://cdn.example.com/news.m3u8", channels[0].StreamURL)
	assert.Equal(t, "News", channels[0].Name)
}

func TestParseCSVMissingURLColumn(t *testing.T) {
	_, err := ParseCSV(strings.NewReader("id,name\n1,News\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "url column")
}

func TestParseCSVSkipsEmptyURLRows(t *testing.T) {
	doc := "id,url\nch-1,http://cdn.example.com/a.m3u8\nch-2,\n"
	channels, err := ParseCSV(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, channels, 1)
	assert.Equal(t, "ch-1", channels[0].ID)
}

func TestParseCSVEmptyDocument(t *testing.T) {
	_, err := ParseCSV(strings.NewReader(""))
	require.Error(t, err)
}
