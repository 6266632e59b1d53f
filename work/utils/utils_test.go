package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestObfuscateURL(t *testing.T) {
	assert.Equal(t, "", ObfuscateURL(""))
	assert.Equal(t, "http://cdn.example.com/***",
		ObfuscateURL("http://cdn.example.com/live/abc123/9941.ts"))
	assert.Equal(t, "https://cdn.example.com/***?***",
		ObfuscateURL("https://cdn.example.com/live/playlist.m3u8?token=secret"))
	assert.Equal(t, "http://cdn.example.com",
		ObfuscateURL("http://cdn.example.com"))
}

func TestLogURL(t *testing.T) {
	raw := "http://cdn.example.com/live/secret/1.ts"
	assert.Equal(t, raw, LogURL(false, raw))
	assert.Equal(t, "http://cdn.example.com/***", LogURL(true, raw))
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", FormatBytes(512))
	assert.Equal(t, "2.0 KB", FormatBytes(2048))
	assert.Equal(t, "5.0 MB", FormatBytes(5*1024*1024))
	assert.Equal(t, "1.5 GB", FormatBytes(3*1024*1024*1024/2))
}

func TestSanitizeChannelName(t *testing.T) {
	assert.Equal(t, "Channel_One_HD_US", SanitizeChannelName("Channel One: HD/US"))
	assert.Equal(t, "News_24", SanitizeChannelName(`"News 24"`))
	assert.Equal(t, "abc", SanitizeChannelName("__abc__"))
	assert.Equal(t, "", SanitizeChannelName(""))
}
