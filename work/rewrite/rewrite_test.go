package rewrite

import (
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamcheck/work/config"
)

func testConfig(patterns ...string) *config.Config {
	return &config.Config{
		ProviderPatterns: patterns,
		UIDPrefix:        "sc",
		UIDCacheExpiry:   time.Minute,
	}
}

func TestProcessStreamURLAddsUID(t *testing.T) {
	r := New(testConfig(`cdn\.example\.com`))

	out := r.ProcessStreamURL("http://cdn.example.com/live/1.ts", "ch1")
	u, err := url.Parse(out)
	require.NoError(t, err)

	uid := u.Query().Get("uid")
	require.NotEmpty(t, uid)
	assert.True(t, strings.HasPrefix(uid, "sc"))
	assert.Len(t, uid, len("sc")+6)
}

func TestProcessStreamURLPinsUIDPerChannel(t *testing.T) {
	r := New(testConfig(`cdn\.example\.com`))

	first := r.ProcessStreamURL("http://cdn.example.com/live/1.ts", "ch1")
	second := r.ProcessStreamURL("http://cdn.example.com/live/1.ts", "ch1")
	assert.Equal(t, first, second)
}

func TestProcessStreamURLPreservesExistingQuery(t *testing.T) {
	r := New(testConfig(`cdn\.example\.com`))

	out := r.ProcessStreamURL("http://cdn.example.com/live/1.ts?token=abc", "ch1")
	u, err := url.Parse(out)
	require.NoError(t, err)

	assert.Equal(t, "abc", u.Query().Get("token"))
	assert.NotEmpty(t, u.Query().Get("uid"))
}

func TestProcessStreamURLNonMatchingHost(t *testing.T) {
	r := New(testConfig(`cdn\.example\.com`))

	raw := "http://other.example.org/live/1.ts"
	assert.Equal(t, raw, r.ProcessStreamURL(raw, "ch1"))
}

func TestProcessStreamURLNoPatterns(t *testing.T) {
	r := New(testConfig())

	raw := "http://cdn.example.com/live/1.ts"
	assert.Equal(t, raw, r.ProcessStreamURL(raw, "ch1"))
}

func TestProcessStreamURLBadInputPassesThrough(t *testing.T) {
	r := New(testConfig(`.*`))

	assert.Equal(t, "", r.ProcessStreamURL("", "ch1"))
	assert.Equal(t, "not a url", r.ProcessStreamURL("not a url", "ch1"))
}

func TestInvalidPatternSkipped(t *testing.T) {
	r := New(testConfig(`[broken`, `cdn\.example\.com`))

	out := r.ProcessStreamURL("http://cdn.example.com/live/1.ts", "ch1")
	assert.Contains(t, out, "uid=")
}

func TestInvalidateDropsPinnedUID(t *testing.T) {
	r := New(testConfig(`cdn\.example\.com`))

	r.ProcessStreamURL("http://cdn.example.com/live/1.ts", "ch1")
	r.Invalidate("ch1")
	second := r.ProcessStreamURL("http://cdn.example.com/live/1.ts", "ch1")

	// a fresh uid is generated; it still has the configured shape
	u, err := url.Parse(second)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(u.Query().Get("uid"), "sc"))
}
