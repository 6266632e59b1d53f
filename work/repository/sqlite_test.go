package repository

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamcheck/work/types"
)

func openTestStore(t *testing.T) *SQLiteRepository {
	t.Helper()
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "channels.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteImportAndPaginate(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	channels := make([]types.Channel, 0, 5)
	for i := 0; i < 5; i++ {
		channels = append(channels, types.Channel{
			ID:            fmt.Sprintf("ch-%d", i),
			Name:          fmt.Sprintf("Channel %d", i),
			StreamURL:     fmt.Sprintf("http://cdn.example.com/%d.m3u8", i),
			AlternateURLs: []string{fmt.Sprintf("http://backup.example.com/%d.m3u8", i)},
			Quality:       "HD",
			Group:         "News",
		})
	}

	written, err := store.ImportChannels(ctx, channels)
	require.NoError(t, err)
	assert.Equal(t, 5, written)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, count)

	page, err := store.GetChannelsPaginated(ctx, 0, 3)
	require.NoError(t, err)
	require.Len(t, page, 3)
	assert.Equal(t, "ch-0", page[0].ID)
	assert.Equal(t, []string{"http://backup.example.com/0.m3u8"}, page[0].AlternateURLs)
	assert.Equal(t, "HD", page[0].Quality)

	page, err = store.GetChannelsPaginated(ctx, 3, 3)
	require.NoError(t, err)
	assert.Len(t, page, 2)

	page, err = store.GetChannelsPaginated(ctx, 6, 3)
	require.NoError(t, err)
	assert.Empty(t, page)
}

func TestSQLiteImportUpserts(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	_, err := store.ImportChannels(ctx, []types.Channel{
		{ID: "ch-1", Name: "Before", StreamURL: "http://cdn.example.com/old.m3u8"},
	})
	require.NoError(t, err)

	_, err = store.ImportChannels(ctx, []types.Channel{
		{ID: "ch-1", Name: "After", StreamURL: "http://cdn.example.com/new.m3u8"},
	})
	require.NoError(t, err)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	all, err := store.GetAllChannelsUnfiltered(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "After", all[0].Name)
	assert.Equal(t, "http://cdn.example.com/new.m3u8", all[0].StreamURL)
}
