package repository

import (
	"context"

	"streamcheck/work/types"
)

// ChannelRepository is the collaborator that supplies Channel records to the
// validation pipeline. Implementations are read-only from the checker's point
// of view; it never mutates channels, only reports on them.
type ChannelRepository interface {
	// GetChannelsPaginated returns the page of channels at [offset, offset+limit).
	// An empty slice signals the end of the set.
	GetChannelsPaginated(ctx context.Context, offset, limit int) ([]types.Channel, error)

	// GetAllChannelsUnfiltered returns every channel in one slice.
	GetAllChannelsUnfiltered(ctx context.Context) ([]types.Channel, error)
}

// MemoryRepository serves channels from an in-memory slice. It backs one-shot
// API requests that carry their channel list inline, and playlist imports that
// don't need persistence.
type MemoryRepository struct {
	channels []types.Channel
}

func NewMemoryRepository(channels []types.Channel) *MemoryRepository {
	return &MemoryRepository{channels: channels}
}

func (r *MemoryRepository) GetChannelsPaginated(ctx context.Context, offset, limit int) ([]types.Channel, error) {
	if offset < 0 || offset >= len(r.channels) {
		return nil, nil
	}
	end := offset + limit
	if end > len(r.channels) {
		end = len(r.channels)
	}
	page := make([]types.Channel, end-offset)
	copy(page, r.channels[offset:end])
	return page, nil
}

func (r *MemoryRepository) GetAllChannelsUnfiltered(ctx context.Context) ([]types.Channel, error) {
	out := make([]types.Channel, len(r.channels))
	copy(out, r.channels)
	return out, nil
}

func (r *MemoryRepository) Count() int {
	return len(r.channels)
}
