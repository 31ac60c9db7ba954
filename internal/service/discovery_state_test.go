package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memProperties 内存属性表，可注入写入失败
type memProperties struct {
	values   map[string]string
	writeErr error
	writes   int
}

func newMemProperties() *memProperties {
	return &memProperties{values: make(map[string]string)}
}

func (m *memProperties) Get(ctx context.Context, key string) (string, bool, error) {
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *memProperties) UpsertMany(ctx context.Context, values map[string]string) error {
	if m.writeErr != nil {
		return m.writeErr
	}
	m.writes++
	for k, v := range values {
		m.values[k] = v
	}
	return nil
}

func TestLoadDiscoveryStateDefaults(t *testing.T) {
	store := newMemProperties()
	store.values[PropTotalPages] = "not-a-number"

	state, err := LoadDiscoveryState(context.Background(), store)
	require.NoError(t, err)

	p := state.Snapshot()
	assert.Equal(t, Progress{}, p)
	assert.False(t, p.Exhausted())
	assert.Equal(t, 1, p.NextPage())
}

func TestDiscoveryStateAdvancePersists(t *testing.T) {
	ctx := context.Background()
	store := newMemProperties()
	state, err := LoadDiscoveryState(ctx, store)
	require.NoError(t, err)

	require.NoError(t, state.Advance(ctx, 1, 5))
	assert.Equal(t, "1", store.values[PropPagesExplored])
	assert.Equal(t, "5", store.values[PropTotalPages])

	// 上游总页数变化时覆盖
	require.NoError(t, state.Advance(ctx, 2, 9))
	assert.Equal(t, Progress{PagesExplored: 2, TotalPages: 9}, state.Snapshot())

	reloaded, err := LoadDiscoveryState(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, state.Snapshot(), reloaded.Snapshot())
}

func TestDiscoveryStateAdvanceClamps(t *testing.T) {
	ctx := context.Background()
	state, err := LoadDiscoveryState(ctx, newMemProperties())
	require.NoError(t, err)

	require.NoError(t, state.Advance(ctx, 7, 4))
	assert.Equal(t, Progress{PagesExplored: 4, TotalPages: 4}, state.Snapshot())
	assert.True(t, state.Snapshot().Exhausted())
}

func TestDiscoveryStateEmptyCatalogKeepsCursor(t *testing.T) {
	ctx := context.Background()
	store := newMemProperties()
	state, err := LoadDiscoveryState(ctx, store)
	require.NoError(t, err)

	require.NoError(t, state.Advance(ctx, 1, 0))
	assert.Equal(t, Progress{}, state.Snapshot())
	assert.Equal(t, 1, state.Snapshot().NextPage())
	assert.Zero(t, store.writes)

	require.NoError(t, state.Advance(ctx, 3, 5))
	require.NoError(t, state.Advance(ctx, 4, 0))
	assert.Equal(t, Progress{PagesExplored: 3, TotalPages: 5}, state.Snapshot())
}

func TestDiscoveryStateWriteFailureKeepsMemory(t *testing.T) {
	ctx := context.Background()
	store := newMemProperties()
	state, err := LoadDiscoveryState(ctx, store)
	require.NoError(t, err)
	require.NoError(t, state.Advance(ctx, 1, 5))

	store.writeErr = errors.New("disk full")
	err = state.Advance(ctx, 2, 5)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Equal(t, Progress{PagesExplored: 1, TotalPages: 5}, state.Snapshot())

	skipped, err := state.Skip(ctx)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.False(t, skipped)
	assert.Equal(t, 1, state.Snapshot().PagesExplored)
}

func TestDiscoveryStateSkip(t *testing.T) {
	ctx := context.Background()
	store := newMemProperties()
	state, err := LoadDiscoveryState(ctx, store)
	require.NoError(t, err)

	// 总页数未知时不跳
	skipped, err := state.Skip(ctx)
	require.NoError(t, err)
	assert.False(t, skipped)
	assert.Zero(t, store.writes)

	require.NoError(t, state.Advance(ctx, 4, 5))
	skipped, err = state.Skip(ctx)
	require.NoError(t, err)
	assert.True(t, skipped)
	assert.Equal(t, Progress{PagesExplored: 5, TotalPages: 5}, state.Snapshot())

	// 已经到最后一页
	skipped, err = state.Skip(ctx)
	require.NoError(t, err)
	assert.False(t, skipped)
	assert.Equal(t, 5, state.Snapshot().PagesExplored)
}
