package stats

import (
	"context"
	"sync"
	"testing"

	"media-pool/internal/mediapool"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_Record(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	events := []mediapool.Event{
		{Container: "a", Kind: mediapool.EventGranted, Type: mediapool.Video},
		{Container: "a", Kind: mediapool.EventGranted, Type: mediapool.Audio},
		{Container: "b", Kind: mediapool.EventDenied, Type: mediapool.Video},
		{Container: "a", Kind: mediapool.EventBlessed},
	}
	for _, ev := range events {
		require.NoError(t, s.Record(ctx, ev))
	}

	assert.Equal(t, Counters{
		mediapool.EventGranted: 2,
		mediapool.EventDenied:  1,
		mediapool.EventBlessed: 1,
	}, s.Total())
	assert.Equal(t, int64(1), s.Container("b")[mediapool.EventDenied])
	assert.Equal(t, Counters{
		mediapool.EventGranted: 1,
		mediapool.EventDenied:  1,
	}, s.Type(mediapool.Video))
	assert.Empty(t, s.Container("missing"))
}

func TestMemoryStore_copiesAreDetached(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.Record(context.Background(), mediapool.Event{Kind: mediapool.EventReleased}))

	got := s.Total()
	got[mediapool.EventReleased] = 99

	assert.Equal(t, int64(1), s.Total()[mediapool.EventReleased])
}

func TestMemoryStore_asPoolRecorder(t *testing.T) {
	s := NewMemoryStore()
	p := mediapool.NewPool("c1",
		mediapool.WithCapacity(map[mediapool.MediaType]int{mediapool.Video: 1}),
		mediapool.WithRecorder(mediapool.MultiRecorder(s, nil)),
	)
	b := mediapool.NewBinding(p, mediapool.BindingConfig{ID: "b", Type: mediapool.Video})
	require.NoError(t, b.Build())
	_, err := b.Layout()
	require.NoError(t, err)
	require.NoError(t, b.Suspend())

	c := s.Container("c1")
	assert.Equal(t, int64(1), c[mediapool.EventGranted])
	assert.Equal(t, int64(1), c[mediapool.EventReleased])
}

func TestMemoryStore_closedDropsContainer(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Record(ctx, mediapool.Event{Container: "a", Kind: mediapool.EventGranted, Type: mediapool.Video}))
	require.NoError(t, s.Record(ctx, mediapool.Event{Container: "b", Kind: mediapool.EventGranted, Type: mediapool.Video}))
	require.Equal(t, 2, s.Containers())

	require.NoError(t, s.Record(ctx, mediapool.Event{Container: "a", Kind: mediapool.EventClosed}))

	assert.Equal(t, 1, s.Containers())
	assert.Empty(t, s.Container("a"))
	assert.Equal(t, int64(1), s.Container("b")[mediapool.EventGranted])
	assert.Equal(t, int64(1), s.Total()[mediapool.EventClosed])
	assert.Equal(t, Counters{mediapool.EventGranted: 2}, s.Type(mediapool.Video))
}

func TestMemoryStore_registryTeardownDropsContainer(t *testing.T) {
	s := NewMemoryStore()
	reg := mediapool.NewRegistry(
		mediapool.WithCapacity(map[mediapool.MediaType]int{mediapool.Video: 1}),
		mediapool.WithRecorder(s),
	)
	for _, id := range []mediapool.ContainerID{"c1", "c2", "c3"} {
		b := mediapool.NewBinding(reg.PoolFor(id), mediapool.BindingConfig{ID: "b", Type: mediapool.Video})
		require.NoError(t, b.Build())
		_, err := b.Layout()
		require.NoError(t, err)
		reg.Teardown(id)
	}

	assert.Zero(t, s.Containers())
	assert.Equal(t, int64(3), s.Total()[mediapool.EventGranted])
	assert.Equal(t, int64(3), s.Total()[mediapool.EventClosed])
}

func TestMemoryStore_EventCounters(t *testing.T) {
	var counters mediapool.EventCounters = NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, counters.(mediapool.Recorder).Record(ctx, mediapool.Event{Container: "a", Kind: mediapool.EventDenied}))

	total, err := counters.TotalCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, Counters{mediapool.EventDenied: 1}, total)

	c, err := counters.ContainerCounts(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, Counters{mediapool.EventDenied: 1}, c)
}

func TestMemoryStore_concurrent(t *testing.T) {
	s := NewMemoryStore()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Record(context.Background(), mediapool.Event{Container: "a", Kind: mediapool.EventGranted})
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(50), s.Total()[mediapool.EventGranted])
}
