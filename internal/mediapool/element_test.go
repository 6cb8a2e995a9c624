package mediapool

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryElement_autoplayPolicy(t *testing.T) {
	el := NewMemoryElement(Audio, "a")

	require.NoError(t, el.Play(context.Background()), "muted play is always allowed")
	require.NoError(t, el.Pause())

	el.SetMuted(false)
	assert.True(t, errors.Is(el.Play(context.Background()), ErrNotAllowed))

	require.NoError(t, el.Play(WithUserGesture(context.Background())))
	require.NoError(t, el.Pause())
	require.NoError(t, el.Play(context.Background()), "a gesture unlocks the element for good")
	assert.Equal(t, 3, el.PlayCalls())
}

func TestMemoryElement_Play_cancelledContext(t *testing.T) {
	el := NewMemoryElement(Video, "v")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.True(t, errors.Is(el.Play(ctx), context.Canceled))
	assert.True(t, el.Paused())
}

func TestMemoryElement_OnReady(t *testing.T) {
	el := NewMemoryElement(Video, "v")
	var got []error
	el.OnReady(func(err error) { got = append(got, err) })

	el.SignalCanPlay()
	el.SignalCanPlay()
	require.Len(t, got, 1, "listeners are one-shot")
	assert.NoError(t, got[0])

	el.OnReady(func(err error) { got = append(got, err) })
	assert.Len(t, got, 2, "an already ready element notifies at once")

	el.SetSources([]Source{{URL: "x"}})
	el.OnReady(func(err error) { got = append(got, err) })
	el.SignalError(ErrNoSupportedSource)
	require.Len(t, got, 3)
	assert.True(t, errors.Is(got[2], ErrNoSupportedSource))
}

func TestMemoryElement_Load_autoReady(t *testing.T) {
	el := NewMemoryElement(Video, "v")
	el.autoReady = true

	var got error = errors.New("unset")
	el.OnReady(func(err error) { got = err })
	el.Load()
	assert.True(t, errors.Is(got, ErrNoSupportedSource))

	el.SetSources([]Source{{URL: "https://origin.example/v.mp4"}})
	el.Load()
	done := false
	el.OnReady(func(err error) { done = err == nil })
	assert.True(t, done)
}

func TestMemoryFactory_Reset(t *testing.T) {
	f := &MemoryFactory{}
	el := f.NewElement(Video, "v")
	el.SetAttribute("data-x", "1")
	el.SetAttribute(consumerAttribute, "b")
	el.SetMuted(false)
	el.SetCurrentTime(9)
	el.SetSources([]Source{{URL: "https://origin.example/v.mp4"}})

	f.Reset(el)

	attrs := el.Attributes()
	assert.NotContains(t, attrs, "data-x")
	assert.NotContains(t, attrs, consumerAttribute)
	assert.Equal(t, "auto", attrs["preload"])
	assert.True(t, el.Muted())
	assert.True(t, el.Paused())
	assert.Zero(t, el.CurrentTime())
	assert.Equal(t, []Source{{URL: BlankVideoSrc, Type: "video/mp4"}}, el.Sources())
}

func TestMemoryFactory_Reset_dropsReadyListeners(t *testing.T) {
	f := &MemoryFactory{}
	el := f.NewElement(Video, "v")
	called := false
	el.OnReady(func(error) { called = true })

	f.Reset(el)
	mem, ok := el.(*MemoryElement)
	require.True(t, ok)
	mem.SignalCanPlay()

	assert.False(t, called, "a listener from before the reset must not fire")
}

func TestUserGesture(t *testing.T) {
	assert.False(t, HasUserGesture(context.Background()))
	assert.True(t, HasUserGesture(WithUserGesture(context.Background())))
	assert.True(t, HasUserGesture(context.WithoutCancel(WithUserGesture(context.Background()))))
}

func TestFuture(t *testing.T) {
	f := newFuture()
	assert.False(t, f.IsComplete())

	f.complete(nil)
	f.complete(errors.New("ignored"))

	assert.True(t, f.IsComplete())
	assert.NoError(t, awaitQuick(t, f))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.True(t, errors.Is(newFuture().Await(ctx), context.Canceled))
}

func TestParseMediaType(t *testing.T) {
	got, err := ParseMediaType(" Video ")
	require.NoError(t, err)
	assert.Equal(t, Video, got)

	_, err = ParseMediaType("image")
	assert.Error(t, err)
	assert.Equal(t, "audio", Audio.String())
}
