package mediapool

import (
	"context"
	"maps"
	"sync"
)

// Element is the playback surface of a slot. Real decoding lives outside this
// package; implementations only need to keep the playback state machine.
type Element interface {
	Type() MediaType
	ID() string
	SetID(id string)

	Play(ctx context.Context) error
	Pause() error
	Paused() bool
	Muted() bool
	SetMuted(muted bool)
	CurrentTime() float64
	SetCurrentTime(t float64)

	SetAttribute(name, value string)
	RemoveAttribute(name string)
	Attributes() map[string]string

	SetSources(srcs []Source)
	Sources() []Source
	// Load restarts resource selection with the current sources.
	Load()
	// OnReady registers a one-shot listener for the next can-play signal
	// (nil) or load error. If the element is already ready, fn runs at once.
	OnReady(fn func(err error))
	// SupportsPlayback reports whether the element can play at all.
	SupportsPlayback() bool
}

type userGestureKey struct{}

// WithUserGesture marks ctx as running inside a user-input handler. Elements
// only unlock unmuted playback for plays issued under such a context.
func WithUserGesture(ctx context.Context) context.Context {
	return context.WithValue(ctx, userGestureKey{}, true)
}

// HasUserGesture reports whether ctx was marked by WithUserGesture.
func HasUserGesture(ctx context.Context) bool {
	v, _ := ctx.Value(userGestureKey{}).(bool)
	return v
}

// MemoryElement is an in-memory Element. It mirrors the host platform's
// autoplay policy: unmuted playback is refused until one play has happened
// under a user gesture.
type MemoryElement struct {
	mu sync.Mutex

	typ         MediaType
	id          string
	paused      bool
	muted       bool
	currentTime float64
	attrs       map[string]string
	sources     []Source

	supported bool
	autoReady bool
	unlocked  bool
	ready     bool
	listeners []func(error)

	playCalls int
	playHook  func(ctx context.Context) error
}

// NewMemoryElement returns a paused, muted element with no sources.
func NewMemoryElement(t MediaType, id string) *MemoryElement {
	return &MemoryElement{
		typ:       t,
		id:        id,
		paused:    true,
		muted:     true,
		attrs:     make(map[string]string),
		supported: true,
	}
}

func (e *MemoryElement) Type() MediaType { return e.typ }

func (e *MemoryElement) ID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.id
}

func (e *MemoryElement) SetID(id string) {
	e.mu.Lock()
	e.id = id
	e.mu.Unlock()
}

// Play starts playback, subject to the autoplay policy.
func (e *MemoryElement) Play(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e.mu.Lock()
	hook := e.playHook
	e.mu.Unlock()
	if hook != nil {
		if err := hook(ctx); err != nil {
			return err
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.supported {
		return ErrNotSupported
	}
	gesture := HasUserGesture(ctx)
	if !e.muted && !e.unlocked && !gesture {
		return ErrNotAllowed
	}
	if gesture {
		e.unlocked = true
	}
	e.playCalls++
	e.paused = false
	return nil
}

func (e *MemoryElement) Pause() error {
	e.mu.Lock()
	e.paused = true
	e.mu.Unlock()
	return nil
}

func (e *MemoryElement) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}

func (e *MemoryElement) Muted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.muted
}

func (e *MemoryElement) SetMuted(muted bool) {
	e.mu.Lock()
	e.muted = muted
	e.mu.Unlock()
}

func (e *MemoryElement) CurrentTime() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentTime
}

func (e *MemoryElement) SetCurrentTime(t float64) {
	e.mu.Lock()
	e.currentTime = t
	e.mu.Unlock()
}

func (e *MemoryElement) SetAttribute(name, value string) {
	e.mu.Lock()
	e.attrs[name] = value
	e.mu.Unlock()
}

func (e *MemoryElement) RemoveAttribute(name string) {
	e.mu.Lock()
	delete(e.attrs, name)
	e.mu.Unlock()
}

// Attributes returns a copy of the element's attributes.
func (e *MemoryElement) Attributes() map[string]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return maps.Clone(e.attrs)
}

func (e *MemoryElement) SetSources(srcs []Source) {
	e.mu.Lock()
	e.sources = append([]Source(nil), srcs...)
	e.ready = false
	e.mu.Unlock()
}

func (e *MemoryElement) Sources() []Source {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Source(nil), e.sources...)
}

// Load resets readiness. With auto-ready enabled an element with at least one
// source becomes ready immediately and one without fails with
// ErrNoSupportedSource.
func (e *MemoryElement) Load() {
	e.mu.Lock()
	e.ready = false
	if !e.autoReady {
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	if len(e.Sources()) == 0 {
		e.SignalError(ErrNoSupportedSource)
		return
	}
	e.SignalCanPlay()
}

func (e *MemoryElement) OnReady(fn func(err error)) {
	e.mu.Lock()
	if e.ready {
		e.mu.Unlock()
		fn(nil)
		return
	}
	e.listeners = append(e.listeners, fn)
	e.mu.Unlock()
}

func (e *MemoryElement) SupportsPlayback() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.supported
}

// SignalCanPlay marks the element ready and notifies pending listeners.
func (e *MemoryElement) SignalCanPlay() {
	e.mu.Lock()
	e.ready = true
	ls := e.listeners
	e.listeners = nil
	e.mu.Unlock()

	for _, fn := range ls {
		fn(nil)
	}
}

// SignalError reports a load error to pending listeners.
func (e *MemoryElement) SignalError(err error) {
	e.mu.Lock()
	e.ready = false
	ls := e.listeners
	e.listeners = nil
	e.mu.Unlock()

	for _, fn := range ls {
		fn(err)
	}
}

// dropListeners forgets every pending OnReady listener without notifying it.
func (e *MemoryElement) dropListeners() {
	e.mu.Lock()
	e.listeners = nil
	e.mu.Unlock()
}

// PlayCalls returns how many plays succeeded on the element.
func (e *MemoryElement) PlayCalls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.playCalls
}

// SetPlayHook installs fn to run before every Play; a non-nil error from fn
// rejects the play.
func (e *MemoryElement) SetPlayHook(fn func(ctx context.Context) error) {
	e.mu.Lock()
	e.playHook = fn
	e.mu.Unlock()
}
