package mediapool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"math"
	"sync"
)

// State is the lifecycle state of a Binding.
type State int

const (
	StateUnbuilt State = iota
	StateBuilt
	StateAttached
	StateSuspended
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateUnbuilt:
		return "unbuilt"
	case StateBuilt:
		return "built"
	case StateAttached:
		return "attached"
	case StateSuspended:
		return "suspended"
	case StateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// consumerAttribute carries the binding id on the element it is attached to.
const consumerAttribute = "data-media-consumer"

// DistanceFunc reports a consumer's proximity to the viewing position.
type DistanceFunc func() float64

// BindingConfig describes one logical player.
type BindingConfig struct {
	ID   string
	Type MediaType
	// Attributes are policy attributes copied onto the slot on attach.
	Attributes map[string]string
	Sources    []Source
	// Distance is supplied by the host. A nil Distance means +Inf.
	Distance DistanceFunc
	Logger   *slog.Logger
}

// safeAttributes are applied at build time unless the config overrides them.
var safeAttributes = map[string]string{
	"playsinline":           "",
	"disableremoteplayback": "",
}

// Binding attaches a logical player to a pooled slot. It implements Consumer.
type Binding struct {
	pool     *Pool
	id       string
	typ      MediaType
	distance DistanceFunc
	log      *slog.Logger

	mu          sync.Mutex
	state       State
	cfgAttrs    map[string]string
	attrs       map[string]string
	sources     []Source
	slot        *Slot
	epoch       uint64
	gen         uint64 // bumped each time the slot is taken away
	resumeTime  float64
	fallback    bool
	placeholder bool
	pending     *Readiness
}

// NewBinding returns an unbuilt binding that borrows slots from p.
func NewBinding(p *Pool, cfg BindingConfig) *Binding {
	log := cfg.Logger
	if log == nil {
		log = p.log
	}
	return &Binding{
		pool:        p,
		id:          cfg.ID,
		typ:         cfg.Type,
		distance:    cfg.Distance,
		log:         log.With(slog.String("consumer", cfg.ID)),
		cfgAttrs:    maps.Clone(cfg.Attributes),
		sources:     append([]Source(nil), cfg.Sources...),
		placeholder: true,
	}
}

// MediaID implements Consumer.
func (b *Binding) MediaID() string { return b.id }

// Type returns the media type the binding requests.
func (b *Binding) Type() MediaType { return b.typ }

// Distance implements Consumer.
func (b *Binding) Distance() float64 {
	if b.distance == nil {
		return math.Inf(1)
	}
	return normalizeDistance(b.distance())
}

// Resource implements Consumer.
func (b *Binding) Resource() *Slot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.slot
}

// FreeResource implements Consumer. The Pool calls it when the slot is taken
// away, either on Suspend or because a closer consumer evicted this one.
// The playback position is kept so a later Layout can resume from it.
func (b *Binding) FreeResource() *Slot {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.gen++
	slot := b.slot
	if slot == nil {
		return nil
	}
	slot.Do(func(el Element) {
		b.resumeTime = el.CurrentTime()
		_ = el.Pause()
	})
	b.slot = nil
	if b.state == StateAttached {
		b.state = StateSuspended
		b.log.Debug("binding suspended", slog.Float64("resume_time", b.resumeTime))
	}
	b.placeholder = true
	return slot
}

// Build applies resource-independent configuration. It moves the binding
// from Unbuilt to Built.
func (b *Binding) Build() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateDestroyed:
		return ErrDestroyed
	case StateUnbuilt:
	default:
		return ErrInvalidState
	}

	b.attrs = maps.Clone(safeAttributes)
	maps.Copy(b.attrs, b.cfgAttrs)
	b.state = StateBuilt
	return nil
}

// Layout requests a slot unless one is already held. On grant the binding
// becomes Attached and its configuration and sources are propagated; the
// returned Readiness completes on the first can-play signal. On denial the
// binding stays in placeholder mode and the Readiness is already complete.
func (b *Binding) Layout() (*Readiness, error) {
	b.mu.Lock()
	switch b.state {
	case StateUnbuilt:
		b.mu.Unlock()
		return nil, ErrNotBuilt
	case StateDestroyed:
		b.mu.Unlock()
		return nil, ErrDestroyed
	case StateAttached:
		r := b.pending
		b.mu.Unlock()
		return r, nil
	}
	gen := b.gen
	b.mu.Unlock()

	if b.pool.Closed() {
		return nil, ErrPoolClosed
	}

	slot := b.pool.RequestResource(b.typ, b)
	if slot == nil {
		b.log.Debug("slot request denied", slog.String("type", b.typ.String()))
		return &Readiness{Future: completedFuture(nil), binding: b}, nil
	}

	b.mu.Lock()
	switch {
	case b.state == StateDestroyed:
		b.mu.Unlock()
		if _, err := b.pool.FreeResource(b); err != nil && !errors.Is(err, ErrNotAllocated) {
			b.log.Warn("free after destroy", slog.String("error", err.Error()))
		}
		return nil, ErrDestroyed
	case b.gen != gen:
		// Evicted between grant and attach.
		b.mu.Unlock()
		return &Readiness{Future: completedFuture(nil), binding: b}, nil
	case b.state == StateAttached:
		r := b.pending
		b.mu.Unlock()
		return r, nil
	}
	r, deferred := b.attachLocked(slot)
	b.mu.Unlock()

	if deferred != nil {
		b.pool.whenVisible(deferred)
	}
	return r, nil
}

// attachLocked binds slot and propagates attributes then sources. Cached
// sources load immediately; original ones only once the container is
// visible, via the returned func which must run without b.mu held.
func (b *Binding) attachLocked(slot *Slot) (*Readiness, func()) {
	b.slot = slot
	b.epoch = slot.Epoch()
	b.state = StateAttached
	b.placeholder = false
	b.fallback = false

	r := &Readiness{Future: newFuture(), binding: b, slot: slot, slotID: slot.el.ID(), epoch: b.epoch}
	b.pending = r

	visible := b.pool.Visible()
	initial := b.sources
	if !visible {
		initial = cachedSources(b.sources)
	}
	hasOriginal := len(initial) < len(b.sources)

	supported := true
	resume := b.resumeTime
	slot.Do(func(el Element) {
		for name, value := range b.attrs {
			el.SetAttribute(name, value)
		}
		el.SetAttribute(consumerAttribute, b.id)

		if !el.SupportsPlayback() {
			supported = false
			return
		}
		if len(initial) == 0 {
			return
		}
		el.SetSources(initial)
		el.Load()
		el.SetCurrentTime(resume)
		el.OnReady(r.complete)
	})

	if !supported {
		b.fallback = true
		b.log.Info("playback unsupported, showing fallback", slog.String("type", b.typ.String()))
		r.complete(nil)
		return r, nil
	}
	if len(b.sources) == 0 {
		b.log.Debug("binding has no sources", slog.String("slot", r.slotID))
		r.complete(fmt.Errorf("attach %s: %w", b.id, ErrNoSupportedSource))
		return r, nil
	}

	b.log.Debug("binding attached",
		slog.String("slot", slot.el.ID()),
		slog.Int("sources", len(initial)),
		slog.Bool("deferred_original", hasOriginal))

	if !hasOriginal {
		return r, nil
	}
	epoch := b.epoch
	return r, func() { b.propagateOriginal(slot, epoch) }
}

// propagateOriginal loads the full source list once the container is visible,
// provided the binding still holds the slot it was attached to.
func (b *Binding) propagateOriginal(slot *Slot, epoch uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateAttached || b.slot != slot || slot.Epoch() != epoch {
		return
	}
	r := b.pending
	srcs := b.sources
	slot.Do(func(el Element) {
		t := el.CurrentTime()
		el.SetSources(srcs)
		el.Load()
		el.SetCurrentTime(t)
		el.OnReady(r.complete)
	})
}

// Suspend releases the slot back to the pool, keeping the playback position
// for a later Layout. It is a no-op unless the binding is Attached.
func (b *Binding) Suspend() error {
	b.mu.Lock()
	state := b.state
	b.mu.Unlock()

	switch state {
	case StateDestroyed:
		return ErrDestroyed
	case StateAttached:
	default:
		return nil
	}

	if _, err := b.pool.FreeResource(b); err != nil && !errors.Is(err, ErrNotAllocated) {
		return err
	}
	return nil
}

// Play starts playback on the bound slot. It does nothing unless the binding
// is Attached; failures are logged and swallowed.
func (b *Binding) Play(ctx context.Context) {
	b.withSlot("play", func(el Element) error { return el.Play(ctx) })
}

// Pause pauses the bound slot.
func (b *Binding) Pause() {
	b.withSlot("pause", func(el Element) error { return el.Pause() })
}

// Mute mutes the bound slot.
func (b *Binding) Mute() {
	b.withSlot("mute", func(el Element) error { el.SetMuted(true); return nil })
}

// Unmute unmutes the bound slot.
func (b *Binding) Unmute() {
	b.withSlot("unmute", func(el Element) error { el.SetMuted(false); return nil })
}

func (b *Binding) withSlot(op string, fn func(el Element) error) {
	b.mu.Lock()
	slot, epoch := b.slot, b.epoch
	attached := b.state == StateAttached && slot != nil
	b.mu.Unlock()
	if !attached {
		return
	}

	slot.Do(func(el Element) {
		if slot.Epoch() != epoch {
			return
		}
		if err := fn(el); err != nil {
			b.log.Debug("media operation failed", slog.String("op", op), slog.String("error", err.Error()))
		}
	})
}

// Destroy tears the binding down for good. A readiness still pending
// completes with ErrDestroyed.
func (b *Binding) Destroy() {
	b.mu.Lock()
	if b.state == StateDestroyed {
		b.mu.Unlock()
		return
	}
	b.state = StateDestroyed
	pending := b.pending
	b.pending = nil
	b.mu.Unlock()

	if pending != nil {
		pending.complete(ErrDestroyed)
	}
	if _, err := b.pool.FreeResource(b); err != nil && !errors.Is(err, ErrNotAllocated) {
		b.log.Warn("free on destroy", slog.String("error", err.Error()))
	}
	b.log.Debug("binding destroyed")
}

// State returns the current lifecycle state.
func (b *Binding) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Fallback reports whether the bound element lacked playback capability.
func (b *Binding) Fallback() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fallback
}

// ShowingPlaceholder reports whether the binding presents its placeholder
// instead of a slot.
func (b *Binding) ShowingPlaceholder() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.placeholder
}

// ResumeTime returns the playback position captured when the slot was last
// taken away.
func (b *Binding) ResumeTime() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.resumeTime
}

func cachedSources(srcs []Source) []Source {
	var out []Source
	for _, s := range srcs {
		if s.Cached {
			out = append(out, s)
		}
	}
	return out
}
