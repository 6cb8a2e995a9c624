package mediapool

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"
)

// allocation records which consumer borrows which slot. seq is the
// allocation order and breaks distance ties during eviction.
type allocation struct {
	consumer Consumer
	slot     *Slot
	seq      uint64
}

// Pool multiplexes a fixed number of slots per media type across consumers,
// keeping them with the consumers closest to the viewing position.
//
// For every type, len(allocated) + len(unallocated) equals the capacity at
// all times. Pool methods are safe for concurrent use.
type Pool struct {
	mu          sync.Mutex
	container   ContainerID
	capacity    map[MediaType]int
	allocated   map[MediaType][]allocation
	unallocated map[MediaType][]*Slot
	blessed     bool
	blessing    *Future
	closed      bool
	nextID      uint64
	nextSeq     uint64

	factory  Factory
	log      *slog.Logger
	recorder Recorder

	visibility visibility
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithCapacity sets the number of slots per media type.
func WithCapacity(capacity map[MediaType]int) PoolOption {
	return func(p *Pool) { p.capacity = maps.Clone(capacity) }
}

// WithFactory sets the factory used to create and reset elements.
func WithFactory(f Factory) PoolOption {
	return func(p *Pool) { p.factory = f }
}

// WithLogger sets the pool logger.
func WithLogger(log *slog.Logger) PoolOption {
	return func(p *Pool) { p.log = log }
}

// WithRecorder sets the event recorder.
func WithRecorder(r Recorder) PoolOption {
	return func(p *Pool) { p.recorder = r }
}

// NewPool creates the pool for container and fills every type up to its
// capacity with blank slots.
func NewPool(container ContainerID, opts ...PoolOption) *Pool {
	p := &Pool{
		container:   container,
		capacity:    DefaultCapacity(),
		allocated:   make(map[MediaType][]allocation),
		unallocated: make(map[MediaType][]*Slot),
		factory:     &MemoryFactory{},
		log:         slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.log = p.log.With(slog.String("container", string(container)))

	for _, t := range MediaTypes {
		for i := 0; i < p.capacity[t]; i++ {
			slot := &Slot{Type: t, el: p.factory.NewElement(t, p.createIDLocked())}
			p.unallocated[t] = append(p.unallocated[t], slot)
		}
	}
	return p
}

// Container returns the id of the container the pool belongs to.
func (p *Pool) Container() ContainerID { return p.container }

// RequestResource returns a slot of type t for c, or nil when the request is
// denied. A free slot is handed out immediately; otherwise the farthest
// resident is evicted if c is strictly closer than it.
func (p *Pool) RequestResource(t MediaType, c Consumer) *Slot {
	p.mu.Lock()
	slot, events := p.requestLocked(t, c)
	p.mu.Unlock()

	p.emit(events...)
	return slot
}

func (p *Pool) requestLocked(t MediaType, c Consumer) (*Slot, []Event) {
	if p.closed {
		return nil, []Event{p.event(EventDenied, t, c.MediaID(), "")}
	}
	if held, idx, ok := p.indexLocked(c); ok {
		// A consumer borrows at most one slot.
		if held != t {
			return nil, []Event{p.event(EventDenied, t, c.MediaID(), "")}
		}
		return p.allocated[t][idx].slot, nil
	}

	if free := p.unallocated[t]; len(free) > 0 {
		slot := free[len(free)-1]
		p.unallocated[t] = free[:len(free)-1]
		p.allocateLocked(t, c, slot)
		return slot, []Event{p.event(EventGranted, t, c.MediaID(), slot.el.ID())}
	}

	victim, ok := selectVictim(p.allocated[t], c)
	if !ok {
		return nil, []Event{p.event(EventDenied, t, c.MediaID(), "")}
	}

	p.removeLocked(t, victim)
	victimID := victim.consumer.MediaID()
	victim.consumer.FreeResource()

	newID := p.createIDLocked()
	victim.slot.Do(func(el Element) {
		p.factory.Reset(el)
		el.SetID(newID)
	})
	p.allocateLocked(t, c, victim.slot)

	p.log.Debug("slot reassigned",
		slog.String("type", t.String()),
		slog.String("evicted", victimID),
		slog.String("consumer", c.MediaID()),
		slog.String("slot", newID))

	return victim.slot, []Event{
		p.event(EventEvicted, t, victimID, newID),
		p.event(EventGranted, t, c.MediaID(), newID),
	}
}

// FreeResource takes c's slot away from it, resets the element and returns
// the slot to the free list. It fails with ErrNotAllocated when c holds no
// slot.
func (p *Pool) FreeResource(c Consumer) (*Slot, error) {
	p.mu.Lock()
	t, idx, ok := p.indexLocked(c)
	if !ok {
		p.mu.Unlock()
		return nil, fmt.Errorf("free %s: %w", c.MediaID(), ErrNotAllocated)
	}
	a := p.allocated[t][idx]
	p.removeLocked(t, a)
	c.FreeResource()

	a.slot.Do(p.factory.Reset)
	p.unallocated[t] = append(p.unallocated[t], a.slot)
	ev := p.event(EventReleased, t, c.MediaID(), a.slot.el.ID())
	p.mu.Unlock()

	p.emit(ev)
	return a.slot, nil
}

// IsAllocated reports whether c currently holds a slot.
func (p *Pool) IsAllocated(c Consumer) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, _, ok := p.indexLocked(c)
	return ok
}

// Counts returns the number of allocated and free slots of type t.
func (p *Pool) Counts(t MediaType) (allocated, free int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.allocated[t]), len(p.unallocated[t])
}

// Capacity returns the configured number of slots per type.
func (p *Pool) Capacity() map[MediaType]int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return maps.Clone(p.capacity)
}

// Blessed reports whether BlessAll has completed on this pool.
func (p *Pool) Blessed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.blessed
}

// Close marks the pool closed and tears down every allocated consumer.
// Consumers that implement Destroy are destroyed; the others are freed.
// The closed event is emitted last.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	var consumers []Consumer
	for _, t := range MediaTypes {
		for _, a := range p.allocated[t] {
			consumers = append(consumers, a.consumer)
		}
	}
	p.mu.Unlock()

	for _, c := range consumers {
		if d, ok := c.(interface{ Destroy() }); ok {
			d.Destroy()
			continue
		}
		if _, err := p.FreeResource(c); err != nil {
			p.log.Debug("free on close", slog.String("consumer", c.MediaID()), slog.String("error", err.Error()))
		}
	}
	p.emit(p.event(EventClosed, 0, "", ""))
}

// Closed reports whether Close has been called.
func (p *Pool) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// AllocatedConsumer is one row of a pool snapshot.
type AllocatedConsumer struct {
	ConsumerID string
	Distance   float64
	SlotID     string
}

// TypeStats is the per-type part of a pool snapshot.
type TypeStats struct {
	Capacity  int
	Free      int
	Allocated []AllocatedConsumer
}

// PoolStats is a point-in-time view of a pool.
type PoolStats struct {
	Container ContainerID
	Blessed   bool
	Closed    bool
	Types     map[MediaType]TypeStats
}

// Stats returns a snapshot of the pool.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := PoolStats{
		Container: p.container,
		Blessed:   p.blessed,
		Closed:    p.closed,
		Types:     make(map[MediaType]TypeStats, len(MediaTypes)),
	}
	for _, t := range MediaTypes {
		ts := TypeStats{Capacity: p.capacity[t], Free: len(p.unallocated[t])}
		for _, a := range p.allocated[t] {
			ts.Allocated = append(ts.Allocated, AllocatedConsumer{
				ConsumerID: a.consumer.MediaID(),
				Distance:   normalizeDistance(a.consumer.Distance()),
				SlotID:     a.slot.el.ID(),
			})
		}
		out.Types[t] = ts
	}
	return out
}

// slotsLocked returns every slot known to the pool, allocated and free.
func (p *Pool) slotsLocked() []*Slot {
	var out []*Slot
	for _, t := range MediaTypes {
		for _, a := range p.allocated[t] {
			out = append(out, a.slot)
		}
		out = append(out, p.unallocated[t]...)
	}
	return out
}

// createIDLocked returns a new unique slot identity.
func (p *Pool) createIDLocked() string {
	p.nextID++
	return fmt.Sprintf("%s-pool-media-%d", p.container, p.nextID)
}

func (p *Pool) allocateLocked(t MediaType, c Consumer, slot *Slot) {
	slot.epoch.Add(1)
	p.nextSeq++
	p.allocated[t] = append(p.allocated[t], allocation{consumer: c, slot: slot, seq: p.nextSeq})
}

// removeLocked drops a from the allocated list and bumps the slot epoch so
// the former holder can no longer act on it.
func (p *Pool) removeLocked(t MediaType, a allocation) {
	a.slot.epoch.Add(1)
	list := p.allocated[t]
	for i := range list {
		if list[i].consumer == a.consumer {
			p.allocated[t] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

func (p *Pool) indexLocked(c Consumer) (MediaType, int, bool) {
	for _, t := range MediaTypes {
		for i, a := range p.allocated[t] {
			if a.consumer == c {
				return t, i, true
			}
		}
	}
	return 0, 0, false
}

func (p *Pool) event(kind EventKind, t MediaType, consumerID, slotID string) Event {
	return Event{
		Container:  p.container,
		Kind:       kind,
		Type:       t,
		ConsumerID: consumerID,
		SlotID:     slotID,
		At:         time.Now().UTC(),
	}
}

// emit hands events to the recorder. It must be called without p.mu held.
func (p *Pool) emit(events ...Event) {
	if p.recorder == nil {
		return
	}
	for _, ev := range events {
		if err := p.recorder.Record(context.Background(), ev); err != nil {
			p.log.Warn("record pool event failed",
				slog.String("kind", string(ev.Kind)),
				slog.String("error", err.Error()))
		}
	}
}

// visibility tracks whether the container has become fully visible. It only
// ever moves from hidden to visible.
type visibility struct {
	mu      sync.Mutex
	visible bool
	waiters []func()
}

// SetVisible marks the container fully visible and runs deferred work.
func (p *Pool) SetVisible() {
	v := &p.visibility
	v.mu.Lock()
	if v.visible {
		v.mu.Unlock()
		return
	}
	v.visible = true
	waiters := v.waiters
	v.waiters = nil
	v.mu.Unlock()

	for _, fn := range waiters {
		fn()
	}
}

// Visible reports whether SetVisible has been called.
func (p *Pool) Visible() bool {
	p.visibility.mu.Lock()
	defer p.visibility.mu.Unlock()
	return p.visibility.visible
}

// whenVisible runs fn now if the container is visible, or once it becomes so.
func (p *Pool) whenVisible(fn func()) {
	v := &p.visibility
	v.mu.Lock()
	if !v.visible {
		v.waiters = append(v.waiters, fn)
		v.mu.Unlock()
		return
	}
	v.mu.Unlock()
	fn()
}
