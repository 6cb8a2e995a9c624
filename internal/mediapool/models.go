package mediapool

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"
)

// MediaType identifies the kind of playback resource a slot holds.
type MediaType int

const (
	Audio MediaType = iota
	Video
)

// MediaTypes lists every supported type in a stable order.
var MediaTypes = []MediaType{Audio, Video}

func (t MediaType) String() string {
	switch t {
	case Audio:
		return "audio"
	case Video:
		return "video"
	default:
		return fmt.Sprintf("mediatype(%d)", int(t))
	}
}

// ParseMediaType converts "audio" or "video" (case-insensitive) into a MediaType.
func ParseMediaType(s string) (MediaType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "audio":
		return Audio, nil
	case "video":
		return Video, nil
	default:
		return 0, fmt.Errorf("unknown media type %q", s)
	}
}

// DefaultCapacity returns the per-type capacity used when none is configured.
func DefaultCapacity() map[MediaType]int {
	return map[MediaType]int{Audio: 2, Video: 4}
}

// ContainerID identifies the document-level grouping a pool belongs to.
type ContainerID string

// Source is one candidate content source for a media element.
// Cached sources may be propagated before the container is visible; original
// sources are held back until it is, to avoid prerender bandwidth.
type Source struct {
	URL    string `json:"url"`
	Type   string `json:"type,omitempty"`
	Cached bool   `json:"cached,omitempty"`
}

// Consumer is a logical player that can borrow a slot from a Pool.
// The Pool depends only on this capability set.
type Consumer interface {
	// MediaID returns a stable identifier for the consumer.
	MediaID() string
	// Resource returns the slot currently bound to the consumer, if any.
	Resource() *Slot
	// FreeResource detaches the consumer from its slot and returns it.
	// The Pool calls it while holding its own lock, so implementations must
	// not call back into the Pool.
	FreeResource() *Slot
	// Distance reports proximity to the active viewing position. Lower is
	// closer; +Inf means detached or unknown.
	Distance() float64
}

// Slot is a pooled physical playback resource.
type Slot struct {
	Type MediaType

	// mu serialises operations on the element so that playback, blessing and
	// source propagation never interleave on one resource.
	mu    sync.Mutex
	el    Element
	epoch atomic.Uint64
}

// ID returns the slot's current identity. It changes when the slot is
// reassigned to a new consumer by eviction.
func (s *Slot) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.el.ID()
}

// Epoch counts ownership changes of the slot. A holder that remembers the
// epoch it was granted can tell whether the slot has since moved on.
func (s *Slot) Epoch() uint64 {
	return s.epoch.Load()
}

// Element exposes the underlying element. Callers that operate on it should
// go through Do to keep operations serialised.
func (s *Slot) Element() Element {
	return s.el
}

// Do runs fn with exclusive access to the slot's element.
func (s *Slot) Do(fn func(el Element)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.el)
}

// normalizeDistance maps NaN to +Inf so that ordering stays total.
func normalizeDistance(d float64) float64 {
	if math.IsNaN(d) {
		return math.Inf(1)
	}
	return d
}
