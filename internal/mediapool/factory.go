package mediapool

import "sync"

// Placeholder sources loaded into idle slots so the element holds no real
// content while it sits in the free list.
const (
	BlankAudioSrc = "data:audio/wav;base64,UklGRiQAAABXQVZFZm10IBAAAAABAAEARKwAAIhYAQACABAAZGF0YQAAAAA="
	BlankVideoSrc = "data:video/mp4;base64,AAAAHGZ0eXBpc29tAAACAGlzb21pc28ybXA0MQ=="
)

// defaultAttributes are present on every pooled element and survive resets.
var defaultAttributes = map[string]string{
	"muted":       "",
	"playsinline": "",
	"preload":     "auto",
}

// Factory creates blank elements and returns used ones to the blank state.
type Factory interface {
	NewElement(t MediaType, id string) Element
	Reset(el Element)
}

// MemoryFactory builds MemoryElements.
type MemoryFactory struct {
	// AutoReady makes elements report can-play as soon as they are loaded
	// with a source, standing in for a real media pipeline.
	AutoReady bool

	// Unsupported lists media types whose elements lack playback capability.
	Unsupported map[MediaType]bool

	mu      sync.Mutex
	created []*MemoryElement
}

// NewElement returns a muted, paused element carrying the blank placeholder.
func (f *MemoryFactory) NewElement(t MediaType, id string) Element {
	el := NewMemoryElement(t, id)
	el.autoReady = f.AutoReady
	el.supported = !f.Unsupported[t]
	f.Reset(el)

	f.mu.Lock()
	f.created = append(f.created, el)
	f.mu.Unlock()
	return el
}

// Reset pauses and mutes el, rewinds it, drops consumer attributes and
// pending ready listeners, and puts the blank placeholder source back.
func (f *MemoryFactory) Reset(el Element) {
	if d, ok := el.(interface{ dropListeners() }); ok {
		d.dropListeners()
	}
	_ = el.Pause()
	el.SetMuted(true)
	el.SetCurrentTime(0)
	for name := range el.Attributes() {
		if _, keep := defaultAttributes[name]; !keep {
			el.RemoveAttribute(name)
		}
	}
	for name, value := range defaultAttributes {
		el.SetAttribute(name, value)
	}
	el.SetSources([]Source{blankSource(el.Type())})
}

// Elements returns every element the factory has created.
func (f *MemoryFactory) Elements() []*MemoryElement {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*MemoryElement(nil), f.created...)
}

func blankSource(t MediaType) Source {
	if t == Audio {
		return Source{URL: BlankAudioSrc, Type: "audio/wav"}
	}
	return Source{URL: BlankVideoSrc, Type: "video/mp4"}
}
