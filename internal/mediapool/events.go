package mediapool

import (
	"context"
	"errors"
	"time"

	"media-pool/internal/platform/metrics"
)

// EventKind names a pool decision.
type EventKind string

const (
	EventGranted  EventKind = "granted"
	EventDenied   EventKind = "denied"
	EventEvicted  EventKind = "evicted"
	EventReleased EventKind = "released"
	EventBlessed  EventKind = "blessed"

	// EventClosed marks the end of a container's pool. Stores drop the
	// container's counters when they see it.
	EventClosed EventKind = "closed"
)

// Event describes one allocation decision taken by a Pool.
type Event struct {
	Container  ContainerID
	Kind       EventKind
	Type       MediaType
	ConsumerID string
	SlotID     string
	At         time.Time
}

// Recorder receives pool events. Pools treat recording as best-effort:
// errors are logged and never surface to callers.
type Recorder interface {
	Record(ctx context.Context, ev Event) error
}

// Counters holds per-kind event counts.
type Counters map[EventKind]int64

// EventCounters reads back what a Recorder stored.
type EventCounters interface {
	TotalCounts(ctx context.Context) (Counters, error)
	ContainerCounts(ctx context.Context, id ContainerID) (Counters, error)
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(ctx context.Context, ev Event) error

func (f RecorderFunc) Record(ctx context.Context, ev Event) error { return f(ctx, ev) }

// MultiRecorder fans an event out to every non-nil recorder.
func MultiRecorder(recs ...Recorder) Recorder {
	out := make(multiRecorder, 0, len(recs))
	for _, r := range recs {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

type multiRecorder []Recorder

func (m multiRecorder) Record(ctx context.Context, ev Event) error {
	var errs []error
	for _, r := range m {
		if err := r.Record(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NewMetricsRecorder returns a Recorder that counts events in m.
func NewMetricsRecorder(m *metrics.Metrics) Recorder {
	return RecorderFunc(func(_ context.Context, ev Event) error {
		switch ev.Kind {
		case EventGranted, EventDenied:
			m.IncAllocation(ev.Type.String(), string(ev.Kind))
		case EventEvicted:
			m.IncEviction(ev.Type.String())
		case EventReleased:
			m.IncRelease(ev.Type.String())
		case EventBlessed:
			m.IncBless()
		}
		return nil
	})
}
