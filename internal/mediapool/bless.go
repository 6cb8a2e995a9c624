package mediapool

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// BlessAll unlocks unattended playback on every slot of the pool, allocated
// and free. It must be called from the user-input entry point with a context
// marked by WithUserGesture; the returned future may be awaited but the
// gesture must not block on it.
//
// Once the pool is blessed, further calls return a completed future without
// touching any slot. Concurrent calls share the blessing in flight.
func (p *Pool) BlessAll(ctx context.Context) *Future {
	p.mu.Lock()
	if p.blessed {
		p.mu.Unlock()
		return completedFuture(nil)
	}
	if p.blessing != nil {
		f := p.blessing
		p.mu.Unlock()
		return f
	}
	f := newFuture()
	p.blessing = f
	slots := p.slotsLocked()
	p.mu.Unlock()

	var g errgroup.Group
	for _, slot := range slots {
		g.Go(func() error {
			slot.Do(func(el Element) { p.bless(ctx, el) })
			return nil
		})
	}

	go func() {
		_ = g.Wait()

		p.mu.Lock()
		p.blessed = true
		p.blessing = nil
		p.mu.Unlock()

		p.log.Info("pool blessed", slog.Int("slots", len(slots)))
		p.emit(p.event(EventBlessed, 0, "", ""))
		f.complete(nil)
	}()
	return f
}

// bless runs the unlock sequence on one element and restores its playback
// state afterwards. An element that is already playing is not played again.
// Failures are expected on some platforms and are only logged.
func (p *Pool) bless(ctx context.Context, el Element) {
	paused := el.Paused()
	muted := el.Muted()
	currentTime := el.CurrentTime()

	if paused {
		if err := el.Play(ctx); err != nil {
			p.log.Debug("blessing media element failed",
				slog.String("slot", el.ID()),
				slog.String("error", err.Error()))
			return
		}
	}

	el.SetMuted(false)
	if paused {
		_ = el.Pause()
		el.SetCurrentTime(currentTime)
	}
	if muted {
		el.SetMuted(true)
	}
}
