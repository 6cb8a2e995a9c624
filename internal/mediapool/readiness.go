package mediapool

// Readiness is returned by Binding.Layout. It completes on the first can-play
// signal from the bound slot, or with the load error. A layout that was denied
// yields an already completed Readiness with Granted false.
//
// A Readiness is not invalidated when its binding later loses the slot: the
// caller must check Stale before acting on a completed one.
type Readiness struct {
	*Future

	binding *Binding
	slot    *Slot
	slotID  string
	epoch   uint64
}

// Granted reports whether the layout obtained a slot.
func (r *Readiness) Granted() bool {
	return r.slot != nil
}

// SlotID returns the identity the slot had when the readiness was issued.
// It does not follow later reassignments.
func (r *Readiness) SlotID() string {
	return r.slotID
}

// Stale reports whether the binding no longer holds the slot this readiness
// was issued for.
func (r *Readiness) Stale() bool {
	if r.slot == nil {
		return false
	}
	b := r.binding
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state != StateAttached || b.slot != r.slot || r.slot.Epoch() != r.epoch
}
