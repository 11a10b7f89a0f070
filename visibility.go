package eventsource

import "sync"

// VisibilityMonitor reports whether the consuming environment is currently
// able to display events. Connect uses it to suspend the connection while
// hidden and to reconnect once visible again, unless the subscription opted
// out via Options.KeepAliveWhenHidden.
type VisibilityMonitor interface {
	// Hidden reports the current state.
	Hidden() bool

	// Subscribe registers for state change notifications. Each transition
	// is delivered as the new hidden state on the returned channel. The
	// returned cancel function releases the subscription and must be
	// called exactly once, afterwards the channel is closed.
	Subscribe() (<-chan bool, func())
}

// SignalVisibility is a VisibilityMonitor driven by explicit Set calls. It
// can be shared by any number of subscriptions, applications typically wire
// it to whatever hidden/visible signal their environment provides.
//
// The zero value is not usable, use NewSignalVisibility.
type SignalVisibility struct {
	mu     sync.Mutex
	hidden bool
	sinks  map[chan bool]struct{}
}

// NewSignalVisibility creates a monitor in the visible state.
func NewSignalVisibility() *SignalVisibility {
	return &SignalVisibility{
		sinks: make(map[chan bool]struct{}),
	}
}

// Hidden reports the most recently Set state.
func (v *SignalVisibility) Hidden() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.hidden
}

// Subscribe implements VisibilityMonitor. Notification channels hold only
// the latest state: a subscriber that lags behind observes the most recent
// transition instead of a backlog.
func (v *SignalVisibility) Subscribe() (<-chan bool, func()) {
	ch := make(chan bool, 1)

	v.mu.Lock()
	v.sinks[ch] = struct{}{}
	v.mu.Unlock()

	cancel := func() {
		v.mu.Lock()
		defer v.mu.Unlock()
		if _, ok := v.sinks[ch]; ok {
			delete(v.sinks, ch)
			close(ch)
		}
	}
	return ch, cancel
}

// Set records a new hidden state and notifies all subscribers. Setting the
// current state again is a no-op.
func (v *SignalVisibility) Set(hidden bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.hidden == hidden {
		return
	}
	v.hidden = hidden

	for ch := range v.sinks {
		// Conflate: replace an undelivered value with the latest one.
		select {
		case ch <- hidden:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- hidden:
			default:
			}
		}
	}
}
