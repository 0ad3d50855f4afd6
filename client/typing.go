package client

import (
	"sync"
	"time"
)

const (
	// TypingThrottle is the minimum spacing between typing emissions
	// during continuous input.
	TypingThrottle = 300 * time.Millisecond
	// TypingIdleTimeout is how long after the last keystroke stopTyping
	// fires automatically.
	TypingIdleTimeout = 2000 * time.Millisecond
)

// TypingNotifier owns the debounce timers for the typing indicator. Wire
// emit to the socket's typing/stopTyping sender. Dispose must be called on
// conversation switch so no timer outlives its conversation.
type TypingNotifier struct {
	mu sync.Mutex

	emit     func(stop bool)
	throttle time.Duration
	idle     time.Duration

	active    bool
	lastEmit  time.Time
	stopTimer *time.Timer
	disposed  bool
}

func NewTypingNotifier(emit func(stop bool)) *TypingNotifier {
	return &TypingNotifier{
		emit:     emit,
		throttle: TypingThrottle,
		idle:     TypingIdleTimeout,
	}
}

// newTypingNotifierWithTimings exists for tests.
func newTypingNotifierWithTimings(emit func(stop bool), throttle, idle time.Duration) *TypingNotifier {
	return &TypingNotifier{emit: emit, throttle: throttle, idle: idle}
}

// OnInput records one keystroke. It emits typing at most once per throttle
// window and pushes the auto-stop deadline out by the idle timeout.
func (n *TypingNotifier) OnInput() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.disposed {
		return
	}

	now := time.Now()
	if !n.active || now.Sub(n.lastEmit) >= n.throttle {
		n.active = true
		n.lastEmit = now
		n.emit(false)
	}

	if n.stopTimer != nil {
		n.stopTimer.Stop()
	}
	n.stopTimer = time.AfterFunc(n.idle, n.timeout)
}

// OnStop emits stopTyping immediately (message submitted or input cleared).
func (n *TypingNotifier) OnStop() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stopLocked()
}

func (n *TypingNotifier) timeout() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.disposed {
		return
	}
	n.stopLocked()
}

func (n *TypingNotifier) stopLocked() {
	if n.stopTimer != nil {
		n.stopTimer.Stop()
		n.stopTimer = nil
	}
	if n.active {
		n.active = false
		n.emit(true)
	}
}

// Dispose cancels timers without emitting. After Dispose the notifier is
// inert.
func (n *TypingNotifier) Dispose() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.stopTimer != nil {
		n.stopTimer.Stop()
		n.stopTimer = nil
	}
	n.active = false
	n.disposed = true
}
