// Package notify is the process-wide transient message channel. Any component
// can raise a message without knowing how it is displayed; exactly one
// message is visible at a time and it dismisses itself after a fixed delay.
package notify

import (
	"sync"
	"time"
)

// Kind classifies a notification for display.
type Kind string

const (
	Success Kind = "success"
	Error   Kind = "error"
	Info    Kind = "info"
)

// DefaultDismissAfter is how long a message stays visible.
const DefaultDismissAfter = 3000 * time.Millisecond

// Sink is what producers depend on.
type Sink interface {
	Show(message string, kind Kind)
}

// Notification is the visible message. Seq increases with every Show.
type Notification struct {
	Message string
	Kind    Kind
	Seq     uint64
}

// Event is delivered to subscribers on every change. Visible is false when
// the message was cleared (timer or Dismiss).
type Event struct {
	Notification
	Visible bool
}

// Stopper cancels a scheduled dismissal.
type Stopper interface {
	Stop() bool
}

// AfterFunc schedules f after d; swapped in tests.
type AfterFunc func(d time.Duration, f func()) Stopper

func realAfterFunc(d time.Duration, f func()) Stopper {
	return time.AfterFunc(d, f)
}

// Notifier implements Sink. The zero value is not usable; call New.
type Notifier struct {
	mu        sync.Mutex
	delay     time.Duration
	afterFunc AfterFunc
	current   *Notification
	seq       uint64
	timer     Stopper
	subs      map[int]chan Event
	nextSub   int
	closed    bool
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithAfterFunc replaces the timer source.
func WithAfterFunc(f AfterFunc) Option {
	return func(n *Notifier) { n.afterFunc = f }
}

// New creates a Notifier; a non-positive delay uses DefaultDismissAfter.
func New(delay time.Duration, opts ...Option) *Notifier {
	if delay <= 0 {
		delay = DefaultDismissAfter
	}
	n := &Notifier{
		delay:     delay,
		afterFunc: realAfterFunc,
		subs:      make(map[int]chan Event),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Show replaces whatever is visible and restarts the dismissal timer.
// Empty messages are ignored.
func (n *Notifier) Show(message string, kind Kind) {
	if message == "" {
		return
	}
	switch kind {
	case Success, Error, Info:
	default:
		kind = Info
	}

	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.seq++
	seq := n.seq
	note := Notification{Message: message, Kind: kind, Seq: seq}
	n.current = &note
	if n.timer != nil {
		n.timer.Stop()
	}
	n.timer = n.afterFunc(n.delay, func() { n.expire(seq) })
	n.broadcastLocked(Event{Notification: note, Visible: true})
	n.mu.Unlock()
}

// expire clears the message only if it is still the one the timer was set for.
func (n *Notifier) expire(seq uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.current == nil || n.current.Seq != seq {
		return
	}
	n.clearLocked()
}

// Dismiss clears the visible message immediately (user click).
func (n *Notifier) Dismiss() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.current == nil {
		return
	}
	if n.timer != nil {
		n.timer.Stop()
		n.timer = nil
	}
	n.clearLocked()
}

func (n *Notifier) clearLocked() {
	cleared := *n.current
	n.current = nil
	n.timer = nil
	n.broadcastLocked(Event{Notification: cleared, Visible: false})
}

// Current returns the visible message.
func (n *Notifier) Current() (Notification, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.current == nil {
		return Notification{}, false
	}
	return *n.current, true
}

// Subscribe returns a channel of change events and a cancel func. The channel
// holds only the latest event; a slow reader skips intermediate ones.
func (n *Notifier) Subscribe() (<-chan Event, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()
	ch := make(chan Event, 1)
	if n.closed {
		close(ch)
		return ch, func() {}
	}
	id := n.nextSub
	n.nextSub++
	n.subs[id] = ch
	return ch, func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		if c, ok := n.subs[id]; ok {
			delete(n.subs, id)
			close(c)
		}
	}
}

func (n *Notifier) broadcastLocked(ev Event) {
	for _, ch := range n.subs {
		select {
		case ch <- ev:
		default:
			// drop the stale pending event, keep the newest
			select {
			case <-ch:
			default:
			}
			ch <- ev
		}
	}
}

// Close stops the timer and closes all subscriber channels.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	n.closed = true
	if n.timer != nil {
		n.timer.Stop()
		n.timer = nil
	}
	for id, ch := range n.subs {
		close(ch)
		delete(n.subs, id)
	}
}

// Discard is a Sink that drops every message.
var Discard Sink = discard{}

type discard struct{}

func (discard) Show(string, Kind) {}
