package notify

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeClock records scheduled callbacks so tests fire them explicitly.
type fakeClock struct {
	mu      sync.Mutex
	pending []*fakeTimer
}

type fakeTimer struct {
	d       time.Duration
	f       func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Stopper {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{d: d, f: f}
	c.pending = append(c.pending, t)
	return t
}

// fireAll runs every scheduled callback, including stopped ones, so stale
// timers get exercised too.
func (c *fakeClock) fireAll() {
	c.mu.Lock()
	timers := c.pending
	c.pending = nil
	c.mu.Unlock()
	for _, t := range timers {
		t.f()
	}
}

func TestShow_EveryKindMakesOneMessageVisible(t *testing.T) {
	for _, kind := range []Kind{Success, Error, Info} {
		t.Run(string(kind), func(t *testing.T) {
			clock := &fakeClock{}
			n := New(DefaultDismissAfter, WithAfterFunc(clock.AfterFunc))
			defer n.Close()

			n.Show("saved", kind)

			cur, ok := n.Current()
			require.True(t, ok)
			assert.Equal(t, "saved", cur.Message)
			assert.Equal(t, kind, cur.Kind)
			require.Len(t, clock.pending, 1)
			assert.Equal(t, 3000*time.Millisecond, clock.pending[0].d)

			clock.fireAll()
			_, ok = n.Current()
			assert.False(t, ok, "auto-dismissed after the delay")
		})
	}
}

func TestShow_EmptyMessageIgnored(t *testing.T) {
	clock := &fakeClock{}
	n := New(time.Second, WithAfterFunc(clock.AfterFunc))
	defer n.Close()

	n.Show("", Error)
	_, ok := n.Current()
	assert.False(t, ok)
	assert.Empty(t, clock.pending)
}

func TestShow_ReplacesAndResetsTimer(t *testing.T) {
	clock := &fakeClock{}
	n := New(time.Second, WithAfterFunc(clock.AfterFunc))
	defer n.Close()

	n.Show("first", Info)
	first := clock.pending[0]
	n.Show("second", Error)

	assert.True(t, first.stopped, "previous timer is cancelled")
	cur, _ := n.Current()
	assert.Equal(t, "second", cur.Message)

	// The stale first timer firing must not clear the second message.
	first.f()
	cur, ok := n.Current()
	require.True(t, ok)
	assert.Equal(t, "second", cur.Message)

	clock.fireAll()
	_, ok = n.Current()
	assert.False(t, ok)
}

func TestDismiss_ClearsImmediately(t *testing.T) {
	clock := &fakeClock{}
	n := New(time.Second, WithAfterFunc(clock.AfterFunc))
	defer n.Close()

	n.Show("click me", Success)
	n.Dismiss()

	_, ok := n.Current()
	assert.False(t, ok)
	assert.True(t, clock.pending[0].stopped)

	// Timer firing afterwards is harmless.
	clock.fireAll()
	_, ok = n.Current()
	assert.False(t, ok)

	// Dismiss with nothing visible is a no-op.
	n.Dismiss()
}

func TestUnknownKindFallsBackToInfo(t *testing.T) {
	n := New(time.Second, WithAfterFunc((&fakeClock{}).AfterFunc))
	defer n.Close()
	n.Show("hello", Kind("warning"))
	cur, _ := n.Current()
	assert.Equal(t, Info, cur.Kind)
}

func TestSubscribe_ReceivesShowAndClear(t *testing.T) {
	clock := &fakeClock{}
	n := New(time.Second, WithAfterFunc(clock.AfterFunc))
	defer n.Close()

	events, cancel := n.Subscribe()
	defer cancel()

	n.Show("hello", Info)
	ev := <-events
	assert.True(t, ev.Visible)
	assert.Equal(t, "hello", ev.Message)

	clock.fireAll()
	ev = <-events
	assert.False(t, ev.Visible)
}

func TestSubscribe_SlowReaderGetsLatest(t *testing.T) {
	clock := &fakeClock{}
	n := New(time.Second, WithAfterFunc(clock.AfterFunc))
	defer n.Close()

	events, cancel := n.Subscribe()
	defer cancel()

	n.Show("one", Info)
	n.Show("two", Info)
	n.Show("three", Error)

	ev := <-events
	assert.Equal(t, "three", ev.Message)
	select {
	case extra := <-events:
		t.Fatalf("unexpected queued event %+v", extra)
	default:
	}
}

func TestRealTimerDismisses(t *testing.T) {
	n := New(20 * time.Millisecond)
	defer n.Close()

	n.Show("short lived", Success)
	assert.Eventually(t, func() bool {
		_, ok := n.Current()
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestClose_ClosesSubscribersAndIgnoresShow(t *testing.T) {
	n := New(time.Hour)
	events, cancel := n.Subscribe()
	n.Show("pending", Info)
	n.Close()
	n.Close()
	cancel()

	<-events // buffered "pending" event
	_, open := <-events
	assert.False(t, open)

	n.Show("after close", Info)
	cur, ok := n.Current()
	assert.True(t, ok, "last message stays until process exit")
	assert.Equal(t, "pending", cur.Message)
}

func TestDiscard(t *testing.T) {
	Discard.Show("nothing", Error)
}
