// Package history is the profile page's model: the signed-in user's past
// prediction sessions, each of which reopens the disease form pre-seeded.
package history

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"medinsight/internal/api"
	"medinsight/internal/auth"
	"medinsight/internal/disease"
	"medinsight/internal/logging"
	"medinsight/internal/notify"
	"medinsight/internal/predict"
)

// FetchFailedNotice is shown when the history cannot be loaded.
const FetchFailedNotice = "Error fetching history"

// NoDetails labels an entry that has no prediction yet.
const NoDetails = "(No details)"

// Lister is the slice of the API this package calls.
type Lister interface {
	PredictionHistory(ctx context.Context) ([]api.HistoryEntry, error)
}

// Entry is one past session.
type Entry struct {
	api.HistoryEntry
}

// Params navigates to the disease form for this session.
func (e Entry) Params() predict.Params {
	return predict.Params{Disease: e.Disease, SessionID: e.SessionID}
}

// Label is the prediction text, or NoDetails.
func (e Entry) Label() string {
	if e.Prediction == "" {
		return NoDetails
	}
	return e.Prediction
}

// Negative reports a negative prediction, for coloring.
func (e Entry) Negative() bool {
	return strings.EqualFold(e.Prediction, "negative")
}

// Emoji returns the disease emoji, or "" for a tag outside the known set.
func (e Entry) Emoji() string {
	info, ok := disease.Lookup(disease.Disease(e.Disease))
	if !ok {
		return ""
	}
	return info.Emoji
}

// Fetch loads the history once. A failure raises FetchFailedNotice and
// returns the error; an empty history is an empty, non-nil slice.
func Fetch(ctx context.Context, l Lister, sink notify.Sink) ([]Entry, error) {
	rows, err := l.PredictionHistory(ctx)
	if err != nil {
		logging.API("prediction history fetch failed", zap.Error(err))
		if sink != nil {
			sink.Show(FetchFailedNotice, notify.Error)
		}
		return nil, err
	}
	out := make([]Entry, len(rows))
	for i, row := range rows {
		out[i] = Entry{row}
	}
	return out, nil
}

// AuthSource is what the watcher observes.
type AuthSource interface {
	Snapshot() auth.Snapshot
	Subscribe(fn func(auth.Snapshot)) (cancel func())
}

// Snapshot is the watcher's render state.
type Snapshot struct {
	User    *api.User
	Loading bool
	Loaded  bool
	Entries []Entry
	Err     error
}

// Watcher keeps the history in step with the auth state: it fetches when a
// user becomes authenticated and forgets everything on sign-out.
type Watcher struct {
	src      AuthSource
	lister   Lister
	sink     notify.Sink
	onChange func(Snapshot)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	unsub  func()

	mu    sync.Mutex
	state Snapshot
	wasIn bool
	gen   uint64
}

// NewWatcher creates a stopped watcher. onChange, if set, runs after every
// state change on the goroutine that made it.
func NewWatcher(src AuthSource, lister Lister, sink notify.Sink, onChange func(Snapshot)) *Watcher {
	return &Watcher{src: src, lister: lister, sink: sink, onChange: onChange}
}

// Start subscribes to auth changes and fetches right away if a user is
// already signed in.
func (w *Watcher) Start(ctx context.Context) {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.unsub = w.src.Subscribe(w.observe)
	w.observe(w.src.Snapshot())
}

// Stop unsubscribes and waits for an in-flight fetch to finish.
func (w *Watcher) Stop() {
	if w.unsub != nil {
		w.unsub()
	}
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}

// Snapshot returns the current state.
func (w *Watcher) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := w.state
	s.Entries = append([]Entry(nil), w.state.Entries...)
	return s
}

// Refresh refetches for the signed-in user.
func (w *Watcher) Refresh() {
	w.mu.Lock()
	if w.state.User == nil {
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()
	w.fetch()
}

func (w *Watcher) observe(s auth.Snapshot) {
	if s.State == auth.Loading {
		return
	}
	signedIn := s.State == auth.Authenticated

	w.mu.Lock()
	became := signedIn && !w.wasIn
	left := !signedIn && w.wasIn
	w.wasIn = signedIn
	if left {
		w.gen++
		w.state = Snapshot{}
	}
	if signedIn {
		w.state.User = s.User
	}
	snap := w.state
	w.mu.Unlock()

	if left {
		w.emit(snap)
	}
	if became {
		w.fetch()
	}
}

func (w *Watcher) fetch() {
	w.mu.Lock()
	w.gen++
	gen := w.gen
	w.state.Loading = true
	snap := w.state
	w.mu.Unlock()
	w.emit(snap)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		entries, err := Fetch(w.ctx, w.lister, w.sink)

		w.mu.Lock()
		if gen != w.gen {
			// signed out or refetched meanwhile
			w.mu.Unlock()
			return
		}
		w.state.Loading = false
		w.state.Loaded = err == nil
		w.state.Err = err
		if err == nil {
			w.state.Entries = entries
		}
		snap := w.state
		w.mu.Unlock()
		w.emit(snap)
	}()
}

func (w *Watcher) emit(s Snapshot) {
	if w.onChange != nil {
		w.onChange(s)
	}
}
