// Package app is the interactive MedInsight terminal interface: landing
// page, disease selection, the prediction form with its assistant chat,
// the profile history and the static pages, plus the login modal.
package app

import (
	"context"
	"strings"

	"medinsight/cmd/medinsight/ui"
	"medinsight/internal/auth"
	"medinsight/internal/content"
	"medinsight/internal/history"
	"medinsight/internal/notify"
	"medinsight/internal/predict"
	"medinsight/internal/store"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
)

// =============================================================================
// PAGES
// =============================================================================

// Page is the top-level screen being shown.
type Page int

const (
	HomePage Page = iota
	SelectPage
	FormPage
	ProfilePage
	InfoPage
	PrivacyPage
	TermsPage
)

func (p Page) String() string {
	switch p {
	case SelectPage:
		return "Prediction"
	case FormPage:
		return "Form"
	case ProfilePage:
		return "Profile"
	case InfoPage:
		return "Info"
	case PrivacyPage:
		return content.Privacy.Title()
	case TermsPage:
		return content.Terms.Title()
	default:
		return content.Home.Title()
	}
}

// =============================================================================
// DEPENDENCIES
// =============================================================================

// Backend is the slice of the API the interface calls.
type Backend interface {
	predict.Backend
	predict.HistoryLoader
	history.Lister
}

// Deps are the collaborators the interface is built from.
type Deps struct {
	API      Backend
	Store    store.KV
	Auth     *auth.Holder
	Notifier *notify.Notifier
	Markdown *ui.Markdown
	Theme    ui.Theme

	// GoogleEnabled shows the Google sign-in option in the login modal.
	GoogleEnabled bool

	// Copy puts text on the system clipboard.
	Copy func(string) error
}

// =============================================================================
// MESSAGES
// =============================================================================

// noticeMsg repaints after the visible notification changed.
type noticeMsg struct{}

// authMsg repaints after the auth state changed.
type authMsg struct{}

// historyMsg repaints after the profile history changed.
type historyMsg struct{}

// routeOpenedMsg delivers a route opened in the background.
type routeOpenedMsg struct {
	gen   int
	route *predict.Route
	err   error
}

// submitDoneMsg reports a finished predict or recommend.
type submitDoneMsg struct {
	route  *predict.Route
	action predict.Action
	err    error
}

// chatDoneMsg reports a finished chat send.
type chatDoneMsg struct {
	route *predict.Route
	err   error
}

// authDoneMsg reports a finished login, registration or logout.
type authDoneMsg struct {
	logout bool
	err    error
}

// =============================================================================
// MODEL
// =============================================================================

// Model is the root bubbletea model.
type Model struct {
	deps   Deps
	styles ui.Styles

	ctx    context.Context
	cancel context.CancelFunc

	width  int
	height int

	page        Page
	infoTag     string
	infoBack    Page
	infoSession string
	routeGen    int

	// Static pages and disease info share one scrolling pager.
	pager viewport.Model

	diseases list.Model

	watcher  *history.Watcher
	histList list.Model

	form  formModel
	login *loginModal

	spinner  spinner.Model
	spinning bool

	notices    <-chan notify.Event
	stopNotice func()
	authBox    *mailbox
	histBox    *mailbox
	stopAuth   func()
}

// New builds the interface and starts following auth and history changes.
func New(ctx context.Context, deps Deps) Model {
	if deps.Copy == nil {
		deps.Copy = clipboard.WriteAll
	}
	ctx, cancel := context.WithCancel(ctx)
	authBox, histBox := newMailbox(), newMailbox()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	m := Model{
		deps:     deps,
		styles:   ui.NewStyles(deps.Theme),
		ctx:      ctx,
		cancel:   cancel,
		width:    80,
		height:   24,
		page:     HomePage,
		pager:    viewport.New(80, 20),
		diseases: newDiseaseList(),
		histList: newHistoryList(),
		spinner:  sp,
		authBox:  authBox,
		histBox:  histBox,
	}
	m.spinner.Style = m.styles.Spinner

	m.notices, m.stopNotice = deps.Notifier.Subscribe()
	m.stopAuth = deps.Auth.Subscribe(func(auth.Snapshot) { authBox.poke() })
	m.watcher = history.NewWatcher(deps.Auth, deps.API, deps.Notifier, func(history.Snapshot) { histBox.poke() })
	m.watcher.Start(ctx)

	m.setPagerContent()
	return m
}

// Init arms the background subscriptions.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		waitNotice(m.notices),
		m.authBox.wait(m.ctx, authMsg{}),
		m.histBox.wait(m.ctx, historyMsg{}),
	)
}

// Shutdown closes the open route and stops background work. It is safe to
// call more than once.
func (m Model) Shutdown() {
	m.form.close()
	if m.stopAuth != nil {
		m.stopAuth()
	}
	if m.stopNotice != nil {
		m.stopNotice()
	}
	m.watcher.Stop()
	m.cancel()
}

// Page returns the screen being shown.
func (m Model) Page() Page { return m.page }

// =============================================================================
// SUBSCRIPTIONS
// =============================================================================

func waitNotice(ch <-chan notify.Event) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return noticeMsg{}
	}
}

// mailbox coalesces change signals; a poke never blocks and at most one
// is pending.
type mailbox struct {
	ch chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{ch: make(chan struct{}, 1)}
}

func (b *mailbox) poke() {
	select {
	case b.ch <- struct{}{}:
	default:
	}
}

func (b *mailbox) wait(ctx context.Context, msg tea.Msg) tea.Cmd {
	return func() tea.Msg {
		select {
		case <-b.ch:
			return msg
		case <-ctx.Done():
			return nil
		}
	}
}

// =============================================================================
// HELPERS
// =============================================================================

// displayName is the short name shown in the header: the first word of
// the name, clipped when the full name is long.
func displayName(name string) string {
	first := name
	if i := strings.IndexByte(name, ' '); i >= 0 {
		first = name[:i]
	}
	if len([]rune(name)) > 12 {
		r := []rune(first)
		if len(r) > 10 {
			r = r[:10]
		}
		return string(r) + "..."
	}
	return first
}

// busy reports whether anything the spinner should show is in flight.
func (m Model) busy() bool {
	if m.deps.Auth.State() == auth.Loading {
		return true
	}
	if m.form.opening || m.form.inflight > 0 {
		return true
	}
	if m.login != nil && m.login.busy {
		return true
	}
	if m.form.route != nil {
		v := m.form.route.View()
		if v.Predicting || v.Recommending {
			return true
		}
		for _, t := range v.Turns {
			if t.Pending {
				return true
			}
		}
	}
	return m.page == ProfilePage && m.watcher.Snapshot().Loading
}

// spin starts the spinner unless it is already ticking.
func (m *Model) spin() tea.Cmd {
	if m.spinning {
		return nil
	}
	m.spinning = true
	return m.spinner.Tick
}
