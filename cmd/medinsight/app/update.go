package app

import (
	"medinsight/internal/auth"
	"medinsight/internal/disease"
	"medinsight/internal/logging"
	"medinsight/internal/predict"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"
)

// Update handles a message and re-renders the form when it is showing.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	m, cmd := m.update(msg)
	if m.page == FormPage {
		m = m.syncForm()
	}
	return m, cmd
}

func (m Model) update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m.resize(), nil

	case spinner.TickMsg:
		if !m.busy() {
			m.spinning = false
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case noticeMsg:
		return m, waitNotice(m.notices)

	case authMsg:
		wait := m.authBox.wait(m.ctx, authMsg{})
		var spin tea.Cmd
		if m.busy() {
			spin = m.spin()
		}
		return m, tea.Batch(wait, spin)

	case historyMsg:
		snap := m.watcher.Snapshot()
		setItems := m.histList.SetItems(historyItems(snap.Entries))
		wait := m.histBox.wait(m.ctx, historyMsg{})
		var spin tea.Cmd
		if snap.Loading && m.page == ProfilePage {
			spin = m.spin()
		}
		return m, tea.Batch(setItems, wait, spin)

	case routeOpenedMsg:
		return m.onRouteOpened(msg)

	case submitDoneMsg:
		return m.onSubmitDone(msg), nil

	case chatDoneMsg:
		return m.onChatDone(msg), nil

	case authDoneMsg:
		return m.onAuthDone(msg), nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

// resize fits every page to the window.
func (m Model) resize() Model {
	h := m.bodyHeight()
	m.diseases.SetSize(m.width, h)
	m.histList.SetSize(m.width, max(h-profileCardHeight, 1))
	m.pager.Width, m.pager.Height = m.width, h
	m.setPagerContent()
	if m.page == FormPage {
		m = m.layoutForm()
	}
	return m
}

// =============================================================================
// NAVIGATION
// =============================================================================

// leave tears down the page being left. Leaving the form closes its route
// and makes any open still in flight stale.
func (m Model) leave() Model {
	if m.page == FormPage {
		m.form.close()
		m.form = formModel{focus: navFocus}
		m.routeGen++
	}
	return m
}

// goTo switches to one of the pages that needs no route.
func (m Model) goTo(p Page) (Model, tea.Cmd) {
	if p == m.page && p != InfoPage {
		return m, nil
	}
	m = m.leave()
	m.page = p
	logging.UI("page", zap.Stringer("page", p))

	var cmd tea.Cmd
	switch p {
	case HomePage, InfoPage, PrivacyPage, TermsPage:
		m.setPagerContent()
		m.pager.GotoTop()
	case ProfilePage:
		m.watcher.Refresh()
		if m.watcher.Snapshot().Loading {
			cmd = m.spin()
		}
	}
	return m, cmd
}

// showInfo opens the information page of tag, remembering where to go back.
func (m Model) showInfo(tag string) (Model, tea.Cmd) {
	back, sid := m.page, ""
	if m.page == FormPage && m.form.route != nil {
		sid = m.form.route.SessionID()
	}
	m.infoTag = tag
	m, cmd := m.goTo(InfoPage)
	m.infoBack, m.infoSession = back, sid
	return m, cmd
}

// back returns from the information page. A form left for it reopens on
// the same session.
func (m Model) back() (Model, tea.Cmd) {
	switch m.infoBack {
	case FormPage:
		return m.openForm(predict.Params{Disease: m.infoTag, SessionID: m.infoSession})
	case InfoPage:
		return m.goTo(HomePage)
	default:
		return m.goTo(m.infoBack)
	}
}

// =============================================================================
// KEYS
// =============================================================================

func (m Model) handleKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		m.Shutdown()
		return m, tea.Quit
	}
	if m.login != nil {
		return m.handleLoginKey(msg)
	}
	if m.page == FormPage && m.form.route != nil && m.form.focus != navFocus {
		return m.handleFormKey(msg)
	}

	switch msg.String() {
	case "q":
		m.Shutdown()
		return m, tea.Quit
	case "h":
		return m.goTo(HomePage)
	case "s":
		return m.goTo(SelectPage)
	case "p":
		return m.goTo(ProfilePage)
	case "P":
		return m.goTo(PrivacyPage)
	case "T":
		return m.goTo(TermsPage)
	case "x":
		m.deps.Notifier.Dismiss()
		return m, nil
	case "l":
		switch m.deps.Auth.State() {
		case auth.Authenticated:
			return m.logout()
		case auth.Unauthenticated:
			return m.openLogin()
		}
		return m, nil
	case "i":
		switch m.page {
		case SelectPage:
			if info, ok := m.selectedDisease(); ok {
				return m.showInfo(string(info.ID))
			}
		case FormPage:
			return m.showInfo(m.form.tag)
		}
		return m, nil
	}

	switch m.page {
	case HomePage:
		if msg.String() == "enter" {
			return m.goTo(SelectPage)
		}
		return m.scrollPager(msg)

	case SelectPage:
		if msg.String() == "enter" {
			if info, ok := m.selectedDisease(); ok {
				return m.openForm(predict.Params{Disease: string(info.ID)})
			}
			return m, nil
		}
		var cmd tea.Cmd
		m.diseases, cmd = m.diseases.Update(msg)
		return m, cmd

	case ProfilePage:
		switch msg.String() {
		case "enter":
			if e, ok := m.selectedEntry(); ok {
				return m.openForm(e.Params())
			}
			return m, nil
		case "r":
			m.watcher.Refresh()
			var cmd tea.Cmd
			if m.watcher.Snapshot().Loading {
				cmd = m.spin()
			}
			return m, cmd
		}
		var cmd tea.Cmd
		m.histList, cmd = m.histList.Update(msg)
		return m, cmd

	case InfoPage:
		switch msg.String() {
		case "enter":
			if _, err := disease.Parse(m.infoTag); err == nil {
				return m.openForm(predict.Params{Disease: m.infoTag})
			}
			return m, nil
		case "esc":
			return m.back()
		}
		return m.scrollPager(msg)

	case PrivacyPage, TermsPage:
		if msg.String() == "esc" {
			return m.goTo(HomePage)
		}
		return m.scrollPager(msg)

	case FormPage:
		switch msg.String() {
		case "y":
			return m.copySessionID(), nil
		case "tab", "enter":
			if m.form.route == nil {
				return m, nil
			}
			cmd := m.form.setFocus(0)
			return m, cmd
		case "ctrl+t":
			m.form.showChat = !m.form.showChat
			return m, nil
		}
		var cmd tea.Cmd
		m.form.formVP, cmd = m.form.formVP.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) scrollPager(msg tea.KeyMsg) (Model, tea.Cmd) {
	var cmd tea.Cmd
	m.pager, cmd = m.pager.Update(msg)
	return m, cmd
}
