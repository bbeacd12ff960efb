package app

import (
	"strings"

	"medinsight/cmd/medinsight/ui"
	"medinsight/internal/auth"
	"medinsight/internal/content"

	"github.com/charmbracelet/lipgloss"
)

// profileCardHeight is the room the user card takes above the history list.
const profileCardHeight = 7

// bodyHeight is what is left for a page between the header and the footer.
func (m Model) bodyHeight() int {
	return max(m.height-4, 1)
}

// setPagerContent renders the markdown of the pager-backed page.
func (m *Model) setPagerContent() {
	var md string
	switch m.page {
	case InfoPage:
		md = content.DiseaseInfo(m.infoTag)
	case PrivacyPage:
		md, _ = content.Get(content.Privacy)
	case TermsPage:
		md, _ = content.Get(content.Terms)
	case HomePage:
		md, _ = content.Get(content.Home)
	default:
		return
	}
	m.pager.SetContent(m.deps.Markdown.Render(md, max(m.pager.Width-2, 20)))
}

// View renders the whole screen, or the login modal over it.
func (m Model) View() string {
	if m.login != nil {
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, m.viewLogin())
	}

	body := lipgloss.NewStyle().
		Height(m.bodyHeight()).
		MaxHeight(m.bodyHeight()).
		Render(m.viewBody())

	return lipgloss.JoinVertical(lipgloss.Left,
		m.viewHeader(),
		m.styles.RenderDivider(m.width),
		body,
		m.styles.RenderDivider(m.width),
		m.viewFooter(),
	)
}

func (m Model) viewBody() string {
	switch m.page {
	case SelectPage:
		return m.diseases.View()
	case FormPage:
		return m.viewForm()
	case ProfilePage:
		return m.viewProfile()
	default:
		return m.pager.View()
	}
}

func (m Model) viewHeader() string {
	s := m.styles
	tabs := []struct {
		key  string
		page Page
	}{
		{"h", HomePage},
		{"s", SelectPage},
		{"p", ProfilePage},
	}
	parts := []string{ui.Logo(s)}
	for _, t := range tabs {
		label := t.key + " " + t.page.String()
		active := m.page == t.page || (t.page == SelectPage && m.page == FormPage)
		if active {
			parts = append(parts, s.SelectedItem.Render(label))
		} else {
			parts = append(parts, s.Muted.Render(label))
		}
	}
	left := strings.Join(parts, "   ")

	var right string
	snap := m.deps.Auth.Snapshot()
	switch {
	case snap.State == auth.Loading:
		right = m.spinner.View()
	case snap.User != nil:
		right = s.Bold.Render("👤 " + displayName(snap.User.Name))
	default:
		right = s.Muted.Render("Sign in (l)")
	}

	gap := max(m.width-lipgloss.Width(left)-lipgloss.Width(right), 1)
	return left + strings.Repeat(" ", gap) + right
}

func (m Model) viewFooter() string {
	s := m.styles
	if n, ok := m.deps.Notifier.Current(); ok {
		return s.Toast(n) + s.Muted.Render("  x dismiss")
	}
	return s.Footer.Render(m.keyHelp())
}

func (m Model) keyHelp() string {
	account := "l login"
	if _, ok := m.deps.Auth.User(); ok {
		account = "l logout"
	}
	switch m.page {
	case SelectPage:
		return "↑/↓ choose · enter open form · i info · " + account + " · q quit"
	case FormPage:
		if m.form.focus != navFocus {
			return "tab/shift+tab move · enter submit · space toggle · ctrl+t chat · esc keys"
		}
		return "tab edit · y copy session · i info · ctrl+t chat · s diseases · q quit"
	case ProfilePage:
		return "↑/↓ choose · enter reopen · r refresh · " + account + " · q quit"
	case InfoPage:
		return "enter open form · esc back · q quit"
	case PrivacyPage, TermsPage:
		return "esc home · q quit"
	default:
		return "enter start · P privacy · T terms · " + account + " · q quit"
	}
}

func (m Model) viewProfile() string {
	s := m.styles
	user, ok := m.deps.Auth.User()
	if !ok {
		return s.Content.Render(s.Muted.Render("Please log in to view your profile."))
	}

	lines := []string{s.Bold.Render(user.Name), s.Muted.Render(user.Email)}
	if user.Provider != "" {
		lines = append(lines, s.Muted.Render("Signed in with "+user.Provider))
	}
	card := s.Card.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))

	snap := m.watcher.Snapshot()
	var list string
	switch {
	case snap.Loading:
		list = m.spinner.View() + " Loading history..."
	case len(snap.Entries) == 0 && snap.Err != nil:
		list = s.FieldError.Render("Could not load your history. Press r to retry.")
	case len(snap.Entries) == 0:
		list = s.Muted.Render("No prediction history yet.")
	default:
		list = m.histList.View()
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		card,
		s.Title.Render("Prediction History"),
		list,
	)
}
