package app

import (
	"context"
	"strings"

	"medinsight/internal/api"
	"medinsight/internal/auth"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Login modal messages shown inline.
const (
	PasswordMismatchMessage = "Passwords do not match"
	MissingCredentials      = "Email and password are required"
)

const (
	inputName = iota
	inputEmail
	inputPassword
	inputConfirm
)

// loginModal is the sign-in / sign-up dialog. It starts in login mode and
// every field is cleared when it closes.
type loginModal struct {
	register bool
	inputs   [4]textinput.Model
	focus    int
	err      string
	busy     bool
}

func newLoginModal() *loginModal {
	lm := &loginModal{focus: inputEmail}
	placeholders := [4]string{"Full name", "Email", "Password", "Confirm password"}
	for i := range lm.inputs {
		ti := textinput.New()
		ti.Placeholder = placeholders[i]
		ti.CharLimit = 256
		ti.Width = 32
		if i == inputPassword || i == inputConfirm {
			ti.EchoMode = textinput.EchoPassword
			ti.EchoCharacter = '•'
		}
		lm.inputs[i] = ti
	}
	lm.inputs[inputEmail].Focus()
	return lm
}

// visible lists the inputs of the current mode in tab order.
func (lm *loginModal) visible() []int {
	if lm.register {
		return []int{inputName, inputEmail, inputPassword, inputConfirm}
	}
	return []int{inputEmail, inputPassword}
}

func (lm *loginModal) move(delta int) tea.Cmd {
	order := lm.visible()
	pos := 0
	for i, idx := range order {
		if idx == lm.focus {
			pos = i
		}
	}
	pos = ((pos+delta)%len(order) + len(order)) % len(order)
	return lm.focusOn(order[pos])
}

func (lm *loginModal) focusOn(idx int) tea.Cmd {
	for i := range lm.inputs {
		lm.inputs[i].Blur()
	}
	lm.focus = idx
	return lm.inputs[idx].Focus()
}

// toggleMode flips between login and register and clears the error.
func (lm *loginModal) toggleMode() tea.Cmd {
	lm.register = !lm.register
	lm.err = ""
	if lm.register {
		return lm.focusOn(inputName)
	}
	return lm.focusOn(inputEmail)
}

func (lm *loginModal) value(idx int) string { return lm.inputs[idx].Value() }

// =============================================================================
// KEYS
// =============================================================================

func (m Model) openLogin() (Model, tea.Cmd) {
	if _, ok := m.deps.Auth.User(); ok {
		return m, nil
	}
	m.login = newLoginModal()
	return m, textinput.Blink
}

func (m Model) handleLoginKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	lm := m.login
	switch msg.String() {
	case "esc":
		m.login = nil
		return m, nil
	case "tab", "down":
		return m, lm.move(1)
	case "shift+tab", "up":
		return m, lm.move(-1)
	case "ctrl+r":
		if lm.busy {
			return m, nil
		}
		return m, lm.toggleMode()
	case "ctrl+g":
		if lm.busy || !m.deps.GoogleEnabled {
			return m, nil
		}
		return m.runAuth(func(ctx context.Context, h *auth.Holder) error {
			return h.LoginWithGoogle(ctx)
		})
	case "enter":
		if lm.busy {
			return m, nil
		}
		return m.submitLogin()
	}
	var cmd tea.Cmd
	lm.inputs[lm.focus], cmd = lm.inputs[lm.focus].Update(msg)
	return m, cmd
}

// submitLogin checks the inputs locally, then signs in or registers.
func (m Model) submitLogin() (Model, tea.Cmd) {
	lm := m.login
	lm.err = ""
	email := strings.TrimSpace(lm.value(inputEmail))
	password := lm.value(inputPassword)
	if email == "" || password == "" {
		lm.err = MissingCredentials
		return m, nil
	}
	if !lm.register {
		return m.runAuth(func(ctx context.Context, h *auth.Holder) error {
			return h.Login(ctx, email, password)
		})
	}
	if password != lm.value(inputConfirm) {
		lm.err = PasswordMismatchMessage
		return m, nil
	}
	params := auth.RegisterParams{
		Email:    email,
		Password: password,
		Name:     strings.TrimSpace(lm.value(inputName)),
		Provider: api.ProviderEmail,
	}
	return m.runAuth(func(ctx context.Context, h *auth.Holder) error {
		return h.Register(ctx, params)
	})
}

// runAuth runs op against the holder in the background.
func (m Model) runAuth(op func(context.Context, *auth.Holder) error) (Model, tea.Cmd) {
	if m.login != nil {
		m.login.busy = true
	}
	ctx, h := m.ctx, m.deps.Auth
	run := func() tea.Msg {
		return authDoneMsg{err: op(ctx, h)}
	}
	spin := m.spin()
	return m, tea.Batch(run, spin)
}

// logout signs out in the background.
func (m Model) logout() (Model, tea.Cmd) {
	ctx, h := m.ctx, m.deps.Auth
	run := func() tea.Msg {
		return authDoneMsg{logout: true, err: h.Logout(ctx)}
	}
	spin := m.spin()
	return m, tea.Batch(run, spin)
}

// onAuthDone closes the modal on success and shows the failure inline
// otherwise. The holder has already raised any notification.
func (m Model) onAuthDone(msg authDoneMsg) Model {
	if msg.logout || m.login == nil {
		return m
	}
	m.login.busy = false
	if msg.err != nil {
		m.login.err = api.Message(msg.err)
		return m
	}
	m.login = nil
	return m
}

// =============================================================================
// RENDERING
// =============================================================================

func (m Model) viewLogin() string {
	s := m.styles
	lm := m.login

	title := "Welcome Back"
	subtitle := "Sign in to access your health insights"
	if lm.register {
		title = "Create Account"
		subtitle = "Join MedInsight for personalized health predictions"
	}

	rows := []string{s.Title.Render(title), s.Muted.Render(subtitle), ""}
	for _, idx := range lm.visible() {
		label := s.Label
		if idx == lm.focus {
			label = s.FocusedLabel
		}
		rows = append(rows, label.Render(lm.inputs[idx].Placeholder), lm.inputs[idx].View(), "")
	}
	if lm.err != "" {
		rows = append(rows, s.FieldError.Render(lm.err), "")
	}

	action := "enter sign in"
	switchMode := "ctrl+r create an account"
	if lm.register {
		action = "enter sign up"
		switchMode = "ctrl+r already have an account? sign in"
	}
	if lm.busy {
		action = m.spinner.View() + " working..."
	}
	rows = append(rows, s.Muted.Render(action), s.Muted.Render(switchMode))
	if m.deps.GoogleEnabled {
		rows = append(rows, s.Muted.Render("ctrl+g continue with Google"))
	}
	rows = append(rows, s.Muted.Render("esc close"))

	return s.Card.Padding(1, 3).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}
