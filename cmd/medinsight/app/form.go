package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"medinsight/internal/disease"
	"medinsight/internal/history"
	"medinsight/internal/logging"
	"medinsight/internal/notify"
	"medinsight/internal/predict"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"
)

// navFocus means no form element has focus and page keys are live.
const navFocus = -1

// formModel is the disease form page. route is nil while the route is
// opening and after an open failure.
type formModel struct {
	tag      string
	opening  bool
	err      error
	route    *predict.Route
	schema   disease.Schema
	inputs   []textinput.Model
	focus    int
	problems map[string]string
	inflight int

	chat     textinput.Model
	showChat bool
	formVP   viewport.Model
	chatVP   viewport.Model

	turns       int
	lastPending bool
}

func (f formModel) predictButton() int   { return len(f.schema.Fields) }
func (f formModel) recommendButton() int { return len(f.schema.Fields) + 1 }
func (f formModel) chatInput() int       { return len(f.schema.Fields) + 2 }
func (f formModel) focusCount() int      { return len(f.schema.Fields) + 3 }

func (f formModel) close() {
	if f.route != nil {
		f.route.Close()
	}
}

// field returns the schema field under focus.
func (f formModel) field() (disease.Field, bool) {
	if f.focus < 0 || f.focus >= len(f.schema.Fields) {
		return disease.Field{}, false
	}
	return f.schema.Fields[f.focus], true
}

// attach builds the inputs for a freshly opened route.
func (f *formModel) attach(r *predict.Route) {
	f.route = r
	f.schema = r.Schema()
	f.inputs = make([]textinput.Model, len(f.schema.Fields))
	for i, fd := range f.schema.Fields {
		ti := textinput.New()
		ti.Prompt = ""
		ti.CharLimit = 16
		ti.Width = 12
		if fd.Min != nil && fd.Max != nil {
			ti.Placeholder = fmt.Sprintf("%g-%g", *fd.Min, *fd.Max)
		}
		ti.SetValue(r.Field(fd.Name))
		f.inputs[i] = ti
	}
	f.chat = textinput.New()
	f.chat.Prompt = "› "
	f.chat.Placeholder = "Ask about your results..."
	f.chat.CharLimit = 2000
	f.focus = 0
}

// setFocus moves focus to i, wrapping around, and focuses the matching input.
func (f *formModel) setFocus(i int) tea.Cmd {
	n := f.focusCount()
	if i != navFocus {
		i = ((i % n) + n) % n
	}
	for j := range f.inputs {
		f.inputs[j].Blur()
	}
	f.chat.Blur()
	f.focus = i

	switch {
	case i == f.chatInput():
		f.showChat = true
		return f.chat.Focus()
	case i >= 0 && i < len(f.inputs) && !f.schema.Fields[i].Kind.IsBoolean():
		f.showChat = false
		return f.inputs[i].Focus()
	case i >= 0:
		f.showChat = false
	}
	return nil
}

// =============================================================================
// OPENING
// =============================================================================

// openForm leaves the current page and opens the route for p in the
// background.
func (m Model) openForm(p predict.Params) (Model, tea.Cmd) {
	m = m.leave()
	m.routeGen++
	m.page = FormPage
	m.form = formModel{tag: p.Disease, opening: true, focus: navFocus}
	m = m.layoutForm()
	logging.UI("opening disease form", zap.String("disease", p.Disease), zap.Bool("session", p.SessionID != ""))

	open := openRouteCmd(m.ctx, m.deps, p, m.routeGen)
	spin := m.spin()
	return m, tea.Batch(open, spin)
}

// openRouteCmd pre-loads a stored session when one is named and opens the
// route. A failed pre-load is reported and the route opens unseeded.
func openRouteCmd(ctx context.Context, deps Deps, p predict.Params, gen int) tea.Cmd {
	return func() tea.Msg {
		if p.History == nil && p.SessionID != "" {
			h, err := predict.LoadHistory(ctx, deps.API, p.Disease, p.SessionID)
			switch {
			case errors.Is(err, disease.ErrUnknownDisease):
				return routeOpenedMsg{gen: gen, err: err}
			case err != nil:
				deps.Notifier.Show(history.FetchFailedNotice, notify.Error)
			}
			p.History = h
		}
		r, err := predict.Open(ctx, predict.Deps{API: deps.API, Store: deps.Store, Notify: deps.Notifier}, p)
		return routeOpenedMsg{gen: gen, route: r, err: err}
	}
}

func (m Model) onRouteOpened(msg routeOpenedMsg) (Model, tea.Cmd) {
	if msg.gen != m.routeGen || m.page != FormPage {
		if msg.route != nil {
			msg.route.Close()
		}
		return m, nil
	}
	m.form.opening = false
	if msg.err != nil {
		m.form.err = msg.err
		return m, nil
	}
	m.form.attach(msg.route)
	cmd := m.form.setFocus(0)
	m = m.layoutForm()
	return m, cmd
}

// =============================================================================
// KEYS
// =============================================================================

// handleFormKey handles keys while a form element has focus. Everything is
// consumed so typing never triggers page navigation.
func (m Model) handleFormKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	f := &m.form
	switch msg.String() {
	case "esc":
		f.setFocus(navFocus)
		return m, nil
	case "tab", "down":
		cmd := f.setFocus(f.focus + 1)
		return m, cmd
	case "shift+tab", "up":
		cmd := f.setFocus(f.focus - 1)
		return m, cmd
	case "pgup", "pgdown":
		var cmd tea.Cmd
		f.chatVP, cmd = f.chatVP.Update(msg)
		return m, cmd
	case "ctrl+t":
		f.showChat = !f.showChat
		return m, nil
	case "enter":
		switch f.focus {
		case f.predictButton():
			return m.submit(predict.ActionPredict)
		case f.recommendButton():
			return m.submit(predict.ActionRecommend)
		case f.chatInput():
			return m.send()
		default:
			cmd := f.setFocus(f.focus + 1)
			return m, cmd
		}
	}

	if fd, ok := f.field(); ok {
		if fd.Kind.IsBoolean() {
			if msg.String() == " " {
				next := "1"
				if f.route.Field(fd.Name) == "1" {
					next = "0"
				}
				_ = f.route.SetField(fd.Name, next)
				delete(f.problems, fd.Name)
			}
			return m, nil
		}
		if msg.Type == tea.KeySpace || (msg.Type == tea.KeyRunes && !numeric(msg.Runes)) {
			return m, nil
		}
		var cmd tea.Cmd
		f.inputs[f.focus], cmd = f.inputs[f.focus].Update(msg)
		_ = f.route.SetField(fd.Name, f.inputs[f.focus].Value())
		delete(f.problems, fd.Name)
		return m, cmd
	}

	if f.focus == f.chatInput() {
		var cmd tea.Cmd
		f.chat, cmd = f.chat.Update(msg)
		return m, cmd
	}
	return m, nil
}

func numeric(rs []rune) bool {
	for _, r := range rs {
		if !strings.ContainsRune("0123456789.-", r) {
			return false
		}
	}
	return true
}

// =============================================================================
// ACTIONS
// =============================================================================

// submit validates locally, then runs the action in the background. An
// action already in flight is ignored, like a disabled button.
func (m Model) submit(action predict.Action) (Model, tea.Cmd) {
	r := m.form.route
	if r == nil {
		return m, nil
	}
	v := r.View()
	if (action == predict.ActionPredict && v.Predicting) || (action == predict.ActionRecommend && v.Recommending) {
		return m, nil
	}

	if err := disease.Validate(m.form.schema, r.Form()); err != nil {
		var verr *disease.ValidationError
		if !errors.As(err, &verr) {
			return m, nil
		}
		m.form.problems = make(map[string]string, len(verr.Problems))
		for _, p := range verr.Problems {
			m.form.problems[p.Field] = p.Reason
		}
		first := 0
		for i, fd := range m.form.schema.Fields {
			if fd.Name == verr.Problems[0].Field {
				first = i
				break
			}
		}
		cmd := m.form.setFocus(first)
		m = m.syncForm()
		return m, cmd
	}
	m.form.problems = nil
	m.form.inflight++

	ctx := m.ctx
	run := func() tea.Msg {
		return submitDoneMsg{route: r, action: action, err: r.Submit(ctx, action)}
	}
	spin := m.spin()
	return m, tea.Batch(run, spin)
}

func (m Model) onSubmitDone(msg submitDoneMsg) Model {
	if msg.route != m.form.route {
		return m
	}
	m.form.inflight--
	if msg.err != nil && !errors.Is(msg.err, predict.ErrClosed) {
		logging.UI("form action failed", zap.String("action", string(msg.action)), zap.Error(msg.err))
	}
	return m
}

// send starts a chat turn. An empty message or an outstanding reply leaves
// everything as it was.
func (m Model) send() (Model, tea.Cmd) {
	r := m.form.route
	if r == nil {
		return m, nil
	}
	pending, err := r.BeginSend(m.form.chat.Value())
	if err != nil {
		return m, nil
	}
	m.form.chat.SetValue("")
	m.form.inflight++

	ctx := m.ctx
	run := func() tea.Msg {
		return chatDoneMsg{route: r, err: r.CompleteSend(ctx, pending)}
	}
	m = m.syncForm()
	spin := m.spin()
	return m, tea.Batch(run, spin)
}

func (m Model) onChatDone(msg chatDoneMsg) Model {
	if msg.route != m.form.route {
		return m
	}
	m.form.inflight--
	return m
}

// copySessionID puts the current session identifier on the clipboard.
func (m Model) copySessionID() Model {
	if m.form.route == nil {
		return m
	}
	if err := m.deps.Copy(m.form.route.SessionID()); err != nil {
		logging.UI("clipboard write failed", zap.Error(err))
		m.deps.Notifier.Show("Could not copy the session ID", notify.Error)
		return m
	}
	m.deps.Notifier.Show("Session ID copied", notify.Success)
	return m
}

// =============================================================================
// LAYOUT AND RENDERING
// =============================================================================

// split reports whether the form and the chat fit side by side.
func (m Model) split() bool { return m.width >= 100 }

func (m Model) columnWidths() (formW, chatW int) {
	if !m.split() {
		return m.width, m.width
	}
	chatW = m.width * 2 / 5
	return m.width - chatW - 1, chatW
}

// layoutForm sizes the form and chat viewports for the window.
func (m Model) layoutForm() Model {
	formW, chatW := m.columnWidths()
	h := m.bodyHeight()
	if m.form.formVP.Width == 0 && m.form.formVP.Height == 0 {
		m.form.formVP = viewport.New(formW, h)
		m.form.chatVP = viewport.New(chatW, max(h-3, 1))
	}
	m.form.formVP.Width, m.form.formVP.Height = formW, h
	m.form.chatVP.Width, m.form.chatVP.Height = chatW, max(h-3, 1)
	m.form.chat.Width = max(chatW-4, 10)
	return m.syncForm()
}

// syncForm re-renders both columns into their viewports.
func (m Model) syncForm() Model {
	f := &m.form
	if f.route == nil {
		return m
	}
	v := f.route.View()

	body, focusLine := m.renderFormColumn(v, f.formVP.Width)
	f.formVP.SetContent(body)
	if focusLine >= 0 {
		if focusLine < f.formVP.YOffset {
			f.formVP.SetYOffset(focusLine)
		} else if focusLine+3 > f.formVP.YOffset+f.formVP.Height {
			f.formVP.SetYOffset(focusLine + 3 - f.formVP.Height)
		}
	}

	f.chatVP.SetContent(m.renderTurns(v.Turns, f.chatVP.Width))
	pending := len(v.Turns) > 0 && v.Turns[len(v.Turns)-1].Pending
	if len(v.Turns) != f.turns || pending != f.lastPending {
		f.chatVP.GotoBottom()
		f.turns, f.lastPending = len(v.Turns), pending
	}
	return m
}

// renderFormColumn returns the form, buttons and results, plus the line
// the focused element starts on (-1 when nothing has focus).
func (m Model) renderFormColumn(v predict.View, width int) (string, int) {
	s := m.styles
	f := m.form
	var lines []string
	focusLine := -1
	add := func(block string) { lines = append(lines, strings.Split(block, "\n")...) }

	info := f.route.Info()
	add(s.Title.Render(fmt.Sprintf("%s %s Prediction", info.Emoji, info.Name)))
	add(s.Muted.Render("Session " + v.SessionID))
	add("")

	labelW := 0
	for _, fd := range f.schema.Fields {
		labelW = max(labelW, lipgloss.Width(fd.Label))
	}
	labelW = min(labelW, max(width/2, 12))

	for i, fd := range f.schema.Fields {
		if i == f.focus {
			focusLine = len(lines)
		}
		label := s.Label
		marker := "  "
		if i == f.focus {
			label = s.FocusedLabel
			marker = "› "
		}
		var input string
		if fd.Kind.IsBoolean() {
			input = toggle(fd.Kind, v.Form[fd.Name] == "1")
		} else {
			input = f.inputs[i].View()
		}
		row := marker + label.Width(labelW).Render(fd.Label) + "  " + input
		if fd.Unit != "" {
			row += " " + s.Unit.Render(fd.Unit)
		}
		add(row)
		if reason, ok := f.problems[fd.Name]; ok {
			add("    " + s.FieldError.Render(fd.Label+" "+reason))
		}
	}
	add("")

	predictLabel, recommendLabel := "Predict", "Get Recommendations"
	if v.Predicting {
		predictLabel = m.spinner.View() + " Predicting..."
	}
	if v.Recommending {
		recommendLabel = m.spinner.View() + " Generating..."
	}
	if f.focus == f.predictButton() || f.focus == f.recommendButton() {
		focusLine = len(lines)
	}
	add(lipgloss.JoinHorizontal(lipgloss.Top,
		button(s.Button, s.ActiveButton, predictLabel, f.focus == f.predictButton()),
		" ",
		button(s.Button, s.ActiveButton, recommendLabel, f.focus == f.recommendButton()),
	))

	if v.Prediction != "" {
		add("")
		add(s.Bold.Render("Prediction: ") + s.Prediction(v.Prediction))
	}
	if v.Recommendation != "" {
		add("")
		add(s.Bold.Render("Recommendations"))
		add(strings.Trim(m.deps.Markdown.Render(v.Recommendation, width-2), "\n"))
	}
	return strings.Join(lines, "\n"), focusLine
}

func toggle(kind disease.FieldKind, on bool) string {
	if kind == disease.KindSwitch {
		if on {
			return "(●) on"
		}
		return "( ) off"
	}
	if on {
		return "[x]"
	}
	return "[ ]"
}

func button(normal, active lipgloss.Style, label string, focused bool) string {
	if focused {
		return active.Render(label)
	}
	return normal.Render(label)
}

// renderTurns draws the transcript: user turns on the right, assistant
// turns on the left as markdown.
func (m Model) renderTurns(turns []predict.Turn, width int) string {
	s := m.styles
	bubble := max(width*3/4, 20)
	var b strings.Builder
	for i, t := range turns {
		if i > 0 {
			b.WriteString("\n\n")
		}
		switch {
		case t.User:
			block := s.UserTurn.Width(bubble).Render(t.Message)
			b.WriteString(lipgloss.PlaceHorizontal(width, lipgloss.Right, block))
		case t.Pending:
			b.WriteString(s.AssistantTurn.Render(m.spinner.View() + " Thinking..."))
		default:
			md := strings.Trim(m.deps.Markdown.Render(t.Message, bubble), "\n")
			b.WriteString(s.AssistantTurn.Render(md))
		}
	}
	return b.String()
}

// viewForm renders the form page body.
func (m Model) viewForm() string {
	s := m.styles
	f := m.form
	switch {
	case f.opening:
		return s.Content.Render(m.spinner.View() + " Loading form...")
	case f.err != nil:
		msg := f.err.Error()
		if errors.Is(f.err, disease.ErrUnknownDisease) {
			msg = disease.ErrUnknownDisease.Error()
		}
		return s.Content.Render(s.FieldError.Render("✗ "+msg) + "\n\n" + s.Muted.Render("Press s to choose a disease."))
	case f.route == nil:
		return ""
	}

	chat := lipgloss.JoinVertical(lipgloss.Left,
		s.Bold.Render("💬 Health Assistant"),
		f.chatVP.View(),
		s.RenderDivider(f.chatVP.Width),
		f.chat.View(),
	)
	if m.split() {
		return lipgloss.JoinHorizontal(lipgloss.Top, f.formVP.View(), " ", chat)
	}
	if f.showChat {
		return chat
	}
	return f.formVP.View()
}
