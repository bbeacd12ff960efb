// Package ui provides the visual styling for the MedInsight terminal client.
// Light and dark palettes follow the web app's blue/emerald branding.
package ui

import (
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"medinsight/internal/notify"
)

// Status colors, shared by both palettes.
var (
	Destructive = lipgloss.Color("#ef4444") // red-500
	Success     = lipgloss.Color("#22c55e") // green-500
	Info        = lipgloss.Color("#3b82f6") // blue-500
)

// Theme is one palette. Primary is the brand blue, Accent the emerald used
// for the assistant and the spinner.
type Theme struct {
	Name       string
	Foreground lipgloss.Color
	Primary    lipgloss.Color
	Accent     lipgloss.Color
	Muted      lipgloss.Color
	Border     lipgloss.Color
	IsDark     bool
}

// LightTheme is the default palette.
func LightTheme() Theme {
	return Theme{
		Name:       "light",
		Foreground: lipgloss.Color("#1e293b"), // slate-800
		Primary:    lipgloss.Color("#2563eb"), // blue-600
		Accent:     lipgloss.Color("#059669"), // emerald-600
		Muted:      lipgloss.Color("#64748b"), // slate-500
		Border:     lipgloss.Color("#e2e8f0"), // slate-200
	}
}

// DarkTheme is the palette for dark terminals.
func DarkTheme() Theme {
	return Theme{
		Name:       "dark",
		Foreground: lipgloss.Color("#f1f5f9"), // slate-100
		Primary:    lipgloss.Color("#60a5fa"), // blue-400
		Accent:     lipgloss.Color("#34d399"), // emerald-400
		Muted:      lipgloss.Color("#94a3b8"), // slate-400
		Border:     lipgloss.Color("#334155"), // slate-700
		IsDark:     true,
	}
}

// ThemeFor resolves a configured theme name ("light", "dark" or "auto").
func ThemeFor(name string) Theme {
	switch name {
	case "dark":
		return DarkTheme()
	case "light":
		return LightTheme()
	default:
		return DetectTheme()
	}
}

// DetectTheme guesses from COLORFGBG, honoring MEDINSIGHT_DARK_MODE=1.
func DetectTheme() Theme {
	if os.Getenv("MEDINSIGHT_DARK_MODE") == "1" {
		return DarkTheme()
	}
	// COLORFGBG is "fg;bg"; low ANSI backgrounds are dark
	if parts := strings.Split(os.Getenv("COLORFGBG"), ";"); len(parts) == 2 {
		if bg, err := strconv.Atoi(parts[1]); err == nil {
			if (bg >= 0 && bg <= 6) || bg == 8 {
				return DarkTheme()
			}
		}
	}
	return LightTheme()
}

// Styles are the lipgloss styles of one theme.
type Styles struct {
	Theme Theme

	// Layout
	Header  lipgloss.Style
	Footer  lipgloss.Style
	Content lipgloss.Style
	Card    lipgloss.Style

	// Text
	Title    lipgloss.Style
	Subtitle lipgloss.Style
	Body     lipgloss.Style
	Muted    lipgloss.Style
	Bold     lipgloss.Style

	// Form
	Label         lipgloss.Style
	FocusedLabel  lipgloss.Style
	Unit          lipgloss.Style
	FieldError    lipgloss.Style
	Button        lipgloss.Style
	ActiveButton  lipgloss.Style
	Positive      lipgloss.Style
	Negative      lipgloss.Style
	SelectedItem  lipgloss.Style
	UserTurn      lipgloss.Style
	AssistantTurn lipgloss.Style

	// Status
	Success lipgloss.Style
	Error   lipgloss.Style
	Info    lipgloss.Style

	Spinner lipgloss.Style
	Divider lipgloss.Style
}

// NewStyles derives every style from theme.
func NewStyles(theme Theme) Styles {
	toast := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#ffffff")).
		Padding(0, 2).
		Bold(true)

	return Styles{
		Theme: theme,

		Header: lipgloss.NewStyle().
			Background(theme.Primary).
			Foreground(lipgloss.Color("#ffffff")).
			Padding(0, 2).
			Bold(true),

		Footer: lipgloss.NewStyle().
			Foreground(theme.Muted).
			Padding(0, 2),

		Content: lipgloss.NewStyle().
			Padding(1, 2),

		Card: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(theme.Border).
			Padding(0, 1),

		Title: lipgloss.NewStyle().
			Foreground(theme.Primary).
			Bold(true).
			MarginBottom(1),

		Subtitle: lipgloss.NewStyle().
			Foreground(theme.Muted).
			Italic(true),

		Body: lipgloss.NewStyle().
			Foreground(theme.Foreground),

		Muted: lipgloss.NewStyle().
			Foreground(theme.Muted),

		Bold: lipgloss.NewStyle().
			Foreground(theme.Foreground).
			Bold(true),

		Label: lipgloss.NewStyle().
			Foreground(theme.Foreground),

		FocusedLabel: lipgloss.NewStyle().
			Foreground(theme.Primary).
			Bold(true),

		Unit: lipgloss.NewStyle().
			Foreground(theme.Muted).
			Italic(true),

		FieldError: lipgloss.NewStyle().
			Foreground(Destructive),

		Button: lipgloss.NewStyle().
			Foreground(theme.Foreground).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(theme.Border).
			Padding(0, 2),

		ActiveButton: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#ffffff")).
			Background(theme.Primary).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(theme.Primary).
			Padding(0, 2).
			Bold(true),

		Positive: lipgloss.NewStyle().
			Foreground(Destructive).
			Bold(true),

		Negative: lipgloss.NewStyle().
			Foreground(Success).
			Bold(true),

		SelectedItem: lipgloss.NewStyle().
			Foreground(theme.Primary).
			Bold(true),

		UserTurn: lipgloss.NewStyle().
			Foreground(theme.Foreground).
			PaddingRight(2).
			BorderRight(true).
			BorderStyle(lipgloss.ThickBorder()).
			BorderForeground(theme.Primary),

		AssistantTurn: lipgloss.NewStyle().
			Foreground(theme.Foreground).
			PaddingLeft(2).
			BorderLeft(true).
			BorderStyle(lipgloss.ThickBorder()).
			BorderForeground(theme.Accent),

		Success: toast.Background(Success),
		Error:   toast.Background(Destructive),
		Info:    toast.Background(Info),

		Spinner: lipgloss.NewStyle().
			Foreground(theme.Accent),

		Divider: lipgloss.NewStyle().
			Foreground(theme.Border),
	}
}

// Toast renders a notification in its kind's color.
func (s Styles) Toast(n notify.Notification) string {
	switch n.Kind {
	case notify.Success:
		return s.Success.Render("✓ " + n.Message)
	case notify.Error:
		return s.Error.Render("✗ " + n.Message)
	default:
		return s.Info.Render("ℹ " + n.Message)
	}
}

// Prediction colors a prediction label: negative is good news.
func (s Styles) Prediction(label string) string {
	if strings.EqualFold(label, "negative") {
		return s.Negative.Render(label)
	}
	return s.Positive.Render(label)
}

// RenderDivider returns a horizontal divider
func (s Styles) RenderDivider(width int) string {
	if width < 1 {
		width = 1
	}
	return s.Divider.Render(strings.Repeat("─", width))
}

// Logo returns the MedInsight wordmark
func Logo(s Styles) string {
	return s.Title.Render("✚ MedInsight")
}
