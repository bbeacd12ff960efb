package app

import (
	"strings"

	"medinsight/internal/disease"
	"medinsight/internal/history"

	"github.com/charmbracelet/bubbles/list"
)

// diseaseItem is one card on the selection page.
type diseaseItem struct{ info disease.Info }

func (i diseaseItem) Title() string       { return i.info.Emoji + " " + i.info.Name }
func (i diseaseItem) Description() string { return i.info.Description }
func (i diseaseItem) FilterValue() string { return i.info.Name }

// historyItem is one past session on the profile page.
type historyItem struct{ entry history.Entry }

func (i historyItem) Title() string {
	return strings.TrimSpace(i.entry.Emoji() + " " + i.entry.Disease)
}

func (i historyItem) Description() string {
	parts := []string{i.entry.Label()}
	if t, ok := i.entry.UpdatedTime(); ok {
		parts = append(parts, t.Local().Format("Jan 2, 2006 15:04"))
	} else if i.entry.UpdatedAt != "" {
		parts = append(parts, i.entry.UpdatedAt)
	}
	parts = append(parts, "Session "+i.entry.SessionID)
	return strings.Join(parts, " · ")
}

func (i historyItem) FilterValue() string { return i.entry.Disease }

func newList(items []list.Item) list.Model {
	l := list.New(items, list.NewDefaultDelegate(), 80, 20)
	l.SetShowTitle(false)
	l.SetShowStatusBar(false)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.DisableQuitKeybindings()
	return l
}

func newDiseaseList() list.Model {
	all := disease.All()
	items := make([]list.Item, len(all))
	for i, info := range all {
		items[i] = diseaseItem{info: info}
	}
	return newList(items)
}

func newHistoryList() list.Model {
	return newList(nil)
}

func historyItems(entries []history.Entry) []list.Item {
	items := make([]list.Item, len(entries))
	for i, e := range entries {
		items[i] = historyItem{entry: e}
	}
	return items
}

// selectedDisease is the highlighted disease on the selection page.
func (m Model) selectedDisease() (disease.Info, bool) {
	it, ok := m.diseases.SelectedItem().(diseaseItem)
	return it.info, ok
}

// selectedEntry is the highlighted session on the profile page.
func (m Model) selectedEntry() (history.Entry, bool) {
	it, ok := m.histList.SelectedItem().(historyItem)
	return it.entry, ok
}
