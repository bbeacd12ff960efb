package ui

import (
	"hash/fnv"
	"strconv"
	"sync"

	"github.com/charmbracelet/glamour"
	lru "github.com/hashicorp/golang-lru/v2"
)

// ComputeKey hashes markdown source together with the wrap width.
func ComputeKey(content string, width int) uint64 {
	h := fnv.New64a()
	h.Write([]byte(content))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(width)))
	return h.Sum64()
}

// Markdown renders markdown through glamour and keeps recent results in an
// LRU, so re-rendering the same recommendation or chat turn on every frame
// costs a map lookup. A renderer is built lazily per width.
type Markdown struct {
	style string

	mu        sync.Mutex
	renderers map[int]*glamour.TermRenderer
	cache     *lru.Cache[uint64, string]
}

// NewMarkdown creates a renderer with room for size cached outputs.
// style is a glamour standard style name ("dark", "light", "notty");
// empty picks one from the terminal.
func NewMarkdown(style string, size int) (*Markdown, error) {
	if size <= 0 {
		size = 256
	}
	cache, err := lru.New[uint64, string](size)
	if err != nil {
		return nil, err
	}
	return &Markdown{
		style:     style,
		renderers: make(map[int]*glamour.TermRenderer),
		cache:     cache,
	}, nil
}

// StyleFor maps a theme to a glamour style.
func StyleFor(t Theme) string {
	if t.IsDark {
		return "dark"
	}
	return "light"
}

func (m *Markdown) renderer(width int) (*glamour.TermRenderer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.renderers[width]; ok {
		return r, nil
	}
	style := glamour.WithAutoStyle()
	if m.style != "" {
		style = glamour.WithStandardStyle(m.style)
	}
	r, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(width))
	if err != nil {
		return nil, err
	}
	m.renderers[width] = r
	return r, nil
}

// Render returns the styled form of content wrapped at width. On a
// renderer failure the raw text is returned so nothing is lost on screen.
func (m *Markdown) Render(content string, width int) string {
	if content == "" {
		return ""
	}
	if width < 20 {
		width = 20
	}
	key := ComputeKey(content, width)
	if out, ok := m.cache.Get(key); ok {
		return out
	}
	r, err := m.renderer(width)
	if err != nil {
		return content
	}
	out, err := r.Render(content)
	if err != nil {
		return content
	}
	m.cache.Add(key, out)
	return out
}

// Len is the number of cached renders.
func (m *Markdown) Len() int { return m.cache.Len() }

// Purge drops every cached render, e.g. after a theme change.
func (m *Markdown) Purge() { m.cache.Purge() }
