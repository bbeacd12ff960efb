// Package content serves the static pages as embedded markdown.
package content

import (
	"embed"
	"fmt"
	"strings"

	"medinsight/internal/disease"
)

//go:embed pages/*.md
var pages embed.FS

// Page names a static page.
type Page string

const (
	Home    Page = "home"
	Privacy Page = "privacy"
	Terms   Page = "terms"
)

// Pages lists every static page.
func Pages() []Page { return []Page{Home, Privacy, Terms} }

// Title is the navigation label of p.
func (p Page) Title() string {
	switch p {
	case Privacy:
		return "Privacy Policy"
	case Terms:
		return "Terms of Service"
	default:
		return "Home"
	}
}

// Get returns the markdown of p.
func Get(p Page) (string, error) {
	b, err := pages.ReadFile("pages/" + string(p) + ".md")
	if err != nil {
		return "", fmt.Errorf("unknown page %q", p)
	}
	return string(b), nil
}

// UnknownDiseaseInfo is shown for a tag with no description.
const UnknownDiseaseInfo = "Information about this disease will be available soon."

// DiseaseInfo renders the info page for tag. Any tag renders; unknown ones
// get the placeholder text.
func DiseaseInfo(tag string) string {
	desc := UnknownDiseaseInfo
	title := tag
	if info, ok := disease.Lookup(disease.Disease(tag)); ok {
		desc = info.Description
		title = info.Emoji + " " + info.Name
	} else if tag != "" {
		title = strings.ToUpper(tag[:1]) + tag[1:]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s Information\n\n", title)
	b.WriteString(desc)
	b.WriteString("\n\nMore details, prevention tips, and resources will be added here.\n")
	return b.String()
}
