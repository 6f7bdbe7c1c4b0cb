package domain

import "strings"

// Label is a provider-side label resource. Name to id resolution happens per
// run; ids are never cached across runs.
type Label struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	TextColor       string `json:"text_color,omitempty"`
	BackgroundColor string `json:"background_color,omitempty"`
}

// LabelColor is a provider color pair for a label.
type LabelColor struct {
	Text       string
	Background string
}

// Category label colors, keyed by lower-cased category name. Values are from
// the provider's allowed palette.
var categoryColors = map[string]LabelColor{
	"work":       {Text: "#ffffff", Background: "#4a86e8"},
	"personal":   {Text: "#ffffff", Background: "#16a766"},
	"newsletter": {Text: "#ffffff", Background: "#ffad47"},
	"shopping":   {Text: "#ffffff", Background: "#a479e2"},
	"support":    {Text: "#ffffff", Background: "#fb4c2f"},
	"other":      {Text: "#ffffff", Background: "#999999"},
}

var defaultLabelColor = LabelColor{Text: "#ffffff", Background: "#999999"}

// ColorForCategory returns the deterministic color pair for a category name,
// case-insensitive, falling back to the default gray pair.
func ColorForCategory(name string) LabelColor {
	if c, ok := categoryColors[strings.ToLower(name)]; ok {
		return c
	}
	return defaultLabelColor
}

// LabelNameForCategory is the provider label name for a category.
func LabelNameForCategory(c Category) string {
	s := string(c)
	if s == "" {
		s = string(CategoryOther)
	}
	return "Inboxie/" + strings.ToUpper(s[:1]) + s[1:]
}

// LabelMap resolves category to provider label id for one run. Categories
// whose label creation failed stay unmapped; their messages go unlabeled
// this pass but are still persisted.
type LabelMap map[Category]string

// IDFor returns the label id for a category and whether one is mapped.
func (m LabelMap) IDFor(c Category) (string, bool) {
	id, ok := m[c]
	return id, ok
}
