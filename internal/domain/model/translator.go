package model

import (
	"slices"
	"strings"
)

// Translator is a directory record for someone who can accept jobs. Read-only for the engine.
type Translator struct {
	ID        string         `json:"id"                   db:"id"`
	Name      string         `json:"name"                 db:"name"`
	PushToken string         `json:"push_token,omitempty" db:"push_token"`
	Phone     string         `json:"phone,omitempty"      db:"phone"`
	Languages []string       `json:"languages"            db:"languages"`
	Towns     []string       `json:"towns"                db:"towns"`
	Gender    string         `json:"gender,omitempty"     db:"gender"`
	Certified bool           `json:"certified"            db:"certified"`
	Available bool           `json:"available"            db:"available"`
	Attrs     map[string]any `json:"attributes,omitempty" db:"attributes"`
}

// Speaks reports whether the translator lists lang (case-insensitive).
func (t *Translator) Speaks(lang string) bool {
	return slices.ContainsFunc(t.Languages, func(l string) bool { return strings.EqualFold(l, lang) })
}

// Serves reports whether the translator works in town (case-insensitive).
func (t *Translator) Serves(town string) bool {
	return slices.ContainsFunc(t.Towns, func(v string) bool { return strings.EqualFold(v, town) })
}

// Document is the view exposed to eligibility expressions.
func (t *Translator) Document() map[string]any {
	langs := make([]any, 0, len(t.Languages))
	for _, l := range t.Languages {
		langs = append(langs, l)
	}
	towns := make([]any, 0, len(t.Towns))
	for _, v := range t.Towns {
		towns = append(towns, v)
	}
	doc := map[string]any{
		"id":        t.ID,
		"languages": langs,
		"towns":     towns,
		"gender":    t.Gender,
		"certified": t.Certified,
		"available": t.Available,
	}
	attrs := make(map[string]any, len(t.Attrs))
	for k, v := range t.Attrs {
		attrs[k] = v
	}
	doc["attributes"] = attrs
	return doc
}

// Customer is a directory record for the party that books jobs.
type Customer struct {
	ID                 string   `json:"id"                   db:"id"`
	Name               string   `json:"name"                 db:"name"`
	PushToken          string   `json:"push_token,omitempty" db:"push_token"`
	Phone              string   `json:"phone,omitempty"      db:"phone"`
	BlockedTranslators []string `json:"blocked_translators"  db:"blocked_translators"`
}

// Blocks reports whether the customer asked never to be matched with translatorID.
func (c *Customer) Blocks(translatorID string) bool {
	return slices.Contains(c.BlockedTranslators, translatorID)
}

// Contact is a resolved notification target.
type Contact struct {
	ID        string
	Role      Role
	PushToken string
	Phone     string
}
