// Package i18n provides the message catalog used to label patron block rows.
package i18n

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	goi18n "github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

// Catalog holds every loaded translation.
type Catalog struct {
	bundle    *goi18n.Bundle
	fallback  language.Tag
	supported []language.Tag
	matcher   language.Matcher
}

// NewCatalog creates a catalog with the built-in messages and the given fallback language.
func NewCatalog(fallback language.Tag) *Catalog {
	bundle := goi18n.NewBundle(fallback)
	for tag, msgs := range builtinMessages() {
		if err := bundle.AddMessages(tag, msgs...); err != nil {
			// built-in messages are static; a failure here is a programming error
			panic(fmt.Sprintf("i18n: invalid built-in messages for %s: %v", tag, err))
		}
	}

	c := &Catalog{bundle: bundle, fallback: fallback}
	c.rebuildMatcher()
	return c
}

// LoadDir loads every *.json message file in dir. Files are named after their
// language tag, e.g. en.json or pt-BR.json.
func (c *Catalog) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read i18n dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		if _, err := c.bundle.LoadMessageFile(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
	}

	c.rebuildMatcher()
	return nil
}

// rebuildMatcher keeps the fallback first so unmatched requests resolve to it.
func (c *Catalog) rebuildMatcher() {
	supported := []language.Tag{c.fallback}
	for _, tag := range c.bundle.LanguageTags() {
		if tag != c.fallback {
			supported = append(supported, tag)
		}
	}
	c.supported = supported
	c.matcher = language.NewMatcher(supported)
}

// Languages returns the supported tags, fallback first.
func (c *Catalog) Languages() []language.Tag {
	return append([]language.Tag(nil), c.supported...)
}

// Match resolves an Accept-Language header to the best supported tag.
func (c *Catalog) Match(acceptLanguage string) language.Tag {
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return c.fallback
	}

	_, idx, _ := c.matcher.Match(tags...)
	return c.supported[idx]
}

// Localizer returns a localizer for the given preferences, best first. Each entry may be
// a tag or a raw Accept-Language header.
func (c *Catalog) Localizer(langs ...string) *Localizer {
	return &Localizer{l: goi18n.NewLocalizer(c.bundle, langs...)}
}

// Localizer translates message IDs for one request.
type Localizer struct {
	l *goi18n.Localizer
}

// Localize returns the translation for id, or id itself when no language has it.
func (l *Localizer) Localize(id string) string {
	msg, err := l.l.Localize(&goi18n.LocalizeConfig{MessageID: id})
	if err != nil && msg == "" {
		return id
	}
	return msg
}
