// Package i18n supplies the translation functions exposed to templates.
//
// Messages live in a Catalog built on golang.org/x/text/message/catalog.
// Plural forms are selected with CLDR rules from x/text/feature/plural.
package i18n

import (
	"sync"

	"golang.org/x/text/feature/plural"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Translator translates messages for one language.
type Translator interface {
	Gettext(msg string) string
	Ngettext(singular, plural string, n int) string
	Language() string
}

// Catalog holds translated messages for any number of languages.
type Catalog struct {
	builder *catalog.Builder

	mu      sync.RWMutex
	plurals map[string]map[string]bool
}

// NewCatalog creates an empty catalog with English as the fallback language.
func NewCatalog() *Catalog {
	return &Catalog{
		builder: catalog.NewBuilder(catalog.Fallback(language.English)),
		plurals: make(map[string]map[string]bool),
	}
}

// Set registers the translation of key for lang.
func (c *Catalog) Set(lang, key, msg string) error {
	tag, err := language.Parse(lang)
	if err != nil {
		return err
	}
	return c.builder.SetString(tag, key, msg)
}

// SetPlural registers singular and plural forms keyed by the untranslated
// singular. Both forms may use %d for the count.
func (c *Catalog) SetPlural(lang, key, one, other string) error {
	tag, err := language.Parse(lang)
	if err != nil {
		return err
	}
	if err := c.builder.Set(tag, key, plural.Selectf(1, "%d",
		plural.One, one,
		plural.Other, other,
	)); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	name := tag.String()
	if c.plurals[name] == nil {
		c.plurals[name] = make(map[string]bool)
	}
	c.plurals[name][key] = true
	return nil
}

// Translator returns a translator for lang. Unparseable tags fall back to English.
func (c *Catalog) Translator(lang string) Translator {
	tag, err := language.Parse(lang)
	if err != nil {
		tag = language.English
	}
	return &translator{
		tag:     tag,
		printer: message.NewPrinter(tag, message.Catalog(c.builder)),
		catalog: c,
	}
}

func (c *Catalog) hasPlural(tag language.Tag, key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.plurals[tag.String()][key]
}

type translator struct {
	tag     language.Tag
	printer *message.Printer
	catalog *Catalog
}

func (t *translator) Gettext(msg string) string {
	return t.printer.Sprintf(msg)
}

func (t *translator) Ngettext(singular, pluralForm string, n int) string {
	if t.catalog.hasPlural(t.tag, singular) {
		return t.printer.Sprintf(singular, n)
	}
	if n == 1 {
		return singular
	}
	return pluralForm
}

func (t *translator) Language() string {
	return t.tag.String()
}

// Null returns a translator that returns messages untranslated.
func Null() Translator {
	return nullTranslator{}
}

type nullTranslator struct{}

func (nullTranslator) Gettext(msg string) string { return msg }

func (nullTranslator) Ngettext(singular, plural string, n int) string {
	if n == 1 {
		return singular
	}
	return plural
}

func (nullTranslator) Language() string { return "und" }

// Noop marks msg for extraction without translating it.
func Noop(msg string) string {
	return msg
}
