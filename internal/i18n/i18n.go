// Package i18n loads the embedded message catalogs and negotiates the
// visitor's language.
package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"path"
	"sort"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
	"gopkg.in/yaml.v3"
)

//go:embed locales/*.yaml
var localesFS embed.FS

// Catalog holds every locale's messages.
type Catalog struct {
	builder  *catalog.Builder
	tags     []language.Tag
	matcher  language.Matcher
	fallback language.Tag
	keys     map[language.Tag]map[string]struct{}
}

// Load parses the embedded catalogs. fallback is used when a visitor's
// languages match nothing; it must be one of the embedded locales.
func Load(fallback string) (*Catalog, error) {
	return LoadFS(localesFS, fallback)
}

// LoadFS parses locales/<tag>.yaml files from fsys.
func LoadFS(fsys fs.FS, fallback string) (*Catalog, error) {
	fallbackTag, err := language.Parse(fallback)
	if err != nil {
		return nil, fmt.Errorf("i18n: fallback locale %q: %w", fallback, err)
	}
	paths, err := fs.Glob(fsys, "locales/*.yaml")
	if err != nil {
		return nil, fmt.Errorf("i18n: glob catalogs: %w", err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("i18n: no catalogs found")
	}
	sort.Strings(paths)

	c := &Catalog{
		builder:  catalog.NewBuilder(catalog.Fallback(fallbackTag)),
		fallback: fallbackTag,
		keys:     make(map[language.Tag]map[string]struct{}),
	}
	// The fallback goes first so the matcher prefers it on ties.
	c.tags = append(c.tags, fallbackTag)
	for _, p := range paths {
		tag, err := language.Parse(strings.TrimSuffix(path.Base(p), ".yaml"))
		if err != nil {
			return nil, fmt.Errorf("i18n: catalog %s: %w", p, err)
		}
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return nil, fmt.Errorf("i18n: read %s: %w", p, err)
		}
		messages := map[string]string{}
		if err := yaml.Unmarshal(data, &messages); err != nil {
			return nil, fmt.Errorf("i18n: parse %s: %w", p, err)
		}
		keys := make(map[string]struct{}, len(messages))
		for key, msg := range messages {
			if err := c.builder.SetString(tag, key, msg); err != nil {
				return nil, fmt.Errorf("i18n: %s %s: %w", p, key, err)
			}
			keys[key] = struct{}{}
		}
		c.keys[tag] = keys
		if tag != fallbackTag {
			c.tags = append(c.tags, tag)
		}
	}
	if _, ok := c.keys[fallbackTag]; !ok {
		return nil, fmt.Errorf("i18n: no catalog for fallback locale %s", fallbackTag)
	}
	c.matcher = language.NewMatcher(c.tags)
	return c, nil
}

// Match picks the best supported locale for an Accept-Language header.
func (c *Catalog) Match(acceptLanguage string) language.Tag {
	prefs, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(prefs) == 0 {
		return c.fallback
	}
	_, index, confidence := c.matcher.Match(prefs...)
	if confidence == language.No {
		return c.fallback
	}
	return c.tags[index]
}

// Has reports whether tag's catalog defines key.
func (c *Catalog) Has(tag language.Tag, key string) bool {
	_, ok := c.keys[tag][key]
	return ok
}

// Printer returns a translator for tag.
func (c *Catalog) Printer(tag language.Tag) Printer {
	return Printer{tag: tag, p: message.NewPrinter(tag, message.Catalog(c.builder))}
}

// ForRequest returns the translator negotiated from r's Accept-Language.
func (c *Catalog) ForRequest(r *http.Request) Printer {
	return c.Printer(c.Match(r.Header.Get("Accept-Language")))
}

// Printer translates message keys for one locale.
type Printer struct {
	tag language.Tag
	p   *message.Printer
}

// T returns the message for key formatted with args. Unknown keys are
// returned as is.
func (p Printer) T(key string, args ...any) string {
	if p.p == nil {
		return key
	}
	return p.p.Sprintf(key, args...)
}

// Lang returns the BCP 47 tag of the printer's locale.
func (p Printer) Lang() string {
	return p.tag.String()
}
