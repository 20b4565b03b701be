package siteprofile

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"
	"golang.org/x/net/html"

	"formscout/internal/dom"
)

// Confirmation is the recognized-success predicate for one site. Any of
// the three signals satisfies it: the location matching one of the URL
// glob patterns, a marker element present and visible, or a literal text
// fragment appearing in the document.
//
// Marker forms: ".token" matches a class token, "#id" an element id,
// "[attr]" an attribute name; a bare word is treated as a class token.
type Confirmation struct {
	URLPatterns []string `yaml:"url_patterns,omitempty"`
	Marker      string   `yaml:"marker,omitempty"`
	Text        string   `yaml:"text,omitempty"`

	globs []glob.Glob
}

// Empty reports whether no signal is configured at all.
func (c *Confirmation) Empty() bool {
	return len(c.URLPatterns) == 0 && c.Marker == "" && c.Text == ""
}

func (c *Confirmation) compile() error {
	c.globs = c.globs[:0]
	for _, pattern := range c.URLPatterns {
		g, err := glob.Compile(pattern)
		if err != nil {
			return fmt.Errorf("confirmation url pattern %q: %w", pattern, err)
		}
		c.globs = append(c.globs, g)
	}
	return nil
}

// MatchURL reports whether the location matches any configured pattern.
func (c *Confirmation) MatchURL(location string) bool {
	for _, g := range c.globs {
		if g.Match(location) {
			return true
		}
	}
	return false
}

// MatchDocument reports whether the marker or text signal is present.
func (c *Confirmation) MatchDocument(doc *dom.Document) bool {
	if doc == nil {
		return false
	}
	if c.Marker != "" && markerPresent(doc, c.Marker) {
		return true
	}
	if c.Text != "" {
		scope := doc.Body()
		if scope == nil {
			scope = doc.Root()
		}
		if strings.Contains(dom.Text(scope), c.Text) {
			return true
		}
	}
	return false
}

// Satisfied is the predicate the session polls after submitting.
func (c *Confirmation) Satisfied(location string, doc *dom.Document) bool {
	return c.MatchURL(location) || c.MatchDocument(doc)
}

func markerPresent(doc *dom.Document, marker string) bool {
	switch {
	case strings.HasPrefix(marker, "#"):
		n := doc.ByID(marker[1:])
		return n != nil && dom.Visible(n)
	case strings.HasPrefix(marker, "["):
		attr := strings.Trim(marker, "[]")
		found := false
		dom.Walk(doc.Root(), func(n *html.Node) bool {
			if dom.HasAttr(n, attr) && dom.Visible(n) {
				found = true
				return false
			}
			return true
		})
		return found
	default:
		token := strings.TrimPrefix(marker, ".")
		found := false
		dom.Walk(doc.Root(), func(n *html.Node) bool {
			if hasClassToken(n, token) && dom.Visible(n) {
				found = true
				return false
			}
			return true
		})
		return found
	}
}

func hasClassToken(n *html.Node, token string) bool {
	for _, cls := range strings.Fields(dom.Attr(n, "class")) {
		if cls == token {
			return true
		}
	}
	return false
}
