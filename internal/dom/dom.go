// Package dom wraps a parsed HTML document with the lookups the engine
// leans on: id and label indexes, structural paths, locator resolution and
// structural visibility.
package dom

import (
	"fmt"
	"hash/fnv"
	"strings"

	"golang.org/x/net/html"
)

// Document is one parsed read of the live document.
type Document struct {
	root     *html.Node
	byID     map[string]*html.Node
	labelFor map[string]*html.Node
}

// Parse builds a Document from raw markup.
func Parse(markup string) (*Document, error) {
	root, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	doc := &Document{
		root:     root,
		byID:     map[string]*html.Node{},
		labelFor: map[string]*html.Node{},
	}
	doc.index(root)
	return doc, nil
}

// index records the first node per id and per label[for] reference.
func (d *Document) index(n *html.Node) {
	if n.Type == html.ElementNode {
		if id := Attr(n, "id"); id != "" {
			if _, dup := d.byID[id]; !dup {
				d.byID[id] = n
			}
		}
		if n.Data == "label" {
			if ref := Attr(n, "for"); ref != "" {
				if _, dup := d.labelFor[ref]; !dup {
					d.labelFor[ref] = n
				}
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		d.index(c)
	}
}

// Root returns the document node.
func (d *Document) Root() *html.Node {
	return d.root
}

// Body returns the <body> element, or nil on fragment-only input.
func (d *Document) Body() *html.Node {
	return findTag(d.root, "body")
}

// ByID returns the element carrying the given id, or nil.
func (d *Document) ByID(id string) *html.Node {
	return d.byID[id]
}

func findTag(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findTag(c, tag); found != nil {
			return found
		}
	}
	return nil
}

// Render serializes a node back to markup.
func Render(n *html.Node) string {
	var sb strings.Builder
	_ = html.Render(&sb, n)
	return sb.String()
}

// Fingerprint hashes markup so that two reads of an unchanged document
// compare equal without retaining the markup itself.
func Fingerprint(markup string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(markup))
	return h.Sum64()
}
