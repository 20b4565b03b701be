package dom

import (
	"strings"

	"golang.org/x/net/html"
)

// Visible judges renderability structurally: a node is visible unless it,
// or any ancestor, carries a hidden marker. Geometry and computed styles
// are out of reach here; drivers only hand over markup.
func Visible(n *html.Node) bool {
	for cur := n; cur != nil; cur = cur.Parent {
		if cur.Type != html.ElementNode {
			continue
		}
		if hides(cur) {
			return false
		}
	}
	return true
}

func hides(n *html.Node) bool {
	if HasAttr(n, "hidden") {
		return true
	}
	if Attr(n, "aria-hidden") == "true" {
		return true
	}
	if n.Data == "input" && strings.EqualFold(Attr(n, "type"), "hidden") {
		return true
	}
	if n.Data == "template" {
		return true
	}
	return styleHides(Attr(n, "style"))
}

func styleHides(style string) bool {
	if style == "" {
		return false
	}
	for _, decl := range strings.Split(style, ";") {
		key, value, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.ToLower(strings.TrimSpace(value))
		if key == "display" && value == "none" {
			return true
		}
		if key == "visibility" && value == "hidden" {
			return true
		}
	}
	return false
}
