package dom

import (
	"strings"

	"golang.org/x/net/html"
)

// Walk visits element nodes in document order. visit returns whether to
// descend into the node's children.
func Walk(n *html.Node, visit func(*html.Node) bool) {
	if n.Type == html.ElementNode && !visit(n) {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		Walk(c, visit)
	}
}

// Attr returns the value of the named attribute, or "".
func Attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// HasAttr reports whether the attribute is present, regardless of value.
func HasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

// Text returns the subtree's text with whitespace collapsed. Script and
// style payloads do not count as text.
func Text(n *html.Node) string {
	var sb strings.Builder
	collectText(n, &sb)
	return strings.Join(strings.Fields(sb.String()), " ")
}

func collectText(n *html.Node, sb *strings.Builder) {
	if n.Type == html.TextNode {
		sb.WriteString(n.Data)
		sb.WriteByte(' ')
		return
	}
	if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style" || n.Data == "template") {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, sb)
	}
}

// ElementPaths returns the structural path of every element under root,
// used to tell newly appeared nodes from pre-existing ones.
func ElementPaths(root *html.Node) map[string]struct{} {
	paths := make(map[string]struct{})
	Walk(root, func(n *html.Node) bool {
		paths[Path(n)] = struct{}{}
		return true
	})
	return paths
}
