package dom

import (
	"strings"

	"golang.org/x/net/html"
)

// LabelText resolves the human-readable label of a control. Resolution
// order: <label for=…>, wrapping <label>, aria-label, aria-labelledby,
// placeholder. Empty when nothing applies.
func (d *Document) LabelText(n *html.Node) string {
	if id := Attr(n, "id"); id != "" {
		if label := d.labelFor[id]; label != nil {
			if text := Text(label); text != "" {
				return text
			}
		}
	}
	for cur := n.Parent; cur != nil; cur = cur.Parent {
		if cur.Type == html.ElementNode && cur.Data == "label" {
			if text := Text(cur); text != "" {
				return text
			}
		}
	}
	if v := strings.TrimSpace(Attr(n, "aria-label")); v != "" {
		return v
	}
	if refs := strings.Fields(Attr(n, "aria-labelledby")); len(refs) > 0 {
		var parts []string
		for _, ref := range refs {
			if node := d.byID[ref]; node != nil {
				if text := Text(node); text != "" {
					parts = append(parts, text)
				}
			}
		}
		if len(parts) > 0 {
			return strings.Join(parts, " ")
		}
	}
	return strings.TrimSpace(Attr(n, "placeholder"))
}
