package dom

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

var attrLocatorRe = regexp.MustCompile(`^\[name="([^"]*)"\](?:\[value="([^"]*)"\])?$`)

// Path returns the structural locator of an element, e.g.
// /html/body/div[2]/input[1]. Indexes are 1-based among same-tag element
// siblings; html and body stay bare since a document has one of each.
func Path(n *html.Node) string {
	if n == nil || n.Type != html.ElementNode {
		return ""
	}
	var segments []string
	for cur := n; cur != nil && cur.Type == html.ElementNode; cur = cur.Parent {
		if cur.Data == "html" || cur.Data == "body" {
			segments = append(segments, cur.Data)
			continue
		}
		idx := 1
		for sib := cur.PrevSibling; sib != nil; sib = sib.PrevSibling {
			if sib.Type == html.ElementNode && sib.Data == cur.Data {
				idx++
			}
		}
		segments = append(segments, fmt.Sprintf("%s[%d]", cur.Data, idx))
	}
	for i, j := 0, len(segments)-1; i < j; i, j = i+1, j-1 {
		segments[i], segments[j] = segments[j], segments[i]
	}
	return "/" + strings.Join(segments, "/")
}

// Locator returns the most specific locator a Driver can resolve back to
// this node: #id when the id is unambiguous, a name selector when the name
// is unique (with a value qualifier for radio-style repeats), otherwise the
// structural path.
func (d *Document) Locator(n *html.Node) string {
	if id := Attr(n, "id"); id != "" && d.byID[id] == n {
		return "#" + id
	}
	if name := Attr(n, "name"); name != "" {
		switch d.countByName(name) {
		case 1:
			return fmt.Sprintf("[name=%q]", name)
		default:
			if value := Attr(n, "value"); value != "" {
				return fmt.Sprintf("[name=%q][value=%q]", name, value)
			}
		}
	}
	return Path(n)
}

func (d *Document) countByName(name string) int {
	count := 0
	Walk(d.root, func(n *html.Node) bool {
		if Attr(n, "name") == name {
			count++
		}
		return true
	})
	return count
}

// Find resolves a locator to its element node, or nil when nothing
// matches. Supported forms: #id, [name="…"], [name="…"][value="…"] and
// structural paths.
func (d *Document) Find(target string) *html.Node {
	switch {
	case strings.HasPrefix(target, "#"):
		return d.ByID(target[1:])
	case strings.HasPrefix(target, "["):
		m := attrLocatorRe.FindStringSubmatch(target)
		if m == nil {
			return nil
		}
		return d.findByName(m[1], m[2])
	case strings.HasPrefix(target, "/"):
		return d.findByPath(target)
	}
	return nil
}

func (d *Document) findByName(name, value string) *html.Node {
	var found *html.Node
	Walk(d.root, func(n *html.Node) bool {
		if found != nil {
			return false
		}
		if Attr(n, "name") != name {
			return true
		}
		if value != "" && Attr(n, "value") != value {
			return true
		}
		found = n
		return false
	})
	return found
}

func (d *Document) findByPath(path string) *html.Node {
	cur := d.root
	for _, segment := range strings.Split(strings.TrimPrefix(path, "/"), "/") {
		tag, idx, ok := parseSegment(segment)
		if !ok {
			return nil
		}
		cur = childAt(cur, tag, idx)
		if cur == nil {
			return nil
		}
	}
	return cur
}

// parseSegment splits "div[2]" into its tag and 1-based index; a bare tag
// means the first occurrence.
func parseSegment(segment string) (string, int, bool) {
	open := strings.IndexByte(segment, '[')
	if open < 0 {
		return segment, 1, segment != ""
	}
	if !strings.HasSuffix(segment, "]") {
		return "", 0, false
	}
	idx, err := strconv.Atoi(segment[open+1 : len(segment)-1])
	if err != nil || idx < 1 {
		return "", 0, false
	}
	return segment[:open], idx, true
}

func childAt(parent *html.Node, tag string, idx int) *html.Node {
	seen := 0
	for c := parent.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || c.Data != tag {
			continue
		}
		seen++
		if seen == idx {
			return c
		}
	}
	return nil
}
