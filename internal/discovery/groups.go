package discovery

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"formscout/internal/dom"
	"formscout/internal/domain/entity"
)

// Indexed naming is the primary repeat-group signal:
//
//	employer[2][title]   employer-2-title   employer_2_title   employer.2.title
var (
	bracketGroupRe = regexp.MustCompile(`^([A-Za-z][\w-]*)\[(\d+)\](?:\[([\w-]+)\])?$`)
	sepGroupRe     = regexp.MustCompile(`^([A-Za-z][\w.-]*?)[-_.](\d+)[-_.]([\w.-]+)$`)
)

// parseGroupRef reads a repeat-group reference out of a declared name.
// Ordinals here are as declared; compaction happens over the whole
// inventory once capture is complete.
func parseGroupRef(name string) (entity.GroupRef, bool) {
	if m := bracketGroupRe.FindStringSubmatch(name); m != nil {
		ord, _ := strconv.Atoi(m[2])
		return entity.GroupRef{Key: m[1], Ordinal: ord, Member: m[3]}, true
	}
	if m := sepGroupRe.FindStringSubmatch(name); m != nil {
		ord, _ := strconv.Atoi(m[2])
		return entity.GroupRef{Key: m[1], Ordinal: ord, Member: m[3]}, true
	}
	return entity.GroupRef{}, false
}

// repeatContainers finds the container-level signals. Primary: containers
// marked data-repeat (value = group key, position = ordinal). Secondary:
// sibling containers sharing a structural template (same tag, same class
// signature, same set of control names inside). Containers need at least
// one sibling of the same shape to count; a lone row is just a section.
func repeatContainers(root *html.Node) map[*html.Node]entity.GroupRef {
	byKey := map[string][]*html.Node{}
	dom.Walk(root, func(n *html.Node) bool {
		if key := dom.Attr(n, "data-repeat"); key != "" {
			byKey[key] = append(byKey[key], n)
			return false
		}
		return true
	})
	refs := map[*html.Node]entity.GroupRef{}
	for key, containers := range byKey {
		if len(containers) < 2 {
			continue
		}
		for i, container := range containers {
			refs[container] = entity.GroupRef{Key: key, Ordinal: i + 1}
		}
	}
	templateContainers(root, refs)
	return refs
}

// templateContainers groups undeclared repeat rows by template signature:
// element children of one parent that share tag + class and contain the
// same control names. The group key is derived from the shared class.
func templateContainers(root *html.Node, refs map[*html.Node]entity.GroupRef) {
	dom.Walk(root, func(parent *html.Node) bool {
		bySignature := map[string][]*html.Node{}
		for c := parent.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode || c.Data == "template" {
				continue
			}
			if _, claimed := refs[c]; claimed {
				continue
			}
			sig := containerSignature(c)
			if sig == "" {
				continue
			}
			bySignature[sig] = append(bySignature[sig], c)
		}
		for _, rows := range bySignature {
			if len(rows) < 2 {
				continue
			}
			key := groupKey(rows[0])
			for i, row := range rows {
				refs[row] = entity.GroupRef{Key: key, Ordinal: i + 1}
			}
		}
		return true
	})
}

// containerSignature folds a candidate row into a comparable template key:
// its tag, its class list and the sorted control names inside. Rows with
// no controls produce no signature. Radio and checkbox names are excluded:
// same-name siblings there form one choice group, not repeat rows.
func containerSignature(n *html.Node) string {
	var names []string
	dom.Walk(n, func(c *html.Node) bool {
		switch c.Data {
		case "input", "select", "textarea":
			typ := strings.ToLower(dom.Attr(c, "type"))
			if typ == "radio" || typ == "checkbox" {
				return true
			}
			if name := dom.Attr(c, "name"); name != "" {
				names = append(names, indexFreeName(name))
			}
		}
		return true
	})
	if len(names) == 0 {
		return ""
	}
	sort.Strings(names)
	return n.Data + "|" + dom.Attr(n, "class") + "|" + strings.Join(names, ",")
}

// indexFreeName strips the declared ordinal so rows compare equal:
// employer[2][title] and employer[3][title] share a template.
func indexFreeName(name string) string {
	if ref, ok := parseGroupRef(name); ok {
		return ref.Key + "[]" + ref.Member
	}
	return name
}

// groupKey names an undeclared template group from whatever the markup
// offers: the shared name base, the first class token, or the tag.
func groupKey(row *html.Node) string {
	key := ""
	dom.Walk(row, func(c *html.Node) bool {
		if key != "" {
			return false
		}
		switch c.Data {
		case "input", "select", "textarea":
			if ref, ok := parseGroupRef(dom.Attr(c, "name")); ok {
				key = ref.Key
				return false
			}
		}
		return true
	})
	if key != "" {
		return key
	}
	if classes := strings.Fields(dom.Attr(row, "class")); len(classes) > 0 {
		return classes[0]
	}
	return row.Data
}

// containerGroup walks ancestors looking for an enclosing repeat container.
func containerGroup(n *html.Node, containers map[*html.Node]entity.GroupRef) (entity.GroupRef, bool) {
	for cur := n.Parent; cur != nil; cur = cur.Parent {
		if ref, ok := containers[cur]; ok {
			return ref, true
		}
	}
	return entity.GroupRef{}, false
}

// compactOrdinals renumbers each group's ordinals contiguously from 1,
// preserving declared order. After removing the middle of three entries the
// survivors come out as 1 and 2, whatever the page called them.
func compactOrdinals(fields []entity.FieldDescriptor) {
	declared := map[string][]int{}
	seen := map[string]map[int]bool{}
	for i := range fields {
		g := fields[i].Group
		if g == nil {
			continue
		}
		if seen[g.Key] == nil {
			seen[g.Key] = map[int]bool{}
		}
		if !seen[g.Key][g.Ordinal] {
			seen[g.Key][g.Ordinal] = true
			declared[g.Key] = append(declared[g.Key], g.Ordinal)
		}
	}
	compact := map[string]map[int]int{}
	for key, ordinals := range declared {
		sort.Ints(ordinals)
		mapping := make(map[int]int, len(ordinals))
		for i, ord := range ordinals {
			mapping[ord] = i + 1
		}
		compact[key] = mapping
	}
	for i := range fields {
		g := fields[i].Group
		if g == nil {
			continue
		}
		g.Ordinal = compact[g.Key][g.Ordinal]
	}
}

// memberName strips a grouped field's identity down to its member part when
// the declared name carried no index, e.g. the name attribute repeated
// verbatim across data-repeat rows.
func memberName(n *html.Node) string {
	if name := dom.Attr(n, "name"); name != "" {
		return name
	}
	if id := dom.Attr(n, "id"); id != "" {
		return strings.TrimRight(id, "0123456789-_")
	}
	return ""
}
