// Package discovery turns a parsed document into the engine's field
// inventory: a sweep of the element tree through the classifier, repeat
// group assignment, identity and locator selection, conditional required
// rules, and structural diffing between consecutive snapshots.
package discovery

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"

	"formscout/internal/dom"
	"formscout/internal/domain/entity"
	"formscout/internal/siteprofile"
)

// CaptureOptions parameterizes one capture. Revision is owned by the
// caller and must increase monotonically; Rules are the site profile's
// declared dependencies, applied to recompute conditional required-ness.
type CaptureOptions struct {
	Revision uint64
	Settled  bool
	Location string
	Rules    []siteprofile.Dependency
}

type sweepEntry struct {
	node *html.Node
	kind entity.FieldKind
}

// Capture builds the field inventory of the document's current state. It
// is a pure read: the document is never mutated and two captures of an
// unchanged document differ only in revision and timestamps.
func Capture(doc *dom.Document, opts CaptureOptions) *entity.FormSnapshot {
	snap := &entity.FormSnapshot{
		Revision:    opts.Revision,
		Settled:     opts.Settled,
		CapturedAt:  time.Now(),
		Location:    opts.Location,
		Fingerprint: dom.Fingerprint(dom.Render(doc.Root())),
	}

	scope := doc.Body()
	if scope == nil {
		scope = doc.Root()
	}

	classifier := NewClassifier(doc)
	containers := repeatContainers(scope)

	var entries []sweepEntry
	dom.Walk(scope, func(n *html.Node) bool {
		verdict := classifier.Classify(n)
		switch verdict.Outcome {
		case OutcomeField:
			entries = append(entries, sweepEntry{node: n, kind: verdict.Kind})
			return false
		case OutcomeSkip:
			snap.Skipped = append(snap.Skipped, entity.SkippedElement{
				Path:   dom.Path(n),
				Reason: verdict.Reason,
			})
			return false
		}
		return true
	})

	fields := make([]entity.FieldDescriptor, len(entries))
	for i, e := range entries {
		fields[i] = describe(doc, classifier, e, containers)
	}
	compactOrdinals(fields)
	assignIDs(fields, entries)
	applyRules(fields, opts.Rules)

	snap.Fields = fields
	return snap
}

// describe extracts everything a single classified element declares.
func describe(doc *dom.Document, classifier *Classifier, e sweepEntry, containers map[*html.Node]entity.GroupRef) entity.FieldDescriptor {
	n := e.node
	f := entity.FieldDescriptor{
		Kind:         e.kind,
		Name:         dom.Attr(n, "name"),
		Label:        doc.LabelText(n),
		Autocomplete: dom.Attr(n, "autocomplete"),
		Required:     dom.HasAttr(n, "required") || dom.Attr(n, "aria-required") == "true",
		Visible:      dom.Visible(n),
		Target:       doc.Locator(n),
		Constraints:  constraintsOf(n),
	}

	switch e.kind {
	case entity.KindCheckbox, entity.KindRadio:
		f.Checked = dom.HasAttr(n, "checked") || dom.Attr(n, "aria-checked") == "true"
		f.Value = dom.Attr(n, "value")
	case entity.KindSelectSingle, entity.KindSelectMulti:
		f.Value = selectedValue(n)
	case entity.KindChoiceCustom:
		if carrier := classifier.FindCarrier(n); carrier != nil {
			f.Value = dom.Attr(carrier, "value")
			if f.Name == "" {
				f.Name = dom.Attr(carrier, "name")
			}
			if carrier != n {
				f.CarrierTarget = doc.Locator(carrier)
			}
		} else {
			f.Value = dom.Attr(n, "value")
		}
	case entity.KindTextarea:
		if v := dom.Attr(n, "value"); v != "" {
			f.Value = v
		} else if n.Data == "textarea" {
			f.Value = dom.Text(n)
		}
	default:
		f.Value = dom.Attr(n, "value")
	}

	if f.Kind.IsChoice() {
		f.Options = entity.NewOptionSet()
	}

	if ref, ok := parseGroupRef(f.Name); ok {
		f.Group = &ref
	} else if ref, ok := containerGroup(n, containers); ok {
		ref.Member = memberName(n)
		f.Group = &ref
	}
	return f
}

// selectedValue reads a native select's current value: the value attribute
// when a driver synced one, otherwise the explicitly selected option.
func selectedValue(n *html.Node) string {
	if v := dom.Attr(n, "value"); v != "" {
		return v
	}
	value := ""
	dom.Walk(n, func(opt *html.Node) bool {
		if value != "" {
			return false
		}
		if opt.Data == "option" && dom.HasAttr(opt, "selected") {
			value = optionValue(opt)
			return false
		}
		return true
	})
	return value
}

func optionValue(opt *html.Node) string {
	if dom.HasAttr(opt, "value") {
		return dom.Attr(opt, "value")
	}
	return dom.Text(opt)
}

func constraintsOf(n *html.Node) *entity.Constraints {
	c := entity.Constraints{
		Pattern: dom.Attr(n, "pattern"),
		Min:     dom.Attr(n, "min"),
		Max:     dom.Attr(n, "max"),
	}
	if raw := dom.Attr(n, "maxlength"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			c.MaxLength = v
		}
	}
	if accept := dom.Attr(n, "accept"); accept != "" {
		for _, part := range strings.Split(accept, ",") {
			if part = strings.TrimSpace(part); part != "" {
				c.Accept = append(c.Accept, part)
			}
		}
	}
	if c.Pattern == "" && c.Min == "" && c.Max == "" && c.MaxLength == 0 && len(c.Accept) == 0 {
		return nil
	}
	return &c
}

// assignIDs picks the stable identity of every field. Declared names that
// already carry a repeat ordinal stay verbatim; container-grouped fields
// get a synthesized key[ordinal][member] identity; the rest prefer id,
// then unique name, then name[value] for radio-style repeats, then the
// structural path. Collisions fall back to the path, which is unique by
// construction.
func assignIDs(fields []entity.FieldDescriptor, entries []sweepEntry) {
	nameCount := map[string]int{}
	for i := range fields {
		if fields[i].Name != "" {
			nameCount[fields[i].Name]++
		}
	}

	used := map[string]bool{}
	for i := range fields {
		f := &fields[i]
		n := entries[i].node

		var id string
		switch {
		case f.Group != nil && nameEncodesGroup(f.Name):
			id = f.Name
		case f.Group != nil:
			id = fmt.Sprintf("%s[%d][%s]", f.Group.Key, f.Group.Ordinal, f.Group.Member)
		case dom.Attr(n, "id") != "":
			id = dom.Attr(n, "id")
		case f.Name != "" && nameCount[f.Name] == 1:
			id = f.Name
		case f.Name != "" && f.Value != "":
			id = fmt.Sprintf("%s[%s]", f.Name, f.Value)
		default:
			id = dom.Path(n)
		}

		if used[id] {
			id = dom.Path(n)
		}
		used[id] = true
		f.ID = id
	}
}

func nameEncodesGroup(name string) bool {
	_, ok := parseGroupRef(name)
	return ok
}

// applyRules recomputes conditional required-ness from the profile's
// dependency rules: while a visible trigger holds an activating value,
// every visible field the rule names as required is required, whatever
// its markup declares.
func applyRules(fields []entity.FieldDescriptor, rules []siteprofile.Dependency) {
	if len(rules) == 0 {
		return
	}
	byID := map[string]*entity.FieldDescriptor{}
	byName := map[string]*entity.FieldDescriptor{}
	for i := range fields {
		byID[fields[i].ID] = &fields[i]
		name := fields[i].Name
		if name == "" {
			continue
		}
		// radio groups share a name; the checked member speaks for it
		if cur := byName[name]; cur == nil || (!cur.Checked && fields[i].Checked) {
			byName[name] = &fields[i]
		}
	}
	lookup := func(ref string) *entity.FieldDescriptor {
		if f := byID[ref]; f != nil {
			return f
		}
		return byName[ref]
	}

	for _, rule := range rules {
		trigger := lookup(rule.Trigger)
		if trigger == nil || !trigger.Visible || !rule.Active(triggerValue(trigger)) {
			continue
		}
		for _, ref := range rule.Requires {
			if f := lookup(ref); f != nil && f.Visible {
				f.Required = true
			}
		}
	}
}

// triggerValue is what a dependency rule compares against: the checked
// state for toggles, the current value for everything else.
func triggerValue(f *entity.FieldDescriptor) string {
	switch f.Kind {
	case entity.KindCheckbox, entity.KindRadio:
		if !f.Checked {
			return ""
		}
		if f.Value != "" {
			return f.Value
		}
		return "on"
	default:
		return f.Value
	}
}

// Diff reports what changed between two snapshots of the same page.
// Appeared and disappeared compare the visible field population; required
// and option changes are reported on the intersection, in next's order.
func Diff(prev, next *entity.FormSnapshot) entity.SnapshotDiff {
	var d entity.SnapshotDiff
	if next == nil {
		return d
	}
	prevFields := map[string]*entity.FieldDescriptor{}
	if prev != nil {
		for i := range prev.Fields {
			prevFields[prev.Fields[i].ID] = &prev.Fields[i]
		}
	}
	nextFields := map[string]*entity.FieldDescriptor{}
	for i := range next.Fields {
		nextFields[next.Fields[i].ID] = &next.Fields[i]
	}

	for i := range next.Fields {
		f := &next.Fields[i]
		pf := prevFields[f.ID]
		if f.Visible && (pf == nil || !pf.Visible) {
			d.Appeared = append(d.Appeared, f.ID)
		}
		if pf == nil {
			continue
		}
		if pf.Required != f.Required {
			d.ChangedRequired = append(d.ChangedRequired, f.ID)
		}
		if f.Kind.IsChoice() && pf.Options.Signature() != f.Options.Signature() {
			d.ChangedOptions = append(d.ChangedOptions, f.ID)
		}
	}
	if prev != nil {
		for i := range prev.Fields {
			f := &prev.Fields[i]
			nf := nextFields[f.ID]
			if f.Visible && (nf == nil || !nf.Visible) {
				d.Disappeared = append(d.Disappeared, f.ID)
			}
		}
	}
	return d
}

// AdoptResolutions carries resolved option sets forward from the previous
// snapshot, honoring the immutability of a resolved set for the rest of
// the session. A set is not adopted when its field sits at a different
// repeat ordinal than it did when resolved: after a repeat entry is
// removed, resolutions made against stale ordinals are discarded rather
// than delivered.
func AdoptResolutions(prev, next *entity.FormSnapshot) {
	if prev == nil || next == nil {
		return
	}
	prevFields := map[string]*entity.FieldDescriptor{}
	for i := range prev.Fields {
		prevFields[prev.Fields[i].ID] = &prev.Fields[i]
	}
	for i := range next.Fields {
		f := &next.Fields[i]
		if !f.Kind.IsChoice() {
			continue
		}
		pf := prevFields[f.ID]
		if pf == nil || pf.Options == nil || pf.Options.State != entity.OptionsResolved {
			continue
		}
		if !samePlacement(pf.Group, f.Group) {
			continue
		}
		f.Options = pf.Options
	}
}

func samePlacement(a, b *entity.GroupRef) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Key == b.Key && a.Ordinal == b.Ordinal && a.Member == b.Member
}
