package discovery

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"formscout/internal/dom"
	"formscout/internal/domain/entity"
)

// Outcome says what the sweep should do with an element.
type Outcome int

const (
	// OutcomeIgnore drops the element without note: static markup, action
	// buttons, hidden value carriers.
	OutcomeIgnore Outcome = iota
	// OutcomeField admits the element into the inventory.
	OutcomeField
	// OutcomeSkip surfaces an interactive element no rule could place.
	OutcomeSkip
)

type Verdict struct {
	Outcome Outcome
	Kind    entity.FieldKind
	Reason  string
}

func field(kind entity.FieldKind) Verdict { return Verdict{Outcome: OutcomeField, Kind: kind} }
func ignore() Verdict                     { return Verdict{Outcome: OutcomeIgnore} }
func skip(reason string) Verdict          { return Verdict{Outcome: OutcomeSkip, Reason: reason} }

var inputKinds = map[string]entity.FieldKind{
	"":         entity.KindText,
	"text":     entity.KindText,
	"search":   entity.KindText,
	"password": entity.KindText,
	"email":    entity.KindEmail,
	"tel":      entity.KindTel,
	"url":      entity.KindURL,
	"date":     entity.KindDate,
	"month":    entity.KindMonth,
	"number":   entity.KindNumber,
	"file":     entity.KindFile,
	"checkbox": entity.KindCheckbox,
	"radio":    entity.KindRadio,
	// textual enough to fill with a raw value
	"time":           entity.KindText,
	"week":           entity.KindText,
	"datetime-local": entity.KindText,
}

// action-like inputs never enter the inventory; hidden inputs are value
// carriers, claimed later by the widgets they back.
var passiveInputs = map[string]bool{
	"hidden": true,
	"submit": true,
	"button": true,
	"reset":  true,
	"image":  true,
}

// range and color need widget-specific gestures we cannot dispatch through
// a value string, so they are surfaced instead of guessed.
var unfillableInputs = map[string]bool{
	"range": true,
	"color": true,
}

// selectishRe matches the naming conventions custom choice widgets tend to
// use when they carry no semantic markup at all.
var selectishRe = regexp.MustCompile(`(?i)(?:^|[-_ ])(?:select|dropdown|combobox|picker|choices|autocomplete)(?:$|[-_ ])`)

// Classifier places elements into field kinds. Declared semantics only:
// native control first, explicit ARIA role second, popup linkage last.
// Anything interactive that matches no rule is skipped, not guessed.
type Classifier struct {
	doc        *dom.Document
	referenced map[string]bool
}

// NewClassifier indexes aria-controls/aria-owns references so containers
// that belong to some widget are not classified as widgets themselves.
func NewClassifier(doc *dom.Document) *Classifier {
	referenced := map[string]bool{}
	dom.Walk(doc.Root(), func(n *html.Node) bool {
		for _, key := range [...]string{"aria-controls", "aria-owns"} {
			for _, id := range strings.Fields(dom.Attr(n, key)) {
				referenced[id] = true
			}
		}
		return true
	})
	return &Classifier{doc: doc, referenced: referenced}
}

func (c *Classifier) Classify(n *html.Node) Verdict {
	if n.Type != html.ElementNode {
		return ignore()
	}
	if dom.HasAttr(n, "disabled") {
		return ignore()
	}
	role := strings.ToLower(dom.Attr(n, "role"))

	switch n.Data {
	case "textarea":
		return field(entity.KindTextarea)
	case "select":
		if dom.HasAttr(n, "multiple") {
			return field(entity.KindSelectMulti)
		}
		return field(entity.KindSelectSingle)
	case "input":
		typ := strings.ToLower(dom.Attr(n, "type"))
		if passiveInputs[typ] {
			return ignore()
		}
		if unfillableInputs[typ] {
			return skip(fmt.Sprintf("unsupported input type %q", typ))
		}
		kind, ok := inputKinds[typ]
		if !ok {
			// unknown types render as text inputs, so treat them as such
			kind = entity.KindText
		}
		// An explicit combobox role turns a text input into the trigger
		// of a choice widget; the role wins over the tag there.
		if kind.IsTextual() && (role == "combobox" || dom.Attr(n, "aria-haspopup") == "listbox") {
			return field(entity.KindChoiceCustom)
		}
		return field(kind)
	}

	switch role {
	case "textbox":
		if dom.Attr(n, "aria-multiline") == "true" {
			return field(entity.KindTextarea)
		}
		return field(entity.KindText)
	case "searchbox":
		return field(entity.KindText)
	case "checkbox", "switch":
		return field(entity.KindCheckbox)
	case "radio":
		return field(entity.KindRadio)
	case "combobox":
		return field(entity.KindChoiceCustom)
	case "listbox":
		if c.referenced[dom.Attr(n, "id")] {
			return ignore()
		}
		return field(entity.KindChoiceCustom)
	case "spinbutton", "slider":
		return skip(fmt.Sprintf("unsupported role %q", role))
	}

	if dom.Attr(n, "aria-haspopup") == "listbox" {
		return field(entity.KindChoiceCustom)
	}
	if dom.HasAttr(n, "aria-expanded") && dom.HasAttr(n, "aria-controls") {
		return field(entity.KindChoiceCustom)
	}
	// Last resort for widgets with no semantic markup: a clickable control
	// following a select-ish naming convention, backed by a hidden value
	// carrier nearby.
	if clickable(n) && selectishRe.MatchString(dom.Attr(n, "class")) && c.FindCarrier(n) != nil {
		return field(entity.KindChoiceCustom)
	}
	if dom.HasAttr(n, "contenteditable") {
		if v := strings.ToLower(dom.Attr(n, "contenteditable")); v == "" || v == "true" {
			return field(entity.KindTextarea)
		}
	}
	return ignore()
}

// clickable reports whether the element carries an interactive affordance
// a click can be dispatched against.
func clickable(n *html.Node) bool {
	if n.Data == "button" || n.Data == "a" {
		return true
	}
	if strings.ToLower(dom.Attr(n, "role")) == "button" {
		return true
	}
	return dom.HasAttr(n, "tabindex") || dom.HasAttr(n, "onclick")
}

// FindCarrier locates the hidden input a custom choice widget submits
// through: the trigger itself when it is an input, otherwise a hidden
// input within the widget's immediate container chain.
func (c *Classifier) FindCarrier(n *html.Node) *html.Node {
	if n.Data == "input" {
		return n
	}
	if id := dom.Attr(n, "aria-controls"); id != "" {
		if target := c.doc.ByID(id); target != nil && target.Data == "input" {
			return target
		}
	}
	scope := n
	for depth := 0; depth < 3 && scope.Parent != nil; depth++ {
		scope = scope.Parent
		if scope.Type == html.ElementNode && (scope.Data == "form" || scope.Data == "body") {
			break
		}
		if carrier := hiddenInputIn(scope, n); carrier != nil {
			return carrier
		}
	}
	return nil
}

func hiddenInputIn(scope, exclude *html.Node) *html.Node {
	var found *html.Node
	dom.Walk(scope, func(cand *html.Node) bool {
		if found != nil || cand == exclude {
			return false
		}
		if cand.Data == "input" && strings.EqualFold(dom.Attr(cand, "type"), "hidden") {
			found = cand
			return false
		}
		return true
	})
	return found
}
