package discovery

import (
	"testing"

	"formscout/internal/dom"
	"formscout/internal/domain/entity"
)

func classifyByID(t *testing.T, markup, id string) Verdict {
	t.Helper()
	doc, err := dom.Parse(markup)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	n := doc.ByID(id)
	if n == nil {
		t.Fatalf("no element #%s in fixture", id)
	}
	return NewClassifier(doc).Classify(n)
}

func wrap(inner string) string {
	return "<html><body><form>" + inner + "</form></body></html>"
}

func TestClassifyNativeControls(t *testing.T) {
	cases := []struct {
		name   string
		markup string
		want   entity.FieldKind
	}{
		{"text", `<input id="x" type="text">`, entity.KindText},
		{"untyped", `<input id="x">`, entity.KindText},
		{"unknown type", `<input id="x" type="fancy">`, entity.KindText},
		{"password", `<input id="x" type="password">`, entity.KindText},
		{"search", `<input id="x" type="search">`, entity.KindText},
		{"email", `<input id="x" type="email">`, entity.KindEmail},
		{"tel", `<input id="x" type="tel">`, entity.KindTel},
		{"url", `<input id="x" type="url">`, entity.KindURL},
		{"date", `<input id="x" type="date">`, entity.KindDate},
		{"month", `<input id="x" type="month">`, entity.KindMonth},
		{"datetime-local", `<input id="x" type="datetime-local">`, entity.KindText},
		{"number", `<input id="x" type="number">`, entity.KindNumber},
		{"file", `<input id="x" type="file">`, entity.KindFile},
		{"checkbox", `<input id="x" type="checkbox">`, entity.KindCheckbox},
		{"radio", `<input id="x" type="radio">`, entity.KindRadio},
		{"textarea", `<textarea id="x"></textarea>`, entity.KindTextarea},
		{"select", `<select id="x"><option>a</option></select>`, entity.KindSelectSingle},
		{"select multiple", `<select id="x" multiple><option>a</option></select>`, entity.KindSelectMulti},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := classifyByID(t, wrap(tc.markup), "x")
			if v.Outcome != OutcomeField || v.Kind != tc.want {
				t.Errorf("verdict = %+v, want field %s", v, tc.want)
			}
		})
	}
}

func TestClassifyIgnoresPassiveElements(t *testing.T) {
	cases := []struct {
		name   string
		markup string
	}{
		{"hidden input", `<input id="x" type="hidden">`},
		{"submit", `<input id="x" type="submit">`},
		{"button input", `<input id="x" type="button">`},
		{"reset", `<input id="x" type="reset">`},
		{"image", `<input id="x" type="image">`},
		{"disabled", `<input id="x" type="text" disabled>`},
		{"action button", `<button id="x" type="submit">Apply</button>`},
		{"plain div", `<div id="x" class="hint"></div>`},
		{"contenteditable off", `<div id="x" contenteditable="false"></div>`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if v := classifyByID(t, wrap(tc.markup), "x"); v.Outcome != OutcomeIgnore {
				t.Errorf("verdict = %+v, want ignore", v)
			}
		})
	}
}

func TestClassifySurfacesUnfillable(t *testing.T) {
	cases := []struct {
		name   string
		markup string
		reason string
	}{
		{"range", `<input id="x" type="range">`, `unsupported input type "range"`},
		{"color", `<input id="x" type="color">`, `unsupported input type "color"`},
		{"slider", `<div id="x" role="slider" tabindex="0"></div>`, `unsupported role "slider"`},
		{"spinbutton", `<div id="x" role="spinbutton" tabindex="0"></div>`, `unsupported role "spinbutton"`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := classifyByID(t, wrap(tc.markup), "x")
			if v.Outcome != OutcomeSkip || v.Reason != tc.reason {
				t.Errorf("verdict = %+v, want skip %q", v, tc.reason)
			}
		})
	}
}

func TestClassifyAriaRoles(t *testing.T) {
	cases := []struct {
		name   string
		markup string
		want   entity.FieldKind
	}{
		{"textbox", `<div id="x" role="textbox" tabindex="0"></div>`, entity.KindText},
		{"multiline textbox", `<div id="x" role="textbox" aria-multiline="true"></div>`, entity.KindTextarea},
		{"searchbox", `<div id="x" role="searchbox"></div>`, entity.KindText},
		{"checkbox", `<span id="x" role="checkbox" tabindex="0"></span>`, entity.KindCheckbox},
		{"switch", `<span id="x" role="switch"></span>`, entity.KindCheckbox},
		{"radio", `<span id="x" role="radio"></span>`, entity.KindRadio},
		{"combobox", `<div id="x" role="combobox"></div>`, entity.KindChoiceCustom},
		{"contenteditable", `<div id="x" contenteditable></div>`, entity.KindTextarea},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := classifyByID(t, wrap(tc.markup), "x")
			if v.Outcome != OutcomeField || v.Kind != tc.want {
				t.Errorf("verdict = %+v, want field %s", v, tc.want)
			}
		})
	}
}

func TestClassifyRoleOverridesTextualInputsOnly(t *testing.T) {
	// A combobox role turns a text input into a choice trigger.
	v := classifyByID(t, wrap(`<input id="x" type="text" role="combobox">`), "x")
	if v.Kind != entity.KindChoiceCustom {
		t.Errorf("text+combobox = %s, want choice widget", v.Kind)
	}
	v = classifyByID(t, wrap(`<input id="x" type="search" aria-haspopup="listbox">`), "x")
	if v.Kind != entity.KindChoiceCustom {
		t.Errorf("search+haspopup = %s, want choice widget", v.Kind)
	}
	// Toggles keep their native kind whatever role the markup claims.
	v = classifyByID(t, wrap(`<input id="x" type="checkbox" role="combobox">`), "x")
	if v.Kind != entity.KindCheckbox {
		t.Errorf("checkbox+combobox = %s, want checkbox", v.Kind)
	}
}

func TestClassifyPopupLinkage(t *testing.T) {
	v := classifyByID(t, wrap(`<div id="x" aria-haspopup="listbox">Pick</div>`), "x")
	if v.Outcome != OutcomeField || v.Kind != entity.KindChoiceCustom {
		t.Errorf("haspopup verdict = %+v", v)
	}
	v = classifyByID(t, wrap(`<div id="x" aria-expanded="false" aria-controls="menu">Pick</div><ul id="menu"></ul>`), "x")
	if v.Outcome != OutcomeField || v.Kind != entity.KindChoiceCustom {
		t.Errorf("expanded+controls verdict = %+v", v)
	}
}

func TestClassifyListboxOwnership(t *testing.T) {
	referenced := wrap(`
	  <button id="trigger" role="combobox" aria-controls="menu">Pick</button>
	  <ul id="menu" role="listbox"></ul>`)
	if v := classifyByID(t, referenced, "menu"); v.Outcome != OutcomeIgnore {
		t.Errorf("referenced listbox = %+v, want ignore", v)
	}

	standalone := wrap(`<ul id="menu" role="listbox"></ul>`)
	if v := classifyByID(t, standalone, "menu"); v.Outcome != OutcomeField || v.Kind != entity.KindChoiceCustom {
		t.Errorf("standalone listbox = %+v, want choice widget", v)
	}
}

func TestClassifySelectishNamingNeedsCarrier(t *testing.T) {
	withCarrier := wrap(`
	  <div class="group">
	    <div id="x" class="custom-select" tabindex="0">Pick one</div>
	    <input type="hidden" name="pick" value="">
	  </div>`)
	if v := classifyByID(t, withCarrier, "x"); v.Outcome != OutcomeField || v.Kind != entity.KindChoiceCustom {
		t.Errorf("select-ish with carrier = %+v", v)
	}

	bare := wrap(`<div id="x" class="custom-select" tabindex="0">Pick one</div>`)
	if v := classifyByID(t, bare, "x"); v.Outcome != OutcomeIgnore {
		t.Errorf("select-ish without carrier = %+v, want ignore", v)
	}

	unclickable := wrap(`
	  <div class="group">
	    <div id="x" class="custom-select">Pick one</div>
	    <input type="hidden" name="pick" value="">
	  </div>`)
	if v := classifyByID(t, unclickable, "x"); v.Outcome != OutcomeIgnore {
		t.Errorf("select-ish without affordance = %+v, want ignore", v)
	}
}

func TestFindCarrier(t *testing.T) {
	parse := func(markup string) (*Classifier, *dom.Document) {
		t.Helper()
		doc, err := dom.Parse(markup)
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		return NewClassifier(doc), doc
	}

	t.Run("input triggers carry themselves", func(t *testing.T) {
		c, doc := parse(wrap(`<input id="x" type="text" role="combobox" name="city">`))
		if carrier := c.FindCarrier(doc.ByID("x")); carrier != doc.ByID("x") {
			t.Errorf("carrier = %v", carrier)
		}
	})

	t.Run("aria-controls pointing at an input wins", func(t *testing.T) {
		c, doc := parse(wrap(`
		  <button id="x" role="combobox" aria-controls="store">Pick</button>
		  <div><input id="store" type="hidden" name="pick"></div>`))
		if carrier := c.FindCarrier(doc.ByID("x")); carrier != doc.ByID("store") {
			t.Errorf("carrier = %v, want #store", carrier)
		}
	})

	t.Run("nearest container hidden input", func(t *testing.T) {
		c, doc := parse(wrap(`
		  <div class="field">
		    <button id="x" role="combobox">Pick</button>
		    <input id="store" type="hidden" name="pick">
		  </div>`))
		if carrier := c.FindCarrier(doc.ByID("x")); carrier != doc.ByID("store") {
			t.Errorf("carrier = %v, want #store", carrier)
		}
	})

	t.Run("search stops at the form boundary", func(t *testing.T) {
		// The trigger sits directly under the form, so the form level is
		// never scanned and the hidden input elsewhere is not claimed.
		c, doc := parse(wrap(`
		  <button id="x" role="combobox">Pick</button>
		  <input id="store" type="hidden" name="unrelated">`))
		if carrier := c.FindCarrier(doc.ByID("x")); carrier != nil {
			t.Errorf("carrier = %v, want none", carrier)
		}
	})
}

func TestSelectishPatternShapes(t *testing.T) {
	for _, cls := range []string{"custom-select", "dropdown_trigger", "picker", "js-autocomplete input"} {
		if !selectishRe.MatchString(cls) {
			t.Errorf("%q should read as select-ish", cls)
		}
	}
	for _, cls := range []string{"selected-row", "selection", "dropdowns"} {
		if selectishRe.MatchString(cls) {
			t.Errorf("%q should not read as select-ish", cls)
		}
	}
}
