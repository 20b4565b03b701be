package siteprofile

import (
	"strings"
	"testing"
	"time"

	"formscout/internal/dom"
)

const sampleProfile = `
name: acme-careers
dependencies:
  - trigger: visa_status
    when: visa
    reveals: [visa_type, visa_expiry]
    requires: [visa_type]
  - trigger: country
    reoptions: [city]
confirmation:
  url_patterns: ["*/thanks*", "*confirmation*"]
  marker: ".application-confirmed"
  text: "application received"
pages:
  - name: profile
    next: "#next"
  - name: questions
submit: "#submit-application"
timeouts:
  settle_ms: 1500
  confirm_ms: 8000
`

func TestLoadProfile(t *testing.T) {
	p, err := Load([]byte(sampleProfile))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if p.Name != "acme-careers" {
		t.Errorf("name = %q", p.Name)
	}
	if len(p.Dependencies) != 2 || p.Dependencies[0].Trigger != "visa_status" {
		t.Errorf("dependencies = %+v", p.Dependencies)
	}
	if p.Submit != "#submit-application" {
		t.Errorf("submit = %q", p.Submit)
	}
	if got := p.Timeouts.Settle(0); got != 1500*time.Millisecond {
		t.Errorf("settle timeout = %v", got)
	}
	if got := p.Timeouts.Resolve(3 * time.Second); got != 3*time.Second {
		t.Errorf("resolve timeout should fall back to default, got %v", got)
	}
}

func TestValidateRejectsBrokenProfiles(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"no trigger", "dependencies:\n  - requires: [x]\n"},
		{"no effect", "dependencies:\n  - trigger: a\n"},
		{"bad glob", "confirmation:\n  url_patterns: [\"[\"]\n"},
	}
	for _, tc := range cases {
		if _, err := Load([]byte(tc.yaml)); err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}
}

func TestDependencyActivation(t *testing.T) {
	pinned := Dependency{Trigger: "visa_status", When: "visa", Requires: []string{"visa_type"}}
	if pinned.Active("citizen") || pinned.Active("") || pinned.Active("  ") {
		t.Error("pinned rule should only activate on its value")
	}
	if !pinned.Active("visa") {
		t.Error("pinned rule should activate on the declared value")
	}

	anyValue := Dependency{Trigger: "country", Reoptions: []string{"city"}}
	if !anyValue.Active("de") || anyValue.Active("") {
		t.Error("open rule activates on any non-empty value")
	}
	if !anyValue.Reoption("city") || anyValue.Reoption("region") {
		t.Error("reoption membership mismatch")
	}
}

func TestDependentsOf(t *testing.T) {
	p, err := Load([]byte(sampleProfile))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := p.DependentsOf("country"); len(got) != 1 || !got[0].Reoption("city") {
		t.Errorf("dependents of country = %+v", got)
	}
	if got := p.DependentsOf("email"); got != nil {
		t.Errorf("unrelated field should have no dependents, got %+v", got)
	}
}

func TestConfirmationMatchURL(t *testing.T) {
	p, err := Load([]byte(sampleProfile))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !p.Confirmation.MatchURL("https://acme.example/careers/thanks?ref=1") {
		t.Error("thanks URL should match")
	}
	if p.Confirmation.MatchURL("https://acme.example/careers/apply") {
		t.Error("apply URL should not match")
	}
}

func TestConfirmationMatchDocument(t *testing.T) {
	parse := func(markup string) *dom.Document {
		doc, err := dom.Parse(markup)
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		return doc
	}

	cases := []struct {
		name   string
		marker string
		text   string
		markup string
		want   bool
	}{
		{"class marker", ".application-confirmed", "", `<html><body><div class="banner application-confirmed">Done</div></body></html>`, true},
		{"hidden marker does not count", ".application-confirmed", "", `<html><body><div class="application-confirmed" hidden>Done</div></body></html>`, false},
		{"id marker", "#confirmation", "", `<html><body><div id="confirmation"></div></body></html>`, true},
		{"attr marker", "[data-confirmed]", "", `<html><body><section data-confirmed="1"></section></body></html>`, true},
		{"bare token", "application-confirmed", "", `<html><body><p class="application-confirmed"></p></body></html>`, true},
		{"text fragment", "", "application received", `<html><body><p>Your application received a reference number.</p></body></html>`, true},
		{"nothing", ".application-confirmed", "thanks", `<html><body><p>Still editing.</p></body></html>`, false},
	}
	for _, tc := range cases {
		c := Confirmation{Marker: tc.marker, Text: tc.text}
		if err := c.compile(); err != nil {
			t.Fatalf("%s: compile: %v", tc.name, err)
		}
		if got := c.MatchDocument(parse(tc.markup)); got != tc.want {
			t.Errorf("%s: match = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestDefaultProfileMatchesFixtureConfirmation(t *testing.T) {
	p := Default()
	if p.Confirmation.Empty() {
		t.Fatal("default profile needs a confirmation signature")
	}
	if !p.Confirmation.MatchURL("http://127.0.0.1:9090/pages/confirm.html") {
		t.Error("default patterns should match the fixture confirmation URL")
	}
	doc, err := dom.Parse(`<html><body><div class="application-confirmed">Thank you</div></body></html>`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !p.Confirmation.Satisfied("http://127.0.0.1:9090/pages/apply", doc) {
		t.Error("marker alone should satisfy the default signature")
	}
}

func TestPageAtGeneratesBeyondDeclared(t *testing.T) {
	p, err := Load([]byte(sampleProfile))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := p.PageAt(0); got.Name != "profile" || got.Next != "#next" {
		t.Errorf("page 0 = %+v", got)
	}
	if got := p.PageAt(5); !strings.HasPrefix(got.Name, "page-") || got.Next != "" {
		t.Errorf("generated page = %+v", got)
	}
}
