// Package siteprofile carries the per-site configuration the engine
// consumes: declared field dependencies, the confirmation signature that
// defines submission success, optional page flow for wizards and timeout
// overrides. Profiles are plain YAML so a new target site needs no code.
package siteprofile

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Profile is the configuration for one target site.
type Profile struct {
	Name         string       `yaml:"name"`
	Dependencies []Dependency `yaml:"dependencies,omitempty"`
	Confirmation Confirmation `yaml:"confirmation"`
	Pages        []Page       `yaml:"pages,omitempty"`
	Submit       string       `yaml:"submit,omitempty"`
	Timeouts     Timeouts     `yaml:"timeouts,omitempty"`
}

// Page names one step of a multi-page flow. Next is the locator of the
// control that advances to the following page; the final page leaves it
// empty and is submitted instead.
type Page struct {
	Name string `yaml:"name"`
	Next string `yaml:"next,omitempty"`
}

// Dependency declares that a trigger field's value drives other fields.
// When is the activating value; empty means any non-empty value activates.
// Reveals lists fields expected to appear, Requires lists fields that
// become mandatory while active, Reoptions lists choice fields whose
// option sets must be re-resolved after the trigger changes.
type Dependency struct {
	Trigger   string   `yaml:"trigger"`
	When      string   `yaml:"when,omitempty"`
	Reveals   []string `yaml:"reveals,omitempty"`
	Requires  []string `yaml:"requires,omitempty"`
	Reoptions []string `yaml:"reoptions,omitempty"`
}

// Active reports whether the given trigger value activates the rule.
func (d Dependency) Active(value string) bool {
	value = strings.TrimSpace(value)
	if value == "" {
		return false
	}
	return d.When == "" || d.When == value
}

// Reoption reports whether the named field's options depend on this rule's
// trigger.
func (d Dependency) Reoption(fieldID string) bool {
	for _, id := range d.Reoptions {
		if id == fieldID {
			return true
		}
	}
	return false
}

// Timeouts overrides the engine's default bounds, in milliseconds. Zero
// keeps the default.
type Timeouts struct {
	SettleMS  int `yaml:"settle_ms,omitempty"`
	ResolveMS int `yaml:"resolve_ms,omitempty"`
	ConfirmMS int `yaml:"confirm_ms,omitempty"`
}

// Settle returns the settle bound, falling back to def.
func (t Timeouts) Settle(def time.Duration) time.Duration {
	return orDefault(t.SettleMS, def)
}

// Resolve returns the option-resolution bound, falling back to def.
func (t Timeouts) Resolve(def time.Duration) time.Duration {
	return orDefault(t.ResolveMS, def)
}

// Confirm returns the post-submit confirmation bound, falling back to def.
func (t Timeouts) Confirm(def time.Duration) time.Duration {
	return orDefault(t.ConfirmMS, def)
}

func orDefault(ms int, def time.Duration) time.Duration {
	if ms <= 0 {
		return def
	}
	return time.Duration(ms) * time.Millisecond
}

// Default returns a profile that works against the bundled fixture corpus
// and most plain application forms: success is a thank-you/confirmation
// URL or a confirmation-marker element.
func Default() *Profile {
	p := &Profile{
		Name: "default",
		Confirmation: Confirmation{
			URLPatterns: []string{"*confirm*", "*thank*", "*success*"},
			Marker:      ".application-confirmed",
		},
	}
	if err := p.Validate(); err != nil {
		panic(fmt.Sprintf("siteprofile: default profile invalid: %v", err))
	}
	return p
}

// Load parses a profile from YAML.
func Load(data []byte) (*Profile, error) {
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse site profile: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// LoadFile reads and parses a profile file.
func LoadFile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read site profile: %w", err)
	}
	p, err := Load(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// Validate checks rule shape and compiles the confirmation URL patterns.
func (p *Profile) Validate() error {
	if p.Name == "" {
		p.Name = "unnamed"
	}
	for i, dep := range p.Dependencies {
		if dep.Trigger == "" {
			return fmt.Errorf("site profile %s: dependency %d has no trigger", p.Name, i)
		}
		if len(dep.Reveals) == 0 && len(dep.Requires) == 0 && len(dep.Reoptions) == 0 {
			return fmt.Errorf("site profile %s: dependency on %q declares no effect", p.Name, dep.Trigger)
		}
	}
	return p.Confirmation.compile()
}

// DependentsOf returns the rules triggered by the given field.
func (p *Profile) DependentsOf(fieldID string) []Dependency {
	var rules []Dependency
	for _, dep := range p.Dependencies {
		if dep.Trigger == fieldID {
			rules = append(rules, dep)
		}
	}
	return rules
}

// PageAt returns the declared page at index i, or a generated one when the
// profile declares fewer pages than the flow visits.
func (p *Profile) PageAt(i int) Page {
	if i < len(p.Pages) {
		return p.Pages[i]
	}
	return Page{Name: fmt.Sprintf("page-%d", i+1)}
}
