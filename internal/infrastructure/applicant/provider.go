// Package applicant implements the ValueProvider port from a YAML
// applicant profile. Matching is mechanical: exact field identity first,
// the declared autocomplete token second, a per-kind default last.
// Natural-language label interpretation is out of scope; a field the
// profile does not name stays unfilled.
package applicant

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"formscout/internal/application/port/output"
	"formscout/internal/domain/entity"
)

var _ output.ValueProvider = (*Provider)(nil)

// Profile is the applicant's answer sheet.
//
// Values keys are exact field ids or declared names, including repeat
// identities like "phones[1][number]"; a bare group member name answers
// every row of that group. Autocomplete keys are HTML autocomplete tokens
// ("given-name", "email"). Kinds keys are field kinds ("checkbox",
// "file") supplying a default for any field of that kind the other maps
// miss.
type Profile struct {
	Values       map[string]string `yaml:"values,omitempty"`
	Autocomplete map[string]string `yaml:"autocomplete,omitempty"`
	Kinds        map[string]string `yaml:"kinds,omitempty"`
}

// Load parses a profile from YAML.
func Load(data []byte) (Profile, error) {
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Profile{}, fmt.Errorf("parse applicant profile: %w", err)
	}
	return p, nil
}

// LoadFile reads and parses a profile file.
func LoadFile(path string) (Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("read applicant profile: %w", err)
	}
	p, err := Load(data)
	if err != nil {
		return Profile{}, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// Provider answers value lookups from one applicant profile.
type Provider struct {
	profile Profile
	log     output.LoggerPort
}

// New builds a provider over the given profile.
func New(profile Profile, log output.LoggerPort) *Provider {
	return &Provider{profile: profile, log: log}
}

// ValueFor resolves the value for one field. The bool is false when the
// profile has no answer; that is a skip, not an error.
func (p *Provider) ValueFor(_ context.Context, f *entity.FieldDescriptor) (string, bool, error) {
	raw, ok := p.lookup(f)
	if !ok {
		p.log.Debug("no answer for field", "field", f.ID, "kind", string(f.Kind))
		return "", false, nil
	}
	return p.translate(f, raw), true, nil
}

// lookup applies the precedence order: field id, declared name, group
// member, autocomplete token, kind default.
func (p *Provider) lookup(f *entity.FieldDescriptor) (string, bool) {
	if v, ok := p.profile.Values[f.ID]; ok {
		return v, true
	}
	if f.Name != "" {
		if v, ok := p.profile.Values[f.Name]; ok {
			return v, true
		}
	}
	if f.Group != nil && f.Group.Member != "" {
		if v, ok := p.profile.Values[f.Group.Member]; ok {
			return v, true
		}
	}
	for _, token := range strings.Fields(f.Autocomplete) {
		if v, ok := p.profile.Autocomplete[token]; ok {
			return v, true
		}
	}
	if v, ok := p.profile.Kinds[string(f.Kind)]; ok {
		return v, true
	}
	return "", false
}

// translate maps a profile answer through a choice field's resolved
// options, so a profile may speak in labels ("Germany") while the engine
// dispatches values ("de"). Non-choice fields and unresolved sets pass
// the answer through untouched.
func (p *Provider) translate(f *entity.FieldDescriptor, raw string) string {
	if !f.Kind.IsChoice() || f.Options == nil || f.Options.State != entity.OptionsResolved {
		return raw
	}
	if opt, ok := f.Options.Find(raw); ok {
		return opt.Value
	}
	p.log.Warn("answer not among resolved options", "field", f.ID, "answer", raw)
	return raw
}
