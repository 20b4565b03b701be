package entity

import "strings"

// ResolutionState tracks how far option resolution has progressed for a
// choice field.
type ResolutionState string

const (
	OptionsUnresolved ResolutionState = "unresolved"
	OptionsLoading    ResolutionState = "loading"
	OptionsResolved   ResolutionState = "resolved"
	OptionsFailed     ResolutionState = "failed"
)

// Option is one selectable entry of a choice field. Value is what gets
// submitted, Label is what the page shows; for custom widgets without a
// declared value they coincide.
type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// OptionSet is the resolved (or pending) option list of a choice field.
// Revision records which snapshot revision the set was resolved against;
// a set resolved against a stale revision must not be trusted.
type OptionSet struct {
	Options  []Option        `json:"options,omitempty"`
	State    ResolutionState `json:"state"`
	Revision uint64          `json:"revision,omitempty"`
	Strategy string          `json:"strategy,omitempty"`
}

// NewOptionSet returns an empty, unresolved set.
func NewOptionSet() *OptionSet {
	return &OptionSet{State: OptionsUnresolved}
}

// Values returns the option values in document order.
func (s *OptionSet) Values() []string {
	if s == nil {
		return nil
	}
	values := make([]string, 0, len(s.Options))
	for _, opt := range s.Options {
		values = append(values, opt.Value)
	}
	return values
}

// Has reports whether the set contains the given value. A value matches
// either the submitted value or, for widgets without declared values, the
// visible label.
func (s *OptionSet) Has(value string) bool {
	if s == nil {
		return false
	}
	for _, opt := range s.Options {
		if opt.Value == value || opt.Label == value {
			return true
		}
	}
	return false
}

// Find returns the option matching value by value first, then by label.
func (s *OptionSet) Find(value string) (Option, bool) {
	if s == nil {
		return Option{}, false
	}
	for _, opt := range s.Options {
		if opt.Value == value {
			return opt, true
		}
	}
	for _, opt := range s.Options {
		if opt.Label == value {
			return opt, true
		}
	}
	return Option{}, false
}

// Signature folds the option values into a comparable string, used by
// snapshot diffing to detect changed option sets.
func (s *OptionSet) Signature() string {
	if s == nil || s.State != OptionsResolved {
		return ""
	}
	return strings.Join(s.Values(), "\x1f")
}
