package entity

// FieldKind identifies what sort of control a discovered field is.
type FieldKind string

const (
	KindText         FieldKind = "text"
	KindEmail        FieldKind = "email"
	KindTel          FieldKind = "tel"
	KindURL          FieldKind = "url"
	KindDate         FieldKind = "date"
	KindMonth        FieldKind = "month"
	KindNumber       FieldKind = "number"
	KindFile         FieldKind = "file"
	KindTextarea     FieldKind = "textarea"
	KindCheckbox     FieldKind = "checkbox"
	KindRadio        FieldKind = "radio"
	KindSelectSingle FieldKind = "select-single"
	KindSelectMulti  FieldKind = "select-multi"
	KindChoiceCustom FieldKind = "choice-custom"
)

// IsChoice reports whether the kind carries an enumerable option set.
func (k FieldKind) IsChoice() bool {
	switch k {
	case KindSelectSingle, KindSelectMulti, KindChoiceCustom:
		return true
	}
	return false
}

// IsTextual reports whether the kind is filled by typing a raw value.
func (k FieldKind) IsTextual() bool {
	switch k {
	case KindText, KindEmail, KindTel, KindURL, KindDate, KindMonth, KindNumber, KindTextarea:
		return true
	}
	return false
}

// Constraints carries declared validation limits, when present.
type Constraints struct {
	Pattern   string   `json:"pattern,omitempty"`
	Min       string   `json:"min,omitempty"`
	Max       string   `json:"max,omitempty"`
	MaxLength int      `json:"max_length,omitempty"`
	Accept    []string `json:"accept,omitempty"`
}

// GroupRef places a field inside a repeat group. Ordinal is 1-based and
// recomputed contiguously on every snapshot, so removing a middle entry
// renumbers the remaining ones. Member is the field's identity within the
// group template (index stripped).
type GroupRef struct {
	Key     string `json:"key"`
	Ordinal int    `json:"ordinal"`
	Member  string `json:"member"`
}

// FieldDescriptor is one fillable control at one instant.
//
// ID prefers the declared name/id attribute and falls back to a structural
// path; it is unique within a snapshot. Target is the locator a Driver
// understands. CarrierTarget, when set, is the hidden value-carrier input
// backing a custom choice widget.
type FieldDescriptor struct {
	ID           string       `json:"id"`
	Kind         FieldKind    `json:"kind"`
	Name         string       `json:"name,omitempty"`
	Label        string       `json:"label,omitempty"`
	Autocomplete string       `json:"autocomplete,omitempty"`
	Required     bool         `json:"required"`
	Visible      bool         `json:"visible"`
	Value        string       `json:"value,omitempty"`
	Checked      bool         `json:"checked,omitempty"`
	Group        *GroupRef    `json:"group,omitempty"`
	Constraints  *Constraints `json:"constraints,omitempty"`
	Target       string       `json:"target"`
	CarrierTarget string      `json:"carrier_target,omitempty"`
	Options      *OptionSet   `json:"options,omitempty"`
}

// Fillable reports whether the session should attempt to fill the field:
// it must be visible, and a choice field whose resolution failed is still
// fillable only through a hidden carrier.
func (f *FieldDescriptor) Fillable() bool {
	if !f.Visible {
		return false
	}
	if f.Kind.IsChoice() && f.Options != nil && f.Options.State == OptionsFailed {
		return f.CarrierTarget != ""
	}
	return true
}

// Filled reports whether the field currently carries a value.
func (f *FieldDescriptor) Filled() bool {
	switch f.Kind {
	case KindCheckbox, KindRadio:
		return f.Checked
	default:
		return f.Value != ""
	}
}
