package entity

import (
	"errors"
	"fmt"
	"testing"
)

func TestFieldKindClasses(t *testing.T) {
	choice := []FieldKind{KindSelectSingle, KindSelectMulti, KindChoiceCustom}
	for _, k := range choice {
		if !k.IsChoice() {
			t.Errorf("%s should be a choice kind", k)
		}
		if k.IsTextual() {
			t.Errorf("%s should not be textual", k)
		}
	}
	if KindCheckbox.IsChoice() || KindRadio.IsChoice() {
		t.Error("toggle kinds are not choice kinds")
	}
	if !KindEmail.IsTextual() || !KindTextarea.IsTextual() {
		t.Error("email and textarea are textual kinds")
	}
}

func TestOptionSetFind(t *testing.T) {
	set := &OptionSet{
		State: OptionsResolved,
		Options: []Option{
			{Value: "remote", Label: "Remote"},
			{Value: "hybrid", Label: "Hybrid (2 days)"},
		},
	}

	if opt, ok := set.Find("remote"); !ok || opt.Label != "Remote" {
		t.Errorf("find by value = %+v, %v", opt, ok)
	}
	if opt, ok := set.Find("Hybrid (2 days)"); !ok || opt.Value != "hybrid" {
		t.Errorf("find by label = %+v, %v", opt, ok)
	}
	if _, ok := set.Find("onsite"); ok {
		t.Error("find should miss unknown values")
	}
	if !set.Has("remote") || set.Has("onsite") {
		t.Error("Has disagrees with Find")
	}
}

func TestOptionSetSignatureOnlyWhenResolved(t *testing.T) {
	set := &OptionSet{Options: []Option{{Value: "a"}, {Value: "b"}}, State: OptionsLoading}
	if got := set.Signature(); got != "" {
		t.Errorf("unresolved signature = %q, want empty", got)
	}
	set.State = OptionsResolved
	if got, want := set.Signature(), "a\x1fb"; got != want {
		t.Errorf("signature = %q, want %q", got, want)
	}
}

func TestSnapshotGroupOrdinals(t *testing.T) {
	snap := &FormSnapshot{Fields: []FieldDescriptor{
		{ID: "employer[2][name]", Group: &GroupRef{Key: "employer", Ordinal: 2, Member: "name"}},
		{ID: "employer[1][name]", Group: &GroupRef{Key: "employer", Ordinal: 1, Member: "name"}},
		{ID: "employer[1][title]", Group: &GroupRef{Key: "employer", Ordinal: 1, Member: "title"}},
		{ID: "email"},
	}}

	got := snap.GroupOrdinals("employer")
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("ordinals = %v, want [1 2]", got)
	}
	if snap.GroupOrdinals("education") != nil {
		t.Error("unknown group should have no ordinals")
	}
}

func TestSnapshotVisibleRequired(t *testing.T) {
	snap := &FormSnapshot{Fields: []FieldDescriptor{
		{ID: "email", Required: true, Visible: true},
		{ID: "phone", Required: true, Visible: false},
		{ID: "nickname", Required: false, Visible: true},
	}}

	got := snap.VisibleRequired()
	if len(got) != 1 || got[0] != "email" {
		t.Errorf("visible required = %v, want [email]", got)
	}
}

func TestDiffClasses(t *testing.T) {
	if !(SnapshotDiff{}).Empty() {
		t.Error("zero diff should be empty")
	}
	d := SnapshotDiff{ChangedRequired: []string{"phone"}}
	if d.Empty() || d.Structural() {
		t.Errorf("required-only diff: empty=%v structural=%v", d.Empty(), d.Structural())
	}
	d = SnapshotDiff{Appeared: []string{"visa_type"}}
	if !d.Structural() {
		t.Error("appeared fields are a structural change")
	}
}

func TestFillableWithFailedOptions(t *testing.T) {
	field := &FieldDescriptor{
		ID:      "country",
		Kind:    KindChoiceCustom,
		Visible: true,
		Options: &OptionSet{State: OptionsFailed},
	}
	if field.Fillable() {
		t.Error("failed choice without carrier should not be fillable")
	}
	field.CarrierTarget = `[name="country"]`
	if !field.Fillable() {
		t.Error("hidden carrier keeps a failed choice fillable")
	}
	field.Visible = false
	if field.Fillable() {
		t.Error("hidden fields are never fillable")
	}
}

func TestEngineErrorCodes(t *testing.T) {
	inner := NewRequiredFieldUnfillable("email", "no value available")
	wrapped := fmt.Errorf("submit gate: %w", inner)

	if code, ok := CodeOf(wrapped); !ok || code != ErrRequiredFieldUnfillable {
		t.Errorf("CodeOf = %q, %v", code, ok)
	}
	if !IsCode(wrapped, ErrRequiredFieldUnfillable) {
		t.Error("IsCode should match through wrapping")
	}
	if IsCode(wrapped, ErrStabilityTimeout) {
		t.Error("IsCode matched the wrong code")
	}
	if IsCode(errors.New("plain"), ErrStabilityTimeout) {
		t.Error("plain errors carry no code")
	}
}

func TestEngineErrorSnapshotAttachment(t *testing.T) {
	last := &FormSnapshot{Revision: 4}
	err := NewStabilityTimeout("quiet window never reached", nil).WithSnapshot(last)
	if err.Snapshot == nil || err.Snapshot.Revision != 4 {
		t.Errorf("snapshot not attached: %+v", err.Snapshot)
	}

	cause := errors.New("driver: connection reset")
	err = NewOptionResolutionFailed("country", "portal never appeared", cause)
	if !errors.Is(err, cause) {
		t.Error("cause should unwrap")
	}
}
