package applicant

import (
	"context"
	"testing"

	"formscout/internal/domain/entity"
	"formscout/internal/infrastructure/logger"
)

func newProvider(p Profile) *Provider {
	return New(p, logger.NewNop())
}

func TestLookupPrecedence(t *testing.T) {
	p := newProvider(Profile{
		Values:       map[string]string{"email-field": "by-id@example.com", "email": "by-name@example.com"},
		Autocomplete: map[string]string{"email": "by-token@example.com"},
		Kinds:        map[string]string{"email": "by-kind@example.com"},
	})
	ctx := context.Background()

	cases := []struct {
		name  string
		field entity.FieldDescriptor
		want  string
	}{
		{"id wins", entity.FieldDescriptor{ID: "email-field", Name: "email", Autocomplete: "email", Kind: entity.KindEmail}, "by-id@example.com"},
		{"name next", entity.FieldDescriptor{ID: "other", Name: "email", Autocomplete: "email", Kind: entity.KindEmail}, "by-name@example.com"},
		{"token next", entity.FieldDescriptor{ID: "other", Name: "contact", Autocomplete: "email", Kind: entity.KindEmail}, "by-token@example.com"},
		{"kind last", entity.FieldDescriptor{ID: "other", Name: "contact", Kind: entity.KindEmail}, "by-kind@example.com"},
	}
	for _, tc := range cases {
		got, ok, err := p.ValueFor(ctx, &tc.field)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if !ok || got != tc.want {
			t.Errorf("%s: got (%q, %v), want %q", tc.name, got, ok, tc.want)
		}
	}
}

func TestNoAnswerIsSkipNotError(t *testing.T) {
	p := newProvider(Profile{})
	got, ok, err := p.ValueFor(context.Background(), &entity.FieldDescriptor{ID: "unknown", Kind: entity.KindText})
	if err != nil {
		t.Fatalf("ValueFor: %v", err)
	}
	if ok || got != "" {
		t.Errorf("got (%q, %v), want skip", got, ok)
	}
}

func TestGroupMemberAnswersEveryRow(t *testing.T) {
	p := newProvider(Profile{Values: map[string]string{"number": "+1 555 0100"}})
	ctx := context.Background()
	for _, id := range []string{"phones[1][number]", "phones[2][number]"} {
		f := entity.FieldDescriptor{
			ID:    id,
			Name:  id,
			Kind:  entity.KindTel,
			Group: &entity.GroupRef{Key: "phones", Ordinal: 1, Member: "number"},
		}
		got, ok, _ := p.ValueFor(ctx, &f)
		if !ok || got != "+1 555 0100" {
			t.Errorf("%s: got (%q, %v)", id, got, ok)
		}
	}
}

func TestMultiTokenAutocomplete(t *testing.T) {
	p := newProvider(Profile{Autocomplete: map[string]string{"postal-code": "10117"}})
	f := entity.FieldDescriptor{ID: "zip", Autocomplete: "shipping postal-code", Kind: entity.KindText}
	got, ok, _ := p.ValueFor(context.Background(), &f)
	if !ok || got != "10117" {
		t.Errorf("got (%q, %v), want 10117", got, ok)
	}
}

func TestChoiceAnswerByLabelMapsToValue(t *testing.T) {
	p := newProvider(Profile{Values: map[string]string{"country": "Germany"}})
	f := entity.FieldDescriptor{
		ID:   "country",
		Kind: entity.KindSelectSingle,
		Options: &entity.OptionSet{
			State: entity.OptionsResolved,
			Options: []entity.Option{
				{Value: "us", Label: "United States"},
				{Value: "de", Label: "Germany"},
			},
		},
	}
	got, ok, _ := p.ValueFor(context.Background(), &f)
	if !ok || got != "de" {
		t.Errorf("got (%q, %v), want de", got, ok)
	}
}

func TestChoiceAnswerPassesThroughWhenUnresolved(t *testing.T) {
	p := newProvider(Profile{Values: map[string]string{"country": "Germany"}})
	f := entity.FieldDescriptor{
		ID:      "country",
		Kind:    entity.KindChoiceCustom,
		Options: entity.NewOptionSet(),
	}
	got, ok, _ := p.ValueFor(context.Background(), &f)
	if !ok || got != "Germany" {
		t.Errorf("got (%q, %v), want raw answer", got, ok)
	}
}

func TestLoadYAML(t *testing.T) {
	data := []byte(`
values:
  email: ada@example.com
  "phones[1][number]": "+44 20 7946 0958"
autocomplete:
  given-name: Ada
kinds:
  checkbox: "true"
`)
	p, err := Load(data)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p.Values["email"] != "ada@example.com" {
		t.Errorf("values = %v", p.Values)
	}
	if p.Values["phones[1][number]"] != "+44 20 7946 0958" {
		t.Errorf("indexed key lost: %v", p.Values)
	}
	if p.Autocomplete["given-name"] != "Ada" || p.Kinds["checkbox"] != "true" {
		t.Errorf("profile = %+v", p)
	}
	if _, err := Load([]byte("values: [not a map]")); err == nil {
		t.Error("malformed profile accepted")
	}
}
