package discovery

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/net/html"

	"formscout/internal/dom"
	"formscout/internal/domain/entity"
)

func TestParseGroupRef(t *testing.T) {
	cases := []struct {
		name string
		want entity.GroupRef
		ok   bool
	}{
		{"employer[2][title]", entity.GroupRef{Key: "employer", Ordinal: 2, Member: "title"}, true},
		{"phones[14][number]", entity.GroupRef{Key: "phones", Ordinal: 14, Member: "number"}, true},
		{"phones[1]", entity.GroupRef{Key: "phones", Ordinal: 1}, true},
		{"employer-2-title", entity.GroupRef{Key: "employer", Ordinal: 2, Member: "title"}, true},
		{"employer_2_title", entity.GroupRef{Key: "employer", Ordinal: 2, Member: "title"}, true},
		{"address.1.street", entity.GroupRef{Key: "address", Ordinal: 1, Member: "street"}, true},
		{"full_name", entity.GroupRef{}, false},
		{"q2_answer", entity.GroupRef{}, false},
		{"phones[x][type]", entity.GroupRef{}, false},
		{"[2][title]", entity.GroupRef{}, false},
		{"", entity.GroupRef{}, false},
	}
	for _, tc := range cases {
		got, ok := parseGroupRef(tc.name)
		if ok != tc.ok {
			t.Errorf("parseGroupRef(%q) ok = %v, want %v", tc.name, ok, tc.ok)
			continue
		}
		if diff := cmp.Diff(tc.want, got); diff != "" {
			t.Errorf("parseGroupRef(%q) mismatch (-want +got):\n%s", tc.name, diff)
		}
	}
}

func TestIndexFreeName(t *testing.T) {
	if got := indexFreeName("employer[2][title]"); got != "employer[]title" {
		t.Errorf("indexed name = %q", got)
	}
	if got := indexFreeName("employer[9][title]"); got != "employer[]title" {
		t.Errorf("indexed name = %q, want ordinal stripped", got)
	}
	if got := indexFreeName("full_name"); got != "full_name" {
		t.Errorf("plain name = %q", got)
	}
}

func TestMemberName(t *testing.T) {
	markup := `<html><body>
	  <input id="named" name="street">
	  <input id="phone-number-2">
	  <textarea></textarea>
	</body></html>`
	doc, err := dom.Parse(markup)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := memberName(doc.ByID("named")); got != "street" {
		t.Errorf("name attr member = %q", got)
	}
	if got := memberName(doc.ByID("phone-number-2")); got != "phone-number" {
		t.Errorf("id-derived member = %q, want ordinal suffix stripped", got)
	}

	var anon *html.Node
	dom.Walk(doc.Root(), func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.Data == "textarea" {
			anon = n
			return false
		}
		return true
	})
	if anon == nil {
		t.Fatal("textarea not found")
	}
	if got := memberName(anon); got != "" {
		t.Errorf("anonymous member = %q", got)
	}
}

func TestCompactOrdinalsRenumbersPerKey(t *testing.T) {
	fields := []entity.FieldDescriptor{
		{ID: "a", Group: &entity.GroupRef{Key: "phones", Ordinal: 5, Member: "type"}},
		{ID: "b", Group: &entity.GroupRef{Key: "phones", Ordinal: 2, Member: "type"}},
		{ID: "c", Group: &entity.GroupRef{Key: "phones", Ordinal: 9, Member: "type"}},
		{ID: "d", Group: &entity.GroupRef{Key: "employer", Ordinal: 3, Member: "title"}},
		{ID: "e", Group: nil},
	}

	compactOrdinals(fields)

	want := []int{2, 1, 3}
	for i, ord := range want {
		if fields[i].Group.Ordinal != ord {
			t.Errorf("%s ordinal = %d, want %d", fields[i].ID, fields[i].Group.Ordinal, ord)
		}
	}
	if fields[3].Group.Ordinal != 1 {
		t.Errorf("other key ordinal = %d, want independent renumbering", fields[3].Group.Ordinal)
	}
	if fields[4].Group != nil {
		t.Error("ungrouped field grew a group")
	}
}
