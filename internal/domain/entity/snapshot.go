package entity

import "time"

// FormSnapshot is an immutable inventory of the fillable fields observed in
// one document read. Revision increases monotonically per session page.
// Fingerprint hashes the structural markup the snapshot was built from, so
// two reads of an unchanged document carry the same fingerprint.
type FormSnapshot struct {
	Revision    uint64            `json:"revision"`
	Settled     bool              `json:"settled"`
	CapturedAt  time.Time         `json:"captured_at"`
	Location    string            `json:"location,omitempty"`
	Fingerprint uint64            `json:"fingerprint"`
	Fields      []FieldDescriptor `json:"fields"`
	Skipped     []SkippedElement  `json:"skipped,omitempty"`
}

// SkippedElement records an interactive element the classifier could not
// place into any field kind. Skipped elements are surfaced, never guessed.
type SkippedElement struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// Field returns the descriptor with the given id, or nil.
func (s *FormSnapshot) Field(id string) *FieldDescriptor {
	for i := range s.Fields {
		if s.Fields[i].ID == id {
			return &s.Fields[i]
		}
	}
	return nil
}

// FieldIDs returns all field ids in document order.
func (s *FormSnapshot) FieldIDs() []string {
	ids := make([]string, 0, len(s.Fields))
	for i := range s.Fields {
		ids = append(ids, s.Fields[i].ID)
	}
	return ids
}

// VisibleRequired returns the ids of fields that are both visible and
// required, the set a submission gate has to check.
func (s *FormSnapshot) VisibleRequired() []string {
	var ids []string
	for i := range s.Fields {
		if s.Fields[i].Visible && s.Fields[i].Required {
			ids = append(ids, s.Fields[i].ID)
		}
	}
	return ids
}

// GroupOrdinals returns the compacted ordinals present for a group key, in
// ascending order.
func (s *FormSnapshot) GroupOrdinals(key string) []int {
	seen := map[int]bool{}
	var ordinals []int
	for i := range s.Fields {
		g := s.Fields[i].Group
		if g == nil || g.Key != key || seen[g.Ordinal] {
			continue
		}
		seen[g.Ordinal] = true
		ordinals = append(ordinals, g.Ordinal)
	}
	for i := 1; i < len(ordinals); i++ {
		for j := i; j > 0 && ordinals[j] < ordinals[j-1]; j-- {
			ordinals[j], ordinals[j-1] = ordinals[j-1], ordinals[j]
		}
	}
	return ordinals
}

// SnapshotDiff names what changed between two snapshots of the same page.
// Field identity is matched by id; everything is reported in the new
// snapshot's document order.
type SnapshotDiff struct {
	Appeared        []string `json:"appeared,omitempty"`
	Disappeared     []string `json:"disappeared,omitempty"`
	ChangedRequired []string `json:"changed_required,omitempty"`
	ChangedOptions  []string `json:"changed_options,omitempty"`
}

// Empty reports whether the diff carries no changes at all.
func (d SnapshotDiff) Empty() bool {
	return len(d.Appeared) == 0 && len(d.Disappeared) == 0 &&
		len(d.ChangedRequired) == 0 && len(d.ChangedOptions) == 0
}

// Structural reports whether fields appeared or disappeared, the class of
// change that invalidates previously resolved option sets.
func (d SnapshotDiff) Structural() bool {
	return len(d.Appeared) > 0 || len(d.Disappeared) > 0
}
