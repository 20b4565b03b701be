package entity

import "time"

// SessionPhase is the lifecycle state of a form session. Transitions are
// owned by the session engine; re-discovery loops back into Discovering a
// bounded number of times, Confirmed and Abandoned are terminal.
type SessionPhase string

const (
	PhaseDiscovering          SessionPhase = "discovering"
	PhaseFilling              SessionPhase = "filling"
	PhaseSubmitting           SessionPhase = "submitting"
	PhaseAwaitingConfirmation SessionPhase = "awaiting_confirmation"
	PhaseConfirmed            SessionPhase = "confirmed"
	PhaseAbandoned            SessionPhase = "abandoned"
)

// Terminal reports whether the phase ends the session.
func (p SessionPhase) Terminal() bool {
	return p == PhaseConfirmed || p == PhaseAbandoned
}

// SessionStatus is the coarse outcome recorded alongside the phase.
type SessionStatus string

const (
	StatusInProgress SessionStatus = "in_progress"
	StatusSubmitted  SessionStatus = "submitted"
	StatusConfirmed  SessionStatus = "confirmed"
	StatusAbandoned  SessionStatus = "abandoned"
)

// FillRecord is one value dispatched to one field.
type FillRecord struct {
	FieldID string    `json:"field_id"`
	Value   string    `json:"value"`
	At      time.Time `json:"at"`
}

// PageRecord accumulates everything observed on one page of a multi-page
// flow: every snapshot taken, every fill dispatched and how often the page
// was re-discovered after a structural change.
type PageRecord struct {
	Page          string          `json:"page"`
	Location      string          `json:"location,omitempty"`
	Snapshots     []*FormSnapshot `json:"snapshots,omitempty"`
	Fills         []FillRecord    `json:"fills,omitempty"`
	Rediscoveries int             `json:"rediscoveries"`
}

// Latest returns the most recent snapshot of the page, or nil.
func (p *PageRecord) Latest() *FormSnapshot {
	if len(p.Snapshots) == 0 {
		return nil
	}
	return p.Snapshots[len(p.Snapshots)-1]
}

// SessionState is the externally visible state of one form session.
type SessionState struct {
	ID         string        `json:"id"`
	Phase      SessionPhase  `json:"phase"`
	Status     SessionStatus `json:"status"`
	Reason     string        `json:"reason,omitempty"`
	Pages      []*PageRecord `json:"pages"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at,omitempty"`
}

// CurrentPage returns the page being worked, or nil before the first
// discovery.
func (s *SessionState) CurrentPage() *PageRecord {
	if len(s.Pages) == 0 {
		return nil
	}
	return s.Pages[len(s.Pages)-1]
}

// OpenPage appends a fresh page record and returns it.
func (s *SessionState) OpenPage(name, location string) *PageRecord {
	page := &PageRecord{Page: name, Location: location}
	s.Pages = append(s.Pages, page)
	return page
}

// Snapshot returns the latest snapshot across all pages, or nil.
func (s *SessionState) Snapshot() *FormSnapshot {
	for i := len(s.Pages) - 1; i >= 0; i-- {
		if snap := s.Pages[i].Latest(); snap != nil {
			return snap
		}
	}
	return nil
}
