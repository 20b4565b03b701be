// Package report turns a form session into shareable artifacts: a
// machine-readable JSON document and a standalone HTML page, with an
// optional screenshot of the final document state saved alongside.
//
// Reports are built from session state after the fact; nothing here talks
// to a browser. Page-derived text (labels, reasons) passes through a strict
// sanitizer before it reaches the HTML template, so markup scraped from
// arbitrary career sites never renders as markup.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bytedance/sonic"

	"formscout/internal/domain/entity"
)

// Version is the report schema version.
const Version = "1.0.0"

// Outcome is the final disposition of a session.
type Outcome string

// Outcome values.
const (
	OutcomeConfirmed  Outcome = "confirmed"
	OutcomeAbandoned  Outcome = "abandoned"
	OutcomeIncomplete Outcome = "incomplete"
)

// Report is the audit trail of one application attempt.
type Report struct {
	Version    string       `json:"version"`
	SessionID  string       `json:"session_id"`
	Outcome    Outcome      `json:"outcome"`
	Reason     string       `json:"reason,omitempty"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt *time.Time   `json:"finished_at,omitempty"`
	DurationMS int64        `json:"duration_ms,omitempty"`
	Summary    Summary      `json:"summary"`
	Pages      []PageReport `json:"pages"`
	Screenshot string       `json:"screenshot,omitempty"` // path relative to the report dir
}

// Summary contains aggregated counts across all pages.
type Summary struct {
	Pages         int `json:"pages"`
	Fields        int `json:"fields"`
	Filled        int `json:"filled"`
	Fills         int `json:"fills"`
	Skipped       int `json:"skipped"`
	Rediscoveries int `json:"rediscoveries"`
}

// PageReport is the final state of one page of the flow. Fields reflect the
// last snapshot taken on the page.
type PageReport struct {
	Name          string          `json:"name"`
	Location      string          `json:"location,omitempty"`
	Revisions     int             `json:"revisions"`
	Rediscoveries int             `json:"rediscoveries"`
	Fields        []FieldReport   `json:"fields"`
	Fills         []FillReport    `json:"fills,omitempty"`
	Skipped       []SkippedReport `json:"skipped,omitempty"`
}

// FieldReport is one field as last observed.
type FieldReport struct {
	ID         string `json:"id"`
	Kind       string `json:"kind"`
	Label      string `json:"label,omitempty"`
	Required   bool   `json:"required"`
	Filled     bool   `json:"filled"`
	Value      string `json:"value,omitempty"`
	Options    int    `json:"options,omitempty"`
	Resolution string `json:"resolution,omitempty"`
}

// FillReport is one value dispatched to one field.
type FillReport struct {
	FieldID string    `json:"field_id"`
	Value   string    `json:"value"`
	At      time.Time `json:"at"`
}

// SkippedReport is one interactive element the engine refused to classify.
type SkippedReport struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// Build summarizes a session into a report. The session may still be in
// flight; duration and finish time are only set once the state carries them.
func Build(state *entity.SessionState) *Report {
	r := &Report{
		Version:   Version,
		SessionID: state.ID,
		Outcome:   outcomeOf(state),
		Reason:    state.Reason,
		StartedAt: state.StartedAt,
	}
	if !state.FinishedAt.IsZero() {
		finished := state.FinishedAt
		r.FinishedAt = &finished
		r.DurationMS = finished.Sub(state.StartedAt).Milliseconds()
	}
	r.Pages = make([]PageReport, 0, len(state.Pages))
	for _, page := range state.Pages {
		pr := buildPage(page)
		r.Summary.Pages++
		r.Summary.Fields += len(pr.Fields)
		r.Summary.Fills += len(pr.Fills)
		r.Summary.Skipped += len(pr.Skipped)
		r.Summary.Rediscoveries += pr.Rediscoveries
		for _, f := range pr.Fields {
			if f.Filled {
				r.Summary.Filled++
			}
		}
		r.Pages = append(r.Pages, pr)
	}
	return r
}

// Write persists the report into dir as report.json and report.html,
// creating the directory when missing.
func (r *Report) Write(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	if err := r.WriteJSON(filepath.Join(dir, "report.json")); err != nil {
		return err
	}
	return r.WriteHTML(filepath.Join(dir, "report.html"), HTMLConfig{})
}

// WriteJSON writes the report as indented JSON.
func (r *Report) WriteJSON(path string) error {
	data, err := sonic.ConfigDefault.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	return atomicWrite(path, data)
}

func outcomeOf(state *entity.SessionState) Outcome {
	switch state.Phase {
	case entity.PhaseConfirmed:
		return OutcomeConfirmed
	case entity.PhaseAbandoned:
		return OutcomeAbandoned
	default:
		return OutcomeIncomplete
	}
}

func buildPage(page *entity.PageRecord) PageReport {
	pr := PageReport{
		Name:          page.Page,
		Location:      page.Location,
		Revisions:     len(page.Snapshots),
		Rediscoveries: page.Rediscoveries,
	}
	for _, fill := range page.Fills {
		pr.Fills = append(pr.Fills, FillReport{FieldID: fill.FieldID, Value: fill.Value, At: fill.At})
	}
	snap := page.Latest()
	if snap == nil {
		return pr
	}
	pr.Fields = make([]FieldReport, 0, len(snap.Fields))
	for i := range snap.Fields {
		pr.Fields = append(pr.Fields, buildField(&snap.Fields[i]))
	}
	for _, sk := range snap.Skipped {
		pr.Skipped = append(pr.Skipped, SkippedReport{Path: sk.Path, Reason: sk.Reason})
	}
	return pr
}

func buildField(f *entity.FieldDescriptor) FieldReport {
	fr := FieldReport{
		ID:       f.ID,
		Kind:     string(f.Kind),
		Label:    f.Label,
		Required: f.Required,
		Filled:   f.Filled(),
		Value:    f.Value,
	}
	if f.Kind.IsChoice() && f.Options != nil {
		fr.Options = len(f.Options.Options)
		fr.Resolution = string(f.Options.State)
	}
	return fr
}

// atomicWrite writes via a temp file and rename, so a consumer polling the
// path never sees a half-written report.
func atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s: %w", filepath.Base(path), err)
	}
	return nil
}
