package report

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/microcosm-cc/bluemonday"
)

// HTMLConfig controls HTML rendering.
type HTMLConfig struct {
	Title string // page title, defaults to "Form session report"
}

// WriteHTML renders the report as a standalone HTML page. When the report
// carries a screenshot artifact, the image is read relative to the output
// directory and embedded as a data URI so the page stays self-contained.
func (r *Report) WriteHTML(path string, cfg HTMLConfig) error {
	tmpl, err := template.New("report").Parse(htmlTemplate)
	if err != nil {
		return fmt.Errorf("parse report template: %w", err)
	}
	data := r.buildHTMLData(cfg, filepath.Dir(path))
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	return atomicWrite(path, buf.Bytes())
}

// htmlData is the template view model.
type htmlData struct {
	Title        string
	Version      string
	SessionID    string
	Outcome      string
	OutcomeClass string
	Reason       template.HTML
	StartedAt    string
	Duration     string
	Summary      Summary
	Pages        []htmlPage
	Screenshot   template.URL
	GeneratedAt  string
}

type htmlPage struct {
	Name          string
	Location      string
	Revisions     int
	Rediscoveries int
	Fills         int
	Fields        []htmlField
	Skipped       []htmlSkipped
}

type htmlField struct {
	ID          string
	Kind        string
	Label       template.HTML
	Value       template.HTML
	Options     int
	Status      string
	StatusClass string
}

type htmlSkipped struct {
	Path   string
	Reason template.HTML
}

var outcomeClass = map[Outcome]string{
	OutcomeConfirmed:  "confirmed",
	OutcomeAbandoned:  "abandoned",
	OutcomeIncomplete: "incomplete",
}

func (r *Report) buildHTMLData(cfg HTMLConfig, dir string) htmlData {
	title := cfg.Title
	if title == "" {
		title = "Form session report"
	}
	data := htmlData{
		Title:        title,
		Version:      r.Version,
		SessionID:    r.SessionID,
		Outcome:      string(r.Outcome),
		OutcomeClass: outcomeClass[r.Outcome],
		Reason:       sanitize(r.Reason),
		StartedAt:    r.StartedAt.Format("2006-01-02 15:04:05"),
		Duration:     formatDuration(r.DurationMS),
		Summary:      r.Summary,
		GeneratedAt:  time.Now().Format("2006-01-02 15:04:05"),
	}
	for _, page := range r.Pages {
		data.Pages = append(data.Pages, buildHTMLPage(page))
	}
	if r.Screenshot != "" {
		data.Screenshot = loadAsBase64(filepath.Join(dir, r.Screenshot))
	}
	return data
}

func buildHTMLPage(page PageReport) htmlPage {
	hp := htmlPage{
		Name:          page.Name,
		Location:      page.Location,
		Revisions:     page.Revisions,
		Rediscoveries: page.Rediscoveries,
		Fills:         len(page.Fills),
	}
	for _, f := range page.Fields {
		status, class := fieldStatus(f)
		hp.Fields = append(hp.Fields, htmlField{
			ID:          f.ID,
			Kind:        f.Kind,
			Label:       sanitize(f.Label),
			Value:       sanitize(f.Value),
			Options:     f.Options,
			Status:      status,
			StatusClass: class,
		})
	}
	for _, sk := range page.Skipped {
		hp.Skipped = append(hp.Skipped, htmlSkipped{Path: sk.Path, Reason: sanitize(sk.Reason)})
	}
	return hp
}

func fieldStatus(f FieldReport) (string, string) {
	switch {
	case f.Filled:
		return "filled", "filled"
	case f.Required:
		return "required", "missing"
	default:
		return "empty", "empty"
	}
}

// formatDuration renders milliseconds for humans; zero means the session
// has not finished.
func formatDuration(ms int64) string {
	if ms <= 0 {
		return "-"
	}
	d := time.Duration(ms) * time.Millisecond
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	default:
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
}

// loadAsBase64 reads an image and returns it as a data URI, or "" when the
// file cannot be read. A missing artifact degrades to a report without the
// screenshot section rather than an error.
func loadAsBase64(path string) template.URL {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	mime := "image/png"
	if strings.HasSuffix(path, ".jpg") || strings.HasSuffix(path, ".jpeg") {
		mime = "image/jpeg"
	}
	return template.URL("data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data))
}

var (
	sanitizerOnce sync.Once
	sanitizer     *bluemonday.Policy
)

// sanitize strips markup from page-derived text. The result is already
// escaped, so it is typed template.HTML to avoid a second escaping pass.
func sanitize(raw string) template.HTML {
	sanitizerOnce.Do(func() {
		sanitizer = bluemonday.StrictPolicy()
	})
	return template.HTML(strings.TrimSpace(sanitizer.Sanitize(raw)))
}

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<style>
  :root {
    --confirmed: #1a7f37;
    --abandoned: #cf222e;
    --incomplete: #9a6700;
    --border: #d0d7de;
    --muted: #57606a;
  }
  * { box-sizing: border-box; }
  body {
    font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Helvetica, Arial, sans-serif;
    margin: 0;
    color: #1f2328;
    background: #f6f8fa;
  }
  .container { max-width: 960px; margin: 0 auto; padding: 24px; }
  header { display: flex; align-items: center; gap: 12px; }
  h1 { font-size: 22px; margin: 0; }
  h2 { font-size: 17px; margin: 0 0 4px; }
  h3 { font-size: 14px; margin: 16px 0 4px; }
  .badge {
    padding: 3px 10px;
    border-radius: 12px;
    font-size: 12px;
    font-weight: 600;
    color: #fff;
    text-transform: uppercase;
  }
  .badge.confirmed { background: var(--confirmed); }
  .badge.abandoned { background: var(--abandoned); }
  .badge.incomplete { background: var(--incomplete); }
  .meta { color: var(--muted); font-size: 13px; margin: 4px 0; }
  .reason {
    background: #fff1f0;
    border: 1px solid #ffd7d5;
    border-radius: 6px;
    padding: 10px 12px;
    font-size: 14px;
  }
  .summary { display: flex; flex-wrap: wrap; gap: 12px; margin: 16px 0; }
  .card {
    background: #fff;
    border: 1px solid var(--border);
    border-radius: 6px;
    padding: 10px 16px;
    text-align: center;
    min-width: 90px;
  }
  .card .num { display: block; font-size: 20px; font-weight: 600; }
  .card .lbl { color: var(--muted); font-size: 12px; }
  section.page {
    background: #fff;
    border: 1px solid var(--border);
    border-radius: 6px;
    padding: 16px;
    margin: 16px 0;
  }
  table { width: 100%; border-collapse: collapse; font-size: 13px; margin-top: 8px; }
  th, td { text-align: left; padding: 6px 8px; border-bottom: 1px solid var(--border); }
  th { color: var(--muted); font-weight: 600; }
  code { background: #f6f8fa; padding: 1px 5px; border-radius: 4px; font-size: 12px; }
  .pill {
    padding: 2px 8px;
    border-radius: 10px;
    font-size: 11px;
    font-weight: 600;
  }
  .pill.filled { background: #dafbe1; color: var(--confirmed); }
  .pill.missing { background: #ffebe9; color: var(--abandoned); }
  .pill.empty { background: #eaeef2; color: var(--muted); }
  .muted { color: var(--muted); }
  ul.skipped { margin: 4px 0; padding-left: 20px; font-size: 13px; }
  img.shot { max-width: 100%; border: 1px solid var(--border); border-radius: 6px; }
  footer { color: var(--muted); font-size: 12px; margin-top: 24px; }
</style>
</head>
<body>
<div class="container">
  <header>
    <h1>{{.Title}}</h1>
    <span class="badge {{.OutcomeClass}}">{{.Outcome}}</span>
  </header>
  <p class="meta">session {{.SessionID}} &middot; started {{.StartedAt}} &middot; duration {{.Duration}}</p>
  {{if .Reason}}<p class="reason">{{.Reason}}</p>{{end}}

  <section class="summary">
    <div class="card"><span class="num">{{.Summary.Pages}}</span><span class="lbl">pages</span></div>
    <div class="card"><span class="num">{{.Summary.Fields}}</span><span class="lbl">fields</span></div>
    <div class="card"><span class="num">{{.Summary.Filled}}</span><span class="lbl">filled</span></div>
    <div class="card"><span class="num">{{.Summary.Fills}}</span><span class="lbl">fill dispatches</span></div>
    <div class="card"><span class="num">{{.Summary.Skipped}}</span><span class="lbl">skipped</span></div>
    <div class="card"><span class="num">{{.Summary.Rediscoveries}}</span><span class="lbl">rediscoveries</span></div>
  </section>

  {{range .Pages}}
  <section class="page">
    <h2>{{.Name}}</h2>
    {{if .Location}}<p class="meta"><a href="{{.Location}}">{{.Location}}</a></p>{{end}}
    <p class="meta">{{.Revisions}} snapshots &middot; {{.Rediscoveries}} rediscoveries &middot; {{.Fills}} fills</p>
    {{if .Fields}}
    <table>
      <thead>
        <tr><th>Field</th><th>Kind</th><th>Label</th><th>Value</th><th>Status</th></tr>
      </thead>
      <tbody>
        {{range .Fields}}
        <tr>
          <td><code>{{.ID}}</code></td>
          <td>{{.Kind}}{{if .Options}} <span class="muted">({{.Options}} options)</span>{{end}}</td>
          <td>{{.Label}}</td>
          <td>{{.Value}}</td>
          <td><span class="pill {{.StatusClass}}">{{.Status}}</span></td>
        </tr>
        {{end}}
      </tbody>
    </table>
    {{end}}
    {{if .Skipped}}
    <h3>Skipped elements</h3>
    <ul class="skipped">
      {{range .Skipped}}<li><code>{{.Path}}</code>: {{.Reason}}</li>{{end}}
    </ul>
    {{end}}
  </section>
  {{end}}

  {{if .Screenshot}}
  <section class="page">
    <h2>Final document</h2>
    <img class="shot" src="{{.Screenshot}}" alt="final document state">
  </section>
  {{end}}

  <footer>generated {{.GeneratedAt}} &middot; formscout report v{{.Version}}</footer>
</div>
</body>
</html>
`
