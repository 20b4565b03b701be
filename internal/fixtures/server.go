package fixtures

import (
	"context"
	"html/template"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httplog"
)

// Config controls the fixture server.
type Config struct {
	// Quiet drops request logging; tests use it.
	Quiet bool
}

// maxLatencyMS caps the artificial delay a request may ask for.
const maxLatencyMS = 5000

// Handler assembles the corpus router: an index, the pages, and a submit
// endpoint that redirects to the confirmation page. A `latency` query
// parameter (milliseconds) delays any response, which gives stability
// tests a server-side knob.
func Handler(cfg Config) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	if !cfg.Quiet {
		logger := httplog.NewLogger("formscout-fixtures", httplog.Options{
			Concise: true,
		})
		r.Use(httplog.RequestLogger(logger))
	}
	r.Use(latency)

	r.Get("/", index)
	r.Get("/pages/{page}", servePage)
	r.Post("/submit", submit)
	return r
}

// Serve runs the fixture server on addr until ctx is canceled.
func Serve(ctx context.Context, addr string, cfg Config) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           Handler(cfg),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	select {
	case <-ctx.Done():
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdown)
	case err := <-errCh:
		return err
	}
}

func latency(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if raw := r.URL.Query().Get("latency"); raw != "" {
			if ms, err := strconv.Atoi(raw); err == nil && ms > 0 {
				if ms > maxLatencyMS {
					ms = maxLatencyMS
				}
				time.Sleep(time.Duration(ms) * time.Millisecond)
			}
		}
		next.ServeHTTP(w, r)
	})
}

func servePage(w http.ResponseWriter, r *http.Request) {
	data, err := Page(chi.URLParam(r, "page"))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(data)
}

func submit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "malformed form body", http.StatusBadRequest)
		return
	}
	http.Redirect(w, r, "/pages/confirm.html", http.StatusSeeOther)
}

var indexTmpl = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>formscout fixtures</title>
<style>
  body { font-family: sans-serif; max-width: 640px; margin: 24px auto; padding: 0 16px; }
  li { margin: 8px 0; }
  .notes { color: #666; font-size: 13px; }
</style>
</head>
<body>
<h1>Fixture corpus</h1>
<p>Append <code>?latency=250</code> to any page for a delayed response.</p>
<ul>
{{range .}}  <li><a href="/pages/{{.File}}">{{.Title}}</a> <span class="notes">{{.Notes}}</span></li>
{{end}}</ul>
</body>
</html>
`))

func index(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = indexTmpl.Execute(w, Pages())
}
