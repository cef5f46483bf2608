// Package view renders the embedded HTML templates.
package view

import (
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pricebook/pricebook/internal/auth"
	"github.com/pricebook/pricebook/internal/shared"
	"github.com/pricebook/pricebook/web"
)

// Engine renders HTML templates.
type Engine struct {
	templates *template.Template
	csrf      *shared.CSRFManager
	logger    *slog.Logger
}

// TemplateData contains values shared across templates.
type TemplateData struct {
	Title       string
	CSRFToken   string
	Flashes     []shared.FlashMessage
	CurrentPath string
	Auth        auth.Context
	Data        any
}

// Option customises the engine.
type Option func(*Engine)

// WithCSRF lets Page issue CSRF tokens for forms.
func WithCSRF(m *shared.CSRFManager) Option {
	return func(e *Engine) { e.csrf = m }
}

// WithLogger sets the logger used for render failures.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// NewEngine parses templates at build-time.
func NewEngine(opts ...Option) (*Engine, error) {
	funcMap := template.FuncMap{
		"formatDate": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format("02 Jan 2006 15:04")
		},
		"isoDate": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format("2006-01-02")
		},
		"money": func(d decimal.Decimal) string {
			return d.StringFixed(2)
		},
		"initials": initials,
		"query":    querySet,
		"safeHTML": func(s string) template.HTML { return template.HTML(s) },
		"add":      func(a, b int) int { return a + b },
		"sub":      func(a, b int) int { return a - b },
	}
	tpl, err := template.New("root").Funcs(funcMap).ParseFS(web.Templates, "templates/layouts/*.html", "templates/partials/*.html", "templates/pages/*.html")
	if err != nil {
		return nil, err
	}
	e := &Engine{templates: tpl, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Render executes a named template with TemplateData.
func (e *Engine) Render(w http.ResponseWriter, name string, data TemplateData) error {
	if e == nil {
		return fmt.Errorf("template engine not initialised")
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	return e.templates.ExecuteTemplate(w, name, data)
}

// Data builds the shared template values for r: CSRF token, pending flashes,
// current path and the signed-in user.
func (e *Engine) Data(r *http.Request, title string, data any) TemplateData {
	ctx := r.Context()
	sess := shared.SessionFromContext(ctx)
	td := TemplateData{
		Title:       title,
		CurrentPath: r.URL.Path,
		Auth:        auth.FromContext(ctx),
		Data:        data,
	}
	if sess != nil {
		if e.csrf != nil {
			td.CSRFToken, _ = e.csrf.EnsureToken(ctx, sess)
		}
		for f := sess.PopFlash(); f != nil; f = sess.PopFlash() {
			td.Flashes = append(td.Flashes, *f)
		}
	}
	return td
}

// Page renders name with status, logging failures.
func (e *Engine) Page(w http.ResponseWriter, r *http.Request, status int, name, title string, data any) {
	td := e.Data(r, title, data)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := e.templates.ExecuteTemplate(w, name, td); err != nil {
		e.logger.Error("render page", slog.String("template", name), slog.Any("error", err))
	}
}

func initials(name string) string {
	var b strings.Builder
	for _, part := range strings.Fields(name) {
		b.WriteString(strings.ToUpper(part[:1]))
		if b.Len() == 2 {
			break
		}
	}
	return b.String()
}

// querySet returns the current query string with key replaced by value.
func querySet(values url.Values, key string, value any) template.URL {
	next := url.Values{}
	for k, v := range values {
		next[k] = append([]string(nil), v...)
	}
	next.Set(key, fmt.Sprint(value))
	return template.URL("?" + next.Encode())
}
