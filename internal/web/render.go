package web

import (
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

//go:embed static
var staticFS embed.FS

// Renderer executes the embedded page templates.
type Renderer struct {
	tpl *template.Template
}

func NewRenderer() (*Renderer, error) {
	tpl, err := template.ParseFS(templatesFS, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return &Renderer{tpl: tpl}, nil
}

// HTML renders the named template. Render failures after the header is
// written can only be logged by the caller's recoverer; the page is
// already half-sent.
func (rn *Renderer) HTML(w http.ResponseWriter, status int, name string, data any) error {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	return rn.tpl.ExecuteTemplate(w, name, data)
}

// Error renders the shared error page.
func (rn *Renderer) Error(w http.ResponseWriter, status int, message string) {
	_ = rn.HTML(w, status, "error.tmpl", struct{ Message string }{message})
}

// Static serves the embedded /css and /js assets.
func Static() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return http.FileServer(http.FS(sub))
}
