package server

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"path"
	"strings"
	"time"

	"github.com/desertthunder/crate/internal/shared"
)

//go:embed templates
var templateFiles embed.FS

// Templates renders the embedded page templates, each parsed together
// with the shared layout.
type Templates struct {
	pages map[string]*template.Template
}

// NewTemplates parses the embedded templates.
func NewTemplates() (*Templates, error) {
	funcs := template.FuncMap{
		"formatDuration": shared.FormatDuration,
		"formatDate": func(t time.Time) string {
			return t.Format("Jan 2, 2006")
		},
		"year": func(t time.Time) string {
			return t.Format("2006")
		},
	}

	pages, err := templateFiles.ReadDir("templates/pages")
	if err != nil {
		return nil, fmt.Errorf("failed to read templates: %w", err)
	}

	t := &Templates{pages: make(map[string]*template.Template, len(pages))}
	for _, entry := range pages {
		name := strings.TrimSuffix(entry.Name(), ".html")
		tmpl, err := template.New(name).Funcs(funcs).ParseFS(
			templateFiles,
			"templates/layout.html",
			path.Join("templates/pages", entry.Name()),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}
		t.pages[name] = tmpl
	}

	return t, nil
}

// Render writes the named page wrapped in the layout.
func (t *Templates) Render(w io.Writer, page string, data any) error {
	tmpl, ok := t.pages[page]
	if !ok {
		return fmt.Errorf("template %q not found", page)
	}
	return tmpl.ExecuteTemplate(w, "layout", data)
}
