package drones

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/microcosm-cc/bluemonday"
)

//go:embed templates/*.html
var templateFS embed.FS

const baseTemplate = "base.html"

// Renderer renders the embedded page templates inside base.html. Files
// whose name starts with "_" are partials shared by every page.
type Renderer struct {
	templates map[string]*template.Template
}

// NewRenderer parses base.html together with every page template.
func NewRenderer() (*Renderer, error) {
	return newRenderer(templateFS)
}

func newRenderer(fsys fs.FS) (*Renderer, error) {
	baseContent, err := fs.ReadFile(fsys, "templates/"+baseTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to read base template: %w", err)
	}

	pages, err := fs.Glob(fsys, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}

	var partials []string
	for _, p := range pages {
		if strings.HasPrefix(path.Base(p), "_") {
			content, err := fs.ReadFile(fsys, p)
			if err != nil {
				return nil, fmt.Errorf("failed to read partial %s: %w", p, err)
			}
			partials = append(partials, string(content))
		}
	}

	r := &Renderer{templates: make(map[string]*template.Template)}
	for _, p := range pages {
		name := path.Base(p)
		if name == baseTemplate || strings.HasPrefix(name, "_") {
			continue
		}
		pageContent, err := fs.ReadFile(fsys, p)
		if err != nil {
			return nil, fmt.Errorf("failed to read template %s: %w", name, err)
		}

		tmpl, err := template.New("base").Funcs(funcMap()).Parse(string(baseContent))
		if err != nil {
			return nil, fmt.Errorf("failed to parse base template for %s: %w", name, err)
		}
		for _, partial := range partials {
			if tmpl, err = tmpl.Parse(partial); err != nil {
				return nil, fmt.Errorf("failed to parse partials for %s: %w", name, err)
			}
		}
		if tmpl, err = tmpl.Parse(string(pageContent)); err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}
		r.templates[name] = tmpl
	}

	if len(r.templates) == 0 {
		return nil, fmt.Errorf("no page templates found")
	}
	return r, nil
}

// Render executes the named page with data and writes it with status.
// Output is buffered so a template error never produces a partial page.
func (r *Renderer) Render(w http.ResponseWriter, status int, name string, data any) error {
	tmpl, ok := r.templates[name]
	if !ok {
		return fmt.Errorf("template %q not found", name)
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base", data); err != nil {
		return fmt.Errorf("failed to execute template %q: %w", name, err)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}

// RenderError renders error.html with the given status and message.
func (r *Renderer) RenderError(w http.ResponseWriter, code int, data PageData, message string) {
	data.Title = http.StatusText(code)
	data.Error = message
	if err := r.Render(w, code, "error.html", data); err != nil {
		http.Error(w, fmt.Sprintf("Error %d: %s", code, message), code)
	}
}

func funcMap() template.FuncMap {
	return template.FuncMap{
		"formatTime":  formatTime,
		"truncate":    truncate,
		"markdown":    renderMarkdown,
		"formatFloat": formatFloat,
	}
}

// formatTime formats a time as "Jan 2, 2006".
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("Jan 2, 2006")
}

// truncate shortens s to n runes, ending in "..." when cut.
func truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	if n <= 3 {
		return string(runes[:n])
	}
	return string(runes[:n-3]) + "..."
}

// renderMarkdown converts a drone description to sanitized HTML.
func renderMarkdown(s string) template.HTML {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.NoEmptyLineBeforeBlock)
	doc := p.Parse([]byte(s))

	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags | html.HrefTargetBlank})
	sanitized := bluemonday.UGCPolicy().SanitizeBytes(markdown.Render(doc, renderer))

	return template.HTML(strings.TrimSpace(string(sanitized)))
}

func formatFloat(f float64, decimals int) string {
	return fmt.Sprintf("%.*f", decimals, f)
}
