package web

import (
	"embed"
	"html/template"
	"net/http"
)

//go:embed templates/*.html
var templateFiles embed.FS

// loadTemplates parses each page template. Panics on syntax errors so
// that startup fails fast.
func loadTemplates() map[string]*template.Template {
	pages := []string{"chat.html"}
	result := make(map[string]*template.Template, len(pages))

	for _, page := range pages {
		result[page] = template.Must(template.ParseFS(templateFiles, "templates/"+page))
	}

	return result
}

// render executes a named page template.
func (s *WebServer) render(w http.ResponseWriter, name string, data any) {
	t, ok := s.templates[name]
	if !ok {
		http.Error(w, "template not found", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := t.Execute(w, data); err != nil {
		s.logger.Error("template render failed", "template", name, "error", err)
	}
}
