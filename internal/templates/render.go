// Package templates renders the side-panel HTML fragments sent over Datastar SSE.
package templates

import (
	"embed"
	"html/template"
	"io"
	"io/fs"
	"os"
	"regexp"
)

//go:embed fragments/*.html
var fragments embed.FS

// cssColor accepts hex, functional and named colours and nothing that could
// close the declaration.
var cssColor = regexp.MustCompile(`^(#[0-9a-fA-F]{3,8}|(rgb|rgba|hsl|hsla)\([0-9.,%/ ]+\)|[a-zA-Z]{1,32})$`)

var funcMap = template.FuncMap{
	// dict builds a map from key-value pairs for nested templates.
	"dict": func(values ...any) map[string]any {
		if len(values)%2 != 0 {
			return nil
		}
		m := make(map[string]any, len(values)/2)
		for i := 0; i < len(values); i += 2 {
			key, ok := values[i].(string)
			if !ok {
				continue
			}
			m[key] = values[i+1]
		}
		return m
	},
	"color": Color,
}

// Color returns s as a trusted CSS value when it is a plain colour, and an
// empty value otherwise.
func Color(s string) template.CSS {
	if !cssColor.MatchString(s) {
		return ""
	}
	return template.CSS(s)
}

// Renderer executes the panel fragments.
type Renderer struct {
	templates *template.Template
}

// New parses the fragments. An empty dir uses the embedded set; otherwise
// the *.html files in dir are used, for editing the panel without a rebuild.
func New(dir string) (*Renderer, error) {
	fsys, err := fs.Sub(fragments, "fragments")
	if err != nil {
		return nil, err
	}
	if dir != "" {
		fsys = os.DirFS(dir)
	}

	tmpl, err := template.New("").Funcs(funcMap).ParseFS(fsys, "*.html")
	if err != nil {
		return nil, err
	}
	return &Renderer{templates: tmpl}, nil
}

// Execute writes the named fragment to w.
func (r *Renderer) Execute(w io.Writer, name string, data any) error {
	return r.templates.ExecuteTemplate(w, name, data)
}
