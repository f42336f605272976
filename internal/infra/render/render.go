// Package render implements the stdin template contract from spec.md §6:
// a template rendered against the composed hook environment plus a
// read_file/include_file helper. No templating library appears anywhere
// in the retrieval pack (see DESIGN.md), so this is built on Go's standard
// text/template — the justified stdlib exception for this component.
package render

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"text/template"
)

// Vars is the template context, reachable as {{.Vars.NAME}} or
// {{env "NAME"}}. Render exposes exactly the map it is given; the hook
// callers in this module pass the full hook environment, inherited
// process variables included.
type Vars map[string]string

// Render compiles tmpl and executes it against vars, with root used to
// resolve relative paths passed to read_file/include_file.
func Render(tmpl string, vars Vars, root string) (string, error) {
	funcs := template.FuncMap{
		"env": func(key string) (string, error) {
			v, ok := vars[key]
			if !ok {
				return "", fmt.Errorf("render: unknown variable %q", key)
			}
			return v, nil
		},
		"read_file":    readFile(root),
		"include_file": readFile(root),
	}

	t, err := template.New("hook").Option("missingkey=error").Funcs(funcs).Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("render: parse template: %w", err)
	}

	data := struct {
		Vars Vars
	}{Vars: vars}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render: execute template: %w", err)
	}
	return buf.String(), nil
}

// readFile returns a read_file/include_file implementation that resolves
// relative paths against root, per spec.md §6.
func readFile(root string) func(string) (string, error) {
	return func(path string) (string, error) {
		if path == "" {
			return "", fmt.Errorf("render: read_file/include_file path must be non-empty")
		}
		resolved := path
		if !filepath.IsAbs(resolved) {
			resolved = filepath.Join(root, resolved)
		}
		data, err := os.ReadFile(resolved)
		if err != nil {
			return "", fmt.Errorf("render: read_file %q: %w", path, err)
		}
		return string(data), nil
	}
}
