package template

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
)

// Engine resolves Go template expressions inside step arguments against a
// data context. Strings are rendered through text/template with the sprig
// function set; maps and slices are walked recursively; every other value
// passes through untouched.
type Engine struct {
	funcs template.FuncMap
}

// New returns an engine with the sprig text function set installed.
func New() *Engine {
	return &Engine{funcs: sprig.TxtFuncMap()}
}

// Replace walks value and renders every string containing a template
// expression against data.
func (e *Engine) Replace(value interface{}, data map[string]interface{}) (interface{}, error) {
	switch v := value.(type) {
	case string:
		return e.renderString(v, data)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, item := range v {
			resolved, err := e.Replace(item, data)
			if err != nil {
				return nil, err
			}
			out[k] = resolved
		}
		return out, nil
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			resolved, err := e.Replace(item, data)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	default:
		return value, nil
	}
}

func (e *Engine) renderString(s string, data map[string]interface{}) (interface{}, error) {
	if !strings.Contains(s, "{{") {
		return s, nil
	}

	tmpl, err := template.New("arg").Funcs(e.funcs).Option("missingkey=error").Parse(s)
	if err != nil {
		return nil, fmt.Errorf("invalid template %q: %w", s, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to render template %q: %w", s, err)
	}
	return buf.String(), nil
}
