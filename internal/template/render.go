package template

import (
	"fmt"
	"strings"
	texttemplate "text/template"
)

// Renderer renders text/template strings against parameter values.
// Parsed templates are cached by source text; a Renderer is not safe for
// concurrent use.
type Renderer struct {
	cache map[string]*texttemplate.Template
}

// NewRenderer creates an empty renderer
func NewRenderer() *Renderer {
	return &Renderer{cache: make(map[string]*texttemplate.Template)}
}

// Render executes text with data. Strings without actions are returned as-is;
// references to missing keys are errors.
func (r *Renderer) Render(name, text string, data map[string]any) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}

	tmpl, ok := r.cache[text]
	if !ok {
		var err error
		tmpl, err = texttemplate.New(name).Option("missingkey=error").Parse(text)
		if err != nil {
			return "", fmt.Errorf("invalid template in %s: %w", name, err)
		}
		r.cache[text] = tmpl
	}

	var buf strings.Builder
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template in %s: %w", name, err)
	}
	return buf.String(), nil
}
