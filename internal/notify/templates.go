package notify

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Template is the stored content of a notification type.
type Template struct {
	Title   string `yaml:"title"`
	Message string `yaml:"message"`
	Link    string `yaml:"link"`
}

// Templates maps a template name to its content.
type Templates map[string]Template

// DefaultTemplates are the built-in templates.
func DefaultTemplates() Templates {
	return Templates{
		"survey": {
			Title:   "How was your purchase?",
			Message: "Thanks for your order {{saleId}}. Tell us how it went: {{surveyLink}}",
			Link:    "{{surveyLink}}",
		},
		"badge_awarded": {
			Title:   "New badge: {{badge}}",
			Message: "{{customerName}} earned the {{badge}} badge.",
		},
		"tier_changed": {
			Title:   "Customer tier changed",
			Message: "{{customerName}} moved from {{fromTier}} to {{toTier}}.",
		},
		"vip_welcome": {
			Title:   "Welcome to VIP",
			Message: "Hi {{customerName}}, you are now a VIP customer.",
		},
	}
}

// LoadTemplates reads a YAML map of templates and merges it over base.
func LoadTemplates(path string, base Templates) (Templates, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read templates file: %w", err)
	}

	var loaded Templates
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("decode templates: %w", err)
	}

	out := make(Templates, len(base)+len(loaded))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range loaded {
		out[k] = v
	}
	return out, nil
}

// Render substitutes {{name}} placeholders with vars. Unknown placeholders
// are left as is.
func Render(tmpl string, vars map[string]any) string {
	if tmpl == "" || len(vars) == 0 {
		return tmpl
	}
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{{"+k+"}}", fmt.Sprintf("%v", v))
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}
