// Package templates loads the prompt templates used to talk to the language model and renders
// their `{{ name }}` placeholders.
package templates

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Keys of the templates shipped in prompt_templates.yml.
const (
	KeyPosterPrompt     = "image_generate_poster"
	KeyProductPlacement = "product_image_position"
)

// ErrUnrenderedPlaceholder is returned when a rendered template still contains `{{` or `}}`.
var ErrUnrenderedPlaceholder = errors.New("templates: placeholders left unreplaced")

// Template is one entry of the template file.
type Template struct {
	SystemPrompt       string `yaml:"system_prompt"`
	UserPromptTemplate string `yaml:"user_prompt_template"`
}

// Set holds every template keyed by task.
type Set struct {
	entries map[string]Template
}

// Load reads a YAML template file.
func Load(path string) (*Set, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("templates: read %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse decodes YAML template content.
func Parse(raw []byte) (*Set, error) {
	entries := map[string]Template{}
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("templates: decode: %w", err)
	}
	return &Set{entries: entries}, nil
}

// Get returns the template stored under key.
func (s *Set) Get(key string) (Template, error) {
	if s == nil {
		return Template{}, fmt.Errorf("templates: no template set loaded")
	}
	tpl, ok := s.entries[key]
	if !ok {
		return Template{}, fmt.Errorf("templates: key %q not found", key)
	}
	if strings.TrimSpace(tpl.SystemPrompt) == "" {
		return Template{}, fmt.Errorf("templates: key %q has no system_prompt", key)
	}
	return tpl, nil
}

// Render replaces every `{{ name }}` placeholder with the formatted value from vars and fails
// if any placeholder is left.
func Render(tpl string, vars map[string]any) (string, error) {
	out := tpl
	for name, value := range vars {
		out = strings.ReplaceAll(out, "{{ "+name+" }}", fmt.Sprint(value))
	}
	if strings.Contains(out, "{{") || strings.Contains(out, "}}") {
		return "", ErrUnrenderedPlaceholder
	}
	return out, nil
}
