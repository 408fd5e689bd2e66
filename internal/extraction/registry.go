package extraction

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed schemas/*.yaml
var builtinSchemas embed.FS

var ErrUnknownSchema = errors.New("no extraction schema registered for document type")

// Field is one value the model is asked to extract.
type Field struct {
	Name        string `yaml:"name"`
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	Kind        string `yaml:"kind,omitempty"` // date, price or empty for free text
}

// Schema drives extraction for a single document type.
type Schema struct {
	Type         string  `yaml:"type"`
	Label        string  `yaml:"label"`
	Instructions string  `yaml:"instructions"`
	Closing      string  `yaml:"closing"`
	Fields       []Field `yaml:"fields"`
}

func (s *Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Title is the display label of a field, falling back to its name.
func (s *Schema) Title(name string) string {
	if f, ok := s.Field(name); ok && f.Title != "" {
		return f.Title
	}
	return name
}

func (s *Schema) validate() error {
	if s.Type == "" {
		return errors.New("missing type")
	}
	if strings.EqualFold(s.Type, Unrecognized) {
		return fmt.Errorf("type %q is reserved", s.Type)
	}
	if len(s.Fields) == 0 {
		return fmt.Errorf("schema %q has no fields", s.Type)
	}
	seen := make(map[string]bool, len(s.Fields))
	for _, f := range s.Fields {
		if f.Name == "" {
			return fmt.Errorf("schema %q has a field without name", s.Type)
		}
		if seen[f.Name] {
			return fmt.Errorf("schema %q declares field %q twice", s.Type, f.Name)
		}
		seen[f.Name] = true
	}
	return nil
}

// Registry is the closed set of document types the service can extract.
type Registry struct {
	schemas map[string]*Schema
}

// LoadRegistry loads the built-in schemas and then any *.yaml files in dir,
// which replace built-ins of the same type. An empty dir loads built-ins only.
func LoadRegistry(dir string) (*Registry, error) {
	r := &Registry{schemas: make(map[string]*Schema)}
	if err := r.loadFS(builtinSchemas, "schemas"); err != nil {
		return nil, fmt.Errorf("load built-in schemas: %w", err)
	}
	if dir != "" {
		if err := r.loadFS(os.DirFS(dir), "."); err != nil {
			return nil, fmt.Errorf("load schemas from %s: %w", dir, err)
		}
	}
	return r, nil
}

// NewRegistry builds a registry from schemas held in memory.
func NewRegistry(schemas ...*Schema) (*Registry, error) {
	r := &Registry{schemas: make(map[string]*Schema, len(schemas))}
	for _, s := range schemas {
		if err := s.validate(); err != nil {
			return nil, err
		}
		r.schemas[s.Type] = s
	}
	return r, nil
}

func (r *Registry) loadFS(fsys fs.FS, dir string) error {
	files, err := fs.Glob(fsys, path.Join(dir, "*.yaml"))
	if err != nil {
		return err
	}
	for _, name := range files {
		raw, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		var s Schema
		if err := yaml.Unmarshal(raw, &s); err != nil {
			return fmt.Errorf("parse %s: %w", name, err)
		}
		if err := s.validate(); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		r.schemas[s.Type] = &s
	}
	return nil
}

func (r *Registry) Lookup(docType string) (*Schema, error) {
	s, ok := r.schemas[docType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSchema, docType)
	}
	return s, nil
}

// Types returns the registered type tags in sorted order.
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.schemas))
	for t := range r.schemas {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// match maps a normalised model answer back to a registered tag.
func (r *Registry) match(answer string) (string, bool) {
	for t := range r.schemas {
		if strings.EqualFold(t, answer) {
			return t, true
		}
	}
	return "", false
}
