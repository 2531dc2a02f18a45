package intent

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed default_taxonomy.yaml
var defaultTaxonomy []byte

// Categories is the fixed set of keyword groups used inside each segment.
var Categories = []string{"functional", "emotional", "social", "situational", "risk", "cognitive"}

type Taxonomy struct {
	Segments   []Segment  `yaml:"segments"`
	Categories []Category `yaml:"categories"`
}

type Segment struct {
	Name     string              `yaml:"name"`
	Framing  string              `yaml:"framing"`
	Keywords map[string][]string `yaml:"keywords"`
	Jobs     []Job               `yaml:"jobs"`
}

type Job struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

type Category struct {
	Name     string   `yaml:"name"`
	Framing  string   `yaml:"framing"`
	Keywords []string `yaml:"keywords"`
}

// LoadTaxonomy reads the taxonomy at path, or the built-in one when path is empty.
func LoadTaxonomy(path string) (*Taxonomy, error) {
	data := defaultTaxonomy
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read taxonomy: %w", err)
		}
	}
	return ParseTaxonomy(data)
}

func ParseTaxonomy(data []byte) (*Taxonomy, error) {
	var t Taxonomy
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse taxonomy: %w", err)
	}
	if err := t.validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

func (t *Taxonomy) validate() error {
	if len(t.Segments) == 0 {
		return errors.New("taxonomy has no segments")
	}
	if len(t.Categories) == 0 {
		return errors.New("taxonomy has no categories")
	}
	seen := make(map[string]bool)
	for _, s := range t.Segments {
		if s.Name == "" {
			return errors.New("taxonomy segment without name")
		}
		if seen[s.Name] {
			return fmt.Errorf("duplicate taxonomy segment: %s", s.Name)
		}
		seen[s.Name] = true
		for group := range s.Keywords {
			if !isCategory(group) {
				return fmt.Errorf("segment %s: unknown keyword group %q", s.Name, group)
			}
		}
	}
	for _, c := range t.Categories {
		if c.Name == "" {
			return errors.New("taxonomy category without name")
		}
	}
	return nil
}

func isCategory(name string) bool {
	for _, c := range Categories {
		if c == name {
			return true
		}
	}
	return false
}
