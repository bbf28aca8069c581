// Package flowconfig loads approval-flow template definitions from YAML.
// It is used to bootstrap flow templates into a fresh installation without
// driving the admin API by hand.
package flowconfig

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// File is the top-level structure of a flows YAML file
type File struct {
	Version   int        `yaml:"version"`
	Templates []Template `yaml:"templates"`
}

// Template defines one approval flow with its ordered steps
type Template struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Steps       []Step `yaml:"steps"`
}

// Step is a single approval stage. DepartmentID and SectionID narrow the
// step to a scope; both nil means any holder of the role may decide.
type Step struct {
	Order        int    `yaml:"order"`
	Role         string `yaml:"role"`
	DepartmentID *int64 `yaml:"department_id"`
	SectionID    *int64 `yaml:"section_id"`
}

var stepRoles = map[string]bool{
	"section_head": true,
	"dept_head":    true,
	"asset_admin":  true,
	"admin":        true,
}

// Load reads and validates a flows YAML file
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse flows config: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks templates and steps for values the API would reject
func (f *File) Validate() error {
	if len(f.Templates) == 0 {
		return fmt.Errorf("flows config defines no templates")
	}

	names := make(map[string]bool)
	for _, tpl := range f.Templates {
		if tpl.Name == "" {
			return fmt.Errorf("template with empty name")
		}
		if names[tpl.Name] {
			return fmt.Errorf("duplicate template name %q", tpl.Name)
		}
		names[tpl.Name] = true

		if len(tpl.Steps) == 0 {
			return fmt.Errorf("template %q has no steps", tpl.Name)
		}
		orders := make(map[int]bool)
		for _, st := range tpl.Steps {
			if st.Order <= 0 {
				return fmt.Errorf("template %q: step order must be positive", tpl.Name)
			}
			if orders[st.Order] {
				return fmt.Errorf("template %q: duplicate step order %d", tpl.Name, st.Order)
			}
			orders[st.Order] = true
			if !stepRoles[st.Role] {
				return fmt.Errorf("template %q: invalid step role %q", tpl.Name, st.Role)
			}
			if st.SectionID != nil && st.DepartmentID == nil {
				return fmt.Errorf("template %q: section scope requires a department", tpl.Name)
			}
		}
	}
	return nil
}

// SortedSteps returns a template's steps ordered by step order
func (t *Template) SortedSteps() []Step {
	steps := make([]Step, len(t.Steps))
	copy(steps, t.Steps)
	sort.Slice(steps, func(i, j int) bool { return steps[i].Order < steps[j].Order })
	return steps
}
