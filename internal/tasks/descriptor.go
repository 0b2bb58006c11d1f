package tasks

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"reviewbot/internal/review"
)

// Descriptor is the full definition of an analysis task. Tasks differ only in
// data; one executor runs all of them.
type Descriptor struct {
	Name         string          `yaml:"name"`
	Title        string          `yaml:"title"`
	Instructions string          `yaml:"instructions"`
	FocusAreas   []string        `yaml:"focus_areas"`
	Category     review.Category `yaml:"category"`
}

// Prompt returns the instructions handed to the producer, including the focus list.
func (d Descriptor) Prompt() string {
	instr := strings.TrimSpace(d.Instructions)
	if len(d.FocusAreas) == 0 {
		return instr
	}
	return instr + "\n\nFocus on: " + strings.Join(d.FocusAreas, ", ")
}

func (d Descriptor) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return errors.New("task name is empty")
	}
	if strings.TrimSpace(d.Instructions) == "" {
		return fmt.Errorf("task %q: instructions are empty", d.Name)
	}
	if !review.ValidCategory(d.Category) {
		return fmt.Errorf("task %q: unknown category %q", d.Name, d.Category)
	}
	return nil
}

type descriptorFile struct {
	Tasks []Descriptor `yaml:"tasks"`
}

//go:embed defaults.yaml
var defaultDescriptors []byte

// Defaults returns the built-in security, performance, style and architecture tasks.
func Defaults() []Descriptor {
	ds, err := ParseDescriptors(defaultDescriptors)
	if err != nil {
		panic(fmt.Sprintf("built-in task descriptors are invalid: %v", err))
	}
	return ds
}

// ParseDescriptors decodes a YAML document with a top-level "tasks" list.
func ParseDescriptors(raw []byte) ([]Descriptor, error) {
	var f descriptorFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("decode task descriptors: %w", err)
	}
	if len(f.Tasks) == 0 {
		return nil, errors.New("decode task descriptors: no tasks defined")
	}
	seen := make(map[string]struct{}, len(f.Tasks))
	for i := range f.Tasks {
		d := &f.Tasks[i]
		d.Name = strings.TrimSpace(d.Name)
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if _, dup := seen[d.Name]; dup {
			return nil, fmt.Errorf("task %q defined more than once", d.Name)
		}
		seen[d.Name] = struct{}{}
	}
	return f.Tasks, nil
}

// LoadDescriptors reads descriptors from path.
func LoadDescriptors(path string) ([]Descriptor, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read task descriptors: %w", err)
	}
	return ParseDescriptors(raw)
}
