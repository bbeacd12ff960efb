// Package disease holds the fixed set of supported diseases and the form
// schema that drives each prediction form.
package disease

import (
	_ "embed"
	"errors"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

// Disease is a tag from the fixed enumerated set.
type Disease string

const (
	Liver      Disease = "liver"
	Lung       Disease = "lung"
	Diabetes   Disease = "diabetes"
	Parkinsons Disease = "parkinsons"
	Heart      Disease = "heart"
)

// ErrUnknownDisease is returned for any tag outside the enumerated set.
var ErrUnknownDisease = errors.New("invalid disease selected")

// Info is the display metadata for a disease.
type Info struct {
	ID          Disease
	Name        string
	Emoji       string
	Description string
}

var catalog = []Info{
	{Liver, "Liver Disease", "🫀", "Liver disease can be inherited (genetic) or caused by a variety of factors that damage the liver."},
	{Lung, "Lung Disease", "🫁", "Lung disease refers to disorders that affect the lungs, making it hard to breathe."},
	{Diabetes, "Diabetes", "🩸", "Diabetes is a chronic (long-lasting) health condition that affects how your body turns food into energy."},
	{Parkinsons, "Parkinsons", "🧠", "Parkinson's disease is a progressive nervous system disorder that affects movement."},
	{Heart, "Heart Disease", "❤️", "Heart disease describes a range of conditions that affect your heart, including blood vessel diseases, heart rhythm problems, and more."},
}

// All returns the supported diseases in selection-page order.
func All() []Info {
	out := make([]Info, len(catalog))
	copy(out, catalog)
	return out
}

// Parse validates a tag. Matching is exact; "Diabetes" is not "diabetes".
func Parse(tag string) (Disease, error) {
	for _, info := range catalog {
		if string(info.ID) == tag {
			return info.ID, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownDisease, tag)
}

// Lookup returns the display metadata for d.
func Lookup(d Disease) (Info, bool) {
	for _, info := range catalog {
		if info.ID == d {
			return info, true
		}
	}
	return Info{}, false
}

// FieldKind is the input kind of a form field.
type FieldKind string

const (
	KindNumber   FieldKind = "number"
	KindCheckbox FieldKind = "checkbox"
	KindSwitch   FieldKind = "switch"
)

// IsBoolean reports whether the field is a checkbox/switch holding "0" or "1".
func (k FieldKind) IsBoolean() bool {
	return k == KindCheckbox || k == KindSwitch
}

// Field describes one form input.
type Field struct {
	Name  string    `yaml:"name"`
	Label string    `yaml:"label"`
	Kind  FieldKind `yaml:"kind"`
	Min   *float64  `yaml:"min"`
	Max   *float64  `yaml:"max"`
	Step  *float64  `yaml:"step"`
	Unit  string    `yaml:"unit"`
}

// Schema is the ordered field list for one disease.
type Schema struct {
	Disease Disease
	Fields  []Field
}

// Field returns the descriptor named name.
func (s Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

//go:embed schema.yaml
var schemaYAML []byte

var (
	schemaOnce sync.Once
	schemas    map[Disease][]Field
	schemaErr  error
)

func loadSchemas() {
	var raw map[string][]Field
	if err := yaml.Unmarshal(schemaYAML, &raw); err != nil {
		schemaErr = fmt.Errorf("parse embedded schema: %w", err)
		return
	}
	schemas = make(map[Disease][]Field, len(raw))
	for tag, fields := range raw {
		d, err := Parse(tag)
		if err != nil {
			schemaErr = fmt.Errorf("embedded schema: %w", err)
			return
		}
		for _, f := range fields {
			switch f.Kind {
			case KindNumber, KindCheckbox, KindSwitch:
			default:
				schemaErr = fmt.Errorf("embedded schema: field %s.%s has unknown kind %q", tag, f.Name, f.Kind)
				return
			}
		}
		schemas[d] = fields
	}
}

// SchemaFor returns the form schema of d.
func SchemaFor(d Disease) (Schema, error) {
	schemaOnce.Do(loadSchemas)
	if schemaErr != nil {
		return Schema{}, schemaErr
	}
	fields, ok := schemas[d]
	if !ok {
		return Schema{}, fmt.Errorf("%w: %s", ErrUnknownDisease, d)
	}
	out := make([]Field, len(fields))
	copy(out, fields)
	return Schema{Disease: d, Fields: out}, nil
}
