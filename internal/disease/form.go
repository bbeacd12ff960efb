package disease

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// FormData maps field name to its raw string value.
type FormData map[string]string

// Clone returns an independent copy.
func (f FormData) Clone() FormData {
	out := make(FormData, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Payload is a request body whose keys marshal in insertion order. The
// prediction service reads values positionally, so a plain map (which
// encoding/json sorts by key) would scramble the model inputs.
type Payload struct {
	keys   []string
	values map[string]string
}

// Set appends key, or overwrites it in place if already present.
func (p *Payload) Set(key, value string) {
	if p.values == nil {
		p.values = make(map[string]string)
	}
	if _, ok := p.values[key]; !ok {
		p.keys = append(p.keys, key)
	}
	p.values[key] = value
}

// With returns a copy of p with key set.
func (p Payload) With(key, value string) Payload {
	out := Payload{keys: append([]string(nil), p.keys...), values: make(map[string]string, len(p.values)+1)}
	for k, v := range p.values {
		out.values[k] = v
	}
	out.Set(key, value)
	return out
}

// Get returns the value for key.
func (p Payload) Get(key string) (string, bool) {
	v, ok := p.values[key]
	return v, ok
}

// Keys returns the keys in marshal order.
func (p Payload) Keys() []string {
	return append([]string(nil), p.keys...)
}

// Len is the number of keys.
func (p Payload) Len() int { return len(p.keys) }

// Map returns the payload as FormData.
func (p Payload) Map() FormData {
	out := make(FormData, len(p.values))
	for k, v := range p.values {
		out[k] = v
	}
	return out
}

// MarshalJSON writes keys in insertion order.
func (p Payload) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range p.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(p.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Normalize builds the submit payload in schema order. A checkbox/switch
// missing from form defaults to "0". Any other missing field is passed
// through as an empty string; Validate is where that gap gets caught.
func Normalize(s Schema, form FormData) Payload {
	var p Payload
	for _, f := range s.Fields {
		v, ok := form[f.Name]
		if f.Kind.IsBoolean() && (!ok || v == "") {
			v = "0"
		}
		p.Set(f.Name, v)
	}
	return p
}

// ErrInvalidForm wraps every *ValidationError.
var ErrInvalidForm = errors.New("invalid form")

// Problem is one invalid field.
type Problem struct {
	Field  string
	Label  string
	Reason string
}

// ValidationError lists every invalid field of a submission.
type ValidationError struct {
	Problems []Problem
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		parts[i] = fmt.Sprintf("%s %s", p.Label, p.Reason)
	}
	return "invalid form: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrInvalidForm }

// Validate checks a form before submission. Number fields are required and
// must parse within [min, max]. Boolean fields are never required (Normalize
// defaults them) but, when present, must be "0" or "1". This asymmetry is
// deliberate: only numbers can be meaningfully absent.
func Validate(s Schema, form FormData) error {
	var problems []Problem
	for _, f := range s.Fields {
		v := strings.TrimSpace(form[f.Name])
		if f.Kind.IsBoolean() {
			if v != "" && v != "0" && v != "1" {
				problems = append(problems, Problem{f.Name, f.Label, "must be 0 or 1"})
			}
			continue
		}
		if v == "" {
			problems = append(problems, Problem{f.Name, f.Label, "is required"})
			continue
		}
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			problems = append(problems, Problem{f.Name, f.Label, "must be a number"})
			continue
		}
		if f.Min != nil && n < *f.Min {
			problems = append(problems, Problem{f.Name, f.Label, fmt.Sprintf("must be at least %s", formatBound(*f.Min))})
			continue
		}
		if f.Max != nil && n > *f.Max {
			problems = append(problems, Problem{f.Name, f.Label, fmt.Sprintf("must be at most %s", formatBound(*f.Max))})
		}
	}
	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

func formatBound(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
