// Package schema validates evaluation inputs, wallet results and
// configuration documents against embedded JSON Schemas.
package schema

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/TimurManjosov/cclengine/internal/jfn"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

var ErrSchemaValidation = errors.New("schema validation failed")

// Names of the embedded schemas.
const (
	WalletInfoInput  = "wallet-info-input"
	WalletInfoOutput = "wallet-info-output"
	Configuration    = "configuration"
)

const baseURL = "https://cclengine.schemas.local/"

//go:embed schemas/*.json
var files embed.FS

// Violation is one failed constraint. Path is a JSON pointer into the
// document, Constraint the keyword location in the schema.
type Violation struct {
	Path       string `json:"path"`
	Constraint string `json:"constraint"`
	Message    string `json:"message"`
}

// ValidationError lists every violation of one document.
type ValidationError struct {
	Schema     string
	Violations []Violation
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		path := v.Path
		if path == "" {
			path = "/"
		}
		parts = append(parts, path+": "+v.Message)
	}
	return fmt.Sprintf("%v: %s: %s", ErrSchemaValidation, e.Schema, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrSchemaValidation }

// Validator holds the compiled schemas. It is safe for concurrent use.
type Validator struct {
	schemas map[string]*jsonschema.Schema
}

// New compiles the embedded schemas.
func New() (*Validator, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020

	names := []string{WalletInfoInput, WalletInfoOutput, Configuration}
	for _, name := range names {
		data, err := files.ReadFile("schemas/" + name + ".json")
		if err != nil {
			return nil, err
		}
		if err := c.AddResource(baseURL+name+".json", bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("load schema %s: %w", name, err)
		}
	}

	v := &Validator{schemas: make(map[string]*jsonschema.Schema, len(names))}
	for _, name := range names {
		compiled, err := c.Compile(baseURL + name + ".json")
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", name, err)
		}
		v.schemas[name] = compiled
	}
	return v, nil
}

// Validate checks doc against the named schema. doc may hold evaluator
// values; instants are checked in their JSON form.
func (v *Validator) Validate(name string, doc any) error {
	s, ok := v.schemas[name]
	if !ok {
		return fmt.Errorf("unknown schema %q", name)
	}
	err := s.Validate(jfn.ToJSON(jfn.Normalize(doc)))
	if err == nil {
		return nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return err
	}
	return &ValidationError{Schema: name, Violations: flatten(ve)}
}

// flatten keeps the leaf causes, which name the concrete constraint.
func flatten(ve *jsonschema.ValidationError) []Violation {
	var out []Violation
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			out = append(out, Violation{
				Path:       e.InstanceLocation,
				Constraint: e.KeywordLocation,
				Message:    e.Message,
			})
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(ve)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Names returns the embedded schema names.
func (v *Validator) Names() []string {
	names := make([]string, 0, len(v.schemas))
	for name := range v.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
