// Package registry selects a loaded rule configuration and evaluates its
// functions.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/TimurManjosov/cclengine/internal/codec"
	"github.com/TimurManjosov/cclengine/internal/jfn"
	"github.com/TimurManjosov/cclengine/internal/rules"
	"github.com/cespare/xxhash/v2"
)

var (
	ErrNoConfiguration = errors.New("no matching configuration")
	// ErrUnknownFunction is the evaluator's sentinel, so errors.Is matches
	// failures from either layer.
	ErrUnknownFunction = jfn.ErrUnknownFunction
)

type entry struct {
	config  rules.Configuration
	version *semver.Version
	program *jfn.Program
}

// Registry holds compiled configurations. It is immutable after New and
// safe for concurrent use.
type Registry struct {
	entries  []*entry
	builtins jfn.Builtins
	fallback *entry
	etag     string
}

type Options struct {
	Builtins jfn.Builtins
	// Default names the fallback configuration as "COUNTRY@VERSION". When
	// empty the highest version loaded is the fallback.
	Default string
}

// New validates and compiles every configuration.
//
// Postconditions:
//   - no two configurations share a country and semver-equal version
//   - every descriptor call graph is acyclic
func New(configs []rules.Configuration, opts Options) (*Registry, error) {
	r := &Registry{builtins: opts.Builtins}
	for _, c := range configs {
		if err := rules.Validate(c); err != nil {
			return nil, err
		}
		v, _ := c.SemVersion()
		for _, e := range r.entries {
			if strings.EqualFold(e.config.Country, c.Country) && e.version.Equal(v) {
				return nil, fmt.Errorf("%w: %s and %s both provide %s", rules.ErrInvalidConfiguration, e.config.Identifier, c.Identifier, c.Key())
			}
		}
		prog, err := jfn.Compile(c.Logic.JfnDescriptors, opts.Builtins)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", c.Identifier, err)
		}
		r.entries = append(r.entries, &entry{config: c, version: v, program: prog})
	}
	sort.SliceStable(r.entries, func(i, j int) bool {
		a, b := r.entries[i], r.entries[j]
		if a.config.Country != b.config.Country {
			return a.config.Country < b.config.Country
		}
		return a.version.LessThan(b.version)
	})

	if err := r.pickFallback(opts.Default); err != nil {
		return nil, err
	}

	etag, err := contentTag(r.Configurations())
	if err != nil {
		return nil, err
	}
	r.etag = etag
	return r, nil
}

func (r *Registry) pickFallback(key string) error {
	if key == "" {
		for _, e := range r.entries {
			if r.fallback == nil || e.version.GreaterThan(r.fallback.version) {
				r.fallback = e
			}
		}
		return nil
	}
	country, version, ok := strings.Cut(key, "@")
	if !ok {
		return fmt.Errorf("%w: default %q must be COUNTRY@VERSION", rules.ErrInvalidConfiguration, key)
	}
	e, err := r.find(country, version)
	if err != nil {
		return fmt.Errorf("default configuration: %w", err)
	}
	r.fallback = e
	return nil
}

func contentTag(configs []rules.Configuration) (string, error) {
	canonical, err := codec.Canonical(configs)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`W/"%016x"`, xxhash.Sum64(canonical)), nil
}

func (r *Registry) find(country, version string) (*entry, error) {
	want, err := semver.NewVersion(version)
	if err != nil {
		return nil, fmt.Errorf("%w: version %q: %v", ErrNoConfiguration, version, err)
	}
	for _, e := range r.entries {
		if strings.EqualFold(e.config.Country, country) && e.version.Equal(want) {
			return e, nil
		}
	}
	return nil, fmt.Errorf("%w: %s@%s", ErrNoConfiguration, strings.ToUpper(country), version)
}

// ETag identifies the loaded configuration content.
func (r *Registry) ETag() string { return r.etag }

// Configurations returns the loaded configurations ordered by country and
// version.
func (r *Registry) Configurations() []rules.Configuration {
	out := make([]rules.Configuration, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.config
	}
	return out
}

// Default returns the fallback configuration, if any is loaded.
func (r *Registry) Default() (rules.Configuration, bool) {
	if r.fallback == nil {
		return rules.Configuration{}, false
	}
	return r.fallback.config, true
}

type selection struct {
	country      string
	version      string
	allowDefault bool
	overrides    []jfn.Descriptor
	replace      bool
}

// EvalOption adjusts configuration selection for one evaluation.
type EvalOption func(*selection)

func WithCountry(country string) EvalOption {
	return func(s *selection) { s.country = country }
}

func WithVersion(version string) EvalOption {
	return func(s *selection) { s.version = version }
}

// AllowDefault lets the evaluation fall back to the default configuration
// when no exact match exists.
func AllowDefault(allow bool) EvalOption {
	return func(s *selection) { s.allowDefault = allow }
}

// WithOverrides evaluates against descs. With replace the selected
// configuration is ignored entirely, otherwise descs shadow same-named
// descriptors of the selected configuration.
func WithOverrides(descs []jfn.Descriptor, replace bool) EvalOption {
	return func(s *selection) {
		s.overrides = descs
		s.replace = replace
	}
}

// Selection is the configuration and program an evaluation runs on.
// Config is nil when overrides replaced the configuration.
type Selection struct {
	Config  *rules.Configuration
	Program *jfn.Program
}

// Select resolves the options to a program. An exact match needs both
// country and version.
func (r *Registry) Select(opts ...EvalOption) (Selection, error) {
	var s selection
	for _, opt := range opts {
		opt(&s)
	}
	if s.replace {
		if len(s.overrides) == 0 {
			return Selection{}, fmt.Errorf("%w: replacing overrides are empty", ErrNoConfiguration)
		}
		prog, err := jfn.Compile(s.overrides, r.builtins)
		if err != nil {
			return Selection{}, err
		}
		return Selection{Program: prog}, nil
	}

	e, err := r.selectEntry(s)
	if err != nil {
		return Selection{}, err
	}
	cfg := e.config
	prog := e.program
	if len(s.overrides) > 0 {
		if prog, err = prog.Overlay(s.overrides); err != nil {
			return Selection{}, err
		}
	}
	return Selection{Config: &cfg, Program: prog}, nil
}

func (r *Registry) selectEntry(s selection) (*entry, error) {
	var err error
	if s.country != "" && s.version != "" {
		var e *entry
		if e, err = r.find(s.country, s.version); err == nil {
			return e, nil
		}
	} else {
		err = fmt.Errorf("%w: country and version are required", ErrNoConfiguration)
	}
	if s.allowDefault && r.fallback != nil {
		return r.fallback, nil
	}
	return nil, err
}

// Evaluate calls the function name of the selected configuration with
// input as its parameters.
func (r *Registry) Evaluate(name string, input map[string]any, opts ...EvalOption) (any, error) {
	sel, err := r.Select(opts...)
	if err != nil {
		return nil, err
	}
	return sel.Program.Call(name, input)
}
