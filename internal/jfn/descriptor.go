package jfn

// Parameter declares one named input of a descriptor. Default is used when
// the caller does not supply the parameter.
type Parameter struct {
	Name    string `json:"name" yaml:"name"`
	Default any    `json:"default,omitempty" yaml:"default,omitempty"`
}

type Definition struct {
	Parameters []Parameter `json:"parameters" yaml:"parameters"`
	Logic      any         `json:"logic" yaml:"logic"`
}

// Descriptor is a named function written in the expression language.
type Descriptor struct {
	Name       string     `json:"name" yaml:"name"`
	Definition Definition `json:"definition" yaml:"definition"`
}

// Builtin is a function implemented in Go and callable from descriptors.
// params is the evaluated parameter object of the call site.
type Builtin func(params map[string]any) (any, error)

type Builtins map[string]Builtin
