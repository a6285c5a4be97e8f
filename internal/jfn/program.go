package jfn

import (
	"fmt"
	"sort"
	"strings"
)

// Program is a compiled, immutable set of descriptors plus the builtins
// they may call. It is safe for concurrent use.
type Program struct {
	functions map[string]*function
	builtins  Builtins
}

type function struct {
	desc  Descriptor
	body  Node
	calls []string
}

// Compile parses every descriptor and rejects duplicate names, calls to
// unknown functions and call cycles.
//
// Preconditions:
//   - builtins may be nil
//
// Postconditions:
//   - on success every "call" target resolves to a descriptor or builtin
//   - the descriptor call graph is acyclic
func Compile(descs []Descriptor, builtins Builtins) (*Program, error) {
	p := &Program{
		functions: make(map[string]*function, len(descs)),
		builtins:  builtins,
	}
	for _, d := range descs {
		if d.Name == "" {
			return nil, fmt.Errorf("%w: descriptor without a name", ErrMalformedDescriptor)
		}
		if _, dup := p.functions[d.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate descriptor %q", ErrMalformedDescriptor, d.Name)
		}
		body, err := Parse(d.Name, d.Definition.Logic)
		if err != nil {
			return nil, err
		}
		fn := &function{desc: d, body: body}
		Walk(body, func(n Node) {
			if c, ok := n.(*Call); ok {
				fn.calls = append(fn.calls, c.Name)
			}
		})
		p.functions[d.Name] = fn
	}

	for _, name := range p.Functions() {
		fn := p.functions[name]
		for _, target := range fn.calls {
			if !p.Has(target) {
				return nil, fmt.Errorf("%w: %s calls unknown function %q", ErrMalformedDescriptor, name, target)
			}
		}
	}
	if err := p.checkCycles(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Program) checkCycles() error {
	const (
		unvisited = iota
		inProgress
		done
	)
	state := make(map[string]int, len(p.functions))
	var stack []string

	var visit func(name string) error
	visit = func(name string) error {
		fn, ok := p.functions[name]
		if !ok {
			// Builtins cannot call back into descriptors.
			return nil
		}
		switch state[name] {
		case done:
			return nil
		case inProgress:
			start := 0
			for i, s := range stack {
				if s == name {
					start = i
				}
			}
			cycle := append(append([]string{}, stack[start:]...), name)
			return fmt.Errorf("%w: %w: %s", ErrMalformedDescriptor, ErrCyclicReference, strings.Join(cycle, " -> "))
		}
		state[name] = inProgress
		stack = append(stack, name)
		for _, target := range fn.calls {
			if err := visit(target); err != nil {
				return err
			}
		}
		stack = stack[:len(stack)-1]
		state[name] = done
		return nil
	}

	for _, name := range p.Functions() {
		if err := visit(name); err != nil {
			return err
		}
	}
	return nil
}

// Has reports whether name resolves to a descriptor or a builtin.
func (p *Program) Has(name string) bool {
	if _, ok := p.functions[name]; ok {
		return true
	}
	_, ok := p.builtins[name]
	return ok
}

// Functions returns the descriptor names in sorted order.
func (p *Program) Functions() []string {
	names := make([]string, 0, len(p.functions))
	for name := range p.functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Descriptors returns the compiled descriptors sorted by name.
func (p *Program) Descriptors() []Descriptor {
	out := make([]Descriptor, 0, len(p.functions))
	for _, name := range p.Functions() {
		out = append(out, p.functions[name].desc)
	}
	return out
}

// Overlay compiles a new program where descs replace same-named
// descriptors of p and all other descriptors are kept.
func (p *Program) Overlay(descs []Descriptor) (*Program, error) {
	replaced := make(map[string]bool, len(descs))
	for _, d := range descs {
		replaced[d.Name] = true
	}
	merged := make([]Descriptor, 0, len(p.functions)+len(descs))
	for _, d := range p.Descriptors() {
		if !replaced[d.Name] {
			merged = append(merged, d)
		}
	}
	merged = append(merged, descs...)
	return Compile(merged, p.builtins)
}

// Call evaluates the descriptor name with input as its parameter object.
// Builtins are reachable only through "call" nodes.
func (p *Program) Call(name string, input map[string]any) (any, error) {
	if _, ok := p.functions[name]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFunction, name)
	}
	params, _ := Normalize(input).(map[string]any)
	if params == nil {
		params = map[string]any{}
	}
	return p.invoke(name, params)
}

func (p *Program) invoke(name string, params map[string]any) (any, error) {
	if fn, ok := p.functions[name]; ok {
		e := &evaluator{prog: p, function: name}
		return e.eval(fn.body, withDefaults(params, fn.desc.Definition.Parameters))
	}
	if b, ok := p.builtins[name]; ok {
		out, err := b(params)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		return Normalize(out), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFunction, name)
}

func withDefaults(params map[string]any, decl []Parameter) map[string]any {
	scope := make(map[string]any, len(params)+len(decl))
	for k, v := range params {
		scope[k] = v
	}
	for _, param := range decl {
		if v, ok := scope[param.Name]; !ok || v == nil {
			scope[param.Name] = Normalize(param.Default)
		}
	}
	return scope
}
