package jfn

import (
	"errors"
	"reflect"
	"testing"
)

func desc(t *testing.T, name, logic string, params ...Parameter) Descriptor {
	t.Helper()
	return Descriptor{Name: name, Definition: Definition{Parameters: params, Logic: mustDecode(t, logic)}}
}

func TestCompile_CallsAndDefaults(t *testing.T) {
	prog, err := Compile([]Descriptor{
		desc(t, "double", `{"*": [{"var": "x"}, 2]}`, Parameter{Name: "x", Default: 5}),
		desc(t, "main", `{"+": [{"call": ["double", {"object": {"x": {"var": "n"}}}]}, {"call": ["double"]}]}`),
	}, nil)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	got, err := prog.Call("main", map[string]any{"n": 1})
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if got != 12.0 {
		t.Fatalf("Call() = %v, want 12", got)
	}
	if want := []string{"double", "main"}; !reflect.DeepEqual(prog.Functions(), want) {
		t.Fatalf("Functions() = %v, want %v", prog.Functions(), want)
	}
}

func TestCompile_Builtins(t *testing.T) {
	var seen map[string]any
	builtins := Builtins{
		"host.echo": func(params map[string]any) (any, error) {
			seen = params
			return map[string]any{"count": len(params)}, nil
		},
	}
	prog, err := Compile([]Descriptor{
		desc(t, "main", `{"call": ["host.echo", {"object": {"a": 1, "b": {"var": "b"}}}]}`),
	}, builtins)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	got, err := prog.Call("main", map[string]any{"b": "two"})
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if !reflect.DeepEqual(got, map[string]any{"count": 2.0}) {
		t.Fatalf("Call() = %#v", got)
	}
	if seen["b"] != "two" {
		t.Fatalf("builtin params = %v", seen)
	}
	if _, err := prog.Call("host.echo", nil); !errors.Is(err, ErrUnknownFunction) {
		t.Fatalf("calling a builtin directly: error = %v, want ErrUnknownFunction", err)
	}
}

func TestCompile_BuiltinErrorPropagates(t *testing.T) {
	boom := errors.New("boom")
	prog, err := Compile([]Descriptor{desc(t, "main", `{"call": ["fail"]}`)}, Builtins{
		"fail": func(map[string]any) (any, error) { return nil, boom },
	})
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if _, err := prog.Call("main", nil); !errors.Is(err, boom) {
		t.Fatalf("Call() error = %v, want wrapped boom", err)
	}
}

func TestCompile_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		descs   func(t *testing.T) []Descriptor
		wantErr error
	}{
		{
			name: "cycle",
			descs: func(t *testing.T) []Descriptor {
				return []Descriptor{
					desc(t, "a", `{"call": ["b"]}`),
					desc(t, "b", `{"if": [true, {"call": ["a"]}]}`),
				}
			},
			wantErr: ErrCyclicReference,
		},
		{
			name: "self reference",
			descs: func(t *testing.T) []Descriptor {
				return []Descriptor{desc(t, "a", `{"call": ["a"]}`)}
			},
			wantErr: ErrCyclicReference,
		},
		{
			name: "unknown call target",
			descs: func(t *testing.T) []Descriptor {
				return []Descriptor{desc(t, "a", `{"call": ["missing"]}`)}
			},
			wantErr: ErrMalformedDescriptor,
		},
		{
			name: "duplicate",
			descs: func(t *testing.T) []Descriptor {
				return []Descriptor{desc(t, "a", `1`), desc(t, "a", `2`)}
			},
			wantErr: ErrMalformedDescriptor,
		},
		{
			name: "unknown operator",
			descs: func(t *testing.T) []Descriptor {
				return []Descriptor{desc(t, "a", `{"bogus": 1}`)}
			},
			wantErr: ErrMalformedDescriptor,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.descs(t), nil)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Compile() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestProgram_Overlay(t *testing.T) {
	base, err := Compile([]Descriptor{
		desc(t, "greeting", `"hello"`),
		desc(t, "main", `{"cat": [{"call": ["greeting"]}, "!"]}`),
	}, nil)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	layered, err := base.Overlay([]Descriptor{desc(t, "greeting", `"hallo"`)})
	if err != nil {
		t.Fatalf("Overlay() error = %v", err)
	}
	got, err := layered.Call("main", nil)
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if got != "hallo!" {
		t.Fatalf("overlay Call() = %v, want hallo!", got)
	}

	orig, _ := base.Call("main", nil)
	if orig != "hello!" {
		t.Fatalf("base program changed: %v", orig)
	}
}
