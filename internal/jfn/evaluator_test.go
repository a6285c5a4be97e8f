package jfn

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"
)

func mustDecode(t *testing.T, s string) any {
	t.Helper()
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		t.Fatalf("decode %s: %v", s, err)
	}
	return v
}

func evalJSON(t *testing.T, logic, data string) any {
	t.Helper()
	n, err := Parse("test", mustDecode(t, logic))
	if err != nil {
		t.Fatalf("Parse(%s) error = %v", logic, err)
	}
	var d any
	if data != "" {
		d = mustDecode(t, data)
	}
	got, err := Evaluate(n, d)
	if err != nil {
		t.Fatalf("Evaluate(%s) error = %v", logic, err)
	}
	return got
}

func TestEvaluate_Operators(t *testing.T) {
	tests := []struct {
		name  string
		logic string
		data  string
		want  any
	}{
		{name: "literal number", logic: `42`, want: 42.0},
		{name: "raw object literal", logic: `{"literal": {"a": 1}}`, want: map[string]any{"a": 1.0}},
		{name: "var dotted", logic: `{"var": "a.b"}`, data: `{"a": {"b": "x"}}`, want: "x"},
		{name: "var index", logic: `{"var": "list[1]"}`, data: `{"list": [1, 2]}`, want: 2.0},
		{name: "var missing", logic: `{"var": "nope"}`, data: `{}`, want: nil},
		{name: "var default", logic: `{"var": ["nope", 7]}`, data: `{}`, want: 7.0},
		{name: "var whole data", logic: `{"var": ""}`, data: `3`, want: 3.0},
		{name: "strict equals", logic: `{"===": [1, 1]}`, want: true},
		{name: "strict equals types differ", logic: `{"===": [1, "1"]}`, want: false},
		{name: "loose equals", logic: `{"==": [1, "1"]}`, want: true},
		{name: "not equals", logic: `{"!=": ["a", "b"]}`, want: true},
		{name: "between", logic: `{"<": [1, 2, 3]}`, want: true},
		{name: "between false", logic: `{"<=": [1, 4, 3]}`, want: false},
		{name: "greater strings", logic: `{">": ["b", "a"]}`, want: true},
		{name: "and returns deciding operand", logic: `{"and": [1, 0, 2]}`, want: 0.0},
		{name: "or returns first truthy", logic: `{"or": [false, "x"]}`, want: "x"},
		{name: "not", logic: `{"!": [[]]}`, want: true},
		{name: "double not", logic: `{"!!": ["a"]}`, want: true},
		{name: "sum", logic: `{"+": [1, 2, 3]}`, want: 6.0},
		{name: "negate", logic: `{"-": 4}`, want: -4.0},
		{name: "divide by zero", logic: `{"/": [1, 0]}`, want: nil},
		{name: "modulo", logic: `{"%": [7, 3]}`, want: 1.0},
		{name: "max", logic: `{"max": [1, 9, 3]}`, want: 9.0},
		{name: "non numeric", logic: `{"*": [2, "x"]}`, want: nil},
		{name: "if else-if chain", logic: `{"if": [false, 1, true, 2, 3]}`, want: 2.0},
		{name: "if without else", logic: `{"if": [false, 1]}`, want: nil},
		{name: "let ordered", logic: `{"let": [[{"a": 2}, {"b": {"*": [{"var": "a"}, 10]}}], {"+": [{"var": "a"}, {"var": "b"}]}]}`, want: 22.0},
		{name: "object", logic: `{"object": {"x": {"var": "v"}, "y": true}}`, data: `{"v": 1}`, want: map[string]any{"x": 1.0, "y": true}},
		{name: "map", logic: `{"map": [{"var": "xs"}, {"*": [{"var": ""}, 2]}]}`, data: `{"xs": [1, 2]}`, want: []any{2.0, 4.0}},
		{name: "filter", logic: `{"filter": [{"var": "xs"}, {">": [{"var": ""}, 1]}]}`, data: `{"xs": [1, 2, 3]}`, want: []any{2.0, 3.0}},
		{name: "find", logic: `{"find": [{"var": "xs"}, {"===": [{"var": "k"}, "b"]}]}`, data: `{"xs": [{"k": "a"}, {"k": "b"}]}`, want: map[string]any{"k": "b"}},
		{name: "some", logic: `{"some": [[1, 2], {"===": [{"var": ""}, 2]}]}`, want: true},
		{name: "all empty", logic: `{"all": [[], true]}`, want: false},
		{name: "none", logic: `{"none": [[1, 2], {"===": [{"var": ""}, 3]}]}`, want: true},
		{name: "count", logic: `{"count": [[1, 2, 3]]}`, want: 3.0},
		{name: "count matching", logic: `{"count": [[1, 2, 3], {">=": [{"var": ""}, 2]}]}`, want: 2.0},
		{name: "in list", logic: `{"in": ["b", ["a", "b"]]}`, want: true},
		{name: "in string", logic: `{"in": ["ell", "hello"]}`, want: true},
		{name: "cat", logic: `{"cat": ["a", 1, true]}`, want: "a1true"},
		{name: "upper", logic: `{"toUpperCase": "abc"}`, want: "ABC"},
		{name: "trim", logic: `{"trim": "  x "}`, want: "x"},
		{name: "replaceAll", logic: `{"replaceAll": ["a-b-c", "-", "+"]}`, want: "a+b+c"},
		{name: "split", logic: `{"split": ["a,b", ","]}`, want: []any{"a", "b"}},
		{name: "diff days", logic: `{"diffTime": [{"instant": "2021-03-10"}, {"instant": "2021-03-01T12:00:00Z"}, "day"]}`, want: 8.0},
		{name: "diff months", logic: `{"diffTime": [{"instant": "2021-03-01"}, {"instant": "2021-01-15"}, "month"]}`, want: 1.0},
		{name: "instant comparison", logic: `{"<": [{"instant": "2021-01-01T00:00:00+01:00"}, {"instant": "2021-01-01T00:00:00Z"}]}`, want: true},
		{name: "missing instant", logic: `{"instant": {"var": "x"}}`, data: `{}`, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := evalJSON(t, tt.logic, tt.data)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("Evaluate() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestEvaluate_PlusTimeIsUTC(t *testing.T) {
	got := evalJSON(t, `{"plusTime": [{"instant": "2021-06-01T10:00:00+02:00"}, 21, "day"]}`, "")
	want := time.Date(2021, 6, 22, 8, 0, 0, 0, time.UTC)
	ts, ok := got.(time.Time)
	if !ok {
		t.Fatalf("plusTime returned %T", got)
	}
	if !ts.Equal(want) || ts.Location() != time.UTC {
		t.Fatalf("plusTime = %v, want %v in UTC", ts, want)
	}
}

func TestEvaluate_IfIsLazy(t *testing.T) {
	// The untaken branch would fail evaluation on the invalid instant.
	got := evalJSON(t, `{"if": [true, "ok", {"instant": "not a date"}]}`, "")
	if got != "ok" {
		t.Fatalf("if = %v, want ok", got)
	}

	n, err := Parse("test", mustDecode(t, `{"if": [false, "ok", {"instant": "not a date"}]}`))
	if err != nil {
		t.Fatalf("Parse error = %v", err)
	}
	if _, err := Evaluate(n, nil); !errors.Is(err, ErrEvaluation) {
		t.Fatalf("taken invalid branch error = %v, want ErrEvaluation", err)
	}
}

func TestEvaluate_DoesNotMutateData(t *testing.T) {
	data := map[string]any{"a": 1.0}
	n, err := Parse("test", mustDecode(t, `{"let": [[{"a": 2}], {"var": "a"}]}`))
	if err != nil {
		t.Fatalf("Parse error = %v", err)
	}
	got, err := Evaluate(n, data)
	if err != nil {
		t.Fatalf("Evaluate error = %v", err)
	}
	if got != 2.0 {
		t.Fatalf("let = %v, want 2", got)
	}
	if data["a"] != 1.0 {
		t.Fatalf("data mutated: %v", data)
	}
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name     string
		logic    string
		wantPath string
	}{
		{name: "unknown operator", logic: `{"if": [true, {"frobnicate": [1]}]}`, wantPath: "/logic/if/1/frobnicate"},
		{name: "arity mismatch", logic: `{"===": [1]}`, wantPath: "/logic/==="},
		{name: "multi key object", logic: `{"a": 1, "b": 2}`, wantPath: "/logic"},
		{name: "unknown time unit", logic: `{"plusTime": ["2021-01-01", 1, "fortnight"]}`, wantPath: "/logic/plusTime/2"},
		{name: "computed call target", logic: `{"call": [{"var": "f"}]}`, wantPath: "/logic/call/0"},
		{name: "bad let bindings", logic: `{"let": [{"a": 1}, 2]}`, wantPath: "/logic/let/0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("fn", mustDecode(t, tt.logic))
			if !errors.Is(err, ErrMalformedDescriptor) {
				t.Fatalf("Parse() error = %v, want ErrMalformedDescriptor", err)
			}
			var ne *NodeError
			if !errors.As(err, &ne) {
				t.Fatalf("Parse() error %T is not a *NodeError", err)
			}
			if ne.Function != "fn" || ne.Path != tt.wantPath {
				t.Fatalf("error location = %s:%s, want fn:%s", ne.Function, ne.Path, tt.wantPath)
			}
		})
	}
}
