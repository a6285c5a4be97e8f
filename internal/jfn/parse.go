package jfn

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

type arity struct {
	min int
	max int // -1 means unbounded
}

func (a arity) accepts(n int) bool {
	return n >= a.min && (a.max < 0 || n <= a.max)
}

// operatorArity lists every operator that takes an argument list.
// "literal", "var" and "object" have their own argument shapes.
var operatorArity = map[string]arity{
	"===": {2, 2}, "==": {2, 2}, "!==": {2, 2}, "!=": {2, 2},
	"<": {2, 3}, "<=": {2, 3}, ">": {2, 2}, ">=": {2, 2},
	"and": {1, -1}, "or": {1, -1},
	"!": {1, 1}, "!!": {1, 1},
	"+": {0, -1}, "-": {1, 2}, "*": {1, -1}, "/": {2, 2}, "%": {2, 2},
	"min": {1, -1}, "max": {1, -1},
	"instant": {1, 1}, "plusTime": {3, 3}, "diffTime": {3, 3},
	"if":   {2, -1},
	"let":  {2, 2},
	"call": {1, 2},
	"map":  {2, 2}, "filter": {2, 2}, "find": {2, 2},
	"some": {2, 2}, "all": {2, 2}, "none": {2, 2}, "count": {1, 2},
	"in":  {2, 2},
	"cat": {0, -1}, "toUpperCase": {1, 1}, "toLowerCase": {1, 1}, "trim": {1, 1},
	"replaceAll": {3, 3}, "split": {2, 2},
}

// Parse turns decoded descriptor logic into an expression tree. function
// names the enclosing descriptor in error positions.
func Parse(function string, logic any) (Node, error) {
	p := &parser{function: function}
	return p.parse(Normalize(logic), "/logic")
}

type parser struct {
	function string
}

func (p *parser) parse(raw any, pos string) (Node, error) {
	switch v := raw.(type) {
	case nil, bool, float64, string, time.Time:
		return &Literal{base: base{pos}, Value: v}, nil
	case []any:
		items, err := p.parseAll(v, pos)
		if err != nil {
			return nil, err
		}
		return &List{base: base{pos}, Items: items}, nil
	case map[string]any:
		if len(v) == 0 {
			return &Literal{base: base{pos}, Value: map[string]any{}}, nil
		}
		if len(v) != 1 {
			return nil, malformed(p.function, pos, "operator object must have exactly one key, got %d", len(v))
		}
		for op, args := range v {
			return p.parseOperator(op, args, pos+"/"+op)
		}
	}
	return nil, malformed(p.function, pos, "unsupported value %T", raw)
}

func (p *parser) parseAll(raw []any, pos string) ([]Node, error) {
	nodes := make([]Node, len(raw))
	for i, item := range raw {
		n, err := p.parse(item, pos+"/"+strconv.Itoa(i))
		if err != nil {
			return nil, err
		}
		nodes[i] = n
	}
	return nodes, nil
}

func (p *parser) parseOperator(op string, raw any, pos string) (Node, error) {
	switch op {
	case "literal":
		return &Literal{base: base{pos}, Value: raw}, nil
	case "var":
		return p.parseVar(raw, pos)
	case "object":
		return p.parseObject(raw, pos)
	}

	ar, ok := operatorArity[op]
	if !ok {
		return nil, malformed(p.function, pos, "unknown operator %q", op)
	}
	rawArgs, isList := raw.([]any)
	if !isList {
		rawArgs = []any{raw}
	}
	if !ar.accepts(len(rawArgs)) {
		return nil, malformed(p.function, pos, "operator %q does not accept %d argument(s)", op, len(rawArgs))
	}

	switch op {
	case "let":
		return p.parseLet(rawArgs, pos)
	case "call":
		return p.parseCall(rawArgs, pos)
	}

	args, err := p.parseAll(rawArgs, pos)
	if err != nil {
		return nil, err
	}
	b := base{pos}

	switch op {
	case "===", "==", "!==", "!=", "<", "<=", ">", ">=":
		return &Compare{base: b, Op: op, Args: args}, nil
	case "and", "or":
		return &Logic{base: b, Op: op, Args: args}, nil
	case "!", "!!":
		return &Not{base: b, Double: op == "!!", Arg: args[0]}, nil
	case "+", "-", "*", "/", "%", "min", "max":
		return &Arith{base: b, Op: op, Args: args}, nil
	case "instant", "plusTime", "diffTime":
		if op != "instant" {
			if err := p.checkUnit(rawArgs[2], pos+"/2"); err != nil {
				return nil, err
			}
		}
		return &Time{base: b, Op: op, Args: args}, nil
	case "if":
		n := &If{base: b}
		for i := 0; i+1 < len(args); i += 2 {
			n.Branches = append(n.Branches, Branch{Cond: args[i], Then: args[i+1]})
		}
		if len(args)%2 == 1 {
			n.Else = args[len(args)-1]
		}
		return n, nil
	case "map", "filter", "find", "some", "all", "none", "count":
		n := &ListOp{base: b, Op: op, List: args[0]}
		if len(args) > 1 {
			n.Fn = args[1]
		}
		return n, nil
	case "in":
		return &In{base: b, Needle: args[0], Haystack: args[1]}, nil
	default:
		return &String{base: b, Op: op, Args: args}, nil
	}
}

func (p *parser) checkUnit(raw any, pos string) error {
	unit, ok := raw.(string)
	if !ok {
		// Computed units are checked at evaluation time.
		return nil
	}
	if _, known := timeUnits[unit]; !known {
		return malformed(p.function, pos, "unknown time unit %q", unit)
	}
	return nil
}

func (p *parser) parseVar(raw any, pos string) (Node, error) {
	var pathRaw, defRaw any
	hasDefault := false
	switch v := raw.(type) {
	case []any:
		if len(v) > 2 {
			return nil, malformed(p.function, pos, "operator \"var\" does not accept %d argument(s)", len(v))
		}
		if len(v) > 0 {
			pathRaw = v[0]
		}
		if len(v) == 2 {
			defRaw, hasDefault = v[1], true
		}
	default:
		pathRaw = v
	}

	path, err := p.varPath(pathRaw, pos)
	if err != nil {
		return nil, err
	}
	n := &Var{base: base{pos}, Path: path}
	if hasDefault {
		def, err := p.parse(defRaw, pos+"/1")
		if err != nil {
			return nil, err
		}
		n.Default = def
	}
	return n, nil
}

func (p *parser) varPath(raw any, pos string) ([]string, error) {
	var s string
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case string:
		s = v
	case float64:
		s = strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return nil, malformed(p.function, pos, "variable path must be a string, got %T", raw)
	}
	if s == "" {
		return nil, nil
	}
	// "a.b[0].c" and "a.b.0.c" address the same value.
	s = strings.ReplaceAll(s, "[", ".")
	s = strings.ReplaceAll(s, "]", "")
	var path []string
	for _, seg := range strings.Split(s, ".") {
		if seg == "" {
			return nil, malformed(p.function, pos, "empty segment in variable path %q", raw)
		}
		path = append(path, seg)
	}
	return path, nil
}

func (p *parser) parseObject(raw any, pos string) (Node, error) {
	fields, ok := raw.(map[string]any)
	if !ok {
		return nil, malformed(p.function, pos, "operator \"object\" expects an object, got %T", raw)
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	n := &Object{base: base{pos}, Fields: make([]Field, 0, len(keys))}
	for _, k := range keys {
		value, err := p.parse(fields[k], pos+"/"+k)
		if err != nil {
			return nil, err
		}
		n.Fields = append(n.Fields, Field{Key: k, Value: value})
	}
	return n, nil
}

// parseLet reads [[{"name": expr}, ...], body].
func (p *parser) parseLet(args []any, pos string) (Node, error) {
	rawBindings, ok := args[0].([]any)
	if !ok {
		return nil, malformed(p.function, pos+"/0", "let bindings must be a list")
	}
	n := &Let{base: base{pos}}
	for i, rb := range rawBindings {
		bpos := pos + "/0/" + strconv.Itoa(i)
		m, ok := rb.(map[string]any)
		if !ok || len(m) != 1 {
			return nil, malformed(p.function, bpos, "let binding must be an object with one key")
		}
		for name, expr := range m {
			value, err := p.parse(expr, bpos+"/"+name)
			if err != nil {
				return nil, err
			}
			n.Bindings = append(n.Bindings, Binding{Name: name, Value: value})
		}
	}
	body, err := p.parse(args[1], pos+"/1")
	if err != nil {
		return nil, err
	}
	n.Body = body
	return n, nil
}

func (p *parser) parseCall(args []any, pos string) (Node, error) {
	name, ok := args[0].(string)
	if !ok || name == "" {
		return nil, malformed(p.function, pos+"/0", "call target must be a function name")
	}
	n := &Call{base: base{pos}, Name: name}
	if len(args) == 2 {
		params, err := p.parse(args[1], pos+"/1")
		if err != nil {
			return nil, err
		}
		n.Params = params
	}
	return n, nil
}
