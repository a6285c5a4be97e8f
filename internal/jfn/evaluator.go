package jfn

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Evaluate computes n against data with no functions available to "call".
//
// Preconditions:
//   - n was produced by Parse
//
// Postconditions:
//   - the result is in the closed value set (see Normalize)
//   - data is never mutated
func Evaluate(n Node, data any) (any, error) {
	e := &evaluator{}
	return e.eval(n, Normalize(data))
}

type evaluator struct {
	prog     *Program
	function string
}

func (e *evaluator) fail(n Node, format string, args ...any) error {
	return &NodeError{
		Function: e.function,
		Path:     n.Pos(),
		Reason:   fmt.Sprintf(format, args...),
		Err:      ErrEvaluation,
	}
}

func (e *evaluator) eval(n Node, data any) (any, error) {
	switch v := n.(type) {
	case *Literal:
		return Normalize(v.Value), nil
	case *List:
		return e.evalAll(v.Items, data)
	case *Object:
		out := make(map[string]any, len(v.Fields))
		for _, f := range v.Fields {
			val, err := e.eval(f.Value, data)
			if err != nil {
				return nil, err
			}
			out[f.Key] = val
		}
		return out, nil
	case *Var:
		if val, ok := lookup(data, v.Path); ok && val != nil {
			return val, nil
		}
		if v.Default != nil {
			return e.eval(v.Default, data)
		}
		return nil, nil
	case *Compare:
		return e.evalCompare(v, data)
	case *Logic:
		return e.evalLogic(v, data)
	case *Not:
		val, err := e.eval(v.Arg, data)
		if err != nil {
			return nil, err
		}
		return IsTruthy(val) == v.Double, nil
	case *Arith:
		return e.evalArith(v, data)
	case *Time:
		return e.evalTime(v, data)
	case *If:
		for _, b := range v.Branches {
			cond, err := e.eval(b.Cond, data)
			if err != nil {
				return nil, err
			}
			if IsTruthy(cond) {
				return e.eval(b.Then, data)
			}
		}
		if v.Else == nil {
			return nil, nil
		}
		return e.eval(v.Else, data)
	case *Let:
		scope := make(map[string]any)
		if m, ok := data.(map[string]any); ok {
			for k, val := range m {
				scope[k] = val
			}
		}
		for _, b := range v.Bindings {
			val, err := e.eval(b.Value, scope)
			if err != nil {
				return nil, err
			}
			scope[b.Name] = val
		}
		return e.eval(v.Body, scope)
	case *Call:
		return e.evalCall(v, data)
	case *ListOp:
		return e.evalListOp(v, data)
	case *In:
		return e.evalIn(v, data)
	case *String:
		args, err := e.evalAll(v.Args, data)
		if err != nil {
			return nil, err
		}
		return stringHandlers[v.Op](args), nil
	default:
		return nil, e.fail(n, "unsupported node %T", n)
	}
}

func (e *evaluator) evalAll(nodes []Node, data any) ([]any, error) {
	out := make([]any, len(nodes))
	for i, n := range nodes {
		val, err := e.eval(n, data)
		if err != nil {
			return nil, err
		}
		out[i] = val
	}
	return out, nil
}

func lookup(data any, path []string) (any, bool) {
	cur := data
	for _, seg := range path {
		switch c := cur.(type) {
		case map[string]any:
			next, ok := c[seg]
			if !ok {
				return nil, false
			}
			cur = next
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(c) {
				return nil, false
			}
			cur = c[idx]
		default:
			return nil, false
		}
	}
	return cur, true
}

func (e *evaluator) evalCompare(n *Compare, data any) (any, error) {
	args, err := e.evalAll(n.Args, data)
	if err != nil {
		return nil, err
	}
	check := compareHandlers[n.Op]
	if len(args) == 3 {
		// Between: a < b < c.
		return check(args[0], args[1]) && check(args[1], args[2]), nil
	}
	return check(args[0], args[1]), nil
}

// evalLogic returns the deciding operand, not a coerced bool.
func (e *evaluator) evalLogic(n *Logic, data any) (any, error) {
	var last any
	for _, arg := range n.Args {
		val, err := e.eval(arg, data)
		if err != nil {
			return nil, err
		}
		last = val
		truthy := IsTruthy(val)
		if n.Op == "and" && !truthy {
			return val, nil
		}
		if n.Op == "or" && truthy {
			return val, nil
		}
	}
	return last, nil
}

func (e *evaluator) evalArith(n *Arith, data any) (any, error) {
	args, err := e.evalAll(n.Args, data)
	if err != nil {
		return nil, err
	}
	nums := make([]float64, len(args))
	for i, a := range args {
		f, ok := toFloat64(a)
		if !ok {
			return nil, nil
		}
		nums[i] = f
	}
	return arithHandlers[n.Op](nums), nil
}

func (e *evaluator) evalTime(n *Time, data any) (any, error) {
	args, err := e.evalAll(n.Args, data)
	if err != nil {
		return nil, err
	}
	if args[0] == nil {
		return nil, nil
	}
	first, ok := toInstant(args[0])
	if !ok {
		return nil, e.fail(n, "%q is not an instant", toDisplayString(args[0]))
	}

	switch n.Op {
	case "instant":
		return first, nil
	case "plusTime":
		amount, ok := toFloat64(args[1])
		if !ok {
			return nil, e.fail(n, "plusTime amount %v is not a number", args[1])
		}
		unit, err := lookupUnit(args[2])
		if err != nil {
			return nil, e.fail(n, "%v", err)
		}
		return plusTime(first, int(amount), unit), nil
	default:
		if args[1] == nil {
			return nil, nil
		}
		second, ok := toInstant(args[1])
		if !ok {
			return nil, e.fail(n, "%q is not an instant", toDisplayString(args[1]))
		}
		unit, err := lookupUnit(args[2])
		if err != nil {
			return nil, e.fail(n, "%v", err)
		}
		return diffTime(first, second, unit), nil
	}
}

func (e *evaluator) evalCall(n *Call, data any) (any, error) {
	params := map[string]any{}
	if n.Params != nil {
		val, err := e.eval(n.Params, data)
		if err != nil {
			return nil, err
		}
		switch p := val.(type) {
		case map[string]any:
			params = p
		case nil:
		default:
			return nil, e.fail(n, "parameters of %q must be an object, got %T", n.Name, val)
		}
	}
	if e.prog == nil {
		return nil, &NodeError{Function: e.function, Path: n.Pos(), Reason: n.Name, Err: ErrUnknownFunction}
	}

	out, err := e.prog.invoke(n.Name, params)
	if err != nil {
		var ne *NodeError
		if errors.As(err, &ne) {
			return nil, err
		}
		return nil, &NodeError{Function: e.function, Path: n.Pos(), Reason: err.Error(), Err: err}
	}
	return out, nil
}

func (e *evaluator) evalListOp(n *ListOp, data any) (any, error) {
	listVal, err := e.eval(n.List, data)
	if err != nil {
		return nil, err
	}
	items, _ := listVal.([]any)

	if n.Op == "count" && n.Fn == nil {
		return float64(len(items)), nil
	}

	var (
		mapped  []any
		matched []any
	)
	for _, item := range items {
		val, err := e.eval(n.Fn, item)
		if err != nil {
			return nil, err
		}
		if n.Op == "map" {
			mapped = append(mapped, val)
			continue
		}
		truthy := IsTruthy(val)
		switch n.Op {
		case "find":
			if truthy {
				return item, nil
			}
		case "some":
			if truthy {
				return true, nil
			}
		case "all":
			if !truthy {
				return false, nil
			}
		case "none":
			if truthy {
				return false, nil
			}
		default:
			if truthy {
				matched = append(matched, item)
			}
		}
	}

	switch n.Op {
	case "map":
		if mapped == nil {
			mapped = []any{}
		}
		return mapped, nil
	case "find":
		return nil, nil
	case "some":
		return false, nil
	case "all":
		return len(items) > 0, nil
	case "none":
		return true, nil
	case "count":
		return float64(len(matched)), nil
	default:
		if matched == nil {
			matched = []any{}
		}
		return matched, nil
	}
}

func (e *evaluator) evalIn(n *In, data any) (any, error) {
	needle, err := e.eval(n.Needle, data)
	if err != nil {
		return nil, err
	}
	haystack, err := e.eval(n.Haystack, data)
	if err != nil {
		return nil, err
	}
	switch h := haystack.(type) {
	case string:
		return strings.Contains(h, toDisplayString(needle)), nil
	case []any:
		for _, item := range h {
			if strictEquals(needle, item) {
				return true, nil
			}
		}
	}
	return false, nil
}
