package jfn

// Kind identifies the variant of an expression node.
type Kind string

const (
	KindLiteral Kind = "literal"
	KindList    Kind = "list"
	KindObject  Kind = "object"
	KindVar     Kind = "var"
	KindCompare Kind = "compare"
	KindLogic   Kind = "logic"
	KindNot     Kind = "not"
	KindArith   Kind = "arith"
	KindTime    Kind = "time"
	KindIf      Kind = "if"
	KindLet     Kind = "let"
	KindCall    Kind = "call"
	KindListOp  Kind = "listop"
	KindIn      Kind = "in"
	KindString  Kind = "string"
)

// Node is one parsed expression. The set of implementations is closed:
// only this package can add variants.
type Node interface {
	Kind() Kind
	// Pos is the node's location inside its descriptor, e.g. "/logic/if/2".
	Pos() string
	node()
}

type base struct {
	pos string
}

func (b base) Pos() string { return b.pos }
func (base) node()         {}

// Literal is a constant value already in evaluation form.
type Literal struct {
	base
	Value any
}

// List evaluates each item.
type List struct {
	base
	Items []Node
}

// Object builds a map from evaluated fields. Fields are sorted by key.
type Object struct {
	base
	Fields []Field
}

type Field struct {
	Key   string
	Value Node
}

// Var reads a path from the current data scope.
type Var struct {
	base
	Path    []string
	Default Node
}

type Compare struct {
	base
	Op   string
	Args []Node
}

// Logic is a short-circuiting "and" / "or".
type Logic struct {
	base
	Op   string
	Args []Node
}

// Not is "!" or, with Double set, "!!".
type Not struct {
	base
	Double bool
	Arg    Node
}

type Arith struct {
	base
	Op   string
	Args []Node
}

// Time covers "instant", "plusTime" and "diffTime".
type Time struct {
	base
	Op   string
	Args []Node
}

// If holds condition/branch pairs and an optional else branch.
// Only the taken branch is evaluated.
type If struct {
	base
	Branches []Branch
	Else     Node
}

type Branch struct {
	Cond Node
	Then Node
}

// Let evaluates bindings in order; each sees the previous ones.
type Let struct {
	base
	Bindings []Binding
	Body     Node
}

type Binding struct {
	Name  string
	Value Node
}

// Call invokes another descriptor or a builtin by name. Params, when
// present, must evaluate to an object that becomes the callee's scope.
type Call struct {
	base
	Name   string
	Params Node
}

// ListOp is map/filter/find/some/all/none/count. Fn is evaluated with
// each element as its data scope.
type ListOp struct {
	base
	Op   string
	List Node
	Fn   Node
}

type In struct {
	base
	Needle   Node
	Haystack Node
}

// String covers the string helpers (cat, toUpperCase, ...).
type String struct {
	base
	Op   string
	Args []Node
}

func (*Literal) Kind() Kind { return KindLiteral }
func (*List) Kind() Kind    { return KindList }
func (*Object) Kind() Kind  { return KindObject }
func (*Var) Kind() Kind     { return KindVar }
func (*Compare) Kind() Kind { return KindCompare }
func (*Logic) Kind() Kind   { return KindLogic }
func (*Not) Kind() Kind     { return KindNot }
func (*Arith) Kind() Kind   { return KindArith }
func (*Time) Kind() Kind    { return KindTime }
func (*If) Kind() Kind      { return KindIf }
func (*Let) Kind() Kind     { return KindLet }
func (*Call) Kind() Kind    { return KindCall }
func (*ListOp) Kind() Kind  { return KindListOp }
func (*In) Kind() Kind      { return KindIn }
func (*String) Kind() Kind  { return KindString }

// Walk calls fn for n and every node below it, depth first.
func Walk(n Node, fn func(Node)) {
	if n == nil {
		return
	}
	fn(n)
	switch v := n.(type) {
	case *Var:
		Walk(v.Default, fn)
	case *List:
		walkAll(v.Items, fn)
	case *Object:
		for _, f := range v.Fields {
			Walk(f.Value, fn)
		}
	case *Compare:
		walkAll(v.Args, fn)
	case *Logic:
		walkAll(v.Args, fn)
	case *Not:
		Walk(v.Arg, fn)
	case *Arith:
		walkAll(v.Args, fn)
	case *Time:
		walkAll(v.Args, fn)
	case *If:
		for _, b := range v.Branches {
			Walk(b.Cond, fn)
			Walk(b.Then, fn)
		}
		Walk(v.Else, fn)
	case *Let:
		for _, b := range v.Bindings {
			Walk(b.Value, fn)
		}
		Walk(v.Body, fn)
	case *Call:
		Walk(v.Params, fn)
	case *ListOp:
		Walk(v.List, fn)
		Walk(v.Fn, fn)
	case *In:
		Walk(v.Needle, fn)
		Walk(v.Haystack, fn)
	case *String:
		walkAll(v.Args, fn)
	}
}

func walkAll(nodes []Node, fn func(Node)) {
	for _, n := range nodes {
		Walk(n, fn)
	}
}
