// Package query translates composable, lazily evaluated queries over entity
// properties into the store filter algebra.
//
// Predicates are built from a closed expression tree:
//
//	query.And(
//		query.Prop("Scope").Eq(scopeID),
//		query.Not(query.Prop("Name").Contains("tmp")),
//	)
//
// Every node the converter does not know how to translate is rejected with an
// UNSUPPORTED_EXPRESSION error when the predicate is attached to a query.
package query

import "fmt"

// Expr is a boolean expression node. Implementations: AndExpr, OrExpr,
// NotExpr, Literal, Comparison, Call, AnyExpr and Property.
type Expr interface {
	isExpr()
	String() string
}

// Operand is a value position of a Comparison or Call. Implementations:
// Property, Constant and Computed.
type Operand interface {
	isOperand()
	String() string
}

// Op is a comparison operator.
type Op string

const (
	OpEq Op = "=="
	OpNe Op = "!="
	OpLt Op = "<"
	OpLe Op = "<="
	OpGt Op = ">"
	OpGe Op = ">="
)

// AndExpr is a logical conjunction.
type AndExpr struct{ Left, Right Expr }

// OrExpr is a logical disjunction.
type OrExpr struct{ Left, Right Expr }

// NotExpr is a logical negation.
type NotExpr struct{ Operand Expr }

// Literal is a boolean constant.
type Literal struct{ Value bool }

// Comparison compares two operands.
type Comparison struct {
	Op    Op
	Left  Operand
	Right Operand
}

// Call is a method call on an operand, for example a string Contains.
type Call struct {
	Method string
	Target Operand
	Args   []Operand
}

// AnyExpr tests whether any element of a nested collection property
// satisfies Predicate.
type AnyExpr struct {
	Collection string
	Predicate  Expr
}

// Property is an entity property access. As an Expr it stands for a boolean
// property, which stores cannot evaluate.
type Property struct{ Name string }

// Constant is a literal value.
type Constant struct{ Value any }

// Computed is a value computed when the predicate is converted.
type Computed struct {
	Description string
	Fn          func() any
}

func (AndExpr) isExpr()    {}
func (OrExpr) isExpr()     {}
func (NotExpr) isExpr()    {}
func (Literal) isExpr()    {}
func (Comparison) isExpr() {}
func (Call) isExpr()       {}
func (AnyExpr) isExpr()    {}
func (Property) isExpr()   {}

func (Property) isOperand() {}
func (Constant) isOperand() {}
func (Computed) isOperand() {}

func (e AndExpr) String() string    { return fmt.Sprintf("(%s && %s)", e.Left, e.Right) }
func (e OrExpr) String() string     { return fmt.Sprintf("(%s || %s)", e.Left, e.Right) }
func (e NotExpr) String() string    { return fmt.Sprintf("!%s", e.Operand) }
func (e Literal) String() string    { return fmt.Sprint(e.Value) }
func (e Comparison) String() string { return fmt.Sprintf("(%s %s %s)", e.Left, e.Op, e.Right) }
func (e Call) String() string       { return fmt.Sprintf("%s.%s(%v)", e.Target, e.Method, e.Args) }
func (e AnyExpr) String() string    { return fmt.Sprintf("%s.Any(%s)", e.Collection, e.Predicate) }
func (p Property) String() string   { return "x." + p.Name }
func (c Constant) String() string   { return fmt.Sprintf("%#v", c.Value) }
func (c Computed) String() string   { return "{" + c.Description + "}" }

// And folds exprs into a left-nested conjunction. No operand yields true.
func And(exprs ...Expr) Expr {
	if len(exprs) == 0 {
		return Literal{Value: true}
	}
	result := exprs[0]
	for _, e := range exprs[1:] {
		result = AndExpr{Left: result, Right: e}
	}
	return result
}

// Or folds exprs into a left-nested disjunction. No operand yields false.
func Or(exprs ...Expr) Expr {
	if len(exprs) == 0 {
		return Literal{Value: false}
	}
	result := exprs[0]
	for _, e := range exprs[1:] {
		result = OrExpr{Left: result, Right: e}
	}
	return result
}

// Not negates e.
func Not(e Expr) Expr { return NotExpr{Operand: e} }

// True is the always-true predicate.
func True() Expr { return Literal{Value: true} }

// False is the always-false predicate.
func False() Expr { return Literal{Value: false} }

// Prop references an entity property by name.
func Prop(name string) Property { return Property{Name: name} }

// Val wraps a constant.
func Val(v any) Constant { return Constant{Value: v} }

// Compute wraps a value computed at conversion time.
func Compute(description string, fn func() any) Computed {
	return Computed{Description: description, Fn: fn}
}

// Any builds a predicate over a nested collection property.
func Any(collection string, predicate Expr) Expr {
	return AnyExpr{Collection: collection, Predicate: predicate}
}

// Compare builds a comparison between two arbitrary operands.
func Compare(left Operand, op Op, right Operand) Expr {
	return Comparison{Op: op, Left: left, Right: right}
}

func operand(v any) Operand {
	if o, ok := v.(Operand); ok {
		return o
	}
	return Constant{Value: v}
}

func (p Property) Eq(v any) Expr { return Comparison{Op: OpEq, Left: p, Right: operand(v)} }
func (p Property) Ne(v any) Expr { return Comparison{Op: OpNe, Left: p, Right: operand(v)} }
func (p Property) Lt(v any) Expr { return Comparison{Op: OpLt, Left: p, Right: operand(v)} }
func (p Property) Le(v any) Expr { return Comparison{Op: OpLe, Left: p, Right: operand(v)} }
func (p Property) Gt(v any) Expr { return Comparison{Op: OpGt, Left: p, Right: operand(v)} }
func (p Property) Ge(v any) Expr { return Comparison{Op: OpGe, Left: p, Right: operand(v)} }

// Contains is a substring test on a string property.
func (p Property) Contains(v any) Expr {
	return Call{Method: "Contains", Target: p, Args: []Operand{operand(v)}}
}

// StartsWith is a prefix test. Stores have no prefix comparator, so the
// converter rejects it.
func (p Property) StartsWith(v any) Expr {
	return Call{Method: "StartsWith", Target: p, Args: []Operand{operand(v)}}
}
