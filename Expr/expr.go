package Expr

import (
	"fmt"
)

var (
	ErrUnsupportedExpression = func(info string) error {
		return fmt.Errorf("unsupported expression: %s", info)
	}
)

type ArithmeticOp int

const (
	Plus ArithmeticOp = iota + 1
	Minus
	Times
	Divide
)

func (op ArithmeticOp) Symbol() string {
	switch op {
	case Plus:
		return "+"
	case Minus:
		return "-"
	case Times:
		return "*"
	case Divide:
		return "/"
	}
	return fmt.Sprintf("arith(%d)", int(op))
}

type ComparisonOp int

const (
	GreaterThan ComparisonOp = iota + 1
	LessThan
	Equal
	NotEqual
)

func (op ComparisonOp) Symbol() string {
	switch op {
	case GreaterThan:
		return ">"
	case LessThan:
		return "<"
	case Equal:
		return "=="
	case NotEqual:
		return "!="
	}
	return fmt.Sprintf("cmp(%d)", int(op))
}

type AggregateFunc int

const (
	Sum AggregateFunc = iota + 1
	Avg
)

func (f AggregateFunc) Name() string {
	switch f {
	case Sum:
		return "sum"
	case Avg:
		return "avg"
	}
	return fmt.Sprintf("agg(%d)", int(f))
}

var (
	_ = (Expression)(&BoolLiteral{})
	_ = (Expression)(&IntLiteral{})
	_ = (Expression)(&DoubleLiteral{})
	_ = (Expression)(&StringLiteral{})
	_ = (Expression)(&Identifier{})
	_ = (Expression)(&ArithmeticExpr{})
	_ = (Expression)(&ComparisonExpr{})
	_ = (Expression)(&OrExpr{})
	_ = (Expression)(&NotExpr{})
	_ = (Expression)(&AggregateExpr{})
)

/*
Expression is a closed set: the unexported marker keeps other packages from
adding variants, and every analysis below is a type switch over exactly these:

	BoolLiteral | IntLiteral | DoubleLiteral | StringLiteral   leaves
	Identifier                                                 leaf, alias.column
	ArithmeticExpr  (+ - * /)                                  binary
	ComparisonExpr  (> < == !=)                                binary
	OrExpr                                                     binary
	NotExpr                                                    unary
	AggregateExpr   (sum avg)                                  unary

Trees are built once by the parser and never mutated. A node owns its
children; do not share a subtree between two parents.
*/
type Expression interface {
	exprNode()
	fmt.Stringer
}

type BoolLiteral struct {
	Value bool
}

func NewBoolLiteral(v bool) *BoolLiteral {
	return &BoolLiteral{Value: v}
}
func (b *BoolLiteral) exprNode() {}

type IntLiteral struct {
	Value int64
}

func NewIntLiteral(v int64) *IntLiteral {
	return &IntLiteral{Value: v}
}
func (i *IntLiteral) exprNode() {}

type DoubleLiteral struct {
	Value float64
}

func NewDoubleLiteral(v float64) *DoubleLiteral {
	return &DoubleLiteral{Value: v}
}
func (d *DoubleLiteral) exprNode() {}

// StringLiteral holds the literal text without its quote characters.
type StringLiteral struct {
	Value string
}

// NewStringLiteral takes the lexer token, quotes included, and strips exactly
// one leading and one trailing delimiter. The token must be at least two
// bytes long; the lexer guarantees this.
func NewStringLiteral(token string) *StringLiteral {
	return &StringLiteral{Value: token[1 : len(token)-1]}
}
func (s *StringLiteral) exprNode() {}

// Identifier is alias.column. The alias is resolved against the query scope
// at check time, not here.
type Identifier struct {
	Table  string
	Column string
}

func NewIdentifier(table, column string) *Identifier {
	return &Identifier{Table: table, Column: column}
}
func (i *Identifier) exprNode() {}

type ArithmeticExpr struct {
	Op    ArithmeticOp
	Left  Expression
	Right Expression
}

func NewArithmeticExpr(left Expression, op ArithmeticOp, right Expression) *ArithmeticExpr {
	return &ArithmeticExpr{Op: op, Left: left, Right: right}
}
func (a *ArithmeticExpr) exprNode() {}

type ComparisonExpr struct {
	Op    ComparisonOp
	Left  Expression
	Right Expression
}

func NewComparisonExpr(left Expression, op ComparisonOp, right Expression) *ComparisonExpr {
	return &ComparisonExpr{Op: op, Left: left, Right: right}
}
func (c *ComparisonExpr) exprNode() {}

type OrExpr struct {
	Left  Expression
	Right Expression
}

func NewOrExpr(left, right Expression) *OrExpr {
	return &OrExpr{Left: left, Right: right}
}
func (o *OrExpr) exprNode() {}

type NotExpr struct {
	Expr Expression
}

func NewNotExpr(expr Expression) *NotExpr {
	return &NotExpr{Expr: expr}
}
func (n *NotExpr) exprNode() {}

type AggregateExpr struct {
	Func AggregateFunc
	Expr Expression
}

func NewAggregateExpr(fn AggregateFunc, expr Expression) *AggregateExpr {
	return &AggregateExpr{Func: fn, Expr: expr}
}
func (a *AggregateExpr) exprNode() {}

// shorthand constructors, mostly for tests and hosts building trees by hand

func NewPlus(l, r Expression) *ArithmeticExpr   { return NewArithmeticExpr(l, Plus, r) }
func NewMinus(l, r Expression) *ArithmeticExpr  { return NewArithmeticExpr(l, Minus, r) }
func NewTimes(l, r Expression) *ArithmeticExpr  { return NewArithmeticExpr(l, Times, r) }
func NewDivide(l, r Expression) *ArithmeticExpr { return NewArithmeticExpr(l, Divide, r) }
func NewSum(e Expression) *AggregateExpr        { return NewAggregateExpr(Sum, e) }
func NewAvg(e Expression) *AggregateExpr        { return NewAggregateExpr(Avg, e) }
