package Expr

import (
	"strconv"
	"strings"
)

// Canonical rendering, prefix notation:
//
//	int[3]  double[1.500000]  string[abc]  bool[true]  [r_a]
//	+ (int[3], int[4])   !(bool[true])   sum([r_a])
//
// Doubles always carry six fractional digits so the text does not depend on
// the shortest round-trip representation.

func (b *BoolLiteral) String() string {
	if b.Value {
		return "bool[true]"
	}
	return "bool[false]"
}

func (i *IntLiteral) String() string {
	return "int[" + strconv.FormatInt(i.Value, 10) + "]"
}

func (d *DoubleLiteral) String() string {
	return "double[" + strconv.FormatFloat(d.Value, 'f', 6, 64) + "]"
}

func (s *StringLiteral) String() string {
	return "string[" + s.Value + "]"
}

func (i *Identifier) String() string {
	return "[" + i.Table + "_" + i.Column + "]"
}

func (a *ArithmeticExpr) String() string {
	return binaryString(a.Op.Symbol(), a.Left, a.Right)
}

func (c *ComparisonExpr) String() string {
	return binaryString(c.Op.Symbol(), c.Left, c.Right)
}

func (o *OrExpr) String() string {
	return binaryString("||", o.Left, o.Right)
}

func (n *NotExpr) String() string {
	return "!(" + n.Expr.String() + ")"
}

func (a *AggregateExpr) String() string {
	return a.Func.Name() + "(" + a.Expr.String() + ")"
}

func binaryString(symbol string, left, right Expression) string {
	var sb strings.Builder
	sb.WriteString(symbol)
	sb.WriteString(" (")
	sb.WriteString(left.String())
	sb.WriteString(", ")
	sb.WriteString(right.String())
	sb.WriteString(")")
	return sb.String()
}

// Canonical returns the canonical text of e; nil renders as "<nil>".
func Canonical(e Expression) string {
	if e == nil {
		return "<nil>"
	}
	return e.String()
}
