package Expr

import (
	"fmt"
	"sort"
)

// Attribute is a column reference as written in the query, alias not resolved.
type Attribute struct {
	Alias  string
	Column string
}

func (a Attribute) String() string {
	return a.Alias + "." + a.Column
}

// AttributeSet dedups references by (alias, column).
type AttributeSet map[Attribute]struct{}

func NewAttributeSet() AttributeSet {
	return make(AttributeSet)
}

func (s AttributeSet) Add(a Attribute) {
	s[a] = struct{}{}
}

func (s AttributeSet) Contains(a Attribute) bool {
	_, ok := s[a]
	return ok
}

// Sorted returns the members ordered by alias, then column.
func (s AttributeSet) Sorted() []Attribute {
	out := make([]Attribute, 0, len(s))
	for a := range s {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Alias != out[j].Alias {
			return out[i].Alias < out[j].Alias
		}
		return out[i].Column < out[j].Column
	})
	return out
}

// CollectReferencedAttributes adds to out the identifiers reachable through
// arithmetic only. Comparison, Or, Not and the aggregates are not entered, so
// a column referenced under them is not collected; CollectAllAttributes
// walks the whole tree.
func CollectReferencedAttributes(e Expression, out AttributeSet) {
	switch n := e.(type) {
	case *Identifier:
		out.Add(Attribute{Alias: n.Table, Column: n.Column})
	case *ArithmeticExpr:
		CollectReferencedAttributes(n.Left, out)
		CollectReferencedAttributes(n.Right, out)
	case *BoolLiteral, *IntLiteral, *DoubleLiteral, *StringLiteral,
		*ComparisonExpr, *OrExpr, *NotExpr, *AggregateExpr:
	default:
		panic(ErrUnsupportedExpression(fmt.Sprintf("%T", e)))
	}
}

func CollectAllAttributes(e Expression, out AttributeSet) {
	switch n := e.(type) {
	case *Identifier:
		out.Add(Attribute{Alias: n.Table, Column: n.Column})
	case *ArithmeticExpr:
		CollectAllAttributes(n.Left, out)
		CollectAllAttributes(n.Right, out)
	case *ComparisonExpr:
		CollectAllAttributes(n.Left, out)
		CollectAllAttributes(n.Right, out)
	case *OrExpr:
		CollectAllAttributes(n.Left, out)
		CollectAllAttributes(n.Right, out)
	case *NotExpr:
		CollectAllAttributes(n.Expr, out)
	case *AggregateExpr:
		CollectAllAttributes(n.Expr, out)
	case *BoolLiteral, *IntLiteral, *DoubleLiteral, *StringLiteral:
	default:
		panic(ErrUnsupportedExpression(fmt.Sprintf("%T", e)))
	}
}
