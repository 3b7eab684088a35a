package Expr

import "fmt"

// IsAggregate reports whether e computes over many rows. Only arithmetic
// propagates the answer from its children; comparison, Or and Not report
// false even when an operand is an aggregate. Hosts that need the full
// answer use ContainsAggregate.
func IsAggregate(e Expression) bool {
	switch n := e.(type) {
	case *BoolLiteral, *IntLiteral, *DoubleLiteral, *StringLiteral, *Identifier:
		return false
	case *AggregateExpr:
		return true
	case *ArithmeticExpr:
		return IsAggregate(n.Left) || IsAggregate(n.Right)
	case *ComparisonExpr, *OrExpr, *NotExpr:
		return false
	default:
		panic(ErrUnsupportedExpression(fmt.Sprintf("%T", e)))
	}
}

// ContainsAggregate reports whether any node of e is sum or avg.
func ContainsAggregate(e Expression) bool {
	switch n := e.(type) {
	case *BoolLiteral, *IntLiteral, *DoubleLiteral, *StringLiteral, *Identifier:
		return false
	case *AggregateExpr:
		return true
	case *ArithmeticExpr:
		return ContainsAggregate(n.Left) || ContainsAggregate(n.Right)
	case *ComparisonExpr:
		return ContainsAggregate(n.Left) || ContainsAggregate(n.Right)
	case *OrExpr:
		return ContainsAggregate(n.Left) || ContainsAggregate(n.Right)
	case *NotExpr:
		return ContainsAggregate(n.Expr)
	default:
		panic(ErrUnsupportedExpression(fmt.Sprintf("%T", e)))
	}
}
