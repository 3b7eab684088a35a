package Expr

import (
	"fmt"

	"opti-sql-sema/catalog"
)

// TableRef is one FROM-clause entry.
type TableRef struct {
	Table string
	Alias string
}

// Scope is the ordered FROM clause of a query. Lookups are by alias and the
// first match wins, so an earlier entry shadows a later duplicate.
type Scope []TableRef

func NewScope(refs ...TableRef) Scope {
	return Scope(refs)
}

// Resolve returns the actual table name bound to alias.
func (s Scope) Resolve(alias string) (string, bool) {
	for _, ref := range s {
		if ref.Alias == alias {
			return ref.Table, true
		}
	}
	return "", false
}

// Checker computes result types. It carries fail-fast state, so a Checker
// must not be shared between goroutines; the catalog and scope are only read.
type Checker struct {
	Catalog  catalog.Catalog
	Scope    Scope
	Reporter Reporter // nil discards diagnostics
	// FailFast stops evaluating further nodes once any node was rejected.
	FailFast bool

	failed bool
}

func NewChecker(cat catalog.Catalog, scope Scope, reporter Reporter) *Checker {
	return &Checker{Catalog: cat, Scope: scope, Reporter: reporter}
}

// Check type checks e bottom-up.
func (c *Checker) Check(e Expression) ResultType {
	c.failed = false
	return c.check(e)
}

// TypeCheck is the one-shot form: it returns the result type and every
// diagnostic raised while computing it.
func TypeCheck(e Expression, cat catalog.Catalog, scope Scope) (ResultType, []Diagnostic) {
	var diags DiagnosticList
	t := NewChecker(cat, scope, &diags).Check(e)
	return t, diags
}

func (c *Checker) reject(node Expression, err error, types ...ResultType) ResultType {
	c.failed = true
	if c.Reporter != nil {
		c.Reporter.Report(Diagnostic{Node: node.String(), Types: types, Err: err})
	}
	return TypeError
}

func (c *Checker) check(e Expression) ResultType {
	if c.FailFast && c.failed {
		return TypeError
	}
	switch n := e.(type) {
	case *BoolLiteral:
		return TypeBool
	case *IntLiteral:
		return TypeInt
	case *DoubleLiteral:
		return TypeDouble
	case *StringLiteral:
		return TypeString
	case *Identifier:
		return c.checkIdentifier(n)
	case *ArithmeticExpr:
		left := c.check(n.Left)
		right := c.check(n.Right)
		if left == TypeError || right == TypeError {
			return TypeError
		}
		return c.checkArithmetic(n, left, right)
	case *ComparisonExpr:
		left := c.check(n.Left)
		right := c.check(n.Right)
		if left == TypeError || right == TypeError {
			return TypeError
		}
		return c.checkComparison(n, left, right)
	case *OrExpr:
		left := c.check(n.Left)
		right := c.check(n.Right)
		if left == TypeError || right == TypeError {
			return TypeError
		}
		if left != TypeBool || right != TypeBool {
			return c.reject(n, ErrNonBooleanOr(left, right), left, right)
		}
		return TypeBool
	case *NotExpr:
		operand := c.check(n.Expr)
		if operand == TypeError {
			return TypeError
		}
		if operand != TypeBool {
			return c.reject(n, ErrNonBooleanNot(operand), operand)
		}
		return TypeBool
	case *AggregateExpr:
		operand := c.check(n.Expr)
		if operand == TypeError {
			return TypeError
		}
		return c.checkAggregate(n, operand)
	default:
		panic(ErrUnsupportedExpression(fmt.Sprintf("%T", e)))
	}
}

func (c *Checker) checkIdentifier(n *Identifier) ResultType {
	table, ok := c.Scope.Resolve(n.Table)
	if !ok {
		return c.reject(n, ErrUnknownAlias(n.Table))
	}
	if c.Catalog == nil {
		return c.reject(n, ErrUnknownTable(table))
	}
	schema, ok := c.Catalog.LookupTable(table)
	if !ok {
		return c.reject(n, ErrUnknownTable(table))
	}
	col, ok := schema.LookupAttribute(n.Column)
	if !ok {
		return c.reject(n, ErrUnknownAttribute(table, n.Column))
	}
	t := FromDescriptor(col.Type)
	if t == TypeError {
		name := "<nil>"
		if col.Type != nil {
			name = col.Type.CanonicalName()
		}
		return c.reject(n, ErrUnrecognizedAttributeType(table, n.Column, name))
	}
	return t
}

var arithmeticVerbs = map[ArithmeticOp]string{
	Plus:   "add",
	Minus:  "subtract",
	Times:  "multiply",
	Divide: "divide",
}

// checkArithmetic assumes neither operand is an error.
func (c *Checker) checkArithmetic(n *ArithmeticExpr, left, right ResultType) ResultType {
	verb := arithmeticVerbs[n.Op]
	if left == TypeString || right == TypeString {
		// + on strings concatenates, whatever the other side is
		if n.Op == Plus {
			return TypeString
		}
		return c.reject(n, ErrInvalidArithmetic(verb, TypeString), left, right)
	}
	if left == TypeBool || right == TypeBool {
		return c.reject(n, ErrInvalidArithmetic(verb, TypeBool), left, right)
	}
	if n.Op == Divide {
		return TypeDouble
	}
	if left == TypeInt && right == TypeInt {
		return TypeInt
	}
	return TypeDouble
}

func (c *Checker) checkComparison(n *ComparisonExpr, left, right ResultType) ResultType {
	if left == TypeString || right == TypeString {
		if left != right {
			return c.reject(n, ErrIncomparable(left, right), left, right)
		}
		return TypeBool
	}
	if left.IsNumeric() && right.IsNumeric() {
		return TypeBool
	}
	return c.reject(n, ErrIncomparable(left, right), left, right)
}

func (c *Checker) checkAggregate(n *AggregateExpr, operand ResultType) ResultType {
	if !operand.IsNumeric() {
		return c.reject(n, ErrNonNumericAggregate(n.Func, operand), operand)
	}
	if n.Func == Avg {
		return TypeDouble
	}
	return operand
}
