package Expr

import "opti-sql-sema/catalog"

type Options struct {
	FailFast bool
	// UniformTraversal switches the aggregate and attribute passes to
	// ContainsAggregate and CollectAllAttributes.
	UniformTraversal bool
	// Reporter also receives every diagnostic, e.g. a LogReporter.
	Reporter Reporter
}

// Analysis is everything the compiler asks of one expression.
type Analysis struct {
	Type       ResultType
	Aggregate  bool
	Attributes []Attribute
	Canonical  string
	// Diagnostics is empty exactly when Type is not TypeError.
	Diagnostics []Diagnostic
}

func (a Analysis) OK() bool {
	return a.Type != TypeError
}

// Analyze type checks e and, when it is well typed, classifies it and
// collects its column references. A rejected expression gets neither.
func Analyze(e Expression, cat catalog.Catalog, scope Scope, opts Options) Analysis {
	var diags DiagnosticList
	checker := NewChecker(cat, scope, MultiReporter(&diags, opts.Reporter))
	checker.FailFast = opts.FailFast

	out := Analysis{
		Type:      checker.Check(e),
		Canonical: Canonical(e),
	}
	out.Diagnostics = diags
	if out.Type == TypeError {
		return out
	}

	attrs := NewAttributeSet()
	if opts.UniformTraversal {
		out.Aggregate = ContainsAggregate(e)
		CollectAllAttributes(e, attrs)
	} else {
		out.Aggregate = IsAggregate(e)
		CollectReferencedAttributes(e, attrs)
	}
	out.Attributes = attrs.Sorted()
	return out
}
