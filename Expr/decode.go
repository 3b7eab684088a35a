package Expr

import (
	"fmt"
	"math"
	"strings"

	"gopkg.in/yaml.v3"
)

// Expression documents let hosts without a SQL parser hand trees to the
// checker. A node is a map holding exactly one of
//
//	bool: true                    int: 3          double: 1.5
//	string: abc                   ident: r.a      ident: {table: r, column: a}
//	op: "+", left: {...}, right: {...}   (+ - * / > < == != ||)
//	op: "!", child: {...}                (! sum avg)
//
// A request document wraps the tree with its FROM clause:
//
//	expr: {...}
//	scope: [{table: R, alias: r}]

var (
	ErrMalformedDocument = func(path, info string) error {
		return fmt.Errorf("malformed expression at %s: %s", path, info)
	}
	ErrMaxDepth = func(path string, max int) error {
		return fmt.Errorf("malformed expression at %s: nesting exceeds max depth %d", path, max)
	}
)

var nodeKinds = []string{"bool", "int", "double", "string", "ident", "op"}

var binaryOps = map[string]func(l, r Expression) Expression{
	"+":  func(l, r Expression) Expression { return NewArithmeticExpr(l, Plus, r) },
	"-":  func(l, r Expression) Expression { return NewArithmeticExpr(l, Minus, r) },
	"*":  func(l, r Expression) Expression { return NewArithmeticExpr(l, Times, r) },
	"/":  func(l, r Expression) Expression { return NewArithmeticExpr(l, Divide, r) },
	">":  func(l, r Expression) Expression { return NewComparisonExpr(l, GreaterThan, r) },
	"<":  func(l, r Expression) Expression { return NewComparisonExpr(l, LessThan, r) },
	"==": func(l, r Expression) Expression { return NewComparisonExpr(l, Equal, r) },
	"!=": func(l, r Expression) Expression { return NewComparisonExpr(l, NotEqual, r) },
	"||": func(l, r Expression) Expression { return NewOrExpr(l, r) },
}

var unaryOps = map[string]func(c Expression) Expression{
	"!":   func(c Expression) Expression { return NewNotExpr(c) },
	"sum": func(c Expression) Expression { return NewAggregateExpr(Sum, c) },
	"avg": func(c Expression) Expression { return NewAggregateExpr(Avg, c) },
}

// Decoder turns documents into trees. MaxDepth caps nesting, 0 means no cap.
type Decoder struct {
	MaxDepth int
}

func NewDecoder(maxDepth int) *Decoder {
	return &Decoder{MaxDepth: maxDepth}
}

// Decode builds the tree rooted at doc.
func (d *Decoder) Decode(doc map[string]any) (Expression, error) {
	return d.node(doc, "expr", 1)
}

// DecodeRequest reads the {expr, scope} wrapper.
func (d *Decoder) DecodeRequest(doc map[string]any) (Expression, Scope, error) {
	raw, ok := doc["expr"]
	if !ok {
		return nil, nil, ErrMalformedDocument("$", "missing expr")
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, nil, ErrMalformedDocument("expr", fmt.Sprintf("expected a map, got %T", raw))
	}
	e, err := d.Decode(m)
	if err != nil {
		return nil, nil, err
	}
	scope, err := DecodeScope(doc["scope"])
	if err != nil {
		return nil, nil, err
	}
	return e, scope, nil
}

// DecodeYAML parses a request document in yaml (json is accepted too).
func (d *Decoder) DecodeYAML(data []byte) (Expression, Scope, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("parse expression document: %w", err)
	}
	if doc == nil {
		return nil, nil, ErrMalformedDocument("$", "empty document")
	}
	return d.DecodeRequest(doc)
}

func (d *Decoder) node(doc map[string]any, path string, depth int) (Expression, error) {
	if d.MaxDepth > 0 && depth > d.MaxDepth {
		return nil, ErrMaxDepth(path, d.MaxDepth)
	}
	kind := ""
	for _, k := range nodeKinds {
		if _, ok := doc[k]; !ok {
			continue
		}
		if kind != "" {
			return nil, ErrMalformedDocument(path, fmt.Sprintf("both %q and %q present", kind, k))
		}
		kind = k
	}
	if kind == "" {
		return nil, ErrMalformedDocument(path, "expected one of "+strings.Join(nodeKinds, ", "))
	}
	v := doc[kind]

	switch kind {
	case "bool":
		b, ok := v.(bool)
		if !ok {
			return nil, ErrMalformedDocument(path, fmt.Sprintf("bool value has type %T", v))
		}
		return NewBoolLiteral(b), nil
	case "int":
		i, err := toInt64(v)
		if err != nil {
			return nil, ErrMalformedDocument(path, err.Error())
		}
		return NewIntLiteral(i), nil
	case "double":
		f, err := toFloat64(v)
		if err != nil {
			return nil, ErrMalformedDocument(path, err.Error())
		}
		return NewDoubleLiteral(f), nil
	case "string":
		s, ok := v.(string)
		if !ok {
			return nil, ErrMalformedDocument(path, fmt.Sprintf("string value has type %T", v))
		}
		return &StringLiteral{Value: s}, nil
	case "ident":
		return decodeIdent(v, path)
	}

	op, ok := v.(string)
	if !ok {
		return nil, ErrMalformedDocument(path, fmt.Sprintf("op has type %T", v))
	}
	if build, ok := binaryOps[op]; ok {
		left, err := d.child(doc, "left", path, depth)
		if err != nil {
			return nil, err
		}
		right, err := d.child(doc, "right", path, depth)
		if err != nil {
			return nil, err
		}
		return build(left, right), nil
	}
	if build, ok := unaryOps[op]; ok {
		c, err := d.child(doc, "child", path, depth)
		if err != nil {
			return nil, err
		}
		return build(c), nil
	}
	return nil, ErrMalformedDocument(path, fmt.Sprintf("unknown op %q", op))
}

func (d *Decoder) child(doc map[string]any, key, path string, depth int) (Expression, error) {
	childPath := path + "." + key
	raw, ok := doc[key]
	if !ok {
		return nil, ErrMalformedDocument(path, "missing "+key)
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, ErrMalformedDocument(childPath, fmt.Sprintf("expected a map, got %T", raw))
	}
	return d.node(m, childPath, depth+1)
}

func decodeIdent(v any, path string) (Expression, error) {
	switch id := v.(type) {
	case string:
		alias, column, ok := strings.Cut(id, ".")
		if !ok || alias == "" || column == "" {
			return nil, ErrMalformedDocument(path, fmt.Sprintf("ident %q is not alias.column", id))
		}
		return NewIdentifier(alias, column), nil
	case map[string]any:
		table, _ := id["table"].(string)
		column, _ := id["column"].(string)
		if table == "" || column == "" {
			return nil, ErrMalformedDocument(path, "ident needs table and column")
		}
		return NewIdentifier(table, column), nil
	}
	return nil, ErrMalformedDocument(path, fmt.Sprintf("ident has type %T", v))
}

// toInt64 accepts whole floats since structpb and json carry every number
// as a double.
func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	case uint64:
		if n > math.MaxInt64 {
			return 0, fmt.Errorf("int value %d overflows int64", n)
		}
		return int64(n), nil
	case float64:
		if n != math.Trunc(n) || n < math.MinInt64 || n >= math.MaxInt64 {
			return 0, fmt.Errorf("int value %v is not a whole int64", n)
		}
		return int64(n), nil
	}
	return 0, fmt.Errorf("int value has type %T", v)
}

func toFloat64(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	}
	return 0, fmt.Errorf("double value has type %T", v)
}

// DecodeScope reads the FROM clause: a list of {table, alias} maps or bare
// table names. A missing alias defaults to the table name. nil is an empty
// scope.
func DecodeScope(v any) (Scope, error) {
	if v == nil {
		return Scope{}, nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil, ErrMalformedDocument("scope", fmt.Sprintf("expected a list, got %T", v))
	}
	scope := make(Scope, 0, len(list))
	for i, item := range list {
		path := fmt.Sprintf("scope[%d]", i)
		switch ref := item.(type) {
		case string:
			if ref == "" {
				return nil, ErrMalformedDocument(path, "empty table name")
			}
			scope = append(scope, TableRef{Table: ref, Alias: ref})
		case map[string]any:
			table, _ := ref["table"].(string)
			alias, _ := ref["alias"].(string)
			if table == "" {
				return nil, ErrMalformedDocument(path, "missing table")
			}
			if alias == "" {
				alias = table
			}
			scope = append(scope, TableRef{Table: table, Alias: alias})
		default:
			return nil, ErrMalformedDocument(path, fmt.Sprintf("unexpected %T", item))
		}
	}
	return scope, nil
}

// Encode is the inverse of Decode.
func Encode(e Expression) map[string]any {
	switch n := e.(type) {
	case *BoolLiteral:
		return map[string]any{"bool": n.Value}
	case *IntLiteral:
		return map[string]any{"int": n.Value}
	case *DoubleLiteral:
		return map[string]any{"double": n.Value}
	case *StringLiteral:
		return map[string]any{"string": n.Value}
	case *Identifier:
		return map[string]any{"ident": map[string]any{"table": n.Table, "column": n.Column}}
	case *ArithmeticExpr:
		return map[string]any{"op": n.Op.Symbol(), "left": Encode(n.Left), "right": Encode(n.Right)}
	case *ComparisonExpr:
		return map[string]any{"op": n.Op.Symbol(), "left": Encode(n.Left), "right": Encode(n.Right)}
	case *OrExpr:
		return map[string]any{"op": "||", "left": Encode(n.Left), "right": Encode(n.Right)}
	case *NotExpr:
		return map[string]any{"op": "!", "child": Encode(n.Expr)}
	case *AggregateExpr:
		return map[string]any{"op": n.Func.Name(), "child": Encode(n.Expr)}
	default:
		panic(ErrUnsupportedExpression(fmt.Sprintf("%T", e)))
	}
}

// EncodeScope renders a scope in the shape DecodeScope reads.
func EncodeScope(s Scope) []any {
	out := make([]any, len(s))
	for i, ref := range s {
		out[i] = map[string]any{"table": ref.Table, "alias": ref.Alias}
	}
	return out
}
