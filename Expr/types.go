package Expr

import "opti-sql-sema/catalog"

// ResultType is the static type of an expression. TypeError absorbs: once a
// subtree yields it every ancestor does too.
type ResultType int

const (
	TypeError ResultType = iota
	TypeInt
	TypeDouble
	TypeString
	TypeBool
)

func (t ResultType) String() string {
	switch t {
	case TypeInt:
		return "int"
	case TypeDouble:
		return "double"
	case TypeString:
		return "string"
	case TypeBool:
		return "bool"
	default:
		return "error"
	}
}

func (t ResultType) IsNumeric() bool {
	return t == TypeInt || t == TypeDouble
}

// ParseResultType is the inverse of String.
func ParseResultType(s string) (ResultType, bool) {
	switch s {
	case "int":
		return TypeInt, true
	case "double":
		return TypeDouble, true
	case "string":
		return TypeString, true
	case "bool":
		return TypeBool, true
	case "error":
		return TypeError, true
	}
	return TypeError, false
}

// FromDescriptor maps a catalog attribute type. Booleans are recognized by
// IsBoolean, the rest by canonical name; anything else is an error.
func FromDescriptor(d catalog.TypeDescriptor) ResultType {
	if d == nil {
		return TypeError
	}
	if d.IsBoolean() {
		return TypeBool
	}
	switch d.CanonicalName() {
	case "int":
		return TypeInt
	case "double":
		return TypeDouble
	case "string":
		return TypeString
	}
	return TypeError
}
