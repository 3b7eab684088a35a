package catalog

import (
	"fmt"
	"strings"

	"github.com/apache/arrow/go/v17/arrow"
)

var (
	ErrUnsupportedType = func(name string) error {
		return fmt.Errorf("unsupported arrow type: %s", name)
	}
)

type SchemaBuilder struct {
	fields []arrow.Field
}

func NewSchemaBuilder() *SchemaBuilder {
	return &SchemaBuilder{fields: make([]arrow.Field, 0, 10)}
}

func (sb *SchemaBuilder) WithField(name string, dtype arrow.DataType, nullable bool) *SchemaBuilder {
	sb.fields = append(sb.fields, arrow.Field{
		Name:     name,
		Type:     dtype,
		Nullable: nullable,
	})
	return sb
}

func (sb *SchemaBuilder) WithoutField(names ...string) *SchemaBuilder {
	nameSet := make(map[string]struct{}, len(names))
	for _, n := range names {
		nameSet[n] = struct{}{}
	}

	newFields := make([]arrow.Field, 0, len(sb.fields))
	for _, field := range sb.fields {
		if _, found := nameSet[field.Name]; !found {
			newFields = append(newFields, field)
		}
	}
	sb.fields = newFields
	return sb
}

func (sb *SchemaBuilder) Build() *arrow.Schema {
	return arrow.NewSchema(sb.fields, nil)
}

// ParseArrowType accepts arrow's own type strings plus the expression layer's
// names ("int", "double", "string").
func ParseArrowType(s string) (arrow.DataType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "null":
		return arrow.Null, nil
	case "bool", "boolean":
		return arrow.FixedWidthTypes.Boolean, nil

	case "int8":
		return arrow.PrimitiveTypes.Int8, nil
	case "int16":
		return arrow.PrimitiveTypes.Int16, nil
	case "int32":
		return arrow.PrimitiveTypes.Int32, nil
	case "int64", "int":
		return arrow.PrimitiveTypes.Int64, nil

	case "uint8":
		return arrow.PrimitiveTypes.Uint8, nil
	case "uint16":
		return arrow.PrimitiveTypes.Uint16, nil
	case "uint32":
		return arrow.PrimitiveTypes.Uint32, nil
	case "uint64":
		return arrow.PrimitiveTypes.Uint64, nil

	case "float16":
		return arrow.FixedWidthTypes.Float16, nil
	case "float32":
		return arrow.PrimitiveTypes.Float32, nil
	case "float64", "double":
		return arrow.PrimitiveTypes.Float64, nil

	case "string", "utf8":
		return arrow.BinaryTypes.String, nil
	case "large_string", "large_utf8":
		return arrow.BinaryTypes.LargeString, nil

	case "binary":
		return arrow.BinaryTypes.Binary, nil
	case "large_binary":
		return arrow.BinaryTypes.LargeBinary, nil

	case "date32":
		return arrow.FixedWidthTypes.Date32, nil
	case "date64":
		return arrow.FixedWidthTypes.Date64, nil
	}

	return nil, ErrUnsupportedType(s)
}
