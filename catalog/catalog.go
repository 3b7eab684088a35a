package catalog

import (
	"fmt"
	"sort"
	"sync"

	"github.com/apache/arrow/go/v17/arrow"
)

var (
	ErrUnknownTable = func(name string) error {
		return fmt.Errorf("table %q not found in catalog", name)
	}
	ErrDuplicateTable = func(name string) error {
		return fmt.Errorf("table %q is already registered", name)
	}
)

// Catalog resolves table names to schemas.
type Catalog interface {
	LookupTable(name string) (Schema, bool)
}

// Schema resolves attribute names within a single table.
type Schema interface {
	LookupAttribute(name string) (Column, bool)
}

// TypeDescriptor is the catalog's view of an attribute type.
type TypeDescriptor interface {
	IsBoolean() bool
	// CanonicalName is one of "int", "double", "string", "bool" for types the
	// expression layer understands, anything else otherwise.
	CanonicalName() string
}

// Column is the (position, type) pair stored for an attribute.
type Column struct {
	Position int
	Type     TypeDescriptor
}

var (
	_ = (Catalog)(&ArrowCatalog{})
	_ = (Schema)(&ArrowSchema{})
	_ = (TypeDescriptor)(ArrowType{})
)

// ArrowCatalog keeps one arrow schema per table name.
type ArrowCatalog struct {
	mu     sync.RWMutex
	tables map[string]*arrow.Schema
}

func NewArrowCatalog() *ArrowCatalog {
	return &ArrowCatalog{tables: make(map[string]*arrow.Schema)}
}

// Register adds a table. Registering an existing name is an error; use Replace
// to overwrite.
func (c *ArrowCatalog) Register(name string, schema *arrow.Schema) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.tables[name]; ok {
		return ErrDuplicateTable(name)
	}
	c.tables[name] = schema
	return nil
}

func (c *ArrowCatalog) Replace(name string, schema *arrow.Schema) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tables[name] = schema
}

// Merge copies every table of other into c, failing on the first name clash.
func (c *ArrowCatalog) Merge(other *ArrowCatalog) error {
	for _, name := range other.Tables() {
		s, _ := other.ArrowSchema(name)
		if err := c.Register(name, s); err != nil {
			return err
		}
	}
	return nil
}

func (c *ArrowCatalog) ArrowSchema(name string) (*arrow.Schema, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.tables[name]
	return s, ok
}

func (c *ArrowCatalog) LookupTable(name string) (Schema, bool) {
	s, ok := c.ArrowSchema(name)
	if !ok {
		return nil, false
	}
	return &ArrowSchema{schema: s}, true
}

// Tables returns the registered table names in sorted order.
func (c *ArrowCatalog) Tables() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.tables))
	for n := range c.tables {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (c *ArrowCatalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.tables)
}

// ArrowSchema adapts *arrow.Schema to Schema.
type ArrowSchema struct {
	schema *arrow.Schema
}

func NewArrowSchema(s *arrow.Schema) *ArrowSchema {
	return &ArrowSchema{schema: s}
}

func (s *ArrowSchema) LookupAttribute(name string) (Column, bool) {
	idx := s.schema.FieldIndices(name)
	if len(idx) == 0 {
		return Column{Position: -1}, false
	}
	return Column{Position: idx[0], Type: ArrowType{DataType: s.schema.Field(idx[0]).Type}}, true
}

// ArrowType adapts an arrow.DataType to TypeDescriptor.
type ArrowType struct {
	DataType arrow.DataType
}

func (t ArrowType) IsBoolean() bool {
	return t.DataType != nil && t.DataType.ID() == arrow.BOOL
}

func (t ArrowType) CanonicalName() string {
	if t.DataType == nil {
		return "null"
	}
	switch t.DataType.ID() {
	case arrow.BOOL:
		return "bool"
	case arrow.INT8, arrow.INT16, arrow.INT32, arrow.INT64,
		arrow.UINT8, arrow.UINT16, arrow.UINT32, arrow.UINT64:
		return "int"
	case arrow.FLOAT16, arrow.FLOAT32, arrow.FLOAT64:
		return "double"
	case arrow.STRING, arrow.LARGE_STRING:
		return "string"
	default:
		return t.DataType.String()
	}
}

func (t ArrowType) String() string {
	return t.CanonicalName()
}
