package catalog

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/apache/arrow/go/v17/arrow"
)

var (
	ErrCorruptSnapshot = func(info string) error {
		return fmt.Errorf("corrupt catalog snapshot. context: %s", info)
	}
)

/*
Catalog snapshot
┌──────────────────────────────────────────┐
│ uint32      numberOfTables               │
├──────────────────────────────────────────┤
│ uint32      table1NameLength             │
│ bytes[...]  table1Name                   │
│ schemaBlock                              │
├──────────────────────────────────────────┤
│ ... repeated for N tables ...            │
└──────────────────────────────────────────┘

Schema block
┌──────────────────────────────────────────┐
│ uint32      numberOfFields               │
├──────────────────────────────────────────┤
│ uint32      field1NameLength             │
│ bytes[...]  field1Name                   │
│ uint32      field1TypeLength             │
│ bytes[...]  field1TypeString             │
│ uint8       field1Nullable               │
├──────────────────────────────────────────┤
│ ... repeated for N fields ...            │
└──────────────────────────────────────────┘
All integers are little endian. Type strings are arrow's DataType.String()
and are read back through ParseArrowType.
*/

// upper bounds for length prefixes and field counts read from a snapshot
const (
	maxSnapshotString = 1 << 20
	maxSnapshotFields = 1 << 16
)

func WriteSnapshot(w io.Writer, c *ArrowCatalog) error {
	bw := bufio.NewWriter(w)
	tables := c.Tables()
	if err := binary.Write(bw, binary.LittleEndian, uint32(len(tables))); err != nil {
		return err
	}
	for _, name := range tables {
		schema, _ := c.ArrowSchema(name)
		if err := writeString(bw, name); err != nil {
			return err
		}
		block, err := SerializeSchema(schema)
		if err != nil {
			return fmt.Errorf("table %s: %w", name, err)
		}
		if _, err := bw.Write(block); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func ReadSnapshot(r io.Reader) (*ArrowCatalog, error) {
	br := bufio.NewReader(r)
	var numTables uint32
	if err := binary.Read(br, binary.LittleEndian, &numTables); err != nil {
		return nil, ErrCorruptSnapshot(fmt.Sprintf("table count: %v", err))
	}
	c := NewArrowCatalog()
	for i := uint32(0); i < numTables; i++ {
		name, err := readString(br)
		if err != nil {
			return nil, ErrCorruptSnapshot(fmt.Sprintf("table %d name: %v", i, err))
		}
		schema, err := DeserializeSchema(br)
		if err != nil {
			return nil, ErrCorruptSnapshot(fmt.Sprintf("table %s schema: %v", name, err))
		}
		if err := c.Register(name, schema); err != nil {
			return nil, ErrCorruptSnapshot(err.Error())
		}
	}
	return c, nil
}

func SerializeSchema(s *arrow.Schema) ([]byte, error) {
	buf := new(bytes.Buffer)

	// 1. number of fields
	if err := binary.Write(buf, binary.LittleEndian, uint32(len(s.Fields()))); err != nil {
		return nil, err
	}

	for _, f := range s.Fields() {
		// only types that can be read back are written
		if _, err := ParseArrowType(f.Type.String()); err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		if err := writeString(buf, f.Name); err != nil {
			return nil, err
		}
		if err := writeString(buf, f.Type.String()); err != nil {
			return nil, err
		}

		var nullable uint8
		if f.Nullable {
			nullable = 1
		}
		if err := binary.Write(buf, binary.LittleEndian, nullable); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

func DeserializeSchema(data io.Reader) (*arrow.Schema, error) {
	var num uint32
	if err := binary.Read(data, binary.LittleEndian, &num); err != nil {
		return nil, err
	}

	if num > maxSnapshotFields {
		return nil, fmt.Errorf("field count %d exceeds limit", num)
	}
	fields := make([]arrow.Field, 0, min(num, 64))
	for i := uint32(0); i < num; i++ {
		name, err := readString(data)
		if err != nil {
			return nil, err
		}
		typeName, err := readString(data)
		if err != nil {
			return nil, err
		}
		typ, err := ParseArrowType(typeName)
		if err != nil {
			return nil, err
		}

		var nullable uint8
		if err := binary.Read(data, binary.LittleEndian, &nullable); err != nil {
			return nil, err
		}

		fields = append(fields, arrow.Field{
			Name:     name,
			Type:     typ,
			Nullable: nullable == 1,
		})
	}

	return arrow.NewSchema(fields, nil), nil
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	if n > maxSnapshotString {
		return "", fmt.Errorf("string length %d exceeds limit", n)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}
