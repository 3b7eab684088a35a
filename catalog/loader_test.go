package catalog

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/parquet"
	"github.com/apache/arrow/go/v17/parquet/pqarrow"
	goavro "github.com/linkedin/goavro/v2"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return p
}

func columnType(t *testing.T, c *ArrowCatalog, table, column string) string {
	t.Helper()
	s, ok := c.LookupTable(table)
	if !ok {
		t.Fatalf("table %s missing, have %v", table, c.Tables())
	}
	col, ok := s.LookupAttribute(column)
	if !ok {
		t.Fatalf("column %s.%s missing", table, column)
	}
	return col.Type.CanonicalName()
}

func TestLoadYAML(t *testing.T) {
	p := writeFile(t, "catalog.yaml", `
tables:
  R:
    columns:
      - {name: a, type: int}
      - {name: b, type: double, nullable: false}
  S:
    columns:
      - {name: flag, type: bool}
      - {name: label, type: utf8}
`)
	c, err := Load(p)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if got := c.Tables(); len(got) != 2 {
		t.Fatalf("expected 2 tables, got %v", got)
	}
	checks := map[[2]string]string{
		{"R", "a"}:     "int",
		{"R", "b"}:     "double",
		{"S", "flag"}:  "bool",
		{"S", "label"}: "string",
	}
	for k, want := range checks {
		if got := columnType(t, c, k[0], k[1]); got != want {
			t.Errorf("%s.%s: expected %s, got %s", k[0], k[1], want, got)
		}
	}
	s, _ := c.ArrowSchema("R")
	if s.Field(1).Nullable {
		t.Errorf("expected R.b to be NOT NULL")
	}
}

func TestLoadYAMLBadType(t *testing.T) {
	p := writeFile(t, "bad.yml", `
tables:
  R:
    columns:
      - {name: a, type: money}
`)
	if _, err := Load(p); err == nil {
		t.Fatalf("expected unsupported type error")
	}
}

func TestLoadCSV(t *testing.T) {
	p := writeFile(t, "people.csv", "id,name,score,active,note\n1,Alice,3,true,\n2,Bob,4.5,false,\n3,Carol,5,true,\n")
	c, err := Load(p)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	want := map[string]string{
		"id":     "int",
		"name":   "string",
		"score":  "double", // 3 then 4.5 widens to float64
		"active": "bool",
		"note":   "string", // never populated
	}
	for col, typ := range want {
		if got := columnType(t, c, "people", col); got != typ {
			t.Errorf("%s: expected %s, got %s", col, typ, got)
		}
	}
}

func TestWiden(t *testing.T) {
	i, f, s, b := arrow.PrimitiveTypes.Int64, arrow.PrimitiveTypes.Float64, arrow.BinaryTypes.String, arrow.FixedWidthTypes.Boolean
	tests := []struct {
		a, b, want arrow.DataType
	}{
		{nil, i, i},
		{i, nil, i},
		{i, i, i},
		{i, f, f},
		{f, i, f},
		{b, i, s},
		{s, f, s},
	}
	for _, tt := range tests {
		if got := widen(tt.a, tt.b); !arrow.TypeEqual(got, tt.want) {
			t.Errorf("widen(%v, %v): expected %s, got %s", tt.a, tt.b, tt.want, got)
		}
	}
}

const employeeAvroSchema = `{
  "type": "record",
  "name": "Employee",
  "fields": [
    {"name": "id", "type": "long"},
    {"name": "name", "type": ["null", "string"]},
    {"name": "salary", "type": "double"},
    {"name": "active", "type": "boolean"},
    {"name": "tags", "type": {"type": "array", "items": "string"}},
    {"name": "level", "type": {"type": "enum", "name": "Level", "symbols": ["L1", "L2"]}}
  ]
}`

func TestLoadAvroSchema(t *testing.T) {
	p := writeFile(t, "employees.avsc", employeeAvroSchema)
	c, err := Load(p)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	want := map[string]string{
		"id":     "int",
		"name":   "string",
		"salary": "double",
		"active": "bool",
		"tags":   "binary",
		"level":  "string",
	}
	for col, typ := range want {
		if got := columnType(t, c, "employees", col); got != typ {
			t.Errorf("%s: expected %s, got %s", col, typ, got)
		}
	}
	s, _ := c.ArrowSchema("employees")
	if !s.Field(1).Nullable {
		t.Errorf("union with null should be nullable")
	}
}

func TestLoadAvroOCF(t *testing.T) {
	buf := new(bytes.Buffer)
	w, err := goavro.NewOCFWriter(goavro.OCFConfig{W: buf, Schema: `{"type":"record","name":"Point","fields":[{"name":"x","type":"int"},{"name":"y","type":"float"}]}`})
	if err != nil {
		t.Fatalf("ocf writer: %v", err)
	}
	if err := w.Append([]interface{}{map[string]interface{}{"x": int32(1), "y": float32(2.5)}}); err != nil {
		t.Fatalf("append: %v", err)
	}
	c, err := LoadBytes("points.avro", buf.Bytes())
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if got := columnType(t, c, "points", "x"); got != "int" {
		t.Errorf("x: expected int, got %s", got)
	}
	if got := columnType(t, c, "points", "y"); got != "double" {
		t.Errorf("y: expected double, got %s", got)
	}
}

func TestLoadParquet(t *testing.T) {
	schema := employeeSchema()
	buf := new(bytes.Buffer)
	w, err := pqarrow.NewFileWriter(schema, buf, parquet.NewWriterProperties(), pqarrow.DefaultWriterProps())
	if err != nil {
		t.Fatalf("parquet writer: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("parquet close: %v", err)
	}
	c, err := LoadBytes("staff.parquet", buf.Bytes())
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	want := map[string]string{"id": "int", "name": "string", "salary": "double", "is_active": "bool"}
	for col, typ := range want {
		if got := columnType(t, c, "staff", col); got != typ {
			t.Errorf("%s: expected %s, got %s", col, typ, got)
		}
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	c := NewArrowCatalog()
	_ = c.Register("employees", employeeSchema())
	_ = c.Register("empty", NewSchemaBuilder().Build())

	buf := new(bytes.Buffer)
	if err := WriteSnapshot(buf, c); err != nil {
		t.Fatalf("write: %v", err)
	}
	back, err := LoadBytes("x.cat", buf.Bytes())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	for _, name := range c.Tables() {
		want, _ := c.ArrowSchema(name)
		got, ok := back.ArrowSchema(name)
		if !ok {
			t.Fatalf("table %s lost", name)
		}
		if !want.Equal(got) {
			t.Errorf("table %s: expected %s, got %s", name, want, got)
		}
	}
}

func TestSnapshotCorrupt(t *testing.T) {
	if _, err := ReadSnapshot(bytes.NewReader([]byte{1, 0})); err == nil {
		t.Fatalf("expected truncated snapshot to fail")
	}
	// one table whose name claims to be far longer than the input
	if _, err := ReadSnapshot(bytes.NewReader([]byte{1, 0, 0, 0, 0xff, 0xff, 0xff, 0x0f})); err == nil {
		t.Fatalf("expected oversized length prefix to fail")
	}
	// table "T" claiming 0xffffffff fields
	_, err := ReadSnapshot(bytes.NewReader([]byte{1, 0, 0, 0, 1, 0, 0, 0, 'T', 0xff, 0xff, 0xff, 0xff}))
	if err == nil || !strings.Contains(err.Error(), "corrupt catalog snapshot") {
		t.Fatalf("expected corrupt snapshot error for huge field count, got %v", err)
	}
	// a plausible count with missing field data
	if _, err := ReadSnapshot(bytes.NewReader([]byte{1, 0, 0, 0, 1, 0, 0, 0, 'T', 0x00, 0x10, 0, 0})); err == nil {
		t.Fatalf("expected truncated fields to fail")
	}
}

func TestLoadUnsupportedExtension(t *testing.T) {
	if _, err := LoadBytes("catalog.json", []byte("{}")); err == nil {
		t.Fatalf("expected unsupported format error")
	}
}

type fakeStore struct {
	objects map[string][]byte
	calls   int
}

func (f *fakeStore) Get(_ context.Context, bucket, key string) ([]byte, error) {
	f.calls++
	data, ok := f.objects[bucket+"/"+key]
	if !ok {
		return nil, errors.New("no such key")
	}
	return data, nil
}

func TestLoadURI(t *testing.T) {
	store := &fakeStore{objects: map[string][]byte{
		"bucket/schemas/orders.csv": []byte("id,total\n1,9.5\n"),
	}}
	local := writeFile(t, "c.yaml", "tables:\n  R:\n    columns:\n      - {name: a, type: int}\n")

	c, err := LoadAll(context.Background(), store, []string{"s3://bucket/schemas/orders.csv", local})
	if err != nil {
		t.Fatalf("load all: %v", err)
	}
	if store.calls != 1 {
		t.Errorf("expected exactly one remote fetch, got %d", store.calls)
	}
	if got := columnType(t, c, "orders", "total"); got != "double" {
		t.Errorf("orders.total: expected double, got %s", got)
	}
	if got := columnType(t, c, "R", "a"); got != "int" {
		t.Errorf("R.a: expected int, got %s", got)
	}

	if _, err := LoadURI(context.Background(), nil, "s3://bucket/x.csv"); !errors.Is(err, ErrNoObjectStore) {
		t.Errorf("expected ErrNoObjectStore, got %v", err)
	}
	if _, err := LoadURI(context.Background(), store, "s3://bucket/missing.csv"); err == nil {
		t.Errorf("expected missing object to fail")
	}
}

func TestParseS3URI(t *testing.T) {
	tests := []struct {
		uri, bucket, key string
		ok               bool
	}{
		{"s3://b/k.csv", "b", "k.csv", true},
		{"s3://b/dir/k.csv", "b", "dir/k.csv", true},
		{"s3://b", "", "", false},
		{"s3:///k", "", "", false},
		{"/tmp/k.csv", "", "", false},
	}
	for _, tt := range tests {
		b, k, ok := parseS3URI(tt.uri)
		if b != tt.bucket || k != tt.key || ok != tt.ok {
			t.Errorf("%s: got (%q, %q, %v)", tt.uri, b, k, ok)
		}
	}
}

func TestNewObjectStore(t *testing.T) {
	if _, err := NewObjectStore("gcs", ObjectStoreOptions{}); err == nil {
		t.Errorf("expected unknown provider error")
	}
	if _, err := NewObjectStore("minio", ObjectStoreOptions{}); err == nil {
		t.Errorf("expected minio without endpoint to fail")
	}
	s, err := NewObjectStore("aws", ObjectStoreOptions{Region: "us-east-1"})
	if err != nil || s == nil {
		t.Errorf("expected aws store, got %v", err)
	}
	s, err = NewObjectStore("minio", ObjectStoreOptions{Endpoint: "localhost:9000", AccessKey: "k", SecretKey: "s"})
	if err != nil || s == nil {
		t.Errorf("expected minio store, got %v", err)
	}
}

func TestReadCapped(t *testing.T) {
	if _, err := readCapped(bytes.NewReader(make([]byte, 10)), 5, "b", "k"); err == nil {
		t.Errorf("expected cap to reject 10 bytes")
	}
	data, err := readCapped(bytes.NewReader(make([]byte, 5)), 5, "b", "k")
	if err != nil || len(data) != 5 {
		t.Errorf("expected 5 bytes, got %d (%v)", len(data), err)
	}
}
