package catalog

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/apache/arrow/go/v17/parquet"
	"github.com/apache/arrow/go/v17/parquet/file"
	"github.com/apache/arrow/go/v17/parquet/pqarrow"
	goavro "github.com/linkedin/goavro/v2"
	"gopkg.in/yaml.v3"
)

var (
	ErrUnsupportedFormat = func(ext string) error {
		return fmt.Errorf("unsupported catalog format %q (supported: .yaml, .yml, .csv, .parquet, .avsc, .avro, .cat)", ext)
	}
	ErrNoObjectStore = errors.New("an object store is required to load s3:// catalog sources")
)

// number of data rows the csv loader samples when inferring column types
const csvSampleRows = 64

// Load reads a catalog source from the local filesystem. Formats holding a
// single table (.csv, .parquet, .avsc, .avro) register it under the file stem.
func Load(path string) (*ArrowCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open %s: %w", path, err)
	}
	return LoadBytes(filepath.Base(path), data)
}

// LoadBytes parses an in-memory catalog source; name supplies the extension
// and, for single table formats, the table name.
func LoadBytes(name string, data []byte) (*ArrowCatalog, error) {
	ext := strings.ToLower(filepath.Ext(name))
	table := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))

	var (
		c      *ArrowCatalog
		schema *arrow.Schema
		err    error
	)
	switch ext {
	case ".yaml", ".yml":
		c, err = loadYAML(data)
	case ".cat":
		c, err = ReadSnapshot(bytes.NewReader(data))
	case ".csv":
		schema, err = loadCSV(bytes.NewReader(data))
	case ".parquet":
		schema, err = loadParquet(bytes.NewReader(data))
	case ".avsc":
		schema, err = avroSchemaToArrow(string(data))
	case ".avro":
		schema, err = loadAvroOCF(bytes.NewReader(data))
	default:
		return nil, ErrUnsupportedFormat(ext)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if c != nil {
		return c, nil
	}
	c = NewArrowCatalog()
	if err := c.Register(table, schema); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadURI loads either a local path or an s3://bucket/key object.
func LoadURI(ctx context.Context, store ObjectStore, uri string) (*ArrowCatalog, error) {
	bucket, key, ok := parseS3URI(uri)
	if !ok {
		return Load(uri)
	}
	if store == nil {
		return nil, ErrNoObjectStore
	}
	data, err := store.Get(ctx, bucket, key)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", uri, err)
	}
	return LoadBytes(key, data)
}

// LoadAll merges every source into one catalog. Duplicate table names across
// sources are rejected.
func LoadAll(ctx context.Context, store ObjectStore, uris []string) (*ArrowCatalog, error) {
	out := NewArrowCatalog()
	for _, uri := range uris {
		c, err := LoadURI(ctx, store, uri)
		if err != nil {
			return nil, err
		}
		if err := out.Merge(c); err != nil {
			return nil, fmt.Errorf("%s: %w", uri, err)
		}
	}
	return out, nil
}

func parseS3URI(uri string) (bucket, key string, ok bool) {
	rest, found := strings.CutPrefix(uri, "s3://")
	if !found {
		return "", "", false
	}
	bucket, key, found = strings.Cut(rest, "/")
	if !found || bucket == "" || key == "" {
		return "", "", false
	}
	return bucket, key, true
}

// =============================
// YAML
// =============================

type catalogDocument struct {
	Tables map[string]tableDocument `yaml:"tables"`
}

type tableDocument struct {
	Columns []columnDocument `yaml:"columns"`
}

type columnDocument struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Nullable *bool  `yaml:"nullable"`
}

func loadYAML(data []byte) (*ArrowCatalog, error) {
	var doc catalogDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode catalog: %w", err)
	}
	c := NewArrowCatalog()
	for name, t := range doc.Tables {
		sb := NewSchemaBuilder()
		for _, col := range t.Columns {
			if col.Name == "" {
				return nil, fmt.Errorf("table %s: column without a name", name)
			}
			dt, err := ParseArrowType(col.Type)
			if err != nil {
				return nil, fmt.Errorf("table %s column %s: %w", name, col.Name, err)
			}
			nullable := true
			if col.Nullable != nil {
				nullable = *col.Nullable
			}
			sb.WithField(col.Name, dt, nullable)
		}
		if err := c.Register(name, sb.Build()); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// =============================
// CSV
// =============================

func loadCSV(source io.Reader) (*arrow.Schema, error) {
	r := csv.NewReader(source)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	kinds := make([]arrow.DataType, len(header))
	for rows := 0; rows < csvSampleRows; rows++ {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		for i := range header {
			if i < len(row) {
				kinds[i] = widen(kinds[i], parseDataType(row[i]))
			}
		}
	}
	sb := NewSchemaBuilder()
	for i, colName := range header {
		dt := kinds[i]
		if dt == nil {
			// header only, or every sampled cell was empty
			dt = arrow.BinaryTypes.String
		}
		sb.WithField(strings.TrimSpace(colName), dt, true)
	}
	return sb.Build(), nil
}

// parseDataType returns nil for empty / NULL cells so they do not vote.
func parseDataType(sample string) arrow.DataType {
	sample = strings.TrimSpace(sample)

	if sample == "" || strings.EqualFold(sample, "NULL") {
		return nil
	}
	if sample == "true" || sample == "false" {
		return arrow.FixedWidthTypes.Boolean
	}
	if _, err := strconv.ParseInt(sample, 10, 64); err == nil {
		return arrow.PrimitiveTypes.Int64
	}
	if _, err := strconv.ParseFloat(sample, 64); err == nil {
		return arrow.PrimitiveTypes.Float64
	}
	return arrow.BinaryTypes.String
}

// widen merges two sampled types: int64 and float64 meet at float64, every
// other disagreement falls back to string.
func widen(a, b arrow.DataType) arrow.DataType {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case arrow.TypeEqual(a, b):
		return a
	}
	numeric := func(dt arrow.DataType) bool {
		return dt.ID() == arrow.INT64 || dt.ID() == arrow.FLOAT64
	}
	if numeric(a) && numeric(b) {
		return arrow.PrimitiveTypes.Float64
	}
	return arrow.BinaryTypes.String
}

// =============================
// PARQUET
// =============================

func loadParquet(r parquet.ReaderAtSeeker) (*arrow.Schema, error) {
	fileReader, err := file.NewParquetReader(r)
	if err != nil {
		return nil, err
	}
	defer fileReader.Close()

	arrowReader, err := pqarrow.NewFileReader(fileReader, pqarrow.ArrowReadProperties{}, memory.NewGoAllocator())
	if err != nil {
		return nil, err
	}
	return arrowReader.Schema()
}

// =============================
// AVRO
// =============================

type avroRecord struct {
	Type   string      `json:"type"`
	Name   string      `json:"name"`
	Fields []avroField `json:"fields"`
}

type avroField struct {
	Name string          `json:"name"`
	Type json.RawMessage `json:"type"`
}

func loadAvroOCF(r io.Reader) (*arrow.Schema, error) {
	ocfr, err := goavro.NewOCFReader(r)
	if err != nil {
		return nil, fmt.Errorf("cannot read Avro OCF: %w", err)
	}
	return avroSchemaToArrow(ocfr.Codec().Schema())
}

func avroSchemaToArrow(schema string) (*arrow.Schema, error) {
	// NewCodec rejects malformed schemas before we look at the JSON ourselves
	codec, err := goavro.NewCodec(schema)
	if err != nil {
		return nil, fmt.Errorf("invalid Avro schema: %w", err)
	}
	var rec avroRecord
	if err := json.Unmarshal([]byte(codec.Schema()), &rec); err != nil {
		return nil, fmt.Errorf("cannot parse Avro schema: %w", err)
	}
	if rec.Type != "record" {
		return nil, fmt.Errorf("avro schema must be a record, got %q", rec.Type)
	}
	sb := NewSchemaBuilder()
	for _, f := range rec.Fields {
		dt, nullable, err := avroFieldType(f.Type)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		sb.WithField(f.Name, dt, nullable)
	}
	return sb.Build(), nil
}

func avroFieldType(raw json.RawMessage) (arrow.DataType, bool, error) {
	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		return avroPrimitive(name), name == "null", nil
	}

	var union []json.RawMessage
	if err := json.Unmarshal(raw, &union); err == nil {
		var (
			dt       arrow.DataType
			nullable bool
		)
		for _, branch := range union {
			bdt, bnull, err := avroFieldType(branch)
			if err != nil {
				return nil, false, err
			}
			if bnull {
				nullable = true
				continue
			}
			if dt != nil && !arrow.TypeEqual(dt, bdt) {
				// multi-type unions have no single column type
				return arrow.BinaryTypes.Binary, nullable, nil
			}
			dt = bdt
		}
		if dt == nil {
			dt = arrow.Null
		}
		return dt, nullable, nil
	}

	var complex struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &complex); err != nil {
		return nil, false, fmt.Errorf("unrecognized Avro type %s", string(raw))
	}
	if complex.Type == "enum" {
		return arrow.BinaryTypes.String, false, nil
	}
	return avroPrimitive(complex.Type), false, nil
}

// avroPrimitive maps Avro names to arrow types. Nested types (record, array,
// map, fixed) become binary, which the expression layer does not recognize.
func avroPrimitive(name string) arrow.DataType {
	switch name {
	case "null":
		return arrow.Null
	case "boolean":
		return arrow.FixedWidthTypes.Boolean
	case "int":
		return arrow.PrimitiveTypes.Int32
	case "long":
		return arrow.PrimitiveTypes.Int64
	case "float":
		return arrow.PrimitiveTypes.Float32
	case "double":
		return arrow.PrimitiveTypes.Float64
	case "string":
		return arrow.BinaryTypes.String
	default:
		return arrow.BinaryTypes.Binary
	}
}
