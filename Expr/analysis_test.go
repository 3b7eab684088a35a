package Expr

import (
	"bytes"
	"reflect"
	"strings"
	"testing"

	"opti-sql-sema/logger"
)

func TestAnalyze(t *testing.T) {
	cat := testCatalog(t)
	// sum(r.a) > r.b: the aggregate sits under a comparison
	e := NewComparisonExpr(NewSum(NewIdentifier("r", "a")), GreaterThan, NewIdentifier("r", "b"))

	t.Run("arithmetic only", func(t *testing.T) {
		got := Analyze(e, cat, testScope(), Options{})
		if !got.OK() || got.Type != TypeBool {
			t.Fatalf("type = %s, diagnostics %v", got.Type, got.Diagnostics)
		}
		if got.Aggregate {
			t.Fatalf("comparison should not report aggregate")
		}
		if len(got.Attributes) != 0 {
			t.Fatalf("attributes = %v", got.Attributes)
		}
		if got.Canonical != "> (sum([r_a]), [r_b])" {
			t.Fatalf("canonical = %q", got.Canonical)
		}
	})
	t.Run("uniform", func(t *testing.T) {
		got := Analyze(e, cat, testScope(), Options{UniformTraversal: true})
		if !got.Aggregate {
			t.Fatalf("expected aggregate")
		}
		want := []Attribute{{"r", "a"}, {"r", "b"}}
		if !reflect.DeepEqual(got.Attributes, want) {
			t.Fatalf("attributes = %v", got.Attributes)
		}
	})
	t.Run("rejected", func(t *testing.T) {
		bad := NewPlus(NewSum(NewIdentifier("r", "s")), NewIdentifier("r", "a"))
		got := Analyze(bad, cat, testScope(), Options{UniformTraversal: true})
		if got.OK() {
			t.Fatalf("expected error type")
		}
		if got.Aggregate || got.Attributes != nil {
			t.Fatalf("passes should not run on a rejected tree: %+v", got)
		}
		if len(got.Diagnostics) != 1 || got.Diagnostics[0].Node != "sum([r_s])" {
			t.Fatalf("diagnostics = %v", got.Diagnostics)
		}
	})
}

func TestAnalyzeForwardsToReporter(t *testing.T) {
	var buf bytes.Buffer
	e := NewMinus(&StringLiteral{Value: "a"}, NewIntLiteral(1))
	got := Analyze(e, nil, nil, Options{Reporter: StreamReporter{W: &buf}})
	if len(got.Diagnostics) != 1 {
		t.Fatalf("diagnostics = %v", got.Diagnostics)
	}
	want := "ERROR: type error at - (string[a], int[1]): cannot subtract string values (string, int)\n"
	if buf.String() != want {
		t.Fatalf("stream = %q\nwant %q", buf.String(), want)
	}
}

func TestLogReporter(t *testing.T) {
	var buf bytes.Buffer
	log, err := logger.NewWithWriter("warn", "json", &buf)
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	c := NewChecker(nil, nil, LogReporter{Log: log})
	c.Check(NewNotExpr(NewIntLiteral(1)))
	_ = log.Sync()
	out := buf.String()
	for _, want := range []string{`"msg":"type error"`, `"node":"!(int[1])"`, `"types":"int"`, `NOT operator requires a boolean operand`} {
		if !strings.Contains(out, want) {
			t.Fatalf("log output %q missing %q", out, want)
		}
	}
}

func TestMultiReporterSkipsNil(t *testing.T) {
	var a, b DiagnosticList
	calls := 0
	r := MultiReporter(&a, nil, &b, ReporterFunc(func(Diagnostic) { calls++ }))
	r.Report(Diagnostic{Node: "x", Err: ErrNonBooleanNot(TypeInt)})
	if len(a) != 1 || len(b) != 1 || calls != 1 {
		t.Fatalf("fan-out failed: %d %d %d", len(a), len(b), calls)
	}
}
