package Expr

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"opti-sql-sema/logger"
)

// ErrTypeMismatch is the single category every static violation falls into.
// All rejection errors below wrap it.
var ErrTypeMismatch = errors.New("type error")

var (
	ErrUnknownAlias = func(alias string) error {
		return fmt.Errorf("%w: table alias %q not found in query", ErrTypeMismatch, alias)
	}
	ErrUnknownTable = func(table string) error {
		return fmt.Errorf("%w: table %q not found in catalog", ErrTypeMismatch, table)
	}
	ErrUnknownAttribute = func(table, column string) error {
		return fmt.Errorf("%w: attribute %q not found in table %q", ErrTypeMismatch, column, table)
	}
	ErrUnrecognizedAttributeType = func(table, column, typeName string) error {
		return fmt.Errorf("%w: attribute %s.%s has unsupported type %q", ErrTypeMismatch, table, column, typeName)
	}
	ErrInvalidArithmetic = func(verb string, offending ResultType) error {
		return fmt.Errorf("%w: cannot %s %s values", ErrTypeMismatch, verb, offending)
	}
	ErrIncomparable = func(left, right ResultType) error {
		return fmt.Errorf("%w: cannot compare incompatible types: left=%s, right=%s", ErrTypeMismatch, left, right)
	}
	ErrNonBooleanOr = func(left, right ResultType) error {
		return fmt.Errorf("%w: OR operator requires boolean operands, but got %s and %s", ErrTypeMismatch, left, right)
	}
	ErrNonBooleanNot = func(operand ResultType) error {
		return fmt.Errorf("%w: NOT operator requires a boolean operand, but got %s", ErrTypeMismatch, operand)
	}
	ErrNonNumericAggregate = func(fn AggregateFunc, operand ResultType) error {
		return fmt.Errorf("%w: cannot apply %s to non-numeric operand of type %s", ErrTypeMismatch, strings.ToUpper(fn.Name()), operand)
	}
)

// Diagnostic describes one rejected node. Only the node that detected the
// violation reports; ancestors that merely inherit an error stay silent.
type Diagnostic struct {
	// canonical text of the rejected node
	Node string
	// operand types the rule saw, empty for identifier resolution failures
	Types []ResultType
	Err   error
}

// Error renders "type error at <node>: <message> (<types>)", the types part
// omitted when empty.
func (d Diagnostic) Error() string {
	msg := fmt.Sprintf("%v at %s: %s", ErrTypeMismatch, d.Node, d.Message())
	if len(d.Types) > 0 {
		msg += " (" + strings.Join(d.TypeNames(), ", ") + ")"
	}
	return msg
}

func (d Diagnostic) Unwrap() error {
	return d.Err
}

// Message is the error text without the type error prefix.
func (d Diagnostic) Message() string {
	return strings.TrimPrefix(d.Err.Error(), ErrTypeMismatch.Error()+": ")
}

func (d Diagnostic) TypeNames() []string {
	out := make([]string, len(d.Types))
	for i, t := range d.Types {
		out[i] = t.String()
	}
	return out
}

// Reporter receives diagnostics as the checker produces them.
type Reporter interface {
	Report(d Diagnostic)
}

type ReporterFunc func(d Diagnostic)

func (f ReporterFunc) Report(d Diagnostic) { f(d) }

// DiagnosticList collects everything reported to it.
type DiagnosticList []Diagnostic

func (l *DiagnosticList) Report(d Diagnostic) {
	*l = append(*l, d)
}

// Err joins the collected diagnostics, nil when there are none.
func (l DiagnosticList) Err() error {
	if len(l) == 0 {
		return nil
	}
	errs := make([]error, len(l))
	for i, d := range l {
		errs[i] = d
	}
	return errors.Join(errs...)
}

// StreamReporter writes one "ERROR: ..." line per diagnostic, for hosts that
// expect plain text on a stream.
type StreamReporter struct {
	W io.Writer
}

func (s StreamReporter) Report(d Diagnostic) {
	fmt.Fprintf(s.W, "ERROR: %s\n", d.Error())
}

// LogReporter forwards diagnostics to a structured logger at warn level.
type LogReporter struct {
	Log *logger.Logger
}

func (l LogReporter) Report(d Diagnostic) {
	l.Log.Warn("type error",
		"node", d.Node,
		"types", strings.Join(d.TypeNames(), ","),
		"error", d.Message(),
	)
}

type multiReporter []Reporter

func (m multiReporter) Report(d Diagnostic) {
	for _, r := range m {
		r.Report(d)
	}
}

// MultiReporter fans a diagnostic out to every non-nil reporter.
func MultiReporter(reporters ...Reporter) Reporter {
	out := make(multiReporter, 0, len(reporters))
	for _, r := range reporters {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}
