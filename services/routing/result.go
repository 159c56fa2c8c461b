package routing

import (
	"fmt"
	"reflect"
)

// ResultKind tags the shape of an executor result
type ResultKind int

const (
	// ResultOpaque carries a value with no known text field
	ResultOpaque ResultKind = iota

	// ResultText carries plain text
	ResultText

	// ResultStructured carries optional raw output and output fields
	ResultStructured
)

// Result is what an Executor hands back for a successful attempt
type Result struct {
	Kind      ResultKind
	Text      string
	RawOutput any
	Output    any
	Value     any
}

// TextResult wraps plain text
func TextResult(text string) Result {
	return Result{Kind: ResultText, Text: text, Value: text}
}

// StructuredResult wraps a value exposing raw output and/or output fields.
// whole is used for the generic conversion when both fields are empty.
func StructuredResult(rawOutput, output, whole any) Result {
	return Result{Kind: ResultStructured, RawOutput: rawOutput, Output: output, Value: whole}
}

// OpaqueResult wraps any other value
func OpaqueResult(v any) Result {
	return Result{Kind: ResultOpaque, Value: v}
}

// NormalizeResult turns a result into text. It never fails.
func NormalizeResult(r Result) string {
	switch r.Kind {
	case ResultText:
		return r.Text
	case ResultStructured:
		if present(r.RawOutput) {
			return stringify(r.RawOutput)
		}
		if present(r.Output) {
			return stringify(r.Output)
		}
	}
	return stringify(r.Value)
}

// present reports whether v holds something other than a nil or empty value
func present(v any) bool {
	if v == nil {
		return false
	}
	if s, ok := v.(string); ok {
		return s != ""
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		return !rv.IsNil()
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Chan:
		return rv.Len() > 0
	}
	return true
}

// stringify converts v with fmt, which recovers from panicking String methods
func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return fmt.Sprint(v)
}
