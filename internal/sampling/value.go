// Package sampling implements the per-table sampling and FK-closure
// algorithm, grounded line-for-line on pg_sample/sampling.py's
// _sample_table/_build_query/_resolve_foreign_keys/_fetch_missing_rows,
// with the fixpoint-closure correction described in SPEC_FULL.md §4.4.
package sampling

import "fmt"

// ValueKind tags which field of Value is populated.
type ValueKind int

const (
	KindNull ValueKind = iota
	KindBool
	KindInt64
	KindFloat64
	KindDecimal // stored as string to avoid float rounding of NUMERIC
	KindText
	KindBytes
	KindTime
	KindInterval // stored as string
	KindJSON     // raw bytes
	KindArray
)

// Value is a tagged union over the scalar families a column can hold,
// used instead of `any` so the output generator's literal formatting can
// switch on Kind rather than a type assertion per call site.
type Value struct {
	Kind    ValueKind
	Bool    bool
	Int64   int64
	Float64 float64
	Text    string // also backs Decimal, Interval
	Bytes   []byte // also backs JSON
	Time    string // ISO-8601, pre-formatted by the scanner
	Array   []Value
}

func Null() Value                 { return Value{Kind: KindNull} }
func Bool(b bool) Value           { return Value{Kind: KindBool, Bool: b} }
func Int64(i int64) Value         { return Value{Kind: KindInt64, Int64: i} }
func Float64(f float64) Value     { return Value{Kind: KindFloat64, Float64: f} }
func Decimal(s string) Value      { return Value{Kind: KindDecimal, Text: s} }
func Text(s string) Value         { return Value{Kind: KindText, Text: s} }
func Bytes(b []byte) Value        { return Value{Kind: KindBytes, Bytes: b} }
func Time(iso string) Value       { return Value{Kind: KindTime, Time: iso} }
func Interval(s string) Value     { return Value{Kind: KindInterval, Text: s} }
func JSON(b []byte) Value         { return Value{Kind: KindJSON, Bytes: b} }
func Array(vs []Value) Value      { return Value{Kind: KindArray, Array: vs} }

func (v Value) IsNull() bool { return v.Kind == KindNull }

func (v Value) String() string {
	switch v.Kind {
	case KindNull:
		return "NULL"
	case KindBool:
		return fmt.Sprintf("%t", v.Bool)
	case KindInt64:
		return fmt.Sprintf("%d", v.Int64)
	case KindFloat64:
		return fmt.Sprintf("%g", v.Float64)
	case KindDecimal, KindText, KindInterval:
		return v.Text
	case KindBytes, KindJSON:
		return fmt.Sprintf("%x", v.Bytes)
	case KindTime:
		return v.Time
	case KindArray:
		return fmt.Sprintf("%v", v.Array)
	default:
		return "?"
	}
}
