package source

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Kind discriminates the scalar variants a relational cell can hold.
type Kind int

const (
	KindNull Kind = iota
	KindInt
	KindFloat
	KindText
	KindTime
	KindBlob
)

// Value is a tagged scalar read from a relational source. The zero value is NULL.
type Value struct {
	Kind  Kind
	Int   int64
	Float float64
	Text  string
	Time  time.Time
	Blob  []byte
}

func Null() Value            { return Value{} }
func Int(i int64) Value      { return Value{Kind: KindInt, Int: i} }
func Float(f float64) Value  { return Value{Kind: KindFloat, Float: f} }
func Text(s string) Value    { return Value{Kind: KindText, Text: s} }
func Time(t time.Time) Value { return Value{Kind: KindTime, Time: t} }
func Blob(b []byte) Value    { return Value{Kind: KindBlob, Blob: b} }

// IsNull reports whether the value is NULL.
func (v Value) IsNull() bool { return v.Kind == KindNull }

// Key renders a stable string usable as a map key and for ordering.
// Two values compare equal iff their keys are equal.
func (v Value) Key() string {
	switch v.Kind {
	case KindNull:
		return "\x00null"
	case KindInt:
		return "i:" + strconv.FormatInt(v.Int, 10)
	case KindFloat:
		return "f:" + strconv.FormatFloat(v.Float, 'g', -1, 64)
	case KindText:
		return "t:" + v.Text
	case KindTime:
		return "d:" + v.Time.UTC().Format(time.RFC3339Nano)
	default:
		return "b:" + hex.EncodeToString(v.Blob)
	}
}

// Less defines a total order over values: first by kind, then by content.
// Used for the builder's deterministic truncation ordering.
func (v Value) Less(o Value) bool {
	if v.Kind != o.Kind {
		return v.Kind < o.Kind
	}
	switch v.Kind {
	case KindInt:
		return v.Int < o.Int
	case KindFloat:
		return v.Float < o.Float
	case KindTime:
		return v.Time.Before(o.Time)
	default:
		return strings.Compare(v.Key(), o.Key()) < 0
	}
}

// String renders the value for logs and error messages.
func (v Value) String() string {
	switch v.Kind {
	case KindNull:
		return "NULL"
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	case KindFloat:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	case KindText:
		return v.Text
	case KindTime:
		return v.Time.Format(time.RFC3339)
	default:
		return fmt.Sprintf("blob(%d)", len(v.Blob))
	}
}

// FromAny converts a database/sql scan result into a Value.
func FromAny(x any) Value {
	switch t := x.(type) {
	case nil:
		return Null()
	case int64:
		return Int(t)
	case int:
		return Int(int64(t))
	case float64:
		return Float(t)
	case bool:
		if t {
			return Int(1)
		}
		return Int(0)
	case string:
		return Text(t)
	case time.Time:
		return Time(t)
	case []byte:
		return Blob(t)
	default:
		return Text(fmt.Sprintf("%v", t))
	}
}
