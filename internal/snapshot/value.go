package snapshot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// NotFoundText is the placeholder written wherever a column has no value.
const NotFoundText = "NOT_FOUND"

type Kind uint8

const (
	KindNotFound Kind = iota
	KindString
	KindNumber
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	default:
		return "not_found"
	}
}

// Value is a single table cell: a string, a number, or NotFound.
//
// The zero Value is NotFound.
type Value struct {
	kind Kind
	s    string
	n    float64
}

// NotFound is the explicit "no value" placeholder.
var NotFound = Value{}

func Str(s string) Value  { return Value{kind: KindString, s: s} }
func Num(f float64) Value { return Value{kind: KindNumber, n: f} }

func (v Value) Kind() Kind       { return v.kind }
func (v Value) IsNotFound() bool { return v.kind == KindNotFound }
func (v Value) Float() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	return v.n, true
}

// String is the coerced form used for every comparison: strings verbatim,
// numbers the way a JavaScript runtime prints them, NotFound as NOT_FOUND.
// "10" and 10 coerce equal; "10.0" and "10" do not.
func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.s
	case KindNumber:
		return formatNumber(v.n)
	default:
		return NotFoundText
	}
}

// Equal compares two values by their coerced string form.
func (v Value) Equal(o Value) bool { return v.String() == o.String() }

// keyPart is the coercion used for row keys: NotFound becomes "".
func (v Value) keyPart() string {
	if v.kind == KindNotFound {
		return ""
	}
	return v.String()
}

func formatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0:
		return "0"
	}
	abs := math.Abs(f)
	if abs >= 1e21 || abs < 1e-6 {
		// Exponent form without the zero padding Go adds ("1e-07" -> "1e-7").
		s := strconv.FormatFloat(f, 'e', -1, 64)
		mant, exp, _ := strings.Cut(s, "e")
		if exp == "" {
			return s
		}
		digits := strings.TrimLeft(exp[1:], "0")
		if digits == "" {
			digits = "0"
		}
		return mant + "e" + exp[:1] + digits
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.s)
	case KindNumber:
		if math.IsNaN(v.n) || math.IsInf(v.n, 0) {
			return json.Marshal(formatNumber(v.n))
		}
		return []byte(strconv.FormatFloat(v.n, 'g', -1, 64)), nil
	default:
		return []byte("null"), nil
	}
}

func (v *Value) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return fmt.Errorf("snapshot: empty cell value")
	}
	switch b[0] {
	case 'n':
		*v = NotFound
		return nil
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*v = Str(s)
		return nil
	case 't', 'f':
		var bv bool
		if err := json.Unmarshal(b, &bv); err != nil {
			return err
		}
		*v = Str(strconv.FormatBool(bv))
		return nil
	case '{', '[':
		return fmt.Errorf("snapshot: cell value must be a scalar, got %s", b[:1])
	default:
		f, err := strconv.ParseFloat(string(b), 64)
		if err != nil {
			return fmt.Errorf("snapshot: invalid number %q: %w", b, err)
		}
		*v = Num(f)
		return nil
	}
}
