package padding

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"unicode/utf8"
)

// MissingValue is written in place of an empty numeric field.
const MissingValue = -99.999

// PaddingError reports a spec that cannot be built or a value that cannot be padded.
type PaddingError struct {
	Value  string
	Reason string
}

func (e *PaddingError) Error() string {
	if e.Value == "" {
		return "padding: " + e.Reason
	}
	return fmt.Sprintf("padding: %s: %q", e.Reason, e.Value)
}

// Spec describes the fixed width layout of one output column. Numeric values
// always carry a leading sign; the decimal point is omitted when Precision is 0.
type Spec struct {
	length    int
	precision int
}

// NewSpec validates that length leaves room for the sign, the decimal point and
// precision digits plus at least one integer digit.
func NewSpec(length, precision int) (*Spec, error) {
	if length <= 0 {
		return nil, &PaddingError{Reason: "required length must be greater than zero"}
	}
	if precision < 0 {
		return nil, &PaddingError{Reason: "precision must be zero or positive"}
	}
	used := 1 + precision
	if precision > 0 {
		used++
	}
	if used >= length {
		return nil, &PaddingError{Reason: fmt.Sprintf("length %d cannot hold sign and %d decimals", length, precision)}
	}
	return &Spec{length: length, precision: precision}, nil
}

// MustSpec is NewSpec for package-level tables; it panics on invalid input.
func MustSpec(length, precision int) *Spec {
	s, err := NewSpec(length, precision)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Spec) Length() int    { return s.length }
func (s *Spec) Precision() int { return s.precision }

// Pad formats value as a number or as text depending on numeric.
func (s *Spec) Pad(value string, numeric bool) (string, error) {
	if numeric {
		return s.PadNumber(value)
	}
	return s.PadText(value)
}

// PadNumber renders value with exactly Precision decimals, rounded half away
// from zero, sign first and zero-filled to Length.
func (s *Spec) PadNumber(value string) (string, error) {
	f := MissingValue
	if value != "" {
		parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return "", &PaddingError{Value: value, Reason: "non-numeric value in numeric field"}
		}
		f = parsed
	}

	// Rounds the shortest decimal form, not the binary value: 1.2345 at three
	// places is 1.235.
	r, ok := new(big.Rat).SetString(strconv.FormatFloat(f, 'f', -1, 64))
	if !ok {
		return "", &PaddingError{Value: value, Reason: "value cannot be represented"}
	}
	digits := r.FloatString(s.precision)

	sign := byte('+')
	if strings.HasPrefix(digits, "-") {
		sign = '-'
		digits = digits[1:]
	}

	width := s.length - 1
	if len(digits) > width {
		return "", &PaddingError{Value: value, Reason: fmt.Sprintf("value does not fit in %d characters", s.length)}
	}

	var b strings.Builder
	b.Grow(s.length)
	b.WriteByte(sign)
	for i := len(digits); i < width; i++ {
		b.WriteByte('0')
	}
	b.WriteString(digits)
	return b.String(), nil
}

// PadText right-justifies value with spaces. Values longer than Length are
// rejected, never truncated.
func (s *Spec) PadText(value string) (string, error) {
	n := utf8.RuneCountInString(value)
	if n > s.length {
		return "", &PaddingError{Value: value, Reason: "value length is larger than available length"}
	}
	return strings.Repeat(" ", s.length-n) + value, nil
}

func (s *Spec) String() string {
	return fmt.Sprintf("%d.%d", s.length, s.precision)
}
