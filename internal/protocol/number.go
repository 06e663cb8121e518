package protocol

import (
	"bytes"
	"errors"
	"math"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
)

// FormatNumber renders f the way JavaScript's Number.prototype.toString
// does, which is the serialization agents use when computing checksums.
func FormatNumber(f float64) string {
	if f == 0 {
		return "0"
	}
	abs := math.Abs(f)
	if abs >= 1e21 || abs < 1e-6 {
		s := strconv.FormatFloat(f, 'e', -1, 64)
		// Go pads the exponent to two digits ("1e-07"); JavaScript does not.
		mantissa, exp, _ := strings.Cut(s, "e")
		sign := exp[:1]
		digits := strings.TrimLeft(exp[1:], "0")
		if digits == "" {
			digits = "0"
		}
		return mantissa + "e" + sign + digits
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

var errNotNumber = errors.New("protocol: not a number")

// NumberOrString accepts a JSON number, or a JSON string holding a
// number, and returns its value. Empty and whitespace-only strings are
// rejected, as are NaN and infinities.
func NumberOrString(raw json.RawMessage) (float64, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return 0, errNotNumber
	}

	var v float64
	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return 0, err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return 0, errNotNumber
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, errNotNumber
		}
		v = f
	default:
		if !isNumberStart(trimmed[0]) {
			return 0, errNotNumber
		}
		if err := json.Unmarshal(trimmed, &v); err != nil {
			return 0, errNotNumber
		}
	}

	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errNotNumber
	}
	return v, nil
}

// TagString returns the decimal text of a checksum tag that may have been
// sent either as a JSON string or a JSON number.
func TagString(raw json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return "", errNotNumber
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	if !isNumberStart(trimmed[0]) {
		return "", errNotNumber
	}
	var v float64
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return "", errNotNumber
	}
	return FormatNumber(v), nil
}

func isNumberStart(b byte) bool {
	return b == '-' || (b >= '0' && b <= '9')
}
