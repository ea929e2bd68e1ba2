// Package signature builds the byte strings banks sign and computes or
// verifies the signatures over them.
package signature

import (
	"strconv"
	"strings"

	"pangalink/internal/codec"
)

// Lpad pads value on the left with pad up to length characters. Longer values
// are returned unchanged.
func Lpad(value string, length int, pad rune) string {
	n := codec.Length(value, false)
	if n >= length {
		return value
	}
	return strings.Repeat(string(pad), length-n) + value
}

// Rpad pads value on the right with pad up to length characters.
func Rpad(value string, length int, pad rune) string {
	n := codec.Length(value, false)
	if n >= length {
		return value
	}
	return value + strings.Repeat(string(pad), length-n)
}

// LengthPrefixed concatenates values, each preceded by its length as a
// zero padded three digit number. The prefix grows past three digits for
// values of 1000 or more characters.
func LengthPrefixed(values []string, countBytes bool) string {
	var b strings.Builder
	for _, value := range values {
		b.WriteString(Lpad(strconv.Itoa(codec.Length(value, countBytes)), 3, '0'))
		b.WriteString(value)
	}
	return b.String()
}

// Joined joins the values, the shared secret and a trailing empty element with "&".
func Joined(values []string, secret string) string {
	list := make([]string, 0, len(values)+2)
	list = append(list, values...)
	list = append(list, secret, "")
	return strings.Join(list, "&")
}

// PaddedValue is a value with its fixed width. A positive width pads left with
// zeros, a negative width pads right with spaces.
type PaddedValue struct {
	Value string
	Width int
}

// Padded concatenates fixed width values without separators.
func Padded(values []PaddedValue) string {
	var b strings.Builder
	for _, v := range values {
		switch {
		case v.Width > 0:
			b.WriteString(Lpad(v.Value, v.Width, '0'))
		case v.Width < 0:
			b.WriteString(Rpad(v.Value, -v.Width, ' '))
		default:
			b.WriteString(v.Value)
		}
	}
	return b.String()
}
