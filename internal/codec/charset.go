// Package codec normalizes banklink field maps and converts them between the
// declared message charset and UTF-8.
package codec

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/ianaindex"
)

const UTF8 = "UTF-8"

var utf8Name = regexp.MustCompile(`(?i)^utf[-_]?8$`)

// IsUTF8 reports whether the charset name denotes UTF-8. Empty means UTF-8.
func IsUTF8(charset string) bool {
	return charset == "" || utf8Name.MatchString(strings.TrimSpace(charset))
}

// Lookup resolves a charset name.
func Lookup(charset string) (encoding.Encoding, error) {
	name := strings.TrimSpace(charset)
	enc, err := ianaindex.IANA.Encoding(name)
	if err == nil && enc != nil {
		return enc, nil
	}
	enc, err = htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("unsupported charset %q", charset)
	}
	return enc, nil
}

// Decode converts bytes in the given charset to a UTF-8 string.
func Decode(data []byte, charset string) (string, error) {
	if IsUTF8(charset) {
		return string(data), nil
	}
	enc, err := Lookup(charset)
	if err != nil {
		return "", err
	}
	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", charset, err)
	}
	return string(out), nil
}

// Encode converts a UTF-8 string to bytes in the given charset. Characters
// the charset can not represent are replaced.
func Encode(value string, charset string) ([]byte, error) {
	if IsUTF8(charset) {
		return []byte(value), nil
	}
	enc, err := Lookup(charset)
	if err != nil {
		return nil, err
	}
	out, err := encoding.ReplaceUnsupported(enc.NewEncoder()).Bytes([]byte(value))
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", charset, err)
	}
	return out, nil
}

// RoundTrip passes value through the charset and back, so the stored text
// shows exactly what the receiver is able to see.
func RoundTrip(value string, charset string) string {
	if IsUTF8(charset) {
		return value
	}
	encoded, err := Encode(value, charset)
	if err != nil {
		return value
	}
	decoded, err := Decode(encoded, charset)
	if err != nil {
		return value
	}
	return decoded
}

// Length of a value for length-prefixed signatures: characters by default,
// UTF-8 bytes when countBytes is set.
func Length(value string, countBytes bool) int {
	if countBytes {
		return len(value)
	}
	return utf8.RuneCountInString(value)
}
