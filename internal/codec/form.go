package codec

import (
	"fmt"
	"net/url"
	"strings"

	"pangalink/entity"
)

// RawField is a form field whose value is still in the sender charset.
type RawField struct {
	Key   string
	Value []byte
}

// ParseForm splits an urlencoded body without interpreting the value bytes,
// so they can be decoded later with the charset the message declares.
func ParseForm(body string) ([]RawField, error) {
	var fields []RawField
	for _, pair := range strings.Split(body, "&") {
		if pair == "" {
			continue
		}
		key, value, _ := strings.Cut(pair, "=")
		k, err := url.QueryUnescape(key)
		if err != nil {
			return nil, fmt.Errorf("field name %q: %w", key, err)
		}
		v, err := url.QueryUnescape(value)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", k, err)
		}
		fields = append(fields, RawField{Key: k, Value: []byte(v)})
	}
	return fields, nil
}

// Latin1 returns the fields interpreted byte by byte, enough to read ASCII
// control fields such as the declared charset before decoding the rest.
func Latin1(raw []RawField) map[string]string {
	fields := make(map[string]string, len(raw))
	for _, f := range raw {
		if _, ok := fields[f.Key]; ok {
			continue
		}
		runes := make([]rune, len(f.Value))
		for i, b := range f.Value {
			runes[i] = rune(b)
		}
		fields[f.Key] = string(runes)
	}
	return fields
}

// DecodeForm converts raw values to UTF-8. The first occurrence of a key wins.
func DecodeForm(raw []RawField, charset string) (map[string]string, entity.Fields, error) {
	fields := make(map[string]string, len(raw))
	ordered := make(entity.Fields, 0, len(raw))
	for _, f := range raw {
		value, err := Decode(f.Value, charset)
		if err != nil {
			return nil, nil, fmt.Errorf("field %s: %w", f.Key, err)
		}
		ordered = append(ordered, entity.Field{Key: f.Key, Value: value})
		if _, ok := fields[f.Key]; !ok {
			fields[f.Key] = value
		}
	}
	return NormalizeStrings(fields), ordered, nil
}

const unreserved = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz-._~"

// EncodeQuery builds a query string with every value encoded in charset.
func EncodeQuery(fields entity.Fields, charset string) (string, error) {
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		value, err := Encode(f.Value, charset)
		if err != nil {
			return "", err
		}
		parts = append(parts, escape([]byte(f.Key))+"="+escape(value))
	}
	return strings.Join(parts, "&"), nil
}

func escape(data []byte) string {
	var b strings.Builder
	for _, c := range data {
		if strings.IndexByte(unreserved, c) >= 0 {
			b.WriteByte(c)
			continue
		}
		fmt.Fprintf(&b, "%%%02X", c)
	}
	return b.String()
}

// AppendQuery adds an encoded query to a URL that may already have one.
func AppendQuery(target, query string) string {
	if query == "" {
		return target
	}
	if strings.Contains(target, "?") {
		return target + "&" + query
	}
	return target + "?" + query
}
