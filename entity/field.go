package entity

// Field is a single named value. Order matters on the wire, so messages that
// leave the service are kept as ordered lists instead of maps.
type Field struct {
	Key   string `json:"key" bson:"key"`
	Value string `json:"value" bson:"value"`
}

// Fields is an ordered list of fields.
type Fields []Field

// Get returns the first value stored under key.
func (f Fields) Get(key string) string {
	for _, field := range f {
		if field.Key == key {
			return field.Value
		}
	}
	return ""
}

// Has reports whether key is present.
func (f Fields) Has(key string) bool {
	for _, field := range f {
		if field.Key == key {
			return true
		}
	}
	return false
}

// Set replaces the value of key in place, or appends it.
func (f *Fields) Set(key, value string) {
	for i := range *f {
		if (*f)[i].Key == key {
			(*f)[i].Value = value
			return
		}
	}
	*f = append(*f, Field{Key: key, Value: value})
}

// Map returns a lookup copy.
func (f Fields) Map() map[string]string {
	m := make(map[string]string, len(f))
	for _, field := range f {
		m[field.Key] = field.Value
	}
	return m
}

// Capped returns a copy where every value longer than limit characters is
// cut and suffixed with " ...".
func (f Fields) Capped(limit int) Fields {
	out := make(Fields, 0, len(f))
	for _, field := range f {
		value := []rune(field.Value)
		if len(value) > limit {
			field.Value = string(value[:limit]) + " ..."
		}
		out = append(out, field)
	}
	return out
}
