package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Object is a JSON object that remembers its field order and its exact
// encoded form. It marshals back to the compacted bytes it was decoded
// from, which is what the gateway signed.
type Object struct {
	raw    json.RawMessage
	keys   []string
	fields map[string]json.RawMessage
}

// ParseObject decodes data, which must hold a single JSON object.
func ParseObject(data []byte) (*Object, error) {
	o := &Object{}
	if err := o.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return o, nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (o *Object) UnmarshalJSON(data []byte) error {
	var compact bytes.Buffer
	if err := json.Compact(&compact, data); err != nil {
		return err
	}

	dec := json.NewDecoder(bytes.NewReader(compact.Bytes()))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("expected JSON object, got %v", tok)
	}

	keys := make([]string, 0)
	fields := make(map[string]json.RawMessage)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("expected object key, got %v", tok)
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return err
		}
		// duplicates keep their first position and last value
		if _, seen := fields[key]; !seen {
			keys = append(keys, key)
		}
		fields[key] = value
	}

	if _, err := dec.Token(); err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("unexpected data after JSON object")
	}

	o.raw = json.RawMessage(compact.Bytes())
	o.keys = keys
	o.fields = fields
	return nil
}

// MarshalJSON returns the compacted bytes the object was decoded from.
func (o Object) MarshalJSON() ([]byte, error) {
	if len(o.raw) == 0 {
		return []byte("{}"), nil
	}
	return o.raw, nil
}

// Raw returns the compacted encoding of the object.
func (o *Object) Raw() json.RawMessage {
	return o.raw
}

// Keys returns the field names in document order.
func (o *Object) Keys() []string {
	return append([]string(nil), o.keys...)
}

// Len returns the number of fields.
func (o *Object) Len() int {
	return len(o.keys)
}

// Get returns the raw encoding of a field.
func (o *Object) Get(key string) (json.RawMessage, bool) {
	v, ok := o.fields[key]
	return v, ok
}

// Has reports whether the field is present.
func (o *Object) Has(key string) bool {
	_, ok := o.fields[key]
	return ok
}

// String returns a field as text. Strings are unquoted, null and absent
// fields are empty, and any other value is returned in its JSON form.
func (o *Object) String(key string) string {
	v, ok := o.fields[key]
	if !ok {
		return ""
	}
	switch {
	case bytes.Equal(v, []byte("null")):
		return ""
	case len(v) > 0 && v[0] == '"':
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			return s
		}
	}
	return string(v)
}

// Decode unmarshals the whole object into v.
func (o *Object) Decode(v any) error {
	return json.Unmarshal(o.raw, v)
}

// DecodeField unmarshals a single field into v.
func (o *Object) DecodeField(key string, v any) error {
	raw, ok := o.fields[key]
	if !ok {
		return fmt.Errorf("field %q not present", key)
	}
	return json.Unmarshal(raw, v)
}
