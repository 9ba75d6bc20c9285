package document

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"reflect"
	"sort"
	"unicode/utf8"
)

var (
	ErrSerialization   = errors.New("malformed document")
	ErrUnsupportedType = errors.New("unsupported value type")
)

// MarshalJSON encodes v with mapping keys in sorted order
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v Value) encode(buf *bytes.Buffer) error {
	switch v.kind {
	case KindNull:
		buf.WriteString("null")
	case KindBool:
		if v.b {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case KindNumber:
		buf.WriteString(string(v.num))
	case KindString:
		if err := encodeString(buf, v.str); err != nil {
			return err
		}
	case KindList:
		buf.WriteByte('[')
		for i, item := range v.list {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := item.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindMap:
		keys := make([]string, 0, len(v.m))
		for k := range v.m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeString(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := v.m[k].encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("%w: kind %d", ErrUnsupportedType, v.kind)
	}
	return nil
}

// encodeString refuses invalid UTF-8, which encoding/json would silently
// replace with U+FFFD
func encodeString(buf *bytes.Buffer, s string) error {
	if !utf8.ValidString(s) {
		return fmt.Errorf("%w: string is not valid UTF-8: %q", ErrUnsupportedType, s)
	}
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	buf.Write(b)
	return nil
}

// checkUTF8 reports the first string or mapping key in v that is not valid
// UTF-8
func (v Value) checkUTF8() error {
	switch v.kind {
	case KindString:
		if !utf8.ValidString(v.str) {
			return fmt.Errorf("%w: string is not valid UTF-8: %q", ErrUnsupportedType, v.str)
		}
	case KindList:
		for _, item := range v.list {
			if err := item.checkUTF8(); err != nil {
				return err
			}
		}
	case KindMap:
		for k, child := range v.m {
			if !utf8.ValidString(k) {
				return fmt.Errorf("%w: key is not valid UTF-8: %q", ErrUnsupportedType, k)
			}
			if err := child.checkUTF8(); err != nil {
				return err
			}
		}
	}
	return nil
}

// UnmarshalJSON decodes any JSON value into v. Numbers keep their literal text.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	parsed, err := decodeValue(dec)
	if err != nil {
		return err
	}
	if _, err := dec.Token(); err != io.EOF {
		return fmt.Errorf("%w: trailing data", ErrSerialization)
	}
	*v = parsed
	return nil
}

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, fmt.Errorf("%w: %v", ErrSerialization, err)
	}

	switch t := tok.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case json.Number:
		return Value{kind: KindNumber, num: t}, nil
	case string:
		return String(t), nil
	case json.Delim:
		switch t {
		case '[':
			items := []Value{}
			for dec.More() {
				item, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				items = append(items, item)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, fmt.Errorf("%w: %v", ErrSerialization, err)
			}
			return List(items...), nil
		case '{':
			m := Map()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return Value{}, fmt.Errorf("%w: %v", ErrSerialization, err)
				}
				key, ok := keyTok.(string)
				if !ok {
					return Value{}, fmt.Errorf("%w: non-string key", ErrSerialization)
				}
				child, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				m.m[key] = child
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, fmt.Errorf("%w: %v", ErrSerialization, err)
			}
			return m, nil
		}
	}
	return Value{}, fmt.Errorf("%w: unexpected token %v", ErrSerialization, tok)
}

// Interface converts v to plain Go values: nil, bool, json.Number, string,
// []any and map[string]any.
func (v Value) Interface() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		return v.num
	case KindString:
		return v.str
	case KindList:
		out := make([]any, len(v.list))
		for i, item := range v.list {
			out[i] = item.Interface()
		}
		return out
	case KindMap:
		out := make(map[string]any, len(v.m))
		for k, child := range v.m {
			out[k] = child.Interface()
		}
		return out
	default:
		return nil
	}
}

// FromInterface converts plain Go values into a Value. Supported inputs are
// nil, bool, all integer and float types, json.Number, string, Value,
// slices and maps with string keys of those.
func FromInterface(in any) (Value, error) {
	v, err := fromInterface(in)
	if err != nil {
		return Value{}, err
	}
	if err := v.checkUTF8(); err != nil {
		return Value{}, err
	}
	return v, nil
}

func fromInterface(in any) (Value, error) {
	switch t := in.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t, nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case json.Number:
		return Number(t)
	case int:
		return Int(int64(t)), nil
	case int8:
		return Int(int64(t)), nil
	case int16:
		return Int(int64(t)), nil
	case int32:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case uint8:
		return Int(int64(t)), nil
	case uint16:
		return Int(int64(t)), nil
	case uint32:
		return Int(int64(t)), nil
	case uint:
		return fromUint(uint64(t))
	case uint64:
		return fromUint(t)
	case float32:
		return Float(float64(t))
	case float64:
		return Float(t)
	case []any:
		items := make([]Value, len(t))
		for i, item := range t {
			v, err := fromInterface(item)
			if err != nil {
				return Value{}, err
			}
			items[i] = v
		}
		return List(items...), nil
	case map[string]any:
		m := Map()
		for k, child := range t {
			v, err := fromInterface(child)
			if err != nil {
				return Value{}, err
			}
			m.m[k] = v
		}
		return m, nil
	}

	rv := reflect.ValueOf(in)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		items := make([]Value, rv.Len())
		for i := range items {
			v, err := fromInterface(rv.Index(i).Interface())
			if err != nil {
				return Value{}, err
			}
			items[i] = v
		}
		return List(items...), nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			break
		}
		m := Map()
		iter := rv.MapRange()
		for iter.Next() {
			v, err := fromInterface(iter.Value().Interface())
			if err != nil {
				return Value{}, err
			}
			m.m[iter.Key().String()] = v
		}
		return m, nil
	}
	return Value{}, fmt.Errorf("%w: %T", ErrUnsupportedType, in)
}

func fromUint(u uint64) (Value, error) {
	if u > math.MaxInt64 {
		return Number(json.Number(fmt.Sprintf("%d", u)))
	}
	return Int(int64(u)), nil
}

// Parse decodes a raw JSON text into a Value. Plain words that are not
// valid JSON are not accepted; use String for those.
func Parse(raw string) (Value, error) {
	var v Value
	if err := v.UnmarshalJSON([]byte(raw)); err != nil {
		return Value{}, err
	}
	return v, nil
}
