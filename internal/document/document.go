package document

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

var (
	ErrInvalidPath = errors.New("invalid path")
	ErrNotMap      = errors.New("path crosses a non-map value")
)

// Document is the top-level settings mapping
type Document struct {
	root Value
}

// New returns an empty document
func New() *Document {
	return &Document{root: Map()}
}

// FromValue wraps a mapping value as a document
func FromValue(v Value) (*Document, error) {
	if v.kind != KindMap {
		return nil, fmt.Errorf("%w: top level is %s, want map", ErrSerialization, v.kind)
	}
	return &Document{root: v}, nil
}

// Root returns the top-level mapping
func (d *Document) Root() Value { return d.root }

// Len returns the number of top-level keys
func (d *Document) Len() int { return len(d.root.m) }

// Keys returns the sorted top-level keys
func (d *Document) Keys() []string { return d.root.Keys() }

func splitPath(path string) ([]string, bool) {
	if path == "" {
		return nil, false
	}
	segs := strings.Split(path, ".")
	for _, s := range segs {
		if s == "" {
			return nil, false
		}
	}
	return segs, true
}

// Lookup returns the value at path and whether it exists
func (d *Document) Lookup(path string) (Value, bool) {
	segs, ok := splitPath(path)
	if !ok {
		return Value{}, false
	}

	cur := d.root
	for _, seg := range segs {
		if cur.kind != KindMap {
			return Value{}, false
		}
		next, ok := cur.m[seg]
		if !ok {
			return Value{}, false
		}
		cur = next
	}
	return cur, true
}

// Get returns the value at path, or def when any segment is missing or
// crosses a non-map value
func (d *Document) Get(path string, def Value) Value {
	if v, ok := d.Lookup(path); ok {
		return v
	}
	return def
}

// Set assigns v at path, creating intermediate mappings as needed.
// The document is mutated in place and returned.
func (d *Document) Set(path string, v Value) (*Document, error) {
	segs, ok := splitPath(path)
	if !ok {
		return d, fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	if !utf8.ValidString(path) {
		return d, fmt.Errorf("%w: path is not valid UTF-8: %q", ErrInvalidPath, path)
	}
	if err := v.checkUTF8(); err != nil {
		return d, err
	}

	if d.root.kind != KindMap {
		d.root = Map()
	}

	cur := d.root.m
	for i, seg := range segs[:len(segs)-1] {
		next, ok := cur[seg]
		if !ok {
			next = Map()
			cur[seg] = next
		} else if next.kind != KindMap {
			return d, fmt.Errorf("%w: %q is %s", ErrNotMap, strings.Join(segs[:i+1], "."), next.kind)
		}
		cur = next.m
	}
	cur[segs[len(segs)-1]] = v
	return d, nil
}

// Delete removes the leaf at path. It reports whether anything was removed.
func (d *Document) Delete(path string) bool {
	segs, ok := splitPath(path)
	if !ok {
		return false
	}

	cur := d.root
	for _, seg := range segs[:len(segs)-1] {
		next, ok := cur.m[seg]
		if !ok || next.kind != KindMap {
			return false
		}
		cur = next
	}

	leaf := segs[len(segs)-1]
	if _, ok := cur.m[leaf]; !ok {
		return false
	}
	delete(cur.m, leaf)
	return true
}

// Clone returns a deep copy of the document
func (d *Document) Clone() *Document {
	return &Document{root: d.root.Clone()}
}

// Equal reports deep equality of two documents
func (d *Document) Equal(o *Document) bool {
	return d.root.Equal(o.root)
}

// Merge deep-merges other into d. Mappings are merged key by key; any
// other value in other replaces the value in d.
func (d *Document) Merge(other *Document) {
	mergeInto(d.root.m, other.root.Clone().m)
}

func mergeInto(dst, src map[string]Value) {
	for k, v := range src {
		if existing, ok := dst[k]; ok && existing.kind == KindMap && v.kind == KindMap {
			mergeInto(existing.m, v.m)
			continue
		}
		dst[k] = v
	}
}

// Walk calls fn for every leaf, in sorted key order, with its dotted path.
// Empty mappings are reported as leaves.
func (d *Document) Walk(fn func(path string, v Value)) {
	walk("", d.root, fn)
}

func walk(prefix string, v Value, fn func(string, Value)) {
	if v.kind != KindMap || (len(v.m) == 0 && prefix != "") {
		fn(prefix, v)
		return
	}
	for _, k := range v.Keys() {
		p := k
		if prefix != "" {
			p = prefix + "." + k
		}
		walk(p, v.m[k], fn)
	}
}

// Interface converts the document into map[string]any
func (d *Document) Interface() map[string]any {
	return d.root.Interface().(map[string]any)
}

// Marshal serializes the document deterministically: sorted keys, two-space
// indentation, number literals preserved
func (d *Document) Marshal() ([]byte, error) {
	compact, err := d.root.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, compact, "", "  "); err != nil {
		return nil, err
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// Unmarshal parses serialized document bytes. Anything other than a JSON
// object fails with ErrSerialization.
func Unmarshal(data []byte) (*Document, error) {
	var v Value
	if err := v.UnmarshalJSON(data); err != nil {
		if errors.Is(err, ErrSerialization) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	return FromValue(v)
}

// MarshalJSON implements json.Marshaler
func (d *Document) MarshalJSON() ([]byte, error) {
	return d.root.MarshalJSON()
}

// UnmarshalJSON implements json.Unmarshaler
func (d *Document) UnmarshalJSON(data []byte) error {
	parsed, err := Unmarshal(data)
	if err != nil {
		return err
	}
	*d = *parsed
	return nil
}
