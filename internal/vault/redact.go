package vault

import (
	"strings"

	"github.com/illarion/cfgvault/internal/document"
)

const (
	maskFull       = "********"
	maskPrefix     = "***"
	maskMinLength  = 10 // shorter strings are masked completely
	maskVisibleLen = 4
)

// Redactor masks values stored under sensitive key names
type Redactor struct {
	patterns []string
}

// NewRedactor creates a redactor matching key names that contain any of
// patterns, case-insensitively
func NewRedactor(patterns []string) *Redactor {
	r := &Redactor{}
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			r.patterns = append(r.patterns, p)
		}
	}
	return r
}

// IsSensitive reports whether a key name looks like it holds a credential
func (r *Redactor) IsSensitive(key string) bool {
	key = strings.ToLower(key)
	for _, p := range r.patterns {
		if strings.Contains(key, p) {
			return true
		}
	}
	return false
}

// IsSensitivePath reports whether any segment of a dotted path is sensitive
func (r *Redactor) IsSensitivePath(path string) bool {
	for _, seg := range strings.Split(path, ".") {
		if r.IsSensitive(seg) {
			return true
		}
	}
	return false
}

// Redact returns a masked copy of doc. The input is not modified.
func (r *Redactor) Redact(doc *document.Document) *document.Document {
	out, err := document.FromValue(r.redactMap(doc.Root()))
	if err != nil {
		// redactMap always returns a mapping
		return document.New()
	}
	return out
}

func (r *Redactor) redactMap(v document.Value) document.Value {
	fields := make(map[string]document.Value, v.Len())
	for _, k := range v.Keys() {
		child, _ := v.Field(k)
		if r.IsSensitive(k) {
			fields[k] = Mask(child)
			continue
		}
		fields[k] = r.redactValue(child)
	}
	return document.MapOf(fields)
}

func (r *Redactor) redactValue(v document.Value) document.Value {
	switch v.Kind() {
	case document.KindMap:
		return r.redactMap(v)
	case document.KindList:
		items, _ := v.Items()
		out := make([]document.Value, len(items))
		for i, item := range items {
			out[i] = r.redactValue(item)
		}
		return document.List(out...)
	default:
		return v
	}
}

// Mask hides a value stored under a sensitive key. Long strings keep their
// last few characters so an operator can tell credentials apart. Null and
// the empty string say only that nothing is configured and are kept.
func Mask(v document.Value) document.Value {
	switch v.Kind() {
	case document.KindNull:
		return v
	case document.KindString:
		s, _ := v.AsString()
		if s == "" {
			return v
		}
		runes := []rune(s)
		if len(runes) < maskMinLength {
			return document.String(maskFull)
		}
		return document.String(maskPrefix + string(runes[len(runes)-maskVisibleLen:]))
	default:
		return document.String(maskFull)
	}
}
