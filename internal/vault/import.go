package vault

import (
	"fmt"
	"io"

	"github.com/titanous/json5"

	"github.com/illarion/cfgvault/internal/document"
)

// ParseJSON5 reads a settings object written in JSON5 (comments, trailing
// commas, unquoted keys)
func ParseJSON5(r io.Reader) (*document.Document, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}

	var parsed any
	if err := json5.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", document.ErrSerialization, err)
	}
	val, err := document.FromInterface(parsed)
	if err != nil {
		return nil, err
	}
	return document.FromValue(val)
}

// Import merges a JSON5 settings object into the vault. Nested maps are
// merged key by key; everything else in the input replaces what is stored.
// It returns the top-level keys that were written.
func (v *Vault) Import(r io.Reader) ([]string, error) {
	incoming, err := ParseJSON5(r)
	if err != nil {
		return nil, err
	}

	err = v.mutate("import", func(doc *document.Document) (bool, error) {
		doc.Merge(incoming)
		return incoming.Len() > 0, nil
	})
	if err != nil {
		return nil, err
	}
	v.logger.Info("imported settings", "keys", incoming.Len())
	return incoming.Keys(), nil
}
