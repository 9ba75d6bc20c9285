package vault

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/illarion/cfgvault/internal/document"
)

//go:embed schema.json
var defaultSchema []byte

var ErrValidation = errors.New("configuration does not match schema")

// ValidationError lists every schema violation
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s:\n  - %s", ErrValidation, strings.Join(e.Problems, "\n  - "))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Validate checks the document against the configured schema file, or the
// built-in bot schema when none is set
func (v *Vault) Validate() error {
	schema, err := v.loadSchema()
	if err != nil {
		return err
	}
	return v.view("validate", func(doc *document.Document) error {
		return ValidateDocument(schema, doc)
	})
}

func (v *Vault) loadSchema() (gojsonschema.JSONLoader, error) {
	path := v.cfg.SchemaPath()
	if path == "" {
		return gojsonschema.NewBytesLoader(defaultSchema), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema: %w", err)
	}
	return gojsonschema.NewBytesLoader(raw), nil
}

// ValidateDocument validates doc against schema
func ValidateDocument(schema gojsonschema.JSONLoader, doc *document.Document) error {
	data, err := doc.MarshalJSON()
	if err != nil {
		return err
	}

	result, err := gojsonschema.Validate(schema, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}
	if result.Valid() {
		return nil
	}

	verr := &ValidationError{}
	for _, desc := range result.Errors() {
		verr.Problems = append(verr.Problems, desc.String())
	}
	return verr
}

// DefaultSchema returns the built-in bot configuration schema
func DefaultSchema() []byte {
	return append([]byte(nil), defaultSchema...)
}
