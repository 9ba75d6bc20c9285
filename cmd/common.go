package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/illarion/cfgvault/internal/document"
	"github.com/illarion/cfgvault/internal/keys"
	"github.com/illarion/cfgvault/internal/vault"
)

var errNotFound = errors.New("no value at path")

// HandleError prints err with a hint on how to recover
func HandleError(w io.Writer, err error) {
	fmt.Fprintf(w, "Error: %s\n", err)

	switch {
	case errors.Is(err, vault.ErrCorrupted):
		fmt.Fprintf(w, "Run 'cfgvault rotate --yes' to set the damaged file aside and start over with a new key\n")
	case errors.Is(err, keys.ErrKeyFileCorrupt):
		fmt.Fprintf(w, "Run 'cfgvault keyring restore' if the key was escrowed,\n")
		fmt.Fprintf(w, "or 'cfgvault rotate --yes' to generate a new key (stored secrets are lost)\n")
	case errors.Is(err, keys.ErrKeyFileNotFound):
		fmt.Fprintf(w, "Run 'cfgvault keyring restore' if the key was escrowed,\n")
		fmt.Fprintf(w, "or 'cfgvault rotate --yes' to start over with a new key (stored secrets are lost)\n")
	case errors.Is(err, keys.ErrKeyFilePermissionDenied):
		fmt.Fprintf(w, "Check ownership of the key file; it should be mode 0600 and owned by this user\n")
	case errors.Is(err, vault.ErrConfirmationRequired):
		fmt.Fprintf(w, "Re-run with --yes to confirm\n")
	case errors.Is(err, vault.ErrInvalidBackup):
		fmt.Fprintf(w, "The backup is damaged or was sealed with a different key\n")
	case errors.Is(err, vault.ErrNothingToBackup):
		fmt.Fprintf(w, "Run 'cfgvault init' first\n")
	case errors.Is(err, document.ErrNotMap):
		fmt.Fprintf(w, "A parent of this path holds a value; remove it first with 'cfgvault rm'\n")
	case errors.Is(err, document.ErrInvalidPath):
		fmt.Fprintf(w, "Paths are dot-separated keys, e.g. settings.language\n")
	case errors.Is(err, errNotFound):
		fmt.Fprintf(w, "Use 'cfgvault show' to list stored keys\n")
	}
}
