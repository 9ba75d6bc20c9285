package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/illarion/cfgvault/internal/crypto"
	"github.com/illarion/cfgvault/internal/git"
	"github.com/illarion/cfgvault/internal/keyring"
	"github.com/illarion/cfgvault/internal/vault"
)

func newStatusCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show vault state, key details, backups and git hygiene",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := a.newVault()
			if err != nil {
				return err
			}
			defer v.Close()

			// Status reports a broken vault instead of failing on it
			if err := v.Open(); err != nil {
				a.logger.Debug("open failed", "error", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "State:     %s\n", v.State())
			if cause := v.Err(); cause != nil {
				fmt.Fprintf(out, "Problem:   %s\n", cause)
			}
			fmt.Fprintf(out, "Key file:  %s\n", a.cfg.KeyPath())
			fmt.Fprintf(out, "Vault:     %s\n", a.cfg.VaultPath())

			if v.Keys().Loaded() {
				fmt.Fprintf(out, "Vault ID:  %s\n", v.Keys().VaultID())
				fmt.Fprintf(out, "Key since: %s\n", v.Keys().Created().Local().Format(time.RFC3339))
			}
			printBlobInfo(out, a.cfg.VaultPath())

			if v.State() == vault.StateReady {
				if doc, err := v.GetAll(); err == nil {
					fmt.Fprintf(out, "Keys:      %d top-level\n", doc.Len())
				}
				if backups, err := v.ListBackups(); err == nil {
					fmt.Fprintf(out, "Backups:   %d in %s\n", len(backups), a.cfg.BackupPath())
				}
			}

			if keyring.HasKeyMaterial(keyring.Account(a.cfg.KeyPath())) {
				fmt.Fprintln(out, "Keyring:   key escrowed")
			} else {
				fmt.Fprintln(out, "Keyring:   not escrowed (cfgvault keyring save)")
			}

			status, err := git.Check(cmd.Context(), ".", gitFiles(a))
			if err != nil {
				return err
			}
			fmt.Fprint(out, git.FormatStatus(status))
			return nil
		},
	}
}

// printBlobInfo prints header fields of the vault file. They are read
// without the key and only informational.
func printBlobInfo(w io.Writer, path string) {
	blob, err := os.ReadFile(path)
	if err != nil || len(blob) == 0 {
		fmt.Fprintln(w, "Sealed:    (no vault file)")
		return
	}
	suite, err := crypto.BlobSuite(blob)
	if err != nil {
		fmt.Fprintln(w, "Sealed:    (unrecognized header)")
		return
	}
	issued, _ := crypto.IssuedAt(blob)
	fmt.Fprintf(w, "Cipher:    %s\n", suite)
	fmt.Fprintf(w, "Sealed:    %s (%d bytes)\n", issued.Local().Format(time.RFC3339), len(blob))
}

// gitFiles lists the vault artifacts relative to the working directory
func gitFiles(a *app) []git.File {
	files := []git.File{
		{Path: a.cfg.KeyPath(), Label: "key file", Secret: true},
		{Path: a.cfg.VaultPath(), Label: "vault"},
		{Path: a.cfg.BackupPath(), Label: "backups", Secret: true},
	}
	if a.cfg.SafeViewFile != "" {
		files = append(files, git.File{Path: a.cfg.SafeViewPath(), Label: "safe view", Secret: true})
	}

	wd, err := os.Getwd()
	if err != nil {
		return files
	}
	for i, f := range files {
		abs, err := filepath.Abs(f.Path)
		if err != nil {
			continue
		}
		if rel, err := filepath.Rel(wd, abs); err == nil {
			files[i].Path = rel
		}
	}
	return files
}
