package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/illarion/cfgvault/internal/keyring"
	"github.com/illarion/cfgvault/internal/keys"
)

func newKeyringCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keyring",
		Short: "Escrow the key material in the OS keyring",
		Long: `Copies the key material to the operating system keyring (macOS Keychain,
Secret Service, Windows Credential Manager) so a lost or damaged key file
can be restored. Entries are keyed by the absolute key file path.`,
	}
	cmd.AddCommand(
		newKeyringSaveCommand(a),
		newKeyringRestoreCommand(a),
		newKeyringDeleteCommand(a),
		newKeyringStatusCommand(a),
	)
	return cmd
}

func (a *app) keyManager() *keys.Manager {
	return keys.NewManager(a.cfg.KeyPath(),
		keys.WithIterations(a.cfg.KDFIterations),
		keys.WithLogger(a.logger))
}

func newKeyringSaveCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "save",
		Short: "Store the key material in the keyring",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			encoded, err := a.keyManager().Export()
			if err != nil {
				return err
			}
			if err := keyring.SaveKeyMaterial(keyring.Account(a.cfg.KeyPath()), encoded); err != nil {
				return fmt.Errorf("failed to save to keyring: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "✓ Key material saved to keyring")
			return nil
		},
	}
}

func newKeyringRestoreCommand(a *app) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Rewrite the key file from the keyring",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			encoded, err := keyring.GetKeyMaterial(keyring.Account(a.cfg.KeyPath()))
			if keyring.IsNotFound(err) {
				return errors.New("no key material escrowed for this key file")
			}
			if err != nil {
				return fmt.Errorf("failed to read keyring: %w", err)
			}

			m := a.keyManager()
			if !force {
				if err := m.Load(); err == nil {
					m.Close()
					return errors.New("key file is present and readable, use --force to replace it")
				}
			}
			if err := m.Import(encoded); err != nil {
				return err
			}
			m.Close()

			v, err := a.openVault()
			if err != nil {
				return fmt.Errorf("key restored but the vault still cannot be opened: %w", err)
			}
			defer v.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "✓ Key file restored, vault is %s\n", v.State())
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Replace a key file that still loads")
	return cmd
}

func newKeyringDeleteCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete",
		Short: "Remove the escrowed key material",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := keyring.DeleteKeyMaterial(keyring.Account(a.cfg.KeyPath()))
			if keyring.IsNotFound(err) {
				fmt.Fprintln(cmd.OutOrStdout(), "No key material stored in keyring")
				return nil
			}
			if err != nil {
				return fmt.Errorf("failed to delete from keyring: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "✓ Key material removed from keyring")
			return nil
		},
	}
}

func newKeyringStatusCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report whether key material is escrowed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if keyring.HasKeyMaterial(keyring.Account(a.cfg.KeyPath())) {
				fmt.Fprintln(cmd.OutOrStdout(), "Key material: stored in keyring")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "Key material: not stored")
			}
			return nil
		},
	}
}
