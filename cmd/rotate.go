package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/illarion/cfgvault/internal/vault"
)

func newRotateCommand(a *app) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "rotate",
		Short: "Replace the key material",
		Long: `Generates new key material.

On a healthy vault the configuration is re-encrypted under the new key and
nothing is lost; existing backups can no longer be restored.

On a vault that cannot be decrypted (missing or damaged key file, tampered
vault file) the unreadable vault is set aside with an .orphaned suffix and
an empty vault is started. Its contents are unrecoverable, so this needs
--yes or an interactive confirmation.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := a.newVault()
			if err != nil {
				return err
			}
			defer v.Close()

			// A failed open is what rotate recovers from
			if err := v.Open(); err != nil {
				a.logger.Debug("open failed before rotation", "error", err)
			}

			out := cmd.OutOrStdout()
			destructive := v.State() != vault.StateReady && v.State() != vault.StateKeyLoaded
			if destructive && !yes {
				if cause := v.Err(); cause != nil {
					fmt.Fprintf(a.errOut, "The vault cannot be read: %s\n", cause)
				}
				yes = confirm(a.in, a.errOut, "Discard the unreadable vault and start over with a new key?")
			}

			if err := v.RotateKey(yes); err != nil {
				return err
			}

			if destructive {
				fmt.Fprintln(out, "✓ New key generated, the unreadable vault was set aside")
				fmt.Fprintln(out, "  Re-enter your settings, e.g. 'cfgvault init' for defaults")
			} else {
				fmt.Fprintln(out, "✓ Key rotated, configuration re-encrypted")
				fmt.Fprintln(out, "  Backups made before now can no longer be restored")
			}
			fmt.Fprintf(out, "  vault id: %s\n", v.Keys().VaultID())
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm discarding an unreadable vault")
	return cmd
}
