package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newInitCommand(a *app) *cobra.Command {
	var empty bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the key and vault, filled with default settings",
		Long: `Creates the data directory, a new key file and an encrypted vault.
An empty vault is filled with default bot settings unless --empty is given.
Running init on an existing vault changes nothing.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := a.openVault()
			if err != nil {
				return err
			}
			defer v.Close()

			out := cmd.OutOrStdout()
			if !empty {
				applied, err := v.InitDefaults()
				if err != nil {
					return err
				}
				if applied {
					fmt.Fprintln(out, "✓ Wrote default settings")
					fmt.Fprintln(out, "  A random admin password was generated: cfgvault get admin_password")
				}
			}

			fmt.Fprintf(out, "✓ Vault ready at %s\n", a.cfg.VaultPath())
			fmt.Fprintf(out, "  key file: %s (keep it out of version control)\n", a.cfg.KeyPath())
			return nil
		},
	}

	cmd.Flags().BoolVar(&empty, "empty", false, "Do not write default settings")
	return cmd
}
