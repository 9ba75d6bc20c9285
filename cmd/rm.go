package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRmCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <path> [path...]",
		Short: "Remove values",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := a.openVault()
			if err != nil {
				return err
			}
			defer v.Close()

			out := cmd.OutOrStdout()
			for _, path := range args {
				removed, err := v.Delete(path)
				if err != nil {
					return err
				}
				if removed {
					fmt.Fprintf(out, "✓ Removed %s\n", path)
				} else {
					fmt.Fprintf(out, "  %s: nothing stored\n", path)
				}
			}
			return nil
		},
	}
}
